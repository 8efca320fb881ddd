package net

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"callmarket/internal/common"
)

var (
	ErrRejected = errors.New("rejected by server")
)

// Client speaks to a Server. Every message is answered by exactly one
// report, calls are serialized.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

func Dial(ctx context.Context, address string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server at %s: %w", address, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(payload []byte) (Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeFrame(c.conn, payload); err != nil {
		return Report{}, err
	}
	frame, err := readFrame(c.reader)
	if err != nil {
		return Report{}, err
	}
	report, err := ParseReport(frame)
	if err != nil {
		return Report{}, err
	}
	if report.MessageType == ErrorReport {
		return report, fmt.Errorf("%w: %s", ErrRejected, report.Err)
	}
	return report, nil
}

func (c *Client) Heartbeat() error {
	_, err := c.roundTrip(BaseMessage{TypeOf: Heartbeat}.Serialize())
	return err
}

// Submit places an order in the open round of group. The report carries
// the order identifier.
func (c *Client) Submit(group, participant string, side common.Side, price, quantity int64) (Report, error) {
	m, err := NewSubmitOrderMessage(group, participant, side, price, quantity)
	if err != nil {
		return Report{}, err
	}
	return c.roundTrip(m.Serialize())
}

// CloseRound clears the open round of group. The report carries the market
// outcome and the loop outcome as its ID.
func (c *Client) CloseRound(group string) (Report, error) {
	m, err := NewCloseRoundMessage(group)
	if err != nil {
		return Report{}, err
	}
	return c.roundTrip(m.Serialize())
}
