package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"callmarket/internal/common"
	"callmarket/internal/engine"

	"github.com/google/uuid"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
	ErrMessageTooLong     = errors.New("message too long")
	ErrFieldTooLong       = errors.New("field too long")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	SubmitOrder
	CloseRound
)

type ReportMessageType uint8

const (
	AckReport ReportMessageType = iota
	OrderReport
	RoundReport
	ErrorReport
)

type Message interface {
	GetType() MessageType
}

// Every frame on the wire is a 4 byte big-endian length followed by the
// payload. Message payloads start with a 2 byte type.
const (
	MAX_FRAME_SIZE              = 4 * 1024
	frameHeaderLen              = 4
	BaseMessageHeaderLen        = 2
	SubmitOrderMessageHeaderLen = 1 + 8 + 8 + 1 + 1
	CloseRoundMessageHeaderLen  = 1
)

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > MAX_FRAME_SIZE {
		return ErrMessageTooLong
	}
	buf := make([]byte, frameHeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	copy(buf[frameHeaderLen:], payload)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, frameHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header)
	if size > MAX_FRAME_SIZE {
		return nil, ErrMessageTooLong
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func (m BaseMessage) Serialize() []byte {
	return binary.BigEndian.AppendUint16(nil, uint16(m.TypeOf))
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, fmt.Errorf("%w: no header", ErrMessageTooShort)
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	case SubmitOrder:
		return parseSubmitOrder(msg)
	case CloseRound:
		return parseCloseRound(msg)
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

// sides travel as one byte.
func encodeSide(side common.Side) byte {
	if side == common.Offer {
		return 2
	}
	return byte(side)
}

func decodeSide(b byte) common.Side {
	switch b {
	case 1:
		return common.Bid
	case 2:
		return common.Offer
	default:
		return common.Side(0)
	}
}

type SubmitOrderMessage struct {
	BaseMessage
	Side           common.Side // 1 byte
	Price          int64       // 8 bytes
	Quantity       int64       // 8 bytes
	GroupLen       uint8       // 1 byte
	ParticipantLen uint8       // 1 byte
	Group          string      // n bytes
	Participant    string      // n bytes
}

func NewSubmitOrderMessage(group, participant string, side common.Side, price, quantity int64) (SubmitOrderMessage, error) {
	if len(group) > 255 || len(participant) > 255 {
		return SubmitOrderMessage{}, ErrFieldTooLong
	}
	return SubmitOrderMessage{
		BaseMessage:    BaseMessage{TypeOf: SubmitOrder},
		Side:           side,
		Price:          price,
		Quantity:       quantity,
		GroupLen:       uint8(len(group)),
		ParticipantLen: uint8(len(participant)),
		Group:          group,
		Participant:    participant,
	}, nil
}

// Order returns the order the message submits, under a fresh identifier.
func (m *SubmitOrderMessage) Order() *common.Order {
	return &common.Order{
		ID:          uuid.New().String(),
		Participant: m.Participant,
		Side:        m.Side,
		Price:       m.Price,
		Quantity:    m.Quantity,
	}
}

func (m SubmitOrderMessage) Serialize() []byte {
	buf := make([]byte, BaseMessageHeaderLen+SubmitOrderMessageHeaderLen, BaseMessageHeaderLen+SubmitOrderMessageHeaderLen+int(m.GroupLen)+int(m.ParticipantLen))
	binary.BigEndian.PutUint16(buf[0:2], uint16(SubmitOrder))
	buf[2] = encodeSide(m.Side)
	binary.BigEndian.PutUint64(buf[3:11], uint64(m.Price))
	binary.BigEndian.PutUint64(buf[11:19], uint64(m.Quantity))
	buf[19] = m.GroupLen
	buf[20] = m.ParticipantLen
	buf = append(buf, m.Group...)
	return append(buf, m.Participant...)
}

func parseSubmitOrder(msg []byte) (SubmitOrderMessage, error) {
	m := SubmitOrderMessage{BaseMessage: BaseMessage{TypeOf: SubmitOrder}}
	if len(msg) < SubmitOrderMessageHeaderLen {
		return SubmitOrderMessage{}, ErrMessageTooShort
	}

	m.Side = decodeSide(msg[0])
	m.Price = int64(binary.BigEndian.Uint64(msg[1:9]))
	m.Quantity = int64(binary.BigEndian.Uint64(msg[9:17]))
	m.GroupLen = msg[17]
	m.ParticipantLen = msg[18]

	// Calculate expected total length.
	expectedTotalLen := SubmitOrderMessageHeaderLen + int(m.GroupLen) + int(m.ParticipantLen)
	if len(msg) < expectedTotalLen {
		return SubmitOrderMessage{}, ErrMessageTooShort
	}
	offset := SubmitOrderMessageHeaderLen
	m.Group = string(msg[offset : offset+int(m.GroupLen)])
	offset += int(m.GroupLen)
	m.Participant = string(msg[offset : offset+int(m.ParticipantLen)])

	return m, nil
}

type CloseRoundMessage struct {
	BaseMessage
	GroupLen uint8  // 1 byte
	Group    string // n bytes
}

func NewCloseRoundMessage(group string) (CloseRoundMessage, error) {
	if len(group) > 255 {
		return CloseRoundMessage{}, ErrFieldTooLong
	}
	return CloseRoundMessage{
		BaseMessage: BaseMessage{TypeOf: CloseRound},
		GroupLen:    uint8(len(group)),
		Group:       group,
	}, nil
}

func (m CloseRoundMessage) Serialize() []byte {
	buf := binary.BigEndian.AppendUint16(nil, uint16(CloseRound))
	buf = append(buf, m.GroupLen)
	return append(buf, m.Group...)
}

func parseCloseRound(msg []byte) (CloseRoundMessage, error) {
	m := CloseRoundMessage{BaseMessage: BaseMessage{TypeOf: CloseRound}}
	if len(msg) < CloseRoundMessageHeaderLen {
		return CloseRoundMessage{}, ErrMessageTooShort
	}
	m.GroupLen = msg[0]
	if len(msg) < CloseRoundMessageHeaderLen+int(m.GroupLen) {
		return CloseRoundMessage{}, ErrMessageTooShort
	}
	m.Group = string(msg[1 : 1+int(m.GroupLen)])
	return m, nil
}

// Report is the server's answer to every message.
type Report struct {
	MessageType ReportMessageType // 1 byte
	Round       uint32            // 4 bytes
	Price       int64             // 8 bytes
	Volume      int64             // 8 bytes
	Passes      uint8             // 1 byte
	GroupLen    uint8             // 1 byte
	IDLen       uint8             // 1 byte
	ErrStrLen   uint16            // 2 bytes
	Group       string            // n bytes
	ID          string            // n bytes, accepted order or round outcome
	Err         string            // n bytes
}

const reportFixedHeaderLen = 1 + 4 + 8 + 8 + 1 + 1 + 1 + 2

// Serialize converts the report to be sent on the wire. Strings too long
// for their length field are truncated.
func (r *Report) Serialize() []byte {
	group := truncate(r.Group, 255)
	id := truncate(r.ID, 255)
	errStr := truncate(r.Err, MAX_FRAME_SIZE-reportFixedHeaderLen-len(group)-len(id))

	buf := make([]byte, reportFixedHeaderLen, reportFixedHeaderLen+len(group)+len(id)+len(errStr))
	buf[0] = byte(r.MessageType)
	binary.BigEndian.PutUint32(buf[1:5], r.Round)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.Price))
	binary.BigEndian.PutUint64(buf[13:21], uint64(r.Volume))
	buf[21] = r.Passes
	buf[22] = uint8(len(group))
	buf[23] = uint8(len(id))
	binary.BigEndian.PutUint16(buf[24:26], uint16(len(errStr)))

	buf = append(buf, group...)
	buf = append(buf, id...)
	return append(buf, errStr...)
}

func ParseReport(msg []byte) (Report, error) {
	if len(msg) < reportFixedHeaderLen {
		return Report{}, ErrMessageTooShort
	}
	r := Report{
		MessageType: ReportMessageType(msg[0]),
		Round:       binary.BigEndian.Uint32(msg[1:5]),
		Price:       int64(binary.BigEndian.Uint64(msg[5:13])),
		Volume:      int64(binary.BigEndian.Uint64(msg[13:21])),
		Passes:      msg[21],
		GroupLen:    msg[22],
		IDLen:       msg[23],
		ErrStrLen:   binary.BigEndian.Uint16(msg[24:26]),
	}

	offset := reportFixedHeaderLen
	if len(msg) < offset+int(r.GroupLen)+int(r.IDLen)+int(r.ErrStrLen) {
		return Report{}, ErrMessageTooShort
	}
	r.Group = string(msg[offset : offset+int(r.GroupLen)])
	offset += int(r.GroupLen)
	r.ID = string(msg[offset : offset+int(r.IDLen)])
	offset += int(r.IDLen)
	r.Err = string(msg[offset : offset+int(r.ErrStrLen)])
	return r, nil
}

func truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}

func orderReport(group string, order *common.Order) Report {
	return Report{
		MessageType: OrderReport,
		Round:       uint32(order.Round),
		Price:       order.Price,
		Volume:      order.Quantity,
		Group:       group,
		ID:          order.ID,
	}
}

func roundReport(result *engine.Result) Report {
	return Report{
		MessageType: RoundReport,
		Round:       uint32(result.Market.Round),
		Price:       result.Market.Price,
		Volume:      result.Market.Volume,
		Passes:      uint8(result.Market.Passes),
		Group:       result.Market.Group,
		ID:          result.Market.Outcome,
	}
}

func errorReport(err error) Report {
	return Report{
		MessageType: ErrorReport,
		Err:         err.Error(),
	}
}
