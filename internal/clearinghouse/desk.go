package clearinghouse

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"callmarket/internal/common"
	"callmarket/internal/engine"

	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownGroup = errors.New("unknown group")
)

// CloseFunc clears the round of a group over the orders collected for it.
type CloseFunc func(ctx context.Context, group string, orders []*common.Order) (*engine.Result, error)

// Desk collects the orders of the open round of every group until the round
// is closed. Orders are checked on arrival so a bad order never sinks a
// whole round.
type Desk struct {
	mu           sync.Mutex
	closing      sync.Mutex
	participants map[string]map[string]bool
	open         map[string][]*common.Order
	closer       CloseFunc
}

// NewDesk opens a desk for the given groups and their participants.
func NewDesk(groups map[string][]string, closer CloseFunc) *Desk {
	d := &Desk{
		participants: make(map[string]map[string]bool, len(groups)),
		open:         make(map[string][]*common.Order, len(groups)),
		closer:       closer,
	}
	for group, participants := range groups {
		known := make(map[string]bool, len(participants))
		for _, p := range participants {
			known[p] = true
		}
		d.participants[group] = known
	}
	return d
}

func (d *Desk) Submit(group string, order *common.Order) error {
	known, ok := d.participants[group]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, group)
	}
	if !known[order.Participant] {
		return fmt.Errorf("%w: %s in group %s", engine.ErrUnknownParticipant, order.Participant, group)
	}
	if err := order.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.open[group] = append(d.open[group], order)

	log.Debug().
		Str("group", group).
		Str("participant", order.Participant).
		Stringer("side", order.Side).
		Int64("price", order.Price).
		Int64("quantity", order.Quantity).
		Msg("order accepted")
	return nil
}

// Pending returns the number of orders waiting in the open round of group.
func (d *Desk) Pending(group string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open[group])
}

// Close clears the open round of group and opens the next one. Orders are
// kept for the next attempt when clearing fails. Rounds close one at a time.
func (d *Desk) Close(ctx context.Context, group string) (*engine.Result, error) {
	if _, ok := d.participants[group]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, group)
	}

	d.closing.Lock()
	defer d.closing.Unlock()

	d.mu.Lock()
	orders := d.open[group]
	delete(d.open, group)
	d.mu.Unlock()

	result, err := d.closer(ctx, group, orders)
	if err != nil {
		d.mu.Lock()
		d.open[group] = append(orders, d.open[group]...)
		d.mu.Unlock()
		return nil, err
	}
	return result, nil
}
