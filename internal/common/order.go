package common

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedOrder = errors.New("malformed order")
)

type Side int

// Sides carry their sign so net positions are a plain sum of
// side.Sign() * executed quantity.
const (
	Bid   Side = 1
	Offer Side = -1
)

func (s Side) Sign() int64 {
	return int64(s)
}

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Offer:
		return "offer"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

func (s Side) MarshalText() ([]byte, error) {
	switch s {
	case Bid, Offer:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("%w: unknown side %d", ErrMalformedOrder, int(s))
	}
}

func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "bid", "buy":
		*s = Bid
	case "offer", "sell", "ask":
		*s = Offer
	default:
		return fmt.Errorf("%w: unknown side %q", ErrMalformedOrder, string(text))
	}
	return nil
}

type Order struct {
	ID               string `json:"id"`                          // Order identifier
	Participant      string `json:"participant"`                 // Who owns this order
	Round            int    `json:"round"`                       // Round the order was submitted for
	Side             Side   `json:"side"`                        // Bid or offer
	Price            int64  `json:"price"`                       // Limit price
	Quantity         int64  `json:"quantity"`                    // Requested quantity
	Executed         int64  `json:"executed"`                    // Zero until cleared
	OriginalQuantity int64  `json:"original_quantity,omitempty"` // Set when short screening cut the order
	Cancelled        bool   `json:"cancelled,omitempty"`         // Owner was forced onto the other side
	Forced           bool   `json:"forced,omitempty"`            // Buy-in or sell-off
}

// Validate rejects orders the clearing engine cannot reason about.
func (o *Order) Validate() error {
	if o.Side != Bid && o.Side != Offer {
		return fmt.Errorf("%w: order %s has unknown side %d", ErrMalformedOrder, o.ID, int(o.Side))
	}
	if o.Price <= 0 {
		return fmt.Errorf("%w: order %s has non-positive price %d", ErrMalformedOrder, o.ID, o.Price)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: order %s has non-positive quantity %d", ErrMalformedOrder, o.ID, o.Quantity)
	}
	return nil
}

// Signed returns the executed quantity signed by side.
func (o *Order) Signed() int64 {
	return o.Side.Sign() * o.Executed
}

func (o *Order) Clone() *Order {
	c := *o
	return &c
}

func (o Order) String() string {
	return fmt.Sprintf(
		`ID:               %s
Participant:      %s
Round:            %d
Side:             %v
Price:            %d
Quantity:         %d (Executed: %d, Original: %d)
Cancelled:        %t
Forced:           %t`,
		o.ID,
		o.Participant,
		o.Round,
		o.Side,
		o.Price,
		o.Quantity,
		o.Executed,
		o.OriginalQuantity,
		o.Cancelled,
		o.Forced,
	)
}

// CloneOrders deep copies a list of orders so a clearing pass can mutate
// them freely.
func CloneOrders(orders []*Order) []*Order {
	out := make([]*Order, len(orders))
	for i, o := range orders {
		out[i] = o.Clone()
	}
	return out
}
