package engine

import (
	"callmarket/internal/common"

	"github.com/rs/zerolog"
)

// Pass is the state of one clearing iteration.
type Pass struct {
	Number    int
	Discovery Discovery
	Volume    int64

	// Base and forced orders with their executed quantity for this pass.
	Orders   []*common.Order
	States   []common.ParticipantState
	BuyIns   []*common.Order
	SellOffs []*common.Order

	// Forced orders the pass asks for on top of what already executed.
	PendingBuyIns   []*common.Order
	PendingSellOffs []*common.Order
}

// Pending is the new forced demand and supply of the pass.
func (p *Pass) Pending() (demand, supply int64) {
	return totalQuantity(p.PendingBuyIns), totalQuantity(p.PendingSellOffs)
}

// iteration holds everything a clearing pass reads. It is never mutated
// once built so passes can be rerun freely.
type iteration struct {
	round    *Round
	base     []*common.Order
	entering []common.ParticipantState
	holdings map[string]int64
	limit    Limit
	log      zerolog.Logger
}

func newIteration(round *Round, log zerolog.Logger) *iteration {
	it := &iteration{
		round:    round,
		base:     round.Orders,
		entering: round.Participants,
		holdings: make(map[string]int64, len(round.Participants)),
		log:      log,
	}
	for _, p := range round.Participants {
		it.holdings[p.Participant] = p.SharesBefore
	}
	float, short := common.Holdings(round.Participants)
	it.limit = ShortLimit(round.Params, float, short)
	return it
}

// run performs one clearing pass with the given forced orders.
func (it *iteration) run(number int, buyIns, sellOffs []*common.Order) (*Pass, error) {
	pass := &Pass{
		Number:   number,
		Orders:   common.CloneOrders(it.base),
		BuyIns:   common.CloneOrders(buyIns),
		SellOffs: common.CloneOrders(sellOffs),
	}

	// 1. Cap the short supply of the base offers.
	if reduced := ScreenShorts(pass.Orders, it.holdings, it.limit); reduced > 0 {
		it.log.Debug().
			Int("pass", number).
			Int64("reduced", reduced).
			Int64("limit", it.limit.Quantity).
			Msg("short supply screened")
	}

	// 2. Participants forced onto one side may not trade on the other.
	cancelOpposing(pass.Orders, owners(pass.BuyIns), owners(pass.SellOffs))

	all := make([]*common.Order, 0, len(pass.Orders)+len(pass.BuyIns)+len(pass.SellOffs))
	all = append(all, pass.Orders...)
	all = append(all, pass.BuyIns...)
	all = append(all, pass.SellOffs...)

	// 3. Price discovery.
	bids, offers := quotes(all)
	discovery, err := DiscoverPrice(bids, offers, it.round.LastPrice)
	if err != nil {
		return nil, err
	}
	pass.Discovery = discovery

	// 4. Matching.
	pass.Volume = MatchOrders(all, discovery.Price)

	// 5. Positions and forced orders.
	byOwner := make(map[string][]*common.Order, len(it.entering))
	for _, o := range all {
		byOwner[o.Participant] = append(byOwner[o.Participant], o)
	}

	params := it.round.Params
	pass.States = make([]common.ParticipantState, len(it.entering))
	for i, entering := range it.entering {
		state := Account(entering, byOwner[entering.Participant], discovery.Price, it.round.Dividend, params)
		pass.States[i] = state

		if entering.BuyInDue() && state.ShortViolation {
			if o := BuyIn(state, discovery.Price, params); o != nil {
				pass.PendingBuyIns = append(pass.PendingBuyIns, o)
			}
		}
		if entering.SellOffDue() && state.DebtViolation {
			if o := SellOff(state, discovery.Price, params); o != nil {
				pass.PendingSellOffs = append(pass.PendingSellOffs, o)
			}
		}
	}

	demand, supply := pass.Pending()
	it.log.Debug().
		Int("pass", number).
		Int64("price", discovery.Price).
		Int64("volume", pass.Volume).
		Stringer("principle", discovery.Principle).
		Int64("pending_demand", demand).
		Int64("pending_supply", supply).
		Msg("clearing pass")

	return pass, nil
}

// cancelOpposing zeroes the base offers of participants being bought in and
// the base bids of participants being sold off.
func cancelOpposing(orders []*common.Order, buying, selling map[string]bool) {
	for _, o := range orders {
		switch o.Side {
		case common.Bid:
			o.Cancelled = selling[o.Participant]
		case common.Offer:
			o.Cancelled = buying[o.Participant]
		}
	}
}

// capacity is the base quantity on the given side that could trade against
// forced orders: orders of participants not being forced themselves, priced
// to cross the most aggressive forced order.
func capacity(orders []*common.Order, side common.Side, forced []*common.Order) int64 {
	if len(forced) == 0 {
		return 0
	}
	excluded := owners(forced)

	limit := forced[0].Price
	for _, f := range forced[1:] {
		switch side {
		case common.Offer:
			limit = max(limit, f.Price)
		case common.Bid:
			limit = min(limit, f.Price)
		}
	}

	var total int64
	for _, o := range orders {
		if o.Forced || o.Side != side || o.Quantity <= 0 || excluded[o.Participant] {
			continue
		}
		if (side == common.Offer && o.Price <= limit) || (side == common.Bid && o.Price >= limit) {
			total += o.Quantity
		}
	}
	return total
}

func owners(orders []*common.Order) map[string]bool {
	out := make(map[string]bool, len(orders))
	for _, o := range orders {
		out[o.Participant] = true
	}
	return out
}

func totalQuantity(orders []*common.Order) int64 {
	var total int64
	for _, o := range orders {
		total += o.Quantity
	}
	return total
}
