package engine

import (
	"context"
	"fmt"

	"callmarket/internal/common"
)

// Outcome is the terminal state of the forced-order loop.
type Outcome int

const (
	// Converged: a pass asked for no new forced orders.
	Converged Outcome = iota
	// CappedAtMaxPasses: the pass bound was hit before converging.
	CappedAtMaxPasses
	// CommittedPartial: the opposing side could not absorb the forced
	// orders, the last pass was run once and accepted as is.
	CommittedPartial
)

func (o Outcome) String() string {
	switch o {
	case Converged:
		return "converged"
	case CappedAtMaxPasses:
		return "capped at max passes"
	case CommittedPartial:
		return "committed partial"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// loop drives clearing passes until forced demand and supply settle.
//
// Every pass after the first reruns the whole round with the forced orders
// the previous pass asked for. The forced price follows the clearing price,
// so forced demand is a moving target and the loop is bounded.
func (it *iteration) loop(ctx context.Context) (*Pass, Outcome, error) {
	maxPasses := it.round.Params.Passes()

	pass, err := it.run(1, nil, nil)
	if err != nil {
		return nil, 0, err
	}

	for {
		demand, supply := pass.Pending()
		if demand == 0 && supply == 0 {
			return pass, Converged, nil
		}
		if pass.Number >= maxPasses {
			it.log.Warn().
				Int("passes", pass.Number).
				Int64("pending_demand", demand).
				Int64("pending_supply", supply).
				Msg("forced orders did not converge")
			return pass, CappedAtMaxPasses, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		buyIns := escalate(pass.BuyIns, pass.PendingBuyIns)
		sellOffs := escalate(pass.SellOffs, pass.PendingSellOffs)
		enoughSupply := totalQuantity(buyIns) <= capacity(pass.Orders, common.Offer, buyIns)
		enoughDemand := totalQuantity(sellOffs) <= capacity(pass.Orders, common.Bid, sellOffs)

		next, err := it.run(pass.Number+1, buyIns, sellOffs)
		if err != nil {
			return nil, 0, err
		}
		if (demand > 0 && !enoughSupply) || (supply > 0 && !enoughDemand) {
			it.log.Info().
				Int("passes", next.Number).
				Bool("enough_supply", enoughSupply).
				Bool("enough_demand", enoughDemand).
				Msg("forced orders exceed opposing capacity")
			return next, CommittedPartial, nil
		}
		pass = next
	}
}

// escalate builds the forced orders of the next pass. A participant keeps
// what its forced order already executed and adds what it still needs, at
// the price of the latest pass. A participant that needs nothing more keeps
// its executed quantity at its previous price.
func escalate(active, pending []*common.Order) []*common.Order {
	executed := make(map[string]int64, len(active))
	for _, o := range active {
		executed[o.Participant] = o.Executed
	}

	next := make([]*common.Order, 0, len(active)+len(pending))
	needing := owners(pending)
	for _, o := range active {
		if needing[o.Participant] || o.Executed == 0 {
			continue
		}
		kept := o.Clone()
		kept.Quantity = o.Executed
		kept.Executed = 0
		next = append(next, kept)
	}
	for _, o := range pending {
		escalated := o.Clone()
		escalated.Quantity += executed[o.Participant]
		next = append(next, escalated)
	}
	return next
}

// commit freezes the chosen pass into the round result.
func (it *iteration) commit(pass *Pass, outcome Outcome) *Result {
	params := it.round.Params

	states := make([]common.ParticipantState, len(pass.States))
	for i, s := range pass.States {
		entering := it.entering[i]
		s.BuyInCountdown = NextCountdown(entering.BuyInCountdown, s.ShortViolation, params.MarginDelay)
		s.SellOffCountdown = NextCountdown(entering.SellOffCountdown, s.DebtViolation, params.MarginDelay)
		states[i] = s
	}

	orders := make([]*common.Order, 0, len(pass.Orders)+len(pass.BuyIns)+len(pass.SellOffs))
	orders = append(orders, pass.Orders...)
	orders = append(orders, pass.BuyIns...)
	orders = append(orders, pass.SellOffs...)

	float, short := common.ResultingHoldings(states)
	return &Result{
		Market: common.MarketState{
			Group:     it.round.Group,
			Round:     it.round.Number,
			Price:     pass.Discovery.Price,
			Volume:    pass.Volume,
			Dividend:  it.round.Dividend,
			Float:     float,
			Short:     short,
			Principle: pass.Discovery.Principle.String(),
			Outcome:   outcome.String(),
			Passes:    pass.Number,
		},
		Participants: states,
		Orders:       orders,
		Outcome:      outcome,
		Principle:    pass.Discovery.Principle,
	}
}
