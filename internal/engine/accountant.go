package engine

import (
	"fmt"

	"callmarket/internal/common"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	one = decimal.NewFromInt(1)

	// Forced order identifiers are derived from their owner, round and side so
	// repeated clearing of the same round yields identical output.
	forcedOrderNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("callmarket/forced-order"))
)

// Account computes the position of a participant after a clearing pass.
//
// orders must only hold the participant's own orders with their executed
// quantity set for the pass. dividend is the realized dividend per share.
func Account(entering common.ParticipantState, orders []*common.Order, price, dividend int64, params common.Params) common.ParticipantState {
	state := entering

	var net int64
	for _, o := range orders {
		net += o.Signed()
	}

	state.NetShares = net
	state.TransactionCost = -net * price
	state.CashAfterTrade = state.CashBefore + state.TransactionCost
	state.ResultingShares = state.SharesBefore + net
	state.DividendEarned = dividend * state.ResultingShares
	state.InterestEarned = floorMul(state.CashAfterTrade, params.InterestRate)
	state.ResultingCash = state.CashBefore + state.InterestEarned + state.TransactionCost + state.DividendEarned

	state.ShortViolation = ShortViolation(state.ResultingCash, state.ResultingShares, price, params.MarginRatio)
	state.DebtViolation = DebtViolation(state.ResultingCash, state.ResultingShares, price, params.MarginRatio)
	state.MarginViolation = state.ShortViolation || state.DebtViolation
	return state
}

// ShortViolation reports whether a short position is under-margined: the
// margin ratio applied to the cash held no longer covers the value of the
// shares owed.
func ShortViolation(cash, shares, price int64, marginRatio decimal.Decimal) bool {
	if shares >= 0 {
		return false
	}
	value := abs(price * shares)
	return marginRatio.Mul(decimal.NewFromInt(cash)).LessThanOrEqual(decimal.NewFromInt(value))
}

// DebtViolation reports whether a debt position is under-margined: the
// margin ratio applied to the value of the shares held no longer covers the
// cash owed.
func DebtViolation(cash, shares, price int64, marginRatio decimal.Decimal) bool {
	if cash >= 0 {
		return false
	}
	value := price * shares
	return marginRatio.Mul(decimal.NewFromInt(value)).LessThanOrEqual(decimal.NewFromInt(-cash))
}

// BuyIn returns the forced bid restoring the margin target of a short
// position, or nil when no shares need buying.
func BuyIn(state common.ParticipantState, price int64, params common.Params) *common.Order {
	buyInPrice := roundMul(price, one.Add(params.MarginPremium))
	if buyInPrice <= 0 {
		return nil
	}

	value := abs(state.ResultingShares * price)
	target := floorMul(state.ResultingCash, params.MarginTargetRatio)
	quantity := ceilDiv(value-target, buyInPrice)
	if quantity <= 0 {
		return nil
	}
	return forcedOrder(state, common.Bid, buyInPrice, quantity)
}

// SellOff returns the forced offer restoring the margin target of a debt
// position, or nil when no shares need selling. A sell-off never sells more
// than the shares held.
func SellOff(state common.ParticipantState, price int64, params common.Params) *common.Order {
	sellOffPrice := max(roundMul(price, one.Sub(params.MarginPremium)), 1)

	debt := abs(state.ResultingCash)
	target := floorMul(price*state.ResultingShares, params.MarginTargetRatio)
	quantity := min(ceilDiv(debt-target, sellOffPrice), state.ResultingShares)
	if quantity <= 0 {
		return nil
	}
	return forcedOrder(state, common.Offer, sellOffPrice, quantity)
}

// NextCountdown advances the countdown of one side of a participant to the
// value carried into the next round.
func NextCountdown(entering *int, violated bool, delay int) *int {
	switch {
	case !violated:
		return nil
	case entering == nil:
		return common.Countdown(delay)
	default:
		return common.Countdown(max(*entering-1, 0))
	}
}

func forcedOrder(state common.ParticipantState, side common.Side, price, quantity int64) *common.Order {
	name := fmt.Sprintf("%s/%d/%s", state.Participant, state.Round, side)
	return &common.Order{
		ID:          uuid.NewSHA1(forcedOrderNamespace, []byte(name)).String(),
		Participant: state.Participant,
		Round:       state.Round,
		Side:        side,
		Price:       price,
		Quantity:    quantity,
		Forced:      true,
	}
}

func floorMul(v int64, ratio decimal.Decimal) int64 {
	return decimal.NewFromInt(v).Mul(ratio).Floor().IntPart()
}

// roundMul rounds half to even.
func roundMul(v int64, ratio decimal.Decimal) int64 {
	return decimal.NewFromInt(v).Mul(ratio).RoundBank(0).IntPart()
}

// ceilDiv divides rounding towards positive infinity. d must be positive.
func ceilDiv(n, d int64) int64 {
	q := n / d
	if n%d != 0 && n > 0 {
		q++
	}
	return q
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
