package common

import "fmt"

// Countdown returns a countdown due in n rounds.
func Countdown(n int) *int {
	return &n
}

func copyCountdown(c *int) *int {
	if c == nil {
		return nil
	}
	return Countdown(*c)
}

func formatCountdown(c *int) string {
	if c == nil {
		return "none"
	}
	return fmt.Sprint(*c)
}

// ParticipantState is one participant's position for one round.
type ParticipantState struct {
	Participant string `json:"participant"`
	Round       int    `json:"round"`

	// Entering the round.
	SharesBefore int64 `json:"shares_before"`
	CashBefore   int64 `json:"cash_before"`

	// Computed while clearing.
	NetShares       int64 `json:"net_shares"`
	TransactionCost int64 `json:"transaction_cost"`
	CashAfterTrade  int64 `json:"cash_after_trade"`
	DividendEarned  int64 `json:"dividend_earned"`
	InterestEarned  int64 `json:"interest_earned"`
	ResultingCash   int64 `json:"resulting_cash"`
	ResultingShares int64 `json:"resulting_shares"`

	MarginViolation bool `json:"margin_violation"`
	ShortViolation  bool `json:"short_violation"`
	DebtViolation   bool `json:"debt_violation"`

	// Rounds remaining until a forced buy-in / sell-off is due, nil when
	// the side has no recorded violation.
	BuyInCountdown   *int `json:"buy_in_countdown,omitempty"`
	SellOffCountdown *int `json:"sell_off_countdown,omitempty"`
}

// NewParticipantState returns the entering state of a participant with no
// recorded violations.
func NewParticipantState(participant string, round int, cash, shares int64) ParticipantState {
	return ParticipantState{
		Participant:  participant,
		Round:        round,
		CashBefore:   cash,
		SharesBefore: shares,
	}
}

// BuyInDue reports whether a persisting short violation must be forced
// this round.
func (p ParticipantState) BuyInDue() bool {
	return p.BuyInCountdown != nil && *p.BuyInCountdown == 0
}

// SellOffDue reports whether a persisting debt violation must be forced
// this round.
func (p ParticipantState) SellOffDue() bool {
	return p.SellOffCountdown != nil && *p.SellOffCountdown == 0
}

// Balanced checks the accounting identities of a cleared state.
func (p ParticipantState) Balanced() error {
	if cash := p.CashBefore + p.InterestEarned + p.TransactionCost + p.DividendEarned; cash != p.ResultingCash {
		return fmt.Errorf("participant %s: resulting cash %d, expected %d", p.Participant, p.ResultingCash, cash)
	}
	if shares := p.SharesBefore + p.NetShares; shares != p.ResultingShares {
		return fmt.Errorf("participant %s: resulting shares %d, expected %d", p.Participant, p.ResultingShares, shares)
	}
	return nil
}

// Next hands the resulting position over as the entering state of the
// following round.
func (p ParticipantState) Next() ParticipantState {
	next := NewParticipantState(p.Participant, p.Round+1, p.ResultingCash, p.ResultingShares)
	next.BuyInCountdown = copyCountdown(p.BuyInCountdown)
	next.SellOffCountdown = copyCountdown(p.SellOffCountdown)
	return next
}

func (p ParticipantState) String() string {
	return fmt.Sprintf(
		`Participant: %s (round %d)
Before:      cash %d, shares %d
Trade:       net %d, cost %d, cash after %d
Earned:      dividend %d, interest %d
Resulting:   cash %d, shares %d
Violation:   %t (short %t, debt %t)
Countdowns:  buy-in %s, sell-off %s`,
		p.Participant, p.Round,
		p.CashBefore, p.SharesBefore,
		p.NetShares, p.TransactionCost, p.CashAfterTrade,
		p.DividendEarned, p.InterestEarned,
		p.ResultingCash, p.ResultingShares,
		p.MarginViolation, p.ShortViolation, p.DebtViolation,
		formatCountdown(p.BuyInCountdown), formatCountdown(p.SellOffCountdown),
	)
}
