package common

// MarketState is a group's frozen market outcome for one round.
type MarketState struct {
	Group     string `json:"group"`
	Round     int    `json:"round"`
	Price     int64  `json:"price"`
	Volume    int64  `json:"volume"`
	Dividend  int64  `json:"dividend"`
	Float     int64  `json:"float"` // Shares held long
	Short     int64  `json:"short"` // Shares held short
	Principle string `json:"principle"`
	Outcome   string `json:"outcome"`
	Passes    int    `json:"passes"`
}

// Holdings returns the float and short of a set of positions.
func Holdings(states []ParticipantState) (float, short int64) {
	for _, s := range states {
		if s.SharesBefore > 0 {
			float += s.SharesBefore
		} else {
			short -= s.SharesBefore
		}
	}
	return float, short
}

// ResultingHoldings is Holdings over the resulting shares.
func ResultingHoldings(states []ParticipantState) (float, short int64) {
	for _, s := range states {
		if s.ResultingShares > 0 {
			float += s.ResultingShares
		} else {
			short -= s.ResultingShares
		}
	}
	return float, short
}
