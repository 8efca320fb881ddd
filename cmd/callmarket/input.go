package main

import (
	"encoding/json"
	"fmt"
	"os"

	"callmarket/internal/common"
	"callmarket/internal/engine"
)

// endowment is a participant as written in input files. Omitted countdowns
// mean no recorded violation.
type endowment struct {
	Participant      string `json:"participant"`
	Cash             int64  `json:"cash"`
	Shares           int64  `json:"shares"`
	BuyInCountdown   *int   `json:"buy_in_countdown,omitempty"`
	SellOffCountdown *int   `json:"sell_off_countdown,omitempty"`
}

func (e endowment) state(round int) common.ParticipantState {
	s := common.NewParticipantState(e.Participant, round, e.Cash, e.Shares)
	s.BuyInCountdown = e.BuyInCountdown
	s.SellOffCountdown = e.SellOffCountdown
	return s
}

func states(endowments []endowment, round int) []common.ParticipantState {
	out := make([]common.ParticipantState, len(endowments))
	for i, e := range endowments {
		out[i] = e.state(round)
	}
	return out
}

// roundInput is one round of one group for the clear command.
type roundInput struct {
	Group        string          `json:"group"`
	Round        int             `json:"round"`
	LastPrice    int64           `json:"last_price"`
	Participants []endowment     `json:"participants"`
	Orders       []*common.Order `json:"orders"`
}

func (in roundInput) round(params common.Params, dividend int64) engine.Round {
	return engine.Round{
		Group:        in.Group,
		Number:       in.Round,
		Orders:       in.Orders,
		Participants: states(in.Participants, in.Round),
		Params:       params,
		LastPrice:    in.LastPrice,
		Dividend:     dividend,
	}
}

// groupInput is the order flow of one group over a session. Participants are
// only read when the group has no committed round yet.
type groupInput struct {
	Group        string            `json:"group"`
	Participants []endowment       `json:"participants"`
	Rounds       [][]*common.Order `json:"rounds"`
}

type sessionInput struct {
	Groups []groupInput `json:"groups"`
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unable to parse %s: %w", path, err)
	}
	return nil
}

// readRounds accepts a single round or a list of rounds.
func readRounds(path string) ([]roundInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var many []roundInput
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one roundInput
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}
	return []roundInput{one}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
