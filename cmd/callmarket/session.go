package main

import (
	"context"
	"errors"
	"fmt"

	"callmarket/internal/clearinghouse"
	"callmarket/internal/common"
	"callmarket/internal/config"
	"callmarket/internal/dividend"
	"callmarket/internal/engine"
	"callmarket/internal/store"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	dbFlagName     = "db"
	ordersFlagName = "orders"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.Flags().String(dbFlagName, "callmarket.db", "Path to the round store")
	sessionCmd.Flags().String(ordersFlagName, "", "Path to the session order flow (JSON)")
	_ = sessionCmd.MarkFlagRequired(ordersFlagName)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Replays the order flow of several groups round by round and commits every round",
	Long: `Replays the order flow of several groups round by round.

Every group resumes after its last committed round. The state entering a
round is the previous round's result read back from the store, or the
group's endowments when nothing has been committed yet.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		m, flush, err := newMetrics(cmd)
		if err != nil {
			return err
		}
		defer flush()

		var input sessionInput
		path, _ := cmd.Flags().GetString(ordersFlagName)
		if err := readJSON(path, &input); err != nil {
			return err
		}

		dbPath, _ := cmd.Flags().GetString(dbFlagName)
		st, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		s := &session{
			cfg:   cfg,
			store: st,
			house: clearinghouse.New(engine.New(engine.WithMetrics(m)), cfg.Workers),
		}
		return s.run(cmd, input)
	},
}

type session struct {
	cfg   config.Config
	store *store.Store
	house *clearinghouse.Clearinghouse
}

func (s *session) run(cmd *cobra.Command, input sessionInput) error {
	var rounds int
	for _, g := range input.Groups {
		rounds = max(rounds, len(g.Rounds))
	}

	for k := range rounds {
		if err := cmd.Context().Err(); err != nil {
			return err
		}

		var batch []engine.Round
		for _, g := range input.Groups {
			if k >= len(g.Rounds) {
				continue
			}
			round, err := s.next(g, g.Rounds[k])
			if err != nil {
				return err
			}
			batch = append(batch, round)
		}

		results, err := s.house.ClearAll(cmd.Context(), batch)
		if err != nil {
			return err
		}
		for _, r := range results {
			if err := s.commit(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// clear clears the next round of one group and commits it.
func (s *session) clear(ctx context.Context, g groupInput, orders []*common.Order) (*engine.Result, error) {
	round, err := s.next(g, orders)
	if err != nil {
		return nil, err
	}
	results, err := s.house.ClearAll(ctx, []engine.Round{round})
	if err != nil {
		return nil, err
	}
	if err := s.commit(results[0]); err != nil {
		return nil, err
	}
	return results[0], nil
}

func (s *session) commit(r *engine.Result) error {
	if err := s.store.SaveRound(r.Market, r.Participants, r.Orders); err != nil {
		return err
	}
	log.Info().
		Str("group", r.Market.Group).
		Int("round", r.Market.Round).
		Int64("price", r.Market.Price).
		Int64("volume", r.Market.Volume).
		Int64("dividend", r.Market.Dividend).
		Str("outcome", r.Market.Outcome).
		Msg("round committed")
	return nil
}

// next builds the round following the last committed round of the group.
func (s *session) next(g groupInput, orders []*common.Order) (engine.Round, error) {
	round := engine.Round{
		Group:     g.Group,
		Number:    1,
		Orders:    orders,
		Params:    s.cfg.Session.Params(),
		LastPrice: s.cfg.Session.InitialPrice,
	}

	last, err := s.store.LastMarket(g.Group)
	switch {
	case errors.Is(err, store.ErrNotFound):
		round.Participants = states(g.Participants, 1)
	case err != nil:
		return engine.Round{}, err
	default:
		round.Number = last.Round + 1
		round.LastPrice = last.Price
		if round.Participants, err = s.store.Entering(g.Group, round.Number); err != nil {
			return engine.Round{}, fmt.Errorf("group %s: %w", g.Group, err)
		}
	}

	if round.Dividend, err = s.dividend(round.Number); err != nil {
		return engine.Round{}, err
	}
	return round, nil
}

// dividend draws the dividend of a round. Every group of a session shares the
// same dividend sequence and a resumed session draws the same values.
func (s *session) dividend(round int) (int64, error) {
	drawer, err := dividend.NewRandomDrawer(s.cfg.Session.Dividend, s.cfg.Session.Seed+uint64(round))
	if err != nil {
		return 0, err
	}
	return drawer.Draw(), nil
}
