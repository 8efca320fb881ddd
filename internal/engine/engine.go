package engine

import (
	"context"
	"errors"
	"fmt"

	"callmarket/internal/common"
	"callmarket/internal/metrics"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrPriceInvariant       = errors.New("price discovery invariant violated")
	ErrUnknownParticipant   = errors.New("order from unknown participant")
	ErrDuplicateParticipant = errors.New("duplicate participant")
	ErrRoundMismatch        = errors.New("order submitted for another round")
	ErrNoParticipants       = errors.New("round has orders but no participants")
	ErrMalformedOrder       = common.ErrMalformedOrder
	ErrInvalidParams        = common.ErrInvalidParams
)

// Round is everything needed to clear one round of one group.
type Round struct {
	Group        string
	Number       int
	Orders       []*common.Order
	Participants []common.ParticipantState
	Params       common.Params
	LastPrice    int64
	Dividend     int64 // Realized dividend per share
}

// Result is the committed outcome of a round.
type Result struct {
	Market       common.MarketState        `json:"market"`
	Participants []common.ParticipantState `json:"participants"`
	Orders       []*common.Order           `json:"orders"`
	Outcome      Outcome                   `json:"-"`
	Principle    Principle                 `json:"-"`
}

// Engine clears call-market rounds. It holds no per-round state, a single
// Engine can clear many groups concurrently.
type Engine struct {
	log     zerolog.Logger
	metrics *metrics.Metrics
}

type Option func(*Engine)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(opts ...Option) *Engine {
	engine := &Engine{
		log: log.Logger,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Clear determines the clearing price of the round, executes orders,
// settles every participant and forces margin transactions until the market
// settles. The input round is not modified.
//
// A price discovery invariant violation aborts the round and nothing is
// returned. Shortfalls and non-convergence are reported through the result's
// Outcome.
func (engine *Engine) Clear(ctx context.Context, round Round) (*Result, error) {
	logger := engine.log.With().
		Str("group", round.Group).
		Int("round", round.Number).
		Logger()

	prepared, err := prepare(round)
	if err != nil {
		logger.Error().Err(err).Msg("rejected round")
		return nil, err
	}

	it := newIteration(prepared, logger)
	pass, outcome, err := it.loop(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("clearing aborted")
		return nil, err
	}
	result := it.commit(pass, outcome)

	if engine.metrics != nil {
		forced := len(pass.BuyIns) + len(pass.SellOffs)
		engine.metrics.ObserveRound(outcome.String(), result.Market.Principle, pass.Number, forced, result.Market.Volume)
	}

	logger.Info().
		Int64("price", result.Market.Price).
		Int64("volume", result.Market.Volume).
		Str("principle", result.Market.Principle).
		Stringer("outcome", outcome).
		Int("passes", pass.Number).
		Msg("round cleared")

	return result, nil
}

// prepare validates the round and returns a private copy of it. Clearing
// fields of the submitted orders are reset.
func prepare(round Round) (*Round, error) {
	if err := round.Params.Validate(); err != nil {
		return nil, err
	}
	if len(round.Participants) == 0 && len(round.Orders) > 0 {
		return nil, ErrNoParticipants
	}

	prepared := round
	prepared.Participants = make([]common.ParticipantState, len(round.Participants))
	known := make(map[string]bool, len(round.Participants))
	for i, p := range round.Participants {
		if known[p.Participant] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateParticipant, p.Participant)
		}
		known[p.Participant] = true
		p.Round = round.Number
		prepared.Participants[i] = p
	}

	prepared.Orders = make([]*common.Order, len(round.Orders))
	for i, o := range round.Orders {
		if o == nil {
			return nil, fmt.Errorf("%w: nil order at %d", ErrMalformedOrder, i)
		}
		if err := o.Validate(); err != nil {
			return nil, err
		}
		if !known[o.Participant] {
			return nil, fmt.Errorf("%w: order %s from %s", ErrUnknownParticipant, o.ID, o.Participant)
		}
		if o.Round != 0 && o.Round != round.Number {
			return nil, fmt.Errorf("%w: order %s is for round %d, clearing %d", ErrRoundMismatch, o.ID, o.Round, round.Number)
		}
		c := o.Clone()
		c.Round = round.Number
		c.Executed = 0
		c.OriginalQuantity = 0
		c.Cancelled = false
		c.Forced = false
		prepared.Orders[i] = c
	}
	return &prepared, nil
}
