package clearinghouse

import (
	"context"
	"errors"
	"fmt"

	"callmarket/internal/engine"
	"callmarket/internal/utils"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrDuplicateGroup     = errors.New("group cleared twice in one batch")
)

// job links a round to its slot in the results.
type job struct {
	index int
	round engine.Round
}

// Clearinghouse clears the rounds of independent groups concurrently. Groups
// share nothing but the engine, which holds no round state.
type Clearinghouse struct {
	engine  *engine.Engine
	workers uint
}

func New(eng *engine.Engine, workers uint) *Clearinghouse {
	return &Clearinghouse{
		engine:  eng,
		workers: workers,
	}
}

// ClearAll clears every round and returns the results in input order. The
// first failing group aborts the batch and its error is returned.
func (c *Clearinghouse) ClearAll(ctx context.Context, rounds []engine.Round) ([]*engine.Result, error) {
	seen := make(map[string]bool, len(rounds))
	for _, r := range rounds {
		if seen[r.Group] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateGroup, r.Group)
		}
		seen[r.Group] = true
	}

	results := make([]*engine.Result, len(rounds))
	if len(rounds) == 0 {
		return results, nil
	}

	t, ctx := tomb.WithContext(ctx)
	pool := utils.NewWorkerPool(min(c.workers, uint(len(rounds))))
	pool.Setup(t, func(_ *tomb.Tomb, task any) error {
		j, ok := task.(job)
		if !ok {
			return ErrImproperConversion
		}
		result, err := c.engine.Clear(ctx, j.round)
		if err != nil {
			return fmt.Errorf("group %s round %d: %w", j.round.Group, j.round.Number, err)
		}
		// Every job owns its slot.
		results[j.index] = result
		return nil
	})

	for i, r := range rounds {
		if err := pool.AddTask(t, job{index: i, round: r}); err != nil {
			break
		}
	}
	pool.Close()

	if err := t.Wait(); err != nil {
		log.Error().Err(err).Int("groups", len(rounds)).Msg("clearing batch failed")
		return nil, err
	}

	log.Info().Int("groups", len(rounds)).Msg("clearing batch done")
	return results, nil
}
