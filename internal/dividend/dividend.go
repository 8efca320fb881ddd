package dividend

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidDistribution = errors.New("invalid dividend distribution")
)

// Outcome is one possible dividend per share and its probability.
type Outcome struct {
	Amount      int64           `toml:"amount" json:"amount"`
	Probability decimal.Decimal `toml:"probability" json:"probability"`
}

// Distribution is a discrete dividend distribution.
type Distribution struct {
	Outcomes []Outcome `toml:"outcomes" json:"outcomes"`
}

func (d Distribution) Validate() error {
	if len(d.Outcomes) == 0 {
		return fmt.Errorf("%w: no outcomes", ErrInvalidDistribution)
	}
	total := decimal.Zero
	for _, o := range d.Outcomes {
		if o.Probability.IsNegative() {
			return fmt.Errorf("%w: negative probability %s for %d", ErrInvalidDistribution, o.Probability, o.Amount)
		}
		total = total.Add(o.Probability)
	}
	if !total.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: probabilities add up to %s", ErrInvalidDistribution, total)
	}
	return nil
}

// expected is the expected dividend per share.
func (d Distribution) expected() decimal.Decimal {
	mean := decimal.Zero
	for _, o := range d.Outcomes {
		mean = mean.Add(o.Probability.Mul(decimal.NewFromInt(o.Amount)))
	}
	return mean
}

// Pick returns the outcome a uniform draw u in [0, 1) lands on.
func (d Distribution) Pick(u decimal.Decimal) int64 {
	cumulative := decimal.Zero
	for _, o := range d.Outcomes {
		cumulative = cumulative.Add(o.Probability)
		if u.LessThan(cumulative) {
			return o.Amount
		}
	}
	return d.Outcomes[len(d.Outcomes)-1].Amount
}

// Drawer realizes the dividend of a round.
type Drawer interface {
	Draw() int64
}

// Fixed always draws the same dividend.
type Fixed int64

func (f Fixed) Draw() int64 {
	return int64(f)
}

// RandomDrawer draws from a distribution with a seeded source, so a session
// can be replayed.
type RandomDrawer struct {
	dist Distribution
	rng  *rand.Rand
}

func NewRandomDrawer(dist Distribution, seed uint64) (*RandomDrawer, error) {
	if err := dist.Validate(); err != nil {
		return nil, err
	}
	return &RandomDrawer{
		dist: dist,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

func (r *RandomDrawer) Draw() int64 {
	return r.dist.Pick(decimal.NewFromFloat(r.rng.Float64()))
}
