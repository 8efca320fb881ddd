package common

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultMaxPasses bounds the forced-order loop.
const DefaultMaxPasses = 10

var (
	ErrInvalidParams = errors.New("invalid session parameters")
)

// Params are the session parameters the clearing engine reads.
type Params struct {
	InterestRate      decimal.Decimal
	MarginRatio       decimal.Decimal
	MarginPremium     decimal.Decimal
	MarginTargetRatio decimal.Decimal
	// ShortLimitRatio caps short supply relative to float. Nil means no limit.
	ShortLimitRatio *decimal.Decimal
	// MarginDelay is the grace, in rounds, between a first recorded margin
	// violation and a forced transaction.
	MarginDelay int
	MaxPasses   int
}

func (p Params) Validate() error {
	if p.InterestRate.IsNegative() {
		return fmt.Errorf("%w: negative interest rate %s", ErrInvalidParams, p.InterestRate)
	}
	if !p.MarginRatio.IsPositive() {
		return fmt.Errorf("%w: margin ratio must be positive, got %s", ErrInvalidParams, p.MarginRatio)
	}
	if p.MarginPremium.IsNegative() || p.MarginPremium.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: margin premium must be in [0, 1), got %s", ErrInvalidParams, p.MarginPremium)
	}
	if p.MarginTargetRatio.IsNegative() {
		return fmt.Errorf("%w: negative margin target ratio %s", ErrInvalidParams, p.MarginTargetRatio)
	}
	if p.ShortLimitRatio != nil && p.ShortLimitRatio.IsNegative() {
		return fmt.Errorf("%w: negative short limit ratio %s", ErrInvalidParams, p.ShortLimitRatio)
	}
	if p.MarginDelay < 0 {
		return fmt.Errorf("%w: negative margin delay %d", ErrInvalidParams, p.MarginDelay)
	}
	if p.MaxPasses < 0 {
		return fmt.Errorf("%w: negative max passes %d", ErrInvalidParams, p.MaxPasses)
	}
	return nil
}

// Passes returns the configured pass bound. Zero or anything above
// DefaultMaxPasses falls back to DefaultMaxPasses.
func (p Params) Passes() int {
	if p.MaxPasses == 0 || p.MaxPasses > DefaultMaxPasses {
		return DefaultMaxPasses
	}
	return p.MaxPasses
}
