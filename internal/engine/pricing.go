package engine

import (
	"fmt"
)

// Principle names the step of the price discovery cascade that settled the
// clearing price.
type Principle int

const (
	NoOrders Principle = iota
	MaximumVolume
	MinimumResidual
	MarketPressure
	ReferencePrice
)

func (p Principle) String() string {
	switch p {
	case NoOrders:
		return "no orders"
	case MaximumVolume:
		return "maximum volume"
	case MinimumResidual:
		return "minimum residual"
	case MarketPressure:
		return "market pressure"
	case ReferencePrice:
		return "reference price"
	default:
		return fmt.Sprintf("principle(%d)", int(p))
	}
}

// Candidate is a possible clearing price with the cumulative bid (CBQ) and
// offer (CSQ) quantity that would execute at it.
type Candidate struct {
	Price int64
	CBQ   int64
	CSQ   int64
}

// Volume is the matched exchange volume at the candidate price.
func (c Candidate) Volume() int64 {
	return min(c.CBQ, c.CSQ)
}

func (c Candidate) Residual() int64 {
	if c.CBQ > c.CSQ {
		return c.CBQ - c.CSQ
	}
	return c.CSQ - c.CBQ
}

// Discovery is the outcome of a price discovery.
type Discovery struct {
	Price     int64
	Volume    int64
	Principle Principle
}

type principleFilter struct {
	principle Principle
	filter    func([]Candidate) []Candidate
}

// The cascade runs in order and stops as soon as a single candidate is left.
var cascade = []principleFilter{
	{MaximumVolume, maximumVolume},
	{MinimumResidual, minimumResidual},
	{MarketPressure, marketPressure},
	{ReferencePrice, highestPrice},
}

// DiscoverPrice determines the uniform clearing price of a call auction.
//
// Quotes do not need to be aggregated by price beforehand. lastPrice is
// returned with zero volume when either side is empty or when no bid crosses
// any offer.
func DiscoverPrice(bids, offers []Quote, lastPrice int64) (Discovery, error) {
	return NewCallBookFromQuotes(bids, offers).Discover(lastPrice)
}

// Discover runs the price discovery cascade over the book.
func (book *CallBook) Discover(lastPrice int64) (Discovery, error) {
	if book.Empty() {
		return Discovery{Price: lastPrice, Principle: NoOrders}, nil
	}

	candidates := book.Candidates()
	for _, step := range cascade {
		candidates = step.filter(candidates)

		// Nothing crosses, there is no trade to price.
		if step.principle == MaximumVolume && len(candidates) > 0 && candidates[0].Volume() == 0 {
			return Discovery{Price: lastPrice, Principle: ReferencePrice}, nil
		}

		if len(candidates) == 1 || step.principle == ReferencePrice {
			return finalize(candidates, step.principle)
		}
	}

	// Unreachable, the cascade always ends with the reference price.
	return finalize(candidates, ReferencePrice)
}

func finalize(candidates []Candidate, principle Principle) (Discovery, error) {
	if len(candidates) != 1 {
		prices := make([]int64, len(candidates))
		for i, c := range candidates {
			prices[i] = c.Price
		}
		return Discovery{}, fmt.Errorf("%w: %d candidate prices %v left after %s",
			ErrPriceInvariant, len(candidates), prices, principle)
	}
	return Discovery{
		Price:     candidates[0].Price,
		Volume:    candidates[0].Volume(),
		Principle: principle,
	}, nil
}

func maximumVolume(candidates []Candidate) []Candidate {
	return keepBest(candidates, Candidate.Volume, func(a, b int64) bool { return a > b })
}

func minimumResidual(candidates []Candidate) []Candidate {
	return keepBest(candidates, Candidate.Residual, func(a, b int64) bool { return a < b })
}

// marketPressure keeps the highest price under buy pressure and the lowest
// price under sell pressure.
func marketPressure(candidates []Candidate) []Candidate {
	var buy, sell *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.CBQ >= c.CSQ {
			if buy == nil || c.Price > buy.Price {
				buy = c
			}
		} else {
			if sell == nil || c.Price < sell.Price {
				sell = c
			}
		}
	}

	out := make([]Candidate, 0, 2)
	if buy != nil {
		out = append(out, *buy)
	}
	if sell != nil {
		out = append(out, *sell)
	}
	return out
}

// highestPrice settles a persisting tie on the highest remaining price
// instead of the one closest to the previous clearing price. Ties let the
// market price drift upwards.
func highestPrice(candidates []Candidate) []Candidate {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Price > best.Price {
			best = c
		}
	}
	return []Candidate{best}
}

// keepBest keeps every candidate whose key is best under better.
func keepBest(candidates []Candidate, key func(Candidate) int64, better func(a, b int64) bool) []Candidate {
	if len(candidates) == 0 {
		return nil
	}
	best := key(candidates[0])
	for _, c := range candidates[1:] {
		if k := key(c); better(k, best) {
			best = k
		}
	}

	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if key(c) == best {
			out = append(out, c)
		}
	}
	return out
}
