package engine

import (
	"sort"

	"callmarket/internal/common"
)

// Limit is the short-sale supply allowed in a round.
type Limit struct {
	Unlimited bool
	Quantity  int64
}

func Unlimited() Limit {
	return Limit{Unlimited: true}
}

// ShortLimit is floor(ratio * float) less the shares already short, and never
// negative. No ratio means no limit.
func ShortLimit(params common.Params, float, short int64) Limit {
	if params.ShortLimitRatio == nil {
		return Unlimited()
	}
	return Limit{Quantity: max(floorMul(float, *params.ShortLimitRatio)-short, 0)}
}

// ScreenShorts caps the supply of participants offering more shares than
// they hold. When their offers add up to more than the limit, the overage is
// cut from their highest-priced offers first, as those are the least likely
// to execute. Every cut order keeps its pre-screen quantity as
// OriginalQuantity. It returns the quantity removed.
func ScreenShorts(offers []*common.Order, holdings map[string]int64, limit Limit) int64 {
	if limit.Unlimited {
		return 0
	}

	offered := make(map[string]int64)
	for _, o := range offers {
		if o.Side == common.Offer && live(o) {
			offered[o.Participant] += o.Quantity
		}
	}

	var shorts []*common.Order
	var total int64
	for _, o := range offers {
		if o.Side != common.Offer || !live(o) {
			continue
		}
		if offered[o.Participant] > holdings[o.Participant] {
			shorts = append(shorts, o)
			total += o.Quantity
		}
	}
	if total <= limit.Quantity {
		return 0
	}

	sort.SliceStable(shorts, func(i, j int) bool {
		return shorts[i].Price > shorts[j].Price
	})

	overage := total - limit.Quantity
	for _, o := range shorts {
		if overage == 0 {
			break
		}
		cut := min(o.Quantity, overage)
		if o.OriginalQuantity == 0 {
			o.OriginalQuantity = o.Quantity
		}
		o.Quantity -= cut
		overage -= cut
	}
	return total - limit.Quantity
}
