package engine

import (
	"sort"

	"callmarket/internal/common"
)

// live reports whether an order takes part in a clearing pass.
func live(o *common.Order) bool {
	return !o.Cancelled && o.Quantity > 0
}

// MatchOrders executes every order that transacts at the clearing price and
// returns the matched volume. Orders that do not transact are left with an
// executed quantity of zero.
//
// Bids are served highest price first and offers lowest price first; among
// equal prices the larger bid and the smaller offer go first. Remaining ties
// keep the input order, so identical input always yields identical fills.
func MatchOrders(orders []*common.Order, price int64) int64 {
	var bids, offers []*common.Order
	var bidQuantity, offerQuantity int64
	for _, o := range orders {
		o.Executed = 0
		if !live(o) {
			continue
		}
		switch o.Side {
		case common.Bid:
			if o.Price >= price {
				bids = append(bids, o)
				bidQuantity += o.Quantity
			}
		case common.Offer:
			if o.Price <= price {
				offers = append(offers, o)
				offerQuantity += o.Quantity
			}
		}
	}

	sort.SliceStable(bids, func(i, j int) bool {
		if bids[i].Price != bids[j].Price {
			return bids[i].Price > bids[j].Price
		}
		return bids[i].Quantity > bids[j].Quantity
	})
	sort.SliceStable(offers, func(i, j int) bool {
		if offers[i].Price != offers[j].Price {
			return offers[i].Price < offers[j].Price
		}
		return offers[i].Quantity < offers[j].Quantity
	})

	// The smaller side fills completely and caps the larger side.
	volume := min(bidQuantity, offerQuantity)
	fill(bids, volume)
	fill(offers, volume)
	return volume
}

// fill walks the sorted orders executing them in full until the cap is
// reached. The order crossing the cap is partially filled, the rest get
// nothing.
func fill(orders []*common.Order, limit int64) {
	remaining := limit
	for _, o := range orders {
		if remaining <= 0 {
			o.Executed = 0
			continue
		}
		o.Executed = min(o.Quantity, remaining)
		remaining -= o.Executed
	}
}

// quotes splits the live orders of a pass into bid and offer quotes.
func quotes(orders []*common.Order) (bids, offers []Quote) {
	for _, o := range orders {
		if !live(o) {
			continue
		}
		q := Quote{Price: o.Price, Quantity: o.Quantity}
		switch o.Side {
		case common.Bid:
			bids = append(bids, q)
		case common.Offer:
			offers = append(offers, q)
		}
	}
	return bids, offers
}
