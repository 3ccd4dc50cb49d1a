package forecast

import "time"

type marketEvent struct {
	name        string
	impact      float64
	probability float64
}

var (
	festivalSale  = marketEvent{name: "Festival season discounts", impact: -0.05, probability: 0.8}
	productLaunch = marketEvent{name: "New product launch may affect pricing", impact: 0.01, probability: 0.3}
)

// eventFor returns the most likely calendar event for d. Weekend and
// month-end effects are applied separately as multipliers.
func eventFor(d time.Time) (marketEvent, bool) {
	var (
		best  marketEvent
		found bool
	)
	consider := func(e marketEvent) {
		if !found || e.probability > best.probability {
			best, found = e, true
		}
	}
	if m := d.Month(); m == time.October || m == time.November {
		consider(festivalSale)
	}
	if d.Day() <= 7 {
		consider(productLaunch)
	}
	return best, found
}
