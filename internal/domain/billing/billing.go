// Package billing defines subscription plans, billing cycles and the server-side
// price table. Amounts are integers in the currency's minor unit.
package billing

import (
	"fmt"
	"time"
)

// Plan is a subscription tier.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStandard Plan = "standard"
	PlanPremium  Plan = "premium"
)

// Cycle is the billing period of a subscription.
type Cycle string

const (
	CycleMonthly Cycle = "monthly"
	CycleYearly  Cycle = "yearly"
)

// DefaultCurrency is used when the configuration does not name one.
const DefaultCurrency = "INR"

// prices is indexed by plan, then cycle, in paise.
var prices = map[Plan]map[Cycle]int64{
	PlanFree: {
		CycleMonthly: 0,
		CycleYearly:  0,
	},
	PlanStandard: {
		CycleMonthly: 49900,
		CycleYearly:  499000,
	},
	PlanPremium: {
		CycleMonthly: 99900,
		CycleYearly:  999000,
	},
}

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	_, ok := prices[p]
	return ok
}

// Valid reports whether c is a known billing cycle.
func (c Cycle) Valid() bool {
	return c == CycleMonthly || c == CycleYearly
}

// Period returns the subscription length for one cycle.
func (c Cycle) Period() time.Duration {
	if c == CycleYearly {
		return 365 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

// SubscriptionEnd returns the end of a subscription that starts at start.
func (c Cycle) SubscriptionEnd(start time.Time) time.Time {
	return start.Add(c.Period())
}

// Price returns the charge for plan p billed every c.
func Price(p Plan, c Cycle) (int64, error) {
	byCycle, ok := prices[p]
	if !ok {
		return 0, fmt.Errorf("unknown plan %q", p)
	}
	amount, ok := byCycle[c]
	if !ok {
		return 0, fmt.Errorf("unknown billing cycle %q", c)
	}
	return amount, nil
}
