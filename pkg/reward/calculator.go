package reward

import (
	"fmt"
	"math/big"

	"github.com/AndeLabs/FlowClicker/pkg/policy"
)

// Calculator prices clicks from global elapsed time only. The schedule is a
// step function over elapsed years since genesis: no interpolation, no
// pro-rating at bucket boundaries.
type Calculator struct {
	yearSeconds uint64
	rates       []*big.Int
}

// NewCalculator builds a calculator from the policy's reward schedule.
func NewCalculator(cfg *policy.Config) (*Calculator, error) {
	rates, err := cfg.Rates()
	if err != nil {
		return nil, fmt.Errorf("invalid reward schedule: %w", err)
	}
	return &Calculator{
		yearSeconds: cfg.YearDurationSeconds,
		rates:       rates,
	}, nil
}

// PriceClick returns the per-click reward for a click at time now, given the
// game's genesis timestamp. The returned value is a fresh big.Int the caller
// may mutate.
func (c *Calculator) PriceClick(startTimestamp, now uint64) *big.Int {
	return new(big.Int).Set(c.rate(startTimestamp, now))
}

// CurrentRate is PriceClick under a name that matches its other use: the
// cached display rate in the global state.
func (c *Calculator) CurrentRate(startTimestamp, now uint64) *big.Int {
	return c.PriceClick(startTimestamp, now)
}

func (c *Calculator) rate(startTimestamp, now uint64) *big.Int {
	var elapsed uint64
	if now > startTimestamp {
		elapsed = now - startTimestamp
	}

	year := int(elapsed / c.yearSeconds)
	if year >= len(c.rates) {
		year = len(c.rates) - 1
	}
	return c.rates[year]
}
