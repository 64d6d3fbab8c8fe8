package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/AndeLabs/FlowClicker/pkg/game"
	"github.com/AndeLabs/FlowClicker/pkg/store"

	"github.com/sirupsen/logrus"
)

// Ranker recomputes country ranks as a periodic batch, off the click path.
// It holds no per-player locks: it reads and writes only Country records.
type Ranker struct {
	store    store.Store
	interval time.Duration
}

// NewRanker creates a ranker that recomputes every interval.
func NewRanker(s store.Store, interval time.Duration) *Ranker {
	return &Ranker{store: s, interval: interval}
}

// Run recomputes ranks on a ticker until the context is cancelled.
func (r *Ranker) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logrus.Infof("country ranker running every %v", r.interval)
	for {
		select {
		case <-ctx.Done():
			logrus.Info("country ranker stopped")
			return
		case <-ticker.C:
			if err := r.RecomputeOnce(ctx); err != nil {
				logrus.Errorf("country rank recomputation failed: %v", err)
			}
		}
	}
}

// RecomputeOnce sorts all countries by total clicks descending, ties broken
// by code, and persists the resulting ranks.
func (r *Ranker) RecomputeOnce(ctx context.Context) error {
	countries, err := r.store.ListCountries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list countries: %w", err)
	}
	if len(countries) == 0 {
		return nil
	}

	sort.Slice(countries, func(i, j int) bool {
		cmp := countries[i].TotalClicks.Cmp(countries[j].TotalClicks)
		if cmp != 0 {
			return cmp > 0
		}
		return countries[i].Code < countries[j].Code
	})

	for i, country := range countries {
		rank := uint16(i + 1)
		if country.Rank == rank {
			continue
		}
		country.Rank = rank
		if err := r.store.PutCountry(ctx, country); err != nil {
			return fmt.Errorf("failed to store rank for %s: %w", country.Code, err)
		}
	}

	logrus.Debugf("recomputed ranks for %d countries", len(countries))
	return nil
}

// Ranked returns all countries ordered by rank for display. Countries not
// yet ranked sort after ranked ones.
func Ranked(countries []*game.Country) []*game.Country {
	sorted := make([]*game.Country, len(countries))
	copy(sorted, countries)
	sort.Slice(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Rank, sorted[j].Rank
		if ri == 0 {
			ri = ^uint16(0)
		}
		if rj == 0 {
			rj = ^uint16(0)
		}
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Code < sorted[j].Code
	})
	return sorted
}
