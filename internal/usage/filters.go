// Package usage builds access-checked usage filters and assembles per-song
// usage summaries.
package usage

import (
	"sort"
	"time"

	"canticle/api/internal/store"
)

// Open-ended date windows are widened to these bounds so every query can use
// a plain BETWEEN.
var (
	MinDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	MaxDate = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

// EffectiveActivityIDs intersects the user's allowed activities with the
// requested ones. With no request the whole allowed set is effective. The
// result is sorted for stable query plans and output.
func EffectiveActivityIDs(allowed map[int64]struct{}, requested []int64) []int64 {
	var effective []int64
	if len(requested) == 0 {
		for id := range allowed {
			effective = append(effective, id)
		}
	} else {
		seen := map[int64]struct{}{}
		for _, id := range requested {
			if _, ok := allowed[id]; !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			effective = append(effective, id)
		}
	}
	sort.Slice(effective, func(i, j int) bool { return effective[i] < effective[j] })
	return effective
}

// NewUsageFilter builds a usage filter over the effective activities,
// widening missing date bounds to the sentinel window.
func NewUsageFilter(effective []int64, from, to *time.Time) store.UsageFilter {
	f := store.UsageFilter{ActivityIDs: effective, FromDate: MinDate, ToDate: MaxDate}
	if from != nil {
		f.FromDate = *from
	}
	if to != nil {
		f.ToDate = *to
	}
	return f
}

// NewStatsFilter builds a stats filter over the effective activities.
func NewStatsFilter(effective []int64) store.StatsFilter {
	return store.StatsFilter{ActivityIDs: effective}
}
