package usage

import (
	"context"
	"fmt"
	"time"

	"canticle/api/internal/store"
)

// Date serializes as a bare YYYY-MM-DD string.
type Date struct {
	time.Time
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	parsed, err := time.Parse(`"2006-01-02"`, string(data))
	if err != nil {
		return err
	}
	d.Time = parsed
	return nil
}

type ActivityStats struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	UsageCount int    `json:"usage_count"`
	FirstUsed  *Date  `json:"first_used"`
	LastUsed   *Date  `json:"last_used"`
}

type OverallStats struct {
	UsageCount int   `json:"usage_count"`
	FirstUsed  *Date `json:"first_used"`
	LastUsed   *Date `json:"last_used"`
}

type SongSummary struct {
	ID         int64                    `json:"id"`
	FirstLine  string                   `json:"first_line"`
	Activities map[string]ActivityStats `json:"activities"`
	Overall    OverallStats             `json:"overall"`
}

// SummaryRequest carries the already-validated inputs for one summary query.
// EffectiveActivityIDs must be the intersection of allowed and requested
// activities.
type SummaryRequest struct {
	EffectiveActivityIDs []int64
	SongFilter           store.SongFilter
	FromDate             *time.Time
	ToDate               *time.Time
	FirstUsedInRange     bool
	LastUsedInRange      bool
	UsedInRange          bool
}

// SummaryStore is the slice of the store the summarizer reads from.
type SummaryStore interface {
	ListSongs(ctx context.Context, f store.SongFilter) ([]store.Song, error)
	UsageCountsByActivity(ctx context.Context, f store.UsageFilter) ([]store.ActivityUsageRow, error)
	UsageTotals(ctx context.Context, f store.UsageFilter) ([]store.TotalUsageRow, error)
	UsageStatsRows(ctx context.Context, f store.StatsFilter) ([]store.SongUsageStats, error)
	SongIDsWithStatsInRange(ctx context.Context, f store.StatsFilter, from, to time.Time, firstInRange, lastInRange bool) ([]int64, error)
	SongIDsUsedInRange(ctx context.Context, f store.UsageFilter) ([]int64, error)
	ListActivitiesByIDs(ctx context.Context, ids []int64) ([]store.ChurchActivity, error)
}

type Summarizer struct {
	store SummaryStore
}

func NewSummarizer(store SummaryStore) *Summarizer {
	return &Summarizer{store: store}
}

// Summarize builds the per-song usage matrix. Every song carries an entry for
// each effective activity, zero-filled when unused. Usage counts honor the
// date window; first/last used dates cover the full history.
func (s *Summarizer) Summarize(ctx context.Context, req SummaryRequest) ([]SongSummary, error) {
	if len(req.EffectiveActivityIDs) == 0 {
		return []SongSummary{}, nil
	}

	usageFilter := NewUsageFilter(req.EffectiveActivityIDs, req.FromDate, req.ToDate)
	statsFilter := NewStatsFilter(req.EffectiveActivityIDs)

	songIDSet, restricted, err := s.restrictSongIDs(ctx, req, usageFilter, statsFilter)
	if err != nil {
		return nil, err
	}

	songs, err := s.store.ListSongs(ctx, req.SongFilter)
	if err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}

	activities, err := s.store.ListActivitiesByIDs(ctx, req.EffectiveActivityIDs)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	countRows, err := s.store.UsageCountsByActivity(ctx, usageFilter)
	if err != nil {
		return nil, fmt.Errorf("usage counts: %w", err)
	}
	totalRows, err := s.store.UsageTotals(ctx, usageFilter)
	if err != nil {
		return nil, fmt.Errorf("usage totals: %w", err)
	}
	statsRows, err := s.store.UsageStatsRows(ctx, statsFilter)
	if err != nil {
		return nil, fmt.Errorf("usage stats: %w", err)
	}

	counts := map[int64]map[int64]int{}
	for _, row := range countRows {
		if counts[row.SongID] == nil {
			counts[row.SongID] = map[int64]int{}
		}
		counts[row.SongID][row.ChurchActivityID] = row.UsageCount
	}
	totals := map[int64]int{}
	for _, row := range totalRows {
		totals[row.SongID] = row.UsageCount
	}
	stats := map[int64]map[int64]store.SongUsageStats{}
	for _, row := range statsRows {
		if stats[row.SongID] == nil {
			stats[row.SongID] = map[int64]store.SongUsageStats{}
		}
		stats[row.SongID][row.ChurchActivityID] = row
	}

	summaries := []SongSummary{}
	for _, song := range songs {
		if restricted {
			if _, ok := songIDSet[song.ID]; !ok {
				continue
			}
		}

		summary := SongSummary{
			ID:         song.ID,
			FirstLine:  song.FirstLine,
			Activities: map[string]ActivityStats{},
			Overall:    OverallStats{UsageCount: totals[song.ID]},
		}

		for _, activity := range activities {
			entry := ActivityStats{ID: activity.ID, Name: activity.Name}
			entry.UsageCount = counts[song.ID][activity.ID]
			if row, ok := stats[song.ID][activity.ID]; ok {
				entry.FirstUsed = &Date{row.FirstUsed}
				entry.LastUsed = &Date{row.LastUsed}

				if summary.Overall.FirstUsed == nil || row.FirstUsed.Before(summary.Overall.FirstUsed.Time) {
					summary.Overall.FirstUsed = &Date{row.FirstUsed}
				}
				if summary.Overall.LastUsed == nil || row.LastUsed.After(summary.Overall.LastUsed.Time) {
					summary.Overall.LastUsed = &Date{row.LastUsed}
				}
			}
			summary.Activities[activity.Slug] = entry
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// restrictSongIDs derives the song ID restriction from the range flags. With
// both stats-range and used-in-range flags present the two sets intersect.
func (s *Summarizer) restrictSongIDs(ctx context.Context, req SummaryRequest, usageFilter store.UsageFilter, statsFilter store.StatsFilter) (map[int64]struct{}, bool, error) {
	if !req.FirstUsedInRange && !req.LastUsedInRange && !req.UsedInRange {
		return nil, false, nil
	}

	var sets []map[int64]struct{}

	if req.FirstUsedInRange || req.LastUsedInRange {
		ids, err := s.store.SongIDsWithStatsInRange(ctx, statsFilter, usageFilter.FromDate, usageFilter.ToDate, req.FirstUsedInRange, req.LastUsedInRange)
		if err != nil {
			return nil, false, fmt.Errorf("song ids by stats range: %w", err)
		}
		sets = append(sets, toSet(ids))
	}
	if req.UsedInRange {
		ids, err := s.store.SongIDsUsedInRange(ctx, usageFilter)
		if err != nil {
			return nil, false, fmt.Errorf("song ids by usage range: %w", err)
		}
		sets = append(sets, toSet(ids))
	}

	result := sets[0]
	for _, other := range sets[1:] {
		for id := range result {
			if _, ok := other[id]; !ok {
				delete(result, id)
			}
		}
	}
	return result, true, nil
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
