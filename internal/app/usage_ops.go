package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"canticle/api/internal/export"
	"canticle/api/internal/store"
	"canticle/api/internal/usage"
)

// UsageParams carries the caller's usage-query filters before access
// resolution.
type UsageParams struct {
	ActivityIDs []int64
	FromDate    *time.Time
	ToDate      *time.Time
	Unique      bool
}

// SummaryParams extends UsageParams with song filters and range flags.
type SummaryParams struct {
	ActivityIDs      []int64
	FromDate         *time.Time
	ToDate           *time.Time
	SongFilter       store.SongFilter
	FirstUsedInRange bool
	LastUsedInRange  bool
	UsedInRange      bool
}

// RecordUsage logs one use of a song at an activity. The activity must be in
// the caller's allowed set.
func (s *Service) RecordUsage(ctx context.Context, session Session, songID, activityID int64, usedDate time.Time) (store.SongUsage, error) {
	exists, err := s.store.SongExists(ctx, songID)
	if err != nil {
		return store.SongUsage{}, err
	}
	if !exists {
		return store.SongUsage{}, domainError(http.StatusNotFound, "NOT_FOUND", "Song not found", nil)
	}
	allowed, err := s.resolver.AllowedActivityIDs(ctx, session.UserID)
	if err != nil {
		return store.SongUsage{}, err
	}
	if _, ok := allowed[activityID]; !ok {
		return store.SongUsage{}, domainError(http.StatusForbidden, "FORBIDDEN", "No access to this church activity", nil)
	}
	row, err := s.store.RecordUsage(ctx, songID, activityID, usedDate)
	if err != nil {
		return store.SongUsage{}, mapStoreError(err, "Church activity not found")
	}
	return row, nil
}

// DeleteUsage removes one usage row and repairs the song's usage stats.
func (s *Service) DeleteUsage(ctx context.Context, usageID int64) error {
	return mapStoreError(s.store.DeleteUsage(ctx, usageID), "Usage not found")
}

// ListSongUsages lists a song's usage rows across the caller's allowed
// activities.
func (s *Service) ListSongUsages(ctx context.Context, session Session, songID int64, p UsageParams) ([]store.SongUsage, error) {
	exists, err := s.store.SongExists(ctx, songID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Song not found", nil)
	}
	effective, err := s.effectiveActivities(ctx, session, p.ActivityIDs)
	if err != nil {
		return nil, err
	}
	if len(effective) == 0 {
		return []store.SongUsage{}, nil
	}
	return s.store.ListSongUsages(ctx, songID, usage.NewUsageFilter(effective, p.FromDate, p.ToDate))
}

// KeyCounts tallies usages per song key across the caller's allowed
// activities. Unique mode counts distinct songs instead of usages.
func (s *Service) KeyCounts(ctx context.Context, session Session, p UsageParams) (map[string]int, error) {
	effective, err := s.effectiveActivities(ctx, session, p.ActivityIDs)
	if err != nil {
		return nil, err
	}
	if len(effective) == 0 {
		return map[string]int{}, nil
	}
	return s.store.KeyCounts(ctx, usage.NewUsageFilter(effective, p.FromDate, p.ToDate), p.Unique)
}

// TypeCounts tallies hymn and song usages across the caller's allowed
// activities.
func (s *Service) TypeCounts(ctx context.Context, session Session, p UsageParams) (hymns, songs int, err error) {
	effective, err := s.effectiveActivities(ctx, session, p.ActivityIDs)
	if err != nil {
		return 0, 0, err
	}
	if len(effective) == 0 {
		return 0, 0, nil
	}
	return s.store.TypeCounts(ctx, usage.NewUsageFilter(effective, p.FromDate, p.ToDate), p.Unique)
}

// ActivityTotals tallies total and distinct song usages per activity.
func (s *Service) ActivityTotals(ctx context.Context, session Session, p UsageParams) ([]store.ActivityTotalsRow, error) {
	effective, err := s.effectiveActivities(ctx, session, p.ActivityIDs)
	if err != nil {
		return nil, err
	}
	if len(effective) == 0 {
		return []store.ActivityTotalsRow{}, nil
	}
	return s.store.ActivityTotals(ctx, usage.NewUsageFilter(effective, p.FromDate, p.ToDate))
}

// UsageSummary builds the per-song usage matrix over the caller's effective
// activities.
func (s *Service) UsageSummary(ctx context.Context, session Session, p SummaryParams) ([]usage.SongSummary, error) {
	effective, err := s.effectiveActivities(ctx, session, p.ActivityIDs)
	if err != nil {
		return nil, err
	}
	return s.summarizer.Summarize(ctx, usage.SummaryRequest{
		EffectiveActivityIDs: effective,
		SongFilter:           p.SongFilter,
		FromDate:             p.FromDate,
		ToDate:               p.ToDate,
		FirstUsedInRange:     p.FirstUsedInRange,
		LastUsedInRange:      p.LastUsedInRange,
		UsedInRange:          p.UsedInRange,
	})
}

// UsageSummaryReport renders the usage summary as a PDF.
func (s *Service) UsageSummaryReport(ctx context.Context, session Session, p SummaryParams) (*export.Result, error) {
	summaries, err := s.UsageSummary(ctx, session, p)
	if err != nil {
		return nil, err
	}
	from, to := usage.MinDate, usage.MaxDate
	if p.FromDate != nil {
		from = *p.FromDate
	}
	if p.ToDate != nil {
		to = *p.ToDate
	}
	result, err := s.export.UsageReport(summaries, from, to)
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return nil, domainError(http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "PDF export unavailable", nil)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) effectiveActivities(ctx context.Context, session Session, requested []int64) ([]int64, error) {
	allowed, err := s.resolver.AllowedActivityIDs(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return usage.EffectiveActivityIDs(allowed, requested), nil
}
