package usage

import (
	"context"
	"testing"
	"time"

	"canticle/api/internal/store"
)

type fakeSummaryStore struct {
	songs      []store.Song
	activities []store.ChurchActivity
	countRows  []store.ActivityUsageRow
	totalRows  []store.TotalUsageRow
	statsRows  []store.SongUsageStats
	statsIDs   []int64
	usedIDs    []int64
}

func (f *fakeSummaryStore) ListSongs(context.Context, store.SongFilter) ([]store.Song, error) {
	return f.songs, nil
}

func (f *fakeSummaryStore) UsageCountsByActivity(context.Context, store.UsageFilter) ([]store.ActivityUsageRow, error) {
	return f.countRows, nil
}

func (f *fakeSummaryStore) UsageTotals(context.Context, store.UsageFilter) ([]store.TotalUsageRow, error) {
	return f.totalRows, nil
}

func (f *fakeSummaryStore) UsageStatsRows(context.Context, store.StatsFilter) ([]store.SongUsageStats, error) {
	return f.statsRows, nil
}

func (f *fakeSummaryStore) SongIDsWithStatsInRange(context.Context, store.StatsFilter, time.Time, time.Time, bool, bool) ([]int64, error) {
	return f.statsIDs, nil
}

func (f *fakeSummaryStore) SongIDsUsedInRange(context.Context, store.UsageFilter) ([]int64, error) {
	return f.usedIDs, nil
}

func (f *fakeSummaryStore) ListActivitiesByIDs(context.Context, []int64) ([]store.ChurchActivity, error) {
	return f.activities, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSummarizeZeroFillsUnusedActivities(t *testing.T) {
	fs := &fakeSummaryStore{
		songs: []store.Song{
			{ID: 1, FirstLine: "Amazing grace"},
			{ID: 2, FirstLine: "Be thou my vision"},
		},
		activities: []store.ChurchActivity{
			{ID: 10, Slug: "morning", Name: "Morning Service"},
			{ID: 11, Slug: "evening", Name: "Evening Service"},
		},
		countRows: []store.ActivityUsageRow{
			{SongID: 1, ChurchActivityID: 10, UsageCount: 3},
		},
		totalRows: []store.TotalUsageRow{
			{SongID: 1, UsageCount: 3},
		},
		statsRows: []store.SongUsageStats{
			{SongID: 1, ChurchActivityID: 10, FirstUsed: day(2024, 1, 7), LastUsed: day(2024, 6, 2)},
		},
	}

	summaries, err := NewSummarizer(fs).Summarize(context.Background(), SummaryRequest{
		EffectiveActivityIDs: []int64{10, 11},
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}

	used := summaries[0]
	if used.Overall.UsageCount != 3 {
		t.Fatalf("overall usage = %d, want 3", used.Overall.UsageCount)
	}
	if used.Overall.FirstUsed == nil || !used.Overall.FirstUsed.Equal(day(2024, 1, 7)) {
		t.Fatalf("overall first used = %v, want 2024-01-07", used.Overall.FirstUsed)
	}
	morning, ok := used.Activities["morning"]
	if !ok || morning.UsageCount != 3 {
		t.Fatalf("morning stats = %+v", morning)
	}
	evening, ok := used.Activities["evening"]
	if !ok || evening.UsageCount != 0 || evening.FirstUsed != nil {
		t.Fatalf("evening should be zero-filled, got %+v", evening)
	}

	unused := summaries[1]
	if unused.Overall.UsageCount != 0 || unused.Overall.FirstUsed != nil {
		t.Fatalf("unused song overall = %+v, want zeroes", unused.Overall)
	}
	if len(unused.Activities) != 2 {
		t.Fatalf("unused song has %d activity entries, want 2", len(unused.Activities))
	}
}

func TestSummarizeEmptyEffectiveSet(t *testing.T) {
	fs := &fakeSummaryStore{
		songs: []store.Song{{ID: 1, FirstLine: "Amazing grace"}},
	}

	summaries, err := NewSummarizer(fs).Summarize(context.Background(), SummaryRequest{})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("got %d summaries, want 0", len(summaries))
	}
}

func TestSummarizeIntersectsRangeFlags(t *testing.T) {
	fs := &fakeSummaryStore{
		songs: []store.Song{
			{ID: 1, FirstLine: "Amazing grace"},
			{ID: 2, FirstLine: "Be thou my vision"},
			{ID: 3, FirstLine: "Crown him"},
		},
		activities: []store.ChurchActivity{
			{ID: 10, Slug: "morning", Name: "Morning Service"},
		},
		statsIDs: []int64{1, 2},
		usedIDs:  []int64{2, 3},
	}

	summaries, err := NewSummarizer(fs).Summarize(context.Background(), SummaryRequest{
		EffectiveActivityIDs: []int64{10},
		FirstUsedInRange:     true,
		UsedInRange:          true,
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != 2 {
		t.Fatalf("summaries = %+v, want only song 2", summaries)
	}
}

func TestDateMarshalsAsPlainDay(t *testing.T) {
	d := Date{day(2024, 1, 7)}
	got, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(got) != `"2024-01-07"` {
		t.Fatalf("MarshalJSON() = %s", got)
	}
}
