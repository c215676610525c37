package export

import (
	"strings"
	"testing"
	"time"

	"canticle/api/internal/usage"
)

func TestBuildReportColumnsFollowSlugOrder(t *testing.T) {
	first := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	summaries := []usage.SongSummary{
		{
			ID:        1,
			FirstLine: "Amazing grace",
			Activities: map[string]usage.ActivityStats{
				"morning": {ID: 10, Name: "Morning Service", UsageCount: 3},
				"evening": {ID: 11, Name: "Evening Service", UsageCount: 1},
			},
			Overall: usage.OverallStats{UsageCount: 4, FirstUsed: &usage.Date{Time: first}},
		},
	}

	report := buildReport(summaries, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))

	if len(report.Activities) != 2 || report.Activities[0] != "Evening Service" {
		t.Fatalf("activity columns = %v", report.Activities)
	}
	if len(report.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(report.Rows))
	}
	row := report.Rows[0]
	if row.Total != 4 || row.FirstUsed != "2024-01-07" {
		t.Fatalf("row = %+v", row)
	}
	if len(row.PerColumn) != 2 || row.PerColumn[0] != 1 || row.PerColumn[1] != 3 {
		t.Fatalf("per-column counts = %v", row.PerColumn)
	}
}

func TestRenderReport(t *testing.T) {
	html, err := renderReport(Report{
		Title:       "Song Usage Report",
		GeneratedAt: time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
		FromDate:    "1 Jan 2024",
		ToDate:      "1 Jun 2024",
		Activities:  []string{"Morning Service"},
		Rows: []ReportRow{
			{FirstLine: "Amazing grace", Total: 3, PerColumn: []int{3}},
		},
	})
	if err != nil {
		t.Fatalf("renderReport() error = %v", err)
	}
	for _, want := range []string{"Song Usage Report", "Amazing grace", "Morning Service"} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered report missing %q", want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := sanitizeFilename("Song Usage Report: 2024/Q1"); got != "Song-Usage-Report-2024Q1" {
		t.Fatalf("sanitizeFilename() = %q", got)
	}
	if got := sanitizeFilename("///"); got != "report" {
		t.Fatalf("sanitizeFilename() = %q", got)
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("<b>a b</b>")
	if strings.Contains(got, " ") || strings.Contains(got, "+") {
		t.Fatalf("encoded string contains raw space or plus: %q", got)
	}
	if !strings.Contains(got, "%20") {
		t.Fatalf("expected %%20 in %q", got)
	}
}
