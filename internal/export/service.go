package export

import (
	"sort"
	"time"

	"canticle/api/internal/usage"
)

// Service turns usage summaries into PDF reports.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// UsageReport renders the summary matrix into an A4 PDF. Activity columns
// appear in the effective-activity order of the summaries.
func (s *Service) UsageReport(summaries []usage.SongSummary, fromDate, toDate time.Time) (*Result, error) {
	report := buildReport(summaries, fromDate, toDate)
	html, err := renderReport(report)
	if err != nil {
		return nil, err
	}
	return exportPDF(html, report.Title)
}

func buildReport(summaries []usage.SongSummary, fromDate, toDate time.Time) Report {
	report := Report{
		Title:       "Song Usage Report",
		GeneratedAt: time.Now(),
		FromDate:    fromDate.Format("2 Jan 2006"),
		ToDate:      toDate.Format("2 Jan 2006"),
	}

	// Column order comes from activity slugs, sorted for stable output.
	var slugs []string
	if len(summaries) > 0 {
		for slug := range summaries[0].Activities {
			slugs = append(slugs, slug)
		}
		sort.Strings(slugs)
		for _, slug := range slugs {
			report.Activities = append(report.Activities, summaries[0].Activities[slug].Name)
		}
	}

	for _, summary := range summaries {
		row := ReportRow{
			FirstLine: summary.FirstLine,
			Total:     summary.Overall.UsageCount,
		}
		if summary.Overall.FirstUsed != nil {
			row.FirstUsed = summary.Overall.FirstUsed.Format("2006-01-02")
		}
		if summary.Overall.LastUsed != nil {
			row.LastUsed = summary.Overall.LastUsed.Format("2006-01-02")
		}
		for _, slug := range slugs {
			row.PerColumn = append(row.PerColumn, summary.Activities[slug].UsageCount)
		}
		report.Rows = append(report.Rows, row)
	}

	return report
}
