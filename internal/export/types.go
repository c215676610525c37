// Package export renders usage summaries as downloadable PDF reports.
package export

import (
	"errors"
	"time"
)

// Report is the assembled content for one usage report.
type Report struct {
	Title       string
	GeneratedAt time.Time
	FromDate    string
	ToDate      string
	Activities  []string
	Rows        []ReportRow
}

// ReportRow is one song line in the report table.
type ReportRow struct {
	FirstLine string
	Total     int
	FirstUsed string
	LastUsed  string
	PerColumn []int
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
