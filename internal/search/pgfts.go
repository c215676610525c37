package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// The tsvector is computed per query from the song's first line, author and
// lyrics.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const songVector = `to_tsvector('english', s.first_line || ' ' || coalesce(s.author, '') || ' ' || coalesce(sl.content, ''))`

// Search runs a plainto_tsquery match over songs joined with their lyrics.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const tsQuery = `plainto_tsquery('english', $1)`
	base := fmt.Sprintf(`
		FROM songs s
		LEFT JOIN song_lyrics sl ON sl.song_id = s.id
		WHERE %s @@ %s`, songVector, tsQuery)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) "+base, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT s.id, s.first_line, coalesce(s.author, ''), s.is_hymn,
			ts_headline('english', coalesce(sl.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet
		%s
		ORDER BY ts_rank(%s, %s) DESC
		LIMIT %d OFFSET %d`, tsQuery, base, songVector, tsQuery, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.FirstLine, &r.Author, &r.IsHymn, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every song for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]SongRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT s.id, s.first_line, coalesce(s.author, ''), s.is_hymn, coalesce(sl.content, '')
		FROM songs s
		LEFT JOIN song_lyrics sl ON sl.song_id = s.id
	`)
	if err != nil {
		return nil, fmt.Errorf("load songs: %w", err)
	}
	defer rows.Close()

	records := make([]SongRecord, 0)
	for rows.Next() {
		var record SongRecord
		if err := rows.Scan(&record.ID, &record.FirstLine, &record.Author, &record.IsHymn, &record.Lyrics); err != nil {
			return nil, fmt.Errorf("scan song: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate songs: %w", err)
	}
	return records, nil
}
