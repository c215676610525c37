package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// usageFilterSQL renders f against a song_usage table aliased as su.
func usageFilterSQL(f UsageFilter, args *[]any) []string {
	var clauses []string
	*args = append(*args, f.ActivityIDs)
	clauses = append(clauses, fmt.Sprintf("su.church_activity_id = ANY($%d)", len(*args)))
	*args = append(*args, f.FromDate)
	*args = append(*args, f.ToDate)
	clauses = append(clauses, fmt.Sprintf("su.used_date BETWEEN $%d AND $%d", len(*args)-1, len(*args)))
	return clauses
}

// RecordUsage inserts a usage row and maintains the per-activity first/last
// used dates in the same transaction.
func (s *PostgresStore) RecordUsage(ctx context.Context, songID, activityID int64, usedDate time.Time) (SongUsage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SongUsage{}, fmt.Errorf("begin usage tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var usage SongUsage
	err = tx.QueryRowContext(ctx, `
		INSERT INTO song_usage (song_id, church_activity_id, used_date)
		VALUES ($1, $2, $3)
		RETURNING id, song_id, used_date, church_activity_id
	`, songID, activityID, usedDate).Scan(&usage.ID, &usage.SongID, &usage.UsedDate, &usage.ChurchActivityID)
	if err != nil {
		return SongUsage{}, fmt.Errorf("insert usage: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO song_usage_stats (song_id, church_activity_id, first_used, last_used)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (song_id, church_activity_id) DO UPDATE SET
			first_used = LEAST(song_usage_stats.first_used, EXCLUDED.first_used),
			last_used = GREATEST(song_usage_stats.last_used, EXCLUDED.last_used)
	`, songID, activityID, usedDate); err != nil {
		return SongUsage{}, fmt.Errorf("upsert usage stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return SongUsage{}, fmt.Errorf("commit usage tx: %w", err)
	}
	return usage, nil
}

// DeleteUsage removes a usage row and recomputes the affected stats row from
// the remaining usages.
func (s *PostgresStore) DeleteUsage(ctx context.Context, usageID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin usage tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var songID, activityID int64
	err = tx.QueryRowContext(ctx, `
		DELETE FROM song_usage WHERE id=$1
		RETURNING song_id, church_activity_id
	`, usageID).Scan(&songID, &activityID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete usage: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM song_usage_stats WHERE song_id=$1 AND church_activity_id=$2
	`, songID, activityID); err != nil {
		return fmt.Errorf("clear usage stats: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO song_usage_stats (song_id, church_activity_id, first_used, last_used)
		SELECT song_id, church_activity_id, MIN(used_date), MAX(used_date)
		FROM song_usage
		WHERE song_id=$1 AND church_activity_id=$2
		GROUP BY song_id, church_activity_id
	`, songID, activityID); err != nil {
		return fmt.Errorf("rebuild usage stats: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) ListSongUsages(ctx context.Context, songID int64, f UsageFilter) ([]SongUsage, error) {
	var args []any
	args = append(args, songID)
	clauses := append([]string{"su.song_id = $1"}, usageFilterSQL(f, &args)...)

	query := `
		SELECT su.id, su.song_id, su.used_date, su.church_activity_id
		FROM song_usage su
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY su.used_date ASC, su.id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list usages: %w", err)
	}
	defer rows.Close()

	var usages []SongUsage
	for rows.Next() {
		var usage SongUsage
		if err := rows.Scan(&usage.ID, &usage.SongID, &usage.UsedDate, &usage.ChurchActivityID); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		usages = append(usages, usage)
	}
	return usages, rows.Err()
}

// KeyCounts groups usage rows by the used song's key. With unique set, each
// song counts once per key.
func (s *PostgresStore) KeyCounts(ctx context.Context, f UsageFilter, unique bool) (map[string]int, error) {
	countExpr := "COUNT(su.id)"
	if unique {
		countExpr = "COUNT(DISTINCT su.song_id)"
	}

	var args []any
	clauses := usageFilterSQL(f, &args)
	query := fmt.Sprintf(`
		SELECT COALESCE(s.song_key, ''), %s AS usage_count
		FROM song_usage su
		JOIN songs s ON s.id = su.song_id
		WHERE %s
		GROUP BY s.song_key
		ORDER BY usage_count DESC
	`, countExpr, strings.Join(clauses, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count keys: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan key count: %w", err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// TypeCounts splits usage rows between hymns and songs.
func (s *PostgresStore) TypeCounts(ctx context.Context, f UsageFilter, unique bool) (hymns, songs int, err error) {
	countExpr := "COUNT(su.id)"
	if unique {
		countExpr = "COUNT(DISTINCT su.song_id)"
	}

	var args []any
	clauses := usageFilterSQL(f, &args)
	query := fmt.Sprintf(`
		SELECT s.is_hymn, %s
		FROM song_usage su
		JOIN songs s ON s.id = su.song_id
		WHERE %s
		GROUP BY s.is_hymn
	`, countExpr, strings.Join(clauses, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("count types: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var isHymn bool
		var count int
		if err := rows.Scan(&isHymn, &count); err != nil {
			return 0, 0, fmt.Errorf("scan type count: %w", err)
		}
		if isHymn {
			hymns = count
		} else {
			songs = count
		}
	}
	return hymns, songs, rows.Err()
}

// ActivityTotals reports total and distinct-song usage counts per activity.
func (s *PostgresStore) ActivityTotals(ctx context.Context, f UsageFilter) ([]ActivityTotalsRow, error) {
	var args []any
	clauses := usageFilterSQL(f, &args)
	query := `
		SELECT ca.id, ca.name, COUNT(su.id), COUNT(DISTINCT su.song_id)
		FROM song_usage su
		JOIN church_activities ca ON ca.id = su.church_activity_id
		WHERE ` + strings.Join(clauses, " AND ") + `
		GROUP BY ca.id, ca.name
		ORDER BY ca.name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("activity totals: %w", err)
	}
	defer rows.Close()

	var result []ActivityTotalsRow
	for rows.Next() {
		var row ActivityTotalsRow
		if err := rows.Scan(&row.ChurchActivityID, &row.ChurchActivityName, &row.TotalCount, &row.UniqueCount); err != nil {
			return nil, fmt.Errorf("scan activity totals: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// UsageCountsByActivity groups usage rows by song and activity.
func (s *PostgresStore) UsageCountsByActivity(ctx context.Context, f UsageFilter) ([]ActivityUsageRow, error) {
	var args []any
	clauses := usageFilterSQL(f, &args)
	query := `
		SELECT su.song_id, su.church_activity_id, COUNT(su.id)
		FROM song_usage su
		WHERE ` + strings.Join(clauses, " AND ") + `
		GROUP BY su.song_id, su.church_activity_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("usage counts by activity: %w", err)
	}
	defer rows.Close()

	var result []ActivityUsageRow
	for rows.Next() {
		var row ActivityUsageRow
		if err := rows.Scan(&row.SongID, &row.ChurchActivityID, &row.UsageCount); err != nil {
			return nil, fmt.Errorf("scan usage counts: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// UsageTotals groups usage rows by song only.
func (s *PostgresStore) UsageTotals(ctx context.Context, f UsageFilter) ([]TotalUsageRow, error) {
	var args []any
	clauses := usageFilterSQL(f, &args)
	query := `
		SELECT su.song_id, COUNT(su.id)
		FROM song_usage su
		WHERE ` + strings.Join(clauses, " AND ") + `
		GROUP BY su.song_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("usage totals: %w", err)
	}
	defer rows.Close()

	var result []TotalUsageRow
	for rows.Next() {
		var row TotalUsageRow
		if err := rows.Scan(&row.SongID, &row.UsageCount); err != nil {
			return nil, fmt.Errorf("scan usage totals: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// UsageStatsRows loads first/last used dates for the given activities.
func (s *PostgresStore) UsageStatsRows(ctx context.Context, f StatsFilter) ([]SongUsageStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT song_id, church_activity_id, first_used, last_used
		FROM song_usage_stats
		WHERE church_activity_id = ANY($1)
	`, f.ActivityIDs)
	if err != nil {
		return nil, fmt.Errorf("usage stats rows: %w", err)
	}
	defer rows.Close()

	var result []SongUsageStats
	for rows.Next() {
		var row SongUsageStats
		if err := rows.Scan(&row.SongID, &row.ChurchActivityID, &row.FirstUsed, &row.LastUsed); err != nil {
			return nil, fmt.Errorf("scan usage stats: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// SongIDsWithStatsInRange returns songs whose first or last used date falls
// inside the window, restricted to the given activities.
func (s *PostgresStore) SongIDsWithStatsInRange(ctx context.Context, f StatsFilter, from, to time.Time, firstInRange, lastInRange bool) ([]int64, error) {
	var conds []string
	args := []any{f.ActivityIDs, from, to}
	if firstInRange {
		conds = append(conds, "first_used BETWEEN $2 AND $3")
	}
	if lastInRange {
		conds = append(conds, "last_used BETWEEN $2 AND $3")
	}
	if len(conds) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT song_id FROM song_usage_stats
		WHERE church_activity_id = ANY($1) AND ` + strings.Join(conds, " AND ")
	return s.queryIDs(ctx, query, args...)
}

// SongIDsUsedInRange returns songs with at least one usage matching f.
func (s *PostgresStore) SongIDsUsedInRange(ctx context.Context, f UsageFilter) ([]int64, error) {
	var args []any
	clauses := usageFilterSQL(f, &args)
	query := `SELECT DISTINCT su.song_id FROM song_usage su WHERE ` + strings.Join(clauses, " AND ")
	return s.queryIDs(ctx, query, args...)
}
