package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) GrantNetworkAccess(ctx context.Context, userID, networkID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_network_access (user_id, network_id) VALUES ($1, $2)
	`, userID, networkID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("grant network access: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeNetworkAccess(ctx context.Context, userID, networkID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM user_network_access WHERE user_id=$1 AND network_id=$2
	`, userID, networkID)
	if err != nil {
		return fmt.Errorf("revoke network access: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GrantChurchAccess(ctx context.Context, userID, churchID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_church_access (user_id, church_id) VALUES ($1, $2)
	`, userID, churchID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("grant church access: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeChurchAccess(ctx context.Context, userID, churchID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM user_church_access WHERE user_id=$1 AND church_id=$2
	`, userID, churchID)
	if err != nil {
		return fmt.Errorf("revoke church access: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GrantActivityAccess(ctx context.Context, userID, activityID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_church_activity_access (user_id, church_activity_id) VALUES ($1, $2)
	`, userID, activityID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("grant activity access: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeActivityAccess(ctx context.Context, userID, activityID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM user_church_activity_access WHERE user_id=$1 AND church_activity_id=$2
	`, userID, activityID)
	if err != nil {
		return fmt.Errorf("revoke activity access: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// NetworkActivityIDs returns activities reachable through the user's network
// grants.
func (s *PostgresStore) NetworkActivityIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.queryIDs(ctx, `
		SELECT ca.id
		FROM user_network_access una
		JOIN churches c ON c.network_id = una.network_id
		JOIN church_activities ca ON ca.church_id = c.id
		WHERE una.user_id = $1
	`, userID)
}

// ChurchActivityIDs returns activities reachable through the user's church
// grants.
func (s *PostgresStore) ChurchActivityIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.queryIDs(ctx, `
		SELECT ca.id
		FROM user_church_access uca
		JOIN church_activities ca ON ca.church_id = uca.church_id
		WHERE uca.user_id = $1
	`, userID)
}

// DirectActivityIDs returns activities granted to the user directly.
func (s *PostgresStore) DirectActivityIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.queryIDs(ctx, `
		SELECT church_activity_id FROM user_church_activity_access WHERE user_id = $1
	`, userID)
}

func (s *PostgresStore) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
