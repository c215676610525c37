package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *PostgresStore) ListNetworks(ctx context.Context) ([]Network, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM networks ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	defer rows.Close()

	var networks []Network
	for rows.Next() {
		var network Network
		if err := rows.Scan(&network.ID, &network.Name); err != nil {
			return nil, fmt.Errorf("scan network: %w", err)
		}
		networks = append(networks, network)
	}
	return networks, rows.Err()
}

func (s *PostgresStore) GetNetwork(ctx context.Context, id int64) (Network, error) {
	var network Network
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM networks WHERE id=$1`, id).Scan(&network.ID, &network.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Network{}, ErrNotFound
	}
	if err != nil {
		return Network{}, fmt.Errorf("lookup network: %w", err)
	}
	return network, nil
}

func (s *PostgresStore) ListChurchesByNetwork(ctx context.Context, networkID int64) ([]Church, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, network_id, name, slug FROM churches
		WHERE network_id = $1
		ORDER BY name ASC
	`, networkID)
	if err != nil {
		return nil, fmt.Errorf("list churches: %w", err)
	}
	defer rows.Close()

	var churches []Church
	for rows.Next() {
		var church Church
		if err := rows.Scan(&church.ID, &church.NetworkID, &church.Name, &church.Slug); err != nil {
			return nil, fmt.Errorf("scan church: %w", err)
		}
		churches = append(churches, church)
	}
	return churches, rows.Err()
}

func (s *PostgresStore) GetChurch(ctx context.Context, id int64) (Church, error) {
	var church Church
	err := s.db.QueryRowContext(ctx, `SELECT id, network_id, name, slug FROM churches WHERE id=$1`, id).
		Scan(&church.ID, &church.NetworkID, &church.Name, &church.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return Church{}, ErrNotFound
	}
	if err != nil {
		return Church{}, fmt.Errorf("lookup church: %w", err)
	}
	return church, nil
}

func (s *PostgresStore) GetActivity(ctx context.Context, id int64) (ChurchActivity, error) {
	var activity ChurchActivity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, church_id, name, slug, type FROM church_activities WHERE id=$1
	`, id).Scan(&activity.ID, &activity.ChurchID, &activity.Name, &activity.Slug, &activity.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return ChurchActivity{}, ErrNotFound
	}
	if err != nil {
		return ChurchActivity{}, fmt.Errorf("lookup activity: %w", err)
	}
	return activity, nil
}

func (s *PostgresStore) ListActivitiesByIDs(ctx context.Context, ids []int64) ([]ChurchActivity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, church_id, name, slug, type FROM church_activities
		WHERE id = ANY($1)
		ORDER BY name ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []ChurchActivity
	for rows.Next() {
		var activity ChurchActivity
		if err := rows.Scan(&activity.ID, &activity.ChurchID, &activity.Name, &activity.Slug, &activity.Type); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}
