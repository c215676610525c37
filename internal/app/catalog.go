package app

import (
	"context"
	"sort"

	"canticle/api/internal/store"
)

// ListNetworks returns every network in the catalog.
func (s *Service) ListNetworks(ctx context.Context) ([]store.Network, error) {
	return s.store.ListNetworks(ctx)
}

// ListChurches returns the churches of one network.
func (s *Service) ListChurches(ctx context.Context, networkID int64) ([]store.Church, error) {
	if _, err := s.store.GetNetwork(ctx, networkID); err != nil {
		return nil, mapStoreError(err, "Network not found")
	}
	return s.store.ListChurchesByNetwork(ctx, networkID)
}

// ListViewableActivities returns the activities the caller can see, sorted by
// name.
func (s *Service) ListViewableActivities(ctx context.Context, session Session) ([]store.ChurchActivity, error) {
	allowed, err := s.resolver.AllowedActivityIDs(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if len(allowed) == 0 {
		return []store.ChurchActivity{}, nil
	}
	ids := make([]int64, 0, len(allowed))
	for id := range allowed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return s.store.ListActivitiesByIDs(ctx, ids)
}
