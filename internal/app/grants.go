package app

import (
	"context"
	"net/http"
)

// Grant ordering: the target user is checked first, then the resource, then
// the existing grant. Clients rely on which 404 they get.

func (s *Service) GrantNetworkAccess(ctx context.Context, userID, networkID int64) error {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return mapStoreError(err, "User not found")
	}
	if _, err := s.store.GetNetwork(ctx, networkID); err != nil {
		return mapStoreError(err, "Network not found")
	}
	if err := s.store.GrantNetworkAccess(ctx, userID, networkID); err != nil {
		return mapGrantError(err, "User already has access to this network")
	}
	return nil
}

func (s *Service) RevokeNetworkAccess(ctx context.Context, userID, networkID int64) error {
	return mapStoreError(s.store.RevokeNetworkAccess(ctx, userID, networkID), "Access not found")
}

func (s *Service) GrantChurchAccess(ctx context.Context, userID, churchID int64) error {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return mapStoreError(err, "User not found")
	}
	if _, err := s.store.GetChurch(ctx, churchID); err != nil {
		return mapStoreError(err, "Church not found")
	}
	if err := s.store.GrantChurchAccess(ctx, userID, churchID); err != nil {
		return mapGrantError(err, "User already has access to this church")
	}
	return nil
}

func (s *Service) RevokeChurchAccess(ctx context.Context, userID, churchID int64) error {
	return mapStoreError(s.store.RevokeChurchAccess(ctx, userID, churchID), "Access not found")
}

func (s *Service) GrantActivityAccess(ctx context.Context, userID, activityID int64) error {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return mapStoreError(err, "User not found")
	}
	if _, err := s.store.GetActivity(ctx, activityID); err != nil {
		return mapStoreError(err, "Church activity not found")
	}
	if err := s.store.GrantActivityAccess(ctx, userID, activityID); err != nil {
		return mapGrantError(err, "User already has access to this church activity")
	}
	return nil
}

func (s *Service) RevokeActivityAccess(ctx context.Context, userID, activityID int64) error {
	return mapStoreError(s.store.RevokeActivityAccess(ctx, userID, activityID), "Access not found")
}

func mapGrantError(err error, conflictMessage string) error {
	if err == nil {
		return nil
	}
	mapped := mapStoreError(err, "Access not found")
	if de, ok := mapped.(*DomainError); ok && de.Status == http.StatusConflict {
		de.Message = conflictMessage
	}
	return mapped
}
