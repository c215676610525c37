package app

import (
	"context"
	"net/http"

	"canticle/api/internal/rbac"
	"canticle/api/internal/store"
)

// GetUser returns a user's profile. Callers may fetch themselves; admins may
// fetch other users within their own network.
func (s *Service) GetUser(ctx context.Context, session Session, userID int64) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return store.User{}, mapStoreError(err, "User not found")
	}
	if err := s.authorizeUserAccess(ctx, session, user); err != nil {
		return store.User{}, err
	}
	return user, nil
}

// DeleteUser removes an account, under the same visibility rules as GetUser.
func (s *Service) DeleteUser(ctx context.Context, session Session, userID int64) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return mapStoreError(err, "User not found")
	}
	if err := s.authorizeUserAccess(ctx, session, user); err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return mapStoreError(err, "User not found")
	}
	return nil
}

// UpdateUserRole sets a user's role by name. Admin only, enforced by the
// router.
func (s *Service) UpdateUserRole(ctx context.Context, userID int64, roleName string) (store.User, error) {
	role, ok := rbac.ParseStrict(roleName)
	if !ok {
		return store.User{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown role", map[string]any{"role": roleName})
	}
	if err := s.store.UpdateUserRole(ctx, userID, int(role)); err != nil {
		return store.User{}, mapStoreError(err, "User not found")
	}
	return s.store.GetUserByID(ctx, userID)
}

func (s *Service) authorizeUserAccess(ctx context.Context, session Session, target store.User) error {
	if session.UserID == target.ID {
		return nil
	}
	if session.Role != rbac.RoleAdmin {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	caller, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return mapStoreError(err, "User not found")
	}
	if !sameNetwork(caller.NetworkID, target.NetworkID) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return nil
}

func sameNetwork(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
