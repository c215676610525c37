// Package access resolves which church activities a user may see.
//
// Visibility is the union of three grant paths: network grants (every
// activity of every church in the network), church grants (every activity of
// the church) and direct activity grants.
package access

import (
	"context"
	"fmt"
)

// GrantStore exposes the three grant lookups the resolver needs.
type GrantStore interface {
	NetworkActivityIDs(ctx context.Context, userID int64) ([]int64, error)
	ChurchActivityIDs(ctx context.Context, userID int64) ([]int64, error)
	DirectActivityIDs(ctx context.Context, userID int64) ([]int64, error)
}

type Resolver struct {
	store GrantStore
}

func NewResolver(store GrantStore) *Resolver {
	return &Resolver{store: store}
}

// AllowedActivityIDs returns the set of activity IDs visible to the user. A
// user with no grants gets an empty set, never an error.
func (r *Resolver) AllowedActivityIDs(ctx context.Context, userID int64) (map[int64]struct{}, error) {
	allowed := map[int64]struct{}{}

	for _, lookup := range []func(context.Context, int64) ([]int64, error){
		r.store.NetworkActivityIDs,
		r.store.ChurchActivityIDs,
		r.store.DirectActivityIDs,
	} {
		ids, err := lookup(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("resolve allowed activities: %w", err)
		}
		for _, id := range ids {
			allowed[id] = struct{}{}
		}
	}
	return allowed, nil
}
