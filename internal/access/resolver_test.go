package access

import (
	"context"
	"errors"
	"testing"
)

type fakeGrantStore struct {
	network []int64
	church  []int64
	direct  []int64
	err     error
}

func (f *fakeGrantStore) NetworkActivityIDs(context.Context, int64) ([]int64, error) {
	return f.network, f.err
}

func (f *fakeGrantStore) ChurchActivityIDs(context.Context, int64) ([]int64, error) {
	return f.church, f.err
}

func (f *fakeGrantStore) DirectActivityIDs(context.Context, int64) ([]int64, error) {
	return f.direct, f.err
}

func TestAllowedActivityIDsUnionsGrantPaths(t *testing.T) {
	resolver := NewResolver(&fakeGrantStore{
		network: []int64{1, 2, 3},
		church:  []int64{3, 4},
		direct:  []int64{5},
	})

	allowed, err := resolver.AllowedActivityIDs(context.Background(), 7)
	if err != nil {
		t.Fatalf("AllowedActivityIDs() error = %v", err)
	}
	if len(allowed) != 5 {
		t.Fatalf("allowed set size = %d, want 5", len(allowed))
	}
	for _, id := range []int64{1, 2, 3, 4, 5} {
		if _, ok := allowed[id]; !ok {
			t.Fatalf("allowed set missing activity %d", id)
		}
	}
}

func TestAllowedActivityIDsEmptyWithoutGrants(t *testing.T) {
	resolver := NewResolver(&fakeGrantStore{})

	allowed, err := resolver.AllowedActivityIDs(context.Background(), 7)
	if err != nil {
		t.Fatalf("AllowedActivityIDs() error = %v", err)
	}
	if len(allowed) != 0 {
		t.Fatalf("allowed set size = %d, want 0", len(allowed))
	}
}

func TestAllowedActivityIDsPropagatesStoreError(t *testing.T) {
	resolver := NewResolver(&fakeGrantStore{err: errors.New("db down")})

	if _, err := resolver.AllowedActivityIDs(context.Background(), 7); err == nil {
		t.Fatal("expected AllowedActivityIDs() to fail")
	}
}
