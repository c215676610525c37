package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"canticle/api/internal/rbac"
	"canticle/api/internal/store"
)

func adminRequest(t *testing.T, svc *Service, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	server := NewHTTPServer(svc, "*")
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, svc, 1, "admin", rbac.RoleAdmin))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestGrantNetworkAccessUnknownUserIs404(t *testing.T) {
	svc := newTestService(&fakeStore{})

	rr := adminRequest(t, svc, http.MethodPost, "/api/admin/users/99/access/networks/1")

	assertErrorCode(t, rr, http.StatusNotFound, "NOT_FOUND")
}

func TestGrantNetworkAccessUnknownNetworkIs404(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id int64) (store.User, error) {
			return store.User{ID: id, Username: "member"}, nil
		},
	}
	svc := newTestService(fs)

	rr := adminRequest(t, svc, http.MethodPost, "/api/admin/users/2/access/networks/99")

	assertErrorCode(t, rr, http.StatusNotFound, "NOT_FOUND")
}

func TestGrantNetworkAccessTwiceConflicts(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id int64) (store.User, error) {
			return store.User{ID: id, Username: "member"}, nil
		},
		getNetworkFn: func(_ context.Context, id int64) (store.Network, error) {
			return store.Network{ID: id, Name: "North"}, nil
		},
		grantNetworkAccessFn: func(context.Context, int64, int64) error {
			return store.ErrConflict
		},
	}
	svc := newTestService(fs)

	rr := adminRequest(t, svc, http.MethodPost, "/api/admin/users/2/access/networks/1")

	assertErrorCode(t, rr, http.StatusConflict, "CONFLICT")
}

func TestGrantActivityAccessCreated(t *testing.T) {
	var granted [2]int64
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id int64) (store.User, error) {
			return store.User{ID: id, Username: "member"}, nil
		},
		getActivityFn: func(_ context.Context, id int64) (store.ChurchActivity, error) {
			return store.ChurchActivity{ID: id, Name: "Morning Service"}, nil
		},
		grantActivityAccessFn: func(_ context.Context, userID, activityID int64) error {
			granted = [2]int64{userID, activityID}
			return nil
		},
	}
	svc := newTestService(fs)

	rr := adminRequest(t, svc, http.MethodPost, "/api/admin/users/2/access/activities/7")

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if granted != [2]int64{2, 7} {
		t.Fatalf("expected grant for user 2 activity 7, got %v", granted)
	}
}

func TestRevokeNetworkAccessMissingIs404(t *testing.T) {
	fs := &fakeStore{
		revokeNetworkAccessFn: func(context.Context, int64, int64) error {
			return store.ErrNotFound
		},
	}
	svc := newTestService(fs)

	rr := adminRequest(t, svc, http.MethodDelete, "/api/admin/users/2/access/networks/1")

	assertErrorCode(t, rr, http.StatusNotFound, "NOT_FOUND")
}

func TestUpdateUserRoleViaPut(t *testing.T) {
	var gotID int64
	var gotRole int
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id int64) (store.User, error) {
			return store.User{ID: id, Username: "casey", Role: gotRole}, nil
		},
		updateUserRoleFn: func(_ context.Context, id int64, role int) error {
			gotID, gotRole = id, role
			return nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPut, "/api/admin/users/2/role",
		strings.NewReader(`{"role":"editor"}`))
	req.Header.Set("Authorization", "Bearer "+testToken(t, svc, 1, "admin", rbac.RoleAdmin))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if gotID != 2 || gotRole != int(rbac.RoleEditor) {
		t.Fatalf("UpdateUserRole(%d, %d)", gotID, gotRole)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/admin/users/2/access/networks/1", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, svc, 1, "editor", rbac.RoleEditor))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	assertErrorCode(t, rr, http.StatusForbidden, "FORBIDDEN")
}
