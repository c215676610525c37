package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"canticle/api/internal/auth"
	"canticle/api/internal/authpw"
	"canticle/api/internal/config"
	"canticle/api/internal/rbac"
	"canticle/api/internal/store"
	"canticle/api/internal/usage"
	"canticle/api/internal/util"
)

type fakeStore struct {
	getUserByUsernameFn   func(context.Context, string) (store.User, error)
	createUserFn          func(context.Context, string, string) (store.User, error)
	getUserByIDFn         func(context.Context, int64) (store.User, error)
	updateUserRoleFn      func(context.Context, int64, int) error
	deleteUserFn          func(context.Context, int64) error

	mu          sync.Mutex
	revokedJTIs map[string]struct{}
	listNetworksFn        func(context.Context) ([]store.Network, error)
	getNetworkFn          func(context.Context, int64) (store.Network, error)
	listChurchesFn        func(context.Context, int64) ([]store.Church, error)
	getChurchFn           func(context.Context, int64) (store.Church, error)
	getActivityFn         func(context.Context, int64) (store.ChurchActivity, error)
	listActivitiesByIDsFn func(context.Context, []int64) ([]store.ChurchActivity, error)
	grantNetworkAccessFn  func(context.Context, int64, int64) error
	revokeNetworkAccessFn func(context.Context, int64, int64) error
	grantChurchAccessFn   func(context.Context, int64, int64) error
	grantActivityAccessFn func(context.Context, int64, int64) error
	listSongsFn           func(context.Context, store.SongFilter) ([]store.Song, error)
	getSongFn             func(context.Context, int64) (store.SongDetails, error)
	songExistsFn          func(context.Context, int64) (bool, error)
	createSongFn          func(context.Context, store.Song) (store.Song, error)
	updateSongFn          func(context.Context, store.Song) error
	deleteSongFn          func(context.Context, int64) error
	upsertLyricsFn        func(context.Context, int64, string) error
	upsertResourcesFn     func(context.Context, store.SongResources) error
	upsertThemesFn         func(context.Context, int64, string, []float64) error
	upsertLyricEmbeddingFn func(context.Context, int64, []float64) error
	listThemeEmbeddingsFn  func(context.Context) ([]store.ThemeEmbeddingRow, error)
	listLyricEmbeddingsFn  func(context.Context) ([]store.ThemeEmbeddingRow, error)
	recordUsageFn         func(context.Context, int64, int64, time.Time) (store.SongUsage, error)
	deleteUsageFn         func(context.Context, int64) error
	listSongUsagesFn      func(context.Context, int64, store.UsageFilter) ([]store.SongUsage, error)
	keyCountsFn           func(context.Context, store.UsageFilter, bool) (map[string]int, error)
	typeCountsFn          func(context.Context, store.UsageFilter, bool) (int, int, error)
	activityTotalsFn      func(context.Context, store.UsageFilter) ([]store.ActivityTotalsRow, error)
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	if f.getUserByUsernameFn != nil {
		return f.getUserByUsernameFn(ctx, username)
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) CreateUser(ctx context.Context, username, passwordHash string) (store.User, error) {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, username, passwordHash)
	}
	return store.User{ID: 1, Username: username, PasswordHash: passwordHash}, nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) UpdateUserRole(ctx context.Context, id int64, role int) error {
	if f.updateUserRoleFn != nil {
		return f.updateUserRoleFn(ctx, id, role)
	}
	return nil
}

func (f *fakeStore) DeleteUser(ctx context.Context, id int64) error {
	if f.deleteUserFn != nil {
		return f.deleteUserFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revokedJTIs == nil {
		f.revokedJTIs = make(map[string]struct{})
	}
	f.revokedJTIs[jti] = struct{}{}
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, revoked := f.revokedJTIs[jti]
	return revoked, nil
}

func (f *fakeStore) ListNetworks(ctx context.Context) ([]store.Network, error) {
	if f.listNetworksFn != nil {
		return f.listNetworksFn(ctx)
	}
	return nil, nil
}

func (f *fakeStore) GetNetwork(ctx context.Context, id int64) (store.Network, error) {
	if f.getNetworkFn != nil {
		return f.getNetworkFn(ctx, id)
	}
	return store.Network{}, store.ErrNotFound
}

func (f *fakeStore) ListChurchesByNetwork(ctx context.Context, networkID int64) ([]store.Church, error) {
	if f.listChurchesFn != nil {
		return f.listChurchesFn(ctx, networkID)
	}
	return nil, nil
}

func (f *fakeStore) GetChurch(ctx context.Context, id int64) (store.Church, error) {
	if f.getChurchFn != nil {
		return f.getChurchFn(ctx, id)
	}
	return store.Church{}, store.ErrNotFound
}

func (f *fakeStore) GetActivity(ctx context.Context, id int64) (store.ChurchActivity, error) {
	if f.getActivityFn != nil {
		return f.getActivityFn(ctx, id)
	}
	return store.ChurchActivity{}, store.ErrNotFound
}

func (f *fakeStore) ListActivitiesByIDs(ctx context.Context, ids []int64) ([]store.ChurchActivity, error) {
	if f.listActivitiesByIDsFn != nil {
		return f.listActivitiesByIDsFn(ctx, ids)
	}
	return nil, nil
}

func (f *fakeStore) GrantNetworkAccess(ctx context.Context, userID, networkID int64) error {
	if f.grantNetworkAccessFn != nil {
		return f.grantNetworkAccessFn(ctx, userID, networkID)
	}
	return nil
}

func (f *fakeStore) RevokeNetworkAccess(ctx context.Context, userID, networkID int64) error {
	if f.revokeNetworkAccessFn != nil {
		return f.revokeNetworkAccessFn(ctx, userID, networkID)
	}
	return nil
}

func (f *fakeStore) GrantChurchAccess(ctx context.Context, userID, churchID int64) error {
	if f.grantChurchAccessFn != nil {
		return f.grantChurchAccessFn(ctx, userID, churchID)
	}
	return nil
}

func (f *fakeStore) RevokeChurchAccess(context.Context, int64, int64) error { return nil }

func (f *fakeStore) GrantActivityAccess(ctx context.Context, userID, activityID int64) error {
	if f.grantActivityAccessFn != nil {
		return f.grantActivityAccessFn(ctx, userID, activityID)
	}
	return nil
}

func (f *fakeStore) RevokeActivityAccess(context.Context, int64, int64) error { return nil }

func (f *fakeStore) ListSongs(ctx context.Context, filter store.SongFilter) ([]store.Song, error) {
	if f.listSongsFn != nil {
		return f.listSongsFn(ctx, filter)
	}
	return nil, nil
}

func (f *fakeStore) GetSong(ctx context.Context, id int64) (store.SongDetails, error) {
	if f.getSongFn != nil {
		return f.getSongFn(ctx, id)
	}
	return store.SongDetails{}, store.ErrNotFound
}

func (f *fakeStore) SongExists(ctx context.Context, id int64) (bool, error) {
	if f.songExistsFn != nil {
		return f.songExistsFn(ctx, id)
	}
	return false, nil
}

func (f *fakeStore) CreateSong(ctx context.Context, song store.Song) (store.Song, error) {
	if f.createSongFn != nil {
		return f.createSongFn(ctx, song)
	}
	song.ID = 1
	return song, nil
}

func (f *fakeStore) UpdateSong(ctx context.Context, song store.Song) error {
	if f.updateSongFn != nil {
		return f.updateSongFn(ctx, song)
	}
	return nil
}

func (f *fakeStore) DeleteSong(ctx context.Context, id int64) error {
	if f.deleteSongFn != nil {
		return f.deleteSongFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) UpsertLyrics(ctx context.Context, songID int64, content string) error {
	if f.upsertLyricsFn != nil {
		return f.upsertLyricsFn(ctx, songID, content)
	}
	return nil
}

func (f *fakeStore) UpsertResources(ctx context.Context, res store.SongResources) error {
	if f.upsertResourcesFn != nil {
		return f.upsertResourcesFn(ctx, res)
	}
	return nil
}

func (f *fakeStore) UpsertThemes(ctx context.Context, songID int64, content string, embedding []float64) error {
	if f.upsertThemesFn != nil {
		return f.upsertThemesFn(ctx, songID, content, embedding)
	}
	return nil
}

func (f *fakeStore) UpsertLyricEmbedding(ctx context.Context, songID int64, embedding []float64) error {
	if f.upsertLyricEmbeddingFn != nil {
		return f.upsertLyricEmbeddingFn(ctx, songID, embedding)
	}
	return nil
}

func (f *fakeStore) ListThemeEmbeddings(ctx context.Context) ([]store.ThemeEmbeddingRow, error) {
	if f.listThemeEmbeddingsFn != nil {
		return f.listThemeEmbeddingsFn(ctx)
	}
	return nil, nil
}

func (f *fakeStore) ListLyricEmbeddings(ctx context.Context) ([]store.ThemeEmbeddingRow, error) {
	if f.listLyricEmbeddingsFn != nil {
		return f.listLyricEmbeddingsFn(ctx)
	}
	return nil, nil
}

func (f *fakeStore) RecordUsage(ctx context.Context, songID, activityID int64, usedDate time.Time) (store.SongUsage, error) {
	if f.recordUsageFn != nil {
		return f.recordUsageFn(ctx, songID, activityID, usedDate)
	}
	return store.SongUsage{ID: 1, SongID: songID, ChurchActivityID: activityID, UsedDate: usedDate}, nil
}

func (f *fakeStore) DeleteUsage(ctx context.Context, usageID int64) error {
	if f.deleteUsageFn != nil {
		return f.deleteUsageFn(ctx, usageID)
	}
	return nil
}

func (f *fakeStore) ListSongUsages(ctx context.Context, songID int64, filter store.UsageFilter) ([]store.SongUsage, error) {
	if f.listSongUsagesFn != nil {
		return f.listSongUsagesFn(ctx, songID, filter)
	}
	return nil, nil
}

func (f *fakeStore) KeyCounts(ctx context.Context, filter store.UsageFilter, unique bool) (map[string]int, error) {
	if f.keyCountsFn != nil {
		return f.keyCountsFn(ctx, filter, unique)
	}
	return map[string]int{}, nil
}

func (f *fakeStore) TypeCounts(ctx context.Context, filter store.UsageFilter, unique bool) (int, int, error) {
	if f.typeCountsFn != nil {
		return f.typeCountsFn(ctx, filter, unique)
	}
	return 0, 0, nil
}

func (f *fakeStore) ActivityTotals(ctx context.Context, filter store.UsageFilter) ([]store.ActivityTotalsRow, error) {
	if f.activityTotalsFn != nil {
		return f.activityTotalsFn(ctx, filter)
	}
	return nil, nil
}

// memSessions is an in-memory refresh session store.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]store.User
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]store.User)}
}

func (m *memSessions) SaveRefreshSession(_ context.Context, tokenHash string, user store.User, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[tokenHash] = user
	return nil
}

func (m *memSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.sessions[tokenHash]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenHash)
	return nil
}

type fakeResolver struct {
	allowed map[int64]struct{}
	err     error
}

func (f *fakeResolver) AllowedActivityIDs(context.Context, int64) (map[int64]struct{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.allowed == nil {
		return map[int64]struct{}{}, nil
	}
	return f.allowed, nil
}

type fakeSummarizer struct {
	fn func(context.Context, usage.SummaryRequest) ([]usage.SongSummary, error)
}

func (f *fakeSummarizer) Summarize(ctx context.Context, req usage.SummaryRequest) ([]usage.SongSummary, error) {
	if f.fn != nil {
		return f.fn(ctx, req)
	}
	return nil, nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			TokenSecret: "test-secret",
			AccessTTL:   time.Hour,
			RefreshTTL:  24 * time.Hour,
		},
		store:      fs,
		sessions:   newMemSessions(),
		passwords:  authpw.NewService(fs),
		resolver:   &fakeResolver{},
		summarizer: &fakeSummarizer{},
	}
}

func testToken(t *testing.T, svc *Service, userID int64, username string, role rbac.Role) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(svc.cfg.TokenSecret), auth.Claims{
		Sub:      userID,
		Username: username,
		Role:     int(role),
		JTI:      util.NewID("jti"),
		Exp:      time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestRefreshRotatesToken(t *testing.T) {
	user := store.User{ID: 7, Username: "avery", Role: int(rbac.RoleNormal)}
	svc := newTestService(&fakeStore{})
	ctx := context.Background()

	session, err := svc.issueSession(ctx, user)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	rotated, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatalf("expected a new refresh token")
	}

	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatalf("expected old refresh token to be rejected after rotation")
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	user := store.User{ID: 7, Username: "avery", Role: int(rbac.RoleNormal)}
	svc := newTestService(&fakeStore{})
	ctx := context.Background()

	session, err := svc.issueSession(ctx, user)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	if err := svc.Logout(ctx, session, session.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatalf("expected refresh to fail after logout")
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	user := store.User{ID: 7, Username: "avery", Role: int(rbac.RoleNormal)}
	svc := newTestService(&fakeStore{})
	ctx := context.Background()

	session, err := svc.issueSession(ctx, user)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, session.Token); err != nil {
		t.Fatalf("session from token before logout: %v", err)
	}

	if err := svc.Logout(ctx, session, session.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, session.Token); err == nil {
		t.Fatalf("expected access token to be rejected after logout")
	}
}

func TestGetUserCrossNetworkAdminForbidden(t *testing.T) {
	networkA, networkB := int64(1), int64(2)
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id int64) (store.User, error) {
			switch id {
			case 1:
				return store.User{ID: 1, Username: "admin", Role: int(rbac.RoleAdmin), NetworkID: &networkA}, nil
			case 2:
				return store.User{ID: 2, Username: "other", Role: int(rbac.RoleNormal), NetworkID: &networkB}, nil
			}
			return store.User{}, store.ErrNotFound
		},
	}
	svc := newTestService(fs)
	session := Session{UserID: 1, Username: "admin", Role: rbac.RoleAdmin}

	_, err := svc.GetUser(context.Background(), session, 2)
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("expected 403 for cross-network admin, got %v", err)
	}
}

func TestRecordUsageRequiresAllowedActivity(t *testing.T) {
	fs := &fakeStore{
		songExistsFn: func(context.Context, int64) (bool, error) { return true, nil },
	}
	svc := newTestService(fs)
	svc.resolver = &fakeResolver{allowed: map[int64]struct{}{5: {}}}
	session := Session{UserID: 1, Role: rbac.RoleEditor}

	_, err := svc.RecordUsage(context.Background(), session, 1, 9, time.Now())
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("expected 403 for unauthorized activity, got %v", err)
	}

	if _, err := svc.RecordUsage(context.Background(), session, 1, 5, time.Now()); err != nil {
		t.Fatalf("expected allowed activity to record, got %v", err)
	}
}

func asDomainError(err error, target **DomainError) bool {
	if err == nil {
		return false
	}
	de, ok := err.(*DomainError)
	if !ok {
		return false
	}
	*target = de
	return true
}
