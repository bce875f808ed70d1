package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/models"
	"github.com/stretchr/testify/require"
)

// fake profile fetcher
type fakeFetcher struct {
	mu      sync.Mutex
	profile *models.Profile
	err     error
	calls   int
}

func (f *fakeFetcher) FetchProfile(ctx context.Context, accessToken string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestResolveCurrentUser_InMemoryWins(t *testing.T) {
	u := testProfile(models.RoleUser)
	// a poisoned snapshot must never be consulted when the in-memory user exists
	got := ResolveCurrentUser(u, []byte(`{"id":999,"role":"Admin"}`))
	require.Same(t, u, got)
}

func TestResolveCurrentUser_SnapshotFallback(t *testing.T) {
	got := ResolveCurrentUser(nil, []byte(`{"id":7,"firstName":"A","role":"Admin"}`))
	require.NotNil(t, got)
	require.Equal(t, int64(7), got.ID)
	require.Equal(t, models.RoleAdmin, got.Role)
}

func TestResolveCurrentUser_CorruptSnapshots(t *testing.T) {
	for _, raw := range []string{"", "not-json", `[1,2,3]`} {
		require.Nil(t, ResolveCurrentUser(nil, []byte(raw)), "input %q", raw)
	}
}

func TestDefaultRoute(t *testing.T) {
	require.Equal(t, RouteLogin, DefaultRoute(nil))
	require.Equal(t, RouteDashboard, DefaultRoute(testProfile(models.RoleUser)))
	require.Equal(t, RouteAdminDashboard, DefaultRoute(testProfile(models.RoleAdmin)))
}

func TestResolver_UnauthenticatedIsIdle(t *testing.T) {
	mgr := NewManager(NewMemoryStore())
	f := &fakeFetcher{profile: testProfile(models.RoleUser)}
	r := NewResolver(mgr, f, time.Second)

	res := r.Resolve(context.Background(), "s1")
	require.False(t, res.IsAuthenticated)
	require.Nil(t, res.User)
	require.False(t, res.IsLoadingUser)
	require.Equal(t, FetchIdle, res.Fetch)
	require.Equal(t, 0, f.callCount())
}

func TestResolver_InMemoryUserSkipsFetch(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(NewMemoryStore())
	require.NoError(t, mgr.LoginSuccess(ctx, "s1", "acc", "ref", testProfile(models.RoleUser)))
	f := &fakeFetcher{profile: testProfile(models.RoleAdmin)}
	r := NewResolver(mgr, f, time.Second)

	res := r.Resolve(ctx, "s1")
	require.True(t, res.IsAuthenticated)
	require.Equal(t, models.RoleUser, res.User.Role)
	require.False(t, res.IsLoadingUser)
	require.Equal(t, 0, f.callCount())
}

func TestResolver_EndToEndPopulate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	// persisted token "abc", no persisted user, no in-memory user
	require.NoError(t, store.WriteTokens(ctx, "s1", "abc", ""))
	mgr := NewManager(store)
	f := &fakeFetcher{profile: testProfile(models.RoleAdmin)}
	r := NewResolver(mgr, f, time.Second)

	res := r.Resolve(ctx, "s1")
	require.True(t, res.IsAuthenticated)
	require.True(t, res.IsLoadingUser)
	require.Equal(t, FetchPending, res.Fetch)

	require.Eventually(t, func() bool {
		res = r.Resolve(ctx, "s1")
		return res.User != nil
	}, time.Second, 5*time.Millisecond)

	require.False(t, res.IsLoadingUser)
	require.Equal(t, models.RoleAdmin, res.User.Role)
	require.Equal(t, RouteAdminDashboard, DefaultRoute(res.User))

	// snapshot persisted to match the fetched profile
	raw, err := store.ReadRawUser(ctx, "s1")
	require.NoError(t, err)
	require.Contains(t, string(raw), `"role":"Admin"`)
}

func TestResolver_SnapshotProvisionalWhileFetchRuns(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.WriteTokens(ctx, "s1", "abc", ""))
	require.NoError(t, store.WriteRawUser(ctx, "s1", []byte(`{"id":5,"role":"User"}`)))
	mgr := NewManager(store)
	f := &fakeFetcher{profile: testProfile(models.RoleAdmin)}
	r := NewResolver(mgr, f, time.Second)

	res := r.Resolve(ctx, "s1")
	require.True(t, res.IsAuthenticated)
	// provisional user from the snapshot, not loading, fetch still issued
	require.NotNil(t, res.User)
	require.Equal(t, int64(5), res.User.ID)
	require.False(t, res.IsLoadingUser)

	require.Eventually(t, func() bool {
		return mgr.Load(ctx, "s1").User != nil
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, models.RoleAdmin, mgr.Load(ctx, "s1").User.Role)
}

func TestResolver_FetchFailureIsDistinctFromPending(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.WriteTokens(ctx, "s1", "abc", ""))
	mgr := NewManager(store)
	f := &fakeFetcher{err: errors.New("boom")}
	r := NewResolver(mgr, f, time.Second)

	r.Resolve(ctx, "s1")
	require.Eventually(t, func() bool {
		return r.Resolve(ctx, "s1").Fetch == FetchFailed
	}, time.Second, 5*time.Millisecond)

	res := r.Resolve(ctx, "s1")
	require.True(t, res.IsAuthenticated)
	require.Nil(t, res.User)
	// no infinite spinner: a failed fetch does not look like a pending one
	require.False(t, res.IsLoadingUser)
	// and the failure is not retried on every navigation
	require.Equal(t, 1, f.callCount())
}

func TestResolver_ForgetAllowsRetryAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.WriteTokens(ctx, "s1", "abc", ""))
	mgr := NewManager(store)
	f := &fakeFetcher{err: errors.New("boom")}
	r := NewResolver(mgr, f, time.Second)

	r.Resolve(ctx, "s1")
	require.Eventually(t, func() bool {
		return r.Resolve(ctx, "s1").Fetch == FetchFailed
	}, time.Second, 5*time.Millisecond)

	f.mu.Lock()
	f.err = nil
	f.profile = testProfile(models.RoleUser)
	f.mu.Unlock()

	r.Forget("s1")
	r.Resolve(ctx, "s1")
	require.Eventually(t, func() bool {
		return mgr.Load(ctx, "s1").User != nil
	}, time.Second, 5*time.Millisecond)
}

func TestResolver_ResolveRacesBackgroundPopulate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.WriteTokens(ctx, "s1", "abc", ""))
	mgr := NewManager(store)
	f := &fakeFetcher{profile: testProfile(models.RoleAdmin)}
	r := NewResolver(mgr, f, time.Second)

	// resolve in a tight loop while the background fetch lands; run with
	// -race to catch any shared-session mutation
	for i := 0; i < 500; i++ {
		res := r.Resolve(ctx, "s1")
		if res.User != nil && res.User.Role == models.RoleAdmin {
			break
		}
	}

	require.Eventually(t, func() bool {
		return r.Resolve(ctx, "s1").User != nil
	}, time.Second, 5*time.Millisecond)
}

func TestResolver_DuplicateCompletionsApplyOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.WriteTokens(ctx, "s1", "abc", ""))
	mgr := NewManager(store)
	f := &fakeFetcher{profile: testProfile(models.RoleAdmin)}
	r := NewResolver(mgr, f, time.Second)

	// two completions of the same fetch racing each other
	r.fetchAndPopulate("s1", "abc")
	r.fetchAndPopulate("s1", "abc")

	sess := mgr.Load(ctx, "s1")
	require.NotNil(t, sess.User)
	require.Equal(t, models.RoleAdmin, sess.User.Role)
	require.Equal(t, 2, f.callCount())
}
