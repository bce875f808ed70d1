package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/models"
	"github.com/ledgerline/ledgerline/backend/session-gateway/pkg/logger"
	"github.com/ledgerline/ledgerline/backend/session-gateway/pkg/metrics"
)

// FetchState describes the profile fetch for a session. A failed fetch is a
// distinct state (not conflated with pending) so gates can redirect to login
// instead of showing an indefinite loading indicator.
type FetchState int

const (
	FetchIdle FetchState = iota
	FetchPending
	FetchDone
	FetchFailed
)

func (f FetchState) String() string {
	switch f {
	case FetchPending:
		return "pending"
	case FetchDone:
		return "done"
	case FetchFailed:
		return "failed"
	}
	return "idle"
}

// Resolution is the triple the route table and the guard chain consume.
// Computed fresh on every call, never cached between navigations.
type Resolution struct {
	IsAuthenticated bool
	User            *models.Profile
	IsLoadingUser   bool
	Fetch           FetchState
}

// ResolveCurrentUser applies the shared fallback order used by both the
// resolver and the role gate: the in-memory user wins; otherwise a parseable
// persisted snapshot is used provisionally; otherwise nil. A corrupt snapshot
// is logged and treated as absent, never an error.
func ResolveCurrentUser(inMemory *models.Profile, rawSnapshot []byte) *models.Profile {
	if inMemory != nil {
		return inMemory
	}
	if len(rawSnapshot) == 0 {
		return nil
	}
	var p models.Profile
	if err := json.Unmarshal(rawSnapshot, &p); err != nil {
		logger.Warnf("session: ignoring corrupt profile snapshot: %v", err)
		return nil
	}
	return &p
}

// ProfileFetcher retrieves the authenticated user's profile from the
// upstream billing API. Implemented by upstream.Client.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accessToken string) (*models.Profile, error)
}

// Resolver produces the (isAuthenticated, user, isLoadingUser) triple and
// triggers the profile fetch when it is the only way to establish identity.
type Resolver struct {
	mgr          *Manager
	fetcher      ProfileFetcher
	fetchTimeout time.Duration

	stmu    sync.Mutex
	pending map[string]bool
	failed  map[string]bool
}

func NewResolver(mgr *Manager, fetcher ProfileFetcher, fetchTimeout time.Duration) *Resolver {
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	return &Resolver{
		mgr:          mgr,
		fetcher:      fetcher,
		fetchTimeout: fetchTimeout,
		pending:      make(map[string]bool),
		failed:       make(map[string]bool),
	}
}

// Resolve computes the Resolution for sid. When the session is authenticated
// and no in-memory user exists, a profile fetch is started in the background
// (at most one in flight per session); the persisted snapshot is consulted
// only in that case, as a provisional user for display.
func (r *Resolver) Resolve(ctx context.Context, sid string) Resolution {
	sess := r.mgr.Load(ctx, sid)
	if !sess.IsAuthenticated() {
		return Resolution{}
	}

	if sess.User != nil {
		// fetch suspend condition: skip when the user is already known
		return Resolution{IsAuthenticated: true, User: sess.User, Fetch: r.fetchState(sid)}
	}

	state := r.maybeStartFetch(sid, sess.AccessToken)
	user := ResolveCurrentUser(nil, r.mgr.RawSnapshot(ctx, sid))
	return Resolution{
		IsAuthenticated: true,
		User:            user,
		IsLoadingUser:   user == nil && state == FetchPending,
		Fetch:           state,
	}
}

func (r *Resolver) fetchState(sid string) FetchState {
	r.stmu.Lock()
	defer r.stmu.Unlock()
	switch {
	case r.pending[sid]:
		return FetchPending
	case r.failed[sid]:
		return FetchFailed
	}
	return FetchIdle
}

// maybeStartFetch starts a background profile fetch for sid unless one is
// already in flight or the last one failed. Returns the resulting state.
func (r *Resolver) maybeStartFetch(sid, accessToken string) FetchState {
	r.stmu.Lock()
	if r.pending[sid] {
		r.stmu.Unlock()
		return FetchPending
	}
	if r.failed[sid] {
		r.stmu.Unlock()
		return FetchFailed
	}
	r.pending[sid] = true
	r.stmu.Unlock()

	go r.fetchAndPopulate(sid, accessToken)
	return FetchPending
}

// fetchAndPopulate performs one profile fetch and applies the populate
// transition. Safe to run multiple times: Manager.PopulateProfile only
// applies when the in-memory user is still absent.
func (r *Resolver) fetchAndPopulate(sid, accessToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.fetchTimeout)
	defer cancel()

	p, err := r.fetcher.FetchProfile(ctx, accessToken)

	r.stmu.Lock()
	delete(r.pending, sid)
	if err != nil {
		r.failed[sid] = true
	} else {
		delete(r.failed, sid)
	}
	r.stmu.Unlock()

	if err != nil {
		metrics.ProfileFetches.WithLabelValues("error").Inc()
		logger.Warnf("session: profile fetch failed for %s: %v", sid, err)
		return
	}
	metrics.ProfileFetches.WithLabelValues("ok").Inc()

	applied, err := r.mgr.PopulateProfile(context.Background(), sid, p)
	if err != nil {
		logger.Errorf("session: profile populate failed for %s: %v", sid, err)
		return
	}
	if !applied {
		logger.Debugf("session: profile populate skipped for %s (user already set)", sid)
	}
}

// Forget drops the resolver's fetch bookkeeping for sid. Called on logout and
// on a fresh login so a stale failure does not outlive the session.
func (r *Resolver) Forget(sid string) {
	r.stmu.Lock()
	defer r.stmu.Unlock()
	delete(r.pending, sid)
	delete(r.failed, sid)
}
