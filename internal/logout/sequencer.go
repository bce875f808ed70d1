// Package logout implements the comprehensive logout teardown: an ordered,
// best-effort sweep of every place session or cache data may live, followed
// by navigation to the configured redirect target.
package logout

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/respcache"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/session"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/tokens"
	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/uistate"
	"github.com/ledgerline/ledgerline/backend/session-gateway/pkg/logger"
	"github.com/ledgerline/ledgerline/backend/session-gateway/pkg/metrics"
)

// Step is one named teardown action. Steps run strictly in order; a failing
// or panicking step is logged and counted but never stops later steps.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// BucketPurger clears the named cache buckets. Implemented by
// storage.CacheBuckets; nil means the feature is off.
type BucketPurger interface {
	PurgeCacheBuckets(ctx context.Context) error
}

// CollectionDropper drops the session's structured cache collections.
// Implemented by structcache.Store.
type CollectionDropper interface {
	DropSessionCollections(ctx context.Context, sid string) error
}

// Request carries the per-call inputs of a logout.
type Request struct {
	SID         string
	AccessToken string
	// HardNavigation selects a full-page redirect over a client-side route
	// change.
	HardNavigation bool
	// ExpireCookies expires every cookie visible on the active response.
	// Supplied by the HTTP handler; may be nil.
	ExpireCookies func() error
}

// Navigation is the final hand-off to the router.
type Navigation struct {
	Redirect string `json:"redirect"`
	Hard     bool   `json:"hard"`
}

// Sequencer owns the ordered teardown. Zero-value fields are tolerated:
// every step checks its own dependency and a missing backend is a no-op,
// never a failure.
type Sequencer struct {
	Cache       *respcache.Cache
	UIState     *uistate.Store
	Manager     *session.Manager
	Resolver    *session.Resolver
	Buckets     BucketPurger
	StructCache CollectionDropper

	RedirectURL string
	NavDelay    time.Duration
	// Debug enables the GC hint step (development builds only).
	Debug bool
}

// Logout runs the full teardown and returns the navigation outcome. The
// sequence is wrapped so that even an unexpected panic outside the per-step
// guards still yields the final navigation: logout must never leave the
// visitor stuck on a protected page.
func (s *Sequencer) Logout(ctx context.Context, req Request) (nav Navigation) {
	nav = Navigation{Redirect: s.RedirectURL, Hard: req.HardNavigation}

	defer func() { s.finish(recover()) }()

	runSteps(ctx, s.steps(req))
	return nav
}

// finish logs a teardown panic and waits out the navigation grace period so
// the asynchronous bucket and collection purges can progress before the
// router tears the page down. Deferred by Logout, so the grace period holds
// on the panicking path too.
func (s *Sequencer) finish(r interface{}) {
	if r != nil {
		logger.Errorf("logout: unexpected panic, navigating anyway: %v", r)
	}
	time.Sleep(s.NavDelay)
}

// QuickLogout is the minimal-dependency variant: clear the session stores
// and navigate immediately. No fault tolerance; the first error is returned.
func (s *Sequencer) QuickLogout(ctx context.Context, req Request) (Navigation, error) {
	nav := Navigation{Redirect: s.RedirectURL, Hard: req.HardNavigation}
	if err := s.clearSession(ctx, req); err != nil {
		return nav, err
	}
	return nav, nil
}

// steps builds the ordered teardown for one request.
func (s *Sequencer) steps(req Request) []Step {
	return []Step{
		{Name: "reset_response_cache", Run: func(ctx context.Context) error {
			if s.Cache != nil {
				s.Cache.Reset(req.SID)
			}
			return nil
		}},
		{Name: "reset_ui_state", Run: func(ctx context.Context) error {
			if s.UIState != nil {
				s.UIState.Reset(req.SID)
			}
			return nil
		}},
		{Name: "clear_session_stores", Run: func(ctx context.Context) error {
			return s.clearSession(ctx, req)
		}},
		{Name: "purge_cache_buckets", Run: func(ctx context.Context) error {
			if s.Buckets == nil {
				return nil
			}
			return s.Buckets.PurgeCacheBuckets(ctx)
		}},
		{Name: "drop_cache_collections", Run: func(ctx context.Context) error {
			if s.StructCache == nil {
				return nil
			}
			return s.StructCache.DropSessionCollections(ctx, req.SID)
		}},
		{Name: "expire_cookies", Run: func(ctx context.Context) error {
			if req.ExpireCookies == nil {
				return nil
			}
			return req.ExpireCookies()
		}},
		{Name: "gc_hint", Run: func(ctx context.Context) error {
			if s.Debug {
				runtime.GC()
			}
			return nil
		}},
	}
}

// clearSession blacklists the current access token, then clears the
// in-memory Session, the persisted keys and the session-scoped store
// together. Shared by the full and quick variants.
func (s *Sequencer) clearSession(ctx context.Context, req Request) error {
	if req.AccessToken != "" {
		if exp, err := tokens.ParseExpiry(req.AccessToken); err == nil {
			if ttl := time.Until(exp); ttl > 0 {
				if err := session.BlacklistAccessToken(ctx, req.AccessToken, ttl); err != nil {
					logger.Warnf("logout: access token blacklist failed: %v", err)
				}
			}
		}
	}
	if s.Resolver != nil {
		s.Resolver.Forget(req.SID)
	}
	if s.Manager == nil {
		return nil
	}
	if err := s.Manager.Clear(ctx, req.SID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// runSteps executes the steps in program order with a catch-log-continue
// guard around each one. Each step completes (including any panic recovery)
// before the next begins.
func runSteps(ctx context.Context, steps []Step) {
	for _, st := range steps {
		runStep(ctx, st)
	}
}

func runStep(ctx context.Context, st Step) {
	defer func() {
		if r := recover(); r != nil {
			metrics.LogoutStepFailures.WithLabelValues(st.Name).Inc()
			logger.Errorf("logout: step %s panicked: %v", st.Name, r)
		}
	}()
	if err := st.Run(ctx); err != nil {
		metrics.LogoutStepFailures.WithLabelValues(st.Name).Inc()
		logger.Warnf("logout: step %s failed: %v", st.Name, err)
	}
}
