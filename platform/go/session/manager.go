package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// TokenRefreshedEvent is published through the deduplicator after every
	// successful refresh.
	TokenRefreshedEvent = "token-refreshed"

	defaultFreshFor      = 15 * time.Minute
	defaultMinInterval   = 60 * time.Second
	defaultFailureWindow = 5 * time.Minute
	defaultMaxFailures   = 3
	defaultCooldown      = 60 * time.Second
	defaultSettleDelay   = 2 * time.Second
	defaultCallTimeout   = 8 * time.Second
)

// ManagerConfig carries the refresh policy knobs. Zero values fall back to the
// production defaults; tests shrink the durations and inject a fake clock.
type ManagerConfig struct {
	Provider Provider
	Cache    *Cache
	Logger   *zap.Logger

	// FreshFor is how long a cached credential satisfies callers without a
	// provider round trip.
	FreshFor time.Duration
	// MinInterval is the minimum spacing between refresh attempts.
	MinInterval time.Duration
	// FailureWindow is the rolling window over which failures are counted.
	FailureWindow time.Duration
	// MaxFailures within FailureWindow triggers the cooldown.
	MaxFailures int
	// Cooldown is how long calls short-circuit after repeated failures.
	Cooldown time.Duration
	// SettleDelay keeps the last flight's outcome authoritative for a short
	// period so a burst of near-simultaneous duplicate calls cannot
	// re-trigger work.
	SettleDelay time.Duration
	// CallTimeout bounds each provider round trip.
	CallTimeout time.Duration

	// Clock and Sleep are injectable for tests.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

type flightResult struct {
	cred Credential
	err  error
}

// Manager wraps the identity provider's session fetch with deduplication,
// throttling and a failure cooldown. All mutable state lives on the instance;
// two managers never interfere with each other.
type Manager struct {
	provider Provider
	cache    *Cache
	logger   *zap.Logger
	dedup    *Deduplicator

	freshFor      time.Duration
	minInterval   time.Duration
	failureWindow time.Duration
	maxFailures   int
	cooldown      time.Duration
	settleDelay   time.Duration
	callTimeout   time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	group singleflight.Group

	mu            sync.Mutex
	lastAttempt   time.Time
	inFlight      bool
	failures      []time.Time
	cooldownUntil time.Time
	settleUntil   time.Time
	lastResult    flightResult
	subscribers   []func(Credential)
}

// NewManager builds a Manager for one authenticated identity.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Provider == nil {
		panic("session manager requires a provider")
	}
	if cfg.Logger == nil {
		panic("session manager requires a logger")
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}

	cache := cfg.Cache
	if cache == nil {
		cache = NewCacheWithClock(now)
	}

	m := &Manager{
		provider:      cfg.Provider,
		cache:         cache,
		logger:        cfg.Logger,
		freshFor:      cfg.FreshFor,
		minInterval:   cfg.MinInterval,
		failureWindow: cfg.FailureWindow,
		maxFailures:   cfg.MaxFailures,
		cooldown:      cfg.Cooldown,
		settleDelay:   cfg.SettleDelay,
		callTimeout:   cfg.CallTimeout,
		now:           now,
		sleep:         sleep,
	}
	if m.freshFor <= 0 {
		m.freshFor = defaultFreshFor
	}
	if m.minInterval <= 0 {
		m.minInterval = defaultMinInterval
	}
	if m.failureWindow <= 0 {
		m.failureWindow = defaultFailureWindow
	}
	if m.maxFailures <= 0 {
		m.maxFailures = defaultMaxFailures
	}
	if m.cooldown <= 0 {
		m.cooldown = defaultCooldown
	}
	if m.settleDelay <= 0 {
		m.settleDelay = defaultSettleDelay
	}
	if m.callTimeout <= 0 {
		m.callTimeout = defaultCallTimeout
	}
	m.dedup = NewDeduplicatorWithClock(0, 0, now)
	return m
}

// Cache exposes the credential cache owned by this manager.
func (m *Manager) Cache() *Cache {
	return m.cache
}

// Subscribe registers fn to run after successful refreshes. Notifications pass
// through the deduplicator, so listener fan-out cannot cascade into repeated
// refresh attempts.
func (m *Manager) Subscribe(fn func(Credential)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Refresh returns a current credential, collapsing concurrent callers into at
// most one provider round trip. On provider failure the cache is left intact
// and the previous credential, possibly stale, remains usable via Peek.
func (m *Manager) Refresh(ctx context.Context) (Credential, error) {
	// Fresh cached credential satisfies the caller without any coordination.
	if cred, ok := m.cache.Get(); ok {
		if age, known := m.cache.Age(); known && age < m.freshFor {
			return cred, nil
		}
	}

	now := m.now()

	m.mu.Lock()
	if now.Before(m.cooldownUntil) {
		m.mu.Unlock()
		if cred, ok := m.cache.Get(); ok {
			return cred, nil
		}
		return Credential{}, fmt.Errorf("%w: in cooldown after repeated failures", ErrIdentityUnavailable)
	}
	if now.Before(m.settleUntil) {
		res := m.lastResult
		m.mu.Unlock()
		if res.err == nil {
			return res.cred, nil
		}
		if cred, ok := m.cache.Get(); ok {
			return cred, nil
		}
		return Credential{}, res.err
	}
	wait := m.lastAttempt.Add(m.minInterval).Sub(now)
	joinable := m.inFlight
	m.mu.Unlock()

	// The interval gate only spaces out new flights. A caller arriving while
	// one is outstanding goes straight to the group and shares its result.
	if !joinable && wait > 0 {
		if cred, ok := m.cache.Get(); ok {
			return cred, nil
		}
		if err := m.sleep(ctx, wait); err != nil {
			return Credential{}, err
		}
	}

	v, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		return m.refreshOnce(ctx)
	})
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}

func (m *Manager) refreshOnce(ctx context.Context) (Credential, error) {
	m.mu.Lock()
	m.lastAttempt = m.now()
	m.inFlight = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight = false
		m.mu.Unlock()
	}()

	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	user, err := m.provider.CurrentUser(callCtx)
	if err != nil {
		return Credential{}, m.recordFailure("fetch current user", err)
	}

	pair, err := m.provider.SessionTokens(callCtx)
	if err != nil {
		return Credential{}, m.recordFailure("fetch session tokens", err)
	}

	issued := m.now()
	cred := Credential{
		AccessToken:   pair.AccessToken,
		IdentityToken: pair.IdentityToken,
		IssuedAt:      issued,
		ExpiresAt:     pair.ExpiresAt,
		Claims:        cloneClaims(user.Claims),
	}
	m.cache.Put(cred)

	m.mu.Lock()
	m.failures = nil
	m.cooldownUntil = time.Time{}
	m.settleUntil = issued.Add(m.settleDelay)
	m.lastResult = flightResult{cred: cred}
	subscribers := append([]func(Credential){}, m.subscribers...)
	m.mu.Unlock()

	if m.dedup.Allow(TokenRefreshedEvent) {
		for _, fn := range subscribers {
			fn(cred)
		}
	}

	return cred, nil
}

// recordFailure notes a failed attempt, arms the cooldown once the rolling
// window fills up, and translates the provider error.
func (m *Manager) recordFailure(op string, cause error) error {
	now := m.now()
	err := fmt.Errorf("%w: %s: %v", ErrIdentityUnavailable, op, cause)

	m.mu.Lock()
	cutoff := now.Add(-m.failureWindow)
	kept := m.failures[:0]
	for _, t := range m.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.failures = append(kept, now)
	count := len(m.failures)
	if count >= m.maxFailures {
		m.cooldownUntil = now.Add(m.cooldown)
		m.failures = nil
	}
	m.settleUntil = now.Add(m.settleDelay)
	m.lastResult = flightResult{err: err}
	m.mu.Unlock()

	m.logger.Warn("session refresh failed",
		zap.String("op", op),
		zap.Int("recent_failures", count),
		zap.Error(cause),
	)
	return err
}

// SignOut clears the cached credential and resets throttling state.
func (m *Manager) SignOut() {
	m.cache.Clear()
	m.mu.Lock()
	m.failures = nil
	m.cooldownUntil = time.Time{}
	m.settleUntil = time.Time{}
	m.lastResult = flightResult{}
	m.mu.Unlock()
}

func cloneClaims(claims map[string]string) map[string]string {
	if claims == nil {
		return nil
	}
	out := make(map[string]string, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out
}

// Registry hands out one Manager per identity so concurrent requests from the
// same user (tabs, devices) share throttling state.
type Registry struct {
	mu       sync.Mutex
	managers map[string]*Manager
	build    func(uid string) *Manager
}

// NewRegistry builds a registry; build is invoked once per distinct identity.
func NewRegistry(build func(uid string) *Manager) *Registry {
	if build == nil {
		panic("session registry requires a manager builder")
	}
	return &Registry{managers: make(map[string]*Manager), build: build}
}

// ForUser returns the manager for uid, creating it on first use.
func (r *Registry) ForUser(uid string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.managers[uid]; ok {
		return m
	}
	m := r.build(uid)
	r.managers[uid] = m
	return m
}

// Evict drops the manager for uid, releasing its cached credential. Called on
// sign-out so the next sign-in starts clean.
func (r *Registry) Evict(uid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.managers[uid]; ok {
		m.SignOut()
		delete(r.managers, uid)
	}
}
