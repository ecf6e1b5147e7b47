package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock is a manually advanced clock shared by manager, cache and sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

// fakeProvider counts round trips and can be switched into failure mode.
type fakeProvider struct {
	mu       sync.Mutex
	calls    int32
	fail     bool
	failErr  error
	clock    *fakeClock
	tokenTTL time.Duration
}

func newFakeProvider(clock *fakeClock) *fakeProvider {
	return &fakeProvider{clock: clock, tokenTTL: time.Hour, failErr: errors.New("provider down")}
}

func (p *fakeProvider) setFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}

func (p *fakeProvider) roundTrips() int32 {
	return atomic.LoadInt32(&p.calls)
}

func (p *fakeProvider) CurrentUser(ctx context.Context) (User, error) {
	atomic.AddInt32(&p.calls, 1)
	p.mu.Lock()
	fail := p.fail
	p.mu.Unlock()
	if fail {
		return User{}, p.failErr
	}
	return User{ID: "user-1", Email: "owner@example.com", Claims: map[string]string{"tenant": "t-1"}}, nil
}

func (p *fakeProvider) SessionTokens(ctx context.Context) (TokenPair, error) {
	p.mu.Lock()
	fail := p.fail
	p.mu.Unlock()
	if fail {
		return TokenPair{}, p.failErr
	}
	now := p.clock.Now()
	return TokenPair{
		AccessToken:   "access-" + now.Format(time.RFC3339Nano),
		IdentityToken: "identity-" + now.Format(time.RFC3339Nano),
		ExpiresAt:     now.Add(p.tokenTTL),
	}, nil
}

func newTestManager(t *testing.T, clock *fakeClock, provider *fakeProvider) *Manager {
	t.Helper()
	return NewManager(ManagerConfig{
		Provider: provider,
		Cache:    NewCacheWithClock(clock.Now),
		Logger:   zap.NewNop(),
		Clock:    clock.Now,
		Sleep:    clock.Sleep,
	})
}

func TestRefreshCollapsesConcurrentCallers(t *testing.T) {
	clock := newFakeClock()
	provider := newFakeProvider(clock)
	mgr := newTestManager(t, clock, provider)

	const callers = 25
	creds := make([]Credential, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			creds[i], errs[i] = mgr.Refresh(context.Background())
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, provider.roundTrips(), "concurrent callers must share one round trip")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, creds[0].AccessToken, creds[i].AccessToken)
	}
}

// blockingProvider parks CurrentUser until released so a test can hold a
// flight open while other callers arrive.
type blockingProvider struct {
	*fakeProvider
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingProvider(clock *fakeClock) *blockingProvider {
	return &blockingProvider{
		fakeProvider: newFakeProvider(clock),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (p *blockingProvider) CurrentUser(ctx context.Context) (User, error) {
	p.once.Do(func() { close(p.entered) })
	<-p.release
	return p.fakeProvider.CurrentUser(ctx)
}

func TestRefreshMidFlightCallerJoinsOutstandingFlight(t *testing.T) {
	clock := newFakeClock()
	provider := newBlockingProvider(clock)

	var sleepMu sync.Mutex
	var slept []time.Duration
	mgr := NewManager(ManagerConfig{
		Provider: provider,
		Cache:    NewCacheWithClock(clock.Now),
		Logger:   zap.NewNop(),
		Clock:    clock.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleepMu.Lock()
			slept = append(slept, d)
			sleepMu.Unlock()
			return clock.Sleep(ctx, d)
		},
	})

	creds := make([]Credential, 2)
	errs := make([]error, 2)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		creds[0], errs[0] = mgr.Refresh(context.Background())
	}()

	// The flight is now parked inside the provider; a second caller must not
	// wait out the attempt interval, it joins the outstanding flight.
	<-provider.entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		creds[1], errs[1] = mgr.Refresh(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	close(provider.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, creds[0].AccessToken, creds[1].AccessToken)
	require.EqualValues(t, 1, provider.roundTrips(), "both callers share the one round trip")

	sleepMu.Lock()
	defer sleepMu.Unlock()
	require.Empty(t, slept, "mid-flight caller must not sleep out the attempt interval")
}

func TestRefreshServesFreshCacheWithoutRoundTrip(t *testing.T) {
	clock := newFakeClock()
	provider := newFakeProvider(clock)
	mgr := newTestManager(t, clock, provider)

	first, err := mgr.Refresh(context.Background())
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)

	second, err := mgr.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.AccessToken, second.AccessToken)
	require.EqualValues(t, 1, provider.roundTrips())
}

func TestRefreshHonorsMinIntervalWhenCacheStale(t *testing.T) {
	clock := newFakeClock()
	provider := newFakeProvider(clock)
	provider.tokenTTL = 30 * time.Second // expires before the next attempt window

	mgr := newTestManager(t, clock, provider)

	_, err := mgr.Refresh(context.Background())
	require.NoError(t, err)

	// Cache expired, but still inside the 60s attempt interval: the caller
	// waits out the remainder and then gets a real refresh.
	clock.Advance(31 * time.Second)

	_, err = mgr.Refresh(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, provider.roundTrips())
}

func TestCooldownShortCircuitsAfterRepeatedFailures(t *testing.T) {
	clock := newFakeClock()
	provider := newFakeProvider(clock)
	provider.setFail(true)
	mgr := newTestManager(t, clock, provider)

	for i := 0; i < 3; i++ {
		if i > 0 {
			// step past min interval and settle so each attempt really fires
			clock.Advance(90 * time.Second)
		}
		_, err := mgr.Refresh(context.Background())
		require.ErrorIs(t, err, ErrIdentityUnavailable)
	}

	trips := provider.roundTrips()

	// Fourth call lands inside the cooldown: no round trip, definitive error.
	_, err := mgr.Refresh(context.Background())
	require.ErrorIs(t, err, ErrIdentityUnavailable)
	require.Equal(t, trips, provider.roundTrips())
}

func TestCooldownReturnsCachedCredentialWhenPresent(t *testing.T) {
	clock := newFakeClock()
	provider := newFakeProvider(clock)
	mgr := newTestManager(t, clock, provider)

	good, err := mgr.Refresh(context.Background())
	require.NoError(t, err)

	provider.setFail(true)
	clock.Advance(16 * time.Minute) // past freshness so calls reach the provider
	for i := 0; i < 3; i++ {
		if i > 0 {
			clock.Advance(90 * time.Second)
		}
		_, err := mgr.Refresh(context.Background())
		require.ErrorIs(t, err, ErrIdentityUnavailable)
	}
	trips := provider.roundTrips()

	// Inside the cooldown with a still-valid credential: serve it, no network.
	cred, err := mgr.Refresh(context.Background())
	require.NoError(t, err, "cooldown must degrade to last-known-good data")
	require.Equal(t, good.AccessToken, cred.AccessToken)
	require.Equal(t, trips, provider.roundTrips())
}

func TestFailureLeavesCacheIntact(t *testing.T) {
	clock := newFakeClock()
	provider := newFakeProvider(clock)
	mgr := newTestManager(t, clock, provider)

	good, err := mgr.Refresh(context.Background())
	require.NoError(t, err)

	provider.setFail(true)
	clock.Advance(16 * time.Minute)

	_, err = mgr.Refresh(context.Background())
	require.ErrorIs(t, err, ErrIdentityUnavailable)

	kept, ok := mgr.Cache().Peek()
	require.True(t, ok)
	require.Equal(t, good.AccessToken, kept.AccessToken)
}

func TestSettleWindowAbsorbsDuplicateBurst(t *testing.T) {
	clock := newFakeClock()
	provider := newFakeProvider(clock)
	provider.tokenTTL = time.Millisecond // cache expires immediately
	mgr := newTestManager(t, clock, provider)

	_, err := mgr.Refresh(context.Background())
	require.NoError(t, err)
	trips := provider.roundTrips()

	// Cache already expired, but the flight just finished: duplicates inside
	// the settle window reuse its result.
	clock.Advance(10 * time.Millisecond)
	cred, err := mgr.Refresh(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, cred.AccessToken)
	require.Equal(t, trips, provider.roundTrips())
}

func TestSubscribersNotifiedOncePerRefreshBurst(t *testing.T) {
	clock := newFakeClock()
	provider := newFakeProvider(clock)
	mgr := newTestManager(t, clock, provider)

	var notified int32
	mgr.Subscribe(func(Credential) { atomic.AddInt32(&notified, 1) })
	mgr.Subscribe(func(Credential) { atomic.AddInt32(&notified, 1) })

	_, err := mgr.Refresh(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&notified), "both subscribers hear the first event")
}

func TestSignOutClearsState(t *testing.T) {
	clock := newFakeClock()
	provider := newFakeProvider(clock)
	mgr := newTestManager(t, clock, provider)

	_, err := mgr.Refresh(context.Background())
	require.NoError(t, err)

	mgr.SignOut()
	_, ok := mgr.Cache().Peek()
	require.False(t, ok)
}

func TestRegistrySharesManagerPerIdentity(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(func(uid string) *Manager {
		return newTestManager(t, clock, newFakeProvider(clock))
	})

	a := reg.ForUser("alice")
	require.Same(t, a, reg.ForUser("alice"))
	require.NotSame(t, a, reg.ForUser("bob"))

	reg.Evict("alice")
	require.NotSame(t, a, reg.ForUser("alice"))
}
