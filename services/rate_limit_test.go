package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medigo-health/medigo_api/model"
	"github.com/medigo-health/medigo_api/shared"
)

// fakeCounterStore mirrors the persistent store's contract in memory: the
// increment is atomic under the mutex and an expired window resets in place.
type fakeCounterStore struct {
	mu       sync.Mutex
	counters map[string]*model.RateLimitCounter

	getErr   error
	incErr   error
	blockErr error

	incCalls int
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{counters: make(map[string]*model.RateLimitCounter)}
}

func counterKey(identifier, identifierType, endpoint string) string {
	return fmt.Sprintf("%s|%s|%s", identifier, identifierType, endpoint)
}

func (f *fakeCounterStore) GetCounter(identifier, identifierType, endpoint string) (*model.RateLimitCounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}

	c, ok := f.counters[counterKey(identifier, identifierType, endpoint)]
	if !ok || !c.WindowEnd.After(time.Now()) {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCounterStore) IncrementCounter(identifier, identifierType, endpoint string, window time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incErr != nil {
		return f.incErr
	}
	f.incCalls++

	now := time.Now()
	key := counterKey(identifier, identifierType, endpoint)
	c, ok := f.counters[key]
	if ok && c.WindowEnd.After(now) {
		c.RequestCount++
		return nil
	}

	f.counters[key] = &model.RateLimitCounter{
		Identifier:     identifier,
		IdentifierType: identifierType,
		Endpoint:       endpoint,
		RequestCount:   1,
		WindowStart:    now,
		WindowEnd:      now.Add(window),
	}
	return nil
}

func (f *fakeCounterStore) BlockCounter(identifier, identifierType, endpoint, reason string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blockErr != nil {
		return f.blockErr
	}

	c, ok := f.counters[counterKey(identifier, identifierType, endpoint)]
	if ok && c.WindowEnd.After(time.Now()) {
		c.IsBlocked = true
		c.BlockReason = reason
		c.WindowEnd = until
	}
	return nil
}

func (f *fakeCounterStore) CleanupCounters() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for k, c := range f.counters {
		if c.WindowEnd.Before(now) {
			delete(f.counters, k)
		}
	}
	return nil
}

func (f *fakeCounterStore) set(c *model.RateLimitCounter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[counterKey(c.Identifier, c.IdentifierType, c.Endpoint)] = c
}

func newTestRateLimitService(store CounterStore) *RateLimitService {
	svc := &RateLimitService{store: store}
	svc.initDefaultConfigs()
	return svc
}

func newLimiterApp(svc *RateLimitService, endpoint string, handler fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: httpErrorHandler})
	fp := &FingerprintService{}
	app.Use(fp.Middleware())
	app.Post("/"+endpoint, svc.Limit(endpoint), handler)
	return app
}

func doPost(t *testing.T, app *fiber.App, path, ip, userAgent string, extraHeaders map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("X-Forwarded-For", ip)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestCheckAllowsUnderThreshold(t *testing.T) {
	store := newFakeCounterStore()
	svc := newTestRateLimitService(store)
	cfg := svc.getConfig("login")

	ax := axis{axisType: shared.AxisIP, identifier: "203.0.113.7", max: cfg.MaxRequests}

	dec, err := svc.Check(ax, cfg, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 5, dec.Remaining)

	require.NoError(t, store.IncrementCounter("203.0.113.7", shared.AxisIP, "login", cfg.Window))
	require.NoError(t, store.IncrementCounter("203.0.113.7", shared.AxisIP, "login", cfg.Window))

	dec, err = svc.Check(ax, cfg, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 3, dec.Remaining)
}

func TestCheckBlocksAtThreshold(t *testing.T) {
	store := newFakeCounterStore()
	svc := newTestRateLimitService(store)
	cfg := svc.getConfig("login")

	for i := 0; i < cfg.MaxRequests; i++ {
		require.NoError(t, store.IncrementCounter("203.0.113.7", shared.AxisIP, "login", cfg.Window))
	}

	ax := axis{axisType: shared.AxisIP, identifier: "203.0.113.7", max: cfg.MaxRequests}
	dec, err := svc.Check(ax, cfg, "203.0.113.7")
	require.NoError(t, err)

	assert.False(t, dec.Allowed)
	assert.True(t, dec.Blocked)
	assert.Equal(t, int(cfg.BlockTime.Seconds()), dec.RetryAfter)

	// The block transition must be persisted.
	c, err := store.GetCounter("203.0.113.7", shared.AxisIP, "login")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, c.IsBlocked)
}

func TestCheckRetryAfterTracksBlockWindow(t *testing.T) {
	store := newFakeCounterStore()
	svc := newTestRateLimitService(store)
	cfg := svc.getConfig("login")

	store.set(&model.RateLimitCounter{
		Identifier:     "203.0.113.7",
		IdentifierType: shared.AxisIP,
		Endpoint:       "login",
		RequestCount:   9,
		IsBlocked:      true,
		WindowStart:    time.Now().Add(-time.Minute),
		WindowEnd:      time.Now().Add(10 * time.Second),
	})

	ax := axis{axisType: shared.AxisIP, identifier: "203.0.113.7", max: cfg.MaxRequests}
	dec, err := svc.Check(ax, cfg, "203.0.113.7")
	require.NoError(t, err)

	assert.False(t, dec.Allowed)
	assert.LessOrEqual(t, dec.RetryAfter, 10)
	assert.GreaterOrEqual(t, dec.RetryAfter, 1)
}

func TestLimitFailOpenOnStoreError(t *testing.T) {
	store := newFakeCounterStore()
	store.getErr = fmt.Errorf("connection refused")
	svc := newTestRateLimitService(store)

	app := newLimiterApp(svc, "login", func(c *fiber.Ctx) error {
		return shared.ResponseOK(c, "ok")
	})

	// A limiter backend outage must not take the endpoint down with it.
	resp := doPost(t, app, "/login", "203.0.113.7", "test-agent", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLimitSilentDropOnIncrementError(t *testing.T) {
	store := newFakeCounterStore()
	store.incErr = fmt.Errorf("connection refused")
	svc := newTestRateLimitService(store)

	app := newLimiterApp(svc, "register", func(c *fiber.Ctx) error {
		return shared.ResponseOK(c, "ok")
	})

	resp := doPost(t, app, "/register", "203.0.113.7", "test-agent", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, store.incCalls)
}

func TestLimitSkipSuccessfulCountsOnlyFailures(t *testing.T) {
	store := newFakeCounterStore()
	svc := newTestRateLimitService(store)

	shouldFail := true
	app := newLimiterApp(svc, "login", func(c *fiber.Ctx) error {
		if shouldFail {
			return shared.NewInvalidCredentials()
		}
		return shared.ResponseOK(c, "ok")
	})

	resp := doPost(t, app, "/login", "203.0.113.7", "test-agent", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	failedCalls := store.incCalls
	assert.Greater(t, failedCalls, 0)

	shouldFail = false
	resp = doPost(t, app, "/login", "203.0.113.7", "test-agent", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, failedCalls, store.incCalls, "successful login must not be counted")
}

func TestLoginBruteForceLockout(t *testing.T) {
	store := newFakeCounterStore()
	svc := newTestRateLimitService(store)
	cfg := svc.getConfig("login")

	app := newLimiterApp(svc, "login", func(c *fiber.Ctx) error {
		return shared.NewInvalidCredentials()
	})

	for i := 0; i < cfg.MaxRequests; i++ {
		resp := doPost(t, app, "/login", "203.0.113.7", "test-agent", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d", i+1)
	}

	resp := doPost(t, app, "/login", "203.0.113.7", "test-agent", nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload struct {
		Error      string `json:"error"`
		Message    string `json:"message"`
		RetryAfter int    `json:"retryAfter"`
		Blocked    bool   `json:"blocked"`
		Timestamp  string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))

	assert.Equal(t, "Rate limit exceeded", payload.Error)
	assert.Equal(t, "Too many login attempts. Please try again later.", payload.Message)
	assert.True(t, payload.Blocked)
	assert.InDelta(t, int(cfg.BlockTime.Seconds()), payload.RetryAfter, 2)
	assert.NotEmpty(t, payload.Timestamp)

	// While blocked, nothing new is counted and the 429 persists.
	before := store.incCalls
	resp = doPost(t, app, "/login", "203.0.113.7", "test-agent", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, before, store.incCalls)
}

func TestDeviceAxisIsolation(t *testing.T) {
	store := newFakeCounterStore()
	svc := newTestRateLimitService(store)
	svc.SetConfig(&ScopeConfig{
		Endpoint:     "pin_check",
		MaxRequests:  100,
		MaxPerDevice: 2,
		Window:       time.Minute,
		BlockTime:    time.Minute,
		IsActive:     true,
	})

	app := newLimiterApp(svc, "pin_check", func(c *fiber.Ctx) error {
		return shared.ResponseOK(c, "ok")
	})

	// Device A exhausts its budget.
	for i := 0; i < 2; i++ {
		resp := doPost(t, app, "/pin_check", "203.0.113.7", "device-a", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := doPost(t, app, "/pin_check", "203.0.113.7", "device-a", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Device B behind the same IP is unaffected.
	resp = doPost(t, app, "/pin_check", "203.0.113.7", "device-b", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSharedIPBlocksBothDevicesBelowDeviceCap(t *testing.T) {
	store := newFakeCounterStore()
	svc := newTestRateLimitService(store)
	svc.SetConfig(&ScopeConfig{
		Endpoint:     "pin_check",
		MaxRequests:  4,
		MaxPerDevice: 3,
		Window:       time.Minute,
		BlockTime:    time.Minute,
		IsActive:     true,
	})

	app := newLimiterApp(svc, "pin_check", func(c *fiber.Ctx) error {
		return shared.ResponseOK(c, "ok")
	})

	// Two devices behind one IP, each within its own device budget, exhaust
	// the IP budget in aggregate.
	for i := 0; i < 2; i++ {
		resp := doPost(t, app, "/pin_check", "203.0.113.7", "device-a", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp = doPost(t, app, "/pin_check", "203.0.113.7", "device-b", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// Both devices now share the IP axis block.
	resp := doPost(t, app, "/pin_check", "203.0.113.7", "device-a", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp = doPost(t, app, "/pin_check", "203.0.113.7", "device-b", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	ipRow, err := store.GetCounter("203.0.113.7", shared.AxisIP, "pin_check")
	require.NoError(t, err)
	require.NotNil(t, ipRow)
	assert.True(t, ipRow.IsBlocked)

	// The per-device counters carry their counts but never transitioned.
	fp := &FingerprintService{}
	for _, ua := range []string{"device-a", "device-b"} {
		devRow, err := store.GetCounter(fp.Fingerprint(ua, "", "", "203.0.113.7"), shared.AxisDevice, "pin_check")
		require.NoError(t, err)
		require.NotNil(t, devRow, "device %s", ua)
		assert.Equal(t, 2, devRow.RequestCount)
		assert.False(t, devRow.IsBlocked, "device %s must not share the IP axis block", ua)
	}
}

func TestUserAxisKeysOnSession(t *testing.T) {
	store := newFakeCounterStore()
	svc := newTestRateLimitService(store)
	svc.SetConfig(&ScopeConfig{
		Endpoint:    "sync",
		MaxRequests: 100,
		MaxPerUser:  2,
		Window:      time.Minute,
		BlockTime:   time.Minute,
		IsActive:    true,
	})

	app := newLimiterApp(svc, "sync", func(c *fiber.Ctx) error {
		return shared.ResponseOK(c, "ok")
	})

	s1 := map[string]string{shared.SessionHeader: "session-1"}
	s2 := map[string]string{shared.SessionHeader: "session-2"}

	for i := 0; i < 2; i++ {
		resp := doPost(t, app, "/sync", "203.0.113.7", "test-agent", s1)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := doPost(t, app, "/sync", "203.0.113.7", "test-agent", s1)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = doPost(t, app, "/sync", "203.0.113.7", "test-agent", s2)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInactiveScopePassesThrough(t *testing.T) {
	store := newFakeCounterStore()
	svc := newTestRateLimitService(store)
	svc.SetConfig(&ScopeConfig{Endpoint: "login", IsActive: false})

	app := newLimiterApp(svc, "login", func(c *fiber.Ctx) error {
		return shared.ResponseOK(c, "ok")
	})

	for i := 0; i < 20; i++ {
		resp := doPost(t, app, "/login", "203.0.113.7", "test-agent", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, 0, store.incCalls)
}

func TestConcurrentIncrementsAllLand(t *testing.T) {
	store := newFakeCounterStore()
	cfg := &ScopeConfig{Window: time.Minute}

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = store.IncrementCounter("203.0.113.7", shared.AxisIP, "login", cfg.Window)
		}()
	}
	wg.Wait()

	c, err := store.GetCounter("203.0.113.7", shared.AxisIP, "login")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, n, c.RequestCount)
}

func TestExpiredWindowResets(t *testing.T) {
	store := newFakeCounterStore()

	store.set(&model.RateLimitCounter{
		Identifier:     "203.0.113.7",
		IdentifierType: shared.AxisIP,
		Endpoint:       "login",
		RequestCount:   5,
		IsBlocked:      true,
		WindowStart:    time.Now().Add(-2 * time.Hour),
		WindowEnd:      time.Now().Add(-time.Hour),
	})

	// The expired row reads as absent and the next increment starts fresh.
	c, err := store.GetCounter("203.0.113.7", shared.AxisIP, "login")
	require.NoError(t, err)
	assert.Nil(t, c)

	require.NoError(t, store.IncrementCounter("203.0.113.7", shared.AxisIP, "login", time.Minute))
	c, err = store.GetCounter("203.0.113.7", shared.AxisIP, "login")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 1, c.RequestCount)
	assert.False(t, c.IsBlocked)
}
