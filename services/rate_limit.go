package services

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/medigo-health/medigo_api/dto"
	"github.com/medigo-health/medigo_api/model"
	"github.com/medigo-health/medigo_api/shared"
)

// CounterStore is the persistence contract of the limiter. Increment must
// be a single atomic insert-or-increment; the engine never does
// read-then-write counting on its own.
type CounterStore interface {
	GetCounter(identifier, identifierType, endpoint string) (*model.RateLimitCounter, error)
	IncrementCounter(identifier, identifierType, endpoint string, window time.Duration) error
	BlockCounter(identifier, identifierType, endpoint, reason string, until time.Time) error
	CleanupCounters() error
}

type auditSink interface {
	Log(category, actorID, clientIP string, metadata map[string]interface{})
}

// ScopeConfig configures one named endpoint scope. MaxRequests is the IP
// axis; a zero MaxPerDevice or MaxPerUser disables that axis for the scope.
type ScopeConfig struct {
	Endpoint       string
	MaxRequests    int
	MaxPerDevice   int
	MaxPerUser     int
	Window         time.Duration
	BlockTime      time.Duration
	SkipSuccessful bool
	SkipFailed     bool
	Description    string
	IsActive       bool
}

type RateLimitService struct {
	context.DefaultService

	configs map[string]*ScopeConfig
	mutex   sync.RWMutex

	store CounterStore
	audit auditSink

	sqlSvc *PostgresService
}

const RATE_LIMIT_SVC = "rate_limit_svc"

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *context.Context) error {
	svc.configs = make(map[string]*ScopeConfig)
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.store = svc.sqlSvc
	svc.audit = svc.Service(AUDIT_SVC).(*AuditService)
	svc.initDefaultConfigs()

	go svc.startCleanupJob()

	return nil
}

// ==================== CONFIGURATION ====================

func (svc *RateLimitService) initDefaultConfigs() {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	svc.configs = map[string]*ScopeConfig{
		// Only failed logins count toward the limit: a correct credential
		// is never penalized by earlier failures once it succeeds.
		"login": {
			Endpoint:       "login",
			MaxRequests:    5,
			MaxPerDevice:   5,
			Window:         15 * time.Minute,
			BlockTime:      30 * time.Minute,
			SkipSuccessful: true,
			Description:    "Login attempts rate limit",
			IsActive:       true,
		},
		"register": {
			Endpoint:     "register",
			MaxRequests:  3,
			MaxPerDevice: 3,
			Window:       time.Hour,
			BlockTime:    time.Hour,
			Description:  "Registration rate limit",
			IsActive:     true,
		},
		"otp_request": {
			Endpoint:     "otp_request",
			MaxRequests:  3,
			MaxPerDevice: 3,
			Window:       5 * time.Minute,
			BlockTime:    30 * time.Minute,
			Description:  "OTP request rate limit",
			IsActive:     true,
		},
		"password_reset": {
			Endpoint:       "password_reset",
			MaxRequests:    5,
			MaxPerDevice:   5,
			Window:         15 * time.Minute,
			BlockTime:      30 * time.Minute,
			SkipSuccessful: true,
			Description:    "Password reset rate limit",
			IsActive:       true,
		},
		"refresh": {
			Endpoint:     "refresh",
			MaxRequests:  20,
			MaxPerDevice: 20,
			Window:       15 * time.Minute,
			BlockTime:    5 * time.Minute,
			Description:  "Token refresh rate limit",
			IsActive:     true,
		},
		"api_general": {
			Endpoint:     "api_general",
			MaxRequests:  1000,
			MaxPerDevice: 600,
			MaxPerUser:   600,
			Window:       time.Hour,
			BlockTime:    time.Hour,
			Description:  "General API rate limit",
			IsActive:     true,
		},
	}
}

func (svc *RateLimitService) getConfig(endpoint string) *ScopeConfig {
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()
	return svc.configs[endpoint]
}

// SetConfig replaces a scope config. Used by tests and the admin surface.
func (svc *RateLimitService) SetConfig(cfg *ScopeConfig) {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	svc.configs[cfg.Endpoint] = cfg
}

// ==================== CORE LOGIC ====================

type axis struct {
	axisType   string
	identifier string
	max        int
}

// axesFor resolves the applicable axes for this request: IP always, device
// when the fingerprint is known, user once a session id is present. The
// user axis keys on the session id attached by the session validator; on
// the pre-check of routes mounted ahead of auth the claimed header value is
// used so that an already-blocked caller is turned away before any work.
func (svc *RateLimitService) axesFor(c *fiber.Ctx, cfg *ScopeConfig) []axis {
	axes := []axis{{axisType: shared.AxisIP, identifier: clientIPFromCtx(c), max: cfg.MaxRequests}}

	if cfg.MaxPerDevice > 0 {
		if fp, ok := c.Locals(shared.DeviceFingerprint).(string); ok && fp != "" && fp != shared.FingerprintUnknown {
			axes = append(axes, axis{axisType: shared.AxisDevice, identifier: fp, max: cfg.MaxPerDevice})
		}
	}

	if cfg.MaxPerUser > 0 {
		sessionID, _ := c.Locals(shared.SessionID).(string)
		if sessionID == "" {
			sessionID = c.Get(shared.SessionHeader)
		}
		if sessionID != "" {
			axes = append(axes, axis{axisType: shared.AxisUser, identifier: sessionID, max: cfg.MaxPerUser})
		}
	}

	return axes
}

// Check runs the admission decision for one axis. Errors bubble up so the
// middleware can apply the fail-open policy; Check itself never admits or
// rejects on a store failure.
func (svc *RateLimitService) Check(ax axis, cfg *ScopeConfig, clientIP string) (*dto.Decision, error) {
	counter, err := svc.store.GetCounter(ax.identifier, ax.axisType, cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	if counter != nil && counter.IsBlocked && counter.WindowEnd.After(now) {
		retryAfter := int(time.Until(counter.WindowEnd).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		return &dto.Decision{
			Allowed:    false,
			Axis:       ax.axisType,
			Blocked:    true,
			RetryAfter: retryAfter,
			ResetTime:  &counter.WindowEnd,
		}, nil
	}

	count := 0
	if counter != nil {
		count = counter.RequestCount
	}

	if count >= ax.max {
		until := now.Add(cfg.BlockTime)
		if err := svc.store.BlockCounter(ax.identifier, ax.axisType, cfg.Endpoint, "threshold exceeded", until); err != nil {
			return nil, err
		}

		rateLimitBlocksTotal.WithLabelValues(cfg.Endpoint, ax.axisType).Inc()
		if svc.audit != nil {
			svc.audit.Log("rate_limit_blocked", "", clientIP, map[string]interface{}{
				"axis":       ax.axisType,
				"identifier": ax.identifier,
				"endpoint":   cfg.Endpoint,
				"count":      count,
				"max":        ax.max,
			})
		}

		return &dto.Decision{
			Allowed:    false,
			Axis:       ax.axisType,
			Blocked:    true,
			RetryAfter: int(cfg.BlockTime.Seconds()),
			ResetTime:  &until,
		}, nil
	}

	resetTime := now.Add(cfg.Window)
	if counter != nil {
		resetTime = counter.WindowEnd
	}
	return &dto.Decision{
		Allowed:   true,
		Axis:      ax.axisType,
		Remaining: ax.max - count,
		ResetTime: &resetTime,
	}, nil
}

// ==================== MIDDLEWARE ====================

// Limit guards a named scope: per-axis block/threshold checks before the
// handler, conditional atomic increment after the response. Store failures
// on the check side admit the request; failures on the increment side drop
// the count. Availability never hinges on the limiter's own backend.
func (svc *RateLimitService) Limit(endpoint string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cfg := svc.getConfig(endpoint)
		if cfg == nil || !cfg.IsActive {
			return c.Next()
		}

		clientIP := clientIPFromCtx(c)

		var headerDec *dto.Decision
		for _, ax := range svc.axesFor(c, cfg) {
			dec, err := svc.Check(ax, cfg, clientIP)
			if err != nil {
				log.WithFields(log.Fields{
					"endpoint": endpoint,
					"axis":     ax.axisType,
					"error":    err.Error(),
				}).Warn("Rate limit check failed, admitting request")
				continue
			}

			if !dec.Allowed {
				svc.addRateLimitHeaders(c, dec)
				return shared.NewRateLimited(rateLimitMessage(endpoint), dec.RetryAfter)
			}

			if headerDec == nil || dec.Remaining < headerDec.Remaining {
				headerDec = dec
			}
		}
		svc.addRateLimitHeaders(c, headerDec)

		err := c.Next()

		if svc.shouldCount(cfg, effectiveStatus(c, err)) {
			// Axes are re-resolved here: the session validator has run by
			// now, so the user axis counts under its real identifier.
			for _, ax := range svc.axesFor(c, cfg) {
				if incErr := svc.store.IncrementCounter(ax.identifier, ax.axisType, endpoint, cfg.Window); incErr != nil {
					log.WithFields(log.Fields{
						"endpoint": endpoint,
						"axis":     ax.axisType,
					}).Debug("Rate limit increment dropped")
				}
			}
		}

		return err
	}
}

func (svc *RateLimitService) shouldCount(cfg *ScopeConfig, status int) bool {
	success := status < http.StatusBadRequest
	if cfg.SkipSuccessful && success {
		return false
	}
	if cfg.SkipFailed && !success {
		return false
	}
	return true
}

// effectiveStatus resolves the status the client will see, including
// handler errors that the app-level error handler has not yet translated.
func effectiveStatus(c *fiber.Ctx, err error) int {
	if err != nil {
		if appErr, ok := shared.GetAppError(err); ok {
			return appErr.StatusCode
		}
		if fe, ok := err.(*fiber.Error); ok {
			return fe.Code
		}
		return http.StatusInternalServerError
	}
	return c.Response().StatusCode()
}

func (svc *RateLimitService) addRateLimitHeaders(c *fiber.Ctx, dec *dto.Decision) {
	if dec == nil {
		return
	}

	if dec.Remaining >= 0 && dec.Allowed {
		c.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
	}

	if dec.ResetTime != nil {
		c.Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetTime.Unix(), 10))
	}

	if dec.RetryAfter > 0 {
		c.Set("Retry-After", strconv.Itoa(dec.RetryAfter))
	}
}

func rateLimitMessage(endpoint string) string {
	messages := map[string]string{
		"login":          "Too many login attempts. Please try again later.",
		"register":       "Too many registration attempts. Please try again later.",
		"otp_request":    "Too many verification code requests. Please try again later.",
		"password_reset": "Too many password reset attempts. Please try again later.",
		"refresh":        "Too many token refresh requests. Please try again later.",
		"api_general":    "Too many requests. Please slow down.",
	}

	if message, exists := messages[endpoint]; exists {
		return message
	}

	return "Too many requests. Please try again later."
}

func clientIPFromCtx(c *fiber.Ctx) string {
	if ip, ok := c.Locals(shared.ClientIP).(string); ok && ip != "" {
		return ip
	}
	return getClientIP(c)
}

// ==================== ADMIN SURFACE ====================

func (svc *RateLimitService) GetRateLimitStats() fiber.Handler {
	return func(c *fiber.Ctx) error {
		svc.mutex.RLock()
		configs := make(map[string]*ScopeConfig, len(svc.configs))
		for k, v := range svc.configs {
			configs[k] = v
		}
		svc.mutex.RUnlock()

		total, blocked, err := svc.sqlSvc.CountCounters()
		if err != nil {
			return shared.NewStoreUnavailable(err)
		}

		return shared.ResponseOK(c, map[string]interface{}{
			"configs":          configs,
			"total_counters":   total,
			"blocked_counters": blocked,
			"timestamp":        time.Now(),
		})
	}
}

func (svc *RateLimitService) CleanupRateLimits() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.store.CleanupCounters(); err != nil {
			return shared.NewStoreUnavailable(err)
		}
		return shared.ResponseJSON(c, http.StatusOK, "Rate limits cleaned up successfully", nil)
	}
}

func (svc *RateLimitService) RemoveRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifierType := c.Params("identifierType")
		identifier := c.Params("identifier")
		endpoint := c.Params("endpoint")

		if identifier == "" || identifierType == "" || endpoint == "" {
			return shared.NewBadRequestError(nil, "Missing identifier, type or endpoint")
		}

		if err := svc.sqlSvc.DeleteCounter(identifier, identifierType, endpoint); err != nil {
			return shared.NewStoreUnavailable(err)
		}

		return shared.ResponseJSON(c, http.StatusOK, "Rate limit removed", nil)
	}
}

// ==================== BACKGROUND JOBS ====================

func (svc *RateLimitService) startCleanupJob() {
	// One sweep at startup, then hourly. Racing an in-flight block is
	// safe: only rows whose window already passed are removed.
	if err := svc.store.CleanupCounters(); err != nil {
		log.Printf("Rate limit cleanup error: %v", err)
	}

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		if err := svc.store.CleanupCounters(); err != nil {
			log.Printf("Rate limit cleanup error: %v", err)
		}
	}
}
