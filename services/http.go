package services

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"github.com/medigo-health/medigo_api/services/handlers"
	"github.com/medigo-health/medigo_api/shared"
)

type HttpService struct {
	context.DefaultService

	authSvc        *AuthService
	authMw         *AuthMiddleware
	sessionSvc     *SessionService
	catalogSvc     *CatalogService
	rateLimitSvc   *RateLimitService
	fingerprintSvc *FingerprintService

	port int
	app  *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.authSvc = svc.Service(AUTH_SVC).(*AuthService)
	svc.authMw = svc.Service(AUTH_MIDDLEWARE_SVC).(*AuthMiddleware)
	svc.sessionSvc = svc.Service(SESSION_SVC).(*SessionService)
	svc.catalogSvc = svc.Service(CATALOG_SVC).(*CatalogService)
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.fingerprintSvc = svc.Service(FINGERPRINT_SVC).(*FingerprintService)

	svc.app = fiber.New(fiber.Config{
		AppName:      "medigo_api",
		ErrorHandler: httpErrorHandler,
	})

	svc.app.Use(recover.New())
	svc.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: strings.Join([]string{
			fiber.HeaderAuthorization,
			fiber.HeaderContentType,
			shared.SessionHeader,
		}, ","),
	}))
	svc.app.Use(svc.fingerprintSvc.Middleware())
	svc.app.Use(requestMetrics)

	svc.registerRoutes()

	log.WithField("port", svc.port).Info("HTTP service listening")
	return svc.app.Listen(fmt.Sprintf(":%d", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.app != nil {
		_ = svc.app.ShutdownWithTimeout(5 * time.Second)
	}
}

func (svc *HttpService) registerRoutes() {
	authHandler := handlers.NewAuthHandler(svc.authSvc, svc.sessionSvc)
	catalogHandler := handlers.NewCatalogHandler(svc.catalogSvc)

	rl := svc.rateLimitSvc
	auth := svc.authMw

	svc.app.Get("/health", svc.health)

	v1 := svc.app.Group("/api/v1")

	// Public surface. Every endpoint carries its own limiter scope.
	v1.Post("/register", rl.Limit("register"), authHandler.Register)
	v1.Post("/login", rl.Limit("login"), authHandler.Login)
	v1.Post("/refresh", rl.Limit("refresh"), authHandler.RefreshToken)
	v1.Post("/password/forgot", rl.Limit("otp_request"), authHandler.ForgotPassword)
	v1.Post("/password/reset", rl.Limit("password_reset"), authHandler.ResetPassword)

	// Protected surface: general limiter first, then the admission chain.
	protected := v1.Group("", rl.Limit("api_general"), auth.RequiredAuth())

	protected.Post("/logout", authHandler.Logout)
	protected.Post("/logout-all", authHandler.LogoutAll)
	protected.Get("/sessions", authHandler.GetSessions)
	protected.Delete("/sessions/:sessionId", authHandler.RevokeSession)

	protected.Get("/medicines", catalogHandler.ListMedicines)
	protected.Get("/medicines/:id", catalogHandler.GetMedicine)
	protected.Get("/doctors", catalogHandler.ListDoctors)
	protected.Get("/doctors/:id", catalogHandler.GetDoctor)

	protected.Post("/orders", catalogHandler.CreateOrder)
	protected.Get("/orders", catalogHandler.GetOrders)

	protected.Post("/addresses", catalogHandler.CreateAddress)
	protected.Get("/addresses", catalogHandler.GetAddresses)
	protected.Put("/addresses/:id", catalogHandler.UpdateAddress)
	protected.Delete("/addresses/:id", catalogHandler.DeleteAddress)

	// Admin surface.
	admin := protected.Group("/admin", auth.RequireRole(shared.RoleAdmin))

	admin.Post("/medicines", catalogHandler.CreateMedicine)
	admin.Post("/doctors", catalogHandler.CreateDoctor)

	admin.Get("/rate-limits/stats", rl.GetRateLimitStats())
	admin.Post("/rate-limits/cleanup", rl.CleanupRateLimits())
	admin.Delete("/rate-limits/:identifierType/:identifier/:endpoint", rl.RemoveRateLimit())
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /health [get]
func (svc *HttpService) health(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "max-age=10")
	return shared.ResponseOK(c, "ok")
}

func requestMetrics(c *fiber.Ctx) error {
	err := c.Next()
	httpRequestsTotal.WithLabelValues(
		c.Route().Path,
		c.Method(),
		strconv.Itoa(effectiveStatus(c, err)),
	).Inc()
	return err
}

// httpErrorHandler turns application errors into their wire shapes. It is
// the single place a gateway rejection becomes a response body.
func httpErrorHandler(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		if appErr.StatusCode >= 500 {
			log.WithFields(log.Fields{
				"code":  appErr.Code,
				"path":  c.Path(),
				"error": appErr.Error(),
			}).Error("Request failed")
		}
		return shared.WriteError(c, appErr)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error":     fiberErr.Message,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}

	log.WithFields(log.Fields{
		"path":  c.Path(),
		"error": err.Error(),
	}).Error("Unhandled error")

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":     "Internal server error",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
