package services

import (
	stdContext "context"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/medigo-health/medigo_api/model"
	"github.com/medigo-health/medigo_api/shared"
)

type identityStore interface {
	GetUserByIDAndEmail(id, email string) (*model.User, error)
	GetAdminByIDAndEmail(id, email string) (*model.User, error)
}

type identityCache interface {
	GetIdentity(ctx stdContext.Context, id string) (*model.Identity, error)
	SetIdentity(ctx stdContext.Context, identity *model.Identity) error
}

type sessionValidator interface {
	GetActiveSession(sessionID, userID string) (*model.UserSession, error)
}

type sessionToucher interface {
	Touch(sessionID string)
}

// AuthMiddleware is the admission chain every protected request passes:
// bearer token verification, identity resolution through the cache, then
// session validation for non-admins. Identity and session stores are
// fail-closed; only the cache in front of the user store is allowed to
// degrade (a cache outage falls through to the store).
type AuthMiddleware struct {
	context.DefaultService

	jwtSvc *JWTService

	store    identityStore
	cache    identityCache
	sessions sessionValidator
	toucher  sessionToucher
	audit    auditSink
}

const AUTH_MIDDLEWARE_SVC = "auth"

func (svc AuthMiddleware) Id() string {
	return AUTH_MIDDLEWARE_SVC
}

func (svc *AuthMiddleware) Configure(ctx *context.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *AuthMiddleware) Start() error {
	svc.jwtSvc = svc.Service(JWT_SVC).(*JWTService)
	sqlSvc := svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.store = sqlSvc
	svc.sessions = sqlSvc
	svc.cache = svc.Service(REDIS_SVC).(*RedisService)
	svc.toucher = svc.Service(SESSION_SVC).(*SessionService)
	svc.audit = svc.Service(AUDIT_SVC).(*AuditService)
	return nil
}

func (svc *AuthMiddleware) RequiredAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientIP := clientIPFromCtx(c)

		token, err := svc.jwtSvc.ExtractTokenFromHeader(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return svc.reject(c, "", clientIP, err)
		}

		claims, err := svc.jwtSvc.VerifyAccessToken(token)
		if err != nil {
			return svc.reject(c, "", clientIP, err)
		}

		if claims.Role == shared.RoleAdmin {
			return svc.admitAdmin(c, claims, clientIP)
		}

		return svc.admitUser(c, claims, clientIP)
	}
}

// admitAdmin verifies the admin directly against the store. The identity
// cache is bypassed and session validation is skipped for admins.
func (svc *AuthMiddleware) admitAdmin(c *fiber.Ctx, claims *CustomClaims, clientIP string) error {
	admin, err := svc.store.GetAdminByIDAndEmail(claims.UserID, claims.Email)
	if err != nil {
		return svc.reject(c, claims.UserID, clientIP, shared.NewStoreUnavailable(err))
	}
	if admin == nil {
		return svc.reject(c, claims.UserID, clientIP, shared.NewAdminNotFound())
	}

	svc.setIdentityLocals(c, admin.Identity())
	return c.Next()
}

func (svc *AuthMiddleware) admitUser(c *fiber.Ctx, claims *CustomClaims, clientIP string) error {
	ctx := c.UserContext()

	identity, err := svc.cache.GetIdentity(ctx, claims.UserID)
	if err != nil {
		// Cache degradation is not an authorization failure.
		identityCacheLookupsTotal.WithLabelValues("error").Inc()
		log.WithField("error", err.Error()).Warn("Identity cache lookup failed, falling back to store")
		identity = nil
	} else if identity != nil {
		identityCacheLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		identityCacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	if identity == nil {
		user, err := svc.store.GetUserByIDAndEmail(claims.UserID, claims.Email)
		if err != nil {
			return svc.reject(c, claims.UserID, clientIP, shared.NewStoreUnavailable(err))
		}
		if user == nil {
			return svc.reject(c, claims.UserID, clientIP, shared.NewUserNotFound())
		}

		identity = user.Identity()
		if err := svc.cache.SetIdentity(ctx, identity); err != nil {
			log.WithField("error", err.Error()).Debug("Identity cache populate failed")
		}
	}

	// Cached entries can outlive a token reissued with a changed email;
	// re-fetch on any mismatch rather than trusting the stale entry.
	if identity.Email != claims.Email {
		user, err := svc.store.GetUserByIDAndEmail(claims.UserID, claims.Email)
		if err != nil {
			return svc.reject(c, claims.UserID, clientIP, shared.NewStoreUnavailable(err))
		}
		if user == nil {
			return svc.reject(c, claims.UserID, clientIP, shared.NewUserNotFound())
		}
		identity = user.Identity()
		if err := svc.cache.SetIdentity(ctx, identity); err != nil {
			log.WithField("error", err.Error()).Debug("Identity cache populate failed")
		}
	}

	svc.setIdentityLocals(c, identity)

	// Session validation, non-admins only.
	sessionID := c.Get(shared.SessionHeader)
	if sessionID == "" {
		return svc.reject(c, identity.ID, clientIP, shared.NewSessionMissing())
	}

	session, err := svc.sessions.GetActiveSession(sessionID, identity.ID)
	if err != nil {
		return svc.reject(c, identity.ID, clientIP, shared.NewStoreUnavailable(err))
	}
	if session == nil {
		return svc.reject(c, identity.ID, clientIP, shared.NewSessionInvalid())
	}

	c.Locals(shared.SessionID, sessionID)
	if svc.toucher != nil {
		svc.toucher.Touch(sessionID)
	}

	return c.Next()
}

func (svc *AuthMiddleware) RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		current, _ := c.Locals(shared.UserRole).(string)
		if current != role {
			return shared.NewForbiddenError("Insufficient permissions")
		}
		return c.Next()
	}
}

func (svc *AuthMiddleware) setIdentityLocals(c *fiber.Ctx, identity *model.Identity) {
	c.Locals(shared.UserID, identity.ID)
	c.Locals(shared.UserEmail, identity.Email)
	c.Locals(shared.UserRole, identity.Role)
}

// reject emits the audit event for a failed admission before the error
// propagates to the response writer.
func (svc *AuthMiddleware) reject(c *fiber.Ctx, actorID, clientIP string, err error) error {
	code := "unknown"
	if appErr, ok := shared.GetAppError(err); ok {
		code = appErr.Code
	}

	authFailuresTotal.WithLabelValues(code).Inc()
	if svc.audit != nil {
		svc.audit.Log("auth_rejected", actorID, clientIP, map[string]interface{}{
			"code":   code,
			"path":   c.Path(),
			"method": c.Method(),
		})
	}

	return err
}
