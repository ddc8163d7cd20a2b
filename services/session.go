package services

import (
	"os"
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/medigo-health/medigo_api/dto"
	"github.com/medigo-health/medigo_api/model"
	"github.com/medigo-health/medigo_api/shared"
)

type SessionService struct {
	context.DefaultService

	sqlSvc         *PostgresService
	fingerprintSvc *FingerprintService

	sessionTTL time.Duration
}

const SESSION_SVC = "session_svc"

func (svc SessionService) Id() string {
	return SESSION_SVC
}

func (svc *SessionService) Configure(ctx *context.Context) error {
	svc.sessionTTL = 7 * 24 * time.Hour
	if ttl := os.Getenv("SESSION_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			svc.sessionTTL = d
		}
	}
	return svc.DefaultService.Configure(ctx)
}

func (svc *SessionService) Start() error {
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.fingerprintSvc = svc.Service(FINGERPRINT_SVC).(*FingerprintService)

	go svc.startCleanupJob()

	return nil
}

func (svc *SessionService) CreateSession(userID, fingerprint, clientIP, userAgent string) (*model.UserSession, error) {
	now := time.Now()
	session := &model.UserSession{
		UserID:            userID,
		DeviceFingerprint: fingerprint,
		IPAddress:         clientIP,
		UserAgent:         userAgent,
		ExpiresAt:         now.Add(svc.sessionTTL),
		LastActivity:      now,
		IsActive:          true,
	}

	return svc.sqlSvc.CreateSession(session)
}

// Touch refreshes last_activity off the request path. Bookkeeping only;
// a lost update here never affects admission.
func (svc *SessionService) Touch(sessionID string) {
	go func() {
		if err := svc.sqlSvc.TouchSession(sessionID, time.Now()); err != nil {
			log.WithFields(log.Fields{
				"session_id": sessionID,
				"error":      err.Error(),
			}).Debug("Failed to touch session")
		}
	}()
}

func (svc *SessionService) Revoke(sessionID, userID string) error {
	return svc.sqlSvc.RevokeSession(sessionID, userID)
}

func (svc *SessionService) RevokeAll(userID, exceptSessionID string) error {
	return svc.sqlSvc.RevokeAllSessions(userID, exceptSessionID)
}

func (svc *SessionService) ListSessions(userID, currentSessionID string) (*dto.SessionListResponse, error) {
	sessions, err := svc.sqlSvc.GetUserSessions(userID)
	if err != nil {
		return nil, shared.NewStoreUnavailable(err)
	}

	infos := make([]dto.UserSessionInfo, len(sessions))
	for i, s := range sessions {
		label := ""
		if svc.fingerprintSvc != nil {
			d := svc.fingerprintSvc.DeviceLabel(s.UserAgent)
			label = d.Browser + "/" + d.OS
		}
		infos[i] = dto.UserSessionInfo{
			SessionID:    s.ID,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			DeviceLabel:  label,
			LastActivity: s.LastActivity,
			ExpiresAt:    s.ExpiresAt,
			Current:      s.ID == currentSessionID,
		}
	}

	return &dto.SessionListResponse{Sessions: infos}, nil
}

func (svc *SessionService) startCleanupJob() {
	if err := svc.sqlSvc.DeleteExpiredSessions(); err != nil {
		log.Printf("Session cleanup error: %v", err)
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		if err := svc.sqlSvc.DeleteExpiredSessions(); err != nil {
			log.Printf("Session cleanup error: %v", err)
		}
	}
}
