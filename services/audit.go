package services

import (
	"encoding/json"
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/medigo-health/medigo_api/model"
)

// AuditService accepts security events without ever blocking the request
// path. Events go through a buffered channel to a single writer goroutine;
// when the buffer is full the event is dropped and counted, never queued
// synchronously.
type AuditService struct {
	context.DefaultService

	sqlSvc *PostgresService

	events chan *model.AuthAuditLog
	done   chan struct{}
}

const AUDIT_SVC = "audit_svc"

const auditBufferSize = 1024

func (svc AuditService) Id() string {
	return AUDIT_SVC
}

func (svc *AuditService) Configure(ctx *context.Context) error {
	svc.events = make(chan *model.AuthAuditLog, auditBufferSize)
	svc.done = make(chan struct{})
	return svc.DefaultService.Configure(ctx)
}

func (svc *AuditService) Start() error {
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)

	go svc.writer()

	return nil
}

func (svc *AuditService) Shutdown() {
	close(svc.done)
}

func (svc *AuditService) Log(category, actorID, clientIP string, metadata map[string]interface{}) {
	var raw json.RawMessage
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			raw = b
		}
	}

	entry := &model.AuthAuditLog{
		Category:  category,
		ActorID:   actorID,
		ClientIP:  clientIP,
		Metadata:  raw,
		CreatedAt: time.Now(),
	}

	select {
	case svc.events <- entry:
	default:
		log.WithFields(log.Fields{
			"category": category,
			"actor_id": actorID,
		}).Warn("Audit buffer full, event dropped")
	}
}

func (svc *AuditService) writer() {
	for {
		select {
		case entry := <-svc.events:
			if err := svc.sqlSvc.CreateAuditLog(entry); err != nil {
				log.WithFields(log.Fields{
					"category": entry.Category,
					"error":    err.Error(),
				}).Error("Failed to persist audit event")
			}
		case <-svc.done:
			// Drain what is already buffered before exiting.
			for {
				select {
				case entry := <-svc.events:
					_ = svc.sqlSvc.CreateAuditLog(entry)
				default:
					return
				}
			}
		}
	}
}
