package services

import (
	"context"

	"github.com/example/coolpis/internal/repository"
)

// AuditRecorder stores dispatch changes. *repository.MongoAuditRepository implements it.
type AuditRecorder interface {
	Record(ctx context.Context, entry *repository.AuditLog) error
}

// NopAudit discards entries. Used when no audit store is configured.
type NopAudit struct{}

func (NopAudit) Record(context.Context, *repository.AuditLog) error { return nil }
