// Package audit records committed gateway mutations in the audit_logs
// collection. Records carry the tenant's orgId, so they are read back
// through the gateway like any other collection.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/tenantgate/internal/observer"
	"github.com/nerrad567/tenantgate/internal/store"
)

// Collection is where audit records live.
const Collection = "audit_logs"

// SourceGateway marks records written for gateway operations.
const SourceGateway = "gateway"

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	OrgID      string         `json:"orgId"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
}

// StoreRepository writes audit logs to a document store.
type StoreRepository struct {
	store store.Store
}

// NewStoreRepository creates a new audit log repository.
func NewStoreRepository(s store.Store) *StoreRepository {
	return &StoreRepository{store: s}
}

// Create inserts a new audit log entry. The ID and CreatedAt are generated if empty.
func (r *StoreRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	doc := store.Document{
		"orgId":      log.OrgID,
		"action":     log.Action,
		"entityType": log.EntityType,
		"source":     log.Source,
		"createdAt":  store.Timestamp(log.CreatedAt),
	}
	if log.ID != "" {
		doc[store.IDField] = log.ID
	}
	if log.EntityID != "" {
		doc["entityId"] = log.EntityID
	}
	if log.UserID != "" {
		doc["userId"] = log.UserID
		doc["createdBy"] = log.UserID
	}
	if log.Details != nil {
		doc["details"] = log.Details
	}

	id, err := r.store.Insert(ctx, Collection, doc)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	log.ID = id
	return nil
}

// Sink turns committed mutation events into audit records.
type Sink struct {
	repo Repository
}

// NewSink creates an observer sink backed by repo.
func NewSink(repo Repository) *Sink {
	return &Sink{repo: repo}
}

// Name identifies the sink in logs.
func (s *Sink) Name() string { return "audit" }

// Handle records e when it is a committed mutation or a session event.
// Writes to the audit collection itself are not audited.
func (s *Sink) Handle(ctx context.Context, e observer.Event) error {
	if e.Collection == Collection || e.OrgID == "" {
		return nil
	}
	switch {
	case e.IsMutation():
	case (e.Operation == observer.OpLogin || e.Operation == observer.OpLogout) && e.Succeeded():
	default:
		return nil
	}

	return s.repo.Create(ctx, &AuditLog{
		OrgID:      e.OrgID,
		Action:     e.Operation,
		EntityType: e.Collection,
		EntityID:   e.DocumentID,
		UserID:     e.UserID,
		Source:     SourceGateway,
		CreatedAt:  e.Time.UTC(),
	})
}
