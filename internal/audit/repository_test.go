package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/tenantgate/internal/infrastructure/database"
	"github.com/nerrad567/tenantgate/internal/observer"
	"github.com/nerrad567/tenantgate/internal/store"
	"github.com/nerrad567/tenantgate/internal/store/sqlitestore"
	"github.com/nerrad567/tenantgate/migrations"
)

func testStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return sqlitestore.New(db.DB)
}

func TestStoreRepository_Create(t *testing.T) {
	s := testStore(t)
	repo := NewStoreRepository(s)
	ctx := context.Background()

	log := &AuditLog{
		OrgID:      "org-1",
		Action:     "create",
		EntityType: "orders",
		EntityID:   "ord-1",
		UserID:     "user-1",
		Source:     SourceGateway,
		Details:    map[string]any{"items": float64(2)},
	}
	if err := repo.Create(ctx, log); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if log.ID == "" || log.CreatedAt.IsZero() {
		t.Fatalf("Create() did not fill id/createdAt: %+v", log)
	}

	doc, err := s.Get(ctx, Collection, log.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	for field, want := range map[string]string{
		"orgId": "org-1", "action": "create", "entityType": "orders",
		"entityId": "ord-1", "userId": "user-1", "source": SourceGateway,
	} {
		if got := doc.String(field); got != want {
			t.Errorf("%s = %q, want %q", field, got, want)
		}
	}
}

func TestSink_Handle(t *testing.T) {
	when := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		event   observer.Event
		written bool
	}{
		{"create", observer.Event{Operation: observer.OpCreate, Outcome: observer.OutcomeSuccess, Collection: "orders", OrgID: "o"}, true},
		{"delete", observer.Event{Operation: observer.OpDelete, Outcome: observer.OutcomeSuccess, Collection: "orders", OrgID: "o"}, true},
		{"login", observer.Event{Operation: observer.OpLogin, Outcome: observer.OutcomeSuccess, Collection: "users", OrgID: "o"}, true},
		{"failed update", observer.Event{Operation: observer.OpUpdate, Outcome: observer.OutcomeFailure, Collection: "orders", OrgID: "o"}, false},
		{"query", observer.Event{Operation: observer.OpQuery, Outcome: observer.OutcomeSuccess, Collection: "orders", OrgID: "o"}, false},
		{"audit collection", observer.Event{Operation: observer.OpCreate, Outcome: observer.OutcomeSuccess, Collection: Collection, OrgID: "o"}, false},
		{"no tenant", observer.Event{Operation: observer.OpCreate, Outcome: observer.OutcomeSuccess, Collection: "orders"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testStore(t)
			sink := NewSink(NewStoreRepository(s))
			tt.event.Time = when

			if err := sink.Handle(context.Background(), tt.event); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			n, err := s.Count(context.Background(), Collection, nil)
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if (n == 1) != tt.written {
				t.Errorf("audit records = %d, written = %v", n, tt.written)
			}
		})
	}
}
