package gateway

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tenantgate/internal/auth"
	"github.com/nerrad567/tenantgate/internal/infrastructure/database"
	"github.com/nerrad567/tenantgate/internal/infrastructure/logging"
	"github.com/nerrad567/tenantgate/internal/observer"
	"github.com/nerrad567/tenantgate/internal/store"
	"github.com/nerrad567/tenantgate/internal/store/sqlitestore"
	"github.com/nerrad567/tenantgate/migrations"
)

const testSecret = "gateway-test-secret-at-least-32-chars"

func testStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "gateway.db"),
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

// recorder collects observed events. Batches observe concurrently.
type recorder struct {
	mu     sync.Mutex
	events []observer.Event
}

func (r *recorder) Observe(e observer.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) byOperation(op string) []observer.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []observer.Event
	for _, e := range r.events {
		if e.Operation == op {
			out = append(out, e)
		}
	}
	return out
}

// fixture holds two tenants. "acme" has an administrator, a clerk who may
// only read orders, and a super-admin. "globex" has one administrator.
type fixture struct {
	store  store.Store
	issuer *auth.TokenIssuer
	svc    *auth.Service
	gw     *Gateway
	events *recorder

	acme, globex         string
	adminRole, clerkRole string
	globexRole           string

	adminID, clerkID, superID, rivalID string
	admin, clerk, super, rival         string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil)
}

// newFixtureWithStore lets wrap replace the store the gateway sees. The
// auth service keeps using the real one.
func newFixtureWithStore(t *testing.T, wrap func(store.Store) store.Store) *fixture {
	t.Helper()
	s := testStore(t)
	issuer, err := auth.NewTokenIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	f := &fixture{store: s, issuer: issuer, events: &recorder{}}
	f.svc = auth.NewService(auth.ServiceConfig{
		Repository:  auth.NewRepository(s),
		Issuer:      issuer,
		Revocations: auth.NewRevocationList(s),
		Logger:      logging.Discard(),
	})

	gwStore := s
	if wrap != nil {
		gwStore = wrap(s)
	}
	f.gw = New(Deps{
		Store:    gwStore,
		Auth:     f.svc,
		Observer: f.events,
		Logger:   logging.Discard(),
	})

	f.acme = f.insert(t, auth.CollectionOrganizations, store.Document{
		auth.FieldCode: "acme", auth.FieldName: "Acme", auth.FieldStatus: auth.StatusActive,
	})
	f.globex = f.insert(t, auth.CollectionOrganizations, store.Document{
		auth.FieldCode: "globex", auth.FieldName: "Globex", auth.FieldStatus: auth.StatusActive,
	})

	all := auth.DefaultPermissionMap().Capabilities()
	perms := make([]any, len(all))
	for i, c := range all {
		perms[i] = c
	}
	f.adminRole = f.insert(t, auth.CollectionRoles, store.Document{
		auth.FieldOrgID: f.acme, auth.FieldName: "admin", auth.FieldPermissions: perms,
	})
	f.clerkRole = f.insert(t, auth.CollectionRoles, store.Document{
		auth.FieldOrgID: f.acme, auth.FieldName: "clerk", auth.FieldPermissions: []any{"order:read"},
	})
	f.globexRole = f.insert(t, auth.CollectionRoles, store.Document{
		auth.FieldOrgID: f.globex, auth.FieldName: "admin", auth.FieldPermissions: perms,
	})

	f.adminID, f.admin = f.addUser(t, f.acme, "admin", f.adminRole, false)
	f.clerkID, f.clerk = f.addUser(t, f.acme, "clerk", f.clerkRole, false)
	f.superID, f.super = f.addUser(t, f.acme, "root", "", true)
	f.rivalID, f.rival = f.addUser(t, f.globex, "admin", f.globexRole, false)
	return f
}

func (f *fixture) insert(t *testing.T, coll string, doc store.Document) string {
	t.Helper()
	id, err := f.store.Insert(context.Background(), coll, doc)
	if err != nil {
		t.Fatalf("inserting into %s: %v", coll, err)
	}
	return id
}

// addUser inserts an active user without a credential and signs a token
// for it directly.
func (f *fixture) addUser(t *testing.T, orgID, username, roleID string, superAdmin bool) (id, token string) {
	t.Helper()
	id = f.insert(t, auth.CollectionUsers, store.Document{
		auth.FieldOrgID:        orgID,
		auth.FieldUsername:     username,
		auth.FieldRoleID:       roleID,
		auth.FieldIsSuperAdmin: superAdmin,
		auth.FieldStatus:       auth.StatusActive,
	})
	issued, err := f.issuer.Issue(auth.Identity{UserID: id, OrgID: orgID, RoleID: roleID})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return id, issued.Token
}

func (f *fixture) order(t *testing.T, orgID, status string, quantity float64) string {
	t.Helper()
	return f.insert(t, "orders", store.Document{
		auth.FieldOrgID: orgID, "status": status, "quantity": quantity,
	})
}

func (f *fixture) get(t *testing.T, coll, id string) store.Document {
	t.Helper()
	doc, err := f.store.Get(context.Background(), coll, id)
	if err != nil {
		t.Fatalf("Get(%s, %s) error = %v", coll, id, err)
	}
	return doc
}

func wantKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if got := KindOf(err); got != want {
		t.Fatalf("KindOf(%v) = %q, want %q", err, got, want)
	}
}
