package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/tenantgate/internal/infrastructure/database"
	"github.com/nerrad567/tenantgate/internal/infrastructure/logging"
	"github.com/nerrad567/tenantgate/internal/store"
	"github.com/nerrad567/tenantgate/internal/store/sqlitestore"
	"github.com/nerrad567/tenantgate/migrations"
)

const testSecret = "test-secret-key-at-least-32-chars!"

// testStore creates a migrated SQLite document store in a temp directory.
func testStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
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

func testIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	return issuer
}

type fixture struct {
	store  store.Store
	repo   *Repository
	issuer *TokenIssuer
	svc    *Service
	orgID  string
	roleID string
}

// newFixture seeds organization "acme" with a role granting order:read.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := testStore(t)
	f := &fixture{
		store:  s,
		repo:   NewRepository(s),
		issuer: testIssuer(t),
	}
	f.svc = NewService(ServiceConfig{
		Repository:  f.repo,
		Issuer:      f.issuer,
		Revocations: NewRevocationList(s),
		Logger:      logging.Discard(),
	})
	f.orgID = f.insert(t, CollectionOrganizations, store.Document{
		FieldCode: "acme", FieldName: "Acme", FieldStatus: StatusActive,
	})
	f.roleID = f.insert(t, CollectionRoles, store.Document{
		FieldOrgID: f.orgID, FieldName: "clerk", FieldPermissions: []any{"order:read"},
	})
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

// addUser creates an active user with a current-format credential.
func (f *fixture) addUser(t *testing.T, username, password string) string {
	t.Helper()
	hash, salt, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	return f.insert(t, CollectionUsers, store.Document{
		FieldOrgID:        f.orgID,
		FieldUsername:     username,
		FieldPasswordHash: hash,
		FieldSalt:         salt,
		FieldHashFormat:   FormatCurrent,
		FieldRoleID:       f.roleID,
		FieldStatus:       StatusActive,
	})
}

// addLegacyUser creates an active user with a legacy PBKDF2 credential.
func (f *fixture) addLegacyUser(t *testing.T, username, password string) string {
	t.Helper()
	salt := "legacy-salt-" + username
	return f.insert(t, CollectionUsers, store.Document{
		FieldOrgID:        f.orgID,
		FieldUsername:     username,
		FieldPasswordHash: LegacyHash(password, salt),
		FieldSalt:         salt,
		FieldHashFormat:   FormatLegacy,
		FieldRoleID:       f.roleID,
		FieldStatus:       StatusActive,
	})
}
