package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nerrad567/tenantgate/internal/infrastructure/logging"
	"github.com/nerrad567/tenantgate/internal/store"
)

// seedPasswordBytes is the number of random bytes in the bootstrap admin password.
const seedPasswordBytes = 16

// BootstrapOptions describe the tenant created on first boot.
type BootstrapOptions struct {
	OrganizationCode string
	OrganizationName string
	AdminUsername    string
	// Capabilities granted to the admin role.
	Capabilities []string
}

// BootstrapResult reports what Bootstrap created. Password is the only
// copy of the generated admin password.
type BootstrapResult struct {
	OrganizationID string
	RoleID         string
	UserID         string
	Username       string
	Password       string
}

// Bootstrap creates an organization, an admin role and a super-admin user
// when no organization exists yet. It returns nil when seeding was skipped.
// The generated password is logged once and must be changed immediately.
func Bootstrap(ctx context.Context, repo *Repository, opts BootstrapOptions, logger *logging.Logger) (*BootstrapResult, error) {
	count, err := repo.CountOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking organization count: %w", err)
	}
	if count > 0 {
		logger.Info("organizations exist, skipping bootstrap")
		return nil, nil
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, fmt.Errorf("generating bootstrap password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	hash, salt, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing bootstrap password: %w", err)
	}

	now := store.Timestamp(time.Now())
	stamps := func(doc store.Document) store.Document {
		doc["createdBy"] = "bootstrap"
		doc["createdAt"] = now
		doc["updatedBy"] = "bootstrap"
		doc["updatedAt"] = now
		return doc
	}

	orgID, err := repo.Insert(ctx, CollectionOrganizations, stamps(store.Document{
		FieldCode:   opts.OrganizationCode,
		FieldName:   opts.OrganizationName,
		FieldStatus: StatusActive,
	}))
	if err != nil {
		return nil, fmt.Errorf("creating bootstrap organization: %w", err)
	}

	caps := make([]any, len(opts.Capabilities))
	for i, c := range opts.Capabilities {
		caps[i] = c
	}
	roleID, err := repo.Insert(ctx, CollectionRoles, stamps(store.Document{
		FieldOrgID:       orgID,
		FieldName:        "admin",
		FieldPermissions: caps,
	}))
	if err != nil {
		return nil, fmt.Errorf("creating bootstrap role: %w", err)
	}

	userID, err := repo.Insert(ctx, CollectionUsers, stamps(store.Document{
		FieldOrgID:             orgID,
		FieldUsername:          opts.AdminUsername,
		FieldDisplayName:       "Administrator",
		FieldPasswordHash:      hash,
		FieldSalt:              salt,
		FieldHashFormat:        FormatCurrent,
		FieldRoleID:            roleID,
		FieldIsSuperAdmin:      true,
		FieldStatus:            StatusActive,
		FieldPasswordChangedAt: now,
	}))
	if err != nil {
		return nil, fmt.Errorf("creating bootstrap admin: %w", err)
	}

	logger.Warn("bootstrap admin account created",
		"organization_code", opts.OrganizationCode,
		"username", opts.AdminUsername,
		"password", password,
		"action_required", "change this password immediately",
	)

	return &BootstrapResult{
		OrganizationID: orgID,
		RoleID:         roleID,
		UserID:         userID,
		Username:       opts.AdminUsername,
		Password:       password,
	}, nil
}
