package auth

import (
	"errors"

	"github.com/nerrad567/tenantgate/internal/store"
)

// Collections owned or read by the auth service.
const (
	CollectionOrganizations = "organizations"
	CollectionUsers         = "users"
	CollectionRoles         = "roles"
	CollectionRevocations   = "token_revocations"
)

// Status values for organizations and users.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Document fields shared with the gateway.
const (
	FieldOrgID             = "orgId"
	FieldUsername          = "username"
	FieldPassword          = "password"
	FieldPasswordHash      = "passwordHash"
	FieldSalt              = "salt"
	FieldHashFormat        = "hashFormat"
	FieldDisplayName       = "displayName"
	FieldRoleID            = "roleId"
	FieldIsSuperAdmin      = "isSuperAdmin"
	FieldStatus            = "status"
	FieldDeleted           = "deleted"
	FieldLastLoginAt       = "lastLoginAt"
	FieldPasswordChangedAt = "passwordChangedAt"
	FieldCode              = "code"
	FieldName              = "name"
	FieldPermissions       = "permissions"
)

// Sentinel errors. Every token and credential failure is an
// authentication failure; IsAuthenticationError recognises them.
var (
	ErrInvalidCredentials = errors.New("organization code, username or password incorrect")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrTokenMalformed     = errors.New("token is malformed")
	ErrTokenBadSignature  = errors.New("token signature is invalid")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrForbidden          = errors.New("insufficient permissions")
)

// IsAuthenticationError reports whether err is any authentication failure.
func IsAuthenticationError(err error) bool {
	for _, target := range []error{
		ErrInvalidCredentials, ErrUnauthenticated, ErrUserInactive,
		ErrTokenMalformed, ErrTokenBadSignature, ErrTokenExpired, ErrTokenRevoked,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Principal is the verified identity behind a request.
type Principal struct {
	UserID       string
	OrgID        string
	RoleID       string
	Username     string
	IsSuperAdmin bool
	// TokenID is the jti of the token the principal was derived from.
	TokenID      string
	capabilities map[string]bool
}

// NewPrincipal builds a principal holding the given capabilities.
func NewPrincipal(userID, orgID, roleID string, superAdmin bool, capabilities []string) *Principal {
	p := &Principal{
		UserID:       userID,
		OrgID:        orgID,
		RoleID:       roleID,
		IsSuperAdmin: superAdmin,
		capabilities: make(map[string]bool, len(capabilities)),
	}
	for _, c := range capabilities {
		p.capabilities[c] = true
	}
	return p
}

// Has reports whether the principal's role grants capability.
func (p *Principal) Has(capability string) bool {
	return p.capabilities[capability]
}

// Organization is a tenant.
type Organization struct {
	ID      string
	Code    string
	Name    string
	Status  string
	Deleted bool
}

// Active reports whether the organization accepts logins.
func (o *Organization) Active() bool {
	return o.Status == StatusActive && !o.Deleted
}

// User is an account as the auth service sees it.
type User struct {
	ID           string
	OrgID        string
	Username     string
	DisplayName  string
	RoleID       string
	IsSuperAdmin bool
	Status       string
	Deleted      bool
	Credential   Credential
	LastLoginAt  string
}

// Active reports whether the user may authenticate.
func (u *User) Active() bool {
	return u.Status == StatusActive && !u.Deleted
}

// Role grants capabilities within one organization.
type Role struct {
	ID          string
	OrgID       string
	Name        string
	Permissions []string
	Deleted     bool
}

func organizationFromDocument(d store.Document) *Organization {
	return &Organization{
		ID:      d.ID(),
		Code:    d.String(FieldCode),
		Name:    d.String(FieldName),
		Status:  d.String(FieldStatus),
		Deleted: d.Bool(FieldDeleted),
	}
}

func userFromDocument(d store.Document) *User {
	return &User{
		ID:           d.ID(),
		OrgID:        d.String(FieldOrgID),
		Username:     d.String(FieldUsername),
		DisplayName:  d.String(FieldDisplayName),
		RoleID:       d.String(FieldRoleID),
		IsSuperAdmin: d.Bool(FieldIsSuperAdmin),
		Status:       d.String(FieldStatus),
		Deleted:      d.Bool(FieldDeleted),
		Credential:   ParseCredential(d.String(FieldPasswordHash), d.String(FieldSalt)),
		LastLoginAt:  d.String(FieldLastLoginAt),
	}
}

func roleFromDocument(d store.Document) *Role {
	r := &Role{
		ID:      d.ID(),
		OrgID:   d.String(FieldOrgID),
		Name:    d.String(FieldName),
		Deleted: d.Bool(FieldDeleted),
	}
	switch perms := d[FieldPermissions].(type) {
	case []any:
		for _, p := range perms {
			if s, ok := p.(string); ok {
				r.Permissions = append(r.Permissions, s)
			}
		}
	case []string:
		r.Permissions = append(r.Permissions, perms...)
	}
	return r
}
