package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/tenantgate/internal/infrastructure/logging"
	"github.com/nerrad567/tenantgate/internal/store"
)

// defaultStorageTimeout applies when ServiceConfig leaves StorageTimeout unset.
const defaultStorageTimeout = 10 * time.Second

// ServiceConfig wires the collaborators of Service.
type ServiceConfig struct {
	Repository *Repository
	Issuer     *TokenIssuer
	// Revocations may be nil, in which case logout is unsupported and no
	// revocation lookup happens on verify.
	Revocations    RevocationList
	Logger         *logging.Logger
	StorageTimeout time.Duration
}

// Service authenticates principals: password login, token verification
// and logout.
type Service struct {
	repo        *Repository
	issuer      *TokenIssuer
	revocations RevocationList
	logger      *logging.Logger
	timeout     time.Duration
	now         func() time.Time
}

// NewService creates an auth service.
func NewService(cfg ServiceConfig) *Service {
	timeout := cfg.StorageTimeout
	if timeout <= 0 {
		timeout = defaultStorageTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:        cfg.Repository,
		issuer:      cfg.Issuer,
		revocations: cfg.Revocations,
		logger:      logger.With("component", "auth"),
		timeout:     timeout,
		now:         time.Now,
	}
}

// LoginRequest carries the login envelope fields.
type LoginRequest struct {
	OrganizationCode string
	Username         string
	Password         string
}

// LoginResult is a successful login.
type LoginResult struct {
	Token IssuedToken
	User  *User
}

// Login verifies a password and issues a session token.
//
// Every failure that depends on the submitted credentials returns
// ErrInvalidCredentials so callers cannot tell which field was wrong.
// Legacy credentials are rewritten in the current format after a
// successful login; that rewrite never fails the login.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if req.OrganizationCode == "" || req.Username == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	org, err := s.findOrganization(ctx, req.OrganizationCode)
	if errors.Is(err, ErrNotFound) {
		burnVerification(req.Password)
		s.logger.Info("login failed", "reason", "unknown organization", "organization_code", req.OrganizationCode)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	user, err := s.findUser(ctx, org.ID, req.Username)
	if errors.Is(err, ErrNotFound) {
		burnVerification(req.Password)
		s.logger.Info("login failed", "reason", "unknown user", "org_id", org.ID, "username", req.Username)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !VerifyPassword(req.Password, user.Credential) {
		s.logger.Info("login failed", "reason", "wrong password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	if !org.Active() || !user.Active() {
		s.logger.Info("login failed", "reason", "inactive account", "user_id", user.ID, "org_id", org.ID)
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	fields := store.Document{FieldLastLoginAt: store.Timestamp(now)}
	if user.Credential.NeedsUpgrade() {
		if hash, salt, hashErr := HashPassword(req.Password); hashErr != nil {
			s.logger.Warn("credential upgrade skipped", "user_id", user.ID, "error", hashErr)
		} else {
			fields[FieldPasswordHash] = hash
			fields[FieldSalt] = salt
			fields[FieldHashFormat] = FormatCurrent
		}
	}
	if err := s.updateUser(ctx, user.ID, fields); err != nil {
		s.logger.Warn("post-login update failed", "user_id", user.ID, "upgrade", user.Credential.NeedsUpgrade(), "error", err)
	} else if _, upgraded := fields[FieldPasswordHash]; upgraded {
		s.logger.Info("credential upgraded", "user_id", user.ID)
		user.Credential = ParseCredential(fields.String(FieldPasswordHash), "")
	}
	user.LastLoginAt = fields.String(FieldLastLoginAt)

	token, err := s.issuer.Issue(Identity{UserID: user.ID, OrgID: user.OrgID, RoleID: user.RoleID})
	if err != nil {
		return nil, err
	}

	s.logger.Info("login succeeded", "user_id", user.ID, "org_id", user.OrgID, "token_id", token.ID)
	return &LoginResult{Token: token, User: user}, nil
}

// VerifyToken checks a session token and re-loads its user.
//
// The user must still exist, be active and belong to the token's
// organization, and the organization must be active. A deleted role grants
// nothing. A revocation lookup
// failure denies the token.
func (s *Service) VerifyToken(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return nil, err
	}

	if s.revocations != nil {
		revoked, err := s.isRevoked(ctx, claims.ID)
		if err != nil {
			s.logger.Error("revocation lookup failed, denying token", "token_id", claims.ID, "error", err)
			return nil, fmt.Errorf("%w: revocation status unavailable", ErrUnauthenticated)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	user, err := s.getUser(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUserInactive
	}
	if err != nil {
		return nil, err
	}
	if !user.Active() || user.OrgID != claims.OrgID {
		return nil, ErrUserInactive
	}

	org, err := s.getOrganization(ctx, user.OrgID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUserInactive
	}
	if err != nil {
		return nil, err
	}
	if !org.Active() {
		return nil, ErrUserInactive
	}

	var capabilities []string
	if user.RoleID != "" {
		role, err := s.getRole(ctx, user.RoleID)
		switch {
		case errors.Is(err, ErrNotFound):
			s.logger.Warn("user references missing role", "user_id", user.ID, "role_id", user.RoleID)
		case err != nil:
			return nil, err
		case role.Deleted:
			s.logger.Warn("user references deleted role", "user_id", user.ID, "role_id", user.RoleID)
		case role.OrgID == user.OrgID:
			capabilities = role.Permissions
		default:
			s.logger.Warn("user references role of another organization", "user_id", user.ID, "role_id", user.RoleID)
		}
	}

	p := NewPrincipal(user.ID, user.OrgID, user.RoleID, user.IsSuperAdmin, capabilities)
	p.Username = user.Username
	p.TokenID = claims.ID
	return p, nil
}

// Logout revokes token until it expires. The token must verify
// cryptographically; revoking an already revoked token succeeds.
func (s *Service) Logout(ctx context.Context, token string) error {
	if s.revocations == nil {
		return errors.New("token revocation is not configured")
	}
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.revocations.Revoke(ctx, claims); err != nil {
		return err
	}
	s.logger.Info("token revoked", "user_id", claims.Subject, "token_id", claims.ID)
	return nil
}

func (s *Service) findOrganization(ctx context.Context, code string) (*Organization, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repo.FindOrganizationByCode(ctx, code)
}

func (s *Service) getOrganization(ctx context.Context, id string) (*Organization, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repo.GetOrganization(ctx, id)
}

func (s *Service) findUser(ctx context.Context, orgID, username string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repo.FindUser(ctx, orgID, username)
}

func (s *Service) getUser(ctx context.Context, id string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repo.GetUser(ctx, id)
}

func (s *Service) getRole(ctx context.Context, id string) (*Role, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repo.GetRole(ctx, id)
}

func (s *Service) updateUser(ctx context.Context, id string, fields store.Document) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repo.UpdateUser(ctx, id, fields)
}

func (s *Service) isRevoked(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.revocations.IsRevoked(ctx, tokenID)
}
