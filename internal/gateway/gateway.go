package gateway

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/nerrad567/tenantgate/internal/auth"
	"github.com/nerrad567/tenantgate/internal/infrastructure/logging"
	"github.com/nerrad567/tenantgate/internal/observer"
	"github.com/nerrad567/tenantgate/internal/store"
	"github.com/nerrad567/tenantgate/internal/validation"
)

// Audit and soft-delete fields written by the gateway.
const (
	FieldCreatedBy = "createdBy"
	FieldCreatedAt = "createdAt"
	FieldUpdatedBy = "updatedBy"
	FieldUpdatedAt = "updatedAt"
	FieldDeleted   = "deleted"
	FieldDeletedAt = "deletedAt"
	FieldDeletedBy = "deletedBy"
)

// Config bounds gateway operations.
type Config struct {
	DefaultPageSize     int
	MaxPageSize         int
	MaxBatchItems       int
	BatchConcurrency    int
	MaxAggregateResults int
	StorageTimeout      time.Duration
}

// DefaultConfig returns the built-in limits.
func DefaultConfig() Config {
	return Config{
		DefaultPageSize:     20,
		MaxPageSize:         100,
		MaxBatchItems:       100,
		BatchConcurrency:    4,
		MaxAggregateResults: 1000,
		StorageTimeout:      10 * time.Second,
	}
}

// withDefaults fills unset limits.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = d.DefaultPageSize
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = d.MaxPageSize
	}
	if c.DefaultPageSize > c.MaxPageSize {
		c.DefaultPageSize = c.MaxPageSize
	}
	if c.MaxBatchItems <= 0 {
		c.MaxBatchItems = d.MaxBatchItems
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = d.BatchConcurrency
	}
	if c.MaxAggregateResults <= 0 {
		c.MaxAggregateResults = d.MaxAggregateResults
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = d.StorageTimeout
	}
	return c
}

// Authenticator is the session side of the auth service.
type Authenticator interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
	VerifyToken(ctx context.Context, token string) (*auth.Principal, error)
	Logout(ctx context.Context, token string) error
}

// Deps wires a Gateway. Observer and Logger are optional.
type Deps struct {
	Store       store.Store
	Auth        Authenticator
	Permissions *auth.PermissionMap
	Rules       *validation.RuleSet
	Observer    observer.Observer
	Logger      *logging.Logger
	Config      Config
}

// Gateway serves permissioned, tenant-scoped document operations.
// It holds no per-request state and is safe for concurrent use.
type Gateway struct {
	store       store.Store
	auth        Authenticator
	permissions *auth.PermissionMap
	rules       *validation.RuleSet
	observer    observer.Observer
	logger      *logging.Logger
	cfg         Config
	now         func() time.Time
}

// New creates a Gateway.
func New(deps Deps) *Gateway {
	obs := deps.Observer
	if obs == nil {
		obs = observer.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	perms := deps.Permissions
	if perms == nil {
		perms = auth.DefaultPermissionMap()
	}
	rules := deps.Rules
	if rules == nil {
		rules = validation.DefaultRules()
	}
	return &Gateway{
		store:       deps.Store,
		auth:        deps.Auth,
		permissions: perms,
		rules:       rules,
		observer:    obs,
		logger:      logger.With("component", "gateway"),
		cfg:         deps.Config.withDefaults(),
		now:         time.Now,
	}
}

// Config returns the effective limits.
func (g *Gateway) Config() Config {
	return g.cfg
}

// collectionPattern limits collection names to what every backend accepts.
var collectionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// internalCollections are never reachable through the gateway.
var internalCollections = map[string]bool{
	auth.CollectionRevocations: true,
}

func checkCollection(name string) error {
	if !collectionPattern.MatchString(name) || internalCollections[name] {
		return validation.Invalid("collection", "invalid", "collection "+quote(name)+" is not available")
	}
	return nil
}

func quote(s string) string {
	return "\"" + s + "\""
}

// authorize verifies token and checks the capability for (collection, action).
func (g *Gateway) authorize(ctx context.Context, token, collection string, action auth.Action) (*auth.Principal, error) {
	p, err := g.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := checkCollection(collection); err != nil {
		return p, err
	}
	if err := g.permissions.Check(p, collection, action); err != nil {
		var authErr *auth.AuthorizationError
		if errors.As(err, &authErr) {
			g.logger.Info("permission denied",
				"user_id", p.UserID,
				"org_id", p.OrgID,
				"collection", collection,
				"action", string(action),
				"capability", authErr.Capability,
			)
		}
		return p, err
	}
	return p, nil
}

func (g *Gateway) authenticate(ctx context.Context, token string) (*auth.Principal, error) {
	if token == "" {
		return nil, auth.ErrUnauthenticated
	}
	p, err := g.auth.VerifyToken(ctx, token)
	if err == nil {
		return p, nil
	}
	if auth.IsAuthenticationError(err) {
		return nil, err
	}
	return nil, &StorageError{Op: "verify", Collection: auth.CollectionUsers, Err: err}
}

// tenantField is the field that scopes collection to an organization.
func tenantField(collection string) string {
	if collection == auth.CollectionOrganizations {
		return store.IDField
	}
	return auth.FieldOrgID
}

// scopeFilter overlays the tenant condition, and the soft-delete exclusion
// unless includeDeleted, on f.
func scopeFilter(f store.Filter, collection string, p *auth.Principal, includeDeleted bool) store.Filter {
	scope := store.Filter{tenantField(collection): p.OrgID}
	if !includeDeleted {
		scope[FieldDeleted] = map[string]any{store.OpNe: true}
	}
	return f.Merge(scope)
}

// inTenant reports whether doc belongs to p's organization.
func inTenant(doc store.Document, collection string, p *auth.Principal) bool {
	if collection == auth.CollectionOrganizations {
		return doc.ID() == p.OrgID
	}
	return doc.String(auth.FieldOrgID) == p.OrgID
}

// sensitiveFields are never returned, filtered or grouped on.
var sensitiveFields = map[string]bool{
	auth.FieldPassword:     true,
	auth.FieldPasswordHash: true,
	auth.FieldSalt:         true,
}

func isSensitive(collection, field string) bool {
	if collection != auth.CollectionUsers {
		return false
	}
	root, _, _ := strings.Cut(field, ".")
	return sensitiveFields[root]
}

// sanitize returns doc without sensitive fields.
func sanitize(collection string, doc store.Document) store.Document {
	if collection != auth.CollectionUsers || doc == nil {
		return doc
	}
	out := doc.Clone()
	for f := range sensitiveFields {
		delete(out, f)
	}
	return out
}

// storageCall runs fn under the storage timeout and classifies its error.
func (g *Gateway) storageCall(ctx context.Context, op, collection string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.StorageTimeout)
	defer cancel()
	err := fn(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrInvalidQuery):
		return validation.Invalid("query", "invalid", strings.TrimPrefix(err.Error(), store.ErrInvalidQuery.Error()+": "))
	case errors.Is(err, store.ErrDuplicate):
		return validation.Invalid("", "unique", "a document with the same unique key already exists")
	default:
		g.logger.Error("storage call failed", "op", op, "collection", collection, "error", err)
		return &StorageError{Op: op, Collection: collection, Err: err}
	}
}

// emit reports a finished operation to the observer.
func (g *Gateway) emit(op, collection string, p *auth.Principal, start time.Time, err error, docID string, items int) {
	e := observer.Event{
		Time:       g.now(),
		Operation:  op,
		Collection: collection,
		DocumentID: docID,
		Outcome:    observer.OutcomeSuccess,
		Duration:   time.Since(start),
		Items:      items,
	}
	if p != nil {
		e.OrgID = p.OrgID
		e.UserID = p.UserID
	}
	if err != nil {
		e.Outcome = observer.OutcomeFailure
		e.ErrorKind = string(KindOf(err))
	}
	g.observer.Observe(e)
}

// timestamp is the current time in the stored layout.
func (g *Gateway) timestamp() string {
	return store.Timestamp(g.now())
}
