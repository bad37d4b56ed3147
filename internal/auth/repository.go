package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/tenantgate/internal/store"
)

// Repository reads and writes the identity collections through a
// document store.
type Repository struct {
	store store.Store
}

// NewRepository creates a repository over s.
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

// ErrNotFound is returned when an organization, user or role does not exist.
var ErrNotFound = errors.New("identity record not found")

// FindOrganizationByCode looks up a tenant by its unique code.
func (r *Repository) FindOrganizationByCode(ctx context.Context, code string) (*Organization, error) {
	docs, err := r.store.Find(ctx, CollectionOrganizations, store.Query{
		Filter: store.Filter{FieldCode: code},
		Limit:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("finding organization: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return organizationFromDocument(docs[0]), nil
}

// GetOrganization loads a tenant by id.
func (r *Repository) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	doc, err := r.get(ctx, CollectionOrganizations, id)
	if err != nil {
		return nil, err
	}
	return organizationFromDocument(doc), nil
}

// FindUser looks up a user by username within one organization.
func (r *Repository) FindUser(ctx context.Context, orgID, username string) (*User, error) {
	docs, err := r.store.Find(ctx, CollectionUsers, store.Query{
		Filter: store.Filter{FieldOrgID: orgID, FieldUsername: username},
		Limit:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return userFromDocument(docs[0]), nil
}

// GetUser loads a user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (*User, error) {
	doc, err := r.get(ctx, CollectionUsers, id)
	if err != nil {
		return nil, err
	}
	return userFromDocument(doc), nil
}

// GetRole loads a role by id.
func (r *Repository) GetRole(ctx context.Context, id string) (*Role, error) {
	doc, err := r.get(ctx, CollectionRoles, id)
	if err != nil {
		return nil, err
	}
	return roleFromDocument(doc), nil
}

// UpdateUser sets fields on a user document.
func (r *Repository) UpdateUser(ctx context.Context, id string, fields store.Document) error {
	if err := r.store.Update(ctx, CollectionUsers, id, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

// CountOrganizations returns the number of tenants, deleted ones included.
func (r *Repository) CountOrganizations(ctx context.Context) (int64, error) {
	n, err := r.store.Count(ctx, CollectionOrganizations, nil)
	if err != nil {
		return 0, fmt.Errorf("counting organizations: %w", err)
	}
	return n, nil
}

// Insert writes a new identity document and returns its id.
func (r *Repository) Insert(ctx context.Context, collection string, doc store.Document) (string, error) {
	id, err := r.store.Insert(ctx, collection, doc)
	if err != nil {
		return "", fmt.Errorf("inserting into %s: %w", collection, err)
	}
	return id, nil
}

func (r *Repository) get(ctx context.Context, collection, id string) (store.Document, error) {
	doc, err := r.store.Get(ctx, collection, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s/%s: %w", collection, id, err)
	}
	return doc, nil
}
