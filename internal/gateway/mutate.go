package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/tenantgate/internal/auth"
	"github.com/nerrad567/tenantgate/internal/observer"
	"github.com/nerrad567/tenantgate/internal/store"
	"github.com/nerrad567/tenantgate/internal/validation"
)

// systemFields are maintained by the gateway and ignored in client payloads.
var systemFields = []string{
	store.IDField,
	FieldCreatedBy, FieldCreatedAt,
	FieldUpdatedBy, FieldUpdatedAt,
	FieldDeleted, FieldDeletedAt, FieldDeletedBy,
}

// userManagedFields are written only by the credential and login paths.
var userManagedFields = []string{
	auth.FieldPasswordHash,
	auth.FieldSalt,
	auth.FieldHashFormat,
	auth.FieldLastLoginAt,
	auth.FieldPasswordChangedAt,
}

// clientPayload copies data without fields the client may not set.
func clientPayload(collection string, data store.Document, isUpdate bool) store.Document {
	out := data.Clone()
	for _, f := range systemFields {
		delete(out, f)
	}
	if collection == auth.CollectionUsers {
		for _, f := range userManagedFields {
			delete(out, f)
		}
	}
	if isUpdate {
		// Tenant membership is immutable.
		delete(out, auth.FieldOrgID)
	}
	return out
}

// Create inserts data into collection for the caller's organization and
// returns the stored document.
func (g *Gateway) Create(ctx context.Context, token, collection string, data store.Document) (store.Document, error) {
	start := time.Now()
	p, err := g.authorize(ctx, token, collection, auth.ActionCreate)
	if err != nil {
		g.emit(observer.OpCreate, collection, p, start, err, "", 0)
		return nil, err
	}
	return g.create(ctx, p, collection, data)
}

func (g *Gateway) create(ctx context.Context, p *auth.Principal, collection string, data store.Document) (store.Document, error) {
	start := time.Now()
	doc, err := g.createDocument(ctx, p, collection, data)
	g.emit(observer.OpCreate, collection, p, start, err, doc.ID(), countOf(err))
	if err != nil {
		return nil, err
	}
	return sanitize(collection, doc), nil
}

func (g *Gateway) createDocument(ctx context.Context, p *auth.Principal, collection string, data store.Document) (store.Document, error) {
	doc := clientPayload(collection, data, false)
	if collection != auth.CollectionOrganizations {
		doc[auth.FieldOrgID] = p.OrgID
	}

	if err := g.rules.Validate(collection, doc, false); err != nil {
		return nil, err
	}

	now := g.timestamp()
	if collection == auth.CollectionUsers {
		if err := g.prepareUser(ctx, p, doc, "", now); err != nil {
			return nil, err
		}
		if _, ok := doc[auth.FieldStatus]; !ok {
			doc[auth.FieldStatus] = auth.StatusActive
		}
	}
	if collection == auth.CollectionOrganizations {
		if _, ok := doc[auth.FieldStatus]; !ok {
			doc[auth.FieldStatus] = auth.StatusActive
		}
	}

	doc[FieldCreatedBy] = p.UserID
	doc[FieldCreatedAt] = now
	doc[FieldUpdatedBy] = p.UserID
	doc[FieldUpdatedAt] = now

	var id string
	err := g.storageCall(ctx, "insert", collection, func(ctx context.Context) error {
		var err error
		id, err = g.store.Insert(ctx, collection, doc)
		return err
	})
	if err != nil {
		return nil, uniqueViolation(collection, err)
	}
	doc[store.IDField] = id
	return doc, nil
}

// Update sets the fields in data on document id and returns the updated
// document.
func (g *Gateway) Update(ctx context.Context, token, collection, id string, data store.Document) (store.Document, error) {
	start := time.Now()
	p, err := g.authorize(ctx, token, collection, auth.ActionUpdate)
	if err != nil {
		g.emit(observer.OpUpdate, collection, p, start, err, id, 0)
		return nil, err
	}
	return g.update(ctx, p, collection, id, data)
}

func (g *Gateway) update(ctx context.Context, p *auth.Principal, collection, id string, data store.Document) (store.Document, error) {
	start := time.Now()
	doc, err := g.updateDocument(ctx, p, collection, id, data)
	g.emit(observer.OpUpdate, collection, p, start, err, id, countOf(err))
	if err != nil {
		return nil, err
	}
	return sanitize(collection, doc), nil
}

func (g *Gateway) updateDocument(ctx context.Context, p *auth.Principal, collection, id string, data store.Document) (store.Document, error) {
	if id == "" {
		return nil, validation.Invalid(store.IDField, validation.RuleRequired, "document id is required")
	}
	fields := clientPayload(collection, data, true)
	if len(fields) == 0 {
		return nil, validation.Invalid("data", validation.RuleRequired, "no updatable fields supplied")
	}

	current, err := g.loadTarget(ctx, p, collection, id)
	if err != nil {
		return nil, err
	}
	if err := protectSuperAdmin(p, collection, current, auth.ActionUpdate); err != nil {
		return nil, err
	}

	if err := g.rules.Validate(collection, fields, true); err != nil {
		return nil, err
	}

	now := g.timestamp()
	if collection == auth.CollectionUsers {
		if err := g.prepareUser(ctx, p, fields, id, now); err != nil {
			return nil, err
		}
	}
	fields[FieldUpdatedBy] = p.UserID
	fields[FieldUpdatedAt] = now

	err = g.storageCall(ctx, "update", collection, func(ctx context.Context) error {
		return g.store.Update(ctx, collection, id, fields)
	})
	if err != nil {
		return nil, uniqueViolation(collection, err)
	}

	for k, v := range fields {
		current[k] = v
	}
	return current, nil
}

// Delete soft-deletes document id.
func (g *Gateway) Delete(ctx context.Context, token, collection, id string) error {
	start := time.Now()
	p, err := g.authorize(ctx, token, collection, auth.ActionDelete)
	if err != nil {
		g.emit(observer.OpDelete, collection, p, start, err, id, 0)
		return err
	}
	return g.delete(ctx, p, collection, id)
}

func (g *Gateway) delete(ctx context.Context, p *auth.Principal, collection, id string) error {
	start := time.Now()
	err := g.deleteDocument(ctx, p, collection, id)
	g.emit(observer.OpDelete, collection, p, start, err, id, countOf(err))
	return err
}

func (g *Gateway) deleteDocument(ctx context.Context, p *auth.Principal, collection, id string) error {
	if id == "" {
		return validation.Invalid(store.IDField, validation.RuleRequired, "document id is required")
	}
	current, err := g.loadTarget(ctx, p, collection, id)
	if err != nil {
		return err
	}
	if err := protectSuperAdmin(p, collection, current, auth.ActionDelete); err != nil {
		return err
	}

	now := g.timestamp()
	return g.storageCall(ctx, "update", collection, func(ctx context.Context) error {
		return g.store.Update(ctx, collection, id, store.Document{
			FieldDeleted:   true,
			FieldDeletedAt: now,
			FieldDeletedBy: p.UserID,
			FieldUpdatedBy: p.UserID,
			FieldUpdatedAt: now,
		})
	})
}

// loadTarget fetches id and hides documents of other tenants and
// soft-deleted documents behind ErrNotFound.
func (g *Gateway) loadTarget(ctx context.Context, p *auth.Principal, collection, id string) (store.Document, error) {
	var doc store.Document
	err := g.storageCall(ctx, "get", collection, func(ctx context.Context) error {
		var err error
		doc, err = g.store.Get(ctx, collection, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !inTenant(doc, collection, p) || doc.Bool(FieldDeleted) {
		return nil, ErrNotFound
	}
	return doc, nil
}

// prepareUser enforces the user-specific write rules on fields: privilege
// escalation, role ownership, username uniqueness and password hashing.
// selfID is the user being updated, empty on create.
func (g *Gateway) prepareUser(ctx context.Context, p *auth.Principal, fields store.Document, selfID, now string) error {
	action := auth.ActionUpdate
	if selfID == "" {
		action = auth.ActionCreate
	}
	if fields.Bool(auth.FieldIsSuperAdmin) && !p.IsSuperAdmin {
		return superAdminRequired(action)
	}

	if roleID, ok := fields[auth.FieldRoleID].(string); ok && roleID != "" {
		var role store.Document
		err := g.storageCall(ctx, "get", auth.CollectionRoles, func(ctx context.Context) error {
			var err error
			role, err = g.store.Get(ctx, auth.CollectionRoles, roleID)
			return err
		})
		if errors.Is(err, ErrNotFound) || (err == nil && (role.String(auth.FieldOrgID) != p.OrgID || role.Bool(FieldDeleted))) {
			return validation.Invalid(auth.FieldRoleID, "reference", "role does not exist")
		}
		if err != nil {
			return err
		}
	}

	if username, ok := fields[auth.FieldUsername].(string); ok {
		taken, err := g.usernameTaken(ctx, p.OrgID, username, selfID)
		if err != nil {
			return err
		}
		if taken {
			return usernameTaken()
		}
	}

	if password, ok := fields[auth.FieldPassword].(string); ok {
		hash, salt, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		delete(fields, auth.FieldPassword)
		fields[auth.FieldPasswordHash] = hash
		fields[auth.FieldSalt] = salt
		fields[auth.FieldHashFormat] = auth.FormatCurrent
		fields[auth.FieldPasswordChangedAt] = now
	}
	return nil
}

// usernameTaken reports whether another user of orgID holds username.
// Soft-deleted users keep their username.
func (g *Gateway) usernameTaken(ctx context.Context, orgID, username, selfID string) (bool, error) {
	var docs []store.Document
	err := g.storageCall(ctx, "find", auth.CollectionUsers, func(ctx context.Context) error {
		var err error
		docs, err = g.store.Find(ctx, auth.CollectionUsers, store.Query{
			Filter: store.Filter{auth.FieldOrgID: orgID, auth.FieldUsername: username},
			Limit:  2,
		})
		return err
	})
	if err != nil {
		return false, err
	}
	for _, d := range docs {
		if d.ID() != selfID {
			return true, nil
		}
	}
	return false, nil
}

// CapabilitySuperAdmin names the privilege needed to create, change or
// delete super-admin accounts.
const CapabilitySuperAdmin = "superadmin"

func superAdminRequired(action auth.Action) error {
	return &auth.AuthorizationError{
		Collection: auth.CollectionUsers,
		Action:     action,
		Capability: CapabilitySuperAdmin,
	}
}

// protectSuperAdmin stops ordinary administrators from modifying a
// super-admin account.
func protectSuperAdmin(p *auth.Principal, collection string, target store.Document, action auth.Action) error {
	if collection == auth.CollectionUsers && target.Bool(auth.FieldIsSuperAdmin) && !p.IsSuperAdmin {
		return superAdminRequired(action)
	}
	return nil
}

func usernameTaken() error {
	return validation.Invalid(auth.FieldUsername, "unique", "username already exists in this organization")
}

// uniqueViolation names the field behind a unique index failure.
func uniqueViolation(collection string, err error) error {
	verrs := Violations(err)
	if len(verrs) != 1 || verrs[0].Rule != "unique" || verrs[0].Field != "" {
		return err
	}
	switch collection {
	case auth.CollectionUsers:
		return usernameTaken()
	case auth.CollectionOrganizations:
		return validation.Invalid(auth.FieldCode, "unique", "organization code already exists")
	}
	return err
}

func countOf(err error) int {
	if err != nil {
		return 0
	}
	return 1
}
