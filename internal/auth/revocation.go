package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/tenantgate/internal/store"
)

// RevocationList records session tokens that were logged out before they
// expired. It is consulted only on the token verification path.
type RevocationList interface {
	Revoke(ctx context.Context, claims *Claims) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// StoreRevocationList keeps revoked token ids in the token_revocations
// collection, keyed by jti.
type StoreRevocationList struct {
	store store.Store
	now   func() time.Time
}

// NewRevocationList creates a store-backed revocation list.
func NewRevocationList(s store.Store) *StoreRevocationList {
	return &StoreRevocationList{store: s, now: time.Now}
}

// Revoke records claims.ID. Revoking twice is not an error.
func (l *StoreRevocationList) Revoke(ctx context.Context, claims *Claims) error {
	doc := store.Document{
		store.IDField: claims.ID,
		"userId":      claims.Subject,
		FieldOrgID:    claims.OrgID,
		"revokedAt":   store.Timestamp(l.now()),
	}
	if claims.ExpiresAt != nil {
		doc["expiresAt"] = store.Timestamp(claims.ExpiresAt.Time)
	}

	if _, err := l.store.Insert(ctx, CollectionRevocations, doc); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID was revoked.
func (l *StoreRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, err := l.store.Get(ctx, CollectionRevocations, tokenID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("checking revocation: %w", err)
	}
}
