package gateway

import (
	"errors"
	"fmt"

	"github.com/nerrad567/tenantgate/internal/auth"
	"github.com/nerrad567/tenantgate/internal/validation"
)

// ErrNotFound is returned when the target of an update or delete does not
// exist, belongs to another organization or is soft-deleted.
var ErrNotFound = errors.New("resource not found")

// StorageError wraps a fault in the underlying store, including timeouts.
type StorageError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s on %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Kind classifies gateway errors for transport mapping.
type Kind string

// Error kinds.
const (
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindStorage        Kind = "storage"
	KindInternal       Kind = "internal"
)

// KindOf returns the kind of err. Unrecognised errors are KindInternal.
func KindOf(err error) Kind {
	var (
		verrs   validation.Errors
		storage *StorageError
	)
	switch {
	case err == nil:
		return ""
	case auth.IsAuthenticationError(err):
		return KindAuthentication
	case errors.Is(err, auth.ErrForbidden):
		return KindAuthorization
	case errors.As(err, &verrs):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &storage):
		return KindStorage
	default:
		return KindInternal
	}
}

// Violations returns the field violations carried by err, if any.
func Violations(err error) []validation.Violation {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return verrs
	}
	return nil
}

// PublicMessage is the caller-safe description of err. Storage and
// internal faults get a generic message; their details are only logged.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindAuthentication:
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return auth.ErrInvalidCredentials.Error()
		}
		return "authentication required"
	case KindAuthorization:
		var authErr *auth.AuthorizationError
		if errors.As(err, &authErr) {
			return "missing capability " + authErr.Capability
		}
		return auth.ErrForbidden.Error()
	case KindValidation:
		return "validation failed"
	case KindNotFound:
		return ErrNotFound.Error()
	case KindStorage:
		return "storage unavailable, try again later"
	default:
		return "internal error"
	}
}
