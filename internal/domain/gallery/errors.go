package gallery

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrRateLimited   = errors.New("too many ingest requests")
	ErrForbiddenRole = errors.New("role is not allowed to ingest photos")
	ErrEntryNotFound = errors.New("catalog entry not found")
	ErrNotOwner      = errors.New("you can only manage your own entries")

	// ErrAccountMissing is returned by the repository when the owning
	// account referenced by an insert does not exist.
	ErrAccountMissing = errors.New("owning account does not exist")

	ErrReasonRequired = errors.New("a reason is required to reject an entry")
)

// Quota error codes
const (
	CodePhotosLimit = "photos_limit"
	CodeBytesLimit  = "bytes_limit"
)

// QuotaError reports which quota dimension was exhausted with a stable
// machine-readable code.
type QuotaError struct {
	Code    string
	Current int64
	Limit   int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded (%s): %d of %d used", e.Code, e.Current, e.Limit)
}

// AccountRequiredError is surfaced when a catalog insert fails because the
// actor's account was never provisioned. The actor id is included for
// operator follow-up.
type AccountRequiredError struct {
	ActorID uuid.UUID
}

func (e *AccountRequiredError) Error() string {
	return fmt.Sprintf("account %s must be provisioned before uploading", e.ActorID)
}
