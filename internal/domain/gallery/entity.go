package gallery

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the moderation state of a catalog entry
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusPrivate  Status = "PRIVATE"

	// StatusDuplicate is a response-only outcome. A duplicate never gets
	// its own catalog row; the status exists only on the wire.
	StatusDuplicate Status = "DUPLICATE"
)

// Variant size labels
const (
	SizeSmall  = "sm"
	SizeMedium = "md"
	SizeLarge  = "lg"
)

// VariantURLs maps a size label to its published URL. Stored as JSONB.
type VariantURLs map[string]string

// Value implements driver.Valuer
func (v VariantURLs) Value() (driver.Value, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// Scan implements sql.Scanner
func (v *VariantURLs) Scan(src interface{}) error {
	if src == nil {
		*v = VariantURLs{}
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported variant_urls type %T", src)
	}
	return json.Unmarshal(raw, v)
}

// Entry represents a photo record in the catalog.
// The id is derived deterministically from the idempotency key, so retried
// ingests land on the same row.
type Entry struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	OwnerID         uuid.NullUUID  `db:"owner_id" json:"owner_id,omitempty"`
	Status          Status         `db:"status" json:"status"`
	OriginalKey     string         `db:"original_key" json:"original_key"`
	VariantURLs     VariantURLs    `db:"variant_urls" json:"variant_urls"`
	Width           sql.NullInt64  `db:"width" json:"width,omitempty"`
	Height          sql.NullInt64  `db:"height" json:"height,omitempty"`
	PerceptualHash  sql.NullString `db:"perceptual_hash" json:"perceptual_hash,omitempty"`
	DuplicateOf     uuid.NullUUID  `db:"duplicate_of" json:"duplicate_of,omitempty"`
	RejectionReason sql.NullString `db:"rejection_reason" json:"rejection_reason,omitempty"`
	DeletedAt       sql.NullTime   `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// IsDeleted reports whether the entry carries a soft-delete tombstone
func (e *Entry) IsDeleted() bool {
	return e.DeletedAt.Valid
}

// PubliclyVisible reports whether the entry may appear in public listings.
// A tombstoned entry is never visible regardless of status.
func (e *Entry) PubliclyVisible() bool {
	return e.Status == StatusApproved && !e.IsDeleted()
}

// EntryFingerprint is the projection used by duplicate detection
type EntryFingerprint struct {
	ID             uuid.UUID `db:"id"`
	PerceptualHash string    `db:"perceptual_hash"`
}

// AuditAction enumerates state-changing operations recorded in the audit log
type AuditAction string

const (
	AuditIngested    AuditAction = "INGESTED"
	AuditRestored    AuditAction = "RESTORED"
	AuditSoftDeleted AuditAction = "SOFT_DELETED"
	AuditDeleted     AuditAction = "DELETED"
)

// AuditEntry is an append-only record of a state-changing operation.
// It is best-effort: audit failures never roll back the operation they
// describe.
type AuditEntry struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	EntryID   uuid.UUID      `db:"entry_id" json:"entry_id"`
	Action    AuditAction    `db:"action" json:"action"`
	Actor     string         `db:"actor" json:"actor"`
	Reason    sql.NullString `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// Actor is the authenticated identity performing a request, resolved by
// the session collaborator upstream of this package.
type Actor struct {
	ID    uuid.UUID
	Email string
	Role  string
}
