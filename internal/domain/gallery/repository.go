package gallery

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Repository defines catalog data access
type Repository interface {
	Insert(ctx context.Context, entry *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	GetByOriginalKey(ctx context.Context, key string) (*Entry, error)
	CountApprovedByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)
	RecentFingerprints(ctx context.Context, limit int) ([]EntryFingerprint, error)
	ListPublic(ctx context.Context, limit, offset int) ([]*Entry, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, reason string) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) error
	HardDelete(ctx context.Context, id uuid.UUID) error
	AppendAudit(ctx context.Context, audit *AuditEntry) error
	ListAudit(ctx context.Context, entryID uuid.UUID) ([]*AuditEntry, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates a new catalog repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO entries (id, owner_id, status, original_key, variant_urls, width, height,
			perceptual_hash, duplicate_of, rejection_reason, deleted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.OwnerID,
		entry.Status,
		entry.OriginalKey,
		entry.VariantURLs,
		entry.Width,
		entry.Height,
		entry.PerceptualHash,
		entry.DuplicateOf,
		entry.RejectionReason,
		entry.DeletedAt,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" { // foreign_key_violation
			return ErrAccountMissing
		}
		return err
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	query := `SELECT * FROM entries WHERE id = $1`
	var entry Entry
	err := r.db.GetContext(ctx, &entry, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) GetByOriginalKey(ctx context.Context, key string) (*Entry, error) {
	query := `SELECT * FROM entries WHERE original_key = $1`
	var entry Entry
	err := r.db.GetContext(ctx, &entry, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) CountApprovedByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM entries WHERE owner_id = $1 AND status = $2 AND deleted_at IS NULL`
	var count int
	err := r.db.GetContext(ctx, &count, query, ownerID, StatusApproved)
	return count, err
}

func (r *repository) RecentFingerprints(ctx context.Context, limit int) ([]EntryFingerprint, error) {
	query := `
		SELECT id, perceptual_hash FROM entries
		WHERE perceptual_hash IS NOT NULL AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1
	`
	var rows []EntryFingerprint
	err := r.db.SelectContext(ctx, &rows, query, limit)
	return rows, err
}

func (r *repository) ListPublic(ctx context.Context, limit, offset int) ([]*Entry, int, error) {
	query := `
		SELECT * FROM entries
		WHERE status = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	var entries []*Entry
	if err := r.db.SelectContext(ctx, &entries, query, StatusApproved, limit, offset); err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM entries WHERE status = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &total, countQuery, StatusApproved); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, reason string) error {
	query := `
		UPDATE entries
		SET status = $2, rejection_reason = NULLIF($3, ''), updated_at = $4
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, status, reason, time.Now())
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE entries SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *repository) Restore(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE entries SET deleted_at = NULL, updated_at = $2 WHERE id = $1 AND deleted_at IS NOT NULL`
	res, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *repository) HardDelete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM entries WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *repository) AppendAudit(ctx context.Context, audit *AuditEntry) error {
	query := `
		INSERT INTO audit_entries (id, entry_id, action, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		audit.ID,
		audit.EntryID,
		audit.Action,
		audit.Actor,
		audit.Reason,
		audit.CreatedAt,
	)
	return err
}

func (r *repository) ListAudit(ctx context.Context, entryID uuid.UUID) ([]*AuditEntry, error) {
	query := `SELECT * FROM audit_entries WHERE entry_id = $1 ORDER BY created_at`
	var audits []*AuditEntry
	err := r.db.SelectContext(ctx, &audits, query, entryID)
	return audits, err
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}
