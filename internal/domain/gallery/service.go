package gallery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/framegrid/gallery-api/internal/domain/account"
	"github.com/framegrid/gallery-api/internal/pkg/ratelimit"
	"github.com/framegrid/gallery-api/internal/pkg/storage"
)

// AuditPublisher receives audit events as they are appended, e.g. a
// websocket feed for moderators. Optional and best-effort.
type AuditPublisher interface {
	PublishAudit(audit *AuditEntry)
}

// Service sequences admission control, idempotency resolution, quota
// checks, duplicate detection, variant generation and catalog persistence
// into one request-scoped ingest flow, and owns the moderation operations
// on the catalog.
type Service struct {
	repo      Repository
	idem      IdempotencyStore
	storage   storage.Storage
	pipeline  *Pipeline
	limiter   *ratelimit.Limiter
	dedup     *DuplicateResolver
	quotas    *QuotaPolicy
	usage     *UsageTracker
	publisher AuditPublisher // may be nil
}

// NewService creates the gallery service. The rate limiter is an
// explicitly owned instance, injected so tests can substitute a fresh one
// per case.
func NewService(
	repo Repository,
	idem IdempotencyStore,
	st storage.Storage,
	pipeline *Pipeline,
	limiter *ratelimit.Limiter,
	dedup *DuplicateResolver,
	quotas *QuotaPolicy,
	usage *UsageTracker,
	publisher AuditPublisher,
) *Service {
	return &Service{
		repo:      repo,
		idem:      idem,
		storage:   st,
		pipeline:  pipeline,
		limiter:   limiter,
		dedup:     dedup,
		quotas:    quotas,
		usage:     usage,
		publisher: publisher,
	}
}

// IngestOutcome classifies how an ingest request terminated
type IngestOutcome string

const (
	// OutcomeIngested: a new catalog row was created by this request.
	OutcomeIngested IngestOutcome = "ingested"
	// OutcomeReplayed: the idempotency key already had a persisted entry.
	OutcomeReplayed IngestOutcome = "replayed"
	// OutcomeDuplicate: a perceptual near-match short-circuited the pipeline.
	OutcomeDuplicate IngestOutcome = "duplicate"
	// OutcomeProcessing: another request holds this key and its row is not
	// visible yet.
	OutcomeProcessing IngestOutcome = "processing"
)

// IngestResult is the terminal state of one ingest request
type IngestResult struct {
	Outcome     IngestOutcome
	ID          uuid.UUID
	Status      Status
	VariantURLs VariantURLs
	Width       int
	Height      int
	DuplicateOf uuid.UUID // set only for OutcomeDuplicate
}

// Ingest runs the end-to-end pipeline for one upload.
//
// The idempotency resolve is the sole serialization point: at most one
// caller per key proceeds to variant generation and the catalog insert;
// losers observe the winner's (eventually consistent) catalog state.
func (s *Service) Ingest(ctx context.Context, actor Actor, req *IngestRequest) (*IngestResult, error) {
	// Admission. Rejected before any resource is touched.
	if !s.limiter.Allow("ingest:" + actor.ID.String()) {
		return nil, ErrRateLimited
	}
	role := account.Role(actor.Role)
	if role != account.RoleMember && role != account.RoleAdmin {
		return nil, ErrForbiddenRole
	}

	// Key resolution. A store failure degrades idempotency to best-effort
	// for this request rather than blocking ingest.
	key := DeriveKey(req.IdempotencyKey, req.StorageKey)
	candidateID := CandidateID(key)
	resolution, err := s.idem.Resolve(ctx, key, candidateID)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Idempotency resolve failed, proceeding best-effort")
		resolution = Resolution{Created: true, BoundID: candidateID}
	}
	entryID := resolution.BoundID

	// A persisted entry for this key means a fully completed earlier
	// request: replay its state.
	existing, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("catalog read failed: %w", err)
	}
	if existing != nil {
		return resultFromEntry(OutcomeReplayed, existing), nil
	}
	if !resolution.Created {
		// Lost the race and the winner has not persisted yet. Report
		// current state; waiting for the winner is a caller-side concern.
		return &IngestResult{
			Outcome:     OutcomeProcessing,
			ID:          entryID,
			Status:      StatusPending,
			VariantURLs: VariantURLs{},
		}, nil
	}

	// Quota. No partial state exists yet, so rejection here is cheap.
	usage, err := s.usage.Snapshot(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("usage snapshot failed: %w", err)
	}
	if err := s.quotas.For(role).Evaluate(usage); err != nil {
		return nil, err
	}

	// Duplicate detection. A near-match is a successful-but-terminal
	// outcome bound to the candidate id, with no row and no storage write.
	if dupID, found, err := s.dedup.Resolve(ctx, req.PerceptualHash); err != nil {
		log.Warn().Err(err).Msg("Duplicate scan failed, continuing without dedup")
	} else if found {
		return &IngestResult{
			Outcome:     OutcomeDuplicate,
			ID:          entryID,
			Status:      StatusDuplicate,
			VariantURLs: VariantURLs{},
			DuplicateOf: dupID,
		}, nil
	}

	// Variant generation. Any failure here aborts before the catalog
	// write; the idempotency key still resolves to the same candidate id
	// on retry.
	original, err := s.readOriginal(ctx, req.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read original %s: %w", req.StorageKey, err)
	}
	generated, err := s.pipeline.Generate(ctx, entryID, original)
	if err != nil {
		return nil, fmt.Errorf("variant generation failed: %w", err)
	}

	// Persist. Ingest auto-approves; PENDING exists in the model as a
	// capability for future moderation gating.
	now := time.Now()
	entry := &Entry{
		ID:          entryID,
		OwnerID:     uuid.NullUUID{UUID: actor.ID, Valid: true},
		Status:      StatusApproved,
		OriginalKey: req.StorageKey,
		VariantURLs: generated.VariantURLs,
		Width:       sql.NullInt64{Int64: int64(generated.Width), Valid: true},
		Height:      sql.NullInt64{Int64: int64(generated.Height), Valid: true},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.PerceptualHash != "" {
		entry.PerceptualHash = sql.NullString{String: req.PerceptualHash, Valid: true}
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		if errors.Is(err, ErrAccountMissing) {
			return nil, &AccountRequiredError{ActorID: actor.ID}
		}
		return nil, fmt.Errorf("catalog insert failed: %w", err)
	}

	s.usage.RecordBytes(ctx, actor.ID, int64(len(original)))
	s.appendAudit(ctx, entryID, AuditIngested, actor.ID.String(), "")

	return resultFromEntry(OutcomeIngested, entry), nil
}

// Get returns an entry subject to visibility rules: owners and admins see
// any state; everyone else sees only approved, non-tombstoned entries.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*Entry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}

	if entry.PubliclyVisible() {
		return entry, nil
	}
	if account.Role(actor.Role) == account.RoleAdmin || isOwner(entry, actor) {
		return entry, nil
	}
	return nil, ErrEntryNotFound
}

// ListPublic returns approved, non-deleted entries, newest first
func (s *Service) ListPublic(ctx context.Context, limit, offset int) ([]*Entry, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListPublic(ctx, limit, offset)
}

// UpdateStatus applies a moderation status transition
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, status Status, reason string) (*Entry, error) {
	if status == StatusRejected && reason == "" {
		return nil, ErrReasonRequired
	}

	if err := s.repo.UpdateStatus(ctx, id, status, reason); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// SoftDelete tombstones an entry. The row and its storage are retained for
// audit; the entry disappears from all public reads.
func (s *Service) SoftDelete(ctx context.Context, actor Actor, id uuid.UUID) error {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrEntryNotFound
	}
	if account.Role(actor.Role) != account.RoleAdmin && !isOwner(entry, actor) {
		return ErrNotOwner
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.appendAudit(ctx, id, AuditSoftDeleted, actor.ID.String(), "")
	return nil
}

// Restore clears a soft-delete tombstone
func (s *Service) Restore(ctx context.Context, actor Actor, id uuid.UUID) (*Entry, error) {
	if err := s.repo.Restore(ctx, id); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, id, AuditRestored, actor.ID.String(), "")
	return s.repo.GetByID(ctx, id)
}

// HardDelete removes the row and triggers storage cleanup. Cleanup is
// best-effort and never blocks the delete.
func (s *Service) HardDelete(ctx context.Context, actor Actor, id uuid.UUID) error {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrEntryNotFound
	}

	if err := s.repo.HardDelete(ctx, id); err != nil {
		return err
	}
	s.appendAudit(ctx, id, AuditDeleted, actor.ID.String(), "")

	go s.cleanupStorage(entry)
	return nil
}

// ListAudit returns the append-only trail for an entry
func (s *Service) ListAudit(ctx context.Context, entryID uuid.UUID) ([]*AuditEntry, error) {
	return s.repo.ListAudit(ctx, entryID)
}

func (s *Service) readOriginal(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// appendAudit records a state change. Audit failures are swallowed and
// logged, never propagated to the primary operation.
func (s *Service) appendAudit(ctx context.Context, entryID uuid.UUID, action AuditAction, actor, reason string) {
	audit := &AuditEntry{
		ID:        uuid.New(),
		EntryID:   entryID,
		Action:    action,
		Actor:     actor,
		CreatedAt: time.Now(),
	}
	if reason != "" {
		audit.Reason = sql.NullString{String: reason, Valid: true}
	}

	if err := s.repo.AppendAudit(ctx, audit); err != nil {
		log.Error().Err(err).
			Str("entry_id", entryID.String()).
			Str("action", string(action)).
			Msg("Failed to append audit entry")
		return
	}
	if s.publisher != nil {
		s.publisher.PublishAudit(audit)
	}
}

func (s *Service) cleanupStorage(entry *Entry) {
	ctx := context.Background()
	if err := s.storage.Delete(ctx, entry.OriginalKey); err != nil {
		log.Warn().Err(err).Str("key", entry.OriginalKey).Msg("Failed to delete original")
	}
	for label := range entry.VariantURLs {
		key := variantKey(entry.ID, label)
		if err := s.storage.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to delete variant")
		}
	}
}

func isOwner(entry *Entry, actor Actor) bool {
	return entry.OwnerID.Valid && entry.OwnerID.UUID == actor.ID
}

func resultFromEntry(outcome IngestOutcome, entry *Entry) *IngestResult {
	result := &IngestResult{
		Outcome:     outcome,
		ID:          entry.ID,
		Status:      entry.Status,
		VariantURLs: entry.VariantURLs,
	}
	if entry.Width.Valid {
		result.Width = int(entry.Width.Int64)
	}
	if entry.Height.Valid {
		result.Height = int(entry.Height.Int64)
	}
	return result
}
