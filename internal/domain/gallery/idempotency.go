package gallery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// candidateNamespace is the fixed namespace for deriving candidate entry
// ids from idempotency keys. Changing it would break retry convergence for
// in-flight keys.
var candidateNamespace = uuid.MustParse("8f3c1d2a-9b4e-4a6f-8c1d-2a9b4e4a6f8c")

// DeriveKey picks the effective idempotency key for a request: the
// client-supplied token when present, otherwise a key derived from the
// storage reference so retries of the same file converge without client
// cooperation.
func DeriveKey(clientKey, storageKey string) string {
	if clientKey != "" {
		return clientKey
	}
	return "storage:" + storageKey
}

// CandidateID derives the catalog entry id for a key. Deterministic, so
// even the very first resolve already knows the id it would create.
func CandidateID(key string) uuid.UUID {
	return uuid.NewSHA1(candidateNamespace, []byte(key))
}

// Resolution is the outcome of an idempotency resolve
type Resolution struct {
	// Created is true when this caller won the insert; false when the key
	// was already bound.
	Created bool
	// BoundID is the entry id the key maps to, for winners and losers
	// alike.
	BoundID uuid.UUID
}

// IdempotencyStore maps keys to candidate entry ids with first-writer-wins
// semantics.
type IdempotencyStore interface {
	// Resolve atomically binds key to candidateID, or returns the existing
	// binding. Safe under concurrent callers racing on the same key.
	Resolve(ctx context.Context, key string, candidateID uuid.UUID) (Resolution, error)
}

type idempotencyStore struct {
	db *sqlx.DB
}

// NewIdempotencyStore creates a Postgres-backed idempotency store
func NewIdempotencyStore(db *sqlx.DB) IdempotencyStore {
	return &idempotencyStore{db: db}
}

// Resolve is a single atomic insert-or-fetch, never a read-then-write pair.
// The no-op DO UPDATE makes the conflicting row visible to RETURNING, and
// xmax distinguishes a fresh insert from a conflict.
func (s *idempotencyStore) Resolve(ctx context.Context, key string, candidateID uuid.UUID) (Resolution, error) {
	query := `
		INSERT INTO idempotency_keys (key, candidate_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET key = excluded.key
		RETURNING candidate_id, (xmax = 0) AS created
	`
	var row struct {
		CandidateID uuid.UUID `db:"candidate_id"`
		Created     bool      `db:"created"`
	}
	if err := s.db.GetContext(ctx, &row, query, key, candidateID, time.Now()); err != nil {
		return Resolution{}, err
	}
	return Resolution{Created: row.Created, BoundID: row.CandidateID}, nil
}
