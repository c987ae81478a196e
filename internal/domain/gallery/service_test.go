package gallery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/framegrid/gallery-api/internal/pkg/ratelimit"
)

// fakeRepo is an in-memory catalog used by the service tests
type fakeRepo struct {
	mu        sync.Mutex
	entries   map[uuid.UUID]*Entry
	audits    []*AuditEntry
	insertErr error
	inserts   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{entries: make(map[uuid.UUID]*Entry)}
}

func (r *fakeRepo) Insert(_ context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	cp := *entry
	r.entries[entry.ID] = &cp
	r.inserts++
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (r *fakeRepo) GetByOriginalKey(_ context.Context, key string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.OriginalKey == key {
			cp := *entry
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) CountApprovedByOwner(_ context.Context, ownerID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, entry := range r.entries {
		if entry.OwnerID.Valid && entry.OwnerID.UUID == ownerID && entry.Status == StatusApproved && !entry.IsDeleted() {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) RecentFingerprints(_ context.Context, limit int) ([]EntryFingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EntryFingerprint
	for _, entry := range r.entries {
		if entry.PerceptualHash.Valid && !entry.IsDeleted() {
			out = append(out, EntryFingerprint{ID: entry.ID, PerceptualHash: entry.PerceptualHash.String})
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) ListPublic(_ context.Context, limit, offset int) ([]*Entry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var visible []*Entry
	for _, entry := range r.entries {
		if entry.PubliclyVisible() {
			cp := *entry
			visible = append(visible, &cp)
		}
	}
	total := len(visible)
	if offset > len(visible) {
		offset = len(visible)
	}
	visible = visible[offset:]
	if len(visible) > limit {
		visible = visible[:limit]
	}
	return visible, total, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	entry.Status = status
	if reason != "" {
		entry.RejectionReason.String = reason
		entry.RejectionReason.Valid = true
	} else {
		entry.RejectionReason.Valid = false
	}
	entry.UpdatedAt = time.Now()
	return nil
}

func (r *fakeRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok || entry.IsDeleted() {
		return ErrEntryNotFound
	}
	entry.DeletedAt.Time = time.Now()
	entry.DeletedAt.Valid = true
	return nil
}

func (r *fakeRepo) Restore(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok || !entry.IsDeleted() {
		return ErrEntryNotFound
	}
	entry.DeletedAt.Valid = false
	return nil
}

func (r *fakeRepo) HardDelete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return ErrEntryNotFound
	}
	delete(r.entries, id)
	return nil
}

func (r *fakeRepo) AppendAudit(_ context.Context, audit *AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, audit)
	return nil
}

func (r *fakeRepo) ListAudit(_ context.Context, entryID uuid.UUID) ([]*AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*AuditEntry
	for _, audit := range r.audits {
		if audit.EntryID == entryID {
			out = append(out, audit)
		}
	}
	return out, nil
}

func (r *fakeRepo) rowCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// fakeIdemStore gives first-writer-wins binding in memory
type fakeIdemStore struct {
	mu       sync.Mutex
	bindings map[string]uuid.UUID
	err      error
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{bindings: make(map[string]uuid.UUID)}
}

func (s *fakeIdemStore) Resolve(_ context.Context, key string, candidateID uuid.UUID) (Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Resolution{}, s.err
	}
	if bound, ok := s.bindings[key]; ok {
		return Resolution{Created: false, BoundID: bound}, nil
	}
	s.bindings[key] = candidateID
	return Resolution{Created: true, BoundID: candidateID}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	audits []*AuditEntry
}

func (p *recordingPublisher) PublishAudit(audit *AuditEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audits = append(p.audits, audit)
}

type harness struct {
	repo      *fakeRepo
	idem      *fakeIdemStore
	store     *fakeStorage
	publisher *recordingPublisher
	svc       *Service
}

func newHarness(burst int) *harness {
	repo := newFakeRepo()
	idem := newFakeIdemStore()
	store := newFakeStorage()
	publisher := &recordingPublisher{}

	svc := NewService(
		repo,
		idem,
		store,
		newTestPipeline(store),
		ratelimit.New(ratelimit.Config{Capacity: burst, Interval: time.Minute}),
		NewDuplicateResolver(repo, 100, 5),
		NewQuotaPolicy(
			Quota{MaxPhotos: 100, MaxBytesPerDay: 1 << 30},
			Quota{MaxPhotos: 10000, MaxBytesPerDay: 10 << 30},
		),
		NewUsageTracker(repo, nil),
		publisher,
	)
	return &harness{repo: repo, idem: idem, store: store, publisher: publisher, svc: svc}
}

func (h *harness) seedOriginal(t *testing.T, key string) {
	t.Helper()
	h.store.objects[key] = testPNG(t, 200, 100)
}

func memberActor() Actor {
	return Actor{ID: uuid.New(), Email: "member@example.com", Role: "member"}
}

func TestIngestCreatesEntry(t *testing.T) {
	h := newHarness(10)
	h.seedOriginal(t, "uploads/a.png")
	actor := memberActor()

	result, err := h.svc.Ingest(context.Background(), actor, &IngestRequest{
		StorageKey:     "uploads/a.png",
		PerceptualHash: "a1b2c3d4e5f60718",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome != OutcomeIngested {
		t.Fatalf("expected outcome %q, got %q", OutcomeIngested, result.Outcome)
	}
	if result.Status != StatusApproved {
		t.Fatalf("expected status %q, got %q", StatusApproved, result.Status)
	}
	if len(result.VariantURLs) != 3 {
		t.Fatalf("expected 3 variants, got %d", len(result.VariantURLs))
	}
	if result.Width != 200 || result.Height != 100 {
		t.Fatalf("expected dimensions 200x100, got %dx%d", result.Width, result.Height)
	}

	entry, _ := h.repo.GetByID(context.Background(), result.ID)
	if entry == nil {
		t.Fatal("expected a catalog row")
	}
	if !entry.OwnerID.Valid || entry.OwnerID.UUID != actor.ID {
		t.Fatalf("expected owner %s, got %+v", actor.ID, entry.OwnerID)
	}

	audits, _ := h.repo.ListAudit(context.Background(), result.ID)
	if len(audits) != 1 || audits[0].Action != AuditIngested {
		t.Fatalf("expected one %s audit record, got %+v", AuditIngested, audits)
	}
	if len(h.publisher.audits) != 1 {
		t.Fatalf("expected the audit to be published, got %d events", len(h.publisher.audits))
	}
}

func TestIngestRetrySameKeyReplays(t *testing.T) {
	h := newHarness(10)
	h.seedOriginal(t, "uploads/a.png")
	actor := memberActor()
	req := &IngestRequest{StorageKey: "uploads/a.png", IdempotencyKey: "client-key-1"}

	first, err := h.svc.Ingest(context.Background(), actor, req)
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	second, err := h.svc.Ingest(context.Background(), actor, req)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	if second.Outcome != OutcomeReplayed {
		t.Fatalf("expected outcome %q, got %q", OutcomeReplayed, second.Outcome)
	}
	if second.ID != first.ID {
		t.Fatalf("retry must converge on the same id: %s vs %s", first.ID, second.ID)
	}
	if h.repo.rowCount() != 1 {
		t.Fatalf("expected exactly one row, got %d", h.repo.rowCount())
	}
	if h.repo.inserts != 1 {
		t.Fatalf("expected exactly one insert, got %d", h.repo.inserts)
	}
}

func TestIngestWithoutClientKeyConvergesOnStorageKey(t *testing.T) {
	h := newHarness(10)
	h.seedOriginal(t, "uploads/a.png")
	actor := memberActor()
	req := &IngestRequest{StorageKey: "uploads/a.png"}

	first, _ := h.svc.Ingest(context.Background(), actor, req)
	second, err := h.svc.Ingest(context.Background(), actor, req)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if second.Outcome != OutcomeReplayed || second.ID != first.ID {
		t.Fatalf("storage-key retries must replay: outcome=%q id=%s vs %s", second.Outcome, second.ID, first.ID)
	}
}

func TestIngestConcurrentSameKeySingleRow(t *testing.T) {
	h := newHarness(100)
	h.seedOriginal(t, "uploads/a.png")
	actor := memberActor()

	const workers = 8
	results := make([]*IngestResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.svc.Ingest(context.Background(), actor, &IngestRequest{
				StorageKey:     "uploads/a.png",
				IdempotencyKey: "race-key",
			})
		}(i)
	}
	wg.Wait()

	ingested := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if results[i].ID != results[0].ID {
			t.Fatalf("workers observed different ids: %s vs %s", results[i].ID, results[0].ID)
		}
		switch results[i].Outcome {
		case OutcomeIngested:
			ingested++
		case OutcomeReplayed, OutcomeProcessing:
		default:
			t.Fatalf("unexpected outcome %q", results[i].Outcome)
		}
	}
	if ingested != 1 {
		t.Fatalf("expected exactly one winner, got %d", ingested)
	}
	if h.repo.rowCount() != 1 {
		t.Fatalf("expected exactly one row, got %d", h.repo.rowCount())
	}
}

func TestIngestNearDuplicateShortCircuits(t *testing.T) {
	h := newHarness(10)
	h.seedOriginal(t, "uploads/a.png")
	h.seedOriginal(t, "uploads/b.png")
	actor := memberActor()

	first, err := h.svc.Ingest(context.Background(), actor, &IngestRequest{
		StorageKey:     "uploads/a.png",
		PerceptualHash: "ff00ff00ff00ff00",
	})
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	// Two bits apart, well within the threshold.
	result, err := h.svc.Ingest(context.Background(), actor, &IngestRequest{
		StorageKey:     "uploads/b.png",
		PerceptualHash: "ff00ff00ff00ff03",
	})
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}

	if result.Outcome != OutcomeDuplicate {
		t.Fatalf("expected outcome %q, got %q", OutcomeDuplicate, result.Outcome)
	}
	if result.Status != StatusDuplicate {
		t.Fatalf("expected status %q, got %q", StatusDuplicate, result.Status)
	}
	if result.DuplicateOf != first.ID {
		t.Fatalf("expected duplicate_of %s, got %s", first.ID, result.DuplicateOf)
	}
	if len(result.VariantURLs) != 0 {
		t.Fatalf("a duplicate must not publish variants, got %v", result.VariantURLs)
	}
	if h.repo.rowCount() != 1 {
		t.Fatalf("a duplicate must not create a row, got %d rows", h.repo.rowCount())
	}
}

func TestIngestRateLimited(t *testing.T) {
	h := newHarness(1)
	h.seedOriginal(t, "uploads/a.png")
	actor := memberActor()

	if _, err := h.svc.Ingest(context.Background(), actor, &IngestRequest{StorageKey: "uploads/a.png"}); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	_, err := h.svc.Ingest(context.Background(), actor, &IngestRequest{StorageKey: "uploads/a.png"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestIngestForbiddenForGuests(t *testing.T) {
	h := newHarness(10)
	actor := Actor{ID: uuid.New(), Role: "guest"}

	_, err := h.svc.Ingest(context.Background(), actor, &IngestRequest{StorageKey: "uploads/a.png"})
	if !errors.Is(err, ErrForbiddenRole) {
		t.Fatalf("expected ErrForbiddenRole, got %v", err)
	}
}

func TestIngestPhotoQuotaBoundary(t *testing.T) {
	h := newHarness(1000)
	actor := memberActor()

	// Fill the catalog to one below the ceiling, then to the ceiling.
	for i := 0; i < 99; i++ {
		key := DeriveKey("", uuid.NewString())
		h.repo.entries[CandidateID(key)] = &Entry{
			ID:      CandidateID(key),
			OwnerID: uuid.NullUUID{UUID: actor.ID, Valid: true},
			Status:  StatusApproved,
		}
	}
	h.seedOriginal(t, "uploads/99.png")
	result, err := h.svc.Ingest(context.Background(), actor, &IngestRequest{StorageKey: "uploads/99.png"})
	if err != nil {
		t.Fatalf("ingest at count 99 of 100 must succeed: %v", err)
	}
	if result.Outcome != OutcomeIngested {
		t.Fatalf("expected outcome %q, got %q", OutcomeIngested, result.Outcome)
	}

	h.seedOriginal(t, "uploads/100.png")
	_, err = h.svc.Ingest(context.Background(), actor, &IngestRequest{StorageKey: "uploads/100.png"})
	var qe *QuotaError
	if !errors.As(err, &qe) {
		t.Fatalf("expected *QuotaError at the ceiling, got %v", err)
	}
	if qe.Code != CodePhotosLimit {
		t.Fatalf("expected code %q, got %q", CodePhotosLimit, qe.Code)
	}
}

func TestIngestMissingAccount(t *testing.T) {
	h := newHarness(10)
	h.seedOriginal(t, "uploads/a.png")
	h.repo.insertErr = ErrAccountMissing
	actor := memberActor()

	_, err := h.svc.Ingest(context.Background(), actor, &IngestRequest{StorageKey: "uploads/a.png"})
	var are *AccountRequiredError
	if !errors.As(err, &are) {
		t.Fatalf("expected *AccountRequiredError, got %v", err)
	}
	if are.ActorID != actor.ID {
		t.Fatalf("expected actor id %s, got %s", actor.ID, are.ActorID)
	}
}

func TestIngestDegradesWhenIdempotencyStoreDown(t *testing.T) {
	h := newHarness(10)
	h.seedOriginal(t, "uploads/a.png")
	h.idem.err = errors.New("store down")
	actor := memberActor()
	req := &IngestRequest{StorageKey: "uploads/a.png", IdempotencyKey: "client-key-1"}

	result, err := h.svc.Ingest(context.Background(), actor, req)
	if err != nil {
		t.Fatalf("ingest must proceed best-effort: %v", err)
	}
	if result.Outcome != OutcomeIngested {
		t.Fatalf("expected outcome %q, got %q", OutcomeIngested, result.Outcome)
	}
	// The id stays deterministic, so a retry still replays once the
	// catalog row exists.
	if result.ID != CandidateID("client-key-1") {
		t.Fatalf("expected deterministic id, got %s", result.ID)
	}
	retry, err := h.svc.Ingest(context.Background(), actor, req)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if retry.Outcome != OutcomeReplayed || retry.ID != result.ID {
		t.Fatalf("expected replay of %s, got %q %s", result.ID, retry.Outcome, retry.ID)
	}
}

func TestUpdateStatusRejectRequiresReason(t *testing.T) {
	h := newHarness(10)
	actor := Actor{ID: uuid.New(), Role: "admin"}

	_, err := h.svc.UpdateStatus(context.Background(), actor, uuid.New(), StatusRejected, "")
	if !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
}

func TestSoftDeleteOwnershipEnforced(t *testing.T) {
	h := newHarness(10)
	h.seedOriginal(t, "uploads/a.png")
	owner := memberActor()

	result, err := h.svc.Ingest(context.Background(), owner, &IngestRequest{StorageKey: "uploads/a.png"})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	stranger := memberActor()
	if err := h.svc.SoftDelete(context.Background(), stranger, result.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for a stranger, got %v", err)
	}
	if err := h.svc.SoftDelete(context.Background(), owner, result.ID); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}

	// Tombstoned entries vanish from everyone but the owner and admins.
	if _, err := h.svc.Get(context.Background(), stranger, result.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound after tombstone, got %v", err)
	}
	if _, err := h.svc.Get(context.Background(), owner, result.ID); err != nil {
		t.Fatalf("owner must still see the tombstoned entry: %v", err)
	}

	admin := Actor{ID: uuid.New(), Role: "admin"}
	restored, err := h.svc.Restore(context.Background(), admin, result.ID)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if restored.IsDeleted() {
		t.Fatal("restore must clear the tombstone")
	}
}
