package gallery

import (
	"context"

	"github.com/google/uuid"

	"github.com/framegrid/gallery-api/internal/pkg/phash"
)

// FingerprintSource provides the recent fingerprints scanned by duplicate
// detection.
type FingerprintSource interface {
	RecentFingerprints(ctx context.Context, limit int) ([]EntryFingerprint, error)
}

// DuplicateResolver checks a fingerprint against a bounded window of
// recently ingested entries. Deliberately a heuristic, not an index:
// duplicate pressure is highest against recent uploads, and a linear scan
// over the window keeps the catalog free of a similarity index.
type DuplicateResolver struct {
	source    FingerprintSource
	window    int
	threshold int
}

// NewDuplicateResolver creates a resolver over the given source
func NewDuplicateResolver(source FingerprintSource, window, threshold int) *DuplicateResolver {
	if window <= 0 {
		window = 100
	}
	if threshold <= 0 {
		threshold = 5
	}
	return &DuplicateResolver{source: source, window: window, threshold: threshold}
}

// Resolve returns the id of the first entry within the Hamming threshold,
// or false if none matches. An empty fingerprint skips detection entirely.
func (r *DuplicateResolver) Resolve(ctx context.Context, fingerprint string) (uuid.UUID, bool, error) {
	if fingerprint == "" {
		return uuid.Nil, false, nil
	}

	recent, err := r.source.RecentFingerprints(ctx, r.window)
	if err != nil {
		return uuid.Nil, false, err
	}

	for _, candidate := range recent {
		if phash.Distance(fingerprint, candidate.PerceptualHash) <= r.threshold {
			return candidate.ID, true, nil
		}
	}
	return uuid.Nil, false, nil
}
