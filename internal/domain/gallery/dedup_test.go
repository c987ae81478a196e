package gallery

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type stubFingerprintSource struct {
	fingerprints []EntryFingerprint
	err          error
	gotLimit     int
}

func (s *stubFingerprintSource) RecentFingerprints(_ context.Context, limit int) ([]EntryFingerprint, error) {
	s.gotLimit = limit
	return s.fingerprints, s.err
}

func TestDuplicateResolverWithinThreshold(t *testing.T) {
	existing := uuid.New()
	source := &stubFingerprintSource{fingerprints: []EntryFingerprint{
		{ID: existing, PerceptualHash: "0000000000000000"},
	}}
	resolver := NewDuplicateResolver(source, 100, 5)

	// 0x1f has five set bits, exactly at the threshold.
	id, found, err := resolver.Resolve(context.Background(), "000000000000001f")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected a match at distance 5")
	}
	if id != existing {
		t.Fatalf("expected id %s, got %s", existing, id)
	}
}

func TestDuplicateResolverBeyondThreshold(t *testing.T) {
	source := &stubFingerprintSource{fingerprints: []EntryFingerprint{
		{ID: uuid.New(), PerceptualHash: "0000000000000000"},
	}}
	resolver := NewDuplicateResolver(source, 100, 5)

	// 0x3f has six set bits, one past the threshold.
	_, found, err := resolver.Resolve(context.Background(), "000000000000003f")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected no match at distance 6")
	}
}

func TestDuplicateResolverEmptyFingerprintSkips(t *testing.T) {
	source := &stubFingerprintSource{err: errors.New("should not be called")}
	resolver := NewDuplicateResolver(source, 100, 5)

	_, found, err := resolver.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("empty fingerprint must skip the scan, got %v", err)
	}
	if found {
		t.Fatal("empty fingerprint cannot match anything")
	}
}

func TestDuplicateResolverFirstMatchWins(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	source := &stubFingerprintSource{fingerprints: []EntryFingerprint{
		{ID: first, PerceptualHash: "00000000000000ff"},
		{ID: second, PerceptualHash: "00000000000000ff"},
	}}
	resolver := NewDuplicateResolver(source, 100, 5)

	id, found, err := resolver.Resolve(context.Background(), "00000000000000ff")
	if err != nil || !found {
		t.Fatalf("expected a match, got found=%v err=%v", found, err)
	}
	if id != first {
		t.Fatalf("expected the most recent match %s, got %s", first, id)
	}
}

func TestDuplicateResolverWindowPassedToSource(t *testing.T) {
	source := &stubFingerprintSource{}
	resolver := NewDuplicateResolver(source, 42, 5)

	if _, _, err := resolver.Resolve(context.Background(), "00000000000000ff"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.gotLimit != 42 {
		t.Fatalf("expected window 42, source saw %d", source.gotLimit)
	}
}

func TestDuplicateResolverSourceError(t *testing.T) {
	wantErr := errors.New("catalog down")
	source := &stubFingerprintSource{err: wantErr}
	resolver := NewDuplicateResolver(source, 100, 5)

	_, _, err := resolver.Resolve(context.Background(), "00000000000000ff")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected source error to propagate, got %v", err)
	}
}
