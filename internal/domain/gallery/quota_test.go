package gallery

import (
	"errors"
	"testing"

	"github.com/framegrid/gallery-api/internal/domain/account"
)

func TestQuotaEvaluateUnderLimit(t *testing.T) {
	q := Quota{MaxPhotos: 200, MaxBytesPerDay: 1000}

	if err := q.Evaluate(Usage{Photos: 199, BytesToday: 999}); err != nil {
		t.Fatalf("expected admission one below both limits, got %v", err)
	}
}

func TestQuotaEvaluatePhotosAtLimit(t *testing.T) {
	q := Quota{MaxPhotos: 200, MaxBytesPerDay: 1000}

	err := q.Evaluate(Usage{Photos: 200})
	if err == nil {
		t.Fatal("expected rejection at the photo ceiling")
	}
	var qe *QuotaError
	if !errors.As(err, &qe) {
		t.Fatalf("expected *QuotaError, got %T", err)
	}
	if qe.Code != CodePhotosLimit {
		t.Fatalf("expected code %q, got %q", CodePhotosLimit, qe.Code)
	}
	if qe.Current != 200 || qe.Limit != 200 {
		t.Fatalf("unexpected counters: current=%d limit=%d", qe.Current, qe.Limit)
	}
}

func TestQuotaEvaluateBytesAtLimit(t *testing.T) {
	q := Quota{MaxPhotos: 200, MaxBytesPerDay: 1000}

	err := q.Evaluate(Usage{Photos: 10, BytesToday: 1000})
	var qe *QuotaError
	if !errors.As(err, &qe) {
		t.Fatalf("expected *QuotaError, got %v", err)
	}
	if qe.Code != CodeBytesLimit {
		t.Fatalf("expected code %q, got %q", CodeBytesLimit, qe.Code)
	}
}

func TestQuotaPolicyRoles(t *testing.T) {
	member := Quota{MaxPhotos: 200, MaxBytesPerDay: 100 << 20}
	admin := Quota{MaxPhotos: 10000, MaxBytesPerDay: 10 << 30}
	policy := NewQuotaPolicy(member, admin)

	if got := policy.For(account.RoleMember); got != member {
		t.Fatalf("member quota mismatch: %+v", got)
	}
	if got := policy.For(account.RoleAdmin); got != admin {
		t.Fatalf("admin quota mismatch: %+v", got)
	}

	// Guests and unknown roles get the zero allowance, so the first
	// ingest already exceeds it.
	for _, role := range []account.Role{account.RoleGuest, account.Role("banned")} {
		q := policy.For(role)
		if err := q.Evaluate(Usage{}); err == nil {
			t.Fatalf("expected zero allowance for role %q", role)
		}
	}
}
