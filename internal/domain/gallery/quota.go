package gallery

import (
	"github.com/framegrid/gallery-api/internal/domain/account"
)

// Quota defines the ceilings for one role tier. MaxIngestsPerMinute is
// enforced upstream by the rate limiter, not by Evaluate.
type Quota struct {
	MaxPhotos           int
	MaxBytesPerDay      int64
	MaxIngestsPerMinute int
}

// Usage is a snapshot of current consumption, supplied by the caller
type Usage struct {
	Photos     int
	BytesToday int64
}

// Evaluate decides whether a new ingest may proceed given current usage.
// Pure: no side effects, no I/O.
func (q Quota) Evaluate(u Usage) error {
	if u.Photos >= q.MaxPhotos {
		return &QuotaError{
			Code:    CodePhotosLimit,
			Current: int64(u.Photos),
			Limit:   int64(q.MaxPhotos),
		}
	}
	if u.BytesToday >= q.MaxBytesPerDay {
		return &QuotaError{
			Code:    CodeBytesLimit,
			Current: u.BytesToday,
			Limit:   q.MaxBytesPerDay,
		}
	}
	return nil
}

// QuotaPolicy maps role tiers to their quotas
type QuotaPolicy struct {
	tiers map[account.Role]Quota
}

// NewQuotaPolicy builds the role table. Guests always get a zero
// allowance; member and admin ceilings come from configuration.
func NewQuotaPolicy(member, admin Quota) *QuotaPolicy {
	return &QuotaPolicy{
		tiers: map[account.Role]Quota{
			account.RoleGuest:  {},
			account.RoleMember: member,
			account.RoleAdmin:  admin,
		},
	}
}

// For returns the quota for a role. Unknown roles get the guest (zero)
// allowance.
func (p *QuotaPolicy) For(role account.Role) Quota {
	return p.tiers[role]
}
