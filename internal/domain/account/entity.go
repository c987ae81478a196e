package account

import (
	"time"

	"github.com/google/uuid"
)

// Role is the access tier of an account
type Role string

const (
	RoleGuest  Role = "guest"  // no ingest allowance
	RoleMember Role = "member" // standard allowance
	RoleAdmin  Role = "admin"  // elevated allowance, moderation rights
)

// Valid reports whether the role is one of the known tiers
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleMember, RoleAdmin:
		return true
	}
	return false
}

// Account represents an owning account for gallery entries
type Account struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Role         Role      `db:"role" json:"role"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
