package account

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/framegrid/gallery-api/internal/pkg/jwt"
	"github.com/framegrid/gallery-api/internal/pkg/password"
)

// Service handles account provisioning
type Service struct {
	repo   Repository
	tokens *jwt.Service
}

// NewService creates account service
func NewService(repo Repository, tokens *jwt.Service) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Provision creates a new account. Accounts must exist before their first
// upload; the ingest pipeline reports account_required otherwise.
func (s *Service) Provision(ctx context.Context, req *ProvisionRequest) (*Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	acc := &Account{
		ID:           uuid.New(),
		Email:        email,
		Role:         Role(req.Role),
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	if err := s.repo.Create(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// IssueToken authenticates by email/password and returns a signed access token
func (s *Service) IssueToken(ctx context.Context, req *TokenRequest) (string, *Account, error) {
	acc, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return "", nil, err
	}
	if acc == nil || !password.Verify(req.Password, acc.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateAccessToken(acc.ID, acc.Email, string(acc.Role))
	if err != nil {
		return "", nil, err
	}
	return token, acc, nil
}

// GetByID returns an account or nil if it does not exist
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}
