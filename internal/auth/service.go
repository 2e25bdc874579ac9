package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/oxiliere/oxutils/internal/shared"
)

// Service wraps token authentication rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates an "<account-id>:<secret>" token and resolves the
// principal it acts as.
func (s *Service) Authenticate(ctx context.Context, token string) (*ServiceAccount, error) {
	rawID, secret, ok := strings.Cut(token, ":")
	if !ok {
		return nil, shared.ErrInvalidCredentials
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !account.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.SecretHash), []byte(secret)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return account, nil
}

// CreateAccount hashes the secret and stores a new active service account
// acting as the given principal.
func (s *Service) CreateAccount(ctx context.Context, name, secret string, principalID uuid.UUID) (*ServiceAccount, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, ServiceAccount{
		ID:          uuid.New(),
		Name:        name,
		SecretHash:  string(hash),
		PrincipalID: principalID,
		IsActive:    true,
	})
}
