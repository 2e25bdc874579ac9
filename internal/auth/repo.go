package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oxiliere/oxutils/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*ServiceAccount, error)
	Create(ctx context.Context, account ServiceAccount) (*ServiceAccount, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByID fetches a service account by its token identifier.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*ServiceAccount, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, secret_hash, principal_id, is_active, created_at, updated_at
		FROM perm_service_accounts WHERE id = $1`, id)
	account := &ServiceAccount{}
	err := row.Scan(&account.ID, &account.Name, &account.SecretHash,
		&account.PrincipalID, &account.IsActive, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return account, nil
}

// Create persists a new service account.
func (r *PGRepository) Create(ctx context.Context, account ServiceAccount) (*ServiceAccount, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO perm_service_accounts (id, name, secret_hash, principal_id, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, secret_hash, principal_id, is_active, created_at, updated_at`,
		account.ID, account.Name, account.SecretHash, account.PrincipalID, account.IsActive)
	out := &ServiceAccount{}
	err := row.Scan(&out.ID, &out.Name, &out.SecretHash,
		&out.PrincipalID, &out.IsActive, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return out, nil
}

var _ Repository = (*PGRepository)(nil)
