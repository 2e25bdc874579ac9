package auth

import (
	"time"

	"github.com/google/uuid"
)

// ServiceAccount is an API credential. Its grants live in the permission
// store under PrincipalID, so a token authenticates and the engine
// authorizes.
type ServiceAccount struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	SecretHash  string    `json:"-" db:"secret_hash"`
	PrincipalID uuid.UUID `json:"principal_id" db:"principal_id"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
