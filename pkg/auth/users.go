package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meridianhq/meridian/pkg/apperr"
)

// User is a locally provisioned account linked to an external identity.
type User struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"-"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UserStore provisions and looks up local user records.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user store backed by the given database.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Sync lazily provisions the local record for a verified identity. The upsert
// is keyed by external id, so repeated calls for the same identity return the
// same local id while refreshing mutable profile fields.
func (s *UserStore) Sync(ctx context.Context, identity *Identity) (*User, error) {
	user := &User{ExternalID: identity.ExternalID}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (external_id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name, updated_at = NOW()
		RETURNING id, email, name, created_at`,
		identity.ExternalID, identity.Email, identity.Name,
	).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to sync user: %w", err)
	}
	return user, nil
}

// GetByID fetches a user by local id.
func (s *UserStore) GetByID(ctx context.Context, id int64) (*User, error) {
	user := &User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, email, name, created_at
		FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.ExternalID, &user.Email, &user.Name, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.KindNotFound, "user %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByEmail fetches a user by email, used when accepting invitations.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	user := &User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, email, name, created_at
		FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.ExternalID, &user.Email, &user.Name, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.KindNotFound, "user %s not found", email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}
