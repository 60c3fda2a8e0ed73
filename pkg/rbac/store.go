package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/meridianhq/meridian/pkg/apperr"
	"github.com/meridianhq/meridian/pkg/storage"
)

// Role is a tenant-scoped custom role with an explicit permission set.
type Role struct {
	ID          int64        `json:"id"`
	CompanyID   int64        `json:"companyId"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// PostgresRoleStore persists custom roles. Permission sets are stored as a
// JSONB array of permission keys. An optional TTL-bounded LRU cache fronts
// GetRolePermissions; mutations invalidate the affected entry.
type PostgresRoleStore struct {
	db    *sql.DB
	cache *lru.LRU[string, PermissionSet]

	// optional, incremented on cache lookups when set
	onCacheHit  func()
	onCacheMiss func()
}

// RoleStoreOption configures a PostgresRoleStore.
type RoleStoreOption func(*PostgresRoleStore)

// WithCache enables the in-memory permission-set cache.
func WithCache(maxEntries int, ttl time.Duration) RoleStoreOption {
	return func(s *PostgresRoleStore) {
		if maxEntries < 10 {
			maxEntries = 10
		}
		s.cache = lru.NewLRU[string, PermissionSet](maxEntries, nil, ttl)
	}
}

// WithCacheMetrics registers callbacks invoked on cache hits and misses.
func WithCacheMetrics(hit, miss func()) RoleStoreOption {
	return func(s *PostgresRoleStore) {
		s.onCacheHit = hit
		s.onCacheMiss = miss
	}
}

// NewPostgresRoleStore creates a role store backed by the given database.
func NewPostgresRoleStore(db *sql.DB, opts ...RoleStoreOption) *PostgresRoleStore {
	s := &PostgresRoleStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cacheKey(companyID, roleID int64) string {
	return fmt.Sprintf("%d:%d", companyID, roleID)
}

// CreateRole inserts a custom role for the given tenant. Unknown permission
// keys and duplicate names within the tenant are rejected.
func (s *PostgresRoleStore) CreateRole(ctx context.Context, companyID int64, name string, perms []Permission) (*Role, error) {
	known := NewPermissionSet(Catalog()...)
	for _, p := range perms {
		if !known.Has(p) {
			return nil, apperr.Validation(map[string]string{
				"permissions": fmt.Sprintf("unknown permission %q", p),
			})
		}
	}

	encoded, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("failed to encode permissions: %w", err)
	}

	role := &Role{CompanyID: companyID, Name: name, Permissions: perms}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO roles (company_id, name, permissions)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		companyID, name, encoded,
	).Scan(&role.ID, &role.CreatedAt)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, apperr.Newf(apperr.KindConflict, "role %q already exists", name)
		}
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	return role, nil
}

// GetRole fetches a single role scoped to the tenant.
func (s *PostgresRoleStore) GetRole(ctx context.Context, companyID, roleID int64) (*Role, error) {
	role := &Role{}
	var encoded []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, permissions, created_at
		FROM roles
		WHERE id = $1 AND company_id = $2`,
		roleID, companyID,
	).Scan(&role.ID, &role.CompanyID, &role.Name, &encoded, &role.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.KindNotFound, "role %d not found", roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	if err := json.Unmarshal(encoded, &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to decode permissions for role %d: %w", roleID, err)
	}
	return role, nil
}

// ListRoles returns the tenant's custom roles ordered by creation.
func (s *PostgresRoleStore) ListRoles(ctx context.Context, companyID int64) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, name, permissions, created_at
		FROM roles
		WHERE company_id = $1
		ORDER BY created_at, id`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role := &Role{}
		var encoded []byte
		if err := rows.Scan(&role.ID, &role.CompanyID, &role.Name, &encoded, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		if err := json.Unmarshal(encoded, &role.Permissions); err != nil {
			return nil, fmt.Errorf("failed to decode permissions for role %d: %w", role.ID, err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// DeleteRole removes a custom role. Memberships still referencing the role
// block deletion with a conflict.
func (s *PostgresRoleStore) DeleteRole(ctx context.Context, companyID, roleID int64) error {
	var inUse int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memberships
		WHERE company_id = $1 AND custom_role_id = $2`,
		companyID, roleID,
	).Scan(&inUse)
	if err != nil {
		return fmt.Errorf("failed to check role usage: %w", err)
	}
	if inUse > 0 {
		return apperr.Newf(apperr.KindConflict, "role %d is assigned to %d members", roleID, inUse)
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM roles WHERE id = $1 AND company_id = $2`,
		roleID, companyID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return apperr.Newf(apperr.KindNotFound, "role %d not found", roleID)
	}
	if s.cache != nil {
		s.cache.Remove(cacheKey(companyID, roleID))
	}
	return nil
}

// GetRolePermissions resolves a custom role's permission set, consulting the
// cache when enabled. A role belonging to another tenant is not found.
func (s *PostgresRoleStore) GetRolePermissions(ctx context.Context, companyID, roleID int64) (PermissionSet, error) {
	key := cacheKey(companyID, roleID)
	if s.cache != nil {
		if set, ok := s.cache.Get(key); ok {
			if s.onCacheHit != nil {
				s.onCacheHit()
			}
			return set, nil
		}
		if s.onCacheMiss != nil {
			s.onCacheMiss()
		}
	}

	role, err := s.GetRole(ctx, companyID, roleID)
	if err != nil {
		return nil, err
	}
	set := NewPermissionSet(role.Permissions...)
	if s.cache != nil {
		s.cache.Add(key, set)
	}
	return set, nil
}

// Purge drops every cached permission set. The maintenance worker calls this
// on its invalidation sweep.
func (s *PostgresRoleStore) Purge() {
	if s.cache != nil {
		s.cache.Purge()
	}
}
