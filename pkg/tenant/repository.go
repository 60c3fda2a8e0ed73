package tenant

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/meridianhq/meridian/pkg/apperr"
	"github.com/meridianhq/meridian/pkg/rbac"
	"github.com/meridianhq/meridian/pkg/storage"
)

// Repository is the persistence surface for companies and memberships.
// Tenant-scoped reads and writes take the company id explicitly; there is no
// method that returns cross-tenant data keyed by anything else.
type Repository interface {
	GetCompany(ctx context.Context, companyID int64) (*Company, error)
	GetMembership(ctx context.Context, companyID, userID int64) (*Membership, error)
	ListMembershipsForUser(ctx context.Context, userID int64) ([]*Membership, error)
	ListTeamMembers(ctx context.Context, companyID int64) ([]*TeamMember, error)
}

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository backed by the given database.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetCompany fetches a company by id.
func (r *PostgresRepository) GetCompany(ctx context.Context, companyID int64) (*Company, error) {
	company := &Company{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM companies WHERE id = $1`,
		companyID,
	).Scan(&company.ID, &company.Name, &company.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.KindNotFound, "company %d not found", companyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return company, nil
}

// CreateCompany creates a company and its founding OWNER membership in one
// transaction.
func (r *PostgresRepository) CreateCompany(ctx context.Context, name string, ownerUserID int64) (*Company, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	company := &Company{Name: name}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO companies (name) VALUES ($1)
		RETURNING id, created_at`,
		name,
	).Scan(&company.ID, &company.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memberships (user_id, company_id, role)
		VALUES ($1, $2, $3)`,
		ownerUserID, company.ID, rbac.TierOwner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit company creation: %w", err)
	}
	return company, nil
}

// GetMembership fetches a user's membership within a company.
func (r *PostgresRepository) GetMembership(ctx context.Context, companyID, userID int64) (*Membership, error) {
	m := &Membership{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, company_id, role, custom_role_id, created_at
		FROM memberships
		WHERE company_id = $1 AND user_id = $2`,
		companyID, userID,
	).Scan(&m.ID, &m.UserID, &m.CompanyID, &m.Role, &m.CustomRoleID, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.KindForbiddenTenant, "user %d is not a member of company %d", userID, companyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// ListMembershipsForUser returns a user's memberships across tenants,
// earliest first. The tenant resolver uses the ordering to choose a default.
func (r *PostgresRepository) ListMembershipsForUser(ctx context.Context, userID int64) ([]*Membership, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, company_id, role, custom_role_id, created_at
		FROM memberships
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*Membership
	for rows.Next() {
		m := &Membership{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.CompanyID, &m.Role, &m.CustomRoleID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// ListTeamMembers returns the company's members joined with user profiles,
// ordered by role rank (owners first) and then join date. The returned id
// is the member's user id.
func (r *PostgresRepository) ListTeamMembers(ctx context.Context, companyID int64) ([]*TeamMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.name, m.role, m.created_at
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.company_id = $1
		ORDER BY CASE m.role
			WHEN 'OWNER' THEN 0
			WHEN 'ADMIN' THEN 1
			WHEN 'MEMBER' THEN 2
			ELSE 3
		END ASC, m.created_at ASC, m.id ASC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var members []*TeamMember
	for rows.Next() {
		member := &TeamMember{}
		if err := rows.Scan(&member.ID, &member.Email, &member.Name, &member.Role, &member.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// AddMember inserts a membership. A duplicate (user, company) pair is a
// conflict.
func (r *PostgresRepository) AddMember(ctx context.Context, companyID, userID int64, role rbac.Tier) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO memberships (user_id, company_id, role)
		VALUES ($1, $2, $3)`,
		userID, companyID, role,
	)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return apperr.Newf(apperr.KindConflict, "user %d is already a member of company %d", userID, companyID)
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}
