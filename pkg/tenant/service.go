package tenant

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/meridianhq/meridian/pkg/apperr"
	"github.com/meridianhq/meridian/pkg/audit"
	"github.com/meridianhq/meridian/pkg/rbac"
)

// Service executes team mutations. Every mutation runs its guards and its
// write inside one transaction holding row locks on the tenant's
// memberships, so concurrent mutations cannot race past the owner check.
// Audit entries are recorded after commit.
type Service struct {
	db       *sql.DB
	repo     *PostgresRepository
	recorder *audit.Recorder
}

// NewService creates a team mutation service.
func NewService(db *sql.DB, repo *PostgresRepository, recorder *audit.Recorder) *Service {
	return &Service{db: db, repo: repo, recorder: recorder}
}

// ListTeamMembers returns the tenant's member list.
func (s *Service) ListTeamMembers(ctx context.Context, companyID int64) ([]*TeamMember, error) {
	return s.repo.ListTeamMembers(ctx, companyID)
}

// CreateCompany onboards a new tenant with the caller as OWNER.
func (s *Service) CreateCompany(ctx context.Context, actorUserID int64, name string) (*Company, error) {
	company, err := s.repo.CreateCompany(ctx, name, actorUserID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "company_created", &actorUserID, company.ID, map[string]interface{}{
		"name": name,
	})
	return company, nil
}

// lockedMember is one row of the tenant's membership set held under lock.
type lockedMember struct {
	UserID int64
	Role   rbac.Tier
}

// lockMemberships takes FOR UPDATE row locks on every membership of the
// tenant and returns the locked set. All owner-count decisions are made
// against this snapshot.
func lockMemberships(ctx context.Context, tx *sql.Tx, companyID int64) ([]lockedMember, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT user_id, role
		FROM memberships
		WHERE company_id = $1
		FOR UPDATE`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock memberships: %w", err)
	}
	defer rows.Close()

	var members []lockedMember
	for rows.Next() {
		var m lockedMember
		if err := rows.Scan(&m.UserID, &m.Role); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func countOwners(members []lockedMember) int {
	owners := 0
	for _, m := range members {
		if m.Role == rbac.TierOwner {
			owners++
		}
	}
	return owners
}

func findMember(members []lockedMember, userID int64) (lockedMember, bool) {
	for _, m := range members {
		if m.UserID == userID {
			return m, true
		}
	}
	return lockedMember{}, false
}

// UpdateRole changes a member's role. Demoting the tenant's only OWNER is
// rejected; so is assigning a custom role that does not exist in the tenant.
func (s *Service) UpdateRole(ctx context.Context, actor *Context, targetUserID int64, ref rbac.RoleRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	members, err := lockMemberships(ctx, tx, actor.CompanyID)
	if err != nil {
		return err
	}

	target, ok := findMember(members, targetUserID)
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "member %d not found", targetUserID)
	}

	demotingOwner := target.Role == rbac.TierOwner && (ref.Tier != rbac.TierOwner || ref.IsCustom())
	if demotingOwner && countOwners(members) <= 1 {
		return apperr.New(apperr.KindLastOwnerViolation, "company must retain at least one owner")
	}

	if ref.IsCustom() {
		var exists bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM roles WHERE id = $1 AND company_id = $2)`,
			*ref.CustomRoleID, actor.CompanyID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check custom role: %w", err)
		}
		if !exists {
			return apperr.Newf(apperr.KindNotFound, "role %d not found", *ref.CustomRoleID)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE memberships
		SET role = $1, custom_role_id = $2
		WHERE company_id = $3 AND user_id = $4`,
		ref.Tier, ref.CustomRoleID, actor.CompanyID, targetUserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role update: %w", err)
	}

	metadata := map[string]interface{}{
		"memberId": targetUserID,
		"role":     string(ref.Tier),
	}
	if ref.IsCustom() {
		metadata["customRoleId"] = *ref.CustomRoleID
	}
	s.record(ctx, "member_role_updated", &actor.UserID, actor.CompanyID, metadata)
	return nil
}

// RemoveMember removes one member. Callers cannot remove themselves, and the
// tenant's only OWNER cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, actor *Context, targetUserID int64) error {
	if targetUserID == actor.UserID {
		return apperr.New(apperr.KindSelfRemovalForbidden, "cannot remove yourself from the company")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	members, err := lockMemberships(ctx, tx, actor.CompanyID)
	if err != nil {
		return err
	}

	target, ok := findMember(members, targetUserID)
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "member %d not found", targetUserID)
	}
	if target.Role == rbac.TierOwner && countOwners(members) <= 1 {
		return apperr.New(apperr.KindLastOwnerViolation, "company must retain at least one owner")
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM memberships WHERE company_id = $1 AND user_id = $2`,
		actor.CompanyID, targetUserID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit member removal: %w", err)
	}

	s.record(ctx, "member_removed", &actor.UserID, actor.CompanyID, map[string]interface{}{
		"memberId": targetUserID,
	})
	return nil
}

// BulkRemove removes a set of members atomically: either every listed member
// is removed or none is. Unknown ids fail the whole batch, as does a batch
// that would leave the tenant without an OWNER or that includes the caller.
func (s *Service) BulkRemove(ctx context.Context, actor *Context, targetUserIDs []int64) error {
	if len(targetUserIDs) == 0 {
		return apperr.Validation(map[string]string{"memberIds": "must not be empty"})
	}

	seen := make(map[int64]bool, len(targetUserIDs))
	targets := make([]int64, 0, len(targetUserIDs))
	for _, id := range targetUserIDs {
		if id == actor.UserID {
			return apperr.New(apperr.KindSelfRemovalForbidden, "cannot remove yourself from the company")
		}
		if !seen[id] {
			seen[id] = true
			targets = append(targets, id)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	members, err := lockMemberships(ctx, tx, actor.CompanyID)
	if err != nil {
		return err
	}

	ownersRemoved := 0
	for _, id := range targets {
		target, ok := findMember(members, id)
		if !ok {
			return apperr.Newf(apperr.KindNotFound, "member %d not found", id)
		}
		if target.Role == rbac.TierOwner {
			ownersRemoved++
		}
	}
	if ownersRemoved > 0 && countOwners(members)-ownersRemoved < 1 {
		return apperr.New(apperr.KindLastOwnerViolation, "company must retain at least one owner")
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM memberships WHERE company_id = $1 AND user_id = ANY($2)`,
		actor.CompanyID, pq.Array(targets),
	)
	if err != nil {
		return fmt.Errorf("failed to remove members: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bulk removal: %w", err)
	}

	s.record(ctx, "members_bulk_removed", &actor.UserID, actor.CompanyID, map[string]interface{}{
		"memberIds": targets,
		"count":     len(targets),
	})
	return nil
}

func (s *Service) record(ctx context.Context, action string, userID *int64, companyID int64, metadata map[string]interface{}) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(ctx, &audit.Entry{
		Action:    action,
		UserID:    userID,
		CompanyID: companyID,
		Metadata:  metadata,
	})
}
