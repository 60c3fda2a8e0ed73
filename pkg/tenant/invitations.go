package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridianhq/meridian/pkg/apperr"
	"github.com/meridianhq/meridian/pkg/rbac"
)

// InvitationTTL is how long an invitation stays acceptable.
const InvitationTTL = 7 * 24 * time.Hour

// Invitation is a pending offer to join a company.
type Invitation struct {
	ID         int64      `json:"id"`
	CompanyID  int64      `json:"companyId"`
	Email      string     `json:"email"`
	Role       rbac.Tier  `json:"role"`
	Token      string     `json:"token"`
	InvitedBy  *int64     `json:"invitedBy,omitempty"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// CreateInvitation issues an invitation for an email address to join the
// actor's company with the given tier.
func (s *Service) CreateInvitation(ctx context.Context, actor *Context, email string, role rbac.Tier) (*Invitation, error) {
	if !rbac.ValidTier(string(role)) {
		return nil, apperr.Validation(map[string]string{"role": "must be a valid role"})
	}

	invitation := &Invitation{
		CompanyID: actor.CompanyID,
		Email:     email,
		Role:      role,
		Token:     uuid.NewString(),
		InvitedBy: &actor.UserID,
		ExpiresAt: time.Now().Add(InvitationTTL),
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO invitations (company_id, email, role, token, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		invitation.CompanyID, invitation.Email, invitation.Role,
		invitation.Token, invitation.InvitedBy, invitation.ExpiresAt,
	).Scan(&invitation.ID, &invitation.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	s.record(ctx, "invitation_created", &actor.UserID, actor.CompanyID, map[string]interface{}{
		"email": email,
		"role":  string(role),
	})
	return invitation, nil
}

// AcceptInvitation redeems an invitation token for the given user, creating
// the membership. Expired or already-accepted invitations are rejected.
func (s *Service) AcceptInvitation(ctx context.Context, userID int64, token string) (*Membership, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		id         int64
		companyID  int64
		role       rbac.Tier
		expiresAt  time.Time
		acceptedAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, company_id, role, expires_at, accepted_at
		FROM invitations
		WHERE token = $1
		FOR UPDATE`,
		token,
	).Scan(&id, &companyID, &role, &expiresAt, &acceptedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "invitation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	if acceptedAt.Valid {
		return nil, apperr.New(apperr.KindConflict, "invitation already accepted")
	}
	if time.Now().After(expiresAt) {
		return nil, apperr.New(apperr.KindConflict, "invitation expired")
	}

	membership := &Membership{UserID: userID, CompanyID: companyID, Role: role}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO memberships (user_id, company_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, company_id) DO NOTHING
		RETURNING id, created_at`,
		userID, companyID, role,
	).Scan(&membership.ID, &membership.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.KindConflict, "user is already a member of company %d", companyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE invitations SET accepted_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invitation acceptance: %w", err)
	}

	s.record(ctx, "invitation_accepted", &userID, companyID, map[string]interface{}{
		"invitationId": id,
	})
	return membership, nil
}

// RevokeInvitation deletes a pending invitation in the actor's company.
func (s *Service) RevokeInvitation(ctx context.Context, actor *Context, invitationID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM invitations
		WHERE id = $1 AND company_id = $2 AND accepted_at IS NULL`,
		invitationID, actor.CompanyID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read revoke result: %w", err)
	}
	if affected == 0 {
		return apperr.Newf(apperr.KindNotFound, "invitation %d not found or already accepted", invitationID)
	}

	s.record(ctx, "invitation_revoked", &actor.UserID, actor.CompanyID, map[string]interface{}{
		"invitationId": invitationID,
	})
	return nil
}

// CleanupExpiredInvitations removes unaccepted invitations past their
// expiry. The maintenance worker runs this on a schedule.
func CleanupExpiredInvitations(ctx context.Context, db *sql.DB) (int64, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM invitations WHERE expires_at < NOW() AND accepted_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cleanup result: %w", err)
	}
	return removed, nil
}
