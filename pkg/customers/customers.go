// Package customers implements the tenant-scoped customer records exposed by
// the CRM endpoints.
package customers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meridianhq/meridian/pkg/apperr"
	"github.com/meridianhq/meridian/pkg/audit"
	"github.com/meridianhq/meridian/pkg/storage"
)

// Customer is one CRM record owned by a company.
type Customer struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"companyId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service persists customers. All reads and writes are scoped by company id.
type Service struct {
	db       *sql.DB
	recorder *audit.Recorder
}

// NewService creates a customer service.
func NewService(db *sql.DB, recorder *audit.Recorder) *Service {
	return &Service{db: db, recorder: recorder}
}

// Create inserts a customer. Email addresses are unique within a tenant;
// the same email may exist in different tenants.
func (s *Service) Create(ctx context.Context, companyID, actorUserID int64, name, email string) (*Customer, error) {
	customer := &Customer{CompanyID: companyID, Name: name, Email: email}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (company_id, name, email)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		companyID, name, email,
	).Scan(&customer.ID, &customer.CreatedAt)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, apperr.Newf(apperr.KindConflict, "customer with email %s already exists", email)
		}
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	if s.recorder != nil {
		s.recorder.Record(ctx, &audit.Entry{
			Action:    "customer_created",
			UserID:    &actorUserID,
			CompanyID: companyID,
			Metadata:  map[string]interface{}{"customerId": customer.ID},
		})
	}
	return customer, nil
}

// List returns the tenant's customers, newest first.
func (s *Service) List(ctx context.Context, companyID int64) ([]*Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, name, email, created_at
		FROM customers
		WHERE company_id = $1
		ORDER BY created_at DESC, id DESC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*Customer
	for rows.Next() {
		customer := &Customer{}
		if err := rows.Scan(&customer.ID, &customer.CompanyID, &customer.Name, &customer.Email, &customer.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, customer)
	}
	return customers, rows.Err()
}

// Get fetches one customer scoped to the tenant.
func (s *Service) Get(ctx context.Context, companyID, customerID int64) (*Customer, error) {
	customer := &Customer{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, email, created_at
		FROM customers
		WHERE id = $1 AND company_id = $2`,
		customerID, companyID,
	).Scan(&customer.ID, &customer.CompanyID, &customer.Name, &customer.Email, &customer.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.KindNotFound, "customer %d not found", customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return customer, nil
}
