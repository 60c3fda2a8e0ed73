// Package tenant owns companies, memberships, tenant context resolution, and
// the team mutation service. Every persistence method is scoped by company id
// so one tenant can never observe or modify another tenant's rows.
package tenant
