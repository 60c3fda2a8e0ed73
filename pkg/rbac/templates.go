package rbac

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoleTemplate describes a custom role to seed for new tenants.
type RoleTemplate struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

// TemplateCatalog is the parsed role-templates file.
type TemplateCatalog struct {
	Version   string         `yaml:"version"`
	Templates []RoleTemplate `yaml:"templates"`
}

// LoadTemplates reads and validates a YAML role-templates file. Every
// permission key must exist in the static catalog.
func LoadTemplates(path string) (*TemplateCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role templates: %w", err)
	}

	var catalog TemplateCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse role templates: %w", err)
	}

	known := NewPermissionSet(Catalog()...)
	seen := make(map[string]bool)
	for _, tmpl := range catalog.Templates {
		if tmpl.Name == "" {
			return nil, fmt.Errorf("role template with empty name")
		}
		if seen[tmpl.Name] {
			return nil, fmt.Errorf("duplicate role template %q", tmpl.Name)
		}
		seen[tmpl.Name] = true
		for _, p := range tmpl.Permissions {
			if !known.Has(Permission(p)) {
				return nil, fmt.Errorf("role template %q references unknown permission %q", tmpl.Name, p)
			}
		}
	}

	return &catalog, nil
}

// Seed creates the catalog's roles for a tenant. Existing roles with the
// same name are left alone, so seeding is safe to repeat.
func (c *TemplateCatalog) Seed(ctx context.Context, store *PostgresRoleStore, companyID int64) error {
	existing, err := store.ListRoles(ctx, companyID)
	if err != nil {
		return fmt.Errorf("failed to list roles before seeding: %w", err)
	}
	present := make(map[string]bool, len(existing))
	for _, role := range existing {
		present[role.Name] = true
	}

	for _, tmpl := range c.Templates {
		if present[tmpl.Name] {
			continue
		}
		perms := make([]Permission, len(tmpl.Permissions))
		for i, p := range tmpl.Permissions {
			perms[i] = Permission(p)
		}
		if _, err := store.CreateRole(ctx, companyID, tmpl.Name, perms); err != nil {
			return fmt.Errorf("failed to seed role %q: %w", tmpl.Name, err)
		}
	}
	return nil
}
