package rbac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplates(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTemplates(t *testing.T) {
	path := writeTemplates(t, `
version: "1"
templates:
  - name: support
    permissions:
      - customer:read
      - customer:update
  - name: auditor
    permissions:
      - company:read
      - team:read
`)

	catalog, err := LoadTemplates(path)
	require.NoError(t, err)
	require.Len(t, catalog.Templates, 2)
	assert.Equal(t, "support", catalog.Templates[0].Name)
	assert.Equal(t, []string{"customer:read", "customer:update"}, catalog.Templates[0].Permissions)
}

func TestLoadTemplatesUnknownPermission(t *testing.T) {
	path := writeTemplates(t, `
templates:
  - name: support
    permissions:
      - customer:teleport
`)

	_, err := LoadTemplates(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer:teleport")
}

func TestLoadTemplatesDuplicateName(t *testing.T) {
	path := writeTemplates(t, `
templates:
  - name: support
    permissions: [customer:read]
  - name: support
    permissions: [customer:update]
`)

	_, err := LoadTemplates(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadTemplatesMissingFile(t *testing.T) {
	_, err := LoadTemplates(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
