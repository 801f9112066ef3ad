package middleware

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicyTable(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		table, err := LoadPolicyTable(writePolicyFile(t, testPolicies), testLogger())
		require.NoError(t, err)
		assert.Equal(t, 4, table.Len())

		policy, ok := table.Lookup("daily_logs.create")
		require.True(t, ok)
		assert.Equal(t, "daily_logs.create", policy.Permission)
		assert.Equal(t, "projectID", policy.ProjectParam)

		admin, ok := table.Lookup("admin.users")
		require.True(t, ok)
		assert.True(t, admin.SuperAdminOnly)
		assert.Equal(t, "/admin/members", admin.TenantRedirect)

		_, ok = table.Lookup("nope")
		assert.False(t, ok)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPolicyTable(filepath.Join(t.TempDir(), "absent.yaml"), testLogger())
		assert.Error(t, err)
	})

	t.Run("route without permission rejected", func(t *testing.T) {
		path := writePolicyFile(t, "routes:\n  - name: broken\n")
		_, err := LoadPolicyTable(path, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no permission")
	})

	t.Run("duplicate route rejected", func(t *testing.T) {
		path := writePolicyFile(t, `
routes:
  - name: dup
    permission: a.b
  - name: dup
    permission: c.d
`)
		_, err := LoadPolicyTable(path, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate route")
	})

	t.Run("file with no routes rejected", func(t *testing.T) {
		path := writePolicyFile(t, "")
		_, err := LoadPolicyTable(path, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no routes")
	})

	t.Run("super admin route needs no permission", func(t *testing.T) {
		path := writePolicyFile(t, "routes:\n  - name: admin.only\n    super_admin_only: true\n")
		table, err := LoadPolicyTable(path, testLogger())
		require.NoError(t, err)
		policy, ok := table.Lookup("admin.only")
		require.True(t, ok)
		assert.Empty(t, policy.Permission)
	})
}

func TestPolicyTable_Watch(t *testing.T) {
	path := writePolicyFile(t, "routes:\n  - name: one\n    permission: a.b\n")
	table, err := LoadPolicyTable(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, table.Watch())
	defer table.Close()

	t.Run("picks up new routes", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(`
routes:
  - name: one
    permission: a.b
  - name: two
    permission: c.d
`), 0o644))

		require.Eventually(t, func() bool {
			_, ok := table.Lookup("two")
			return ok
		}, 3*time.Second, 20*time.Millisecond)
	})

	t.Run("truncated save keeps the previous table", func(t *testing.T) {
		// os.WriteFile truncates before writing, so the watcher observes
		// an empty file before the new content lands.
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		time.Sleep(300 * time.Millisecond)
		_, ok := table.Lookup("one")
		assert.True(t, ok)
		_, ok = table.Lookup("two")
		assert.True(t, ok)
	})

	t.Run("broken edit keeps the previous table", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("routes: [not valid yaml"), 0o644))

		// The watcher sees the write; give it a moment to attempt the
		// reload, then confirm the old bindings survive.
		time.Sleep(300 * time.Millisecond)
		_, ok := table.Lookup("one")
		assert.True(t, ok)
		_, ok = table.Lookup("two")
		assert.True(t, ok)
	})
}
