package middleware

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/fieldline/fieldline/pkg/observability"
)

// Policy is the access requirement for one named route. Routes are bound to
// policies explicitly through this table; there is no annotation scanning or
// convention-based matching.
type Policy struct {
	// Name is the route name the policy binds to
	Name string `yaml:"name"`

	// Permission is the code checked by the permission resolver. Empty is
	// only valid when SuperAdminOnly is set.
	Permission string `yaml:"permission"`

	// ProjectParam names the route parameter holding a project id. When
	// set, the chain validates the project inside the active tenant.
	ProjectParam string `yaml:"project_param"`

	// SuperAdminOnly restricts the route to the system super_admin role.
	// These are platform routes; the tenant stage is skipped for them.
	SuperAdminOnly bool `yaml:"super_admin_only"`

	// TenantRedirect is the tenant-scoped equivalent suggested to
	// org admins who hit a SuperAdminOnly route.
	TenantRedirect string `yaml:"tenant_redirect"`
}

type policyFile struct {
	Routes []Policy `yaml:"routes"`
}

// PolicyTable holds the route-to-policy bindings loaded from the policy
// file. Lookups are safe for concurrent use with reloads.
type PolicyTable struct {
	path   string
	logger *observability.Logger

	mu       sync.RWMutex
	policies map[string]Policy

	watcher *fsnotify.Watcher
}

// LoadPolicyTable reads and validates the policy file.
func LoadPolicyTable(path string, logger *observability.Logger) (*PolicyTable, error) {
	table := &PolicyTable{
		path:   path,
		logger: logger,
	}
	if err := table.reload(); err != nil {
		return nil, err
	}
	return table, nil
}

// Lookup returns the policy bound to the given route name.
func (t *PolicyTable) Lookup(name string) (Policy, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	policy, ok := t.policies[name]
	return policy, ok
}

// Len returns the number of bound routes.
func (t *PolicyTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.policies)
}

func (t *PolicyTable) reload() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse policy file %s: %w", t.path, err)
	}

	// Editors truncate before writing, so the watcher can observe an empty
	// file mid-save. An empty table would unbind every route, treat it as
	// a bad read and keep the previous bindings.
	if len(file.Routes) == 0 {
		return fmt.Errorf("policy file %s: no routes defined", t.path)
	}

	policies := make(map[string]Policy, len(file.Routes))
	for _, policy := range file.Routes {
		if policy.Name == "" {
			return fmt.Errorf("policy file %s: route with empty name", t.path)
		}
		if _, exists := policies[policy.Name]; exists {
			return fmt.Errorf("policy file %s: duplicate route %q", t.path, policy.Name)
		}
		if policy.Permission == "" && !policy.SuperAdminOnly {
			return fmt.Errorf("policy file %s: route %q has no permission", t.path, policy.Name)
		}
		policies[policy.Name] = policy
	}

	t.mu.Lock()
	t.policies = policies
	t.mu.Unlock()
	return nil
}

// Watch re-reads the policy file when it changes on disk. A broken edit
// keeps the previous table; the error is logged and the watcher stays alive.
func (t *PolicyTable) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace the file on save
	// and a file-level watch dies with the old inode.
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch policy directory: %w", err)
	}
	t.watcher = watcher

	go func() {
		defer observability.RecoverPanic(t.logger, "policy watcher")
		target := filepath.Clean(t.path)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := t.reload(); err != nil {
					t.logger.WithError(err).Error("policy reload failed, keeping previous table")
					continue
				}
				t.logger.WithField("routes", t.Len()).Info("policy table reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				t.logger.WithError(err).Warn("policy watcher error")
			}
		}
	}()

	return nil
}

// Close stops the watcher if one was started.
func (t *PolicyTable) Close() error {
	if t.watcher != nil {
		return t.watcher.Close()
	}
	return nil
}
