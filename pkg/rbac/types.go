package rbac

import (
	"errors"
	"strings"
	"time"
)

// Permission codes follow the form "module.action", e.g. "projects.read".
// A role may also carry the module wildcard "projects.*" or the global
// wildcard "*".
const (
	PermissionProjectsCreate = "projects.create"
	PermissionProjectsRead   = "projects.read"
	PermissionProjectsUpdate = "projects.update"
	PermissionProjectsDelete = "projects.delete"

	PermissionDailyLogsCreate = "daily_logs.create"
	PermissionDailyLogsRead   = "daily_logs.read"
	PermissionDailyLogsUpdate = "daily_logs.update"

	PermissionRFIsCreate = "rfis.create"
	PermissionRFIsRead   = "rfis.read"
	PermissionRFIsAnswer = "rfis.answer"

	PermissionBudgetsRead   = "budgets.read"
	PermissionBudgetsUpdate = "budgets.update"

	PermissionDocumentsRead   = "documents.read"
	PermissionDocumentsUpload = "documents.upload"

	PermissionMembersRead   = "members.read"
	PermissionMembersManage = "members.manage"

	PermissionRolesRead   = "roles.read"
	PermissionRolesManage = "roles.manage"

	PermissionTenantsManage = "tenants.manage"
	PermissionUsersManage   = "users.manage"
	PermissionAuditRead     = "audit.read"

	// PermissionAll is the global wildcard carried by super_admin
	PermissionAll = "*"
)

// Built-in role names
const (
	// RoleSuperAdmin is the platform-staff role. It is only ever granted
	// at the system layer and never through a tenant membership.
	RoleSuperAdmin = "super_admin"

	RoleOrgAdmin       = "org_admin"
	RoleProjectManager = "project_manager"
	RoleSiteSupervisor = "site_supervisor"
	RoleCrewMember     = "crew_member"
	RoleViewer         = "viewer"
)

// Layer identifies which resolution layer produced a decision.
type Layer string

const (
	LayerSystem  Layer = "system"
	LayerTenant  Layer = "tenant"
	LayerProject Layer = "project"

	// LayerNone marks a denial after all layers were consulted
	LayerNone Layer = "none"

	// LayerError marks a fail-closed denial caused by a store error
	LayerError Layer = "error"
)

var (
	// ErrRoleNotFound indicates the requested role does not exist
	ErrRoleNotFound = errors.New("role not found")

	// ErrBuiltInRole indicates an attempt to modify or delete a built-in role
	ErrBuiltInRole = errors.New("built-in roles cannot be modified")
)

// Role is a named set of permission codes. Built-in roles have a nil
// TenantID and are shared by every tenant; custom roles belong to exactly
// one tenant.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	TenantID    *string   `json:"tenant_id,omitempty"`
	Permissions []string  `json:"permissions"`
	IsBuiltIn   bool      `json:"is_built_in"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Grants reports whether the role's permission set covers the given code,
// honoring module and global wildcards.
func (r *Role) Grants(code string) bool {
	for _, p := range r.Permissions {
		if p == PermissionAll || p == code {
			return true
		}
		if module, ok := strings.CutSuffix(p, ".*"); ok {
			if strings.HasPrefix(code, module+".") {
				return true
			}
		}
	}
	return false
}

// SystemGrant is a platform-level role assignment, independent of any tenant.
type SystemGrant struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	RoleName  string    `json:"role_name"`
	GrantedBy *string   `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// TenantGrant assigns a role to a user within one tenant.
type TenantGrant struct {
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	RoleID    string    `json:"role_id"`
	RoleName  string    `json:"role_name"`
	GrantedBy *string   `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// ProjectAssignment assigns a user a role on a single project. A user holds
// at most one role per project.
type ProjectAssignment struct {
	UserID     string    `json:"user_id"`
	ProjectID  string    `json:"project_id"`
	RoleID     string    `json:"role_id"`
	RoleName   string    `json:"role_name"`
	AssignedBy *string   `json:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Decision is the outcome of a permission check, including which layer
// granted it. The audit sink records denials.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Layer     Layer     `json:"layer"`
	Role      string    `json:"role,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// BuiltInRoles returns the role definitions seeded at startup.
func BuiltInRoles() []Role {
	return []Role{
		{
			Name:        RoleSuperAdmin,
			DisplayName: "Super Admin",
			Description: "Platform staff with unrestricted access",
			IsBuiltIn:   true,
			Permissions: []string{PermissionAll},
		},
		{
			Name:        RoleOrgAdmin,
			DisplayName: "Organization Admin",
			Description: "Full access within the tenant",
			IsBuiltIn:   true,
			Permissions: []string{
				"projects.*",
				"daily_logs.*",
				"rfis.*",
				"budgets.*",
				"documents.*",
				"members.*",
				"roles.*",
				PermissionAuditRead,
			},
		},
		{
			Name:        RoleProjectManager,
			DisplayName: "Project Manager",
			Description: "Manages projects, budgets, and field records",
			IsBuiltIn:   true,
			Permissions: []string{
				PermissionProjectsCreate,
				PermissionProjectsRead,
				PermissionProjectsUpdate,
				"daily_logs.*",
				"rfis.*",
				PermissionBudgetsRead,
				PermissionBudgetsUpdate,
				PermissionDocumentsRead,
				PermissionDocumentsUpload,
				PermissionMembersRead,
			},
		},
		{
			Name:        RoleSiteSupervisor,
			DisplayName: "Site Supervisor",
			Description: "Runs day-to-day field operations",
			IsBuiltIn:   true,
			Permissions: []string{
				PermissionProjectsRead,
				PermissionDailyLogsCreate,
				PermissionDailyLogsRead,
				PermissionDailyLogsUpdate,
				PermissionRFIsCreate,
				PermissionRFIsRead,
				PermissionDocumentsRead,
				PermissionDocumentsUpload,
			},
		},
		{
			Name:        RoleCrewMember,
			DisplayName: "Crew Member",
			Description: "Records field work on assigned projects",
			IsBuiltIn:   true,
			Permissions: []string{
				PermissionProjectsRead,
				PermissionDailyLogsCreate,
				PermissionDailyLogsRead,
				PermissionRFIsRead,
				PermissionDocumentsRead,
			},
		},
		{
			Name:        RoleViewer,
			DisplayName: "Viewer",
			Description: "Read-only access",
			IsBuiltIn:   true,
			Permissions: []string{
				PermissionProjectsRead,
				PermissionDailyLogsRead,
				PermissionRFIsRead,
				PermissionBudgetsRead,
				PermissionDocumentsRead,
			},
		},
	}
}
