package authz

// Role names shipped with the platform. Exactly one role is attached to a
// user at any time; RoleSuperAdmin holds every permission in the catalog.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleUser       = "user"
	RoleViewer     = "viewer"
)

// DefaultCatalog builds the catalog used by the platform. Descriptions left
// empty are derived from the key.
func DefaultCatalog() (*Catalog, error) {
	return NewCatalog(defaultPermissions(), defaultBaselines(), RoleSuperAdmin)
}

func defaultPermissions() []Permission {
	return []Permission{
		{Key: "users.view", Description: "View user accounts"},
		{Key: "users.create"},
		{Key: "users.edit"},
		{Key: "users.delete"},
		{Key: "users.manage_permissions", Description: "Grant and revoke per-user permissions"},
		{Key: "users.manage_roles", Description: "Change user roles"},

		{Key: "tenants.view"},
		{Key: "tenants.create"},
		{Key: "tenants.edit"},
		{Key: "tenants.delete"},
		{Key: "tenants.config", Description: "Configure tenant settings"},
		{Key: "tenants.billing"},

		{Key: "chat.view"},
		{Key: "chat.send", Description: "Send chat messages"},
		{Key: "chat.moderate"},
		{Key: "chat.delete"},

		{Key: "calendar.view"},
		{Key: "calendar.create"},
		{Key: "calendar.edit"},
		{Key: "calendar.delete"},

		{Key: "reports.view"},
		{Key: "reports.create"},
		{Key: "reports.edit"},
		{Key: "reports.delete"},
		{Key: "reports.execute"},
		{Key: "reports.export"},
		{Key: "reports.schedule"},

		{Key: "workflows.view"},
		{Key: "workflows.create"},
		{Key: "workflows.edit"},
		{Key: "workflows.delete"},
		{Key: "workflows.execute"},
		{Key: "workflows.monitor"},

		{Key: "mila.access", Description: "Use the MILA assistant"},
		{Key: "mila.admin"},
		{Key: "mila.config"},

		{Key: "quantum.access", Description: "Use quantum-branded features"},
		{Key: "quantum.execute"},
		{Key: "quantum.admin"},

		{Key: "system.admin", Description: "Full system administration"},
		{Key: "system.logs", Description: "Read system and audit logs"},
		{Key: "system.config"},
		{Key: "system.backup"},
		{Key: "system.monitoring"},

		{Key: "api.access"},
		{Key: "api.admin"},
		{Key: "api.keys", Description: "Manage API keys"},

		{Key: "billing.view"},
		{Key: "billing.edit"},
		{Key: "billing.reports"},

		{Key: "support.access"},
		{Key: "support.admin"},
		{Key: "support.tickets"},
	}
}

func defaultBaselines() map[string][]string {
	return map[string][]string{
		RoleAdmin: {
			"users.view", "users.create", "users.edit", "users.delete",
			"users.manage_permissions", "users.manage_roles",
			"tenants.view", "tenants.config",
			"chat.view", "chat.send", "chat.moderate", "chat.delete",
			"calendar.view", "calendar.create", "calendar.edit", "calendar.delete",
			"reports.view", "reports.create", "reports.edit", "reports.delete",
			"reports.execute", "reports.export", "reports.schedule",
			"workflows.view", "workflows.create", "workflows.edit", "workflows.delete",
			"workflows.execute", "workflows.monitor",
			"mila.access", "mila.admin",
			"quantum.access", "quantum.execute",
			"api.access", "api.keys",
			"billing.view", "billing.reports",
			"support.access", "support.tickets",
		},
		RoleManager: {
			"users.view",
			"chat.view", "chat.send", "chat.moderate",
			"calendar.view", "calendar.create", "calendar.edit",
			"reports.view", "reports.create", "reports.execute", "reports.export",
			"workflows.view", "workflows.create", "workflows.execute", "workflows.monitor",
			"mila.access",
			"quantum.access",
			"api.access",
		},
		RoleUser: {
			"chat.view", "chat.send",
			"calendar.view", "calendar.create", "calendar.edit",
			"reports.view",
			"workflows.view", "workflows.execute",
			"quantum.access",
			"mila.access",
		},
		RoleViewer: {
			"chat.view",
			"calendar.view",
			"reports.view",
			"workflows.view",
		},
	}
}
