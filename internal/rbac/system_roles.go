package rbac

// SystemRole is a predefined role seeded once at bootstrap.
type SystemRole struct {
	ID                string
	Name              string
	Description       string
	Level             Level
	AccessLevel       AccessLevel
	CanManageUsers    bool
	CanCreateSubRoles bool
	Permissions       PermissionMatrix
}

// System role identifiers.
const (
	RoleSuperAdmin      = "super_admin"
	RoleSystemAdmin     = "system_admin"
	RoleOpsAdmin        = "ops_admin"
	RoleFinanceAdmin    = "finance_admin"
	RoleComplianceAdmin = "compliance_admin"
	RoleSupportAdmin    = "support_admin"
	RoleMerchantManager = "merchant_manager"
	RoleAnalyst         = "analyst"
	RoleViewer          = "viewer"
)

func grants(r Resource, actions ...Action) []Permission {
	out := make([]Permission, 0, len(actions))
	for _, a := range actions {
		out = append(out, Permission{Resource: r, Action: a})
	}
	return out
}

func join(groups ...[]Permission) []Permission {
	var out []Permission
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// SystemRoles returns fresh copies of the built-in roles, highest authority first.
func SystemRoles() []SystemRole {
	return []SystemRole{
		{
			ID:                RoleSuperAdmin,
			Name:              "Super Admin",
			Description:       "Unrestricted access to every module",
			Level:             0,
			AccessLevel:       AccessSuperAdmin,
			CanManageUsers:    true,
			CanCreateSubRoles: true,
			Permissions:       FullMatrix(),
		},
		{
			ID:                RoleSystemAdmin,
			Name:              "System Admin",
			Description:       "Platform administration, user and role management",
			Level:             10,
			AccessLevel:       AccessAdmin,
			CanManageUsers:    true,
			CanCreateSubRoles: true,
			Permissions:       FullMatrix(),
		},
		{
			ID:             RoleOpsAdmin,
			Name:           "Operations Admin",
			Description:    "Day-to-day merchant and payout operations",
			Level:          20,
			AccessLevel:    AccessAdmin,
			CanManageUsers: true,
			Permissions: NewMatrix(join(
				grants(ResourceDashboard, ActionRead),
				grants(ResourceMerchantManagement, ActionRead, ActionCreate, ActionUpdate, ActionApprove),
				grants(ResourceTransactionManagement, ActionRead, ActionExport),
				grants(ResourcePayoutManagement, ActionRead, ActionApprove),
				grants(ResourceUserManagement, ActionRead, ActionCreate, ActionUpdate),
				grants(ResourceRoleManagement, ActionRead),
				grants(ResourceSupportManagement, ActionRead, ActionUpdate),
				grants(ResourceAnalytics, ActionRead, ActionExport),
				grants(ResourceAuditLogs, ActionRead),
			)...),
		},
		{
			ID:          RoleFinanceAdmin,
			Name:        "Finance Admin",
			Description: "Transactions, payouts and settlement reporting",
			Level:       30,
			AccessLevel: AccessAdmin,
			Permissions: NewMatrix(join(
				grants(ResourceDashboard, ActionRead),
				grants(ResourceMerchantManagement, ActionRead),
				grants(ResourceTransactionManagement, ActionRead, ActionUpdate, ActionApprove, ActionExport),
				grants(ResourcePayoutManagement, ActionRead, ActionCreate, ActionUpdate, ActionApprove, ActionExport),
				grants(ResourceAnalytics, ActionRead, ActionExport),
				grants(ResourceAuditLogs, ActionRead),
			)...),
		},
		{
			ID:          RoleComplianceAdmin,
			Name:        "Compliance Admin",
			Description: "KYC review and regulatory reporting",
			Level:       40,
			AccessLevel: AccessAdmin,
			Permissions: NewMatrix(join(
				grants(ResourceDashboard, ActionRead),
				grants(ResourceMerchantManagement, ActionRead, ActionApprove),
				grants(ResourceTransactionManagement, ActionRead),
				grants(ResourceComplianceManagement, ActionRead, ActionCreate, ActionUpdate, ActionApprove, ActionExport),
				grants(ResourceAuditLogs, ActionRead, ActionExport),
			)...),
		},
		{
			ID:          RoleSupportAdmin,
			Name:        "Support Admin",
			Description: "Merchant support tickets and account lookups",
			Level:       50,
			AccessLevel: AccessManager,
			Permissions: NewMatrix(join(
				grants(ResourceDashboard, ActionRead),
				grants(ResourceMerchantManagement, ActionRead),
				grants(ResourceTransactionManagement, ActionRead),
				grants(ResourceUserManagement, ActionRead),
				grants(ResourceSupportManagement, ActionRead, ActionCreate, ActionUpdate),
			)...),
		},
		{
			ID:          RoleMerchantManager,
			Name:        "Merchant Manager",
			Description: "Owns a merchant portfolio",
			Level:       60,
			AccessLevel: AccessManager,
			Permissions: NewMatrix(join(
				grants(ResourceDashboard, ActionRead),
				grants(ResourceMerchantManagement, ActionRead, ActionCreate, ActionUpdate),
				grants(ResourceSupportManagement, ActionRead),
			)...),
		},
		{
			ID:          RoleAnalyst,
			Name:        "Analyst",
			Description: "Read-only analytics with export",
			Level:       70,
			AccessLevel: AccessStaff,
			Permissions: NewMatrix(join(
				grants(ResourceDashboard, ActionRead),
				grants(ResourceTransactionManagement, ActionRead),
				grants(ResourceAnalytics, ActionRead, ActionExport),
			)...),
		},
		{
			ID:          RoleViewer,
			Name:        "Viewer",
			Description: "Dashboard read access",
			Level:       90,
			AccessLevel: AccessReadOnly,
			Permissions: NewMatrix(join(
				grants(ResourceDashboard, ActionRead),
				grants(ResourceAnalytics, ActionRead),
			)...),
		},
	}
}

// IsSystemRoleID reports whether id names a built-in role.
func IsSystemRoleID(id string) bool {
	for _, r := range SystemRoles() {
		if r.ID == id {
			return true
		}
	}
	return false
}
