package auth

import (
	"strings"

	"github.com/quicklinkpay/admin-iam/internal/rbac"
)

// Prefix constants for Casbin identifiers
const (
	PrefixRole = "role:"
)

// Request tiers passed to the matcher.
const (
	TierSuperAdmin = "super_admin"
	TierStandard   = "standard"
)

// RoleSubject creates a Casbin role identifier with the standard prefix
// Example: RoleSubject("support_admin") → "role:support_admin"
func RoleSubject(roleID string) string {
	return PrefixRole + roleID
}

// ExtractRoleID strips the role prefix, returning "" when absent.
func ExtractRoleID(subject string) string {
	if !strings.HasPrefix(subject, PrefixRole) {
		return ""
	}
	return strings.TrimPrefix(subject, PrefixRole)
}

// tierFor derives the request tier from stored role attributes.
func tierFor(accessLevel string, level int) string {
	if rbac.AccessLevel(accessLevel) == rbac.AccessSuperAdmin || rbac.Level(level) == rbac.LevelSuperAdmin {
		return TierSuperAdmin
	}
	return TierStandard
}
