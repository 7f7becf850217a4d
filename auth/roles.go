package auth

import (
	"strings"

	"seroest/models"
)

// MainAdminName is the only admin allowed to manage accounts and reference data.
const MainAdminName = "akram"

// Permission names a group of operations gated by role.
type Permission string

const (
	// PermManage covers users, projects, phases, stations and the activity log.
	PermManage Permission = "manage"
	// PermSupervise covers the dashboard, the users list, every report, status updates and exports.
	PermSupervise Permission = "supervise"
	// PermSubmitReport is held by topographes only.
	PermSubmitReport Permission = "submit_report"
	// PermRead covers projects, phases and stations.
	PermRead Permission = "read"
)

// IsMainAdmin reports whether u is the main administrator.
func IsMainAdmin(u models.User) bool {
	return u.Role == models.RoleAdmin && strings.EqualFold(strings.TrimSpace(u.Name), MainAdminName)
}

// Can reports whether u holds permission p.
func Can(u models.User, p Permission) bool {
	switch p {
	case PermManage:
		return IsMainAdmin(u)
	case PermSupervise:
		return u.Role == models.RoleAdmin || u.Role == models.RoleSupervisor
	case PermSubmitReport:
		return u.Role == models.RoleTopographer
	case PermRead:
		return u.Role.Valid()
	}
	return false
}
