package auth

import "strings"

// Role represents a user role in the system.
type Role string

const (
	RoleVolunteer    Role = "BENEVOLE"            // Field volunteer
	RoleFieldManager Role = "RESPONSABLE_TERRAIN" // Field team lead
	RoleCoordinator  Role = "COORDINATOR"         // Inventory and planning
	RoleAdmin        Role = "ADMIN"
)

// AllRoles lists every known role.
var AllRoles = []Role{RoleVolunteer, RoleFieldManager, RoleCoordinator, RoleAdmin}

// ParseRoles converts raw claim values, dropping unknown roles.
func ParseRoles(values []string) []Role {
	roles := make([]Role, 0, len(values))
	for _, v := range values {
		candidate := Role(strings.ToUpper(strings.TrimSpace(v)))
		for _, known := range AllRoles {
			if candidate == known {
				roles = append(roles, candidate)
				break
			}
		}
	}
	return roles
}

// HasAnyRole checks if the user has any of the specified roles.
func HasAnyRole(userRoles []Role, requiredRoles ...Role) bool {
	for _, ur := range userRoles {
		for _, rr := range requiredRoles {
			if ur == rr {
				return true
			}
		}
	}
	return false
}
