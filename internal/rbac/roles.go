package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleFan       = "fan"
	RoleCelebrity = "celebrity"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// IsKnownRole reports whether role is one of the roles tokens may carry.
func IsKnownRole(role string) bool {
	switch role {
	case RoleFan, RoleCelebrity, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}
