// Package rbac defines the ordered role hierarchy used for endpoint
// authorization. Roles are totally ordered capability levels, not permission
// sets: a request is allowed when the caller's role is at least the
// endpoint's minimum.
package rbac

// Role is an ordered capability level, stored as an integer in the database.
type Role int

const (
	RoleUnapproved Role = 0
	RoleNormal     Role = 1
	RoleEditor     Role = 2
	RoleAdmin      Role = 3
)

// AtLeast reports whether role meets the given minimum level.
func AtLeast(role, min Role) bool {
	return role >= min
}

// Valid reports whether role is one of the defined levels.
func Valid(role Role) bool {
	return role >= RoleUnapproved && role <= RoleAdmin
}

func (r Role) String() string {
	switch r {
	case RoleUnapproved:
		return "unapproved"
	case RoleNormal:
		return "normal"
	case RoleEditor:
		return "editor"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Parse maps a role name to its level. Unknown names map to RoleUnapproved;
// callers that need to reject unknown names should use ParseStrict.
func Parse(name string) Role {
	role, ok := ParseStrict(name)
	if !ok {
		return RoleUnapproved
	}
	return role
}

// ParseStrict maps a role name to its level, reporting whether the name is known.
func ParseStrict(name string) (Role, bool) {
	switch name {
	case "unapproved":
		return RoleUnapproved, true
	case "normal":
		return RoleNormal, true
	case "editor":
		return RoleEditor, true
	case "admin":
		return RoleAdmin, true
	default:
		return RoleUnapproved, false
	}
}
