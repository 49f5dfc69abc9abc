package auth

import (
	"slices"
	"strings"
)

// Role is a named privilege level.
type Role string

const (
	RoleUser        Role = "user"
	RoleStaff       Role = "staff"
	RoleFacilitator Role = "facilitator"
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "super_admin"
)

var roleRanks = map[Role]int{
	RoleUser:        1,
	RoleStaff:       2,
	RoleFacilitator: 3,
	RoleAdmin:       4,
	RoleSuperAdmin:  5,
}

// Rank returns the position of r in the hierarchy, or 0 for an unknown role.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// ParseRole normalizes name and reports whether it is a defined role.
func ParseRole(name string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(name)))
	return r, r.Valid()
}

// NormalizeRoles deduplicates valid roles ordered from least to most privileged.
// Unknown names are dropped.
func NormalizeRoles(names []string) []Role {
	seen := make(map[Role]struct{}, len(names))
	out := make([]Role, 0, len(names))
	for _, name := range names {
		r, ok := ParseRole(name)
		if !ok {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Role) int { return a.Rank() - b.Rank() })
	return out
}

// TopRank returns the highest rank among roles, or 0 when none is known.
func TopRank(roles []Role) int {
	top := 0
	for _, r := range roles {
		if rank := r.Rank(); rank > top {
			top = rank
		}
	}
	return top
}

// IsBackOffice reports whether roles include any role above user.
func IsBackOffice(roles []Role) bool {
	return TopRank(roles) >= RoleStaff.Rank()
}

// RoleNames converts roles to their string form.
func RoleNames(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
