package auth

// Resource is a protected collection.
type Resource string

// Action is an operation on a resource.
type Action string

const (
	ResourceUsers        Resource = "users"
	ResourceCourses      Resource = "courses"
	ResourceCategories   Resource = "categories"
	ResourceCareerTracks Resource = "career_tracks"
	ResourceCart         Resource = "cart"
	ResourceOrders       Resource = "orders"
	ResourceEnrollments  Resource = "enrollments"
	ResourceAnalytics    Resource = "analytics"
	ResourceAuditLogs    Resource = "audit_logs"
	ResourceSettings     Resource = "settings"
)

const (
	ActionRead         Action = "read"
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionAdministrate Action = "administrate"
)

// AllResources lists every protected resource.
var AllResources = []Resource{
	ResourceUsers, ResourceCourses, ResourceCategories, ResourceCareerTracks, ResourceCart,
	ResourceOrders, ResourceEnrollments, ResourceAnalytics, ResourceAuditLogs, ResourceSettings,
}

type permission struct {
	resource Resource
	action   Action
}

type permissionSet map[permission]struct{}

func grant(set permissionSet, resource Resource, actions ...Action) {
	for _, a := range actions {
		set[permission{resource, a}] = struct{}{}
	}
}

// rolePermissions is the explicit grant table. A role holds exactly what is
// listed for it; rank plays no part in authorization.
var rolePermissions = buildRolePermissions()

func buildRolePermissions() map[Role]permissionSet {
	crud := []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete}
	catalog := []Resource{ResourceCourses, ResourceCategories, ResourceCareerTracks}

	user := permissionSet{}
	for _, res := range catalog {
		grant(user, res, ActionRead)
	}
	grant(user, ResourceCart, crud...)
	grant(user, ResourceOrders, ActionRead, ActionCreate)
	grant(user, ResourceEnrollments, ActionRead)

	staff := permissionSet{}
	for _, res := range catalog {
		grant(staff, res, ActionRead, ActionCreate, ActionUpdate)
	}
	grant(staff, ResourceAnalytics, ActionRead)

	facilitator := permissionSet{}
	for _, res := range catalog {
		grant(facilitator, res, crud...)
	}
	grant(facilitator, ResourceUsers, ActionRead)
	grant(facilitator, ResourceAnalytics, ActionRead)
	grant(facilitator, ResourceEnrollments, ActionRead)

	admin := permissionSet{}
	grant(admin, ResourceUsers, crud...)
	for _, res := range catalog {
		grant(admin, res, crud...)
	}
	grant(admin, ResourceOrders, ActionRead)
	grant(admin, ResourceEnrollments, ActionRead)
	grant(admin, ResourceAnalytics, ActionRead)
	grant(admin, ResourceAuditLogs, ActionRead)
	grant(admin, ResourceSettings, ActionRead, ActionUpdate)

	superAdmin := permissionSet{}
	for _, res := range AllResources {
		grant(superAdmin, res, append(crud, ActionAdministrate)...)
	}

	return map[Role]permissionSet{
		RoleUser:        user,
		RoleStaff:       staff,
		RoleFacilitator: facilitator,
		RoleAdmin:       admin,
		RoleSuperAdmin:  superAdmin,
	}
}

// Authorize reports whether any of roles grants action on resource.
// An empty role set, or a set made only of unknown roles, is denied.
func Authorize(roles []Role, resource Resource, action Action) bool {
	want := permission{resource, action}
	for _, r := range roles {
		set, ok := rolePermissions[r]
		if !ok {
			continue
		}
		if _, ok := set[want]; ok {
			return true
		}
	}
	return false
}

// CanGrantRole reports whether an actor holding actor may assign target.
// Unknown roles on either side are denied.
func CanGrantRole(actor, target Role) bool {
	if !actor.Valid() || !target.Valid() {
		return false
	}
	return actor.Rank() >= target.Rank()
}

// CanGrantRoles applies CanGrantRole using the most privileged of actorRoles.
func CanGrantRoles(actorRoles []Role, target Role) bool {
	for _, r := range actorRoles {
		if CanGrantRole(r, target) {
			return true
		}
	}
	return false
}

// Permissions lists the resource:action pairs granted to roles, for display.
func Permissions(roles []Role) []string {
	var out []string
	for _, res := range AllResources {
		for _, act := range []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionAdministrate} {
			if Authorize(roles, res, act) {
				out = append(out, string(res)+":"+string(act))
			}
		}
	}
	return out
}
