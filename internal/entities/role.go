package entities

// Role represents a named role in the policy.
// Parents form a directed acyclic graph: a role inherits every permission
// granted to any of its transitive parents. Cycles are rejected at write time.
type Role struct {
	Name        string
	Description string
	Parents     []string      // Parent role names, in grant order
	Permissions []*Permission // Permissions granted directly to this role
}

// HasParent returns true if name is a direct parent of the role.
func (r *Role) HasParent(name string) bool {
	for _, p := range r.Parents {
		if p == name {
			return true
		}
	}
	return false
}

// GetPermission returns the first permission matching (action, resourceType),
// or nil if the role grants none directly.
func (r *Role) GetPermission(action, resourceType string) *Permission {
	for _, p := range r.Permissions {
		if p.Matches(action, resourceType) {
			return p
		}
	}
	return nil
}

// Clone returns a deep copy of the role. Snapshots hand out shared role
// pointers, so mutations must always operate on a copy.
func (r *Role) Clone() *Role {
	c := &Role{
		Name:        r.Name,
		Description: r.Description,
		Parents:     append([]string(nil), r.Parents...),
	}
	if r.Permissions != nil {
		c.Permissions = make([]*Permission, len(r.Permissions))
		for i, p := range r.Permissions {
			cp := *p
			c.Permissions[i] = &cp
		}
	}
	return c
}
