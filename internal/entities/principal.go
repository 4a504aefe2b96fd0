package entities

// Principal represents an authenticated identity making a request.
// It is resolved by the outer authentication layer and is immutable
// for the duration of a single evaluation.
type Principal struct {
	ID         string                 // Identity (e.g. user ID or email)
	Roles      []string               // Assigned role names
	Attributes map[string]interface{} // Subject attributes for scope predicates (e.g. "department")
	Active     bool                   // Inactive principals are denied everything
}

// Resource describes the target of a requested action.
type Resource struct {
	Type       string                 // Resource type (e.g. "expense", "product")
	ID         string                 // Resource instance ID
	Attributes map[string]interface{} // Resource attributes for scope predicates
}

// HasRole returns true if the principal is directly assigned the role.
// Transitive role membership is resolved by the authorization engine.
func (p *Principal) HasRole(name string) bool {
	for _, r := range p.Roles {
		if r == name {
			return true
		}
	}
	return false
}
