package entities

import "fmt"

// Permission grants an action on a resource type, optionally narrowed by a
// scope predicate. The predicate is a CEL expression over two map variables,
// "resource" and "subject" (e.g. "resource.department == subject.department").
// An empty scope grants the action on every instance of the resource type.
type Permission struct {
	Action       string
	ResourceType string
	Scope        string // CEL expression, empty = unscoped
}

// Matches returns true if the permission covers (action, resourceType).
// Scope predicates are evaluated separately by the authorization engine.
func (p *Permission) Matches(action, resourceType string) bool {
	return p.Action == action && p.ResourceType == resourceType
}

// Key returns a canonical identity for duplicate detection. Two grants with
// the same action, resource type, and scope are considered identical.
func (p *Permission) Key() string {
	return fmt.Sprintf("%s|%s|%s", p.Action, p.ResourceType, p.Scope)
}

func (p *Permission) String() string {
	if p.Scope == "" {
		return fmt.Sprintf("%s on %s", p.Action, p.ResourceType)
	}
	return fmt.Sprintf("%s on %s where %s", p.Action, p.ResourceType, p.Scope)
}
