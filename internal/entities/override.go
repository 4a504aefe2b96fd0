package entities

// Effect is the outcome an override forces for its target.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// SubjectKind identifies what a SubjectRef points at.
type SubjectKind string

const (
	SubjectPrincipal SubjectKind = "principal"
	SubjectRole      SubjectKind = "role"
)

// SubjectRef identifies either a principal or a role.
type SubjectRef struct {
	Kind SubjectKind
	ID   string // Principal ID or role name depending on Kind
}

// ResourceOverride is an explicit allow or deny for a specific
// (subject, action, resource) triple. Overrides take precedence over
// role-derived grants; an explicit deny beats an explicit allow.
type ResourceOverride struct {
	Subject      SubjectRef
	Action       string
	ResourceType string
	ResourceID   string
	Effect       Effect
}

// AppliesTo returns true if the override targets the given principal,
// either directly or through one of the supplied role names. roleClosure
// must already include transitive parents.
func (o *ResourceOverride) AppliesTo(principalID string, roleClosure map[string]bool) bool {
	switch o.Subject.Kind {
	case SubjectPrincipal:
		return o.Subject.ID == principalID
	case SubjectRole:
		return roleClosure[o.Subject.ID]
	default:
		return false
	}
}
