package authorization

import (
	"fmt"

	"github.com/bluerp/bluecore/internal/entities"
	"github.com/bluerp/bluecore/internal/services/policy"
)

// Deny reasons retained for audit logging.
const (
	ReasonExplicitDeny      = "explicit-deny"
	ReasonExplicitAllow     = "explicit-allow"
	ReasonRoleGrant         = "role-grant"
	ReasonNoMatchingGrant   = "no-matching-grant"
	ReasonPrincipalInactive = "principal-inactive"
)

// Decision is the outcome of a permission evaluation. A deny is a normal
// outcome carrying a reason for audit, never an error.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow returns an allowing decision with an audit reason.
func Allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }

// Deny returns a denying decision with an audit reason.
func Deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Engine evaluates (principal, action, resource) against a policy snapshot.
// It is purely functional over its snapshot argument: given the same snapshot
// and inputs, the result is identical on every call.
type Engine struct {
	predicates *CELEngine
}

// NewEngine creates a new permission engine.
func NewEngine(predicates *CELEngine) *Engine {
	return &Engine{predicates: predicates}
}

// Evaluate decides whether the principal may perform action on resource.
// First match wins, in order: explicit deny, explicit allow, role-derived
// grant, deny by default.
func (e *Engine) Evaluate(principal *entities.Principal, action string, resource *entities.Resource, snapshot *policy.Snapshot) (Decision, error) {
	if principal == nil || resource == nil || snapshot == nil {
		return Deny(ReasonNoMatchingGrant), fmt.Errorf("principal, resource, and snapshot are required")
	}
	if !principal.Active {
		return Deny(ReasonPrincipalInactive), nil
	}

	closure := snapshot.RoleClosure(principal.Roles)

	// 1/2. Resource-level explicit overrides, deny first.
	overrides := snapshot.Overrides(action, resource.Type, resource.ID)
	allowed := false
	for _, o := range overrides {
		if !o.AppliesTo(principal.ID, closure) {
			continue
		}
		if o.Effect == entities.EffectDeny {
			return Deny(ReasonExplicitDeny), nil
		}
		allowed = true
	}
	if allowed {
		return Allow(ReasonExplicitAllow), nil
	}

	// 3. Role-derived grants over the transitive closure.
	subject := e.subjectAttributes(principal)
	for _, role := range snapshot.Roles() {
		if !closure[role.Name] {
			continue
		}
		for _, perm := range role.Permissions {
			if !perm.Matches(action, resource.Type) {
				continue
			}
			if perm.Scope == "" {
				return Allow(ReasonRoleGrant + ":" + role.Name), nil
			}
			ok, err := e.predicates.Evaluate(perm.Scope, resource.Attributes, subject)
			if err != nil {
				return Deny(ReasonNoMatchingGrant), fmt.Errorf("scope predicate on role %q failed: %w", role.Name, err)
			}
			if ok {
				return Allow(ReasonRoleGrant + ":" + role.Name), nil
			}
		}
	}

	// 4. Deny by default.
	return Deny(ReasonNoMatchingGrant), nil
}

// subjectAttributes builds the "subject" predicate variable from the
// principal: its attributes plus the reserved "id" and "roles" keys.
func (e *Engine) subjectAttributes(p *entities.Principal) map[string]interface{} {
	subject := make(map[string]interface{}, len(p.Attributes)+2)
	for k, v := range p.Attributes {
		subject[k] = v
	}
	subject["id"] = p.ID
	roles := make([]interface{}, len(p.Roles))
	for i, r := range p.Roles {
		roles[i] = r
	}
	subject["roles"] = roles
	return subject
}
