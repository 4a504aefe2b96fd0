package policy

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bluerp/bluecore/internal/entities"
	"github.com/bluerp/bluecore/internal/repositories"
	"github.com/google/uuid"
)

// ScopeValidator validates scope predicate expressions at mutation time, so a
// malformed predicate is rejected as a conflict instead of failing evaluation.
// Implemented by the authorization CEL engine.
type ScopeValidator interface {
	Validate(expression string) error
}

// Change is an administrative mutation applied to the policy store.
type Change interface {
	isChange()
}

// CreateRole adds a new role with optional parents.
type CreateRole struct {
	Name        string
	Description string
	Parents     []string
}

// DeleteRole removes a role. Parent edges pointing at the role and overrides
// targeting it are removed as well.
type DeleteRole struct {
	Name string
}

// AddRoleParent adds a parent edge to the role hierarchy.
type AddRoleParent struct {
	Role   string
	Parent string
}

// RemoveRoleParent removes a parent edge.
type RemoveRoleParent struct {
	Role   string
	Parent string
}

// GrantPermission grants a permission to a role.
type GrantPermission struct {
	Role       string
	Permission *entities.Permission
}

// RevokePermission removes a previously granted permission from a role.
type RevokePermission struct {
	Role       string
	Permission *entities.Permission
}

// SetOverride registers an explicit per-resource allow or deny. Setting an
// override for a (subject, action, resource) triple that already has one
// replaces it.
type SetOverride struct {
	Override *entities.ResourceOverride
}

// ClearOverride removes an explicit override.
type ClearOverride struct {
	Override *entities.ResourceOverride
}

func (CreateRole) isChange()       {}
func (DeleteRole) isChange()       {}
func (AddRoleParent) isChange()    {}
func (RemoveRoleParent) isChange() {}
func (GrantPermission) isChange()  {}
func (RevokePermission) isChange() {}
func (SetOverride) isChange()      {}
func (ClearOverride) isChange()    {}

// Store holds the policy and produces immutable snapshots. Mutations are
// copy-on-write: Apply builds a new snapshot and swaps it in atomically, so
// readers never observe a partially applied change. Writers serialize on a
// mutex; the read path takes no lock.
type Store struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Snapshot]
	scopes  ScopeValidator
	repo    repositories.PolicyRepository // optional write-through persistence
}

// NewStore creates an in-memory policy store starting from an empty snapshot.
func NewStore(scopes ScopeValidator) *Store {
	s := &Store{scopes: scopes}
	s.current.Store(&Snapshot{
		version:   uuid.NewString(),
		roles:     map[string]*entities.Role{},
		overrides: map[string][]*entities.ResourceOverride{},
	})
	return s
}

// NewStoreWithRepository creates a store that writes committed mutations
// through to the repository. Call Load to populate the initial snapshot.
func NewStoreWithRepository(scopes ScopeValidator, repo repositories.PolicyRepository) *Store {
	s := NewStore(scopes)
	s.repo = repo
	return s
}

// Load replaces the current snapshot with the persisted policy.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return fmt.Errorf("policy store has no repository")
	}
	roles, err := s.repo.LoadRoles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load roles: %w", err)
	}
	overrides, err := s.repo.LoadOverrides(ctx)
	if err != nil {
		return fmt.Errorf("failed to load overrides: %w", err)
	}

	next := &Snapshot{
		version:   uuid.NewString(),
		roles:     make(map[string]*entities.Role, len(roles)),
		overrides: make(map[string][]*entities.ResourceOverride),
	}
	for _, r := range roles {
		next.roles[r.Name] = r
	}
	for _, o := range overrides {
		k := overrideKey(o.Action, o.ResourceType, o.ResourceID)
		next.overrides[k] = append(next.overrides[k], o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next.sequence = s.current.Load().sequence + 1
	s.current.Store(next)
	return nil
}

// Current returns the latest complete snapshot. The returned snapshot is
// immutable and remains valid after later mutations.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Apply validates and commits a mutation, returning the new snapshot.
// On conflict the store is left unchanged and the error is a *ConflictError.
func (s *Store) Apply(ctx context.Context, change Change) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	next := prev.clone()

	if err := s.applyChange(next, change); err != nil {
		return nil, err
	}
	if s.repo != nil {
		if err := s.persist(ctx, next, change); err != nil {
			return nil, fmt.Errorf("failed to persist policy change: %w", err)
		}
	}

	next.version = uuid.NewString()
	next.sequence = prev.sequence + 1
	s.current.Store(next)
	return next, nil
}

func (s *Store) applyChange(next *Snapshot, change Change) error {
	switch c := change.(type) {
	case CreateRole:
		return s.applyCreateRole(next, c)
	case DeleteRole:
		return s.applyDeleteRole(next, c)
	case AddRoleParent:
		return s.applyAddParent(next, c)
	case RemoveRoleParent:
		return s.applyRemoveParent(next, c)
	case GrantPermission:
		return s.applyGrant(next, c)
	case RevokePermission:
		return s.applyRevoke(next, c)
	case SetOverride:
		return s.applySetOverride(next, c)
	case ClearOverride:
		return s.applyClearOverride(next, c)
	default:
		return conflict(InvalidChange, "unknown change type %T", change)
	}
}

func (s *Store) applyCreateRole(next *Snapshot, c CreateRole) error {
	if c.Name == "" {
		return conflict(InvalidChange, "role name is required")
	}
	if next.roles[c.Name] != nil {
		return conflict(DuplicateRole, "role %q already exists", c.Name)
	}
	for _, p := range c.Parents {
		if next.roles[p] == nil {
			return conflict(UnknownRole, "parent role %q does not exist", p)
		}
		if p == c.Name {
			return conflict(CycleDetected, "role %q cannot be its own parent", c.Name)
		}
	}
	next.roles[c.Name] = &entities.Role{
		Name:        c.Name,
		Description: c.Description,
		Parents:     append([]string(nil), c.Parents...),
	}
	return nil
}

func (s *Store) applyDeleteRole(next *Snapshot, c DeleteRole) error {
	if next.roles[c.Name] == nil {
		return conflict(UnknownRole, "role %q does not exist", c.Name)
	}
	delete(next.roles, c.Name)
	// Drop dangling parent edges.
	for name, role := range next.roles {
		if role.HasParent(c.Name) {
			clone := role.Clone()
			clone.Parents = removeString(clone.Parents, c.Name)
			next.roles[name] = clone
		}
	}
	// Drop overrides targeting the role.
	for key, ovs := range next.overrides {
		kept := ovs[:0:0]
		for _, o := range ovs {
			if o.Subject.Kind == entities.SubjectRole && o.Subject.ID == c.Name {
				continue
			}
			kept = append(kept, o)
		}
		if len(kept) == 0 {
			delete(next.overrides, key)
		} else {
			next.overrides[key] = kept
		}
	}
	return nil
}

func (s *Store) applyAddParent(next *Snapshot, c AddRoleParent) error {
	role := next.roles[c.Role]
	if role == nil {
		return conflict(UnknownRole, "role %q does not exist", c.Role)
	}
	if next.roles[c.Parent] == nil {
		return conflict(UnknownRole, "parent role %q does not exist", c.Parent)
	}
	if role.HasParent(c.Parent) {
		return conflict(DuplicateParent, "role %q already has parent %q", c.Role, c.Parent)
	}
	// Adding role -> parent creates a cycle iff role is already reachable
	// from parent.
	if next.reaches(c.Parent, c.Role) {
		return conflict(CycleDetected, "adding parent %q to role %q would create a cycle", c.Parent, c.Role)
	}
	clone := role.Clone()
	clone.Parents = append(clone.Parents, c.Parent)
	next.roles[c.Role] = clone
	return nil
}

func (s *Store) applyRemoveParent(next *Snapshot, c RemoveRoleParent) error {
	role := next.roles[c.Role]
	if role == nil {
		return conflict(UnknownRole, "role %q does not exist", c.Role)
	}
	if !role.HasParent(c.Parent) {
		return conflict(UnknownRole, "role %q has no parent %q", c.Role, c.Parent)
	}
	clone := role.Clone()
	clone.Parents = removeString(clone.Parents, c.Parent)
	next.roles[c.Role] = clone
	return nil
}

func (s *Store) applyGrant(next *Snapshot, c GrantPermission) error {
	role := next.roles[c.Role]
	if role == nil {
		return conflict(UnknownRole, "role %q does not exist", c.Role)
	}
	if c.Permission == nil || c.Permission.Action == "" || c.Permission.ResourceType == "" {
		return conflict(InvalidChange, "permission requires action and resource type")
	}
	for _, p := range role.Permissions {
		if p.Key() == c.Permission.Key() {
			return conflict(DuplicatePermission, "role %q already grants %s", c.Role, c.Permission)
		}
	}
	if c.Permission.Scope != "" && s.scopes != nil {
		if err := s.scopes.Validate(c.Permission.Scope); err != nil {
			return conflict(InvalidScope, "scope predicate rejected: %v", err)
		}
	}
	clone := role.Clone()
	perm := *c.Permission
	clone.Permissions = append(clone.Permissions, &perm)
	next.roles[c.Role] = clone
	return nil
}

func (s *Store) applyRevoke(next *Snapshot, c RevokePermission) error {
	role := next.roles[c.Role]
	if role == nil {
		return conflict(UnknownRole, "role %q does not exist", c.Role)
	}
	if c.Permission == nil {
		return conflict(InvalidChange, "permission is required")
	}
	clone := role.Clone()
	found := false
	kept := clone.Permissions[:0]
	for _, p := range clone.Permissions {
		if p.Key() == c.Permission.Key() {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return conflict(UnknownPermission, "role %q does not grant %s", c.Role, c.Permission)
	}
	clone.Permissions = kept
	next.roles[c.Role] = clone
	return nil
}

func (s *Store) applySetOverride(next *Snapshot, c SetOverride) error {
	o := c.Override
	if o == nil {
		return conflict(InvalidChange, "override is required")
	}
	if o.Effect != entities.EffectAllow && o.Effect != entities.EffectDeny {
		return conflict(InvalidChange, "override effect must be allow or deny, got %q", o.Effect)
	}
	switch o.Subject.Kind {
	case entities.SubjectPrincipal:
		// Principals are sourced externally; nothing to validate.
	case entities.SubjectRole:
		if next.roles[o.Subject.ID] == nil {
			return conflict(UnknownRole, "override targets unknown role %q", o.Subject.ID)
		}
	default:
		return conflict(InvalidChange, "unknown subject kind %q", o.Subject.Kind)
	}
	if o.Action == "" || o.ResourceType == "" || o.ResourceID == "" {
		return conflict(InvalidChange, "override requires action, resource type, and resource ID")
	}

	key := overrideKey(o.Action, o.ResourceType, o.ResourceID)
	kept := next.overrides[key][:0:0]
	for _, existing := range next.overrides[key] {
		if existing.Subject == o.Subject {
			continue // replaced
		}
		kept = append(kept, existing)
	}
	copied := *o
	next.overrides[key] = append(kept, &copied)
	return nil
}

func (s *Store) applyClearOverride(next *Snapshot, c ClearOverride) error {
	o := c.Override
	if o == nil {
		return conflict(InvalidChange, "override is required")
	}
	key := overrideKey(o.Action, o.ResourceType, o.ResourceID)
	kept := next.overrides[key][:0:0]
	found := false
	for _, existing := range next.overrides[key] {
		if existing.Subject == o.Subject {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		return conflict(UnknownOverride, "no override for %s on %s/%s by %s:%s",
			o.Action, o.ResourceType, o.ResourceID, o.Subject.Kind, o.Subject.ID)
	}
	if len(kept) == 0 {
		delete(next.overrides, key)
	} else {
		next.overrides[key] = kept
	}
	return nil
}

// persist writes the validated change through to the repository. Called with
// the writer lock held, before the snapshot swap: a persistence failure
// leaves the in-memory policy unchanged.
func (s *Store) persist(ctx context.Context, next *Snapshot, change Change) error {
	switch c := change.(type) {
	case CreateRole:
		return s.repo.SaveRole(ctx, next.roles[c.Name])
	case DeleteRole:
		return s.repo.DeleteRole(ctx, c.Name)
	case AddRoleParent:
		return s.repo.SaveRole(ctx, next.roles[c.Role])
	case RemoveRoleParent:
		return s.repo.SaveRole(ctx, next.roles[c.Role])
	case GrantPermission:
		return s.repo.SaveRole(ctx, next.roles[c.Role])
	case RevokePermission:
		return s.repo.SaveRole(ctx, next.roles[c.Role])
	case SetOverride:
		return s.repo.SaveOverride(ctx, c.Override)
	case ClearOverride:
		return s.repo.DeleteOverride(ctx, c.Override)
	default:
		return nil
	}
}

func removeString(ss []string, target string) []string {
	out := ss[:0:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
