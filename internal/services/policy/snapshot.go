package policy

import (
	"fmt"
	"sort"

	"github.com/bluerp/bluecore/internal/entities"
)

// Snapshot is an immutable, versioned view of the policy at a point in time.
// Evaluations pin one snapshot for their whole duration, so a concurrent
// mutation can never produce a half-applied view. All accessors are safe for
// concurrent use; none of them mutate state.
type Snapshot struct {
	version   string
	sequence  uint64
	roles     map[string]*entities.Role
	overrides map[string][]*entities.ResourceOverride
}

func overrideKey(action, resourceType, resourceID string) string {
	return fmt.Sprintf("%s|%s|%s", action, resourceType, resourceID)
}

// Version returns the snapshot's unique version identifier.
func (s *Snapshot) Version() string { return s.version }

// Sequence returns the snapshot's monotonically increasing sequence number.
func (s *Snapshot) Sequence() uint64 { return s.sequence }

// Role returns the role definition by name, or nil.
func (s *Snapshot) Role(name string) *entities.Role {
	return s.roles[name]
}

// Roles returns all role definitions sorted by name.
func (s *Snapshot) Roles() []*entities.Role {
	names := make([]string, 0, len(s.roles))
	for n := range s.roles {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*entities.Role, len(names))
	for i, n := range names {
		out[i] = s.roles[n]
	}
	return out
}

// Overrides returns the explicit overrides registered for
// (action, resourceType, resourceID), in registration order.
func (s *Snapshot) Overrides(action, resourceType, resourceID string) []*entities.ResourceOverride {
	return s.overrides[overrideKey(action, resourceType, resourceID)]
}

// AllOverrides returns every registered override, sorted by key.
func (s *Snapshot) AllOverrides() []*entities.ResourceOverride {
	keys := make([]string, 0, len(s.overrides))
	for k := range s.overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []*entities.ResourceOverride
	for _, k := range keys {
		out = append(out, s.overrides[k]...)
	}
	return out
}

// RoleClosure expands the assigned role names into the set of roles reachable
// through parent edges, including the assigned roles themselves. Unknown role
// names are skipped. The walk is bounded by the number of distinct roles in
// the snapshot; the acyclicity invariant guarantees termination.
func (s *Snapshot) RoleClosure(assigned []string) map[string]bool {
	closure := make(map[string]bool, len(assigned))
	queue := make([]string, 0, len(assigned))
	for _, name := range assigned {
		if s.roles[name] != nil && !closure[name] {
			closure[name] = true
			queue = append(queue, name)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, parent := range s.roles[name].Parents {
			if s.roles[parent] != nil && !closure[parent] {
				closure[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	return closure
}

// clone returns a shallow copy of the snapshot's maps. Role and override
// pointers are shared until copy-on-write touches them.
func (s *Snapshot) clone() *Snapshot {
	roles := make(map[string]*entities.Role, len(s.roles))
	for k, v := range s.roles {
		roles[k] = v
	}
	overrides := make(map[string][]*entities.ResourceOverride, len(s.overrides))
	for k, v := range s.overrides {
		overrides[k] = v
	}
	return &Snapshot{roles: roles, overrides: overrides}
}

// reaches reports whether target is reachable from start via parent edges.
// Used for cycle detection before committing a new edge.
func (s *Snapshot) reaches(start, target string) bool {
	if start == target {
		return true
	}
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		role := s.roles[name]
		if role == nil {
			continue
		}
		for _, parent := range role.Parents {
			if parent == target {
				return true
			}
			if !seen[parent] {
				seen[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	return false
}
