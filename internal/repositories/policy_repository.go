package repositories

import (
	"context"

	"github.com/bluerp/bluecore/internal/entities"
)

// PolicyRepository persists roles and resource overrides. The policy store
// loads the full policy at startup and writes committed mutations through.
type PolicyRepository interface {
	// LoadRoles returns every persisted role with its parents and permissions.
	LoadRoles(ctx context.Context) ([]*entities.Role, error)

	// LoadOverrides returns every persisted resource override.
	LoadOverrides(ctx context.Context) ([]*entities.ResourceOverride, error)

	// SaveRole upserts a role, replacing its parents and permissions.
	SaveRole(ctx context.Context, role *entities.Role) error

	// DeleteRole removes a role. Parent edges and overrides referencing the
	// role are removed as well.
	DeleteRole(ctx context.Context, name string) error

	// SaveOverride upserts an override keyed by (subject, action, resource).
	SaveOverride(ctx context.Context, override *entities.ResourceOverride) error

	// DeleteOverride removes an override keyed by (subject, action, resource).
	DeleteOverride(ctx context.Context, override *entities.ResourceOverride) error
}
