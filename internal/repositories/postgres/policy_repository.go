package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bluerp/bluecore/internal/entities"
	"github.com/bluerp/bluecore/internal/repositories"
)

// PostgresPolicyRepository implements PolicyRepository using PostgreSQL
type PostgresPolicyRepository struct {
	db *sql.DB
}

// NewPostgresPolicyRepository creates a new PostgreSQL policy repository
func NewPostgresPolicyRepository(db *sql.DB) repositories.PolicyRepository {
	return &PostgresPolicyRepository{db: db}
}

// LoadRoles returns every persisted role with its parents and permissions.
func (r *PostgresPolicyRepository) LoadRoles(ctx context.Context) ([]*entities.Role, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, description
		FROM roles
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	byName := map[string]*entities.Role{}
	var roles []*entities.Role
	for rows.Next() {
		role := &entities.Role{}
		if err := rows.Scan(&role.Name, &role.Description); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		byName[role.Name] = role
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}

	parentRows, err := r.db.QueryContext(ctx, `
		SELECT role_name, parent_name
		FROM role_parents
		ORDER BY role_name, parent_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query role parents: %w", err)
	}
	defer parentRows.Close()

	for parentRows.Next() {
		var roleName, parentName string
		if err := parentRows.Scan(&roleName, &parentName); err != nil {
			return nil, fmt.Errorf("failed to scan role parent: %w", err)
		}
		if role := byName[roleName]; role != nil {
			role.Parents = append(role.Parents, parentName)
		}
	}
	if err := parentRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate role parents: %w", err)
	}

	permRows, err := r.db.QueryContext(ctx, `
		SELECT role_name, action, resource_type, scope
		FROM role_permissions
		ORDER BY role_name, action, resource_type, scope
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query role permissions: %w", err)
	}
	defer permRows.Close()

	for permRows.Next() {
		var roleName string
		perm := &entities.Permission{}
		if err := permRows.Scan(&roleName, &perm.Action, &perm.ResourceType, &perm.Scope); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		if role := byName[roleName]; role != nil {
			role.Permissions = append(role.Permissions, perm)
		}
	}
	if err := permRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate role permissions: %w", err)
	}

	return roles, nil
}

// LoadOverrides returns every persisted resource override.
func (r *PostgresPolicyRepository) LoadOverrides(ctx context.Context) ([]*entities.ResourceOverride, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT subject_kind, subject_id, action, resource_type, resource_id, effect
		FROM resource_overrides
		ORDER BY resource_type, resource_id, action
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*entities.ResourceOverride
	for rows.Next() {
		o := &entities.ResourceOverride{}
		var kind, effect string
		if err := rows.Scan(&kind, &o.Subject.ID, &o.Action, &o.ResourceType, &o.ResourceID, &effect); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		o.Subject.Kind = entities.SubjectKind(kind)
		o.Effect = entities.Effect(effect)
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate overrides: %w", err)
	}

	return overrides, nil
}

// SaveRole upserts a role and replaces its parents and permissions in one
// transaction.
func (r *PostgresPolicyRepository) SaveRole(ctx context.Context, role *entities.Role) error {
	if role == nil || role.Name == "" {
		return fmt.Errorf("role with a name is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (name)
		DO UPDATE SET description = EXCLUDED.description, updated_at = EXCLUDED.updated_at
	`, role.Name, role.Description, now)
	if err != nil {
		return fmt.Errorf("failed to upsert role: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_parents WHERE role_name = $1`, role.Name); err != nil {
		return fmt.Errorf("failed to clear role parents: %w", err)
	}
	for _, parent := range role.Parents {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_parents (role_name, parent_name)
			VALUES ($1, $2)
		`, role.Name, parent); err != nil {
			return fmt.Errorf("failed to insert role parent: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_name = $1`, role.Name); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}
	for _, perm := range role.Permissions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_name, action, resource_type, scope)
			VALUES ($1, $2, $3, $4)
		`, role.Name, perm.Action, perm.ResourceType, perm.Scope); err != nil {
			return fmt.Errorf("failed to insert role permission: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteRole removes a role. Parent edges and the role's permissions go with
// it via ON DELETE CASCADE; overrides targeting the role are removed here.
func (r *PostgresPolicyRepository) DeleteRole(ctx context.Context, name string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM resource_overrides
		WHERE subject_kind = $1 AND subject_id = $2
	`, string(entities.SubjectRole), name); err != nil {
		return fmt.Errorf("failed to delete role overrides: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("role %q does not exist", name)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveOverride upserts an override keyed by (subject, action, resource).
func (r *PostgresPolicyRepository) SaveOverride(ctx context.Context, override *entities.ResourceOverride) error {
	if override == nil {
		return fmt.Errorf("override is required")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO resource_overrides (
			subject_kind, subject_id, action, resource_type, resource_id, effect, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (subject_kind, subject_id, action, resource_type, resource_id)
		DO UPDATE SET effect = EXCLUDED.effect
	`, string(override.Subject.Kind), override.Subject.ID,
		override.Action, override.ResourceType, override.ResourceID,
		string(override.Effect), time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert override: %w", err)
	}
	return nil
}

// DeleteOverride removes an override keyed by (subject, action, resource).
func (r *PostgresPolicyRepository) DeleteOverride(ctx context.Context, override *entities.ResourceOverride) error {
	if override == nil {
		return fmt.Errorf("override is required")
	}

	_, err := r.db.ExecContext(ctx, `
		DELETE FROM resource_overrides
		WHERE subject_kind = $1 AND subject_id = $2
		  AND action = $3 AND resource_type = $4 AND resource_id = $5
	`, string(override.Subject.Kind), override.Subject.ID,
		override.Action, override.ResourceType, override.ResourceID)
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	return nil
}
