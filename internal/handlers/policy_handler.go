package handlers

import (
	"fmt"
	"net/http"

	"github.com/bluerp/bluecore/internal/entities"
	"github.com/bluerp/bluecore/internal/services/policy"
	"github.com/gin-gonic/gin"
)

// PolicyHandler handles policy administration requests
type PolicyHandler struct {
	store *policy.Store
}

// NewPolicyHandler creates a new PolicyHandler
func NewPolicyHandler(store *policy.Store) *PolicyHandler {
	return &PolicyHandler{store: store}
}

// PermissionRequest is the wire form of a role permission.
type PermissionRequest struct {
	Action       string `json:"action" binding:"required"`
	ResourceType string `json:"resource_type" binding:"required"`
	Scope        string `json:"scope"`
}

// OverrideRequest is the wire form of a resource override.
type OverrideRequest struct {
	SubjectKind  string `json:"subject_kind" binding:"required"`
	SubjectID    string `json:"subject_id" binding:"required"`
	Action       string `json:"action" binding:"required"`
	ResourceType string `json:"resource_type" binding:"required"`
	ResourceID   string `json:"resource_id" binding:"required"`
	Effect       string `json:"effect"`
}

// ChangeRequest is the body of POST /v1/admin/policy: one mutation,
// discriminated by type.
type ChangeRequest struct {
	Type        string             `json:"type" binding:"required"`
	Role        string             `json:"role"`
	Description string             `json:"description"`
	Parent      string             `json:"parent"`
	Parents     []string           `json:"parents"`
	Permission  *PermissionRequest `json:"permission"`
	Override    *OverrideRequest   `json:"override"`
}

func (r *ChangeRequest) toChange() (policy.Change, error) {
	switch r.Type {
	case "create_role":
		return policy.CreateRole{Name: r.Role, Description: r.Description, Parents: r.Parents}, nil
	case "delete_role":
		return policy.DeleteRole{Name: r.Role}, nil
	case "add_role_parent":
		return policy.AddRoleParent{Role: r.Role, Parent: r.Parent}, nil
	case "remove_role_parent":
		return policy.RemoveRoleParent{Role: r.Role, Parent: r.Parent}, nil
	case "grant_permission":
		if r.Permission == nil {
			return nil, fmt.Errorf("permission is required for grant_permission")
		}
		return policy.GrantPermission{Role: r.Role, Permission: &entities.Permission{
			Action:       r.Permission.Action,
			ResourceType: r.Permission.ResourceType,
			Scope:        r.Permission.Scope,
		}}, nil
	case "revoke_permission":
		if r.Permission == nil {
			return nil, fmt.Errorf("permission is required for revoke_permission")
		}
		return policy.RevokePermission{Role: r.Role, Permission: &entities.Permission{
			Action:       r.Permission.Action,
			ResourceType: r.Permission.ResourceType,
			Scope:        r.Permission.Scope,
		}}, nil
	case "set_override":
		if r.Override == nil {
			return nil, fmt.Errorf("override is required for set_override")
		}
		return policy.SetOverride{Override: r.Override.toEntity()}, nil
	case "clear_override":
		if r.Override == nil {
			return nil, fmt.Errorf("override is required for clear_override")
		}
		return policy.ClearOverride{Override: r.Override.toEntity()}, nil
	default:
		return nil, fmt.Errorf("unknown change type %q", r.Type)
	}
}

func (o *OverrideRequest) toEntity() *entities.ResourceOverride {
	return &entities.ResourceOverride{
		Subject: entities.SubjectRef{
			Kind: entities.SubjectKind(o.SubjectKind),
			ID:   o.SubjectID,
		},
		Action:       o.Action,
		ResourceType: o.ResourceType,
		ResourceID:   o.ResourceID,
		Effect:       entities.Effect(o.Effect),
	}
}

// RoleResponse is the wire form of a role in the policy dump.
type RoleResponse struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Parents     []string            `json:"parents,omitempty"`
	Permissions []PermissionRequest `json:"permissions,omitempty"`
}

// PolicyResponse is the body of GET /v1/admin/policy.
type PolicyResponse struct {
	Version   string            `json:"version"`
	Sequence  uint64            `json:"sequence"`
	Roles     []RoleResponse    `json:"roles"`
	Overrides []OverrideRequest `json:"overrides"`
}

// Apply handles POST /v1/admin/policy
func (h *PolicyHandler) Apply(c *gin.Context) {
	var req ChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	change, err := req.toChange()
	if err != nil {
		badRequest(c, err)
		return
	}

	snapshot, err := h.store.Apply(c.Request.Context(), change)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"version":  snapshot.Version(),
		"sequence": snapshot.Sequence(),
	})
}

// Get handles GET /v1/admin/policy
func (h *PolicyHandler) Get(c *gin.Context) {
	snapshot := h.store.Current()

	resp := PolicyResponse{
		Version:   snapshot.Version(),
		Sequence:  snapshot.Sequence(),
		Roles:     []RoleResponse{},
		Overrides: []OverrideRequest{},
	}
	for _, role := range snapshot.Roles() {
		rr := RoleResponse{
			Name:        role.Name,
			Description: role.Description,
			Parents:     role.Parents,
		}
		for _, perm := range role.Permissions {
			rr.Permissions = append(rr.Permissions, PermissionRequest{
				Action:       perm.Action,
				ResourceType: perm.ResourceType,
				Scope:        perm.Scope,
			})
		}
		resp.Roles = append(resp.Roles, rr)
	}
	for _, o := range snapshot.AllOverrides() {
		resp.Overrides = append(resp.Overrides, OverrideRequest{
			SubjectKind:  string(o.Subject.Kind),
			SubjectID:    o.Subject.ID,
			Action:       o.Action,
			ResourceType: o.ResourceType,
			ResourceID:   o.ResourceID,
			Effect:       string(o.Effect),
		})
	}
	c.JSON(http.StatusOK, resp)
}
