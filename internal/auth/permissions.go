package auth

import "fmt"

// Action is a data operation a principal may attempt on a collection.
type Action string

// The closed set of gated actions.
const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions lists every Action.
var Actions = []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete}

// ParseAction converts s to an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionRead, ActionCreate, ActionUpdate, ActionDelete:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// AuthorizationError names the capability a principal lacked.
type AuthorizationError struct {
	Collection string
	Action     Action
	Capability string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("missing capability %q for %s on %s", e.Capability, e.Action, e.Collection)
}

// Unwrap lets errors.Is(err, ErrForbidden) match.
func (e *AuthorizationError) Unwrap() error {
	return ErrForbidden
}

// PermissionMap maps (collection, action) to the capability required.
//
// Only mapped pairs are gated. A collection or action missing from the
// map is allowed for every authenticated principal; new collections are
// open until someone adds them here.
//
// A PermissionMap is immutable once built and safe to share.
type PermissionMap struct {
	rules map[string]map[Action]string
}

// NewPermissionMap copies rules into an immutable map.
func NewPermissionMap(rules map[string]map[Action]string) *PermissionMap {
	pm := &PermissionMap{rules: make(map[string]map[Action]string, len(rules))}
	for coll, actions := range rules {
		inner := make(map[Action]string, len(actions))
		for a, capability := range actions {
			inner[a] = capability
		}
		pm.rules[coll] = inner
	}
	return pm
}

// Required returns the capability gating (collection, action), if any.
func (pm *PermissionMap) Required(collection string, action Action) (string, bool) {
	capability, ok := pm.rules[collection][action]
	return capability, ok
}

// Capabilities lists every capability the map refers to.
func (pm *PermissionMap) Capabilities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, actions := range pm.rules {
		for _, a := range Actions {
			if c, ok := actions[a]; ok && !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Check allows the action when it is unmapped, when p is a super-admin,
// or when p's role carries the capability.
func (pm *PermissionMap) Check(p *Principal, collection string, action Action) error {
	capability, gated := pm.Required(collection, action)
	if !gated {
		return nil
	}
	if p != nil && (p.IsSuperAdmin || p.Has(capability)) {
		return nil
	}
	return &AuthorizationError{Collection: collection, Action: action, Capability: capability}
}

// DefaultPermissionMap gates the administrative and business collections.
// "processes" is intentionally absent and therefore open.
func DefaultPermissionMap() *PermissionMap {
	crud := func(prefix string) map[Action]string {
		return map[Action]string{
			ActionRead:   prefix + ":read",
			ActionCreate: prefix + ":create",
			ActionUpdate: prefix + ":update",
			ActionDelete: prefix + ":delete",
		}
	}
	return NewPermissionMap(map[string]map[Action]string{
		CollectionOrganizations: {
			ActionRead:   "organization:read",
			ActionCreate: "organization:create",
			ActionUpdate: "organization:update",
			ActionDelete: "organization:delete",
		},
		CollectionUsers: crud("user"),
		CollectionRoles: crud("role"),
		"factories":     crud("factory"),
		"products":      crud("product"),
		"orders":        crud("order"),
		// No role is granted audit:write.
		"audit_logs": {
			ActionRead:   "audit:read",
			ActionCreate: "audit:write",
			ActionUpdate: "audit:write",
			ActionDelete: "audit:write",
		},
	})
}
