package auth

import (
	"errors"
	"testing"
)

func TestPermissionMap_Check(t *testing.T) {
	pm := DefaultPermissionMap()
	reader := NewPrincipal("u1", "o1", "r1", false, []string{"order:read"})
	admin := NewPrincipal("u2", "o1", "r2", true, nil)

	tests := []struct {
		name       string
		principal  *Principal
		collection string
		action     Action
		wantCap    string // empty means allowed
	}{
		{"granted capability", reader, "orders", ActionRead, ""},
		{"missing capability", reader, "orders", ActionCreate, "order:create"},
		{"other collection", reader, "products", ActionRead, "product:read"},
		{"unmapped collection", reader, "processes", ActionDelete, ""},
		{"unknown collection", reader, "widgets", ActionUpdate, ""},
		{"super-admin bypass", admin, "users", ActionDelete, ""},
		{"super-admin audit write", admin, "audit_logs", ActionCreate, ""},
		{"audit write denied", reader, "audit_logs", ActionUpdate, "audit:write"},
		{"nil principal", nil, "orders", ActionRead, "order:read"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pm.Check(tt.principal, tt.collection, tt.action)
			if tt.wantCap == "" {
				if err != nil {
					t.Errorf("Check() error = %v, want allowed", err)
				}
				return
			}

			var authErr *AuthorizationError
			if !errors.As(err, &authErr) {
				t.Fatalf("Check() error = %v, want *AuthorizationError", err)
			}
			if authErr.Capability != tt.wantCap {
				t.Errorf("Capability = %q, want %q", authErr.Capability, tt.wantCap)
			}
			if !errors.Is(err, ErrForbidden) {
				t.Error("AuthorizationError should match ErrForbidden")
			}
		})
	}
}

func TestNewPermissionMap_CopiesRules(t *testing.T) {
	rules := map[string]map[Action]string{"orders": {ActionRead: "order:read"}}
	pm := NewPermissionMap(rules)
	rules["orders"][ActionRead] = "changed"

	if got, _ := pm.Required("orders", ActionRead); got != "order:read" {
		t.Errorf("Required() = %q after mutating input, want order:read", got)
	}
}

func TestPermissionMap_Capabilities(t *testing.T) {
	caps := DefaultPermissionMap().Capabilities()
	seen := make(map[string]int)
	for _, c := range caps {
		seen[c]++
	}
	for _, want := range []string{"organization:read", "user:create", "order:delete", "audit:read", "audit:write"} {
		if seen[want] != 1 {
			t.Errorf("capability %q appears %d times, want 1", want, seen[want])
		}
	}
}

func TestParseAction(t *testing.T) {
	for _, a := range Actions {
		got, err := ParseAction(string(a))
		if err != nil || got != a {
			t.Errorf("ParseAction(%q) = %q, %v", a, got, err)
		}
	}
	if _, err := ParseAction("aggregate"); err == nil {
		t.Error("ParseAction(aggregate) should fail")
	}
}
