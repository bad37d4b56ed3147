package auth

import (
	"context"
	"testing"

	"github.com/nerrad567/tenantgate/internal/infrastructure/logging"
)

func TestBootstrap(t *testing.T) {
	s := testStore(t)
	repo := NewRepository(s)
	ctx := context.Background()
	opts := BootstrapOptions{
		OrganizationCode: "default",
		OrganizationName: "Default",
		AdminUsername:    "admin",
		Capabilities:     DefaultPermissionMap().Capabilities(),
	}

	res, err := Bootstrap(ctx, repo, opts, logging.Discard())
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if res == nil || len(res.Password) != 2*seedPasswordBytes {
		t.Fatalf("Bootstrap() result = %+v", res)
	}

	user, err := repo.GetUser(ctx, res.UserID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if !user.IsSuperAdmin || !user.Active() || user.OrgID != res.OrganizationID {
		t.Errorf("admin user = %+v", user)
	}

	issuer := testIssuer(t)
	svc := NewService(ServiceConfig{Repository: repo, Issuer: issuer, Logger: logging.Discard()})
	login, err := svc.Login(ctx, LoginRequest{"default", "admin", res.Password})
	if err != nil {
		t.Fatalf("Login() with bootstrap password error = %v", err)
	}
	p, err := svc.VerifyToken(ctx, login.Token.Token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if !p.Has("user:create") {
		t.Error("admin role missing user:create")
	}

	again, err := Bootstrap(ctx, repo, opts, logging.Discard())
	if err != nil {
		t.Fatalf("second Bootstrap() error = %v", err)
	}
	if again != nil {
		t.Error("second Bootstrap() should skip when organizations exist")
	}
	if n, _ := repo.CountOrganizations(ctx); n != 1 {
		t.Errorf("organizations = %d, want 1", n)
	}
}
