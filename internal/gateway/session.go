package gateway

import (
	"context"
	"time"

	"github.com/nerrad567/tenantgate/internal/auth"
	"github.com/nerrad567/tenantgate/internal/observer"
)

// Login authenticates with organization code, username and password.
func (g *Gateway) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error) {
	start := time.Now()
	res, err := g.auth.Login(ctx, req)
	if err != nil && !auth.IsAuthenticationError(err) {
		err = &StorageError{Op: "login", Collection: auth.CollectionUsers, Err: err}
	}

	var p *auth.Principal
	if res != nil {
		p = auth.NewPrincipal(res.User.ID, res.User.OrgID, res.User.RoleID, res.User.IsSuperAdmin, nil)
	}
	g.emit(observer.OpLogin, auth.CollectionUsers, p, start, err, "", 0)
	return res, err
}

// VerifyToken returns the principal behind token.
func (g *Gateway) VerifyToken(ctx context.Context, token string) (*auth.Principal, error) {
	return g.authenticate(ctx, token)
}

// Logout revokes token.
func (g *Gateway) Logout(ctx context.Context, token string) error {
	start := time.Now()
	p, err := g.authenticate(ctx, token)
	if err == nil {
		if err = g.auth.Logout(ctx, token); err != nil && !auth.IsAuthenticationError(err) {
			err = &StorageError{Op: "logout", Collection: auth.CollectionRevocations, Err: err}
		}
	}
	g.emit(observer.OpLogout, auth.CollectionUsers, p, start, err, "", 0)
	return err
}
