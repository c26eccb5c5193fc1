package auth

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentfleet/task-planner/internal/store/model"
)

type tokenKeyType struct{}

var tokenKey tokenKeyType

// User is the authorization context resolved once per request: the
// verified subject, its email, and the tenant/role the subject maps to.
// Downstream components trust it and never re-derive it.
type User struct {
	Subject  string
	Email    string
	TenantID string
	Role     model.Role
}

// Registered reports whether the subject has a membership record.
func (u User) Registered() bool {
	return u.Role != model.RoleUnregistered
}

// RunnerClaims is the identity of an executor reporting on its own job.
// Runners authenticate with the job-scoped token minted at provisioning
// time, not a caller credential.
type RunnerClaims struct {
	JobID    string
	TenantID string
	Issuer   string
}

func NewUserContext(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, tokenKey, u)
}

func UserFromContext(ctx context.Context) (User, bool) {
	val := ctx.Value(tokenKey)
	if val == nil {
		return User{}, false
	}
	u, ok := val.(User)
	return u, ok
}

func MustHaveUser(ctx context.Context) User {
	user, found := UserFromContext(ctx)
	if !found {
		zap.S().Named("auth").Panic("failed to find user in context")
	}
	return user
}

func NewRunnerContext(ctx context.Context, c RunnerClaims) context.Context {
	return context.WithValue(ctx, tokenKey, c)
}

func RunnerFromContext(ctx context.Context) (RunnerClaims, bool) {
	val := ctx.Value(tokenKey)
	if val == nil {
		return RunnerClaims{}, false
	}
	c, ok := val.(RunnerClaims)
	return c, ok
}

func MustHaveRunner(ctx context.Context) RunnerClaims {
	claims, found := RunnerFromContext(ctx)
	if !found {
		zap.S().Named("auth").Panic("failed to find runner claims in context")
	}
	return claims
}
