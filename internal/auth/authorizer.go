package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/agentfleet/task-planner/internal/store"
	"github.com/agentfleet/task-planner/internal/store/model"
)

// Authorizer is the decision engine every caller request passes through:
// it verifies the bearer credential, resolves the subject to a tenant and
// role, and allows or denies the method+route against the permission
// table. The resolved context is attached on Allow and on Deny alike, so
// downstream logging still sees who was denied.
type Authorizer struct {
	authenticator *TokenAuthenticator
	store         store.Store
	permissions   *PermissionTable
	routePrefix   string
}

func NewAuthorizer(authenticator *TokenAuthenticator, s store.Store, permissions *PermissionTable, routePrefix string) *Authorizer {
	return &Authorizer{
		authenticator: authenticator,
		store:         s,
		permissions:   permissions,
		routePrefix:   routePrefix,
	}
}

func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken := r.Header.Get("Authorization")
		if len(accessToken) <= len("Bearer ") || !strings.EqualFold(accessToken[:len("Bearer ")], "Bearer ") {
			unauthorized(w, r)
			return
		}
		accessToken = accessToken[len("Bearer "):]

		identity, err := a.authenticator.Authenticate(accessToken)
		if err != nil {
			unauthorized(w, r)
			return
		}

		routeKey := RouteKey(r.Method, strings.TrimPrefix(r.URL.Path, a.routePrefix))

		user, err := a.resolve(r, identity)
		if err != nil {
			// lookup failures collapse into the same outcome as a bad
			// credential; callers must not learn why authorization failed
			zap.S().Named("auth").Errorw("membership lookup failed", "subject", identity.Subject, "error", err)
			unauthorized(w, r)
			return
		}

		ctx := NewUserContext(r.Context(), user)

		if !user.Registered() {
			if routeKey != RegistrationRoute {
				zap.S().Named("auth").Infow("denied unregistered subject",
					"subject", user.Subject, "route", routeKey)
				forbidden(w, r.WithContext(ctx))
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if !a.permissions.Allowed(user.Role, routeKey) {
			zap.S().Named("auth").Infow("denied by permission table",
				"subject", user.Subject, "tenant", user.TenantID, "role", user.Role, "route", routeKey)
			forbidden(w, r.WithContext(ctx))
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authorizer) resolve(r *http.Request, identity Identity) (User, error) {
	membership, err := a.store.Membership().Get(r.Context(), identity.Subject)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			// a verified subject with no record may only self-register
			return User{
				Subject: identity.Subject,
				Email:   identity.Email,
				Role:    model.RoleUnregistered,
			}, nil
		}
		return User{}, err
	}

	return User{
		Subject:  identity.Subject,
		Email:    membership.Email,
		TenantID: membership.TenantID,
		Role:     membership.Role,
	}, nil
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, map[string]string{"error": "Unauthorized"})
}

func forbidden(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusForbidden)
	render.JSON(w, r, map[string]string{"error": "Forbidden"})
}
