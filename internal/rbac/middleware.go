package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-assets/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-assets/internal/shared"
)

// Authorizer is implemented by Service.
type Authorizer interface {
	Authorize(ctx context.Context, principalID int64, resource Resource, action Action) (Decision, error)
}

// DeniedError reports a refused decision to callers that gate internally.
type DeniedError struct {
	PrincipalID int64
	Resource    Resource
	Action      Action
	Decision    Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("rbac: principal %d may not %s %s: %s", e.PrincipalID, e.Action, e.Resource, e.Decision.Message())
}

// Enforce runs Authorize and converts a refusal into *DeniedError.
func Enforce(ctx context.Context, authz Authorizer, principalID int64, resource Resource, action Action) error {
	decision, err := authz.Authorize(ctx, principalID, resource, action)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &DeniedError{PrincipalID: principalID, Resource: resource, Action: action, Decision: decision}
	}
	return nil
}

// Middleware wires authorization checks into HTTP handlers. The session is
// used only to identify the principal.
type Middleware struct {
	Service Authorizer
	Logger  *slog.Logger
}

// Require ensures the current principal may perform action on resource.
func (m Middleware) Require(resource Resource, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principalID, ok := m.currentPrincipalID(r)
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			decision, err := m.Service.Authorize(r.Context(), principalID, resource, action)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac authorize", slog.Int64("principal_id", principalID), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if !decision.Allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Message())
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipalID(r.Context(), principalID)))
		})
	}
}

func (m Middleware) currentPrincipalID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac parse principal id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}
