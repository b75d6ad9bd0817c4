package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/quicklinkpay/admin-iam/internal/rbac"
	"github.com/quicklinkpay/admin-iam/internal/telemetry"
)

// ResourcePathPrefix is the subtree guarded by NewAuthzMiddleware.
const ResourcePathPrefix = "/v1/resources/"

// Decider answers server-side authorization questions from authoritative storage.
type Decider interface {
	Decide(ctx context.Context, principalID string, resource rbac.Resource, action rbac.Action) (bool, error)
}

// AuthzDependencies provides the collaborators needed for authorization decisions.
type AuthzDependencies struct {
	Decider Decider
	Logger  logrus.FieldLogger
}

// NewAuthzMiddleware constructs a Chi middleware that maps requests under
// /v1/resources/{module} to a (resource, action) pair and asks the Decider.
// Requests outside that subtree pass through unchanged.
func NewAuthzMiddleware(deps AuthzDependencies) (func(http.Handler) http.Handler, error) {
	if deps.Decider == nil {
		return nil, errors.New("authz middleware requires a decider")
	}
	logger := deps.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resource, action, matched := classifyResourceRequest(r)
			if !matched {
				next.ServeHTTP(w, r)
				return
			}

			principalID, ok := PrincipalFromContext(r.Context())
			if !ok {
				unauthenticated(w)
				return
			}

			if resource == "" {
				http.NotFound(w, r)
				return
			}
			// matched with a known module but no action means the method is unsupported
			if action == "" {
				http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
				return
			}

			if !authorize(w, r, deps.Decider, logger, principalID, resource, action) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// RequirePermission guards a single route with a fixed (resource, action) pair.
func RequirePermission(decider Decider, logger logrus.FieldLogger, resource rbac.Resource, action rbac.Action) func(http.Handler) http.Handler {
	if logger == nil {
		logger = telemetry.Discard()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principalID, ok := PrincipalFromContext(r.Context())
			if !ok {
				unauthenticated(w)
				return
			}
			if !authorize(w, r, decider, logger, principalID, resource, action) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authorize(w http.ResponseWriter, r *http.Request, decider Decider, logger logrus.FieldLogger, principalID string, resource rbac.Resource, action rbac.Action) bool {
	allowed, err := decider.Decide(r.Context(), principalID, resource, action)
	if err != nil {
		logger.WithError(err).WithField("principal_id", principalID).Error("authorization lookup failed")
		http.Error(w, "authorization error", http.StatusInternalServerError)
		return false
	}
	if !allowed {
		logger.WithFields(logrus.Fields{
			"principal_id": principalID,
			"resource":     resource,
			"action":       action,
		}).Debug("request denied")
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// classifyResourceRequest maps /v1/resources/{module}[/{id}...][/approve|/export]
// and the HTTP method onto an action. An unknown module yields matched with an
// empty resource.
func classifyResourceRequest(r *http.Request) (resource rbac.Resource, action rbac.Action, matched bool) {
	path := r.URL.Path
	if !strings.HasPrefix(path, ResourcePathPrefix) {
		return "", "", false
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, ResourcePathPrefix), "/"), "/")
	resource, err := rbac.ParseResource(parts[0])
	if err != nil {
		return "", "", true
	}

	verb := ""
	if len(parts) > 1 {
		verb = parts[len(parts)-1]
	}

	switch {
	case verb == string(rbac.ActionApprove) && r.Method == http.MethodPost:
		return resource, rbac.ActionApprove, true
	case verb == string(rbac.ActionExport) && r.Method == http.MethodGet:
		return resource, rbac.ActionExport, true
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return resource, rbac.ActionRead, true
	case http.MethodPost:
		return resource, rbac.ActionCreate, true
	case http.MethodPut, http.MethodPatch:
		return resource, rbac.ActionUpdate, true
	case http.MethodDelete:
		return resource, rbac.ActionDelete, true
	default:
		return resource, "", true
	}
}
