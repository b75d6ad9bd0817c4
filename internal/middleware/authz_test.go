package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicklinkpay/admin-iam/internal/rbac"
)

type call struct {
	principal string
	resource  rbac.Resource
	action    rbac.Action
}

// stubDecider allows whatever is listed in allow and records every question.
type stubDecider struct {
	allow map[call]bool
	err   error
	calls []call
}

func (d *stubDecider) Decide(_ context.Context, principalID string, resource rbac.Resource, action rbac.Action) (bool, error) {
	c := call{principalID, resource, action}
	d.calls = append(d.calls, c)
	if d.err != nil {
		return false, d.err
	}
	return d.allow[c], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(t *testing.T, h http.Handler, method, path, principal string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if principal != "" {
		req.Header.Set(DefaultPrincipalHeader, principal)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestClassifyResourceRequest(t *testing.T) {
	tests := []struct {
		method       string
		path         string
		wantResource rbac.Resource
		wantAction   rbac.Action
		wantMatched  bool
	}{
		{http.MethodGet, "/v1/resources/payoutManagement", rbac.ResourcePayoutManagement, rbac.ActionRead, true},
		{http.MethodGet, "/v1/resources/payoutManagement/p-1", rbac.ResourcePayoutManagement, rbac.ActionRead, true},
		{http.MethodPost, "/v1/resources/merchantManagement", rbac.ResourceMerchantManagement, rbac.ActionCreate, true},
		{http.MethodPatch, "/v1/resources/merchantManagement/m-1", rbac.ResourceMerchantManagement, rbac.ActionUpdate, true},
		{http.MethodPut, "/v1/resources/systemSettings/fees", rbac.ResourceSystemSettings, rbac.ActionUpdate, true},
		{http.MethodDelete, "/v1/resources/merchantManagement/m-1", rbac.ResourceMerchantManagement, rbac.ActionDelete, true},
		{http.MethodPost, "/v1/resources/payoutManagement/p-1/approve", rbac.ResourcePayoutManagement, rbac.ActionApprove, true},
		{http.MethodGet, "/v1/resources/auditLogs/export", rbac.ResourceAuditLogs, rbac.ActionExport, true},
		{http.MethodGet, "/v1/resources/payoutManagement/p-1/approve", rbac.ResourcePayoutManagement, rbac.ActionRead, true},
		{http.MethodOptions, "/v1/resources/dashboard", rbac.ResourceDashboard, "", true},
		{http.MethodGet, "/v1/resources/wallets", "", "", true},
		{http.MethodGet, "/v1/me", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			resource, action, matched := classifyResourceRequest(req)
			assert.Equal(t, tt.wantMatched, matched)
			assert.Equal(t, tt.wantResource, resource)
			assert.Equal(t, tt.wantAction, action)
		})
	}
}

func TestAuthzMiddleware(t *testing.T) {
	_, err := NewAuthzMiddleware(AuthzDependencies{})
	require.Error(t, err)

	decider := &stubDecider{allow: map[call]bool{
		{"ops", rbac.ResourcePayoutManagement, rbac.ActionApprove}: true,
	}}
	mw, err := NewAuthzMiddleware(AuthzDependencies{Decider: decider})
	require.NoError(t, err)
	h := NewPrincipalMiddleware("")(mw(okHandler()))

	t.Run("allowed", func(t *testing.T) {
		rec := serve(t, h, http.MethodPost, "/v1/resources/payoutManagement/p-9/approve", "ops")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("denied", func(t *testing.T) {
		rec := serve(t, h, http.MethodDelete, "/v1/resources/payoutManagement/p-9", "ops")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing principal", func(t *testing.T) {
		rec := serve(t, h, http.MethodGet, "/v1/resources/dashboard", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown module", func(t *testing.T) {
		rec := serve(t, h, http.MethodGet, "/v1/resources/wallets", "ops")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unsupported method", func(t *testing.T) {
		rec := serve(t, h, http.MethodOptions, "/v1/resources/dashboard", "ops")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("outside the guarded subtree", func(t *testing.T) {
		before := len(decider.calls)
		rec := serve(t, h, http.MethodGet, "/v1/me", "ops")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Len(t, decider.calls, before)
	})
}

func TestAuthzMiddleware_DecisionErrorFailsClosed(t *testing.T) {
	decider := &stubDecider{err: errors.New("database is locked")}
	mw, err := NewAuthzMiddleware(AuthzDependencies{Decider: decider})
	require.NoError(t, err)
	h := NewPrincipalMiddleware("")(mw(okHandler()))

	rec := serve(t, h, http.MethodGet, "/v1/resources/dashboard", "ops")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequirePermission(t *testing.T) {
	decider := &stubDecider{allow: map[call]bool{
		{"auditor", rbac.ResourceAuditLogs, rbac.ActionExport}: true,
	}}
	h := NewPrincipalMiddleware("X-Test-Admin")(
		RequirePermission(decider, nil, rbac.ResourceAuditLogs, rbac.ActionExport)(okHandler()),
	)

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.Header.Set("X-Test-Admin", "auditor")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.Header.Set("X-Test-Admin", "viewer")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	id, ok := PrincipalFromContext(SetPrincipal(context.Background(), "a-1"))
	assert.True(t, ok)
	assert.Equal(t, "a-1", id)

	_, ok = PrincipalFromContext(SetPrincipal(context.Background(), ""))
	assert.False(t, ok)
}
