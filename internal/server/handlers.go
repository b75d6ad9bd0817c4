package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	qlpmiddleware "github.com/quicklinkpay/admin-iam/internal/middleware"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
	"github.com/quicklinkpay/admin-iam/internal/services/iam"
)

type handlers struct {
	service   iam.Service
	decider   qlpmiddleware.Decider
	evaluator *rbac.Evaluator
	logger    logrus.FieldLogger
}

type meResponse struct {
	ID             string   `json:"id"`
	Status         string   `json:"status"`
	RoleID         string   `json:"roleId,omitempty"`
	Level          int      `json:"level"`
	SuperAdmin     bool     `json:"superAdmin"`
	CanManageUsers bool     `json:"canManageUsers"`
	CanManageRoles bool     `json:"canManageRoles"`
	Permissions    []string `json:"permissions"`
}

// me serves the cached snapshot. It may lag a write made outside this process
// by up to the snapshot TTL and must only drive what the dashboard shows.
func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	principalID, _ := qlpmiddleware.PrincipalFromContext(r.Context())

	ac, err := h.service.CachedAuthContext(r.Context(), principalID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := meResponse{
		ID:             ac.Principal.ID,
		Status:         string(ac.Principal.Status),
		Level:          int(ac.Level()),
		SuperAdmin:     ac.IsSuperAdmin(),
		CanManageUsers: h.evaluator.CanManageUsers(ac),
		CanManageRoles: h.evaluator.CanManageRoles(ac),
		Permissions:    []string{},
	}
	if ac.Role != nil {
		resp.RoleID = ac.Role.ID
	}
	for _, p := range h.evaluator.EffectivePermissions(ac) {
		resp.Permissions = append(resp.Permissions, p.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) authorize(w http.ResponseWriter, r *http.Request) {
	principalID, _ := qlpmiddleware.PrincipalFromContext(r.Context())

	resource, err := rbac.ParseResource(chi.URLParam(r, "resource"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	action, err := rbac.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	allowed, err := h.decider.Decide(r.Context(), principalID, resource, action)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !allowed {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

var statusByKind = []struct {
	kind   error
	status int
}{
	{rbac.ErrNotFound, http.StatusNotFound},
	{rbac.ErrCapabilityDenied, http.StatusForbidden},
	{rbac.ErrHierarchyViolation, http.StatusForbidden},
	{rbac.ErrSystemRoleImmutable, http.StatusForbidden},
	{rbac.ErrDuplicateID, http.StatusConflict},
	{rbac.ErrRoleInUse, http.StatusConflict},
	{rbac.ErrVersionConflict, http.StatusConflict},
	{rbac.ErrCycleDetected, http.StatusUnprocessableEntity},
	{rbac.ErrQuotaExceeded, http.StatusUnprocessableEntity},
	{rbac.ErrInvalidLevel, http.StatusBadRequest},
	{rbac.ErrIncompletePermissionMatrix, http.StatusBadRequest},
	{rbac.ErrInvalidStatus, http.StatusBadRequest},
	{rbac.ErrInvalidDefinition, http.StatusBadRequest},
}

func writeError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	for _, m := range statusByKind {
		if errors.Is(err, m.kind) {
			writeJSON(w, m.status, errorResponse{Error: err.Error(), Hint: rbac.HintFor(err)})
			return
		}
	}
	logger.WithError(err).Error("request failed")
	status := http.StatusInternalServerError
	if rbac.Retryable(err) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Error: http.StatusText(status)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
