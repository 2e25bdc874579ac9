package permissions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/oxiliere/oxutils/internal/actions"
	"github.com/oxiliere/oxutils/internal/observability"
	"github.com/oxiliere/oxutils/internal/platform/httpx"
	"github.com/oxiliere/oxutils/internal/shared"
)

// SyncEnqueuer schedules background reconciliation after template edits.
type SyncEnqueuer interface {
	EnqueueRoleSync(ctx context.Context, role, scope string) error
	EnqueueGroupSync(ctx context.Context, group string) error
}

// Handler exposes the authorization engine over HTTP.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	enqueuer    SyncEnqueuer
	metrics     *observability.Metrics
	accessScope string
}

// NewHandler builds a Handler. The enqueuer may be nil; template edits then
// skip background sync scheduling.
func NewHandler(logger *slog.Logger, service *Service, enqueuer SyncEnqueuer, metrics *observability.Metrics, accessScope string) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		validator:   validator.New(),
		enqueuer:    enqueuer,
		metrics:     metrics,
		accessScope: accessScope,
	}
}

// MountRoutes registers the admin API. Every route is guarded by the engine
// itself through the configured access-manager scope.
func (h *Handler) MountRoutes(r chi.Router, mw Middleware) {
	read := mw.RequireScope(h.accessScope + ":r")
	write := mw.RequireScope(h.accessScope + ":rw")
	remove := mw.RequireScope(h.accessScope + ":d")

	r.Group(func(r chi.Router) {
		r.Use(read)
		r.Get("/scopes", h.listScopes)
		r.Get("/roles", h.listRoles)
		r.Get("/groups", h.listGroups)
		r.Get("/groups/{slug}", h.getGroup)
		r.Get("/groups/{slug}/members", h.getGroupMembers)
		r.Get("/role-grants", h.listRoleGrants)
		r.Get("/users/{userID}/grants", h.getUserGrants)
		r.Get("/users/{userID}/roles", h.getUserRoles)
		r.Get("/users/{userID}/groups", h.getUserGroups)
		r.Post("/check", h.check)
		r.Post("/check/any", h.checkAny)
	})

	r.Group(func(r chi.Router) {
		r.Use(write)
		r.Post("/roles", h.createRole)
		r.Put("/roles/{slug}", h.updateRole)
		r.Post("/groups", h.createGroup)
		r.Put("/groups/{slug}", h.updateGroup)
		r.Post("/role-grants", h.createRoleGrant)
		r.Put("/role-grants/{id}", h.updateRoleGrant)
		r.Post("/users/assign-role", h.assignRole)
		r.Post("/users/revoke-role", h.revokeRole)
		r.Post("/users/assign-group", h.assignGroup)
		r.Post("/users/revoke-group", h.revokeGroup)
		r.Post("/users/override-grant", h.overrideGrant)
		r.Post("/sync/role", h.syncRole)
		r.Post("/sync/group", h.syncGroup)
	})

	r.Group(func(r chi.Router) {
		r.Use(remove)
		r.Delete("/groups/{slug}", h.deleteGroup)
		r.Delete("/role-grants/{id}", h.deleteRoleGrant)
	})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRoleNotFound),
		errors.Is(err, ErrGroupNotFound),
		errors.Is(err, ErrGrantNotFound),
		errors.Is(err, ErrRoleGrantNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateSlug),
		errors.Is(err, ErrDuplicateTemplate),
		errors.Is(err, ErrAlreadyAssigned),
		errors.Is(err, ErrConstraintViolation):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, actions.ErrInvalid),
		errors.Is(err, ErrMalformedPermission),
		errors.Is(err, ErrScopeNotAllowed),
		errors.Is(err, ErrContextKeyNotAllowed):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("permissions handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

// --- scopes and roles ---

func (h *Handler) listScopes(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.ListScopes())
}

type roleRequest struct {
	Slug string `json:"slug" validate:"required"`
	Name string `json:"name" validate:"required"`
	App  string `json:"app"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Slug, req.Name, req.App)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), chi.URLParam(r, "slug"), req.Name)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context(), r.URL.Query().Get("app"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

// --- groups ---

type groupRequest struct {
	Slug  string   `json:"slug" validate:"required"`
	Name  string   `json:"name" validate:"required"`
	Roles []string `json:"roles"`
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !h.decode(w, r, &req) {
		return
	}
	group, err := h.service.CreateGroup(r.Context(), req.Slug, req.Name, req.Roles)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, group)
}

func (h *Handler) updateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string   `json:"name" validate:"required"`
		Roles []string `json:"roles"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	group, err := h.service.UpdateGroup(r.Context(), chi.URLParam(r, "slug"), req.Name, req.Roles)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueGroupSync(r.Context(), group.Slug); err != nil {
			h.logger.Warn("enqueue group sync", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, group)
}

func (h *Handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteGroup(r.Context(), chi.URLParam(r, "slug")); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.service.GetGroup(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, group)
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, groups)
}

func (h *Handler) getGroupMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.GetGroupMembers(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, members)
}

// --- role grants ---

type roleGrantRequest struct {
	Role    string         `json:"role" validate:"required"`
	Scope   string         `json:"scope" validate:"required"`
	Actions []string       `json:"actions" validate:"required,min=1"`
	Context map[string]any `json:"context"`
}

func (h *Handler) createRoleGrant(w http.ResponseWriter, r *http.Request) {
	var req roleGrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	rg, err := h.service.CreateRoleGrant(r.Context(), req.Role, req.Scope, req.Actions, req.Context)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rg)
}

func (h *Handler) updateRoleGrant(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role grant id")
		return
	}
	var req struct {
		Actions []string       `json:"actions" validate:"required,min=1"`
		Context map[string]any `json:"context"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	rg, err := h.service.UpdateRoleGrant(r.Context(), id, req.Actions, req.Context)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueRoleSync(r.Context(), rg.Role, rg.Scope); err != nil {
			h.logger.Warn("enqueue role sync", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, rg)
}

func (h *Handler) deleteRoleGrant(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role grant id")
		return
	}
	if err := h.service.DeleteRoleGrant(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRoleGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.service.ListRoleGrants(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grants)
}

// --- assignment ---

type assignRoleRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Role   string    `json:"role" validate:"required"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AssignRole(r.Context(), req.UserID, req.Role, actorFrom(r)); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	deleted, err := h.service.RevokeRole(r.Context(), req.UserID, req.Role)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"grants_deleted": deleted})
}

type assignGroupRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Group  string    `json:"group" validate:"required"`
}

func (h *Handler) assignGroup(w http.ResponseWriter, r *http.Request) {
	var req assignGroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	membership, err := h.service.AssignGroup(r.Context(), req.UserID, req.Group, actorFrom(r))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, membership)
}

func (h *Handler) revokeGroup(w http.ResponseWriter, r *http.Request) {
	var req assignGroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	deleted, err := h.service.RevokeGroup(r.Context(), req.UserID, req.Group)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"grants_deleted": deleted})
}

type overrideGrantRequest struct {
	UserID        uuid.UUID `json:"user_id" validate:"required"`
	Scope         string    `json:"scope" validate:"required"`
	RemoveActions []string  `json:"remove_actions" validate:"required,min=1"`
}

func (h *Handler) overrideGrant(w http.ResponseWriter, r *http.Request) {
	var req overrideGrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.OverrideGrant(r.Context(), req.UserID, req.Scope, req.RemoveActions); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- sync ---

func (h *Handler) syncRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role  string `json:"role" validate:"required"`
		Scope string `json:"scope"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	stats, err := h.service.RoleSync(r.Context(), req.Role, req.Scope)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.observeSync(stats.GrantsUpdated)
	httpx.JSON(w, http.StatusOK, map[string]int{"grants_updated": stats.GrantsUpdated})
}

func (h *Handler) syncGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Group string `json:"group" validate:"required"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	stats, err := h.service.GroupSync(r.Context(), req.Group)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.observeSync(stats.GrantsUpdated)
	httpx.JSON(w, http.StatusOK, map[string]int{
		"users_synced":   stats.UsersSynced,
		"grants_updated": stats.GrantsUpdated,
	})
}

// --- reads and checks ---

func (h *Handler) getUserGrants(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	grants, err := h.service.GetUserGrants(r.Context(), userID, r.URL.Query().Get("scope"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grants)
}

func (h *Handler) getUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	roles, err := h.service.GetUserRoles(r.Context(), userID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) getUserGroups(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	groups, err := h.service.GetUserGroups(r.Context(), userID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, groups)
}

type checkRequest struct {
	UserID  uuid.UUID      `json:"user_id" validate:"required"`
	Scope   string         `json:"scope" validate:"required"`
	Actions []string       `json:"actions" validate:"required,min=1"`
	Role    string         `json:"role"`
	Context map[string]any `json:"context"`
	Any     bool           `json:"any"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !h.decode(w, r, &req) {
		return
	}
	var granted bool
	var err error
	if req.Any {
		granted, err = h.service.AnyActionCheck(r.Context(), req.UserID, req.Scope, req.Actions, req.Role, req.Context)
	} else {
		granted, err = h.service.Check(r.Context(), req.UserID, req.Scope, req.Actions, req.Role, req.Context)
	}
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.observeCheck(granted)
	httpx.JSON(w, http.StatusOK, map[string]bool{"granted": granted})
}

func (h *Handler) checkAny(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      uuid.UUID `json:"user_id" validate:"required"`
		Permissions []string  `json:"permissions" validate:"required,min=1"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	granted, err := h.service.AnyPermissionCheck(r.Context(), req.UserID, req.Permissions...)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.observeCheck(granted)
	httpx.JSON(w, http.StatusOK, map[string]bool{"granted": granted})
}

func (h *Handler) observeCheck(granted bool) {
	if h.metrics != nil {
		h.metrics.ObserveCheck(granted)
	}
}

func (h *Handler) observeSync(updated int) {
	if h.metrics != nil {
		h.metrics.ObserveSync(updated)
	}
}

func actorFrom(r *http.Request) *uuid.UUID {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		return nil
	}
	return principal.Actor()
}
