package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harborwatch/harborwatch/internal/access"
	"github.com/harborwatch/harborwatch/internal/platform/httpx"
	"github.com/harborwatch/harborwatch/internal/roles"
	"github.com/harborwatch/harborwatch/internal/shared"
)

// Trail reads the persisted audit trail. Implemented by Service.
type Trail interface {
	ListForUser(ctx context.Context, targetUserID int64, page, perPage int) ([]Entry, shared.Pagination, error)
}

// TenantChecker confirms the target user shares the actor's tenant.
// Implemented by access.TenantGuard.
type TenantChecker interface {
	CheckUser(ctx context.Context, actor access.Identity, userID int64) error
}

// Handler serves the audit trail to administrators. Reads are tenant-scoped:
// the target user must belong to the caller's tenant.
type Handler struct {
	logger *slog.Logger
	trail  Trail
	guard  TenantChecker
	mw     access.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, trail Trail, guard TenantChecker, mw access.Middleware) *Handler {
	return &Handler{logger: logger, trail: trail, guard: guard, mw: mw}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.mw.RequireAny(roles.PermAuditView)).Get("/users/{userID}", h.listForUser)
}

type entryResponse struct {
	ID           int64     `json:"id"`
	ActorID      int64     `json:"actorId"`
	TargetUserID int64     `json:"targetUserId"`
	ResourceID   int64     `json:"resourceId"`
	ResourceKind string    `json:"resourceKind"`
	Action       string    `json:"action"`
	At           time.Time `json:"at"`
}

type paginationResponse struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid userID", httpx.ErrValidation))
		return
	}
	if err := h.guard.CheckUser(r.Context(), actor, userID); err != nil {
		h.respondErr(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	entries, p, err := h.trail.ListForUser(r.Context(), userID, page, perPage)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	res := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, entryResponse{
			ID:           e.ID,
			ActorID:      e.ActorID,
			TargetUserID: e.TargetUserID,
			ResourceID:   e.ResourceID,
			ResourceKind: e.ResourceKind,
			Action:       e.Action,
			At:           e.At,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries": res,
		"pagination": paginationResponse{
			Page:       p.Page,
			PerPage:    p.PerPage,
			Total:      p.Total,
			TotalPages: p.TotalPages,
		},
	})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.ErrUserNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, access.ErrCrossTenant):
		httpx.RespondError(w, fmt.Errorf("%w: cross-tenant access", httpx.ErrForbidden))
	case errors.Is(err, access.ErrStoreUnavailable):
		httpx.RespondError(w, httpx.ErrUnavailable)
	default:
		h.logger.Error("list audit entries", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
