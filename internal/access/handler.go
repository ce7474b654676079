package access

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/harborwatch/harborwatch/internal/platform/httpx"
	"github.com/harborwatch/harborwatch/internal/roles"
)

// Handler exposes grant management over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	mw        Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		mw:        mw,
		validator: validator.New(),
	}
}

// MountRoutes registers grant-management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(roles.PermAccessManage))
		r.Post("/fleets/{fleetID}/grants", h.grantFleet)
		r.Delete("/fleets/{fleetID}/grants/{userID}", h.revokeFleet)
		r.Post("/vessels/{vesselID}/grants", h.grantVessel)
		r.Delete("/vessels/{vesselID}/grants/{userID}", h.revokeVessel)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(roles.PermAccessView, roles.PermAccessManage))
		r.Get("/users/{userID}/grants", h.listUserGrants)
	})
}

type grantRequest struct {
	UserID    int64      `json:"userId" validate:"required,gt=0"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type grantResponse struct {
	UserID     int64      `json:"userId"`
	ResourceID int64      `json:"resourceId"`
	Kind       string     `json:"resourceKind"`
	GrantedBy  int64      `json:"grantedBy"`
	GrantedAt  time.Time  `json:"grantedAt"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

func toGrantResponse(g Grant) grantResponse {
	return grantResponse{
		UserID:     g.UserID,
		ResourceID: g.ResourceID,
		Kind:       string(g.Kind),
		GrantedBy:  g.GrantedBy,
		GrantedAt:  g.GrantedAt,
		ExpiresAt:  g.ExpiresAt,
	}
}

func (h *Handler) grantFleet(w http.ResponseWriter, r *http.Request) {
	h.grant(w, r, "fleetID", func(actor Identity, req grantRequest, resourceID int64) (Grant, error) {
		return h.service.GrantFleetAccess(r.Context(), actor, req.UserID, resourceID, req.ExpiresAt)
	})
}

func (h *Handler) grantVessel(w http.ResponseWriter, r *http.Request) {
	h.grant(w, r, "vesselID", func(actor Identity, req grantRequest, resourceID int64) (Grant, error) {
		return h.service.GrantVesselAccess(r.Context(), actor, req.UserID, resourceID, req.ExpiresAt)
	})
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request, param string, do func(Identity, grantRequest, int64) (Grant, error)) {
	actor, ok := IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	resourceID, err := pathID(r, param)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	grant, err := do(actor, req, resourceID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toGrantResponse(grant))
}

func (h *Handler) revokeFleet(w http.ResponseWriter, r *http.Request) {
	h.revoke(w, r, "fleetID", func(actor Identity, userID, resourceID int64) (bool, error) {
		return h.service.RevokeFleetAccess(r.Context(), actor, userID, resourceID)
	})
}

func (h *Handler) revokeVessel(w http.ResponseWriter, r *http.Request) {
	h.revoke(w, r, "vesselID", func(actor Identity, userID, resourceID int64) (bool, error) {
		return h.service.RevokeVesselAccess(r.Context(), actor, userID, resourceID)
	})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request, param string, do func(Identity, int64, int64) (bool, error)) {
	actor, ok := IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	resourceID, err := pathID(r, param)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	revoked, err := do(actor, userID, resourceID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

func (h *Handler) listUserGrants(w http.ResponseWriter, r *http.Request) {
	actor, ok := IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	fleets, vessels, err := h.service.UserGrants(r.Context(), actor, userID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	fleetRes := make([]grantResponse, 0, len(fleets))
	for _, g := range fleets {
		fleetRes = append(fleetRes, toGrantResponse(g))
	}
	vesselRes := make([]grantResponse, 0, len(vessels))
	for _, g := range vessels {
		vesselRes = append(vesselRes, toGrantResponse(g))
	}
	httpx.JSON(w, http.StatusOK, map[string][]grantResponse{
		"fleetGrants":  fleetRes,
		"vesselGrants": vesselRes,
	})
}

// respondErr translates access sentinels into the transport taxonomy. A
// degraded store is a 503, never a silent 403: operators must be able to tell
// "denied" from "broken".
func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrResourceNotFound), errors.Is(err, ErrUserNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrCrossTenant):
		httpx.RespondError(w, fmt.Errorf("%w: cross-tenant access", httpx.ErrForbidden))
	case errors.Is(err, ErrStoreUnavailable):
		httpx.RespondError(w, httpx.ErrUnavailable)
	default:
		h.logger.Error("grant operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", param)
	}
	return id, nil
}
