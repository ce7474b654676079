package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/harborwatch/harborwatch/internal/access"
	"github.com/harborwatch/harborwatch/internal/platform/httpx"
	"github.com/harborwatch/harborwatch/internal/roles"
)

// AccessResolver is the slice of the access engine the handlers consume.
type AccessResolver interface {
	HasFleetAccess(ctx context.Context, id access.Identity, fleetID int64) (bool, error)
	HasVesselAccess(ctx context.Context, id access.Identity, vesselID int64) (bool, error)
	AccessibleFleets(ctx context.Context, id access.Identity) (access.IDSet, error)
	AccessibleVessels(ctx context.Context, id access.Identity) (access.IDSet, error)
}

// Handler exposes fleet and vessel CRUD over HTTP. List responses are
// narrowed through the access response filter after serialization; point
// reads and mutations go through resolver point checks.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	resolver  AccessResolver
	mw        access.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, resolver AccessResolver, mw access.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		resolver:  resolver,
		mw:        mw,
		validator: validator.New(),
	}
}

// MountRoutes registers fleet and vessel routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/fleets", func(r chi.Router) {
		r.With(h.mw.RequireAny(roles.PermFleetsView)).Get("/", h.listFleets)
		r.With(h.mw.RequireAny(roles.PermFleetsView)).Get("/{fleetID}", h.getFleet)
		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireAny(roles.PermFleetsManage))
			r.Post("/", h.createFleet)
			r.Put("/{fleetID}", h.updateFleet)
			r.Delete("/{fleetID}", h.deleteFleet)
		})
	})
	r.Route("/vessels", func(r chi.Router) {
		r.With(h.mw.RequireAny(roles.PermVesselsView)).Get("/", h.listVessels)
		r.With(h.mw.RequireAny(roles.PermVesselsView)).Get("/{vesselID}", h.getVessel)
		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireAny(roles.PermVesselsManage))
			r.Post("/", h.createVessel)
			r.Put("/{vesselID}", h.updateVessel)
			r.Delete("/{vesselID}", h.deleteVessel)
		})
	})
}

type fleetResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Operator  string    `json:"operator"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type vesselResponse struct {
	ID           int64     `json:"id"`
	FleetID      *int64    `json:"fleetId"`
	Name         string    `json:"name"`
	IMONumber    string    `json:"imoNumber"`
	VesselType   string    `json:"vesselType"`
	GrossTonnage float64   `json:"grossTonnage"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toFleetResponse(f Fleet) fleetResponse {
	return fleetResponse{ID: f.ID, Name: f.Name, Operator: f.Operator, CreatedAt: f.CreatedAt, UpdatedAt: f.UpdatedAt}
}

func toVesselResponse(v Vessel) vesselResponse {
	return vesselResponse{
		ID:           v.ID,
		FleetID:      v.FleetID,
		Name:         v.Name,
		IMONumber:    v.IMONumber,
		VesselType:   v.VesselType,
		GrossTonnage: v.GrossTonnage,
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}
}

func (h *Handler) listFleets(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	fleets, err := h.service.ListFleets(r.Context(), actor.TenantID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	accessible, err := h.resolver.AccessibleFleets(r.Context(), actor)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	items := make([]json.RawMessage, 0, len(fleets))
	for _, f := range fleets {
		raw, err := json.Marshal(toFleetResponse(f))
		if err != nil {
			h.respondErr(w, err)
			return
		}
		items = append(items, raw)
	}
	filtered, err := access.FilterByAccess(items, access.RuleResourceList, accessible)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fleets": filtered})
}

func (h *Handler) getFleet(w http.ResponseWriter, r *http.Request) {
	actor, fleetID, ok := h.identityAndID(w, r, "fleetID")
	if !ok {
		return
	}
	if !h.requireFleetAccess(w, r, actor, fleetID) {
		return
	}
	f, err := h.service.GetFleet(r.Context(), actor.TenantID, fleetID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFleetResponse(f))
}

type fleetRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Operator string `json:"operator" validate:"max=120"`
}

func (h *Handler) createFleet(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req fleetRequest
	if !h.decode(w, r, &req) {
		return
	}
	f, err := h.service.CreateFleet(r.Context(), actor.TenantID, req.Name, req.Operator)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toFleetResponse(f))
}

func (h *Handler) updateFleet(w http.ResponseWriter, r *http.Request) {
	actor, fleetID, ok := h.identityAndID(w, r, "fleetID")
	if !ok {
		return
	}
	if !h.requireFleetAccess(w, r, actor, fleetID) {
		return
	}
	var req fleetRequest
	if !h.decode(w, r, &req) {
		return
	}
	f, err := h.service.UpdateFleet(r.Context(), actor.TenantID, fleetID, req.Name, req.Operator)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFleetResponse(f))
}

func (h *Handler) deleteFleet(w http.ResponseWriter, r *http.Request) {
	actor, fleetID, ok := h.identityAndID(w, r, "fleetID")
	if !ok {
		return
	}
	if !h.requireFleetAccess(w, r, actor, fleetID) {
		return
	}
	if err := h.service.DeleteFleet(r.Context(), actor.TenantID, fleetID); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listVessels(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var fleetID *int64
	if raw := r.URL.Query().Get("fleetId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, fmt.Errorf("%w: invalid fleetId", httpx.ErrValidation))
			return
		}
		fleetID = &id
	}
	vessels, err := h.service.ListVessels(r.Context(), actor.TenantID, fleetID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	accessible, err := h.resolver.AccessibleVessels(r.Context(), actor)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	items := make([]json.RawMessage, 0, len(vessels))
	for _, v := range vessels {
		raw, err := json.Marshal(toVesselResponse(v))
		if err != nil {
			h.respondErr(w, err)
			return
		}
		items = append(items, raw)
	}
	filtered, err := access.FilterByAccess(items, access.RuleResourceList, accessible)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vessels": filtered})
}

func (h *Handler) getVessel(w http.ResponseWriter, r *http.Request) {
	actor, vesselID, ok := h.identityAndID(w, r, "vesselID")
	if !ok {
		return
	}
	if !h.requireVesselAccess(w, r, actor, vesselID) {
		return
	}
	v, err := h.service.GetVessel(r.Context(), actor.TenantID, vesselID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toVesselResponse(v))
}

type vesselRequest struct {
	FleetID      *int64  `json:"fleetId" validate:"omitempty,gt=0"`
	Name         string  `json:"name" validate:"required,min=2,max=120"`
	IMONumber    string  `json:"imoNumber" validate:"required,len=7,numeric"`
	VesselType   string  `json:"vesselType" validate:"required,max=60"`
	GrossTonnage float64 `json:"grossTonnage" validate:"gte=0"`
}

func (h *Handler) createVessel(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req vesselRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.FleetID != nil && !h.requireFleetAccess(w, r, actor, *req.FleetID) {
		return
	}
	v, err := h.service.CreateVessel(r.Context(), Vessel{
		TenantID:     actor.TenantID,
		FleetID:      req.FleetID,
		Name:         req.Name,
		IMONumber:    req.IMONumber,
		VesselType:   req.VesselType,
		GrossTonnage: req.GrossTonnage,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toVesselResponse(v))
}

type vesselUpdateRequest struct {
	FleetID      *int64  `json:"fleetId" validate:"omitempty,gt=0"`
	Name         string  `json:"name" validate:"required,min=2,max=120"`
	VesselType   string  `json:"vesselType" validate:"required,max=60"`
	GrossTonnage float64 `json:"grossTonnage" validate:"gte=0"`
}

func (h *Handler) updateVessel(w http.ResponseWriter, r *http.Request) {
	actor, vesselID, ok := h.identityAndID(w, r, "vesselID")
	if !ok {
		return
	}
	if !h.requireVesselAccess(w, r, actor, vesselID) {
		return
	}
	var req vesselUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.FleetID != nil && !h.requireFleetAccess(w, r, actor, *req.FleetID) {
		return
	}
	v, err := h.service.UpdateVessel(r.Context(), actor.TenantID, vesselID, req.FleetID, req.Name, req.VesselType, req.GrossTonnage)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toVesselResponse(v))
}

func (h *Handler) deleteVessel(w http.ResponseWriter, r *http.Request) {
	actor, vesselID, ok := h.identityAndID(w, r, "vesselID")
	if !ok {
		return
	}
	if !h.requireVesselAccess(w, r, actor, vesselID) {
		return
	}
	if err := h.service.DeleteVessel(r.Context(), actor.TenantID, vesselID); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireFleetAccess(w http.ResponseWriter, r *http.Request, actor access.Identity, fleetID int64) bool {
	allowed, err := h.resolver.HasFleetAccess(r.Context(), actor, fleetID)
	if err != nil {
		h.respondErr(w, err)
		return false
	}
	if !allowed {
		httpx.RespondError(w, httpx.ErrForbidden)
		return false
	}
	return true
}

func (h *Handler) requireVesselAccess(w http.ResponseWriter, r *http.Request, actor access.Identity, vesselID int64) bool {
	allowed, err := h.resolver.HasVesselAccess(r.Context(), actor, vesselID)
	if err != nil {
		h.respondErr(w, err)
		return false
	}
	if !allowed {
		httpx.RespondError(w, httpx.ErrForbidden)
		return false
	}
	return true
}

func (h *Handler) identityAndID(w http.ResponseWriter, r *http.Request, param string) (access.Identity, int64, bool) {
	actor, ok := access.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return access.Identity{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid %s", httpx.ErrValidation, param))
		return access.Identity{}, 0, false
	}
	return actor, id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return false
	}
	return true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrDuplicate):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrDuplicate, err))
	case errors.Is(err, access.ErrStoreUnavailable):
		httpx.RespondError(w, httpx.ErrUnavailable)
	default:
		h.logger.Error("fleet operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
