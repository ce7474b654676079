package voyage

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
	"golang.org/x/sync/errgroup"

	"github.com/harborwatch/harborwatch/internal/access"
	"github.com/harborwatch/harborwatch/internal/fleet"
	"github.com/harborwatch/harborwatch/internal/platform/httpx"
	"github.com/harborwatch/harborwatch/internal/roles"
)

// Store is the persistence surface the handlers need.
type Store interface {
	Create(ctx context.Context, v Voyage) (Voyage, error)
	Get(ctx context.Context, tenantID, id int64) (Voyage, error)
	List(ctx context.Context, tenantID int64) ([]Voyage, error)
	VesselEmissionTotals(ctx context.Context, tenantID int64) (map[int64]float64, error)
}

// FleetReader supplies fleet and vessel listings for the dashboard.
type FleetReader interface {
	ListFleets(ctx context.Context, tenantID int64) ([]fleet.Fleet, error)
	ListVessels(ctx context.Context, tenantID int64, fleetID *int64) ([]fleet.Vessel, error)
}

// Handler exposes voyage recording and the per-fleet compliance dashboard.
// Voyage listings are narrowed by vessel foreign key; the dashboard nests
// vessels under fleets and is narrowed through the nested-list filter.
type Handler struct {
	logger    *slog.Logger
	store     Store
	fleets    FleetReader
	resolver  fleet.AccessResolver
	mw        access.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, store Store, fleets FleetReader, resolver fleet.AccessResolver, mw access.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		store:     store,
		fleets:    fleets,
		resolver:  resolver,
		mw:        mw,
		validator: validator.New(),
	}
}

// MountRoutes registers voyage routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/voyages", func(r chi.Router) {
		r.With(h.mw.RequireAny(roles.PermVoyagesView)).Get("/", h.listVoyages)
		r.With(h.mw.RequireAny(roles.PermVoyagesView)).Get("/{voyageID}", h.getVoyage)
		r.With(h.mw.RequireAny(roles.PermVoyagesManage)).Post("/", h.createVoyage)
	})
	r.With(h.mw.RequireAny(roles.PermFleetsView)).Get("/dashboard/fleets", h.fleetDashboard)
}

type voyageResponse struct {
	ID            int64     `json:"id"`
	VesselID      int64     `json:"vesselId"`
	DeparturePort string    `json:"departurePort"`
	ArrivalPort   string    `json:"arrivalPort"`
	DepartedAt    time.Time `json:"departedAt"`
	ArrivedAt     time.Time `json:"arrivedAt"`
	DistanceNM    float64   `json:"distanceNm"`
	FuelTonnes    float64   `json:"fuelTonnes"`
	CO2Tonnes     float64   `json:"co2Tonnes"`
}

func toVoyageResponse(v Voyage) voyageResponse {
	return voyageResponse{
		ID:            v.ID,
		VesselID:      v.VesselID,
		DeparturePort: v.DeparturePort,
		ArrivalPort:   v.ArrivalPort,
		DepartedAt:    v.DepartedAt,
		ArrivedAt:     v.ArrivedAt,
		DistanceNM:    v.DistanceNM,
		FuelTonnes:    v.FuelTonnes,
		CO2Tonnes:     v.CO2Tonnes,
	}
}

func (h *Handler) listVoyages(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	voyages, err := h.store.List(r.Context(), actor.TenantID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	accessible, err := h.resolver.AccessibleVessels(r.Context(), actor)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	items := make([]json.RawMessage, 0, len(voyages))
	for _, v := range voyages {
		raw, err := json.Marshal(toVoyageResponse(v))
		if err != nil {
			h.respondErr(w, err)
			return
		}
		items = append(items, raw)
	}
	// Voyages are not resources themselves; they follow their vessel.
	filtered, err := access.FilterByAccess(items, access.RuleVesselForeign, accessible)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"voyages": filtered})
}

func (h *Handler) getVoyage(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "voyageID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid voyageID", httpx.ErrValidation))
		return
	}
	v, err := h.store.Get(r.Context(), actor.TenantID, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	allowed, err := h.resolver.HasVesselAccess(r.Context(), actor, v.VesselID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if !allowed {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	httpx.JSON(w, http.StatusOK, toVoyageResponse(v))
}

type voyageRequest struct {
	VesselID      int64     `json:"vesselId" validate:"required,gt=0"`
	DeparturePort string    `json:"departurePort" validate:"required,max=120"`
	ArrivalPort   string    `json:"arrivalPort" validate:"required,max=120"`
	DepartedAt    time.Time `json:"departedAt" validate:"required"`
	ArrivedAt     time.Time `json:"arrivedAt" validate:"required,gtfield=DepartedAt"`
	DistanceNM    float64   `json:"distanceNm" validate:"gt=0"`
	FuelTonnes    float64   `json:"fuelTonnes" validate:"gte=0"`
	CO2Tonnes     float64   `json:"co2Tonnes" validate:"gte=0"`
}

func (h *Handler) createVoyage(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req voyageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	allowed, err := h.resolver.HasVesselAccess(r.Context(), actor, req.VesselID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if !allowed {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	v, err := h.store.Create(r.Context(), Voyage{
		TenantID:      actor.TenantID,
		VesselID:      req.VesselID,
		DeparturePort: req.DeparturePort,
		ArrivalPort:   req.ArrivalPort,
		DepartedAt:    req.DepartedAt,
		ArrivedAt:     req.ArrivedAt,
		DistanceNM:    req.DistanceNM,
		FuelTonnes:    req.FuelTonnes,
		CO2Tonnes:     req.CO2Tonnes,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toVoyageResponse(v))
}

type dashboardVessel struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	CO2Tonnes float64 `json:"co2Tonnes"`
}

type dashboardFleet struct {
	ID      int64             `json:"id"`
	Name    string            `json:"name"`
	Vessels []dashboardVessel `json:"vessels"`
}

// fleetDashboard returns per-fleet emission summaries. Fleets, vessels, and
// emission totals are fetched concurrently; the serialized result is then
// narrowed so each caller sees only the vessels they may access, dropping
// fleets left with no visible vessels.
func (h *Handler) fleetDashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var (
		fleets  []fleet.Fleet
		vessels []fleet.Vessel
		totals  map[int64]float64
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		fleets, err = h.fleets.ListFleets(ctx, actor.TenantID)
		return err
	})
	g.Go(func() (err error) {
		vessels, err = h.fleets.ListVessels(ctx, actor.TenantID, nil)
		return err
	})
	g.Go(func() (err error) {
		totals, err = h.store.VesselEmissionTotals(ctx, actor.TenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		h.respondErr(w, err)
		return
	}

	byFleet := make(map[int64][]dashboardVessel)
	for _, v := range vessels {
		if v.FleetID == nil {
			continue
		}
		byFleet[*v.FleetID] = append(byFleet[*v.FleetID], dashboardVessel{
			ID:        v.ID,
			Name:      v.Name,
			CO2Tonnes: totals[v.ID],
		})
	}

	items := make([]json.RawMessage, 0, len(fleets))
	for _, f := range fleets {
		entry := dashboardFleet{ID: f.ID, Name: f.Name, Vessels: byFleet[f.ID]}
		if entry.Vessels == nil {
			entry.Vessels = []dashboardVessel{}
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			h.respondErr(w, err)
			return
		}
		items = append(items, raw)
	}

	accessible, err := h.resolver.AccessibleVessels(r.Context(), actor)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	filtered, err := access.FilterByAccess(items, access.RuleNestedVessels, accessible)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fleets": filtered})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, access.ErrStoreUnavailable):
		httpx.RespondError(w, httpx.ErrUnavailable)
	default:
		h.logger.Error("voyage operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
