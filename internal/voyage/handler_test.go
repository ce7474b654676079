package voyage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwatch/harborwatch/internal/access"
	"github.com/harborwatch/harborwatch/internal/fleet"
	"github.com/harborwatch/harborwatch/internal/roles"
	_ "github.com/harborwatch/harborwatch/testing"
)

type stubVoyageStore struct {
	voyages []Voyage
	totals  map[int64]float64
	nextID  int64
}

func (s *stubVoyageStore) Create(ctx context.Context, v Voyage) (Voyage, error) {
	s.nextID++
	v.ID = s.nextID
	s.voyages = append(s.voyages, v)
	return v, nil
}

func (s *stubVoyageStore) Get(ctx context.Context, tenantID, id int64) (Voyage, error) {
	for _, v := range s.voyages {
		if v.ID == id && v.TenantID == tenantID {
			return v, nil
		}
	}
	return Voyage{}, ErrNotFound
}

func (s *stubVoyageStore) List(ctx context.Context, tenantID int64) ([]Voyage, error) {
	var out []Voyage
	for _, v := range s.voyages {
		if v.TenantID == tenantID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *stubVoyageStore) VesselEmissionTotals(ctx context.Context, tenantID int64) (map[int64]float64, error) {
	return s.totals, nil
}

type stubFleetReader struct {
	fleets  []fleet.Fleet
	vessels []fleet.Vessel
}

func (s *stubFleetReader) ListFleets(ctx context.Context, tenantID int64) ([]fleet.Fleet, error) {
	return s.fleets, nil
}

func (s *stubFleetReader) ListVessels(ctx context.Context, tenantID int64, fleetID *int64) ([]fleet.Vessel, error) {
	return s.vessels, nil
}

type stubResolver struct {
	vessels access.IDSet
	fleets  access.IDSet
	err     error
}

func (s *stubResolver) HasFleetAccess(ctx context.Context, id access.Identity, fleetID int64) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.fleets.Contains(fleetID), nil
}

func (s *stubResolver) HasVesselAccess(ctx context.Context, id access.Identity, vesselID int64) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.vessels.Contains(vesselID), nil
}

func (s *stubResolver) AccessibleFleets(ctx context.Context, id access.Identity) (access.IDSet, error) {
	if s.err != nil {
		return access.IDSet{}, s.err
	}
	return s.fleets, nil
}

func (s *stubResolver) AccessibleVessels(ctx context.Context, id access.Identity) (access.IDSet, error) {
	if s.err != nil {
		return access.IDSet{}, s.err
	}
	return s.vessels, nil
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func ptrInt64(v int64) *int64 { return &v }

func dashboardFixture(t *testing.T, resolver *stubResolver) http.Handler {
	t.Helper()
	store := &stubVoyageStore{
		voyages: []Voyage{
			{ID: 1, TenantID: 1, VesselID: 20, DeparturePort: "NLRTM", ArrivalPort: "DKAAR"},
			{ID: 2, TenantID: 1, VesselID: 21, DeparturePort: "DKAAR", ArrivalPort: "NOBGO"},
		},
		totals: map[int64]float64{20: 69.9, 21: 65.8},
		nextID: 2,
	}
	fleets := &stubFleetReader{
		fleets: []fleet.Fleet{
			{ID: 10, TenantID: 1, Name: "North Sea Feeders"},
			{ID: 11, TenantID: 1, Name: "Atlantic Bulk"},
		},
		vessels: []fleet.Vessel{
			{ID: 20, TenantID: 1, FleetID: ptrInt64(10), Name: "MV Skagen"},
			{ID: 21, TenantID: 1, FleetID: ptrInt64(10), Name: "MV Esbjerg"},
			{ID: 22, TenantID: 1, FleetID: ptrInt64(11), Name: "MV Stavanger"},
		},
	}
	h := NewHandler(testLogger, store, fleets, resolver, access.Middleware{Logger: testLogger})
	router := chi.NewRouter()
	h.MountRoutes(router)
	return router
}

func authedRequest(id access.Identity, method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(access.ContextWithIdentity(context.Background(), id))
}

func TestListVoyagesFollowsVesselAccess(t *testing.T) {
	router := dashboardFixture(t, &stubResolver{vessels: access.NewIDSet(21)})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(access.Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps}, http.MethodGet, "/voyages", ""))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Voyages []struct {
			ID       int64 `json:"id"`
			VesselID int64 `json:"vesselId"`
		} `json:"voyages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Voyages, 1)
	assert.Equal(t, int64(21), resp.Voyages[0].VesselID)
}

func TestGetVoyage(t *testing.T) {
	router := dashboardFixture(t, &stubResolver{vessels: access.NewIDSet(20)})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(access.Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps}, http.MethodGet, "/voyages/1", ""))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp voyageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.ID)
	assert.Equal(t, int64(20), resp.VesselID)
}

func TestGetVoyageRequiresVesselAccess(t *testing.T) {
	router := dashboardFixture(t, &stubResolver{vessels: access.NewIDSet(21)})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(access.Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps}, http.MethodGet, "/voyages/1", ""))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetVoyageUnknownIsNotFound(t *testing.T) {
	router := dashboardFixture(t, &stubResolver{vessels: access.NewIDSet(20)})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(access.Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps}, http.MethodGet, "/voyages/99", ""))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFleetDashboardNarrowsNestedVessels(t *testing.T) {
	router := dashboardFixture(t, &stubResolver{vessels: access.NewIDSet(20)})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(access.Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps}, http.MethodGet, "/dashboard/fleets", ""))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Fleets []struct {
			ID      int64 `json:"id"`
			Vessels []struct {
				ID        int64   `json:"id"`
				CO2Tonnes float64 `json:"co2Tonnes"`
			} `json:"vessels"`
		} `json:"fleets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Fleets, 1, "fleets with no visible vessels are dropped")
	assert.Equal(t, int64(10), resp.Fleets[0].ID)
	require.Len(t, resp.Fleets[0].Vessels, 1)
	assert.Equal(t, int64(20), resp.Fleets[0].Vessels[0].ID)
	assert.Equal(t, 69.9, resp.Fleets[0].Vessels[0].CO2Tonnes)
}

func TestFleetDashboardResolverFailureIs503(t *testing.T) {
	router := dashboardFixture(t, &stubResolver{err: access.ErrStoreUnavailable})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(access.Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps}, http.MethodGet, "/dashboard/fleets", ""))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateVoyageRequiresVesselAccess(t *testing.T) {
	router := dashboardFixture(t, &stubResolver{vessels: access.NewIDSet(20)})
	body := `{"vesselId":21,"departurePort":"NLRTM","arrivalPort":"DKAAR","departedAt":"2026-07-02T06:00:00Z","arrivedAt":"2026-07-03T18:00:00Z","distanceNm":410,"fuelTonnes":22.4,"co2Tonnes":69.9}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(access.Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps}, http.MethodPost, "/voyages", body))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateVoyageValidatesArrivalAfterDeparture(t *testing.T) {
	router := dashboardFixture(t, &stubResolver{vessels: access.NewIDSet(20)})
	body := `{"vesselId":20,"departurePort":"NLRTM","arrivalPort":"DKAAR","departedAt":"2026-07-03T18:00:00Z","arrivedAt":"2026-07-02T06:00:00Z","distanceNm":410,"fuelTonnes":22.4,"co2Tonnes":69.9}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(access.Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps}, http.MethodPost, "/voyages", body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateVoyageSuccess(t *testing.T) {
	router := dashboardFixture(t, &stubResolver{vessels: access.NewIDSet(20)})
	body := `{"vesselId":20,"departurePort":"NLRTM","arrivalPort":"DKAAR","departedAt":"2026-07-02T06:00:00Z","arrivedAt":"2026-07-03T18:00:00Z","distanceNm":410,"fuelTonnes":22.4,"co2Tonnes":69.9}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(access.Identity{UserID: 5, TenantID: 1, Role: roles.RoleOps}, http.MethodPost, "/voyages", body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp voyageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(20), resp.VesselID)
	assert.True(t, resp.DepartedAt.Equal(time.Date(2026, 7, 2, 6, 0, 0, 0, time.UTC)))
}
