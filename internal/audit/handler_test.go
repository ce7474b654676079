package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwatch/harborwatch/internal/access"
	"github.com/harborwatch/harborwatch/internal/roles"
	"github.com/harborwatch/harborwatch/internal/shared"
	_ "github.com/harborwatch/harborwatch/testing"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubTrail struct {
	entries map[int64][]Entry
	calls   int
	err     error
}

func (s *stubTrail) ListForUser(ctx context.Context, targetUserID int64, page, perPage int) ([]Entry, shared.Pagination, error) {
	s.calls++
	if s.err != nil {
		return nil, shared.Pagination{}, s.err
	}
	list := s.entries[targetUserID]
	return list, shared.NewPagination(page, perPage, len(list)), nil
}

type stubUserDirectory struct {
	tenants map[int64]int64
}

func (s stubUserDirectory) UserTenant(ctx context.Context, userID int64) (int64, error) {
	tenantID, ok := s.tenants[userID]
	if !ok {
		return 0, access.ErrUserNotFound
	}
	return tenantID, nil
}

func handlerFixture(t *testing.T) (*chi.Mux, *stubTrail) {
	t.Helper()
	trail := &stubTrail{entries: map[int64][]Entry{
		7: {
			{ID: 1, ActorID: 2, TargetUserID: 7, ResourceID: 10, ResourceKind: "fleet", Action: "grant", At: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)},
			{ID: 2, ActorID: 2, TargetUserID: 7, ResourceID: 10, ResourceKind: "fleet", Action: "revoke", At: time.Date(2026, 7, 2, 12, 0, 0, 0, time.UTC)},
		},
		9: {
			{ID: 3, ActorID: 4, TargetUserID: 9, ResourceID: 30, ResourceKind: "vessel", Action: "grant", At: time.Date(2026, 7, 3, 12, 0, 0, 0, time.UTC)},
		},
	}}
	guard := access.NewTenantGuard(nil, stubUserDirectory{tenants: map[int64]int64{7: 1, 9: 2}})

	h := NewHandler(testLogger, trail, guard, access.Middleware{Logger: testLogger})
	router := chi.NewRouter()
	router.Route("/audit", h.MountRoutes)
	return router, trail
}

func doRequest(t *testing.T, router http.Handler, id *access.Identity, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if id != nil {
		req = req.WithContext(access.ContextWithIdentity(context.Background(), *id))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuditListForUser(t *testing.T) {
	router, _ := handlerFixture(t)
	analyst := &access.Identity{UserID: 3, TenantID: 1, Role: roles.RoleAnalyst}

	rec := doRequest(t, router, analyst, "/audit/users/7")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Entries []struct {
			TargetUserID int64  `json:"targetUserId"`
			Action       string `json:"action"`
		} `json:"entries"`
		Pagination struct {
			Page    int `json:"page"`
			PerPage int `json:"perPage"`
			Total   int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "grant", resp.Entries[0].Action)
	assert.Equal(t, 1, resp.Pagination.Page)
	assert.Equal(t, 2, resp.Pagination.Total)
}

func TestAuditListCrossTenantIsForbidden(t *testing.T) {
	router, trail := handlerFixture(t)
	analyst := &access.Identity{UserID: 3, TenantID: 1, Role: roles.RoleAnalyst}

	rec := doRequest(t, router, analyst, "/audit/users/9")
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Zero(t, trail.calls, "cross-tenant reads must never reach the trail")
}

func TestAuditListUnknownUserIsNotFound(t *testing.T) {
	router, trail := handlerFixture(t)
	admin := &access.Identity{UserID: 2, TenantID: 1, Role: roles.RoleAdmin}

	rec := doRequest(t, router, admin, "/audit/users/404")
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	assert.Zero(t, trail.calls)
}

func TestAuditListRequiresIdentity(t *testing.T) {
	router, _ := handlerFixture(t)

	rec := doRequest(t, router, nil, "/audit/users/7")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuditListViewerLacksCapability(t *testing.T) {
	router, trail := handlerFixture(t)
	viewer := &access.Identity{UserID: 5, TenantID: 1, Role: roles.RoleViewer}

	rec := doRequest(t, router, viewer, "/audit/users/7")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, trail.calls)
}
