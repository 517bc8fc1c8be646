package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/lendarr/lendarr/internal/auth"
	"github.com/lendarr/lendarr/internal/clock"
	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/domain"
	"github.com/lendarr/lendarr/internal/notifier"
	"github.com/lendarr/lendarr/internal/services"
	"github.com/lendarr/lendarr/internal/testutil"
)

var apiTestBase = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// testServer bundles a fully wired server over an in-memory database with
// a controllable clock.
type testServer struct {
	server *RESTServer
	repo   *db.Repository
	clk    *testutil.MockClock
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo, err := testutil.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	real := testutil.NewMockClock(apiTestBase)
	sim, err := clock.NewSimClock(repo, real)
	require.NoError(t, err)

	locks := services.NewBookLocks()
	emitter := notifier.NewNotifier(repo.DB)
	holds := services.NewHoldService(repo, sim, emitter, nil, locks)
	checkouts := services.NewCheckoutService(repo, sim, emitter, nil, holds, locks)
	waitlists := services.NewWaitlistService(repo, sim, nil, locks)
	simulation := services.NewSimulationService(repo, sim, emitter, nil, checkouts, holds, locks, domain.DefaultDueSoonThresholdDays)

	server := NewRESTServer(ServerDeps{
		Repo:       repo,
		Clock:      sim,
		Checkouts:  checkouts,
		Waitlists:  waitlists,
		Holds:      holds,
		Simulation: simulation,
	})

	return &testServer{server: server, repo: repo, clk: real}
}

// createBorrowerWithKey inserts a borrower and returns it with a working
// API key.
func (ts *testServer) createBorrowerWithKey(t *testing.T, name string, tier domain.Tier) (*domain.Borrower, string) {
	t.Helper()

	key, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	hash, err := auth.HashAPIKey(key)
	require.NoError(t, err)

	b := &domain.Borrower{Name: name, Email: name + "@example.com", Tier: tier}
	id, err := db.InsertBorrower(ts.repo.DB, b, hash)
	require.NoError(t, err)
	b.ID = id
	return b, key
}

// do performs a request against the router with optional JSON body and key.
func (ts *testServer) do(t *testing.T, method, path string, body interface{}, apiKey string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	w := httptest.NewRecorder()
	ts.server.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	decodeJSON(t, w, &resp)
	require.Equal(t, "healthy", resp["status"])
}

func TestAuthRequired(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/books", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodGet, "/api/books", nil, "not-a-real-key")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
