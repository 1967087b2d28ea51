package cissync

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type staticAuth struct {
	userID string
	err    error
}

func (a staticAuth) GetUserID(*http.Request) (string, error) { return a.userID, a.err }

func newTestServer(t *testing.T, store Store, source SourceReader, auth ClientAuthenticator) *httptest.Server {
	t.Helper()
	svc, err := NewSyncService(store, source, &ServiceConfig{BatchSize: 5}, testLogger())
	require.NoError(t, err)
	handlers := NewHTTPSyncHandlers(svc, auth, testLogger())
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleRunSync_Unauthorized(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), newFakeSource(),
		staticAuth{err: http.ErrNoCookie})

	resp, err := http.Post(srv.URL+"/sync/holiday", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleRunSync_UnknownFlow(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), newFakeSource(), staticAuth{userID: "admin"})

	resp, err := http.Post(srv.URL+"/sync/bogus", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "invalid_request", body.Error)
}

func TestHandleRunSync_Synchronous(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource(holidayRowFixture("2024-01-01", "New Year's Day"))
	srv := newTestServer(t, store, source, staticAuth{userID: "admin"})

	resp, err := http.Post(srv.URL+"/sync/holiday", "application/json",
		strings.NewReader(`{"year": 2024}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var run SyncRunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	require.Equal(t, RunSuccess, run.Status)
	require.Equal(t, int64(1), run.Processed)
	require.Equal(t, "admin", *run.InitiatedBy)
}

func TestHandleRunSync_AsyncReturnsAccepted(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource(holidayRowFixture("2024-01-01", "New Year's Day"))
	srv := newTestServer(t, store, source, staticAuth{userID: "admin"})

	resp, err := http.Post(srv.URL+"/sync/holiday", "application/json",
		strings.NewReader(`{"async": true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var run SyncRunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	require.Equal(t, RunRunning, run.Status)

	require.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/sync/runs/" + run.ID)
		if err != nil {
			return false
		}
		defer r.Body.Close()
		var polled SyncRunResponse
		if json.NewDecoder(r.Body).Decode(&polled) != nil {
			return false
		}
		return polled.Status != RunRunning
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHandleRunSync_BadDate(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), newFakeSource(), staticAuth{userID: "admin"})

	resp, err := http.Post(srv.URL+"/sync/installation_request", "application/json",
		strings.NewReader(`{"start_date": "01/03/2024"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleGetRun_NotFoundAndBadID(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), newFakeSource(), staticAuth{userID: "admin"})

	resp, err := http.Get(srv.URL + "/sync/runs/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/sync/runs/00000000-0000-0000-0000-000000000001")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleListRuns(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource(holidayRowFixture("2024-01-01", "New Year's Day"))
	srv := newTestServer(t, store, source, staticAuth{userID: "admin"})

	resp, err := http.Post(srv.URL+"/sync/holiday", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/sync/runs?flow=holiday&limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list ListRunsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Runs, 1)
	require.Equal(t, FlowHoliday, list.Runs[0].FlowKind)

	resp, err = http.Get(srv.URL + "/sync/runs?flow=bogus")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleReapStaleRuns(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, newFakeSource(), staticAuth{userID: "admin"})

	resp, err := http.Post(srv.URL+"/sync/admin/reap?max_age=1h", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ReapResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, int64(0), body.Reaped)
	require.Equal(t, "1h0m0s", body.MaxAge)

	resp, err = http.Post(srv.URL+"/sync/admin/reap?max_age=banana", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
