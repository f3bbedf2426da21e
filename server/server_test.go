package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poof_palace_engine/config"
	"poof_palace_engine/logging"
	"poof_palace_engine/monitoring"
	"poof_palace_engine/orchestrator"
	"poof_palace_engine/publisher"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	cfg := config.FromMap(map[string]any{
		"MASCOT_NAME":          "Lil Poof",
		"TWITTER_BEARER_TOKEN": "super-secret-bearer",
	})
	srv, err := New(cfg, monitoring.NewMetrics(), logging.Discard())
	require.NoError(t, err)
	return srv, srv.Routes()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthLive(t *testing.T) {
	_, h := newTestServer(t)
	rec := get(t, h, "/health/live")
	require.Equal(t, http.StatusOK, rec.Code)

	var body liveResp
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
}

func TestConfigIsMasked(t *testing.T) {
	_, h := newTestServer(t)
	rec := get(t, h, "/api/config")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.NotContains(t, rec.Body.String(), "super-secret-bearer")

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, config.MaskedValue, body["TWITTER_BEARER_TOKEN"])
	assert.Equal(t, "Lil Poof", body["MASCOT_NAME"])
}

func TestCycles(t *testing.T) {
	srv, h := newTestServer(t)
	var rec orchestrator.Recorder = srv
	for i := 0; i < 3; i++ {
		rec.Record(orchestrator.CycleReport{
			ID:   fmt.Sprintf("cycle-%d", i),
			Kind: orchestrator.KindContent,
			Results: []publisher.Result{
				{Platform: "instagram", OK: true},
			},
		})
	}

	resp := get(t, h, "/api/cycles")
	require.Equal(t, http.StatusOK, resp.Code)
	var body cyclesResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Cycles, 3)
	assert.Equal(t, "cycle-2", body.Cycles[0].ID)
	assert.Equal(t, "cycle-0", body.Cycles[2].ID)

	resp = get(t, h, "/api/cycles?limit=1")
	require.Equal(t, http.StatusOK, resp.Code)
	body = cyclesResp{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Cycles, 1)
	assert.Equal(t, "cycle-2", body.Cycles[0].ID)

	resp = get(t, h, "/api/cycles?limit=abc")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestReportStoreDropsOldest(t *testing.T) {
	store := newStore(2)
	for i := 0; i < 5; i++ {
		store.add(orchestrator.CycleReport{ID: fmt.Sprint(i)})
	}
	got := store.latest(0)
	require.Len(t, got, 2)
	assert.Equal(t, "4", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t)
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestServe_StopsWithContext(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)
}
