package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semptify/backend/internal/cache"
	"github.com/semptify/backend/internal/contextloop"
	"github.com/semptify/backend/internal/events"
	"github.com/semptify/backend/internal/extract"
	"github.com/semptify/backend/internal/intake"
	"github.com/semptify/backend/internal/intensity"
	"github.com/semptify/backend/internal/laws"
	"github.com/semptify/backend/internal/storage"
	"github.com/semptify/backend/internal/vault"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	bus := events.NewBus(events.Options{})
	loop := contextloop.NewLoop(bus, intensity.NewTracker(100), contextloop.Options{})
	provider, err := storage.NewLocalProvider(t.TempDir())
	require.NoError(t, err)
	audit, err := vault.NewAuditLog(t.TempDir(), nil)
	require.NoError(t, err)
	engine := vault.NewEngine(vault.NewRegistry(), audit, bus, provider, nil, nil)
	lawEngine := laws.NewEngine()
	pipeline := intake.NewPipeline(engine, intake.NewKeywordClassifier(), extract.New(), lawEngine, bus, intake.Options{})

	srv := NewServer(bus, loop, engine, audit, pipeline, lawEngine, cache.NewMemoryStore(), time.Second, nil)
	ts := httptest.NewServer(srv.Router())

	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = loop.Close(ctx)
		_ = bus.Close(ctx)
		audit.Close()
	})
	return srv, ts
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadThenState(t *testing.T) {
	_, ts := newTestServer(t)

	body := strings.NewReader("NOTICE TO QUIT: you must vacate by 12/01/2030. Eviction will follow.")
	req, _ := http.NewRequest(http.MethodPost,
		ts.URL+"/api/v1/vault/u1/documents?filename=notice.txt", body)
	req.Header.Set("Content-Type", "text/plain")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result intake.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, strings.HasPrefix(result.Document.DocID, "SEM-"))

	// The loop picks the analysis up asynchronously.
	require.Eventually(t, func() bool {
		r, err := http.Get(ts.URL + "/api/v1/state/u1")
		if err != nil {
			return false
		}
		defer r.Body.Close()
		var state contextloop.StateView
		if json.NewDecoder(r.Body).Decode(&state) != nil {
			return false
		}
		return state.Summary.ActiveIssues > 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestStateIsCached(t *testing.T) {
	_, ts := newTestServer(t)

	r1, err := http.Get(ts.URL + "/api/v1/state/u2")
	require.NoError(t, err)
	r1.Body.Close()
	assert.Empty(t, r1.Header.Get("X-Cache"))

	r2, err := http.Get(ts.URL + "/api/v1/state/u2")
	require.NoError(t, err)
	r2.Body.Close()
	assert.Equal(t, "hit", r2.Header.Get("X-Cache"))
}

func TestDeleteDeniedForStranger(t *testing.T) {
	_, ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodDelete,
		ts.URL+"/api/v1/vault/u1/documents/SEM-2025-000001-AAAA", nil)
	req.Header.Set("X-User-ID", "intruder")
	req.Header.Set("X-User-Role", "user")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEmitEventValidation(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/events/u1", "application/json",
		strings.NewReader(`{"type":"no_such_event","data":{}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := http.Post(ts.URL+"/api/v1/events/u1", "application/json",
		strings.NewReader(`{"type":"action_taken","data":{"action":"called_landlord"}}`))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp2.StatusCode)
}

func TestWSStatusListsTaxonomy(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ws/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		EventTypes []string `json:"event_types"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.EventTypes, "document_uploaded")
	assert.Contains(t, body.EventTypes, "intensity_spike")
}
