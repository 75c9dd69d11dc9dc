package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bruj0/spec-kitty-sub000/internal/engine"
	"github.com/bruj0/spec-kitty-sub000/internal/events"
	"github.com/bruj0/spec-kitty-sub000/pkg/auth"
	"github.com/bruj0/spec-kitty-sub000/pkg/feature"
)

type fakeSource struct {
	features []feature.Feature
	statuses map[string]*engine.FeatureStatus
	err      error
}

func (f *fakeSource) Features() ([]feature.Feature, error) {
	return f.features, f.err
}

func (f *fakeSource) Status(_ context.Context, slug string) (*engine.FeatureStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	status, ok := f.statuses[slug]
	if !ok {
		return nil, &feature.NotFoundError{Slug: slug}
	}
	return status, nil
}

func newTestServer(t *testing.T, source StatusSource, streams *EventStreamer, cfg Config) *Server {
	t.Helper()
	srv, err := NewServer(source, streams, zap.NewNop(), cfg)
	require.NoError(t, err)
	return srv
}

func TestNewServer_RequiredDeps(t *testing.T) {
	_, err := NewServer(nil, nil, zap.NewNop(), Config{})
	require.Error(t, err)

	_, err = NewServer(&fakeSource{}, nil, nil, Config{})
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeSource{}, nil, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestFeatures(t *testing.T) {
	source := &fakeSource{features: []feature.Feature{
		{Slug: "user-auth", TargetBranch: "user-auth"},
		{Slug: "payments", TargetBranch: "payments"},
	}}
	srv := newTestServer(t, source, nil, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/features", nil)
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp FeaturesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Features, 2)
	assert.Equal(t, "user-auth", resp.Features[0].Slug)
}

func TestStatus(t *testing.T) {
	source := &fakeSource{statuses: map[string]*engine.FeatureStatus{
		"user-auth": {
			Feature:      "user-auth",
			Target:       "user-auth",
			TargetExists: true,
			Units: []engine.UnitStatus{
				{ID: "WP01", Lane: "done"},
				{ID: "WP02", Lane: "planned", Ready: true},
			},
			Ready: []string{"WP02"},
		},
	}}
	srv := newTestServer(t, source, nil, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/features/user-auth/status", nil)
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var status engine.FeatureStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, []string{"WP02"}, status.Ready)
	require.Len(t, status.Units, 2)
	assert.Equal(t, "done", status.Units[0].Lane)
}

func TestStatus_UnknownFeature(t *testing.T) {
	srv := newTestServer(t, &fakeSource{statuses: map[string]*engine.FeatureStatus{}}, nil, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/features/nope/status", nil)
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatus_InternalError(t *testing.T) {
	srv := newTestServer(t, &fakeSource{err: errors.New("boom")}, nil, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/features/user-auth/status", nil)
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAPIKeyGuard(t *testing.T) {
	srv := newTestServer(t, &fakeSource{}, nil, Config{APIKeys: []string{"sekrit"}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/features", nil)
	srv.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/features", nil)
	req.Header.Set(auth.HeaderAPIKey, "sekrit")
	srv.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for probes.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEvents_DisabledBus(t *testing.T) {
	srv := newTestServer(t, &fakeSource{}, nil, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/user-auth", nil)
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEvents_StreamsBusEvents(t *testing.T) {
	bus, err := events.NewBus(events.Config{Logger: zap.NewNop()})
	require.NoError(t, err)
	defer bus.Close()

	streams := NewEventStreamer(bus, zap.NewNop())
	srv := newTestServer(t, &fakeSource{}, streams, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/user-auth", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Echo().ServeHTTP(rec, req)
	}()

	// Let the subscription come up, then publish and close the client.
	time.Sleep(200 * time.Millisecond)
	bus.RecordChanged("user-auth", "WP01", "tasks/WP01-login.md")
	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end on client disconnect")
	}

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "event: record"), "body: %q", body)
	assert.Contains(t, body, "WP01")
}
