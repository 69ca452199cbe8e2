package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pluk/internal/auth"
	"github.com/sakif/pluk/internal/collab"
	"github.com/sakif/pluk/internal/config"
)

type stubWeather struct{}

func (stubWeather) Current(context.Context, float64, float64) (collab.Reading, error) {
	return collab.Reading{TemperatureC: 18}, nil
}

type stubPlaces struct{}

func (stubPlaces) Nearby(context.Context, float64, float64, int) ([]collab.Place, error) {
	return nil, nil
}

func testConfig() config.Config {
	return config.Config{
		Port:      8080,
		Backend:   config.BackendSession,
		Identity:  config.IdentityLocal,
		DBPath:    ":memory:",
		JWTSecret: "test-secret-at-least-16-chars!!",
	}
}

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := New(cfg, logger, Options{
		Weather:    stubWeather{},
		Places:     stubPlaces{},
		Identifier: collab.NewStubIdentifier(0),
		Passwords:  auth.NewPasswordServiceForTest(4),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func call(t *testing.T, h http.Handler, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// smoke registers, adds a plant and reads it back through the full router.
func smoke(t *testing.T, h http.Handler) {
	t.Helper()

	rr := call(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(t, h, http.MethodPost, "/api/auth/register", map[string]string{"email": "ana@x.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)

	rr = call(t, h, http.MethodPost, "/api/plants", map[string]string{"type": "orquidea", "nickname": "Lia"}, cookies...)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = call(t, h, http.MethodGet, "/api/plants", nil, cookies...)
	require.Equal(t, http.StatusOK, rr.Code)
	var plants []map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&plants))
	require.Len(t, plants, 1)
	assert.Equal(t, "Lia", plants[0]["nickname"])
	// real clock: usually a few microseconds have passed since creation
	assert.Contains(t, []any{"2d 23h", "3d 0h"}, plants[0]["waterIn"])

	rr = call(t, h, http.MethodGet, "/api/environment", nil, cookies...)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(t, h, http.MethodPost, "/api/recovery", nil)
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestServer_SessionBackend(t *testing.T) {
	s := newTestServer(t, testConfig())
	assert.Nil(t, s.db)
	smoke(t, s.Handler())
}

func TestServer_RemoteBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = config.BackendRemote

	s := newTestServer(t, cfg)
	require.NotNil(t, s.db)
	smoke(t, s.Handler())
}

func TestServer_RemoteBackendWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Backend = config.BackendRemote
	cfg.RedisAddr = mr.Addr()
	cfg.RedisChannelPrefix = "test:plants:"

	s := newTestServer(t, cfg)
	require.NotNil(t, s.redis)
	smoke(t, s.Handler())
}

func TestServer_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.Backend = config.BackendRemote
	cfg.RedisAddr = addr

	_, err := New(cfg, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})), Options{})
	assert.Error(t, err)
}

func TestServer_RemoteIdentityRecoveryIsEmailOnly(t *testing.T) {
	var sent []string
	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if email, ok := body["email"].(string); ok {
			sent = append(sent, email)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"ana@x.com"}`))
	}))
	t.Cleanup(identity.Close)

	cfg := testConfig()
	cfg.Identity = config.IdentityRemote
	cfg.IdentityBaseURL = identity.URL
	cfg.IdentityAPIKey = "key"

	h := newTestServer(t, cfg).Handler()

	rr := call(t, h, http.MethodPost, "/api/recovery", nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	var view map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
	assert.Equal(t, true, view["byEmail"])

	rr = call(t, h, http.MethodPost, "/api/recovery/"+view["id"].(string)+"/email", map[string]string{"email": "ana@x.com"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
	assert.Equal(t, "done", view["step"])
	assert.Equal(t, []string{"ana@x.com"}, sent)
}

func TestServer_CloseIsIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = config.BackendRemote
	s := newTestServer(t, cfg)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
