package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apprentice-gateway/internal/config"
	"apprentice-gateway/internal/observability"
	"apprentice-gateway/internal/provider"
	"apprentice-gateway/internal/provider/factory"
	"apprentice-gateway/internal/router"
)

type fixture struct {
	cfg      config.Config
	handler  http.Handler
	upstream *httptest.Server
	hits     *atomic.Int32
}

func newFixture(t *testing.T, upstream http.HandlerFunc, mutate ...func(*config.Config)) *fixture {
	t.Helper()

	var hits atomic.Int32
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		upstream(w, r)
	}))
	t.Cleanup(up.Close)

	cfg := config.Default()
	cfg.Gateway.Retry.Delay = 0
	cfg.Server.RequestTimeout = 2 * time.Second
	p := cfg.Providers["openrouter"]
	p.BaseURL = up.URL
	cfg.Providers["openrouter"] = p
	for _, m := range mutate {
		m(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()

	registry := provider.NewRegistry()
	require.NoError(t, factory.RegisterConfiguredProviders(cfg, registry))
	rt, err := router.New(cfg, registry, logger, metrics)
	require.NoError(t, err)

	srv, err := New(cfg, rt, metrics, logger)
	require.NoError(t, err)

	return &fixture{cfg: cfg, handler: srv.Handler(), upstream: up, hits: &hits}
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func chatOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" Hello from upstream "}}]}`))
}

func TestChat_Options(t *testing.T) {
	f := newFixture(t, chatOK)

	rec := f.do(http.MethodOptions, "/api/chat", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "x-openrouter-key")
}

func TestChat_BrowserPreflight(t *testing.T) {
	f := newFixture(t, chatOK)

	rec := f.do(http.MethodOptions, "/api/chat", "", map[string]string{
		"Origin":                         "https://site.example",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "content-type, x-openrouter-key",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Zero(t, f.hits.Load())
}

func TestChat_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, chatOK)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := f.do(method, "/api/chat", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.Equal(t, "Method not allowed", decode(t, rec)["error"], method)
	}
}

func TestChat_MissingMessage(t *testing.T) {
	f := newFixture(t, chatOK)

	for _, body := range []string{`{}`, `{"message":"   "}`, `{"message":42}`, ``} {
		rec := f.do(http.MethodPost, "/api/chat", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, map[string]string{"error": "Missing message"}, decode(t, rec), body)
	}
	assert.Zero(t, f.hits.Load())
}

func TestChat_MalformedBody(t *testing.T) {
	f := newFixture(t, chatOK)

	rec := f.do(http.MethodPost, "/api/chat", `{"message":`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestChat_LongMessageIsTruncatedNotRejected(t *testing.T) {
	var sent atomic.Value
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		sent.Store(raw)
		chatOK(w, r)
	})

	long := strings.Repeat("a", 70000)
	rec := f.do(http.MethodPost, "/api/chat", `{"message":"`+long+`"}`, map[string]string{"x-openrouter-key": "k"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Hello from upstream", decode(t, rec)["reply"])

	var payload struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(sent.Load().([]byte), &payload))
	user := payload.Messages[len(payload.Messages)-1]
	assert.Equal(t, "user", user.Role)
	assert.Equal(t, strings.Repeat("a", f.cfg.Gateway.MaxMessageLength), user.Content)
}

func TestChat_BodyOverCap(t *testing.T) {
	f := newFixture(t, chatOK)

	huge := strings.Repeat("a", maxBodyBytes+1)
	rec := f.do(http.MethodPost, "/api/chat", `{"message":"`+huge+`"}`, map[string]string{"x-openrouter-key": "k"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Request body too large", decode(t, rec)["error"])
	assert.Zero(t, f.hits.Load())
}

func TestChat_NoCredentialStill200(t *testing.T) {
	f := newFixture(t, chatOK)

	rec := f.do(http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.cfg.Gateway.Replies.MissingCredential, decode(t, rec)["reply"])
	assert.Contains(t, decode(t, rec)["reply"], "API key")
	assert.Zero(t, f.hits.Load())
}

func TestChat_Success(t *testing.T) {
	f := newFixture(t, chatOK)

	rec := f.do(http.MethodPost, "/api/chat", `{"message":"hi"}`, map[string]string{"x-openrouter-key": "k"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"reply": "Hello from upstream"}, decode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestChat_BodyKeyAndTrailingSlash(t *testing.T) {
	f := newFixture(t, chatOK)

	rec := f.do(http.MethodPost, "/api/chat/", `{"message":"hi","apiKey":"k"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello from upstream", decode(t, rec)["reply"])
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestChat_UpstreamFailureStill200(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Model is currently loading"}`))
	})

	rec := f.do(http.MethodPost, "/api/chat", `{"message":"hi"}`, map[string]string{"x-openrouter-key": "k"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.cfg.Gateway.Replies.UpstreamFailure, decode(t, rec)["reply"])
	assert.Equal(t, int32(f.cfg.Gateway.Retry.MaxAttempts), f.hits.Load())
}

func TestChat_UnrecognizedShapeStill200(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"object":"chat.completion","choices":[]}`))
	})

	rec := f.do(http.MethodPost, "/api/chat", `{"message":"hi"}`, map[string]string{"x-openrouter-key": "k"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.cfg.Gateway.Replies.Unrecognized, decode(t, rec)["reply"])
}

func TestChat_CustomRouteAndHeader(t *testing.T) {
	f := newFixture(t, chatOK, func(cfg *config.Config) {
		cfg.Server.Route = "/v1/reply"
		cfg.Server.CredentialHeader = "x-upstream-key"
	})

	rec := f.do(http.MethodPost, "/v1/reply", `{"message":"hi"}`, map[string]string{"x-upstream-key": "k"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello from upstream", decode(t, rec)["reply"])

	rec = f.do(http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, chatOK)

	rec := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "openrouter", health["provider"])
	assert.Equal(t, false, health["credential_configured"])

	f.do(http.MethodPost, "/api/chat", `{"message":"hi"}`, map[string]string{"x-openrouter-key": "k"})

	rec = f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `gateway_replies_total{outcome="succeeded"} 1`)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(config.Default(), nil, observability.NewMetrics(), nil)
	assert.Error(t, err)
}
