package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apprentice-gateway/internal/config"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics()

	m.ObserveAttempt("openrouter", "transient", 100*time.Millisecond)
	m.ObserveAttempt("openrouter", "success", 200*time.Millisecond)
	m.ObserveRetry("openrouter")
	m.ObserveReply("succeeded")
	m.ObserveCredentialSource("header")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamAttemptsTotal.WithLabelValues("openrouter", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRetriesTotal.WithLabelValues("openrouter")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepliesTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CredentialSources.WithLabelValues("header")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gateway_upstream_attempts_total")
}

func TestNewLogger_TagsRecords(t *testing.T) {
	cfg := config.Default()
	cfg.Deployment.Env = "preview"

	var buf bytes.Buffer
	newLogger(&buf, cfg).Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "apprentice-gateway", record["service"])
	assert.Equal(t, "preview", record["env"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
}
