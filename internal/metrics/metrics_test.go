package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreIndependentPerInstance(t *testing.T) {
	a := New()
	b := New()

	a.Queries.WithLabelValues("scientist", OutcomeOK).Inc()
	a.RetrievalDegraded.WithLabelValues("search").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Queries.WithLabelValues("scientist", OutcomeOK)))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Queries.WithLabelValues("scientist", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.RetrievalDegraded.WithLabelValues("search")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.GenerationErrors.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bioexplorer_generation_errors_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.IngestedChunks.Add(3)
	m.SkippedDocuments.Inc()

	path := filepath.Join(t.TempDir(), "ingest.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bioexplorer_ingested_chunks_total 3")
	assert.Contains(t, string(data), "bioexplorer_skipped_documents_total 1")
}
