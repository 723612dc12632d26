package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAllCollectorsWithoutPanicking(t *testing.T) {
	require.NotPanics(t, func() {
		New()
	})
}

func TestNew_EachInstanceUsesItsOwnRegistry(t *testing.T) {
	require.NotPanics(t, func() {
		New()
		New()
	})
}

func TestHandler_ServesIncrementedCounters(t *testing.T) {
	m := New()
	m.DocumentsIngested.WithLabelValues("doc-1").Inc()
	m.ChunksPersisted.WithLabelValues("text").Add(3)
	m.IngestFailures.WithLabelValues("parsing_failed").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "manuals_documents_ingested_total"))
	require.True(t, strings.Contains(body, "manuals_chunks_persisted_total"))
	require.True(t, strings.Contains(body, "manuals_ingest_failures_total"))
}
