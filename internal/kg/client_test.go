package kg

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aletheiafact/ai-task-worker/internal/config"
)

func TestClient_Search_ParsesHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wbsearchentities", r.URL.Query().Get("action"))
		assert.Equal(t, "Alice", r.URL.Query().Get("search"))
		_, _ = w.Write([]byte(`{"search":[{"id":"Q1","label":"Alice"}]}`))
	}))
	defer srv.Close()

	c := newClient(config.Config{KGBaseURL: srv.URL, KGUserAgent: "test"}, testEnvelope())
	hits, err := c.search(t.Context(), "Alice", "en", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Q1", hits[0].ID)
}

func TestClient_Search_NoResultsField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newClient(config.Config{KGBaseURL: srv.URL, KGUserAgent: "test"}, testEnvelope())
	hits, err := c.search(t.Context(), "Nobody", "en", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestClient_BatchFetch_IssuesSingleRequestPerCall(t *testing.T) {
	var fetchCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetchCount++
		_, _ = w.Write([]byte(`{"entities":{}}`))
	}))
	defer srv.Close()

	c := newClient(config.Config{KGBaseURL: srv.URL, KGUserAgent: "test"}, testEnvelope())

	ids := make([]string, 120)
	for i := range ids {
		ids[i] = "Q" + string(rune('A'+i%26))
	}
	_, err := c.batchFetch(t.Context(), ids, "en")
	require.NoError(t, err)
	assert.Equal(t, 1, fetchCount, "batchFetch itself issues a single request per call; chunking is the enricher's job")
}

func TestClient_InboundLinkCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"bindings":[{"count":{"value":"42"}}]}}`))
	}))
	defer srv.Close()

	c := newClient(config.Config{KGSparqlURL: srv.URL, KGUserAgent: "test"}, testEnvelope())
	n, err := c.inboundLinkCount(t.Context(), "Q1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}
