package brave

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandreach/menuscout/internal/resilience"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-token", WithBaseURL(srv.URL))
}

func TestSearch(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/web/search", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "pizza warszawa", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("count"))

		var resp searchResponse
		resp.Web.Results = []Result{
			{Title: "Pizzeria Krakowska", URL: "https://www.pyszne.pl/restauracja/krakowska", Snippet: "Zamów pizzę"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	results, err := c.Search(context.Background(), "pizza warszawa", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Pizzeria Krakowska", results[0].Title)
}

func TestSearchQuotaExhausted(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.True(t, resilience.IsQuota(err))
}

func TestSearchTransientStatus(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
