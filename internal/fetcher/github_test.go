package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/COS301-SE-2025/devx360-metrics/internal/tokenpool"
)

// newTestFetcher points a fetcher at a local stub of the GitHub API
func newTestFetcher(t *testing.T, mux *http.ServeMux) *GitHubFetcher {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	f := NewGitHubFetcher(tokenpool.NewPool([]string{"test-token"}))
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	f.apiBase = base
	return f
}

func respond(v interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

func TestFetchExcludesIssuesOpenedBeforeWindow(t *testing.T) {
	now := time.Now().UTC()
	issues := []map[string]interface{}{
		{
			// Opened long before the window but closed inside it; the
			// updated-since listing returns it anyway.
			"number":     1,
			"title":      "ancient flaky login bug",
			"created_at": now.AddDate(0, 0, -400).Format(time.RFC3339),
			"closed_at":  now.AddDate(0, 0, -2).Format(time.RFC3339),
		},
		{
			"number":     2,
			"title":      "checkout incident",
			"created_at": now.AddDate(0, 0, -10).Format(time.RFC3339),
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/api", respond(map[string]interface{}{
		"full_name":      "acme/api",
		"default_branch": "main",
	}))
	mux.HandleFunc("/repos/acme/api/commits", respond([]interface{}{}))
	mux.HandleFunc("/repos/acme/api/pulls", respond([]interface{}{}))
	mux.HandleFunc("/repos/acme/api/releases", respond([]interface{}{}))
	mux.HandleFunc("/repos/acme/api/tags", respond([]interface{}{}))
	mux.HandleFunc("/repos/acme/api/issues", respond(issues))
	mux.HandleFunc("/repos/acme/api/languages", respond(map[string]int{"Go": 1000}))
	mux.HandleFunc("/repos/acme/api/contributors", respond([]interface{}{}))
	mux.HandleFunc("/repos/acme/api/git/trees/main", respond(map[string]interface{}{
		"tree": []interface{}{},
	}))

	f := newTestFetcher(t, mux)

	res, err := f.Fetch(context.Background(), "acme/api", 90)
	require.NoError(t, err)

	require.Len(t, res.Window.Issues, 1)
	assert.Equal(t, 2, res.Window.Issues[0].Number)
	assert.Equal(t, "acme/api", res.Snapshot.FullName)
}
