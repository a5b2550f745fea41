package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cdas-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverReturning(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "reranker", req.Model)
		assert.Equal(t, "光合作用", req.Query)
		_, _ = w.Write([]byte(body))
	}))
}

func newTestClient(url string) Provider {
	return NewClient(config.RerankConfig{APIKey: "sk-test", BaseURL: url, Model: "reranker", TimeoutSeconds: 5})
}

var docs = []string{"d0", "d1", "d2"}

func TestRerank_NoDocuments(t *testing.T) {
	got := newTestClient("http://127.0.0.1:0").Rerank(context.Background(), "q", nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRerank_NoAPIKeyIsIdentity(t *testing.T) {
	p := NewClient(config.RerankConfig{})
	assert.Equal(t, []int{0, 1, 2, 3}, p.Rerank(context.Background(), "q", []string{"a", "b", "c", "d"}))
}

func TestRerank_SortsByDescendingScore(t *testing.T) {
	srv := serverReturning(t, `{"data":[
		{"index":0,"relevance_score":0.1},
		{"index":1,"relevance_score":0.9},
		{"index":2,"score":0.5}
	]}`)
	defer srv.Close()

	assert.Equal(t, []int{1, 2, 0}, newTestClient(srv.URL).Rerank(context.Background(), "光合作用", docs))
}

func TestRerank_TiesKeepResponseOrder(t *testing.T) {
	srv := serverReturning(t, `{"data":[{"index":2,"relevance_score":0.5},{"index":0,"relevance_score":0.5},{"index":1}]}`)
	defer srv.Close()

	assert.Equal(t, []int{2, 0, 1}, newTestClient(srv.URL).Rerank(context.Background(), "光合作用", docs))
}

func TestRerank_SkipsBadItems(t *testing.T) {
	srv := serverReturning(t, `{"data":[
		{"index":"x","relevance_score":0.99},
		{"index":1.5,"relevance_score":0.98},
		{"index":0,"relevance_score":"high"},
		"not an object",
		{"index":"2","relevance_score":"0.7"},
		{"index":7,"relevance_score":0.95},
		{"index":1,"relevance_score":0.2}
	]}`)
	defer srv.Close()

	assert.Equal(t, []int{2, 1}, newTestClient(srv.URL).Rerank(context.Background(), "光合作用", docs))
}

func TestRerank_FallsBackToIdentity(t *testing.T) {
	cases := map[string]string{
		"data is not a list":  `{"data":{"index":1}}`,
		"no usable items":     `{"data":[{"index":"?"}]}`,
		"all out of range":    `{"data":[{"index":9,"relevance_score":1},{"index":-1,"relevance_score":2}]}`,
		"malformed json":      `{"data":[`,
		"missing data member": `{}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := serverReturning(t, body)
			defer srv.Close()
			assert.Equal(t, []int{0, 1, 2}, newTestClient(srv.URL).Rerank(context.Background(), "光合作用", docs))
		})
	}
}

func TestRerank_HTTPErrorIsIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	assert.Equal(t, []int{0, 1, 2}, newTestClient(srv.URL).Rerank(context.Background(), "q", docs))
}
