package rain

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixrain/backend/internal/cache"
	"github.com/matrixrain/backend/internal/feed"
	"github.com/matrixrain/backend/internal/feedlist"
)

const testFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <item><title>Hello</title><description>World</description></item>
</channel></rss>`

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.t
}

// Builds a server whose feed list points at the given upstream bodies, with
// a hand-movable clock on the cache.
func newTestServer(t *testing.T, upstreamBodies ...string) (*Server, *fakeClock) {
	t.Helper()

	var urls []string
	for _, body := range upstreamBodies {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}))
		t.Cleanup(upstream.Close)
		urls = append(urls, upstream.URL)
	}

	feedsJSON, err := json.Marshal(map[string][]string{"feeds": urls})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rss_feeds.json")
	require.NoError(t, os.WriteFile(path, feedsJSON, 0o644))

	clk := &fakeClock{t: time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)}
	store := cache.New(300 * time.Second).WithClock(clk.Now)

	return NewServer(Config{Port: 0}, feedlist.New(path), feed.NewAggregator(time.Second), store), clk
}

func getContent(t *testing.T, s *Server) ContentResponse {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rss", nil)
	require.NoError(t, s.handleContent(rec, req))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ContentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	return resp
}

func TestHandleContent_MissThenHit(t *testing.T) {
	s, _ := newTestServer(t, testFeed)

	first := getContent(t, s)
	assert.False(t, first.Cached)
	assert.Equal(t, []string{"HELLO", "WORLD"}, first.Texts)
	assert.Equal(t, 2, first.Count)

	second := getContent(t, s)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Texts, second.Texts)
}

func TestHandleContent_AllSourcesFailing(t *testing.T) {
	s, _ := newTestServer(t, `<rss><channel><item><title>Oops`)

	resp := getContent(t, s)
	assert.False(t, resp.Cached)
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Texts) // serialized as [], not null
	assert.Empty(t, resp.Texts)
}

func TestHandleContent_EmptyCycleKeepsStaleEntry(t *testing.T) {
	s, clk := newTestServer(t, `<rss><channel><item><title>Oops`)

	// A stale but informative entry is already in the cache.
	s.store.Put([]string{"KEEP"})
	before := s.store.CurrentStatus()
	clk.t = clk.t.Add(400 * time.Second)

	resp := getContent(t, s)
	assert.False(t, resp.Cached)
	assert.Equal(t, 0, resp.Count)

	// The failed cycle must not have clobbered the old entry.
	after := s.store.CurrentStatus()
	assert.Equal(t, before.Count, after.Count)
	assert.Equal(t, *before.Timestamp, *after.Timestamp)
}

func TestHandleCacheStatus(t *testing.T) {
	s, _ := newTestServer(t, testFeed)
	getContent(t, s) // populate

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/cache/status", nil)
	require.NoError(t, s.handleCacheStatus(rec, req))

	var status cache.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))

	assert.True(t, status.Cached)
	assert.Equal(t, 2, status.Count)
	assert.Equal(t, 300, status.TTLSeconds)
	require.NotNil(t, status.AgeSeconds)
	assert.Equal(t, max(0, status.TTLSeconds-*status.AgeSeconds), status.RemainingTTL)
}

func TestHandleCacheClear(t *testing.T) {
	s, _ := newTestServer(t, testFeed)
	getContent(t, s) // populate

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/cache/clear", nil)
	require.NoError(t, s.handleCacheClear(rec, req))

	var resp ClearResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cache_cleared", resp.Status)
	assert.NotEmpty(t, resp.Message)

	status := s.store.CurrentStatus()
	assert.False(t, status.Cached)
	assert.Equal(t, 0, status.Count)
	assert.Nil(t, status.Timestamp)
}

func TestCORSHeaders(t *testing.T) {
	s, _ := newTestServer(t, testFeed)

	srv := httptest.NewServer(s.Server.Handler)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/rss", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
