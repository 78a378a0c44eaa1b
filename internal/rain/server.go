// Package rain is the HTTP service: it proxies the configured RSS feeds
// through the cache so the browser frontend never fetches cross-origin.
package rain

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/sync/singleflight"

	"github.com/matrixrain/backend/internal/cache"
	"github.com/matrixrain/backend/internal/feed"
	"github.com/matrixrain/backend/internal/feedlist"
	"github.com/matrixrain/backend/internal/serverutil"
)

type (
	// Server answers the frontend's content and cache-admin requests.
	Server struct {
		*http.Server

		feeds *feedlist.Loader
		agg   *feed.Aggregator
		store *cache.Cache

		flight singleflight.Group
	}

	Config struct {
		Port int
	}
)

// ContentResponse is the /api/rss payload. The fields listed are the whole
// contract with the frontend.
type ContentResponse struct {
	Texts     []string  `json:"texts"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
	Cached    bool      `json:"cached"`
}

// ClearResponse is the /api/cache/clear payload.
type ClearResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func NewServer(cfg Config, feeds *feedlist.Loader, agg *feed.Aggregator, store *cache.Cache) *Server {
	r := serverutil.ErrRouter{Router: mux.NewRouter()}

	srvr := &Server{
		feeds: feeds,
		agg:   agg,
		store: store,
		Server: &http.Server{
			Addr:        fmt.Sprintf(":%d", cfg.Port),
			ReadTimeout: 5 * time.Second,
			// A cold cache waits on the full fetch fan-out before it can
			// answer, so the write side gets far more room than reads.
			WriteTimeout: 2 * time.Minute,
			// The whole point of this server is dodging cross-origin
			// restrictions, so answer any origin.
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{"*"}),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type"}),
			)(r),
		},
	}

	r.Use(serverutil.AccessLogMiddleware)
	r.HandleFuncE("/api/rss", srvr.handleContent).Methods(http.MethodGet)
	r.HandleFuncE("/api/cache/status", srvr.handleCacheStatus).Methods(http.MethodGet)
	r.HandleFuncE("/api/cache/clear", srvr.handleCacheClear).Methods(http.MethodGet)

	return srvr
}

// handleContent serves the aggregated token list, from cache while fresh.
// On a miss it runs a full aggregation cycle; concurrent misses coalesce
// onto a single cycle. Per-source failures never surface here: the response
// is always 200 with whatever tokens were collected, even none.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	if entry, ok := s.store.Get(); ok {
		slog.InfoContext(ctx, "serving cached rss content", "count", entry.Count)

		return serverutil.WriteJSON(w, http.StatusOK, ContentResponse{
			Texts:     entry.Texts,
			Count:     entry.Count,
			Timestamp: entry.CapturedAt,
			Cached:    true,
		})
	}

	// The cycle is detached from the request's cancellation: a client
	// giving up must not abort work that other coalesced requests (and the
	// cache) will still use.
	cycleCtx := context.WithoutCancel(ctx)
	v, _, _ := s.flight.Do("content", func() (any, error) {
		slog.InfoContext(cycleCtx, "cache miss, fetching fresh rss data")

		sources := s.feeds.Load()
		texts := feed.Texts(s.agg.Aggregate(cycleCtx, sources))

		// An empty cycle keeps its hands off the cache: a stale entry is
		// still more useful than nothing.
		if len(texts) > 0 {
			s.store.Put(texts)
			slog.InfoContext(cycleCtx, "updated rss cache", "count", len(texts))
		}

		return texts, nil
	})

	texts := v.([]string)
	if texts == nil {
		texts = []string{}
	}

	return serverutil.WriteJSON(w, http.StatusOK, ContentResponse{
		Texts:     texts,
		Count:     len(texts),
		Timestamp: time.Now(),
		Cached:    false,
	})
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) error {
	return serverutil.WriteJSON(w, http.StatusOK, s.store.CurrentStatus())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) error {
	s.store.Clear()
	slog.InfoContext(r.Context(), "rss cache cleared")

	return serverutil.WriteJSON(w, http.StatusOK, ClearResponse{
		Status:  "cache_cleared",
		Message: "RSS cache has been cleared",
	})
}
