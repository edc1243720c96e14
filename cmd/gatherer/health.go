package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/kucoin-data/internal/connection"
	"github.com/rickgao/kucoin-data/internal/market"
	"github.com/rickgao/kucoin-data/internal/version"
	"github.com/rickgao/kucoin-data/internal/writer"
)

// pinger is the subset of pgxpool.Pool used by the health check.
type pinger interface {
	Ping(ctx context.Context) error
}

// feedStatus is implemented by connection.Supervisor.
type feedStatus interface {
	Stats() connection.SupervisorStats
	Err() error
}

// healthDeps are the components reported by /health.
type healthDeps struct {
	db       pinger
	registry market.Registry
	feeds    map[string]feedStatus
	writers  map[string]func() writer.WriterMetrics
	sink     *writer.EventSink
}

// createHealthHandler creates the HTTP handler for health checks and
// debugging. metricsPath/metricsHandler are mounted when non-nil.
func createHealthHandler(deps healthDeps, metricsPath string, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Version    string         `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.String(),
			Components: make(map[string]any),
		}

		if deps.db != nil {
			if err := deps.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["timescaledb"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["timescaledb"] = "connected"
			}
		}

		for name, feed := range deps.feeds {
			stats := feed.Stats()
			c := map[string]any{
				"state":         stats.State.String(),
				"sessions":      stats.Sessions,
				"reconnects":    stats.Reconnects,
				"subscriptions": stats.Subscriptions,
			}
			if err := feed.Err(); err != nil {
				c["error"] = err.Error()
				health.Status = "unhealthy"
			} else if !stats.Connected && health.Status == "healthy" {
				health.Status = "degraded"
			}
			health.Components["feed_"+name] = c
		}

		if deps.registry != nil {
			n := len(deps.registry.EnabledSymbols(""))
			health.Components["symbol_registry"] = map[string]any{"tradable": n}
			if n == 0 && health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		for name, stats := range deps.writers {
			health.Components["writer_"+name] = stats()
		}
		if deps.sink != nil {
			health.Components["sink"] = deps.sink.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/symbols", func(w http.ResponseWriter, r *http.Request) {
		if deps.registry == nil {
			http.NotFound(w, r)
			return
		}
		symbols := deps.registry.EnabledSymbols(r.URL.Query().Get("market"))

		// Limit to first 100 for debugging
		shown := symbols
		if len(shown) > 100 {
			shown = shown[:100]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":   len(symbols),
			"showing": len(shown),
			"symbols": shown,
		})
	})

	if metricsHandler != nil {
		mux.Handle(metricsPath, metricsHandler)
	}

	return mux
}
