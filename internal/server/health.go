package server

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency probed by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type checkResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type readiness struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler pings every dependency concurrently and reports 503 if
// any is down.
func readinessHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			results = make(map[string]checkResult, len(checks))
		)

		for _, name := range slices.Sorted(maps.Keys(checks)) {
			wg.Go(func() {
				started := time.Now()
				err := checks[name].Ping(ctx)

				res := checkResult{Status: "up", LatencyMS: time.Since(started).Milliseconds()}
				if err != nil {
					res.Status = "down"
					res.Error = err.Error()
					log.Warn().Err(err).Str("check", name).Msg("Readiness check failed")
				}

				mu.Lock()
				results[name] = res
				mu.Unlock()
			})
		}
		wg.Wait()

		out := readiness{Status: "healthy", Checks: results}
		status := http.StatusOK
		for _, res := range results {
			if res.Status != "up" {
				out.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				break
			}
		}

		writeJSON(w, status, out)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
