package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mlop-ai/pluto/internal/client"
	"github.com/mlop-ai/pluto/internal/telemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPeerTimeout = 2 * time.Second
	maxConcurrentPeers = 8
)

// Aggregator collects version info from this service and its peers.
type Aggregator struct {
	local      Info
	peers      []Peer
	httpClient *http.Client
	timeout    time.Duration
	metrics    *telemetry.Metrics
}

// NewAggregator creates an aggregator. A nil httpClient gets an in-memory
// caching client so peers answering with Cache-Control are not re-queried.
func NewAggregator(local Info, peers []Peer, httpClient *http.Client, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = defaultPeerTimeout
	}
	if httpClient == nil {
		httpClient = client.NewCachingHTTPClient("", timeout)
	}

	return &Aggregator{
		local:      local,
		peers:      peers,
		httpClient: httpClient,
		timeout:    timeout,
		metrics:    telemetry.GetMetrics(),
	}
}

// Local returns this service's info.
func (a *Aggregator) Local() Info {
	return a.local
}

// All returns the local info followed by every peer that answered, in
// configuration order. Failing peers are logged and omitted.
func (a *Aggregator) All(ctx context.Context) []Info {
	results := make([]*Info, len(a.peers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPeers)

	for i, peer := range a.peers {
		g.Go(func() error {
			info, err := a.fetch(gctx, peer)
			if err != nil {
				a.metrics.VersionPeerErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("service", peer.Name)))
				log.Warn().Err(err).Str("service", peer.Name).Msg("Failed to fetch peer version")
				return nil
			}
			results[i] = info
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Info, 0, len(a.peers)+1)
	out = append(out, a.local)
	for _, info := range results {
		if info != nil {
			out = append(out, *info)
		}
	}
	return out
}

func (a *Aggregator) fetch(ctx context.Context, peer Peer) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(peer.URL, "/")+"/version", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer returned HTTP %d", resp.StatusCode)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode peer version: %w", err)
	}
	if info.Service == "" {
		info.Service = peer.Name
	}

	log.Debug().Str("service", peer.Name).Bool("cached", client.FromCache(resp)).Msg("Fetched peer version")
	return &info, nil
}

type allResponse struct {
	Services []Info `json:"services"`
}

// LocalHandler serves GET /version.
func (a *Aggregator) LocalHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=60")
		writeJSON(w, a.local)
	})
}

// AllHandler serves GET /api/version/all.
func (a *Aggregator) AllHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, allResponse{Services: a.All(r.Context())})
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write version response")
	}
}
