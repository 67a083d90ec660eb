package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mlop-ai/pluto/internal/telemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const libraryName = "pluto-server"

// PostHogConfig configures the PostHog client.
type PostHogConfig struct {
	// Host is the PostHog ingestion origin. Default: https://us.i.posthog.com
	Host   string
	APIKey string

	Batch BatcherConfig

	// Timeout bounds a single send attempt. Default: 10s
	Timeout time.Duration
	// MaxTries bounds attempts per batch including the first. Default: 3
	MaxTries uint
}

func (c *PostHogConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "https://us.i.posthog.com"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxTries == 0 {
		c.MaxTries = 3
	}
	c.Batch.applyDefaults()
}

func (c *PostHogConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("posthog api key is required")
	}
	if _, err := url.Parse(c.Host); err != nil {
		return fmt.Errorf("invalid posthog host: %w", err)
	}
	return nil
}

// PostHog posts batched events to the PostHog /batch/ endpoint.
type PostHog struct {
	cfg        PostHogConfig
	httpClient *http.Client
	batcher    *Batcher
	newBackOff func() backoff.BackOff
	metrics    *telemetry.Metrics
}

var _ Client = (*PostHog)(nil)

func NewPostHog(cfg PostHogConfig, httpClient *http.Client) (*PostHog, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	p := &PostHog{
		cfg:        cfg,
		httpClient: httpClient,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		metrics:    telemetry.GetMetrics(),
	}
	p.batcher = NewBatcher(cfg.Batch, p.flush)
	return p, nil
}

func (p *PostHog) Identify(distinctID string, traits Properties) error {
	return p.enqueue(EventIdentify, distinctID, Properties{"$set": traits})
}

func (p *PostHog) Group(distinctID, groupType, groupKey string, traits Properties) error {
	return p.enqueue(EventGroupIdentify, distinctID, Properties{
		"$group_type": groupType,
		"$group_key":  groupKey,
		"$group_set":  traits,
		"$groups":     map[string]string{groupType: groupKey},
	})
}

func (p *PostHog) Capture(distinctID, event string, props Properties) error {
	return p.enqueue(event, distinctID, props)
}

// Stop flushes buffered events.
func (p *PostHog) Stop() error {
	return p.batcher.Stop()
}

func (p *PostHog) enqueue(event, distinctID string, props Properties) error {
	if props == nil {
		props = Properties{}
	}
	props["$lib"] = libraryName

	err := p.batcher.Add(Event{
		Event:      event,
		DistinctID: distinctID,
		Properties: props,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	p.metrics.AnalyticsEventsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", event)))
	return nil
}

type batchRequest struct {
	APIKey string  `json:"api_key"`
	Batch  []Event `json:"batch"`
}

// flush delivers a batch. Failures are logged and the batch dropped.
func (p *PostHog) flush(events []Event) error {
	ctx := context.Background()
	start := time.Now()

	body, err := json.Marshal(batchRequest{APIKey: p.cfg.APIKey, Batch: events})
	if err != nil {
		return fmt.Errorf("failed to marshal analytics batch: %w", err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, p.attempt(ctx, body)
	},
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(p.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Err(err).Dur("retry_in", next).Msg("PostHog batch failed, retrying")
		}),
	)

	p.metrics.AnalyticsFlushDuration.Record(ctx, float64(time.Since(start).Milliseconds()))

	if err != nil {
		p.metrics.AnalyticsDroppedTotal.Add(ctx, int64(len(events)))
		log.Warn().Err(err).Int("event_count", len(events)).Msg("Dropping analytics batch")
	}
	return nil
}

func (p *PostHog) attempt(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	endpoint := strings.TrimRight(p.cfg.Host, "/") + "/batch/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("posthog returned HTTP %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("posthog returned HTTP %d", resp.StatusCode))
	}
}
