// Package clickhouse reads run metrics, histograms and log names from the
// ClickHouse HTTP interface.
package clickhouse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mlop-ai/pluto/internal/telemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrUnavailable is returned when ClickHouse cannot be reached or keeps
// failing after retries.
var ErrUnavailable = errors.New("clickhouse unavailable")

// Config holds the connection settings.
type Config struct {
	// URL of the HTTP interface, e.g. http://localhost:8123
	URL      string
	User     string
	Password string
	Database string

	MetricsTable string // default "mlop_metrics"
	DataTable    string // default "mlop_data"

	// Timeout bounds a single HTTP attempt. Default: 15s
	Timeout time.Duration

	// MaxTries bounds attempts per query including the first. Default: 3
	MaxTries uint
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.MetricsTable == "" {
		c.MetricsTable = "mlop_metrics"
	}
	if c.DataTable == "" {
		c.DataTable = "mlop_data"
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxTries == 0 {
		c.MaxTries = 3
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("clickhouse url is required")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid clickhouse url: %w", err)
	}
	return nil
}

var _ Querier = (*Client)(nil)

// Client talks to ClickHouse over HTTP using JSONEachRow output.
type Client struct {
	cfg        Config
	httpClient *http.Client
	newBackOff func() backoff.BackOff
	metrics    *telemetry.Metrics
}

// NewClient creates a client. The HTTP client may be nil.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		metrics:    telemetry.GetMetrics(),
	}, nil
}

// Ping runs SELECT 1.
func (c *Client) Ping(ctx context.Context) error {
	return c.query(ctx, "ping", "SELECT 1 AS ok", nil, func([]byte) error { return nil })
}

// Histograms returns every logged step of one histogram, ordered by step.
func (c *Client) Histograms(ctx context.Context, q HistogramQuery) ([]Histogram, error) {
	sql := `SELECT step, time, data
		FROM ` + c.cfg.DataTable + `
		WHERE tenantId = {tenantId:String}
		  AND projectName = {projectName:String}
		  AND runId = {runId:UInt64}
		  AND logName = {logName:String}
		  AND dataType = 'HISTOGRAM'
		ORDER BY step`

	params := q.RunScope.params()
	params["logName"] = q.LogName

	var out []Histogram
	err := c.query(ctx, "histograms", sql, params, func(line []byte) error {
		var row struct {
			Step int64  `json:"step"`
			Time int64  `json:"time"`
			Data string `json:"data"`
		}
		if err := json.Unmarshal(line, &row); err != nil {
			return err
		}
		if !json.Valid([]byte(row.Data)) {
			log.Warn().Int64("step", row.Step).Str("log_name", q.LogName).Msg("Skipping histogram with invalid payload")
			return nil
		}
		out = append(out, Histogram{Step: row.Step, Time: row.Time, Data: json.RawMessage(row.Data)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// MetricSeries returns the points of one metric ordered by step, downsampled
// to q.MaxPoints. Null values are skipped.
func (c *Client) MetricSeries(ctx context.Context, q MetricQuery) ([]MetricPoint, error) {
	sql := `SELECT step, time, value
		FROM ` + c.cfg.MetricsTable + `
		WHERE tenantId = {tenantId:String}
		  AND projectName = {projectName:String}
		  AND runId = {runId:UInt64}
		  AND logName = {logName:String}
		ORDER BY step`

	params := q.RunScope.params()
	params["logName"] = q.LogName

	var out []MetricPoint
	err := c.query(ctx, "metric_series", sql, params, func(line []byte) error {
		var row struct {
			Step  int64  `json:"step"`
			Time  int64  `json:"time"`
			Value *Value `json:"value"`
		}
		if err := json.Unmarshal(line, &row); err != nil {
			return err
		}
		if row.Value == nil {
			return nil
		}
		out = append(out, MetricPoint{Step: row.Step, Time: row.Time, Value: *row.Value})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return Downsample(out, q.MaxPoints), nil
}

// LogNames returns the distinct metric names logged by a run with their group.
func (c *Client) LogNames(ctx context.Context, q LogNamesQuery) ([]LogName, error) {
	sql := `SELECT DISTINCT logName
		FROM ` + c.cfg.MetricsTable + `
		WHERE tenantId = {tenantId:String}
		  AND projectName = {projectName:String}
		  AND runId = {runId:UInt64}
		ORDER BY logName`

	var out []LogName
	err := c.query(ctx, "log_names", sql, q.RunScope.params(), func(line []byte) error {
		var row struct {
			LogName string `json:"logName"`
		}
		if err := json.Unmarshal(line, &row); err != nil {
			return err
		}
		out = append(out, LogName{Name: row.LogName, Group: LogGroup(row.LogName)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (s RunScope) params() map[string]string {
	return map[string]string{
		"tenantId":    s.TenantID,
		"projectName": s.ProjectName,
		"runId":       strconv.FormatInt(s.RunID, 10),
	}
}

// query runs sql with retries and feeds each JSONEachRow line to fn.
// Rows are only delivered from a successful attempt.
func (c *Client) query(ctx context.Context, name, sql string, params map[string]string, fn func(line []byte) error) error {
	start := time.Now()
	nameAttr := metric.WithAttributes(attribute.String("query", name))
	c.metrics.ClickHouseQueriesTotal.Add(ctx, 1, nameAttr)

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return c.attempt(ctx, sql, params)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Str("query", name).Dur("retry_in", next).Msg("ClickHouse query failed, retrying")
		}),
	)

	c.metrics.ClickHouseQueryTime.Record(ctx, float64(time.Since(start).Milliseconds()), nameAttr)

	if err != nil {
		c.metrics.ClickHouseErrorsTotal.Add(ctx, 1, nameAttr)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.transient() {
			return err
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("failed to decode %s row: %w", name, err)
		}
	}

	return scanner.Err()
}

func (c *Client) attempt(ctx context.Context, sql string, params map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	values := url.Values{}
	values.Set("default_format", "JSONEachRow")
	values.Set("output_format_json_quote_64bit_integers", "0")
	values.Set("output_format_json_quote_denormals", "1")
	if c.cfg.Database != "" {
		values.Set("database", c.cfg.Database)
	}
	for k, v := range params {
		values.Set("param_"+k, v)
	}

	endpoint := strings.TrimRight(c.cfg.URL, "/") + "/?" + values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(sql))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if c.cfg.User != "" {
		req.Header.Set("X-ClickHouse-User", c.cfg.User)
		req.Header.Set("X-ClickHouse-Key", c.cfg.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		if !statusErr.transient() {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}

	return body, nil
}

// StatusError is a non-200 response from ClickHouse.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	return fmt.Sprintf("clickhouse returned %d: %s", e.StatusCode, msg)
}

func (e *StatusError) transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}
