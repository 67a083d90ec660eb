package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"
)

type fakePostHog struct {
	mu       sync.Mutex
	requests []batchRequest
	attempts atomic.Int32
	status   func(attempt int32) int
}

func (f *fakePostHog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	attempt := f.attempts.Add(1)
	if r.URL.Path != "/batch/" || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if code := f.status(attempt); code != http.StatusOK {
		w.WriteHeader(code)
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func newTestPostHog(t *testing.T, status func(int32) int) (*PostHog, *fakePostHog) {
	t.Helper()

	fake := &fakePostHog{status: status}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	p, err := NewPostHog(PostHogConfig{
		Host:   srv.URL,
		APIKey: "phc_test",
		Batch:  BatcherConfig{FlushInterval: time.Hour, MaxBatchSize: 10},
	}, srv.Client())
	require.NoError(t, err)
	p.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	return p, fake
}

func TestPostHog_SendsBatch(t *testing.T) {
	p, fake := newTestPostHog(t, func(int32) int { return http.StatusOK })

	require.NoError(t, p.Identify("u1", Properties{"email": "ada@example.com"}))
	require.NoError(t, p.Group("u1", GroupTypeOrganization, "org1", Properties{"slug": "acme"}))
	require.NoError(t, p.Capture("u1", EventPageView, Properties{"$current_url": "http://localhost/o/acme"}))
	require.NoError(t, p.Stop())

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	require.Equal(t, "phc_test", req.APIKey)
	require.Len(t, req.Batch, 3)

	require.Equal(t, EventIdentify, req.Batch[0].Event)
	require.Equal(t, "u1", req.Batch[0].DistinctID)
	require.Equal(t, map[string]any{"email": "ada@example.com"}, req.Batch[0].Properties["$set"])

	require.Equal(t, EventGroupIdentify, req.Batch[1].Event)
	require.Equal(t, "organization", req.Batch[1].Properties["$group_type"])
	require.Equal(t, "org1", req.Batch[1].Properties["$group_key"])

	require.Equal(t, EventPageView, req.Batch[2].Event)
	require.Equal(t, libraryName, req.Batch[2].Properties["$lib"])
}

func TestPostHog_RetriesTransientFailures(t *testing.T) {
	p, fake := newTestPostHog(t, func(attempt int32) int {
		if attempt < 3 {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	})

	require.NoError(t, p.Capture("u1", "run_viewed", nil))
	require.NoError(t, p.Stop())

	require.Equal(t, int32(3), fake.attempts.Load())
	require.Len(t, fake.requests, 1)
}

func TestPostHog_DropsOnPermanentFailure(t *testing.T) {
	p, fake := newTestPostHog(t, func(int32) int { return http.StatusBadRequest })

	require.NoError(t, p.Capture("u1", "run_viewed", nil))
	require.NoError(t, p.Stop())

	require.Equal(t, int32(1), fake.attempts.Load())
	require.Empty(t, fake.requests)
}

func TestPostHogConfig_Validate(t *testing.T) {
	_, err := NewPostHog(PostHogConfig{}, nil)
	require.ErrorContains(t, err, "api key")
}
