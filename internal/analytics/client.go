// Package analytics reports identity, organization and page-view events to
// PostHog.
package analytics

import "time"

// Properties are free-form event properties.
type Properties map[string]any

// Event is a single analytics event as sent to the batch endpoint.
type Event struct {
	Event      string     `json:"event"`
	DistinctID string     `json:"distinct_id"`
	Properties Properties `json:"properties,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

const (
	EventIdentify      = "$identify"
	EventGroupIdentify = "$groupidentify"
	EventPageView      = "$pageview"

	GroupTypeOrganization = "organization"
)

// Client sends analytics calls. Implementations enqueue and return quickly;
// delivery failures are logged and never surfaced.
type Client interface {
	Identify(distinctID string, traits Properties) error
	Group(distinctID, groupType, groupKey string, traits Properties) error
	Capture(distinctID, event string, props Properties) error
}
