package server

import (
	"encoding/json"
	"time"

	"github.com/mlop-ai/pluto/internal/clickhouse"
)

// Numeric keys travel as strings so JavaScript clients never lose precision.

type Organization struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

type ListOrganizationsRequest struct{}

type ListOrganizationsResponse struct {
	Organizations []Organization `json:"organizations"`
}

type SetActiveOrganizationRequest struct {
	OrganizationID string `json:"organizationId"`
}

type SetActiveOrganizationResponse struct {
	Organization Organization `json:"organization"`
}

// RunRef addresses a run by project name and encoded run id.
type RunRef struct {
	ProjectName string `json:"projectName"`
	RunID       string `json:"runId"`
}

type ResolveRunRequest struct {
	RunRef
}

type ResolveRunResponse struct {
	RunID      string `json:"runId"`
	InternalID string `json:"internalId"`
}

type GetHistogramsRequest struct {
	RunRef
	LogName string `json:"logName"`
}

type GetHistogramsResponse struct {
	LogName    string                 `json:"logName"`
	Histograms []clickhouse.Histogram `json:"histograms"`
}

type GetMetricSeriesRequest struct {
	RunRef
	LogName   string `json:"logName"`
	MaxPoints int    `json:"maxPoints,omitempty"`
}

type GetMetricSeriesResponse struct {
	LogName string                   `json:"logName"`
	Points  []clickhouse.MetricPoint `json:"points"`
}

type ListLogNamesRequest struct {
	RunRef
}

type ListLogNamesResponse struct {
	LogNames []clickhouse.LogName `json:"logNames"`
}

type RunTrigger struct {
	ID          string            `json:"id"`
	RunID       string            `json:"runId"`
	TriggerType string            `json:"triggerType"`
	Context     map[string]string `json:"context,omitempty"`
	CreatedByID string            `json:"createdById"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type ListRunTriggersRequest struct {
	RunRef
}

type ListRunTriggersResponse struct {
	Triggers []RunTrigger `json:"triggers"`
}

type CreateRunTriggerRequest struct {
	RunRef
	TriggerType string            `json:"triggerType"`
	Context     map[string]string `json:"context,omitempty"`
}

type CreateRunTriggerResponse struct {
	Trigger RunTrigger `json:"trigger"`
}

type DashboardView struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"projectId"`
	Name        string          `json:"name"`
	IsDefault   bool            `json:"isDefault"`
	Config      json.RawMessage `json:"config"`
	CreatedByID string          `json:"createdById"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type ListViewsRequest struct {
	ProjectName string `json:"projectName"`
}

type ListViewsResponse struct {
	Views []DashboardView `json:"views"`
}

type GetViewRequest struct {
	ViewID string `json:"viewId"`
}

type GetViewResponse struct {
	View DashboardView `json:"view"`
}

type CreateViewRequest struct {
	ProjectName string          `json:"projectName"`
	Name        string          `json:"name"`
	IsDefault   bool            `json:"isDefault"`
	Config      json.RawMessage `json:"config"`
}

type CreateViewResponse struct {
	View DashboardView `json:"view"`
}

// UpdateViewRequest changes only the fields that are present.
type UpdateViewRequest struct {
	ViewID    string          `json:"viewId"`
	Name      *string         `json:"name,omitempty"`
	IsDefault *bool           `json:"isDefault,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

type UpdateViewResponse struct {
	View DashboardView `json:"view"`
}

type DeleteViewRequest struct {
	ViewID string `json:"viewId"`
}

type DeleteViewResponse struct{}
