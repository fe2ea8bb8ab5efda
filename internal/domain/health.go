package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latencyMs"`
}

// PipelineMetrics is returned by GET /v1/metrics/pipeline. Counters are
// cumulative since process start.
type PipelineMetrics struct {
	Transitions            map[Stage]int64  `json:"transitions"`
	PreconditionFailures   map[Stage]int64  `json:"preconditionFailures"`
	NotificationsAcked     int64            `json:"notificationsAcknowledged"`
	LeadChangesPublished   int64            `json:"leadChangesPublished"`
	RosterCacheHitRate     float64          `json:"rosterCacheHitRate"`
	ExternalErrorsByTarget map[string]int64 `json:"externalErrors"`
	Period                 string           `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
