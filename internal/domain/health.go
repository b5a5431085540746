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
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// PipelineMetrics is returned by GET /v1/metrics/pipeline.
type PipelineMetrics struct {
	WebhookDeliveries map[string]float64 `json:"webhookDeliveries"`
	StagedTotal       float64            `json:"stagedTotal"`
	SkippedTotal      float64            `json:"skippedTotal"`
	Approved          float64            `json:"approved"`
	Dismissed         float64            `json:"dismissed"`
	Restored          float64            `json:"restored"`
	Deleted           float64            `json:"deleted"`
	Period            string             `json:"period"`
}
