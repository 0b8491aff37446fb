package models

import "time"

// NodeMetrics is a JSON snapshot of this campus node's instrumentation.
type NodeMetrics struct {
	Campus                   string    `json:"campus"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	RemoteCalls              uint64    `json:"remote_calls"`
	RemoteFailures           uint64    `json:"remote_failures"`
	FederationPartials       uint64    `json:"federation_partials"`
	TeacherCacheHitRatio     float64   `json:"teacher_cache_hit_ratio"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
