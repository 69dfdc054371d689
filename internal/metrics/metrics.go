// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Redirect outcomes.
const (
	OutcomeRedirect           = "redirect"
	OutcomeBadRequest         = "bad_request"
	OutcomeUnauthorized       = "unauthorized"
	OutcomeNotFound           = "not_found"
	OutcomeInactive           = "inactive"
	OutcomeInvalidDestination = "invalid_destination"
	OutcomeError              = "error"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Redirect metrics
	IncRedirect(outcome string)
	IncRedirectCacheHit()
	IncRedirectCacheMiss()
	ObserveRedirectDuration(duration time.Duration)

	// Analytics pipeline metrics
	IncHitDispatched(status string) // status: "queued" or "dropped"
	IncHitRecorded(status string)   // status: "applied", "duplicate", "failed"
	SetAnalyticsQueueDepth(depth int64)
	ObserveAnalyticsIngestLag(lag time.Duration)

	// Import metrics
	AddLinksAssigned(n int)
	IncAssignGroupFailed()

	// Housekeeping
	IncHousekeepingRun(job, status string)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
