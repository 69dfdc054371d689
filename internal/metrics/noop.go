package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncRedirect is a no-op.
func (n *NoopRecorder) IncRedirect(outcome string) {}

// IncRedirectCacheHit is a no-op.
func (n *NoopRecorder) IncRedirectCacheHit() {}

// IncRedirectCacheMiss is a no-op.
func (n *NoopRecorder) IncRedirectCacheMiss() {}

// ObserveRedirectDuration is a no-op.
func (n *NoopRecorder) ObserveRedirectDuration(duration time.Duration) {}

// IncHitDispatched is a no-op.
func (n *NoopRecorder) IncHitDispatched(status string) {}

// IncHitRecorded is a no-op.
func (n *NoopRecorder) IncHitRecorded(status string) {}

// SetAnalyticsQueueDepth is a no-op.
func (n *NoopRecorder) SetAnalyticsQueueDepth(depth int64) {}

// ObserveAnalyticsIngestLag is a no-op.
func (n *NoopRecorder) ObserveAnalyticsIngestLag(lag time.Duration) {}

// AddLinksAssigned is a no-op.
func (n *NoopRecorder) AddLinksAssigned(count int) {}

// IncAssignGroupFailed is a no-op.
func (n *NoopRecorder) IncAssignGroupFailed() {}

// IncHousekeepingRun is a no-op.
func (n *NoopRecorder) IncHousekeepingRun(job, status string) {}
