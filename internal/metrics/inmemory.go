package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
// Labeled counters are keyed by label value.
type Snapshot struct {
	Redirects               map[string]uint64
	RedirectCacheHits       uint64
	RedirectCacheMisses     uint64
	RedirectDurationCount   uint64
	RedirectDurationTotalNs int64

	HitsDispatched      map[string]uint64
	HitsRecorded        map[string]uint64
	AnalyticsQueueDepth int64
	IngestLagCount      uint64
	IngestLagTotalNs    int64

	LinksAssigned      uint64
	AssignGroupsFailed uint64

	HousekeepingRuns map[string]uint64 // "job/status"
}

// InMemoryRecorder stores metrics in memory.
type InMemoryRecorder struct {
	redirectCacheHits       uint64
	redirectCacheMisses     uint64
	redirectDurationCount   uint64
	redirectDurationTotalNs int64
	queueDepth              int64
	ingestLagCount          uint64
	ingestLagTotalNs        int64
	linksAssigned           uint64
	assignGroupsFailed      uint64

	mu               sync.Mutex
	redirects        map[string]uint64
	hitsDispatched   map[string]uint64
	hitsRecorded     map[string]uint64
	housekeepingRuns map[string]uint64
}

var _ Recorder = (*InMemoryRecorder)(nil)

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		redirects:        make(map[string]uint64),
		hitsDispatched:   make(map[string]uint64),
		hitsRecorded:     make(map[string]uint64),
		housekeepingRuns: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	snap := Snapshot{
		Redirects:        copyCounts(m.redirects),
		HitsDispatched:   copyCounts(m.hitsDispatched),
		HitsRecorded:     copyCounts(m.hitsRecorded),
		HousekeepingRuns: copyCounts(m.housekeepingRuns),
	}
	m.mu.Unlock()

	snap.RedirectCacheHits = atomic.LoadUint64(&m.redirectCacheHits)
	snap.RedirectCacheMisses = atomic.LoadUint64(&m.redirectCacheMisses)
	snap.RedirectDurationCount = atomic.LoadUint64(&m.redirectDurationCount)
	snap.RedirectDurationTotalNs = atomic.LoadInt64(&m.redirectDurationTotalNs)
	snap.AnalyticsQueueDepth = atomic.LoadInt64(&m.queueDepth)
	snap.IngestLagCount = atomic.LoadUint64(&m.ingestLagCount)
	snap.IngestLagTotalNs = atomic.LoadInt64(&m.ingestLagTotalNs)
	snap.LinksAssigned = atomic.LoadUint64(&m.linksAssigned)
	snap.AssignGroupsFailed = atomic.LoadUint64(&m.assignGroupsFailed)
	return snap
}

// IncRedirect counts a redirect request by outcome.
func (m *InMemoryRecorder) IncRedirect(outcome string) {
	m.inc(m.redirects, outcome)
}

// IncRedirectCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncRedirectCacheHit() {
	atomic.AddUint64(&m.redirectCacheHits, 1)
}

// IncRedirectCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncRedirectCacheMiss() {
	atomic.AddUint64(&m.redirectCacheMisses, 1)
}

// ObserveRedirectDuration records redirect duration.
func (m *InMemoryRecorder) ObserveRedirectDuration(duration time.Duration) {
	atomic.AddUint64(&m.redirectDurationCount, 1)
	atomic.AddInt64(&m.redirectDurationTotalNs, duration.Nanoseconds())
}

// IncHitDispatched counts hand-offs to the analytics dispatcher.
func (m *InMemoryRecorder) IncHitDispatched(status string) {
	m.inc(m.hitsDispatched, status)
}

// IncHitRecorded counts aggregate update results.
func (m *InMemoryRecorder) IncHitRecorded(status string) {
	m.inc(m.hitsRecorded, status)
}

// SetAnalyticsQueueDepth stores the current queue depth.
func (m *InMemoryRecorder) SetAnalyticsQueueDepth(depth int64) {
	atomic.StoreInt64(&m.queueDepth, depth)
}

// ObserveAnalyticsIngestLag records the delay between click and update.
func (m *InMemoryRecorder) ObserveAnalyticsIngestLag(lag time.Duration) {
	atomic.AddUint64(&m.ingestLagCount, 1)
	atomic.AddInt64(&m.ingestLagTotalNs, lag.Nanoseconds())
}

// AddLinksAssigned adds to the assigned identifier counter.
func (m *InMemoryRecorder) AddLinksAssigned(n int) {
	if n > 0 {
		atomic.AddUint64(&m.linksAssigned, uint64(n))
	}
}

// IncAssignGroupFailed increments the failed group counter.
func (m *InMemoryRecorder) IncAssignGroupFailed() {
	atomic.AddUint64(&m.assignGroupsFailed, 1)
}

// IncHousekeepingRun counts a scheduled job execution.
func (m *InMemoryRecorder) IncHousekeepingRun(job, status string) {
	m.inc(m.housekeepingRuns, job+"/"+status)
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, label string) {
	m.mu.Lock()
	counts[label]++
	m.mu.Unlock()
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
