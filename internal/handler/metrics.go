package handler

import (
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/marcel-gle/gb-qr-tracker/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabeled(w, "qrtracker_redirects_total", "outcome", snap.Redirects)
	writeMetric(w, "qrtracker_redirect_cache_hits_total %d\n", snap.RedirectCacheHits)
	writeMetric(w, "qrtracker_redirect_cache_misses_total %d\n", snap.RedirectCacheMisses)
	writeMetric(w, "qrtracker_redirect_duration_seconds_count %d\n", snap.RedirectDurationCount)
	writeMetric(w, "qrtracker_redirect_duration_seconds_sum %.6f\n", float64(snap.RedirectDurationTotalNs)/1e9)

	writeLabeled(w, "qrtracker_hits_dispatched_total", "status", snap.HitsDispatched)
	writeLabeled(w, "qrtracker_hits_recorded_total", "status", snap.HitsRecorded)
	writeMetric(w, "qrtracker_analytics_queue_depth %d\n", snap.AnalyticsQueueDepth)
	writeMetric(w, "qrtracker_analytics_ingest_lag_seconds_count %d\n", snap.IngestLagCount)
	writeMetric(w, "qrtracker_analytics_ingest_lag_seconds_sum %.6f\n", float64(snap.IngestLagTotalNs)/1e9)

	writeMetric(w, "qrtracker_links_assigned_total %d\n", snap.LinksAssigned)
	writeMetric(w, "qrtracker_assign_groups_failed_total %d\n", snap.AssignGroupsFailed)

	writeLabeled(w, "qrtracker_housekeeping_runs_total", "job_status", snap.HousekeepingRuns)
}

func writeMetric(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// writeLabeled renders one sample per label value in a stable order.
func writeLabeled(w io.Writer, name, label string, counts map[string]uint64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, counts[k])
	}
}
