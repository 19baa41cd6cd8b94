package enrich

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Dependency labels.
const (
	DependencyMedia = "media"
	DependencyOwner = "owner"
)

var enrichFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feed_enrich_failures_total",
	Help: "Records enriched with a safe default because a dependent fetch failed, by dependency",
}, []string{"dependency"})

// Reporter is the observability sink for absorbed dependent-fetch failures.
// Implementations must be safe for concurrent use and must not panic.
type Reporter interface {
	MediaFailed(recordID int, err error)
	OwnerFailed(ownerID, recordID int, err error)
}

// LogReporter reports failures as zerolog warnings and Prometheus counters.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter creates a reporter writing to logger.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// MediaFailed implements Reporter.
func (r *LogReporter) MediaFailed(recordID int, err error) {
	enrichFailuresTotal.WithLabelValues(DependencyMedia).Inc()
	r.logger.Warn().
		Err(err).
		Int("record_id", recordID).
		Msg("Media fetch failed, using empty media")
}

// OwnerFailed implements Reporter.
func (r *LogReporter) OwnerFailed(ownerID, recordID int, err error) {
	enrichFailuresTotal.WithLabelValues(DependencyOwner).Inc()
	r.logger.Warn().
		Err(err).
		Int("owner_id", ownerID).
		Int("record_id", recordID).
		Msg("Owner fetch failed, owner left unknown")
}

// NopReporter discards every report.
type NopReporter struct{}

// MediaFailed implements Reporter.
func (NopReporter) MediaFailed(int, error) {}

// OwnerFailed implements Reporter.
func (NopReporter) OwnerFailed(int, int, error) {}
