package ingest

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the ingestion counters exposed alongside GET /system/status,
// grounded on tomtom215-cartographus's per-domain CounterVec registration
// pattern (the same one internal/events.Metrics follows for publication
// counters).
type Metrics struct {
	CandidatesProcessed prometheus.Counter
	DuplicatesSkipped   prometheus.Counter
	ConflictsFlagged    prometheus.Counter
	Quarantined         prometheus.Counter
	Organised           prometheus.Counter
	Failed              prometheus.Counter
}

// NewMetrics registers the engine's ingestion counters against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandidatesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaengine_ingestion_candidates_processed_total",
			Help: "Count of settled candidates the orchestrator has processed.",
		}),
		DuplicatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaengine_ingestion_duplicates_skipped_total",
			Help: "Count of candidates skipped because their content hash already exists.",
		}),
		ConflictsFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaengine_ingestion_conflicts_flagged_total",
			Help: "Count of scored fields flagged conflicted by the scoring engine.",
		}),
		Quarantined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaengine_ingestion_quarantined_total",
			Help: "Count of candidates quarantined as corrupt.",
		}),
		Organised: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaengine_ingestion_organised_total",
			Help: "Count of assets moved into the organised library layout.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaengine_ingestion_failed_total",
			Help: "Count of candidates that failed ingestion (lock timeout, missing file, store error).",
		}),
	}
	reg.MustRegister(
		m.CandidatesProcessed,
		m.DuplicatesSkipped,
		m.ConflictsFlagged,
		m.Quarantined,
		m.Organised,
		m.Failed,
	)
	return m
}
