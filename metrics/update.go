package metrics

import "sync/atomic"

// RunMetrics accumulates in-memory counters for one harvest run; the
// orchestrator logs them as a summary when the run finishes.
type RunMetrics struct {
	ProductsCollected   atomic.Int32
	PromotionsCollected atomic.Int32
	PagesFailed         atomic.Int32
	ChangesPersisted    atomic.Int32
}
