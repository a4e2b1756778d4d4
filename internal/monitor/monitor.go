// Package monitor accumulates per-run counters and timings for the session
// report. It is purely additive: nothing in the pipeline branches on it.
package monitor

import (
	"sync"
	"time"
)

// Outcome is the terminal state of one artifact within a run.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Snapshot is the point-in-time session report consumed by an external
// formatter.
type Snapshot struct {
	Started          time.Time     `json:"started"`
	Elapsed          time.Duration `json:"elapsed"`
	Processed        int64         `json:"processed"`
	Succeeded        int64         `json:"succeeded"`
	Failed           int64         `json:"failed"`
	Skipped          int64         `json:"skipped"`
	ModelCalls       int64         `json:"model_calls"`
	CacheHits        int64         `json:"cache_hits"`
	CacheHitRate     float64       `json:"cache_hit_rate_percent"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd"`
	EstimatedSaveUSD float64       `json:"estimated_savings_usd"`
	AvgArtifactTime  time.Duration `json:"avg_artifact_time"`
}

// Collector aggregates in-memory runtime statistics. All methods are
// thread-safe.
type Collector struct {
	mu          sync.Mutex
	started     time.Time
	outcomes    map[Outcome]int64
	modelCalls  int64
	cacheHits   int64
	totalTime   time.Duration
	timedCount  int64
	costPerCall float64
}

// NewCollector creates a collector; costPerCall prices one model network call
// for the cost estimate.
func NewCollector(costPerCall float64) *Collector {
	return &Collector{
		started:     time.Now(),
		outcomes:    make(map[Outcome]int64),
		costPerCall: costPerCall,
	}
}

// RecordOutcome counts one artifact reaching a terminal state.
func (c *Collector) RecordOutcome(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[o]++
}

// RecordArtifactTime records the wall time one artifact spent in the pipeline.
func (c *Collector) RecordArtifactTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalTime += d
	c.timedCount++
}

// RecordModelCall counts one network call to the model service.
func (c *Collector) RecordModelCall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modelCalls++
}

// RecordCacheHit counts one gateway request served from cache.
func (c *Collector) RecordCacheHit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheHits++
}

// Snapshot returns the current session statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Started:          c.started,
		Elapsed:          time.Since(c.started),
		Succeeded:        c.outcomes[OutcomeDone],
		Failed:           c.outcomes[OutcomeFailed],
		Skipped:          c.outcomes[OutcomeSkipped],
		ModelCalls:       c.modelCalls,
		CacheHits:        c.cacheHits,
		EstimatedCostUSD: float64(c.modelCalls) * c.costPerCall,
		EstimatedSaveUSD: float64(c.cacheHits) * c.costPerCall,
	}
	s.Processed = s.Succeeded + s.Failed

	if total := c.modelCalls + c.cacheHits; total > 0 {
		s.CacheHitRate = float64(c.cacheHits) / float64(total) * 100
	}
	if c.timedCount > 0 {
		s.AvgArtifactTime = c.totalTime / time.Duration(c.timedCount)
	}
	return s
}
