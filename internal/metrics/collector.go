package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector provides simple built-in metrics collection with no external dependencies
type Collector struct {
	engineMetrics     *EngineMetrics
	operationCounters map[string]*int64
	mu                sync.RWMutex
	startTime         time.Time
}

// EngineMetrics tracks engine-level performance data
type EngineMetrics struct {
	// Prediction pipeline
	PredictionHits   int64 `json:"prediction_hits"`
	PredictionMisses int64 `json:"prediction_misses"`
	Reconciliations  int64 `json:"reconciliations"`

	// Patch application
	PatchesApplied int64 `json:"patches_applied"`
	PatchesSkipped int64 `json:"patches_skipped"`

	// Template extraction and loading
	TemplateMapsLoaded int64 `json:"template_maps_loaded"`
	ExtractionErrors   int64 `json:"extraction_errors"`

	// Hot reload
	HotReloads int64 `json:"hot_reloads"`
	Remounts   int64 `json:"remounts"`

	// Instance management
	InstancesCreated    int64 `json:"instances_created"`
	InstancesClosed     int64 `json:"instances_closed"`
	ActiveInstances     int64 `json:"active_instances"`
	MaxConcurrentActive int64 `json:"max_concurrent_active"`

	// Memory
	TotalMemoryUsage int64 `json:"total_memory_usage"`

	// Uptime
	StartTime time.Time     `json:"start_time"`
	Uptime    time.Duration `json:"uptime"`
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		engineMetrics: &EngineMetrics{
			StartTime: time.Now(),
		},
		operationCounters: make(map[string]*int64),
		startTime:         time.Now(),
	}
}

// IncrementPredictionHit records a state change handled by the predictor
func (c *Collector) IncrementPredictionHit() {
	atomic.AddInt64(&c.engineMetrics.PredictionHits, 1)
}

// IncrementPredictionMiss records a predictor miss
func (c *Collector) IncrementPredictionMiss() {
	atomic.AddInt64(&c.engineMetrics.PredictionMisses, 1)
}

// IncrementReconciliation records a fallback full-tree diff
func (c *Collector) IncrementReconciliation() {
	atomic.AddInt64(&c.engineMetrics.Reconciliations, 1)
}

// RecordPatchApplication records the outcome of applying a patch batch
func (c *Collector) RecordPatchApplication(applied, skipped int64) {
	atomic.AddInt64(&c.engineMetrics.PatchesApplied, applied)
	atomic.AddInt64(&c.engineMetrics.PatchesSkipped, skipped)
}

// IncrementTemplateMapLoaded records a template map load into the registry
func (c *Collector) IncrementTemplateMapLoaded() {
	atomic.AddInt64(&c.engineMetrics.TemplateMapsLoaded, 1)
}

// IncrementExtractionError records a failed template extraction
func (c *Collector) IncrementExtractionError() {
	atomic.AddInt64(&c.engineMetrics.ExtractionErrors, 1)
}

// IncrementHotReload records a hot reload planned as patches
func (c *Collector) IncrementHotReload() {
	atomic.AddInt64(&c.engineMetrics.HotReloads, 1)
}

// IncrementRemount records a hot reload that forced a remount
func (c *Collector) IncrementRemount() {
	atomic.AddInt64(&c.engineMetrics.Remounts, 1)
}

// IncrementInstanceCreated records a new live instance
func (c *Collector) IncrementInstanceCreated() {
	atomic.AddInt64(&c.engineMetrics.InstancesCreated, 1)
	currentActive := atomic.AddInt64(&c.engineMetrics.ActiveInstances, 1)

	// Update max concurrent if needed
	for {
		max := atomic.LoadInt64(&c.engineMetrics.MaxConcurrentActive)
		if currentActive <= max {
			break
		}
		if atomic.CompareAndSwapInt64(&c.engineMetrics.MaxConcurrentActive, max, currentActive) {
			break
		}
	}
}

// IncrementInstanceClosed records an instance teardown
func (c *Collector) IncrementInstanceClosed() {
	atomic.AddInt64(&c.engineMetrics.InstancesClosed, 1)
	atomic.AddInt64(&c.engineMetrics.ActiveInstances, -1)
}

// UpdateMemoryUsage updates the tracked memory total
func (c *Collector) UpdateMemoryUsage(totalMemory int64) {
	atomic.StoreInt64(&c.engineMetrics.TotalMemoryUsage, totalMemory)
}

// IncrementCustomCounter increments a custom named counter
func (c *Collector) IncrementCustomCounter(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if counter, exists := c.operationCounters[name]; exists {
		atomic.AddInt64(counter, 1)
	} else {
		var newCounter int64 = 1
		c.operationCounters[name] = &newCounter
	}
}

// GetMetrics returns current engine metrics
func (c *Collector) GetMetrics() EngineMetrics {
	return EngineMetrics{
		PredictionHits:      atomic.LoadInt64(&c.engineMetrics.PredictionHits),
		PredictionMisses:    atomic.LoadInt64(&c.engineMetrics.PredictionMisses),
		Reconciliations:     atomic.LoadInt64(&c.engineMetrics.Reconciliations),
		PatchesApplied:      atomic.LoadInt64(&c.engineMetrics.PatchesApplied),
		PatchesSkipped:      atomic.LoadInt64(&c.engineMetrics.PatchesSkipped),
		TemplateMapsLoaded:  atomic.LoadInt64(&c.engineMetrics.TemplateMapsLoaded),
		ExtractionErrors:    atomic.LoadInt64(&c.engineMetrics.ExtractionErrors),
		HotReloads:          atomic.LoadInt64(&c.engineMetrics.HotReloads),
		Remounts:            atomic.LoadInt64(&c.engineMetrics.Remounts),
		InstancesCreated:    atomic.LoadInt64(&c.engineMetrics.InstancesCreated),
		InstancesClosed:     atomic.LoadInt64(&c.engineMetrics.InstancesClosed),
		ActiveInstances:     atomic.LoadInt64(&c.engineMetrics.ActiveInstances),
		MaxConcurrentActive: atomic.LoadInt64(&c.engineMetrics.MaxConcurrentActive),
		TotalMemoryUsage:    atomic.LoadInt64(&c.engineMetrics.TotalMemoryUsage),
		StartTime:           c.engineMetrics.StartTime,
		Uptime:              time.Since(c.startTime),
	}
}

// GetCustomCounters returns all custom counters
func (c *Collector) GetCustomCounters() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]int64)
	for name, counter := range c.operationCounters {
		result[name] = atomic.LoadInt64(counter)
	}
	return result
}

// GetHitRate returns the prediction hit rate as a percentage
func (c *Collector) GetHitRate() float64 {
	hits := atomic.LoadInt64(&c.engineMetrics.PredictionHits)
	misses := atomic.LoadInt64(&c.engineMetrics.PredictionMisses)

	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total) * 100.0
}

// GetSkipRate returns the patch skip rate as a percentage
func (c *Collector) GetSkipRate() float64 {
	applied := atomic.LoadInt64(&c.engineMetrics.PatchesApplied)
	skipped := atomic.LoadInt64(&c.engineMetrics.PatchesSkipped)

	total := applied + skipped
	if total == 0 {
		return 0.0
	}
	return float64(skipped) / float64(total) * 100.0
}

// Reset resets all metrics to zero
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	atomic.StoreInt64(&c.engineMetrics.PredictionHits, 0)
	atomic.StoreInt64(&c.engineMetrics.PredictionMisses, 0)
	atomic.StoreInt64(&c.engineMetrics.Reconciliations, 0)
	atomic.StoreInt64(&c.engineMetrics.PatchesApplied, 0)
	atomic.StoreInt64(&c.engineMetrics.PatchesSkipped, 0)
	atomic.StoreInt64(&c.engineMetrics.TemplateMapsLoaded, 0)
	atomic.StoreInt64(&c.engineMetrics.ExtractionErrors, 0)
	atomic.StoreInt64(&c.engineMetrics.HotReloads, 0)
	atomic.StoreInt64(&c.engineMetrics.Remounts, 0)
	atomic.StoreInt64(&c.engineMetrics.InstancesCreated, 0)
	atomic.StoreInt64(&c.engineMetrics.InstancesClosed, 0)
	atomic.StoreInt64(&c.engineMetrics.ActiveInstances, 0)
	atomic.StoreInt64(&c.engineMetrics.MaxConcurrentActive, 0)
	atomic.StoreInt64(&c.engineMetrics.TotalMemoryUsage, 0)

	c.operationCounters = make(map[string]*int64)

	c.startTime = time.Now()
	c.engineMetrics.StartTime = time.Now()
}
