package memory

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Manager provides memory accounting and resource limits for template maps
// and live instances. Sizes are caller-estimated; the manager only enforces
// the budget and reports pressure.
type Manager struct {
	maxMemoryBytes   int64
	currentUsage     int64
	ownerUsage       map[string]int64 // ownerID -> estimated usage
	memoryThresholds *Thresholds
	mu               sync.RWMutex
	config           *Config
}

// Config defines memory manager configuration
type Config struct {
	MaxMemoryMB          int           // Maximum memory in MB
	WarningThresholdPct  int           // Warning threshold percentage
	CriticalThresholdPct int           // Critical threshold percentage
	CleanupInterval      time.Duration // How often to check memory usage
}

// Thresholds defines memory usage thresholds
type Thresholds struct {
	WarningBytes  int64
	CriticalBytes int64
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxMemoryMB:          100,
		WarningThresholdPct:  75,
		CriticalThresholdPct: 90,
		CleanupInterval:      1 * time.Minute,
	}
}

// NewManager creates a new memory manager
func NewManager(config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}

	maxBytes := int64(config.MaxMemoryMB * 1024 * 1024)

	return &Manager{
		maxMemoryBytes: maxBytes,
		ownerUsage:     make(map[string]int64),
		config:         config,
		memoryThresholds: &Thresholds{
			WarningBytes:  (maxBytes * int64(config.WarningThresholdPct)) / 100,
			CriticalBytes: (maxBytes * int64(config.CriticalThresholdPct)) / 100,
		},
	}
}

// Allocate reserves budget for a new owner (a template map or an instance)
func (m *Manager) Allocate(ownerID string, estimatedSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	newUsage := atomic.LoadInt64(&m.currentUsage) + estimatedSize
	if newUsage > m.maxMemoryBytes {
		return fmt.Errorf("memory allocation would exceed limit: %d + %d > %d",
			atomic.LoadInt64(&m.currentUsage), estimatedSize, m.maxMemoryBytes)
	}

	m.ownerUsage[ownerID] = estimatedSize
	atomic.AddInt64(&m.currentUsage, estimatedSize)

	return nil
}

// Deallocate releases an owner's budget
func (m *Manager) Deallocate(ownerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if usage, exists := m.ownerUsage[ownerID]; exists {
		atomic.AddInt64(&m.currentUsage, -usage)
		delete(m.ownerUsage, ownerID)
	}
}

// UpdateUsage revises an existing owner's estimate. A hot reload that swaps
// a template map, or an instance whose tree grew, reports through here.
func (m *Manager) UpdateUsage(ownerID string, newSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldSize, exists := m.ownerUsage[ownerID]
	if !exists {
		return fmt.Errorf("owner not found: %s", ownerID)
	}

	deltaSize := newSize - oldSize
	newTotalUsage := atomic.LoadInt64(&m.currentUsage) + deltaSize

	if newTotalUsage > m.maxMemoryBytes {
		return fmt.Errorf("memory update would exceed limit: %d + %d > %d",
			atomic.LoadInt64(&m.currentUsage), deltaSize, m.maxMemoryBytes)
	}

	m.ownerUsage[ownerID] = newSize
	atomic.AddInt64(&m.currentUsage, deltaSize)

	return nil
}

// GetStatus returns current memory usage status
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	currentUsage := atomic.LoadInt64(&m.currentUsage)

	status := Status{
		CurrentUsage:      currentUsage,
		MaxMemory:         m.maxMemoryBytes,
		UsagePercentage:   float64(currentUsage) / float64(m.maxMemoryBytes) * 100,
		Owners:            len(m.ownerUsage),
		WarningThreshold:  m.memoryThresholds.WarningBytes,
		CriticalThreshold: m.memoryThresholds.CriticalBytes,
	}

	if currentUsage >= m.memoryThresholds.CriticalBytes {
		status.Level = "CRITICAL"
	} else if currentUsage >= m.memoryThresholds.WarningBytes {
		status.Level = "WARNING"
	} else {
		status.Level = "OK"
	}

	if len(m.ownerUsage) > 0 {
		status.AverageOwnerMemory = currentUsage / int64(len(m.ownerUsage))
	}

	return status
}

// Status contains memory usage information
type Status struct {
	CurrentUsage       int64   `json:"current_usage"`
	MaxMemory          int64   `json:"max_memory"`
	UsagePercentage    float64 `json:"usage_percentage"`
	Level              string  `json:"level"` // "OK", "WARNING", "CRITICAL"
	Owners             int     `json:"owners"`
	AverageOwnerMemory int64   `json:"average_owner_memory"`
	WarningThreshold   int64   `json:"warning_threshold"`
	CriticalThreshold  int64   `json:"critical_threshold"`
}

// IsAtCapacity checks if memory is at or near capacity
func (m *Manager) IsAtCapacity() bool {
	return atomic.LoadInt64(&m.currentUsage) >= m.memoryThresholds.CriticalBytes
}

// IsNearCapacity checks if memory usage is approaching capacity
func (m *Manager) IsNearCapacity() bool {
	return atomic.LoadInt64(&m.currentUsage) >= m.memoryThresholds.WarningBytes
}

// GetAvailableMemory returns available memory in bytes
func (m *Manager) GetAvailableMemory() int64 {
	available := m.maxMemoryBytes - atomic.LoadInt64(&m.currentUsage)
	if available < 0 {
		return 0
	}
	return available
}

// CanAllocate checks if a given size fits within the budget
func (m *Manager) CanAllocate(size int64) bool {
	return atomic.LoadInt64(&m.currentUsage)+size <= m.maxMemoryBytes
}

// GetOwnerUsage returns the tracked estimate for one owner
func (m *Manager) GetOwnerUsage(ownerID string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	usage, exists := m.ownerUsage[ownerID]
	return usage, exists
}

// GetTopOwners returns the owners using the most memory
func (m *Manager) GetTopOwners(limit int) []OwnerMemoryInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owners := make([]OwnerMemoryInfo, 0, len(m.ownerUsage))
	for ownerID, usage := range m.ownerUsage {
		owners = append(owners, OwnerMemoryInfo{
			OwnerID: ownerID,
			Usage:   usage,
		})
	}

	// Simple sort by usage (descending)
	for i := 0; i < len(owners)-1; i++ {
		for j := 0; j < len(owners)-i-1; j++ {
			if owners[j].Usage < owners[j+1].Usage {
				owners[j], owners[j+1] = owners[j+1], owners[j]
			}
		}
	}

	if limit > len(owners) {
		limit = len(owners)
	}
	return owners[:limit]
}

// OwnerMemoryInfo contains memory usage information for one owner
type OwnerMemoryInfo struct {
	OwnerID string `json:"owner_id"`
	Usage   int64  `json:"usage"`
}

// GetTotalOwners returns the number of owners being tracked
func (m *Manager) GetTotalOwners() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ownerUsage)
}

// Reset clears all memory tracking
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	atomic.StoreInt64(&m.currentUsage, 0)
	m.ownerUsage = make(map[string]int64)
}
