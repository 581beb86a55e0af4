// Package metrics provides per-run counters for the anonymizer.
//
// Counters use sync/atomic so a snapshot can be taken while a pass is
// still running; the per-type map and latency stats share one mutex.
package metrics

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all counters for one anonymize or deanonymize pass.
// The zero value is not valid; use New().
type Metrics struct {
	// Forward pass
	DetectionsSeen    atomic.Int64
	DetectionsApplied atomic.Int64
	DetectionsSkipped atomic.Int64
	Allocations       atomic.Int64
	DedupHits         atomic.Int64

	// Reverse pass
	PlaceholdersSubstituted atomic.Int64 // occurrences replaced
	PlaceholdersMissing     atomic.Int64 // store entries not found in the text
	UnknownPlaceholders     atomic.Int64 // placeholder-shaped tokens not in the store

	// Detector chain
	DetectorErrors atomic.Int64

	mu         sync.Mutex
	perType    map[string]int64
	passStat   latencyStats
	detectStat latencyStats
	runID      string
	startTime  time.Time
}

// New returns Metrics for the run identified by runID.
func New(runID string) *Metrics {
	return &Metrics{
		runID:     runID,
		startTime: time.Now(),
		perType:   make(map[string]int64),
	}
}

// RecordAllocation counts one new placeholder for entityType.
func (m *Metrics) RecordAllocation(entityType string) {
	if m == nil {
		return
	}
	m.Allocations.Add(1)
	m.mu.Lock()
	m.perType[entityType]++
	m.mu.Unlock()
}

// RecordPassLatency records the duration of one substitution pass.
func (m *Metrics) RecordPassLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.passStat.record(float64(d.Microseconds()) / 1000.0)
	m.mu.Unlock()
}

// RecordDetectLatency records the duration of one detector call.
func (m *Metrics) RecordDetectLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.detectStat.record(float64(d.Microseconds()) / 1000.0)
	m.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	pass := m.passStat.snapshot()
	detect := m.detectStat.snapshot()
	types := make([]TypeCount, 0, len(m.perType))
	for t, n := range m.perType {
		types = append(types, TypeCount{EntityType: t, Allocations: n})
	}
	m.mu.Unlock()
	sort.Slice(types, func(i, j int) bool { return types[i].EntityType < types[j].EntityType })

	return Snapshot{
		RunID: m.runID,
		Forward: ForwardSnapshot{
			DetectionsSeen:    m.DetectionsSeen.Load(),
			DetectionsApplied: m.DetectionsApplied.Load(),
			DetectionsSkipped: m.DetectionsSkipped.Load(),
			Allocations:       m.Allocations.Load(),
			DedupHits:         m.DedupHits.Load(),
			PerType:           types,
		},
		Reverse: ReverseSnapshot{
			Substituted: m.PlaceholdersSubstituted.Load(),
			Missing:     m.PlaceholdersMissing.Load(),
			Unknown:     m.UnknownPlaceholders.Load(),
		},
		DetectorErrors: m.DetectorErrors.Load(),
		Latency: LatencyGroup{
			PassMs:   pass,
			DetectMs: detect,
		},
		ElapsedSecs: round2(time.Since(m.startTime).Seconds()),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	RunID          string          `json:"runId"`
	Forward        ForwardSnapshot `json:"forward"`
	Reverse        ReverseSnapshot `json:"reverse"`
	DetectorErrors int64           `json:"detectorErrors"`
	Latency        LatencyGroup    `json:"latency"`
	ElapsedSecs    float64         `json:"elapsedSecs"`
}

// ForwardSnapshot holds anonymization counters.
type ForwardSnapshot struct {
	DetectionsSeen    int64       `json:"detectionsSeen"`
	DetectionsApplied int64       `json:"detectionsApplied"`
	DetectionsSkipped int64       `json:"detectionsSkipped"`
	Allocations       int64       `json:"allocations"`
	DedupHits         int64       `json:"dedupHits"`
	PerType           []TypeCount `json:"perType,omitempty"`
}

// TypeCount is the number of placeholders allocated for one entity type.
type TypeCount struct {
	EntityType  string `json:"entityType"`
	Allocations int64  `json:"allocations"`
}

// ReverseSnapshot holds deanonymization counters.
type ReverseSnapshot struct {
	Substituted int64 `json:"substituted"`
	Missing     int64 `json:"missing"`
	Unknown     int64 `json:"unknown"`
}

// LatencyGroup groups the latency dimensions.
type LatencyGroup struct {
	PassMs   LatencySnapshot `json:"passMs"`
	DetectMs LatencySnapshot `json:"detectMs"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
