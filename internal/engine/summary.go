package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// UnitFailure pairs a unit with the error that kept it from building.
type UnitFailure struct {
	ID  string
	Err error
}

// BuildSummary reports what one batch did. Failed lists units that could not
// load or render this batch; their previous outputs remain served. Degraded
// lists units that rendered with fallback markers.
type BuildSummary struct {
	Generation  uint64
	Started     time.Time
	Duration    time.Duration
	Loaded      int
	Removed     int
	Total       int
	Rendered    int
	CacheHits   int
	Failed      []UnitFailure
	Degraded    []string
	Interrupted bool
}

func newSummary() *BuildSummary {
	return &BuildSummary{Started: time.Now()}
}

func (s *BuildSummary) fail(id string, err error) {
	s.Failed = append(s.Failed, UnitFailure{ID: id, Err: err})
}

// OK reports whether every unit in the batch built cleanly.
func (s *BuildSummary) OK() bool {
	return len(s.Failed) == 0 && !s.Interrupted
}

func (s *BuildSummary) String() string {
	msg := fmt.Sprintf("rendered %d/%d units (%d cached) in %s",
		s.Rendered, s.Total, s.CacheHits, s.Duration.Round(time.Millisecond))
	if len(s.Failed) > 0 {
		msg += fmt.Sprintf(", %d failed", len(s.Failed))
	}
	if len(s.Degraded) > 0 {
		msg += fmt.Sprintf(", %d degraded", len(s.Degraded))
	}
	if s.Interrupted {
		msg += " (interrupted)"
	}
	return msg
}

// Report renders the multi-line failure breakdown shown after a batch with
// problems. Units sort by id so output is stable.
func (s *BuildSummary) Report() string {
	if s.OK() && len(s.Degraded) == 0 {
		return s.String()
	}
	msg := s.String()

	failed := make([]UnitFailure, len(s.Failed))
	copy(failed, s.Failed)
	sort.Slice(failed, func(i, j int) bool { return failed[i].ID < failed[j].ID })
	for _, f := range failed {
		msg += fmt.Sprintf("\n  %s: %v", f.ID, f.Err)
	}

	degraded := make([]string, len(s.Degraded))
	copy(degraded, s.Degraded)
	sort.Strings(degraded)
	for _, id := range degraded {
		msg += fmt.Sprintf("\n  %s: rendered with fallback markers", id)
	}
	return msg
}

// Metrics accumulates build counters across the engine's lifetime.
type Metrics struct {
	mutex           sync.RWMutex
	totalBuilds     int64
	totalRendered   int64
	totalCacheHits  int64
	totalFailures   int64
	totalDuration   time.Duration
	lastBuild       time.Time
	lastGeneration  uint64
	lastSummaryLine string
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	TotalBuilds     int64
	TotalRendered   int64
	TotalCacheHits  int64
	TotalFailures   int64
	AverageDuration time.Duration
	LastBuild       time.Time
	LastGeneration  uint64
	LastSummary     string
}

func (m *Metrics) record(s *BuildSummary) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.totalBuilds++
	m.totalRendered += int64(s.Rendered)
	m.totalCacheHits += int64(s.CacheHits)
	m.totalFailures += int64(len(s.Failed))
	m.totalDuration += s.Duration
	m.lastBuild = time.Now()
	m.lastGeneration = s.Generation
	m.lastSummaryLine = s.String()
}

func (m *Metrics) snapshot() MetricsSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	snap := MetricsSnapshot{
		TotalBuilds:    m.totalBuilds,
		TotalRendered:  m.totalRendered,
		TotalCacheHits: m.totalCacheHits,
		TotalFailures:  m.totalFailures,
		LastBuild:      m.lastBuild,
		LastGeneration: m.lastGeneration,
		LastSummary:    m.lastSummaryLine,
	}
	if m.totalBuilds > 0 {
		snap.AverageDuration = m.totalDuration / time.Duration(m.totalBuilds)
	}
	return snap
}
