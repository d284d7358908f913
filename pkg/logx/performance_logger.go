package logx

import (
	"fmt"
	"sync"
	"time"
)

// PerformanceLogger keeps per-phase timing statistics and logs slow or failed phases
type PerformanceLogger struct {
	logger        *Logger
	slowThreshold time.Duration
	metrics       map[string]*PhaseMetric
	mu            sync.RWMutex
}

// PhaseMetric tracks timings for one named phase
type PhaseMetric struct {
	Name          string        `json:"name"`
	Count         int64         `json:"count"`
	ErrorCount    int64         `json:"error_count"`
	TotalDuration time.Duration `json:"total_duration"`
	MinDuration   time.Duration `json:"min_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
	LastDuration  time.Duration `json:"last_duration"`
	LastExecuted  time.Time     `json:"last_executed"`
}

// AvgDuration returns the mean duration over all completions
func (m PhaseMetric) AvgDuration() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(m.Count)
}

// PhaseTimer is returned by Start and closed by Complete
type PhaseTimer struct {
	name  string
	start time.Time
	pl    *PerformanceLogger
	once  sync.Once
}

// NewPerformanceLogger creates a tracker that warns about phases slower than slowThreshold
func NewPerformanceLogger(logger *Logger, slowThreshold time.Duration) *PerformanceLogger {
	return &PerformanceLogger{
		logger:        logger,
		slowThreshold: slowThreshold,
		metrics:       make(map[string]*PhaseMetric),
	}
}

// Start begins timing a phase
func (pl *PerformanceLogger) Start(name string) *PhaseTimer {
	return &PhaseTimer{name: name, start: time.Now(), pl: pl}
}

// Complete records the phase result; only the first call counts
func (pt *PhaseTimer) Complete(err error) time.Duration {
	if pt == nil {
		return 0
	}
	d := time.Since(pt.start)
	pt.once.Do(func() {
		if pt.pl != nil {
			pt.pl.record(pt.name, d, err)
		}
	})
	return d
}

func (pl *PerformanceLogger) record(name string, d time.Duration, err error) {
	pl.mu.Lock()
	m, ok := pl.metrics[name]
	if !ok {
		m = &PhaseMetric{Name: name, MinDuration: d}
		pl.metrics[name] = m
	}
	m.Count++
	m.TotalDuration += d
	m.LastDuration = d
	m.LastExecuted = time.Now()
	if d < m.MinDuration {
		m.MinDuration = d
	}
	if d > m.MaxDuration {
		m.MaxDuration = d
	}
	if err != nil {
		m.ErrorCount++
	}
	snapshot := *m
	pl.mu.Unlock()

	switch {
	case err != nil:
		pl.logger.Warn("Phase failed",
			"phase", name,
			"duration", d.String(),
			"error", err,
			"error_count", snapshot.ErrorCount)
	case pl.slowThreshold > 0 && d > pl.slowThreshold:
		pl.logger.Warn("Slow phase",
			"phase", name,
			"duration", d.String(),
			"threshold", pl.slowThreshold.String(),
			"avg_duration", snapshot.AvgDuration().String())
	default:
		pl.logger.Debug("Phase completed", "phase", name, "duration", d.String())
	}
}

// GetMetric returns a copy of the named metric
func (pl *PerformanceLogger) GetMetric(name string) (PhaseMetric, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	m, ok := pl.metrics[name]
	if !ok {
		return PhaseMetric{}, false
	}
	return *m, true
}

// LogMetrics writes one summary line per phase
func (pl *PerformanceLogger) LogMetrics() {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	for name, m := range pl.metrics {
		success := 100.0
		if m.Count > 0 {
			success = float64(m.Count-m.ErrorCount) / float64(m.Count) * 100
		}
		pl.logger.Info("Phase summary",
			"phase", name,
			"count", m.Count,
			"avg_duration", m.AvgDuration().String(),
			"min_duration", m.MinDuration.String(),
			"max_duration", m.MaxDuration.String(),
			"success_rate", fmt.Sprintf("%.2f%%", success))
	}
}
