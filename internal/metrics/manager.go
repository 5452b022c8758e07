// Package metrics keeps in-process counters and timings for the chat relay.
// Paths are "topic/function" strings, e.g. "llm/resolve" or "chat/outcome".
package metrics

import (
	"sort"
	"sync"
	"time"
)

const (
	maxSamples = 1000 // Keep last 1000 samples for percentile calculations
)

// MetricsManager is the global metrics manager
type MetricsManager struct {
	mu       sync.RWMutex
	timings  map[string]*TimingMetric
	hitMiss  map[string]*HitMissMetric
	counters map[string]*CounterMetric
	outcomes map[string]*OutcomeMetric
}

var (
	instance *MetricsManager
	once     sync.Once
)

// GetInstance returns the singleton metrics manager
func GetInstance() *MetricsManager {
	once.Do(func() {
		instance = NewManager()
	})
	return instance
}

// NewManager creates an empty, standalone manager.
func NewManager() *MetricsManager {
	return &MetricsManager{
		timings:  make(map[string]*TimingMetric),
		hitMiss:  make(map[string]*HitMissMetric),
		counters: make(map[string]*CounterMetric),
		outcomes: make(map[string]*OutcomeMetric),
	}
}

// buildPath creates a normalized path from topic and function
func buildPath(topic, function string) string {
	if function == "" {
		return topic
	}
	return topic + "/" + function
}

// Reset drops every recorded metric.
func (m *MetricsManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timings = make(map[string]*TimingMetric)
	m.hitMiss = make(map[string]*HitMissMetric)
	m.counters = make(map[string]*CounterMetric)
	m.outcomes = make(map[string]*OutcomeMetric)
}

// RecordDuration records a duration directly
func (m *MetricsManager) RecordDuration(topic, function string, duration time.Duration) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.timings[path]
	if !exists {
		metric = &TimingMetric{
			samples: make([]time.Duration, 0, 64),
			Min:     duration,
			Max:     duration,
		}
		m.timings[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Count++
	metric.Total += duration
	metric.Last = duration
	if duration < metric.Min {
		metric.Min = duration
	}
	if duration > metric.Max {
		metric.Max = duration
	}

	if len(metric.samples) < maxSamples {
		metric.samples = append(metric.samples, duration)
	} else {
		metric.samples[metric.sampleIdx] = duration
		metric.sampleIdx = (metric.sampleIdx + 1) % maxSamples
	}
}

// RecordHit records a cache hit
func (m *MetricsManager) RecordHit(topic, function string) {
	metric := m.hitMissFor(buildPath(topic, function))
	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Hits++
	metric.LastHit = time.Now()
}

// RecordMiss records a cache miss
func (m *MetricsManager) RecordMiss(topic, function string) {
	metric := m.hitMissFor(buildPath(topic, function))
	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Misses++
}

func (m *MetricsManager) hitMissFor(path string) *HitMissMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	metric, exists := m.hitMiss[path]
	if !exists {
		metric = &HitMissMetric{}
		m.hitMiss[path] = metric
	}
	return metric
}

// AddCounter adds to a counter
func (m *MetricsManager) AddCounter(topic, function string, delta int64) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.counters[path]
	if !exists {
		metric = &CounterMetric{}
		m.counters[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Value += delta
	metric.Last = time.Now()
}

// RecordOutcome records a specific outcome
func (m *MetricsManager) RecordOutcome(topic, function, outcome string) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.outcomes[path]
	if !exists {
		metric = &OutcomeMetric{Outcomes: make(map[string]int64)}
		m.outcomes[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Outcomes[outcome]++
	metric.Total++
	metric.LastOutcome = outcome
	metric.LastTime = time.Now()
}

// Counter returns the current value of a counter (0 if never recorded).
func (m *MetricsManager) Counter(topic, function string) int64 {
	m.mu.RLock()
	metric := m.counters[buildPath(topic, function)]
	m.mu.RUnlock()
	if metric == nil {
		return 0
	}
	metric.mu.Lock()
	defer metric.mu.Unlock()
	return metric.Value
}

// GetSnapshot returns a point-in-time view of all metrics, sorted by path.
func (m *MetricsManager) GetSnapshot() []MetricSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := make([]MetricSnapshot, 0, len(m.timings)+len(m.hitMiss)+len(m.counters)+len(m.outcomes))

	for path, t := range m.timings {
		t.mu.Lock()
		data := TimingSnapshot{
			Count:  t.Count,
			MinMs:  ms(t.Min),
			MaxMs:  ms(t.Max),
			LastMs: ms(t.Last),
			P95Ms:  calculatePercentile(t.samples, 95),
		}
		if t.Count > 0 {
			data.AvgMs = ms(t.Total) / float64(t.Count)
		}
		t.mu.Unlock()
		snaps = append(snaps, MetricSnapshot{Path: path, Type: TypeTiming, Data: data})
	}

	for path, h := range m.hitMiss {
		h.mu.Lock()
		data := HitMissSnapshot{Hits: h.Hits, Misses: h.Misses}
		if total := h.Hits + h.Misses; total > 0 {
			data.HitRate = float64(h.Hits) / float64(total)
		}
		h.mu.Unlock()
		snaps = append(snaps, MetricSnapshot{Path: path, Type: TypeHitMiss, Data: data})
	}

	for path, c := range m.counters {
		c.mu.Lock()
		data := CounterSnapshot{Value: c.Value}
		c.mu.Unlock()
		snaps = append(snaps, MetricSnapshot{Path: path, Type: TypeCounter, Data: data})
	}

	for path, o := range m.outcomes {
		o.mu.Lock()
		outcomes := make(map[string]int64, len(o.Outcomes))
		for k, v := range o.Outcomes {
			outcomes[k] = v
		}
		data := OutcomeSnapshot{Outcomes: outcomes, Total: o.Total, LastOutcome: o.LastOutcome}
		o.mu.Unlock()
		snaps = append(snaps, MetricSnapshot{Path: path, Type: TypeOutcome, Data: data})
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Path < snaps[j].Path })
	return snaps
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// calculatePercentile returns the percentile in milliseconds
func calculatePercentile(samples []time.Duration, percentile int) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := (len(sorted) * percentile) / 100
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return ms(sorted[index])
}
