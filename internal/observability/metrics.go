package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	startedAt    time.Time
	requestCount map[string]int64
	requestNanos map[string]int64
	errorCount   map[string]int64
	gauges       map[string]func() int64
}

// RouteStat aggregates one route|method|status key.
type RouteStat struct {
	Key       string  `json:"key"`
	Count     int64   `json:"count"`
	AvgMillis float64 `json:"avg_ms"`
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	Requests      []RouteStat      `json:"requests"`
	Errors        map[string]int64 `json:"errors"`
	Gauges        map[string]int64 `json:"gauges"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		startedAt:    time.Now(),
		requestCount: make(map[string]int64),
		requestNanos: make(map[string]int64),
		errorCount:   make(map[string]int64),
		gauges:       make(map[string]func() int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestNanos[key] += duration.Nanoseconds()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RegisterGauge exposes a value sampled on every snapshot.
func (m *Metrics) RegisterGauge(name string, fn func() int64) {
	if m == nil || fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = fn
}

// Snapshot copies the current counters. Gauges are sampled outside the lock.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	snap := Snapshot{
		UptimeSeconds: int64(time.Since(m.startedAt).Seconds()),
		Requests:      make([]RouteStat, 0, len(m.requestCount)),
		Errors:        make(map[string]int64, len(m.errorCount)),
		Gauges:        make(map[string]int64, len(m.gauges)),
	}
	for key, count := range m.requestCount {
		stat := RouteStat{Key: key, Count: count}
		if count > 0 {
			stat.AvgMillis = float64(m.requestNanos[key]) / float64(count) / float64(time.Millisecond)
		}
		snap.Requests = append(snap.Requests, stat)
	}
	for key, count := range m.errorCount {
		snap.Errors[key] = count
	}
	gauges := make(map[string]func() int64, len(m.gauges))
	for name, fn := range m.gauges {
		gauges[name] = fn
	}
	m.mu.Unlock()

	for name, fn := range gauges {
		snap.Gauges[name] = fn()
	}
	sort.Slice(snap.Requests, func(i, j int) bool { return snap.Requests[i].Key < snap.Requests[j].Key })
	return snap
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
