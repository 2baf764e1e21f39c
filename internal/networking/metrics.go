package networking

import (
	"sort"
	"sync"
)

// Drop reasons reported by SnapshotMetrics.
const (
	DropQueueFull = "queue_full"
	DropThrottled = "throttled"
)

// SnapshotMetrics tracks encoded snapshot sizes and delivery drops.
type SnapshotMetrics struct {
	mu         sync.RWMutex
	lastBytes  map[string]int64
	codecBytes map[string]int64
	codecSent  map[string]int64
	drops      map[string]int64
	broadcasts int64
}

// NewSnapshotMetrics constructs an empty metrics tracker.
func NewSnapshotMetrics() *SnapshotMetrics {
	return &SnapshotMetrics{
		lastBytes:  make(map[string]int64),
		codecBytes: make(map[string]int64),
		codecSent:  make(map[string]int64),
		drops:      make(map[string]int64),
	}
}

// ObserveBroadcast counts one snapshot fan-out.
func (m *SnapshotMetrics) ObserveBroadcast() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.broadcasts++
	m.mu.Unlock()
}

// ObserveEncoded records the payload size of one encoding.
func (m *SnapshotMetrics) ObserveEncoded(codec string, payloadBytes int) {
	if m == nil || payloadBytes < 0 {
		return
	}
	m.mu.Lock()
	m.codecBytes[codec] += int64(payloadBytes)
	m.codecSent[codec]++
	m.mu.Unlock()
}

// ObserveDelivery records the size of the snapshot last queued for clientID.
func (m *SnapshotMetrics) ObserveDelivery(clientID string, payloadBytes int) {
	if m == nil || clientID == "" {
		return
	}
	m.mu.Lock()
	m.lastBytes[clientID] = int64(payloadBytes)
	m.mu.Unlock()
}

// ObserveDrop counts a snapshot that was not delivered.
func (m *SnapshotMetrics) ObserveDrop(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.mu.Lock()
	m.drops[reason]++
	m.mu.Unlock()
}

// ForgetClient removes the gauges for a disconnected client.
func (m *SnapshotMetrics) ForgetClient(clientID string) {
	if m == nil || clientID == "" {
		return
	}
	m.mu.Lock()
	delete(m.lastBytes, clientID)
	m.mu.Unlock()
}

// MetricsSnapshot is a consistent copy of the counters.
type MetricsSnapshot struct {
	Broadcasts     int64
	BytesPerClient map[string]int64
	BytesPerCodec  map[string]int64
	SentPerCodec   map[string]int64
	Drops          map[string]int64
}

// Codecs returns the codec names in stable order.
func (s MetricsSnapshot) Codecs() []string {
	names := make([]string, 0, len(s.BytesPerCodec))
	for name := range s.BytesPerCodec {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot copies every counter.
func (m *SnapshotMetrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		Broadcasts:     m.broadcasts,
		BytesPerClient: copyCounts(m.lastBytes),
		BytesPerCodec:  copyCounts(m.codecBytes),
		SentPerCodec:   copyCounts(m.codecSent),
		Drops:          copyCounts(m.drops),
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
