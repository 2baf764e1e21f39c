package networking

import (
	"sync"
	"time"
)

// DefaultSnapshotBytesPerSecond caps the state stream per client.
const DefaultSnapshotBytesPerSecond = 256 * 1024

// BandwidthUsage is the throttling state of one client.
type BandwidthUsage struct {
	ClientID       string
	AvailableBytes float64
	SentBytes      int64
	Denied         int64
}

type bucket struct {
	tokens float64
	last   time.Time
	sent   int64
	denied int64
}

// BandwidthRegulator is a per-client token bucket applied to state snapshots only.
// Lifecycle messages bypass it so clients never miss a round transition.
type BandwidthRegulator struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	refill   float64
	now      func() time.Time
}

// NewBandwidthRegulator enforces bytesPerSecond with a one second burst.
func NewBandwidthRegulator(bytesPerSecond float64, clock func() time.Time) *BandwidthRegulator {
	if bytesPerSecond <= 0 {
		bytesPerSecond = DefaultSnapshotBytesPerSecond
	}
	if clock == nil {
		clock = time.Now
	}
	return &BandwidthRegulator{
		buckets:  make(map[string]*bucket),
		capacity: bytesPerSecond,
		refill:   bytesPerSecond,
		now:      clock,
	}
}

func (r *BandwidthRegulator) refillLocked(b *bucket, now time.Time) {
	if !now.After(b.last) {
		return
	}
	b.tokens += now.Sub(b.last).Seconds() * r.refill
	if b.tokens > r.capacity {
		b.tokens = r.capacity
	}
	b.last = now
}

// Allow charges payloadBytes to clientID and reports whether the snapshot may be sent.
func (r *BandwidthRegulator) Allow(clientID string, payloadBytes int) bool {
	if r == nil || clientID == "" || payloadBytes <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	b := r.buckets[clientID]
	if b == nil {
		//1.- New clients start with a full bucket so the first snapshot always goes out.
		b = &bucket{tokens: r.capacity, last: now}
		r.buckets[clientID] = b
	}
	r.refillLocked(b, now)
	if float64(payloadBytes) > b.tokens {
		b.denied++
		return false
	}
	b.tokens -= float64(payloadBytes)
	b.sent += int64(payloadBytes)
	return true
}

// Forget removes the bucket of a disconnected client.
func (r *BandwidthRegulator) Forget(clientID string) {
	if r == nil || clientID == "" {
		return
	}
	r.mu.Lock()
	delete(r.buckets, clientID)
	r.mu.Unlock()
}

// Usage reports the current state of every bucket.
func (r *BandwidthRegulator) Usage() map[string]BandwidthUsage {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	usage := make(map[string]BandwidthUsage, len(r.buckets))
	for clientID, b := range r.buckets {
		r.refillLocked(b, now)
		usage[clientID] = BandwidthUsage{
			ClientID:       clientID,
			AvailableBytes: b.tokens,
			SentBytes:      b.sent,
			Denied:         b.denied,
		}
	}
	return usage
}
