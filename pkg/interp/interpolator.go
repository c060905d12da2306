// Package interp smooths remote player movement. The server broadcasts
// positions at roughly 30 Hz with network jitter on top; rendering those
// samples directly produces visible stutter. An Interpolator buffers
// timestamped snapshots per remote player and renders a fixed amount in the
// past, where bracketing samples usually already exist, then eases the
// rendered transform toward that target every frame.
package interp

import (
	"sync"

	"lounge/pkg/protocol"
)

const (
	// DefaultDelay is how far behind wall-clock the engine renders, in
	// milliseconds. Latency is traded for smoothness.
	DefaultDelay = 100

	// DefaultCapacity bounds the snapshot buffer; the oldest sample is
	// dropped when a push exceeds it.
	DefaultCapacity = 10

	// DefaultLerpSpeed is the per-frame easing fraction toward the target.
	DefaultLerpSpeed = 0.15

	// evictionWindow keeps snapshots this many milliseconds behind the
	// render time before they are discarded.
	evictionWindow = 1000
)

// Snapshot is one timestamped sample from the broadcast feed.
type Snapshot struct {
	Position  protocol.Vector3
	Rotation  protocol.Vector3
	Timestamp int64 // producer-side epoch milliseconds
}

// Interpolator holds the buffered samples and smoothed transform for one
// remote player. Safe for a pusher goroutine and a render loop to share.
type Interpolator struct {
	mu        sync.Mutex
	delay     int64
	capacity  int
	lerpSpeed float64

	buffer    []Snapshot
	hasTarget bool

	targetPos protocol.Vector3
	targetRot protocol.Vector3

	renderedPos protocol.Vector3
	renderedRot protocol.Vector3
}

// Option tweaks an Interpolator at construction time.
type Option func(*Interpolator)

// WithDelay overrides the render delay in milliseconds.
func WithDelay(ms int64) Option {
	return func(it *Interpolator) {
		if ms > 0 {
			it.delay = ms
		}
	}
}

// WithCapacity overrides the snapshot buffer capacity.
func WithCapacity(n int) Option {
	return func(it *Interpolator) {
		if n > 0 {
			it.capacity = n
		}
	}
}

// WithLerpSpeed overrides the per-frame easing fraction.
func WithLerpSpeed(speed float64) Option {
	return func(it *Interpolator) {
		if speed > 0 && speed <= 1 {
			it.lerpSpeed = speed
		}
	}
}

func New(opts ...Option) *Interpolator {
	it := &Interpolator{
		delay:     DefaultDelay,
		capacity:  DefaultCapacity,
		lerpSpeed: DefaultLerpSpeed,
	}
	for _, opt := range opts {
		opt(it)
	}
	it.buffer = make([]Snapshot, 0, it.capacity)
	return it
}

// Push appends a snapshot, dropping the oldest when the buffer is full.
func (it *Interpolator) Push(snap Snapshot) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if len(it.buffer) >= it.capacity {
		it.buffer = it.buffer[1:]
	}
	it.buffer = append(it.buffer, snap)
}

// Update advances the engine one frame. nowMs is the current wall clock in
// epoch milliseconds; the returned transform is the smoothed position and
// rotation to render.
//
// The target is recomputed from the buffered samples at renderTime =
// nowMs - delay. When two samples bracket the render time the target is the
// linear interpolation between them; when the render time falls outside the
// buffered range the target is left where it was, never extrapolated. The
// rendered transform then eases toward the target by the lerp fraction, so
// motion stays continuous even across buffer gaps.
func (it *Interpolator) Update(nowMs int64) (pos, rot protocol.Vector3) {
	it.mu.Lock()
	defer it.mu.Unlock()

	renderTime := nowMs - it.delay
	it.retargetLocked(renderTime)
	it.evictLocked(renderTime)

	if it.hasTarget {
		it.renderedPos = it.renderedPos.Lerp(it.targetPos, it.lerpSpeed)
		it.renderedRot = it.renderedRot.Lerp(it.targetRot, it.lerpSpeed)
	}
	return it.renderedPos, it.renderedRot
}

func (it *Interpolator) retargetLocked(renderTime int64) {
	switch {
	case len(it.buffer) >= 2:
		for i := 0; i < len(it.buffer)-1; i++ {
			prev, next := it.buffer[i], it.buffer[i+1]
			if prev.Timestamp <= renderTime && renderTime <= next.Timestamp {
				t := float64(renderTime-prev.Timestamp) / float64(next.Timestamp-prev.Timestamp)
				t = clamp(t, 0, 1)
				it.targetPos = prev.Position.Lerp(next.Position, t)
				it.targetRot = prev.Rotation.Lerp(next.Rotation, t)
				it.hasTarget = true
				return
			}
		}
		// No bracketing pair: the previous target stands.

	case len(it.buffer) == 1:
		it.targetPos = it.buffer[0].Position
		it.targetRot = it.buffer[0].Rotation
		it.hasTarget = true
	}
}

// evictLocked drops samples that fell behind the eviction window.
func (it *Interpolator) evictLocked(renderTime int64) {
	cutoff := renderTime - evictionWindow
	i := 0
	for i < len(it.buffer) && it.buffer[i].Timestamp < cutoff {
		i++
	}
	if i > 0 {
		it.buffer = it.buffer[i:]
	}
}

// Target returns the current interpolation target, for diagnostics.
func (it *Interpolator) Target() (pos, rot protocol.Vector3) {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.targetPos, it.targetRot
}

// Rendered returns the smoothed transform without advancing a frame.
func (it *Interpolator) Rendered() (pos, rot protocol.Vector3) {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.renderedPos, it.renderedRot
}

// Len reports how many snapshots are buffered.
func (it *Interpolator) Len() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return len(it.buffer)
}

// Reset drops all buffered samples and zeroes the transform.
func (it *Interpolator) Reset() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.buffer = it.buffer[:0]
	it.hasTarget = false
	it.targetPos, it.targetRot = protocol.Vector3{}, protocol.Vector3{}
	it.renderedPos, it.renderedRot = protocol.Vector3{}, protocol.Vector3{}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
