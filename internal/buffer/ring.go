// SPDX-License-Identifier: MIT
/*
Package buffer holds the live sample window shared between the audio
capture callback and the per-tick detector.

Thread Safety:
  - A single mutex guards the samples
  - Push holds it only for the shift-and-append
  - Snapshot holds it only for the copy-out
  - Callers analyse their own copies, never the internal slice
*/
package buffer

import (
	"math"
	"sync"
	"sync/atomic"
)

// Ring is a fixed-capacity window over the most recent mono samples.
// New samples shift the oldest ones out; the window starts zero-filled, so
// snapshots taken before the first fill are zero-padded on the left.
type Ring struct {
	mu      sync.Mutex
	samples []float32
	pushed  uint64

	volume atomic.Uint64 // math.Float64bits of the last snapshot's RMS
}

// NewRing creates a Ring holding capacity samples. Non-positive capacities
// are clamped to 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{samples: make([]float32, capacity)}
}

// Push appends newly captured samples, evicting the same number of the
// oldest ones. Called from the capture callback.
func (r *Ring) Push(in []float32) {
	n := len(in)
	if n == 0 {
		return
	}

	r.mu.Lock()
	capacity := len(r.samples)
	if n >= capacity {
		copy(r.samples, in[n-capacity:])
	} else {
		copy(r.samples, r.samples[n:])
		copy(r.samples[capacity-n:], in)
	}
	r.pushed += uint64(n)
	r.mu.Unlock()
}

// Snapshot returns a copy of the most recent length samples, or of the whole
// window when length exceeds the capacity. The RMS of the copy becomes the
// value reported by Volume.
func (r *Ring) Snapshot(length int) []float32 {
	if length <= 0 {
		r.volume.Store(0)
		return []float32{}
	}

	r.mu.Lock()
	capacity := len(r.samples)
	if length > capacity {
		length = capacity
	}
	out := make([]float32, length)
	copy(out, r.samples[capacity-length:])
	r.mu.Unlock()

	r.volume.Store(math.Float64bits(RMS(out)))
	return out
}

// Volume returns the root-mean-square amplitude of the most recent
// snapshot, 0 before the first one.
func (r *Ring) Volume() float64 {
	return math.Float64frombits(r.volume.Load())
}

// Reset zeroes the window, as after switching input devices.
func (r *Ring) Reset() {
	r.mu.Lock()
	clear(r.samples)
	r.pushed = 0
	r.mu.Unlock()
	r.volume.Store(0)
}

// Cap returns the fixed capacity of the window.
func (r *Ring) Cap() int {
	return len(r.samples) // immutable after creation
}

// Len returns how many samples of the window hold captured audio.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pushed > uint64(len(r.samples)) {
		return len(r.samples)
	}
	return int(r.pushed)
}

// Pushed returns the total number of samples pushed since creation or the
// last Reset.
func (r *Ring) Pushed() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushed
}

// RMS returns the root-mean-square amplitude of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Level maps an RMS value onto a 0..1 meter scale; full scale is reached at
// an RMS of 0.1.
func Level(rms float64) float64 {
	return math.Min(rms*10, 1.0)
}
