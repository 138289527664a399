// SPDX-License-Identifier: MIT
package buffer

import (
	"math"
	"sync"
	"testing"

	"tuner/pkg/utils"
)

func seq(from, to int) []float32 {
	out := make([]float32, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, float32(i))
	}
	return out
}

func equal(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRingPushShift(t *testing.T) {
	tests := []struct {
		desc   string
		pushes [][]float32
		want   []float32
	}{
		{"Empty window is zero", nil, []float32{0, 0, 0, 0, 0}},
		{"Partial fill zero-pads left", [][]float32{seq(1, 2)}, []float32{0, 0, 0, 1, 2}},
		{"Exact fill", [][]float32{seq(1, 5)}, seq(1, 5)},
		{"Shift evicts oldest", [][]float32{seq(1, 5), seq(6, 7)}, seq(3, 7)},
		{"Oversized block keeps tail", [][]float32{seq(1, 8)}, seq(4, 8)},
		{"Empty push is a no-op", [][]float32{seq(1, 3), {}}, []float32{0, 0, 1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			r := NewRing(5)
			for _, p := range tt.pushes {
				r.Push(p)
			}
			got := r.Snapshot(5)
			if !equal(got, tt.want) {
				t.Errorf("Snapshot(5) = %v, want %v", got, tt.want)
			}
			if r.Cap() != 5 {
				t.Errorf("Cap() = %d, want 5", r.Cap())
			}
		})
	}
}

func TestRingSnapshotLength(t *testing.T) {
	r := NewRing(6)
	r.Push(seq(1, 6))

	tests := []struct {
		length int
		want   []float32
	}{
		{3, seq(4, 6)},
		{6, seq(1, 6)},
		{100, seq(1, 6)}, // clamped to capacity
		{0, []float32{}},
		{-4, []float32{}},
	}
	for _, tt := range tests {
		got := r.Snapshot(tt.length)
		if !equal(got, tt.want) {
			t.Errorf("Snapshot(%d) = %v, want %v", tt.length, got, tt.want)
		}
	}
}

func TestRingSnapshotIsCopy(t *testing.T) {
	r := NewRing(4)
	r.Push(seq(1, 4))

	snap := r.Snapshot(4)
	snap[0] = 99

	if again := r.Snapshot(4); again[0] != 1 {
		t.Errorf("modifying a snapshot changed the ring: %v", again)
	}
}

func TestRingVolume(t *testing.T) {
	r := NewRing(4096)
	if r.Volume() != 0 {
		t.Errorf("Volume() before snapshot = %f, want 0", r.Volume())
	}

	r.Push(utils.GenerateSineWave(4096, 44100, 440, 0.5))
	r.Snapshot(4096)

	// RMS of a sine is amplitude/sqrt(2).
	want := 0.5 / math.Sqrt2
	if got := r.Volume(); math.Abs(got-want) > 0.01 {
		t.Errorf("Volume() = %f, want ~%f", got, want)
	}

	r.Reset()
	if r.Volume() != 0 || r.Len() != 0 || r.Pushed() != 0 {
		t.Errorf("Reset() left state: volume=%f filled=%d pushed=%d", r.Volume(), r.Len(), r.Pushed())
	}
	if snap := r.Snapshot(8); !equal(snap, make([]float32, 8)) {
		t.Errorf("Reset() did not zero samples: %v", snap)
	}
}

func TestRingLen(t *testing.T) {
	r := NewRing(10)
	r.Push(seq(1, 4))
	if r.Len() != 4 {
		t.Errorf("Len() = %d, want 4", r.Len())
	}
	r.Push(seq(1, 20))
	if r.Len() != 10 {
		t.Errorf("Len() = %d, want 10", r.Len())
	}
	if r.Pushed() != 24 {
		t.Errorf("Pushed() = %d, want 24", r.Pushed())
	}
}

func TestNewRingClampsCapacity(t *testing.T) {
	r := NewRing(0)
	if r.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1", r.Cap())
	}
	r.Push([]float32{3, 4})
	if got := r.Snapshot(1); got[0] != 4 {
		t.Errorf("Snapshot(1) = %v, want [4]", got)
	}
}

func TestRMSAndLevel(t *testing.T) {
	if RMS(nil) != 0 {
		t.Error("RMS(nil) should be 0")
	}
	if got := RMS([]float32{1, -1, 1, -1}); got != 1 {
		t.Errorf("RMS(±1) = %f, want 1", got)
	}

	tests := []struct {
		rms, want float64
	}{
		{0, 0},
		{0.05, 0.5},
		{0.1, 1},
		{0.7, 1},
	}
	for _, tt := range tests {
		if got := Level(tt.rms); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Level(%f) = %f, want %f", tt.rms, got, tt.want)
		}
	}
}

// TestRingConcurrentPushSnapshot exercises the writer/reader split under the
// race detector: snapshots must always be a contiguous run of pushed values.
func TestRingConcurrentPushSnapshot(t *testing.T) {
	const block = 64
	r := NewRing(block * 4)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		next := float32(1)
		for range 2000 {
			in := make([]float32, block)
			for i := range in {
				in[i] = next
				next++
			}
			r.Push(in)
		}
	}()

	for range 2000 {
		snap := r.Snapshot(block)
		for i := 1; i < len(snap); i++ {
			if snap[i-1] != 0 && snap[i] != snap[i-1]+1 {
				t.Fatalf("torn snapshot at %d: %v -> %v", i, snap[i-1], snap[i])
			}
		}
	}
	wg.Wait()
}

func TestRingPushZeroAllocs(t *testing.T) {
	r := NewRing(16384)
	in := make([]float32, 4096)
	allocs := testing.AllocsPerRun(100, func() {
		r.Push(in)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Push hot path, got %.1f", allocs)
	}
}

func BenchmarkRingPush(b *testing.B) {
	r := NewRing(16384)
	in := utils.GenerateSineWave(4096, 44100, 440, 0.5)
	b.ReportAllocs()
	for b.Loop() {
		r.Push(in)
	}
}

func BenchmarkRingSnapshot(b *testing.B) {
	r := NewRing(16384)
	r.Push(utils.GenerateSineWave(16384, 44100, 440, 0.5))
	b.ReportAllocs()
	for b.Loop() {
		_ = r.Snapshot(4096)
	}
}
