// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"sync"
)

// MockTransport records everything sent through it, for tests.
type MockTransport struct {
	mu     sync.Mutex
	Sent   []any
	Closed bool
	Err    error // returned from Send when set
}

// Send stores the data for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, data)
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

// Last returns the most recently sent value, or nil.
func (m *MockTransport) Last() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	return m.Sent[len(m.Sent)-1]
}

// GenerateSineWave returns size float32 samples of a sine at frequency Hz
// with the given peak amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// GenerateComplexWave returns a plucked-string-like tone: the fundamental
// plus two weaker harmonics.
func GenerateComplexWave(size int, sampleRate, fundamental float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*fundamental*tm)*0.5 +
			math.Sin(2*math.Pi*2*fundamental*tm)*0.2 +
			math.Sin(2*math.Pi*3*fundamental*tm)*0.1
		buffer[i] = float32(signal)
	}
	return buffer
}

// GenerateNoise returns deterministic white noise in [-amplitude, amplitude].
// A fixed LCG keeps test runs reproducible.
func GenerateNoise(size int, amplitude float64, seed uint32) []float32 {
	buffer := make([]float32, size)
	state := seed
	for i := range buffer {
		state = state*1664525 + 1013904223
		buffer[i] = float32(amplitude * (float64(state)/float64(math.MaxUint32)*2 - 1))
	}
	return buffer
}

// Mix adds b into a sample by sample and returns a.
func Mix(a, b []float32) []float32 {
	for i := range a {
		if i < len(b) {
			a[i] += b[i]
		}
	}
	return a
}
