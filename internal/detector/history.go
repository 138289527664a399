// SPDX-License-Identifier: MIT
package detector

// Observation is one accepted per-tick reading.
type Observation struct {
	Note       string
	Frequency  float64
	Confidence float64
	Deviation  float64
}

// tally accumulates the observations of one note.
type tally struct {
	note       string
	weight     float64 // sum of confidences
	frequency  float64
	confidence float64
	deviation  float64
	count      int
}

// History is a bounded FIFO of observations; the oldest entry is evicted
// once it holds size entries.
type History struct {
	obs  []Observation
	size int

	tallies []tally // scratch space for Vote
}

// NewHistory creates a History holding at most size observations. Sizes
// below 1 are clamped to 1.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{
		obs:     make([]Observation, 0, size),
		size:    size,
		tallies: make([]tally, 0, size),
	}
}

// Push appends o, evicting the oldest observation when full.
func (h *History) Push(o Observation) {
	if len(h.obs) == h.size {
		copy(h.obs, h.obs[1:])
		h.obs = h.obs[:h.size-1]
	}
	h.obs = append(h.obs, o)
}

// Clear drops every observation.
func (h *History) Clear() {
	h.obs = h.obs[:0]
}

func (h *History) Len() int { return len(h.obs) }
func (h *History) Cap() int { return h.size }

// Observations returns a copy of the history, oldest first.
func (h *History) Observations() []Observation {
	return append([]Observation(nil), h.obs...)
}

// Vote picks the note with the highest summed confidence and returns the
// mean frequency, confidence and deviation of that note's observations.
// Ties go to the note seen first. Vote reports false on an empty history.
func (h *History) Vote() (Observation, bool) {
	if len(h.obs) == 0 {
		return Observation{}, false
	}

	h.tallies = h.tallies[:0]
	for _, o := range h.obs {
		i := h.find(o.Note)
		if i < 0 {
			h.tallies = append(h.tallies, tally{note: o.Note})
			i = len(h.tallies) - 1
		}
		t := &h.tallies[i]
		t.weight += o.Confidence
		t.frequency += o.Frequency
		t.confidence += o.Confidence
		t.deviation += o.Deviation
		t.count++
	}

	best := 0
	for i := 1; i < len(h.tallies); i++ {
		if h.tallies[i].weight > h.tallies[best].weight {
			best = i
		}
	}

	t := h.tallies[best]
	n := float64(t.count)
	return Observation{
		Note:       t.note,
		Frequency:  t.frequency / n,
		Confidence: t.confidence / n,
		Deviation:  t.deviation / n,
	}, true
}

// find is a linear scan; the history holds a handful of entries.
func (h *History) find(note string) int {
	for i := range h.tallies {
		if h.tallies[i].note == note {
			return i
		}
	}
	return -1
}
