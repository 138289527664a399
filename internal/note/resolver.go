// SPDX-License-Identifier: MIT
package note

import (
	"fmt"
	"math"
)

const (
	// DefaultMatchRadius is half a semitone.
	DefaultMatchRadius = 50.0

	// DefaultTolerance is the deviation still reported as in tune.
	DefaultTolerance = 10.0

	// A frequency exactly halfway between two notes lands within this many
	// cents of the radius after rounding and must not match either.
	boundaryEpsilon = 1e-6
)

// Match is the nearest table entry to a measured frequency.
type Match struct {
	Note      string
	Reference float64 // reference pitch of Note in Hz
	Cents     float64 // signed deviation, positive when sharp
}

// Resolver finds the nearest note of a Table.
type Resolver struct {
	table  *Table
	radius float64
}

// NewResolver creates a Resolver over table. A non-positive radius selects
// DefaultMatchRadius.
func NewResolver(table *Table, radius float64) *Resolver {
	if radius <= 0 {
		radius = DefaultMatchRadius
	}
	return &Resolver{table: table, radius: radius}
}

func (r *Resolver) Table() *Table   { return r.table }
func (r *Resolver) Radius() float64 { return r.radius }

// Resolve returns the entry with the smallest absolute cent distance from
// freq. It reports false for non-positive or non-finite input, and when the
// nearest entry is not strictly within the match radius.
func (r *Resolver) Resolve(freq float64) (Match, bool) {
	if freq <= 0 || math.IsNaN(freq) || math.IsInf(freq, 0) || r.table.Len() == 0 {
		return Match{}, false
	}

	best := -1
	var bestCents float64
	for i, e := range r.table.entries {
		c := Cents(freq, e.Frequency)
		if best < 0 || math.Abs(c) < math.Abs(bestCents) {
			best, bestCents = i, c
		}
	}
	if math.Abs(bestCents) >= r.radius-boundaryEpsilon {
		return Match{}, false
	}

	e := r.table.entries[best]
	return Match{Note: e.Name, Reference: e.Frequency, Cents: bestCents}, true
}

// Cents returns the signed distance from ref to freq in cents.
func Cents(freq, ref float64) float64 {
	return 1200 * math.Log2(freq/ref)
}

// Status describes how a deviation compares to the tuning tolerance.
type Status int

const (
	Perfect Status = iota
	Sharp
	Flat
)

func (s Status) String() string {
	switch s {
	case Perfect:
		return "perfect"
	case Sharp:
		return "sharp"
	case Flat:
		return "flat"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "perfect":
		*s = Perfect
	case "sharp":
		*s = Sharp
	case "flat":
		*s = Flat
	default:
		return fmt.Errorf("unknown tuning status %q", text)
	}
	return nil
}

// Classify maps a deviation in cents to a Status.
func Classify(deviation, tolerance float64) Status {
	switch {
	case math.Abs(deviation) <= tolerance:
		return Perfect
	case deviation > tolerance:
		return Sharp
	default:
		return Flat
	}
}

// InTune reports whether deviation is within tolerance.
func InTune(deviation, tolerance float64) bool {
	return math.Abs(deviation) <= tolerance
}
