// SPDX-License-Identifier: MIT
/*
Package note maps frequencies onto named musical notes.

A Table holds the reference pitch of every note the tuner knows. A Resolver
finds the table entry nearest to a measured frequency and reports the
deviation in cents, which Classify turns into a tuning status.
*/
package note

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	// ConcertA is the reference pitch of A4 in Hz.
	ConcertA = 440.0

	DefaultLowest  = "C3"
	DefaultHighest = "B6"
)

// ErrInvalidNote is returned for note names that cannot be parsed.
var ErrInvalidNote = errors.New("invalid note name")

var (
	sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	semitones  = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}
)

// Entry is one note of a Table.
type Entry struct {
	Name      string
	Frequency float64
}

// Table is an immutable set of reference pitches, ordered by frequency.
type Table struct {
	entries []Entry
	byName  map[string]float64
}

// NewTable builds a Table from a name to frequency mapping. Non-positive or
// non-finite frequencies are rejected.
func NewTable(refs map[string]float64) (*Table, error) {
	if len(refs) == 0 {
		return nil, errors.New("note table must not be empty")
	}
	t := &Table{
		entries: make([]Entry, 0, len(refs)),
		byName:  make(map[string]float64, len(refs)),
	}
	for name, freq := range refs {
		if freq <= 0 || math.IsNaN(freq) || math.IsInf(freq, 0) {
			return nil, fmt.Errorf("note %q: reference frequency must be positive, got %f", name, freq)
		}
		t.entries = append(t.entries, Entry{Name: name, Frequency: freq})
		t.byName[name] = freq
	}
	sort.Slice(t.entries, func(i, j int) bool {
		if t.entries[i].Frequency == t.entries[j].Frequency {
			return t.entries[i].Name < t.entries[j].Name
		}
		return t.entries[i].Frequency < t.entries[j].Frequency
	})
	return t, nil
}

// NewEqualTemperedTable builds a twelve-tone equal temperament table with
// A4 at reference Hz, covering from..to inclusive. Names use sharps.
func NewEqualTemperedTable(reference float64, from, to string) (*Table, error) {
	if reference <= 0 || math.IsNaN(reference) || math.IsInf(reference, 0) {
		return nil, fmt.Errorf("reference pitch must be positive, got %f", reference)
	}
	lo, err := MIDINumber(from)
	if err != nil {
		return nil, err
	}
	hi, err := MIDINumber(to)
	if err != nil {
		return nil, err
	}
	if hi < lo {
		return nil, fmt.Errorf("note range %s..%s is empty", from, to)
	}

	refs := make(map[string]float64, hi-lo+1)
	for m := lo; m <= hi; m++ {
		refs[Name(m)] = reference * math.Pow(2, float64(m-69)/12)
	}
	return NewTable(refs)
}

// DefaultTable returns the equal-tempered table at A4 = 440 Hz from C3 to B6.
func DefaultTable() *Table {
	t, err := NewEqualTemperedTable(ConcertA, DefaultLowest, DefaultHighest)
	if err != nil {
		panic(err) // constant input
	}
	return t
}

// Frequency returns the reference pitch of the named note.
func (t *Table) Frequency(name string) (float64, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// Names returns the note names in ascending frequency order.
func (t *Table) Names() []string {
	names := make([]string, len(t.entries))
	for i, e := range t.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns a copy of the table in ascending frequency order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

func (t *Table) Len() int {
	return len(t.entries)
}

// MIDINumber parses scientific pitch notation such as "A4", "C#3" or "Bb2"
// and returns the MIDI note number (A4 = 69).
func MIDINumber(name string) (int, error) {
	s := strings.TrimSpace(name)
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNote, name)
	}
	base, ok := semitones[strings.ToUpper(s[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNote, name)
	}
	s = s[1:]
	switch s[0] {
	case '#':
		base++
		s = s[1:]
	case 'b':
		base--
		s = s[1:]
	}
	octave, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNote, name)
	}
	return (octave+1)*12 + base, nil
}

// Name returns the sharp-spelled name of a MIDI note number.
func Name(midi int) string {
	pc := ((midi % 12) + 12) % 12
	octave := (midi-pc)/12 - 1
	return sharpNames[pc] + strconv.Itoa(octave)
}
