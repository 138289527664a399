// SPDX-License-Identifier: MIT
package note

import (
	"errors"
	"math"
	"testing"
)

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()
	if table.Len() != 48 {
		t.Fatalf("Len() = %d, want 48", table.Len())
	}

	names := table.Names()
	if names[0] != "C3" || names[len(names)-1] != "B6" {
		t.Errorf("range = %s..%s, want C3..B6", names[0], names[len(names)-1])
	}

	tests := []struct {
		name string
		want float64
	}{
		{"A4", 440},
		{"A3", 220},
		{"A5", 880},
		{"C4", 261.6256},
		{"E4", 329.6276},
		{"G#4", 415.3047},
		{"B6", 1975.5332},
	}
	for _, tt := range tests {
		got, ok := table.Frequency(tt.name)
		if !ok {
			t.Errorf("Frequency(%q) not found", tt.name)
			continue
		}
		if math.Abs(got-tt.want) > 0.001 {
			t.Errorf("Frequency(%q) = %.4f, want %.4f", tt.name, got, tt.want)
		}
	}

	if _, ok := table.Frequency("Bb4"); ok {
		t.Error("Frequency(\"Bb4\") should not be found, names use sharps")
	}

	entries := table.Entries()
	for i := 1; i < len(entries); i++ {
		if entries[i].Frequency <= entries[i-1].Frequency {
			t.Fatalf("entries not ascending at %d: %v", i, entries[i-1:i+1])
		}
	}
}

func TestNewEqualTemperedTable(t *testing.T) {
	table, err := NewEqualTemperedTable(442, "A4", "A5")
	if err != nil {
		t.Fatalf("NewEqualTemperedTable() error = %v", err)
	}
	if table.Len() != 13 {
		t.Errorf("Len() = %d, want 13", table.Len())
	}
	if f, _ := table.Frequency("A5"); math.Abs(f-884) > 1e-9 {
		t.Errorf("Frequency(A5) = %f, want 884", f)
	}

	invalid := []struct {
		desc     string
		ref      float64
		from, to string
	}{
		{"Zero reference", 0, "C3", "B6"},
		{"Bad lowest", 440, "H3", "B6"},
		{"Bad highest", 440, "C3", "B"},
		{"Empty range", 440, "C5", "C4"},
	}
	for _, tt := range invalid {
		t.Run(tt.desc, func(t *testing.T) {
			if _, err := NewEqualTemperedTable(tt.ref, tt.from, tt.to); err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}
}

func TestNewTable(t *testing.T) {
	table, err := NewTable(map[string]float64{"E4": 329.63, "A4": 440, "G3": 196})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	want := []string{"G3", "E4", "A4"}
	got := table.Names()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names() = %v, want %v", got, want)
			break
		}
	}

	if _, err := NewTable(nil); err == nil {
		t.Error("NewTable(nil) expected an error")
	}
	if _, err := NewTable(map[string]float64{"X": -1}); err == nil {
		t.Error("NewTable with negative frequency expected an error")
	}
}

func TestMIDINumber(t *testing.T) {
	tests := []struct {
		name string
		want int
		err  bool
	}{
		{"A4", 69, false},
		{"C4", 60, false},
		{"C#4", 61, false},
		{"Db4", 61, false},
		{"B3", 59, false},
		{"Cb4", 59, false},
		{"C-1", 0, false},
		{" g2 ", 43, false},
		{"", 0, true},
		{"A", 0, true},
		{"A#", 0, true},
		{"X4", 0, true},
		{"A4x", 0, true},
	}
	for _, tt := range tests {
		got, err := MIDINumber(tt.name)
		if (err != nil) != tt.err {
			t.Errorf("MIDINumber(%q) error = %v, wantErr %v", tt.name, err, tt.err)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidNote) {
			t.Errorf("MIDINumber(%q) error = %v, want ErrInvalidNote", tt.name, err)
		}
		if !tt.err && got != tt.want {
			t.Errorf("MIDINumber(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}

	for m := 0; m < 128; m++ {
		if back, err := MIDINumber(Name(m)); err != nil || back != m {
			t.Errorf("MIDINumber(Name(%d)=%q) = %d, %v", m, Name(m), back, err)
		}
	}
}

func TestResolveRoundTrip(t *testing.T) {
	table := DefaultTable()
	r := NewResolver(table, DefaultMatchRadius)

	for _, e := range table.Entries() {
		m, ok := r.Resolve(e.Frequency)
		if !ok {
			t.Errorf("Resolve(%f) found no match, want %s", e.Frequency, e.Name)
			continue
		}
		if m.Note != e.Name {
			t.Errorf("Resolve(%f).Note = %s, want %s", e.Frequency, m.Note, e.Name)
		}
		if math.Abs(m.Cents) >= 0.1 {
			t.Errorf("Resolve(%f).Cents = %f, want |c| < 0.1", e.Frequency, m.Cents)
		}
		if m.Reference != e.Frequency {
			t.Errorf("Resolve(%f).Reference = %f", e.Frequency, m.Reference)
		}
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver(DefaultTable(), DefaultMatchRadius)
	a4, _ := r.Table().Frequency("A4")
	as4, _ := r.Table().Frequency("A#4")

	tests := []struct {
		desc     string
		freq     float64
		wantOK   bool
		wantNote string
		check    func(c float64) bool
	}{
		{"Concert A", 440, true, "A4", func(c float64) bool { return math.Abs(c) < 1e-9 }},
		{"One percent sharp", 440 * 1.01, true, "A4", func(c float64) bool { return c > 15 }},
		{"One percent flat", 440 * 0.99, true, "A4", func(c float64) bool { return c < -15 }},
		{"Slightly flat E4", 327, true, "E4", func(c float64) bool { return c < 0 }},
		{"Geometric midpoint", math.Sqrt(a4 * as4), false, "", nil},
		{"Below table", 100, false, "", nil},
		{"Above table", 4000, false, "", nil},
		{"Zero", 0, false, "", nil},
		{"Negative", -440, false, "", nil},
		{"NaN", math.NaN(), false, "", nil},
		{"Inf", math.Inf(1), false, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			m, ok := r.Resolve(tt.freq)
			if ok != tt.wantOK {
				t.Fatalf("Resolve(%f) ok = %v, want %v (match %+v)", tt.freq, ok, tt.wantOK, m)
			}
			if !ok {
				return
			}
			if m.Note != tt.wantNote {
				t.Errorf("Resolve(%f).Note = %s, want %s", tt.freq, m.Note, tt.wantNote)
			}
			if !tt.check(m.Cents) {
				t.Errorf("Resolve(%f).Cents = %f failed check", tt.freq, m.Cents)
			}
		})
	}
}

func TestResolveRadius(t *testing.T) {
	sharp := 440 * 1.01 // about 17 cents

	if _, ok := NewResolver(DefaultTable(), 15).Resolve(sharp); ok {
		t.Error("Resolve() with a 15 cent radius matched a note 17 cents away")
	}
	if m, ok := NewResolver(DefaultTable(), 20).Resolve(sharp); !ok || m.Note != "A4" {
		t.Errorf("Resolve() with a 20 cent radius = %+v, %v; want A4", m, ok)
	}
}

func TestNewResolverDefaultRadius(t *testing.T) {
	r := NewResolver(DefaultTable(), 0)
	if r.Radius() != DefaultMatchRadius {
		t.Errorf("Radius() = %f, want %f", r.Radius(), DefaultMatchRadius)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		deviation float64
		want      Status
		inTune    bool
	}{
		{0, Perfect, true},
		{10, Perfect, true},
		{-10, Perfect, true},
		{10.01, Sharp, false},
		{17.2, Sharp, false},
		{-10.01, Flat, false},
		{-17.4, Flat, false},
	}
	for _, tt := range tests {
		if got := Classify(tt.deviation, DefaultTolerance); got != tt.want {
			t.Errorf("Classify(%f) = %v, want %v", tt.deviation, got, tt.want)
		}
		if got := InTune(tt.deviation, DefaultTolerance); got != tt.inTune {
			t.Errorf("InTune(%f) = %v, want %v", tt.deviation, got, tt.inTune)
		}
	}
}

func TestStatusString(t *testing.T) {
	tests := map[Status]string{
		Perfect:   "perfect",
		Sharp:     "sharp",
		Flat:      "flat",
		Status(9): "Status(9)",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}

func TestFormat(t *testing.T) {
	freqs := []struct {
		in   float64
		want string
	}{
		{440, "440.0 Hz"},
		{82.407, "82.4 Hz"},
		{999.9, "999.9 Hz"},
		{1500, "1.50 kHz"},
	}
	for _, tt := range freqs {
		if got := FormatFrequency(tt.in); got != tt.want {
			t.Errorf("FormatFrequency(%f) = %q, want %q", tt.in, got, tt.want)
		}
	}

	cents := []struct {
		in   float64
		want string
	}{
		{12.3, "+12¢"},
		{-3.4, "-3¢"},
		{0, "0¢"},
	}
	for _, tt := range cents {
		if got := FormatCents(tt.in); got != tt.want {
			t.Errorf("FormatCents(%f) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func BenchmarkResolve(b *testing.B) {
	r := NewResolver(DefaultTable(), DefaultMatchRadius)
	b.ReportAllocs()
	for b.Loop() {
		_, _ = r.Resolve(443.7)
	}
}

func TestStatusText(t *testing.T) {
	for _, s := range []Status{Perfect, Sharp, Flat} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText() error = %v", err)
		}
		var back Status
		if err := back.UnmarshalText(text); err != nil || back != s {
			t.Errorf("UnmarshalText(%q) = %v, %v; want %v", text, back, err, s)
		}
	}
	var s Status
	if err := s.UnmarshalText([]byte("wobbly")); err == nil {
		t.Error("UnmarshalText(\"wobbly\") expected an error")
	}
}
