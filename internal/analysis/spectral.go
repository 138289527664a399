// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"tuner/internal/log"
	"tuner/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the window applied before the FFT.
type WindowFunc int

// Available window functions. Hann is the zero value.
const (
	Hann WindowFunc = iota
	Hamming
	Blackman
	BlackmanNuttall
	BartlettHann
	Lanczos
	Nuttall
)

var windowNames = [...]string{"hann", "hamming", "blackman", "blackmannuttall", "bartletthann", "lanczos", "nuttall"}

func (w WindowFunc) String() string {
	if w < 0 || int(w) >= len(windowNames) {
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
	return windowNames[w]
}

const (
	DefaultWindowSize   = 4096
	DefaultMinFrequency = 80.0
	DefaultMaxFrequency = 2000.0
	DefaultNeighborhood = 5
	DefaultRatioCap     = 10.0
)

// ErrInvalidBand is returned when a frequency band is empty, non-positive
// or above the Nyquist frequency.
var ErrInvalidBand = errors.New("invalid frequency band")

// Options configures a SpectralAnalyzer. Zero fields take the defaults
// above; SampleRate is required.
type Options struct {
	SampleRate   float64
	WindowSize   int
	MinFrequency float64
	MaxFrequency float64
	Window       WindowFunc
	Neighborhood int     // bins either side of the peak used for confidence
	RatioCap     float64 // peak/neighbour ratio mapped to confidence 1.0
}

// Frame is the result of analysing one window of samples.
type Frame struct {
	Frequency  float64   // refined dominant frequency in Hz, 0 when nothing was found
	Magnitude  float64   // magnitude of the peak bin
	Confidence float64   // peak prominence in [0, 1]
	Spectrum   []float64 // unmasked magnitude spectrum, len WindowSize/2+1
}

// Pre-allocated buffers for the analysis hot path.
type workspace struct {
	input     []float64    // windowed samples
	fftOutput []complex128 // FFT coefficients, N/2+1
	magnitude []float64    // raw magnitude spectrum
	filtered  []float64    // magnitude spectrum masked to the band
	window    []float64    // window coefficients
}

// SpectralAnalyzer finds the dominant frequency of a block of samples.
// It reuses its workspace between calls and must only be used from a single
// goroutine.
type SpectralAnalyzer struct {
	fft          *fourier.FFT
	windowSize   int
	sampleRate   float64
	windowType   WindowFunc
	minFreq      float64
	maxFreq      float64
	neighborhood int
	ratioCap     float64
	workspace    workspace
}

// NewSpectralAnalyzer validates opts, fills in defaults and pre-allocates
// the FFT workspace.
func NewSpectralAnalyzer(opts Options) (*SpectralAnalyzer, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", opts.SampleRate)
	}
	if opts.WindowSize == 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if !bitint.IsPowerOfTwo(opts.WindowSize) {
		return nil, fmt.Errorf("window size must be a power of 2, got %d (try %d)",
			opts.WindowSize, bitint.NextPowerOfTwo(opts.WindowSize))
	}
	if opts.MinFrequency == 0 {
		opts.MinFrequency = DefaultMinFrequency
	}
	if opts.MaxFrequency == 0 {
		opts.MaxFrequency = DefaultMaxFrequency
	}
	if opts.Neighborhood == 0 {
		opts.Neighborhood = DefaultNeighborhood
	}
	if opts.Neighborhood < 0 {
		return nil, fmt.Errorf("neighborhood must be positive, got %d", opts.Neighborhood)
	}
	if opts.RatioCap == 0 {
		opts.RatioCap = DefaultRatioCap
	}
	if opts.RatioCap < 0 {
		return nil, fmt.Errorf("ratio cap must be positive, got %f", opts.RatioCap)
	}
	if opts.Window < 0 || int(opts.Window) >= len(windowNames) {
		return nil, fmt.Errorf("unknown window function %d", opts.Window)
	}

	bins := opts.WindowSize/2 + 1
	a := &SpectralAnalyzer{
		fft:          fourier.NewFFT(opts.WindowSize),
		windowSize:   opts.WindowSize,
		sampleRate:   opts.SampleRate,
		windowType:   opts.Window,
		neighborhood: opts.Neighborhood,
		ratioCap:     opts.RatioCap,
		workspace: workspace{
			input:     make([]float64, opts.WindowSize),
			fftOutput: make([]complex128, bins),
			magnitude: make([]float64, bins),
			filtered:  make([]float64, bins),
			window:    make([]float64, opts.WindowSize),
		},
	}
	if err := a.SetBand(opts.MinFrequency, opts.MaxFrequency); err != nil {
		return nil, err
	}
	applyWindow(a.workspace.window, opts.Window)

	log.Debugf("Analysis: SpectralAnalyzer ready (Size: %d, SampleRate: %.1f Hz, Window: %v, Band: %.1f-%.1f Hz)",
		opts.WindowSize, opts.SampleRate, opts.Window, a.minFreq, a.maxFreq)

	return a, nil
}

// Analyze estimates the dominant frequency of the last WindowSize samples.
// Shorter input is zero-padded on the right.
func (a *SpectralAnalyzer) Analyze(samples []float32) Frame {
	a.transform(samples)

	ws := &a.workspace
	peak := a.peak()
	magnitude := ws.filtered[peak]

	spectrum := make([]float64, len(ws.magnitude))
	copy(spectrum, ws.magnitude)

	return Frame{
		Frequency:  a.refine(peak),
		Magnitude:  magnitude,
		Confidence: a.confidence(peak),
		Spectrum:   spectrum,
	}
}

// transform windows the input, runs the FFT and fills the magnitude and
// band-masked spectra.
func (a *SpectralAnalyzer) transform(samples []float32) {
	ws := &a.workspace
	if len(samples) > a.windowSize {
		samples = samples[len(samples)-a.windowSize:]
	}
	n := len(samples)
	for i := range a.windowSize {
		if i < n {
			ws.input[i] = float64(samples[i]) * ws.window[i]
		} else {
			ws.input[i] = 0
		}
	}

	a.fft.Coefficients(ws.fftOutput, ws.input)

	resolution := a.Resolution()
	for i, c := range ws.fftOutput {
		m := cmplx.Abs(c)
		ws.magnitude[i] = m
		f := float64(i) * resolution
		if f >= a.minFreq && f <= a.maxFreq {
			ws.filtered[i] = m
		} else {
			ws.filtered[i] = 0
		}
	}
}

// peak returns the index of the largest masked magnitude; the first one
// wins on ties.
func (a *SpectralAnalyzer) peak() int {
	idx := 0
	for i, m := range a.workspace.filtered {
		if m > a.workspace.filtered[idx] {
			idx = i
		}
	}
	return idx
}

// confidence compares the peak against the mean of its neighbours.
func (a *SpectralAnalyzer) confidence(peak int) float64 {
	if peak == 0 {
		return 0
	}
	spec := a.workspace.filtered
	start := max(0, peak-a.neighborhood)
	end := min(len(spec), peak+a.neighborhood+1)

	var sum float64
	count := 0
	for i := start; i < end; i++ {
		if i == peak {
			continue
		}
		sum += spec[i]
		count++
	}
	if count == 0 {
		return 0
	}
	mean := sum / float64(count)
	if mean == 0 {
		return 1
	}
	c := math.Min(spec[peak]/mean, a.ratioCap) / a.ratioCap
	return math.Max(0, math.Min(c, 1))
}

// refine fits a parabola through the peak and its two neighbours.
func (a *SpectralAnalyzer) refine(peak int) float64 {
	spec := a.workspace.filtered
	freq := a.BinFrequency(peak)
	if peak <= 0 || peak >= len(spec)-1 {
		return freq
	}
	y1, y2, y3 := spec[peak-1], spec[peak], spec[peak+1]
	curvature := (y1 - 2*y2 + y3) / 2
	if curvature == 0 {
		return freq
	}
	offset := (y1 - y3) / (4 * curvature)
	return freq + offset*a.Resolution()
}

// SetBand restricts peak search to [min, max] Hz. On error the previous band
// is kept.
func (a *SpectralAnalyzer) SetBand(min, max float64) error {
	nyquist := a.sampleRate / 2
	switch {
	case min <= 0 || math.IsNaN(min):
		return fmt.Errorf("%w: minimum %.2f Hz must be positive", ErrInvalidBand, min)
	case max <= min || math.IsNaN(max):
		return fmt.Errorf("%w: maximum %.2f Hz must exceed minimum %.2f Hz", ErrInvalidBand, max, min)
	case max > nyquist:
		return fmt.Errorf("%w: maximum %.2f Hz exceeds Nyquist %.2f Hz", ErrInvalidBand, max, nyquist)
	}
	a.minFreq, a.maxFreq = min, max
	return nil
}

// Band returns the current search band in Hz.
func (a *SpectralAnalyzer) Band() (min, max float64) {
	return a.minFreq, a.maxFreq
}

// BinFrequency returns the centre frequency of bin i, or 0 when i is out of
// range.
func (a *SpectralAnalyzer) BinFrequency(i int) float64 {
	if i < 0 || i >= len(a.workspace.magnitude) {
		return 0
	}
	return float64(i) * a.Resolution()
}

// Resolution returns the bin width in Hz.
func (a *SpectralAnalyzer) Resolution() float64 {
	return a.sampleRate / float64(a.windowSize)
}

func (a *SpectralAnalyzer) WindowSize() int     { return a.windowSize }
func (a *SpectralAnalyzer) SampleRate() float64 { return a.sampleRate }

// Harmonics returns up to n integer multiples of fundamental, starting with
// the fundamental itself, that do not exceed the band maximum.
func (a *SpectralAnalyzer) Harmonics(fundamental float64, n int) []float64 {
	out := make([]float64, 0, max(n, 0))
	if fundamental <= 0 {
		return out
	}
	for i := 1; i <= n; i++ {
		h := fundamental * float64(i)
		if h > a.maxFreq {
			break
		}
		out = append(out, h)
	}
	return out
}

// ParseWindowFunc converts a case-insensitive name to a WindowFunc. Unknown
// names return Hann and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "bartletthann":
		return BartlettHann, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the selected window.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// gonum windows scale the slice in place.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		window.Hann(coeffs)
	}
}
