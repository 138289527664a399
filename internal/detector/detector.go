// SPDX-License-Identifier: MIT
/*
Package detector turns the live sample window into a stable current note.

Each Update takes one snapshot of the ring, runs the spectral analyzer and
the note resolver, and smooths the result over a short history with a
confidence-weighted vote. Three gates (volume, confidence and note match)
each clear the history and report no detection.

A Detector is driven from a single update goroutine. Only the ring buffer
is shared with the capture callback.
*/
package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tuner/internal/analysis"
	"tuner/internal/audio"
	"tuner/internal/buffer"
	"tuner/internal/log"
	"tuner/internal/note"
)

const (
	DefaultMinVolume     = 0.01
	DefaultMinConfidence = 0.3
	DefaultHistorySize   = 5
)

// ErrNoDetections is returned by Calibrate when the target note was never
// detected.
var ErrNoDetections = errors.New("no detections of target note")

// Source supplies samples to the ring; audio.Capture for live input and
// audio.FileSource for recordings.
type Source interface {
	Start() error
	Stop() error
	Devices() ([]audio.Device, error)
	SetDevice(deviceID int) error
}

var (
	_ Source = (*audio.Capture)(nil)
	_ Source = (*audio.FileSource)(nil)
)

// State is the detector's position in its capture lifecycle.
type State int

const (
	Idle      State = iota // not capturing
	Listening              // capturing, no confident note
	Tracking               // capturing, a note is reported
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Tracking:
		return "tracking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options holds the detection thresholds. Zero fields take the defaults.
type Options struct {
	MinVolume     float64 // RMS below which input counts as silence
	MinConfidence float64
	Tolerance     float64 // cents still reported as perfect
	HistorySize   int
}

func (o Options) withDefaults() Options {
	if o.MinVolume <= 0 {
		o.MinVolume = DefaultMinVolume
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = DefaultMinConfidence
	}
	if o.Tolerance <= 0 {
		o.Tolerance = note.DefaultTolerance
	}
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	return o
}

// Detection is the smoothed note reported for one tick.
type Detection struct {
	Note       string      `json:"note"`
	Frequency  float64     `json:"frequency"`
	Confidence float64     `json:"confidence"`
	Deviation  float64     `json:"deviation"` // cents, positive when sharp
	Status     note.Status `json:"status"`
	Volume     float64     `json:"volume"` // RMS of the analysed window
}

// InTune reports whether the detection is within tolerance.
func (d Detection) InTune() bool {
	return d.Status == note.Perfect
}

// Detector is the per-tick note detection state machine.
type Detector struct {
	src      Source
	ring     *buffer.Ring
	analyzer *analysis.SpectralAnalyzer
	resolver *note.Resolver
	opts     Options

	history    *History
	capturing  bool
	state      State
	current    Detection
	hasCurrent bool
}

// New wires a Detector over src, which must feed ring.
func New(src Source, ring *buffer.Ring, analyzer *analysis.SpectralAnalyzer, resolver *note.Resolver, opts Options) *Detector {
	opts = opts.withDefaults()
	return &Detector{
		src:      src,
		ring:     ring,
		analyzer: analyzer,
		resolver: resolver,
		opts:     opts,
		history:  NewHistory(opts.HistorySize),
	}
}

// Start begins capture. Device failures are logged and returned.
func (d *Detector) Start() error {
	if d.capturing {
		return nil
	}
	if err := d.src.Start(); err != nil {
		log.Errorf("Detector: Failed to start capture: %v", err)
		return err
	}
	d.capturing = true
	d.state = Listening
	log.Debugf("Detector: Started (min volume %.3f, min confidence %.2f, tolerance %.0f cents, history %d)",
		d.opts.MinVolume, d.opts.MinConfidence, d.opts.Tolerance, d.opts.HistorySize)
	return nil
}

// Stop ends capture and releases the device. Stopping twice is a no-op.
func (d *Detector) Stop() error {
	if !d.capturing {
		return nil
	}
	d.capturing = false
	d.state = Idle
	d.reset()
	if err := d.src.Stop(); err != nil {
		log.Warnf("Detector: Error stopping capture: %v", err)
		return err
	}
	log.Debugf("Detector: Stopped")
	return nil
}

// Capturing reports whether Start succeeded and Stop has not been called.
func (d *Detector) Capturing() bool {
	return d.capturing
}

// State returns the state left by the last Start, Stop or Update.
func (d *Detector) State() State {
	return d.state
}

// Update runs one detection tick and returns the smoothed detection, or
// false when the input is silent, unclear or between notes.
func (d *Detector) Update() (Detection, bool) {
	if !d.capturing {
		d.state = Idle
		return Detection{}, false
	}

	samples := d.ring.Snapshot(d.analyzer.WindowSize())
	volume := d.ring.Volume()
	if volume < d.opts.MinVolume {
		return d.miss()
	}

	frame := d.analyzer.Analyze(samples)
	if frame.Confidence < d.opts.MinConfidence {
		return d.miss()
	}

	match, ok := d.resolver.Resolve(frame.Frequency)
	if !ok {
		return d.miss()
	}

	d.history.Push(Observation{
		Note:       match.Note,
		Frequency:  frame.Frequency,
		Confidence: frame.Confidence,
		Deviation:  match.Cents,
	})
	d.state = Tracking

	best, _ := d.history.Vote()
	d.current = Detection{
		Note:       best.Note,
		Frequency:  best.Frequency,
		Confidence: best.Confidence,
		Deviation:  best.Deviation,
		Status:     note.Classify(best.Deviation, d.opts.Tolerance),
		Volume:     volume,
	}
	d.hasCurrent = true
	return d.current, true
}

func (d *Detector) miss() (Detection, bool) {
	d.reset()
	d.state = Listening
	return Detection{}, false
}

func (d *Detector) reset() {
	d.history.Clear()
	d.current = Detection{}
	d.hasCurrent = false
}

// Current returns the last detection, or false after any gate has reset it.
func (d *Detector) Current() (Detection, bool) {
	return d.current, d.hasCurrent
}

// Devices lists the source's input devices.
func (d *Detector) Devices() ([]audio.Device, error) {
	return d.src.Devices()
}

// SetInputDevice switches the source to deviceID. On error the previous
// device stays selected.
func (d *Detector) SetInputDevice(deviceID int) error {
	if err := d.src.SetDevice(deviceID); err != nil {
		return err
	}
	d.reset()
	if d.capturing {
		d.state = Listening
	}
	return nil
}

// Options returns the effective thresholds.
func (d *Detector) Options() Options {
	return d.opts
}

// Calibrate calls Update every interval until ctx is done and returns the
// mean confidence of the detections of target.
func (d *Detector) Calibrate(ctx context.Context, target string, interval time.Duration) (float64, error) {
	if _, ok := d.resolver.Table().Frequency(target); !ok {
		return 0, fmt.Errorf("calibrate: %w: %q", note.ErrInvalidNote, target)
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	log.Infof("Detector: Calibrating for %s, play the note until calibration ends", target)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var sum float64
	var count int
	for {
		select {
		case <-ctx.Done():
			if count == 0 {
				log.Warnf("Detector: %s was not detected during calibration", target)
				return 0, ErrNoDetections
			}
			mean := sum / float64(count)
			log.Infof("Detector: Calibration complete, mean confidence %.2f over %d detections", mean, count)
			return mean, nil
		case <-ticker.C:
			if det, ok := d.Update(); ok && det.Note == target {
				sum += det.Confidence
				count++
			}
		}
	}
}
