// SPDX-License-Identifier: MIT
/*
Package audio captures live input with PortAudio and moves samples between
the capture callback, WAV files and the sample ring.

Thread Safety:
  - The capture callback only pushes into the ring and the recorder
  - Start, Stop and SetDevice are serialised by a lifecycle mutex that the
    callback never takes, so stopping from the update loop cannot deadlock
  - Recording state is switched atomically
*/
package audio

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"tuner/internal/buffer"
	"tuner/internal/log"

	"github.com/gordonklaus/portaudio"
)

const (
	DefaultSampleRate      = 44100.0
	DefaultFramesPerBuffer = 4096
)

// paStream is the subset of *portaudio.Stream used by Capture.
type paStream interface {
	Start() error
	Stop() error
	Close() error
}

var paOpenStream = func(params portaudio.StreamParameters, callback func([]float32)) (paStream, error) {
	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// CaptureConfig selects the input device and stream format. Capture is
// always mono float32.
type CaptureConfig struct {
	DeviceID        int
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool
}

// Capture streams mono input from a PortAudio device into a buffer.Ring.
type Capture struct {
	mu      sync.Mutex // lifecycle only
	cfg     CaptureConfig
	ring    *buffer.Ring
	stream  paStream
	running atomic.Bool

	recorder atomic.Pointer[Recorder]
	blocks   atomic.Uint64
}

// NewCapture creates a stopped Capture feeding ring. Zero config fields take
// the package defaults.
func NewCapture(cfg CaptureConfig, ring *buffer.Ring) *Capture {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}
	return &Capture{cfg: cfg, ring: ring}
}

// Start opens the configured device and begins streaming. Starting a
// running Capture is a no-op. Failures are returned as *DeviceError.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start()
}

func (c *Capture) start() error {
	if c.running.Load() {
		return nil
	}

	id := c.cfg.DeviceID
	if err := Initialize(); err != nil {
		return &DeviceError{Op: "initialize", DeviceID: id, Err: err}
	}

	device, err := InputDevice(id)
	if err != nil {
		_ = Terminate()
		return &DeviceError{Op: "open", DeviceID: id, Err: err}
	}

	latency := device.DefaultHighInputLatency
	if c.cfg.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   device,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: c.cfg.FramesPerBuffer,
		SampleRate:      c.cfg.SampleRate,
	}

	stream, err := paOpenStream(params, c.process)
	if err != nil {
		_ = Terminate()
		return &DeviceError{Op: "open", DeviceID: id, Err: err}
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = Terminate()
		return &DeviceError{Op: "start", DeviceID: id, Err: err}
	}

	c.stream = stream
	c.running.Store(true)
	log.Infof("Capture: Streaming from %q (%.0f Hz, %d frames, latency %v)",
		device.Name, c.cfg.SampleRate, c.cfg.FramesPerBuffer, latency.Round(time.Millisecond))

	return nil
}

// Stop halts streaming and releases the device. Stopping a stopped Capture
// is a no-op.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop()
}

func (c *Capture) stop() error {
	if !c.running.Load() {
		return nil
	}
	c.running.Store(false)

	var errs []error
	if c.stream != nil {
		if err := c.stream.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := c.stream.Close(); err != nil {
			errs = append(errs, err)
		}
		c.stream = nil
	}
	if err := Terminate(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return &DeviceError{Op: "stop", DeviceID: c.cfg.DeviceID, Err: err}
	}
	log.Debugf("Capture: Stopped after %d blocks", c.blocks.Load())
	return nil
}

// Running reports whether the stream is active.
func (c *Capture) Running() bool {
	return c.running.Load()
}

// Devices lists the capture-capable devices. It holds the lock so its
// Initialize/Terminate pair cannot interleave with SetDevice.
func (c *Capture) Devices() ([]Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := Initialize(); err != nil {
		return nil, &DeviceError{Op: "initialize", DeviceID: DefaultDeviceID, Err: err}
	}
	defer func() { _ = Terminate() }()

	return InputDevices()
}

// DeviceID returns the configured device.
func (c *Capture) DeviceID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.DeviceID
}

// SetDevice switches to deviceID. An invalid ID leaves the current device
// in place. A running Capture is restarted on the new device with an empty
// ring; if that fails the previous device is restored.
func (c *Capture) SetDevice(deviceID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := Initialize(); err != nil {
		return &DeviceError{Op: "initialize", DeviceID: deviceID, Err: err}
	}
	_, err := InputDevice(deviceID)
	_ = Terminate()
	if err != nil {
		return fmt.Errorf("select input device: %w", err)
	}

	previous := c.cfg.DeviceID
	if previous == deviceID {
		return nil
	}

	wasRunning := c.running.Load()
	if wasRunning {
		if err := c.stop(); err != nil {
			log.Warnf("Capture: %v", err)
		}
	}

	c.cfg.DeviceID = deviceID
	c.ring.Reset()
	log.Infof("Capture: Input device changed %d -> %d", previous, deviceID)

	if !wasRunning {
		return nil
	}
	if err := c.start(); err != nil {
		c.cfg.DeviceID = previous
		if restoreErr := c.start(); restoreErr != nil {
			log.Errorf("Capture: Could not restore device %d: %v", previous, restoreErr)
		}
		return err
	}
	return nil
}

// SetRecorder attaches a recorder that receives every captured block; nil
// detaches it.
func (c *Capture) SetRecorder(r *Recorder) {
	c.recorder.Store(r)
}

// Config returns the capture configuration.
func (c *Capture) Config() CaptureConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// process is the PortAudio callback.
// Performance Critical:
//   - Runs in a dedicated OS thread (LockOSThread)
//   - Holds the ring lock only for the shift-and-append
//   - No allocations unless recording a block larger than the last one
func (c *Capture) process(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c.ring.Push(in)
	c.blocks.Add(1)

	if rec := c.recorder.Load(); rec != nil && rec.Recording() {
		if err := rec.Write(in); err != nil {
			log.Errorf("Capture: Error writing to WAV file: %v", err)
		}
	}
}
