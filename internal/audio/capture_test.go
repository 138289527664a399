// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"tuner/internal/buffer"
	"tuner/pkg/utils"

	"github.com/gordonklaus/portaudio"
)

const (
	testSampleRate = 44100
	testFrameSize  = 1024
)

type fakeStream struct {
	started, stopped, closed int
	startErr, stopErr        error
}

func (s *fakeStream) Start() error { s.started++; return s.startErr }
func (s *fakeStream) Stop() error  { s.stopped++; return s.stopErr }
func (s *fakeStream) Close() error { s.closed++; return nil }

// mockStreams makes paOpenStream hand out fake streams and records the
// parameters and callback of the most recent open.
type mockStreams struct {
	opened   []*fakeStream
	params   portaudio.StreamParameters
	callback func([]float32)
	openErr  error
	startErr error
}

func installMockStreams(t *testing.T) *mockStreams {
	t.Helper()
	m := &mockStreams{}
	orig := paOpenStream
	t.Cleanup(func() { paOpenStream = orig })
	paOpenStream = func(params portaudio.StreamParameters, cb func([]float32)) (paStream, error) {
		if m.openErr != nil {
			return nil, m.openErr
		}
		s := &fakeStream{startErr: m.startErr}
		m.opened = append(m.opened, s)
		m.params, m.callback = params, cb
		return s, nil
	}
	return m
}

func newTestCapture(t *testing.T, deviceID int) (*Capture, *mockStreams) {
	t.Helper()
	mockPortAudio(t, testDevices)
	streams := installMockStreams(t)
	ring := buffer.NewRing(testFrameSize * 4)
	c := NewCapture(CaptureConfig{DeviceID: deviceID, SampleRate: testSampleRate, FramesPerBuffer: testFrameSize}, ring)
	return c, streams
}

func TestNewCaptureDefaults(t *testing.T) {
	c := NewCapture(CaptureConfig{}, buffer.NewRing(16))
	cfg := c.Config()
	if cfg.SampleRate != DefaultSampleRate || cfg.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Errorf("Config() = %+v, want defaults", cfg)
	}
	if c.Running() {
		t.Error("new Capture should not be running")
	}
}

func TestCaptureStartStop(t *testing.T) {
	c, streams := newTestCapture(t, DefaultDeviceID)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !c.Running() {
		t.Fatal("Capture should be running after Start()")
	}
	if len(streams.opened) != 1 || streams.opened[0].started != 1 {
		t.Fatalf("expected one started stream, got %+v", streams.opened)
	}

	p := streams.params
	if p.Input.Channels != 1 || p.Output.Channels != 0 {
		t.Errorf("stream channels in=%d out=%d, want mono input only", p.Input.Channels, p.Output.Channels)
	}
	if p.SampleRate != testSampleRate || p.FramesPerBuffer != testFrameSize {
		t.Errorf("stream format = %.0f Hz / %d frames", p.SampleRate, p.FramesPerBuffer)
	}
	if p.Input.Latency != testDevices[0].DefaultHighInputLatency {
		t.Errorf("latency = %v, want high latency default", p.Input.Latency)
	}

	// Starting twice does not open a second stream.
	if err := c.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if len(streams.opened) != 1 {
		t.Errorf("second Start() opened %d streams", len(streams.opened))
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if c.Running() {
		t.Error("Capture should not be running after Stop()")
	}
	s := streams.opened[0]
	if s.stopped != 1 || s.closed != 1 {
		t.Errorf("stream stopped=%d closed=%d, want 1/1", s.stopped, s.closed)
	}

	// Stop is idempotent.
	if err := c.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if s.stopped != 1 {
		t.Errorf("second Stop() touched the stream again")
	}
}

func TestCaptureLowLatency(t *testing.T) {
	mockPortAudio(t, testDevices)
	streams := installMockStreams(t)
	c := NewCapture(CaptureConfig{DeviceID: 2, LowLatency: true}, buffer.NewRing(16))

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	if streams.params.Input.Latency != testDevices[2].DefaultLowInputLatency {
		t.Errorf("latency = %v, want %v", streams.params.Input.Latency, testDevices[2].DefaultLowInputLatency)
	}
	if streams.params.Input.Device != testDevices[2] {
		t.Errorf("opened device %q, want %q", streams.params.Input.Device.Name, testDevices[2].Name)
	}
}

func TestCaptureStartErrors(t *testing.T) {
	tests := []struct {
		desc   string
		setup  func(m *mockStreams)
		id     int
		op     string
		target error
	}{
		{"Initialize fails", func(*mockStreams) {
			paLibInitialize = func() error { return errors.New("no host API") }
		}, DefaultDeviceID, "initialize", nil},
		{"Invalid device", func(*mockStreams) {}, 42, "open", ErrInvalidDevice},
		{"Output-only device", func(*mockStreams) {}, 1, "open", ErrNoInput},
		{"Open fails", func(m *mockStreams) { m.openErr = errors.New("device busy") }, 0, "open", nil},
		{"Start fails", func(m *mockStreams) { m.startErr = errors.New("stream start") }, 0, "start", nil},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			c, streams := newTestCapture(t, tt.id)
			tt.setup(streams)

			err := c.Start()
			var de *DeviceError
			if !errors.As(err, &de) {
				t.Fatalf("Start() error = %v, want *DeviceError", err)
			}
			if de.Op != tt.op || de.DeviceID != tt.id {
				t.Errorf("DeviceError = %+v, want op %q device %d", de, tt.op, tt.id)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.target)
			}
			if c.Running() {
				t.Error("Capture should not be running after a failed Start()")
			}
			for _, s := range streams.opened {
				if s.closed != 1 {
					t.Errorf("failed stream was not closed")
				}
			}
		})
	}
}

func TestCaptureStopError(t *testing.T) {
	c, streams := newTestCapture(t, 0)
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	streams.opened[0].stopErr = errors.New("stream stop")

	err := c.Stop()
	var de *DeviceError
	if !errors.As(err, &de) || de.Op != "stop" {
		t.Fatalf("Stop() error = %v, want stop DeviceError", err)
	}
	if c.Running() {
		t.Error("Capture should not be running after a failed Stop()")
	}
	if streams.opened[0].closed != 1 {
		t.Error("stream should still be closed when Stop fails")
	}
}

func TestCaptureCallbackFillsRing(t *testing.T) {
	c, streams := newTestCapture(t, 0)
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	block := utils.GenerateSineWave(testFrameSize, testSampleRate, 440, 0.5)
	streams.callback(block)

	snap := c.ring.Snapshot(testFrameSize)
	for i := range block {
		if snap[i] != block[i] {
			t.Fatalf("ring sample %d = %f, want %f", i, snap[i], block[i])
		}
	}
	if c.blocks.Load() != 1 {
		t.Errorf("blocks = %d, want 1", c.blocks.Load())
	}
}

func TestCaptureSetDevice(t *testing.T) {
	c, streams := newTestCapture(t, 0)

	t.Run("Invalid device keeps current", func(t *testing.T) {
		err := c.SetDevice(99)
		if !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("SetDevice(99) error = %v, want ErrInvalidDevice", err)
		}
		if c.DeviceID() != 0 {
			t.Errorf("DeviceID() = %d, want 0", c.DeviceID())
		}
	})

	t.Run("Output-only device keeps current", func(t *testing.T) {
		if err := c.SetDevice(1); !errors.Is(err, ErrNoInput) {
			t.Errorf("SetDevice(1) error = %v, want ErrNoInput", err)
		}
		if c.DeviceID() != 0 {
			t.Errorf("DeviceID() = %d, want 0", c.DeviceID())
		}
	})

	t.Run("Switch while running restarts on new device", func(t *testing.T) {
		if err := c.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		streams.callback([]float32{0.5, 0.5, 0.5})

		if err := c.SetDevice(2); err != nil {
			t.Fatalf("SetDevice(2) error = %v", err)
		}
		if c.DeviceID() != 2 || !c.Running() {
			t.Errorf("after SetDevice(2): device=%d running=%v", c.DeviceID(), c.Running())
		}
		if len(streams.opened) != 2 || streams.params.Input.Device != testDevices[2] {
			t.Errorf("expected a second stream on %q", testDevices[2].Name)
		}
		if streams.opened[0].closed != 1 {
			t.Error("old stream was not closed")
		}
		if c.ring.Pushed() != 0 {
			t.Errorf("ring not reset on device change, pushed=%d", c.ring.Pushed())
		}
		_ = c.Stop()
	})

	t.Run("Failed restart restores previous device", func(t *testing.T) {
		if err := c.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		streams.startErr = errors.New("exclusive mode")
		err := c.SetDevice(0)
		streams.startErr = nil

		var de *DeviceError
		if !errors.As(err, &de) || de.DeviceID != 0 {
			t.Fatalf("SetDevice(0) error = %v, want DeviceError for device 0", err)
		}
		if c.DeviceID() != 2 {
			t.Errorf("DeviceID() = %d, want previous device 2", c.DeviceID())
		}
		_ = c.Stop()
	})
}

func TestCaptureDevices(t *testing.T) {
	c, _ := newTestCapture(t, 0)
	devices, err := c.Devices()
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Errorf("len(Devices()) = %d, want 2 input devices", len(devices))
	}

	paLibInitialize = func() error { return fmt.Errorf("mock init error") }
	if _, err := c.Devices(); err == nil {
		t.Error("Devices() should fail when PortAudio cannot initialise")
	}
}

func TestCaptureDevicesSerializedWithSetDevice(t *testing.T) {
	c, _ := newTestCapture(t, 0)

	var depth, peak atomic.Int32
	paLibInitialize = func() error {
		n := depth.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		return nil
	}
	paLibTerminate = func() error {
		depth.Add(-1)
		return nil
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := c.Devices(); err != nil {
				t.Errorf("Devices() error = %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := c.SetDevice(2 * (i % 2)); err != nil {
				t.Errorf("SetDevice() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := peak.Load(); got != 1 {
		t.Errorf("PortAudio initialised %d deep, want Devices and SetDevice serialised", got)
	}
}

func TestCaptureRecordsBlocks(t *testing.T) {
	c, streams := newTestCapture(t, 0)
	rec := NewRecorder(testSampleRate, testFrameSize)
	filename := filepath.Join(t.TempDir(), "capture.wav")
	if err := rec.Start(filename); err != nil {
		t.Fatalf("Recorder.Start() error = %v", err)
	}
	c.SetRecorder(rec)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	streams.callback(utils.GenerateSineWave(testFrameSize, testSampleRate, 440, 0.5))
	streams.callback(utils.GenerateSineWave(testFrameSize, testSampleRate, 440, 0.5))
	_ = c.Stop()

	if err := rec.Stop(); err != nil {
		t.Fatalf("Recorder.Stop() error = %v", err)
	}
	if rec.Frames() != 2*testFrameSize {
		t.Errorf("Frames() = %d, want %d", rec.Frames(), 2*testFrameSize)
	}
	if info, err := os.Stat(filename); err != nil || info.Size() <= 44 {
		t.Errorf("recording not written: %v", err)
	}
}

func TestCaptureCallbackZeroAllocs(t *testing.T) {
	c := NewCapture(CaptureConfig{FramesPerBuffer: testFrameSize}, buffer.NewRing(testFrameSize*4))
	block := make([]float32, testFrameSize)

	allocs := testing.AllocsPerRun(100, func() {
		c.process(block)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in capture callback, got %.1f", allocs)
	}
}

func BenchmarkCaptureCallback(b *testing.B) {
	c := NewCapture(CaptureConfig{FramesPerBuffer: testFrameSize}, buffer.NewRing(testFrameSize*4))
	block := utils.GenerateSineWave(testFrameSize, testSampleRate, 440, 0.5)

	b.ReportAllocs()
	for b.Loop() {
		c.process(block)
	}
}
