// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tuner/internal/analysis"
	"tuner/internal/audio"
	"tuner/internal/buffer"
	"tuner/internal/config"
	"tuner/internal/detector"
	"tuner/internal/log"
	"tuner/internal/note"
	"tuner/internal/transport"
	"tuner/internal/transport/udp"
	"tuner/internal/tui"
)

// newDetector wires the analysis pipeline over src. sampleRate is the rate
// src actually delivers.
func newDetector(cfg *config.Config, src detector.Source, ring *buffer.Ring, sampleRate float64) (*detector.Detector, error) {
	window, err := analysis.ParseWindowFunc(cfg.Analysis.Window)
	if err != nil {
		return nil, err
	}
	analyzer, err := analysis.NewSpectralAnalyzer(analysis.Options{
		SampleRate:   sampleRate,
		WindowSize:   cfg.Analysis.WindowSize,
		MinFrequency: cfg.Analysis.MinFrequency,
		MaxFrequency: min(cfg.Analysis.MaxFrequency, sampleRate/2),
		Window:       window,
		Neighborhood: cfg.Analysis.Neighborhood,
		RatioCap:     cfg.Analysis.RatioCap,
	})
	if err != nil {
		return nil, fmt.Errorf("create analyzer: %w", err)
	}

	d := cfg.Detection
	table, err := note.NewEqualTemperedTable(d.ReferencePitch, d.LowestNote, d.HighestNote)
	if err != nil {
		return nil, fmt.Errorf("create note table: %w", err)
	}

	return detector.New(src, ring, analyzer, note.NewResolver(table, d.MatchRadius), detector.Options{
		MinVolume:     d.MinVolume,
		MinConfidence: d.MinConfidence,
		Tolerance:     d.Tolerance,
		HistorySize:   d.HistorySize,
	}), nil
}

// List prints the input devices.
func List(w io.Writer) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()
	return audio.ListDevices(w)
}

// blockResult is one JSON line of analyze output.
type blockResult struct {
	Time      float64             `json:"time"` // seconds at the end of the block
	Detected  bool                `json:"detected"`
	Detection *detector.Detection `json:"detection,omitempty"`
}

// Analyze runs the pipeline over a WAV file, one update per block, and
// writes one line per block to w.
func Analyze(cfg *config.Config, path string, jsonLines bool, w io.Writer) error {
	ring := buffer.NewRing(cfg.RingSize())
	src, err := audio.OpenFileSource(path, ring, cfg.Audio.FramesPerBuffer)
	if err != nil {
		return err
	}
	sampleRate := src.SampleRate()

	det, err := newDetector(cfg, src, ring, sampleRate)
	if err != nil {
		_ = src.Stop()
		return err
	}
	if err := det.Start(); err != nil {
		_ = src.Stop()
		return err
	}
	defer det.Stop()

	enc := json.NewEncoder(w)
	for {
		pos := src.Position()
		n, err := src.Step()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		d, ok := det.Update()
		at := float64(pos+uint64(n)) / sampleRate
		if jsonLines {
			line := blockResult{Time: at, Detected: ok}
			if ok {
				line.Detection = &d
			}
			if err := enc.Encode(line); err != nil {
				return err
			}
			continue
		}

		if !ok {
			fmt.Fprintf(w, "%8.3fs  --\n", at)
			continue
		}
		fmt.Fprintf(w, "%8.3fs  %-4s %10s %5s  %-7s conf %.2f\n",
			at, d.Note, note.FormatFrequency(d.Frequency), note.FormatCents(d.Deviation), d.Status, d.Confidence)
	}
	return nil
}

// Tune runs the live tuner until interrupted or the terminal view quits.
func Tune(cfg *config.Config, headless bool) error {
	ring := buffer.NewRing(cfg.RingSize())
	capture := audio.NewCapture(audio.CaptureConfig{
		DeviceID:        cfg.Audio.InputDevice,
		SampleRate:      cfg.Audio.SampleRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		LowLatency:      cfg.Audio.LowLatency,
	}, ring)

	det, err := newDetector(cfg, capture, ring, cfg.Audio.SampleRate)
	if err != nil {
		return err
	}

	if cfg.Recording.Enabled {
		recorder, filename, err := startRecording(cfg)
		if err != nil {
			return err
		}
		capture.SetRecorder(recorder)
		defer func() {
			if err := recorder.Stop(); err != nil {
				log.Errorf("Error stopping recording: %v", err)
				return
			}
			fmt.Printf("\nRecording saved to: %s\n", filename)
		}()
	}

	out, err := openTransports(cfg, headless)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := det.Start(); err != nil {
		return err
	}
	defer det.Stop()

	var seq uint64
	publish := func(d detector.Detection, ok bool, state detector.State) {
		seq++
		if err := out.Send(transport.NewMessage(seq, d, ok, state)); err != nil {
			log.Debugf("Transport: %v", err)
		}
	}

	if headless {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runHeadless(ctx, det, cfg.UpdateInterval, publish)
	}

	// The terminal view owns the screen; logs go to a file.
	logFile, err := os.OpenFile("tuner.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err == nil {
		log.SetOutput(logFile)
		defer func() {
			log.SetOutput(os.Stderr)
			logFile.Close()
		}()
	}

	return tui.Run(det, ring, tui.Options{
		Interval:    cfg.UpdateInterval,
		DeviceID:    cfg.Audio.InputDevice,
		MatchRadius: cfg.Detection.MatchRadius,
		Publish:     publish,
	})
}

// runHeadless calls Update every interval until ctx is done.
func runHeadless(ctx context.Context, det *detector.Detector, interval time.Duration, publish tui.PublishFunc) error {
	log.Infof("Tuner: Running headless, press Ctrl+C to stop")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d, ok := det.Update()
			publish(d, ok, det.State())
		}
	}
}

func startRecording(cfg *config.Config) (*audio.Recorder, string, error) {
	if err := os.MkdirAll(cfg.Recording.OutputDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create recording directory: %w", err)
	}
	filename := filepath.Join(cfg.Recording.OutputDir,
		"recording-"+time.Now().UTC().Format("02-01-2006-150405")+"."+cfg.Recording.Format)

	recorder := audio.NewRecorder(int(cfg.Audio.SampleRate), cfg.Audio.FramesPerBuffer)
	if err := recorder.Start(filename); err != nil {
		return nil, "", err
	}
	return recorder, filename, nil
}

// openTransports builds the configured transports. Headless runs always log.
func openTransports(cfg *config.Config, headless bool) (transport.Fanout, error) {
	var out transport.Fanout
	t := cfg.Transport

	if t.LogDetections || headless {
		out = append(out, transport.NewLoggingTransport())
	}
	if t.WebSocketEnabled {
		out = append(out, transport.NewWebSocketTransport(":"+t.WebSocketPort))
	}
	if t.UDPEnabled {
		sender, err := udp.NewUDPSender(t.UDPTargetAddress)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		publisher, err := udp.NewUDPPublisher(t.UDPSendInterval, sender)
		if err != nil {
			_ = sender.Close()
			_ = out.Close()
			return nil, err
		}
		publisher.Start()
		out = append(out, publisher, closerTransport{sender})
	}
	return out, nil
}

// closerTransport closes a resource with the fanout but receives nothing.
type closerTransport struct{ io.Closer }

func (closerTransport) Send(any) error { return nil }
