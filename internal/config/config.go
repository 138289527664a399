// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"tuner/internal/analysis"
	"tuner/internal/log"
	"tuner/internal/note"
	"tuner/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Hardware and processing limits.
const (
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 16384  // Maximum frames per buffer and analysis window
	MaxMatchRadius  = 600.0  // Cents; half an octave
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug          bool            `yaml:"debug"`           // Enable debug mode (forces debug logging).
	LogLevel       string          `yaml:"log_level"`       // Logging level ("debug", "info", "warn", "error").
	UpdateInterval time.Duration   `yaml:"update_interval"` // Time between detector updates.
	Audio          AudioConfig     `yaml:"audio"`           // Capture settings.
	Analysis       AnalysisConfig  `yaml:"analysis"`        // Spectral analysis settings.
	Detection      DetectionConfig `yaml:"detection"`       // Gates, smoothing and note table.
	Recording      RecordingConfig `yaml:"recording"`       // WAV recording of the raw input.
	Transport      TransportConfig `yaml:"transport"`       // Publishing of detection results.
}

// AudioConfig holds settings related to audio capture.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for audio input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames delivered per capture callback.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	RingSize        int     `yaml:"ring_size"`         // Samples kept in the live window (0 for 4 x frames_per_buffer).
}

// AnalysisConfig holds settings for the spectral analyzer.
type AnalysisConfig struct {
	WindowSize   int     `yaml:"window_size"`   // FFT size in samples, a power of two.
	Window       string  `yaml:"window"`        // Window function name (e.g., "Hann", "Hamming").
	MinFrequency float64 `yaml:"min_frequency"` // Lowest frequency considered for the peak (Hz).
	MaxFrequency float64 `yaml:"max_frequency"` // Highest frequency considered for the peak (Hz).
	Neighborhood int     `yaml:"neighborhood"`  // Bins either side of the peak used for confidence.
	RatioCap     float64 `yaml:"ratio_cap"`     // Peak/neighbour ratio that maps to full confidence.
}

// DetectionConfig holds the detector thresholds and the note table.
type DetectionConfig struct {
	MinVolume      float64 `yaml:"min_volume"`      // RMS below which input is treated as silence.
	MinConfidence  float64 `yaml:"min_confidence"`  // Confidence below which a frame is discarded.
	Tolerance      float64 `yaml:"tolerance"`       // Cents still reported as in tune.
	MatchRadius    float64 `yaml:"match_radius"`    // Cents within which a frequency matches a note.
	HistorySize    int     `yaml:"history_size"`    // Observations kept for smoothing.
	ReferencePitch float64 `yaml:"reference_pitch"` // Frequency of A4 in Hz.
	LowestNote     string  `yaml:"lowest_note"`     // First note of the table (e.g., "C3").
	HighestNote    string  `yaml:"highest_note"`    // Last note of the table (e.g., "B6").
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Enable audio recording to file.
	OutputDir string `yaml:"output_dir"` // Directory to save recorded audio files.
	Format    string `yaml:"format"`     // File format for recordings (only "wav").
}

// TransportConfig holds settings related to sending detections over the network.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending detection packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between sending UDP packets.
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Broadcast detections as JSON over WebSocket.
	WebSocketPort    string        `yaml:"websocket_port"`     // Port for the WebSocket server.
	LogDetections    bool          `yaml:"log_detections"`     // Log every detection (headless mode).
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Debug:          false,
		LogLevel:       "info",
		UpdateInterval: time.Second / 60,
		Audio: AudioConfig{
			InputDevice:     MinDeviceID,
			SampleRate:      44100,
			FramesPerBuffer: 4096,
			LowLatency:      false,
		},
		Analysis: AnalysisConfig{
			WindowSize:   analysis.DefaultWindowSize,
			Window:       "Hann",
			MinFrequency: analysis.DefaultMinFrequency,
			MaxFrequency: analysis.DefaultMaxFrequency,
			Neighborhood: analysis.DefaultNeighborhood,
			RatioCap:     analysis.DefaultRatioCap,
		},
		Detection: DetectionConfig{
			MinVolume:      0.01,
			MinConfidence:  0.3,
			Tolerance:      note.DefaultTolerance,
			MatchRadius:    note.DefaultMatchRadius,
			HistorySize:    5,
			ReferencePitch: note.ConcertA,
			LowestNote:     note.DefaultLowest,
			HighestNote:    note.DefaultHighest,
		},
		Recording: RecordingConfig{
			Enabled:   false,
			OutputDir: "./recordings",
			Format:    "wav",
		},
		Transport: TransportConfig{
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // ~30Hz
			WebSocketEnabled: false,
			WebSocketPort:    "8080",
			LogDetections:    false,
		},
	}
}

// Candidate file names searched, in order, when LoadConfig is given no path.
var searchPaths = []string{"tuner.yaml", "config.yaml"}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches the default locations. If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range searchPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		log.Debugf("Config: Loaded %s", path)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		fail("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	if c.UpdateInterval <= 0 {
		fail("update_interval must be positive, got %v", c.UpdateInterval)
	}

	// Audio
	a := c.Audio
	if a.InputDevice < MinDeviceID {
		fail("audio.input_device must be >= %d, got %d", MinDeviceID, a.InputDevice)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		fail("audio.sample_rate must be between %d and %d Hz, got %.0f", MinSampleRate, MaxSampleRate, a.SampleRate)
	}
	if a.FramesPerBuffer < 1 || a.FramesPerBuffer > MaxBufferFrames {
		fail("audio.frames_per_buffer must be between 1 and %d, got %d", MaxBufferFrames, a.FramesPerBuffer)
	}
	if a.RingSize < 0 {
		fail("audio.ring_size must not be negative, got %d", a.RingSize)
	}

	// Analysis
	an := c.Analysis
	if !bitint.IsPowerOfTwo(an.WindowSize) || an.WindowSize > MaxBufferFrames {
		fail("analysis.window_size must be a power of two up to %d, got %d (try %d)",
			MaxBufferFrames, an.WindowSize, bitint.NextPowerOfTwo(an.WindowSize))
	}
	if _, err := analysis.ParseWindowFunc(an.Window); err != nil {
		fail("analysis.window: %w", err)
	}
	if an.MinFrequency <= 0 {
		fail("analysis.min_frequency must be positive, got %.2f", an.MinFrequency)
	}
	if an.MaxFrequency <= an.MinFrequency {
		fail("analysis.max_frequency %.2f must exceed min_frequency %.2f", an.MaxFrequency, an.MinFrequency)
	}
	if an.MaxFrequency > a.SampleRate/2 {
		fail("analysis.max_frequency %.2f exceeds Nyquist %.2f", an.MaxFrequency, a.SampleRate/2)
	}
	if an.Neighborhood < 1 {
		fail("analysis.neighborhood must be at least 1, got %d", an.Neighborhood)
	}
	if an.RatioCap <= 0 {
		fail("analysis.ratio_cap must be positive, got %.2f", an.RatioCap)
	}
	if c.ringSize() < an.WindowSize {
		fail("audio.ring_size %d is smaller than analysis.window_size %d", c.ringSize(), an.WindowSize)
	}

	// Detection
	d := c.Detection
	// Zero thresholds would select the detector defaults, so they are rejected here.
	if d.MinVolume <= 0 || d.MinVolume > 1 {
		fail("detection.min_volume must be in (0, 1], got %.3f", d.MinVolume)
	}
	if d.MinConfidence <= 0 || d.MinConfidence > 1 {
		fail("detection.min_confidence must be in (0, 1], got %.3f", d.MinConfidence)
	}
	if d.MatchRadius <= 0 || d.MatchRadius > MaxMatchRadius {
		fail("detection.match_radius must be in (0, %.0f] cents, got %.1f", MaxMatchRadius, d.MatchRadius)
	}
	if d.Tolerance <= 0 || d.Tolerance > d.MatchRadius {
		fail("detection.tolerance must be in (0, match_radius], got %.1f", d.Tolerance)
	}
	if d.HistorySize < 1 {
		fail("detection.history_size must be at least 1, got %d", d.HistorySize)
	}
	if d.ReferencePitch <= 0 {
		fail("detection.reference_pitch must be positive, got %.2f", d.ReferencePitch)
	}
	lo, errLo := note.MIDINumber(d.LowestNote)
	if errLo != nil {
		fail("detection.lowest_note: %w", errLo)
	}
	hi, errHi := note.MIDINumber(d.HighestNote)
	if errHi != nil {
		fail("detection.highest_note: %w", errHi)
	}
	if errLo == nil && errHi == nil && hi < lo {
		fail("detection.highest_note %s is below lowest_note %s", d.HighestNote, d.LowestNote)
	}

	// Recording
	if c.Recording.Enabled {
		if !strings.EqualFold(c.Recording.Format, "wav") {
			fail("recording.format %q is not supported (wav only)", c.Recording.Format)
		}
		if c.Recording.OutputDir == "" {
			fail("recording.output_dir must be set when recording is enabled")
		}
	}

	// Transport
	t := c.Transport
	if t.UDPEnabled {
		if _, _, err := net.SplitHostPort(t.UDPTargetAddress); err != nil {
			fail("transport.udp_target_address %q appears invalid: %w", t.UDPTargetAddress, err)
		}
		if t.UDPSendInterval <= 0 {
			fail("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if t.WebSocketEnabled {
		if port, err := strconv.Atoi(t.WebSocketPort); err != nil || port < 1 || port > 65535 {
			fail("transport.websocket_port %q is not a valid port", t.WebSocketPort)
		}
	}

	return errors.Join(errs...)
}

// RingSize returns the live window capacity in samples.
func (c *Config) RingSize() int {
	return c.ringSize()
}

func (c *Config) ringSize() int {
	if c.Audio.RingSize > 0 {
		return c.Audio.RingSize
	}
	return c.Audio.FramesPerBuffer * 4
}

// applyEnvOverrides applies ENV_* variables on top of file values.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.

	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			log.Infof("Config: Overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		log.Infof("Config: Overriding log_level from env: %s", val)
	}

	// ENV_AUDIO_{...}
	// These are specific to capture.

	// ENV_AUDIO_INPUT_DEVICE
	if val, ok := os.LookupEnv("ENV_AUDIO_INPUT_DEVICE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			cfg.Audio.InputDevice = iVal
			log.Infof("Config: Overriding audio.input_device from env: %d", iVal)
		}
	}
	// ENV_AUDIO_SAMPLE_RATE
	if val, ok := os.LookupEnv("ENV_AUDIO_SAMPLE_RATE"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Audio.SampleRate = fVal
			log.Infof("Config: Overriding audio.sample_rate from env: %.0f", fVal)
		}
	}

	// ENV_DETECTION_{...}
	// These tune the detection gates.

	// ENV_DETECTION_MIN_VOLUME
	if val, ok := os.LookupEnv("ENV_DETECTION_MIN_VOLUME"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Detection.MinVolume = fVal
			log.Infof("Config: Overriding detection.min_volume from env: %.3f", fVal)
		}
	}
	// ENV_DETECTION_MIN_CONFIDENCE
	if val, ok := os.LookupEnv("ENV_DETECTION_MIN_CONFIDENCE"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Detection.MinConfidence = fVal
			log.Infof("Config: Overriding detection.min_confidence from env: %.2f", fVal)
		}
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			log.Infof("Config: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		log.Infof("Config: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			log.Infof("Config: Overriding transport.udp_send_interval from env: %s", dur)
		}
	}

	// ENV_WS_{...}

	// ENV_WS_ENABLED
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.WebSocketEnabled = bVal
			log.Infof("Config: Overriding transport.websocket_enabled from env: %v", bVal)
		}
	}
	// ENV_WS_PORT
	if val, ok := os.LookupEnv("ENV_WS_PORT"); ok {
		cfg.Transport.WebSocketPort = val
		log.Infof("Config: Overriding transport.websocket_port from env: %s", val)
	}
}
