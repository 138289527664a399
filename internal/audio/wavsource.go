// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"tuner/internal/buffer"
	"tuner/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVE_FORMAT_IEEE_FLOAT; go-audio/wav decodes these as raw int32 bits.
const wavFormatFloat = 3

// ErrSourceStopped is returned by Step on a stopped FileSource.
var ErrSourceStopped = errors.New("file source is not running")

// FileSource replays a WAV file into a buffer.Ring one block at a time, in
// place of a live Capture. Multi-channel files are mixed down to mono.
type FileSource struct {
	path   string
	frames int
	ring   *buffer.Ring

	mu       sync.Mutex
	file     *os.File
	decoder  *wav.Decoder
	pcm      *audio.IntBuffer
	block    []float32
	channels int
	scale    float32
	offset   int  // 8-bit WAV is unsigned
	float    bool // IEEE float samples carried as int32 bit patterns
	running  bool
	read     uint64
}

// OpenFileSource validates the WAV file at path. framesPerBuffer is the
// number of frames each Step pushes.
func OpenFileSource(path string, ring *buffer.Ring, framesPerBuffer int) (*FileSource, error) {
	if framesPerBuffer < 1 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	s := &FileSource{path: path, frames: framesPerBuffer, ring: ring}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSource) open() error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return fmt.Errorf("open %s: invalid WAV file", s.path)
	}

	format := decoder.Format()
	channels := max(format.NumChannels, 1)
	bitDepth := int(decoder.BitDepth)
	if bitDepth < 8 || bitDepth > 32 {
		file.Close()
		return fmt.Errorf("open %s: unsupported bit depth %d", s.path, bitDepth)
	}
	isFloat := decoder.WavAudioFormat == wavFormatFloat
	if isFloat && bitDepth != 32 {
		file.Close()
		return fmt.Errorf("open %s: unsupported %d-bit float WAV", s.path, bitDepth)
	}

	s.file = file
	s.decoder = decoder
	s.channels = channels
	s.float = isFloat
	s.scale = 1 / float32(int64(1)<<(bitDepth-1))
	s.offset = 0
	if bitDepth == 8 {
		s.offset = 128
	}
	s.pcm = &audio.IntBuffer{Format: format, Data: make([]int, s.frames*channels)}
	s.block = make([]float32, s.frames)
	s.read = 0
	return nil
}

// SampleRate returns the file's sample rate in Hz.
func (s *FileSource) SampleRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decoder == nil {
		return 0
	}
	return float64(s.decoder.SampleRate)
}

// Start begins playback, reopening the file if it was stopped.
func (s *FileSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if s.file == nil {
		if err := s.open(); err != nil {
			return &DeviceError{Op: "open", DeviceID: 0, Err: err}
		}
	}
	s.running = true
	log.Debugf("FileSource: Reading %s (%d Hz, %d channels)", s.path, s.decoder.SampleRate, s.channels)
	return nil
}

// Stop closes the file. Stopping twice is a no-op.
func (s *FileSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running && s.file == nil {
		return nil
	}
	s.running = false
	var err error
	if s.file != nil {
		err = s.file.Close()
		s.file = nil
		s.decoder = nil
	}
	return err
}

// Devices reports the file as the single available input.
func (s *FileSource) Devices() ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := Device{ID: 0, Name: filepath.Base(s.path), MaxInputChannels: s.channels}
	if s.decoder != nil {
		d.DefaultSampleRate = float64(s.decoder.SampleRate)
	}
	return []Device{d}, nil
}

// SetDevice accepts only device 0, the file itself.
func (s *FileSource) SetDevice(deviceID int) error {
	if deviceID != 0 {
		return fmt.Errorf("select input device: %w: %d", ErrInvalidDevice, deviceID)
	}
	return nil
}

// Step decodes the next block, pushes it into the ring and returns the
// number of frames pushed. It returns io.EOF once the file is exhausted.
func (s *FileSource) Step() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.decoder == nil {
		return 0, ErrSourceStopped
	}

	s.pcm.Data = s.pcm.Data[:cap(s.pcm.Data)]
	n, err := s.decoder.PCMBuffer(s.pcm)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		return 0, io.EOF
	}

	frames := n / s.channels
	if s.float {
		for i := range frames {
			var sum float32
			for ch := range s.channels {
				sum += math.Float32frombits(uint32(int32(s.pcm.Data[i*s.channels+ch])))
			}
			s.block[i] = sum / float32(s.channels)
		}
	} else {
		for i := range frames {
			var sum int
			for ch := range s.channels {
				sum += s.pcm.Data[i*s.channels+ch] - s.offset
			}
			s.block[i] = float32(sum) * s.scale / float32(s.channels)
		}
	}

	s.ring.Push(s.block[:frames])
	s.read += uint64(frames)
	return frames, nil
}

// Position returns the number of frames read so far.
func (s *FileSource) Position() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read
}
