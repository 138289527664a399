// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"tuner/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// RecordingBitDepth is the sample size of recorded WAV files.
const RecordingBitDepth = 16

var ErrAlreadyRecording = errors.New("already recording")

// Recorder writes captured mono float32 blocks to a 16-bit PCM WAV file.
type Recorder struct {
	sampleRate int

	mu         sync.Mutex // guards file, encoder and sampleBuf
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer // reusable buffer for format conversion

	isRecording atomic.Bool
	frames      atomic.Uint64
}

// NewRecorder creates an idle Recorder. framesPerBuffer sizes the
// conversion buffer so that capture-sized blocks do not allocate.
func NewRecorder(sampleRate, framesPerBuffer int) *Recorder {
	if framesPerBuffer < 1 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &Recorder{
		sampleRate: sampleRate,
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: 1,
				SampleRate:  sampleRate,
			},
			Data:           make([]int, framesPerBuffer),
			SourceBitDepth: RecordingBitDepth,
		},
	}
}

// Start creates filename and begins accepting blocks.
func (r *Recorder) Start(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRecording.Load() {
		return ErrAlreadyRecording
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	r.outputFile = file
	r.wavEncoder = wav.NewEncoder(file, r.sampleRate, RecordingBitDepth, 1, 1)
	r.frames.Store(0)
	r.isRecording.Store(true)

	log.Infof("Recorder: Writing %s (%d Hz, %d-bit mono)", filename, r.sampleRate, RecordingBitDepth)
	return nil
}

// Write appends samples, clipped to [-1, 1], to the open file. Writing
// while stopped is a no-op.
func (r *Recorder) Write(samples []float32) error {
	if !r.isRecording.Load() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wavEncoder == nil {
		return nil
	}

	if cap(r.sampleBuf.Data) < len(samples) {
		r.sampleBuf.Data = make([]int, len(samples))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(samples)]

	const scale = 1<<(RecordingBitDepth-1) - 1
	for i, s := range samples {
		v := max(-1, min(1, s))
		r.sampleBuf.Data[i] = int(v * scale)
	}

	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		return err
	}
	r.frames.Add(uint64(len(samples)))
	return nil
}

// Stop finalises the WAV header and closes the file. Stopping an idle
// Recorder is a no-op.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRecording.Load() {
		return nil
	}
	r.isRecording.Store(false)

	var errs []error
	if r.wavEncoder != nil {
		if err := r.wavEncoder.Close(); err != nil {
			errs = append(errs, err)
		}
		r.wavEncoder = nil
	}
	if r.outputFile != nil {
		if err := r.outputFile.Close(); err != nil {
			errs = append(errs, err)
		}
		r.outputFile = nil
	}

	log.Infof("Recorder: Stopped after %d frames", r.frames.Load())
	return errors.Join(errs...)
}

// Recording reports whether a file is open.
func (r *Recorder) Recording() bool {
	return r.isRecording.Load()
}

// Frames returns the number of samples written to the current or last file.
func (r *Recorder) Frames() uint64 {
	return r.frames.Load()
}
