// SPDX-License-Identifier: MIT
package transport

import (
	"time"

	"tuner/internal/detector"
)

// Transport defines a generic interface for publishing detection results.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Message is the per-tick payload handed to every transport.
type Message struct {
	Sequence  uint64             `json:"seq"`
	Timestamp time.Time          `json:"timestamp"`
	Detected  bool               `json:"detected"`
	State     string             `json:"state"`
	Detection detector.Detection `json:"detection"`
}

// NewMessage builds a Message for one Update result.
func NewMessage(seq uint64, det detector.Detection, detected bool, state detector.State) Message {
	return Message{
		Sequence:  seq,
		Timestamp: time.Now(),
		Detected:  detected,
		State:     state.String(),
		Detection: det,
	}
}

// Fanout sends to every transport and closes them together.
type Fanout []Transport

// Send delivers data to each transport, continuing past failures, and
// returns the first error.
func (f Fanout) Send(data any) error {
	var first error
	for _, t := range f {
		if err := t.Send(data); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every transport and returns the first error.
func (f Fanout) Close() error {
	var first error
	for _, t := range f {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ Transport = Fanout(nil)
