// SPDX-License-Identifier: MIT
package transport

import (
	"tuner/internal/log"
	"tuner/internal/note"
)

// LoggingTransport implements the Transport interface by logging detections.
// Only changes are logged so a held note does not flood the output.
type LoggingTransport struct {
	last     string
	detected bool
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs Message values. Other types are logged verbatim at debug level.
func (lt *LoggingTransport) Send(data any) error {
	msg, ok := data.(Message)
	if !ok {
		log.Debugf("LOG_TRANSPORT: Received (%T): %+v", data, data)
		return nil
	}

	if !msg.Detected {
		if lt.detected {
			log.Infof("LOG_TRANSPORT: %s", msg.State)
		}
		lt.detected, lt.last = false, ""
		return nil
	}

	d := msg.Detection
	line := d.Note + " " + d.Status.String()
	if line == lt.last {
		return nil
	}
	lt.detected, lt.last = true, line
	log.Infof("LOG_TRANSPORT: %-4s %10s %5s %-7s conf %.2f",
		d.Note, note.FormatFrequency(d.Frequency), note.FormatCents(d.Deviation), d.Status, d.Confidence)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	log.Debugf("LOG_TRANSPORT: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
