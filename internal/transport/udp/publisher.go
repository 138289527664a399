// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"tuner/internal/log"
	"tuner/internal/transport"
)

// PacketSender delivers one encoded packet.
type PacketSender interface {
	Send(data []byte) error
}

// UDPPublisher keeps the latest detection handed to Send and, on every tick
// of its own interval, encodes it into a detection packet and sends it with
// the PacketSender. The update loop and the network never wait on each other.
type UDPPublisher struct {
	sender   PacketSender  // The underlying sender.
	interval time.Duration // The interval at which packets are sent.

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Closed to stop the publisher goroutine.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan during Start/Stop.

	latestMu  sync.Mutex
	latest    transport.Message
	hasLatest bool

	sequenceNum uint32 // Owned by the publisher goroutine.
	packetBuf   []byte // Reused for every packet.
}

// NewUDPPublisher creates a publisher. If the interval is invalid (<= 0), it
// defaults to 16ms (~60Hz).
func NewUDPPublisher(interval time.Duration, sender PacketSender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("UDPPublisher: UDP sender cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		log.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	log.Infof("UDPPublisher: Initializing (Interval: %s, Packet: %d bytes)", interval, PacketSize)

	return &UDPPublisher{
		sender:    sender,
		interval:  interval,
		packetBuf: make([]byte, 0, PacketSize),
	}, nil
}

// Send records data as the latest detection. Only transport.Message values
// are accepted.
func (p *UDPPublisher) Send(data any) error {
	msg, ok := data.(transport.Message)
	if !ok {
		return fmt.Errorf("UDPPublisher: unsupported payload %T", data)
	}
	p.latestMu.Lock()
	p.latest, p.hasLatest = msg, true
	p.latestMu.Unlock()
	return nil
}

// Start begins the periodic publishing process.
// It is safe to call Start multiple times; subsequent calls are no-ops if already started.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		log.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Local copies so the goroutine never reads p.ticker or p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				log.Debugf("UDPPublisher: Publisher goroutine received stop signal.")
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times; subsequent calls are no-ops.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		log.Debugf("UDPPublisher: Stop called but not running.")
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	log.Debugf("UDPPublisher: Publisher goroutine finished.")
	return nil
}

// publish encodes the latest message and sends it. Nothing is sent before
// the first Send.
func (p *UDPPublisher) publish() {
	p.latestMu.Lock()
	msg, ok := p.latest, p.hasLatest
	p.latestMu.Unlock()
	if !ok {
		return
	}

	p.sequenceNum++
	p.packetBuf = AppendPacket(p.packetBuf[:0], packetFor(p.sequenceNum, msg))

	if err := p.sender.Send(p.packetBuf); err != nil {
		log.Debugf("UDPPublisher: Error sending packet %d: %v", p.sequenceNum, err)
		return
	}
	log.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(p.packetBuf))
}

func packetFor(seq uint32, msg transport.Message) Packet {
	pkt := Packet{
		Sequence:  seq,
		Timestamp: msg.Timestamp.UnixNano(),
		Detected:  msg.Detected,
	}
	if msg.Detected {
		d := msg.Detection
		pkt.Status = d.Status
		pkt.Note = d.Note
		pkt.Frequency = float32(d.Frequency)
		pkt.Confidence = float32(d.Confidence)
		pkt.Deviation = float32(d.Deviation)
		pkt.Volume = float32(d.Volume)
	}
	return pkt
}

// Close stops the publisher goroutine.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ transport.Transport = (*UDPPublisher)(nil)

// PacketSenderFunc adapts a function to PacketSender.
type PacketSenderFunc func(data []byte) error

func (f PacketSenderFunc) Send(data []byte) error { return f(data) }
