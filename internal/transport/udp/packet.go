// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"fmt"
	"math"

	"tuner/internal/note"
)

/*
Detection packet (BigEndian, fixed size)

+------------------------------------------------------------------------------+
| Field          | Data Type | Size (Bytes) | Description                        |
|----------------|-----------|--------------|------------------------------------|
| Sequence       | uint32    | 4            | Monotonically increasing           |
| Timestamp      | int64     | 8            | Nanoseconds since epoch            |
| Flags          | uint8     | 1            | Bit 0 set when a note is detected  |
| Status         | uint8     | 1            | 0 perfect, 1 sharp, 2 flat         |
| Note           | [4]byte   | 4            | ASCII name, zero padded ("C#4")    |
| Frequency      | float32   | 4            | Hz                                 |
| Confidence     | float32   | 4            | 0..1                               |
| Deviation      | float32   | 4            | Cents, positive when sharp         |
| Volume         | float32   | 4            | RMS of the analysed window         |
+------------------------------------------------------------------------------+

When the detected flag is clear every field after Flags is zero.
*/

const (
	PacketSize = 34

	// Note names longer than noteNameSize bytes are cut to fit. Every name
	// from octave -1 through 10 ("C#-1", "A#10") fits.
	noteNameSize = 4

	flagDetected = 1 << 0
)

// Packet is the decoded form of one detection packet.
type Packet struct {
	Sequence   uint32
	Timestamp  int64
	Detected   bool
	Status     note.Status
	Note       string
	Frequency  float32
	Confidence float32
	Deviation  float32
	Volume     float32
}

// AppendPacket appends the wire form of p to dst. p.Note is truncated to
// its first four bytes.
func AppendPacket(dst []byte, p Packet) []byte {
	dst = binary.BigEndian.AppendUint32(dst, p.Sequence)
	dst = binary.BigEndian.AppendUint64(dst, uint64(p.Timestamp))

	if !p.Detected {
		var zero [PacketSize - 12]byte
		return append(dst, zero[:]...)
	}

	dst = append(dst, flagDetected, byte(p.Status))
	var name [noteNameSize]byte
	copy(name[:], p.Note)
	dst = append(dst, name[:]...)
	for _, v := range [...]float32{p.Frequency, p.Confidence, p.Deviation, p.Volume} {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// DecodePacket parses one detection packet.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) != PacketSize {
		return Packet{}, fmt.Errorf("udp: packet is %d bytes, want %d", len(b), PacketSize)
	}
	p := Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
		Detected:  b[12]&flagDetected != 0,
		Status:    note.Status(b[13]),
	}
	if !p.Detected {
		return p, nil
	}

	name := b[14 : 14+noteNameSize]
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}
	p.Note = string(name[:n])

	f := b[14+noteNameSize:]
	p.Frequency = math.Float32frombits(binary.BigEndian.Uint32(f[0:4]))
	p.Confidence = math.Float32frombits(binary.BigEndian.Uint32(f[4:8]))
	p.Deviation = math.Float32frombits(binary.BigEndian.Uint32(f[8:12]))
	p.Volume = math.Float32frombits(binary.BigEndian.Uint32(f[12:16]))
	return p, nil
}
