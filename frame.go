/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * Jensen frame codec: build and parse
 */

package hidock

import (
	"encoding/binary"
	"sync/atomic"
)

// Frame is one application-level Jensen message
type Frame struct {
	CommandID  uint16
	SequenceID uint32
	Body       []byte
}

// FrameCodec builds outgoing frames and maintains the sequence counter.
// A fresh FrameCodec's first Build assigns sequence 1.
type FrameCodec struct {
	seq uint32
}

// Build encodes a frame for commandID carrying body, assigning the next
// sequence number. Sequence IDs increase by 1 modulo 2^32, starting
// at 1, regardless of commandID or body contents.
func (c *FrameCodec) Build(commandID uint16, body []byte) []byte {
	seq := atomic.AddUint32(&c.seq, 1)

	buf := make([]byte, FrameHeaderSize+len(body))
	buf[0] = SyncByte0
	buf[1] = SyncByte1
	binary.BigEndian.PutUint16(buf[2:4], commandID)
	binary.BigEndian.PutUint32(buf[4:8], seq)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(body)))
	copy(buf[12:], body)

	return buf
}

// LastSequence returns the most recently assigned sequence ID, or 0 if
// Build has never been called.
func (c *FrameCodec) LastSequence() uint32 {
	return atomic.LoadUint32(&c.seq)
}

// ParsedHeader is the decoded form of a 12-byte frame header
type ParsedHeader struct {
	CommandID      uint16
	SequenceID     uint32
	BodyLength     uint32
	ChecksumLength uint8
}

// TotalLength is 12 + BodyLength + ChecksumLength: the number of bytes
// the full frame occupies in the byte stream.
func (h ParsedHeader) TotalLength() int {
	return FrameHeaderSize + int(h.BodyLength) + int(h.ChecksumLength)
}

// ParseHeader decodes a 12-byte frame header. The caller guarantees
// header is at least FrameHeaderSize bytes and already starts with the
// sync marker; ParseHeader does not itself check the sync bytes.
//
// The top byte of the wire's body-length field is a reserved
// checksum-length count: mask it off to get the body length, and
// surface it separately as ChecksumLength.
func ParseHeader(header []byte) ParsedHeader {
	commandID := binary.BigEndian.Uint16(header[2:4])
	sequenceID := binary.BigEndian.Uint32(header[4:8])
	raw := binary.BigEndian.Uint32(header[8:12])

	return ParsedHeader{
		CommandID:      commandID,
		SequenceID:     sequenceID,
		BodyLength:     raw & 0x00FFFFFF,
		ChecksumLength: uint8(raw >> 24),
	}
}

// IsSyncAt reports whether buf[0:2] is the Jensen sync marker. The
// caller guarantees len(buf) >= 2.
func IsSyncAt(buf []byte) bool {
	return buf[0] == SyncByte0 && buf[1] == SyncByte1
}
