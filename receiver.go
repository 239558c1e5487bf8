/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * Streaming receiver: re-entrant byte buffer and frame extractor
 */

package hidock

import (
	"time"
)

// FrameReader is the minimal capability the receiver needs from the
// transport: read up to len(buf) bytes, honoring a per-call timeout.
// ErrKind ErrUsbTimeout is expected and non-fatal; any other error
// propagates.
type FrameReader interface {
	Read(buf []byte, timeout time.Duration) (int, error)
}

// Receiver parses a byte stream into whole Frames, keeping leftover
// bytes across calls. It is not safe for concurrent use; the session
// serializes all access to it.
type Receiver struct {
	reader FrameReader
	buf    []byte
	log    *Logger
}

// NewReceiver creates a Receiver reading from r
func NewReceiver(r FrameReader, log *Logger) *Receiver {
	return &Receiver{reader: r, log: log}
}

// readSize is the USB read chunk size: max(wMaxPacketSize*64, 4096).
// The transport supplies wMaxPacketSize; 4096 is used when unknown.
func readSize(wMaxPacketSize int) int {
	n := wMaxPacketSize * 64
	if n < 4096 {
		n = 4096
	}
	return n
}

// fill reads more bytes into buf, honoring timeout. A timeout error is
// returned to the caller unchanged so callers can distinguish it.
func (rv *Receiver) fill(timeout time.Duration, wMaxPacketSize int) error {
	chunk := make([]byte, readSize(wMaxPacketSize))
	n, err := rv.reader.Read(chunk, timeout)
	if n > 0 {
		rv.buf = append(rv.buf, chunk[:n]...)
	}
	return err
}

// resync drops leading bytes until the sync marker is found. If no
// marker is present, it drops everything except the final byte. Used
// only outside a streaming command.
func (rv *Receiver) resync() {
	for i := 0; i+1 < len(rv.buf); i++ {
		if IsSyncAt(rv.buf[i:]) {
			if i > 0 && rv.log != nil {
				rv.log.Debug('?', "receiver: resync: dropped %d bytes", i)
			}
			rv.buf = rv.buf[i:]
			return
		}
	}
	// No marker found anywhere in the buffer: keep only the last byte,
	// since it might be the first half of the marker on the next read.
	if len(rv.buf) > 0 {
		rv.buf = rv.buf[len(rv.buf)-1:]
	}
}

// Next extracts the next frame from the stream, reading more bytes as
// needed. streamCommandID is the expected command ID while a streaming
// transfer is in progress, or 0 for a single-response command awaiting
// expectedSeq. overall bounds total time spent in this call.
//
// Resyncs on a bad sync marker outside streaming mode; inside
// streaming mode a bad sync marker is fatal. Non-matching frames are
// discarded and the loop continues.
func (rv *Receiver) Next(streaming bool, streamCommandID uint16,
	expectedSeq uint32, overall time.Duration, wMaxPacketSize int) (*Frame, error) {

	deadline := time.Now().Add(overall)

	for {
		// Step 1/3: ensure at least a header's worth of bytes
		for len(rv.buf) < FrameHeaderSize {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, NewError(ErrUsbTimeout, nil, "receiver: overall timeout waiting for header")
			}

			step := remaining
			if step > UsbReadTimeout {
				step = UsbReadTimeout
			}

			err := rv.fill(step, wMaxPacketSize)
			if err != nil {
				if Is(err, ErrUsbTimeout) {
					continue
				}
				return nil, err
			}
		}

		// Step 2: verify or restore sync
		if !IsSyncAt(rv.buf) {
			if streaming {
				rv.buf = nil
				return nil, NewError(ErrProtocol, nil, "receiver: bad sync marker during stream")
			}
			rv.resync()
			continue
		}

		// Step 4: ensure the whole frame is buffered
		hdr := ParseHeader(rv.buf[:FrameHeaderSize])
		total := hdr.TotalLength()

		for len(rv.buf) < total {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, NewError(ErrUsbTimeout, nil, "receiver: overall timeout waiting for body")
			}

			step := remaining
			if step > UsbReadTimeout {
				step = UsbReadTimeout
			}

			err := rv.fill(step, wMaxPacketSize)
			if err != nil {
				if Is(err, ErrUsbTimeout) {
					continue
				}
				return nil, err
			}
		}

		// Step 5: extract the frame, keep the remainder
		body := make([]byte, hdr.BodyLength)
		copy(body, rv.buf[FrameHeaderSize:FrameHeaderSize+hdr.BodyLength])
		rv.buf = rv.buf[total:]

		frame := &Frame{
			CommandID:  hdr.CommandID,
			SequenceID: hdr.SequenceID,
			Body:       body,
		}

		// Step 6/7: deliver matching frames, discard and continue otherwise
		matches := (streaming && frame.CommandID == streamCommandID) ||
			(!streaming && frame.SequenceID == expectedSeq)

		if matches {
			return frame, nil
		}

		if rv.log != nil {
			rv.log.Debug('?', "receiver: discarding frame cmd=%d seq=%d (expected seq=%d)",
				frame.CommandID, frame.SequenceID, expectedSeq)
		}
	}
}

// Reset discards any buffered bytes. Used before issuing a new
// non-streaming command.
func (rv *Receiver) Reset() {
	rv.buf = nil
}

// Pending reports the count of unparsed bytes currently buffered
func (rv *Receiver) Pending() int {
	return len(rv.buf)
}
