package hidock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader feeds a scripted sequence of reads to a Receiver. Each
// entry is delivered on one Read call; ErrUsbTimeout entries return
// zero bytes and a timeout error.
type fakeReader struct {
	chunks [][]byte
	pos    int
}

func (f *fakeReader) Read(buf []byte, timeout time.Duration) (int, error) {
	if f.pos >= len(f.chunks) {
		return 0, NewError(ErrUsbTimeout, nil, "fakeReader: exhausted")
	}
	chunk := f.chunks[f.pos]
	f.pos++
	if chunk == nil {
		return 0, NewError(ErrUsbTimeout, nil, "fakeReader: scripted timeout")
	}
	n := copy(buf, chunk)
	return n, nil
}

func buildWire(t *testing.T, commandID uint16, seq uint32, body []byte) []byte {
	t.Helper()
	buf := make([]byte, FrameHeaderSize+len(body))
	buf[0], buf[1] = SyncByte0, SyncByte1
	buf[2] = byte(commandID >> 8)
	buf[3] = byte(commandID)
	buf[4] = byte(seq >> 24)
	buf[5] = byte(seq >> 16)
	buf[6] = byte(seq >> 8)
	buf[7] = byte(seq)
	buf[9] = byte(len(body) >> 16)
	buf[10] = byte(len(body) >> 8)
	buf[11] = byte(len(body))
	copy(buf[FrameHeaderSize:], body)
	return buf
}

func TestReceiverNextSingleFrame(t *testing.T) {
	wire := buildWire(t, CmdDeviceInfo, 1, []byte("ok"))
	r := &fakeReader{chunks: [][]byte{wire}}
	rv := NewReceiver(r, nil)

	frame, err := rv.Next(false, 0, 1, time.Second, 64)
	require.NoError(t, err)
	assert.Equal(t, uint16(CmdDeviceInfo), frame.CommandID)
	assert.Equal(t, uint32(1), frame.SequenceID)
	assert.Equal(t, []byte("ok"), frame.Body)
	assert.Equal(t, 0, rv.Pending())
}

func TestReceiverNextAcrossPartialReads(t *testing.T) {
	wire := buildWire(t, CmdFileCount, 5, []byte("abcd"))
	r := &fakeReader{chunks: [][]byte{wire[:3], wire[3:10], wire[10:]}}
	rv := NewReceiver(r, nil)

	frame, err := rv.Next(false, 0, 5, time.Second, 64)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), frame.Body)
}

func TestReceiverResyncsOutsideStreaming(t *testing.T) {
	garbage := []byte{0x00, 0x01, 0x02}
	wire := buildWire(t, CmdDeviceInfo, 1, []byte("x"))
	r := &fakeReader{chunks: [][]byte{append(garbage, wire...)}}
	rv := NewReceiver(r, nil)

	frame, err := rv.Next(false, 0, 1, time.Second, 64)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), frame.Body)
}

func TestReceiverFatalOnBadSyncDuringStreaming(t *testing.T) {
	garbage := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b}
	r := &fakeReader{chunks: [][]byte{garbage}}
	rv := NewReceiver(r, nil)

	_, err := rv.Next(true, CmdFileList, 0, time.Second, 64)
	require.Error(t, err)
	assert.True(t, Is(err, ErrProtocol))
}

func TestReceiverDiscardsNonMatchingFrames(t *testing.T) {
	wrongSeq := buildWire(t, CmdDeviceInfo, 2, []byte("wrong"))
	rightSeq := buildWire(t, CmdDeviceInfo, 3, []byte("right"))
	r := &fakeReader{chunks: [][]byte{append(wrongSeq, rightSeq...)}}
	rv := NewReceiver(r, nil)

	frame, err := rv.Next(false, 0, 3, time.Second, 64)
	require.NoError(t, err)
	assert.Equal(t, []byte("right"), frame.Body)
}

func TestReceiverStreamingMatchesByCommandNotSequence(t *testing.T) {
	wire := buildWire(t, CmdFileList, 99, []byte("chunk"))
	r := &fakeReader{chunks: [][]byte{wire}}
	rv := NewReceiver(r, nil)

	frame, err := rv.Next(true, CmdFileList, 0, time.Second, 64)
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk"), frame.Body)
}

func TestReceiverTimeoutPropagates(t *testing.T) {
	r := &fakeReader{chunks: [][]byte{nil, nil, nil}}
	rv := NewReceiver(r, nil)

	_, err := rv.Next(false, 0, 1, 10*time.Millisecond, 64)
	require.Error(t, err)
	assert.True(t, Is(err, ErrUsbTimeout))
}

func TestReceiverResetClearsBuffer(t *testing.T) {
	wire := buildWire(t, CmdDeviceInfo, 1, []byte("x"))
	r := &fakeReader{chunks: [][]byte{append(wire, byte(0xAA))}}
	rv := NewReceiver(r, nil)

	_, err := rv.Next(false, 0, 1, time.Second, 64)
	require.NoError(t, err)
	assert.Equal(t, 1, rv.Pending())

	rv.Reset()
	assert.Equal(t, 0, rv.Pending())
}
