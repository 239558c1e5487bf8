package hidock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameCodecBuildRoundTrip(t *testing.T) {
	var c FrameCodec
	body := []byte("hello jensen")

	wire := c.Build(CmdDeviceInfo, body)
	require.Len(t, wire, FrameHeaderSize+len(body))

	assert.True(t, IsSyncAt(wire))

	hdr := ParseHeader(wire[:FrameHeaderSize])
	assert.Equal(t, uint16(CmdDeviceInfo), hdr.CommandID)
	assert.Equal(t, uint32(1), hdr.SequenceID)
	assert.Equal(t, uint32(len(body)), hdr.BodyLength)
	assert.Equal(t, uint8(0), hdr.ChecksumLength)
	assert.Equal(t, FrameHeaderSize+len(body), hdr.TotalLength())
	assert.Equal(t, body, wire[FrameHeaderSize:])
}

func TestFrameCodecSequenceIncrements(t *testing.T) {
	var c FrameCodec

	assert.Equal(t, uint32(0), c.LastSequence())

	c.Build(CmdFileCount, nil)
	assert.Equal(t, uint32(1), c.LastSequence())

	c.Build(CmdFileCount, nil)
	assert.Equal(t, uint32(2), c.LastSequence())
}

func TestParseHeaderMasksChecksumLength(t *testing.T) {
	header := make([]byte, FrameHeaderSize)
	header[0], header[1] = SyncByte0, SyncByte1
	header[2], header[3] = 0, byte(CmdFileList)
	header[8] = 0x07 // checksum-length nibble in the top byte
	header[9], header[10], header[11] = 0, 0, 0x10

	hdr := ParseHeader(header)
	assert.Equal(t, uint16(CmdFileList), hdr.CommandID)
	assert.Equal(t, uint32(0x10), hdr.BodyLength)
	assert.Equal(t, uint8(0x07), hdr.ChecksumLength)
	assert.Equal(t, FrameHeaderSize+0x10+0x07, hdr.TotalLength())
}

func TestIsSyncAt(t *testing.T) {
	assert.True(t, IsSyncAt([]byte{SyncByte0, SyncByte1, 0, 0}))
	assert.False(t, IsSyncAt([]byte{0x00, SyncByte1}))
	assert.False(t, IsSyncAt([]byte{SyncByte0, 0x00}))
}
