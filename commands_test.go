package hidock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusByteOK(t *testing.T) {
	assert.NoError(t, statusByte([]byte{0}, "op"))
}

func TestStatusByteFailure(t *testing.T) {
	err := statusByte([]byte{1}, "op")
	require.Error(t, err)
	assert.True(t, Is(err, ErrProtocol))
}

func TestStatusByteEmpty(t *testing.T) {
	err := statusByte(nil, "op")
	require.Error(t, err)
	assert.True(t, Is(err, ErrProtocol))
}

func TestBoolByteConversion(t *testing.T) {
	assert.Equal(t, byte(1), boolByte(true))
	assert.Equal(t, byte(0), boolByte(false))
}

func TestCommandsRejectedWhenDisconnected(t *testing.T) {
	s := NewSession(nil)

	_, err := s.DeviceInfo()
	require.Error(t, err)
	assert.True(t, Is(err, ErrConnectionLost))

	_, err = s.FileCount()
	require.Error(t, err)
	assert.True(t, Is(err, ErrConnectionLost))

	err = s.DeleteFile("a.wav")
	require.Error(t, err)
	assert.True(t, Is(err, ErrConnectionLost))
}

func TestCommandsRejectedWhileFileListStreaming(t *testing.T) {
	s := NewSession(nil)
	s.setFileListStreaming(true)

	_, err := s.DeviceInfo()
	require.Error(t, err)
	assert.True(t, Is(err, ErrBusy))

	_, err = s.CardInfo()
	require.Error(t, err)
	assert.True(t, Is(err, ErrBusy))

	err = s.DeleteFile("a.wav")
	require.Error(t, err)
	assert.True(t, Is(err, ErrBusy))
}

func TestFileListAndFileTransferExemptFromBusyGuard(t *testing.T) {
	s := NewSession(nil)
	s.setFileListStreaming(true)

	// Neither is connected, so the guard passes and the failure that
	// surfaces is connection-lost, not busy.
	_, err := s.ListFiles()
	require.Error(t, err)
	assert.True(t, Is(err, ErrConnectionLost))

	s.setFileListStreaming(true)
	_, err = s.DownloadFile("a.wav", 0, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, Is(err, ErrConnectionLost))
}
