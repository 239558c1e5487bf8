package hidock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDownloadReturnsQueuedOperation(t *testing.T) {
	m := NewOperationsManager(nil, nil, nil, t.TempDir())

	var updates []Operation
	op := m.QueueDownload("a.wav", func(u Operation) { updates = append(updates, u) })

	require.NotEmpty(t, op.ID)
	assert.Equal(t, OpDownload, op.Type)
	assert.Equal(t, "a.wav", op.Filename)
	assert.Equal(t, StatusQueued, op.Status)

	require.Len(t, updates, 1)
	assert.Equal(t, StatusQueued, updates[0].Status)
}

func TestIsFileOperationActiveReflectsQueueState(t *testing.T) {
	m := NewOperationsManager(nil, nil, nil, t.TempDir())

	assert.False(t, m.IsFileOperationActive("a.wav", OpDownload))

	m.QueueDownload("a.wav", nil)
	assert.True(t, m.IsFileOperationActive("a.wav", OpDownload))
	assert.False(t, m.IsFileOperationActive("a.wav", OpDelete))
}

func TestCancelQueuedOperationRemovesItAndNotifies(t *testing.T) {
	m := NewOperationsManager(nil, nil, nil, t.TempDir())

	var last Operation
	op := m.QueueDownload("a.wav", func(u Operation) { last = u })

	ok := m.CancelOperation(op.ID)
	assert.True(t, ok)
	assert.Equal(t, StatusCancelled, last.Status)
	assert.False(t, m.IsFileOperationActive("a.wav", OpDownload))
}

func TestCancelUnknownOperationReturnsFalse(t *testing.T) {
	m := NewOperationsManager(nil, nil, nil, t.TempDir())
	assert.False(t, m.CancelOperation("does-not-exist"))
}

func TestGetAllActiveOperationsSnapshot(t *testing.T) {
	m := NewOperationsManager(nil, nil, nil, t.TempDir())

	m.QueueDownload("a.wav", nil)
	m.QueueDelete("b.wav", nil)

	active := m.GetAllActiveOperations()
	assert.Len(t, active, 2)
}

func TestSanitizeFilenameSubstitutesIllegalCharacters(t *testing.T) {
	assert.Equal(t, "2024-01-31_10-15-00_REC1.wav", sanitizeFilename("2024:01:31 10-15-00\\REC1.wav"))
	assert.Equal(t, "dir_sub_REC1.wav", sanitizeFilename("dir/sub/REC1.wav"))
	assert.Equal(t, "plain.wav", sanitizeFilename("plain.wav"))
}

func TestChecksumFileMatchesKnownDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", checksumFile(path))
}

func TestChecksumFileMissingReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", checksumFile(filepath.Join(t.TempDir(), "nope.bin")))
}

func TestOperationTypeAndStatusStrings(t *testing.T) {
	assert.Equal(t, "download", OpDownload.String())
	assert.Equal(t, "delete", OpDelete.String())

	assert.Equal(t, "queued", StatusQueued.String())
	assert.Equal(t, "in_progress", StatusInProgress.String())
	assert.Equal(t, "completed", StatusCompleted.String())
	assert.Equal(t, "cancelled", StatusCancelled.String())
	assert.Equal(t, "failed", StatusFailed.String())
}
