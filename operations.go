/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * Operations manager: single background worker draining a FIFO queue
 * of cancelable download/delete operations
 */

package hidock

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// OperationType distinguishes the two kinds of queued work
type OperationType int

const (
	OpDownload OperationType = iota
	OpDelete
)

func (t OperationType) String() string {
	if t == OpDownload {
		return "download"
	}
	return "delete"
}

// OperationStatus is an Operation's lifecycle state
type OperationStatus int

const (
	StatusQueued OperationStatus = iota
	StatusInProgress
	StatusCompleted
	StatusCancelled
	StatusFailed
)

func (s OperationStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Operation is one queued or in-flight download/delete, identified by
// a UUID stable for its whole lifetime
type Operation struct {
	ID       string
	Type     OperationType
	Filename string
	Status   OperationStatus

	BytesDone  uint32
	BytesTotal uint32
	LocalPath  string // set on a completed download: where the file was written
	Err        error

	cancelled bool
	onUpdate  func(Operation)
}

// OperationsManager runs a single background worker that pops
// operations off a FIFO queue and executes them one at a time,
// guaranteeing no two operations ever issue concurrent USB I/O.
type OperationsManager struct {
	session *Session
	cache   *MetadataCache
	log     *Logger

	// destDir is the directory completed downloads are written under,
	// owned by the façade that constructs this manager (Device), not
	// chosen by the manager itself.
	destDir string

	lock    sync.Mutex
	queue   []*Operation
	active  map[string]*Operation
	byFile  map[string]*Operation
	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
	running bool
}

// NewOperationsManager creates a manager bound to session and cache.
// cache may be nil. destDir is the directory completed downloads are
// written under; an empty destDir defaults to the current directory.
func NewOperationsManager(session *Session, cache *MetadataCache, log *Logger, destDir string) *OperationsManager {
	if log == nil {
		log = Log
	}
	return &OperationsManager{
		session: session,
		cache:   cache,
		log:     log,
		destDir: destDir,
		active:  make(map[string]*Operation),
		byFile:  make(map[string]*Operation),
		wake:    make(chan struct{}, 1),
	}
}

// Start launches the background worker. Idempotent.
func (m *OperationsManager) Start() {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.stopped = make(chan struct{})

	go m.worker(m.stop, m.stopped)
}

// Stop signals the worker to exit after its current operation and
// waits for it to do so. Idempotent.
func (m *OperationsManager) Stop() {
	m.lock.Lock()
	if !m.running {
		m.lock.Unlock()
		return
	}
	m.running = false
	stop := m.stop
	stopped := m.stopped
	m.lock.Unlock()

	close(stop)
	<-stopped
}

// QueueDownload enqueues a Download operation for filename
func (m *OperationsManager) QueueDownload(filename string, onUpdate func(Operation)) *Operation {
	return m.enqueue(OpDownload, filename, onUpdate)
}

// QueueDelete enqueues a Delete operation for filename
func (m *OperationsManager) QueueDelete(filename string, onUpdate func(Operation)) *Operation {
	return m.enqueue(OpDelete, filename, onUpdate)
}

func (m *OperationsManager) enqueue(t OperationType, filename string, onUpdate func(Operation)) *Operation {
	op := &Operation{
		ID:       uuid.NewString(),
		Type:     t,
		Filename: filename,
		Status:   StatusQueued,
		onUpdate: onUpdate,
	}

	m.lock.Lock()
	m.queue = append(m.queue, op)
	m.active[op.ID] = op
	m.byFile[fileKey(t, filename)] = op
	m.lock.Unlock()

	m.notify(op)

	select {
	case m.wake <- struct{}{}:
	default:
	}

	return op
}

// notify invokes op's onUpdate callback, if any, with a snapshot of
// its current state
func (m *OperationsManager) notify(op *Operation) {
	if op.onUpdate == nil {
		return
	}

	m.lock.Lock()
	snapshot := *op
	m.lock.Unlock()

	op.onUpdate(snapshot)
}

// CancelOperation removes a queued operation, or signals an
// in-progress one to stop at its next chunk boundary. Returns false if
// opID is unknown or already terminal.
func (m *OperationsManager) CancelOperation(opID string) bool {
	m.lock.Lock()

	op, ok := m.active[opID]
	if !ok {
		m.lock.Unlock()
		return false
	}

	var cancelledNow bool
	switch op.Status {
	case StatusQueued:
		for i, q := range m.queue {
			if q.ID == opID {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				break
			}
		}
		op.Status = StatusCancelled
		delete(m.active, opID)
		cancelledNow = true
	case StatusInProgress:
		op.cancelled = true
	default:
		m.lock.Unlock()
		return false
	}

	m.lock.Unlock()

	if cancelledNow {
		m.notify(op)
	}
	return true
}

// GetAllActiveOperations returns a snapshot of every queued or
// in-progress operation
func (m *OperationsManager) GetAllActiveOperations() []Operation {
	m.lock.Lock()
	defer m.lock.Unlock()

	ops := make([]Operation, 0, len(m.active))
	for _, op := range m.active {
		ops = append(ops, *op)
	}
	return ops
}

// IsFileOperationActive reports whether filename has a queued or
// in-progress operation of the given type
func (m *OperationsManager) IsFileOperationActive(filename string, t OperationType) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	op, ok := m.byFile[fileKey(t, filename)]
	if !ok {
		return false
	}
	return op.Status == StatusQueued || op.Status == StatusInProgress
}

func fileKey(t OperationType, filename string) string {
	return t.String() + ":" + filename
}

// worker pops one operation at a time and runs it to completion,
// exiting when stop is closed
func (m *OperationsManager) worker(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	for {
		op := m.dequeue()
		if op == nil {
			select {
			case <-stop:
				return
			case <-m.wake:
				continue
			}
		}

		m.run(op)

		select {
		case <-stop:
			return
		default:
		}
	}
}

func (m *OperationsManager) dequeue() *Operation {
	m.lock.Lock()
	defer m.lock.Unlock()

	if len(m.queue) == 0 {
		return nil
	}

	op := m.queue[0]
	m.queue = m.queue[1:]
	return op
}

// run executes one operation to completion, updating its status as it goes.
func (m *OperationsManager) run(op *Operation) {
	m.setStatus(op, StatusInProgress, nil)

	switch op.Type {
	case OpDownload:
		m.runDownload(op)
	case OpDelete:
		m.runDelete(op)
	}
}

// sanitizeFilename maps characters that are awkward or illegal in a
// local path component to safe substitutes, so a device filename can
// be used directly as a local file name.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		":", "-",
		"\\", "_",
		"/", "_",
		" ", "_",
	)
	return replacer.Replace(name)
}

// checksumFile returns the sha256 hex digest of the file at path, or
// "" if it could not be read.
func checksumFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

// runDownload writes filename's body to destDir/<sanitized name>.tmp as
// it streams in, then atomically renames it into place on success. On
// cancellation or failure the partial .tmp file is removed before the
// terminal status notification fires.
func (m *OperationsManager) runDownload(op *Operation) {
	var expected uint32
	if m.cache != nil {
		if entry := m.cache.Get(op.Filename); entry != nil {
			expected = entry.FileLength
		}
	}

	destDir := m.destDir
	if destDir == "" {
		destDir = "."
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		m.setStatus(op, StatusFailed, NewError(ErrIO, err, "download: create %s", destDir))
		return
	}

	finalPath := filepath.Join(destDir, sanitizeFilename(op.Filename))
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		m.setStatus(op, StatusFailed, NewError(ErrIO, err, "download: create %s", tmpPath))
		return
	}

	written, err := m.session.DownloadFile(op.Filename, expected, f, func() bool {
		return m.isCancelled(op.ID)
	}, func(received, total uint32) {
		m.lock.Lock()
		op.BytesDone = received
		op.BytesTotal = total
		m.lock.Unlock()
		m.notify(op)
	})

	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if Is(err, ErrOperationCancelled) {
		os.Remove(tmpPath)
		m.setStatus(op, StatusCancelled, nil)
		return
	}
	if err != nil {
		os.Remove(tmpPath)
		m.setStatus(op, StatusFailed, err)
		return
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		m.setStatus(op, StatusFailed, NewError(ErrIO, err, "download: rename %s", finalPath))
		return
	}

	m.lock.Lock()
	op.BytesDone = written
	op.LocalPath = finalPath
	m.lock.Unlock()

	if m.cache != nil {
		m.cache.SetLocalPath(op.Filename, finalPath, checksumFile(finalPath))
	}
	m.setStatus(op, StatusCompleted, nil)
}

// runDelete issues delete_file for op. A device reply that the file
// does not exist ends the operation as StatusFailed with an Err of kind
// ErrNotExists, not as StatusCompleted, and leaves the cache untouched.
func (m *OperationsManager) runDelete(op *Operation) {
	if m.isCancelled(op.ID) {
		m.setStatus(op, StatusCancelled, nil)
		return
	}

	err := m.session.DeleteFile(op.Filename)
	if err != nil {
		m.setStatus(op, StatusFailed, err)
		return
	}

	if m.cache != nil {
		m.cache.Delete(op.Filename)
	}

	m.setStatus(op, StatusCompleted, nil)
}

func (m *OperationsManager) isCancelled(opID string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	op, ok := m.active[opID]
	return ok && op.cancelled
}

func (m *OperationsManager) setStatus(op *Operation, status OperationStatus, err error) {
	m.lock.Lock()
	op.Status = status
	op.Err = err
	if status == StatusCompleted || status == StatusCancelled || status == StatusFailed {
		delete(m.active, op.ID)
	}
	m.lock.Unlock()

	m.notify(op)
}
