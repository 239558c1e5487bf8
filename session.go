/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * Jensen session: connect/disconnect, health checks, serialized
 * send-and-receive and streaming reads over one USB transport
 */

package hidock

import (
	"sync"
	"time"

	"github.com/google/gousb"
)

// sessionState is the connection state machine's current state
type sessionState int

const (
	stateDisconnected sessionState = iota
	stateConnecting
	stateConnected
)

// ConnectionStats is a point-in-time snapshot of a session's error
// counters and connection metadata
type ConnectionStats struct {
	Connected        bool
	VendorID         int
	ProductID        int
	Model            Model
	ConnectedAt      time.Time
	LastHealthCheck  time.Time
	ConnectionLost   uint64
	TimeoutCount     uint64
	PipeErrorCount   uint64
	ProtocolErrors   uint64
	LastError        string
}

// Session serializes all command traffic to one connected device over
// its UsbTransport: health checks, connect/disconnect, and the
// send/receive and streaming primitives the command layer builds on.
type Session struct {
	lock sync.Mutex

	log *Logger

	transport *UsbTransport
	receiver  *Receiver
	codec     FrameCodec

	state     sessionState
	vendorID  int
	productID int
	model     Model

	connectedAt     time.Time
	lastHealthCheck time.Time
	inHealthCheck   bool

	fileListStreaming bool

	connectionLost uint64
	timeoutCount   uint64
	pipeErrorCount uint64
	protocolErrors uint64
	lastError      string
}

// NewSession creates a disconnected session that will log through log
func NewSession(log *Logger) *Session {
	if log == nil {
		log = Log
	}
	return &Session{log: log, state: stateDisconnected}
}

// IsConnected reports whether the session currently holds a live transport
func (s *Session) IsConnected() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state == stateConnected
}

// GetConnectionStats returns a snapshot of the session's counters
func (s *Session) GetConnectionStats() ConnectionStats {
	s.lock.Lock()
	defer s.lock.Unlock()

	return ConnectionStats{
		Connected:       s.state == stateConnected,
		VendorID:        s.vendorID,
		ProductID:       s.productID,
		Model:           s.model,
		ConnectedAt:     s.connectedAt,
		LastHealthCheck: s.lastHealthCheck,
		ConnectionLost:  s.connectionLost,
		TimeoutCount:    s.timeoutCount,
		PipeErrorCount:  s.pipeErrorCount,
		ProtocolErrors:  s.protocolErrors,
		LastError:       s.lastError,
	}
}

// ResetErrorCounts zeroes the session's error counters, leaving
// connection state untouched
func (s *Session) ResetErrorCounts() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.connectionLost = 0
	s.timeoutCount = 0
	s.pipeErrorCount = 0
	s.protocolErrors = 0
	s.lastError = ""
}

// Connect opens the USB transport for vendorID:productID on the given
// interface, retrying up to retryCount times with a fixed delay
// between attempts. AccessDenied, InUseByAnother, and NotFound are
// immediate failures that skip the remaining retries.
func (s *Session) Connect(vendorID, productID, iface int, ctx *gousb.Context, retryCount int) error {
	s.lock.Lock()
	s.state = stateConnecting
	s.lock.Unlock()

	if retryCount <= 0 {
		retryCount = ConnectRetryCount
	}

	var lastErr error
	for attempt := 1; attempt <= retryCount; attempt++ {
		transport, err := OpenUsbTransport(ctx, vendorID, productID, iface)
		if err == nil {
			s.lock.Lock()
			s.transport = transport
			s.receiver = NewReceiver(transport, s.log)
			s.codec = FrameCodec{}
			s.state = stateConnected
			s.vendorID = vendorID
			s.productID = productID
			s.model = ModelFromProductID(productID)
			s.connectedAt = time.Now()
			s.lastHealthCheck = time.Now()
			s.lock.Unlock()
			return nil
		}

		lastErr = err
		s.lock.Lock()
		s.lastError = err.Error()
		s.lock.Unlock()

		if !KindOf(err).Retryable() {
			break
		}
		if attempt < retryCount {
			time.Sleep(ConnectRetryDelay)
		}
	}

	s.lock.Lock()
	s.state = stateDisconnected
	s.lock.Unlock()

	return lastErr
}

// Disconnect releases the transport and resets session state.
// Idempotent.
func (s *Session) Disconnect() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.transport != nil {
		s.transport.Close()
		s.transport = nil
	}
	s.receiver = nil
	s.state = stateDisconnected
	s.fileListStreaming = false
}

// disconnectLocked forces a disconnect from within a locked call site
func (s *Session) disconnectLocked() {
	if s.transport != nil {
		s.transport.Close()
		s.transport = nil
	}
	s.receiver = nil
	s.state = stateDisconnected
	s.fileListStreaming = false
}

// setFileListStreaming marks whether a file-list stream is in flight;
// the command layer's Busy guard reads this.
func (s *Session) setFileListStreaming(v bool) {
	s.lock.Lock()
	s.fileListStreaming = v
	s.lock.Unlock()
}

// FileListStreaming reports whether a file-list stream is in flight
func (s *Session) FileListStreaming() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.fileListStreaming
}

// healthCheck issues a lightweight device_info probe if the health
// check interval (Conf.HealthCheckPeriod seconds) has elapsed.
// inHealthCheck guards against recursion; the probe itself goes through
// the unguarded sendAndReceive.
func (s *Session) healthCheck() error {
	s.lock.Lock()
	if s.inHealthCheck || s.state != stateConnected {
		s.lock.Unlock()
		return nil
	}
	if time.Since(s.lastHealthCheck) <= time.Duration(Conf.HealthCheckPeriod)*time.Second {
		s.lock.Unlock()
		return nil
	}
	s.inHealthCheck = true
	s.lock.Unlock()

	_, err := s.sendAndReceive(CmdDeviceInfo, nil, HealthCheckTimeout)

	s.lock.Lock()
	s.inHealthCheck = false
	if err != nil {
		s.connectionLost++
		s.lastError = err.Error()
		s.lock.Unlock()
		return NewError(ErrConnectionLost, err, "session: health check failed")
	}
	s.lastHealthCheck = time.Now()
	s.lock.Unlock()

	return nil
}

// SendAndReceive writes one frame for commandID and reads the single
// matching response. Runs a health check first unless commandID is
// itself the streaming file-transfer command.
func (s *Session) SendAndReceive(commandID uint16, body []byte, timeout time.Duration) (*Frame, error) {
	if commandID != CmdFileTransfer {
		if err := s.healthCheck(); err != nil {
			return nil, err
		}
	}
	return s.sendAndReceive(commandID, body, timeout)
}

// sendAndReceive is the unguarded implementation shared by
// SendAndReceive and healthCheck's own probe.
func (s *Session) sendAndReceive(commandID uint16, body []byte, timeout time.Duration) (*Frame, error) {
	s.lock.Lock()
	if s.state != stateConnected {
		s.lock.Unlock()
		return nil, NewError(ErrConnectionLost, nil, "session: not connected")
	}
	transport := s.transport
	receiver := s.receiver
	s.lock.Unlock()

	if commandID != CmdFileTransfer {
		receiver.Reset()
	}

	frame := s.codec.Build(commandID, body)
	seq := s.codec.LastSequence()

	if _, err := transport.Write(frame, timeout); err != nil {
		s.recordTransportError(err)
		return nil, err
	}

	resp, err := receiver.Next(false, 0, seq, timeout, transport.WMaxPacketSize())
	if err != nil {
		s.recordTransportError(err)
		return nil, err
	}

	return resp, nil
}

// Stream writes one frame for commandID, then repeatedly reads
// response frames carrying the same commandID and hands each to
// onFrame. Each read is individually bounded by frameTimeout; a
// frame-read timeout is reported to onFrame as timedOut=true rather
// than aborting the stream, so the caller can apply its own
// consecutive-timeout policy. The whole call is bounded by
// overallTimeout, and cancelled (if non-nil) is polled before each
// read so a cooperative cancel takes effect at a chunk boundary.
//
// onFrame returns whether to keep reading and an error that, if
// non-nil, stops the stream and is returned to the caller of Stream.
func (s *Session) Stream(commandID uint16, body []byte, frameTimeout, overallTimeout time.Duration,
	cancelled func() bool, onFrame func(frame *Frame, timedOut bool) (more bool, err error)) error {

	s.lock.Lock()
	if s.state != stateConnected {
		s.lock.Unlock()
		return NewError(ErrConnectionLost, nil, "session: not connected")
	}
	transport := s.transport
	receiver := s.receiver
	s.lock.Unlock()

	receiver.Reset()

	frame := s.codec.Build(commandID, body)
	if _, err := transport.Write(frame, frameTimeout); err != nil {
		s.recordTransportError(err)
		return err
	}

	deadline := time.Now().Add(overallTimeout)

	for {
		if cancelled != nil && cancelled() {
			return NewError(ErrOperationCancelled, nil, "session: stream cancelled")
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return NewError(ErrUsbTimeout, nil, "session: stream overall timeout")
		}

		step := frameTimeout
		if step > remaining {
			step = remaining
		}

		resp, err := receiver.Next(true, commandID, 0, step, transport.WMaxPacketSize())
		if err != nil {
			if Is(err, ErrUsbTimeout) {
				more, cbErr := onFrame(nil, true)
				if cbErr != nil {
					return cbErr
				}
				if !more {
					return nil
				}
				continue
			}
			s.recordTransportError(err)
			return err
		}

		more, cbErr := onFrame(resp, false)
		if cbErr != nil {
			return cbErr
		}
		if !more {
			return nil
		}
	}
}

// recordTransportError updates error counters and, for a fatal
// transport error, forces a disconnect.
func (s *Session) recordTransportError(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.lastError = err.Error()

	switch KindOf(err) {
	case ErrUsbTimeout:
		s.timeoutCount++
	case ErrUsbPipeError:
		s.pipeErrorCount++
	case ErrProtocol:
		s.protocolErrors++
	case ErrConnectionLost:
		s.connectionLost++
		s.disconnectLocked()
	}
}
