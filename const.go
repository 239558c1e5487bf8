/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * Protocol and device constants
 */

package hidock

import "time"

// Jensen wire constants
const (
	// SyncByte0, SyncByte1 are the two leading bytes of every frame
	SyncByte0 = 0x12
	SyncByte1 = 0x34

	// FrameHeaderSize is the size, in bytes, of a parsed frame header
	FrameHeaderSize = 12
)

// Command IDs
const (
	CmdDeviceInfo       = 1
	CmdDeviceTimeGet    = 2
	CmdDeviceTimeSet    = 3
	CmdFileList         = 4
	CmdFileTransfer     = 5
	CmdFileCount        = 6
	CmdDeleteFile       = 7
	CmdSettingsGet      = 11
	CmdSettingsSet      = 12
	CmdCardInfo         = 16
	CmdFormatCard       = 17
	CmdCurrentRecording = 18
)

// USB identifiers
const (
	VendorID = 0x10D6

	ProductH1  = 0xAF0C
	ProductH1E = 0xAF0D
	ProductP1  = 0xAF0E

	// ProductH1EAlt is an alternate PID observed in the field for H1E
	ProductH1EAlt = 0xB00D

	EndpointOut = 0x01
	EndpointIn  = 0x82

	DefaultInterface = 0
)

// Timeouts
const (
	// DefaultCommandTimeout bounds a single-response command
	DefaultCommandTimeout = 5 * time.Second

	// HealthCheckTimeout bounds a health-check round trip
	HealthCheckTimeout = 2 * time.Second

	// HealthCheckInterval is the default minimum spacing between health
	// checks (Conf.HealthCheckPeriod)
	HealthCheckInterval = 30 * time.Second

	// UsbReadTimeout bounds a single low-level USB read
	UsbReadTimeout = 200 * time.Millisecond

	// FileListFrameTimeout bounds waiting for the next file-list frame
	FileListFrameTimeout = 2 * time.Second

	// FileListMaxConsecutiveTimeouts stops the file-list loop after
	// this many back-to-back frame timeouts
	FileListMaxConsecutiveTimeouts = 5

	// FileBodyReadTimeout is the rolling per-read timeout during a
	// file-body stream
	FileBodyReadTimeout = 15 * time.Second

	// FileBodyOverallTimeout bounds a whole file-body transfer
	FileBodyOverallTimeout = 180 * time.Second

	// ConnectRetryCount is the default number of connect() attempts
	ConnectRetryCount = 3

	// ConnectRetryDelay is the fixed delay between connect() attempts
	ConnectRetryDelay = 1 * time.Second
)

// Model is a closed tagged variant identifying a HiDock hardware
// family. Replaces free-form, pattern-matched device identification
// with a fixed enum plus lookup table.
type Model int

const (
	ModelUnknown Model = iota
	ModelH1
	ModelH1E
	ModelP1
)

// String renders a human-readable model name
func (m Model) String() string {
	switch m {
	case ModelH1:
		return "H1"
	case ModelH1E:
		return "H1E"
	case ModelP1:
		return "P1"
	default:
		return "Unknown"
	}
}

// ModelFromProductID maps a USB product ID to a Model
func ModelFromProductID(pid int) Model {
	switch pid {
	case ProductH1:
		return ModelH1
	case ProductH1E, ProductH1EAlt:
		return ModelH1E
	case ProductP1:
		return ModelP1
	default:
		return ModelUnknown
	}
}

// Capabilities is a fixed, per-model boolean predicate set
type Capabilities struct {
	ListFiles         bool
	Download          bool
	Delete            bool
	TimeSync          bool
	Format            bool
	Settings          bool
	Health            bool
	RealTimeRecording bool
	AudioPlayback     bool
}

// capabilitiesByModel is a constant lookup table; never mutated
var capabilitiesByModel = map[Model]Capabilities{
	ModelH1: {
		ListFiles: true, Download: true, Delete: true, TimeSync: true,
		Format: true,
	},
	ModelH1E: {
		ListFiles: true, Download: true, Delete: true, TimeSync: true,
		Format: true, Settings: true, Health: true,
	},
	ModelP1: {
		ListFiles: true, Download: true, Delete: true, TimeSync: true,
		Format: true, Settings: true, Health: true,
		RealTimeRecording: true, AudioPlayback: true,
	},
	ModelUnknown: {
		ListFiles: true, Download: true, Delete: true, TimeSync: true,
	},
}

// CapabilitiesOf returns the fixed capability set for a model
func CapabilitiesOf(m Model) Capabilities {
	return capabilitiesByModel[m]
}
