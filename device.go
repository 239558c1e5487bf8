/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * Device façade: brings transport, session, cache, and operations
 * together into the driver's public surface
 */

package hidock

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/gousb"
)

// DeviceID identifies a discovered or connected device by its USB
// vendor:product pair, formatted as "vvvv:pppp" in hex
type DeviceID string

// NewDeviceID formats a DeviceID from a vendor/product pair
func NewDeviceID(vendorID, productID int) DeviceID {
	return DeviceID(fmt.Sprintf("%04x:%04x", vendorID, productID))
}

// Parse splits a DeviceID back into its vendor and product IDs
func (id DeviceID) Parse() (vendorID, productID int, err error) {
	parts := strings.SplitN(string(id), ":", 2)
	if len(parts) != 2 {
		return 0, 0, NewError(ErrNotFound, nil, "device id %q: expected vid:pid", id)
	}

	v, err1 := strconv.ParseInt(parts[0], 16, 32)
	p, err2 := strconv.ParseInt(parts[1], 16, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, NewError(ErrNotFound, nil, "device id %q: malformed", id)
	}

	return int(v), int(p), nil
}

// DiscoveredDevice describes one device found on the bus, before a
// session is established with it
type DiscoveredDevice struct {
	ID        DeviceID
	Name      string
	Model     Model
	VendorID  int
	ProductID int
	Connected bool
}

// Discover enumerates USB devices matching VendorID
func Discover(ctx *gousb.Context) ([]DiscoveredDevice, error) {
	descs, err := FindDevices(ctx, VendorID)
	if err != nil {
		return nil, err
	}

	devices := make([]DiscoveredDevice, 0, len(descs))
	for _, d := range descs {
		model := ModelFromProductID(d.ProductID)
		devices = append(devices, DiscoveredDevice{
			ID:        NewDeviceID(d.VendorID, d.ProductID),
			Name:      "HiDock " + model.String(),
			Model:     model,
			VendorID:  d.VendorID,
			ProductID: d.ProductID,
		})
	}

	return devices, nil
}

// Device is the driver's public façade over one HiDock recorder: a
// session, its metadata cache, and the operations manager that
// serializes downloads and deletes through it.
type Device struct {
	ctx *gousb.Context
	log *Logger

	session *Session
	cache   *MetadataCache
	ops     *OperationsManager

	downloadDir string

	info  DeviceInfo
	model Model
}

// NewDevice creates a façade bound to ctx. cache may be nil, in which
// case metadata reconciliation is skipped. downloadDir is the
// directory completed downloads are written under; an empty
// downloadDir defaults to Conf.DownloadDir. The façade owns this
// setting and hands it to the operations manager, which runs queued
// downloads and deletes against the session; the façade's other
// methods call the session directly.
func NewDevice(ctx *gousb.Context, log *Logger, cache *MetadataCache, downloadDir string) *Device {
	if log == nil {
		log = Log
	}
	if downloadDir == "" {
		downloadDir = Conf.DownloadDir
	}

	session := NewSession(log)
	return &Device{
		ctx:         ctx,
		log:         log,
		session:     session,
		cache:       cache,
		downloadDir: downloadDir,
		ops:         NewOperationsManager(session, cache, log, downloadDir),
	}
}

// Connect opens id (or the first discovered device if id is empty),
// then populates this façade's model/capability/info state.
func (d *Device) Connect(id DeviceID) (DeviceInfo, error) {
	var vendorID, productID int

	if id != "" {
		v, p, err := id.Parse()
		if err != nil {
			return DeviceInfo{}, err
		}
		vendorID, productID = v, p
	} else {
		devices, err := Discover(d.ctx)
		if err != nil {
			return DeviceInfo{}, err
		}
		if len(devices) == 0 {
			return DeviceInfo{}, NewError(ErrNotFound, nil, "device: no HiDock device found")
		}
		vendorID, productID = devices[0].VendorID, devices[0].ProductID
	}

	if err := d.session.Connect(vendorID, productID, DefaultInterface, d.ctx, Conf.ConnectRetryCount); err != nil {
		return DeviceInfo{}, err
	}

	info, err := d.session.DeviceInfo()
	if err != nil {
		d.session.Disconnect()
		return DeviceInfo{}, err
	}

	d.info = info
	d.model = ModelFromProductID(productID)
	d.ops.Start()

	return info, nil
}

// Disconnect stops the operations manager and releases the transport
func (d *Device) Disconnect() {
	d.ops.Stop()
	d.session.Disconnect()
}

// GetDeviceInfo returns the cached device_info result from Connect
func (d *Device) GetDeviceInfo() DeviceInfo {
	return d.info
}

// GetCapabilities returns the fixed capability set for this device's model
func (d *Device) GetCapabilities() Capabilities {
	return CapabilitiesOf(d.model)
}

// DownloadDir returns the directory completed downloads are written under
func (d *Device) DownloadDir() string {
	return d.downloadDir
}

// GetStorageInfo issues card_info
func (d *Device) GetStorageInfo() (CardInfo, error) {
	return d.session.CardInfo()
}

// GetRecordings returns the driver's current view of the device's
// recordings, refreshing from the device per the reconciliation
// policy in RefreshRecordings.
func (d *Device) GetRecordings(force bool) ([]FileRecord, error) {
	return d.RefreshRecordings(force)
}

// RefreshRecordings lists files from the device and reconciles them
// into the metadata cache. When force is true, the device is always
// queried and every cached entry the fresh list lacks is dropped before
// reconciling; otherwise a populated cache is returned without a device
// round trip.
func (d *Device) RefreshRecordings(force bool) ([]FileRecord, error) {
	if d.cache == nil {
		return d.session.ListFiles()
	}

	if !force {
		if cached := d.cache.GetAllMetadata(); len(cached) > 0 {
			return cacheEntriesToRecords(cached), nil
		}
	}

	fresh, err := d.session.ListFiles()
	if err != nil {
		return nil, err
	}

	if force {
		freshNames := make(map[string]bool, len(fresh))
		for _, r := range fresh {
			freshNames[r.Filename] = true
		}
		for _, e := range d.cache.GetAllMetadata() {
			if !freshNames[e.Filename] {
				d.cache.Delete(e.Filename)
			}
		}
	}

	d.cache.Reconcile(fresh)
	return fresh, nil
}

// GetCurrentRecordingFilename issues current_recording
func (d *Device) GetCurrentRecordingFilename() (string, error) {
	return d.session.CurrentRecording()
}

// DownloadRecording queues a download operation for filename and
// returns its Operation handle
func (d *Device) DownloadRecording(filename string, onUpdate func(Operation)) *Operation {
	return d.ops.QueueDownload(filename, onUpdate)
}

// DeleteRecording queues a delete operation for filename and returns
// its Operation handle
func (d *Device) DeleteRecording(filename string, onUpdate func(Operation)) *Operation {
	return d.ops.QueueDelete(filename, onUpdate)
}

// FormatStorage issues format_card with the device's required
// confirmation code
func (d *Device) FormatStorage(confirmCode byte) error {
	return d.session.FormatCard(confirmCode)
}

// SyncTime sets the device clock. A zero target means "now".
func (d *Device) SyncTime(target time.Time) error {
	if target.IsZero() {
		target = time.Now()
	}

	return d.session.DeviceTimeSet(DeviceTime{
		Year: target.Year(), Month: int(target.Month()), Day: target.Day(),
		Hour: target.Hour(), Minute: target.Minute(), Second: target.Second(),
		Known: true,
	})
}

// GetConnectionStats returns the session's connection stats snapshot
func (d *Device) GetConnectionStats() ConnectionStats {
	return d.session.GetConnectionStats()
}

// GetDeviceHealth reports whether the device currently answers a
// lightweight probe, without disturbing the session's health-check
// timer bookkeeping.
func (d *Device) GetDeviceHealth() error {
	_, err := d.session.sendAndReceive(CmdDeviceInfo, nil, HealthCheckTimeout)
	return err
}

// TestConnection reports whether the façade currently holds a live,
// responsive session
func (d *Device) TestConnection() bool {
	if !d.session.IsConnected() {
		return false
	}
	return d.GetDeviceHealth() == nil
}

func cacheEntriesToRecords(entries []CacheEntry) []FileRecord {
	recs := make([]FileRecord, 0, len(entries))
	for _, e := range entries {
		recs = append(recs, FileRecord{
			Filename:   e.Filename,
			FileLength: e.FileLength,
			Duration:   e.Duration,
			Timestamp:  e.Timestamp,
		})
	}
	return recs
}
