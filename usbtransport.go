/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * USB transport: open by VID/PID, configure, claim interface, locate
 * bulk endpoints, read/write with per-call timeouts, clear stalls.
 */

package hidock

import (
	"context"
	"runtime"
	"time"

	"github.com/google/gousb"
)

// UsbTransport owns the claimed USB interface and its bulk endpoints
// for one device. Exactly one owner; the Jensen session serializes all
// access to it.
type UsbTransport struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	iface *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	vendorID  int
	productID int
	ifaceNum  int

	wMaxPacketSize int
}

// UsbDeviceDesc describes a discoverable device, before it is opened
type UsbDeviceDesc struct {
	Bus, Address        int
	VendorID, ProductID int
}

// FindDevices enumerates USB devices matching VendorID, returning one
// descriptor per match.
func FindDevices(ctx *gousb.Context, vendorID int) ([]UsbDeviceDesc, error) {
	var descs []UsbDeviceDesc

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return int(desc.Vendor) == vendorID
	})
	for _, d := range devs {
		descs = append(descs, UsbDeviceDesc{
			Bus:       d.Desc.Bus,
			Address:   d.Desc.Address,
			VendorID:  int(d.Desc.Vendor),
			ProductID: int(d.Desc.Product),
		})
		d.Close()
	}

	if err != nil {
		return descs, NewError(ErrNotFound, err, "usb: enumeration failed")
	}
	return descs, nil
}

// OpenUsbTransport opens device vendorID:productID, claims ifaceNum,
// and locates the bulk IN/OUT endpoints. Any partial acquisition is
// released before returning an error, so connect fails atomically.
func OpenUsbTransport(ctx *gousb.Context, vendorID, productID, ifaceNum int) (_ *UsbTransport, err error) {
	t := &UsbTransport{
		ctx:       ctx,
		vendorID:  vendorID,
		productID: productID,
		ifaceNum:  ifaceNum,
	}

	defer func() {
		if err != nil {
			t.release()
		}
	}()

	t.dev, err = ctx.OpenDeviceWithVIDPID(gousb.ID(vendorID), gousb.ID(productID))
	if err != nil {
		return nil, classifyOpenError(err)
	}
	if t.dev == nil {
		return nil, NewError(ErrNotFound, nil, "usb: device %04x:%04x not found", vendorID, productID)
	}

	// Kernel driver detach is handled internally by gousb on Linux via
	// SetAutoDetach; on platforms without kernel drivers this is a
	// no-op. Non-Windows auto-detach is requested explicitly here so
	// claim_interface below does not race a still-attached driver.
	if runtime.GOOS != "windows" {
		t.dev.SetAutoDetach(true)
	}

	t.cfg, err = t.dev.Config(1)
	if err != nil {
		return nil, classifyConfigError(err)
	}

	t.iface, err = t.cfg.Interface(ifaceNum, 0)
	if err != nil {
		return nil, classifyClaimError(err)
	}

	t.epOut, err = t.iface.OutEndpoint(EndpointOut)
	if err != nil {
		return nil, NewError(ErrProtocol, err, "usb: OUT endpoint 0x%02x not found", EndpointOut)
	}

	t.epIn, err = t.iface.InEndpoint(EndpointIn)
	if err != nil {
		return nil, NewError(ErrProtocol, err, "usb: IN endpoint 0x%02x not found", EndpointIn)
	}

	t.wMaxPacketSize = t.epIn.Desc.MaxPacketSize

	return t, nil
}

// release tears down whatever has been acquired so far, in reverse
// order, ignoring errors (teardown is best-effort).
func (t *UsbTransport) release() {
	if t.iface != nil {
		t.iface.Close()
		t.iface = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
}

// Close releases the interface and closes the device. Idempotent.
func (t *UsbTransport) Close() {
	t.release()
}

// WMaxPacketSize returns the IN endpoint's max packet size, used by the
// streaming receiver to size its reads.
func (t *UsbTransport) WMaxPacketSize() int {
	return t.wMaxPacketSize
}

// Write sends b on the bulk OUT endpoint, bounded by timeout.
func (t *UsbTransport) Write(b []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := t.epOut.WriteContext(ctx, b)
	if err != nil {
		return n, t.classifyTransferError(err, EndpointOut)
	}
	return n, nil
}

// Read fills buf from the bulk IN endpoint, bounded by timeout. This
// implements the FrameReader interface consumed by Receiver.
func (t *UsbTransport) Read(buf []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := t.epIn.ReadContext(ctx, buf)
	if err != nil {
		return n, t.classifyTransferError(err, EndpointIn)
	}
	return n, nil
}

// classifyTransferError maps a gousb transfer error to the driver's
// error taxonomy. A stall clears the endpoint's halt condition before
// the error is returned to the caller.
func (t *UsbTransport) classifyTransferError(err error, epAddr int) error {
	if err == nil {
		return nil
	}

	if err == context.DeadlineExceeded {
		return NewError(ErrUsbTimeout, err, "usb: transfer timed out")
	}

	if isStallError(err) {
		_ = t.clearHalt(epAddr)
		return NewError(ErrUsbPipeError, err, "usb: endpoint 0x%02x stalled", byte(epAddr))
	}

	return NewError(ErrConnectionLost, err, "usb: transfer failed")
}

// clearHalt clears a stall condition on the given endpoint address.
// gousb does not expose libusb_clear_halt directly on Endpoint; the
// portable way to recover is to close and reopen the interface's
// alternate setting, which both libusb and the OS USB stack treat as
// clearing any halted endpoints on that interface.
func (t *UsbTransport) clearHalt(_ int) error {
	if t.iface == nil || t.cfg == nil {
		return nil
	}

	altNum := t.iface.Setting.Alternate
	t.iface.Close()

	iface, err := t.cfg.Interface(t.ifaceNum, altNum)
	if err != nil {
		return err
	}
	t.iface = iface

	epOut, err := t.iface.OutEndpoint(EndpointOut)
	if err != nil {
		return err
	}
	epIn, err := t.iface.InEndpoint(EndpointIn)
	if err != nil {
		return err
	}

	t.epOut, t.epIn = epOut, epIn
	return nil
}

// isStallError reports whether err indicates an endpoint stall. gousb
// surfaces this as a transfer error whose string representation names
// the pipe condition; we match on that since gousb does not export a
// typed sentinel for it across versions.
func isStallError(err error) bool {
	return containsFold(err.Error(), "stall") || containsFold(err.Error(), "pipe")
}

func containsFold(s, substr string) bool {
	ls, lsub := len(s), len(substr)
	if lsub == 0 || lsub > ls {
		return lsub == 0
	}
	for i := 0; i+lsub <= ls; i++ {
		if equalFold(s[i:i+lsub], substr) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// classifyOpenError distinguishes AccessDenied/InUseByAnother from a
// generic open failure.
func classifyOpenError(err error) error {
	if containsFold(err.Error(), "busy") {
		return NewError(ErrInUseByAnother, err, "usb: device busy")
	}
	if containsFold(err.Error(), "denied") || containsFold(err.Error(), "permission") {
		return NewError(ErrAccessDenied, err, "usb: access denied")
	}
	return NewError(ErrNotFound, err, "usb: open failed")
}

// classifyConfigError maps SetConfiguration failures; "resource busy"
// and "access denied" are distinct, non-retryable outcomes.
func classifyConfigError(err error) error {
	if containsFold(err.Error(), "busy") {
		return NewError(ErrInUseByAnother, err, "usb: set_configuration busy")
	}
	if containsFold(err.Error(), "denied") || containsFold(err.Error(), "permission") {
		return NewError(ErrAccessDenied, err, "usb: set_configuration denied")
	}
	return NewError(ErrConnectionLost, err, "usb: set_configuration failed")
}

// classifyClaimError maps claim_interface failures; "busy" is a
// non-retryable InUseByAnother.
func classifyClaimError(err error) error {
	if containsFold(err.Error(), "busy") {
		return NewError(ErrInUseByAnother, err, "usb: claim_interface busy")
	}
	return NewError(ErrConnectionLost, err, "usb: claim_interface failed")
}
