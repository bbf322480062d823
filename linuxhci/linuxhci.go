// Package linuxhci is the one concrete HCI binding: a Linux usbfs backend
// for the usbdevice package's HCI collaborator interface, built on raw
// USBDEVFS ioctls the way the teacher's device.go/transfer.go did, but
// through golang.org/x/sys/unix instead of a hand-rolled
// syscall.Syscall(syscall.SYS_IOCTL, ...) call.
package linuxhci

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	usbdevice "github.com/kevmo314/usb-device-core"
)

// ioctl request codes for /dev/bus/usb/BBB/DDD nodes, taken from the
// kernel's usbdevice_fs.h ioctl numbering.
const (
	usbdevfsControl          = 0xc0185500
	usbdevfsBulk             = 0xc0185502
	usbdevfsResetEndpoint    = 0x80045503
	usbdevfsSetConfiguration = 0x80045505
	usbdevfsClaimInterface   = 0x8004550f
	usbdevfsReleaseInterface = 0x80045510
)

// controlTimeoutMillis bounds the blocking USBDEVFS_CONTROL ioctl itself;
// cancellation above this package's goroutine boundary is cooperative (see
// CancelAll) rather than a true in-kernel URB discard, since this backend
// issues control/bulk transfers as blocking ioctls rather than queuing
// USBDEVFS_SUBMITURB/REAPURB pairs.
const controlTimeoutMillis = 10000

// defaultMaxTransferSize is returned by GetMaxTransferSize: usbfs exposes
// no ioctl to query a host controller's actual max packet/transfer size
// per endpoint, so this package reports a conservative bulk-transfer
// ceiling instead.
const defaultMaxTransferSize = 16 * 1024

type usbdevfsCtrlTransfer struct {
	bRequestType uint8
	bRequest     uint8
	wValue       uint16
	wIndex       uint16
	wLength      uint16
	timeout      uint32
	data         uintptr
}

type usbdevfsBulkTransfer struct {
	ep      uint32
	length  uint32
	timeout uint32
	data    uintptr
}

// deviceHandle is one open usbfs device node plus the cancellation
// functions for its currently in-flight requests, keyed by endpoint.
type deviceHandle struct {
	fd int

	mu      sync.Mutex
	cancels map[uint8][]context.CancelFunc
}

// HCI implements usbdevice.HCI against real Linux usbfs device nodes.
type HCI struct {
	mu      sync.Mutex
	devices map[uint64]*deviceHandle
}

// New returns an HCI with no devices registered; call Open for each
// enumerated device before calling usbdevice.AddDevice with that device id.
func New() *HCI {
	return &HCI{devices: make(map[uint64]*deviceHandle)}
}

// Open opens path (e.g. "/dev/bus/usb/001/004") and registers it under
// deviceID for subsequent Submit/CancelAll/... calls.
func (h *HCI) Open(deviceID uint64, path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("linuxhci: open %s: %w", path, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.devices[deviceID] = &deviceHandle{fd: int(f.Fd()), cancels: make(map[uint8][]context.CancelFunc)}
	return nil
}

// Close releases the usbfs node registered for deviceID.
func (h *HCI) Close(deviceID uint64) error {
	h.mu.Lock()
	dh, ok := h.devices[deviceID]
	delete(h.devices, deviceID)
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return unix.Close(dh.fd)
}

func (h *HCI) handle(deviceID uint64) (*deviceHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	dh, ok := h.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("linuxhci: unknown device %d", deviceID)
	}
	return dh, nil
}

// Submit performs the transfer as a blocking ioctl on a dedicated
// goroutine, simulating asynchronous completion the way the teacher's
// async.go does for its AsyncTransferManager: the goroutine is the only
// thing blocked, and req.Callback fires on that goroutine's context, never
// the caller's.
func (h *HCI) Submit(ctx context.Context, req *usbdevice.Request) error {
	dh, err := h.handle(req.DeviceID)
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithCancel(ctx)
	dh.mu.Lock()
	dh.cancels[req.Endpoint] = append(dh.cancels[req.Endpoint], cancel)
	dh.mu.Unlock()

	go func() {
		defer cancel()
		var actual int
		var err error
		if req.Endpoint == 0 {
			actual, err = h.controlTransfer(reqCtx, dh.fd, req)
		} else {
			actual, err = h.bulkTransfer(reqCtx, dh.fd, req)
		}
		req.Actual = actual
		req.Status = err
		if req.Callback != nil {
			req.Callback(req)
		}
	}()
	return nil
}

func (h *HCI) controlTransfer(ctx context.Context, fd int, req *usbdevice.Request) (int, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	xfer := usbdevfsCtrlTransfer{
		bRequestType: req.Setup.RequestType,
		bRequest:     req.Setup.Request,
		wValue:       req.Setup.Value,
		wIndex:       req.Setup.Index,
		wLength:      req.Setup.Length,
		timeout:      controlTimeoutMillis,
	}
	if len(req.Buffer) > 0 {
		xfer.data = uintptr(unsafe.Pointer(&req.Buffer[0]))
	}
	n, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), usbdevfsControl, uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errno
	}
	return int(n), nil
}

func (h *HCI) bulkTransfer(ctx context.Context, fd int, req *usbdevice.Request) (int, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	xfer := usbdevfsBulkTransfer{
		ep:      uint32(req.Endpoint),
		length:  uint32(len(req.Buffer)),
		timeout: controlTimeoutMillis,
	}
	if len(req.Buffer) > 0 {
		xfer.data = uintptr(unsafe.Pointer(&req.Buffer[0]))
	}
	n, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), usbdevfsBulk, uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errno
	}
	return int(n), nil
}

// CancelAll cancels the context backing every in-flight Submit for
// deviceID on endpoint. The blocking ioctl goroutine observes ctx.Err()
// once the syscall returns (this backend does not issue
// USBDEVFS_DISCARDURB since it never queues a USBDEVFS_SUBMITURB in the
// first place); completion is still guaranteed because the syscall itself
// is bounded by controlTimeoutMillis.
func (h *HCI) CancelAll(ctx context.Context, deviceID uint64, endpoint uint8) error {
	dh, err := h.handle(deviceID)
	if err != nil {
		return err
	}
	dh.mu.Lock()
	cancels := dh.cancels[endpoint]
	dh.cancels[endpoint] = nil
	dh.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

// ResetEndpoint issues USBDEVFS_RESETEP for endpoint.
func (h *HCI) ResetEndpoint(ctx context.Context, deviceID uint64, endpoint uint8) error {
	dh, err := h.handle(deviceID)
	if err != nil {
		return err
	}
	ep := uint32(endpoint)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(dh.fd), usbdevfsResetEndpoint, uintptr(unsafe.Pointer(&ep)))
	if errno != 0 {
		return errno
	}
	return nil
}

// GetMaxTransferSize returns a conservative, fixed ceiling: see
// defaultMaxTransferSize's comment for why usbfs cannot answer this
// per-endpoint.
func (h *HCI) GetMaxTransferSize(ctx context.Context, deviceID uint64, endpoint uint8) (int, error) {
	if _, err := h.handle(deviceID); err != nil {
		return 0, err
	}
	return defaultMaxTransferSize, nil
}

// GetCurrentFrame returns the wall-clock time in Unix milliseconds (not a
// monotonic clock) as a stand-in
// for the host controller's real (micro)frame counter: modern Linux usbfs
// exposes no ioctl for this (it was only ever available via the removed
// USBDEVFS_CONNECTINFO/legacy isochronous APIs), so client code that needs
// exact frame numbers for isochronous scheduling is out of this package's
// scope per spec's isochronous-scheduling non-goal.
func (h *HCI) GetCurrentFrame(ctx context.Context) (uint64, error) {
	return uint64(time.Now().UnixMilli()), nil
}
