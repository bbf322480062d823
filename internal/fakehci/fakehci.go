// Package fakehci is a scriptable in-memory double of the usbdevice.HCI
// collaborator, grounded on go-ublk's NewStubRunner/stubLoop pattern (a
// stub execution path selected in place of a real fd/ring) and used by
// this module's own tests in place of the teacher's "skip without
// hardware" test posture, so §8's testable properties are exercisable
// without real USB hardware.
package fakehci

import (
	"context"
	"fmt"
	"sync"

	usbdevice "github.com/kevmo314/usb-device-core"
)

type descKey struct {
	deviceID uint64
	descType uint8
	index    uint8
	langID   uint16
}

type epKey struct {
	deviceID uint64
	endpoint uint8
}

// HCI is a programmable usbdevice.HCI: canned GET_DESCRIPTOR responses,
// control-transfer drop simulation (for exercising the control timeout +
// drain path), and call counters for CancelAll/ResetEndpoint.
type HCI struct {
	mu sync.Mutex

	descriptors map[descKey][]byte
	dropControl map[uint64]bool

	pending     map[epKey][]*usbdevice.Request
	cancelCalls map[epKey]int
	resetCalls  map[epKey]int

	maxTransferSize int
	frame           uint64
}

// New returns an HCI double with no descriptors registered.
func New() *HCI {
	return &HCI{
		descriptors:     make(map[descKey][]byte),
		dropControl:     make(map[uint64]bool),
		pending:         make(map[epKey][]*usbdevice.Request),
		cancelCalls:     make(map[epKey]int),
		resetCalls:      make(map[epKey]int),
		maxTransferSize: 512,
	}
}

// SetDescriptor registers the raw bytes returned for a GET_DESCRIPTOR
// request matching (descType, index, langID) on deviceID. langID is 0 for
// device/configuration descriptors.
func (h *HCI) SetDescriptor(deviceID uint64, descType, index uint8, langID uint16, raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.descriptors[descKey{deviceID, descType, index, langID}] = raw
}

// SetDropControl, when drop is true, causes every subsequent control (or
// bulk/interrupt) submission for deviceID to be held pending rather than
// completed immediately, simulating a host controller that silently drops
// a transfer (spec.md §8 scenario 5). CancelAll forces completion of
// whatever is pending with a cancellation status.
func (h *HCI) SetDropControl(deviceID uint64, drop bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropControl[deviceID] = drop
}

// CancelCount reports how many CancelAll calls this double has observed
// for (deviceID, endpoint).
func (h *HCI) CancelCount(deviceID uint64, endpoint uint8) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelCalls[epKey{deviceID, endpoint}]
}

// ResetCount reports how many ResetEndpoint calls this double has observed
// for (deviceID, endpoint).
func (h *HCI) ResetCount(deviceID uint64, endpoint uint8) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resetCalls[epKey{deviceID, endpoint}]
}

// Submit implements usbdevice.HCI.
func (h *HCI) Submit(ctx context.Context, req *usbdevice.Request) error {
	h.mu.Lock()
	drop := h.dropControl[req.DeviceID]
	h.mu.Unlock()

	if drop {
		key := epKey{req.DeviceID, req.Endpoint}
		h.mu.Lock()
		h.pending[key] = append(h.pending[key], req)
		h.mu.Unlock()
		return nil
	}

	if req.Endpoint == 0 {
		h.completeControl(req)
	} else {
		req.Actual = len(req.Buffer)
	}
	if req.Callback != nil {
		req.Callback(req)
	}
	return nil
}

func (h *HCI) completeControl(req *usbdevice.Request) {
	switch req.Setup.Request {
	case usbdevice.RequestGetDescriptor:
		descType := uint8(req.Setup.Value >> 8)
		index := uint8(req.Setup.Value)
		h.mu.Lock()
		raw, ok := h.descriptors[descKey{req.DeviceID, descType, index, req.Setup.Index}]
		h.mu.Unlock()
		if !ok {
			req.Status = fmt.Errorf("fakehci: no descriptor registered for type=%#x index=%d lang=%d", descType, index, req.Setup.Index)
			return
		}
		req.Actual = copy(req.Buffer, raw)
	default:
		req.Actual = 0
	}
}

// CancelAll implements usbdevice.HCI: it forces completion of every
// request this double is holding pending for (deviceID, endpoint), each
// with a cancellation status, and counts the call.
func (h *HCI) CancelAll(ctx context.Context, deviceID uint64, endpoint uint8) error {
	key := epKey{deviceID, endpoint}
	h.mu.Lock()
	h.cancelCalls[key]++
	pending := h.pending[key]
	h.pending[key] = nil
	h.mu.Unlock()

	for _, req := range pending {
		req.Actual = 0
		req.Status = fmt.Errorf("fakehci: cancelled")
		if req.Callback != nil {
			req.Callback(req)
		}
	}
	return nil
}

// ResetEndpoint implements usbdevice.HCI.
func (h *HCI) ResetEndpoint(ctx context.Context, deviceID uint64, endpoint uint8) error {
	h.mu.Lock()
	h.resetCalls[epKey{deviceID, endpoint}]++
	h.mu.Unlock()
	return nil
}

// GetMaxTransferSize implements usbdevice.HCI.
func (h *HCI) GetMaxTransferSize(ctx context.Context, deviceID uint64, endpoint uint8) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxTransferSize, nil
}

// GetCurrentFrame implements usbdevice.HCI, returning a monotonically
// increasing counter.
func (h *HCI) GetCurrentFrame(ctx context.Context) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frame++
	return h.frame, nil
}
