package usbdevice

import (
	"context"
	"sync"
	"time"
)

const controlEndpoint = 0

// directionIn is the bmRequestType direction bit: set means device-to-host.
const directionIn = 0x80

// controlBridge is C4: synchronous control transfers on endpoint 0, backed
// by a recyclable free list for zero-length requests, with timeout-driven
// cancel-and-drain semantics (spec.md §4.4).
type controlBridge struct {
	hci      HCI
	deviceID uint64

	mu       sync.Mutex
	freeList []*Request
}

func newControlBridge(hci HCI, deviceID uint64) *controlBridge {
	return &controlBridge{hci: hci, deviceID: deviceID}
}

func (b *controlBridge) acquire(length int) *Request {
	if length != 0 {
		return &Request{DeviceID: b.deviceID, Endpoint: controlEndpoint, Buffer: make([]byte, length)}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.freeList)
	if n == 0 {
		return &Request{DeviceID: b.deviceID, Endpoint: controlEndpoint}
	}
	req := b.freeList[n-1]
	b.freeList = b.freeList[:n-1]
	*req = Request{DeviceID: b.deviceID, Endpoint: controlEndpoint}
	return req
}

// release returns a zero-length request to the free list; non-zero-length
// requests are simply dropped, per spec.md §4.4's recycling policy.
func (b *controlBridge) release(req *Request, length int) {
	if length != 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.freeList = append(b.freeList, req)
}

// control implements `control(request_type, request, value, index, data,
// length, timeout) → actual_length or error` per spec.md §4.4. Submission
// bypasses the Request Queue Shim and calls HCI directly: the control path
// is already serialized by this function's own wait, and skipping the
// Completion Pump avoids a reentrancy deadlock when callers are internal
// enumeration code holding setup-critical locks.
func (b *controlBridge) control(ctx context.Context, requestType, request uint8, value, index uint16, data []byte, length int, timeout time.Duration) (int, error) {
	req := b.acquire(length)
	defer b.release(req, length)

	req.Setup = SetupPacket{
		RequestType: requestType,
		Request:     request,
		Value:       value,
		Index:       index,
		Length:      uint16(length),
	}
	if requestType&directionIn == 0 && length > 0 {
		// OUT transfer: the caller's buffer is copied in.
		copy(req.Buffer, data)
	}

	done := make(chan struct{}, 1)
	req.Callback = func(r *Request) { done <- struct{}{} }

	if err := b.hci.Submit(ctx, req); err != nil {
		return 0, newError("control_transfer", KindIO, err)
	}

	select {
	case <-done:
		return b.finish(req, requestType, data)
	case <-time.After(timeout):
	}

	// Timeout: ask HCI to cancel all endpoint-0 transfers for this device,
	// then wait indefinitely for the forced completion. This drain is
	// mandatory so the request's buffer cannot be touched by HCI after
	// this function returns.
	// Even if CancelAll itself returns an error, we must still drain: HCI
	// is required to eventually complete every submitted request exactly
	// once, cancelled or not.
	_ = b.hci.CancelAll(ctx, b.deviceID, controlEndpoint)
	<-done
	return 0, newError("control_transfer", KindTimedOut, nil)
}

func (b *controlBridge) finish(req *Request, requestType uint8, data []byte) (int, error) {
	if req.Status != nil {
		return 0, newError("control_transfer", KindIO, req.Status)
	}
	if requestType&directionIn != 0 {
		// IN transfer: copy out only on success.
		copy(data, req.Buffer[:req.Actual])
	}
	return req.Actual, nil
}
