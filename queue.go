package usbdevice

import "context"

// requestQueueShim is C5: intercepts client-submitted async transfers to
// insert the Completion Pump's trampoline callback, per spec.md §4.5. All
// client-asynchronous transfers (bulk, interrupt) go through this shim;
// control transfers bypass it entirely (see control.go).
type requestQueueShim struct {
	hci      HCI
	deviceID uint64
	pump     *completionPump
}

func newRequestQueueShim(hci HCI, deviceID uint64, pump *completionPump) *requestQueueShim {
	return &requestQueueShim{hci: hci, deviceID: deviceID, pump: pump}
}

// queue stamps req.DeviceID, saves the caller's completion callback and
// cookie into dedicated fields, substitutes the device's own trampoline
// callback, and forwards the request to HCI.
func (q *requestQueueShim) queue(ctx context.Context, req *Request) error {
	req.DeviceID = q.deviceID
	req.savedCallback = req.Callback
	req.savedCookie = req.Cookie
	req.Callback = q.pump.trampoline
	req.Cookie = nil

	if err := q.hci.Submit(ctx, req); err != nil {
		return newError("queue_request", KindIO, err)
	}
	return nil
}
