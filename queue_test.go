package usbdevice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kevmo314/usb-device-core/internal/fakehci"
)

func TestRequestQueueShim_StampsAndTrampolines(t *testing.T) {
	hci := fakehci.New()
	pump := newCompletionPump()
	pump.start(context.Background())
	defer pump.stopAndWait()

	const deviceID = 42
	shim := newRequestQueueShim(hci, deviceID, pump)

	done := make(chan *Request, 1)
	req := &Request{Endpoint: 1, Buffer: make([]byte, 4), Callback: func(r *Request) { done <- r }, Cookie: "mine"}

	require.NoError(t, shim.queue(context.Background(), req))
	require.Equal(t, uint64(deviceID), req.DeviceID)

	select {
	case got := <-done:
		require.Equal(t, "mine", got.Cookie, "client cookie restored before client invocation")
	case <-time.After(time.Second):
		t.Fatal("client completion never invoked")
	}
}
