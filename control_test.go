package usbdevice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kevmo314/usb-device-core/internal/fakehci"
)

func TestControlBridge_ZeroLengthFreeListRecycled(t *testing.T) {
	hci := fakehci.New()
	const deviceID = 1
	hci.SetDescriptor(deviceID, DescriptorTypeDevice, 0, 0, fakehci.DeviceDescriptor(1, 2, 1))
	bridge := newControlBridge(hci, deviceID)

	req1 := bridge.acquire(0)
	bridge.release(req1, 0)
	req2 := bridge.acquire(0)

	require.Same(t, req1, req2, "zero-length requests come back from the free list")
}

func TestControlBridge_NonZeroLengthNotRecycled(t *testing.T) {
	hci := fakehci.New()
	bridge := newControlBridge(hci, 1)

	req1 := bridge.acquire(8)
	bridge.release(req1, 8)
	req2 := bridge.acquire(8)

	require.NotSame(t, req1, req2)
}

func TestControlBridge_ReadsDeviceDescriptor(t *testing.T) {
	hci := fakehci.New()
	const deviceID = 5
	raw := fakehci.DeviceDescriptor(0xCAFE, 0xBEEF, 1)
	hci.SetDescriptor(deviceID, DescriptorTypeDevice, 0, 0, raw)
	bridge := newControlBridge(hci, deviceID)

	buf := make([]byte, deviceDescriptorLength)
	n, err := bridge.control(context.Background(), directionIn, RequestGetDescriptor, uint16(DescriptorTypeDevice)<<8, 0, buf, len(buf), time.Second)
	require.NoError(t, err)
	require.Equal(t, deviceDescriptorLength, n)
	require.Equal(t, raw, buf)
}
