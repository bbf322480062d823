package usbdevice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kevmo314/usb-device-core/internal/fakehci"
)

func setupFacadeDevice(t *testing.T) (*Device, *fakehci.HCI) {
	t.Helper()
	hci := fakehci.New()
	const deviceID = 100
	hci.SetDescriptor(deviceID, DescriptorTypeDevice, 0, 0, fakehci.DeviceDescriptor(0x1111, 0x2222, 1))
	cfg := fakehci.Config(1, 1, fakehci.InterfaceDescriptor(0, 0, 1))
	hci.SetDescriptor(deviceID, DescriptorTypeConfig, 0, 0, cfg)

	dev, err := AddDevice(context.Background(), hci, &fakeSpawner{}, nil, deviceID, RootHubID, SpeedFull)
	require.NoError(t, err)
	return dev, hci
}

func TestFacade_GetConfigDescSizeAndDesc(t *testing.T) {
	dev, _ := setupFacadeDevice(t)

	size, err := dev.GetConfigDescSize(1)
	require.NoError(t, err)
	require.Equal(t, dev.GetDescriptorsSize(), size)

	buf := make([]byte, size)
	n, err := dev.GetConfigDesc(1, buf)
	require.NoError(t, err)
	require.Equal(t, size, n)

	_, err = dev.GetConfigDescSize(99)
	require.ErrorIs(t, err, ErrInvalidArgs)
}

func TestFacade_GetConfigDescBufferTooSmallNoPartialWrite(t *testing.T) {
	dev, _ := setupFacadeDevice(t)
	buf := make([]byte, 2)
	buf[0], buf[1] = 0xAA, 0xBB

	_, err := dev.GetConfigDesc(1, buf)
	require.ErrorIs(t, err, ErrBufferTooSmall)
	require.Equal(t, []byte{0xAA, 0xBB}, buf, "buffer must be untouched on BufferTooSmall")
}

func TestFacade_GetStringDescriptor(t *testing.T) {
	dev, hci := setupFacadeDevice(t)
	const deviceID = 100

	hci.SetDescriptor(deviceID, DescriptorTypeString, 0, 0, fakehci.LangIDTable(0x0409))
	hci.SetDescriptor(deviceID, DescriptorTypeString, 3, 0x0409, fakehci.StringDescriptor("hi"))

	var lang uint16
	buf := make([]byte, 16)
	n, err := dev.GetStringDescriptor(context.Background(), 3, &lang, buf)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0409), lang, "lang_id negotiated from the cached table")
	require.Equal(t, fakehci.StringDescriptor("hi"), buf[:n])
}

func TestFacade_GetStringDescriptorBufferTooSmall(t *testing.T) {
	dev, hci := setupFacadeDevice(t)
	const deviceID = 100

	hci.SetDescriptor(deviceID, DescriptorTypeString, 0, 0, fakehci.LangIDTable(0x0409))
	hci.SetDescriptor(deviceID, DescriptorTypeString, 3, 0x0409, fakehci.StringDescriptor("a longer string"))

	var lang uint16
	buf := make([]byte, 2)
	_, err := dev.GetStringDescriptor(context.Background(), 3, &lang, buf)
	require.ErrorIs(t, err, ErrBufferTooSmall)
}

func TestFacade_SetInterfaceUnknownIID(t *testing.T) {
	dev, _ := setupFacadeDevice(t)
	err := dev.SetInterface(9, 0)
	require.ErrorIs(t, err, ErrInvalidArgs)
}

func TestFacade_GetDeviceIdentifiers(t *testing.T) {
	dev, _ := setupFacadeDevice(t)
	require.Equal(t, uint64(100), dev.GetDeviceID())
	require.Equal(t, RootHubID, dev.GetDeviceHubID())
	require.Equal(t, SpeedFull, dev.GetDeviceSpeed())
	require.Equal(t, DeviceTypeDevice, dev.GetDeviceType())
}
