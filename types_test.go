package usbdevice

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kevmo314/usb-device-core/internal/fakehci"
)

func TestDecodeDeviceDescriptor_RoundTrip(t *testing.T) {
	raw := fakehci.DeviceDescriptor(0x1234, 0xABCD, 3)
	desc, err := decodeDeviceDescriptor(raw)
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), desc.VendorID)
	require.Equal(t, uint16(0xABCD), desc.ProductID)
	require.Equal(t, uint8(3), desc.NumConfigurations)
}

func TestDecodeDeviceDescriptor_ShortReadIsIOError(t *testing.T) {
	_, err := decodeDeviceDescriptor(make([]byte, 10))
	require.ErrorIs(t, err, ErrIO)
}

func TestDecodeConfigHeader_LittleEndianTotalLength(t *testing.T) {
	raw := fakehci.ConfigHeader(0x0109, 2, 1)
	hdr, err := decodeConfigHeader(raw)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0109), hdr.TotalLength)
	require.Equal(t, uint8(2), hdr.NumInterfaces)
}

func TestPeekDescriptorHeader_BoundsCheck(t *testing.T) {
	_, ok := peekDescriptorHeader([]byte{9}, 0)
	require.False(t, ok)

	hdr, ok := peekDescriptorHeader([]byte{9, DescriptorTypeInterface}, 0)
	require.True(t, ok)
	require.Equal(t, uint8(9), hdr.Length)
	require.Equal(t, uint8(DescriptorTypeInterface), hdr.Type)
}
