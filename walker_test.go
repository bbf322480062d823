package usbdevice

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kevmo314/usb-device-core/internal/fakehci"
)

func blobFrom(raw []byte) configBlob {
	hdr, err := decodeConfigHeader(raw)
	if err != nil {
		panic(err)
	}
	return configBlob{header: hdr, raw: raw}
}

func TestWalkConfiguration_ZeroInterfaceCountIADSkipped(t *testing.T) {
	raw := fakehci.Config(1, 1,
		fakehci.InterfaceAssociation(0, 0),
		fakehci.InterfaceDescriptor(0, 0, 1),
	)
	spawner := &fakeSpawner{}
	tbl := newInterfaceStatusTable(1, spawner)

	err := walkConfiguration(nil, blobFrom(raw), tbl, spawner, nil)
	require.NoError(t, err)

	children := spawner.liveChildren()
	require.Len(t, children, 1)
	require.Equal(t, "interface", children[0].kind)
}

func TestWalkConfiguration_UnknownDescriptorSkippedByLength(t *testing.T) {
	unknown := []byte{4, 0xEE, 0xAA, 0xBB} // bLength=4, arbitrary type
	raw := fakehci.Config(1, 1, unknown, fakehci.InterfaceDescriptor(0, 0, 1))

	spawner := &fakeSpawner{}
	tbl := newInterfaceStatusTable(1, spawner)

	err := walkConfiguration(nil, blobFrom(raw), tbl, spawner, nil)
	require.NoError(t, err)
	require.Len(t, spawner.liveChildren(), 1)
}

func TestWalkConfiguration_ZeroLengthTerminatesDefensively(t *testing.T) {
	raw := fakehci.ConfigHeader(9+4, 1, 1)
	raw = append(raw, 0, 0xEE, 0, 0) // bLength=0
	raw = append(raw, fakehci.InterfaceDescriptor(0, 0, 1)...)

	spawner := &fakeSpawner{}
	tbl := newInterfaceStatusTable(1, spawner)

	err := walkConfiguration(nil, blobFrom(raw), tbl, spawner, nil)
	require.NoError(t, err)
	require.Empty(t, spawner.liveChildren(), "zero bLength must stop the walk before reaching the interface after it")
}

func TestWalkConfiguration_BestEffortContinuesAfterSpawnFailure(t *testing.T) {
	raw := fakehci.Config(2, 1,
		fakehci.InterfaceDescriptor(0, 0, 1),
		fakehci.InterfaceDescriptor(1, 0, 1),
	)
	spawner := &fakeSpawner{failNext: true}
	tbl := newInterfaceStatusTable(2, spawner)

	err := walkConfiguration(nil, blobFrom(raw), tbl, spawner, nil)
	require.Error(t, err, "the last non-OK status is observable")

	children := spawner.liveChildren()
	require.Len(t, children, 1, "the second interface still got a child despite the first failing")
	require.Equal(t, []uint8{1}, children[0].interfaceIDs)
}

func TestWalkConfiguration_AlternateSettingsGroupedIntoParent(t *testing.T) {
	raw := fakehci.Config(1, 1,
		fakehci.InterfaceDescriptor(0, 0, 1),
		fakehci.InterfaceDescriptor(0, 1, 2), // alternate setting, not top-level
	)
	spawner := &fakeSpawner{}
	tbl := newInterfaceStatusTable(1, spawner)

	err := walkConfiguration(nil, blobFrom(raw), tbl, spawner, nil)
	require.NoError(t, err)

	children := spawner.liveChildren()
	require.Len(t, children, 1)
	require.Greater(t, children[0].descriptorLen, 9, "alternate-setting descriptor bytes are included in the parent's range")
}
