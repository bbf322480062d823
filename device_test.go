package usbdevice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kevmo314/usb-device-core/internal/fakehci"
)

// fakeChild is the ChildHandle a fakeSpawner publishes: just enough to let
// tests assert which interfaces got children and in what shape.
type fakeChild struct {
	kind          string // "interface" or "association"
	interfaceIDs  []uint8
	descriptorLen int
	altSetting    uint8
	removed       bool
}

// fakeSpawner is an in-process ChildSpawner double recording every publish
// and removal so tests can assert §8's invariants directly.
type fakeSpawner struct {
	mu       sync.Mutex
	children []*fakeChild
	failNext bool
}

func (s *fakeSpawner) SpawnInterface(parent *Device, iid uint8, desc []byte) (ChildHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return nil, errFakeSpawnFailure
	}
	c := &fakeChild{kind: "interface", interfaceIDs: []uint8{iid}, descriptorLen: len(desc)}
	s.children = append(s.children, c)
	return c, nil
}

func (s *fakeSpawner) SpawnAssociation(parent *Device, first, count uint8, desc []byte) (ChildHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint8, count)
	for i := range ids {
		ids[i] = first + uint8(i)
	}
	c := &fakeChild{kind: "association", interfaceIDs: ids, descriptorLen: len(desc)}
	s.children = append(s.children, c)
	return c, nil
}

func (s *fakeSpawner) RemoveChild(h ChildHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := h.(*fakeChild)
	c.removed = true
	return nil
}

func (s *fakeSpawner) SetChildAltSetting(h ChildHandle, alt uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.(*fakeChild).altSetting = alt
	return nil
}

func (s *fakeSpawner) liveChildren() []*fakeChild {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeChild
	for _, c := range s.children {
		if !c.removed {
			out = append(out, c)
		}
	}
	return out
}

var errFakeSpawnFailure = fakeErr("fakeSpawner: forced failure")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

// fakeManager is a no-op DeviceManager double.
type fakeManager struct {
	published int
	removed   int
}

func (m *fakeManager) PublishDevice(d *Device, props BindProperties) error {
	m.published++
	return nil
}

func (m *fakeManager) RemoveDevice(d *Device) error {
	m.removed++
	return nil
}

func setupHIDMouse(t *testing.T, hci *fakehci.HCI, deviceID uint64) {
	t.Helper()
	hci.SetDescriptor(deviceID, DescriptorTypeDevice, 0, 0, fakehci.DeviceDescriptor(0x046D, 0xC077, 1))
	cfg := fakehci.Config(1, 1, fakehci.InterfaceDescriptor(0, 0, 1))
	hci.SetDescriptor(deviceID, DescriptorTypeConfig, 0, 0, cfg)
}

func TestAddDevice_SimpleHIDMouse(t *testing.T) {
	hci := fakehci.New()
	const deviceID = 1
	setupHIDMouse(t, hci, deviceID)

	spawner := &fakeSpawner{}
	mgr := &fakeManager{}

	dev, err := AddDevice(context.Background(), hci, spawner, mgr, deviceID, RootHubID, SpeedFull)
	require.NoError(t, err)
	require.Equal(t, uint8(1), dev.GetConfiguration())

	children := spawner.liveChildren()
	require.Len(t, children, 1)
	require.Equal(t, []uint8{0}, children[0].interfaceIDs)

	snap := dev.ifTable.snapshot()
	require.Equal(t, []ifStatus{ifChildDevice}, snap)
	require.Equal(t, 1, mgr.published)
}

func TestAddDevice_CompositeCDCViaIAD(t *testing.T) {
	hci := fakehci.New()
	const deviceID = 2
	hci.SetDescriptor(deviceID, DescriptorTypeDevice, 0, 0, fakehci.DeviceDescriptor(0x0525, 0xA4A1, 1))
	cfg := fakehci.Config(2, 1,
		fakehci.InterfaceAssociation(0, 2),
		fakehci.InterfaceDescriptor(0, 0, 1),
		fakehci.InterfaceDescriptor(1, 0, 2),
	)
	hci.SetDescriptor(deviceID, DescriptorTypeConfig, 0, 0, cfg)

	spawner := &fakeSpawner{}
	dev, err := AddDevice(context.Background(), hci, spawner, nil, deviceID, RootHubID, SpeedHigh)
	require.NoError(t, err)

	children := spawner.liveChildren()
	require.Len(t, children, 1, "exactly one association child covering both interfaces")
	require.Equal(t, []uint8{0, 1}, children[0].interfaceIDs)

	snap := dev.ifTable.snapshot()
	require.Equal(t, []ifStatus{ifAvailable, ifAvailable}, snap,
		"status transitions occur only for the per-interface branch")
}

func TestAddDevice_RealtekOverrideDongle(t *testing.T) {
	hci := fakehci.New()
	const deviceID = 3
	hci.SetDescriptor(deviceID, DescriptorTypeDevice, 0, 0, fakehci.DeviceDescriptor(0x0BDA, 0x8153, 2))
	hci.SetDescriptor(deviceID, DescriptorTypeConfig, 0, 0, fakehci.Config(1, 1, fakehci.InterfaceDescriptor(0, 0, 1)))
	hci.SetDescriptor(deviceID, DescriptorTypeConfig, 1, 0, fakehci.Config(1, 2, fakehci.InterfaceDescriptor(0, 0, 1)))

	spawner := &fakeSpawner{}
	dev, err := AddDevice(context.Background(), hci, spawner, nil, deviceID, RootHubID, SpeedHigh)
	require.NoError(t, err)
	require.Equal(t, uint8(2), dev.GetConfiguration(), "override selects configuration value 2, not index 2")
}

func TestClaimInterface_RemovesExistingChild(t *testing.T) {
	hci := fakehci.New()
	const deviceID = 4
	setupHIDMouse(t, hci, deviceID)
	spawner := &fakeSpawner{}
	dev, err := AddDevice(context.Background(), hci, spawner, nil, deviceID, RootHubID, SpeedFull)
	require.NoError(t, err)

	children := spawner.liveChildren()
	require.Len(t, children, 1)

	require.NoError(t, dev.ClaimInterface(0))
	require.Empty(t, spawner.liveChildren(), "claim tore down the existing child")

	status, _ := dev.ifTable.statusOf(0)
	require.Equal(t, ifClaimed, status)

	err = dev.ClaimInterface(0)
	require.ErrorIs(t, err, ErrAlreadyBound)
}

func TestSetConfiguration_TeardownAndRespawn(t *testing.T) {
	hci := fakehci.New()
	const deviceID = 5
	hci.SetDescriptor(deviceID, DescriptorTypeDevice, 0, 0, fakehci.DeviceDescriptor(0x0525, 0xA4A1, 2))
	cfgIAD := fakehci.Config(2, 1,
		fakehci.InterfaceAssociation(0, 2),
		fakehci.InterfaceDescriptor(0, 0, 1),
		fakehci.InterfaceDescriptor(1, 0, 2),
	)
	cfgSingle := fakehci.Config(1, 2, fakehci.InterfaceDescriptor(0, 0, 1))
	hci.SetDescriptor(deviceID, DescriptorTypeConfig, 0, 0, cfgIAD)
	hci.SetDescriptor(deviceID, DescriptorTypeConfig, 1, 0, cfgSingle)

	spawner := &fakeSpawner{}
	dev, err := AddDevice(context.Background(), hci, spawner, nil, deviceID, RootHubID, SpeedHigh)
	require.NoError(t, err)
	require.Len(t, spawner.liveChildren(), 1)

	require.NoError(t, dev.SetConfiguration(context.Background(), 2))
	require.Equal(t, uint8(2), dev.GetConfiguration())
	require.Equal(t, 1, dev.ifTable.size())

	children := spawner.liveChildren()
	require.Len(t, children, 1)
	require.Equal(t, []uint8{0}, children[0].interfaceIDs)
}

func TestSetConfiguration_Idempotent(t *testing.T) {
	hci := fakehci.New()
	const deviceID = 6
	setupHIDMouse(t, hci, deviceID)
	spawner := &fakeSpawner{}
	dev, err := AddDevice(context.Background(), hci, spawner, nil, deviceID, RootHubID, SpeedFull)
	require.NoError(t, err)

	first := spawner.liveChildren()[0]
	require.NoError(t, dev.SetConfiguration(context.Background(), 1))
	require.True(t, first.removed, "first child torn down on re-set_configuration")
	second := spawner.liveChildren()
	require.Len(t, second, 1)
	require.NotSame(t, first, second[0])

	require.NoError(t, dev.SetConfiguration(context.Background(), 1))
}

func TestSetConfiguration_UnknownValue(t *testing.T) {
	hci := fakehci.New()
	const deviceID = 7
	setupHIDMouse(t, hci, deviceID)
	dev, err := AddDevice(context.Background(), hci, &fakeSpawner{}, nil, deviceID, RootHubID, SpeedFull)
	require.NoError(t, err)

	err = dev.SetConfiguration(context.Background(), 9)
	require.ErrorIs(t, err, ErrInvalidArgs)
}

func TestControlTimeoutDrain(t *testing.T) {
	hci := fakehci.New()
	const deviceID = 8
	setupHIDMouse(t, hci, deviceID)
	dev, err := AddDevice(context.Background(), hci, &fakeSpawner{}, nil, deviceID, RootHubID, SpeedFull)
	require.NoError(t, err)

	hci.SetDropControl(deviceID, true)
	start := time.Now()
	_, err = dev.control.control(context.Background(), directionIn, RequestGetDescriptor, 0x0100, 0, make([]byte, 18), 18, 100*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimedOut)
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	require.Equal(t, 1, hci.CancelCount(deviceID, controlEndpoint))
}

func TestUnbindAndRelease(t *testing.T) {
	hci := fakehci.New()
	const deviceID = 9
	setupHIDMouse(t, hci, deviceID)
	spawner := &fakeSpawner{}
	mgr := &fakeManager{}
	dev, err := AddDevice(context.Background(), hci, spawner, mgr, deviceID, RootHubID, SpeedFull)
	require.NoError(t, err)

	require.NoError(t, dev.Unbind())
	require.Empty(t, spawner.liveChildren())
	require.Equal(t, 1, mgr.removed)

	require.NoError(t, dev.Release())
}

func TestDescriptorWalk_HeaderOnlyBlob(t *testing.T) {
	hci := fakehci.New()
	const deviceID = 10
	hci.SetDescriptor(deviceID, DescriptorTypeDevice, 0, 0, fakehci.DeviceDescriptor(0x1234, 0x5678, 1))
	hci.SetDescriptor(deviceID, DescriptorTypeConfig, 0, 0, fakehci.ConfigHeader(9, 0, 1))

	spawner := &fakeSpawner{}
	dev, err := AddDevice(context.Background(), hci, spawner, nil, deviceID, RootHubID, SpeedFull)
	require.NoError(t, err)
	require.Empty(t, spawner.liveChildren())
	require.Equal(t, 0, dev.ifTable.size())
}
