package usbdevice

import "context"

// SetupPacket is the standard 8-byte USB control setup packet. Its fields
// are bmRequestType, bRequest, wValue, wIndex and wLength, in wire order,
// named without their USB type prefixes.
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// CompletionFunc is invoked when a Request finishes, either directly by the
// Completion Pump worker (async transfers) or synchronously by the Control
// Transfer Bridge's own wait (control transfers never touch the pump).
type CompletionFunc func(req *Request)

// Request is the unit of work submitted to the HCI collaborator. The same
// struct shape serves control, bulk and interrupt transfers; Setup is the
// zero value for non-control endpoints.
//
// saved fields exist only so the Request Queue Shim (C5) and Completion
// Pump (C6) can splice in a trampoline callback and restore the caller's
// original callback/cookie before invoking it, per spec.md §3 invariant 7.
type Request struct {
	DeviceID uint64
	Endpoint uint8
	Setup    SetupPacket
	Buffer   []byte
	Actual   int
	Status   error

	Callback CompletionFunc
	Cookie   any

	savedCallback CompletionFunc
	savedCookie   any
}

// HCI is the host controller interface collaborator: out of scope per
// spec.md §1, consumed only through this interface. A concrete Linux
// implementation lives in linuxhci; tests use internal/fakehci.
type HCI interface {
	// Submit enqueues req for asynchronous completion. req.Callback is
	// invoked (on an HCI-owned context, never the caller's) when the
	// transfer finishes, fails, or is cancelled.
	Submit(ctx context.Context, req *Request) error

	// CancelAll cancels every in-flight request for deviceID on endpoint,
	// including in-flight control transfers on endpoint 0.
	CancelAll(ctx context.Context, deviceID uint64, endpoint uint8) error

	ResetEndpoint(ctx context.Context, deviceID uint64, endpoint uint8) error
	GetMaxTransferSize(ctx context.Context, deviceID uint64, endpoint uint8) (int, error)
	GetCurrentFrame(ctx context.Context) (uint64, error)
}

// ChildHandle opaquely identifies a published child device (an interface
// child or an interface-association child) from the Child Spawner
// collaborator's domain. The core package never interprets it beyond
// passing it back to RemoveChild/SetChildAltSetting.
type ChildHandle any

// ChildSpawner is the device-manager-adjacent collaborator (out of scope,
// §1) that turns a byte range of a configuration blob into a published
// child device. The Descriptor Walker (C3) is the only caller of the Spawn
// methods; RemoveChild and SetChildAltSetting are also called by
// claim_interface, set_configuration, unbind and set_interface.
type ChildSpawner interface {
	// SpawnInterface publishes a single top-level interface (iid,
	// bAlternateSetting==0) plus its contiguous alternate-setting and
	// class-specific descriptors, found at desc.
	SpawnInterface(parent *Device, iid uint8, desc []byte) (ChildHandle, error)

	// SpawnAssociation publishes an Interface Association Descriptor and
	// the bInterfaceCount top-level interfaces it groups, found at desc.
	SpawnAssociation(parent *Device, firstInterface, interfaceCount uint8, desc []byte) (ChildHandle, error)

	RemoveChild(h ChildHandle) error

	SetChildAltSetting(h ChildHandle, alt uint8) error
}

// BindProperties are the properties published alongside a device so the
// device-manager collaborator can match drivers against it, per spec.md
// §4.7 step 8. The top-level device itself is never bindable; only its
// children are, which DeviceManager.PublishDevice is expected to encode as
// a non-bindable flag on the node described by these properties.
type BindProperties struct {
	Protocol   string // sentinel "USB", identifies the binding protocol family
	VendorID   uint16
	ProductID  uint16
	Class      uint8
	SubClass   uint8
	DevProto   uint8
	Bindable   bool
}

// DeviceManager is the out-of-scope collaborator (§1, §6) that publishes
// and removes devices in the surrounding device topology.
type DeviceManager interface {
	PublishDevice(d *Device, props BindProperties) error
	RemoveDevice(d *Device) error
}
