package usbdevice

import "context"

// DeviceType identifies what kind of node a Device Protocol Facade fronts.
// This package only ever produces DeviceTypeDevice nodes; interface
// children are a distinct collaborator out of scope per spec.md §1.
type DeviceType int

const DeviceTypeDevice DeviceType = 0

// BTIHandle is the bus-transaction-initiator capability key request
// allocator operations are keyed on (spec.md §4.8, GLOSSARY). The real
// allocation/mapping/caching primitives live in the out-of-scope request
// library; this package only carries the key through.
type BTIHandle uint64

// maxStringDescriptorSize bounds the scratch buffer used to probe a string
// descriptor's actual length before deciding whether the caller's buffer
// is big enough (USB string descriptors cannot exceed 255 bytes: bLength
// is a single byte).
const maxStringDescriptorSize = 255

// GetDeviceType returns the constant identifying this node as a device,
// not an interface.
func (d *Device) GetDeviceType() DeviceType { return DeviceTypeDevice }

// GetDeviceSpeed returns the stored link-speed tag.
func (d *Device) GetDeviceSpeed() Speed { return d.speed }

// GetDeviceDescriptor returns a copy of the stored device descriptor.
func (d *Device) GetDeviceDescriptor() DeviceDescriptor { return d.store.deviceDescriptor() }

// GetConfigDescSize returns the decoded wTotalLength for the configuration
// identified by bConfigurationValue, InvalidArgs if unknown.
func (d *Device) GetConfigDescSize(value uint8) (int, error) {
	blob, ok := d.store.descriptorFor(value)
	if !ok {
		return 0, newError("get_config_desc_size", KindInvalidArgs, nil)
	}
	return int(blob.TotalLength()), nil
}

// GetConfigDesc copies the full blob for bConfigurationValue == value into
// buf. BufferTooSmall is returned without any partial write if buf is
// undersized.
func (d *Device) GetConfigDesc(value uint8, buf []byte) (int, error) {
	blob, ok := d.store.descriptorFor(value)
	if !ok {
		return 0, newError("get_config_desc", KindInvalidArgs, nil)
	}
	if len(buf) < len(blob.raw) {
		return 0, newError("get_config_desc", KindBufferTooSmall, nil)
	}
	return copy(buf, blob.raw), nil
}

// GetDescriptorsSize returns the active configuration's wTotalLength.
func (d *Device) GetDescriptorsSize() int {
	return int(d.store.active().TotalLength())
}

// GetDescriptors copies the active configuration's blob into buf.
// BufferTooSmall is returned without any partial write if buf is
// undersized.
func (d *Device) GetDescriptors(buf []byte) (int, error) {
	blob := d.store.active()
	if len(buf) < len(blob.raw) {
		return 0, newError("get_descriptors", KindBufferTooSmall, nil)
	}
	return copy(buf, blob.raw), nil
}

// GetStringDescriptor fetches and caches the device's supported language
// list on first call, negotiates langID (0 means "pick the device's first
// supported language and report it back through langID"), and copies the
// requested string into buf.
//
// Returns the number of bytes actually written (spec.md §9: the legacy
// "max" computation here is a bug; this returns bytes written, never more
// than len(buf), and never writes partially on BufferTooSmall).
func (d *Device) GetStringDescriptor(ctx context.Context, descID uint8, langID *uint16, buf []byte) (int, error) {
	table, ok := d.langIDs.get()
	if !ok {
		scratch := make([]byte, maxStringDescriptorSize)
		n, err := d.fetchDescriptor(ctx, DescriptorTypeString, 0, 0, scratch)
		if err != nil {
			return 0, newError("get_string_descriptor", KindIO, err)
		}
		table = d.langIDs.publish(append([]byte(nil), scratch[:n]...))
	}

	chosen := *langID
	if chosen == 0 {
		id, ok := firstLangID(table)
		if !ok {
			return 0, newError("get_string_descriptor", KindNotSupported, nil)
		}
		chosen = id
	}

	scratch := make([]byte, maxStringDescriptorSize)
	n, err := d.fetchDescriptor(ctx, DescriptorTypeString, descID, chosen, scratch)
	if err != nil {
		return 0, newError("get_string_descriptor", KindIO, err)
	}
	if n > len(buf) {
		return 0, newError("get_string_descriptor", KindBufferTooSmall, nil)
	}
	*langID = chosen
	return copy(buf, scratch[:n]), nil
}

// firstLangID decodes the first little-endian uint16 language ID out of a
// cached USB string-descriptor-zero table (2-byte header followed by a
// packed array of LANGIDs).
func firstLangID(table []byte) (uint16, bool) {
	if len(table) < 4 {
		return 0, false
	}
	return uint16(table[2]) | uint16(table[3])<<8, true
}

// SetInterface locates the child owning iid by containment check and
// delegates the alternate-setting change, InvalidArgs if iid is unknown.
func (d *Device) SetInterface(iid uint8, alt uint8) error {
	child, ok := d.ifTable.findOwner(iid)
	if !ok {
		return newError("set_interface", KindInvalidArgs, nil)
	}
	if err := d.spawner.SetChildAltSetting(child, alt); err != nil {
		return newError("set_interface", KindBadState, err)
	}
	return nil
}

// GetCurrentFrame passes through to the HCI frame counter.
func (d *Device) GetCurrentFrame(ctx context.Context) (uint64, error) {
	frame, err := d.hci.GetCurrentFrame(ctx)
	if err != nil {
		return 0, newError("get_current_frame", KindIO, err)
	}
	return frame, nil
}

// GetDeviceID returns the stored HCI-assigned device id.
func (d *Device) GetDeviceID() uint64 { return d.id }

// GetDeviceHubID returns the stored parent hub id (RootHubID if this
// device hangs directly off the root).
func (d *Device) GetDeviceHubID() uint64 { return d.hubID }

// GetConfiguration returns bConfigurationValue of the active configuration.
func (d *Device) GetConfiguration() uint8 { return d.store.active().ConfigurationValue() }

// ResetEndpoint passes through to HCI, keyed on this device's id.
func (d *Device) ResetEndpoint(ctx context.Context, endpoint uint8) error {
	if err := d.hci.ResetEndpoint(ctx, d.id, endpoint); err != nil {
		return newError("reset_endpoint", KindIO, err)
	}
	return nil
}

// CancelAll passes through to HCI, keyed on this device's id.
func (d *Device) CancelAll(ctx context.Context, endpoint uint8) error {
	if err := d.hci.CancelAll(ctx, d.id, endpoint); err != nil {
		return newError("cancel_all", KindIO, err)
	}
	return nil
}

// GetMaxTransferSize passes through to HCI, keyed on this device's id.
func (d *Device) GetMaxTransferSize(ctx context.Context, endpoint uint8) (int, error) {
	size, err := d.hci.GetMaxTransferSize(ctx, d.id, endpoint)
	if err != nil {
		return 0, newError("get_max_transfer_size", KindIO, err)
	}
	return size, nil
}

// ClaimInterface delegates to the Interface Status Table's claim operation
// (C2), per spec.md §4.2.
func (d *Device) ClaimInterface(iid uint8) error {
	return d.ifTable.claim(iid)
}

// QueueRequest submits req asynchronously through the Request Queue Shim
// (C5); req.Callback is the caller's completion, invoked later by the
// Completion Pump with the saved callback/cookie restored.
func (d *Device) QueueRequest(ctx context.Context, req *Request) error {
	return d.queue.queue(ctx, req)
}

// NewRequest is a thin allocator for a Request sized length bytes, keyed on
// this device's bus-transaction-initiator handle (spec.md §4.8); the
// request library's own copy/map/cache/physmap operations are out of
// scope and are not reimplemented here.
func (d *Device) NewRequest(endpoint uint8, length int) *Request {
	return &Request{DeviceID: d.id, Endpoint: endpoint, Buffer: make([]byte, length)}
}

// BTIHandle returns the bus-transaction-initiator key request allocator
// operations would be keyed on.
func (d *Device) BTIHandle() BTIHandle { return BTIHandle(d.id) }
