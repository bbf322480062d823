package usbdevice

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Device is a USB top-level device (spec.md §3): identified by an
// HCI-assigned device id, its parent hub id, and a link-speed tag. It owns
// the descriptor store, interface status table, control bridge, request
// queue shim and completion pump that make up the rest of this package.
type Device struct {
	id    uint64
	hubID uint64
	speed Speed

	hci     HCI
	spawner ChildSpawner
	manager DeviceManager
	log     *zap.Logger

	overrides      *overrideTable
	controlTimeout time.Duration

	store   *descriptorStore
	ifTable *interfaceStatusTable
	control *controlBridge
	queue   *requestQueueShim
	pump    *completionPump
	langIDs langIDCache

	isHub       bool
	hubCallback any
}

// AddDevice is C7's add(bus, device_id, hub_id, speed): enumerate the
// device over endpoint 0, select and activate a configuration, publish the
// device, then spawn its children, per spec.md §4.7.
func AddDevice(ctx context.Context, hci HCI, spawner ChildSpawner, manager DeviceManager, deviceID, hubID uint64, speed Speed, opts ...Option) (*Device, error) {
	cfg := newOptions(opts)

	d := &Device{
		id:             deviceID,
		hubID:          hubID,
		speed:          speed,
		hci:            hci,
		spawner:        spawner,
		manager:        manager,
		log:            cfg.logger,
		overrides:      newOverrideTable(cfg.overrideRows),
		controlTimeout: cfg.controlTimeout,
	}
	d.control = newControlBridge(hci, deviceID)
	d.pump = newCompletionPump()
	d.queue = newRequestQueueShim(hci, deviceID, d.pump)

	// Step 2: read the device descriptor.
	devBuf := make([]byte, deviceDescriptorLength)
	n, err := d.fetchDescriptor(ctx, DescriptorTypeDevice, 0, 0, devBuf)
	if err != nil {
		return nil, newError("add_device", KindIO, err)
	}
	if n < deviceDescriptorLength {
		return nil, newError("add_device", KindIO, nil)
	}
	devDesc, err := decodeDeviceDescriptor(devBuf)
	if err != nil {
		return nil, err
	}

	// Step 3: read every configuration's 9-byte header to learn
	// wTotalLength, then the full blob.
	configs := make([]configBlob, 0, devDesc.NumConfigurations)
	for i := 0; i < int(devDesc.NumConfigurations); i++ {
		hdrBuf := make([]byte, configDescriptorHeaderLength)
		if _, err := d.fetchDescriptor(ctx, DescriptorTypeConfig, uint8(i), 0, hdrBuf); err != nil {
			return nil, newError("add_device", KindIO, err)
		}
		hdr, err := decodeConfigHeader(hdrBuf)
		if err != nil {
			return nil, err
		}
		full := make([]byte, hdr.TotalLength)
		if _, err := d.fetchDescriptor(ctx, DescriptorTypeConfig, uint8(i), 0, full); err != nil {
			return nil, newError("add_device", KindIO, err)
		}
		parsed, err := decodeConfigHeader(full)
		if err != nil {
			return nil, err
		}
		configs = append(configs, configBlob{header: parsed, raw: full})
	}
	if len(configs) == 0 {
		return nil, newError("add_device", KindInvalidArgs, nil)
	}
	d.store = newDescriptorStore(devDesc, configs)

	// Step 4: select a configuration. Default to 1; an override table hit
	// replaces it. A configuration value past bNumConfigurations is an
	// Internal error (spec.md §7): the override table itself is wrong.
	configuration := uint8(1)
	if v, ok := d.overrides.lookup(devDesc.VendorID, devDesc.ProductID); ok {
		configuration = v
	}
	if configuration == 0 || int(configuration) > int(devDesc.NumConfigurations) {
		return nil, newError("add_device", KindInternal, nil)
	}
	chosenIndex := int(configuration) - 1
	chosen := configs[chosenIndex]
	if err := d.store.setActiveIndex(chosenIndex); err != nil {
		return nil, err
	}

	// Step 5: SET_CONFIGURATION carries the chosen blob's
	// bConfigurationValue, not the array index.
	if _, err := d.control.control(ctx, 0x00, RequestSetConfiguration, uint16(chosen.ConfigurationValue()), 0, nil, 0, d.controlTimeout); err != nil {
		return nil, newError("add_device", KindIO, err)
	}

	// Step 6: allocate the interface status table.
	d.ifTable = newInterfaceStatusTable(int(chosen.NumInterfaces()), spawner)

	// Step 7: start the pump before publishing, because publishing may
	// recursively bind drivers that immediately queue transfers.
	d.pump.start(ctx)

	// Step 8: publish.
	if manager != nil {
		props := BindProperties{
			Protocol:  "USB",
			VendorID:  devDesc.VendorID,
			ProductID: devDesc.ProductID,
			Class:     devDesc.DeviceClass,
			SubClass:  devDesc.DeviceSubClass,
			DevProto:  devDesc.DeviceProtocol,
			Bindable:  false,
		}
		if err := manager.PublishDevice(d, props); err != nil {
			_ = d.pump.stopAndWait()
			return nil, newError("add_device", KindInternal, err)
		}
	}

	// Step 9: spawn children on the active configuration. Child-spawn
	// failures are best-effort (spec.md §4.3/§7); they do not abort add.
	if err := walkConfiguration(d, chosen, d.ifTable, spawner, d.log); err != nil {
		if d.log != nil {
			d.log.Warn("add_device: initial descriptor walk had errors", zap.Error(err))
		}
	}

	return d, nil
}

// fetchDescriptor issues a standard GET_DESCRIPTOR control request.
func (d *Device) fetchDescriptor(ctx context.Context, descType, index uint8, langID uint16, buf []byte) (int, error) {
	value := uint16(descType)<<8 | uint16(index)
	return d.control.control(ctx, directionIn, RequestGetDescriptor, value, langID, buf, len(buf), d.controlTimeout)
}

// SetConfiguration implements spec.md §4.7's set_configuration(value):
// resolve value to an index, issue the control request, tear down
// children, reset the status table, and re-walk.
func (d *Device) SetConfiguration(ctx context.Context, value uint8) error {
	blob, ok := d.store.descriptorFor(value)
	if !ok {
		return newError("set_configuration", KindInvalidArgs, nil)
	}

	if _, err := d.control.control(ctx, 0x00, RequestSetConfiguration, uint16(value), 0, nil, 0, d.controlTimeout); err != nil {
		return newError("set_configuration", KindIO, err)
	}

	index, ok := d.store.indexFor(value)
	if !ok {
		return newError("set_configuration", KindInvalidArgs, nil)
	}
	if err := d.store.setActiveIndex(index); err != nil {
		return err
	}

	for _, child := range d.ifTable.children() {
		if err := d.spawner.RemoveChild(child); err != nil && d.log != nil {
			d.log.Warn("set_configuration: child teardown failed", zap.Error(err))
		}
	}
	d.ifTable.reset(int(blob.NumInterfaces()))

	if err := walkConfiguration(d, blob, d.ifTable, d.spawner, d.log); err != nil {
		if d.log != nil {
			d.log.Warn("set_configuration: descriptor walk had errors", zap.Error(err))
		}
	}
	return nil
}

// Unbind tears down every child then requests this device's own removal,
// per spec.md §4.7.
func (d *Device) Unbind() error {
	for _, child := range d.ifTable.children() {
		if err := d.spawner.RemoveChild(child); err != nil && d.log != nil {
			d.log.Warn("unbind: child teardown failed", zap.Error(err))
		}
	}
	if d.manager == nil {
		return nil
	}
	if err := d.manager.RemoveDevice(d); err != nil {
		return newError("unbind", KindInternal, err)
	}
	return nil
}

// Release stops the pump, frees descriptor blobs, the cached lang-ID table
// and the status table. It joins the pump worker, guaranteeing no client
// callback runs after Release returns.
func (d *Device) Release() error {
	err := d.pump.stopAndWait()
	d.store = nil
	d.langIDs.fetched.Store(false)
	d.langIDs.raw.Store(nil)
	d.ifTable = nil
	if err != nil {
		return newError("release", KindInternal, err)
	}
	return nil
}
