package usbdevice

// descriptorStore is C1: owns the immutable device descriptor and the
// array of fully-read configuration descriptor blobs, indexed 0..N-1 per
// spec.md §3, with lookup by bConfigurationValue and iteration over the
// active configuration.
type descriptorStore struct {
	device  DeviceDescriptor
	configs []configBlob

	currentConfigIndex int
}

func newDescriptorStore(device DeviceDescriptor, configs []configBlob) *descriptorStore {
	return &descriptorStore{device: device, configs: configs}
}

// deviceDescriptor returns the decoded device descriptor by value, so
// callers cannot mutate the store's copy through the result.
func (s *descriptorStore) deviceDescriptor() DeviceDescriptor {
	return s.device
}

// descriptorFor matches on bConfigurationValue, per spec.md §4.1.
func (s *descriptorStore) descriptorFor(value uint8) (configBlob, bool) {
	for _, c := range s.configs {
		if c.ConfigurationValue() == value {
			return c, true
		}
	}
	return configBlob{}, false
}

// active returns the blob at currentConfigIndex. Invariant 1 of spec.md §3
// (0 ≤ current_config_index < bNumConfigurations) is maintained by every
// writer of currentConfigIndex (setActiveIndex), so this never panics once
// the store has been constructed with at least one configuration.
func (s *descriptorStore) active() configBlob {
	return s.configs[s.currentConfigIndex]
}

// setActiveIndex moves the active configuration pointer. Callers
// (set_configuration, initial select) are responsible for having already
// validated index against len(s.configs).
func (s *descriptorStore) setActiveIndex(index int) error {
	if index < 0 || index >= len(s.configs) {
		return newError("set_active_config", KindInvalidArgs, nil)
	}
	s.currentConfigIndex = index
	return nil
}

func (s *descriptorStore) numConfigurations() int { return len(s.configs) }

// indexFor returns the array index of the blob matching bConfigurationValue
// == value, used by set_configuration to resolve the new active index.
func (s *descriptorStore) indexFor(value uint8) (int, bool) {
	for i, c := range s.configs {
		if c.ConfigurationValue() == value {
			return i, true
		}
	}
	return 0, false
}
