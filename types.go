package usbdevice

import "encoding/binary"

// Descriptor type constants, consolidated from the teacher's
// types_common.go/device.go/config.go (which each carried their own copy).
const (
	DescriptorTypeDevice                  = 0x01
	DescriptorTypeConfig                  = 0x02
	DescriptorTypeString                  = 0x03
	DescriptorTypeInterface               = 0x04
	DescriptorTypeEndpoint                = 0x05
	DescriptorTypeDeviceQualifier         = 0x06
	DescriptorTypeOtherSpeedConfig        = 0x07
	DescriptorTypeInterfacePower          = 0x08
	DescriptorTypeOTG                     = 0x09
	DescriptorTypeDebug                   = 0x0A
	DescriptorTypeInterfaceAssociation    = 0x0B
	DescriptorTypeBOS                     = 0x0F
	DescriptorTypeDeviceCapability        = 0x10
	DescriptorTypeSuperSpeedEndpointComp  = 0x30
)

// Standard USB requests used by the control bridge and facade.
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestSetDescriptor    = 0x07
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
	RequestSynchFrame       = 0x0C
)

// Speed is the link-speed tag recorded against a Device at enumeration time.
// Values mirror the HCI collaborator's own speed enumeration (§3 "speed").
type Speed uint8

const (
	SpeedUnknown Speed = iota
	SpeedLow
	SpeedFull
	SpeedHigh
	SpeedSuper
	SpeedSuperPlus
)

func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "low"
	case SpeedFull:
		return "full"
	case SpeedHigh:
		return "high"
	case SpeedSuper:
		return "super"
	case SpeedSuperPlus:
		return "super-plus"
	default:
		return "unknown"
	}
}

// HubID sentinel for devices hanging directly off the root, mirroring the
// "sentinel for the root" language of spec.md §3.
const RootHubID uint64 = 0

// DeviceDescriptor is the fixed 18-byte USB device descriptor. Multi-byte
// fields are decoded little-endian off the wire regardless of host byte
// order, per spec.md §4.1.
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

const deviceDescriptorLength = 18

// decodeDeviceDescriptor parses a raw 18-byte device descriptor. Short reads
// are the caller's responsibility to detect (spec.md §4.1: "descriptor reads
// that return fewer bytes than the expected struct size fail with an I/O
// error").
func decodeDeviceDescriptor(b []byte) (DeviceDescriptor, error) {
	if len(b) < deviceDescriptorLength {
		return DeviceDescriptor{}, newError("decode_device_descriptor", KindIO, nil)
	}
	return DeviceDescriptor{
		Length:            b[0],
		DescriptorType:    b[1],
		USBVersion:        binary.LittleEndian.Uint16(b[2:4]),
		DeviceClass:       b[4],
		DeviceSubClass:    b[5],
		DeviceProtocol:    b[6],
		MaxPacketSize0:    b[7],
		VendorID:          binary.LittleEndian.Uint16(b[8:10]),
		ProductID:         binary.LittleEndian.Uint16(b[10:12]),
		DeviceVersion:     binary.LittleEndian.Uint16(b[12:14]),
		ManufacturerIndex: b[14],
		ProductIndex:      b[15],
		SerialNumberIndex: b[16],
		NumConfigurations: b[17],
	}, nil
}

const configDescriptorHeaderLength = 9

// configHeader decodes just the 9-byte configuration descriptor header,
// used by both enumeration (to learn wTotalLength before allocating the
// full blob, spec.md §4.7 step 3) and the walker.
type configHeader struct {
	Length             uint8
	DescriptorType     uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationIndex uint8
	Attributes         uint8
	MaxPower           uint8
}

func decodeConfigHeader(b []byte) (configHeader, error) {
	if len(b) < configDescriptorHeaderLength {
		return configHeader{}, newError("decode_config_header", KindIO, nil)
	}
	return configHeader{
		Length:             b[0],
		DescriptorType:     b[1],
		TotalLength:        binary.LittleEndian.Uint16(b[2:4]),
		NumInterfaces:      b[4],
		ConfigurationValue: b[5],
		ConfigurationIndex: b[6],
		Attributes:         b[7],
		MaxPower:           b[8],
	}, nil
}

// configBlob is an owned, fully-read configuration descriptor byte sequence
// together with its decoded header, per spec.md §3 ("an ordered sequence of
// owned configuration descriptor blobs").
type configBlob struct {
	header configHeader
	raw    []byte // full wTotalLength bytes, owned by the Device
}

func (c configBlob) ConfigurationValue() uint8 { return c.header.ConfigurationValue }
func (c configBlob) NumInterfaces() uint8      { return c.header.NumInterfaces }
func (c configBlob) TotalLength() uint16       { return c.header.TotalLength }

// descriptorHeader is the generic two-byte (length, type) header every
// descriptor in a configuration blob starts with, used by the walker to
// skip unrecognized descriptors (spec.md §4.3).
type descriptorHeader struct {
	Length uint8
	Type   uint8
}

func peekDescriptorHeader(raw []byte, pos int) (descriptorHeader, bool) {
	if pos+2 > len(raw) {
		return descriptorHeader{}, false
	}
	return descriptorHeader{Length: raw[pos], Type: raw[pos+1]}, true
}

// interfaceDescriptorFields are the fields of a standard interface
// descriptor the walker needs to classify and group it; it does not
// otherwise interpret interface contents (endpoints, class-specific
// descriptors) beyond copying their byte ranges.
type interfaceDescriptorFields struct {
	InterfaceNumber  uint8
	AlternateSetting uint8
	NumEndpoints     uint8
}

const interfaceDescriptorLength = 9

func decodeInterfaceDescriptorFields(raw []byte, pos int) (interfaceDescriptorFields, bool) {
	if pos+interfaceDescriptorLength > len(raw) {
		return interfaceDescriptorFields{}, false
	}
	return interfaceDescriptorFields{
		InterfaceNumber:  raw[pos+2],
		AlternateSetting: raw[pos+3],
		NumEndpoints:     raw[pos+4],
	}, true
}

// interfaceAssociationFields are the fields of an Interface Association
// Descriptor (IAD) the walker needs, per spec.md §4.3.
type interfaceAssociationFields struct {
	FirstInterface uint8
	InterfaceCount uint8
}

const interfaceAssociationLength = 8

func decodeInterfaceAssociationFields(raw []byte, pos int) (interfaceAssociationFields, bool) {
	if pos+interfaceAssociationLength > len(raw) {
		return interfaceAssociationFields{}, false
	}
	return interfaceAssociationFields{
		FirstInterface: raw[pos+2],
		InterfaceCount: raw[pos+3],
	}, true
}

// ClassTriple is the (class, subclass, protocol) used for device-manager
// bind properties in C7 step 8.
type ClassTriple struct {
	Class    uint8
	SubClass uint8
	Protocol uint8
}

func (d DeviceDescriptor) Class() ClassTriple {
	return ClassTriple{Class: d.DeviceClass, SubClass: d.DeviceSubClass, Protocol: d.DeviceProtocol}
}
