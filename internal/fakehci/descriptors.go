package fakehci

import "encoding/binary"

// Descriptor type constants used by the builders below; they carry the
// same values as the core package's exported DescriptorType* constants.
const (
	descriptorTypeDevice               = 0x01
	descriptorTypeConfig               = 0x02
	descriptorTypeString               = 0x03
	descriptorTypeInterface            = 0x04
	descriptorTypeInterfaceAssociation = 0x0B
)

// DeviceDescriptor builds a raw 18-byte USB device descriptor.
func DeviceDescriptor(vendorID, productID uint16, numConfigurations uint8) []byte {
	b := make([]byte, 18)
	b[0] = 18
	b[1] = descriptorTypeDevice
	binary.LittleEndian.PutUint16(b[2:4], 0x0200) // bcdUSB 2.00
	b[7] = 64                                     // bMaxPacketSize0
	binary.LittleEndian.PutUint16(b[8:10], vendorID)
	binary.LittleEndian.PutUint16(b[10:12], productID)
	b[17] = numConfigurations
	return b
}

// ConfigHeader builds the 9-byte configuration descriptor header that
// precedes the interface/IAD descriptors built below.
func ConfigHeader(totalLength uint16, numInterfaces, configurationValue uint8) []byte {
	b := make([]byte, 9)
	b[0] = 9
	b[1] = descriptorTypeConfig
	binary.LittleEndian.PutUint16(b[2:4], totalLength)
	b[4] = numInterfaces
	b[5] = configurationValue
	return b
}

// InterfaceDescriptor builds a 9-byte standard interface descriptor.
func InterfaceDescriptor(interfaceNumber, alternateSetting, numEndpoints uint8) []byte {
	b := make([]byte, 9)
	b[0] = 9
	b[1] = descriptorTypeInterface
	b[2] = interfaceNumber
	b[3] = alternateSetting
	b[4] = numEndpoints
	return b
}

// InterfaceAssociation builds an 8-byte Interface Association Descriptor.
func InterfaceAssociation(firstInterface, interfaceCount uint8) []byte {
	b := make([]byte, 8)
	b[0] = 8
	b[1] = descriptorTypeInterfaceAssociation
	b[2] = firstInterface
	b[3] = interfaceCount
	return b
}

// Config concatenates a header (with totalLength computed automatically)
// and the given descriptor byte ranges into one configuration blob.
func Config(numInterfaces, configurationValue uint8, parts ...[]byte) []byte {
	total := 9
	for _, p := range parts {
		total += len(p)
	}
	out := ConfigHeader(uint16(total), numInterfaces, configurationValue)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// LangIDTable builds a string-descriptor-zero language ID table.
func LangIDTable(langIDs ...uint16) []byte {
	b := make([]byte, 2+2*len(langIDs))
	b[0] = byte(len(b))
	b[1] = descriptorTypeString
	for i, id := range langIDs {
		binary.LittleEndian.PutUint16(b[2+2*i:], id)
	}
	return b
}

// StringDescriptor UTF-16LE-encodes s (ASCII only, sufficient for tests)
// into a standard string descriptor.
func StringDescriptor(s string) []byte {
	b := make([]byte, 2+2*len(s))
	b[0] = byte(len(b))
	b[1] = descriptorTypeString
	for i, r := range []byte(s) {
		binary.LittleEndian.PutUint16(b[2+2*i:], uint16(r))
	}
	return b
}
