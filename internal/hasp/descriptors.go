package hasp

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

// Standard USB descriptor types and sizes, as delivered verbatim for
// GET_DESCRIPTOR (spec.md §6). The emulated token never negotiates
// alternate configurations or endpoints beyond control transfers, so these
// are fixed rather than built up from a generic descriptor tree.
const (
	descTypeDevice        = 1
	descTypeConfiguration = 2
	descTypeString        = 3

	deviceDescriptorLength        = 18
	configurationDescriptorLength = 9
	interfaceDescriptorLength     = 9
)

// DeviceDescriptor is the fixed 18-byte USB device descriptor for the
// emulated token (spec.md §6): vendor-specific class, VID/PID/bcdDevice
// pinned to the values the host's driver expects, a single configuration,
// and string indices for manufacturer/product.
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	BcdUSB            uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize     uint8
	VendorID          uint16
	ProductID         uint16
	BcdDevice         uint16
	Manufacturer      uint8
	Product           uint8
	SerialNumber      uint8
	NumConfigurations uint8
}

// NewDeviceDescriptor returns the token's device descriptor populated with
// the literal values spec.md §6 requires.
func NewDeviceDescriptor() *DeviceDescriptor {
	return &DeviceDescriptor{
		Length:            deviceDescriptorLength,
		DescriptorType:    descTypeDevice,
		BcdUSB:            0x0200,
		DeviceClass:       0xFF,
		MaxPacketSize:     8,
		VendorID:          0x0529,
		ProductID:         0x0001,
		BcdDevice:         0x0325,
		Manufacturer:      1,
		Product:           2,
		NumConfigurations: 1,
	}
}

// Bytes renders the descriptor in the little-endian wire layout USB
// expects.
func (d *DeviceDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, d)
	return buf.Bytes()
}

// ConfigurationDescriptor is the fixed 9-byte configuration descriptor:
// one interface, no endpoints beyond control (spec.md §6).
type ConfigurationDescriptor struct {
	Length             uint8
	DescriptorType     uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	Configuration      uint8
	Attributes         uint8
	MaxPower           uint8
}

// NewConfigurationDescriptor returns the token's configuration descriptor,
// already accounting for the trailing interface descriptor in TotalLength.
func NewConfigurationDescriptor() *ConfigurationDescriptor {
	return &ConfigurationDescriptor{
		Length:             configurationDescriptorLength,
		DescriptorType:     descTypeConfiguration,
		TotalLength:        configurationDescriptorLength + interfaceDescriptorLength,
		NumInterfaces:      1,
		ConfigurationValue: 1,
		Attributes:         0x80,
		MaxPower:           27,
	}
}

// Bytes renders the configuration descriptor followed by its single
// interface descriptor, as GET_DESCRIPTOR(CONFIGURATION) returns them
// concatenated.
func (d *ConfigurationDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, d)

	iface := struct {
		Length            uint8
		DescriptorType    uint8
		InterfaceNumber   uint8
		AlternateSetting  uint8
		NumEndpoints      uint8
		InterfaceClass    uint8
		InterfaceSubClass uint8
		InterfaceProtocol uint8
		Interface         uint8
	}{
		Length:         interfaceDescriptorLength,
		DescriptorType: 4,
		InterfaceClass: 0xFF,
	}
	binary.Write(buf, binary.LittleEndian, iface)

	return buf.Bytes()
}

// LanguageIDDescriptor is string descriptor zero: the single supported
// language code (US English), spec.md §6.
func LanguageIDDescriptor() []byte {
	return []byte{0x04, 0x03, 0x09, 0x04}
}

// ProductStringDescriptor renders "HASP HL 3.25" as a UTF-16LE string
// descriptor (spec.md §6).
func ProductStringDescriptor() []byte {
	return stringDescriptor("HASP HL 3.25")
}

func stringDescriptor(s string) []byte {
	u := utf16.Encode([]rune(s))

	buf := make([]byte, 2, 2+2*len(u))
	buf[0] = uint8(2 + 2*len(u))
	buf[1] = descTypeString

	for _, code := range u {
		buf = append(buf, byte(code), byte(code>>8))
	}

	return buf
}
