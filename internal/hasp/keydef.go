package hasp

// Memory sizes by KeyDefinition.MemoryType (spec.md §3).
const (
	memoryTypeSmall = 0x01
	memoryTypeNetA  = 0x20
	memoryTypeNetB  = 0x21

	memSizeSmall   = 128
	memSizeDefault = 4048
)

// KeyDefinition is the static, per-token description loaded from the
// token-definition file (spec.md §3, §6). It is immutable after load
// except for Memory, which WRITE_WORD mutates.
type KeyDefinition struct {
	Name    string
	Created string

	// Password is stored word-swapped from its on-disk form:
	// (raw>>16)|(raw<<16).
	Password uint32

	KeyType    byte
	MemoryType byte

	// Options[0] == 1 selects a caller-supplied SecTable; otherwise
	// SecTable is derived from Password (see DeriveSecureTable).
	Options [14]byte

	SecTable SecureTable

	// NetMemory[0..3] is the serial number; [4..15] carry key
	// type/user-count/flags.
	NetMemory [16]byte

	Memory   [512]byte
	EDStruct [256]byte

	// Fingerprint is a short hex digest of the raw token-definition file
	// this key was loaded from (see keyfile.Load). It is diagnostic only:
	// nothing in the dispatcher re-derives trust from it, it just lets an
	// operator confirm which on-disk file a running session loaded.
	Fingerprint string
}

// GetMemorySize returns the user-addressable memory size in bytes for this
// key, per spec.md §3.
func (k *KeyDefinition) GetMemorySize() int {
	switch k.MemoryType {
	case memoryTypeSmall:
		return memSizeSmall
	case memoryTypeNetA, memoryTypeNetB:
		return memSizeDefault
	default:
		return memSizeDefault
	}
}

// SerialNumber returns the 4 serial-number bytes held in NetMemory[0..3].
func (k *KeyDefinition) SerialNumber() [4]byte {
	var sn [4]byte
	copy(sn[:], k.NetMemory[0:4])
	return sn
}

// ResolveSecureTable applies the SecureTable construction rule of spec.md
// §3: use the supplied table verbatim when Options[0]==1 (and a table was
// actually supplied), otherwise derive it from Password.
func (k *KeyDefinition) ResolveSecureTable(supplied *SecureTable) {
	if supplied != nil && k.Options[0] == 1 {
		k.SecTable = *supplied
		return
	}
	k.SecTable = DeriveSecureTable(k.Password)
}
