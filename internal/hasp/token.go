package hasp

// KeyInfo field byte offsets within the 256-byte EDStruct blob, matching
// the original protocol's packed KEY_INFO layout (spec.md §3 "HashEngine
// scratch"). Per the "Raw pointer aliasing" design note, these are decoded
// through explicit little-endian byte views rather than a struct cast, so
// the layout is pinned here instead of relied upon implicitly.
const (
	edOffColumnMask    = 0
	edOffCryptInitVect = 1
	edOffSecTable      = 2 // 8 bytes
	edOffPassword      = 20
)

// ParseKeyInfo extracts the HashEngine's stable parameters (ColumnMask,
// CryptInitVect, SecTable, Password) from a token's raw EDStruct bytes.
// The remaining KeyInfo fields (IsInvSecTab, PrepNotMask, CurLFSRState,
// First5Bit) are working scratch that Transform fully recomputes at the
// start of every call, so they are left zeroed here rather than parsed.
func ParseKeyInfo(edStruct [256]byte) *KeyInfo {
	ki := &KeyInfo{
		ColumnMask:    edStruct[edOffColumnMask],
		CryptInitVect: edStruct[edOffCryptInitVect],
	}
	copy(ki.SecTable[:], edStruct[edOffSecTable:edOffSecTable+8])
	ki.Password = uint32(edStruct[edOffPassword]) |
		uint32(edStruct[edOffPassword+1])<<8 |
		uint32(edStruct[edOffPassword+2])<<16 |
		uint32(edStruct[edOffPassword+3])<<24
	return ki
}

// TokenState is the mutable per-session state of one emulated token
// (spec.md §3, §4.5). It is created fresh on device connect, persists
// across URBs while the session is alive, and is discarded on disconnect.
// It exclusively owns its KeyDefinition and HashEngine scratch; the
// dispatcher borrows it mutably for the duration of one command. There is
// no cross-token sharing and no internal locking (spec.md §5: a single
// dispatch loop processes all tokens serially).
type TokenState struct {
	Key *KeyDefinition

	// KeyInfo is the HashEngine scratch, parsed once from Key.EDStruct at
	// connect time (see ParseKeyInfo).
	Info *KeyInfo

	ChiperKey1 uint16
	ChiperKey2 uint16

	EncodedStatus byte

	IsInitDone  bool
	IsKeyOpened bool
}

// NewTokenState creates a fresh session for key. EncodedStatus starts at
// zero; SET_CHIPER_KEYS reseeds it from the serial number sum (spec.md
// §4.4), and every ciphered response advances it; a session that never
// sees SET_CHIPER_KEYS never unlocks anyway.
func NewTokenState(key *KeyDefinition) *TokenState {
	return &TokenState{
		Key:  key,
		Info: ParseKeyInfo(key.EDStruct),
	}
}
