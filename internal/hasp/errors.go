// HASP HL token core
// Cryptographic and protocol state machine for an emulated HASP HL dongle.
package hasp

import "errors"

// Guard failures collapse to the wire-level ERROR status (spec.md §7); these
// sentinels are for callers that want to know *why* without inspecting the
// response bytes.
var (
	ErrNotInitialized      = errors.New("hasp: cipher keys not set")
	ErrKeyNotOpened        = errors.New("hasp: password not checked")
	ErrOutOfRange          = errors.New("hasp: offset out of range")
	ErrUnsupportedFunction = errors.New("hasp: unsupported major function")
)
