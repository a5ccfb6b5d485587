// Package transport defines the thin adapter contract between a USB host
// controller (real or emulated) and the core dispatch loop (spec.md §6,
// §12), plus a loopback driver for local testing.
package transport

import "context"

// Request is one inbound control transfer addressed to the core
// (bmRequestType == 0xC0): majorFn/p1/p2/p3 map directly onto bRequest,
// wValue, wIndex, wLength.
type Request struct {
	MajorFn uint8
	P1      uint16
	P2      uint16
	P3      uint16
	OutCap  uint32
}

// Adapter is implemented by a transport driver. Fetch blocks until a
// request is available (or ctx is done) and returns it along with the
// mutable response buffer of wLength bytes to fill. Submit commits n
// written bytes of that buffer back to the host.
//
// The dispatch loop that drives an Adapter is single-threaded and
// non-reentrant (spec.md §5): Fetch/Submit for one token are never called
// concurrently with each other.
type Adapter interface {
	Fetch(ctx context.Context) (*Request, []byte, error)
	Submit(ctx context.Context, n int) error
}
