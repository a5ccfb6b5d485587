package hasp

import (
	"bytes"
	"testing"
)

func TestStreamCipherApplyIsInvolution(t *testing.T) {
	plain := []byte("HASP HL dongle emulation payload")

	k1, k2 := uint16(0x1234), uint16(0xA0CB)
	enc := append([]byte(nil), plain...)
	streamCipherApply(enc, &k1, &k2)

	if bytes.Equal(enc, plain) {
		t.Fatalf("streamCipherApply did not change the buffer")
	}

	k1, k2 = uint16(0x1234), uint16(0xA0CB)
	dec := append([]byte(nil), enc...)
	streamCipherApply(dec, &k1, &k2)

	if !bytes.Equal(dec, plain) {
		t.Fatalf("streamCipherApply(streamCipherApply(x)) = %x, want %x", dec, plain)
	}
}

func TestStreamCipherApplyMutatesKey1Only(t *testing.T) {
	k1, k2 := uint16(0x1111), uint16(0x2222)
	buf := make([]byte, 4)
	streamCipherApply(buf, &k1, &k2)

	if k2 != 0x2222 {
		t.Fatalf("key2 changed to %#04x, want unchanged 0x2222", k2)
	}
	if k1 == 0x1111 {
		t.Fatalf("key1 unchanged, expected keystream to advance it")
	}
}
