package hasp

import "testing"

func TestSecureTableBitAddressing(t *testing.T) {
	st := SecureTable{0b10000000, 0, 0, 0, 0, 0, 0, 0b00000001}

	if got := st.Bit(0); got != 1 {
		t.Fatalf("bit(0) = %d, want 1", got)
	}
	if got := st.Bit(7); got != 0 {
		t.Fatalf("bit(7) = %d, want 0", got)
	}
	if got := st.Bit(63); got != 1 {
		t.Fatalf("bit(63) = %d, want 1", got)
	}
	if got := st.Bit(56); got != 0 {
		t.Fatalf("bit(56) = %d, want 0", got)
	}
}

func TestSecureTableReversed(t *testing.T) {
	st := SecureTable{1, 2, 3, 4, 5, 6, 7, 8}
	rev := st.Reversed()
	want := [8]byte{8, 7, 6, 5, 4, 3, 2, 1}
	if rev != want {
		t.Fatalf("Reversed() = %v, want %v", rev, want)
	}
}

func TestDeriveSecureTableDeterministic(t *testing.T) {
	a := DeriveSecureTable(0x12345678)
	b := DeriveSecureTable(0x12345678)
	if a != b {
		t.Fatalf("DeriveSecureTable not deterministic: %v != %v", a, b)
	}

	c := DeriveSecureTable(0x87654321)
	if a == c {
		t.Fatalf("DeriveSecureTable(%x) == DeriveSecureTable(%x), want distinct tables", 0x12345678, 0x87654321)
	}
}
