package store

import (
	"bytes"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"
)

func openTestEEPROM(t *testing.T) *EEPROM {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eeprom.db")
	e, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestLoadMissingSerialReturnsNotFound(t *testing.T) {
	e := openTestEEPROM(t)

	_, found, err := e.Load([4]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatalf("found = true for a serial that was never saved")
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	e := openTestEEPROM(t)

	serial := [4]byte{0x12, 0x1A, 0x12, 0x0F}
	snap := Snapshot{
		ChiperKey1:    0x1234,
		ChiperKey2:    0xA0CB,
		EncodedStatus: 0x07,
		IsInitDone:    true,
		IsKeyOpened:   true,
	}
	snap.Memory[0] = 0xBE
	snap.Memory[1] = 0xEF

	if err := e.Save(serial, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, found, err := e.Load(serial)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatalf("found = false after Save")
	}
	if got != snap {
		t.Fatalf("Load() = %+v, want %+v", got, snap)
	}
}

func TestSaveOverwritesPriorSnapshot(t *testing.T) {
	e := openTestEEPROM(t)
	serial := [4]byte{1, 1, 1, 1}

	if err := e.Save(serial, Snapshot{ChiperKey1: 1}); err != nil {
		t.Fatalf("Save #1: %v", err)
	}
	if err := e.Save(serial, Snapshot{ChiperKey1: 2}); err != nil {
		t.Fatalf("Save #2: %v", err)
	}

	got, found, err := e.Load(serial)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatalf("found = false")
	}
	if got.ChiperKey1 != 2 {
		t.Fatalf("ChiperKey1 = %#04x, want 2 (second save should win)", got.ChiperKey1)
	}
}

func TestEncryptedStoreRoundTripsAndHidesPlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sealed.db")
	e, err := Open(path, WithEncryptionKey("correct horse battery staple"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })

	serial := [4]byte{9, 9, 9, 9}
	snap := Snapshot{ChiperKey1: 0xDEAD, ChiperKey2: 0xBEEF, IsKeyOpened: true}
	snap.Memory[0] = 0x42

	if err := e.Save(serial, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	err = e.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(tokensBucket).Get(serial[:])
		if bytes.Contains(raw, []byte(`"chiperKey1"`)) {
			t.Errorf("stored row holds the snapshot JSON in the clear")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	got, found, err := e.Load(serial)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found || got != snap {
		t.Fatalf("Load() = %+v, found=%v, want %+v, found=true", got, found, snap)
	}
}

func TestEncryptedStoreRejectsWrongKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sealed.db")
	serial := [4]byte{1, 2, 3, 4}

	e1, err := Open(path, WithEncryptionKey("passphrase-one"))
	if err != nil {
		t.Fatalf("Open #1: %v", err)
	}
	if err := e1.Save(serial, Snapshot{ChiperKey1: 7}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := e1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2, err := Open(path, WithEncryptionKey("passphrase-two"))
	if err != nil {
		t.Fatalf("Open #2: %v", err)
	}
	t.Cleanup(func() { _ = e2.Close() })

	if _, _, err := e2.Load(serial); err == nil {
		t.Fatalf("Load with the wrong passphrase succeeded, want an authentication error")
	}
}

func TestDistinctSerialsDoNotCollide(t *testing.T) {
	e := openTestEEPROM(t)

	a := [4]byte{1, 0, 0, 0}
	b := [4]byte{2, 0, 0, 0}

	if err := e.Save(a, Snapshot{ChiperKey1: 0xAAAA}); err != nil {
		t.Fatalf("Save a: %v", err)
	}
	if err := e.Save(b, Snapshot{ChiperKey1: 0xBBBB}); err != nil {
		t.Fatalf("Save b: %v", err)
	}

	gotA, _, err := e.Load(a)
	if err != nil {
		t.Fatalf("Load a: %v", err)
	}
	gotB, _, err := e.Load(b)
	if err != nil {
		t.Fatalf("Load b: %v", err)
	}
	if gotA.ChiperKey1 != 0xAAAA || gotB.ChiperKey1 != 0xBBBB {
		t.Fatalf("cross-serial collision: a=%#04x b=%#04x", gotA.ChiperKey1, gotB.ChiperKey1)
	}
}
