// Package store persists the mutable, per-token EEPROM state (memory[],
// chiperKey1/2, encodedStatus, isInitDone/isKeyOpened) across daemon
// restarts, keyed by serial number, using bbolt.
package store

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"go.etcd.io/bbolt"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

var tokensBucket = []byte("Tokens")

// Option configures an EEPROM at Open time.
type Option func(*EEPROM)

// WithEncryptionKey enables at-rest encryption of snapshot rows. passphrase
// is stretched into a chacha20poly1305 key via HKDF (SHA3-256), so the
// EEPROM file itself never holds cipher keys or memory contents in the
// clear even if it leaks or is copied off the host.
func WithEncryptionKey(passphrase string) Option {
	return func(e *EEPROM) {
		if passphrase == "" {
			return
		}
		kdf := hkdf.New(sha3.New256, []byte(passphrase), nil, []byte("haspkeyd/eeprom"))
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := io.ReadFull(kdf, key); err != nil {
			panic(fmt.Sprintf("store: derive encryption key: %v", err))
		}
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			panic(fmt.Sprintf("store: init AEAD: %v", err))
		}
		e.aead = aead
	}
}

// Snapshot is the persisted slice of TokenState that survives a restart.
// The KeyDefinition itself is reloaded from the token-definition file each
// time; only what a live session actually mutates is kept here.
type Snapshot struct {
	Memory        [512]byte `json:"memory"`
	ChiperKey1    uint16    `json:"chiperKey1"`
	ChiperKey2    uint16    `json:"chiperKey2"`
	EncodedStatus byte      `json:"encodedStatus"`
	IsInitDone    bool      `json:"isInitDone"`
	IsKeyOpened   bool      `json:"isKeyOpened"`
}

// EEPROM is a bbolt-backed store of token snapshots, one row per serial
// number. When an Option supplies an encryption key, rows are sealed with
// an AEAD before they reach disk.
type EEPROM struct {
	db   *bbolt.DB
	aead cipher.AEAD
}

// Open opens (creating if needed) the EEPROM database at path.
func Open(path string, opts ...Option) (*EEPROM, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tokensBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}

	e := &EEPROM{db: db}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close closes the underlying database.
func (e *EEPROM) Close() error {
	return e.db.Close()
}

// Load returns the persisted snapshot for serial, and whether one existed.
func (e *EEPROM) Load(serial [4]byte) (Snapshot, bool, error) {
	var snap Snapshot
	var found bool

	err := e.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(tokensBucket).Get(serial[:])
		if v == nil {
			return nil
		}
		found = true

		plain, err := e.open(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(plain, &snap)
	})
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("store: load %x: %w", serial, err)
	}
	return snap, found, nil
}

// open reverses seal: a no-op when no AEAD is configured, otherwise it
// splits off the leading nonce and authenticates+decrypts the remainder.
func (e *EEPROM) open(v []byte) ([]byte, error) {
	if e.aead == nil {
		return v, nil
	}
	ns := e.aead.NonceSize()
	if len(v) < ns {
		return nil, fmt.Errorf("sealed row shorter than nonce size %d", ns)
	}
	return e.aead.Open(nil, v[:ns], v[ns:], nil)
}

// seal is a no-op when no AEAD is configured, otherwise it prepends a fresh
// random nonce and authenticates+encrypts data.
func (e *EEPROM) seal(data []byte) ([]byte, error) {
	if e.aead == nil {
		return data, nil
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, data, nil), nil
}

// Save persists snap under serial, overwriting any prior snapshot.
func (e *EEPROM) Save(serial [4]byte, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}

	sealed, err := e.seal(data)
	if err != nil {
		return fmt.Errorf("store: seal snapshot: %w", err)
	}

	return e.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(tokensBucket).Put(serial[:], sealed)
	})
}
