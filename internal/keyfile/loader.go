// Package keyfile loads token definitions from the JSON token-definition
// file (spec.md §6) into hasp.KeyDefinition values.
package keyfile

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/blake2b"

	"github.com/hasp-go/haspkeyd/internal/hasp"
)

// document mirrors the on-disk "HASP Key" object. Hex-encoded fields are
// kept as raw strings/arrays here and converted explicitly in Load, since
// the source format mixes a single hex string ("0X1234") and arrays of
// hex strings for the same logical field across different keys.
type document struct {
	HASPKey struct {
		Name      string    `json:"Name"`
		Created   string    `json:"Created"`
		Password  string    `json:"Password"`
		Type      string    `json:"Type"`
		Memory    string    `json:"Memory"`
		SN        string    `json:"SN"`
		Option    hexBytes  `json:"Option"`
		SecTable  *hexBytes `json:"SecTable"`
		NetMemory *hexBytes `json:"NetMemory"`
		Data      hexBytes  `json:"Data"`
		EDStruct  hexBytes  `json:"EDStruct"`
	} `json:"HASP Key"`
}

// hexBytes unmarshals either a single "0X.." hex string or an array of
// them into a flat byte slice, matching LoadKey.c's GetHexByteArray which
// accepts both forms.
type hexBytes []byte

func (h *hexBytes) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		b, err := parseHexList(single)
		if err != nil {
			return err
		}
		*h = b
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("keyfile: hex field is neither a string nor an array of strings: %w", err)
	}

	var out []byte
	for _, s := range list {
		b, err := parseHexList(s)
		if err != nil {
			return err
		}
		out = append(out, b...)
	}
	*h = out
	return nil
}

// parseHexList parses a comma-separated list of "0X.." byte values.
func parseHexList(s string) ([]byte, error) {
	var out []byte
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToUpper(tok), "0X"), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("keyfile: invalid hex byte %q: %w", tok, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

func parseHexLong(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(strings.TrimPrefix(strings.ToUpper(s), "0X"), 16, 64)
}

// Load reads and parses one token-definition file into a hasp.KeyDefinition
// (spec.md §6 "Token-definition file").
func Load(path string) (*hasp.KeyDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keyfile: read %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("keyfile: parse %s: %w", path, err)
	}
	key := doc.HASPKey

	sum := blake2b.Sum256(raw)

	kd := &hasp.KeyDefinition{
		Name:        key.Name,
		Created:     key.Created,
		Fingerprint: hex.EncodeToString(sum[:8]),
	}
	if kd.Name == "" {
		kd.Name = "None"
	}
	if kd.Created == "" {
		kd.Created = "Not set"
	}

	password, err := parseHexLong(key.Password)
	if err != nil {
		return nil, fmt.Errorf("keyfile: Password: %w", err)
	}
	kd.Password = uint32(password>>16) | uint32(password<<16)

	keyType, err := parseHexLong(key.Type)
	if err != nil {
		return nil, fmt.Errorf("keyfile: Type: %w", err)
	}
	kd.KeyType = byte(keyType)

	memoryType, err := parseHexLong(key.Memory)
	if err != nil {
		return nil, fmt.Errorf("keyfile: Memory: %w", err)
	}
	kd.MemoryType = byte(memoryType)

	sn, err := parseHexLong(key.SN)
	if err != nil {
		return nil, fmt.Errorf("keyfile: SN: %w", err)
	}

	copy(kd.Options[:], key.Option)

	var supplied *hasp.SecureTable
	if key.SecTable != nil {
		var st hasp.SecureTable
		copy(st[:], *key.SecTable)
		supplied = &st
	}
	kd.ResolveSecureTable(supplied)

	kd.NetMemory[0] = byte(sn)
	kd.NetMemory[1] = byte(sn >> 8)
	kd.NetMemory[2] = byte(sn >> 16)
	kd.NetMemory[3] = byte(sn >> 24)

	if key.NetMemory != nil {
		n := copy(kd.NetMemory[4:], *key.NetMemory)
		_ = n
	} else {
		for i := 4; i < len(kd.NetMemory); i++ {
			kd.NetMemory[i] = 0xFF
		}
		if kd.MemoryType == 4 {
			kd.NetMemory[10] = 0xFF
			kd.NetMemory[11] = 0xFF
			kd.NetMemory[14] = 0xFE
		} else {
			kd.NetMemory[10] = 0
			kd.NetMemory[11] = 0
			kd.NetMemory[14] = 0
		}
	}

	copy(kd.Memory[:], key.Data)
	copy(kd.EDStruct[:], key.EDStruct)

	return kd, nil
}
