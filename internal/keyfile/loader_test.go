package keyfile

import (
	"os"
	"path/filepath"
	"testing"
)

func writeKeyFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "key.json")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	return path
}

func TestLoadSingleHexStringFields(t *testing.T) {
	path := writeKeyFile(t, `{
  "HASP Key": {
    "Name": "Demo",
    "Created": "2020-01-01",
    "Password": "0X12345678",
    "Type": "0X03",
    "Memory": "0X20",
    "SN": "0X0F121A12",
    "Option": "0X01"
  }
}`)

	kd, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if kd.Name != "Demo" || kd.Created != "2020-01-01" {
		t.Fatalf("Name/Created = %q/%q, want Demo/2020-01-01", kd.Name, kd.Created)
	}
	if want := uint32(0x56781234); kd.Password != want {
		t.Fatalf("Password = %#08x, want word-swapped %#08x", kd.Password, want)
	}
	if kd.KeyType != 3 {
		t.Fatalf("KeyType = %#02x, want 3", kd.KeyType)
	}
	if kd.MemoryType != 0x20 {
		t.Fatalf("MemoryType = %#02x, want 0x20", kd.MemoryType)
	}
	if kd.NetMemory[0] != 0x12 || kd.NetMemory[1] != 0x1A || kd.NetMemory[2] != 0x12 || kd.NetMemory[3] != 0x0F {
		t.Fatalf("NetMemory[0:4] = % x, want serial little-endian of 0X0F121A12", kd.NetMemory[0:4])
	}
}

func TestLoadArrayOfHexStringsField(t *testing.T) {
	path := writeKeyFile(t, `{
  "HASP Key": {
    "Password": "0X00000000",
    "Type": "0X01",
    "Memory": "0X01",
    "SN": "0X00000001",
    "SecTable": ["0X01", "0X02", "0X03", "0X04", "0X05", "0X06", "0X07", "0X08"],
    "Option": "0X01"
  }
}`)

	kd, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	if kd.SecTable != want {
		t.Fatalf("SecTable = %v, want supplied table %v (Options[0]==1)", kd.SecTable, want)
	}
}

func TestLoadDefaultsNameAndCreated(t *testing.T) {
	path := writeKeyFile(t, `{
  "HASP Key": {
    "Password": "0X00000000",
    "Type": "0X01",
    "Memory": "0X01",
    "SN": "0X00000000"
  }
}`)

	kd, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if kd.Name != "None" {
		t.Fatalf("Name = %q, want default \"None\"", kd.Name)
	}
	if kd.Created != "Not set" {
		t.Fatalf("Created = %q, want default \"Not set\"", kd.Created)
	}
}

func TestLoadNetMemoryDefaultsByMemoryType(t *testing.T) {
	netA := writeKeyFile(t, `{
  "HASP Key": {
    "Password": "0X00000000",
    "Type": "0X01",
    "Memory": "0X04",
    "SN": "0X00000000"
  }
}`)
	kd, err := Load(netA)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if kd.NetMemory[10] != 0xFF || kd.NetMemory[11] != 0xFF || kd.NetMemory[14] != 0xFE {
		t.Fatalf("NetMemory[10,11,14] = %#02x,%#02x,%#02x, want 0xFF,0xFF,0xFE for MemoryType==4",
			kd.NetMemory[10], kd.NetMemory[11], kd.NetMemory[14])
	}

	other := writeKeyFile(t, `{
  "HASP Key": {
    "Password": "0X00000000",
    "Type": "0X01",
    "Memory": "0X20",
    "SN": "0X00000000"
  }
}`)
	kd2, err := Load(other)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if kd2.NetMemory[10] != 0 || kd2.NetMemory[11] != 0 || kd2.NetMemory[14] != 0 {
		t.Fatalf("NetMemory[10,11,14] = %#02x,%#02x,%#02x, want 0,0,0 for MemoryType!=4",
			kd2.NetMemory[10], kd2.NetMemory[11], kd2.NetMemory[14])
	}
	if kd2.NetMemory[4] != 0xFF || kd2.NetMemory[15] != 0xFF {
		t.Fatalf("NetMemory[4]/[15] = %#02x/%#02x, want 0xFF fill elsewhere", kd2.NetMemory[4], kd2.NetMemory[15])
	}
}

func TestLoadSecTableWithoutSuppliedOptionDerivesFromPassword(t *testing.T) {
	path := writeKeyFile(t, `{
  "HASP Key": {
    "Password": "0X78563412",
    "Type": "0X01",
    "Memory": "0X01",
    "SN": "0X00000000",
    "SecTable": ["0X01", "0X02", "0X03", "0X04", "0X05", "0X06", "0X07", "0X08"]
  }
}`)

	kd, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	supplied := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	if kd.SecTable == supplied {
		t.Fatalf("SecTable used the supplied table despite Options[0] != 1")
	}
}

func TestLoadComputesStableFingerprint(t *testing.T) {
	contents := `{
  "HASP Key": {
    "Password": "0X00000000",
    "Type": "0X01",
    "Memory": "0X01",
    "SN": "0X00000000"
  }
}`
	path1 := writeKeyFile(t, contents)
	path2 := writeKeyFile(t, contents)

	kd1, err := Load(path1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	kd2, err := Load(path2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if kd1.Fingerprint == "" {
		t.Fatalf("Fingerprint is empty")
	}
	if kd1.Fingerprint != kd2.Fingerprint {
		t.Fatalf("Fingerprint differs for identical file contents: %q != %q", kd1.Fingerprint, kd2.Fingerprint)
	}

	other := writeKeyFile(t, `{
  "HASP Key": {
    "Password": "0X00000001",
    "Type": "0X01",
    "Memory": "0X01",
    "SN": "0X00000000"
  }
}`)
	kd3, err := Load(other)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if kd3.Fingerprint == kd1.Fingerprint {
		t.Fatalf("Fingerprint did not change for different file contents")
	}
}

func TestLoadRejectsInvalidHex(t *testing.T) {
	path := writeKeyFile(t, `{
  "HASP Key": {
    "Password": "0XZZZZ",
    "Type": "0X01",
    "Memory": "0X01",
    "SN": "0X00000000"
  }
}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("Load succeeded on invalid hex Password, want error")
	}
}
