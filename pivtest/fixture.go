package pivtest

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture describes the starting state of a virtual Applet, decoded from a
// pivfixture YAML file with yaml.v3 and KnownFields(true), so a typo'd
// field fails fast instead of being silently ignored.
type Fixture struct {
	ManagementKey     string            `yaml:"management_key"`      // hex
	ManagementKeyType string            `yaml:"management_key_type"` // "3des", "aes128", "aes192", "aes256"
	PIN               string            `yaml:"pin"`
	PINRetries        *int              `yaml:"pin_retries"`
	PUK               string            `yaml:"puk"`
	PUKRetries        *int              `yaml:"puk_retries"`
	DataObjects       map[string]string `yaml:"data_objects"` // object-id hex -> wrapped-value hex
}

// LoadFixture reads and decodes a pivfixture YAML file at path.
func LoadFixture(path string) (*Fixture, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pivtest: read fixture: %w", err)
	}
	return DecodeFixture(content)
}

// DecodeFixture decodes a pivfixture YAML document from content.
func DecodeFixture(content []byte) (*Fixture, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("pivtest: parse fixture yaml: %w", err)
	}
	return &f, nil
}

// NewAppletFromFixture builds an Applet whose starting state matches f,
// falling back to NewApplet's factory defaults for any field f leaves zero.
func NewAppletFromFixture(f *Fixture) (*Applet, error) {
	a := NewApplet()

	if f.ManagementKeyType != "" {
		mkt, err := managementKeyTypeByte(f.ManagementKeyType)
		if err != nil {
			return nil, err
		}
		a.mgmtKeyType = mkt
	}
	if f.ManagementKey != "" {
		key, err := hex.DecodeString(f.ManagementKey)
		if err != nil {
			return nil, fmt.Errorf("pivtest: management_key: %w", err)
		}
		if len(key) != keyLenFor(a.mgmtKeyType) {
			return nil, fmt.Errorf("pivtest: management_key: unexpected length %d for key type %q", len(key), f.ManagementKeyType)
		}
		a.mgmtKey = key
	}
	if f.PIN != "" {
		a.pin = f.PIN
	}
	if f.PINRetries != nil {
		a.pinRetries, a.pinTotal = *f.PINRetries, *f.PINRetries
	}
	if f.PUK != "" {
		a.puk = f.PUK
	}
	if f.PUKRetries != nil {
		a.pukRetries, a.pukTotal = *f.PUKRetries, *f.PUKRetries
	}
	for idHex, valueHex := range f.DataObjects {
		value, err := hex.DecodeString(valueHex)
		if err != nil {
			return nil, fmt.Errorf("pivtest: data_objects[%s]: %w", idHex, err)
		}
		a.dataObjects[normalizeHexKey(idHex)] = value
	}
	return a, nil
}

func managementKeyTypeByte(name string) (byte, error) {
	switch name {
	case "3des":
		return 0x03, nil
	case "aes128":
		return 0x08, nil
	case "aes192":
		return 0x0A, nil
	case "aes256":
		return 0x0C, nil
	default:
		return 0, fmt.Errorf("pivtest: unknown management_key_type %q", name)
	}
}

func keyLenFor(mkt byte) int {
	switch mkt {
	case 0x03, 0x0A: // 3DES, AES-192
		return 24
	case 0x08:
		return 16
	case 0x0C:
		return 32
	default:
		return 0
	}
}

func normalizeHexKey(s string) string {
	b, err := hex.DecodeString(s)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%X", b)
}
