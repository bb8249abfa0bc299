package config

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes written in configuration files as "64MiB",
// "1 GB" or a plain number.
type ByteSize uint64

// ParseByteSize parses SI (kB, MB) and IEC (KiB, MiB) suffixes.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

var iecUnits = []struct {
	size uint64
	name string
}{
	{humanize.TiByte, "TiB"},
	{humanize.GiByte, "GiB"},
	{humanize.MiByte, "MiB"},
	{humanize.KiByte, "KiB"},
}

// String returns the largest IEC unit that represents b exactly.
func (b ByteSize) String() string {
	n := uint64(b)
	for _, u := range iecUnits {
		if n != 0 && n%u.size == 0 {
			return fmt.Sprintf("%d%s", n/u.size, u.name)
		}
	}
	return fmt.Sprintf("%d", n)
}

// Human returns an approximate, human friendly form such as "1.5 GiB".
func (b ByteSize) Human() string {
	return humanize.IBytes(uint64(b))
}

func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}

func (b *ByteSize) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseByteSize(n.Value)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// JSONSchema describes ByteSize as a size string or a byte count.
func (ByteSize) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string", Pattern: `^\s*[0-9.]+\s*[a-zA-Z]*\s*$`},
			{Type: "integer", Minimum: "0"},
		},
		Description: "size in bytes, e.g. 64MiB",
	}
}
