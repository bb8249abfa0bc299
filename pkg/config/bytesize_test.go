package config

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    ByteSize
		wantErr bool
	}{
		{"", 0, false},
		{"4096", 4096, false},
		{"64MiB", 64 << 20, false},
		{"1 GiB", 1 << 30, false},
		{"1GB", 1000 * 1000 * 1000, false},
		{"1.5KiB", 1536, false},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseByteSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseByteSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestByteSizeString(t *testing.T) {
	tests := map[ByteSize]string{
		0:                 "0",
		512:               "512",
		4096:              "4KiB",
		64 << 20:          "64MiB",
		3 << 30:           "3GiB",
		(1 << 20) + 1:     "1048577",
		ByteSize(1 << 40): "1TiB",
	}
	for in, want := range tests {
		if got := in.String(); got != want {
			t.Errorf("ByteSize(%d).String() = %q, want %q", uint64(in), got, want)
		}
		back, err := ParseByteSize(want)
		if err != nil || back != in {
			t.Errorf("ParseByteSize(%q) = %d, %v; want %d", want, back, err, uint64(in))
		}
	}

	if h := ByteSize(1536 << 20).Human(); h != "1.5 GiB" {
		t.Errorf("Human() = %q", h)
	}
}

func TestJSONSchema(t *testing.T) {
	out, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("Schema is not valid JSON: %v", err)
	}
	if doc["title"] != "dittoaccel configuration" {
		t.Errorf("Unexpected title: %v", doc["title"])
	}
	for _, prop := range []string{`"accel"`, `"bdevs"`, `"opcode_overrides"`, `"base_bdev"`, `"max_tasks_per_channel"`} {
		if !strings.Contains(string(out), prop) {
			t.Errorf("Schema missing property %s", prop)
		}
	}
}
