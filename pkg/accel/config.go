package accel

import (
	"encoding/json"
	"io"
)

// Configuration method names written by WriteConfig.
const (
	MethodAssignOpcode    = "accel_assign_opc"
	MethodCryptoKeyCreate = "accel_crypto_key_create"
)

// ConfigEntry is one replayable configuration call.
type ConfigEntry struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// AssignOpcodeParams are the params of an accel_assign_opc entry.
type AssignOpcodeParams struct {
	Opname string `json:"opname"`
	Module string `json:"module"`
}

// ConfigEntries returns, in order, every module's own entries, the
// explicit opcode overrides, and one creation entry per live crypto key.
func (fw *Framework) ConfigEntries() []ConfigEntry {
	entries := []ConfigEntry{}

	for _, m := range fw.modules {
		if d, ok := m.(ConfigDumper); ok {
			entries = append(entries, d.ConfigEntries()...)
		}
	}

	for op, name := range fw.overrides {
		if name == "" {
			continue
		}
		entries = append(entries, ConfigEntry{
			Method: MethodAssignOpcode,
			Params: AssignOpcodeParams{Opname: Opcode(op).String(), Module: name},
		})
	}

	for _, k := range fw.CryptoKeys() {
		if d, ok := k.Dump(); ok {
			entries = append(entries, ConfigEntry{Method: MethodCryptoKeyCreate, Params: d})
		}
	}
	return entries
}

// WriteConfig writes ConfigEntries as an indented JSON array. The output
// contains key material.
func (fw *Framework) WriteConfig(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fw.ConfigEntries())
}
