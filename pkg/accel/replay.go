package accel

import (
	"encoding/json"
	"fmt"
	"io"
)

// Phase is the point in the framework lifecycle at which a configuration
// method may run.
type Phase int

const (
	// PhaseStartup methods run after registration and before Start.
	PhaseStartup Phase = iota
	// PhaseRuntime methods run after Start.
	PhaseRuntime
)

func (p Phase) String() string {
	if p == PhaseStartup {
		return "startup"
	}
	return "runtime"
}

// RawConfigEntry is a ConfigEntry read back from a dump. Params are
// decoded by the method handler.
type RawConfigEntry struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// LoadConfigEntries reads a JSON array written by WriteConfig.
func LoadConfigEntries(r io.Reader) ([]RawConfigEntry, error) {
	var entries []RawConfigEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: config dump: %v", ErrInvalidArgument, err)
	}
	return entries, nil
}

// MethodHandler applies one entry's params to fw.
type MethodHandler func(fw *Framework, params json.RawMessage) error

type method struct {
	phase Phase
	h     MethodHandler
}

// Replayer applies configuration entries by method name. The framework's
// own methods are built in; modules contribute theirs through Handle.
type Replayer struct {
	methods map[string]method
}

// NewReplayer returns a Replayer that knows accel_assign_opc (startup)
// and accel_crypto_key_create (runtime).
func NewReplayer() *Replayer {
	r := &Replayer{methods: make(map[string]method)}
	r.Handle(MethodAssignOpcode, PhaseStartup, replayAssignOpcode)
	r.Handle(MethodCryptoKeyCreate, PhaseRuntime, replayCryptoKeyCreate)
	return r
}

// Handle registers h for name, replacing any earlier handler.
func (r *Replayer) Handle(name string, phase Phase, h MethodHandler) {
	r.methods[name] = method{phase: phase, h: h}
}

// Apply runs, in order, every entry whose method belongs to phase. An
// unknown method fails the whole replay before anything is applied.
func (r *Replayer) Apply(fw *Framework, entries []RawConfigEntry, phase Phase) error {
	for _, e := range entries {
		if _, ok := r.methods[e.Method]; !ok {
			return &Error{Op: "replay", Err: fmt.Errorf("%w: unknown method %q", ErrNotSupported, e.Method)}
		}
	}
	for _, e := range entries {
		m := r.methods[e.Method]
		if m.phase != phase {
			continue
		}
		if err := m.h(fw, e.Params); err != nil {
			return fmt.Errorf("replay %s: %w", e.Method, err)
		}
	}
	return nil
}

func replayAssignOpcode(fw *Framework, params json.RawMessage) error {
	var p AssignOpcodeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	op, err := ParseOpcode(p.Opname)
	if err != nil {
		return err
	}
	return fw.AssignOpcode(op, p.Module)
}

func replayCryptoKeyCreate(fw *Framework, params json.RawMessage) error {
	var d CryptoKeyDump
	if err := json.Unmarshal(params, &d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	_, err := fw.CreateCryptoKey(d.Module, CryptoKeyParams{
		Name:   d.Name,
		Cipher: d.Cipher,
		Key:    d.Key,
		Key2:   d.Key2,
		Driver: d.Driver,
	})
	return err
}
