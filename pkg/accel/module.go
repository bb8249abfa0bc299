package accel

// SoftwareModuleName is the name of the fallback module. It is always
// registered first and must support every opcode.
const SoftwareModuleName = "software"

// Module is an acceleration backend.
//
// Init and Fini run on the framework's lifecycle goroutine. GetIOChannel is
// called once per opcode slot for every framework channel, from the
// goroutine creating that channel; modules that want one sub-channel per
// framework channel key their state on owner and reference-count it.
// Submit is called from the goroutine owning the framework channel.
type Module interface {
	// Name returns the unique module name.
	Name() string

	// Init prepares the module. It runs once, in registration order, during
	// Framework.Start.
	Init() error

	// Fini releases module resources and calls done when finished. done
	// may be called from any goroutine.
	Fini(done func())

	// SupportsOpcode reports whether the module can execute op.
	SupportsOpcode(op Opcode) bool

	// GetIOChannel returns a sub-channel for use by owner.
	GetIOChannel(owner *Channel) (ModuleChannel, error)

	// Submit accepts t for execution on ch. A nil return means the module
	// now owns the task and will complete it exactly once through
	// Task.Complete. A non-nil return means the task was not accepted and
	// must not be completed by the module.
	Submit(ch ModuleChannel, t *Task) error
}

// ModuleChannel is a module's per-channel execution context. Implementations
// must be comparable (pointer types) so the framework can poll each one
// once.
type ModuleChannel interface {
	// Poll delivers completed tasks by calling Task.Complete and returns
	// the number completed. It is called only from the owning goroutine.
	Poll() int

	// Put releases the sub-channel. Called once per GetIOChannel.
	Put()
}

// CryptoKeyModule is implemented by modules that can own crypto keys.
type CryptoKeyModule interface {
	// CryptoKeyInit validates the key and prepares module private state in
	// key.Priv. On error the framework discards the key.
	CryptoKeyInit(key *CryptoKey) error

	// CryptoKeyDeinit releases module private state. Key material is wiped
	// by the framework afterwards.
	CryptoKeyDeinit(key *CryptoKey)
}

// ContextSizer is implemented by modules that need per-task scratch space.
// Every task carries Task.ModuleCtx of the largest requested size.
type ContextSizer interface {
	CtxSize() int
}

// ConfigDumper is implemented by modules with configuration that must be
// replayed on restart.
type ConfigDumper interface {
	ConfigEntries() []ConfigEntry
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	Name    string   `json:"module"`
	Opcodes []Opcode `json:"supported_ops"`
}

func supportedOpcodes(m Module) []Opcode {
	var ops []Opcode
	for op := Opcode(0); op < OpcodeCount; op++ {
		if m.SupportsOpcode(op) {
			ops = append(ops, op)
		}
	}
	return ops
}
