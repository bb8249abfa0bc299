// Package accel is the acceleration dispatch framework. It keeps an ordered
// registry of backend modules, assigns every operation kind to exactly one
// module at start, hands out per-goroutine channels with a fixed task pool,
// and owns the crypto keyring used by encrypt and decrypt.
//
// Typical use:
//
//	fw := accel.New()
//	_ = software.Register(fw)
//	_ = dma.Register(fw, dma.Config{Workers: 4})
//	if err := fw.Start(); err != nil { ... }
//
//	ch, _ := fw.GetIOChannel()
//	defer ch.Put()
//	_ = ch.SubmitCopy(dst, src, 0, func(err error) { ... })
//	_ = ch.Drain(ctx)
package accel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/marmos91/dittoaccel/internal/logger"
	"github.com/marmos91/dittoaccel/pkg/metrics"
)

// Framework is the acceleration framework context. Create it with New,
// register modules, then Start. Tear it down with Finish or Shutdown.
type Framework struct {
	// modules is mutated only before Start and during Finish.
	modules []Module
	inited  int

	// table is published once by Start and cleared by Finish; channels
	// take a copy at creation so submission never reads it.
	table     atomic.Pointer[assignmentTable]
	overrides [OpcodeCount]string

	started   atomic.Bool
	finishing atomic.Bool

	maxTasks    int
	taskCtxSize int
	metrics     metrics.AccelMetrics

	keyMu      sync.Mutex
	keys       []*CryptoKey
	pending    map[string]struct{}
	keysClosed bool
	keyCreates sync.WaitGroup

	chMu         sync.Mutex
	liveChannels int
	unregistered bool
	drained      chan struct{}
}

type assignmentTable [OpcodeCount]Module

// Option configures a Framework.
type Option func(*Framework)

// WithMaxTasksPerChannel overrides the task pool capacity of new channels.
func WithMaxTasksPerChannel(n int) Option {
	return func(fw *Framework) {
		if n > 0 {
			fw.maxTasks = n
		}
	}
}

// WithMetrics enables metrics collection. A nil value disables it.
func WithMetrics(m metrics.AccelMetrics) Option {
	return func(fw *Framework) {
		fw.metrics = m
	}
}

// New returns an empty, unstarted framework.
func New(opts ...Option) *Framework {
	fw := &Framework{
		maxTasks: MaxTasksPerChannel,
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(fw)
	}
	return fw
}

// Register adds m to the registry. The software module goes to the head of
// the registration order and every other module to the tail, so hardware
// modules win the default opcode assignment.
func (fw *Framework) Register(m Module) error {
	if fw.started.Load() || fw.finishing.Load() {
		return &Error{Op: "register", Module: m.Name(), Err: ErrStarted}
	}
	for _, existing := range fw.modules {
		if existing.Name() == m.Name() {
			logger.Error("accel module already registered", logger.KeyModule, m.Name())
			return &Error{Op: "register", Module: m.Name(), Err: ErrExists}
		}
	}

	if m.Name() == SoftwareModuleName {
		fw.modules = append([]Module{m}, fw.modules...)
	} else {
		fw.modules = append(fw.modules, m)
	}
	logger.Debug("accel module registered", logger.KeyModule, m.Name())
	return nil
}

// FindModule returns the registered module called name.
func (fw *Framework) FindModule(name string) (Module, error) {
	for _, m := range fw.modules {
		if m.Name() == name {
			return m, nil
		}
	}
	return nil, &Error{Op: "find_module", Module: name, Err: ErrNotFound}
}

// Modules returns every registered module with its supported opcodes, in
// registration order.
func (fw *Framework) Modules() []ModuleInfo {
	out := make([]ModuleInfo, 0, len(fw.modules))
	for _, m := range fw.modules {
		out = append(out, ModuleInfo{Name: m.Name(), Opcodes: supportedOpcodes(m)})
	}
	return out
}

// AssignOpcode records an explicit override applied at Start. The module
// name is resolved at Start, not here. Overrides are rejected once the
// framework has started.
func (fw *Framework) AssignOpcode(op Opcode, moduleName string) error {
	if !op.Valid() {
		return &Error{Op: "assign_opcode", Module: moduleName, Opcode: op.String(), Err: ErrInvalidArgument}
	}
	if fw.started.Load() || fw.finishing.Load() {
		return &Error{Op: "assign_opcode", Module: moduleName, Opcode: op.String(), Err: ErrStarted}
	}
	fw.overrides[op] = moduleName
	return nil
}

// Overrides returns the explicit opcode overrides, keyed by opcode.
func (fw *Framework) Overrides() map[Opcode]string {
	out := make(map[Opcode]string)
	for op, name := range fw.overrides {
		if name != "" {
			out[Opcode(op)] = name
		}
	}
	return out
}

// Start initializes every module in registration order and builds the
// opcode assignment table. It fails if a module fails to initialize, if
// an override names an unknown module or one that does not support the
// opcode, or if any opcode ends up unassigned. On failure the modules
// initialized so far are finalized and the framework cannot be started
// again.
func (fw *Framework) Start() error {
	if fw.finishing.Load() {
		return opError("start", ErrShutdown)
	}
	if fw.started.Load() {
		return opError("start", ErrStarted)
	}

	for _, m := range fw.modules {
		if err := m.Init(); err != nil {
			fw.abortStart()
			return &Error{Op: "start", Module: m.Name(), Err: err}
		}
		fw.inited++

		if cs, ok := m.(ContextSizer); ok && cs.CtxSize() > fw.taskCtxSize {
			fw.taskCtxSize = cs.CtxSize()
		}
	}

	table, err := fw.buildTable()
	if err != nil {
		fw.abortStart()
		return err
	}
	fw.table.Store(&table)
	fw.started.Store(true)

	for op, m := range table {
		logger.Info("accel opcode assigned", logger.KeyOpcode, Opcode(op).String(), logger.KeyModule, m.Name())
	}
	return nil
}

func (fw *Framework) buildTable() (assignmentTable, error) {
	var table assignmentTable

	for _, m := range fw.modules {
		for op := Opcode(0); op < OpcodeCount; op++ {
			if m.SupportsOpcode(op) {
				table[op] = m
			}
		}
	}

	for op := Opcode(0); op < OpcodeCount; op++ {
		name := fw.overrides[op]
		if name == "" {
			continue
		}
		m, err := fw.FindModule(name)
		if err != nil {
			logger.Error("accel override names unknown module", logger.KeyOpcode, op.String(), logger.KeyModule, name)
			return table, &Error{Op: "start", Module: name, Opcode: op.String(), Err: ErrNotFound}
		}
		if !m.SupportsOpcode(op) {
			logger.Error("accel override module does not support opcode", logger.KeyOpcode, op.String(), logger.KeyModule, name)
			return table, &Error{Op: "start", Module: name, Opcode: op.String(), Err: ErrNotSupported}
		}
		table[op] = m
	}

	for op, m := range table {
		if m == nil {
			return table, &Error{Op: "start", Opcode: Opcode(op).String(),
				Err: fmt.Errorf("%w: no module supports opcode", ErrNotFound)}
		}
	}
	return table, nil
}

// abortStart finalizes the modules initialized by a failed Start.
func (fw *Framework) abortStart() {
	fw.finishing.Store(true)
	for i := 0; i < fw.inited; i++ {
		done := make(chan struct{})
		fw.modules[i].Fini(func() { close(done) })
		<-done
	}
	fw.inited = 0
}

// Started reports whether Start has completed successfully.
func (fw *Framework) Started() bool {
	return fw.started.Load() && !fw.finishing.Load()
}

// OpcodeModuleName returns the name of the module assigned to op.
func (fw *Framework) OpcodeModuleName(op Opcode) (string, error) {
	if !op.Valid() {
		return "", &Error{Op: "opcode_module", Opcode: op.String(), Err: ErrInvalidArgument}
	}
	m := fw.assigned(op)
	if m == nil {
		return "", &Error{Op: "opcode_module", Opcode: op.String(), Err: ErrNotFound}
	}
	return m.Name(), nil
}

// Assignments returns opcode name -> module name for every assigned slot.
func (fw *Framework) Assignments() map[string]string {
	out := make(map[string]string, OpcodeCount)
	for op := Opcode(0); op < OpcodeCount; op++ {
		if m := fw.assigned(op); m != nil {
			out[op.String()] = m.Name()
		}
	}
	return out
}

func (fw *Framework) assigned(op Opcode) Module {
	t := fw.table.Load()
	if t == nil {
		return nil
	}
	return t[op]
}

func (fw *Framework) acquireChannelRef() error {
	fw.chMu.Lock()
	defer fw.chMu.Unlock()
	if fw.unregistered || fw.finishing.Load() {
		return opError("get_channel", ErrShutdown)
	}
	fw.liveChannels++
	if fw.metrics != nil {
		fw.metrics.SetLiveChannels(fw.liveChannels)
	}
	return nil
}

func (fw *Framework) releaseChannelRef() {
	fw.chMu.Lock()
	defer fw.chMu.Unlock()
	fw.liveChannels--
	if fw.metrics != nil {
		fw.metrics.SetLiveChannels(fw.liveChannels)
	}
	if fw.liveChannels == 0 && fw.drained != nil {
		close(fw.drained)
		fw.drained = nil
	}
}

// LiveChannels returns the number of channels not yet put.
func (fw *Framework) LiveChannels() int {
	fw.chMu.Lock()
	defer fw.chMu.Unlock()
	return fw.liveChannels
}
