package accel

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeModule is a scriptable backend. Submitted tasks are queued on the
// sub-channel and completed by Poll, so completions always arrive on the
// owning goroutine.
type fakeModule struct {
	name    string
	ops     map[Opcode]bool
	ctxSize int

	initErr   error
	submitErr error
	chErr     error
	keyErr    error
	dumps     []ConfigEntry

	// shared makes every opcode slot of a channel share one sub-channel.
	shared bool

	mu        sync.Mutex
	events    *[]string
	channels  map[*Channel]*fakeChannel
	gets      int
	puts      int
	keysInit  int
	keysFreed int
	material  []byte
	lastTask  *Task
	indexes   []int32
	fini      chan func()

	// keyEntered is closed when CryptoKeyInit starts; keyGate, when set,
	// holds CryptoKeyInit until it is closed.
	keyEntered chan struct{}
	keyGate    chan struct{}
}

type fakeChannel struct {
	m       *fakeModule
	queue   []*Task
	refs    int
	polls   int
	status  error
	handler func(t *Task) error
}

func newFake(name string, ops ...Opcode) *fakeModule {
	m := &fakeModule{name: name, ops: make(map[Opcode]bool), channels: make(map[*Channel]*fakeChannel)}
	for _, op := range ops {
		m.ops[op] = true
	}
	return m
}

func newSoftware() *fakeModule {
	return newFake(SoftwareModuleName, Opcodes()...)
}

func (m *fakeModule) record(ev string) {
	if m.events != nil {
		*m.events = append(*m.events, ev)
	}
}

func (m *fakeModule) Name() string { return m.name }

func (m *fakeModule) Init() error {
	m.record("init:" + m.name)
	return m.initErr
}

func (m *fakeModule) Fini(done func()) {
	m.record("fini:" + m.name)
	if m.fini != nil {
		m.fini <- done
		return
	}
	done()
}

func (m *fakeModule) SupportsOpcode(op Opcode) bool { return m.ops[op] }

func (m *fakeModule) CtxSize() int { return m.ctxSize }

func (m *fakeModule) GetIOChannel(owner *Channel) (ModuleChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chErr != nil {
		return nil, m.chErr
	}
	m.gets++
	if m.shared {
		if fc, ok := m.channels[owner]; ok {
			fc.refs++
			return fc, nil
		}
		fc := &fakeChannel{m: m, refs: 1}
		m.channels[owner] = fc
		return fc, nil
	}
	return &fakeChannel{m: m, refs: 1}, nil
}

func (m *fakeModule) Submit(ch ModuleChannel, t *Task) error {
	m.mu.Lock()
	m.lastTask = t
	m.indexes = append(m.indexes, t.index)
	m.mu.Unlock()
	if m.submitErr != nil {
		return m.submitErr
	}
	fc := ch.(*fakeChannel)
	fc.queue = append(fc.queue, t)
	return nil
}

func (m *fakeModule) CryptoKeyInit(k *CryptoKey) error {
	if m.keyErr != nil {
		return m.keyErr
	}
	if m.keyEntered != nil {
		close(m.keyEntered)
	}
	if m.keyGate != nil {
		<-m.keyGate
	}
	m.mu.Lock()
	m.keysInit++
	m.material = k.Key1()
	m.mu.Unlock()
	k.Priv = m.name
	return nil
}

func (m *fakeModule) CryptoKeyDeinit(k *CryptoKey) {
	m.mu.Lock()
	m.keysFreed++
	m.mu.Unlock()
	m.record("key_deinit:" + k.Name())
}

func (m *fakeModule) ConfigEntries() []ConfigEntry { return m.dumps }

func (fc *fakeChannel) Poll() int {
	fc.polls++
	q := fc.queue
	fc.queue = nil
	for _, t := range q {
		status := fc.status
		if fc.handler != nil {
			status = fc.handler(t)
		}
		t.Complete(status)
	}
	return len(q)
}

func (fc *fakeChannel) Put() {
	fc.m.mu.Lock()
	defer fc.m.mu.Unlock()
	fc.m.puts++
	fc.refs--
}

// nonKeyModule lacks crypto key support.
type nonKeyModule struct{ f *fakeModule }

func (n nonKeyModule) Name() string                                   { return n.f.Name() }
func (n nonKeyModule) Init() error                                    { return n.f.Init() }
func (n nonKeyModule) Fini(done func())                               { n.f.Fini(done) }
func (n nonKeyModule) SupportsOpcode(op Opcode) bool                  { return n.f.SupportsOpcode(op) }
func (n nonKeyModule) GetIOChannel(o *Channel) (ModuleChannel, error) { return n.f.GetIOChannel(o) }
func (n nonKeyModule) Submit(ch ModuleChannel, t *Task) error         { return n.f.Submit(ch, t) }

var errBoom = errors.New("boom")

// startedFramework registers mods and starts the framework.
func startedFramework(t *testing.T, opts []Option, mods ...Module) *Framework {
	t.Helper()
	fw := New(opts...)
	for _, m := range mods {
		require.NoError(t, fw.Register(m))
	}
	require.NoError(t, fw.Start())
	return fw
}

// channelOf returns the fake sub-channel serving op on ch.
func channelOf(ch *Channel, op Opcode) *fakeChannel {
	return ch.moduleCh[op].(*fakeChannel)
}
