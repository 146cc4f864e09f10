package widgets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Caldeiraaf/ipywidgets/internal/classload"
	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

// fakeComm is an in-memory Comm whose peer behavior is scripted per test.
type fakeComm struct {
	id     string
	target string
	kernel *fakeKernel

	mu      sync.Mutex
	onMsg   func(types.CommData)
	onClose func()
	sent    []types.CommData
	closed  bool
}

func (c *fakeComm) ID() string         { return c.id }
func (c *fakeComm) TargetName() string { return c.target }

func (c *fakeComm) Send(_ context.Context, data any, cb *types.CommCallbacks) error {
	d, ok := data.(types.CommData)
	if !ok {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &d); err != nil {
			return err
		}
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("comm %s closed", c.id)
	}
	c.sent = append(c.sent, d)
	peer := c.kernel.peerFn()
	c.mu.Unlock()
	if peer != nil {
		go peer(c, d, cb)
	}
	return nil
}

func (c *fakeComm) Close(context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeComm) OnMessage(fn func(types.CommData)) {
	c.mu.Lock()
	c.onMsg = fn
	c.mu.Unlock()
}

func (c *fakeComm) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// deliver plays an incoming comm_msg from the peer side.
func (c *fakeComm) deliver(d types.CommData) {
	c.mu.Lock()
	h := c.onMsg
	c.mu.Unlock()
	if h != nil {
		h(d)
	}
}

// peerClose plays a kernel-side comm_close.
func (c *fakeComm) peerClose() {
	c.mu.Lock()
	c.closed = true
	h := c.onClose
	c.mu.Unlock()
	if h != nil {
		h()
	}
}

func (c *fakeComm) sentMessages() []types.CommData {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.CommData, len(c.sent))
	copy(out, c.sent)
	return out
}

// fakeKernel implements Kernel with scriptable comm_info and peer replies.
type fakeKernel struct {
	id string

	mu            sync.Mutex
	targets       map[string]func(Comm, types.CommData)
	registrations map[string]int
	existing      []string
	attached      []*fakeComm
	created       []*fakeComm
	commInfoErr   error
	attachErr     error
	// peer is invoked (in a goroutine) for every send on any comm of this
	// kernel, playing the kernel-side handler.
	peer func(c *fakeComm, d types.CommData, cb *types.CommCallbacks)
}

func newFakeKernel(id string, existing ...string) *fakeKernel {
	return &fakeKernel{
		id:            id,
		targets:       make(map[string]func(Comm, types.CommData)),
		registrations: make(map[string]int),
		existing:      existing,
	}
}

func (k *fakeKernel) ID() string { return k.id }

func (k *fakeKernel) RegisterCommTarget(name string, handler func(Comm, types.CommData)) {
	k.mu.Lock()
	k.targets[name] = handler
	k.registrations[name]++
	k.mu.Unlock()
}

func (k *fakeKernel) UnregisterCommTarget(name string) {
	k.mu.Lock()
	delete(k.targets, name)
	k.mu.Unlock()
}

func (k *fakeKernel) NewComm(_ context.Context, target, commID string, data any) (Comm, error) {
	if commID == "" {
		commID = fmt.Sprintf("comm-%d", time.Now().UnixNano())
	}
	c := &fakeComm{id: commID, target: target, kernel: k}
	k.mu.Lock()
	k.created = append(k.created, c)
	k.mu.Unlock()
	if data != nil {
		// comm_open payload rides along; record it like a send.
		if err := c.Send(context.Background(), data, nil); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (k *fakeKernel) AttachComm(target, commID string) (Comm, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.attachErr != nil {
		return nil, k.attachErr
	}
	c := &fakeComm{id: commID, target: target, kernel: k}
	k.attached = append(k.attached, c)
	return c, nil
}

func (k *fakeKernel) CommInfo(context.Context, string) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.commInfoErr != nil {
		return nil, k.commInfoErr
	}
	out := make([]string, len(k.existing))
	copy(out, k.existing)
	return out, nil
}

func (k *fakeKernel) peerFn() func(*fakeComm, types.CommData, *types.CommCallbacks) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.peer
}

func (k *fakeKernel) setPeer(fn func(*fakeComm, types.CommData, *types.CommCallbacks)) {
	k.mu.Lock()
	k.peer = fn
	k.mu.Unlock()
}

// openFromKernel plays a kernel-initiated comm_open against the registered
// target handler. Returns false if no handler is registered.
func (k *fakeKernel) openFromKernel(target string, c Comm, data types.CommData) bool {
	k.mu.Lock()
	h := k.targets[target]
	k.mu.Unlock()
	if h == nil {
		return false
	}
	h(c, data)
	return true
}

func (k *fakeKernel) attachCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.attached)
}

func (k *fakeKernel) attachedComms() []*fakeComm {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*fakeComm, len(k.attached))
	copy(out, k.attached)
	return out
}

func (k *fakeKernel) registrationCount(target string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.registrations[target]
}

// fakeSource implements KernelSource with manual connect/disconnect control.
type fakeSource struct {
	mu        sync.Mutex
	kernel    Kernel
	subs      map[int]func(Kernel)
	next      int
	cancelled int
}

func newFakeSource() *fakeSource {
	return &fakeSource{subs: make(map[int]func(Kernel))}
}

func (s *fakeSource) CurrentKernel() (Kernel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kernel, s.kernel != nil
}

func (s *fakeSource) OnKernelConnected(fn func(Kernel)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			s.cancelled++
		}
		s.mu.Unlock()
	}
}

// connect installs k as the current kernel and fires all one-shot
// subscriptions.
func (s *fakeSource) connect(k Kernel) {
	s.mu.Lock()
	s.kernel = k
	fns := make([]func(Kernel), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subs = make(map[int]func(Kernel))
	s.mu.Unlock()
	for _, fn := range fns {
		fn(k)
	}
}

func (s *fakeSource) disconnect() {
	s.mu.Lock()
	s.kernel = nil
	s.mu.Unlock()
}

// sliderClass is the toy class used across tests.
func sliderClass() classload.BaseClass {
	return classload.BaseClass{
		ClassName:    "SliderModel",
		ClassModule:  "m",
		ClassVersion: "1.0.0",
		ClassDefaults: map[string]any{
			"_model_name":           "SliderModel",
			"_model_module":         "m",
			"_model_module_version": "1.0.0",
			"value":                 0,
			"step":                  1,
			"description":           "",
		},
	}
}

func sliderState(value int) map[string]any {
	return map[string]any{
		"_model_name":           "SliderModel",
		"_model_module":         "m",
		"_model_module_version": "1.0.0",
		"value":                 value,
	}
}

func newTestManager(t *testing.T, src KernelSource, opts ...func(*ManagerConfig)) (*Manager, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher()
	classes := classload.NewRegistry()
	classes.RegisterBuiltin(sliderClass())
	cfg := ManagerConfig{
		Source:              src,
		Classes:             classes,
		Publisher:           pub,
		KernelWaitTimeout:   2 * time.Second,
		StateRequestTimeout: 2 * time.Second,
	}
	for _, o := range opts {
		o(&cfg)
	}
	m, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m, pub
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// answerRequestState is the standard peer script: reply to request_state
// with an update carrying the given state.
func answerRequestState(states map[string]map[string]any) func(*fakeComm, types.CommData, *types.CommCallbacks) {
	return func(c *fakeComm, d types.CommData, _ *types.CommCallbacks) {
		if d.Method != types.MethodRequestState {
			return
		}
		st, ok := states[c.ID()]
		if !ok {
			return
		}
		c.deliver(types.CommData{Method: types.MethodUpdate, State: st})
	}
}
