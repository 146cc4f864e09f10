package widgets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Caldeiraaf/ipywidgets/internal/classload"
	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

// Model is the in-memory representation of one widget: its class identity,
// its attribute state, and the comm keeping it synchronized with the kernel.
// Models are created and owned by a Manager.
type Model struct {
	id  string
	cls classload.ModelClass
	mgr *Manager

	mu       sync.RWMutex
	state    map[string]any
	comm     Comm
	onCustom []func(json.RawMessage)
}

func newModel(mgr *Manager, id string, cls classload.ModelClass) *Model {
	st := make(map[string]any)
	for k, v := range cls.Defaults() {
		st[k] = v
	}
	return &Model{id: id, cls: cls, mgr: mgr, state: st}
}

func (m *Model) ID() string { return m.id }

// Class returns the resolved model class.
func (m *Model) Class() classload.ModelClass { return m.cls }

// Live reports whether the model currently holds an open comm.
func (m *Model) Live() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.comm != nil
}

// Get returns one attribute value.
func (m *Model) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.state[key]
	return v, ok
}

// State returns a copy of the attribute dict. Nested values are shared;
// callers must not mutate them.
func (m *Model) State() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.state))
	for k, v := range m.state {
		out[k] = v
	}
	return out
}

// applyState merges a state patch over the current attributes.
func (m *Model) applyState(patch map[string]any) {
	m.mu.Lock()
	for k, v := range patch {
		m.state[k] = v
	}
	m.mu.Unlock()
}

// OnCustom subscribes to custom messages arriving on the model's comm.
func (m *Model) OnCustom(fn func(json.RawMessage)) {
	m.mu.Lock()
	m.onCustom = append(m.onCustom, fn)
	m.mu.Unlock()
}

// SendCustom sends a custom-method message to the kernel-side peer.
func (m *Model) SendCustom(ctx context.Context, content any, cb *types.CommCallbacks) error {
	c := m.commRef()
	if c == nil {
		return fmt.Errorf("model %s has no live comm", m.id)
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("marshal custom content: %w", err)
	}
	return c.Send(ctx, types.CommData{Method: types.MethodCustom, Content: raw}, cb)
}

// RequestState asks the peer to send its full state. The reply arrives as a
// normal update on the comm and is applied by the message handler.
func (m *Model) RequestState(ctx context.Context) error {
	c := m.commRef()
	if c == nil {
		return fmt.Errorf("model %s has no live comm", m.id)
	}
	return c.Send(ctx, types.CommData{Method: types.MethodRequestState}, nil)
}

// SendState pushes current attribute values to the kernel-side peer as an
// update. With no keys, the full state is sent; unknown keys are skipped.
func (m *Model) SendState(ctx context.Context, keys ...string) error {
	c := m.commRef()
	if c == nil {
		return fmt.Errorf("model %s has no live comm", m.id)
	}
	st := m.State()
	if len(keys) > 0 {
		sub := make(map[string]any, len(keys))
		for _, k := range keys {
			if v, ok := st[k]; ok {
				sub[k] = v
			}
		}
		st = sub
	}
	return c.Send(ctx, types.CommData{Method: types.MethodUpdate, State: st}, nil)
}

// Serialize captures the model as a wire-format entry. With DropDefaults,
// attributes equal to the class default are omitted.
func (m *Model) Serialize(opts types.GetStateOptions) types.ModelState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	defaults := m.cls.Defaults()
	st := make(map[string]any, len(m.state))
	for k, v := range m.state {
		if opts.DropDefaults {
			if dv, ok := defaults[k]; ok && jsonEqual(v, dv) {
				continue
			}
		}
		st[k] = v
	}
	return types.ModelState{
		ModelName:          m.cls.Name(),
		ModelModule:        m.cls.Module(),
		ModelModuleVersion: m.cls.ModuleVersion(),
		State:              st,
	}
}

// Summary returns the listing entry for this model.
func (m *Model) Summary() types.ModelSummary {
	return types.ModelSummary{
		ID:                 m.id,
		ModelName:          m.cls.Name(),
		ModelModule:        m.cls.Module(),
		ModelModuleVersion: m.cls.ModuleVersion(),
		Live:               m.Live(),
	}
}

func (m *Model) commRef() Comm {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.comm
}

// bindComm wires comm traffic into the model. Updates patch state; custom
// messages fan out to subscribers; peer close removes the model from its
// manager.
func (m *Model) bindComm(c Comm) {
	m.mu.Lock()
	m.comm = c
	m.mu.Unlock()
	c.OnMessage(m.handleCommMsg)
	c.OnClose(func() {
		m.mgr.removeModel(m.id, "comm_closed")
	})
}

func (m *Model) handleCommMsg(d types.CommData) {
	switch d.Method {
	case types.MethodUpdate:
		m.applyState(d.State)
	case types.MethodCustom:
		m.mu.RLock()
		subs := make([]func(json.RawMessage), len(m.onCustom))
		copy(subs, m.onCustom)
		m.mu.RUnlock()
		for _, fn := range subs {
			fn(d.Content)
		}
	default:
		// Unknown methods are dropped.
	}
}

// detach drops the comm reference and handlers without closing the
// kernel-side comm.
func (m *Model) detach() {
	m.mu.Lock()
	c := m.comm
	m.comm = nil
	m.onCustom = nil
	m.mu.Unlock()
	if c != nil {
		c.OnMessage(nil)
		c.OnClose(nil)
	}
}

// jsonEqual compares two values by their canonical JSON encoding, so that 0
// and 0.0 (or a decoded map and its literal twin) compare equal the way the
// wire format sees them.
func jsonEqual(a, b any) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
