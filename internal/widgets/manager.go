package widgets

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Caldeiraaf/ipywidgets/internal/classload"
	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

// Manager owns the model registry for one document/kernel pairing. Models
// enter the registry reactively (kernel opens a comm), through startup
// reconstruction, or from persisted state via SetState.
type Manager struct {
	mu     sync.RWMutex
	state  State
	err    string
	models map[string]*Model
	kernel Kernel
	closed bool

	source  KernelSource
	classes *classload.Registry
	host    DocumentHost
	pub     EventPublisher
	log     zerolog.Logger

	kernelWaitTimeout   time.Duration
	stateRequestTimeout time.Duration

	reconstructedTotal uint64
	loadsTotal         uint64

	startTime time.Time
	runCtx    context.Context
	cancel    context.CancelFunc
}

var _ StateManager = (*Manager)(nil)

// Ready reports whether the startup pass has finished. A degraded manager is
// still ready: it serves reactive comms and persisted state.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady || m.state == StateDegraded
}

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, Models: len(m.models), LastError: m.err}
}

// GetModel returns the live model registered under id.
func (m *Manager) GetModel(id string) (*Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.models[id]
	if !ok {
		return nil, ErrModelNotFound(id)
	}
	return md, nil
}

// ListModels returns summaries of all live models, sorted by id.
func (m *Manager) ListModels() []types.ModelSummary {
	m.mu.RLock()
	out := make([]types.ModelSummary, 0, len(m.models))
	for _, md := range m.models {
		out = append(out, md.Summary())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Status builds the manager's part of the status response. Transport-level
// fields (reconnects) and persistence counters are filled by the caller.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	resp := types.StatusResponse{
		State:              string(m.state),
		Models:             len(m.models),
		LastError:          m.err,
		ReconstructedTotal: m.reconstructedTotal,
		LoadsTotal:         m.loadsTotal,
		UptimeSeconds:      int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix:     time.Now().Unix(),
	}
	m.mu.RUnlock()
	if k, ok := m.source.CurrentKernel(); ok {
		resp.Kernel = types.KernelStatus{Connected: true, ID: k.ID()}
	}
	return resp
}

// HandleCommOpen builds a model for a comm the kernel just opened. The data
// payload's state dict must carry the reserved class identity keys.
func (m *Manager) HandleCommOpen(ctx context.Context, c Comm, data types.CommData) (*Model, error) {
	spec, err := specFromState(data.State)
	if err != nil {
		return nil, err
	}
	spec.Comm = c
	md, err := m.NewModel(ctx, spec, data.State)
	if err != nil {
		return nil, err
	}
	metricCommOpens.Inc()
	m.pub.Publish(Event{Name: EventCommOpened, ModelID: md.ID()})
	return md, nil
}

// NewModel resolves the spec's class, instantiates the model, applies the
// initial state and registers the result. The model only becomes visible in
// the registry with its initial state fully applied.
func (m *Manager) NewModel(ctx context.Context, spec ModelSpec, state map[string]any) (*Model, error) {
	id := spec.ModelID
	if spec.Comm != nil {
		id = spec.Comm.ID()
	}
	if id == "" {
		return nil, ErrInvalidSpec("neither comm nor model id provided")
	}
	cls, err := m.classes.Resolve(ctx, spec.ModelName, spec.ModelModule, spec.ModelModuleVersion)
	if err != nil {
		return nil, err
	}
	md := newModel(m, id, cls)
	md.applyState(state)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed()
	}
	m.models[id] = md
	n := len(m.models)
	m.mu.Unlock()

	if spec.Comm != nil {
		md.bindComm(spec.Comm)
	}
	metricModelsLive.Set(float64(n))
	m.pub.Publish(Event{Name: EventModelCreated, ModelID: id, Fields: map[string]any{
		"class":  cls.Name(),
		"module": cls.Module(),
	}})
	return md, nil
}

// OpenComm opens a widget comm on the current kernel. With data, a brand-new
// kernel-side comm is created and data rides in the comm_open. Without data,
// the handle binds to an existing kernel-side comm and only registers it for
// routing. No deduplication happens in either path: opening the same id
// twice yields two independent handles.
func (m *Manager) OpenComm(ctx context.Context, target, modelID string, data any) (Comm, error) {
	m.mu.RLock()
	k := m.kernel
	m.mu.RUnlock()
	if k == nil {
		var ok bool
		if k, ok = m.source.CurrentKernel(); !ok {
			return nil, ErrKernelWaitTimeout()
		}
	}
	if data != nil {
		return k.NewComm(ctx, target, modelID, data)
	}
	return k.AttachComm(target, modelID)
}

// Callbacks produces the message-channel hooks for comm traffic sent on
// behalf of view. Without an output target the hook set is empty, so kernel
// output produced by the send is simply not routed anywhere.
func (m *Manager) Callbacks(view *types.ViewContext) types.CommCallbacks {
	if view == nil {
		return types.CommCallbacks{}
	}
	var cb types.CommCallbacks
	if view.Output != nil {
		cb.OnOutput = view.Output.HandleOutput
		cb.OnClearOutput = view.Output.HandleClearOutput
	}
	if view.Cell != nil {
		cell := view.Cell
		cb.GetCell = func() any { return cell }
	}
	return cb
}

// Close tears the manager down: the background pass stops, the comm target
// is released and all models are detached. Kernel-side comms are left open;
// closing the front end must not destroy kernel state.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.state = StateClosed
	models := make([]*Model, 0, len(m.models))
	for _, md := range m.models {
		models = append(models, md)
	}
	m.models = make(map[string]*Model)
	k := m.kernel
	m.kernel = nil
	m.mu.Unlock()

	m.cancel()
	if k != nil {
		k.UnregisterCommTarget(types.CommTargetName)
	}
	for _, md := range models {
		md.detach()
	}
	metricModelsLive.Set(0)
	m.pub.Publish(Event{Name: EventManagerClosed})
	return nil
}

func (m *Manager) removeModel(id, reason string) {
	m.mu.Lock()
	md, ok := m.models[id]
	if ok {
		delete(m.models, id)
	}
	n := len(m.models)
	m.mu.Unlock()
	if !ok {
		return
	}
	md.detach()
	metricModelsLive.Set(float64(n))
	m.pub.Publish(Event{Name: EventModelRemoved, ModelID: id, Fields: map[string]any{"reason": reason}})
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state != StateClosed {
		m.state = s
	}
	m.mu.Unlock()
}

func (m *Manager) setDegraded(stage string, err error) {
	m.mu.Lock()
	if m.state != StateClosed {
		m.state = StateDegraded
		m.err = stage + ": " + err.Error()
	}
	m.mu.Unlock()
	m.log.Warn().Err(err).Str("stage", stage).Msg("widget reconstruction degraded")
	m.pub.Publish(Event{Name: EventReconstructFailed, Fields: map[string]any{
		"stage": stage,
		"error": err.Error(),
	}})
}

// stringAttr pulls a required string attribute out of a state dict.
func stringAttr(state map[string]any, key string) (string, bool) {
	v, ok := state[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// specFromState reads the reserved class identity keys out of a state dict.
func specFromState(state map[string]any) (ModelSpec, error) {
	name, ok := stringAttr(state, types.KeyModelName)
	if !ok {
		return ModelSpec{}, ErrInvalidSpec("state missing " + types.KeyModelName)
	}
	module, ok := stringAttr(state, types.KeyModelModule)
	if !ok {
		return ModelSpec{}, ErrInvalidSpec("state missing " + types.KeyModelModule)
	}
	// Version is optional on the wire; older kernels omit it.
	version, _ := stringAttr(state, types.KeyModelModuleVersion)
	return ModelSpec{ModelName: name, ModelModule: module, ModelModuleVersion: version}, nil
}
