package widgets

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

// run is the startup pass: wait for a kernel, rebuild models for comms that
// already exist on the kernel side, then leave the reactive path in charge.
// Any failure degrades the manager instead of killing it; a degraded manager
// still accepts comm opens and persisted state.
func (m *Manager) run(ctx context.Context) {
	m.pub.Publish(Event{Name: EventKernelWaiting})
	k, err := AwaitKernel(ctx, m.source, m.kernelWaitTimeout)
	if err != nil {
		m.setDegraded("kernel wait", err)
		return
	}
	m.pub.Publish(Event{Name: EventKernelResolved, Fields: map[string]any{"kernel_id": k.ID()}})
	m.adoptKernel(k)

	m.setState(StateReconstructing)
	m.pub.Publish(Event{Name: EventReconstructStart})
	start := time.Now()
	n, err := m.reconstruct(ctx, k)
	if err != nil {
		metricReconstructRuns.WithLabelValues("error").Inc()
		m.setDegraded("reconstruct", err)
		return
	}
	metricReconstructRuns.WithLabelValues("ok").Inc()
	metricReconstructSeconds.Observe(time.Since(start).Seconds())

	m.mu.Lock()
	if m.state != StateClosed {
		m.state = StateReady
	}
	m.reconstructedTotal += uint64(n)
	m.mu.Unlock()
	m.pub.Publish(Event{Name: EventReconstructDone, Fields: map[string]any{"models": n}})
	m.log.Info().Int("models", n).Dur("took", time.Since(start)).Msg("widget state reconstructed")

	// Outputs rendered before the models existed now have something to bind
	// to; ask the document to redraw them.
	if m.host != nil {
		if err := m.host.RerenderWidgetOutputs(ctx, types.WidgetViewMIME); err != nil {
			m.log.Warn().Err(err).Msg("widget output rerender failed")
		}
	}
}

// adoptKernel records the kernel and registers the widget comm target so
// kernel-initiated comm opens build models reactively. Registration happens
// before the comm_info query: a comm opened mid-reconstruction must not fall
// into a routing gap.
func (m *Manager) adoptKernel(k Kernel) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.kernel = k
	m.mu.Unlock()
	k.RegisterCommTarget(types.CommTargetName, func(c Comm, data types.CommData) {
		if _, err := m.HandleCommOpen(m.runCtx, c, data); err != nil {
			m.log.Warn().Err(err).Str("comm_id", c.ID()).Msg("comm open rejected")
		}
	})
}

// reconstruct queries the kernel for live widget comms and performs the
// request_state handshake for each, fanning out per comm and joining on all
// of them. The join is all-or-nothing: one failed or timed-out fetch
// abandons the pass, so a half-restored document never masquerades as a
// fully restored one. Model construction afterwards isolates failures to the
// individual widget.
func (m *Manager) reconstruct(ctx context.Context, k Kernel) (int, error) {
	ids, err := k.CommInfo(ctx, types.CommTargetName)
	if err != nil {
		return 0, err
	}
	type fetched struct {
		comm  Comm
		state map[string]any
		err   error
	}
	results := make([]fetched, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		comm, err := k.AttachComm(types.CommTargetName, id)
		if err != nil {
			results[i] = fetched{err: err}
			continue
		}
		wg.Add(1)
		go func(i int, c Comm) {
			defer wg.Done()
			st, err := m.requestState(ctx, c)
			results[i] = fetched{comm: c, state: st, err: err}
		}(i, comm)
	}
	wg.Wait()

	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}

	created := 0
	for _, r := range results {
		spec, err := specFromState(r.state)
		if err != nil {
			m.log.Warn().Err(err).Str("comm_id", r.comm.ID()).Msg("skipping comm with unusable state")
			continue
		}
		spec.Comm = r.comm
		if _, err := m.NewModel(ctx, spec, r.state); err != nil {
			m.log.Warn().Err(err).Str("comm_id", r.comm.ID()).Msg("widget model construction failed")
			continue
		}
		created++
	}
	return created, nil
}

// requestState performs one request_state/update round trip on a comm. The
// listener is installed before the send so a fast peer cannot answer into
// the void. Only the first update resolves the fetch; messages with any
// other method during the window are dropped, not buffered. A peer that
// emits custom traffic before answering request_state loses those messages.
func (m *Manager) requestState(ctx context.Context, c Comm) (map[string]any, error) {
	ch := make(chan map[string]any, 1)
	c.OnMessage(func(d types.CommData) {
		if d.Method != types.MethodUpdate {
			return
		}
		select {
		case ch <- d.State:
		default:
		}
	})
	if err := c.Send(ctx, types.CommData{Method: types.MethodRequestState}, nil); err != nil {
		return nil, err
	}
	var timeoutCh <-chan time.Time
	if m.stateRequestTimeout > 0 {
		t := time.NewTimer(m.stateRequestTimeout)
		defer t.Stop()
		timeoutCh = t.C
	}
	select {
	case st := <-ch:
		return st, nil
	case <-timeoutCh:
		return nil, ErrStateRequestTimeout(c.ID())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
