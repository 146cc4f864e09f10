// Package persist owns the save/load callback pair bridging widget managers
// to document storage. One pair is active per registry; installing a new one
// replaces the old. The registry object replaces the module-level statics a
// front-end extension would traditionally keep, so lifecycle and teardown
// are explicit.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Caldeiraaf/ipywidgets/internal/widgets"
	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

// LoadFunc fetches persisted widget state from document storage.
type LoadFunc func(ctx context.Context) (types.StateMap, error)

// SaveFunc hands captured widget state to document storage.
type SaveFunc func(ctx context.Context, state types.StateMap) error

// SaveNotifier is the document-side "about to persist" event the registry
// hooks manager saves into.
type SaveNotifier interface {
	OnBeforeSave(fn func()) (cancel func())
}

type entry struct {
	name   string
	mgr    widgets.StateManager
	cancel func()
}

// Registry broadcasts the active callback pair over all registered managers.
type Registry struct {
	log zerolog.Logger

	mu      sync.Mutex
	entries []*entry
	load    LoadFunc
	save    SaveFunc
	opts    types.GetStateOptions

	savesTotal uint64
	loadsTotal uint64
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{log: log}
}

// Register adds a manager under a diagnostic name and, when doc is non-nil,
// hooks the manager's save into the document's before-save event. A load
// callback that is already installed runs against the new manager right
// away, so a document opened after SetCallbacks still picks up persisted
// state. The returned function unregisters the manager and releases the
// save hook.
func (r *Registry) Register(name string, mgr widgets.StateManager, doc SaveNotifier) func() {
	e := &entry{name: name, mgr: mgr}
	if doc != nil {
		e.cancel = doc.OnBeforeSave(func() {
			r.saveOne(context.Background(), e)
		})
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	load := r.load
	r.mu.Unlock()

	if load != nil {
		r.loadOne(context.Background(), load, e)
	}
	return func() { r.unregister(e) }
}

func (r *Registry) unregister(e *entry) {
	r.mu.Lock()
	for i, cur := range r.entries {
		if cur == e {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// SetCallbacks installs the save/load pair, replacing any previous pair
// wholesale, and immediately applies load to every registered manager. Each
// manager's load is independent: one failure is logged and the rest
// proceed.
func (r *Registry) SetCallbacks(ctx context.Context, load LoadFunc, save SaveFunc, opts types.GetStateOptions) {
	r.mu.Lock()
	r.load = load
	r.save = save
	r.opts = opts
	entries := make([]*entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	if load == nil {
		return
	}
	for _, e := range entries {
		r.loadOne(ctx, load, e)
	}
}

// SaveAll captures and saves every registered manager's state. Failures are
// isolated per manager and joined into the returned error.
func (r *Registry) SaveAll(ctx context.Context) error {
	r.mu.Lock()
	entries := make([]*entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if err := r.saveOne(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns the persistence counters for status reporting.
func (r *Registry) Stats() (saves, loads uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.savesTotal, r.loadsTotal
}

// Close releases all save hooks and forgets the managers and callbacks.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.load = nil
	r.save = nil
	r.mu.Unlock()
	for _, e := range entries {
		if e.cancel != nil {
			e.cancel()
		}
	}
}

// saveOne runs one manager's capture-and-save. Errors are logged and
// returned, but callers on the document save path ignore them: a broken
// widget dump must never block the document itself from saving.
func (r *Registry) saveOne(ctx context.Context, e *entry) error {
	r.mu.Lock()
	save := r.save
	opts := r.opts
	r.mu.Unlock()
	if save == nil {
		return nil
	}
	state, err := e.mgr.GetState(ctx, opts)
	if err != nil {
		metricSaves.WithLabelValues("error").Inc()
		r.log.Error().Err(err).Str("manager", e.name).Msg("widget state capture failed")
		return err
	}
	if err := save(ctx, state); err != nil {
		metricSaves.WithLabelValues("error").Inc()
		r.log.Error().Err(err).Str("manager", e.name).Msg("widget state save failed")
		return err
	}
	r.mu.Lock()
	r.savesTotal++
	r.mu.Unlock()
	metricSaves.WithLabelValues("ok").Inc()
	r.log.Debug().Str("manager", e.name).Int("models", len(state)).Msg("widget state saved")
	return nil
}

func (r *Registry) loadOne(ctx context.Context, load LoadFunc, e *entry) {
	state, err := load(ctx)
	if err != nil {
		metricLoads.WithLabelValues("error").Inc()
		r.log.Error().Err(err).Str("manager", e.name).Msg("widget state load failed")
		return
	}
	if err := e.mgr.SetState(ctx, state); err != nil {
		metricLoads.WithLabelValues("partial").Inc()
		r.log.Warn().Err(err).Str("manager", e.name).Msg("widget state applied with failures")
	} else {
		metricLoads.WithLabelValues("ok").Inc()
	}
	r.mu.Lock()
	r.loadsTotal++
	r.mu.Unlock()
	r.log.Debug().Str("manager", e.name).Int("models", len(state)).Msg("widget state loaded")
}
