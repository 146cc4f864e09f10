package widgets

import (
	"context"
	"errors"
	"fmt"

	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

// GetState captures the serialized state of every live model. Capture is
// in-memory and does not touch the kernel.
func (m *Manager) GetState(_ context.Context, opts types.GetStateOptions) (types.StateMap, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed()
	}
	models := make([]*Model, 0, len(m.models))
	for _, md := range m.models {
		models = append(models, md)
	}
	m.mu.RUnlock()

	out := make(types.StateMap, len(models))
	for _, md := range models {
		out[md.ID()] = md.Serialize(opts)
	}
	return out, nil
}

// SetState applies a persisted state map. Entries for ids already in the
// registry patch the existing model; the rest become new detached models.
// Failures are isolated per model and joined into the returned error, so one
// stale entry cannot block the rest of a document from loading.
func (m *Manager) SetState(ctx context.Context, state types.StateMap) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed()
	}

	var errs []error
	applied := 0
	for id, entry := range state {
		if md, err := m.GetModel(id); err == nil {
			md.applyState(entry.State)
			applied++
			continue
		}
		spec := ModelSpec{
			ModelName:          entry.ModelName,
			ModelModule:        entry.ModelModule,
			ModelModuleVersion: entry.ModelModuleVersion,
			ModelID:            id,
		}
		if spec.ModelName == "" {
			// Older dumps carry identity only inside the state dict.
			inner, err := specFromState(entry.State)
			if err != nil {
				errs = append(errs, fmt.Errorf("model %s: %w", id, err))
				continue
			}
			inner.ModelID = id
			spec = inner
		}
		if _, err := m.NewModel(ctx, spec, entry.State); err != nil {
			errs = append(errs, fmt.Errorf("model %s: %w", id, err))
			continue
		}
		applied++
	}

	m.mu.Lock()
	m.loadsTotal++
	m.mu.Unlock()
	m.pub.Publish(Event{Name: EventStateLoaded, Fields: map[string]any{
		"models": applied,
		"failed": len(errs),
	}})
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
