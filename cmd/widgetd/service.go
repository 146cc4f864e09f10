package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Caldeiraaf/ipywidgets/internal/document"
	"github.com/Caldeiraaf/ipywidgets/internal/jupyter"
	"github.com/Caldeiraaf/ipywidgets/internal/persist"
	"github.com/Caldeiraaf/ipywidgets/internal/widgets"
	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

// service glues the manager, kernel client and persistence registry into the
// single surface the HTTP layer consumes.
type service struct {
	mgr     *widgets.Manager
	client  *jupyter.Client
	persist *persist.Registry
	host    *document.Host
}

func (s *service) ListModels() []types.ModelSummary { return s.mgr.ListModels() }

func (s *service) Ready() bool { return s.mgr.Ready() }

// Status merges the manager snapshot with transport and persistence
// counters the manager cannot see.
func (s *service) Status() types.StatusResponse {
	resp := s.mgr.Status()
	resp.Kernel.Connected = s.client.Connected()
	if id := s.client.KernelID(); id != "" {
		resp.Kernel.ID = id
	}
	resp.Kernel.Reconnects = uint64(s.client.Reconnects())
	saves, _ := s.persist.Stats()
	resp.SavesTotal = saves
	return resp
}

func (s *service) GetState(ctx context.Context, opts types.GetStateOptions) (types.StateMap, error) {
	return s.mgr.GetState(ctx, opts)
}

func (s *service) SetState(ctx context.Context, state types.StateMap) error {
	return s.mgr.SetState(ctx, state)
}

// Save persists every registered manager through the active save callback.
// The document's own before-save path stays reserved for autosave; the HTTP
// save needs the error surfaced.
func (s *service) Save(ctx context.Context) (types.SaveResponse, error) {
	if err := s.persist.SaveAll(ctx); err != nil {
		return types.SaveResponse{}, err
	}
	return types.SaveResponse{Saved: true, Models: len(s.mgr.ListModels())}, nil
}

// logPublisher forwards manager lifecycle events to the daemon log.
type logPublisher struct {
	log zerolog.Logger
}

func (p logPublisher) Publish(e widgets.Event) {
	ev := p.log.Info().Str("event", e.Name)
	if e.ModelID != "" {
		ev = ev.Str("model_id", e.ModelID)
	}
	for k, v := range e.Fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg("widget event")
}
