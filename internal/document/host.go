// Package document models the document-lifecycle surface widget managers
// hang off of: a before-save event, an optional autosave ticker, and the
// rerender entry point invoked after state reconstruction. In a headless
// deployment nothing repaints, so rerender requests are recorded and logged
// for whoever mirrors the document.
package document

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Host is one document's lifecycle hub.
type Host struct {
	log zerolog.Logger

	mu        sync.Mutex
	subs      map[int]func()
	next      int
	rerenders []string
}

func NewHost(log zerolog.Logger) *Host {
	return &Host{log: log, subs: make(map[int]func())}
}

// OnBeforeSave subscribes fn to the document's "about to persist" event.
// The returned cancel removes the subscription; calling it twice is safe.
func (h *Host) OnBeforeSave(fn func()) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// TriggerSave fires the before-save event. Subscribers run synchronously so
// their state capture is finished before the document itself persists.
func (h *Host) TriggerSave() {
	h.mu.Lock()
	fns := make([]func(), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	metricSaveTriggers.Inc()
}

// StartAutosave fires the before-save event every interval until ctx ends.
// A non-positive interval disables autosave.
func (h *Host) StartAutosave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				h.TriggerSave()
			case <-ctx.Done():
				return
			}
		}
	}()
	h.log.Info().Dur("interval", interval).Msg("autosave enabled")
}

// RerenderWidgetOutputs records a request to redraw outputs tagged with
// mimeType. Display surfaces attached to this host poll RerenderCount (or
// watch the log) to repaint.
func (h *Host) RerenderWidgetOutputs(_ context.Context, mimeType string) error {
	h.mu.Lock()
	h.rerenders = append(h.rerenders, mimeType)
	n := len(h.rerenders)
	h.mu.Unlock()
	metricRerenders.Inc()
	h.log.Info().Str("mime", mimeType).Int("total", n).Msg("widget outputs rerender requested")
	return nil
}

// RerenderCount returns how many rerender requests this host has seen.
func (h *Host) RerenderCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rerenders)
}
