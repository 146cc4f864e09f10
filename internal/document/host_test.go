package document

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

func TestTriggerSaveFiresSubscribers(t *testing.T) {
	h := NewHost(zerolog.Nop())
	var a, b int
	h.OnBeforeSave(func() { a++ })
	h.OnBeforeSave(func() { b++ })

	h.TriggerSave()
	h.TriggerSave()
	if a != 2 || b != 2 {
		t.Fatalf("subscribers fired a=%d b=%d, want 2/2", a, b)
	}
}

func TestCancelRemovesSubscription(t *testing.T) {
	h := NewHost(zerolog.Nop())
	var n int
	cancel := h.OnBeforeSave(func() { n++ })
	h.TriggerSave()
	cancel()
	cancel() // second cancel is a no-op
	h.TriggerSave()
	if n != 1 {
		t.Fatalf("fired %d times, want 1", n)
	}
}

func TestAutosaveTicks(t *testing.T) {
	h := NewHost(zerolog.Nop())
	var n atomic.Int64
	h.OnBeforeSave(func() { n.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	h.StartAutosave(ctx, 20*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && n.Load() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	if n.Load() < 2 {
		t.Fatalf("autosave fired %d times", n.Load())
	}

	cancel()
	time.Sleep(50 * time.Millisecond)
	stopped := n.Load()
	time.Sleep(80 * time.Millisecond)
	if n.Load() != stopped {
		t.Fatalf("autosave kept firing after cancel")
	}
}

func TestAutosaveDisabled(t *testing.T) {
	h := NewHost(zerolog.Nop())
	var n atomic.Int64
	h.OnBeforeSave(func() { n.Add(1) })
	h.StartAutosave(context.Background(), 0)
	time.Sleep(50 * time.Millisecond)
	if n.Load() != 0 {
		t.Fatalf("disabled autosave fired %d times", n.Load())
	}
}

func TestRerenderRecorded(t *testing.T) {
	h := NewHost(zerolog.Nop())
	if err := h.RerenderWidgetOutputs(context.Background(), types.WidgetViewMIME); err != nil {
		t.Fatalf("rerender: %v", err)
	}
	if h.RerenderCount() != 1 {
		t.Fatalf("count = %d, want 1", h.RerenderCount())
	}
}
