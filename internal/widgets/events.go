package widgets

// Event represents a manager lifecycle event.
// Minimal and stable: name + model ID and optional fields via key/values.
type Event struct {
	Name    string
	ModelID string
	Fields  map[string]any
}

// Event names published by the manager.
const (
	EventKernelWaiting     = "kernel_waiting"
	EventKernelResolved    = "kernel_resolved"
	EventReconstructStart  = "reconstruct_start"
	EventReconstructDone   = "reconstruct_done"
	EventReconstructFailed = "reconstruct_failed"
	EventCommOpened        = "comm_opened"
	EventModelCreated      = "model_created"
	EventModelRemoved      = "model_removed"
	EventStateLoaded       = "state_loaded"
	EventManagerClosed     = "manager_closed"
)

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
