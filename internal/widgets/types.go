// Package widgets implements the widget manager: it tracks live widget
// models, reconstructs them from a kernel after a page reload, and exchanges
// serialized state with the persistence layer. The kernel side is abstracted
// behind small interfaces so transports and tests can plug in.
package widgets

import (
	"context"

	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

// State represents lifecycle state of the manager.
type State string

const (
	// StateWaiting: no kernel yet, reconstruction not started.
	StateWaiting State = "waiting"
	// StateReconstructing: kernel resolved, rebuilding models from live comms.
	StateReconstructing State = "reconstructing"
	// StateReady: reconstruction pass finished successfully.
	StateReady State = "ready"
	// StateDegraded: reconstruction failed; manager still serves what it has.
	StateDegraded State = "degraded"
	// StateClosed: manager shut down.
	StateClosed State = "closed"
)

// Comm is one bidirectional, ordered channel to a peer object in the kernel.
type Comm interface {
	ID() string
	TargetName() string
	// Send transmits a comm_msg. Callbacks, when non-nil, receive kernel
	// output produced while the peer processes this message.
	Send(ctx context.Context, data any, cb *types.CommCallbacks) error
	// Close sends comm_close and detaches the comm.
	Close(ctx context.Context) error
	// OnMessage installs the handler for incoming comm_msg payloads,
	// replacing any previous handler. Delivery order follows arrival order.
	OnMessage(fn func(types.CommData))
	// OnClose installs the handler invoked when the peer closes the comm.
	OnClose(fn func())
}

// Kernel is the slice of a kernel connection the manager needs.
type Kernel interface {
	ID() string
	// RegisterCommTarget routes future kernel-initiated comm_open messages
	// for the named target to handler.
	RegisterCommTarget(name string, handler func(Comm, types.CommData))
	UnregisterCommTarget(name string)
	// NewComm opens a fresh comm from this side. An empty commID lets the
	// transport pick one. Data, when non-nil, rides in the comm_open.
	NewComm(ctx context.Context, target, commID string, data any) (Comm, error)
	// AttachComm builds a handle for a comm the kernel already knows about,
	// registering it for routing without sending comm_open. Attaching the
	// same id twice yields two independent handles; the transport does not
	// deduplicate.
	AttachComm(target, commID string) (Comm, error)
	// CommInfo asks the kernel for the ids of open comms with the target.
	CommInfo(ctx context.Context, target string) ([]string, error)
}

// KernelSource reports the current kernel connection and announces future
// ones. OnKernelConnected registers a one-shot subscription: the callback
// fires once, for whichever kernel connects next, and is then dropped. The
// returned cancel releases the subscription early; calling it after the
// callback fired is a no-op.
type KernelSource interface {
	CurrentKernel() (Kernel, bool)
	OnKernelConnected(fn func(Kernel)) (cancel func())
}

// DocumentHost is the document-side surface managers call back into.
type DocumentHost interface {
	// OnBeforeSave subscribes to the document's before-save event.
	OnBeforeSave(fn func()) (cancel func())
	// RerenderWidgetOutputs re-renders document outputs tagged with the
	// given MIME type, typically after state reconstruction.
	RerenderWidgetOutputs(ctx context.Context, mimeType string) error
}

// StateManager is the persistence-facing surface of a manager. The concrete
// *Manager implements it; the persist package depends only on this.
type StateManager interface {
	HandleCommOpen(ctx context.Context, c Comm, data types.CommData) (*Model, error)
	GetState(ctx context.Context, opts types.GetStateOptions) (types.StateMap, error)
	SetState(ctx context.Context, state types.StateMap) error
	NewModel(ctx context.Context, spec ModelSpec, state map[string]any) (*Model, error)
}

// ModelSpec identifies the class and identity of a model to create.
type ModelSpec struct {
	ModelName          string
	ModelModule        string
	ModelModuleVersion string
	// Comm carries live traffic for the model. Nil creates a detached model.
	Comm Comm
	// ModelID names the model when Comm is nil; ignored otherwise.
	ModelID string
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State     State
	Models    int
	LastError string
}
