package widgets

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Caldeiraaf/ipywidgets/internal/classload"
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// Source supplies kernel connections. Required.
	Source KernelSource
	// Classes resolves widget model classes. Required.
	Classes *classload.Registry
	// Host receives rerender requests after reconstruction. Optional.
	Host DocumentHost
	// KernelWaitTimeout bounds the startup wait for a kernel. 0 waits forever.
	KernelWaitTimeout time.Duration
	// StateRequestTimeout bounds each per-comm request_state round trip
	// during reconstruction. 0 waits forever.
	StateRequestTimeout time.Duration
	// Publisher receives lifecycle events. Optional; defaults to a no-op.
	Publisher EventPublisher
	// Logger for diagnostics. Optional; defaults to a silent logger.
	Logger *zerolog.Logger
}

// New constructs a Manager and starts its reconstruction pass in the
// background. The pass waits for a kernel from cfg.Source, rebuilds models
// for comms that already exist on the kernel side, and then leaves the
// manager live for reactively opened comms. ctx cancels the background work
// and bounds nothing else; Close releases the manager.
func New(ctx context.Context, cfg ManagerConfig) (*Manager, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("widgets: ManagerConfig.Source is required")
	}
	if cfg.Classes == nil {
		return nil, fmt.Errorf("widgets: ManagerConfig.Classes is required")
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	runCtx, cancel := context.WithCancel(ctx)
	m := &Manager{
		state:               StateWaiting,
		models:              make(map[string]*Model),
		source:              cfg.Source,
		classes:             cfg.Classes,
		host:                cfg.Host,
		pub:                 pub,
		log:                 log,
		kernelWaitTimeout:   cfg.KernelWaitTimeout,
		stateRequestTimeout: cfg.StateRequestTimeout,
		startTime:           time.Now(),
		runCtx:              runCtx,
		cancel:              cancel,
	}
	go m.run(runCtx)
	return m, nil
}
