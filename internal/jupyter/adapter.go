package jupyter

import (
	"context"

	"github.com/Caldeiraaf/ipywidgets/internal/widgets"
	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

var (
	_ widgets.KernelSource = (*KernelAdapter)(nil)
	_ widgets.Kernel       = (*kernelHandle)(nil)
	_ widgets.Comm         = (*Comm)(nil)
)

// KernelAdapter presents a Client as the widget manager's kernel source.
// Handles delegate straight to the client, so a handle obtained before a
// reconnect keeps working after the kernel comes back.
type KernelAdapter struct {
	client *Client
}

// NewKernelAdapter wraps client.
func NewKernelAdapter(client *Client) *KernelAdapter {
	return &KernelAdapter{client: client}
}

// CurrentKernel returns a handle to the connected kernel, or false while
// the client is between connections.
func (a *KernelAdapter) CurrentKernel() (widgets.Kernel, bool) {
	if !a.client.Connected() {
		return nil, false
	}
	return &kernelHandle{client: a.client}, true
}

// OnKernelConnected registers fn for the next completed handshake.
func (a *KernelAdapter) OnKernelConnected(fn func(widgets.Kernel)) (cancel func()) {
	return a.client.OnConnected(func() {
		fn(&kernelHandle{client: a.client})
	})
}

// kernelHandle adapts Client methods to the widgets.Kernel surface.
type kernelHandle struct {
	client *Client
}

func (k *kernelHandle) ID() string { return k.client.KernelID() }

func (k *kernelHandle) RegisterCommTarget(name string, handler func(widgets.Comm, types.CommData)) {
	k.client.RegisterCommTarget(name, func(c *Comm, data types.CommData) {
		handler(c, data)
	})
}

func (k *kernelHandle) UnregisterCommTarget(name string) {
	k.client.UnregisterCommTarget(name)
}

func (k *kernelHandle) NewComm(ctx context.Context, target, commID string, data any) (widgets.Comm, error) {
	c, err := k.client.NewComm(ctx, target, commID, data)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (k *kernelHandle) AttachComm(target, commID string) (widgets.Comm, error) {
	c, err := k.client.AttachComm(target, commID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (k *kernelHandle) CommInfo(ctx context.Context, target string) ([]string, error) {
	return k.client.CommInfo(ctx, target)
}
