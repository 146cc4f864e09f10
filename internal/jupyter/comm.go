package jupyter

import (
	"context"
	"sync"

	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

// Comm is a live handle to one comm channel on the kernel websocket.
// Handles are cheap: attaching the same comm id twice yields two handles,
// with incoming traffic routed to whichever attached last.
type Comm struct {
	client *Client
	id     string
	target string

	mu      sync.Mutex
	onMsg   func(types.CommData)
	onClose func()
	closed  bool
}

func (c *Comm) ID() string         { return c.id }
func (c *Comm) TargetName() string { return c.target }

// Send transmits a comm_msg carrying data. A non-nil cb is registered for
// kernel output parented to this message before the message is queued, so
// no output can slip past it.
func (c *Comm) Send(ctx context.Context, data any, cb *types.CommCallbacks) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrCommClosed(c.id)
	}
	return c.client.sendCommMsg(ctx, c.id, data, cb)
}

// Close sends comm_close and drops the handle from routing. Closing twice
// is a no-op, and the close handler does not fire for a local close.
func (c *Comm) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.client.closeComm(ctx, c)
}

// OnMessage installs the handler for incoming comm_msg payloads, replacing
// any previous handler. Handlers run on the read loop, in arrival order.
func (c *Comm) OnMessage(fn func(types.CommData)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMsg = fn
}

// OnClose installs the handler invoked when the kernel closes the comm.
func (c *Comm) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *Comm) deliver(data types.CommData) {
	c.mu.Lock()
	fn := c.onMsg
	c.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

func (c *Comm) peerClosed() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
