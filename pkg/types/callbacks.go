package types

import "encoding/json"

// OutputTarget receives kernel output produced while a comm message sent on
// behalf of a view is being processed. Implementations render into the view's
// output area.
type OutputTarget interface {
	// HandleOutput is called for stream, display_data, execute_result and
	// error messages. Content is the raw message content.
	HandleOutput(msgType string, content json.RawMessage)
	// HandleClearOutput is called for clear_output messages. When wait is
	// true the clear is deferred until the next output arrives.
	HandleClearOutput(wait bool)
}

// ViewContext identifies the view on whose behalf a widget operation runs.
type ViewContext struct {
	// Output receives kernel output routed back to this view. May be nil.
	Output OutputTarget
	// Cell is the host document cell owning the view, opaque to the manager.
	Cell any
}

// CommCallbacks are the per-send hooks threaded through outbound comm
// traffic. The kernel client routes iopub messages parented to the send back
// through these functions.
type CommCallbacks struct {
	OnOutput      func(msgType string, content json.RawMessage)
	OnClearOutput func(wait bool)
	// GetCell returns the cell associated with the send, if any.
	GetCell func() any
}

// Empty reports whether no hook is set, letting senders skip registration.
func (c CommCallbacks) Empty() bool {
	return c.OnOutput == nil && c.OnClearOutput == nil && c.GetCell == nil
}
