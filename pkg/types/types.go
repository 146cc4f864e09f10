// Package types holds the wire-level and API-level data shapes shared by the
// widget manager, the kernel client, and the HTTP surface. Everything here is
// plain data: no behavior, no goroutines, no imports from internal packages.
package types

import "encoding/json"

// CommTargetName is the comm target under which widget comms are opened.
// Both sides of the connection must agree on this name.
const CommTargetName = "jupyter.widget"

// WidgetViewMIME is the MIME type tagging a display output as a widget view.
// Outputs carrying this MIME type are re-rendered after state reconstruction.
const WidgetViewMIME = "application/vnd.jupyter.widget-view+json"

// Comm payload methods understood by the manager.
const (
	// MethodUpdate carries a partial state patch from the kernel.
	MethodUpdate = "update"
	// MethodRequestState asks the peer to send its full current state.
	MethodRequestState = "request_state"
	// MethodCustom carries opaque application-defined content.
	MethodCustom = "custom"
)

// Reserved state keys identifying the model class of a widget. They ride
// inside the state dict itself so that a state dump is self-describing.
const (
	KeyModelName          = "_model_name"
	KeyModelModule        = "_model_module"
	KeyModelModuleVersion = "_model_module_version"
)

// CommData is the decoded "data" payload of a comm_open or comm_msg message
// in the widget protocol.
type CommData struct {
	// Method selects how the payload is interpreted (update, request_state, custom).
	// example: update
	Method string `json:"method,omitempty" example:"update"`
	// State is the attribute dict for update/open payloads.
	State map[string]any `json:"state,omitempty"`
	// Content is the opaque payload of a custom message.
	Content json.RawMessage `json:"content,omitempty"`
}
