package types

// ModelsResponse wraps the list of live models returned by GET /models.
type ModelsResponse struct {
	// List of live models in the manager.
	Models []ModelSummary `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: 8f0b6d3f
	Error string `json:"error" example:"model not found: 8f0b6d3f"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// KernelStatus summarizes the kernel connection for /status.
type KernelStatus struct {
	// Whether a kernel websocket is currently connected.
	// example: true
	Connected bool `json:"connected" example:"true"`
	// Kernel id of the current connection, empty when disconnected.
	// example: 6dd3b9a5-0c1e-4f9a-bb0f-1f69cf2d5f22
	ID string `json:"id,omitempty" example:"6dd3b9a5-0c1e-4f9a-bb0f-1f69cf2d5f22"`
	// Total websocket reconnects since start.
	// example: 2
	Reconnects uint64 `json:"reconnects" example:"2"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall manager state (waiting, reconstructing, ready, degraded, closed).
	// example: ready
	State string `json:"state" example:"ready"`
	// Kernel connection summary.
	Kernel KernelStatus `json:"kernel"`
	// Number of live models in the registry.
	// example: 4
	Models int `json:"models" example:"4"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// Total comms reconstructed successfully since start.
	// example: 4
	ReconstructedTotal uint64 `json:"reconstructed_total" example:"4"`
	// Total state saves performed.
	// example: 9
	SavesTotal uint64 `json:"saves_total" example:"9"`
	// Total state loads performed.
	// example: 1
	LoadsTotal uint64 `json:"loads_total" example:"1"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// SaveResponse is returned by POST /save.
type SaveResponse struct {
	// Whether the save completed without error.
	// example: true
	Saved bool `json:"saved" example:"true"`
	// Number of models captured in the saved state.
	// example: 4
	Models int `json:"models" example:"4"`
}
