package httpapi

const defaultMaxBodyBytes = 8 << 20

// maxBodyBytes caps request bodies on the JSON endpoints. Widget state
// files carry embedded cell outputs, so the cap is roomier than a plain
// API would pick.
var maxBodyBytes int64 = defaultMaxBodyBytes

// SetMaxBodyBytes overrides the request body cap. Non-positive values
// restore the default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		n = defaultMaxBodyBytes
	}
	maxBodyBytes = n
}

// corsPolicy holds the opt-in cross-origin settings. With Enabled false
// NewMux mounts no CORS middleware at all.
type corsPolicy struct {
	Enabled bool
	Origins []string
	Methods []string
	Headers []string
}

var corsCfg corsPolicy

// SetCORSOptions configures cross-origin access for browser front-ends.
// Call before NewMux; empty methods or headers fall back to defaults
// suited to the state endpoints.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsCfg = corsPolicy{
		Enabled: enabled,
		Origins: append([]string(nil), origins...),
		Methods: append([]string(nil), methods...),
		Headers: append([]string(nil), headers...),
	}
}
