package types

// Serialization format version written to state files. Loaders reject a
// major version they do not understand; minor bumps are compatible.
const (
	StateVersionMajor = 2
	StateVersionMinor = 0
)

// ModelState is the serialized form of one widget model.
type ModelState struct {
	// Class name of the model within its module.
	// example: IntSliderModel
	ModelName string `json:"model_name" example:"IntSliderModel"`
	// Module (package) the model class is defined in.
	// example: @jupyter-widgets/controls
	ModelModule string `json:"model_module" example:"@jupyter-widgets/controls"`
	// Semver of the module that produced this state.
	// example: 1.5.0
	ModelModuleVersion string `json:"model_module_version,omitempty" example:"1.5.0"`
	// Attribute dict of the model. May omit attributes equal to class
	// defaults when the state was captured with DropDefaults.
	State map[string]any `json:"state"`
}

// StateMap maps model id to serialized model state. It is the unit of
// exchange between managers and persistence callbacks.
type StateMap map[string]ModelState

// StateFile is the on-disk envelope around a StateMap.
type StateFile struct {
	VersionMajor int      `json:"version_major" example:"2"`
	VersionMinor int      `json:"version_minor" example:"0"`
	State        StateMap `json:"state"`
}

// GetStateOptions controls how live state is captured.
type GetStateOptions struct {
	// DropDefaults omits attributes whose value equals the class default.
	// example: true
	DropDefaults bool `json:"drop_defaults,omitempty" example:"true"`
}

// ModelSummary is a lightweight listing entry for one live model.
type ModelSummary struct {
	// Model id, equal to the comm id when the model has a comm.
	// example: 8f0b6d3f5f6e4f7b9c0a1b2c3d4e5f60
	ID string `json:"id" example:"8f0b6d3f5f6e4f7b9c0a1b2c3d4e5f60"`
	// example: IntSliderModel
	ModelName string `json:"model_name" example:"IntSliderModel"`
	// example: @jupyter-widgets/controls
	ModelModule string `json:"model_module" example:"@jupyter-widgets/controls"`
	// example: 1.5.0
	ModelModuleVersion string `json:"model_module_version,omitempty" example:"1.5.0"`
	// Whether the model currently holds a live comm to the kernel.
	// example: true
	Live bool `json:"live" example:"true"`
}
