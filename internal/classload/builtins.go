package classload

// Module names and versions of the bundled widget packages.
const (
	BaseModule     = "@jupyter-widgets/base"
	ControlsModule = "@jupyter-widgets/controls"
	OutputModule   = "@jupyter-widgets/output"

	BaseModuleVersion     = "1.2.0"
	ControlsModuleVersion = "1.5.0"
	OutputModuleVersion   = "1.0.0"
)

// declare builds a BaseClass whose defaults carry the self-describing
// identity keys alongside the class-specific attributes.
func declare(name, module, version, viewName, viewModule, viewVersion string, attrs map[string]any) BaseClass {
	d := map[string]any{
		"_model_name":           name,
		"_model_module":         module,
		"_model_module_version": version,
		"_view_name":            viewName,
		"_view_module":          viewModule,
		"_view_module_version":  viewVersion,
		"_view_count":           nil,
	}
	for k, v := range attrs {
		d[k] = v
	}
	return BaseClass{ClassName: name, ClassModule: module, ClassVersion: version, ClassDefaults: d}
}

func control(name, viewName string, attrs map[string]any) BaseClass {
	base := map[string]any{
		"description": "",
		"disabled":    false,
	}
	for k, v := range attrs {
		base[k] = v
	}
	return declare(name, ControlsModule, ControlsModuleVersion, viewName, ControlsModule, ControlsModuleVersion, base)
}

// builtinClasses lists the classes every registry starts with. The set covers
// the models the manager itself needs (layout, style, output) plus the common
// controls, enough for round-tripping notebook state without a resolver.
func builtinClasses() []ModelClass {
	return []ModelClass{
		declare("LayoutModel", BaseModule, BaseModuleVersion, "LayoutView", BaseModule, BaseModuleVersion, map[string]any{
			"align_content":   nil,
			"align_items":     nil,
			"align_self":      nil,
			"border":          nil,
			"display":         nil,
			"flex":            nil,
			"height":          nil,
			"margin":          nil,
			"min_height":      nil,
			"min_width":       nil,
			"overflow":        nil,
			"padding":         nil,
			"visibility":      nil,
			"width":           nil,
		}),
		declare("StyleModel", BaseModule, BaseModuleVersion, "StyleView", BaseModule, BaseModuleVersion, nil),
		declare("DescriptionStyleModel", ControlsModule, ControlsModuleVersion, "StyleView", BaseModule, BaseModuleVersion, map[string]any{
			"description_width": "",
		}),
		control("IntSliderModel", "IntSliderView", map[string]any{
			"value":             0,
			"min":               0,
			"max":               100,
			"step":              1,
			"orientation":       "horizontal",
			"readout":           true,
			"readout_format":    "d",
			"continuous_update": true,
		}),
		control("FloatSliderModel", "FloatSliderView", map[string]any{
			"value":             0.0,
			"min":               0.0,
			"max":               100.0,
			"step":              0.1,
			"orientation":       "horizontal",
			"readout":           true,
			"readout_format":    ".2f",
			"continuous_update": true,
		}),
		control("TextModel", "TextView", map[string]any{
			"value":             "",
			"placeholder":       "​",
			"continuous_update": true,
		}),
		control("ButtonModel", "ButtonView", map[string]any{
			"button_style": "",
			"icon":         "",
			"tooltip":      "",
		}),
		control("CheckboxModel", "CheckboxView", map[string]any{
			"value":  false,
			"indent": true,
		}),
		control("HTMLModel", "HTMLView", map[string]any{
			"value":       "",
			"placeholder": "​",
		}),
		declare("OutputModel", OutputModule, OutputModuleVersion, "OutputView", OutputModule, OutputModuleVersion, map[string]any{
			"msg_id":  "",
			"outputs": []any{},
		}),
	}
}
