package registry

// DefaultWidgets returns the built-in group widgets.
func DefaultWidgets() []WidgetDefinition {
	return []WidgetDefinition{
		{
			ID:    "fieldset",
			Label: "Fieldset",
			DefaultSettings: map[string]any{
				"classes":         "",
				"id":              "",
				"description":     "",
				"required_fields": true,
			},
		},
		{
			ID:    "details",
			Label: "Details",
			DefaultSettings: map[string]any{
				"classes":         "",
				"id":              "",
				"description":     "",
				"open":            false,
				"required_fields": true,
			},
		},
		{
			ID:    "tabs",
			Label: "Tabs",
			DefaultSettings: map[string]any{
				"classes":   "",
				"id":        "",
				"direction": "vertical",
			},
		},
		{
			ID:             "tab",
			Label:          "Tab",
			Parents:        []string{"tabs"},
			RequiresParent: true,
			DefaultSettings: map[string]any{
				"classes":     "",
				"id":          "",
				"formatter":   "closed",
				"description": "",
			},
		},
		{
			ID:    "accordion",
			Label: "Accordion",
			DefaultSettings: map[string]any{
				"classes": "",
				"id":      "",
				"effect":  "none",
			},
		},
		{
			ID:             "accordion_item",
			Label:          "Accordion item",
			Parents:        []string{"accordion"},
			RequiresParent: true,
			DefaultSettings: map[string]any{
				"classes":     "",
				"id":          "",
				"formatter":   "closed",
				"description": "",
			},
		},
		{
			ID:       "html_element",
			Label:    "HTML element",
			Contexts: []string{ContextView},
			DefaultSettings: map[string]any{
				"classes":       "",
				"id":            "",
				"element":       "div",
				"show_label":    false,
				"label_element": "h3",
				"attributes":    "",
			},
		},
	}
}

// Default returns a registry with the built-in widgets and the common
// node and user entity types.
func Default() *Registry {
	r := New()
	for _, def := range []EntityTypeDefinition{
		{ID: "node", Label: "Content", Bundles: []string{"article", "page"}, ViewModes: []string{"full", "teaser"}},
		{ID: "user", Label: "User", Bundles: []string{"user"}, ViewModes: []string{"compact"}},
	} {
		if err := r.RegisterEntityType(def); err != nil {
			panic(err)
		}
	}
	for _, def := range DefaultWidgets() {
		if err := r.RegisterWidget(def); err != nil {
			panic(err)
		}
	}
	return r
}
