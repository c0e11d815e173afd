// Package registry holds the entity types, bundles, display modes and group
// widgets the service accepts. It is built once at startup and passed to the
// components that validate against it.
package registry

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"sort"

	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// FormMode is the display mode for entity edit forms. Every other mode is a view mode.
const FormMode = "form"

// Context values a widget can be rendered in.
const (
	ContextForm = "form"
	ContextView = "view"
)

// EntityTypeDefinition describes a content entity type field groups can attach to.
type EntityTypeDefinition struct {
	ID        string   `yaml:"id" json:"id"`
	Label     string   `yaml:"label" json:"label"`
	Bundles   []string `yaml:"bundles" json:"bundles"`
	ViewModes []string `yaml:"view_modes" json:"view_modes"`
}

// WidgetDefinition describes a group rendering widget.
type WidgetDefinition struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
	// Contexts lists where the widget can render; empty means both.
	Contexts []string `yaml:"contexts" json:"contexts,omitempty"`
	// Parents restricts the widgets a group using this one may be nested in.
	Parents         []string       `yaml:"parents" json:"parents,omitempty"`
	RequiresParent  bool           `yaml:"requires_parent" json:"requires_parent"`
	DefaultSettings map[string]any `yaml:"default_settings" json:"default_settings"`
}

// Registry is the startup-time table of entity types and widgets.
type Registry struct {
	entityTypes map[string]EntityTypeDefinition
	widgets     map[string]WidgetDefinition
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entityTypes: make(map[string]EntityTypeDefinition),
		widgets:     make(map[string]WidgetDefinition),
	}
}

// RegisterEntityType adds an entity type. The "default" view mode is always present.
func (r *Registry) RegisterEntityType(def EntityTypeDefinition) error {
	if def.ID == "" {
		return &models.ValidationError{Field: "entity_type", Reason: "must not be empty"}
	}
	if _, ok := r.entityTypes[def.ID]; ok {
		return &models.DuplicateError{List: "entity types", Entry: def.ID}
	}
	if len(def.Bundles) == 0 {
		def.Bundles = []string{def.ID}
	}
	def.Bundles = lo.Uniq(def.Bundles)
	def.ViewModes = lo.Uniq(append([]string{"default"}, def.ViewModes...))
	if lo.Contains(def.ViewModes, FormMode) {
		return &models.ValidationError{Field: "view_modes", Reason: fmt.Sprintf("%q is reserved for forms", FormMode)}
	}
	r.entityTypes[def.ID] = def
	return nil
}

// RegisterWidget adds a widget definition.
func (r *Registry) RegisterWidget(def WidgetDefinition) error {
	if def.ID == "" {
		return &models.ValidationError{Field: "widget_type", Reason: "must not be empty"}
	}
	if _, ok := r.widgets[def.ID]; ok {
		return &models.DuplicateError{List: "widgets", Entry: def.ID}
	}
	for _, c := range def.Contexts {
		if c != ContextForm && c != ContextView {
			return &models.ValidationError{Field: "contexts", Reason: fmt.Sprintf("unknown context %q", c)}
		}
	}
	if def.DefaultSettings == nil {
		def.DefaultSettings = map[string]any{}
	}
	r.widgets[def.ID] = def
	return nil
}

// EntityType returns the definition for id.
func (r *Registry) EntityType(id string) (EntityTypeDefinition, bool) {
	def, ok := r.entityTypes[id]
	return def, ok
}

// EntityTypes returns all entity types ordered by id.
func (r *Registry) EntityTypes() []EntityTypeDefinition {
	defs := lo.Values(r.entityTypes)
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Widget returns the definition for id.
func (r *Registry) Widget(id string) (WidgetDefinition, bool) {
	def, ok := r.widgets[id]
	return def, ok
}

// Widgets returns all widgets ordered by id.
func (r *Registry) Widgets() []WidgetDefinition {
	defs := lo.Values(r.widgets)
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// DisplayContext maps a mode to the form or view context.
func DisplayContext(mode string) string {
	if mode == FormMode {
		return ContextForm
	}
	return ContextView
}

// ValidateScope checks the entity type, bundle and mode are registered.
func (r *Registry) ValidateScope(scope models.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	def, ok := r.entityTypes[scope.EntityType]
	if !ok {
		return &models.ValidationError{Field: "entity_type", Reason: fmt.Sprintf("%q is not registered", scope.EntityType)}
	}
	if !slices.Contains(def.Bundles, scope.Bundle) {
		return &models.ValidationError{Field: "bundle", Reason: fmt.Sprintf("%q is not a bundle of %s", scope.Bundle, scope.EntityType)}
	}
	if scope.Mode != FormMode && !slices.Contains(def.ViewModes, scope.Mode) {
		return &models.ValidationError{Field: "mode", Reason: fmt.Sprintf("%q is not a display mode of %s", scope.Mode, scope.EntityType)}
	}
	return nil
}

// ValidateWidget checks a group's widget is known, renders in the group's
// mode and fits under the parent's widget. parentWidget is empty for
// top-level groups.
func (r *Registry) ValidateWidget(mode, widgetType, parentWidget string) error {
	def, ok := r.widgets[widgetType]
	if !ok {
		return &models.ValidationError{Field: "widget_type", Reason: fmt.Sprintf("%q is not registered", widgetType)}
	}
	ctx := DisplayContext(mode)
	if len(def.Contexts) > 0 && !slices.Contains(def.Contexts, ctx) {
		return &models.ValidationError{Field: "widget_type", Reason: fmt.Sprintf("%q cannot render in %s context", widgetType, ctx)}
	}
	if parentWidget == "" {
		if def.RequiresParent {
			return &models.ValidationError{Field: "parent", Reason: fmt.Sprintf("%q groups must be nested in one of %v", widgetType, def.Parents)}
		}
		return nil
	}
	if len(def.Parents) > 0 && !slices.Contains(def.Parents, parentWidget) {
		return &models.ValidationError{Field: "parent", Reason: fmt.Sprintf("%q groups cannot be nested in %q", widgetType, parentWidget)}
	}
	return nil
}

// ResolvedSettings overlays a group's own settings on its widget defaults.
func (r *Registry) ResolvedSettings(g *models.FieldGroup) map[string]any {
	out := map[string]any{}
	if def, ok := r.widgets[g.WidgetType]; ok {
		maps.Copy(out, def.DefaultSettings)
	}
	maps.Copy(out, g.Settings())
	return out
}

type fileFormat struct {
	EntityTypes []EntityTypeDefinition `yaml:"entity_types"`
	Widgets     []WidgetDefinition     `yaml:"widgets"`
}

// Parse builds a registry from YAML. Built-in widgets are used when the
// document declares none.
func Parse(data []byte) (*Registry, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	widgets := f.Widgets
	if len(widgets) == 0 {
		widgets = DefaultWidgets()
	}

	r := New()
	for _, def := range f.EntityTypes {
		if err := r.RegisterEntityType(def); err != nil {
			return nil, err
		}
	}
	for _, def := range widgets {
		if err := r.RegisterWidget(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadFile reads a registry from a YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Parse(data)
}
