// Package configsync moves field groups in and out of the service as YAML
// configuration documents.
package configsync

import (
	"fmt"
	"strings"

	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
	"gopkg.in/yaml.v3"
)

// Document is the exported form of a set of field groups.
type Document struct {
	FieldGroups []Entry `yaml:"field_groups"`
}

// Entry is one field group as it appears in a document.
type Entry struct {
	ConfigName  string         `yaml:"config_name,omitempty"`
	UUID        string         `yaml:"uuid,omitempty"`
	ID          string         `yaml:"id"`
	Label       string         `yaml:"label"`
	EntityType  string         `yaml:"entity_type"`
	Bundle      string         `yaml:"bundle"`
	Mode        string         `yaml:"mode"`
	WidgetType  string         `yaml:"widget_type"`
	Parent      string         `yaml:"parent"`
	MachineName string         `yaml:"machine_name"`
	Fields      []string       `yaml:"fields"`
	FieldOrder  []string       `yaml:"field_order,omitempty"`
	FieldGroups []string       `yaml:"field_groups"`
	Settings    map[string]any `yaml:"settings,omitempty"`
	Weight      int            `yaml:"weight"`
}

func FromGroup(g *models.FieldGroup) Entry {
	return Entry{
		ConfigName:  g.ConfigName(),
		UUID:        g.UUID,
		ID:          g.ID,
		Label:       g.Label,
		EntityType:  g.EntityType,
		Bundle:      g.Bundle,
		Mode:        g.Mode,
		WidgetType:  g.WidgetType,
		Parent:      g.Parent,
		MachineName: g.MachineName,
		Fields:      g.Fields,
		FieldOrder:  g.FieldOrder,
		FieldGroups: g.FieldGroups,
		Settings:    g.Settings(),
		Weight:      g.Weight,
	}
}

// Group builds a validated record from the entry. The UUID is taken from
// the entry and left empty when it has none.
func (e Entry) Group() (*models.FieldGroup, error) {
	g, err := models.NewFieldGroup(models.NewFieldGroupParams{
		ID:          e.ID,
		Label:       e.Label,
		EntityType:  e.EntityType,
		Bundle:      e.Bundle,
		Mode:        e.Mode,
		WidgetType:  e.WidgetType,
		Parent:      e.Parent,
		MachineName: e.MachineName,
		Fields:      e.Fields,
		FieldOrder:  e.FieldOrder,
		FieldGroups: e.FieldGroups,
		Settings:    e.Settings,
		Weight:      e.Weight,
	})
	if err != nil {
		return nil, err
	}
	if e.ConfigName != "" && e.ConfigName != g.ConfigName() {
		return nil, &models.ValidationError{Field: "config_name", Reason: fmt.Sprintf("%q does not match %q", e.ConfigName, g.ConfigName())}
	}
	g.UUID = e.UUID
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Encode renders groups as a YAML document.
func Encode(groups []*models.FieldGroup) ([]byte, error) {
	doc := Document{FieldGroups: make([]Entry, 0, len(groups))}
	for _, g := range groups {
		doc.FieldGroups = append(doc.FieldGroups, FromGroup(g))
	}
	return yaml.Marshal(doc)
}

// Decode parses a YAML document into validated records.
func Decode(data []byte) ([]*models.FieldGroup, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &models.ValidationError{Field: "document", Reason: err.Error()}
	}
	groups := make([]*models.FieldGroup, 0, len(doc.FieldGroups))
	for i, e := range doc.FieldGroups {
		g, err := e.Group()
		if err != nil {
			return nil, fmt.Errorf("field_groups[%d]: %w", i, err)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// ParseConfigName splits field_group.<entity_type>.<bundle>.<mode>.<id>.
func ParseConfigName(name string) (models.Scope, string, error) {
	parts := strings.Split(name, ".")
	if len(parts) != 5 || parts[0] != models.ConfigPrefix {
		return models.Scope{}, "", &models.ValidationError{Field: "config_name", Reason: fmt.Sprintf("%q is not a field group config name", name)}
	}
	scope := models.Scope{EntityType: parts[1], Bundle: parts[2], Mode: parts[3]}
	if err := scope.Validate(); err != nil {
		return models.Scope{}, "", err
	}
	return scope, parts[4], nil
}
