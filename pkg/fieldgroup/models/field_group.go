package models

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/datatypes"
)

// ConfigPrefix namespaces exported field group configuration names.
const ConfigPrefix = "field_group"

var machineNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Scope identifies the entity type, bundle and display mode a group belongs to.
// Ids and machine names are unique within a scope and parents never cross one.
type Scope struct {
	EntityType string `json:"entity_type" yaml:"entity_type"`
	Bundle     string `json:"bundle" yaml:"bundle"`
	Mode       string `json:"mode" yaml:"mode"`
}

func (s Scope) String() string {
	return s.EntityType + "." + s.Bundle + "." + s.Mode
}

// Validate checks every scope component is a machine name.
func (s Scope) Validate() error {
	for _, part := range []struct{ name, value string }{
		{"entity_type", s.EntityType},
		{"bundle", s.Bundle},
		{"mode", s.Mode},
	} {
		if err := checkMachineName(part.name, part.value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBundle checks the entity type and bundle that name a bundle
// across all of its modes.
func ValidateBundle(entityType, bundle string) error {
	if err := checkMachineName("entity_type", entityType); err != nil {
		return err
	}
	return checkMachineName("bundle", bundle)
}

// FieldGroup is one field group record: a named container of entity fields and
// nested groups, rendered with a widget in one display mode of a bundle.
type FieldGroup struct {
	EntityType     string            `gorm:"primaryKey;size:64;uniqueIndex:idx_field_group_machine_name,priority:1" json:"entity_type"`
	Bundle         string            `gorm:"primaryKey;size:64;uniqueIndex:idx_field_group_machine_name,priority:2" json:"bundle"`
	Mode           string            `gorm:"primaryKey;size:64;uniqueIndex:idx_field_group_machine_name,priority:3" json:"mode"`
	ID             string            `gorm:"primaryKey;size:64" json:"id"`
	UUID           string            `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	Label          string            `gorm:"not null" json:"label"`
	WidgetType     string            `gorm:"size:64;not null" json:"widget_type"`
	Parent         string            `gorm:"size:64;index" json:"parent"`
	MachineName    string            `gorm:"size:64;not null;uniqueIndex:idx_field_group_machine_name,priority:4" json:"machine_name"`
	Fields         []string          `gorm:"serializer:json;type:text" json:"fields"`
	FieldOrder     []string          `gorm:"serializer:json;type:text" json:"field_order,omitempty"`
	FieldGroups    []string          `gorm:"serializer:json;type:text" json:"field_groups"`
	WidgetSettings datatypes.JSONMap `gorm:"column:settings" json:"settings,omitempty"`
	Weight         int               `gorm:"default:0" json:"weight"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewFieldGroupParams carries the attributes of a group being created.
type NewFieldGroupParams struct {
	ID          string
	Label       string
	EntityType  string
	Bundle      string
	Mode        string
	WidgetType  string
	Parent      string
	MachineName string
	Fields      []string
	FieldOrder  []string
	FieldGroups []string
	Settings    map[string]any
	Weight      int
}

// NewFieldGroup builds a validated record and assigns it a fresh UUID.
// The parent is only checked against the group itself here; resolving it
// against sibling groups needs a Lookup, see SetParent and CheckHierarchy.
func NewFieldGroup(p NewFieldGroupParams) (*FieldGroup, error) {
	g := &FieldGroup{
		ID:          p.ID,
		Label:       p.Label,
		UUID:        uuid.NewString(),
		EntityType:  p.EntityType,
		Bundle:      p.Bundle,
		Mode:        p.Mode,
		WidgetType:  p.WidgetType,
		Parent:      p.Parent,
		MachineName: p.MachineName,
		Fields:      cloneOrEmpty(p.Fields),
		FieldGroups: cloneOrEmpty(p.FieldGroups),
		Weight:      p.Weight,
	}
	if len(p.FieldOrder) > 0 {
		g.FieldOrder = slices.Clone(p.FieldOrder)
	}
	if len(p.Settings) > 0 {
		g.WidgetSettings = datatypes.JSONMap(maps.Clone(p.Settings))
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Scope returns the entity type, bundle and mode of the group.
func (g *FieldGroup) Scope() Scope {
	return Scope{EntityType: g.EntityType, Bundle: g.Bundle, Mode: g.Mode}
}

// ConfigName is the key the group is exported under.
func (g *FieldGroup) ConfigName() string {
	return ConfigName(g.Scope(), g.ID)
}

// ConfigName builds field_group.<entity_type>.<bundle>.<mode>.<id>.
func ConfigName(scope Scope, id string) string {
	return ConfigPrefix + "." + scope.String() + "." + id
}

// Validate checks the invariants that can be decided from the record alone.
func (g *FieldGroup) Validate() error {
	if g.ID == "" {
		return invalid("id", "must not be empty")
	}
	if err := checkMachineName("id", g.ID); err != nil {
		return err
	}
	if err := g.Scope().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(g.Label) == "" {
		return invalid("label", "must not be empty")
	}
	if g.UUID != "" {
		if _, err := uuid.Parse(g.UUID); err != nil {
			return invalid("uuid", "must be a valid UUID")
		}
	}
	if g.WidgetType == "" {
		return invalid("widget_type", "must not be empty")
	}
	if err := checkMachineName("machine_name", g.MachineName); err != nil {
		return err
	}
	if g.Parent != "" {
		if g.Parent == g.MachineName {
			return invalid("parent", "must not be the group's own machine name")
		}
		if err := checkMachineName("parent", g.Parent); err != nil {
			return err
		}
	}
	if err := checkMembers("fields", g.Fields); err != nil {
		return err
	}
	if err := checkMembers("field_groups", g.FieldGroups); err != nil {
		return err
	}
	if lo.Contains(g.Fields, g.MachineName) {
		return invalid("fields", fmt.Sprintf("group machine name %q cannot be listed as a field", g.MachineName))
	}
	if lo.Contains(g.FieldGroups, g.MachineName) {
		return invalid("field_groups", fmt.Sprintf("group %q cannot contain itself", g.MachineName))
	}
	return checkPermutation(g.Fields, g.FieldOrder)
}

// Settings returns a copy of the widget settings. It is never nil.
func (g *FieldGroup) Settings() map[string]any {
	if len(g.WidgetSettings) == 0 {
		return map[string]any{}
	}
	return maps.Clone(map[string]any(g.WidgetSettings))
}

// SetSettings replaces the widget settings.
func (g *FieldGroup) SetSettings(settings map[string]any) {
	if len(settings) == 0 {
		g.WidgetSettings = nil
		return
	}
	g.WidgetSettings = datatypes.JSONMap(maps.Clone(settings))
}

// DisplayOrder returns the fields in the order they should be rendered.
func (g *FieldGroup) DisplayOrder() []string {
	if len(g.FieldOrder) > 0 {
		return slices.Clone(g.FieldOrder)
	}
	return slices.Clone(g.Fields)
}

// SetParent moves the group under parent, or to the top level when parent is
// empty. The ancestor chain of the new parent is walked through lookup and the
// move is rejected if it reaches this group.
func (g *FieldGroup) SetParent(parent string, lookup Lookup) error {
	if parent == "" {
		g.Parent = ""
		return nil
	}
	if parent == g.MachineName {
		return &CycleError{Group: g.MachineName, Parent: parent}
	}
	if lookup == nil {
		return invalid("parent", "no sibling groups to resolve against")
	}
	p, ok := lookup(parent)
	if !ok {
		return invalid("parent", fmt.Sprintf("group %q does not exist", parent))
	}
	if p.Scope() != g.Scope() {
		return invalid("parent", fmt.Sprintf("group %q belongs to %s", parent, p.Scope()))
	}
	if err := checkAncestry(g.MachineName, p, lookup); err != nil {
		return err
	}
	g.Parent = parent
	return nil
}

// AddField inserts a field at position. A negative position or one past the
// end appends. FieldOrder, when set, receives the field at the same position.
func (g *FieldGroup) AddField(name string, position int) error {
	if err := checkMachineName("field", name); err != nil {
		return err
	}
	if name == g.MachineName {
		return invalid("field", fmt.Sprintf("group machine name %q cannot be listed as a field", name))
	}
	if lo.Contains(g.Fields, name) {
		return &DuplicateError{List: "fields", Entry: name}
	}
	fields := insertAt(g.Fields, name, position)
	var order []string
	if len(g.FieldOrder) > 0 {
		order = insertAt(g.FieldOrder, name, position)
	}
	g.Fields = fields
	g.FieldOrder = order
	return nil
}

// RemoveField drops a field from Fields and FieldOrder.
func (g *FieldGroup) RemoveField(name string) error {
	idx := slices.Index(g.Fields, name)
	if idx < 0 {
		return invalid("field", fmt.Sprintf("%q is not a member of group %q", name, g.MachineName))
	}
	fields := slices.Delete(slices.Clone(g.Fields), idx, idx+1)
	var order []string
	if len(g.FieldOrder) > 0 {
		order = lo.Without(g.FieldOrder, name)
	}
	g.Fields = fields
	g.FieldOrder = order
	return nil
}

// SetFieldOrder overrides the display order. An empty order clears it.
func (g *FieldGroup) SetFieldOrder(order []string) error {
	if len(order) == 0 {
		g.FieldOrder = nil
		return nil
	}
	if err := checkPermutation(g.Fields, order); err != nil {
		return err
	}
	g.FieldOrder = slices.Clone(order)
	return nil
}

// AddSubgroup lists a child group at position. It only touches this record;
// the child's Parent is kept in step by the caller.
func (g *FieldGroup) AddSubgroup(name string, position int) error {
	if err := checkMachineName("field_group", name); err != nil {
		return err
	}
	if name == g.MachineName {
		return &CycleError{Group: name, Parent: g.MachineName}
	}
	if lo.Contains(g.FieldGroups, name) {
		return &DuplicateError{List: "field_groups", Entry: name}
	}
	g.FieldGroups = insertAt(g.FieldGroups, name, position)
	return nil
}

// RemoveSubgroup unlists a child group.
func (g *FieldGroup) RemoveSubgroup(name string) error {
	idx := slices.Index(g.FieldGroups, name)
	if idx < 0 {
		return invalid("field_group", fmt.Sprintf("%q is not a subgroup of %q", name, g.MachineName))
	}
	g.FieldGroups = slices.Delete(slices.Clone(g.FieldGroups), idx, idx+1)
	return nil
}

// Clone returns a deep copy.
func (g *FieldGroup) Clone() *FieldGroup {
	c := *g
	c.Fields = slices.Clone(g.Fields)
	c.FieldOrder = slices.Clone(g.FieldOrder)
	c.FieldGroups = slices.Clone(g.FieldGroups)
	if g.WidgetSettings != nil {
		c.WidgetSettings = datatypes.JSONMap(maps.Clone(map[string]any(g.WidgetSettings)))
	}
	return &c
}

func checkMachineName(field, value string) error {
	if value == "" {
		return invalid(field, "must not be empty")
	}
	if !machineNamePattern.MatchString(value) {
		return invalid(field, fmt.Sprintf("%q must contain only lowercase letters, digits and underscores", value))
	}
	return nil
}

func checkMembers(list string, entries []string) error {
	for _, e := range entries {
		if err := checkMachineName(list, e); err != nil {
			return err
		}
	}
	if dups := lo.FindDuplicates(entries); len(dups) > 0 {
		return invalid(list, fmt.Sprintf("%q is listed more than once", dups[0]))
	}
	return nil
}

func checkPermutation(fields, order []string) error {
	if len(order) == 0 {
		return nil
	}
	if dups := lo.FindDuplicates(order); len(dups) > 0 {
		return invalid("field_order", fmt.Sprintf("%q is listed more than once", dups[0]))
	}
	if len(order) != len(fields) || !lo.ElementsMatch(fields, order) {
		return invalid("field_order", "must list exactly the group's fields")
	}
	return nil
}

func insertAt(list []string, entry string, position int) []string {
	out := slices.Clone(list)
	if position < 0 || position >= len(out) {
		return append(out, entry)
	}
	return slices.Insert(out, position, entry)
}

func cloneOrEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return slices.Clone(list)
}
