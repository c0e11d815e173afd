package groups

import (
	"fmt"
	"slices"

	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/storage"
)

// workset is the in-memory copy of one scope that an operation edits. It
// remembers which records were touched so only those are written back.
type workset struct {
	scope   models.Scope
	groups  []*models.FieldGroup
	ops     map[string]string
	order   []string
	deleted []*models.FieldGroup
}

func newWorkset(scope models.Scope, groups []*models.FieldGroup) *workset {
	return &workset{scope: scope, groups: groups, ops: make(map[string]string)}
}

func (w *workset) lookup(machineName string) (*models.FieldGroup, bool) {
	for _, g := range w.groups {
		if g.MachineName == machineName {
			return g, true
		}
	}
	return nil, false
}

func (w *workset) find(id string) (*models.FieldGroup, error) {
	for _, g := range w.groups {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", models.ConfigName(w.scope, id), storage.ErrNotFound)
}

// touch marks g for saving. The first op recorded for a record wins.
func (w *workset) touch(g *models.FieldGroup, op string) {
	if _, ok := w.ops[g.ID]; ok {
		return
	}
	w.ops[g.ID] = op
	w.order = append(w.order, g.ID)
}

func (w *workset) opFor(g *models.FieldGroup) string {
	return w.ops[g.ID]
}

// saved returns the touched records that still exist, in touch order.
func (w *workset) saved() []*models.FieldGroup {
	out := make([]*models.FieldGroup, 0, len(w.order))
	for _, id := range w.order {
		if g, err := w.find(id); err == nil {
			out = append(out, g)
		}
	}
	return out
}

func (w *workset) create(g *models.FieldGroup) error {
	if _, err := w.find(g.ID); err == nil {
		return &models.DuplicateError{List: "ids of " + w.scope.String(), Entry: g.ID}
	}
	if _, ok := w.lookup(g.MachineName); ok {
		return &models.DuplicateError{List: "machine names of " + w.scope.String(), Entry: g.MachineName}
	}

	parent := g.Parent
	children := g.FieldGroups
	g.Parent = ""
	g.FieldGroups = []string{}
	w.groups = append(w.groups, g)
	w.touch(g, OpCreate)

	for _, name := range children {
		if err := w.adopt(g, name, -1); err != nil {
			return err
		}
	}
	if parent != "" {
		return w.move(g, parent, -1)
	}
	return nil
}

// detach takes g out of its parent's subgroup list and makes it top level.
func (w *workset) detach(g *models.FieldGroup) error {
	if g.Parent == "" {
		return nil
	}
	if p, ok := w.lookup(g.Parent); ok {
		if err := p.RemoveSubgroup(g.MachineName); err != nil {
			return err
		}
		w.touch(p, OpRelink)
	}
	g.Parent = ""
	w.touch(g, OpRelink)
	return nil
}

// move re-parents g under parent at position, or to the top level when
// parent is empty.
func (w *workset) move(g *models.FieldGroup, parent string, position int) error {
	if parent == g.Parent && parent != "" {
		p, _ := w.lookup(parent)
		if err := p.RemoveSubgroup(g.MachineName); err != nil {
			return err
		}
		w.touch(p, OpRelink)
		return p.AddSubgroup(g.MachineName, position)
	}
	if err := w.detach(g); err != nil {
		return err
	}
	if parent == "" {
		return nil
	}
	if err := g.SetParent(parent, w.lookup); err != nil {
		return err
	}
	p, _ := w.lookup(parent)
	if err := p.AddSubgroup(g.MachineName, position); err != nil {
		return err
	}
	w.touch(p, OpRelink)
	return nil
}

// adopt lists the group called name under p, taking it from its old parent.
func (w *workset) adopt(p *models.FieldGroup, name string, position int) error {
	c, ok := w.lookup(name)
	if !ok {
		return &models.ValidationError{Field: "field_groups", Reason: fmt.Sprintf("group %q does not exist", name)}
	}
	if err := p.AddSubgroup(name, position); err != nil {
		return err
	}
	if err := w.detach(c); err != nil {
		return err
	}
	if err := c.SetParent(p.MachineName, w.lookup); err != nil {
		return err
	}
	w.touch(c, OpRelink)
	w.touch(p, OpRelink)
	return nil
}

// release unlists the group called name from p and makes it top level.
func (w *workset) release(p *models.FieldGroup, name string) error {
	if err := p.RemoveSubgroup(name); err != nil {
		return err
	}
	if c, ok := w.lookup(name); ok {
		c.Parent = ""
		w.touch(c, OpRelink)
	}
	return nil
}

// rename changes g's machine name and rewrites the references to it.
func (w *workset) rename(g *models.FieldGroup, name string) error {
	if name == g.MachineName {
		return nil
	}
	if _, taken := w.lookup(name); taken {
		return &models.DuplicateError{List: "machine names of " + w.scope.String(), Entry: name}
	}
	old := g.MachineName
	if g.Parent != "" {
		if p, ok := w.lookup(g.Parent); ok {
			idx := slices.Index(p.FieldGroups, old)
			if err := p.RemoveSubgroup(old); err != nil {
				return err
			}
			if err := p.AddSubgroup(name, idx); err != nil {
				return err
			}
			w.touch(p, OpRelink)
		}
	}
	for _, child := range g.FieldGroups {
		if c, ok := w.lookup(child); ok {
			c.Parent = name
			w.touch(c, OpRelink)
		}
	}
	g.MachineName = name
	return nil
}

// load puts incoming into the scope. A group with the id of a stored one
// replaces it; with replace set, stored groups not in incoming are deleted.
func (w *workset) load(incoming []*models.FieldGroup, replace bool) {
	ids := make(map[string]bool, len(incoming))
	for _, g := range incoming {
		ids[g.ID] = true
	}
	existing := make(map[string]*models.FieldGroup, len(w.groups))
	next := make([]*models.FieldGroup, 0, len(w.groups)+len(incoming))
	for _, old := range w.groups {
		existing[old.ID] = old
		switch {
		case ids[old.ID]:
			// replaced by the incoming copy
		case replace:
			w.deleted = append(w.deleted, old)
		default:
			next = append(next, old)
		}
	}
	for _, g := range incoming {
		if old, ok := existing[g.ID]; ok && g.UUID == "" {
			g.UUID = old.UUID
		}
		next = append(next, g)
		w.touch(g, OpImport)
	}
	w.groups = next
}

// remove deletes g. Its children take its place in the parent's list, or
// become top level.
func (w *workset) remove(g *models.FieldGroup) error {
	for _, name := range g.FieldGroups {
		if c, ok := w.lookup(name); ok {
			c.Parent = g.Parent
			w.touch(c, OpRelink)
		}
	}
	if g.Parent != "" {
		if p, ok := w.lookup(g.Parent); ok {
			idx := slices.Index(p.FieldGroups, g.MachineName)
			if err := p.RemoveSubgroup(g.MachineName); err != nil {
				return err
			}
			for i, name := range g.FieldGroups {
				if err := p.AddSubgroup(name, idx+i); err != nil {
					return err
				}
			}
			w.touch(p, OpRelink)
		}
	}
	w.groups = slices.DeleteFunc(w.groups, func(x *models.FieldGroup) bool { return x.ID == g.ID })
	w.deleted = append(w.deleted, g)
	return nil
}
