package models

import (
	"fmt"
	"slices"
)

// Lookup resolves a machine name to a sibling group in the same scope.
type Lookup func(machineName string) (*FieldGroup, bool)

// IndexByMachineName builds a Lookup over groups.
func IndexByMachineName(groups []*FieldGroup) Lookup {
	index := make(map[string]*FieldGroup, len(groups))
	for _, g := range groups {
		index[g.MachineName] = g
	}
	return func(machineName string) (*FieldGroup, bool) {
		g, ok := index[machineName]
		return g, ok
	}
}

// checkAncestry walks up from start and fails if it meets machineName or
// revisits a group. A dangling parent ends the walk.
func checkAncestry(machineName string, start *FieldGroup, lookup Lookup) error {
	seen := make(map[string]struct{})
	for cur := start; cur != nil; {
		if cur.MachineName == machineName {
			return &CycleError{Group: machineName, Parent: start.MachineName}
		}
		if _, ok := seen[cur.MachineName]; ok {
			return &CycleError{Group: cur.MachineName, Parent: cur.Parent}
		}
		seen[cur.MachineName] = struct{}{}
		if cur.Parent == "" {
			return nil
		}
		next, ok := lookup(cur.Parent)
		if !ok {
			return nil
		}
		cur = next
	}
	return nil
}

// CheckHierarchy validates a complete scope: every record on its own, unique
// ids and machine names, resolvable acyclic parents, and agreement between
// each child's Parent and its parent's FieldGroups.
func CheckHierarchy(groups []*FieldGroup) error {
	ids := make(map[string]struct{}, len(groups))
	names := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("%s: %w", g.ConfigName(), err)
		}
		if _, ok := ids[g.ID]; ok {
			return &DuplicateError{List: "ids of " + g.Scope().String(), Entry: g.ID}
		}
		ids[g.ID] = struct{}{}
		if _, ok := names[g.MachineName]; ok {
			return &DuplicateError{List: "machine names of " + g.Scope().String(), Entry: g.MachineName}
		}
		names[g.MachineName] = struct{}{}
	}
	if len(groups) > 0 {
		scope := groups[0].Scope()
		for _, g := range groups[1:] {
			if g.Scope() != scope {
				return invalid("scope", fmt.Sprintf("%s and %s are checked together", scope, g.Scope()))
			}
		}
	}

	lookup := IndexByMachineName(groups)
	for _, g := range groups {
		if g.Parent != "" {
			p, ok := lookup(g.Parent)
			if !ok {
				return invalid("parent", fmt.Sprintf("group %q refers to missing parent %q", g.MachineName, g.Parent))
			}
			if err := checkAncestry(g.MachineName, p, lookup); err != nil {
				return err
			}
			if !slices.Contains(p.FieldGroups, g.MachineName) {
				return invalid("field_groups", fmt.Sprintf("group %q does not list its child %q", p.MachineName, g.MachineName))
			}
		}
		for _, child := range g.FieldGroups {
			c, ok := lookup(child)
			if !ok {
				return invalid("field_groups", fmt.Sprintf("group %q lists missing subgroup %q", g.MachineName, child))
			}
			if c.Parent != g.MachineName {
				return invalid("field_groups", fmt.Sprintf("group %q lists %q whose parent is %q", g.MachineName, child, c.Parent))
			}
		}
	}
	return nil
}
