// Package tree turns the flat field groups of a scope into the nested,
// ordered structure a renderer walks.
package tree

import (
	"sort"

	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/registry"
)

// Node is one group with its fields and child groups in display order.
type Node struct {
	ID          string         `json:"id"`
	MachineName string         `json:"machine_name"`
	Label       string         `json:"label"`
	WidgetType  string         `json:"widget_type"`
	Settings    map[string]any `json:"settings"`
	Weight      int            `json:"weight"`
	Fields      []string       `json:"fields"`
	Children    []*Node        `json:"children"`
}

// Build arranges groups into a forest. Roots are ordered by weight then id;
// children follow the parent's field_groups list. Settings are resolved
// against reg when it is non-nil. Groups whose parent is missing become roots
// and subgroup entries that name no group are skipped.
func Build(groups []*models.FieldGroup, reg *registry.Registry) []*Node {
	lookup := models.IndexByMachineName(groups)
	visited := make(map[string]bool, len(groups))

	var build func(g *models.FieldGroup) *Node
	build = func(g *models.FieldGroup) *Node {
		visited[g.MachineName] = true
		n := &Node{
			ID:          g.ID,
			MachineName: g.MachineName,
			Label:       g.Label,
			WidgetType:  g.WidgetType,
			Settings:    g.Settings(),
			Weight:      g.Weight,
			Fields:      g.DisplayOrder(),
			Children:    []*Node{},
		}
		if reg != nil {
			n.Settings = reg.ResolvedSettings(g)
		}
		for _, name := range g.FieldGroups {
			child, ok := lookup(name)
			if !ok || visited[name] {
				continue
			}
			n.Children = append(n.Children, build(child))
		}
		return n
	}

	roots := make([]*models.FieldGroup, 0, len(groups))
	for _, g := range groups {
		if g.Parent == "" {
			roots = append(roots, g)
			continue
		}
		if _, ok := lookup(g.Parent); !ok {
			roots = append(roots, g)
		}
	}
	sort.SliceStable(roots, func(i, j int) bool {
		if roots[i].Weight != roots[j].Weight {
			return roots[i].Weight < roots[j].Weight
		}
		return roots[i].ID < roots[j].ID
	})

	out := make([]*Node, 0, len(roots))
	for _, g := range roots {
		if !visited[g.MachineName] {
			out = append(out, build(g))
		}
	}
	return out
}

// Walk calls fn for every node depth-first, passing its depth.
func Walk(nodes []*Node, fn func(n *Node, depth int)) {
	var walk func(ns []*Node, depth int)
	walk = func(ns []*Node, depth int) {
		for _, n := range ns {
			fn(n, depth)
			walk(n.Children, depth+1)
		}
	}
	walk(nodes, 0)
}
