// Package groups manages field groups: a Service that applies changes to a
// scope atomically and the HTTP handlers that expose it.
package groups

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikepea/fieldgroup/pkg/fieldgroup/events"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/logx"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/registry"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/storage"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/tree"
	"go.uber.org/zap"
)

// Operation names carried in change events.
const (
	OpCreate         = "create"
	OpUpdate         = "update"
	OpDelete         = "delete"
	OpSetParent      = "set_parent"
	OpAddField       = "add_field"
	OpRemoveField    = "remove_field"
	OpSetFieldOrder  = "set_field_order"
	OpAddSubgroup    = "add_subgroup"
	OpRemoveSubgroup = "remove_subgroup"
	OpImport         = "import"
)

// OpRelink marks records rewritten only to keep parent links consistent.
const OpRelink = "relink"

// Service applies field group changes. Each mutation loads the whole scope,
// edits it in memory, checks the hierarchy and widget nesting and writes
// the touched records in one transaction.
type Service struct {
	store  storage.Store
	reg    *registry.Registry
	events events.Publisher
	log    *logx.Logger
}

// NewService creates a service. A nil publisher drops events.
func NewService(store storage.Store, reg *registry.Registry, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Service{store: store, reg: reg, events: pub, log: logx.GetScope("groups")}
}

// Registry returns the registry the service validates against.
func (s *Service) Registry() *registry.Registry {
	return s.reg
}

// UpdateInput lists the attributes Update may change. Nil fields are kept.
type UpdateInput struct {
	Label       *string
	WidgetType  *string
	MachineName *string
	Settings    map[string]any
	Weight      *int
}

func (s *Service) List(ctx context.Context, scope models.Scope) ([]*models.FieldGroup, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListByScope(ctx, scope)
}

// Scopes lists every scope that has at least one group.
func (s *Service) Scopes(ctx context.Context) ([]models.Scope, error) {
	return s.store.ListScopes(ctx)
}

func (s *Service) Get(ctx context.Context, scope models.Scope, id string) (*models.FieldGroup, error) {
	return s.store.Load(ctx, scope, id)
}

// Tree returns the nested groups of a scope in display order.
func (s *Service) Tree(ctx context.Context, scope models.Scope) ([]*tree.Node, error) {
	groups, err := s.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	return tree.Build(groups, s.reg), nil
}

// Create adds a group to its scope. A parent gets the group appended to its
// subgroups and any listed subgroups are moved under the new group.
func (s *Service) Create(ctx context.Context, p models.NewFieldGroupParams) (*models.FieldGroup, error) {
	scope := models.Scope{EntityType: p.EntityType, Bundle: p.Bundle, Mode: p.Mode}
	if err := s.reg.ValidateScope(scope); err != nil {
		return nil, err
	}
	g, err := models.NewFieldGroup(p)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, scope, func(w *workset) error {
		return w.create(g)
	}); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) Update(ctx context.Context, scope models.Scope, id string, in UpdateInput) (*models.FieldGroup, error) {
	return s.edit(ctx, scope, id, OpUpdate, func(w *workset, g *models.FieldGroup) error {
		if in.MachineName != nil {
			if err := w.rename(g, *in.MachineName); err != nil {
				return err
			}
		}
		if in.Label != nil {
			g.Label = *in.Label
		}
		if in.WidgetType != nil {
			g.WidgetType = *in.WidgetType
		}
		if in.Settings != nil {
			g.SetSettings(in.Settings)
		}
		if in.Weight != nil {
			g.Weight = *in.Weight
		}
		return nil
	})
}

// Delete removes a group. Its subgroups move up to its parent.
func (s *Service) Delete(ctx context.Context, scope models.Scope, id string) error {
	return s.apply(ctx, scope, func(w *workset) error {
		g, err := w.find(id)
		if err != nil {
			return err
		}
		return w.remove(g)
	})
}

// SetParent moves a group under parent at position, or to the top level
// when parent is empty.
func (s *Service) SetParent(ctx context.Context, scope models.Scope, id, parent string, position int) (*models.FieldGroup, error) {
	return s.edit(ctx, scope, id, OpSetParent, func(w *workset, g *models.FieldGroup) error {
		return w.move(g, parent, position)
	})
}

func (s *Service) AddField(ctx context.Context, scope models.Scope, id, field string, position int) (*models.FieldGroup, error) {
	return s.edit(ctx, scope, id, OpAddField, func(_ *workset, g *models.FieldGroup) error {
		return g.AddField(field, position)
	})
}

func (s *Service) RemoveField(ctx context.Context, scope models.Scope, id, field string) (*models.FieldGroup, error) {
	return s.edit(ctx, scope, id, OpRemoveField, func(_ *workset, g *models.FieldGroup) error {
		return g.RemoveField(field)
	})
}

func (s *Service) SetFieldOrder(ctx context.Context, scope models.Scope, id string, order []string) (*models.FieldGroup, error) {
	return s.edit(ctx, scope, id, OpSetFieldOrder, func(_ *workset, g *models.FieldGroup) error {
		return g.SetFieldOrder(order)
	})
}

// AddSubgroup nests the group called child under the group id.
func (s *Service) AddSubgroup(ctx context.Context, scope models.Scope, id, child string, position int) (*models.FieldGroup, error) {
	return s.edit(ctx, scope, id, OpAddSubgroup, func(w *workset, g *models.FieldGroup) error {
		return w.adopt(g, child, position)
	})
}

// RemoveSubgroup unnests child; it stays in the scope as a top-level group.
func (s *Service) RemoveSubgroup(ctx context.Context, scope models.Scope, id, child string) (*models.FieldGroup, error) {
	return s.edit(ctx, scope, id, OpRemoveSubgroup, func(w *workset, g *models.FieldGroup) error {
		return w.release(g, child)
	})
}

// DeleteBundle removes every group of a bundle in all its modes.
func (s *Service) DeleteBundle(ctx context.Context, entityType, bundle string) (int64, error) {
	if err := models.ValidateBundle(entityType, bundle); err != nil {
		return 0, err
	}
	var removed []*models.FieldGroup
	var n int64
	err := s.store.Transaction(ctx, func(tx storage.Store) error {
		scopes, err := tx.ListScopes(ctx)
		if err != nil {
			return err
		}
		for _, scope := range scopes {
			if scope.EntityType != entityType || scope.Bundle != bundle {
				continue
			}
			groups, err := tx.ListByScope(ctx, scope)
			if err != nil {
				return err
			}
			removed = append(removed, groups...)
		}
		n, err = tx.DeleteByBundle(ctx, entityType, bundle)
		return err
	})
	if err != nil {
		return 0, err
	}
	for _, g := range removed {
		s.publish(ctx, events.GroupDeleted, g, OpDelete)
	}
	s.log.Info("bundle field groups deleted",
		zap.String("entity_type", entityType), zap.String("bundle", bundle), zap.Int64("count", n))
	return n, nil
}

// ImportOptions control Import.
type ImportOptions struct {
	// Replace deletes groups of the imported scopes that are not in the import.
	Replace bool
	// DryRun validates and rolls back.
	DryRun bool
}

// ImportResult summarises an import.
type ImportResult struct {
	Scopes  int  `json:"scopes"`
	Saved   int  `json:"saved"`
	Deleted int  `json:"deleted"`
	DryRun  bool `json:"dry_run"`
}

var errDryRun = errors.New("dry run")

// Import writes groups into their scopes in a single transaction. An
// imported group replaces the stored group with the same id and inherits
// its UUID when it carries none. Every touched scope must pass the same
// checks as any other change or nothing is written.
func (s *Service) Import(ctx context.Context, groups []*models.FieldGroup, opts ImportOptions) (ImportResult, error) {
	byScope := make(map[models.Scope][]*models.FieldGroup)
	var scopes []models.Scope
	for _, g := range groups {
		scope := g.Scope()
		if _, ok := byScope[scope]; !ok {
			if err := s.reg.ValidateScope(scope); err != nil {
				return ImportResult{}, fmt.Errorf("%s: %w", g.ConfigName(), err)
			}
			scopes = append(scopes, scope)
		}
		byScope[scope] = append(byScope[scope], g)
	}

	result := ImportResult{Scopes: len(scopes), DryRun: opts.DryRun}
	var sets []*workset
	err := s.store.Transaction(ctx, func(tx storage.Store) error {
		for _, scope := range scopes {
			w, err := s.change(ctx, tx, scope, func(w *workset) error {
				w.load(byScope[scope], opts.Replace)
				return nil
			})
			if err != nil {
				return err
			}
			sets = append(sets, w)
			result.Saved += len(w.saved())
			result.Deleted += len(w.deleted)
		}
		if opts.DryRun {
			return errDryRun
		}
		return nil
	})
	if opts.DryRun && errors.Is(err, errDryRun) {
		return result, nil
	}
	if err != nil {
		s.log.Warn("field group import rejected", zap.Int("groups", len(groups)), zap.Error(err))
		return ImportResult{}, err
	}
	for _, w := range sets {
		s.announce(ctx, w)
	}
	return result, nil
}

func (s *Service) edit(ctx context.Context, scope models.Scope, id, op string, fn func(w *workset, g *models.FieldGroup) error) (*models.FieldGroup, error) {
	var target *models.FieldGroup
	err := s.apply(ctx, scope, func(w *workset) error {
		g, err := w.find(id)
		if err != nil {
			return err
		}
		w.touch(g, op)
		target = g
		return fn(w, g)
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

func (s *Service) apply(ctx context.Context, scope models.Scope, fn func(w *workset) error) error {
	var w *workset
	err := s.store.Transaction(ctx, func(tx storage.Store) error {
		var err error
		w, err = s.change(ctx, tx, scope, fn)
		return err
	})
	if err != nil {
		s.log.Warn("field group change rejected", zap.String("scope", scope.String()), zap.Error(err))
		return err
	}
	s.announce(ctx, w)
	return nil
}

// change loads scope through tx, lets fn edit it, checks the result and
// writes the touched records.
func (s *Service) change(ctx context.Context, tx storage.Store, scope models.Scope, fn func(w *workset) error) (*workset, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	groups, err := tx.ListByScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	w := newWorkset(scope, groups)
	if err := fn(w); err != nil {
		return nil, err
	}
	if err := models.CheckHierarchy(w.groups); err != nil {
		return nil, err
	}
	if err := s.checkWidgets(w); err != nil {
		return nil, err
	}
	for _, g := range w.deleted {
		if err := tx.Delete(ctx, scope, g.ID); err != nil {
			return nil, err
		}
	}
	if saved := w.saved(); len(saved) > 0 {
		if err := tx.Save(ctx, saved...); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (s *Service) announce(ctx context.Context, w *workset) {
	for _, g := range w.deleted {
		s.publish(ctx, events.GroupDeleted, g, OpDelete)
	}
	for _, g := range w.saved() {
		s.publish(ctx, events.GroupSaved, g, w.opFor(g))
	}
}

// checkWidgets validates the widget of every touched group and of the
// direct children of touched groups against its parent's widget.
func (s *Service) checkWidgets(w *workset) error {
	seen := make(map[string]bool)
	var check []*models.FieldGroup
	for _, g := range w.saved() {
		if !seen[g.MachineName] {
			seen[g.MachineName] = true
			check = append(check, g)
		}
		for _, name := range g.FieldGroups {
			if c, ok := w.lookup(name); ok && !seen[name] {
				seen[name] = true
				check = append(check, c)
			}
		}
	}
	for _, g := range check {
		parentWidget := ""
		if g.Parent != "" {
			if p, ok := w.lookup(g.Parent); ok {
				parentWidget = p.WidgetType
			}
		}
		if err := s.reg.ValidateWidget(w.scope.Mode, g.WidgetType, parentWidget); err != nil {
			return fmt.Errorf("%s: %w", g.ConfigName(), err)
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, routingKey string, g *models.FieldGroup, op string) {
	s.log.Info("field group changed",
		zap.String("config_name", g.ConfigName()), zap.String("op", op), zap.String("event", routingKey))
	if err := events.PublishChange(ctx, s.events, routingKey, events.NewChange(g, op)); err != nil {
		s.log.Warn("publish change event failed", zap.String("config_name", g.ConfigName()), zap.Error(err))
	}
}
