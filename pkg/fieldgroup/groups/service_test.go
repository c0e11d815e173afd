package groups

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/mikepea/fieldgroup/pkg/fieldgroup/events"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/registry"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var articleForm = models.Scope{EntityType: "node", Bundle: "article", Mode: "form"}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func setupTestService(t *testing.T) (*Service, *events.Recorder) {
	rec := &events.Recorder{}
	return NewService(storage.NewGormStore(setupTestDB(t)), registry.Default(), rec), rec
}

func params(id, widget, parent string, fields, subgroups []string) models.NewFieldGroupParams {
	return models.NewFieldGroupParams{
		ID:          id,
		Label:       "Group " + id,
		EntityType:  "node",
		Bundle:      "article",
		Mode:        "form",
		WidgetType:  widget,
		Parent:      parent,
		MachineName: "group_" + id,
		Fields:      fields,
		FieldGroups: subgroups,
	}
}

func mustCreate(t *testing.T, svc *Service, p models.NewFieldGroupParams) *models.FieldGroup {
	t.Helper()
	g, err := svc.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", p.ID, err)
	}
	return g
}

func load(t *testing.T, svc *Service, id string) *models.FieldGroup {
	t.Helper()
	g, err := svc.Get(context.Background(), articleForm, id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	return g
}

// chain builds a -> b -> c, each a fieldset nested in the previous one.
func chain(t *testing.T, svc *Service) {
	mustCreate(t, svc, params("a", "fieldset", "", nil, nil))
	mustCreate(t, svc, params("b", "fieldset", "group_a", nil, nil))
	mustCreate(t, svc, params("c", "fieldset", "group_b", nil, nil))
}

func TestCreateLinksParent(t *testing.T) {
	svc, rec := setupTestService(t)

	mustCreate(t, svc, params("tabs", "tabs", "", nil, nil))
	tab := mustCreate(t, svc, params("first", "tab", "group_tabs", []string{"title", "body"}, nil))

	if tab.UUID == "" || tab.CreatedAt.IsZero() {
		t.Errorf("Expected stored group to have UUID and timestamps, got %+v", tab)
	}
	parent := load(t, svc, "tabs")
	if !slices.Equal(parent.FieldGroups, []string{"group_first"}) {
		t.Errorf("Expected parent to list child, got %v", parent.FieldGroups)
	}

	// create tabs, create first (+ relink of tabs)
	if len(rec.Events) != 3 {
		t.Fatalf("Expected 3 events, got %d: %+v", len(rec.Events), rec.Events)
	}
	last := rec.Events[1]
	if last.RoutingKey != events.GroupSaved || last.Change.Op != OpCreate {
		t.Errorf("Unexpected event %+v", last)
	}
}

func TestCreateAdoptsSubgroups(t *testing.T) {
	svc, _ := setupTestService(t)

	mustCreate(t, svc, params("old", "fieldset", "", nil, nil))
	mustCreate(t, svc, params("child", "fieldset", "group_old", nil, nil))
	mustCreate(t, svc, params("new", "fieldset", "", nil, []string{"group_child"}))

	if got := load(t, svc, "child").Parent; got != "group_new" {
		t.Errorf("Expected child moved to group_new, got %q", got)
	}
	if got := load(t, svc, "old").FieldGroups; len(got) != 0 {
		t.Errorf("Expected old parent to drop child, got %v", got)
	}
}

func TestCreateErrors(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	chain(t, svc)

	tests := []struct {
		name string
		p    models.NewFieldGroupParams
		want error
	}{
		{"unregistered bundle", func() models.NewFieldGroupParams {
			p := params("x", "fieldset", "", nil, nil)
			p.Bundle = "blog"
			return p
		}(), models.ErrValidation},
		{"missing parent", params("x", "fieldset", "group_missing", nil, nil), models.ErrValidation},
		{"duplicate id", params("a", "fieldset", "", nil, nil), models.ErrDuplicate},
		{"duplicate machine name", func() models.NewFieldGroupParams {
			p := params("x", "fieldset", "", nil, nil)
			p.MachineName = "group_a"
			return p
		}(), models.ErrDuplicate},
		{"self parent", params("x", "fieldset", "group_x", nil, nil), models.ErrValidation},
		{"adopts own ancestor", params("x", "fieldset", "group_c", nil, []string{"group_a"}), models.ErrCycle},
		{"tab without tabs", params("x", "tab", "", nil, nil), models.ErrValidation},
		{"unknown subgroup", params("x", "fieldset", "", nil, []string{"group_nope"}), models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.p)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	groups, _ := svc.List(ctx, articleForm)
	if len(groups) != 3 {
		t.Errorf("Expected failed creates to leave 3 groups, got %d", len(groups))
	}
	if got := load(t, svc, "a").Parent; got != "" {
		t.Errorf("Expected group_a untouched, got parent %q", got)
	}
}

func TestSetParentCycle(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	chain(t, svc)

	if _, err := svc.SetParent(ctx, articleForm, "c", "group_a", -1); err != nil {
		t.Fatalf("Expected c under a to succeed, got %v", err)
	}
	if got := load(t, svc, "b").FieldGroups; len(got) != 0 {
		t.Errorf("Expected b to release c, got %v", got)
	}
	if got := load(t, svc, "a").FieldGroups; !slices.Equal(got, []string{"group_b", "group_c"}) {
		t.Errorf("Expected a to list b and c, got %v", got)
	}

	if _, err := svc.SetParent(ctx, articleForm, "a", "group_b", -1); !errors.Is(err, models.ErrCycle) {
		t.Errorf("Expected cycle error, got %v", err)
	}
	if got := load(t, svc, "a").Parent; got != "" {
		t.Errorf("Expected a unchanged after failed move, got %q", got)
	}
}

func TestSetParentTopLevelAndReorder(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, params("p", "fieldset", "", nil, nil))
	mustCreate(t, svc, params("x", "fieldset", "group_p", nil, nil))
	mustCreate(t, svc, params("y", "fieldset", "group_p", nil, nil))

	if _, err := svc.SetParent(ctx, articleForm, "y", "group_p", 0); err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}
	if got := load(t, svc, "p").FieldGroups; !slices.Equal(got, []string{"group_y", "group_x"}) {
		t.Errorf("Expected y first, got %v", got)
	}

	if _, err := svc.SetParent(ctx, articleForm, "x", "", -1); err != nil {
		t.Fatalf("Move to top level failed: %v", err)
	}
	if got := load(t, svc, "x").Parent; got != "" {
		t.Errorf("Expected x top level, got %q", got)
	}
	if got := load(t, svc, "p").FieldGroups; !slices.Equal(got, []string{"group_y"}) {
		t.Errorf("Expected p to list only y, got %v", got)
	}
}

func TestFieldOperations(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, params("g", "fieldset", "", []string{"title"}, nil))

	if _, err := svc.AddField(ctx, articleForm, "g", "body", 0); err != nil {
		t.Fatalf("AddField failed: %v", err)
	}
	if _, err := svc.AddField(ctx, articleForm, "g", "body", -1); !errors.Is(err, models.ErrDuplicate) {
		t.Errorf("Expected duplicate error, got %v", err)
	}
	if got := load(t, svc, "g").Fields; !slices.Equal(got, []string{"body", "title"}) {
		t.Errorf("Unexpected fields %v", got)
	}

	if _, err := svc.SetFieldOrder(ctx, articleForm, "g", []string{"title", "body"}); err != nil {
		t.Fatalf("SetFieldOrder failed: %v", err)
	}
	if _, err := svc.SetFieldOrder(ctx, articleForm, "g", []string{"title"}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error for partial order, got %v", err)
	}
	if got := load(t, svc, "g").DisplayOrder(); !slices.Equal(got, []string{"title", "body"}) {
		t.Errorf("Unexpected display order %v", got)
	}

	if _, err := svc.RemoveField(ctx, articleForm, "g", "missing"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
	g, err := svc.RemoveField(ctx, articleForm, "g", "title")
	if err != nil {
		t.Fatalf("RemoveField failed: %v", err)
	}
	if !slices.Equal(g.Fields, []string{"body"}) || !slices.Equal(g.FieldOrder, []string{"body"}) {
		t.Errorf("Expected fields and order in step, got %v / %v", g.Fields, g.FieldOrder)
	}

	if _, err := svc.AddField(ctx, articleForm, "missing", "body", -1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestSubgroupOperations(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	chain(t, svc)
	mustCreate(t, svc, params("d", "fieldset", "", nil, nil))

	if _, err := svc.AddSubgroup(ctx, articleForm, "a", "group_d", 0); err != nil {
		t.Fatalf("AddSubgroup failed: %v", err)
	}
	if got := load(t, svc, "d").Parent; got != "group_a" {
		t.Errorf("Expected d under a, got %q", got)
	}
	if got := load(t, svc, "a").FieldGroups; !slices.Equal(got, []string{"group_d", "group_b"}) {
		t.Errorf("Unexpected subgroups %v", got)
	}

	if _, err := svc.AddSubgroup(ctx, articleForm, "a", "group_d", -1); !errors.Is(err, models.ErrDuplicate) {
		t.Errorf("Expected duplicate error, got %v", err)
	}
	if _, err := svc.AddSubgroup(ctx, articleForm, "c", "group_a", -1); !errors.Is(err, models.ErrCycle) {
		t.Errorf("Expected cycle error, got %v", err)
	}
	if _, err := svc.AddSubgroup(ctx, articleForm, "a", "group_a", -1); !errors.Is(err, models.ErrCycle) {
		t.Errorf("Expected cycle error for self, got %v", err)
	}

	if _, err := svc.RemoveSubgroup(ctx, articleForm, "a", "group_d"); err != nil {
		t.Fatalf("RemoveSubgroup failed: %v", err)
	}
	if got := load(t, svc, "d").Parent; got != "" {
		t.Errorf("Expected d top level, got %q", got)
	}
	if _, err := svc.RemoveSubgroup(ctx, articleForm, "a", "group_d"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestUpdateRename(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	chain(t, svc)

	label := "Renamed"
	name := "group_middle"
	weight := 3
	g, err := svc.Update(ctx, articleForm, "b", UpdateInput{
		Label:       &label,
		MachineName: &name,
		Weight:      &weight,
		Settings:    map[string]any{"classes": "wide"},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if g.Label != "Renamed" || g.Weight != 3 || g.Settings()["classes"] != "wide" {
		t.Errorf("Update not applied: %+v", g)
	}
	if got := load(t, svc, "a").FieldGroups; !slices.Equal(got, []string{"group_middle"}) {
		t.Errorf("Expected parent reference renamed, got %v", got)
	}
	if got := load(t, svc, "c").Parent; got != "group_middle" {
		t.Errorf("Expected child reference renamed, got %q", got)
	}

	taken := "group_a"
	if _, err := svc.Update(ctx, articleForm, "c", UpdateInput{MachineName: &taken}); !errors.Is(err, models.ErrDuplicate) {
		t.Errorf("Expected duplicate error, got %v", err)
	}
	empty := " "
	if _, err := svc.Update(ctx, articleForm, "c", UpdateInput{Label: &empty}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error for blank label, got %v", err)
	}
}

func TestUpdateWidgetNesting(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, params("tabs", "tabs", "", nil, nil))
	mustCreate(t, svc, params("first", "tab", "group_tabs", nil, nil))

	fieldset := "fieldset"
	if _, err := svc.Update(ctx, articleForm, "tabs", UpdateInput{WidgetType: &fieldset}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected tab children to block widget change, got %v", err)
	}
	unknown := "carousel"
	if _, err := svc.Update(ctx, articleForm, "first", UpdateInput{WidgetType: &unknown}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected unknown widget to be rejected, got %v", err)
	}
}

func TestDeleteReparentsChildren(t *testing.T) {
	svc, rec := setupTestService(t)
	ctx := context.Background()
	chain(t, svc)
	mustCreate(t, svc, params("sibling", "fieldset", "group_a", nil, nil))
	rec.Events = nil

	if err := svc.Delete(ctx, articleForm, "b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Get(ctx, articleForm, "b"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected b deleted, got %v", err)
	}
	if got := load(t, svc, "c").Parent; got != "group_a" {
		t.Errorf("Expected c moved to a, got %q", got)
	}
	if got := load(t, svc, "a").FieldGroups; !slices.Equal(got, []string{"group_c", "group_sibling"}) {
		t.Errorf("Expected c in b's place, got %v", got)
	}
	if rec.Events[0].RoutingKey != events.GroupDeleted {
		t.Errorf("Expected delete event first, got %+v", rec.Events[0])
	}

	if err := svc.Delete(ctx, articleForm, "b"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected not found on second delete, got %v", err)
	}
}

func TestDeleteBundle(t *testing.T) {
	svc, rec := setupTestService(t)
	ctx := context.Background()
	chain(t, svc)
	teaser := params("t", "fieldset", "", nil, nil)
	teaser.Mode = "teaser"
	mustCreate(t, svc, teaser)
	page := params("p", "fieldset", "", nil, nil)
	page.Bundle = "page"
	mustCreate(t, svc, page)
	rec.Events = nil

	n, err := svc.DeleteBundle(ctx, "node", "article")
	if err != nil {
		t.Fatalf("DeleteBundle failed: %v", err)
	}
	if n != 4 || len(rec.Events) != 4 {
		t.Errorf("Expected 4 groups and events, got %d and %d", n, len(rec.Events))
	}
	if groups, _ := svc.List(ctx, models.Scope{EntityType: "node", Bundle: "page", Mode: "form"}); len(groups) != 1 {
		t.Errorf("Expected page group to survive, got %d", len(groups))
	}
}

func TestDeleteBundleRejectsBadNames(t *testing.T) {
	svc, rec := setupTestService(t)
	ctx := context.Background()
	chain(t, svc)
	rec.Events = nil

	for _, name := range [][2]string{{"node", "*"}, {"*", "article"}, {"node", "art?cle"}, {"", "article"}} {
		if _, err := svc.DeleteBundle(ctx, name[0], name[1]); !errors.Is(err, models.ErrValidation) {
			t.Errorf("DeleteBundle(%q, %q): expected validation error, got %v", name[0], name[1], err)
		}
	}
	if groups, _ := svc.List(ctx, articleForm); len(groups) != 3 || len(rec.Events) != 0 {
		t.Errorf("Expected nothing deleted, got %d groups and %d events", len(groups), len(rec.Events))
	}
}

func TestImportRefusesDeletedUUID(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	chain(t, svc)
	gone := load(t, svc, "c")
	if err := svc.Delete(ctx, articleForm, "c"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	revived, _ := models.NewFieldGroup(params("c", "fieldset", "", nil, nil))
	revived.UUID = gone.UUID
	if _, err := svc.Import(ctx, []*models.FieldGroup{revived}, ImportOptions{}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error for a deleted UUID, got %v", err)
	}

	revived.UUID = ""
	if _, err := svc.Import(ctx, []*models.FieldGroup{revived}, ImportOptions{}); err != nil {
		t.Errorf("Expected import without UUID to succeed, got %v", err)
	}
	if got := load(t, svc, "c"); got.UUID == gone.UUID {
		t.Errorf("Expected a fresh UUID, got %s", got.UUID)
	}
}

func TestTree(t *testing.T) {
	svc, _ := setupTestService(t)
	chain(t, svc)

	nodes, err := svc.Tree(context.Background(), articleForm)
	if err != nil {
		t.Fatalf("Tree failed: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Children[0].Children[0].ID != "c" {
		t.Errorf("Unexpected tree %+v", nodes)
	}
}

func TestImport(t *testing.T) {
	svc, rec := setupTestService(t)
	ctx := context.Background()
	chain(t, svc)
	original := load(t, svc, "a")
	rec.Events = nil

	a, _ := models.NewFieldGroup(params("a", "details", "", []string{"title"}, nil))
	a.UUID = ""
	x, _ := models.NewFieldGroup(params("x", "fieldset", "", nil, nil))
	teaser := params("t", "fieldset", "", nil, nil)
	teaser.Mode = "teaser"
	tg, _ := models.NewFieldGroup(teaser)

	result, err := svc.Import(ctx, []*models.FieldGroup{a, x, tg}, ImportOptions{Replace: true})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Scopes != 2 || result.Saved != 3 || result.Deleted != 2 {
		t.Errorf("Unexpected result %+v", result)
	}
	if len(rec.Events) != 5 {
		t.Errorf("Expected 5 events, got %d", len(rec.Events))
	}

	groups, _ := svc.List(ctx, articleForm)
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	if got := load(t, svc, "a"); got.UUID != original.UUID || got.WidgetType != "details" {
		t.Errorf("Expected a replaced in place keeping its UUID, got %+v", got)
	}
}

func TestImportMergeAndDryRun(t *testing.T) {
	svc, rec := setupTestService(t)
	ctx := context.Background()
	chain(t, svc)
	rec.Events = nil

	x, _ := models.NewFieldGroup(params("x", "fieldset", "", nil, nil))
	result, err := svc.Import(ctx, []*models.FieldGroup{x}, ImportOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Dry run failed: %v", err)
	}
	if !result.DryRun || result.Saved != 1 || len(rec.Events) != 0 {
		t.Errorf("Unexpected dry run %+v with %d events", result, len(rec.Events))
	}
	if _, err := svc.Get(ctx, articleForm, "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected dry run to write nothing, got %v", err)
	}

	if _, err := svc.Import(ctx, []*models.FieldGroup{x}, ImportOptions{}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if groups, _ := svc.List(ctx, articleForm); len(groups) != 4 {
		t.Errorf("Expected merge to keep existing groups, got %d", len(groups))
	}
}

func TestImportIsAtomic(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	chain(t, svc)

	good := params("ok", "fieldset", "", nil, nil)
	good.Mode = "teaser"
	g, _ := models.NewFieldGroup(good)
	broken, _ := models.NewFieldGroup(params("y", "fieldset", "group_missing", nil, nil))

	_, err := svc.Import(ctx, []*models.FieldGroup{g, broken}, ImportOptions{Replace: true})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if groups, _ := svc.List(ctx, articleForm); len(groups) != 3 {
		t.Errorf("Expected failed import to keep 3 groups, got %d", len(groups))
	}
	teaser := models.Scope{EntityType: "node", Bundle: "article", Mode: "teaser"}
	if groups, _ := svc.List(ctx, teaser); len(groups) != 0 {
		t.Errorf("Expected teaser scope rolled back, got %d", len(groups))
	}

	changed, _ := models.NewFieldGroup(params("a", "fieldset", "", nil, []string{"group_b"}))
	if _, err := svc.Import(ctx, []*models.FieldGroup{changed}, ImportOptions{}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected UUID change to be rejected, got %v", err)
	}
}
