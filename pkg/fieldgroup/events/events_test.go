package events

import (
	"context"
	"os"
	"testing"

	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
)

func testGroup(t *testing.T) *models.FieldGroup {
	g, err := models.NewFieldGroup(models.NewFieldGroupParams{
		ID: "grp1", Label: "Group 1", EntityType: "node", Bundle: "article", Mode: "form",
		WidgetType: "fieldset", MachineName: "group_group1",
	})
	if err != nil {
		t.Fatalf("NewFieldGroup failed: %v", err)
	}
	return g
}

func TestPublishChange(t *testing.T) {
	rec := &Recorder{}
	g := testGroup(t)

	if err := PublishChange(context.Background(), rec, GroupSaved, NewChange(g, "create")); err != nil {
		t.Fatalf("PublishChange failed: %v", err)
	}
	if len(rec.Events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(rec.Events))
	}
	got := rec.Events[0]
	if got.RoutingKey != GroupSaved {
		t.Errorf("Expected routing key %s, got %s", GroupSaved, got.RoutingKey)
	}
	if got.Change.ConfigName != "field_group.node.article.form.grp1" {
		t.Errorf("Unexpected config name %s", got.Change.ConfigName)
	}
	if got.Change.UUID != g.UUID || got.Change.Op != "create" {
		t.Errorf("Unexpected change %+v", got.Change)
	}
	if got.Change.At.IsZero() {
		t.Error("Expected timestamp")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := PublishChange(context.Background(), p, GroupDeleted, NewChange(testGroup(t), "delete")); err != nil {
		t.Errorf("Expected nop publish to succeed, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Expected nop close to succeed, got %v", err)
	}
}

// Needs a broker; set TEST_RABBITMQ_URL to run.
func TestRabbitPublisher(t *testing.T) {
	url := os.Getenv("TEST_RABBITMQ_URL")
	if url == "" {
		t.Skip("TEST_RABBITMQ_URL not set")
	}
	p, err := NewRabbitPublisher(url, "")
	if err != nil {
		t.Fatalf("NewRabbitPublisher failed: %v", err)
	}
	defer p.Close()

	if p.exchange != DefaultExchange {
		t.Errorf("Expected default exchange, got %s", p.exchange)
	}
	if err := PublishChange(context.Background(), p, GroupSaved, NewChange(testGroup(t), "create")); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
}
