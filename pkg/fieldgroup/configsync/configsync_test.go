package configsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/auth"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/groups"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/registry"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const sampleDoc = `
field_groups:
  - id: tabs
    label: Tabs
    entity_type: node
    bundle: article
    mode: form
    widget_type: tabs
    machine_name: group_tabs
    field_groups: [group_content]
  - config_name: field_group.node.article.form.content
    id: content
    label: Content
    entity_type: node
    bundle: article
    mode: form
    widget_type: tab
    parent: group_tabs
    machine_name: group_content
    fields: [title, body]
    field_order: [body, title]
    settings:
      classes: main
`

func setupTestService(t *testing.T) *groups.Service {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return groups.NewService(storage.NewGormStore(db), registry.Default(), nil)
}

func setupTestRouter(svc *groups.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(svc)
	cfg := r.Group("/config")
	cfg.Use(auth.AuthMiddleware())
	handler.RegisterRoutes(cfg)
	return r
}

func getAuthHeader(role models.SystemRole) string {
	token, _ := auth.GenerateToken(1, "builder@example.com", string(role))
	return "Bearer " + token
}

func TestDecode(t *testing.T) {
	list, err := Decode([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(list))
	}
	content := list[1]
	if content.UUID != "" {
		t.Errorf("Expected no UUID when the document has none, got %s", content.UUID)
	}
	if content.DisplayOrder()[0] != "body" || content.Settings()["classes"] != "main" {
		t.Errorf("Unexpected content group %+v", content)
	}

	bad := []string{
		"field_groups: {",
		"field_groups:\n  - id: x\n    label: X\n",
		strings.Replace(sampleDoc, "field_group.node.article.form.content", "field_group.node.page.form.content", 1),
		strings.Replace(sampleDoc, "field_order: [body, title]", "field_order: [body]", 1),
	}
	for _, doc := range bad {
		if _, err := Decode([]byte(doc)); !errors.Is(err, models.ErrValidation) {
			t.Errorf("Expected validation error, got %v", err)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	list, _ := Decode([]byte(sampleDoc))
	list[0].UUID = "0b1c2d3e-4f50-4a6b-8c7d-9e0f1a2b3c4d"

	data, err := Encode(list)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(string(data), "config_name: field_group.node.article.form.tabs") {
		t.Errorf("Expected config names in output:\n%s", data)
	}

	again, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode of exported document failed: %v", err)
	}
	if again[0].UUID != list[0].UUID || again[1].Parent != "group_tabs" {
		t.Errorf("Round trip lost data: %+v", again)
	}
}

func TestParseConfigName(t *testing.T) {
	scope, id, err := ParseConfigName("field_group.node.article.form.grp1")
	if err != nil {
		t.Fatalf("ParseConfigName failed: %v", err)
	}
	if scope.String() != "node.article.form" || id != "grp1" {
		t.Errorf("Unexpected result %s %s", scope, id)
	}

	for _, name := range []string{"node.article.form.grp1", "field_group.node.article.grp1", "field_group.Node.article.form.grp1"} {
		if _, _, err := ParseConfigName(name); !errors.Is(err, models.ErrValidation) {
			t.Errorf("Expected %q to be rejected, got %v", name, err)
		}
	}
}

func TestImportAndExport(t *testing.T) {
	svc := setupTestService(t)
	router := setupTestRouter(svc)

	req, _ := http.NewRequest("POST", "/config/import", bytes.NewBufferString(sampleDoc))
	req.Header.Set("Authorization", getAuthHeader(models.SystemRoleBuilder))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	g, err := svc.Get(context.Background(), models.Scope{EntityType: "node", Bundle: "article", Mode: "form"}, "content")
	if err != nil {
		t.Fatalf("Expected imported group, got %v", err)
	}
	if g.UUID == "" {
		t.Error("Expected imported group to get a UUID")
	}

	req, _ = http.NewRequest("GET", "/config/export?bundle=article&download=true", nil)
	req.Header.Set("Authorization", getAuthHeader(models.SystemRoleBuilder))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	if resp.Header().Get("Content-Disposition") == "" {
		t.Error("Expected download header")
	}
	exported, err := Decode(resp.Body.Bytes())
	if err != nil {
		t.Fatalf("Exported document does not decode: %v", err)
	}
	if len(exported) != 2 {
		t.Errorf("Expected 2 exported groups, got %d", len(exported))
	}

	req, _ = http.NewRequest("GET", "/config/export?bundle=page", nil)
	req.Header.Set("Authorization", getAuthHeader(models.SystemRoleBuilder))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if list, _ := Decode(resp.Body.Bytes()); len(list) != 0 {
		t.Errorf("Expected filter to exclude article groups, got %d", len(list))
	}

	req, _ = http.NewRequest("GET", "/config/export/field_group.node.article.form.content", nil)
	req.Header.Set("Authorization", getAuthHeader(models.SystemRoleBuilder))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if single, _ := Decode(resp.Body.Bytes()); len(single) != 1 || single[0].UUID != g.UUID {
		t.Errorf("Unexpected single export %s", resp.Body.String())
	}
}

func TestImportRejected(t *testing.T) {
	svc := setupTestService(t)
	router := setupTestRouter(svc)

	tests := []struct {
		name   string
		doc    string
		role   models.SystemRole
		status int
	}{
		{"read-only account", sampleDoc, models.SystemRoleUser, http.StatusForbidden},
		{"malformed yaml", "field_groups: {", models.SystemRoleBuilder, http.StatusBadRequest},
		{"dangling subgroup", strings.Replace(sampleDoc, "[group_content]", "[group_content, group_gone]", 1), models.SystemRoleBuilder, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", "/config/import", bytes.NewBufferString(tt.doc))
			req.Header.Set("Authorization", getAuthHeader(tt.role))
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, resp.Code, resp.Body.String())
			}
		})
	}

	list, _ := svc.List(context.Background(), models.Scope{EntityType: "node", Bundle: "article", Mode: "form"})
	if len(list) != 0 {
		t.Errorf("Expected nothing imported, got %d groups", len(list))
	}
}

func TestImportFlags(t *testing.T) {
	articleForm := models.Scope{EntityType: "node", Bundle: "article", Mode: "form"}

	tests := []struct {
		name   string
		query  string
		status int
		stored int
	}{
		{"dry run", "?dry_run=true", http.StatusOK, 0},
		{"unparseable dry run", "?dry_run=yes", http.StatusBadRequest, 0},
		{"unparseable replace", "?replace=on", http.StatusBadRequest, 0},
		{"empty flags", "?dry_run=&replace=", http.StatusOK, 2},
		{"replace", "?replace=1", http.StatusOK, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := setupTestService(t)
			router := setupTestRouter(svc)

			req, _ := http.NewRequest("POST", "/config/import"+tt.query, bytes.NewBufferString(sampleDoc))
			req.Header.Set("Authorization", getAuthHeader(models.SystemRoleBuilder))
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tt.status {
				t.Fatalf("Expected status %d, got %d: %s", tt.status, resp.Code, resp.Body.String())
			}
			if tt.status == http.StatusBadRequest {
				var body map[string]string
				json.Unmarshal(resp.Body.Bytes(), &body)
				if body["code"] != groups.CodeInvalidParam {
					t.Errorf("Expected code %s, got %s", groups.CodeInvalidParam, body["code"])
				}
			}

			list, _ := svc.List(context.Background(), articleForm)
			if len(list) != tt.stored {
				t.Errorf("Expected %d stored groups, got %d", tt.stored, len(list))
			}
		})
	}
}
