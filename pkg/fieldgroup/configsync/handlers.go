package configsync

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/auth"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/groups"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
)

const yamlContentType = "application/yaml; charset=utf-8"

// Handler handles configuration export and import requests
type Handler struct {
	svc *groups.Service
}

// NewHandler creates a new config sync handler
func NewHandler(svc *groups.Service) *Handler {
	return &Handler{svc: svc}
}

// Export returns the field groups of every scope matching the optional
// entity_type, bundle and mode query filters
func (h *Handler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	scopes, err := h.svc.Scopes(ctx)
	if err != nil {
		groups.WriteError(c, err)
		return
	}

	filter := models.Scope{
		EntityType: c.Query("entity_type"),
		Bundle:     c.Query("bundle"),
		Mode:       c.Query("mode"),
	}
	var out []*models.FieldGroup
	for _, scope := range scopes {
		if !matches(filter, scope) {
			continue
		}
		list, err := h.svc.List(ctx, scope)
		if err != nil {
			groups.WriteError(c, err)
			return
		}
		out = append(out, list...)
	}

	data, err := Encode(out)
	if err != nil {
		groups.WriteError(c, err)
		return
	}

	if c.Query("download") == "true" {
		c.Header("Content-Disposition", "attachment; filename=field-groups.yaml")
	}
	c.Data(http.StatusOK, yamlContentType, data)
}

// ExportSingle returns one group addressed by its config name
func (h *Handler) ExportSingle(c *gin.Context) {
	scope, id, err := ParseConfigName(c.Param("name"))
	if err != nil {
		groups.WriteError(c, err)
		return
	}
	g, err := h.svc.Get(c.Request.Context(), scope, id)
	if err != nil {
		groups.WriteError(c, err)
		return
	}
	data, err := Encode([]*models.FieldGroup{g})
	if err != nil {
		groups.WriteError(c, err)
		return
	}
	c.Data(http.StatusOK, yamlContentType, data)
}

// ImportQuery holds the import flags. Values must parse as booleans.
type ImportQuery struct {
	Replace bool `form:"replace"`
	DryRun  bool `form:"dry_run"`
}

// Import reads a YAML document from the request body. replace=true deletes
// groups missing from the document in every scope it touches; dry_run=true
// only validates.
func (h *Handler) Import(c *gin.Context) {
	var q ImportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		groups.BadRequest(c, err)
		return
	}

	data, err := c.GetRawData()
	if err != nil {
		groups.BadRequest(c, err)
		return
	}
	list, err := Decode(data)
	if err != nil {
		groups.WriteError(c, err)
		return
	}

	result, err := h.svc.Import(c.Request.Context(), list, groups.ImportOptions{Replace: q.Replace, DryRun: q.DryRun})
	if err != nil {
		groups.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func matches(filter, scope models.Scope) bool {
	return (filter.EntityType == "" || filter.EntityType == scope.EntityType) &&
		(filter.Bundle == "" || filter.Bundle == scope.Bundle) &&
		(filter.Mode == "" || filter.Mode == scope.Mode)
}

// RegisterRoutes registers config sync routes; all of them need a site builder
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	builder := auth.RequireBuilder()
	rg.GET("/export", builder, h.Export)
	rg.GET("/export/:name", builder, h.ExportSingle)
	rg.POST("/import", builder, h.Import)
}
