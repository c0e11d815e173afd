package groups

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/auth"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
)

// Handler handles field group requests
type Handler struct {
	svc *Service
}

// NewHandler creates a new field groups handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// CreateRequest represents the request to create a field group
type CreateRequest struct {
	ID          string         `json:"id" binding:"required"`
	Label       string         `json:"label" binding:"required"`
	WidgetType  string         `json:"widget_type" binding:"required"`
	MachineName string         `json:"machine_name" binding:"required"`
	Parent      string         `json:"parent"`
	Fields      []string       `json:"fields"`
	FieldOrder  []string       `json:"field_order"`
	FieldGroups []string       `json:"field_groups"`
	Settings    map[string]any `json:"settings"`
	Weight      int            `json:"weight"`
}

// UpdateRequest represents the request to update a field group. Omitted
// attributes are left alone.
type UpdateRequest struct {
	Label       *string        `json:"label"`
	WidgetType  *string        `json:"widget_type"`
	MachineName *string        `json:"machine_name"`
	Settings    map[string]any `json:"settings"`
	Weight      *int           `json:"weight"`
}

// SetParentRequest moves a group. An empty parent moves it to the top level.
type SetParentRequest struct {
	Parent   string `json:"parent"`
	Position *int   `json:"position"`
}

// AddFieldRequest adds a field to a group
type AddFieldRequest struct {
	Field    string `json:"field" binding:"required"`
	Position *int   `json:"position"`
}

// FieldOrderRequest replaces the display order; an empty list clears it.
type FieldOrderRequest struct {
	FieldOrder []string `json:"field_order"`
}

// AddSubgroupRequest nests an existing group
type AddSubgroupRequest struct {
	Group    string `json:"group" binding:"required"`
	Position *int   `json:"position"`
}

// SettingsResponse carries a group's own settings and the settings after
// widget defaults are applied.
type SettingsResponse struct {
	Settings map[string]any `json:"settings"`
	Resolved map[string]any `json:"resolved"`
}

func scopeParam(c *gin.Context) models.Scope {
	return models.Scope{
		EntityType: c.Param("entityType"),
		Bundle:     c.Param("bundle"),
		Mode:       c.Param("mode"),
	}
}

func position(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}

// EntityTypes lists the registered entity types with their bundles and modes
// @Summary List entity types
// @Description Get the entity types, bundles and display modes groups can be attached to
// @Tags registry
// @Produce json
// @Success 200 {array} registry.EntityTypeDefinition
// @Security BearerAuth
// @Router /entity-types [get]
func (h *Handler) EntityTypes(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Registry().EntityTypes())
}

// Widgets lists the registered group widgets
// @Summary List widgets
// @Description Get the group widgets with their default settings
// @Tags registry
// @Produce json
// @Success 200 {array} registry.WidgetDefinition
// @Security BearerAuth
// @Router /widgets [get]
func (h *Handler) Widgets(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Registry().Widgets())
}

// List returns the groups of a scope ordered by weight and id
// @Summary List field groups
// @Description Get the field groups of one display mode of a bundle
// @Tags field-groups
// @Produce json
// @Param entityType path string true "Entity type"
// @Param bundle path string true "Bundle"
// @Param mode path string true "Display mode"
// @Success 200 {array} models.FieldGroup
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /field-groups/{entityType}/{bundle}/{mode} [get]
func (h *Handler) List(c *gin.Context) {
	groups, err := h.svc.List(c.Request.Context(), scopeParam(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

// Tree returns the nested groups of a scope
// @Summary Get field group tree
// @Description Get the field groups of a scope nested under their parents
// @Tags field-groups
// @Produce json
// @Param entityType path string true "Entity type"
// @Param bundle path string true "Bundle"
// @Param mode path string true "Display mode"
// @Success 200 {array} tree.Node
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /field-group-trees/{entityType}/{bundle}/{mode} [get]
func (h *Handler) Tree(c *gin.Context) {
	nodes, err := h.svc.Tree(c.Request.Context(), scopeParam(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, nodes)
}

// Create creates a field group and links it to its parent and subgroups
// @Summary Create a field group
// @Description Create a field group in a scope (requires site builder role)
// @Tags field-groups
// @Accept json
// @Produce json
// @Param entityType path string true "Entity type"
// @Param bundle path string true "Bundle"
// @Param mode path string true "Display mode"
// @Param request body CreateRequest true "Group details"
// @Success 201 {object} models.FieldGroup
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Site builder role required"
// @Failure 409 {object} map[string]string "Group already exists"
// @Failure 422 {object} map[string]string "Change would create a cycle"
// @Security BearerAuth
// @Router /field-groups/{entityType}/{bundle}/{mode} [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}

	scope := scopeParam(c)
	g, err := h.svc.Create(c.Request.Context(), models.NewFieldGroupParams{
		ID:          req.ID,
		Label:       req.Label,
		EntityType:  scope.EntityType,
		Bundle:      scope.Bundle,
		Mode:        scope.Mode,
		WidgetType:  req.WidgetType,
		Parent:      req.Parent,
		MachineName: req.MachineName,
		Fields:      req.Fields,
		FieldOrder:  req.FieldOrder,
		FieldGroups: req.FieldGroups,
		Settings:    req.Settings,
		Weight:      req.Weight,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

// Get returns a specific field group
// @Summary Get a field group
// @Description Get one field group of a scope
// @Tags field-groups
// @Produce json
// @Param entityType path string true "Entity type"
// @Param bundle path string true "Bundle"
// @Param mode path string true "Display mode"
// @Param id path string true "Group ID"
// @Success 200 {object} models.FieldGroup
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /field-groups/{entityType}/{bundle}/{mode}/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	g, err := h.svc.Get(c.Request.Context(), scopeParam(c), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// Settings returns a group's widget settings
// @Summary Get group settings
// @Description Get a group's own settings and the settings after widget defaults are applied
// @Tags field-groups
// @Produce json
// @Param entityType path string true "Entity type"
// @Param bundle path string true "Bundle"
// @Param mode path string true "Display mode"
// @Param id path string true "Group ID"
// @Success 200 {object} SettingsResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /field-groups/{entityType}/{bundle}/{mode}/{id}/settings [get]
func (h *Handler) Settings(c *gin.Context) {
	g, err := h.svc.Get(c.Request.Context(), scopeParam(c), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, SettingsResponse{
		Settings: g.Settings(),
		Resolved: h.svc.Registry().ResolvedSettings(g),
	})
}

// Update changes a group's attributes (site builder only)
// @Summary Update a field group
// @Description Update label, widget, machine name, settings or weight. Omitted attributes are left alone
// @Tags field-groups
// @Accept json
// @Produce json
// @Param entityType path string true "Entity type"
// @Param bundle path string true "Bundle"
// @Param mode path string true "Display mode"
// @Param id path string true "Group ID"
// @Param request body UpdateRequest true "Attributes to change"
// @Success 200 {object} models.FieldGroup
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Site builder role required"
// @Failure 404 {object} map[string]string "Group not found"
// @Failure 409 {object} map[string]string "Machine name already in use"
// @Security BearerAuth
// @Router /field-groups/{entityType}/{bundle}/{mode}/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}

	g, err := h.svc.Update(c.Request.Context(), scopeParam(c), c.Param("id"), UpdateInput{
		Label:       req.Label,
		WidgetType:  req.WidgetType,
		MachineName: req.MachineName,
		Settings:    req.Settings,
		Weight:      req.Weight,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// Delete removes a group and moves its children to its parent
// @Summary Delete a field group
// @Description Delete a field group (requires site builder role)
// @Tags field-groups
// @Produce json
// @Param entityType path string true "Entity type"
// @Param bundle path string true "Bundle"
// @Param mode path string true "Display mode"
// @Param id path string true "Group ID"
// @Success 200 {object} map[string]string "Field group deleted"
// @Failure 403 {object} map[string]string "Site builder role required"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /field-groups/{entityType}/{bundle}/{mode}/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), scopeParam(c), c.Param("id")); err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Field group deleted"})
}

// SetParent moves a group under another group or to the top level
// @Summary Move a field group
// @Description Set a group's parent and its position among the parent's subgroups
// @Tags field-groups
// @Accept json
// @Produce json
// @Param entityType path string true "Entity type"
// @Param bundle path string true "Bundle"
// @Param mode path string true "Display mode"
// @Param id path string true "Group ID"
// @Param request body SetParentRequest true "New parent and position"
// @Success 200 {object} models.FieldGroup
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Group not found"
// @Failure 422 {object} map[string]string "Change would create a cycle"
// @Security BearerAuth
// @Router /field-groups/{entityType}/{bundle}/{mode}/{id}/parent [put]
func (h *Handler) SetParent(c *gin.Context) {
	var req SetParentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}

	g, err := h.svc.SetParent(c.Request.Context(), scopeParam(c), c.Param("id"), req.Parent, position(req.Position))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// AddField adds a field to a group
// @Summary Add a field
// @Description Add a field to a group at an optional position
// @Tags field-groups
// @Accept json
// @Produce json
// @Param entityType path string true "Entity type"
// @Param bundle path string true "Bundle"
// @Param mode path string true "Display mode"
// @Param id path string true "Group ID"
// @Param request body AddFieldRequest true "Field and position"
// @Success 200 {object} models.FieldGroup
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Group not found"
// @Failure 409 {object} map[string]string "Field already in group"
// @Security BearerAuth
// @Router /field-groups/{entityType}/{bundle}/{mode}/{id}/fields [post]
func (h *Handler) AddField(c *gin.Context) {
	var req AddFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}

	g, err := h.svc.AddField(c.Request.Context(), scopeParam(c), c.Param("id"), req.Field, position(req.Position))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// RemoveField takes a field out of a group
// @Summary Remove a field
// @Tags field-groups
// @Produce json
// @Param entityType path string true "Entity type"
// @Param bundle path string true "Bundle"
// @Param mode path string true "Display mode"
// @Param id path string true "Group ID"
// @Param field path string true "Field name"
// @Success 200 {object} models.FieldGroup
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /field-groups/{entityType}/{bundle}/{mode}/{id}/fields/{field} [delete]
func (h *Handler) RemoveField(c *gin.Context) {
	g, err := h.svc.RemoveField(c.Request.Context(), scopeParam(c), c.Param("id"), c.Param("field"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// SetFieldOrder replaces a group's field display order
// @Summary Set field order
// @Description Replace the display order of a group's fields. An empty list clears it
// @Tags field-groups
// @Accept json
// @Produce json
// @Param entityType path string true "Entity type"
// @Param bundle path string true "Bundle"
// @Param mode path string true "Display mode"
// @Param id path string true "Group ID"
// @Param request body FieldOrderRequest true "Field order"
// @Success 200 {object} models.FieldGroup
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /field-groups/{entityType}/{bundle}/{mode}/{id}/field-order [put]
func (h *Handler) SetFieldOrder(c *gin.Context) {
	var req FieldOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}

	g, err := h.svc.SetFieldOrder(c.Request.Context(), scopeParam(c), c.Param("id"), req.FieldOrder)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// AddSubgroup nests an existing group under this one
// @Summary Add a subgroup
// @Tags field-groups
// @Accept json
// @Produce json
// @Param entityType path string true "Entity type"
// @Param bundle path string true "Bundle"
// @Param mode path string true "Display mode"
// @Param id path string true "Group ID"
// @Param request body AddSubgroupRequest true "Subgroup machine name and position"
// @Success 200 {object} models.FieldGroup
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Group not found"
// @Failure 422 {object} map[string]string "Change would create a cycle"
// @Security BearerAuth
// @Router /field-groups/{entityType}/{bundle}/{mode}/{id}/subgroups [post]
func (h *Handler) AddSubgroup(c *gin.Context) {
	var req AddSubgroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}

	g, err := h.svc.AddSubgroup(c.Request.Context(), scopeParam(c), c.Param("id"), req.Group, position(req.Position))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// RemoveSubgroup moves a subgroup back to the top level
// @Summary Remove a subgroup
// @Tags field-groups
// @Produce json
// @Param entityType path string true "Entity type"
// @Param bundle path string true "Bundle"
// @Param mode path string true "Display mode"
// @Param id path string true "Group ID"
// @Param group path string true "Subgroup machine name"
// @Success 200 {object} models.FieldGroup
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /field-groups/{entityType}/{bundle}/{mode}/{id}/subgroups/{group} [delete]
func (h *Handler) RemoveSubgroup(c *gin.Context) {
	g, err := h.svc.RemoveSubgroup(c.Request.Context(), scopeParam(c), c.Param("id"), c.Param("group"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// RegisterRoutes registers field group routes on an authenticated router
// group. Reads are open to every account; changes need a site builder.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/entity-types", h.EntityTypes)
	rg.GET("/widgets", h.Widgets)
	rg.GET("/field-group-trees/:entityType/:bundle/:mode", h.Tree)

	builder := auth.RequireBuilder()
	scope := rg.Group("/field-groups/:entityType/:bundle/:mode")
	scope.GET("", h.List)
	scope.POST("", builder, h.Create)
	scope.GET("/:id", h.Get)
	scope.PUT("/:id", builder, h.Update)
	scope.DELETE("/:id", builder, h.Delete)
	scope.GET("/:id/settings", h.Settings)
	scope.PUT("/:id/parent", builder, h.SetParent)
	scope.POST("/:id/fields", builder, h.AddField)
	scope.DELETE("/:id/fields/:field", builder, h.RemoveField)
	scope.PUT("/:id/field-order", builder, h.SetFieldOrder)
	scope.POST("/:id/subgroups", builder, h.AddSubgroup)
	scope.DELETE("/:id/subgroups/:group", builder, h.RemoveSubgroup)
}
