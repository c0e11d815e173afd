package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/auth"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/groups"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// Handler handles admin requests
type Handler struct {
	db  *gorm.DB
	svc *groups.Service
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB, svc *groups.Service) *Handler {
	return &Handler{db: db, svc: svc}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	auth.UserResponse
	CreatedAt string `json:"created_at"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Name       *string `json:"name"`
	SystemRole *string `json:"system_role"`
}

// Count is one bucket of a grouped count.
type Count struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers       int64   `json:"total_users"`
	AdminUsers       int64   `json:"admin_users"`
	BuilderUsers     int64   `json:"builder_users"`
	TotalFieldGroups int64   `json:"total_field_groups"`
	TopLevelGroups   int64   `json:"top_level_groups"`
	TotalScopes      int     `json:"total_scopes"`
	GroupsByWidget   []Count `json:"groups_by_widget"`
	GroupsByEntity   []Count `json:"groups_by_entity_type"`
}

// DeleteBundleResponse reports how many groups a bundle deletion removed.
type DeleteBundleResponse struct {
	EntityType string `json:"entity_type"`
	Bundle     string `json:"bundle"`
	Deleted    int64  `json:"deleted"`
}

func newUserResponse(u models.User) UserResponse {
	return UserResponse{
		UserResponse: auth.NewUserResponse(u),
		CreatedAt:    u.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func userID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID", "code": groups.CodeInvalidParam})
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) findUser(c *gin.Context, id uint) (*models.User, bool) {
	var user models.User
	err := h.db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "code": groups.CodeNotFound})
		return nil, false
	}
	if err != nil {
		groups.WriteError(c, err)
		return nil, false
	}
	return &user, true
}

// ListUsers returns all users, optionally filtered by q and role
func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User

	query := h.db.Order("created_at DESC")

	if search := c.Query("q"); search != "" {
		query = query.Where("email LIKE ? OR name LIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if role := c.Query("role"); role != "" {
		query = query.Where("system_role = ?", role)
	}

	if err := query.Find(&users).Error; err != nil {
		groups.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, lo.Map(users, func(u models.User, _ int) UserResponse {
		return newUserResponse(u)
	}))
}

// GetUser returns a single user by ID
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	user, ok := h.findUser(c, id)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newUserResponse(*user))
}

// UpdateUser changes a user's name or system role
func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	user, ok := h.findUser(c, id)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		groups.BadRequest(c, err)
		return
	}

	currentUserID, _ := auth.GetUserID(c)
	if id == currentUserID && req.SystemRole != nil && models.SystemRole(*req.SystemRole) != models.SystemRoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself", "code": groups.CodeInvalidParam})
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.SystemRole != nil {
		if !models.SystemRole(*req.SystemRole).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid system role", "code": groups.CodeInvalidParam})
			return
		}
		updates["system_role"] = *req.SystemRole
	}

	if len(updates) > 0 {
		if err := h.db.Model(user).Updates(updates).Error; err != nil {
			groups.WriteError(c, err)
			return
		}
	}

	user, ok = h.findUser(c, id)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newUserResponse(*user))
}

// DeleteUser soft-deletes a user
func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	currentUserID, _ := auth.GetUserID(c)
	if id == currentUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself", "code": groups.CodeInvalidParam})
		return
	}

	user, ok := h.findUser(c, id)
	if !ok {
		return
	}
	if err := h.db.Delete(user).Error; err != nil {
		groups.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

func (h *Handler) countBy(column string) ([]Count, error) {
	var counts []Count
	err := h.db.Model(&models.FieldGroup{}).
		Select(column + " AS name, COUNT(*) AS count").
		Group(column).
		Order(column).
		Scan(&counts).Error
	return counts, err
}

// GetStats returns account and field group statistics
func (h *Handler) GetStats(c *gin.Context) {
	var stats StatsResponse

	h.db.Model(&models.User{}).Count(&stats.TotalUsers)
	h.db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&stats.AdminUsers)
	h.db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleBuilder).Count(&stats.BuilderUsers)

	h.db.Model(&models.FieldGroup{}).Count(&stats.TotalFieldGroups)
	h.db.Model(&models.FieldGroup{}).Where("parent = ''").Count(&stats.TopLevelGroups)

	var err error
	if stats.GroupsByWidget, err = h.countBy("widget_type"); err != nil {
		groups.WriteError(c, err)
		return
	}
	if stats.GroupsByEntity, err = h.countBy("entity_type"); err != nil {
		groups.WriteError(c, err)
		return
	}

	scopes, err := h.svc.Scopes(c.Request.Context())
	if err != nil {
		groups.WriteError(c, err)
		return
	}
	stats.TotalScopes = len(scopes)

	c.JSON(http.StatusOK, stats)
}

// DeleteBundle removes every field group of a bundle, as when the bundle
// itself is deleted.
func (h *Handler) DeleteBundle(c *gin.Context) {
	entityType, bundle := c.Param("entityType"), c.Param("bundle")
	n, err := h.svc.DeleteBundle(c.Request.Context(), entityType, bundle)
	if err != nil {
		groups.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, DeleteBundleResponse{EntityType: entityType, Bundle: bundle, Deleted: n})
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeleteUser)
	rg.DELETE("/bundles/:entityType/:bundle", h.DeleteBundle)
}
