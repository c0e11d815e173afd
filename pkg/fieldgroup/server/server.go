// Package server assembles the HTTP API.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/admin"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/auth"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/configsync"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/groups"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/logx"
	"gorm.io/gorm"
)

// New builds the gin engine with every route registered. db holds the
// accounts; svc owns the field groups.
func New(db *gorm.DB, svc *groups.Service, log *logx.Logger) *gin.Engine {
	r := gin.New()
	r.Use(logx.GinMiddleware(log), gin.Recovery())

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "fieldgroup"})
	}
	r.GET("/health", health)

	api := r.Group("/api")
	{
		api.GET("/health", health)

		// Auth routes (public)
		auth.NewHandler(db).RegisterRoutes(api.Group("/auth"))

		// Field group routes; reads need any account, writes need builder
		groups.NewHandler(svc).RegisterRoutes(api.Group("", auth.AuthMiddleware()))

		// Config export/import
		configsync.NewHandler(svc).RegisterRoutes(api.Group("/config", auth.AuthMiddleware()))

		// Admin routes (admin role required)
		adminGroup := api.Group("/admin", auth.AuthMiddleware(), auth.RequireAdmin())
		admin.NewHandler(db, svc).RegisterRoutes(adminGroup)
	}

	return r
}
