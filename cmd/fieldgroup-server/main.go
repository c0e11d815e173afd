package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/auth"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/cache"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/config"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/database"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/events"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/groups"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/logx"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/registry"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/server"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/storage"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg := config.Load()
	logx.Init(cfg.Log.Level, cfg.Log.Format)
	log := logx.GetScope("main")
	defer log.Sync()

	if !logx.IsLocalDev(cfg.AppEnv) {
		gin.SetMode(gin.ReleaseMode)
	}
	auth.Configure(auth.Settings{Secret: cfg.Auth.JWTSecret, TokenTTL: cfg.Auth.TokenTTL})
	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, using development secret")
	}

	db, err := database.Connect(cfg.DB.Path)
	if err != nil {
		log.Fatal("failed to connect to database", zap.String("path", cfg.DB.Path), zap.Error(err))
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	log.Info("database migrations completed")

	created, err := auth.EnsureAdmin(db, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
	if err != nil {
		log.Fatal("failed to ensure admin user exists", zap.Error(err))
	}
	if created {
		log.Info("created default admin user", zap.String("email", cfg.Auth.AdminEmail))
	}

	reg := registry.Default()
	if cfg.Registry.File != "" {
		if reg, err = registry.LoadFile(cfg.Registry.File); err != nil {
			log.Fatal("failed to load registry", zap.String("file", cfg.Registry.File), zap.Error(err))
		}
	}

	var store storage.Store = storage.NewGormStore(db)
	if cfg.Redis.Addr != "" {
		rdb, err := cache.Open(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer rdb.Close()
		store = cache.New(store, rdb, cache.Options{TTL: cfg.Redis.TTL})
		log.Info("field group cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	var pub events.Publisher = events.NopPublisher{}
	if cfg.MQ.URL != "" {
		rp, err := events.NewRabbitPublisher(cfg.MQ.URL, cfg.MQ.Exchange)
		if err != nil {
			log.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer rp.Close()
		pub = rp
		log.Info("publishing change events", zap.String("exchange", cfg.MQ.Exchange))
	}

	svc := groups.NewService(store, reg, pub)
	r := server.New(db, svc, logx.GetScope("http"))

	log.Info("starting fieldgroup server", zap.String("port", cfg.Server.Port), zap.String("base_url", cfg.Server.BaseURL))
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}
}
