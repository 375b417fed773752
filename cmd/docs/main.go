package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"caredocs/internal/config"
	"caredocs/internal/ratelimit"
	"caredocs/internal/server"
	"caredocs/internal/util"
	"caredocs/pkg/approval"
	"caredocs/pkg/docgen"
	"caredocs/pkg/render"
	"caredocs/pkg/storage"
	"caredocs/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	objects, err := storage.NewMinioStore(cfg.StorageEndpoint, cfg.StorageAccessKey, cfg.StorageSecretKey, cfg.StorageBucket, cfg.StorageUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}
	gateway, err := storage.NewGateway(storage.GatewayConfig{
		Objects:       objects,
		PublicBaseURL: cfg.StoragePublicBaseURL,
		Bucket:        cfg.StorageBucket,
	})
	if err != nil {
		log.Fatalf("failed to init storage gateway: %v", err)
	}

	generator, err := docgen.New(docgen.Config{
		Templates: cfg.Templates(),
		Renderer:  render.NewClient(cfg.RenderEndpoint, cfg.RenderAPIKey),
		Uploader:  gateway,
		Store:     dataStore,
		Clinic: docgen.Clinic{
			Name:    cfg.ClinicName,
			Phone:   cfg.ClinicPhone,
			Email:   cfg.ClinicEmail,
			Address: cfg.ClinicAddress,
		},
	})
	if err != nil {
		log.Fatalf("failed to init document generator: %v", err)
	}

	var checkerOpts []approval.Option
	if len(cfg.TemporaryURLPatterns) > 0 {
		checkerOpts = append(checkerOpts, approval.WithTemporaryURLPatterns(cfg.TemporaryURLPatterns))
	}
	checker, err := approval.NewChecker(dataStore, gateway, checkerOpts...)
	if err != nil {
		log.Fatalf("failed to init approval checker: %v", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.GenerateRateLimitPerMinute > 0 {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "caredocs:generate", cfg.GenerateRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		Generator: generator,
		Checker:   checker,
		Store:     dataStore,
		Limiter:   limiter,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("docs server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
