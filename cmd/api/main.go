package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/framegrid/gallery-api/internal/config"
	"github.com/framegrid/gallery-api/internal/domain/account"
	"github.com/framegrid/gallery-api/internal/domain/events"
	"github.com/framegrid/gallery-api/internal/domain/gallery"
	"github.com/framegrid/gallery-api/internal/middleware"
	"github.com/framegrid/gallery-api/internal/pkg/database"
	"github.com/framegrid/gallery-api/internal/pkg/jwt"
	"github.com/framegrid/gallery-api/internal/pkg/logger"
	"github.com/framegrid/gallery-api/internal/pkg/ratelimit"
	"github.com/framegrid/gallery-api/internal/pkg/storage"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("storage", cfg.StorageBackend).
		Msg("Starting gallery API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	store, err := storage.New(storage.Config{
		Backend:       cfg.StorageBackend,
		LocalPath:     cfg.StoragePath,
		PublicBaseURL: cfg.PublicBaseURL,
		S3Endpoint:    cfg.S3Endpoint,
		S3Region:      cfg.S3Region,
		S3Bucket:      cfg.S3Bucket,
		S3AccessKey:   cfg.S3AccessKey,
		S3SecretKey:   cfg.S3SecretKey,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage backend")
	}

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Repositories ----------
	accountRepo := account.NewRepository(db)
	galleryRepo := gallery.NewRepository(db)
	idemStore := gallery.NewIdempotencyStore(db)

	// ---------- Realtime feed ----------
	hub := events.NewHub()
	go hub.Run()

	// ---------- Ingest pipeline ----------
	pipeline := gallery.NewPipeline(store, gallery.PipelineConfig{
		SmallMax:  cfg.VariantSmallMax,
		MediumMax: cfg.VariantMediumMax,
		LargeMax:  cfg.VariantLargeMax,
		Quality:   cfg.JPEGQuality,
	})
	limiter := ratelimit.New(ratelimit.Config{
		Capacity: cfg.IngestBurst,
		Interval: cfg.IngestRefillInterval,
	})
	dedup := gallery.NewDuplicateResolver(galleryRepo, cfg.DedupWindow, cfg.DedupThreshold)
	quotas := gallery.NewQuotaPolicy(
		gallery.Quota{
			MaxPhotos:           cfg.MemberMaxPhotos,
			MaxBytesPerDay:      cfg.MemberMaxBytesPerDay,
			MaxIngestsPerMinute: cfg.IngestBurst,
		},
		gallery.Quota{
			MaxPhotos:           cfg.AdminMaxPhotos,
			MaxBytesPerDay:      cfg.AdminMaxBytesPerDay,
			MaxIngestsPerMinute: cfg.IngestBurst,
		},
	)
	usage := gallery.NewUsageTracker(galleryRepo, redisClient)

	// ---------- Services ----------
	accountService := account.NewService(accountRepo, jwtService)
	galleryService := gallery.NewService(
		galleryRepo,
		idemStore,
		store,
		pipeline,
		limiter,
		dedup,
		quotas,
		usage,
		events.NewAuditPublisher(hub),
	)

	// ---------- Handlers ----------
	accountHandler := account.NewHandler(accountService)
	galleryHandler := gallery.NewHandler(galleryService)
	eventsHandler := events.NewHandler(hub)

	authMiddleware := middleware.Auth(jwtService)
	adminMiddleware := middleware.RequireAdmin()

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/accounts", accountHandler.Routes(authMiddleware, adminMiddleware))
		r.Mount("/gallery", galleryHandler.Routes(authMiddleware, adminMiddleware))
		r.Mount("/events", eventsHandler.Routes(authMiddleware, adminMiddleware))
	})

	// Serve published files directly when using local storage
	if cfg.StorageBackend == "local" {
		fileServer := http.StripPrefix("/files/", http.FileServer(http.Dir(cfg.StoragePath)))
		r.Get("/files/*", fileServer.ServeHTTP)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	hub.Shutdown()

	log.Info().Msg("Server exited properly")
}
