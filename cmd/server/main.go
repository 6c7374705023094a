package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/StevenACZ/peso-tracker-backend/internal/api"
	"github.com/StevenACZ/peso-tracker-backend/internal/api/handlers/photo"
	"github.com/StevenACZ/peso-tracker-backend/internal/api/handlers/util"
	"github.com/StevenACZ/peso-tracker-backend/internal/api/middleware"
	"github.com/StevenACZ/peso-tracker-backend/internal/configuration"
	"github.com/StevenACZ/peso-tracker-backend/internal/imaging"
	natsconsumer "github.com/StevenACZ/peso-tracker-backend/internal/nats"
	"github.com/StevenACZ/peso-tracker-backend/internal/services"
	"github.com/StevenACZ/peso-tracker-backend/internal/storage"
	"github.com/StevenACZ/peso-tracker-backend/internal/throttle"
	"github.com/StevenACZ/peso-tracker-backend/internal/token"
)

func main() {
	cfg := configuration.Load()

	var logger *zap.Logger
	var err error
	if cfg.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	tracer.Start(
		tracer.WithService("peso-photo-service"),
		tracer.WithEnv(cfg.Environment),
	)
	defer tracer.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := services.NewPostgresStore(cfg.Database.ConnectionString(), logger)
	if err != nil {
		logger.Fatal("postgres init", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	var blobs storage.BlobStore
	switch cfg.Uploads.Backend {
	case "minio":
		blobs, err = storage.NewMinioStore(ctx, cfg.MinIO, logger)
		if err != nil {
			logger.Fatal("minio init", zap.Error(err))
		}
	default:
		blobs, err = storage.NewLocalStore(cfg.Uploads.Root, logger)
		if err != nil {
			logger.Fatal("local store init", zap.Error(err))
		}
	}

	var events *services.EventPublisher
	if cfg.NATSURL != "" {
		events, err = services.ConnectEvents(cfg.NATSURL, logger)
		if err != nil {
			logger.Fatal("nats init", zap.Error(err))
		}
		defer events.Close()

		cleanup := natsconsumer.NewCleanup(db, blobs, logger)
		if err := cleanup.Subscribe(events.Conn()); err != nil {
			logger.Fatal("nats subscribe", zap.Error(err))
		}
	}

	var scanner *util.Scanner
	if cfg.CLAMAVURL != "" {
		scanner = util.NewScanner(cfg.CLAMAVURL, logger)
	}

	throt := throttle.New(throttle.Options{
		Window:        cfg.Throttle.Window,
		MaxRequests:   cfg.Throttle.MaxRequests,
		MaxFailures:   cfg.Throttle.MaxFailures,
		BlockDuration: cfg.Throttle.BlockDuration,
		CleanupEvery:  cfg.Throttle.CleanupEvery,
	}, logger)
	throt.Start()
	defer throt.Stop()

	codec := token.NewCodec(cfg.Signing.Secret)

	auth, err := middleware.NewAuthenticator(ctx, cfg.OIDCIssuer, logger)
	if err != nil {
		logger.Fatal("oidc init", zap.Error(err))
	}

	handler := photo.NewHandler(photo.HandlerDeps{
		Config:   cfg,
		Log:      logger,
		Pipeline: imaging.NewPipeline(logger),
		Blobs:    blobs,
		Photos:   db,
		Owners:   services.NewOwnershipValidator(db, logger),
		Tokens:   codec,
		Throttle: throt,
		Events:   events,
		URLs:     photo.NewSignedURLBuilder(codec, cfg.Server.BaseURL, cfg.Signing.TokenTTL),
		Scanner:  scanner,
	})

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	api.RegisterRoutes(r, handler, auth)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
