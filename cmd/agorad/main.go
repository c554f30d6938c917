// Package main is the entry point for the Discussion Orchestrator service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/agora/internal/common/config"
	"github.com/kandev/agora/internal/common/logger"
	"github.com/kandev/agora/internal/discussion/api"
	"github.com/kandev/agora/internal/discussion/orchestrator"
	"github.com/kandev/agora/internal/discussion/repository"
	"github.com/kandev/agora/internal/discussion/scheduler"
	"github.com/kandev/agora/internal/events/bus"
	"github.com/kandev/agora/internal/gateway/session"
	ws "github.com/kandev/agora/internal/gateway/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting discussion orchestrator service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := newRepository(cfg.Database)
	if err != nil {
		log.Fatal("failed to initialize discussion repository", zap.Error(err))
	}
	defer repo.Close()
	log.Info("discussion repository ready", zap.String("driver", cfg.Database.Driver))

	eventBus, err := newEventBus(cfg.NATS, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer eventBus.Close()

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	o := orchestrator.New(repo, eventBus, sched, log)

	sessionStore := session.NewMemoryStore(cfg.Fanout.SessionTTL(), cfg.Fanout.HeartbeatInterval(), log)
	defer sessionStore.Close()

	hub := ws.NewHub(sessionStore, o, log)
	go hub.Run(ctx)

	frameHandler := ws.NewOrchestratorFrameHandler(o, log)
	wsHandler := ws.NewHandler(hub, sessionStore, bearerAuthenticator(), o.VerifyParticipantAccess, frameHandler, cfg.Fanout.MaxConnectionsPerUser, log)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(api.RequestLogger(log))
	router.Use(api.Recovery(log))
	router.Use(api.CORS())

	v1 := router.Group("/api/v1")
	v1.GET("/discussions/:discussionId/ws", wsHandler.HandleConnection)

	// HTTP command surface: authenticated, rate-limited separately from the
	// websocket fan-out layer's own per-connection frame cap.
	const httpRequestsPerSecond = 50
	v1.Use(api.BearerAuth(), api.RateLimit(httpRequestsPerSecond))
	api.SetupRoutes(v1, o, log)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down discussion orchestrator service")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	log.Info("discussion orchestrator service stopped")
}

func newRepository(cfg config.DatabaseConfig) (repository.Repository, error) {
	switch cfg.Driver {
	case "sqlite":
		return repository.NewSQLiteRepository(cfg.Path)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
		return repository.NewPostgresRepository(dsn, cfg.MaxConns, cfg.MinConns)
	default:
		return repository.NewMemoryRepository(), nil
	}
}

func newEventBus(cfg config.NATSConfig, log *logger.Logger) (bus.EventBus, error) {
	if cfg.URL == "" {
		return bus.NewMemoryBus(log), nil
	}
	return bus.NewNATSBus(cfg, log)
}

// bearerAuthenticator accepts any non-empty Authorization: Bearer <userId>
// credential, mirroring the HTTP façade's BearerAuth convention. A production
// deployment would verify a signed token against cfg.Auth.JWTSecret here.
func bearerAuthenticator() ws.Authenticator {
	const prefix = "Bearer "
	return func(r *http.Request) (userID, securityLevel string, ok bool) {
		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			return "", "", false
		}
		userID = header[len(prefix):]
		if userID == "" {
			return "", "", false
		}
		return userID, "standard", true
	}
}
