package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/liveness-server/internal/auth"
	"github.com/example/liveness-server/internal/config"
	"github.com/example/liveness-server/internal/evidence"
	"github.com/example/liveness-server/internal/faceapi"
	"github.com/example/liveness-server/internal/handlers"
	"github.com/example/liveness-server/internal/liveness"
	"github.com/example/liveness-server/internal/logging"
	"github.com/example/liveness-server/internal/mcpserver"
	"github.com/example/liveness-server/internal/repository"
	"github.com/example/liveness-server/internal/sessionstore"
)

const (
	shutdownTimeout = 15 * time.Second
	connectTimeout  = 5 * time.Second
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		httpAddr        string
		sessionImageDir string
		logLevel        string
	)

	cmd := &cobra.Command{
		Use:           "liveness-server",
		Short:         "MCP server for Azure Face liveness detection over stdio",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			flags := cmd.Flags()
			if flags.Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if flags.Changed("session-image-dir") {
				cfg.SessionImageDir = sessionImageDir
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			logger, err := logging.NewLogger(cfg.LogLevel)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to build logger: %v\n", err)
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, os.Stdin, os.Stdout, logger); err != nil {
				logger.Error("liveness server stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "address of the optional HTTP bridge (overrides LIVENESS_HTTP_ADDR)")
	cmd.Flags().StringVar(&sessionImageDir, "session-image-dir", "", "directory for evidence images (overrides SESSION_IMAGE_DIR)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (overrides LIVENESS_LOG_LEVEL)")
	return cmd
}

func run(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer, logger *zap.Logger) error {
	logger = logger.With(zap.String("correlation_id", cfg.CorrelationID))
	if missing := cfg.MissingAPISettings(); len(missing) > 0 {
		// Tools stay registered and answer with the configuration diagnostic.
		logger.Warn("face api settings missing", zap.Strings("missing", missing))
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	deps := liveness.Dependencies{
		Face:     faceapi.NewClient(cfg.FaceAPIBaseURL(), cfg.APIKey, httpClient, logger),
		Links:    faceapi.NewLinkClient(cfg.Website, httpClient),
		Evidence: evidence.NewFileStore(cfg.SessionImageDir),
		Registry: sessionstore.NewMemoryStore(),
	}

	if cfg.RedisAddr != "" {
		client, err := initRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer client.Close()
		deps.Registry = sessionstore.NewRedisStore(client)
	}

	if cfg.DatabaseDSN != "" {
		db, err := initDatabase(ctx, cfg.DatabaseDSN, logger)
		if err != nil {
			return err
		}
		repo := repository.NewLivenessRepository(db, logger)
		if err := repo.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("auto migrate failed: %w", err)
		}
		deps.Recorder = repo
	}

	orchestrator := liveness.NewOrchestrator(cfg, deps, logger)

	if cfg.HTTPAddr != "" {
		router, err := newBridgeRouter(cfg, orchestrator, logger)
		if err != nil {
			return err
		}
		listener, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			return fmt.Errorf("http bridge listen failed: %w", err)
		}
		server := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

		bridgeCtx, cancelBridge := context.WithCancel(ctx)
		bridgeDone := make(chan struct{})
		defer func() {
			cancelBridge()
			<-bridgeDone
		}()
		go func() {
			defer close(bridgeDone)
			logger.Info("http bridge listening", zap.String("addr", listener.Addr().String()))
			if err := serveHTTPServer(bridgeCtx, server, shutdownTimeout, logger, listener); err != nil {
				logger.Error("http bridge failed", zap.Error(err))
			}
		}()
	}

	tools := mcpserver.NewTools(orchestrator, cfg, logger)
	logger.Info("liveness server listening on stdio",
		zap.String("mode", orchestrator.Mode().String()),
		zap.String("start_tool", cfg.Mode.StartToolName()),
		zap.String("result_tool", cfg.Mode.ResultToolName()),
	)

	err := mcpserver.ServeStdio(ctx, mcpserver.NewServer(tools), in, out, logger)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		logger.Info("liveness server shut down")
		return nil
	}
	return err
}

func newBridgeRouter(cfg config.Config, svc handlers.Service, logger *zap.Logger) (*gin.Engine, error) {
	authMiddleware, err := auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience)
	if err != nil {
		return nil, err
	}

	// Stdout carries MCP frames; keep gin's output off it.
	gin.DefaultWriter = os.Stderr
	gin.DefaultErrorWriter = os.Stderr
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	handlers.RegisterRoutes(router, svc, authMiddleware, logger.Named("bridge"))
	return router, nil
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) (*gorm.DB, error) {
	gormLog := gormlogger.New(zap.NewStdLog(zapLogger.Named("gorm")), gormlogger.Config{
		SlowThreshold: time.Second,
		LogLevel:      gormlogger.Warn,
	})
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// serveHTTPServer serves on listener until ctx is done, then drains in-flight
// requests within shutdownTimeout.
func serveHTTPServer(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down http bridge")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
