package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"branchboard/backend/internal/adapter"
	"branchboard/backend/internal/collab"
	"branchboard/backend/internal/graph"
	"branchboard/backend/internal/relay"
	"branchboard/backend/pkg/config"
	"branchboard/backend/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting branchboard server...",
		zap.String("env", cfg.Env),
		zap.String("instance_id", cfg.InstanceID),
		zap.String("store", cfg.StoreBackend),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}
	log.Info("Server exited")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := collab.NewHub(collab.NewMetrics("branchboard"))
	defer hub.Close()

	var (
		relayListener *relay.Listener
		relayHealth   pinger
	)
	if cfg.RelayEnabled() {
		r, err := relay.NewRedisRelay(cfg.RedisURL, cfg.InstanceID)
		if err != nil {
			return fmt.Errorf("failed to start relay: %w", err)
		}
		defer r.Close()

		relayListener, err = r.Subscribe(ctx)
		if err != nil {
			return err
		}
		hub.SetPublisher(r)
		relayHealth = r
		log.Info("Cross-instance relay enabled")
	}

	llm := adapter.NewLLMAdapter(adapter.Options{
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.ModelID,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		MaxAttempts: cfg.LLMMaxAttempts,
	})

	wsOpts := collab.WSOptions{
		SendBuffer:      cfg.WSSendBuffer,
		WriteWait:       cfg.WSWriteTimeout,
		MaxMessageBytes: cfg.WSMaxMessageBytes,
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := newServer(ctx, store, hub, llm, wsOpts, cfg.CORSOrigins, log)
	srv.relay = relayHealth

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv.router(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server started", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if relayListener != nil {
		g.Go(func() error {
			return relayListener.Run(gctx, hub)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		// websocket connections are hijacked, so Shutdown does not wait for them
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
			return err
		}
		return nil
	})

	return g.Wait()
}

// openStore connects the configured storage backend
func openStore(ctx context.Context, cfg *config.Config) (graph.Store, func(), error) {
	if cfg.StoreBackend == config.StoreMemory {
		logger.Get().Warn("Using in-memory store; boards are lost on restart")
		return graph.NewMemoryStore(), func() {}, nil
	}

	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		driver.Close(context.Background())
		return nil, nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	repo := graph.NewRepository(driver)
	return repo, func() {
		if err := repo.Close(); err != nil {
			logger.Get().Warn("Failed to close Neo4j driver", zap.Error(err))
		}
	}, nil
}
