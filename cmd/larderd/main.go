package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"larder/internal/api"
	"larder/internal/config"
	"larder/internal/docstore"
	"larder/internal/metrics"
	"larder/internal/monitoring"
	"larder/internal/photo"
	"larder/internal/taxonomy"
	"larder/internal/workspace"
)

var (
	port        = flag.Int("port", 0, "API server port (overrides config)")
	metricsPort = flag.Int("metrics-port", 0, "Metrics server port (overrides config)")
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
	issueToken  = flag.String("issue-token", "", "Print a signed token for the given email and exit")
	tokenTTL    = flag.Duration("token-ttl", 24*time.Hour, "Lifetime of tokens printed by -issue-token")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *metricsPort != 0 {
		cfg.Metrics.Port = *metricsPort
	}

	if *issueToken != "" {
		token, err := api.IssueToken([]byte(cfg.Auth.JWTSecret), *issueToken, *tokenTTL)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	logger := log.New(os.Stderr, "larderd ", log.LstdFlags)
	if cfg.LogLevel == "quiet" {
		logger.SetOutput(io.Discard)
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metrics collector
	collector := metrics.NewCollector()

	// Initialize document store
	store, closeStore, err := initializeStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer closeStore()

	// Initialize photo storage
	photos, err := initializePhotos(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize photo storage: %v", err)
	}

	defaults, err := cfg.TaxonomyDefaults()
	if err != nil {
		log.Fatalf("Invalid taxonomy defaults: %v", err)
	}

	hub := api.NewHub(logger)
	monitor := monitoring.NewMonitor()
	publish := hub.CatalogObserver()
	registry := workspace.NewRegistry(workspace.Config{
		Store:     docstore.Instrument(store, collector),
		Logger:    logger,
		Metrics:   collector,
		Defaults:  defaults,
		MaxLength: cfg.Taxonomy.MaxLength,
		OnCatalogEvent: func(user string, ev taxonomy.Event) {
			monitor.ObserveCatalog(user, ev)
			publish(user, ev)
		},
	})

	// Initialize API server
	apiServer := api.NewServer(registry, []byte(cfg.Auth.JWTSecret),
		api.WithLogger(logger),
		api.WithHub(hub),
		api.WithPhotos(photos),
		api.WithMonitor(monitor),
	)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: apiServer.Router,
	}

	// Start metrics server
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = newMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, collector)
		go func() {
			logger.Printf("Starting metrics server on port %d", cfg.Metrics.Port)
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Println("Shutting down servers...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("API server shutdown error: %v", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Printf("Metrics server shutdown error: %v", err)
			}
		}

		cancel()
	}()

	// Start server
	logger.Printf("Starting API server on port %d (store: %s, photos: %s)", cfg.Server.Port, cfg.Store.Driver, cfg.Photos.Driver)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("API server error: %v", err)
	}

	<-ctx.Done()
	hub.Close()
	registry.CloseAll()
	logger.Println("Shutdown complete")
}

func initializeStore(cfg *config.Config) (docstore.Store, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		return docstore.NewMemoryStore(), func() {}, nil
	default:
		store, err := docstore.OpenGorm(cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Printf("Error closing store: %v", err)
			}
		}, nil
	}
}

func initializePhotos(ctx context.Context, cfg *config.Config) (photo.Store, error) {
	if cfg.Photos.Driver == "s3" {
		return photo.NewS3Store(ctx, photo.S3Config{
			Bucket:    cfg.Photos.S3.Bucket,
			Region:    cfg.Photos.S3.Region,
			Endpoint:  cfg.Photos.S3.Endpoint,
			PathStyle: cfg.Photos.S3.PathStyle,
		})
	}
	return photo.NewFSStore(cfg.Photos.Dir)
}

func newMetricsServer(port int, path string, collector *metrics.Collector) *http.Server {
	if path == "" {
		path = "/metrics"
	}
	metricsRouter := gin.New()
	metricsRouter.Use(gin.Recovery())
	metricsRouter.GET(path, gin.WrapH(collector.Handler()))

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: metricsRouter,
	}
}
