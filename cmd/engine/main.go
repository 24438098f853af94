package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gator-overflow/internal/auth"
	"gator-overflow/internal/config"
	"gator-overflow/internal/database"
	"gator-overflow/internal/engine"
	"gator-overflow/internal/engine/actors"
	"gator-overflow/internal/handlers"
	"gator-overflow/internal/utils"
	"gator-overflow/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
)

// application holds everything main starts and later shuts down.
type application struct {
	store   database.DBAdapter
	system  *actor.ActorSystem
	engine  *engine.Engine
	hub     *websocket.Hub
	metrics *utils.MetricsCollector
	server  *handlers.Server
}

// openStore connects the backend selected by DB_TYPE.
func openStore(ctx context.Context, cfg *config.DatabaseConfig) (database.DBAdapter, error) {
	switch cfg.Type {
	case config.DBMongo:
		return database.NewMongoDB(cfg.URI, cfg.Name, cfg.CASRetries)

	case config.DBPostgres:
		db, err := database.NewPostgresDB(cfg.URI, cfg.CASRetries)
		if err != nil {
			return nil, err
		}
		if err := db.InitializeTables(ctx); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("failed to initialize tables: %w", err)
		}
		return db, nil

	case config.DBMemory:
		return database.NewMemoryDB(cfg.CASRetries), nil

	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", cfg.Type)
	}
}

// newApplication wires the actor engine, identity provider and HTTP
// handlers around store.
func newApplication(cfg *config.Config, store database.DBAdapter) (*application, error) {
	metrics := utils.NewMetricsCollector()
	hub := websocket.NewHub()
	system := actor.NewActorSystem()

	gatorEngine := engine.NewEngine(system, store, metrics, hub, actors.QuestionActorConfig{
		PageSize:    cfg.Server.PageSize,
		SearchLimit: cfg.Server.SearchLimit,
		OpTimeout:   cfg.Server.RequestTimeout,
	})

	provider := auth.NewProvider(
		store,
		auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL),
		cfg.Auth.CookieName,
		cfg.Auth.SessionTTL,
	)
	provider.SetSecureCookies(!cfg.Debug)

	server, err := handlers.NewServer(system, gatorEngine, metrics, provider, store, hub, handlers.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err != nil {
		gatorEngine.Stop()
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &application{
		store:   store,
		system:  system,
		engine:  gatorEngine,
		hub:     hub,
		metrics: metrics,
		server:  server,
	}, nil
}

// startRelay routes hub activity through Redis so every instance sees it.
func (app *application) startRelay(ctx context.Context, cfg *config.RedisConfig) error {
	client, err := websocket.ConnectRedis(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return err
	}

	relay := websocket.NewRedisRelay(client)
	go func() {
		defer client.Close()
		if err := app.hub.RunRelay(ctx, relay); err != nil && ctx.Err() == nil {
			log.Printf("Redis relay stopped, delivering activity locally: %v", err)
		}
	}()
	log.Printf("Relaying activity through Redis at %s", cfg.Addr)
	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Database.Type, err)
	}
	log.Printf("Using %s store", cfg.Database.Type)

	app, err := newApplication(cfg, store)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	go app.hub.Run(ctx)

	if cfg.Redis.Addr != "" {
		if err := app.startRelay(ctx, cfg.Redis); err != nil {
			log.Printf("Redis unavailable, live updates stay local: %v", err)
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if err := app.engine.Stop(); err != nil {
		log.Printf("Engine shutdown: %v", err)
	}
	if err := app.store.Close(shutdownCtx); err != nil {
		log.Printf("Store shutdown: %v", err)
	}

	snap := app.metrics.Snapshot()
	log.Printf("Served %d requests (%d errors) in %s", snap.Requests, snap.Errors, snap.Uptime.Round(time.Second))
}
