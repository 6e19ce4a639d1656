// Command orchmesh runs the orchmesh server: a single process hosting the
// Session Manager, Agent Registry/Runtime, Connection Manager, Message
// Router, Event Bus, Hub Layer, and Orchestrator (spec.md §4) behind one
// WebSocket endpoint. Grounded on the teacher's cmd/kandev/main.go wiring
// order: config, logger, context, event bus, domain services, transport
// gateway, HTTP server, graceful shutdown.
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

	"github.com/kandev/orchmesh/internal/agent"
	"github.com/kandev/orchmesh/internal/agent/anthropicadapter"
	"github.com/kandev/orchmesh/internal/agent/approval"
	"github.com/kandev/orchmesh/internal/agent/echoadapter"
	"github.com/kandev/orchmesh/internal/config"
	"github.com/kandev/orchmesh/internal/connmgr"
	"github.com/kandev/orchmesh/internal/events"
	"github.com/kandev/orchmesh/internal/events/bus"
	"github.com/kandev/orchmesh/internal/hub"
	"github.com/kandev/orchmesh/internal/logging"
	"github.com/kandev/orchmesh/internal/orchestrator"
	"github.com/kandev/orchmesh/internal/router"
	"github.com/kandev/orchmesh/internal/session"
	"github.com/kandev/orchmesh/internal/session/memstore"
	"github.com/kandev/orchmesh/internal/session/pgstore"
	"github.com/kandev/orchmesh/internal/tools"
	"github.com/kandev/orchmesh/internal/transport/wsgateway"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ============================================
	// EVENT BUS (in-memory, or NATS if configured)
	// ============================================
	var backplane bus.Bus
	if cfg.NATS.URL != "" {
		log.Info("connecting to NATS", zap.String("url", cfg.NATS.URL))
		natsBus, err := bus.NewNATSBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsBus.Close()
		backplane = natsBus
	}
	eventBus := events.New(backplane, log)

	// ============================================
	// SESSION MANAGER (Postgres if configured, else in-memory)
	// ============================================
	var repo session.Repository
	var pgdb *pgstore.DB
	if cfg.Database.DBName != "" {
		dsn := cfg.Database.DSN()
		log.Info("connecting to Postgres", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))
		if err := pgstore.Migrate(dsn); err != nil {
			log.Fatal("failed to apply database migrations", zap.Error(err))
		}
		pgdb, err = pgstore.Open(ctx, cfg.Database)
		if err != nil {
			log.Fatal("failed to connect to Postgres", zap.Error(err))
		}
		repo = pgstore.New(pgdb)
	} else {
		log.Info("using in-memory session store")
		repo = memstore.New()
	}
	sessionMgr := session.New(repo, eventBus, log)

	// ============================================
	// AGENT REGISTRY & RUNTIME
	// ============================================
	adapterFactory := func(acfg agent.Config) (agent.Adapter, error) {
		switch acfg.ProviderType {
		case "", "echo":
			return echoadapter.New(log, 0), nil
		case "anthropic":
			return anthropicadapter.New(anthropicadapter.Config{
				APIKey:       os.Getenv("ANTHROPIC_API_KEY"),
				Model:        acfg.Model,
				SystemPrompt: acfg.SystemPrompt,
				MaxTokens:    4096,
			})
		default:
			return nil, fmt.Errorf("unknown agent provider type %q", acfg.ProviderType)
		}
	}
	agentRegistry := agent.NewRegistry(adapterFactory, eventBus, log)
	agentRuntime := agent.NewRuntime(agentRegistry, cfg.Agent.StreamCancelGrace, log)

	// ============================================
	// TOOL REGISTRY & APPROVAL COLLABORATOR
	// ============================================
	approver := approval.New(approval.Mode(cfg.Agent.ApprovalMode), nil)
	toolRegistry := tools.NewRegistry(approver)
	if err := toolRegistry.Register(tools.Echo{}); err != nil {
		log.Fatal("failed to register echo tool", zap.Error(err))
	}
	if err := toolRegistry.Register(tools.Clock{}); err != nil {
		log.Fatal("failed to register clock tool", zap.Error(err))
	}

	// ============================================
	// CONNECTION MANAGER, MESSAGE ROUTER, ORCHESTRATOR
	// ============================================
	connMgr := connmgr.New()

	gateway := wsgateway.NewGateway(log)
	msgRouter := router.New(gateway.Hub, log)

	executor := orchestrator.NewExecutor(agentRuntime, eventBus, cfg.Orchestrator.ParallelismCap, log)

	// ============================================
	// HUB LAYER
	// ============================================
	agentHub := hub.NewAgentHub(sessionMgr, agentRegistry, agentRuntime, toolRegistry, msgRouter, gateway.Hub, eventBus, log)
	orchestratorHub := hub.NewOrchestratorHub(sessionMgr, executor, msgRouter, gateway.Hub, connMgr, log)

	agentHub.Register(gateway.Dispatcher)
	orchestratorHub.Register(gateway.Dispatcher)
	gateway.OnClientConnected = orchestratorHub.OnConnect
	gateway.OnClientDisconnected = orchestratorHub.OnDisconnect

	go gateway.Hub.Run(ctx)

	// ============================================
	// HTTP SERVER (WebSocket endpoint and /health probe)
	// ============================================
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	ginRouter.Use(corsMiddleware())

	gateway.SetupRoutes(ginRouter)

	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "orchmesh"})
	})

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
		Handler:      ginRouter,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("orchmesh listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// ============================================
	// GRACEFUL SHUTDOWN
	// ============================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down orchmesh")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if pgdb != nil {
		pgdb.Close()
	}

	log.Info("orchmesh stopped")
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Protocol")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
