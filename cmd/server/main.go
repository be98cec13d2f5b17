package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docdoc/docdoc-server/internal/auth"
	"github.com/docdoc/docdoc-server/internal/chatlog"
	"github.com/docdoc/docdoc-server/internal/config"
	"github.com/docdoc/docdoc-server/internal/documents"
	"github.com/docdoc/docdoc-server/internal/logger"
	"github.com/docdoc/docdoc-server/internal/notify"
	"github.com/docdoc/docdoc-server/internal/relay"
	"github.com/docdoc/docdoc-server/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	log.Info("starting docdoc server", slog.String("instance_id", logger.GetInstanceID()))

	log.Info("setting gin mode", slog.String("mode", cfg.GinMode))
	gin.SetMode(cfg.GinMode)

	// Initialize database.
	db, err := storage.InitDatabase(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize services
	authService := auth.NewService(db.Queries, log.WithComponent("auth"))
	chatService := chatlog.NewService(db.Queries, log.WithComponent("chatlog"), cfg.ChatDefaultTitle)
	transcript := chatlog.NewWriter(db.Queries, log.WithComponent("transcript"), chatlog.WriterConfig{
		Workers:    cfg.TranscriptWorkerCount,
		BufferSize: cfg.TranscriptBufferSize,
		Timeout:    time.Duration(cfg.TranscriptTimeoutSeconds) * time.Second,
	})

	var publisher notify.Publisher = notify.Nop{}
	if cfg.NatsURL != "" {
		natsPublisher, err := notify.Connect(cfg.NatsURL, log)
		if err != nil {
			// Notifications are optional; the relay runs without them.
			log.Warn("failed to connect to NATS, turn notifications disabled", slog.String("error", err.Error()))
		} else {
			publisher = natsPublisher
		}
	}

	link := relay.NewLink(relay.LinkConfig{
		URL:            cfg.LLMServerURL,
		ReconnectDelay: cfg.LLMReconnectDelay,
		DialTimeout:    cfg.LLMDialTimeout,
	}, relay.NewWebSocketDialer(cfg.LLMDialTimeout), log.WithComponent("upstream"))

	tracker := relay.NewTracker()
	registry := relay.NewRegistry(tracker, log.WithComponent("registry"))

	metrics := relay.NewMetrics(prometheus.DefaultRegisterer, relay.MetricSources{
		ActiveClients:      registry.Len,
		StreamingSessions:  tracker.Len,
		UpstreamState:      link.State,
		TranscriptFailures: transcript.Failures,
		TranscriptDropped:  transcript.Dropped,
	})

	chatRouter := relay.NewRouter(relay.RouterDeps{
		Registry:   registry,
		Tracker:    tracker,
		Upstream:   link,
		Auth:       authService,
		Sessions:   chatService,
		Transcript: transcript,
		Publisher:  publisher,
		Metrics:    metrics,
		Logger:     log.WithComponent("relay"),
	}, relay.RouterConfig{
		TitleMaxLength: cfg.ChatTitleMaxLength,
		StopMarker:     cfg.ChatStopMarker,
	})

	runCtx, stopRouter := context.WithCancel(context.Background())
	go chatRouter.Run(runCtx)
	link.Connect()

	// Initialize handlers
	authHandler := auth.NewHandler(authService, log.WithComponent("auth"))
	historyHandler := chatlog.NewHandler(chatService, log.WithComponent("chatlog"))
	relayHandler := relay.NewHandler(chatRouter, link, registry, cfg.ClientSendBuffer, log.WithComponent("relay"))

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.RequestLoggingMiddleware(log))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "accesskey", "x-access-key", "x-request-id"},
		AllowCredentials: true,
	})
	router.Use(func(c *gin.Context) {
		corsHandler.HandlerFunc(c.Writer, c.Request)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/user/:uuid", authHandler.GetUser)
	}

	chat := router.Group("/chat")
	{
		chat.GET("/ws", relayHandler.ServeWS)
		chat.GET("/health", relayHandler.Health)
		chat.GET("/llm-status", relayHandler.LLMStatus)
		chat.POST("/reconnect-llm", relayHandler.Reconnect)
		chat.GET("/history/:userUuid", auth.RequireAccessKey(authService), historyHandler.GetHistory)
	}

	for _, kind := range cfg.Documents {
		docService := documents.NewService(db.Queries, kind)
		documents.NewHandler(docService, log.WithComponent("documents")).Register(router.Group(kind.Path))
		log.Info("document collection mounted", slog.String("kind", kind.Kind), slog.String("path", kind.Path))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"result": http.StatusNotFound})
	})

	port := ":" + cfg.Port
	log.Info("docdoc server listening",
		slog.String("addr", port),
		slog.String("llm_server", cfg.LLMServerURL),
		slog.String("db_driver", cfg.DBDriver))

	srv := &http.Server{
		Addr:    port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	// Stop upstream traffic before draining the transcript so no new messages are queued.
	link.Close()
	stopRouter()
	transcript.Shutdown()
	log.Info("transcript writer shutdown complete",
		slog.Int64("failures", transcript.Failures()),
		slog.Int64("dropped", transcript.Dropped()))

	publisher.Close()

	if err := db.Close(); err != nil {
		log.Error("failed to close database", slog.String("error", err.Error()))
	}

	log.Info("server exited")
}
