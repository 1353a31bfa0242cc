package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kealoha/emergency-alert-hub/internal/api"
	"github.com/kealoha/emergency-alert-hub/internal/config"
	"github.com/kealoha/emergency-alert-hub/internal/hub"
	"github.com/kealoha/emergency-alert-hub/internal/ingestion"
	"github.com/kealoha/emergency-alert-hub/internal/logging"
	"github.com/kealoha/emergency-alert-hub/internal/models"
	"github.com/kealoha/emergency-alert-hub/internal/notify"
	"github.com/kealoha/emergency-alert-hub/internal/observability"
	"github.com/kealoha/emergency-alert-hub/internal/repository"
	"github.com/kealoha/emergency-alert-hub/internal/stream"
	"github.com/kealoha/emergency-alert-hub/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	quietZone, err := time.LoadLocation(cfg.Notify.Timezone)
	if err != nil {
		logging.Fatalf("Failed to load notify timezone: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics(nil)

	// Live connection hub for websocket clients
	liveHub := hub.NewHub(metrics)

	// Notification dispatch: worker pool plus the per-channel providers
	pool := worker.NewPool(cfg.Worker.Count, cfg.Worker.BufferSize)
	pool.Start(ctx)

	senders := map[models.ChannelType]notify.Sender{
		models.ChannelEmail: senderFor(models.ChannelEmail, cfg.Notify.EmailEndpoint, cfg.Notify.ProviderToken),
		models.ChannelSMS:   senderFor(models.ChannelSMS, cfg.Notify.SMSEndpoint, cfg.Notify.ProviderToken),
		models.ChannelVoice: senderFor(models.ChannelVoice, cfg.Notify.VoiceEndpoint, cfg.Notify.ProviderToken),
	}
	dispatcher := notify.NewDispatcher(
		db, db, notify.PlanEntitlements{}, senders,
		pool, quietZone, cfg.Notify.FromAddress, metrics,
	)

	var publisher *stream.Publisher
	if cfg.Stream.Enabled {
		publisher = stream.NewPublisher(cfg.Stream.Brokers, cfg.Stream.Topic)
		defer publisher.Close()
	}

	// Sync sources; the volcano source reads epicenters cached by the
	// earthquake source to detect swarms.
	var sources []ingestion.Source
	usgs := ingestion.NewUSGSSource(cfg.Sync.USGSURL)
	if cfg.Sync.USGSEnabled {
		sources = append(sources, usgs)
	}
	if cfg.Sync.NWSEnabled {
		sources = append(sources, ingestion.NewNWSSource(cfg.Sync.NWSURL))
	}
	if cfg.Sync.VolcanoEnabled {
		sources = append(sources, ingestion.NewVolcanoSource(cfg.Sync.VolcanoURL, usgs))
	}

	onNew := func(ctx context.Context, alert *models.Alert) {
		dispatcher.Dispatch(ctx, alert)
		liveHub.BroadcastAll(alert)
		if err := publisher.Publish(ctx, alert); err != nil {
			slog.Error("error publishing to stream", "alert", alert.ExternalID, "error", err)
		}
	}

	scheduler := ingestion.NewScheduler(
		sources, db, cfg.Sync.Interval, cfg.Sync.SourceTimeout, onNew, metrics,
	)
	scheduler.Start(ctx)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(5)) // 5 req/s global limit

	handler := api.NewHandler(db, liveHub, scheduler)
	handler.RegisterRoutes(router)
	handler.RegisterWebsocketRoutes(router, liveHub)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	scheduler.Stop()
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}

// senderFor wires a channel to its HTTP provider, falling back to a logging
// sender when no endpoint is configured.
func senderFor(ch models.ChannelType, endpoint, token string) notify.Sender {
	if endpoint == "" {
		return notify.LogSender{Channel: ch}
	}
	return notify.NewHTTPSender(endpoint, token)
}
