package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/blockedby/survey-portal/internal/catalog"
	"github.com/blockedby/survey-portal/internal/config"
	"github.com/blockedby/survey-portal/internal/dashboard"
	"github.com/blockedby/survey-portal/internal/logger"
	"github.com/blockedby/survey-portal/internal/metrics"
	"github.com/blockedby/survey-portal/internal/nats"
	"github.com/blockedby/survey-portal/internal/portalapi"
	"github.com/blockedby/survey-portal/internal/publisher"
	"github.com/blockedby/survey-portal/internal/session"
	"github.com/blockedby/survey-portal/internal/web"
	"github.com/blockedby/survey-portal/internal/web/handlers"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Str("api_base_url", cfg.APIBaseURL).Msg("starting survey portal")

	// 3. Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	// 4. Question catalog
	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load catalog")
	}

	// 5. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 6. Survey backend client
	client := portalapi.NewClient(cfg.APIBaseURL,
		portalapi.WithTimeout(cfg.APITimeout()),
		portalapi.WithRateLimit(cfg.APIRateLimit, cfg.APIRateBurst),
		portalapi.WithRecorder(m),
	)

	// 7. Connect to NATS
	var pub dashboard.Publisher
	if cfg.NatsURL != "" {
		nc, err := nats.New(ctx, cfg.NatsURL, log.Component("nats"))
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to nats, activity publishing disabled")
		} else {
			defer nc.Close()
			if err := nc.EnsureStream(ctx, nats.ActivityStream, []string{nats.ActivitySubject}); err != nil {
				log.Warn().Err(err).Msg("failed to ensure activity stream")
			}
			pub = publisher.NewNATSPublisher(nc)
		}
	}

	// 8. WebSocket hub
	hub := web.NewHub()
	go hub.Run()
	defer hub.Stop()

	// 9. Sessions
	secret := cfg.SessionSecret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
		log.Warn().Msg("SESSION_SECRET not set, sessions will not survive a restart")
	}
	store, err := session.NewCookieStore(secret, cfg.SecureCookies)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session store")
	}

	registry := session.NewRegistry(func(sessionID string) *dashboard.Controller {
		ctl := dashboard.NewController(client, dashboard.Options{
			Catalog:   cat,
			Tokens:    session.ContextTokenProvider,
			Publisher: pub,
			Metrics:   m,
			Logger:    log.Component("dashboard"),
		})
		ctl.Subscribe(func(s dashboard.State) {
			hub.SendToSession(sessionID, web.DashboardUpdatedEvent(sessionID, s.StudyID, s.Loading, s.Error))
		})
		return ctl
	}, cfg.SessionIdle(), m, log.Component("sessions"))
	go registry.Run(ctx)

	// 10. Templates
	tmpl := web.NewTemplateEngine(cfg.TemplatesDir, cfg.LogLevel == "debug")
	if err := tmpl.Load(); err != nil {
		log.Fatal().Err(err).Msg("failed to load templates")
	}

	// 11. Initialize Server
	server := web.NewServer(&web.Config{
		Port:        cfg.HTTPPort,
		StaticDir:   cfg.StaticDir,
		CORSOrigins: cfg.CORSOrigins,
		Middlewares: []func(http.Handler) http.Handler{session.Middleware(store, log.Component("sessions"))},
	}, m, hub)
	server.RegisterDashboardHandler(handlers.NewDashboardHandler(tmpl, registry, log.Component("web")))

	// 12. Start Server
	log.Info().Int("port", cfg.HTTPPort).Msg("starting web server")
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	// 13. Wait for shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}
