package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "lodging_agent/internal/adapters/http_server"
	"lodging_agent/internal/adapters/monosend"
	"lodging_agent/internal/adapters/observability"
	"lodging_agent/internal/adapters/rabbitmq"
	redisad "lodging_agent/internal/adapters/redis"
	"lodging_agent/internal/app"
	"lodging_agent/internal/domain"
	"lodging_agent/internal/shared"
	mysqlrepo "lodging_agent/internal/storage/mysql"
	"lodging_agent/internal/widgets"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	schema, err := mysqlrepo.SchemaByName(cfg.DBSchema)
	if err != nil {
		log.Fatal().Err(err).Msg("unknown DB_SCHEMA")
	}
	log.Info().Str("schema", schema.Name).Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db, schema)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := cache.Ping(context.Background()); err != nil {
		log.Warn().Err(err).Msg("redis unreachable; hotel searches will not be cached")
	}

	mailer, err := monosend.New(monosend.Options{
		URL:        cfg.MonosendURL,
		APIKey:     cfg.MonosendKey,
		TemplateID: cfg.MonosendTemplateID,
		From:       cfg.MonosendFrom,
		Timeout:    cfg.MonosendTimeout,
		RPS:        cfg.MonosendRPS,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize email client")
	}

	var notifier domain.Notifier = app.NewMailNotifier(mailer)
	if cfg.NotifyMode == "queue" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.NotifyExchange)
		if err != nil {
			log.Fatal().Err(err).Msg("rabbitmq publisher init failed")
		}
		defer pub.Close()
		notifier = app.NewQueueNotifier(pub)
	}
	log.Info().Str("mode", cfg.NotifyMode).Msg("booking notifications configured")

	search := app.NewSearchService(repo, cache, cfg.CacheTTL())
	booking := app.NewBookingEngine(app.NewUnitResolver(repo), repo, notifier, cfg.BookingSource)

	// http
	srv := server.New(15 * time.Second)
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	widgetFS := os.DirFS(cfg.WidgetsDir)
	srv.Mount("/widgets/*", http.StripPrefix("/widgets/", http.FileServer(http.FS(widgetFS))))
	srv.MountHandlers(&server.Handlers{
		Search:  search,
		Booking: booking,
		Widgets: widgets.NewRegistry(widgetFS),
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}
