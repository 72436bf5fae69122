package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"rifa-api/internal/cache"
	"rifa-api/internal/config"
	"rifa-api/internal/db"
	"rifa-api/internal/events"
	"rifa-api/internal/handlers"
	"rifa-api/internal/metrics"
	mw "rifa-api/internal/middleware"
	"rifa-api/internal/notify"
	"rifa-api/internal/service"
	"rifa-api/internal/store"
)

var configPath = flag.String("config", "config/config.yaml", "ruta del archivo de configuración")

func main() {
	flag.Parse()

	// 0. Load Config (.env + yaml)
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "rifa-api").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("no se pudo cargar la configuración")
	}

	// 1. Init Database (Turso)
	dbURL := cfg.Database.URL
	authToken := cfg.Database.AuthToken
	if v := os.Getenv("TURSO_DATABASE_URL"); v != "" {
		dbURL = v
	}
	if v := os.Getenv("TURSO_AUTH_TOKEN"); v != "" {
		authToken = v
	}
	if dbURL == "" {
		logger.Fatal().Msg("TURSO_DATABASE_URL debe estar configurada")
	}

	conn, err := db.Connect(dbURL, authToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("no se pudo conectar a la base de datos")
	}
	defer conn.Close()

	if err := db.Migrate(conn); err != nil {
		logger.Fatal().Err(err).Msg("no se pudo migrar el esquema")
	}
	if err := db.SeedTickets(context.Background(), conn, cfg.Raffle.TotalNumbers); err != nil {
		logger.Fatal().Err(err).Msg("no se pudo sembrar el pool de números")
	}
	logger.Info().Int("total_numbers", cfg.Raffle.TotalNumbers).Msg("base de datos lista")

	st := store.NewSQL(conn)

	// 2. Optional infrastructure: redis, kafka, telegram
	var opts []service.Option

	if cfg.Redis.Address != "" {
		counters, err := cache.NewCounters(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn().Err(err).Msg("redis no disponible, contador sin caché")
		} else {
			defer counters.Close()
			opts = append(opts, service.WithCounters(counters))
			logger.Info().Str("address", cfg.Redis.Address).Msg("caché de contadores lista")
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
		opts = append(opts, service.WithPublisher(publisher))
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).
			Msg("publicador de eventos listo")
	}

	token := cfg.Telegram.Token
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		token = v
	}
	if token != "" {
		tg, err := notify.NewTelegram(token, cfg.Telegram.AdminChatID, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("no se pudo iniciar el bot de Telegram")
		} else {
			opts = append(opts, service.WithNotifier(tg))
		}
	} else {
		logger.Warn().Msg("TELEGRAM_TOKEN no configurado, notificaciones deshabilitadas")
	}

	// 3. Core service
	svc := service.New(st, cfg.Raffle, logger, opts...)
	prometheus.MustRegister(metrics.NewTicketCollector(st, logger))

	// 4. Router
	h := handlers.New(svc, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(mw.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/api/ping", h.Ping)
	r.Get("/api/tickets", h.ListTickets)
	r.Get("/api/my-orders", h.MyOrders)
	r.Post("/api/hold", h.Hold)
	r.Post("/api/random-hold", h.RandomHold)
	r.Post("/api/release", h.Release)
	r.Post("/api/create-order", h.CreateOrder)
	r.Post("/api/upload-proof", h.UploadProof)
	r.Post("/api/delete-proof", h.DeleteProof)
	r.Post("/api/update-order-note", h.UpdateOrderNote)
	r.Post("/api/purchase-limits", h.PurchaseLimits)

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/mark-paid", h.AdminMarkPaid)
		r.Post("/reject", h.AdminReject)
		r.Post("/cancel", h.AdminCancel)
		r.Post("/overview", h.AdminOverview)
	})

	r.Handle("/metrics", promhttp.Handler())

	// 5. Start + graceful shutdown
	port := cfg.Server.Port
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: r,
	}

	go func() {
		logger.Info().Int("port", port).Msg("servidor corriendo")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("el servidor se detuvo")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("cerrando servicio...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("apagado forzado")
	}
}
