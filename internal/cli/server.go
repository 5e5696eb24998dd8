package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/config"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/memory"
	pgbank "trivia-live-service/internal/infra/postgres"
	redisinfra "trivia-live-service/internal/infra/redis"
	"trivia-live-service/internal/jobs"
	"trivia-live-service/internal/scheduler"
	transport "trivia-live-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.SetLoader = memory.NewStaticSetLoader(sampleSets())
	if pool != nil {
		loader = pgbank.NewSetLoader(pool)
	}

	bankTTL := config.Duration(cfg.Bank.TTL, 10*time.Minute)
	var bank app.QuestionBank
	if redisClient != nil {
		bank = redisinfra.NewBankCache(redisClient, loader, bankTTL)
	} else {
		bank = memory.NewBankCache(loader, bankTTL)
	}

	clock := clockwork.NewRealClock()
	timers := scheduler.New(clock)
	coordinator := app.NewCoordinator(clock, timers, app.Policy{
		ReconnectGrace:   config.Duration(cfg.Session.ReconnectGrace, 5*time.Minute),
		SettleDelay:      config.Duration(cfg.Session.SettleDelay, time.Second),
		DefaultTimeLimit: config.Duration(cfg.Session.DefaultTimeLimit, domain.DefaultTimeLimit),
	})
	if setID := cfg.Bank.SetID; setID != "" {
		coordinator.SetBank(bank, setID)
	} else {
		coordinator.SetBank(bank, "sample")
	}
	if redisClient != nil {
		retention := config.Duration(cfg.Results.Retention, 24*time.Hour)
		coordinator.SetResultStore(redisinfra.NewResultStore(redisClient, retention))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go coordinator.Run(runCtx)

	hub := transport.NewHub()
	go hub.Run(runCtx, coordinator.Events())

	wsHandler := transport.NewWSHandler(coordinator, hub)

	mux := http.NewServeMux()
	mux.Handle("/healthz", transport.NewHealthHandler(coordinator, hub))
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	corsOrigins := cfg.Server.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	handler := cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	}).Handler(mux)

	cronRunner, err := jobs.NewRunner(coordinator, jobs.Schedules{
		Reminder:    cfg.Cron.Reminder,
		WeeklyReset: cfg.Cron.WeeklyReset,
		Cleanup:     cfg.Cron.Cleanup,
	})
	if err != nil {
		return err
	}
	cronRunner.Start()

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting trivia live service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	// Pending timers are cancelled without firing and open connections are
	// closed before the listener goes away.
	cronRunner.Stop()
	timers.Shutdown()
	hub.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// sampleSets provides a minimal question bank; deployments load sets from
// Postgres instead.
func sampleSets() map[string]domain.QuestionSet {
	q1, _ := domain.NewQuestion("What is 2 + 2?", []string{"3", "4", "5"}, 1, 30*time.Second, "math")
	q2, _ := domain.NewQuestion("Which planet is known as the Red Planet?", []string{"Venus", "Mars", "Jupiter"}, 1, 30*time.Second, "science")
	return map[string]domain.QuestionSet{
		"sample": {
			ID:        "sample",
			Questions: []domain.Question{q1, q2},
		},
	}
}
