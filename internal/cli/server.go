package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/files"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/natsbus"
	pgloader "live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logging"
	"live-quiz-service/internal/metrics"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
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
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

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
		defer redisClient.Close()
	}
	inviteTTL := config.TTLDuration(cfg.Redis.TTL, 12*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	switch {
	case cfg.Quiz.Dir != "":
		loader = files.NewQuizLoader(cfg.Quiz.Dir)
		log.Info().Str("dir", cfg.Quiz.Dir).Msg("loading quizzes from directory")
	case pool != nil:
		loader = pgloader.NewQuizLoader(pool)
		log.Info().Msg("loading quizzes from postgres")
	default:
		log.Warn().Msg("no quiz source configured, serving the built-in sample quiz")
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	var directory app.InviteDirectory
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
		directory = redisstore.NewInviteDirectory(redisClient, inviteTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		directory = memory.NewInviteDirectory()
	}

	hub := transport.NewHub()
	recorder := metrics.NewRecorder("live_quiz")
	opts := []app.RegistryOption{
		app.WithEmitter(hub),
		app.WithMetrics(recorder),
		app.WithInviteDirectory(directory),
		app.WithConfig(app.RegistryConfig{
			EndedGrace:         config.TTLDuration(cfg.Game.EndedGrace, 5*time.Minute),
			InviteCodeAttempts: cfg.Game.InviteCodeAttempts,
			BaseURL:            cfg.Server.BaseURL,
			InviteRefresh:      inviteTTL / 3,
		}),
	}
	if cfg.Game.Scoring.Max > 0 {
		opts = append(opts, app.WithScorer(app.LinearDecayScorer{Max: cfg.Game.Scoring.Max, Floor: cfg.Game.Scoring.Floor}))
	}
	if cfg.NATS.URL != "" {
		natsCfg := natsbus.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		if cfg.NATS.Subject != "" {
			natsCfg.SubjectPrefix = cfg.NATS.Subject
		}
		publisher, err := natsbus.Connect(natsCfg)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, app.WithNotifier(publisher))
	}
	registry := app.NewRegistry(opts...)

	if cfg.Manager.Password == "" {
		log.Warn().Msg("manager password not configured, manager:auth will always fail")
	}
	service := app.NewGameService(registry, quizRepo, auth.NewPasswordAuthenticator(cfg.Manager.Password), hub)
	wsHandler := transport.NewWSHandler(service, hub, cfg.Server.AllowedOrigins)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	corsOpts := cors.Options{AllowedOrigins: cfg.Server.AllowedOrigins, AllowedMethods: []string{http.MethodGet}}
	if len(corsOpts.AllowedOrigins) == 0 {
		corsOpts.AllowedOrigins = []string{"*"}
	}

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     cors.New(corsOpts).Handler(mux),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	registry.Cleanup(shutdownCtx)
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes is served when neither a quiz directory nor Postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"sample": {
			Subject: "Warm-up",
			Questions: []domain.Question{
				{
					Text:     "What is 2 + 2?",
					Answers:  []string{"3", "4", "5", "22"},
					Solution: 1,
					Cooldown: 3,
					Time:     15,
				},
				{
					Text:     "Which planet is known as the Red Planet?",
					Answers:  []string{"Venus", "Jupiter", "Mars", "Mercury"},
					Solution: 2,
					Cooldown: 3,
					Time:     15,
				},
			},
		},
	}
}
