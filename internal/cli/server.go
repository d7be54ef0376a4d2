package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/config"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"
	"quiz-room-service/internal/infra/postgres"
	redisinfra "quiz-room-service/internal/infra/redis"
	"quiz-room-service/internal/logging"
	transport "quiz-room-service/internal/transport/http"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const subscriberBuffer = 64

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// broadcastHub is what the server needs from a broadcaster: publishing for rooms
// and subscribing for websocket connections.
type broadcastHub interface {
	app.Broadcaster
	transport.Subscriber
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
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

	defaults, err := roomDefaults(cfg.Room)
	if err != nil {
		return err
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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	store, err := questionLoader(cfg.Questions, pool, log)
	if err != nil {
		return err
	}
	source := questionSource(store, config.TTLDuration(cfg.Questions.TTL, 10*time.Minute), redisClient, log)

	reapInterval := config.TTLDuration(cfg.Room.ReapInterval, time.Minute)
	opts := []app.RegistryOption{app.WithLogger(log)}
	var hub broadcastHub
	if redisClient != nil {
		hub = redisinfra.NewBroadcaster(redisClient, subscriberBuffer, log)
		// each reap tick re-tracks live rooms, so entries only need to outlive a couple of ticks
		opts = append(opts, app.WithRoomIndex(redisinfra.NewRoomIndex(redisClient, max(redisTTL, 2*reapInterval))))
	} else {
		hub = memory.NewBroadcaster(subscriberBuffer, log)
	}

	registry := app.NewRoomRegistry(source, hub, opts...)
	driver := app.NewSessionDriver(registry, hub,
		app.WithDefaults(defaults),
		app.WithDriverLogger(log),
	)
	wsHandler := transport.NewWSHandler(driver, hub, log)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(wsHandler),
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: websocket connections are long lived
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", finalPort).Info("starting quiz room service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return registry.RunReaper(gctx,
			reapInterval,
			config.TTLDuration(cfg.Room.IdleTTL, 30*time.Minute),
		)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		registry.Close()
		return err
	})
	return g.Wait()
}

// roomDefaults overlays configured defaults on the built-in ones and rejects invalid values at startup.
func roomDefaults(cfg config.RoomConfig) (domain.RoomConfig, error) {
	defaults := app.DefaultRoomConfig
	if cfg.DefaultPattern != "" {
		defaults.Pattern = domain.Pattern(cfg.DefaultPattern)
	}
	if cfg.DefaultQuestionCount != 0 {
		defaults.QuestionCount = cfg.DefaultQuestionCount
	}
	if cfg.DefaultTimePerQuestion != 0 {
		defaults.TimePerQuestion = cfg.DefaultTimePerQuestion
	}
	if err := validator.New().Struct(defaults); err != nil {
		return domain.RoomConfig{}, fmt.Errorf("invalid room defaults: %w", err)
	}
	return defaults, nil
}

// questionStore is a backing store that can both hand out whole pools for caching
// and sample directly.
type questionStore interface {
	memory.QuestionLoader
	app.QuestionSource
}

// questionSource puts a pool cache in front of store, in Redis when available.
// A non-positive ttl disables caching and every room start samples the store directly.
func questionSource(store questionStore, ttl time.Duration, client *redis.Client, log logrus.FieldLogger) app.QuestionSource {
	switch {
	case ttl <= 0:
		log.Info("question cache disabled; sampling the question store per room")
		return store
	case client != nil:
		return redisinfra.NewQuestionCache(client, store, ttl, log)
	default:
		return memory.NewQuestionCache(store, ttl)
	}
}

// questionLoader picks the pool backing store: Postgres when configured, else the seed
// file, else a small built-in bank.
func questionLoader(cfg config.QuestionsConfig, pool *pgxpool.Pool, log logrus.FieldLogger) (questionStore, error) {
	if pool != nil {
		return postgres.NewQuestionSource(pool), nil
	}
	if cfg.SeedFile != "" {
		seeds, err := postgres.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		questions, err := postgres.ToQuestions(seeds)
		if err != nil {
			return nil, err
		}
		return memory.NewQuestionBank(questions), nil
	}
	log.Warn("no postgres or seed file configured; serving built-in sample questions")
	return memory.NewQuestionBank(sampleQuestions()), nil
}

// sampleQuestions provides a minimal question set; swap this loader with Postgres in production.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:            "sample-1",
			Type:          domain.TypeMCQ,
			Level:         "Foundation",
			Content:       []byte(`{"text":"Which organelle is the powerhouse of the cell?","options":["Nucleus","Mitochondria","Ribosome","Golgi body"]}`),
			CorrectAnswer: domain.Answer(`"B"`),
		},
		{
			ID:            "sample-2",
			Type:          domain.TypeAssertionReason,
			Level:         "Foundation",
			Content:       []byte(`{"assertion":"Enzymes are proteins.","reason":"All proteins are enzymes."}`),
			CorrectAnswer: domain.Answer(`"C"`),
		},
		{
			ID:            "sample-3",
			Type:          domain.TypeMatchColumn,
			Level:         "Foundation",
			Content:       []byte(`{"left":["Xylem","Phloem"],"right":["Food","Water"]}`),
			CorrectAnswer: domain.Answer(`{"0":"1","1":"0"}`),
		},
		{
			ID:            "sample-4",
			Type:          domain.TypeDiagramBased,
			Level:         "Foundation",
			Content:       []byte(`{"text":"Identify the labelled part.","image":"heart.png","options":["Aorta","Vena cava"]}`),
			CorrectAnswer: domain.Answer(`"A"`),
		},
	}
}
