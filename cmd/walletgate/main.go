package main

import (
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"

	"github.com/baliola/walletgate/adapters/events"
	"github.com/baliola/walletgate/adapters/store"
	"github.com/baliola/walletgate/adapters/tokenizer"
	"github.com/baliola/walletgate/config"
	"github.com/baliola/walletgate/ports"
	"github.com/baliola/walletgate/service"
	"github.com/baliola/walletgate/transport/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	wmLogger := watermill.NewSlogLogger(logger)

	var recordStore ports.Store
	var publisher message.Publisher

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)

		recordStore = store.NewRedisStore(redisClient)

		publisher, err = redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			wmLogger,
		)
		if err != nil {
			logger.Error("create redis publisher", "error", err)
			os.Exit(1)
		}
		logger.Info("using redis store", "url", cfg.RedisURL)
	} else {
		sqliteStore, err := store.OpenSQLiteStore(cfg.DatabasePath)
		if err != nil {
			logger.Error("open sqlite store", "error", err)
			os.Exit(1)
		}
		defer sqliteStore.Close()
		recordStore = sqliteStore

		// Single-node deployments publish in-process.
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		logger.Info("using sqlite store", "path", cfg.DatabasePath)
	}

	var previousKeys [][]byte
	for _, secret := range cfg.JWTPreviousSecrets {
		previousKeys = append(previousKeys, []byte(secret))
	}

	sessionTokenizer, err := tokenizer.NewJWTTokenizer([]byte(cfg.JWTSecret), previousKeys...)
	if err != nil {
		logger.Error("create tokenizer", "error", err)
		os.Exit(1)
	}

	eventPub := events.NewWatermillPublisher(publisher)

	authService := service.NewAuthService(
		recordStore,
		sessionTokenizer,
		eventPub,
		cfg.Domain,
		service.WithChallengeTTL(cfg.ChallengeTTL),
		service.WithSessionTTL(cfg.SessionTTL),
		service.WithLogger(logger),
	)

	router := http.SetupRouter(authService)

	logger.Info("starting server", "addr", cfg.ListenAddr, "domain", cfg.Domain)
	if err := router.Run(cfg.ListenAddr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
