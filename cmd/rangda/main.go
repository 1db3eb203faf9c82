package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/layer-3/rangda/adapters/events"
	"github.com/layer-3/rangda/adapters/store"
	"github.com/layer-3/rangda/adapters/tokenizer"
	"github.com/layer-3/rangda/internal/config"
	"github.com/layer-3/rangda/internal/logging"
	"github.com/layer-3/rangda/ports"
	"github.com/layer-3/rangda/service"
	transport "github.com/layer-3/rangda/transport/http"
)

func main() {
	configPath := flag.String("config", os.Getenv("RANGDA_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Token signing key. A production deployment would load this from
	// a secret store; ephemeral keys invalidate tokens on restart.
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		logger.Fatal("failed to generate signing key", zap.Error(err))
	}

	var (
		userStore      ports.UserStore
		challengeStore ports.ChallengeStore
		sessionStore   ports.SessionStore
		eventPub       ports.EventPublisher
		sweeper        *service.ChallengeSweeper
	)

	switch cfg.Storage.Type {
	case "redis":
		opts, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			logger.Fatal("failed to parse redis URL", zap.Error(err))
		}
		client := redis.NewClient(opts)

		userStore = store.NewRedisUserStore(client)
		challengeStore = store.NewRedisChallengeStore(client)
		sessionStore = store.NewRedisSessionStore(client)

		if cfg.Events.Enabled {
			publisher, err := redisstream.NewPublisher(
				redisstream.PublisherConfig{Client: client},
				watermill.NewStdLogger(false, false),
			)
			if err != nil {
				logger.Fatal("failed to create event publisher", zap.Error(err))
			}
			eventPub = events.NewWatermillPublisher(publisher)
		}

	default:
		userStore = store.NewMemoryUserStore()
		memChallenges := store.NewMemoryChallengeStore()
		challengeStore = memChallenges
		sessionStore = store.NewMemorySessionStore()

		sweeper = service.NewChallengeSweeper(memChallenges, 0, logger)
	}

	issuer := tokenizer.NewJWTTokenizer(
		signKey,
		cfg.Auth.Issuer,
		time.Duration(cfg.Auth.AccessTTLSeconds)*time.Second,
		time.Duration(cfg.Auth.RefreshTTLSeconds)*time.Second,
	)

	authService := service.NewAuthService(
		userStore, challengeStore, sessionStore, issuer, eventPub, logger,
		service.Config{
			Domain:         cfg.Auth.Domain,
			AllowedDomains: cfg.Auth.AllowedDomains,
			ChallengeTTL:   time.Duration(cfg.Auth.ChallengeTTLSeconds) * time.Second,
			SessionTTL:     time.Duration(cfg.Auth.SessionTTLSeconds) * time.Second,
		},
	)

	if sweeper != nil {
		sweeper.Start()
		defer sweeper.Stop()
	}

	router := transport.SetupRouter(authService)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server", zap.String("addr", addr), zap.String("storage", cfg.Storage.Type))
	if err := router.Run(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
