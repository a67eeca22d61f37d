package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	authservice "everkeep/internal/auth/service"
	userstore "everkeep/internal/auth/store/user"
	"everkeep/internal/dispatch"
	jwttoken "everkeep/internal/jwt_token"
	"everkeep/internal/message/crypto"
	messageservice "everkeep/internal/message/service"
	messagestore "everkeep/internal/message/store"
	passingservice "everkeep/internal/passing/service"
	passingstore "everkeep/internal/passing/store"
	"everkeep/internal/platform/config"
	"everkeep/internal/platform/httpserver"
	"everkeep/internal/platform/kafka"
	"everkeep/internal/platform/logger"
	"everkeep/internal/platform/metrics"
	"everkeep/internal/platform/postgres"
	redisplatform "everkeep/internal/platform/redis"
	recipientservice "everkeep/internal/recipient/service"
	recipientstore "everkeep/internal/recipient/store"
	httptransport "everkeep/internal/transport/http"
	audit "everkeep/pkg/platform/audit"
	auditpublisher "everkeep/pkg/platform/audit/publisher"
	auditmemory "everkeep/pkg/platform/audit/store/memory"
	auditpostgres "everkeep/pkg/platform/audit/store/postgres"
	auditworker "everkeep/pkg/platform/audit/worker"
)

// main wires configuration, storage, services, the dispatcher loop, and the
// HTTP server. Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	codec, err := buildCodec(cfg, log)
	if err != nil {
		log.Error("master key rejected", "error", err)
		os.Exit(1)
	}

	stores, cleanup, err := buildStores(ctx, cfg, log)
	if err != nil {
		log.Error("storage init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	m := metrics.New()

	// Audit pipeline: services emit into a buffered channel; the worker
	// drains it into the configured sink.
	publisher := auditpublisher.NewChannelPublisher(256)
	auditSink, sinkClose, err := buildAuditSink(cfg, stores, log)
	if err != nil {
		log.Error("audit sink init failed", "error", err)
		os.Exit(1)
	}
	defer sinkClose()
	go func() {
		if err := auditworker.New(auditSink, publisher.Inbox(), log).Run(ctx); err != nil {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "everkeep", "everkeep-api")

	auth := authservice.New(stores.users, publisher, m, nil)
	passing := passingservice.New(stores.passing, stores.users, publisher, m, nil, cfg.QuorumMinimum)
	messages := messageservice.New(stores.messages, stores.recipients, passing, codec, publisher, m, nil)
	recipients := recipientservice.New(stores.recipients, stores.messages)

	var lease dispatch.Lease
	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		lease = dispatch.NewRedisLease(redisClient, uuid.NewString())
	}

	dispatcher := dispatch.New(messages, stores.messages, stores.recipients, stores.users,
		codec, dispatch.NewLogNotifier(log), publisher, m, log, nil, lease,
		cfg.DispatchInterval, cfg.StoreTimeout)
	go dispatcher.Run(ctx)

	router := httptransport.NewRouter(httptransport.Handlers{
		Auth:       httptransport.NewAuthHandler(auth, jwtService),
		Messages:   httptransport.NewMessageHandler(messages),
		Recipients: httptransport.NewRecipientHandler(recipients),
		Passing:    httptransport.NewPassingHandler(passing),
	}, jwttoken.NewJWTServiceAdapter(jwtService), log)

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("everkeep listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

type storeSet struct {
	users      userstore.Store
	messages   messagestore.Store
	recipients recipientstore.Store
	passing    passingstore.Store
	auditStore audit.Store
}

// buildStores picks postgres when DATABASE_URL is set and falls back to the
// in-memory implementations for local development.
func buildStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*storeSet, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("no DATABASE_URL configured, using in-memory storage")
		return &storeSet{
			users:      userstore.NewInMemory(),
			messages:   messagestore.NewInMemory(),
			recipients: recipientstore.NewInMemory(),
			passing:    passingstore.NewInMemory(),
			auditStore: auditmemory.NewInMemoryStore(),
		}, func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return &storeSet{
		users:      userstore.NewPostgres(db),
		messages:   messagestore.NewPostgres(db),
		recipients: recipientstore.NewPostgres(db),
		passing:    passingstore.NewPostgres(db),
		auditStore: auditpostgres.New(db),
	}, func() { _ = db.Close() }, nil
}

func buildAuditSink(cfg config.Config, stores *storeSet, log *slog.Logger) (audit.Store, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		return stores.auditStore, func() {}, nil
	}
	sink, err := kafka.NewSink(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	log.Info("audit events publishing to kafka", "topic", cfg.KafkaTopic)
	return sink, sink.Close, nil
}

// buildCodec loads the master key, or generates an ephemeral one for
// development where encrypted content does not survive a restart anyway.
func buildCodec(cfg config.Config, log *slog.Logger) (*crypto.Codec, error) {
	if cfg.MasterKey != "" {
		return crypto.NewCodecFromBase64(cfg.MasterKey)
	}
	log.Warn("no EVERKEEP_MASTER_KEY configured, generating an ephemeral key")
	generated, err := crypto.GenerateMasterKey()
	if err != nil {
		return nil, err
	}
	return crypto.NewCodecFromBase64(generated)
}
