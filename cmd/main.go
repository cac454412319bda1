package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"sitterlink/realtime/internal/api/handler"
	"sitterlink/realtime/internal/auth"
	"sitterlink/realtime/internal/chat"
	"sitterlink/realtime/internal/config"
	"sitterlink/realtime/internal/counter"
	"sitterlink/realtime/internal/notify"
	"sitterlink/realtime/internal/realtime"
	"sitterlink/realtime/internal/storage"
)

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

// newBus wires the cluster bus. An unreachable Redis degrades delivery to
// this process only; it must not crash the server.
func newBus(ctx context.Context, cfg config.RedisConfig, log *logrus.Logger) (realtime.Bus, *redis.Client) {
	pub := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if _, err := pub.Ping(ctx).Result(); err != nil {
		log.WithError(err).Warn("redis unreachable, degrading to single-process delivery")
		return realtime.NewLocalBus(), nil
	}
	// The blocking subscription gets its own connection; a subscribing
	// connection cannot issue other commands.
	sub := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return realtime.NewRedisBus(pub, sub, log), pub
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	log := newLogger(cfg.Log)

	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}

	store := storage.NewService(db, log)
	if err := store.Migrate(); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, redisClient := newBus(ctx, cfg.Redis, log)

	var counterStore counter.Store
	if redisClient != nil {
		counterStore = counter.NewRedisStore(redisClient)
	} else {
		counterStore = counter.NewMemStore()
	}
	counters := counter.New(counterStore, log)

	registry := realtime.NewRegistry(bus, log)
	if err := registry.Start(ctx); err != nil {
		log.WithError(err).Warn("broadcast bus failed to start, delivery is single-process")
	}

	verifier := auth.NewVerifier(cfg.JWT.Secret)
	router := realtime.NewRouter(log)

	chatEngine := chat.NewEngine(store, counters, registry, verifier, log)
	chatEngine.RegisterSocketHandlers(router)

	notifyEngine := notify.NewEngine(store, counters, registry, verifier, log)
	notifyEngine.RegisterSocketHandlers(router)

	startConsumer(ctx, cfg.RabbitMQ, notifyEngine, log)

	r := gin.Default()
	h := handler.New(chatEngine, notifyEngine, registry, router, verifier, log)
	h.Routes(r)

	server := &http.Server{
		Addr:           cfg.Server.Addr(),
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Infof("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	_ = bus.Close()
}

// startConsumer launches the queue consumer. An unreachable broker keeps the
// chat surface up; the consumer is simply absent until restart.
func startConsumer(ctx context.Context, cfg config.RabbitMQConfig, engine *notify.Engine, log *logrus.Logger) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		log.WithError(err).Warn("rabbitmq unreachable, notification consumer disabled")
		return
	}
	consumer, err := notify.NewConsumer(conn, cfg.Queue, engine, log)
	if err != nil {
		log.WithError(err).Warn("rabbitmq channel setup failed, notification consumer disabled")
		return
	}
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.WithError(err).Error("notification consumer stopped")
		}
	}()
}
