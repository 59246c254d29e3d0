package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/toncenter/ton-indexer/ton-classify-go/classifier"
	"github.com/toncenter/ton-indexer/ton-classify-go/events"
)

func main() {
	pgDsn := flag.String("pg", "", "PostgreSQL connection DSN")
	redisDsn := flag.String("redis", "", "Redis connection URL")
	listenAddr := flag.String("listen", ":8095", "HTTP server listen address")
	channelName := flag.String("channel", "new_trace", "Redis Pub/Sub channel with emulated trace keys")
	fetchSize := flag.Int("fetch-size", 10000, "Number of traces to fetch from db in one batch")
	batchSize := flag.Int("batch-size", 1000, "Number of traces to process in one batch")
	poolSize := flag.Int("pool-size", 4, "Number of workers to process traces")
	emulatedMode := flag.Bool("emulated", false, "Classify emulated traces from Redis instead of the database")
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if *redisDsn == "" {
		logger.Fatal("Redis connection string is required. Use -redis flag")
	}
	if !*emulatedMode && *pgDsn == "" {
		logger.Fatal("PostgreSQL DSN is required in batch mode. Use -pg flag")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal, canceling context...")
		cancel()
	}()

	redisOpts, err := redis.ParseURL(*redisDsn)
	if err != nil {
		logger.WithError(err).Fatal("Failed to parse Redis DSN")
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}

	var pool *pgxpool.Pool
	if *pgDsn != "" {
		pool, err = pgxpool.New(ctx, *pgDsn)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create PostgreSQL pool")
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to connect to PostgreSQL")
		}
	}

	app := fiber.New()
	app.Get("/health", func(c *fiber.Ctx) error {
		if err := redisClient.Ping(c.Context()).Err(); err != nil {
			c.Status(500)
			return err
		}
		if pool != nil {
			if err := pool.Ping(c.Context()); err != nil {
				c.Status(500)
				return err
			}
		}
		c.Status(200)
		return nil
	})
	go func() {
		if err := app.Listen(*listenAddr); err != nil {
			logger.WithError(err).Error("HTTP server stopped")
		}
	}()
	defer app.Shutdown()

	processor := events.NewProcessor(events.NewTreeEngine(), logger)

	if *emulatedMode {
		logger.Info("Starting processing emulated traces")
		consumer := classifier.NewConsumer(redisClient, processor, *channelName, logger)
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Fatal("Consumer stopped")
		}
	} else {
		logger.Info("Starting processing traces from db")
		orchestrator := classifier.NewOrchestrator(pool, redisClient, processor, classifier.Config{
			FetchSize: *fetchSize,
			BatchSize: *batchSize,
			PoolSize:  *poolSize,
		}, logger)
		if err := orchestrator.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Fatal("Orchestrator stopped")
		}
	}
	logger.Info("Shutdown complete.")
}
