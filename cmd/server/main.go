package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/errgroup"

	"printhub/internal/capacity"
	"printhub/internal/discovery"
	discoveryhandler "printhub/internal/discovery/handler"
	"printhub/internal/events"
	"printhub/internal/events/outbox"
	"printhub/internal/notify"
	orderhandler "printhub/internal/order/handler"
	orderservice "printhub/internal/order/service"
	orderstore "printhub/internal/order/store"
	"printhub/internal/platform/config"
	"printhub/internal/platform/httpserver"
	"printhub/internal/platform/kafka/producer"
	"printhub/internal/platform/logger"
	"printhub/internal/platform/metrics"
	platformredis "printhub/internal/platform/redis"
	shophandler "printhub/internal/shop/handler"
	shopstore "printhub/internal/shop/store"
	httptransport "printhub/internal/transport/http"
)

// main wires dependencies and owns process lifecycle. Business logic lives in
// the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	m := metrics.New()
	healthChecks := map[string]httptransport.HealthCheck{}

	// Document store for shops and orders.
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	mongoClient, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return err
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	if err := mongoClient.Ping(connectCtx, readpref.Primary()); err != nil {
		return err
	}
	db := mongoClient.Database(cfg.Mongo.Database)
	healthChecks["mongo"] = func(ctx context.Context) error {
		return mongoClient.Ping(ctx, readpref.Primary())
	}

	shops, err := shopstore.NewMongoStore(connectCtx, db)
	if err != nil {
		return err
	}
	orders, err := orderstore.NewMongoStore(connectCtx, db)
	if err != nil {
		return err
	}

	// Live push over redis pub/sub; absent configuration degrades to no-op.
	var sink notify.Sink = notify.Noop{}
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		sink = notify.NewRedisSink(redisClient)
		healthChecks["redis"] = redisClient.Health
	} else {
		log.Warn("redis not configured, live push disabled")
	}

	// Durable event outbox.
	var box outbox.Store = outbox.NewInMemoryStore()
	if cfg.OutboxDSN != "" {
		pg, err := sql.Open("postgres", cfg.OutboxDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.PingContext(connectCtx); err != nil {
			return err
		}
		box = outbox.NewPostgresStore(pg)
		healthChecks["outbox"] = pg.PingContext
	} else {
		log.Warn("outbox DSN not configured, using in-memory outbox")
	}

	propagator := events.New(box, log, events.WithSink(sink), events.WithMetrics(m))

	ledger := capacity.New(shops, log, capacity.WithMetrics(m))
	ranker := discovery.New(shops, log, discovery.WithMetrics(m))
	coordinator := orderservice.New(orders, shops, ranker, ledger, propagator, log,
		orderservice.WithMetrics(m))

	router := httptransport.NewRouter(httptransport.Config{
		JWTSigningKey: cfg.JWTSigningKey,
		HealthChecks:  healthChecks,
	}, log,
		orderhandler.New(coordinator, log),
		shophandler.New(shops, log, shophandler.WithSink(sink)),
		discoveryhandler.New(ranker, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	// Outbox relay into kafka. Without brokers the outbox accumulates and the
	// relay stays off; live push still works.
	if len(cfg.Kafka.Brokers) > 0 {
		prod, err := producer.New(connectCtx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return err
		}
		defer prod.Close()

		relay := events.NewRelay(box, kindBroker{prod}, log, events.WithRelayMetrics(m))
		group.Go(func() error {
			err := relay.Run(groupCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		log.Warn("kafka brokers not configured, lifecycle events stay in the outbox")
	}

	group.Go(func() error {
		log.Info("starting printhub server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// kindBroker adapts the kafka producer to the relay's broker contract.
type kindBroker struct {
	producer *producer.Producer
}

func (b kindBroker) Publish(ctx context.Context, key string, value []byte, kind events.Kind) error {
	return b.producer.Publish(ctx, key, value, string(kind))
}
