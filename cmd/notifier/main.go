// The notifier consumes durable lifecycle events and forwards them to the
// live-push channels. Deployments running it point the API processes at a
// propagator without a sink, so all pushes flow through the broker and gain
// its ordering and retry guarantees.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"printhub/internal/events"
	"printhub/internal/notify"
	"printhub/internal/platform/config"
	"printhub/internal/platform/kafka/consumer"
	"printhub/internal/platform/logger"
	platformredis "printhub/internal/platform/redis"
)

const consumerGroup = "printhub-notifier"

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("notifier exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient == nil {
		return errors.New("REDIS_URL is required, the notifier has nowhere to push")
	}
	defer redisClient.Close()

	handler := events.NewLifecycleHandler(
		pushApplier{sink: notify.NewRedisSink(redisClient)}, log)

	c, err := consumer.New(cfg.Kafka.Brokers, consumerGroup, []string{cfg.Kafka.Topic}, handler, log)
	if err != nil {
		return err
	}
	defer c.Close()

	log.Info("notifier consuming lifecycle events",
		"topic", cfg.Kafka.Topic, "group", consumerGroup)
	return c.Run(ctx)
}

// pushApplier forwards admitted events to both room channels. Push failures
// propagate so the offset stays uncommitted and the event is redelivered.
type pushApplier struct {
	sink notify.Sink
}

func (a pushApplier) Apply(ctx context.Context, event events.LifecycleEvent) error {
	payload, err := event.Encode()
	if err != nil {
		return err
	}
	if err := a.sink.NotifyUser(ctx, event.RequesterID, payload); err != nil {
		return err
	}
	return a.sink.NotifyShop(ctx, event.ShopID, payload)
}
