package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"lodging_agent/internal/adapters/monosend"
	"lodging_agent/internal/adapters/observability"
	"lodging_agent/internal/adapters/rabbitmq"
	"lodging_agent/internal/app"
	"lodging_agent/internal/shared"
)

const reconnectDelay = 5 * time.Second

var errDeliveriesClosed = errors.New("delivery channel closed by broker")

func main() {
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewServiceLogger(cfg.AppEnv, "notifier")

	observability.Serve(cfg.MetricsAddr, observability.InitRegistry())

	log.Info().
		Str("queue", cfg.NotifyQueue).
		Int("workers", cfg.NotifyWorkers).
		Int("max_attempts", cfg.NotifyMaxAttempts).
		Msg("notifier starting")

	mailer, err := monosend.New(monosend.Options{
		URL:        cfg.MonosendURL,
		APIKey:     cfg.MonosendKey,
		TemplateID: cfg.MonosendTemplateID,
		From:       cfg.MonosendFrom,
		Timeout:    cfg.MonosendTimeout,
		RPS:        cfg.MonosendRPS,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize email client")
	}
	worker := app.NewNotificationWorker(mailer, cfg.NotifyMaxAttempts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ccfg := rabbitmq.ConsumerConfig{
		URL:      cfg.RabbitURL,
		Exchange: cfg.NotifyExchange,
		Queue:    cfg.NotifyQueue,
		Keys:     []string{app.RKBookingConfirmed},
		DLX:      cfg.NotifyDLX,
		Prefetch: cfg.NotifyWorkers,
	}

	// reconnect until shutdown; each session drains in-flight work before returning
	for ctx.Err() == nil {
		if err := consume(ctx, ccfg, worker, cfg.NotifyWorkers); err != nil {
			log.Error().Err(err).Dur("retry_in", reconnectDelay).Msg("consumer session ended")
		}
		select {
		case <-ctx.Done():
		case <-time.After(reconnectDelay):
		}
	}
	log.Info().Msg("notifier stopped")
}

func consume(ctx context.Context, cfg rabbitmq.ConsumerConfig, worker *app.NotificationWorker, workers int) error {
	c, err := rabbitmq.NewConsumer(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	msgs, err := c.Deliveries(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("queue", cfg.Queue).Msg("consuming")

	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	defer wg.Wait()

	for d := range msgs {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			_ = d.Nack(false, true)
			return nil
		}
		wg.Add(1)
		go func(d amqp.Delivery) {
			defer wg.Done()
			defer sem.Release(1)
			handle(ctx, worker, d)
		}(d)
	}
	if ctx.Err() != nil {
		return nil
	}
	return errDeliveriesClosed
}

// handle acks delivered messages and dead-letters the rest.
func handle(ctx context.Context, worker *app.NotificationWorker, d amqp.Delivery) {
	if err := worker.Handle(ctx, d.Body); err != nil {
		if ctx.Err() != nil {
			_ = d.Nack(false, true)
			return
		}
		log.Error().Err(err).Str("message_id", d.MessageId).Msg("notification dead-lettered")
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}
