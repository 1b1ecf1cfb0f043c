package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/playcoin/wallet-service/internal/config"
	"github.com/playcoin/wallet-service/internal/logger"
	"github.com/playcoin/wallet-service/internal/repo"
)

const (
	pollInterval = time.Second
	batchSize    = 100
)

type relay struct {
	repo *repo.Repository
	log  *zap.SugaredLogger
}

// drain forwards one batch of unprocessed outbox rows to the broker.
// Rows are only marked processed after a successful publish, so a
// crash mid-batch re-sends rather than drops.
func (rl *relay) drain(ctx context.Context) {
	events, err := rl.repo.PollOutbox(ctx, batchSize)
	if err != nil {
		rl.log.Errorf("poll outbox: %v", err)
		return
	}
	for _, evt := range events {
		if err := rl.repo.PublishEvent(ctx, evt); err != nil {
			rl.log.Errorf("publish event %d: %v", evt.ID, err)
			return
		}
		if err := rl.repo.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			rl.log.Errorf("mark event %d processed: %v", evt.ID, err)
			return
		}
		rl.log.Infow("event relayed", "id", evt.ID, "type", evt.EventType)
	}
}

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}
	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	defer kw.Close()

	rl := &relay{repo: repo.NewRepository(gdb, kw, log), log: log}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	log.Infow("outbox relay started", "interval", pollInterval, "batch", batchSize)
	for {
		select {
		case <-ctx.Done():
			log.Info("outbox relay stopping")
			return
		case <-ticker.C:
			rl.drain(ctx)
		}
	}
}
