package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lyric-notes/internal/adapters/repo"
	"lyric-notes/internal/infra/config"
	"lyric-notes/internal/infra/db"
	infralog "lyric-notes/internal/infra/log"
	"lyric-notes/internal/infra/metrics"
	"lyric-notes/internal/infra/queue"
)

// auditwriter вычитывает записи аудита из очереди и складывает их в БД.
// Консьюмер намеренно отделён от API: публикация аудита никогда не ждёт
// записи на диск.
func main() {
	cfg := config.Load()
	logger := infralog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("auditwriter: нет подключения к БД")
	}
	defer pool.Close()

	auditQueue, err := queue.NewRabbitAuditQueue(cfg.AMQPURL, cfg.Queues.Audit)
	if err != nil {
		logger.Fatal().Err(err).Msg("auditwriter: нет подключения к брокеру")
	}
	defer auditQueue.Close()

	repoAdapter := repo.NewPostgres(pool)

	logger.Info().Str("queue", cfg.Queues.Audit).Msg("auditwriter: старт")
	for {
		entry, err := auditQueue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("auditwriter: остановка")
				return
			}
			logger.Error().Err(err).Msg("auditwriter: чтение очереди")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		start := time.Now()
		err = repoAdapter.AppendAuditEntry(ctx, entry)
		metrics.AuditWriteSeconds.Observe(time.Since(start).Seconds())
		if err != nil {
			// Сообщение уже подтверждено; теряем запись, но фиксируем сбой.
			logger.Error().Err(err).Str("entry_id", entry.ID).Msg("auditwriter: запись не сохранена")
			continue
		}
		logger.Debug().Str("entry_id", entry.ID).Str("action", entry.Action).Msg("auditwriter: запись сохранена")
	}
}
