package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/billyhotjava/mist-ce/internal/telemetry"
)

// DefaultCronExpr — каждые 10 минут.
const DefaultCronExpr = "*/10 * * * *"

// leaderKey — ключ advisory lock'а для выбора лидера.
const leaderKey = "sweeper.leader"

// cronParser — парсер cron-выражений (стандартные 5 полей).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Store — хранилище кэша, умеющее вычищать истёкшие записи.
// Реализации: repo.KVRepo, cache.Memory.
type Store interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Leader — выбор лидера среди экземпляров sweeper'а.
// Реализация: repo.IdentityLock.
type Leader interface {
	TryLock(ctx context.Context, key string) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Sweeper периодически вычищает истёкшие записи кэша.
type Sweeper struct {
	store    Store
	leader   Leader
	schedule cron.Schedule

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	// now подменяется в тестах.
	now func() time.Time
}

// Config — конфигурация Sweeper.
type Config struct {
	Store Store

	// Leader — выбор лидера (опционально; nil — экземпляр единственный).
	Leader Leader

	// CronExpr — расписание чистки (default: каждые 10 минут).
	CronExpr string

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Sweeper.
func New(cfg Config) (*Sweeper, error) {
	expr := cfg.CronExpr
	if expr == "" {
		expr = DefaultCronExpr
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", expr, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		store:    cfg.Store,
		leader:   cfg.Leader,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start запускает цикл чистки.
func (s *Sweeper) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()

	s.logger.Info("sweeper started", "next_sweep", s.schedule.Next(s.now()))
	return nil
}

// Stop останавливает Sweeper.
func (s *Sweeper) Stop() {
	s.logger.Info("stopping sweeper...")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	s.wg.Wait()

	s.logger.Info("sweeper stopped")
}

// loop ждёт очередного срабатывания расписания и запускает чистку.
func (s *Sweeper) loop(ctx context.Context) {
	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(next.Sub(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep выполняет один проход чистки.
//
// При нескольких экземплярах чистит только лидер; остальные молча
// пропускают проход. Ошибки не фатальны — следующий проход повторит.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.leader != nil {
		ok, err := s.leader.TryLock(ctx, leaderKey)
		if err != nil {
			s.logger.Warn("leader election failed, skipping sweep", "error", err)
			return
		}
		if !ok {
			s.logger.Debug("another instance is sweeping, skipping")
			return
		}
		defer func() {
			if err := s.leader.Unlock(ctx, leaderKey); err != nil {
				s.logger.Warn("leader unlock failed", "error", err)
			}
		}()
	}

	deleted, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return
	}

	telemetry.SweptRecords.Add(float64(deleted))
	if deleted > 0 {
		s.logger.Info("sweep completed", "deleted", deleted)
	} else {
		s.logger.Debug("sweep completed, nothing to delete")
	}
}
