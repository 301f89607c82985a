package runner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/billyhotjava/mist-ce/internal/cache"
	"github.com/billyhotjava/mist-ce/internal/domain"
	"github.com/billyhotjava/mist-ce/internal/tasks"
	"github.com/billyhotjava/mist-ce/internal/telemetry"
)

// Notifier — presence пользователей и доставка результатов.
// Реализация: mq.UserNotifier.
type Notifier interface {
	// IsListening — ждёт ли кто-нибудь результатов для пользователя.
	IsListening(ctx context.Context, user string) bool

	// PublishUser доставляет payload слушателям пользователя.
	// false — доставить некому.
	PublishUser(ctx context.Context, user, routingKey string, payload json.RawMessage) bool
}

// Submitter ставит задачу в очередь с задержкой.
// Реализация: mq.TaskSubmitter.
type Submitter interface {
	Submit(ctx context.Context, task string, call domain.Call, delay time.Duration) error
}

// Locker — короткий лок на идентичность задачи.
//
// Отсекает одновременную обработку одной цепочки двумя worker'ами
// после at-least-once redelivery. Опционален: без лока остаётся
// исходная семантика "гонка возможна, но безвредна".
// Реализация: repo.IdentityLock.
type Locker interface {
	TryLock(ctx context.Context, key string) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Runner — state machine одного вызова задачи.
//
// Создаётся один раз на worker-процесс со всеми зависимостями
// и обслуживает все задачи реестра.
type Runner struct {
	store     cache.Store
	notifier  Notifier
	submitter Submitter
	locker    Locker
	logger    *slog.Logger

	// now подменяется в тестах.
	now func() time.Time
}

// Config — конфигурация Runner.
type Config struct {
	Store     cache.Store
	Notifier  Notifier
	Submitter Submitter

	// Locker — опциональный fence идентичности (nil — без фенсинга).
	Locker Locker

	// Clock — источник времени (опционально; default: time.Now).
	Clock func() time.Time

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Runner{
		store:     cfg.Store,
		notifier:  cfg.Notifier,
		submitter: cfg.Submitter,
		locker:    cfg.Locker,
		logger:    logger,
		now:       now,
	}
}

// Process выполняет один вызов задачи от начала до терминального исхода.
//
// Доменные ошибки выполнения не возвращаются как error — они
// превращаются в backoff-решения. Возвращаемый error — только
// инфраструктурный (кэш/очередь недоступны) и означает, что вызов
// оборван; очередь при этом всё равно видит нормальное завершение.
func (r *Runner) Process(ctx context.Context, def tasks.Definition, call domain.Call) (disposition Disposition, err error) {
	logger := telemetry.WithTask(r.logger, def.Name())
	logger = telemetry.WithUser(logger, call.User)

	defer func() {
		telemetry.TaskDispositions.WithLabelValues(def.Name(), string(disposition)).Inc()
	}()

	// 1. Идентичность и ключи
	key := domain.CacheKey(def.Name(), call)
	errKey := domain.ErrorKey(key)
	seqID := call.SeqID()

	// Fence идентичности: дубликат после redelivery отбрасывается
	if r.locker != nil {
		ok, lockErr := r.locker.TryLock(ctx, key)
		if lockErr != nil {
			logger.Warn("identity lock unavailable, proceeding unfenced", "error", lockErr)
		} else if !ok {
			logger.Debug("identity busy on another worker, dropping duplicate")
			return DispositionIdentityBusy, nil
		} else {
			defer func() {
				if unlockErr := r.locker.Unlock(ctx, key); unlockErr != nil {
					logger.Warn("identity unlock failed", "error", unlockErr)
				}
			}()
		}
	}

	// 2. История ошибок цепочки (может отсутствовать)
	errRec := r.loadErrorRecord(ctx, errKey, logger)

	// 3. Presence: результатов никто не ждёт — цепочка останавливается,
	// накопленная история ошибок сбрасывается
	if !r.notifier.IsListening(ctx, call.User) {
		if errRec != nil {
			r.deleteRecord(ctx, errKey, logger)
		}
		logger.Debug("no listeners, stopping chain", "seq_id", seqID)
		return DispositionPresenceLost, nil
	}

	// 4. Конфликт с кэшированным результатом
	cached := r.loadResultRecord(ctx, key, logger)
	if cached != nil {
		if seqID != "" && seqID != cached.SeqID {
			// Идентичность уже занята более новой цепочкой
			logger.Info("chain superseded by newer sequence",
				"seq_id", seqID, "current_seq_id", cached.SeqID)
			return DispositionSuperseded, nil
		}
		if seqID == "" && cached.Age(r.now()) < def.ResultFresh() {
			telemetry.CacheHits.WithLabelValues(def.Name()).Inc()
			// Внешний триггер при свежем результате — выполнять нечего.
			// Перезапуск цепочки (seq_id непустой) сюда не попадает:
			// polling продолжается и при свежем кэше.
			logger.Debug("fresh cached result, dropping external trigger")
			return DispositionFreshCache, nil
		}
	}

	// 5. Назначение sequence: внешний вызов начинает новую цепочку
	if seqID == "" {
		seqID = uuid.New().String()
		logger.Debug("starting new chain", "seq_id", seqID)
	}
	logger = telemetry.WithSeqID(logger, seqID)

	// 6-7. Выполнение и явный исход
	out, errRec := r.execute(ctx, def, call, errRec, seqID, logger)

	switch out.kind {
	case outcomeRetry:
		// Ошибка, политика просит повтор: фиксируем историю и
		// перепланируем ту же задачу с тем же seq_id
		r.storeErrorRecord(ctx, errKey, errRec, def.ResultExpires(), logger)
		if submitErr := r.submitter.Submit(ctx, def.Name(), call.WithSeqID(seqID), out.delay); submitErr != nil {
			logger.Error("failed to schedule retry, chain interrupted", "error", submitErr)
			return DispositionRetryScheduled, submitErr
		}
		logger.Info("retry scheduled", "delay", out.delay, "failures", len(errRec.Timestamps))
		return DispositionRetryScheduled, nil

	case outcomeGiveUp:
		// Политика отказалась от повторов: история ошибок очищается,
		// цепочка молча завершается
		r.deleteRecord(ctx, errKey, logger)
		logger.Warn("backoff policy gave up", "failures", len(errRec.Timestamps))
		return DispositionGaveUp, nil
	}

	// 8. Успех: восстановление очищает историю ошибок
	if errRec != nil {
		r.deleteRecord(ctx, errKey, logger)
	}

	if !r.notifier.PublishUser(ctx, call.User, def.Name(), out.payload) {
		// Доставить некому — кэшировать результат, который никто
		// не увидит, бессмысленно и вводит в заблуждение
		logger.Info("no delivery channel, stopping chain without caching")
		return DispositionPublishFailed, nil
	}

	record := domain.ResultRecord{
		Timestamp: r.now(),
		Payload:   out.payload,
		SeqID:     seqID,
	}
	r.storeResultRecord(ctx, key, &record, def.ResultExpires(), logger)

	if def.Polling() {
		// Каденс polling-перезапуска — окно свежести результата
		if submitErr := r.submitter.Submit(ctx, def.Name(), call.WithSeqID(seqID), def.ResultFresh()); submitErr != nil {
			logger.Error("failed to schedule polling rerun, chain interrupted", "error", submitErr)
			return DispositionExecuted, submitErr
		}
		logger.Debug("polling rerun scheduled", "delay", def.ResultFresh())
	}

	return DispositionExecuted, nil
}

// execute выполняет доменную логику и сводит результат к явному исходу.
//
// При ошибке пополняет (или создаёт) историю ошибок цепочки и
// консультируется с backoff-политикой задачи. Возвращает исход и
// актуальную историю ошибок.
func (r *Runner) execute(ctx context.Context, def tasks.Definition, call domain.Call, errRec *domain.ErrorRecord, seqID string, logger *slog.Logger) (outcome, *domain.ErrorRecord) {
	start := r.now()
	payload, execErr := def.Execute(ctx, call)
	telemetry.ObserveTaskDuration(def.Name(), r.now().Sub(start))

	if execErr != nil {
		telemetry.TaskFailures.WithLabelValues(def.Name()).Inc()
		logger.Warn("task execution failed", "error", execErr)

		if errRec == nil {
			errRec = &domain.ErrorRecord{SeqID: seqID}
		}
		errRec.Append(r.now())

		delay, retry := def.ErrorRerun(ctx, errRec.Offsets(), call)
		if !retry {
			return outcome{kind: outcomeGiveUp}, errRec
		}
		return outcome{kind: outcomeRetry, delay: delay}, errRec
	}

	payloadJSON, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		// Несериализуемый payload — дефект задачи; ведём себя как
		// при доменной ошибке, чтобы не оборвать контракт очереди
		telemetry.TaskFailures.WithLabelValues(def.Name()).Inc()
		logger.Error("task payload not serializable", "error", marshalErr)

		if errRec == nil {
			errRec = &domain.ErrorRecord{SeqID: seqID}
		}
		errRec.Append(r.now())

		delay, retry := def.ErrorRerun(ctx, errRec.Offsets(), call)
		if !retry {
			return outcome{kind: outcomeGiveUp}, errRec
		}
		return outcome{kind: outcomeRetry, delay: delay}, errRec
	}

	return outcome{kind: outcomeSuccess, payload: payloadJSON}, errRec
}

// --- Cache helpers ---
//
// Ошибки чтения кэша трактуются как отсутствие записи, ошибки записи
// логируются: фреймворк предпочитает лишнее выполнение задачи отказу
// всей цепочки из-за недоступного кэша.

func (r *Runner) loadErrorRecord(ctx context.Context, key string, logger *slog.Logger) *domain.ErrorRecord {
	value, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("failed to load error record, assuming absent", "error", err)
		}
		return nil
	}

	var rec domain.ErrorRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		logger.Warn("corrupt error record, assuming absent", "error", err)
		return nil
	}
	return &rec
}

func (r *Runner) loadResultRecord(ctx context.Context, key string, logger *slog.Logger) *domain.ResultRecord {
	value, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("failed to load result record, assuming absent", "error", err)
		}
		return nil
	}

	var rec domain.ResultRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		logger.Warn("corrupt result record, assuming absent", "error", err)
		return nil
	}
	return &rec
}

func (r *Runner) storeErrorRecord(ctx context.Context, key string, rec *domain.ErrorRecord, ttl time.Duration, logger *slog.Logger) {
	value, err := json.Marshal(rec)
	if err != nil {
		logger.Error("marshal error record", "error", err)
		return
	}
	if err := r.store.Set(ctx, key, value, r.expiry(ttl)); err != nil {
		logger.Warn("failed to store error record", "error", err)
	}
}

func (r *Runner) storeResultRecord(ctx context.Context, key string, rec *domain.ResultRecord, ttl time.Duration, logger *slog.Logger) {
	value, err := json.Marshal(rec)
	if err != nil {
		logger.Error("marshal result record", "error", err)
		return
	}
	if err := r.store.Set(ctx, key, value, r.expiry(ttl)); err != nil {
		logger.Warn("failed to store result record", "error", err)
	}
}

func (r *Runner) deleteRecord(ctx context.Context, key string, logger *slog.Logger) {
	if err := r.store.Delete(ctx, key); err != nil {
		logger.Warn("failed to delete cache record", "key", key, "error", err)
	}
}

// expiry переводит TTL в абсолютный момент для sweeper'а.
func (r *Runner) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return r.now().Add(ttl)
}
