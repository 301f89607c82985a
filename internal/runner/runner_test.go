package runner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/billyhotjava/mist-ce/internal/cache"
	"github.com/billyhotjava/mist-ce/internal/domain"
	"github.com/billyhotjava/mist-ce/internal/tasks"
)

// --- Fakes ---

type stubTask struct {
	tasks.Base

	executeFn func(ctx context.Context, call domain.Call) (any, error)
	rerunFn   func(offsets []time.Duration) (time.Duration, bool)

	executions int
}

func (s *stubTask) Execute(ctx context.Context, call domain.Call) (any, error) {
	s.executions++
	if s.executeFn != nil {
		return s.executeFn(ctx, call)
	}
	return map[string]string{"status": "ok"}, nil
}

func (s *stubTask) ErrorRerun(ctx context.Context, offsets []time.Duration, call domain.Call) (time.Duration, bool) {
	if s.rerunFn != nil {
		return s.rerunFn(offsets)
	}
	return s.Base.ErrorRerun(ctx, offsets, call)
}

func newStubTask() *stubTask {
	return &stubTask{
		Base: tasks.Base{
			TaskName: "stub",
			Fresh:    time.Minute,
			Expires:  time.Hour,
			Poll:     true,
		},
	}
}

type published struct {
	user       string
	routingKey string
	payload    json.RawMessage
}

type fakeNotifier struct {
	listening bool
	publishOK bool
	published []published
}

func (f *fakeNotifier) IsListening(_ context.Context, _ string) bool { return f.listening }

func (f *fakeNotifier) PublishUser(_ context.Context, user, routingKey string, payload json.RawMessage) bool {
	if !f.publishOK {
		return false
	}
	f.published = append(f.published, published{user, routingKey, payload})
	return true
}

type submission struct {
	task  string
	call  domain.Call
	delay time.Duration
}

type fakeSubmitter struct {
	calls []submission
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, task string, call domain.Call, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, submission{task, call, delay})
	return nil
}

type fakeLocker struct {
	busy     bool
	err      error
	unlocked []string
}

func (f *fakeLocker) TryLock(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return !f.busy, nil
}

func (f *fakeLocker) Unlock(_ context.Context, key string) error {
	f.unlocked = append(f.unlocked, key)
	return nil
}

// sessionLocker держит лок до явного Unlock, как настоящий
// lock-менеджер: повторный TryLock занятого ключа — отказ.
type sessionLocker struct {
	held map[string]bool
}

func (f *sessionLocker) TryLock(_ context.Context, key string) (bool, error) {
	if f.held == nil {
		f.held = make(map[string]bool)
	}
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *sessionLocker) Unlock(_ context.Context, key string) error {
	if !f.held[key] {
		return errors.New("unlock of a lock that is not held")
	}
	delete(f.held, key)
	return nil
}

// brokenStore отдаёт ошибку на чтение, остальное делегирует Memory.
type brokenStore struct {
	*cache.Memory
	getErr error
}

func (b *brokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	return b.Memory.Get(ctx, key)
}

// --- Test harness ---

type env struct {
	store     *cache.Memory
	notifier  *fakeNotifier
	submitter *fakeSubmitter
	runner    *Runner
	now       time.Time
}

func newEnv() *env {
	e := &env{
		store:     cache.NewMemory(),
		notifier:  &fakeNotifier{listening: true, publishOK: true},
		submitter: &fakeSubmitter{},
		now:       time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	e.runner = New(Config{
		Store:     e.store,
		Notifier:  e.notifier,
		Submitter: e.submitter,
		Clock:     func() time.Time { return e.now },
		Logger:    slog.New(slog.DiscardHandler),
	})
	return e
}

func (e *env) putResult(t *testing.T, key string, rec domain.ResultRecord) {
	t.Helper()
	value, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal result record: %v", err)
	}
	if err := e.store.Set(context.Background(), key, value, time.Time{}); err != nil {
		t.Fatalf("seed result record: %v", err)
	}
}

func (e *env) getError(t *testing.T, key string) *domain.ErrorRecord {
	t.Helper()
	value, err := e.store.Get(context.Background(), domain.ErrorKey(key))
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	if err != nil {
		t.Fatalf("get error record: %v", err)
	}
	var rec domain.ErrorRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		t.Fatalf("unmarshal error record: %v", err)
	}
	return &rec
}

func (e *env) getResult(t *testing.T, key string) *domain.ResultRecord {
	t.Helper()
	value, err := e.store.Get(context.Background(), key)
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	if err != nil {
		t.Fatalf("get result record: %v", err)
	}
	var rec domain.ResultRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		t.Fatalf("unmarshal result record: %v", err)
	}
	return &rec
}

// --- Tests ---

func TestProcessExternalTriggerEmptyCache(t *testing.T) {
	e := newEnv()
	task := newStubTask()
	call := domain.Call{User: "alice", Args: []string{"backend-1"}}
	key := domain.CacheKey("stub", call)

	disposition, err := e.runner.Process(context.Background(), task, call)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if disposition != DispositionExecuted {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionExecuted)
	}
	if task.executions != 1 {
		t.Errorf("executions = %d, want 1", task.executions)
	}

	// Результат доставлен и закэширован
	if len(e.notifier.published) != 1 {
		t.Fatalf("published = %d, want 1", len(e.notifier.published))
	}
	if got := e.notifier.published[0].routingKey; got != "stub" {
		t.Errorf("routing key = %q, want task name", got)
	}
	rec := e.getResult(t, key)
	if rec == nil {
		t.Fatal("result record not cached")
	}
	if rec.SeqID == "" {
		t.Error("cached record has empty seq_id")
	}
	if !rec.Timestamp.Equal(e.now) {
		t.Errorf("record timestamp = %v, want %v", rec.Timestamp, e.now)
	}

	// Polling: перезапуск с периодом свежести и тем же seq_id
	if len(e.submitter.calls) != 1 {
		t.Fatalf("submissions = %d, want 1", len(e.submitter.calls))
	}
	sub := e.submitter.calls[0]
	if sub.delay != task.ResultFresh() {
		t.Errorf("rerun delay = %v, want %v", sub.delay, task.ResultFresh())
	}
	if sub.call.SeqID() != rec.SeqID {
		t.Errorf("rerun seq_id = %q, want %q", sub.call.SeqID(), rec.SeqID)
	}
}

func TestProcessFreshCacheShortCircuit(t *testing.T) {
	e := newEnv()
	task := newStubTask()
	call := domain.Call{User: "alice"}
	key := domain.CacheKey("stub", call)

	e.putResult(t, key, domain.ResultRecord{
		Timestamp: e.now.Add(-10 * time.Second), // моложе Fresh=1м
		Payload:   json.RawMessage(`{}`),
		SeqID:     "chain-1",
	})

	disposition, err := e.runner.Process(context.Background(), task, call)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if disposition != DispositionFreshCache {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionFreshCache)
	}
	if task.executions != 0 {
		t.Error("fresh cache must not execute the task")
	}
	if len(e.submitter.calls) != 0 {
		t.Error("fresh cache must not reschedule")
	}
}

func TestProcessStaleCacheExecutes(t *testing.T) {
	e := newEnv()
	task := newStubTask()
	call := domain.Call{User: "alice"}
	key := domain.CacheKey("stub", call)

	e.putResult(t, key, domain.ResultRecord{
		Timestamp: e.now.Add(-5 * time.Minute), // старше Fresh=1м
		Payload:   json.RawMessage(`{}`),
		SeqID:     "chain-1",
	})

	disposition, err := e.runner.Process(context.Background(), task, call)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if disposition != DispositionExecuted {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionExecuted)
	}

	// Внешний триггер начинает новую цепочку: кэш получает новый seq_id
	rec := e.getResult(t, key)
	if rec.SeqID == "chain-1" {
		t.Error("stale cache rerun must mint a fresh seq_id")
	}
}

func TestProcessSupersededChain(t *testing.T) {
	e := newEnv()
	task := newStubTask()
	call := domain.Call{User: "alice"}
	key := domain.CacheKey("stub", call.StripSeqID())

	e.putResult(t, key, domain.ResultRecord{
		Timestamp: e.now.Add(-5 * time.Minute),
		Payload:   json.RawMessage(`{}`),
		SeqID:     "chain-new",
	})

	chained := call.WithSeqID("chain-old")
	disposition, err := e.runner.Process(context.Background(), task, chained)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if disposition != DispositionSuperseded {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionSuperseded)
	}
	if task.executions != 0 {
		t.Error("superseded chain must not execute")
	}
	if len(e.submitter.calls) != 0 {
		t.Error("superseded chain must not reschedule")
	}
}

func TestProcessChainedCallFreshCacheStillExecutes(t *testing.T) {
	e := newEnv()
	task := newStubTask()
	call := domain.Call{User: "alice"}
	key := domain.CacheKey("stub", call)

	e.putResult(t, key, domain.ResultRecord{
		Timestamp: e.now.Add(-time.Second), // совсем свежий
		Payload:   json.RawMessage(`{}`),
		SeqID:     "chain-1",
	})

	// Перезапуск своей же цепочки не попадает под fresh-cache отсечку
	disposition, err := e.runner.Process(context.Background(), task, call.WithSeqID("chain-1"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if disposition != DispositionExecuted {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionExecuted)
	}
	if task.executions != 1 {
		t.Error("polling rerun must execute despite fresh cache")
	}

	// seq_id цепочки сохраняется
	rec := e.getResult(t, key)
	if rec.SeqID != "chain-1" {
		t.Errorf("seq_id = %q, want chain-1", rec.SeqID)
	}
}

func TestProcessPresenceLost(t *testing.T) {
	e := newEnv()
	e.notifier.listening = false
	task := newStubTask()
	call := domain.Call{User: "alice"}
	key := domain.CacheKey("stub", call)

	// Накопленная история ошибок должна сброситься
	errValue, _ := json.Marshal(domain.ErrorRecord{SeqID: "chain-1", Timestamps: []time.Time{e.now}})
	e.store.Set(context.Background(), domain.ErrorKey(key), errValue, time.Time{})

	disposition, err := e.runner.Process(context.Background(), task, call.WithSeqID("chain-1"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if disposition != DispositionPresenceLost {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionPresenceLost)
	}
	if task.executions != 0 {
		t.Error("must not execute without listeners")
	}
	if e.getError(t, key) != nil {
		t.Error("error record must be dropped when chain stops")
	}
}

func TestProcessFailureSchedulesRetry(t *testing.T) {
	e := newEnv()
	task := newStubTask()
	task.executeFn = func(context.Context, domain.Call) (any, error) {
		return nil, errors.New("backend unreachable")
	}
	call := domain.Call{User: "alice"}
	key := domain.CacheKey("stub", call)

	disposition, err := e.runner.Process(context.Background(), task, call)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if disposition != DispositionRetryScheduled {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionRetryScheduled)
	}

	// Первая ошибка: default backoff 30с
	if len(e.submitter.calls) != 1 {
		t.Fatalf("submissions = %d, want 1", len(e.submitter.calls))
	}
	sub := e.submitter.calls[0]
	if sub.delay != 30*time.Second {
		t.Errorf("retry delay = %v, want 30s", sub.delay)
	}
	if sub.call.SeqID() == "" {
		t.Error("retry must carry the chain seq_id")
	}

	// История ошибок зафиксирована с тем же seq_id
	rec := e.getError(t, key)
	if rec == nil {
		t.Fatal("error record not stored")
	}
	if rec.SeqID != sub.call.SeqID() {
		t.Errorf("error record seq_id = %q, want %q", rec.SeqID, sub.call.SeqID())
	}
	if len(rec.Timestamps) != 1 {
		t.Errorf("error timestamps = %d, want 1", len(rec.Timestamps))
	}

	// Ошибка не кэшируется как результат
	if e.getResult(t, key) != nil {
		t.Error("failure must not cache a result record")
	}
}

func TestProcessGiveUpClearsErrorHistory(t *testing.T) {
	e := newEnv()
	task := newStubTask()
	task.executeFn = func(context.Context, domain.Call) (any, error) {
		return nil, errors.New("still broken")
	}
	call := domain.Call{User: "alice"}
	key := domain.CacheKey("stub", call)

	// Три ошибки уже накоплены — четвёртая по default-политике даёт give-up
	history := domain.ErrorRecord{SeqID: "chain-1"}
	history.Append(e.now.Add(-15 * time.Minute))
	history.Append(e.now.Add(-14 * time.Minute))
	history.Append(e.now.Add(-12 * time.Minute))
	errValue, _ := json.Marshal(history)
	e.store.Set(context.Background(), domain.ErrorKey(key), errValue, time.Time{})

	disposition, err := e.runner.Process(context.Background(), task, call.WithSeqID("chain-1"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if disposition != DispositionGaveUp {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionGaveUp)
	}
	if len(e.submitter.calls) != 0 {
		t.Error("give-up must not reschedule")
	}
	if e.getError(t, key) != nil {
		t.Error("give-up must clear the error history")
	}
}

func TestProcessSuccessClearsErrorHistory(t *testing.T) {
	e := newEnv()
	task := newStubTask()
	call := domain.Call{User: "alice"}
	key := domain.CacheKey("stub", call)

	history := domain.ErrorRecord{SeqID: "chain-1"}
	history.Append(e.now.Add(-time.Minute))
	errValue, _ := json.Marshal(history)
	e.store.Set(context.Background(), domain.ErrorKey(key), errValue, time.Time{})

	disposition, err := e.runner.Process(context.Background(), task, call.WithSeqID("chain-1"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if disposition != DispositionExecuted {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionExecuted)
	}
	if e.getError(t, key) != nil {
		t.Error("success must clear the error history")
	}
	if e.getResult(t, key) == nil {
		t.Error("success must cache the result")
	}
}

func TestProcessPublishFailureCachesNothing(t *testing.T) {
	e := newEnv()
	e.notifier.publishOK = false
	task := newStubTask()
	call := domain.Call{User: "alice"}
	key := domain.CacheKey("stub", call)

	disposition, err := e.runner.Process(context.Background(), task, call)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if disposition != DispositionPublishFailed {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionPublishFailed)
	}
	if e.getResult(t, key) != nil {
		t.Error("undelivered result must not be cached")
	}
	if len(e.submitter.calls) != 0 {
		t.Error("undelivered result must not reschedule the chain")
	}
}

func TestProcessNonPollingSingleShot(t *testing.T) {
	e := newEnv()
	task := newStubTask()
	task.Poll = false
	call := domain.Call{User: "alice"}

	disposition, err := e.runner.Process(context.Background(), task, call)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if disposition != DispositionExecuted {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionExecuted)
	}
	if len(e.submitter.calls) != 0 {
		t.Error("non-polling task must not reschedule itself")
	}
}

func TestProcessIdentityBusy(t *testing.T) {
	e := newEnv()
	locker := &fakeLocker{busy: true}
	e.runner.locker = locker
	task := newStubTask()

	disposition, err := e.runner.Process(context.Background(), task, domain.Call{User: "alice"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if disposition != DispositionIdentityBusy {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionIdentityBusy)
	}
	if task.executions != 0 {
		t.Error("busy identity must not execute")
	}
}

func TestProcessLockReleasedAfterRun(t *testing.T) {
	e := newEnv()
	locker := &fakeLocker{}
	e.runner.locker = locker
	task := newStubTask()
	call := domain.Call{User: "alice"}

	if _, err := e.runner.Process(context.Background(), task, call); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(locker.unlocked) != 1 {
		t.Fatalf("unlocks = %d, want 1", len(locker.unlocked))
	}
	if locker.unlocked[0] != domain.CacheKey("stub", call) {
		t.Error("unlock key mismatch")
	}
}

// TestProcessPollingChainReacquiresIdentityLock: лок идентичности
// обязан реально освобождаться после каждой итерации — иначе
// перепланированный вызов увидит identity_busy и цепочка умрёт.
func TestProcessPollingChainReacquiresIdentityLock(t *testing.T) {
	e := newEnv()
	locker := &sessionLocker{}
	e.runner.locker = locker
	task := newStubTask()
	call := domain.Call{User: "alice", Args: []string{"backend-1"}}

	disposition, err := e.runner.Process(context.Background(), task, call)
	if err != nil {
		t.Fatalf("iteration 1: %v", err)
	}
	if disposition != DispositionExecuted {
		t.Fatalf("iteration 1 disposition = %s", disposition)
	}
	if len(e.submitter.calls) != 1 {
		t.Fatalf("polling task must reschedule itself")
	}

	next := e.submitter.calls[0]
	e.now = e.now.Add(next.delay)
	disposition, err = e.runner.Process(context.Background(), task, next.call)
	if err != nil {
		t.Fatalf("iteration 2: %v", err)
	}
	if disposition == DispositionIdentityBusy {
		t.Fatal("identity lock from iteration 1 still held, chain is dead")
	}
	if disposition != DispositionExecuted {
		t.Fatalf("iteration 2 disposition = %s", disposition)
	}
	if len(locker.held) != 0 {
		t.Errorf("held locks after chain = %d, want 0", len(locker.held))
	}
}

func TestProcessLockErrorProceedsUnfenced(t *testing.T) {
	e := newEnv()
	e.runner.locker = &fakeLocker{err: errors.New("lock backend down")}
	task := newStubTask()

	disposition, err := e.runner.Process(context.Background(), task, domain.Call{User: "alice"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if disposition != DispositionExecuted {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionExecuted)
	}
	if task.executions != 1 {
		t.Error("lock failure must not block execution")
	}
}

func TestProcessCacheReadErrorTreatedAsAbsent(t *testing.T) {
	e := newEnv()
	e.runner.store = &brokenStore{Memory: e.store, getErr: errors.New("connection refused")}
	task := newStubTask()

	disposition, err := e.runner.Process(context.Background(), task, domain.Call{User: "alice"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if disposition != DispositionExecuted {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionExecuted)
	}
	if task.executions != 1 {
		t.Error("unreadable cache must not block execution")
	}
}

func TestProcessSubmitErrorInterruptsChain(t *testing.T) {
	e := newEnv()
	e.submitter.err = errors.New("broker unavailable")
	task := newStubTask()

	disposition, err := e.runner.Process(context.Background(), task, domain.Call{User: "alice"})
	if err == nil {
		t.Fatal("Process() must surface the submit error")
	}
	if disposition != DispositionExecuted {
		t.Fatalf("disposition = %s, want %s", disposition, DispositionExecuted)
	}
	// Результат доставлен и закэширован до сбоя планирования
	if len(e.notifier.published) != 1 {
		t.Error("result must still be published")
	}
}

// TestProcessPingChain прогоняет цепочку ping через падение и
// восстановление: constant backoff, затем возврат к polling-каденсу.
func TestProcessPingChain(t *testing.T) {
	e := newEnv()
	healthy := false
	task := &stubTask{
		Base: tasks.Base{
			TaskName: "ping",
			Fresh:    15 * time.Minute,
			Expires:  2 * time.Hour,
			Poll:     true,
		},
		executeFn: func(context.Context, domain.Call) (any, error) {
			if !healthy {
				return nil, errors.New("host unreachable")
			}
			return map[string]any{"alive": true}, nil
		},
		rerunFn: func([]time.Duration) (time.Duration, bool) {
			return 15 * time.Minute, true // ping никогда не сдаётся
		},
	}
	call := domain.Call{User: "alice", Args: []string{"backend-1", "m-1", "10.0.0.5"}}
	key := domain.CacheKey("ping", call)

	// Шаг 1: внешний триггер, хост лежит — retry с постоянной задержкой
	disposition, err := e.runner.Process(context.Background(), task, call)
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if disposition != DispositionRetryScheduled {
		t.Fatalf("step 1 disposition = %s", disposition)
	}
	next := e.submitter.calls[0]
	if next.delay != 15*time.Minute {
		t.Errorf("ping retry delay = %v, want 15m", next.delay)
	}

	// Шаг 2: перепланированный вызов, хост всё ещё лежит
	e.now = e.now.Add(next.delay)
	disposition, err = e.runner.Process(context.Background(), task, next.call)
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}
	if disposition != DispositionRetryScheduled {
		t.Fatalf("step 2 disposition = %s", disposition)
	}
	rec := e.getError(t, key)
	if len(rec.Timestamps) != 2 {
		t.Errorf("error history = %d entries, want 2", len(rec.Timestamps))
	}

	// Шаг 3: хост ожил — успех, история очищена, polling продолжается
	healthy = true
	next = e.submitter.calls[1]
	e.now = e.now.Add(next.delay)
	disposition, err = e.runner.Process(context.Background(), task, next.call)
	if err != nil {
		t.Fatalf("step 3: %v", err)
	}
	if disposition != DispositionExecuted {
		t.Fatalf("step 3 disposition = %s", disposition)
	}
	if e.getError(t, key) != nil {
		t.Error("recovery must clear the error history")
	}
	result := e.getResult(t, key)
	if result == nil {
		t.Fatal("recovery must cache the result")
	}
	if result.SeqID != next.call.SeqID() {
		t.Error("chain seq_id must survive the whole cycle")
	}
	last := e.submitter.calls[len(e.submitter.calls)-1]
	if last.delay != 15*time.Minute {
		t.Errorf("polling cadence = %v, want 15m", last.delay)
	}
}
