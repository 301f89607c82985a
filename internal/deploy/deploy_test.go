package deploy

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/billyhotjava/mist-ce/internal/mq"
	"github.com/billyhotjava/mist-ce/internal/shell"
)

type fakeExecutor struct {
	output string
	err    error
	runs   int
}

func (f *fakeExecutor) Run(_ context.Context, _ shell.Target, _ string) (string, error) {
	f.runs++
	return f.output, f.err
}

type notification struct {
	user    string
	subject string
	body    string
}

type fakeNotifier struct {
	user  []notification
	admin []notification
}

func (f *fakeNotifier) NotifyUser(_ context.Context, user, subject, body string) {
	f.user = append(f.user, notification{user, subject, body})
}

func (f *fakeNotifier) NotifyAdmin(_ context.Context, subject, body string) {
	f.admin = append(f.admin, notification{"", subject, body})
}

type requeued struct {
	payload mq.DeployRequestedPayload
	delay   time.Duration
}

type fakeRequeuer struct {
	calls []requeued
	err   error
}

func (f *fakeRequeuer) PublishDeployRequested(_ context.Context, payload mq.DeployRequestedPayload, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, requeued{payload, delay})
	return nil
}

func newRunner(executor *fakeExecutor, notifier *fakeNotifier, requeuer *fakeRequeuer) *Runner {
	return New(Config{
		Executor: executor,
		Notifier: notifier,
		Requeuer: requeuer,
		Logger:   slog.New(slog.DiscardHandler),
	})
}

func testPayload() mq.DeployRequestedPayload {
	return mq.DeployRequestedPayload{
		User:      "alice",
		BackendID: "backend-1",
		MachineID: "m-1",
		Host:      "10.0.0.5",
		Command:   "bash /tmp/deploy.sh",
	}
}

func TestHandleSuccessNotifiesBothChannels(t *testing.T) {
	executor := &fakeExecutor{output: "deployed ok"}
	notifier := &fakeNotifier{}
	requeuer := &fakeRequeuer{}
	r := newRunner(executor, notifier, requeuer)

	if err := r.Handle(context.Background(), testPayload()); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(notifier.user) != 1 || len(notifier.admin) != 1 {
		t.Fatalf("notifications user/admin = %d/%d, want 1/1", len(notifier.user), len(notifier.admin))
	}
	if notifier.user[0].user != "alice" {
		t.Errorf("user notification addressed to %q", notifier.user[0].user)
	}
	if !strings.Contains(notifier.user[0].subject, "succeeded") {
		t.Errorf("subject = %q, want success", notifier.user[0].subject)
	}
	if !strings.Contains(notifier.user[0].body, "deployed ok") {
		t.Error("notification must include script output")
	}
	if len(requeuer.calls) != 0 {
		t.Error("success must not requeue")
	}
}

func TestHandleTransientFailureRequeues(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("dial tcp: connection refused")}
	notifier := &fakeNotifier{}
	requeuer := &fakeRequeuer{}
	r := newRunner(executor, notifier, requeuer)
	r.transient = func(error) bool { return true }

	if err := r.Handle(context.Background(), testPayload()); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(requeuer.calls) != 1 {
		t.Fatalf("requeues = %d, want 1", len(requeuer.calls))
	}
	got := requeuer.calls[0]
	if got.payload.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", got.payload.Attempt)
	}
	if got.delay != time.Minute {
		t.Errorf("delay = %v, want 1m", got.delay)
	}
	// Повтор ещё впереди — уведомлять рано
	if len(notifier.user) != 0 || len(notifier.admin) != 0 {
		t.Error("retry must not notify")
	}
}

func TestHandleRetriesExhausted(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("dial tcp: i/o timeout")}
	notifier := &fakeNotifier{}
	requeuer := &fakeRequeuer{}
	r := newRunner(executor, notifier, requeuer)
	r.transient = func(error) bool { return true }

	payload := testPayload()
	payload.Attempt = 5 // лимит исчерпан

	if err := r.Handle(context.Background(), payload); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(requeuer.calls) != 0 {
		t.Error("exhausted retries must not requeue")
	}
	if len(notifier.user) != 1 || len(notifier.admin) != 1 {
		t.Fatalf("notifications user/admin = %d/%d, want 1/1", len(notifier.user), len(notifier.admin))
	}
	if !strings.Contains(notifier.user[0].subject, "failed") {
		t.Errorf("subject = %q, want failure", notifier.user[0].subject)
	}
	if !strings.Contains(notifier.user[0].body, "Attempts: 6") {
		t.Errorf("body must report attempt count, got %q", notifier.user[0].body)
	}
}

func TestHandleScriptFailureNeverRetries(t *testing.T) {
	// Ошибка скрипта не транзиентна: состояние машины могло измениться
	executor := &fakeExecutor{output: "line 3: command not found", err: errors.New("exit status 127")}
	notifier := &fakeNotifier{}
	requeuer := &fakeRequeuer{}
	r := newRunner(executor, notifier, requeuer)

	if err := r.Handle(context.Background(), testPayload()); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(requeuer.calls) != 0 {
		t.Error("script failure must not requeue")
	}
	if len(notifier.user) != 1 {
		t.Fatal("script failure must notify the user")
	}
	if !strings.Contains(notifier.user[0].body, "command not found") {
		t.Error("notification must include script output")
	}
}

func TestHandleRequeueFailureSurfaces(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("dial tcp: connection refused")}
	requeuer := &fakeRequeuer{err: errors.New("broker unavailable")}
	r := newRunner(executor, &fakeNotifier{}, requeuer)
	r.transient = func(error) bool { return true }

	if err := r.Handle(context.Background(), testPayload()); err == nil {
		t.Fatal("Handle() must surface requeue errors")
	}
}

func TestHandleTruncatesLongOutput(t *testing.T) {
	executor := &fakeExecutor{output: strings.Repeat("x", 10000)}
	notifier := &fakeNotifier{}
	r := newRunner(executor, notifier, &fakeRequeuer{})

	if err := r.Handle(context.Background(), testPayload()); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	body := notifier.user[0].body
	if len(body) > 4096 {
		t.Errorf("notification body = %d bytes, want truncated", len(body))
	}
	if !strings.Contains(body, "truncated") {
		t.Error("truncated output must be marked")
	}
}
