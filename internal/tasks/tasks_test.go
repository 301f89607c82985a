package tasks

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/billyhotjava/mist-ce/internal/domain"
)

// --- Fakes ---

type fakeInventory struct {
	machines []domain.Machine
	images   []domain.Image
	err      error
}

func (f *fakeInventory) ListMachines(_ context.Context, _, _ string) ([]domain.Machine, error) {
	return f.machines, f.err
}

func (f *fakeInventory) ListImages(_ context.Context, _, _ string) ([]domain.Image, error) {
	return f.images, f.err
}

func (f *fakeInventory) ListSizes(_ context.Context, _, _ string) ([]domain.Size, error) {
	return nil, f.err
}

func (f *fakeInventory) ListLocations(_ context.Context, _, _ string) ([]domain.Location, error) {
	return nil, f.err
}

type fakeBackends struct {
	disabled []string
	err      error
}

func (f *fakeBackends) SetEnabled(_ context.Context, user, backendID string, enabled bool) error {
	if !enabled {
		f.disabled = append(f.disabled, user+"/"+backendID)
	}
	return f.err
}

type fakeProber struct {
	result *domain.ProbeResult
	err    error
}

func (f *fakeProber) Probe(_ context.Context, _ string) (*domain.ProbeResult, error) {
	return f.result, f.err
}

type fakePinger struct {
	result *domain.PingResult
	err    error
}

func (f *fakePinger) Ping(_ context.Context, _ string) (*domain.PingResult, error) {
	return f.result, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// offsetsOfLen строит фиктивную историю из n ошибок.
func offsetsOfLen(n int) []time.Duration {
	offsets := make([]time.Duration, n)
	for i := range offsets {
		offsets[i] = time.Duration(i) * time.Minute
	}
	return offsets
}

// --- Default backoff ---

func TestDefaultErrorRerun_Progression(t *testing.T) {
	tests := []struct {
		failures  int
		wantDelay time.Duration
		wantOK    bool
	}{
		{1, 30 * time.Second, true},
		{2, 120 * time.Second, true},
		{3, 10 * time.Minute, true},
		{4, 0, false},
		{10, 0, false},
	}

	for _, tt := range tests {
		delay, ok := DefaultErrorRerun(offsetsOfLen(tt.failures))
		if ok != tt.wantOK || delay != tt.wantDelay {
			t.Errorf("%d failures: expected (%v, %v), got (%v, %v)",
				tt.failures, tt.wantDelay, tt.wantOK, delay, ok)
		}
	}
}

// --- Registry ---

func TestRegistry_DefaultTasks(t *testing.T) {
	r := NewRegistry(Config{
		Inventory: &fakeInventory{},
		Backends:  &fakeBackends{},
		Prober:    &fakeProber{},
		Pinger:    &fakePinger{},
		Logger:    discardLogger(),
	})

	for _, name := range []string{
		TaskListMachines, TaskListImages, TaskListSizes,
		TaskListLocations, TaskProbe, TaskPing,
	} {
		def, err := r.Get(name)
		if err != nil {
			t.Errorf("task %s must be registered: %v", name, err)
			continue
		}
		if def.Name() != name {
			t.Errorf("task %s: Name() returned %s", name, def.Name())
		}
	}

	if len(r.List()) != 6 {
		t.Errorf("expected 6 default tasks, got %d", len(r.List()))
	}
}

func TestRegistry_UnknownTask(t *testing.T) {
	r := NewRegistry(Config{Logger: discardLogger()})

	_, err := r.Get("no_such_task")
	if !errors.Is(err, ErrUnknownTask) {
		t.Errorf("expected ErrUnknownTask, got %v", err)
	}
}

// --- ListMachines ---

func TestListMachines_Execute(t *testing.T) {
	inv := &fakeInventory{machines: []domain.Machine{
		{ID: "m1", BackendID: "b1", Name: "web-1", State: "running"},
	}}
	task := NewListMachines(inv, &fakeBackends{}, discardLogger())

	payload, err := task.Execute(context.Background(),
		domain.Call{User: "u", Args: []string{"b1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, ok := payload.(map[string]any)
	if !ok {
		t.Fatalf("payload should be a map, got %T", payload)
	}
	if m["backend_id"] != "b1" {
		t.Errorf("expected backend_id b1, got %v", m["backend_id"])
	}
	machines, ok := m["machines"].([]domain.Machine)
	if !ok || len(machines) != 1 {
		t.Errorf("expected 1 machine in payload, got %v", m["machines"])
	}
}

func TestListMachines_Execute_MissingBackend(t *testing.T) {
	task := NewListMachines(&fakeInventory{}, &fakeBackends{}, discardLogger())

	if _, err := task.Execute(context.Background(), domain.Call{User: "u"}); err == nil {
		t.Error("expected error for missing backend_id argument")
	}
}

func TestListMachines_Backoff_RetriesAtFresh(t *testing.T) {
	backends := &fakeBackends{}
	task := NewListMachines(&fakeInventory{}, backends, discardLogger())
	call := domain.Call{User: "u", Args: []string{"b1"}}

	for n := 1; n <= 5; n++ {
		delay, ok := task.ErrorRerun(context.Background(), offsetsOfLen(n), call)
		if !ok {
			t.Fatalf("%d failures: must still retry", n)
		}
		if delay != task.ResultFresh() {
			t.Errorf("%d failures: expected delay %v, got %v", n, task.ResultFresh(), delay)
		}
	}

	if len(backends.disabled) != 0 {
		t.Error("backend must not be disabled before the 6th failure")
	}
}

func TestListMachines_Backoff_DisablesBackendAndGivesUp(t *testing.T) {
	backends := &fakeBackends{}
	task := NewListMachines(&fakeInventory{}, backends, discardLogger())
	call := domain.Call{User: "u", Args: []string{"b1"}}

	_, ok := task.ErrorRerun(context.Background(), offsetsOfLen(6), call)
	if ok {
		t.Error("6th failure must give up")
	}
	if len(backends.disabled) != 1 || backends.disabled[0] != "u/b1" {
		t.Errorf("backend must be disabled, got %v", backends.disabled)
	}
}

func TestListMachines_Backoff_GivesUpEvenIfDisableFails(t *testing.T) {
	backends := &fakeBackends{err: errors.New("db down")}
	task := NewListMachines(&fakeInventory{}, backends, discardLogger())

	_, ok := task.ErrorRerun(context.Background(), offsetsOfLen(7),
		domain.Call{User: "u", Args: []string{"b1"}})
	if ok {
		t.Error("must give up even when disabling the backend fails")
	}
}

// --- ProbeSSH ---

func TestProbeSSH_Backoff_Exponential(t *testing.T) {
	task := NewProbeSSH(&fakeProber{})
	call := domain.Call{User: "u", Args: []string{"b1", "m1", "10.0.0.1"}}

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{3, 8 * time.Minute},
		{4, 16 * time.Minute},
		{5, 32 * time.Minute},
		{6, 32 * time.Minute},
		{20, 32 * time.Minute},
	}

	for _, tt := range tests {
		delay, ok := task.ErrorRerun(context.Background(), offsetsOfLen(tt.failures), call)
		if !ok {
			t.Fatalf("%d failures: probe must never give up", tt.failures)
		}
		if delay != tt.want {
			t.Errorf("%d failures: expected %v, got %v", tt.failures, tt.want, delay)
		}
	}
}

func TestProbeSSH_Execute(t *testing.T) {
	prober := &fakeProber{result: &domain.ProbeResult{Uptime: "up 3 days"}}
	task := NewProbeSSH(prober)

	payload, err := task.Execute(context.Background(),
		domain.Call{User: "u", Args: []string{"b1", "m1", "10.0.0.1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := payload.(map[string]any)
	if m["host"] != "10.0.0.1" || m["machine_id"] != "m1" {
		t.Errorf("payload must carry host and machine_id, got %v", m)
	}
}

func TestProbeSSH_Execute_MissingHost(t *testing.T) {
	task := NewProbeSSH(&fakeProber{})

	_, err := task.Execute(context.Background(),
		domain.Call{User: "u", Args: []string{"b1", "m1"}})
	if err == nil {
		t.Error("expected error for missing host argument")
	}
}

// --- Ping ---

func TestPing_Backoff_ConstantAtFresh(t *testing.T) {
	task := NewPing(&fakePinger{})
	call := domain.Call{User: "u", Args: []string{"b1", "m1", "10.0.0.1"}}

	for _, n := range []int{1, 3, 50} {
		delay, ok := task.ErrorRerun(context.Background(), offsetsOfLen(n), call)
		if !ok {
			t.Fatalf("%d failures: ping must never give up", n)
		}
		if delay != task.ResultFresh() {
			t.Errorf("%d failures: expected %v, got %v", n, task.ResultFresh(), delay)
		}
	}
}

func TestPing_Execute_Error(t *testing.T) {
	task := NewPing(&fakePinger{err: errors.New("unreachable")})

	_, err := task.Execute(context.Background(),
		domain.Call{User: "u", Args: []string{"b1", "m1", "10.0.0.1"}})
	if err == nil {
		t.Error("expected execution error")
	}
}
