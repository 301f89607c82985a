package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/billyhotjava/mist-ce/internal/domain"
)

// Ping — polling-проверка доступности хоста.
//
// Аргументы: args[0] — backend_id, args[1] — machine_id, args[2] — host.
type Ping struct {
	Base
	pinger Pinger
}

// NewPing создаёт задачу ping.
func NewPing(pinger Pinger) *Ping {
	return &Ping{
		Base: Base{
			TaskName: TaskPing,
			Fresh:    15 * time.Minute,
			Expires:  2 * time.Hour,
			Poll:     true,
		},
		pinger: pinger,
	}
}

// Execute проверяет доступность хоста.
func (t *Ping) Execute(ctx context.Context, call domain.Call) (any, error) {
	backendID, machineID, host := call.Arg(0), call.Arg(1), call.Arg(2)
	if host == "" {
		return nil, fmt.Errorf("ping: host argument required")
	}

	result, err := t.pinger.Ping(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("ping %s: %w", host, err)
	}

	return map[string]any{
		"backend_id": backendID,
		"machine_id": machineID,
		"host":       host,
		"result":     result,
	}, nil
}

// ErrorRerun: постоянная задержка, равная окну свежести. Give-up нет.
func (t *Ping) ErrorRerun(_ context.Context, _ []time.Duration, _ domain.Call) (time.Duration, bool) {
	return t.Fresh, true
}
