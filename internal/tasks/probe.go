package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/billyhotjava/mist-ce/internal/domain"
)

// probeBackoffCap — потолок экспоненциального backoff пробы.
const probeBackoffCap = 32 * time.Minute

// ProbeSSH — polling SSH-проба машины.
//
// Аргументы: args[0] — backend_id, args[1] — machine_id, args[2] — host.
type ProbeSSH struct {
	Base
	prober Prober
}

// NewProbeSSH создаёт задачу probe.
func NewProbeSSH(prober Prober) *ProbeSSH {
	return &ProbeSSH{
		Base: Base{
			TaskName: TaskProbe,
			Fresh:    2 * time.Minute,
			Expires:  2 * time.Hour,
			Poll:     true,
		},
		prober: prober,
	}
}

// Execute пробует машину по SSH.
func (t *ProbeSSH) Execute(ctx context.Context, call domain.Call) (any, error) {
	backendID, machineID, host := call.Arg(0), call.Arg(1), call.Arg(2)
	if host == "" {
		return nil, fmt.Errorf("probe: host argument required")
	}

	result, err := t.prober.Probe(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", host, err)
	}

	return map[string]any{
		"backend_id": backendID,
		"machine_id": machineID,
		"host":       host,
		"result":     result,
	}, nil
}

// ErrorRerun: экспоненциальный backoff 2, 4, 8, 16, 32, 32, ... минут.
// Give-up нет: недоступная машина может подняться в любой момент.
func (t *ProbeSSH) ErrorRerun(_ context.Context, offsets []time.Duration, _ domain.Call) (time.Duration, bool) {
	n := len(offsets)
	if n >= 5 {
		return probeBackoffCap, true
	}
	return time.Duration(1<<uint(n)) * time.Minute, true
}
