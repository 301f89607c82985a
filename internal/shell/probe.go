package shell

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/billyhotjava/mist-ce/internal/domain"
)

// probeCommand — команда пробы. uptime есть везде и отдаёт
// загрузку и количество пользователей одной строкой.
const probeCommand = "uptime"

// SSHProber реализует tasks.Prober поверх SSH-клиента.
type SSHProber struct {
	client *Client

	// target-поля кроме Host; host приходит аргументом задачи.
	port int
	user string
}

// NewSSHProber создаёт SSHProber.
// port и user нулевые — используются значения по умолчанию (root, 22).
func NewSSHProber(client *Client, port int, user string) *SSHProber {
	return &SSHProber{client: client, port: port, user: user}
}

// Probe выполняет SSH-пробу машины.
func (p *SSHProber) Probe(ctx context.Context, host string) (*domain.ProbeResult, error) {
	target := Target{Host: host, Port: p.port, User: p.user}

	start := time.Now()
	output, err := p.client.Run(ctx, target, probeCommand)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", host, err)
	}

	result := parseUptime(strings.TrimSpace(output))
	result.Duration = time.Since(start)
	return result, nil
}

// parseUptime разбирает вывод uptime:
//
//	12:01:02 up 5 days, 3:02, 2 users, load average: 0.10, 0.20, 0.30
//
// Неразборчивые поля молча пропускаются — вывод отличается между
// дистрибутивами, а проба ценна и без них.
func parseUptime(line string) *domain.ProbeResult {
	result := &domain.ProbeResult{Uptime: line}

	if _, after, found := strings.Cut(line, "load average:"); found {
		for _, field := range strings.Split(after, ",") {
			value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				continue
			}
			result.Loadavg = append(result.Loadavg, value)
		}
	}

	if before, _, found := strings.Cut(line, " user"); found {
		fields := strings.Fields(before)
		if len(fields) > 0 {
			if users, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
				result.Users = users
			}
		}
	}

	return result
}
