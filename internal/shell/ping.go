package shell

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/billyhotjava/mist-ce/internal/domain"
)

// Default ping configuration.
const (
	defaultPingAttempts = 3
	defaultPingPort     = DefaultPort
	defaultPingTimeout  = 3 * time.Second
)

// TCPPinger реализует tasks.Pinger через TCP-подключение к SSH-порту.
//
// ICMP требует raw socket и CAP_NET_RAW; worker'ы бегают
// непривилегированными, а интересует нас всё равно доступность
// машины для SSH, так что TCP-проба честнее.
type TCPPinger struct {
	attempts int
	port     int
	timeout  time.Duration
}

// NewTCPPinger создаёт TCPPinger. Нулевые аргументы — значения
// по умолчанию: 3 пробы, порт 22, таймаут 3с.
func NewTCPPinger(attempts, port int, timeout time.Duration) *TCPPinger {
	if attempts <= 0 {
		attempts = defaultPingAttempts
	}
	if port <= 0 {
		port = defaultPingPort
	}
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return &TCPPinger{attempts: attempts, port: port, timeout: timeout}
}

// Ping проверяет доступность хоста серией TCP-подключений.
//
// Возвращает ошибку, только если не ответила ни одна проба —
// частичные потери отражаются в PacketLoss.
func (p *TCPPinger) Ping(ctx context.Context, host string) (*domain.PingResult, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(p.port))
	dialer := net.Dialer{Timeout: p.timeout}

	result := &domain.PingResult{}
	var rttTotal time.Duration
	var lastErr error

	for i := 0; i < p.attempts; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result.PacketsTx++
		start := time.Now()
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close()

		result.PacketsRx++
		rttTotal += time.Since(start)
	}

	result.PacketLoss = float64(result.PacketsTx-result.PacketsRx) / float64(result.PacketsTx)
	if result.PacketsRx > 0 {
		result.RTTAvg = rttTotal / time.Duration(result.PacketsRx)
	}

	if result.PacketsRx == 0 {
		return nil, lastErr
	}
	return result, nil
}
