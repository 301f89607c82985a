package shell

import (
	"context"
	"errors"
	"net"
	"syscall"

	"golang.org/x/crypto/ssh"
)

// IsTransient сообщает, стоит ли повторять операцию после ошибки.
//
// Транзиентны сетевые сбои: таймауты, отказ или обрыв соединения,
// недоступность хоста. Провал аутентификации и ненулевой exit code
// выполненной команды повтором не лечатся.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Команда дошла до машины и завершилась с ошибкой
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	// Прочие ошибки уровня dial (DNS, маршрутизация)
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
