package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

// Default configuration values.
const (
	DefaultPort    = 22
	DefaultUser    = "root"
	defaultTimeout = 20 * time.Second
)

// ErrNoPrivateKey — клиент создан без приватного ключа.
var ErrNoPrivateKey = errors.New("no private key configured")

// Target — адрес и учётные данные удалённой машины.
// Нулевые поля заменяются значениями по умолчанию (root@host:22).
type Target struct {
	Host string
	Port int
	User string
}

func (t Target) addr() string {
	port := t.Port
	if port <= 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

func (t Target) user() string {
	if t.User == "" {
		return DefaultUser
	}
	return t.User
}

// Client выполняет команды по SSH с аутентификацией по ключу.
//
// Соединение устанавливается на каждый вызов Run: машины приходят и
// уходят, держать пул соединений с эфемерными хостами бессмысленно.
type Client struct {
	signer  ssh.Signer
	timeout time.Duration
	logger  *slog.Logger
}

// Config — конфигурация SSH-клиента.
type Config struct {
	// PrivateKeyPEM — приватный ключ в PEM.
	PrivateKeyPEM []byte

	// Timeout — таймаут установки соединения (default: 20s).
	Timeout time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Client.
func New(cfg Config) (*Client, error) {
	if len(cfg.PrivateKeyPEM) == 0 {
		return nil, ErrNoPrivateKey
	}

	signer, err := ssh.ParsePrivateKey(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		signer:  signer,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Run выполняет команду на машине и возвращает её объединённый вывод.
//
// Ненулевой exit code команды возвращается как error (*ssh.ExitError)
// вместе с уже собранным выводом.
func (c *Client) Run(ctx context.Context, target Target, command string) (string, error) {
	conn, err := c.dial(ctx, target)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	// Отмена контекста рвёт соединение — иначе зависшая команда
	// держит worker до таймаута TCP
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	session, err := conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session on %s: %w", target.Host, err)
	}
	defer session.Close()

	c.logger.Debug("running remote command", "host", target.Host, "user", target.user())

	output, err := session.CombinedOutput(command)
	if err != nil {
		if ctx.Err() != nil {
			return string(output), ctx.Err()
		}
		return string(output), fmt.Errorf("run on %s: %w", target.Host, err)
	}

	return string(output), nil
}

// dial устанавливает SSH-соединение с машиной.
func (c *Client) dial(ctx context.Context, target Target) (*ssh.Client, error) {
	addr := target.addr()

	dialer := net.Dialer{Timeout: c.timeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshCfg := &ssh.ClientConfig{
		User: target.user(),
		Auth: []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		// Машины создаются и пересоздаются провайдерами, host key
		// меняется при каждом пересоздании — верификация тут
		// даёт только ложные тревоги
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.timeout,
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}
