package shell

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"
)

func TestParseUptime(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantLoadavg []float64
		wantUsers   int
	}{
		{
			name:        "typical linux",
			line:        "12:01:02 up 5 days, 3:02, 2 users, load average: 0.10, 0.20, 0.30",
			wantLoadavg: []float64{0.10, 0.20, 0.30},
			wantUsers:   2,
		},
		{
			name:        "single user",
			line:        "09:15:00 up 1 min, 1 user, load average: 1.05, 0.40, 0.15",
			wantLoadavg: []float64{1.05, 0.40, 0.15},
			wantUsers:   1,
		},
		{
			name:        "no load average",
			line:        "uptime: command output garbled",
			wantLoadavg: nil,
			wantUsers:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseUptime(tt.line)

			if result.Uptime != tt.line {
				t.Errorf("Uptime = %q, want raw line preserved", result.Uptime)
			}
			if result.Users != tt.wantUsers {
				t.Errorf("Users = %d, want %d", result.Users, tt.wantUsers)
			}
			if len(result.Loadavg) != len(tt.wantLoadavg) {
				t.Fatalf("Loadavg = %v, want %v", result.Loadavg, tt.wantLoadavg)
			}
			for i := range tt.wantLoadavg {
				if result.Loadavg[i] != tt.wantLoadavg[i] {
					t.Errorf("Loadavg[%d] = %v, want %v", i, result.Loadavg[i], tt.wantLoadavg[i])
				}
			}
		})
	}
}

func TestTCPPingerAgainstLocalListener(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	pinger := NewTCPPinger(3, port, time.Second)

	result, err := pinger.Ping(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if result.PacketsTx != 3 || result.PacketsRx != 3 {
		t.Errorf("tx/rx = %d/%d, want 3/3", result.PacketsTx, result.PacketsRx)
	}
	if result.PacketLoss != 0 {
		t.Errorf("PacketLoss = %v, want 0", result.PacketLoss)
	}
}

func TestTCPPingerUnreachable(t *testing.T) {
	// Порт без слушателя: connection refused на каждой пробе
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	pinger := NewTCPPinger(2, port, time.Second)

	_, err = pinger.Ping(context.Background(), "127.0.0.1")
	if err == nil {
		t.Fatal("Ping() to closed port must fail")
	}
	if !IsTransient(err) {
		t.Errorf("connection refused must be transient, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	timeoutErr := &net.OpError{Op: "dial", Err: &timeoutError{}}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("probe: %w", context.DeadlineExceeded), true},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"reset", syscall.ECONNRESET, true},
		{"host unreachable", syscall.EHOSTUNREACH, true},
		{"net timeout", timeoutErr, true},
		{"plain error", errors.New("bad script"), false},
		{"canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type timeoutError struct{}

func (*timeoutError) Error() string   { return "i/o timeout" }
func (*timeoutError) Timeout() bool   { return true }
func (*timeoutError) Temporary() bool { return true }

func TestNewClientRequiresKey(t *testing.T) {
	_, err := New(Config{})
	if !errors.Is(err, ErrNoPrivateKey) {
		t.Errorf("New() error = %v, want ErrNoPrivateKey", err)
	}
}

func TestNewClientRejectsGarbageKey(t *testing.T) {
	_, err := New(Config{PrivateKeyPEM: []byte("not a pem")})
	if err == nil {
		t.Error("New() must reject an unparseable key")
	}
}
