package domain

import "time"

// Backend — подключённый облачный провайдер пользователя.
type Backend struct {
	// ID — идентификатор backend в рамках пользователя.
	ID string `json:"id"`

	// User — владелец backend.
	User string `json:"user"`

	// Title — человекочитаемое имя ("DigitalOcean production").
	Title string `json:"title"`

	// Provider — тип провайдера ("ec2", "openstack", "digitalocean", ...).
	Provider string `json:"provider"`

	// Region — регион провайдера.
	Region string `json:"region,omitempty"`

	// Enabled — флаг активности. Backend отключается автоматически,
	// когда листинг машин стабильно падает (см. tasks.ListMachines).
	Enabled bool `json:"enabled"`

	// CreatedAt — время подключения.
	CreatedAt time.Time `json:"created_at"`
}

// Machine — машина из инвентаря backend.
type Machine struct {
	// ID — идентификатор машины у провайдера.
	ID string `json:"id"`

	// BackendID — backend, которому принадлежит машина.
	BackendID string `json:"backend_id"`

	// Name — имя машины.
	Name string `json:"name"`

	// State — состояние у провайдера ("running", "stopped", ...).
	State string `json:"state"`

	// PublicIPs — публичные адреса (IPv4 и IPv6).
	PublicIPs []string `json:"public_ips,omitempty"`

	// PrivateIPs — приватные адреса.
	PrivateIPs []string `json:"private_ips,omitempty"`

	// Extra — дополнительные атрибуты провайдера.
	Extra map[string]string `json:"extra,omitempty"`
}

// Image — образ операционной системы.
type Image struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Size — конфигурация машины (flavor).
type Size struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// RAM — память в мегабайтах.
	RAM int `json:"ram,omitempty"`

	// Disk — диск в гигабайтах.
	Disk int `json:"disk,omitempty"`
}

// Location — зона/датацентр провайдера.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProbeResult — результат SSH-пробы машины.
type ProbeResult struct {
	// Uptime — вывод uptime на машине.
	Uptime string `json:"uptime,omitempty"`

	// Loadavg — средняя загрузка (1, 5, 15 минут).
	Loadavg []float64 `json:"loadavg,omitempty"`

	// Users — количество залогиненных пользователей.
	Users int `json:"users,omitempty"`

	// Duration — длительность пробы.
	Duration time.Duration `json:"duration"`
}

// PingResult — результат проверки доступности хоста.
type PingResult struct {
	// PacketsTx — отправлено проб.
	PacketsTx int `json:"packets_tx"`

	// PacketsRx — получено ответов.
	PacketsRx int `json:"packets_rx"`

	// PacketLoss — доля потерь (0.0 — 1.0).
	PacketLoss float64 `json:"packet_loss"`

	// RTTAvg — средняя задержка.
	RTTAvg time.Duration `json:"rtt_avg,omitempty"`
}
