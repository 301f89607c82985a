package tasks

import (
	"context"

	"github.com/billyhotjava/mist-ce/internal/domain"
)

// Inventory — источник инвентаря backend'а.
//
// Реализация: repo.MachineRepo (синхронизированный инвентарь в Postgres).
// Задачам всё равно, откуда данные: граница с провайдером — этот интерфейс.
type Inventory interface {
	ListMachines(ctx context.Context, user, backendID string) ([]domain.Machine, error)
	ListImages(ctx context.Context, user, backendID string) ([]domain.Image, error)
	ListSizes(ctx context.Context, user, backendID string) ([]domain.Size, error)
	ListLocations(ctx context.Context, user, backendID string) ([]domain.Location, error)
}

// Backends — управление состоянием backend'ов пользователя.
// Нужен листингу машин для отключения стабильно падающего backend'а.
type Backends interface {
	SetEnabled(ctx context.Context, user, backendID string, enabled bool) error
}

// Prober выполняет SSH-пробу машины.
// Должен быть безопасен при устаревшем состоянии (машина уже удалена).
type Prober interface {
	Probe(ctx context.Context, host string) (*domain.ProbeResult, error)
}

// Pinger проверяет доступность хоста.
type Pinger interface {
	Ping(ctx context.Context, host string) (*domain.PingResult, error)
}
