package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/billyhotjava/mist-ce/internal/cache"
	"github.com/billyhotjava/mist-ce/internal/domain"
	"github.com/billyhotjava/mist-ce/internal/mq"
	"github.com/billyhotjava/mist-ce/internal/tasks"
)

// Submitter ставит задачу в очередь.
// Реализация: mq.TaskSubmitter.
type Submitter interface {
	Submit(ctx context.Context, task string, call domain.Call, delay time.Duration) error
}

// Deployer публикует deployment-запрос.
// Реализация: mq.Publisher.
type Deployer interface {
	PublishDeployRequested(ctx context.Context, payload mq.DeployRequestedPayload, delay time.Duration) error
}

// Backends — backend'ы пользователей.
// Реализация: repo.BackendRepo.
type Backends interface {
	GetByID(ctx context.Context, user, id string) (*domain.Backend, error)
	ListByUser(ctx context.Context, user string) ([]domain.Backend, error)
	SetEnabled(ctx context.Context, user, id string, enabled bool) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	registry  *tasks.Registry
	store     cache.Store
	submitter Submitter
	deployer  Deployer
	backends  Backends
	inventory tasks.Inventory
	logger    *slog.Logger

	// now подменяется в тестах.
	now func() time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	Registry  *tasks.Registry
	Store     cache.Store
	Submitter Submitter
	Deployer  Deployer
	Backends  Backends
	Inventory tasks.Inventory
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		registry:  cfg.Registry,
		store:     cfg.Store,
		submitter: cfg.Submitter,
		deployer:  cfg.Deployer,
		backends:  cfg.Backends,
		inventory: cfg.Inventory,
		logger:    logger,
		now:       time.Now,
	}
}
