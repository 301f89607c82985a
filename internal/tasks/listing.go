package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/billyhotjava/mist-ce/internal/domain"
)

// Аргументы листинговых задач: args[0] — backend_id.

// ListMachines — polling-листинг машин backend'а.
//
// Самая горячая задача системы: короткое окно свежести, перезапуск
// каждые 10 секунд, пока пользователь смотрит на инвентарь.
type ListMachines struct {
	Base
	inventory Inventory
	backends  Backends
	logger    *slog.Logger
}

// NewListMachines создаёт задачу list_machines.
func NewListMachines(inventory Inventory, backends Backends, logger *slog.Logger) *ListMachines {
	return &ListMachines{
		Base: Base{
			TaskName: TaskListMachines,
			Fresh:    10 * time.Second,
			Expires:  24 * time.Hour,
			Poll:     true,
		},
		inventory: inventory,
		backends:  backends,
		logger:    logger,
	}
}

// Execute возвращает машины backend'а.
func (t *ListMachines) Execute(ctx context.Context, call domain.Call) (any, error) {
	backendID := call.Arg(0)
	if backendID == "" {
		return nil, fmt.Errorf("list_machines: backend_id argument required")
	}

	machines, err := t.inventory.ListMachines(ctx, call.User, backendID)
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}

	return map[string]any{
		"backend_id": backendID,
		"machines":   machines,
	}, nil
}

// ErrorRerun: первые шесть ошибок — повтор через окно свежести,
// дальше backend отключается и цепочка останавливается.
// Это осознанный side effect политики: стабильно падающий провайдер
// не должен опрашиваться вечно.
func (t *ListMachines) ErrorRerun(ctx context.Context, offsets []time.Duration, call domain.Call) (time.Duration, bool) {
	if len(offsets) < 6 {
		return t.Fresh, true
	}

	backendID := call.Arg(0)
	if err := t.backends.SetEnabled(ctx, call.User, backendID, false); err != nil {
		t.logger.Error("failed to disable backend after repeated failures",
			"user", call.User,
			"backend_id", backendID,
			"error", err,
		)
	} else {
		t.logger.Warn("backend disabled after repeated listing failures",
			"user", call.User,
			"backend_id", backendID,
			"failures", len(offsets),
		)
	}
	return 0, false
}

// ListImages — разовый листинг образов backend'а.
type ListImages struct {
	Base
	inventory Inventory
}

// NewListImages создаёт задачу list_images.
func NewListImages(inventory Inventory) *ListImages {
	return &ListImages{
		Base: Base{
			TaskName: TaskListImages,
			Fresh:    time.Hour,
			Expires:  7 * 24 * time.Hour,
		},
		inventory: inventory,
	}
}

// Execute возвращает образы backend'а.
func (t *ListImages) Execute(ctx context.Context, call domain.Call) (any, error) {
	backendID := call.Arg(0)
	if backendID == "" {
		return nil, fmt.Errorf("list_images: backend_id argument required")
	}

	images, err := t.inventory.ListImages(ctx, call.User, backendID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	return map[string]any{
		"backend_id": backendID,
		"images":     images,
	}, nil
}

// ListSizes — разовый листинг размеров backend'а.
type ListSizes struct {
	Base
	inventory Inventory
}

// NewListSizes создаёт задачу list_sizes.
func NewListSizes(inventory Inventory) *ListSizes {
	return &ListSizes{
		Base: Base{
			TaskName: TaskListSizes,
			Fresh:    time.Hour,
			Expires:  7 * 24 * time.Hour,
		},
		inventory: inventory,
	}
}

// Execute возвращает размеры backend'а.
func (t *ListSizes) Execute(ctx context.Context, call domain.Call) (any, error) {
	backendID := call.Arg(0)
	if backendID == "" {
		return nil, fmt.Errorf("list_sizes: backend_id argument required")
	}

	sizes, err := t.inventory.ListSizes(ctx, call.User, backendID)
	if err != nil {
		return nil, fmt.Errorf("list sizes: %w", err)
	}

	return map[string]any{
		"backend_id": backendID,
		"sizes":      sizes,
	}, nil
}

// ListLocations — разовый листинг локаций backend'а.
type ListLocations struct {
	Base
	inventory Inventory
}

// NewListLocations создаёт задачу list_locations.
func NewListLocations(inventory Inventory) *ListLocations {
	return &ListLocations{
		Base: Base{
			TaskName: TaskListLocations,
			Fresh:    time.Hour,
			Expires:  7 * 24 * time.Hour,
		},
		inventory: inventory,
	}
}

// Execute возвращает локации backend'а.
func (t *ListLocations) Execute(ctx context.Context, call domain.Call) (any, error) {
	backendID := call.Arg(0)
	if backendID == "" {
		return nil, fmt.Errorf("list_locations: backend_id argument required")
	}

	locations, err := t.inventory.ListLocations(ctx, call.User, backendID)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}

	return map[string]any{
		"backend_id": backendID,
		"locations":  locations,
	}, nil
}
