package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billyhotjava/mist-ce/internal/domain"
)

// MachineRepo — инвентарь машин, образов, размеров и локаций.
//
// В community edition инвентарь синхронизируется в Postgres отдельным
// процессом; листинговые задачи читают его отсюда через интерфейс
// tasks.Inventory. Граница с облачным провайдером остаётся на уровне
// интерфейса — фреймворку всё равно, откуда пришли данные.
type MachineRepo struct {
	pool *pgxpool.Pool
}

// NewMachineRepo создаёт новый MachineRepo.
func NewMachineRepo(pool *pgxpool.Pool) *MachineRepo {
	return &MachineRepo{pool: pool}
}

// ListMachines возвращает машины backend'а.
func (r *MachineRepo) ListMachines(ctx context.Context, user, backendID string) ([]domain.Machine, error) {
	query := `
		SELECT id, backend_id, name, state, public_ips, private_ips, extra
		FROM machines
		WHERE "user" = $1 AND backend_id = $2
		ORDER BY name ASC
	`
	rows, err := r.pool.Query(ctx, query, user, backendID)
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	defer rows.Close()

	var machines []domain.Machine
	for rows.Next() {
		var m domain.Machine
		var extraJSON []byte
		if err := rows.Scan(&m.ID, &m.BackendID, &m.Name, &m.State,
			&m.PublicIPs, &m.PrivateIPs, &extraJSON); err != nil {
			return nil, fmt.Errorf("scan machine: %w", err)
		}
		if extraJSON != nil {
			if err := json.Unmarshal(extraJSON, &m.Extra); err != nil {
				return nil, fmt.Errorf("unmarshal machine extra: %w", err)
			}
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

// ListImages возвращает образы backend'а.
func (r *MachineRepo) ListImages(ctx context.Context, user, backendID string) ([]domain.Image, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name FROM images
		WHERE "user" = $1 AND backend_id = $2
		ORDER BY name ASC
	`, user, backendID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []domain.Image
	for rows.Next() {
		var img domain.Image
		if err := rows.Scan(&img.ID, &img.Name); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// ListSizes возвращает размеры (flavors) backend'а.
func (r *MachineRepo) ListSizes(ctx context.Context, user, backendID string) ([]domain.Size, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, ram, disk FROM sizes
		WHERE "user" = $1 AND backend_id = $2
		ORDER BY ram ASC
	`, user, backendID)
	if err != nil {
		return nil, fmt.Errorf("list sizes: %w", err)
	}
	defer rows.Close()

	var sizes []domain.Size
	for rows.Next() {
		var s domain.Size
		if err := rows.Scan(&s.ID, &s.Name, &s.RAM, &s.Disk); err != nil {
			return nil, fmt.Errorf("scan size: %w", err)
		}
		sizes = append(sizes, s)
	}
	return sizes, rows.Err()
}

// ListLocations возвращает локации backend'а.
func (r *MachineRepo) ListLocations(ctx context.Context, user, backendID string) ([]domain.Location, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name FROM locations
		WHERE "user" = $1 AND backend_id = $2
		ORDER BY name ASC
	`, user, backendID)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var locations []domain.Location
	for rows.Next() {
		var l domain.Location
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}
