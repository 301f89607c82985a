package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billyhotjava/mist-ce/internal/domain"
)

// BackendRepo — репозиторий подключённых облачных провайдеров.
type BackendRepo struct {
	pool *pgxpool.Pool
}

// NewBackendRepo создаёт новый BackendRepo.
func NewBackendRepo(pool *pgxpool.Pool) *BackendRepo {
	return &BackendRepo{pool: pool}
}

// GetByID возвращает backend пользователя по ID.
func (r *BackendRepo) GetByID(ctx context.Context, user, backendID string) (*domain.Backend, error) {
	query := `
		SELECT id, "user", title, provider, region, enabled, created_at
		FROM backends
		WHERE "user" = $1 AND id = $2
	`
	var b domain.Backend
	var region *string
	err := r.pool.QueryRow(ctx, query, user, backendID).Scan(
		&b.ID, &b.User, &b.Title, &b.Provider, &region, &b.Enabled, &b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get backend: %w", err)
	}
	if region != nil {
		b.Region = *region
	}
	return &b, nil
}

// ListByUser возвращает все backends пользователя.
func (r *BackendRepo) ListByUser(ctx context.Context, user string) ([]domain.Backend, error) {
	query := `
		SELECT id, "user", title, provider, region, enabled, created_at
		FROM backends
		WHERE "user" = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, user)
	if err != nil {
		return nil, fmt.Errorf("list backends: %w", err)
	}
	defer rows.Close()

	var backends []domain.Backend
	for rows.Next() {
		var b domain.Backend
		var region *string
		if err := rows.Scan(&b.ID, &b.User, &b.Title, &b.Provider, &region, &b.Enabled, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan backend: %w", err)
		}
		if region != nil {
			b.Region = *region
		}
		backends = append(backends, b)
	}
	return backends, rows.Err()
}

// SetEnabled включает или отключает backend.
//
// Отключение — side effect backoff-политики листинга машин:
// после серии подряд идущих ошибок backend деактивируется,
// чтобы не опрашивать заведомо мёртвый провайдер.
func (r *BackendRepo) SetEnabled(ctx context.Context, user, backendID string, enabled bool) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE backends SET enabled = $3 WHERE "user" = $1 AND id = $2`,
		user, backendID, enabled,
	)
	if err != nil {
		return fmt.Errorf("set backend enabled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
