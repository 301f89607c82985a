package mq

import (
	"context"
	"time"

	"github.com/billyhotjava/mist-ce/internal/domain"
)

// TaskSubmitter отправляет задачи в очередь выполнения.
//
// Реализует интерфейс runner.Submitter: и внешние триггеры (API),
// и самоперепланирование polling-цепочек идут через один путь.
type TaskSubmitter struct {
	publisher *Publisher
}

// NewTaskSubmitter создаёт новый TaskSubmitter.
func NewTaskSubmitter(publisher *Publisher) *TaskSubmitter {
	return &TaskSubmitter{publisher: publisher}
}

// Submit ставит задачу в очередь с доставкой не раньше чем через delay.
//
// Гарантий порядка сверх delay нет: упорядочивание перезапусков
// цепочки обеспечивается проверкой seq_id в Task Runner'е, а не очередью.
func (s *TaskSubmitter) Submit(ctx context.Context, task string, call domain.Call, delay time.Duration) error {
	return s.publisher.PublishTaskSubmitted(ctx, task, call, delay)
}
