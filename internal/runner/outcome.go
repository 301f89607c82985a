package runner

import (
	"encoding/json"
	"time"
)

// Disposition — терминальный исход одного вызова Process.
//
// Цепочка продолжается только после DispositionRetryScheduled
// и после DispositionExecuted polling-задачи; остальные исходы
// завершают цепочку.
type Disposition string

const (
	// DispositionExecuted — задача выполнена, результат доставлен и закэширован.
	DispositionExecuted Disposition = "executed"

	// DispositionFreshCache — внешний триггер при свежем кэше: выполнение не нужно.
	DispositionFreshCache Disposition = "fresh_cache"

	// DispositionSuperseded — цепочку обогнал более новый внешний триггер.
	DispositionSuperseded Disposition = "superseded"

	// DispositionPresenceLost — результатов никто не ждёт, цепочка остановлена.
	DispositionPresenceLost Disposition = "presence_lost"

	// DispositionRetryScheduled — ошибка выполнения, повтор запланирован.
	DispositionRetryScheduled Disposition = "retry_scheduled"

	// DispositionGaveUp — backoff-политика отказалась от повторов.
	DispositionGaveUp Disposition = "gave_up"

	// DispositionPublishFailed — результат некому доставить, ничего не кэшируется.
	DispositionPublishFailed Disposition = "publish_failed"

	// DispositionIdentityBusy — идентичность обрабатывается другим worker'ом
	// (at-least-once redelivery), дубликат отброшен.
	DispositionIdentityBusy Disposition = "identity_busy"
)

// outcomeKind — вид исхода шага выполнения.
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetry
	outcomeGiveUp
)

// outcome — явный результат шага выполнения, потребляемый state machine:
// успех с payload, повтор через delay или отказ от повторов.
// Доменные ошибки не покидают шаг выполнения в виде error.
type outcome struct {
	kind    outcomeKind
	payload json.RawMessage
	delay   time.Duration
}
