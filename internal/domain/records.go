package domain

import (
	"encoding/json"
	"time"
)

// ResultRecord — кэшированный результат успешного выполнения задачи.
//
// Хранится в кэше под cache key. Перезаписывается при каждом
// успешном выполнении. Читается:
//   - short-circuit логикой (свежий результат вместо повторного вычисления)
//   - проверкой конфликта sequences (SeqID)
type ResultRecord struct {
	// Timestamp — время успешного выполнения.
	Timestamp time.Time `json:"timestamp"`

	// Payload — результат выполнения задачи (непрозрачный JSON).
	Payload json.RawMessage `json:"payload"`

	// SeqID — sequence, записавший этот результат.
	SeqID string `json:"seq_id"`
}

// Age возвращает возраст записи относительно now.
func (r *ResultRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.Timestamp)
}

// ErrorRecord — история подряд идущих ошибок одной цепочки.
//
// Хранится под cache key + "error". Создаётся при первой ошибке,
// пополняется при каждой следующей ошибке той же цепочки.
// Удаляется при первом успехе, при give-up политики backoff
// или когда результата больше никто не ждёт.
type ErrorRecord struct {
	// SeqID — sequence, в рамках которого происходят ошибки.
	SeqID string `json:"seq_id"`

	// Timestamps — моменты ошибок в порядке возникновения (неубывающие).
	// Длина = количество подряд идущих ошибок с последнего успеха.
	Timestamps []time.Time `json:"timestamps"`
}

// Append добавляет момент очередной ошибки.
func (e *ErrorRecord) Append(t time.Time) {
	e.Timestamps = append(e.Timestamps, t)
}

// Offsets возвращает моменты ошибок как смещения от первой ошибки.
// В таком виде история передаётся в backoff-политику задачи.
func (e *ErrorRecord) Offsets() []time.Duration {
	if len(e.Timestamps) == 0 {
		return nil
	}
	first := e.Timestamps[0]
	offsets := make([]time.Duration, len(e.Timestamps))
	for i, t := range e.Timestamps {
		offsets[i] = t.Sub(first)
	}
	return offsets
}
