package api

import (
	"encoding/json"
	"time"

	"github.com/billyhotjava/mist-ce/internal/domain"
	"github.com/billyhotjava/mist-ce/internal/tasks"
)

// Task DTOs

// CallRequest — идентичность вызова задачи.
type CallRequest struct {
	User   string            `json:"user"`
	Args   []string          `json:"args,omitempty"`
	Kwargs map[string]string `json:"kwargs,omitempty"`
}

// ToCall конвертирует запрос в domain.Call.
// seq_id вычищается: извне цепочку подделать нельзя.
func (r CallRequest) ToCall() domain.Call {
	call := domain.Call{
		User:   r.User,
		Args:   r.Args,
		Kwargs: r.Kwargs,
	}
	return call.StripSeqID()
}

// TriggerTaskRequest — запрос на запуск задачи.
type TriggerTaskRequest struct {
	CallRequest

	// Delay — отложить запуск на указанное число секунд.
	Delay int `json:"delay,omitempty"`
}

// TriggerTaskResponse — ответ на запуск задачи.
//
// При валидном кэше Payload заполнен; статус 200 означает, что
// результат свежий и постановки в очередь не было, 202 — что
// результат устарел и обновление поставлено в очередь.
type TriggerTaskResponse struct {
	Task     string          `json:"task"`
	CacheKey string          `json:"cache_key"`
	Cached   bool            `json:"cached"`
	AgeS     int             `json:"age_seconds,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// TaskResponse — описание задачи из реестра.
type TaskResponse struct {
	Name          string `json:"name"`
	ResultFreshS  int    `json:"result_fresh_seconds"`
	ResultExpires int    `json:"result_expires_seconds"`
	Polling       bool   `json:"polling"`
}

// TaskFromDefinition конвертирует tasks.Definition в TaskResponse.
func TaskFromDefinition(def tasks.Definition) TaskResponse {
	return TaskResponse{
		Name:          def.Name(),
		ResultFreshS:  int(def.ResultFresh() / time.Second),
		ResultExpires: int(def.ResultExpires() / time.Second),
		Polling:       def.Polling(),
	}
}

// TaskResultResponse — кэшированный результат задачи.
type TaskResultResponse struct {
	Task      string          `json:"task"`
	Timestamp time.Time       `json:"timestamp"`
	AgeS      int             `json:"age_seconds"`
	Fresh     bool            `json:"fresh"`
	Payload   json.RawMessage `json:"payload"`
}

// Backend DTOs

// BackendResponse — ответ с backend.
type BackendResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Provider  string    `json:"provider"`
	Region    string    `json:"region,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// BackendFromDomain конвертирует domain.Backend в BackendResponse.
func BackendFromDomain(b domain.Backend) BackendResponse {
	return BackendResponse{
		ID:        b.ID,
		Title:     b.Title,
		Provider:  b.Provider,
		Region:    b.Region,
		Enabled:   b.Enabled,
		CreatedAt: b.CreatedAt,
	}
}

// SetBackendEnabledRequest — запрос на включение/отключение backend.
type SetBackendEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// Deploy DTOs

// DeployRequest — запрос на выполнение deployment-скрипта.
type DeployRequest struct {
	User      string `json:"user"`
	BackendID string `json:"backend_id"`
	MachineID string `json:"machine_id"`
	Host      string `json:"host"`
	Command   string `json:"command"`
	KeyID     string `json:"key_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Port      int    `json:"port,omitempty"`
}

// DeployResponse — ответ на deployment-запрос.
type DeployResponse struct {
	MachineID string `json:"machine_id"`
	Status    string `json:"status"`
}
