package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/billyhotjava/mist-ce/internal/cache"
	"github.com/billyhotjava/mist-ce/internal/domain"
)

// ListTasks возвращает реестр задач.
// GET /api/v1/tasks
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	defs := h.registry.List()

	result := make([]TaskResponse, len(defs))
	for i, def := range defs {
		result[i] = TaskFromDefinition(def)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	List(w, result, len(result))
}

// TriggerTask запускает задачу с учётом кэша.
// POST /api/v1/tasks/{name}
//
// Триггер всегда внешний: seq_id из запроса вычищается. Свежий
// результат возвращается сразу, без постановки в очередь. Валидный,
// но устаревший результат тоже возвращается — с параллельной
// постановкой задачи на обновление. Пустой или истёкший кэш —
// просто постановка в очередь.
func (h *Handler) TriggerTask(w http.ResponseWriter, r *http.Request) {
	def, err := h.registry.Get(r.PathValue("name"))
	if err != nil {
		NotFound(w, "unknown task")
		return
	}

	var req TriggerTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.User == "" {
		BadRequest(w, "user is required")
		return
	}

	call := req.ToCall()
	key := domain.CacheKey(def.Name(), call)
	resp := TriggerTaskResponse{Task: def.Name(), CacheKey: key}

	if rec, ok := h.cachedResult(r, key); ok {
		if age := rec.Age(h.now()); age < def.ResultExpires() {
			resp.Cached = true
			resp.AgeS = int(age / time.Second)
			resp.Payload = rec.Payload
			if age < def.ResultFresh() {
				Success(w, resp)
				return
			}
		}
	}

	delay := time.Duration(req.Delay) * time.Second
	if err := h.submitter.Submit(r.Context(), def.Name(), call, delay); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: resp})
}

// GetTaskResult возвращает кэшированный результат задачи.
// GET /api/v1/tasks/{name}/result?user=...&arg=...&kwarg=k=v
//
// Результат старше ResultExpires не возвращается никогда.
func (h *Handler) GetTaskResult(w http.ResponseWriter, r *http.Request) {
	def, err := h.registry.Get(r.PathValue("name"))
	if err != nil {
		NotFound(w, "unknown task")
		return
	}

	call, ok := callFromQuery(r)
	if !ok {
		BadRequest(w, "user is required")
		return
	}

	key := domain.CacheKey(def.Name(), call)
	value, err := h.store.Get(r.Context(), key)
	if errors.Is(err, cache.ErrNotFound) {
		NotFound(w, "no cached result")
		return
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	var rec domain.ResultRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	age := rec.Age(h.now())
	if age >= def.ResultExpires() {
		NotFound(w, "cached result expired")
		return
	}

	Success(w, TaskResultResponse{
		Task:      def.Name(),
		Timestamp: rec.Timestamp,
		AgeS:      int(age / time.Second),
		Fresh:     age < def.ResultFresh(),
		Payload:   rec.Payload,
	})
}

// ClearTaskCache удаляет кэшированный результат и историю ошибок.
// DELETE /api/v1/tasks/{name}/cache
func (h *Handler) ClearTaskCache(w http.ResponseWriter, r *http.Request) {
	def, err := h.registry.Get(r.PathValue("name"))
	if err != nil {
		NotFound(w, "unknown task")
		return
	}

	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.User == "" {
		BadRequest(w, "user is required")
		return
	}

	key := domain.CacheKey(def.Name(), req.ToCall())
	if err := h.store.Delete(r.Context(), key); err != nil {
		InternalError(w, h.logger, err)
		return
	}
	if err := h.store.Delete(r.Context(), domain.ErrorKey(key)); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	NoContent(w)
}

// cachedResult читает кэшированный результат; ошибки чтения и
// повреждённые записи равнозначны отсутствию.
func (h *Handler) cachedResult(r *http.Request, key string) (domain.ResultRecord, bool) {
	value, err := h.store.Get(r.Context(), key)
	if err != nil {
		return domain.ResultRecord{}, false
	}

	var rec domain.ResultRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return domain.ResultRecord{}, false
	}
	return rec, true
}

// callFromQuery собирает идентичность вызова из query-параметров:
// user=..., arg=... (повторяемый), kwarg=ключ=значение (повторяемый).
func callFromQuery(r *http.Request) (domain.Call, bool) {
	q := r.URL.Query()

	user := q.Get("user")
	if user == "" {
		return domain.Call{}, false
	}

	call := domain.Call{
		User: user,
		Args: q["arg"],
	}
	for _, kv := range q["kwarg"] {
		k, v, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		if call.Kwargs == nil {
			call.Kwargs = make(map[string]string)
		}
		call.Kwargs[k] = v
	}

	return call.StripSeqID(), true
}
