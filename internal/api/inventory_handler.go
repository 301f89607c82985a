package api

import (
	"encoding/json"
	"net/http"
)

// ListBackends возвращает backend'ы пользователя.
// GET /api/v1/backends?user=...
func (h *Handler) ListBackends(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		BadRequest(w, "user is required")
		return
	}

	backends, err := h.backends.ListByUser(r.Context(), user)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]BackendResponse, len(backends))
	for i, b := range backends {
		result[i] = BackendFromDomain(b)
	}

	List(w, result, len(result))
}

// SetBackendEnabled включает или отключает backend.
// PUT /api/v1/backends/{id}/enabled?user=...
//
// Та же операция, которой листинг машин отключает стабильно
// падающий backend; здесь она доступна пользователю вручную.
func (h *Handler) SetBackendEnabled(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		BadRequest(w, "user is required")
		return
	}

	var req SetBackendEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	id := r.PathValue("id")
	if err := h.backends.SetEnabled(r.Context(), user, id, req.Enabled); err != nil {
		HandleRepoError(w, h.logger, err, "backend not found")
		return
	}

	backend, err := h.backends.GetByID(r.Context(), user, id)
	if HandleRepoError(w, h.logger, err, "backend not found") {
		return
	}

	Success(w, BackendFromDomain(*backend))
}

// ListMachines возвращает машины backend из синхронизированного инвентаря.
// GET /api/v1/backends/{id}/machines?user=...
//
// Отдаёт состояние, которое поддерживает задача list_machines;
// актуальность ограничена её ResultFresh-окном.
func (h *Handler) ListMachines(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		BadRequest(w, "user is required")
		return
	}

	machines, err := h.inventory.ListMachines(r.Context(), user, r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "backend not found") {
		return
	}

	List(w, machines, len(machines))
}

// ListImages возвращает образы backend.
// GET /api/v1/backends/{id}/images?user=...
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		BadRequest(w, "user is required")
		return
	}

	images, err := h.inventory.ListImages(r.Context(), user, r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "backend not found") {
		return
	}

	List(w, images, len(images))
}

// ListSizes возвращает конфигурации машин backend.
// GET /api/v1/backends/{id}/sizes?user=...
func (h *Handler) ListSizes(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		BadRequest(w, "user is required")
		return
	}

	sizes, err := h.inventory.ListSizes(r.Context(), user, r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "backend not found") {
		return
	}

	List(w, sizes, len(sizes))
}

// ListLocations возвращает зоны backend.
// GET /api/v1/backends/{id}/locations?user=...
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		BadRequest(w, "user is required")
		return
	}

	locations, err := h.inventory.ListLocations(r.Context(), user, r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "backend not found") {
		return
	}

	List(w, locations, len(locations))
}
