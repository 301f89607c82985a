package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Metrics(),
	)

	// Tasks
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))
	mux.Handle("POST /api/v1/tasks/{name}", chain(http.HandlerFunc(h.TriggerTask)))
	mux.Handle("GET /api/v1/tasks/{name}/result", chain(http.HandlerFunc(h.GetTaskResult)))
	mux.Handle("DELETE /api/v1/tasks/{name}/cache", chain(http.HandlerFunc(h.ClearTaskCache)))

	// Backends & inventory
	mux.Handle("GET /api/v1/backends", chain(http.HandlerFunc(h.ListBackends)))
	mux.Handle("PUT /api/v1/backends/{id}/enabled", chain(http.HandlerFunc(h.SetBackendEnabled)))
	mux.Handle("GET /api/v1/backends/{id}/machines", chain(http.HandlerFunc(h.ListMachines)))
	mux.Handle("GET /api/v1/backends/{id}/images", chain(http.HandlerFunc(h.ListImages)))
	mux.Handle("GET /api/v1/backends/{id}/sizes", chain(http.HandlerFunc(h.ListSizes)))
	mux.Handle("GET /api/v1/backends/{id}/locations", chain(http.HandlerFunc(h.ListLocations)))

	// Deployments
	mux.Handle("POST /api/v1/deploy", chain(http.HandlerFunc(h.RequestDeploy)))
}
