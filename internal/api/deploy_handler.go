package api

import (
	"encoding/json"
	"net/http"

	"github.com/billyhotjava/mist-ce/internal/mq"
)

// RequestDeploy ставит deployment-запрос в очередь.
// POST /api/v1/deploy
//
// Выполнение асинхронное: исход придёт пользователю уведомлением.
func (h *Handler) RequestDeploy(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	switch {
	case req.User == "":
		BadRequest(w, "user is required")
		return
	case req.Host == "":
		BadRequest(w, "host is required")
		return
	case req.Command == "":
		BadRequest(w, "command is required")
		return
	}

	// Deployment на отключённый backend не имеет смысла
	if req.BackendID != "" {
		backend, err := h.backends.GetByID(r.Context(), req.User, req.BackendID)
		if HandleRepoError(w, h.logger, err, "backend not found") {
			return
		}
		if !backend.Enabled {
			InvalidState(w, "backend is disabled")
			return
		}
	}

	payload := mq.DeployRequestedPayload{
		User:      req.User,
		BackendID: req.BackendID,
		MachineID: req.MachineID,
		Host:      req.Host,
		Command:   req.Command,
		KeyID:     req.KeyID,
		Username:  req.Username,
		Port:      req.Port,
	}

	if err := h.deployer.PublishDeployRequested(r.Context(), payload, 0); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: DeployResponse{
		MachineID: req.MachineID,
		Status:    "queued",
	}})
}
