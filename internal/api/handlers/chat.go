package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/memkeep/memkeep/internal/service"
)

type ChatHandler struct {
	svc *service.TurnService
}

func NewChatHandler(svc *service.TurnService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type chatRequest struct {
	UserID  string `json:"user_id,omitempty"`
	Message string `json:"message"`
}

// Chat processes one conversational turn: extraction, persistence, decay
// maintenance, retrieval, and reply generation all happen before the
// response is written.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}

	result, err := h.svc.ProcessTurn(r.Context(), req.UserID, req.Message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process turn")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
