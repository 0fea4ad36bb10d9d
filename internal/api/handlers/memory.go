package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/memkeep/memkeep/internal/domain"
	"github.com/memkeep/memkeep/internal/service"
)

type MemoryHandler struct {
	svc *service.TurnService
}

func NewMemoryHandler(svc *service.TurnService) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

func userIDParam(r *http.Request) string {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		return "default"
	}
	return userID
}

// List returns the user's full active memory set with its summary, or just
// the memories of one type when the type parameter is given.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if t := r.URL.Query().Get("type"); t != "" {
		if !domain.ValidMemoryType(t) {
			writeError(w, http.StatusBadRequest, "unknown memory type")
			return
		}
		results, err := h.svc.MemoriesOfType(r.Context(), userIDParam(r), domain.MemoryType(t))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch memories")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"memories": results, "count": len(results)})
		return
	}

	result, err := h.svc.Memories(r.Context(), userIDParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch memories")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Search returns active memories whose content contains the q parameter.
func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	results, err := h.svc.SearchMemories(r.Context(), userIDParam(r), term)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to search memories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": results, "count": len(results)})
}

// Recent returns the n most recently used memories (default 5).
func (h *MemoryHandler) Recent(w http.ResponseWriter, r *http.Request) {
	n := 5
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid n")
			return
		}
		n = parsed
	}

	results, err := h.svc.RecentMemories(r.Context(), userIDParam(r), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch recent memories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": results, "count": len(results)})
}
