package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"directchat/internal/service"
)

// Handlers addressing the caller's conversation with user {id}.

func handleGetMessages(msgSvc *service.MessageService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := msgSvc.GetMessages(r.Context(), CurrentUser(r).ID, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handleMarkSeen(msgSvc *service.MessageService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := msgSvc.MarkSeen(r.Context(), CurrentUser(r).ID, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": n})
	}
}

func handleClear(msgSvc *service.MessageService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := msgSvc.ClearForCaller(r.Context(), CurrentUser(r).ID, chi.URLParam(r, "id")); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Chat cleared"})
	}
}
