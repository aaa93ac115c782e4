package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"directchat/internal/domain"
	"directchat/internal/service"
)

type sendTextRequest struct {
	Message string `json:"message"`
}

type sendAttachmentRequest struct {
	Message  string                `json:"message"`
	Kind     domain.AttachmentKind `json:"kind"`
	URL      string                `json:"url"`
	Name     string                `json:"name"`
	MimeType string                `json:"mimeType"`
	Size     int64                 `json:"size"`
}

type sendLocationRequest struct {
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
	Label string   `json:"label"`
}

type sendPollRequest struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	AllowMultiple bool     `json:"allowMultiple"`
}

type voteRequest struct {
	OptionID string `json:"optionId"`
}

func handleSendText(msgSvc *service.MessageService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendTextRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
		msg, err := msgSvc.SendText(r.Context(), CurrentUser(r).ID, chi.URLParam(r, "id"), req.Message)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

// handleSendUpload stores the multipart file in field and sends it. An empty
// kind lets the mime type decide between video and document.
func handleSendUpload(msgSvc *service.MessageService, files *FileStore, field string, kind domain.AttachmentKind, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		senderID, receiverID := CurrentUser(r).ID, chi.URLParam(r, "id")
		if err := msgSvc.CheckSend(r.Context(), senderID, receiverID); err != nil {
			writeError(w, log, err)
			return
		}
		in, err := files.Receive(w, r, field)
		if err != nil {
			writeError(w, log, err)
			return
		}
		in.Kind = kind
		msg, err := msgSvc.SendAttachment(r.Context(), senderID, receiverID, r.FormValue("message"), in)
		if err != nil {
			// A block may land between the check and the send.
			if rmErr := files.Remove(in.URL); rmErr != nil {
				log.Warn("remove orphaned upload", "url", in.URL, "err", rmErr)
			}
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleSendAttachment(msgSvc *service.MessageService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendAttachmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
		msg, err := msgSvc.SendAttachment(r.Context(), CurrentUser(r).ID, chi.URLParam(r, "id"), req.Message, service.AttachmentInput{
			Kind:     req.Kind,
			URL:      req.URL,
			Name:     req.Name,
			MimeType: req.MimeType,
			Size:     req.Size,
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleSendLocation(msgSvc *service.MessageService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendLocationRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
		if req.Lat == nil || req.Lng == nil {
			writeError(w, log, domain.Invalid("lat and lng are required"))
			return
		}
		msg, err := msgSvc.SendLocation(r.Context(), CurrentUser(r).ID, chi.URLParam(r, "id"), *req.Lat, *req.Lng, req.Label)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleSendContact(msgSvc *service.MessageService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.Contact
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
		msg, err := msgSvc.SendContact(r.Context(), CurrentUser(r).ID, chi.URLParam(r, "id"), req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleSendPoll(msgSvc *service.MessageService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendPollRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
		msg, err := msgSvc.SendPoll(r.Context(), CurrentUser(r).ID, chi.URLParam(r, "id"), req.Question, req.Options, req.AllowMultiple)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleVote(msgSvc *service.MessageService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req voteRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
		msg, err := msgSvc.Vote(r.Context(), chi.URLParam(r, "messageId"), CurrentUser(r).ID, req.OptionID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

func handleListPending(msgSvc *service.MessageService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqs, err := msgSvc.ListPendingRequests(r.Context(), CurrentUser(r).ID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, reqs)
	}
}

func handleAcceptPending(msgSvc *service.MessageService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := msgSvc.AcceptPending(r.Context(), chi.URLParam(r, "messageId"), CurrentUser(r).ID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})
	}
}

func handleRejectPending(msgSvc *service.MessageService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := msgSvc.RejectPending(r.Context(), chi.URLParam(r, "messageId"), CurrentUser(r).ID); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
