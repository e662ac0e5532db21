package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/smskit/dispatch/internal/dispatch_service/app"
	"github.com/smskit/dispatch/internal/dispatch_service/domain"
	"github.com/smskit/dispatch/internal/dispatch_service/repository"
)

// MessageHandler exposes the dispatch engine over HTTP.
type MessageHandler struct {
	dispatcher   *app.Dispatcher
	deduplicator *app.Deduplicator
	repo         repository.MessageRepository
	logger       *slog.Logger
	validate     *validator.Validate
}

func NewMessageHandler(
	dispatcher *app.Dispatcher,
	deduplicator *app.Deduplicator,
	repo repository.MessageRepository,
	logger *slog.Logger,
) *MessageHandler {
	return &MessageHandler{
		dispatcher:   dispatcher,
		deduplicator: deduplicator,
		repo:         repo,
		logger:       logger.With("component", "http_handler"),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes mounts the handler on a chi router.
func (h *MessageHandler) Routes(r chi.Router) {
	r.Post("/messages", h.SendMessage)
	r.Get("/messages/{messageID}", h.GetMessage)
	r.Get("/threads/{threadID}/messages", h.GetThreadMessages)
	r.Post("/messages/{messageID}/retry", h.RetryMessage)
	r.Post("/messages/{messageID}/send-now", h.SendNow)
	r.Delete("/messages/{messageID}/scheduled", h.CancelScheduled)
	r.Post("/maintenance/dedup", h.RunDedup)
}

func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.StructCtx(r.Context(), req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	threadID := uuid.Nil
	if req.ThreadID != "" {
		parsed, err := uuid.Parse(req.ThreadID)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid thread_id")
			return
		}
		threadID = parsed
	}

	attachments := make([]*domain.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		attachments = append(attachments, &domain.Attachment{
			Ref:      a.Ref,
			Name:     a.Name,
			MimeType: a.MimeType,
		})
	}

	records, err := h.dispatcher.Dispatch(r.Context(), &domain.OutboundRequest{
		SubscriptionID: req.SubscriptionID,
		ThreadID:       threadID,
		Body:           req.Body,
		Addresses:      req.Addresses,
		Attachments:    attachments,
		SendAsGroup:    req.SendAsGroup,
		Delay:          time.Duration(req.DelaySeconds) * time.Second,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "dispatch failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to dispatch message")
		return
	}

	resp := SendMessageResponse{Messages: make([]MessageResponse, 0, len(records))}
	for _, rec := range records {
		resp.Messages = append(resp.Messages, toMessageResponse(rec))
	}
	h.respondJSON(w, http.StatusAccepted, resp)
}

func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "messageID")
	if !ok {
		return
	}
	rec, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			h.respondError(w, http.StatusNotFound, "message not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to fetch message", "message_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to fetch message")
		return
	}
	h.respondJSON(w, http.StatusOK, toMessageResponse(rec))
}

func (h *MessageHandler) GetThreadMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "threadID")
	if !ok {
		return
	}
	records, err := h.repo.GetByThread(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to fetch thread", "thread_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to fetch thread")
		return
	}
	resp := SendMessageResponse{Messages: make([]MessageResponse, 0, len(records))}
	for _, rec := range records {
		resp.Messages = append(resp.Messages, toMessageResponse(rec))
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *MessageHandler) RetryMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "messageID")
	if !ok {
		return
	}
	if err := h.dispatcher.Retry(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrMessageNotFound):
			h.respondError(w, http.StatusNotFound, "message not found")
		default:
			h.respondError(w, http.StatusConflict, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) SendNow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "messageID")
	if !ok {
		return
	}
	if err := h.dispatcher.SendNow(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotScheduled) {
			h.respondError(w, http.StatusNotFound, "no scheduled send for this message")
			return
		}
		h.logger.ErrorContext(r.Context(), "send-now failed", "message_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) CancelScheduled(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "messageID")
	if !ok {
		return
	}
	if err := h.dispatcher.CancelScheduled(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotScheduled) {
			h.respondError(w, http.StatusNotFound, "no scheduled send for this message")
			return
		}
		h.logger.ErrorContext(r.Context(), "cancel failed", "message_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to cancel scheduled send")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) RunDedup(w http.ResponseWriter, r *http.Request) {
	report, err := h.deduplicator.Run(r.Context(), func(processed, total int) {
		h.logger.InfoContext(r.Context(), "dedup progress", "processed", processed, "total", total)
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "dedup pass failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "deduplication failed")
		return
	}
	h.respondJSON(w, http.StatusOK, DedupResponse{
		Result:  string(report.Result),
		Scanned: report.Scanned,
		Removed: report.Removed,
	})
}

func (h *MessageHandler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func (h *MessageHandler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *MessageHandler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, ErrorResponse{Error: msg})
}
