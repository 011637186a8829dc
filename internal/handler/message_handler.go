package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"teamchat/internal/domain"
)

// Default history paging
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// MessageService is the message gateway used by the REST surface
type MessageService interface {
	CreateMessage(ctx context.Context, actorID, channelID, content, excludeConnID string) (*domain.Message, error)
	EditMessage(ctx context.Context, actorID, messageID, content, excludeConnID string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, actorID, messageID, excludeConnID string) error
	ListMessages(ctx context.Context, channelID string, page, pageSize int) (*domain.MessagePage, error)
}

// MessageHandler handles message endpoints
type MessageHandler struct {
	messages        MessageService
	defaultPageSize int
	maxPageSize     int
}

// NewMessageHandler creates a message handler. Non-positive sizes fall back
// to the defaults.
func NewMessageHandler(messages MessageService, defaultPageSize, maxPageSize int) *MessageHandler {
	if maxPageSize <= 0 {
		maxPageSize = MaxPageSize
	}
	if defaultPageSize <= 0 || defaultPageSize > maxPageSize {
		defaultPageSize = min(DefaultPageSize, maxPageSize)
	}
	return &MessageHandler{
		messages:        messages,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

// CreateMessageRequest is the body of POST /messages. ConnectionID names the
// caller's own live connection so it is left out of the broadcast.
type CreateMessageRequest struct {
	ChannelID    string `json:"channel_id"`
	Content      string `json:"content"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// EditMessageRequest is the body of PUT /messages/{id}
type EditMessageRequest struct {
	Content      string `json:"content"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// Pagination describes one history page
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	PageCount  int `json:"page_count"`
}

// MessageListResponse is the body of GET /channels/{id}/messages
type MessageListResponse struct {
	Messages   []*domain.Message `json:"messages"`
	Pagination Pagination        `json:"pagination"`
}

// List returns one page of a channel's history, oldest first
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")

	page, err := intQuery(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}

	pageSize, err := intQuery(r, "page_size", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if pageSize == 0 {
		if pageSize, err = intQuery(r, "limit", h.defaultPageSize); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if pageSize > h.maxPageSize {
		writeError(w, r, fmt.Errorf("%w: page_size must not exceed %d", domain.ErrInvalidArgument, h.maxPageSize))
		return
	}

	result, err := h.messages.ListMessages(r.Context(), channelID, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageListResponse{
		Messages: result.Messages,
		Pagination: Pagination{
			Page:       result.Page,
			PageSize:   result.PageSize,
			TotalCount: result.TotalCount,
			PageCount:  result.PageCount,
		},
	})
}

// Create stores a message and broadcasts it to the channel
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req CreateMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	msg, err := h.messages.CreateMessage(r.Context(), actorID, req.ChannelID, req.Content, req.ConnectionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Edit changes a message owned by the caller
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req EditMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	msg, err := h.messages.EditMessage(r.Context(), actorID, chi.URLParam(r, "id"), req.Content, req.ConnectionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Delete removes a message owned by the caller
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	exclude := r.URL.Query().Get("connection_id")
	if err := h.messages.DeleteMessage(r.Context(), actorID, chi.URLParam(r, "id"), exclude); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func intQuery(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrInvalidArgument, key)
	}
	return v, nil
}
