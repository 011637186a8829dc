package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"teamchat/internal/domain"
)

// ChannelManager manages the channel catalogue
type ChannelManager interface {
	ListChannels(ctx context.Context) ([]*domain.Channel, error)
	GetChannel(ctx context.Context, id string) (*domain.Channel, error)
	CreateChannel(ctx context.Context, name string, description *string) (*domain.Channel, error)
	UpdateChannel(ctx context.Context, id string, name, description *string) (*domain.Channel, error)
	DeleteChannel(ctx context.Context, id string) error
}

// ChannelHandler handles channel endpoints
type ChannelHandler struct {
	channels ChannelManager
}

// NewChannelHandler creates a new channel handler
func NewChannelHandler(channels ChannelManager) *ChannelHandler {
	return &ChannelHandler{channels: channels}
}

// CreateChannelRequest represents channel creation request
type CreateChannelRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// UpdateChannelRequest is a partial update; omitted fields are unchanged
type UpdateChannelRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// List retrieves all channels
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.ListChannels(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if channels == nil {
		channels = []*domain.Channel{}
	}

	writeJSON(w, http.StatusOK, channels)
}

// Get retrieves one channel
func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	channel, err := h.channels.GetChannel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, channel)
}

// Create creates a new channel
func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateChannelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	channel, err := h.channels.CreateChannel(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, channel)
}

// Update applies a partial update
func (h *ChannelHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateChannelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	channel, err := h.channels.UpdateChannel(r.Context(), chi.URLParam(r, "id"), req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, channel)
}

// Delete removes a channel and its history
func (h *ChannelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.channels.DeleteChannel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
