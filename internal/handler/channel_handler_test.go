package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"teamchat/internal/domain"
	"teamchat/internal/service"
	"teamchat/internal/testutil"
)

func stringsReader(s string) *strings.Reader {
	return strings.NewReader(s)
}

func newChannelHandler(channels ...*domain.Channel) (*ChannelHandler, *testutil.MockChannelRepository) {
	repo := testutil.NewMockChannelRepository(channels...)
	return NewChannelHandler(service.NewChannelService(repo, nil)), repo
}

func TestChannelHandler_List_Success(t *testing.T) {
	h, _ := newChannelHandler(
		testutil.NewTestChannel(testutil.WithChannelName("general"), testutil.WithMessageCount(4)),
	)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/channels", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
	channels := testutil.DecodeJSON[[]domain.Channel](t, w)
	testutil.AssertEqual(t, len(channels), 1)
	testutil.AssertEqual(t, channels[0].Name, "general")
	testutil.AssertEqual(t, channels[0].MessageCount, 4)
}

func TestChannelHandler_List_EmptyIsArray(t *testing.T) {
	h, repo := newChannelHandler()
	repo.ListFunc = func(ctx context.Context) ([]*domain.Channel, error) { return nil, nil }

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/channels", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
	testutil.AssertEqual(t, strings.TrimSpace(w.Body.String()), "[]")
}

func TestChannelHandler_List_ServiceError(t *testing.T) {
	h, repo := newChannelHandler()
	repo.ListFunc = func(ctx context.Context) ([]*domain.Channel, error) {
		return nil, errors.New("database connection error")
	}

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/channels", nil))

	testutil.AssertJSONError(t, w, http.StatusInternalServerError, "Internal server error")
}

func TestChannelHandler_Create(t *testing.T) {
	h, _ := newChannelHandler(testutil.NewTestChannel(testutil.WithChannelName("general")))

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantErr    string
	}{
		{"success", `{"name":"random","description":"off topic"}`, http.StatusCreated, ""},
		{"duplicate", `{"name":"general"}`, http.StatusBadRequest, "already exists"},
		{"empty name", `{"name":"  "}`, http.StatusBadRequest, "channel name is required"},
		{"invalid json", `{"name":`, http.StatusBadRequest, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Create(w, httptest.NewRequest(http.MethodPost, "/channels", stringsReader(tt.body)))

			if tt.wantErr != "" {
				testutil.AssertJSONError(t, w, tt.wantStatus, tt.wantErr)
				return
			}
			testutil.AssertStatusCode(t, w, tt.wantStatus)
			ch := testutil.DecodeJSON[domain.Channel](t, w)
			testutil.AssertEqual(t, ch.Name, "random")
			testutil.AssertTrue(t, ch.ID != "", "channel id should be set")
		})
	}
}

func TestChannelHandler_GetUpdateDelete(t *testing.T) {
	h, repo := newChannelHandler(testutil.NewTestChannel(testutil.WithChannelID("c1"), testutil.WithChannelName("general")))

	w := httptest.NewRecorder()
	h.Get(w, withRouteParam(httptest.NewRequest(http.MethodGet, "/channels/c1", nil), "id", "c1", ""))
	testutil.AssertStatusCode(t, w, http.StatusOK)

	w = httptest.NewRecorder()
	h.Get(w, withRouteParam(httptest.NewRequest(http.MethodGet, "/channels/c9", nil), "id", "c9", ""))
	testutil.AssertJSONError(t, w, http.StatusNotFound, "channel not found")

	w = httptest.NewRecorder()
	h.Update(w, withRouteParam(httptest.NewRequest(http.MethodPut, "/channels/c1", stringsReader(`{"description":"updated"}`)), "id", "c1", ""))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	ch := testutil.DecodeJSON[domain.Channel](t, w)
	testutil.AssertEqual(t, ch.Name, "general")
	testutil.AssertEqual(t, *ch.Description, "updated")

	w = httptest.NewRecorder()
	h.Delete(w, withRouteParam(httptest.NewRequest(http.MethodDelete, "/channels/c1", nil), "id", "c1", ""))
	testutil.AssertStatusCode(t, w, http.StatusNoContent)
	testutil.AssertEqual(t, len(repo.Channels), 0)

	w = httptest.NewRecorder()
	h.Delete(w, withRouteParam(httptest.NewRequest(http.MethodDelete, "/channels/c1", nil), "id", "c1", ""))
	testutil.AssertStatusCode(t, w, http.StatusNotFound)
}
