package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamchat/internal/testutil"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type readyResponse struct {
	Status string                       `json:"status"`
	Checks map[string]HealthCheckResult `json:"checks"`
}

func TestHealth_ReturnsOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	Health(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	testutil.AssertHeader(t, w, "Content-Type", "application/json")

	response := testutil.DecodeJSON[map[string]string](t, w)
	testutil.AssertEqual(t, response["status"], "ok")
}

func TestReady_AllUp(t *testing.T) {
	handler := Ready(map[string]HealthCheck{
		"badger":   PingCheck(pingerFunc(func(context.Context) error { return nil })),
		"rabbitmq": ConnectionCheck(func() bool { return false }),
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
	response := testutil.DecodeJSON[readyResponse](t, w)
	assert.Equal(t, "ready", response.Status)
	assert.Equal(t, "up", response.Checks["badger"].Status)
	assert.Equal(t, "up", response.Checks["rabbitmq"].Status)
}

func TestReady_OneDown(t *testing.T) {
	handler := Ready(map[string]HealthCheck{
		"redis":    PingCheck(pingerFunc(func(context.Context) error { return errors.New("connection refused") })),
		"rabbitmq": ConnectionCheck(func() bool { return true }),
		"badger":   PingCheck(pingerFunc(func(context.Context) error { return nil })),
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	testutil.AssertStatusCode(t, w, http.StatusServiceUnavailable)
	response := testutil.DecodeJSON[readyResponse](t, w)
	assert.Equal(t, "not_ready", response.Status)
	assert.Equal(t, "connection refused", response.Checks["redis"].Error)
	assert.Equal(t, "connection closed", response.Checks["rabbitmq"].Error)
	assert.Equal(t, "up", response.Checks["badger"].Status)
}

func TestReady_NoChecks(t *testing.T) {
	w := httptest.NewRecorder()
	Ready(nil)(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
}

func TestDatabaseCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	result := DatabaseCheck(db)(context.Background())
	assert.Equal(t, "up", result.Status)
	assert.Contains(t, result.Metadata, "connections_open")

	mock.ExpectPing().WillReturnError(errors.New("db down"))
	result = DatabaseCheck(db)(context.Background())
	assert.Equal(t, "down", result.Status)
	assert.Equal(t, "db down", result.Error)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheckResult_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(HealthCheckResult{Status: "up"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"up"}`, string(data))
}
