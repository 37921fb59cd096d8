package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stargram/stargram/internal/config"
	"github.com/stargram/stargram/internal/database"
	"github.com/stargram/stargram/internal/server"
	"github.com/stargram/stargram/internal/stats"
	"github.com/stargram/stargram/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestApp(t *testing.T, db database.StargramRepository) *StargramApp {
	cfg, err := config.NewConfig("localhost:8000", "dsn", "c2VjcmV0", []string{"http://localhost:3000"}, "")
	if err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return(nil)

	logger := testutil.TestLogger(t)
	cs, err := server.NewChatServer(logger, db, su, cfg)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}

	mux := http.NewServeMux()
	return NewStargramApp(mux, logger, cs, db, cfg)
}

func TestHealthz(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)
		db.On("Ping").Return(nil).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		app.mux.Handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("database unreachable", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)
		db.On("Ping").Return(errors.New("connection refused")).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		app.mux.Handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestServeWs(t *testing.T) {
	t.Run("plain request rejected", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		rec := httptest.NewRecorder()
		app.mux.Handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, "expected non-upgrade request to be rejected")
	})

	t.Run("disallowed origin rejected", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		req.Header.Set("Sec-WebSocket-Version", "13")
		req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()
		app.mux.Handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestErrorHandlerRecovers(t *testing.T) {
	db := &database.MockStargramRepository{}
	app := newTestApp(t, db)

	h := app.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
