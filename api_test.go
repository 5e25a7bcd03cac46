package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Seednode/roshambo/game"
	"github.com/Seednode/roshambo/stats"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRooms []game.RoomSummary

func (f fixedRooms) Rooms(context.Context) []game.RoomSummary { return f }

type brokenStore struct{}

func (brokenStore) Record(context.Context, string, stats.Outcome) (stats.Tally, error) {
	return stats.Tally{}, errors.New("connection refused")
}

func (brokenStore) Get(context.Context, string) (stats.Tally, error) {
	return stats.Tally{}, errors.New("connection refused")
}

func (brokenStore) Close() {}

func drain(errs chan error) {
	for {
		select {
		case <-errs:
		default:
			return
		}
	}
}

func TestServeRooms(t *testing.T) {
	cfg := validConfig()
	errs := make(chan error, 1)
	defer drain(errs)

	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	list := fixedRooms{{ID: "AB12CD", Players: 1, Status: game.StatusWaiting, CreatedAt: created}}

	w := httptest.NewRecorder()
	serveRooms(cfg, list, errs)(w, httptest.NewRequest(http.MethodGet, "/api/rooms", nil), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"rooms":[{"id":"AB12CD","players":1,"status":"waiting","createdAt":"2026-02-03T04:05:06Z"}]}`, w.Body.String())
}

func TestServeRooms_Empty(t *testing.T) {
	errs := make(chan error, 1)
	defer drain(errs)

	w := httptest.NewRecorder()
	serveRooms(validConfig(), fixedRooms(nil), errs)(w, httptest.NewRequest(http.MethodGet, "/api/rooms", nil), nil)

	assert.JSONEq(t, `{"rooms":[]}`, w.Body.String())
}

func TestServeAPIHealth(t *testing.T) {
	errs := make(chan error, 1)
	defer drain(errs)

	list := fixedRooms{{ID: "AB12CD"}, {ID: "ZZ99ZZ"}}
	started := time.Now().Add(-90 * time.Second)

	w := httptest.NewRecorder()
	serveAPIHealth(validConfig(), list, started, errs)(w, httptest.NewRequest(http.MethodGet, "/api/health", nil), nil)

	var body healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "OK", body.Status)
	assert.Equal(t, 2, body.Rooms)
	assert.GreaterOrEqual(t, body.Uptime, int64(90))
}

func TestServeStats(t *testing.T) {
	ctx := context.Background()
	store := stats.NewMemoryStore()
	for _, o := range []stats.Outcome{stats.Win, stats.Win, stats.Loss} {
		_, err := store.Record(ctx, "alice", o)
		require.NoError(t, err)
	}

	errs := make(chan error, 1)
	defer drain(errs)

	get := func(s stats.Store, player string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/stats/"+player, nil)
		serveStats(validConfig(), s, zerolog.Nop(), errs)(w, r, httprouter.Params{{Key: "playerid", Value: player}})
		return w
	}

	t.Run("found", func(t *testing.T) {
		w := get(store, "alice")
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "alice", body["playerId"])
		assert.EqualValues(t, 2, body["wins"])
		assert.EqualValues(t, 1, body["losses"])
		assert.EqualValues(t, 3, body["totalGames"])
		assert.InDelta(t, 66.67, body["winRate"], 0.001)
	})

	t.Run("unknown", func(t *testing.T) {
		w := get(store, "nobody")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":"player-not-found"}`, w.Body.String())
	})

	t.Run("store error", func(t *testing.T) {
		w := get(brokenStore{}, "alice")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}

func TestServeRoomQR(t *testing.T) {
	handler := serveRoomQR(validConfig())

	t.Run("valid", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodGet, "/room/ab12cd/qr", nil), httprouter.Params{{Key: "roomid", Value: "ab12cd"}})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
	})

	for _, id := range []string{"", "AB12C", "AB12CDE", "AB-2CD", "ÄB12CD"} {
		t.Run("invalid "+id, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler(w, httptest.NewRequest(http.MethodGet, "/room/x/qr", nil), httprouter.Params{{Key: "roomid", Value: id}})

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
			assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
		})
	}
}

func TestJoinLink(t *testing.T) {
	cfg := validConfig()
	cfg.prefix = "/rps"

	r := httptest.NewRequest(http.MethodGet, "/rps/room/AB12CD/qr", nil)
	r.Host = "games.example"
	assert.Equal(t, "http://games.example/rps/?room=AB12CD", joinLink(cfg, r, "AB12CD"))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://games.example/rps/?room=AB12CD", joinLink(cfg, r, "AB12CD"))

	r.Header.Set("X-Forwarded-Proto", "javascript")
	assert.Equal(t, "http://games.example/rps/?room=AB12CD", joinLink(cfg, r, "AB12CD"))
}
