/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Seednode/roshambo/game"
	"github.com/Seednode/roshambo/stats"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

type roomLister interface {
	Rooms(ctx context.Context) []game.RoomSummary
}

type roomsResponse struct {
	Rooms []game.RoomSummary `json:"rooms"`
}

type healthResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
	Uptime int64  `json:"uptime"`
}

type statsResponse struct {
	stats.Tally
	WinRate float64 `json:"winRate"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func uptime(started time.Time) int64 {
	return int64(time.Since(started).Seconds())
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(body)
}

func serveRooms(cfg *Config, rooms roomLister, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		list := rooms.Rooms(r.Context())
		if list == nil {
			list = []game.RoomSummary{}
		}

		if err := writeJSON(cfg, w, http.StatusOK, roomsResponse{Rooms: list}); err != nil {
			errs <- err
		}
	}
}

func serveAPIHealth(cfg *Config, rooms roomLister, started time.Time, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		body := healthResponse{
			Status: "OK",
			Rooms:  len(rooms.Rooms(r.Context())),
			Uptime: uptime(started),
		}

		if err := writeJSON(cfg, w, http.StatusOK, body); err != nil {
			errs <- err
		}
	}
}

func serveStats(cfg *Config, store stats.Store, logger zerolog.Logger, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		playerID := p.ByName("playerid")

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		tally, err := store.Get(ctx, playerID)

		var status int
		var body any

		switch {
		case err == nil:
			status = http.StatusOK
			body = statsResponse{
				Tally:   tally,
				WinRate: math.Round(tally.WinRate()*100) / 100,
			}
		case errors.Is(err, stats.ErrNotFound):
			status = http.StatusNotFound
			body = errorResponse{Error: err.Error()}
		default:
			logger.Error().Err(err).Str("player", playerID).Msg("STATS: Lookup failed")

			status = http.StatusInternalServerError
			body = errorResponse{Error: "internal error"}
		}

		if err := writeJSON(cfg, w, status, body); err != nil {
			errs <- err
		}
	}
}

func validRoomCode(id string) bool {
	if len(id) != game.RoomCodeLength {
		return false
	}
	for _, c := range id {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// joinLink is the page a player opens to join roomID.
func joinLink(cfg *Config, r *http.Request, roomID string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     cfg.prefix + "/",
		RawQuery: url.Values{"room": {roomID}}.Encode(),
	}

	return u.String()
}

// serveRoomQR renders a PNG QR code of the join link for a room code.
func serveRoomQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		roomID := strings.ToUpper(p.ByName("roomid"))
		securityHeaders(cfg, w)

		if !validRoomCode(roomID) {
			http.Error(w, "invalid room code", http.StatusBadRequest)
			return
		}

		png, err := qrcode.Encode(joinLink(cfg, r, roomID), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}
