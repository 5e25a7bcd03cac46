/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/roshambo/game"
	"github.com/Seednode/roshambo/guard"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	playerCookieName = "roshambo_id"
	maxNameLength    = 24
	maxMessageSize   = 64 << 10
	sendBuffer       = 16

	writeWait  = 10 * time.Second
	pongWait   = time.Minute
	pingPeriod = (pongWait * 9) / 10
)

var errMalformedMessage = errors.New("malformed message")

// Messages coming from clients. id is echoed back on the ack.
type clientMessage struct {
	Type      string         `json:"type"`
	ID        int64          `json:"id,omitempty"`
	RoomID    string         `json:"roomId,omitempty"`
	Name      string         `json:"name,omitempty"`
	Choice    string         `json:"choice,omitempty"`
	Nonce     string         `json:"nonce,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Tag       string         `json:"tag,omitempty"`
	Gesture   *guard.Gesture `json:"gesture,omitempty"`
}

type eventMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type ackMessage struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
	game.JoinAck
}

type sessionInfo struct {
	SessionID string `json:"sessionId"`
}

// coordinator is the part of the game coordinator the websocket layer drives.
type coordinator interface {
	CreateRoom(ctx context.Context, who game.Identity) game.JoinAck
	JoinRoom(ctx context.Context, who game.Identity, roomID string) game.JoinAck
	MakeChoice(ctx context.Context, sessionID string, choice game.Choice) game.Ack
	PlayerReady(ctx context.Context, sessionID string) game.Ack
	LeaveRoom(ctx context.Context, sessionID string) game.Ack
	Disconnect(sessionID string)
}

type Client struct {
	conn    *websocket.Conn
	send    chan any
	who     game.Identity
	limiter *rate.Limiter
}

// SessionHub tracks live websocket sessions and delivers coordinator events
// to them. A client whose buffer is full is dropped.
type SessionHub struct {
	mu      sync.Mutex
	clients map[string]*Client
	log     zerolog.Logger
}

func newSessionHub(logger zerolog.Logger) *SessionHub {
	return &SessionHub{
		clients: make(map[string]*Client),
		log:     logger,
	}
}

func (h *SessionHub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.who.SessionID] = c
}

func (h *SessionHub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[c.who.SessionID]; ok && cur == c {
		delete(h.clients, c.who.SessionID)
		close(c.send)
	}
}

func (h *SessionHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// push queues msg for one session without blocking. Caller must not hold h.mu.
func (h *SessionHub) push(sessionID string, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pushLocked(sessionID, msg)
}

func (h *SessionHub) pushLocked(sessionID string, msg any) {
	c, ok := h.clients[sessionID]
	if !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, sessionID)
		close(c.send)

		h.log.Debug().Str("session", sessionID).Msg("SERVE: Dropped slow client")
	}
}

func (h *SessionHub) Send(sessionID, event string, payload any) {
	h.push(sessionID, eventMessage{Type: event, Data: payload})
}

func (h *SessionHub) Broadcast(sessionIDs []string, event string, payload any) {
	msg := eventMessage{Type: event, Data: payload}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range sessionIDs {
		h.pushLocked(id, msg)
	}
}

// closeAll disconnects every client, used on shutdown.
func (h *SessionHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		delete(h.clients, id)
	}
}

func displayName(raw string) string {
	name := []rune(guard.SanitizeInput(raw))
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return strings.TrimSpace(string(name))
}

func fromAck(a game.Ack) game.JoinAck {
	return game.JoinAck{Success: a.Success, Message: a.Message}
}

func dispatch(ctx context.Context, coord coordinator, who game.Identity, msg clientMessage) game.JoinAck {
	switch msg.Type {
	case "createRoom":
		who.Name = displayName(msg.Name)
		return coord.CreateRoom(ctx, who)
	case "joinRoom":
		who.Name = displayName(msg.Name)
		return coord.JoinRoom(ctx, who, msg.RoomID)
	case "makeChoice":
		return fromAck(coord.MakeChoice(ctx, who.SessionID, game.Choice{
			Move:      msg.Choice,
			Nonce:     msg.Nonce,
			Timestamp: msg.Timestamp,
			Tag:       msg.Tag,
			Gesture:   msg.Gesture,
		}))
	case "playerReady":
		return fromAck(coord.PlayerReady(ctx, who.SessionID))
	case "leaveRoom":
		return fromAck(coord.LeaveRoom(ctx, who.SessionID))
	default:
		return game.JoinAck{Message: game.ErrUnknownAction.Error()}
	}
}

func (c *Client) reply(hub *SessionHub, id int64, ack game.JoinAck) {
	hub.push(c.who.SessionID, ackMessage{Type: "ack", ID: id, JoinAck: ack})
}

func (c *Client) readPump(coord coordinator, hub *SessionHub) {
	defer func() {
		hub.unregister(c)
		coord.Disconnect(c.who.SessionID)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		// Flooded frames are never decoded, so their ack carries no id.
		if !c.limiter.Allow() {
			c.reply(hub, 0, game.JoinAck{Message: game.ErrRateLimited.Error()})
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(hub, 0, game.JoinAck{Message: errMalformedMessage.Error()})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		ack := dispatch(ctx, coord, c.who, msg)
		cancel()

		c.reply(hub, msg.ID, ack)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// checkOrigin accepts any origin when allowed is empty, and requests without
// an Origin header, which browsers always send.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}

		origin = strings.TrimSuffix(origin, "/")
		for _, a := range allowed {
			if strings.EqualFold(origin, strings.TrimSuffix(a, "/")) {
				return true
			}
		}
		return false
	}
}

func newUpgrader(cfg *Config) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(cfg.allowedOrigins),
	}
}

func playerIDFromCookie(r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	return ""
}

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if id := playerIDFromCookie(r); id != "" {
		return id
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func serveWS(cfg *Config, coord coordinator, hub *SessionHub, logger zerolog.Logger) httprouter.Handle {
	upgrader := newUpgrader(cfg)

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := playerIDFromCookie(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug().Err(err).Str("ip", realIP(r)).Msg("SERVE: Websocket upgrade failed")
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, sendBuffer),
			who: game.Identity{
				SessionID: uuid.NewString(),
				PlayerID:  playerID,
			},
			limiter: rate.NewLimiter(rate.Limit(cfg.messageRate), cfg.messageBurst),
		}

		hub.register(client)
		hub.push(client.who.SessionID, eventMessage{
			Type: "session",
			Data: sessionInfo{SessionID: client.who.SessionID},
		})

		logger.Debug().Str("session", client.who.SessionID).Str("ip", realIP(r)).Msg("SERVE: Websocket connected")

		go client.writePump()
		client.readPump(coord, hub)
	}
}
