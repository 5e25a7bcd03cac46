/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/Seednode/roshambo/guard"
	"github.com/rs/zerolog"
)

// Identity is who is acting: the transport session plus optional stable
// player id and display name.
type Identity struct {
	SessionID string
	PlayerID  string
	Name      string
}

// Ack acknowledges a choice, ready or leave action.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// JoinAck acknowledges room creation and joining.
type JoinAck struct {
	Success      bool   `json:"success"`
	RoomID       string `json:"roomId,omitempty"`
	PlayerNumber int    `json:"playerNumber,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Choice is a move submission. Nonce, Timestamp (unix milliseconds) and Tag
// are optional unless signed moves are required; Gesture is present when the
// move came from a gesture classifier.
type Choice struct {
	Move      string
	Nonce     string
	Timestamp int64
	Tag       string
	Gesture   *guard.Gesture
}

// RoomSummary is a room as listed by the rooms endpoint.
type RoomSummary struct {
	ID        string    `json:"id"`
	Players   int       `json:"players"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type Options struct {
	ResetDelay         time.Duration
	IdleTimeout        time.Duration
	SweepInterval      time.Duration
	RecordTimeout      time.Duration
	RequireSignedMoves bool

	Policy   MatchPolicy
	Recorder ResultRecorder
	Clock    Clock
	IDs      IDGenerator
}

func DefaultOptions() Options {
	return Options{
		ResetDelay:    3 * time.Second,
		IdleTimeout:   time.Hour,
		SweepInterval: 15 * time.Minute,
		RecordTimeout: 5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ResetDelay <= 0 {
		o.ResetDelay = d.ResetDelay
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = d.IdleTimeout
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = d.SweepInterval
	}
	if o.RecordTimeout <= 0 {
		o.RecordTimeout = d.RecordTimeout
	}
	if o.Clock == nil {
		o.Clock = SystemClock()
	}
	if o.IDs == nil {
		o.IDs = NewCodeGenerator(RoomCodeLength)
	}
	return o
}

type createRequest struct {
	who   Identity
	reply chan JoinAck
}

type joinRequest struct {
	who    Identity
	roomID string
	reply  chan JoinAck
}

type choiceRequest struct {
	sessionID string
	choice    Choice
	reply     chan Ack
}

type readyRequest struct {
	sessionID string
	reply     chan Ack
}

type leaveRequest struct {
	sessionID  string
	disconnect bool
	reply      chan Ack
}

type roomsRequest struct {
	reply chan []RoomSummary
}

type resetDue struct {
	room  *Room
	round int
}

// Coordinator owns the room registry. Every mutation happens on the goroutine
// running Run, one request at a time.
type Coordinator struct {
	opts      Options
	transport Transport
	guard     *guard.AbuseGuard
	auth      *guard.Authenticator
	log       zerolog.Logger

	rooms    map[string]*Room
	sessions map[string]*Room

	creates  chan createRequest
	joins    chan joinRequest
	choices  chan choiceRequest
	readies  chan readyRequest
	leaves   chan leaveRequest
	queries  chan roomsRequest
	resets   chan resetDue
	finished chan struct{}
}

// NewCoordinator wires a coordinator. auth may be nil, in which case tagged
// moves are rejected and untagged ones are accepted unless
// opts.RequireSignedMoves is set.
func NewCoordinator(transport Transport, abuse *guard.AbuseGuard, auth *guard.Authenticator, opts Options, logger zerolog.Logger) *Coordinator {
	opts = opts.withDefaults()

	if abuse == nil {
		abuse = guard.NewAbuseGuard(guard.WithClock(opts.Clock.Now))
	}

	return &Coordinator{
		opts:      opts,
		transport: transport,
		guard:     abuse,
		auth:      auth,
		log:       logger,
		rooms:     make(map[string]*Room),
		sessions:  make(map[string]*Room),
		creates:   make(chan createRequest),
		joins:     make(chan joinRequest),
		choices:   make(chan choiceRequest),
		readies:   make(chan readyRequest),
		leaves:    make(chan leaveRequest),
		queries:   make(chan roomsRequest),
		resets:    make(chan resetDue),
		finished:  make(chan struct{}),
	}
}

// Run processes requests until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	sweep := c.opts.Clock.NewTicker(c.opts.SweepInterval)
	defer sweep.Stop()
	defer close(c.finished)

	for {
		select {
		case <-ctx.Done():
			for _, room := range c.rooms {
				room.stopResetTimer()
			}
			return

		case req := <-c.creates:
			req.reply <- c.handleCreate(req.who)

		case req := <-c.joins:
			req.reply <- c.handleJoin(req.who, req.roomID)

		case req := <-c.choices:
			req.reply <- c.handleChoice(req.sessionID, req.choice)

		case req := <-c.readies:
			req.reply <- c.handleReady(req.sessionID)

		case req := <-c.leaves:
			ack := c.handleLeave(req.sessionID, req.disconnect)
			if req.reply != nil {
				req.reply <- ack
			}

		case req := <-c.queries:
			req.reply <- c.summaries()

		case due := <-c.resets:
			c.handleReset(due)

		case now := <-sweep.C():
			c.sweep(now)
		}
	}
}

func roundTrip[Req, Reply any](ctx context.Context, c *Coordinator, requests chan<- Req, req Req, reply <-chan Reply, unavailable Reply) Reply {
	select {
	case requests <- req:
	case <-ctx.Done():
		return unavailable
	case <-c.finished:
		return unavailable
	}

	select {
	case r := <-reply:
		return r
	case <-ctx.Done():
		return unavailable
	}
}

func (c *Coordinator) CreateRoom(ctx context.Context, who Identity) JoinAck {
	reply := make(chan JoinAck, 1)
	return roundTrip(ctx, c, c.creates, createRequest{who: who, reply: reply}, reply, JoinAck{Message: ErrUnavailable.Error()})
}

func (c *Coordinator) JoinRoom(ctx context.Context, who Identity, roomID string) JoinAck {
	reply := make(chan JoinAck, 1)
	return roundTrip(ctx, c, c.joins, joinRequest{who: who, roomID: roomID, reply: reply}, reply, JoinAck{Message: ErrUnavailable.Error()})
}

func (c *Coordinator) MakeChoice(ctx context.Context, sessionID string, choice Choice) Ack {
	reply := make(chan Ack, 1)
	return roundTrip(ctx, c, c.choices, choiceRequest{sessionID: sessionID, choice: choice, reply: reply}, reply, rejected(ErrUnavailable))
}

func (c *Coordinator) PlayerReady(ctx context.Context, sessionID string) Ack {
	reply := make(chan Ack, 1)
	return roundTrip(ctx, c, c.readies, readyRequest{sessionID: sessionID, reply: reply}, reply, rejected(ErrUnavailable))
}

func (c *Coordinator) LeaveRoom(ctx context.Context, sessionID string) Ack {
	reply := make(chan Ack, 1)
	return roundTrip(ctx, c, c.leaves, leaveRequest{sessionID: sessionID, reply: reply}, reply, rejected(ErrUnavailable))
}

// Disconnect removes a session that went away. It does not wait for the
// removal to be processed.
func (c *Coordinator) Disconnect(sessionID string) {
	select {
	case c.leaves <- leaveRequest{sessionID: sessionID, disconnect: true}:
	case <-c.finished:
	}
}

// Rooms lists live rooms, oldest first.
func (c *Coordinator) Rooms(ctx context.Context) []RoomSummary {
	reply := make(chan []RoomSummary, 1)
	return roundTrip(ctx, c, c.queries, roomsRequest{reply: reply}, reply, nil)
}

func rejected(err error) Ack {
	return Ack{Message: err.Error()}
}

func (c *Coordinator) newRoomID() string {
	for {
		id := c.opts.IDs.Generate()
		if _, taken := c.rooms[id]; id != "" && !taken {
			return id
		}
	}
}

func (c *Coordinator) handleCreate(who Identity) JoinAck {
	if _, busy := c.sessions[who.SessionID]; busy {
		return JoinAck{Message: ErrAlreadyInRoom.Error()}
	}

	room := NewRoom(c.newRoomID(), c.transport, c.opts.Clock.Now())

	slot, err := room.AddPlayer(who.SessionID, who.PlayerID, who.Name)
	if err != nil {
		return JoinAck{Message: err.Error()}
	}

	c.rooms[room.ID()] = room
	c.sessions[who.SessionID] = room

	c.log.Debug().Str("room", room.ID()).Str("session", who.SessionID).Msg("ROOMS: Created room")

	room.BroadcastState()

	return JoinAck{Success: true, RoomID: room.ID(), PlayerNumber: slot}
}

func (c *Coordinator) handleJoin(who Identity, roomID string) JoinAck {
	roomID = strings.ToUpper(guard.SanitizeInput(roomID))

	room, ok := c.rooms[roomID]
	if !ok {
		return JoinAck{Message: ErrRoomNotFound.Error()}
	}

	if _, busy := c.sessions[who.SessionID]; busy {
		return JoinAck{Message: ErrAlreadyInRoom.Error()}
	}

	if !guard.ValidateRoom(room.ID(), append(room.SessionIDs(), who.SessionID)) {
		return JoinAck{Message: ErrRoomIntegrity.Error()}
	}

	slot, err := room.AddPlayer(who.SessionID, who.PlayerID, who.Name)
	if err != nil {
		return JoinAck{Message: err.Error()}
	}

	c.sessions[who.SessionID] = room

	c.log.Debug().Str("room", room.ID()).Str("session", who.SessionID).Int("slot", slot).Msg("ROOMS: Player joined")

	if room.Full() && room.Status() == StatusWaiting {
		_ = room.StartGame()
	} else {
		room.BroadcastState()
	}

	return JoinAck{Success: true, RoomID: room.ID(), PlayerNumber: slot}
}

func (c *Coordinator) handleChoice(sessionID string, choice Choice) Ack {
	room, ok := c.sessions[sessionID]
	if !ok {
		return rejected(ErrNotInRoom)
	}

	move, err := c.screen(sessionID, choice)
	if err != nil {
		c.log.Debug().Str("room", room.ID()).Str("session", sessionID).Err(err).Msg("ROOMS: Rejected choice")
		return rejected(err)
	}

	result, err := room.SubmitChoice(sessionID, move)
	if err != nil {
		return rejected(err)
	}

	if result != nil {
		c.afterRound(room, result)
	}

	return Ack{Success: true}
}

// screen runs the abuse checks for a choice before it reaches the room and
// returns the parsed move.
func (c *Coordinator) screen(sessionID string, choice Choice) (Move, error) {
	if !c.guard.CheckRateLimit(sessionID) {
		return "", ErrRateLimited
	}

	move, err := ParseMove(guard.SanitizeInput(choice.Move))
	if err != nil {
		return "", err
	}

	if choice.Gesture != nil && !guard.ValidateGesture(choice.Gesture) {
		return "", ErrMalformedGesture
	}

	signed := choice.Tag != ""
	if c.opts.RequireSignedMoves && (!signed || choice.Nonce == "" || choice.Timestamp == 0) {
		return "", ErrMoveRejected
	}

	if choice.Timestamp != 0 {
		skew := c.opts.Clock.Now().Sub(time.UnixMilli(choice.Timestamp)).Abs()
		if skew > c.guard.ReplayWindow() {
			return "", ErrStaleMove
		}
	}

	if signed && (c.auth == nil || !c.auth.Verify(string(move), choice.Tag, sessionID, choice.Timestamp)) {
		return "", ErrMoveRejected
	}

	if choice.Nonce != "" && c.guard.IsReplay(choice.Nonce, sessionID) {
		return "", ErrReplay
	}

	return move, nil
}

func (c *Coordinator) afterRound(room *Room, result *RoundResult) {
	c.log.Debug().
		Str("room", room.ID()).
		Int("round", result.Round).
		Str("winner", string(result.Winner)).
		Msg("ROOMS: Round resolved")

	c.record(room.outcomes(result.Winner))

	if c.opts.Policy != nil && c.opts.Policy.Finished(room.Scores()) {
		room.Finish()
		room.BroadcastState()

		c.log.Debug().Str("room", room.ID()).Msg("ROOMS: Match finished")

		return
	}

	round := room.Round()
	room.setResetTimer(c.opts.Clock.AfterFunc(c.opts.ResetDelay, func() {
		select {
		case c.resets <- resetDue{room: room, round: round}:
		case <-c.finished:
		}
	}))
}

func (c *Coordinator) handleReset(due resetDue) {
	room, ok := c.rooms[due.room.ID()]
	if !ok || room != due.room || !room.Resolved() || room.Round() != due.round {
		return
	}

	room.resetTimer = nil
	room.ResetRound()
}

func (c *Coordinator) record(outcomes []playerOutcome) {
	if c.opts.Recorder == nil {
		return
	}

	for _, o := range outcomes {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.RecordTimeout)
			defer cancel()

			if err := c.opts.Recorder.RecordResult(ctx, o.player, o.outcome); err != nil {
				c.log.Warn().Err(err).Str("player", o.player).Msg("STATS: Result not recorded")
			}
		}()
	}
}

func (c *Coordinator) handleReady(sessionID string) Ack {
	room, ok := c.sessions[sessionID]
	if !ok {
		return rejected(ErrNotInRoom)
	}

	if err := room.SetReady(sessionID); err != nil {
		return rejected(err)
	}

	return Ack{Success: true}
}

func (c *Coordinator) handleLeave(sessionID string, disconnect bool) Ack {
	if disconnect {
		c.guard.Forget(sessionID)
	}

	room, ok := c.sessions[sessionID]
	if !ok {
		return rejected(ErrNotInRoom)
	}
	delete(c.sessions, sessionID)

	if room.RemovePlayer(sessionID) {
		c.removeRoom(room)
		return Ack{Success: true}
	}

	room.Pause()
	room.BroadcastState()

	c.log.Debug().Str("room", room.ID()).Str("session", sessionID).Msg("ROOMS: Player left")

	return Ack{Success: true}
}

func (c *Coordinator) removeRoom(room *Room) {
	room.stopResetTimer()
	delete(c.rooms, room.ID())

	c.log.Debug().Str("room", room.ID()).Msg("ROOMS: Removed room")
}

// sweep drops rooms that have been empty past the idle threshold.
func (c *Coordinator) sweep(now time.Time) {
	swept := 0
	for id, room := range c.rooms {
		if room.Empty() && now.Sub(room.CreatedAt()) > c.opts.IdleTimeout {
			room.stopResetTimer()
			delete(c.rooms, id)
			swept++
		}
	}

	pruned := c.guard.Prune()

	if swept > 0 || pruned > 0 {
		c.log.Info().Int("rooms", swept).Int("guard_entries", pruned).Msg("ROOMS: Swept idle state")
	}
}

func (c *Coordinator) summaries() []RoomSummary {
	out := make([]RoomSummary, 0, len(c.rooms))
	for _, room := range c.rooms {
		out = append(out, RoomSummary{
			ID:        room.ID(),
			Players:   room.Len(),
			Status:    room.Status(),
			CreatedAt: room.CreatedAt(),
		})
	}

	slices.SortFunc(out, func(a, b RoomSummary) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return out
}
