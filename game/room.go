/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import (
	"fmt"
	"slices"
	"time"
)

// MaxPlayers is the number of seats in a room.
const MaxPlayers = 2

type Status int

const (
	StatusWaiting Status = iota
	StatusPlaying
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusFinished:
		return "finished"
	default:
		return "waiting"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "waiting":
		*s = StatusWaiting
	case "playing":
		*s = StatusPlaying
	case "finished":
		*s = StatusFinished
	default:
		return fmt.Errorf("unknown room status %q", b)
	}
	return nil
}

// Scores are the running tallies of a match.
type Scores struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
	Ties    int `json:"ties"`
}

// RoundResult describes the most recently resolved round.
type RoundResult struct {
	Round   int    `json:"round"`
	Player1 Move   `json:"player1"`
	Player2 Move   `json:"player2"`
	Winner  Winner `json:"winner"`
}

// PlayerView is a player entry as clients see it.
type PlayerView struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Ready  bool   `json:"ready"`
	Name   string `json:"name,omitempty"`
}

// Snapshot is the room state broadcast on every change.
type Snapshot struct {
	RoomID    string       `json:"roomId"`
	Status    Status       `json:"status"`
	Round     int          `json:"round"`
	Scores    Scores       `json:"scores"`
	Players   []PlayerView `json:"players"`
	Pending   int          `json:"pending"`
	LastRound *RoundResult `json:"lastRound,omitempty"`
}

type member struct {
	session string
	player  string // stable identity for stats, falls back to session
	name    string
	slot    int
	ready   bool
}

// Room holds one two-player match. It is not safe for concurrent use; the
// coordinator loop is its only caller.
type Room struct {
	id        string
	transport Transport
	createdAt time.Time

	players  []*member // sorted by slot
	assigned int       // highest slot handed out
	status   Status
	round    int
	pending  map[string]Move
	scores   Scores
	last     *RoundResult

	// set between resolution and the deferred reset
	resolved   bool
	resetTimer Timer
}

func NewRoom(id string, transport Transport, createdAt time.Time) *Room {
	return &Room{
		id:        id,
		transport: transport,
		createdAt: createdAt,
		players:   make([]*member, 0, MaxPlayers),
		status:    StatusWaiting,
		round:     1,
		pending:   make(map[string]Move, MaxPlayers),
	}
}

func (r *Room) ID() string           { return r.id }
func (r *Room) Status() Status       { return r.status }
func (r *Room) Round() int           { return r.round }
func (r *Room) Scores() Scores       { return r.scores }
func (r *Room) CreatedAt() time.Time { return r.createdAt }
func (r *Room) Len() int             { return len(r.players) }
func (r *Room) Empty() bool          { return len(r.players) == 0 }
func (r *Room) Full() bool           { return len(r.players) >= MaxPlayers }
func (r *Room) PendingLen() int      { return len(r.pending) }
func (r *Room) Resolved() bool       { return r.resolved }

// SessionIDs returns the member sessions in slot order.
func (r *Room) SessionIDs() []string {
	ids := make([]string, 0, len(r.players))
	for _, m := range r.players {
		ids = append(ids, m.session)
	}
	return ids
}

func (r *Room) member(session string) *member {
	for _, m := range r.players {
		if m.session == session {
			return m
		}
	}
	return nil
}

func (r *Room) Has(session string) bool {
	return r.member(session) != nil
}

// AddPlayer seats session in the next unused slot and returns its number.
// Slots are never handed out twice, so once both have been taken the room
// stays closed to new players even after someone leaves.
// player is the stable identity used for stats; when empty the session is used.
func (r *Room) AddPlayer(session, player, name string) (int, error) {
	if r.Has(session) {
		return 0, ErrAlreadyInRoom
	}
	if r.Full() || r.assigned >= MaxPlayers {
		return 0, ErrRoomFull
	}

	r.assigned++
	slot := r.assigned

	if player == "" {
		player = session
	}

	r.players = append(r.players, &member{
		session: session,
		player:  player,
		name:    name,
		slot:    slot,
	})

	return slot, nil
}

// RemovePlayer drops session and its pending choice. It reports whether the
// room is now empty. Remaining slot numbers are left alone.
func (r *Room) RemovePlayer(session string) bool {
	r.players = slices.DeleteFunc(r.players, func(m *member) bool {
		return m.session == session
	})
	delete(r.pending, session)

	return r.Empty()
}

// StartGame moves a full room into play and broadcasts.
func (r *Room) StartGame() error {
	if len(r.players) != MaxPlayers {
		return ErrNeedTwoPlayers
	}

	r.status = StatusPlaying
	r.BroadcastState()

	return nil
}

// Pause returns a playing room to waiting after a player left. Choices for
// the open round are dropped; a result still on display is folded into the
// next round without a broadcast.
func (r *Room) Pause() {
	if r.status != StatusPlaying {
		return
	}
	if r.resolved {
		r.stopResetTimer()
		r.clearRound()
	} else {
		clear(r.pending)
	}
	r.status = StatusWaiting
}

// Finish marks the match over. Pending choices are dropped.
func (r *Room) Finish() {
	r.status = StatusFinished
	r.resolved = false
	clear(r.pending)
}

func (r *Room) SetReady(session string) error {
	m := r.member(session)
	if m == nil {
		return ErrNotInRoom
	}

	m.ready = true
	r.BroadcastState()

	return nil
}

// SubmitChoice records the session's move for the current round. A second
// submission before resolution replaces the first. When both players have
// chosen the round is evaluated and the result returned.
func (r *Room) SubmitChoice(session string, move Move) (*RoundResult, error) {
	if r.status != StatusPlaying {
		return nil, ErrNotInProgress
	}
	if !r.Has(session) {
		return nil, ErrNotInRoom
	}
	if r.resolved {
		return nil, ErrRoundResolved
	}
	if !move.Valid() {
		return nil, ErrInvalidMove
	}

	r.pending[session] = move

	if len(r.pending) < MaxPlayers {
		r.BroadcastState()
		return nil, nil
	}

	return r.EvaluateRound(), nil
}

// EvaluateRound scores the two pending choices in slot order and broadcasts
// the result. The choices stay in place until ResetRound.
func (r *Room) EvaluateRound() *RoundResult {
	first := r.pending[r.players[0].session]
	second := r.pending[r.players[1].session]

	winner := Resolve(first, second)
	switch winner {
	case Player1:
		r.scores.Player1++
	case Player2:
		r.scores.Player2++
	default:
		r.scores.Ties++
	}

	r.last = &RoundResult{
		Round:   r.round,
		Player1: first,
		Player2: second,
		Winner:  winner,
	}
	r.resolved = true
	r.BroadcastState()

	return r.last
}

// ResetRound clears the choices, advances the round and broadcasts.
func (r *Room) ResetRound() {
	r.clearRound()
	r.BroadcastState()
}

func (r *Room) clearRound() {
	clear(r.pending)
	r.round++
	r.last = nil
	r.resolved = false
}

type playerOutcome struct {
	player  string
	outcome Outcome
}

// outcomes lists each seated player's stats identity with their result, one
// entry per slot even when both seats share an identity.
func (r *Room) outcomes(w Winner) []playerOutcome {
	out := make([]playerOutcome, 0, len(r.players))
	for _, m := range r.players {
		out = append(out, playerOutcome{player: m.player, outcome: outcomeFor(w, m.slot)})
	}
	return out
}

func (r *Room) Snapshot() Snapshot {
	players := make([]PlayerView, 0, len(r.players))
	for _, m := range r.players {
		players = append(players, PlayerView{
			ID:     m.session,
			Number: m.slot,
			Ready:  m.ready,
			Name:   m.name,
		})
	}

	var last *RoundResult
	if r.last != nil {
		l := *r.last
		last = &l
	}

	return Snapshot{
		RoomID:    r.id,
		Status:    r.status,
		Round:     r.round,
		Scores:    r.scores,
		Players:   players,
		Pending:   len(r.pending),
		LastRound: last,
	}
}

// BroadcastState sends the current snapshot to every member.
func (r *Room) BroadcastState() {
	if r.transport == nil || len(r.players) == 0 {
		return
	}
	r.transport.Broadcast(r.SessionIDs(), EventGameUpdate, r.Snapshot())
}

func (r *Room) setResetTimer(t Timer) {
	r.stopResetTimer()
	r.resetTimer = t
}

func (r *Room) stopResetTimer() {
	if r.resetTimer != nil {
		r.resetTimer.Stop()
		r.resetTimer = nil
	}
}
