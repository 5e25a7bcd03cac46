/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package stats keeps per-player win/loss/draw tallies.
package stats

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("player-not-found")
	ErrInvalidOutcome = errors.New("invalid-outcome")
	ErrUnexpected     = errors.New("unexpected-database-error")
)

type Outcome string

const (
	Win  Outcome = "win"
	Loss Outcome = "loss"
	Draw Outcome = "draw"
)

func (o Outcome) Valid() bool {
	switch o {
	case Win, Loss, Draw:
		return true
	}
	return false
}

// Tally is one player's record.
type Tally struct {
	PlayerID   string    `json:"playerId"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	Draws      int       `json:"draws"`
	TotalGames int       `json:"totalGames"`
	LastPlayed time.Time `json:"lastPlayed"`
}

// WinRate is the percentage of games won.
func (t Tally) WinRate() float64 {
	if t.TotalGames == 0 {
		return 0
	}
	return float64(t.Wins) / float64(t.TotalGames) * 100
}

func (t *Tally) add(o Outcome, at time.Time) {
	switch o {
	case Win:
		t.Wins++
	case Loss:
		t.Losses++
	case Draw:
		t.Draws++
	}
	t.TotalGames++
	t.LastPlayed = at
}

type Store interface {
	// Record adds one outcome to playerID's tally and returns the new tally.
	Record(ctx context.Context, playerID string, outcome Outcome) (Tally, error)
	Get(ctx context.Context, playerID string) (Tally, error)
	Close()
}
