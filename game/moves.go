/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import "strings"

// Move is one of the three hand shapes a player can throw.
type Move string

const (
	Rock     Move = "rock"
	Paper    Move = "paper"
	Scissors Move = "scissors"
)

// beats maps each move to the move it defeats.
var beats = map[Move]Move{
	Rock:     Scissors,
	Scissors: Paper,
	Paper:    Rock,
}

// ParseMove normalizes s and returns the matching Move.
func ParseMove(s string) (Move, error) {
	m := Move(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := beats[m]; !ok {
		return "", ErrInvalidMove
	}

	return m, nil
}

func (m Move) Valid() bool {
	_, ok := beats[m]
	return ok
}

// Winner names the side that took a round.
type Winner string

const (
	Player1 Winner = "player1"
	Player2 Winner = "player2"
	Tie     Winner = "tie"
)

// Resolve decides a round between the slot 1 move a and the slot 2 move b.
func Resolve(a, b Move) Winner {
	switch {
	case a == b:
		return Tie
	case beats[a] == b:
		return Player1
	default:
		return Player2
	}
}

// Outcome is a round result from one player's point of view.
type Outcome string

const (
	Win  Outcome = "win"
	Loss Outcome = "loss"
	Draw Outcome = "draw"
)

// outcomeFor converts a round winner into the outcome for the given slot.
func outcomeFor(w Winner, slot int) Outcome {
	switch {
	case w == Tie:
		return Draw
	case (w == Player1) == (slot == 1):
		return Win
	default:
		return Loss
	}
}
