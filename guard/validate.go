/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package guard

import "strings"

// MaxRoomPlayers bounds the roster accepted by ValidateRoom.
const MaxRoomPlayers = 6

// ValidateRoom rejects an empty room id, a missing roster, an oversized
// roster, or a roster that lists the same session twice.
func ValidateRoom(roomID string, players []string) bool {
	if roomID == "" || players == nil || len(players) > MaxRoomPlayers {
		return false
	}

	seen := make(map[string]struct{}, len(players))
	for _, p := range players {
		if _, dup := seen[p]; dup {
			return false
		}
		seen[p] = struct{}{}
	}

	return true
}

// Landmark is one tracked hand point in normalized coordinates.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Gesture is the landmark set a gesture classifier based its move on.
type Gesture struct {
	Landmarks []Landmark `json:"landmarks"`
}

// ValidateGesture rejects a missing landmark list and any point outside the
// [-1,1] cube. NaN coordinates fail the range check.
func ValidateGesture(g *Gesture) bool {
	if g == nil || g.Landmarks == nil {
		return false
	}

	for _, l := range g.Landmarks {
		if !inUnitRange(l.X) || !inUnitRange(l.Y) || !inUnitRange(l.Z) {
			return false
		}
	}

	return true
}

func inUnitRange(v float64) bool {
	return v >= -1 && v <= 1
}

var stripper = strings.NewReplacer("<", "", ">", "", "{", "", "}", "")

// SanitizeInput strips < > { } and surrounding whitespace from free text.
func SanitizeInput(text string) string {
	return strings.TrimSpace(stripper.Replace(text))
}
