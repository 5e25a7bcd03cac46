/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package guard holds the abuse-resistance checks applied to player actions
// before they reach a room.
package guard

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
)

// Authenticator tags moves with a server-held secret so a move can be traced
// back to the player and time it was issued for. It keeps no state between
// calls.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Sign returns the hex SHA-256 of move, playerID, timestamp and the secret,
// concatenated in that order.
func (a *Authenticator) Sign(move, playerID string, timestamp int64) string {
	h := sha256.New()
	h.Write([]byte(move))
	h.Write([]byte(playerID))
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	h.Write(a.secret)

	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the tag and compares it in constant time.
func (a *Authenticator) Verify(move, tag, playerID string, timestamp int64) bool {
	want := a.Sign(move, playerID, timestamp)

	return subtle.ConstantTimeCompare([]byte(want), []byte(tag)) == 1
}
