package game

import (
	"crypto/rand"
	"io"
)

const (
	roomCodeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	RoomCodeLength  = 6
)

// Bytes at or above this would favour the first letters of the alphabet.
const roomCodeCutoff = 256 - 256%len(roomCodeLetters)

type codeGenerator struct {
	length int
	src    io.Reader
}

// NewCodeGenerator returns a generator of uppercase alphanumeric room codes
// drawn from crypto/rand.
func NewCodeGenerator(length int) IDGenerator {
	if length <= 0 {
		length = RoomCodeLength
	}
	return codeGenerator{length: length, src: rand.Reader}
}

func (g codeGenerator) Generate() string {
	out := make([]byte, 0, g.length)
	buf := make([]byte, g.length)

	for len(out) < g.length {
		if _, err := io.ReadFull(g.src, buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		for _, b := range buf {
			if int(b) >= roomCodeCutoff {
				continue
			}
			out = append(out, roomCodeLetters[int(b)%len(roomCodeLetters)])
			if len(out) == g.length {
				break
			}
		}
	}

	return string(out)
}
