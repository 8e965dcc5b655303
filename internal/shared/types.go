package shared

import (
	"crypto/rand"
	"encoding/hex"
)

const ConnectionIDPrefix = "conn_"

func NewID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

func NewConnectionID() string {
	return NewID(ConnectionIDPrefix)
}
