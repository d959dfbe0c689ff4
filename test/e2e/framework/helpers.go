package framework

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"time"
)

// TimestampLayout is the wire shape of upload creation timestamps:
// ISO-8601 UTC with exactly seven fractional-second digits and a Z suffix.
const TimestampLayout = "2006-01-02T15:04:05.0000000Z"

// Timestamp returns the current time in the wire's timestamp shape.
func Timestamp() string {
	return time.Now().UTC().Format(TimestampLayout)
}

// RandomPayload returns n pseudo-random bytes from a fixed seed, so failing
// tests reproduce with identical data.
func RandomPayload(n int) []byte {
	rng := rand.New(rand.NewSource(int64(n)))
	data := make([]byte, n)
	rng.Read(data)
	return data
}

// SHA256Hex computes the lowercase hex digest the node reports as checksum.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
