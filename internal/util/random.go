package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

// PairingCodeAlphabet avoids characters that read ambiguously on a sticker
// (no O/0, I/1/l).
const PairingCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const PairingCodeLength = 8

// NewPairingCode draws a short human-enterable code from the ambiguity-free
// alphabet using the crypto RNG.
func NewPairingCode() (string, error) {
	max := big.NewInt(int64(len(PairingCodeAlphabet)))
	code := make([]byte, PairingCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating pairing code: %w", err)
		}
		code[i] = PairingCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// NewDeviceToken returns a 256-bit URL-safe plaintext device credential.
func NewDeviceToken() (string, error) {
	return urlSafeToken(32)
}

// NewLeaseToken returns a 128-bit URL-safe task lease capability.
func NewLeaseToken() (string, error) {
	return urlSafeToken(16)
}

// NewSnapshotID returns a 40-char opaque hex identifier.
func NewSnapshotID() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating snapshot id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken is the canonical storage form of any opaque credential: the
// lowercase hex SHA-256 of the plaintext.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func urlSafeToken(numBytes int) (string, error) {
	buf := make([]byte, numBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
