package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

var ErrTooManyArgs = errors.New("too many arguments. expected only 1")

const (
	DefaultTokenLength = 32 // 256 bits
)

type TokenPair struct {
	Token string // value handed to the operator
	Hash  string // value in storage
}

func generateToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultTokenLength
	}

	bytes := make([]byte, byteLength)

	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// GenerateToken returns a random URL-safe token without a hash, for values
// that are never looked up again (refresh tokens from the local provider).
func GenerateToken(byteLength ...int) (string, error) {
	if len(byteLength) > 1 {
		return "", ErrTooManyArgs
	}
	length := DefaultTokenLength
	if len(byteLength) > 0 && byteLength[0] > 0 {
		length = byteLength[0]
	}
	return generateToken(length)
}

// GenerateHashedToken returns a fresh token together with the hash to persist.
func GenerateHashedToken(byteLength ...int) (*TokenPair, error) {
	token, err := GenerateToken(byteLength...)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		Token: token,
		Hash:  HashToken(token),
	}, nil
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
