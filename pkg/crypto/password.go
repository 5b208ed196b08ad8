package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/scrypt"
)

var (
	ErrMalformedHash = errors.New("malformed password hash")
)

type PasswordHandler interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
}

// Rehasher is implemented by handlers that can tell when a stored hash was
// written by an older scheme and should be replaced after a successful Verify.
type Rehasher interface {
	NeedsRehash(hash string) bool
}

// Ensure handlers implement PasswordHandler
var (
	_ PasswordHandler = (*Scrypt)(nil)
	_ PasswordHandler = (*Bcrypt)(nil)
	_ PasswordHandler = (*MigratingHasher)(nil)
	_ Rehasher        = (*MigratingHasher)(nil)
)

const hashDelimiter = ":"

// Scrypt stores passwords as hex(salt) + ":" + hex(key).
type Scrypt struct {
	N          int // CPU/memory cost
	R          int // block size
	P          int // parallelism
	SaltLength int
	KeyLength  int
}

// Create a new Scrypt instance with the parameters every stored hash uses
func NewScrypt() *Scrypt {
	return &Scrypt{
		N:          16384,
		R:          8,
		P:          1,
		SaltLength: 16,
		KeyLength:  64,
	}
}

func (s *Scrypt) Hash(password string) (string, error) {
	salt := make([]byte, s.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(password), salt, s.N, s.R, s.P, s.KeyLength)
	if err != nil {
		return "", fmt.Errorf("failed to derive key: %w", err)
	}

	return hex.EncodeToString(salt) + hashDelimiter + hex.EncodeToString(key), nil
}

func (s *Scrypt) Verify(password, encodedHash string) (bool, error) {
	salt, stored, err := decodeScryptHash(encodedHash)
	if err != nil {
		return false, err
	}

	// A key of the wrong size can never match; skip the derivation.
	if len(stored) != s.KeyLength {
		return false, nil
	}

	computed, err := scrypt.Key([]byte(password), salt, s.N, s.R, s.P, s.KeyLength)
	if err != nil {
		return false, fmt.Errorf("failed to derive key: %w", err)
	}

	return subtle.ConstantTimeCompare(stored, computed) == 1, nil
}

func decodeScryptHash(encodedHash string) ([]byte, []byte, error) {
	saltHex, keyHex, found := strings.Cut(encodedHash, hashDelimiter)
	if !found || saltHex == "" || keyHex == "" {
		return nil, nil, fmt.Errorf("%w: missing delimiter", ErrMalformedHash)
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid salt encoding", ErrMalformedHash)
	}

	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid key encoding", ErrMalformedHash)
	}

	return salt, key, nil
}

// Bcrypt handles the "$2a$..." hashes an earlier reset flow wrote.
type Bcrypt struct {
	Cost int
}

func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{Cost: cost}
}

func (b *Bcrypt) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (b *Bcrypt) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

// IsBcryptHash reports whether hash carries a bcrypt prefix.
func IsBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2")
}

// MigratingHasher writes scrypt hashes and still accepts bcrypt ones, so
// rows written by the old scheme keep working until their next login.
type MigratingHasher struct {
	current *Scrypt
	legacy  *Bcrypt
}

func NewMigratingHasher() *MigratingHasher {
	return &MigratingHasher{
		current: NewScrypt(),
		legacy:  NewBcrypt(bcrypt.DefaultCost),
	}
}

func (m *MigratingHasher) Hash(password string) (string, error) {
	return m.current.Hash(password)
}

func (m *MigratingHasher) Verify(password, hash string) (bool, error) {
	if IsBcryptHash(hash) {
		return m.legacy.Verify(password, hash)
	}
	return m.current.Verify(password, hash)
}

func (m *MigratingHasher) NeedsRehash(hash string) bool {
	return IsBcryptHash(hash)
}
