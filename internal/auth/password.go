// Package auth holds credential handling: password hashes, account name
// rules and API keys.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	defaultMemory     = 64 * 1024
	defaultIterations = 3
	defaultThreads    = 1
	defaultSaltLength = 16
	defaultKeyLength  = 32

	minPasswordLength = 8
	maxPasswordLength = 128
)

var (
	ErrInvalidHash = errors.New("invalid argon2id hash format")

	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)
)

func ValidateUsername(name string) error {
	if !usernameRe.MatchString(name) {
		return errors.New("username must be 3-32 letters, digits, '.', '_' or '-'")
	}
	return nil
}

func ValidatePassword(password string) error {
	if n := len(password); n < minPasswordLength || n > maxPasswordLength {
		return fmt.Errorf("password must be %d-%d characters", minPasswordLength, maxPasswordLength)
	}
	return nil
}

// HashPassword returns an argon2id hash in PHC string format.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	salt := make([]byte, defaultSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	sum := argon2.IDKey([]byte(password), salt, defaultIterations, defaultMemory, defaultThreads, defaultKeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		defaultMemory,
		defaultIterations,
		defaultThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

type argon2idHash struct {
	m    uint32
	t    uint32
	p    uint8
	salt []byte
	sum  []byte
}

func parseHash(phc string) (*argon2idHash, error) {
	parts := strings.Split(phc, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, ErrInvalidHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("unsupported argon2id version: %s", parts[2])
	}

	h := &argon2idHash{}
	for _, param := range strings.Split(parts[3], ",") {
		key, val, ok := strings.Cut(param, "=")
		if !ok {
			return nil, ErrInvalidHash
		}
		var bits int
		var dst func(uint64)
		switch key {
		case "m":
			bits, dst = 32, func(v uint64) { h.m = uint32(v) }
		case "t":
			bits, dst = 32, func(v uint64) { h.t = uint32(v) }
		case "p":
			bits, dst = 8, func(v uint64) { h.p = uint8(v) }
		default:
			return nil, ErrInvalidHash
		}
		n, err := strconv.ParseUint(val, 10, bits)
		if err != nil {
			return nil, fmt.Errorf("invalid argon2id %s: %w", key, err)
		}
		dst(n)
	}
	if h.m == 0 || h.t == 0 || h.p == 0 {
		return nil, ErrInvalidHash
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, errors.New("invalid argon2id salt")
	}
	if h.sum, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, errors.New("invalid argon2id hash")
	}
	return h, nil
}

// VerifyPassword reports whether password matches the stored hash. An empty
// or malformed hash never matches.
func VerifyPassword(hash, password string) bool {
	h, err := parseHash(hash)
	if err != nil {
		return false
	}
	sum := argon2.IDKey([]byte(password), h.salt, h.t, h.m, h.p, uint32(len(h.sum)))
	return subtle.ConstantTimeCompare(sum, h.sum) == 1
}
