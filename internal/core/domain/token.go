package domain

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeyAlphabet is uppercase alphanumerics without I, O, 0 and 1.
	KeyAlphabet      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	KeySuffixLength  = 8
	AliasAlphabet    = "abcdefghjkmnpqrstuvwxyz23456789"
	AliasTokenLength = 8

	// MaxGenerateAttempts bounds collision retries before a store gives up
	// with ErrKeySpaceExhausted.
	MaxGenerateAttempts = 32
)

// TokenSource yields random token material. Stores regenerate on
// collision, so a source only needs to be random, not unique.
type TokenSource func() (string, error)

func KeySuffixSource() TokenSource {
	return func() (string, error) {
		return RandomString(rand.Reader, KeyAlphabet, KeySuffixLength)
	}
}

func AliasTokenSource() TokenSource {
	return func() (string, error) {
		return RandomString(rand.Reader, AliasAlphabet, AliasTokenLength)
	}
}

// RandomString draws n symbols from alphabet using r. Bytes that would bias
// the distribution are rejected and redrawn.
func RandomString(r io.Reader, alphabet string, n int) (string, error) {
	if len(alphabet) == 0 || len(alphabet) > 256 {
		return "", errors.New("alphabet must hold 1..256 symbols")
	}
	limit := 256 - 256%len(alphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// FormatKey builds the "{TYPE}-{suffix}" key string.
func FormatKey(t KeyType, suffix string) string {
	return t.Prefix() + "-" + suffix
}

// MaskKey hides everything but the type prefix and two suffix characters,
// for logs and emitted events.
func MaskKey(key string) string {
	prefix, suffix, ok := strings.Cut(key, "-")
	if !ok {
		if len(key) <= 2 {
			return strings.Repeat("*", len(key))
		}
		return key[:2] + strings.Repeat("*", len(key)-2)
	}
	if len(suffix) <= 2 {
		return prefix + "-" + strings.Repeat("*", len(suffix))
	}
	return prefix + "-" + suffix[:2] + strings.Repeat("*", len(suffix)-2)
}
