// Package codegen produces short human-entry codes: exam codes and user unique ids.
package codegen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// MaxAttempts bounds the collision retry loop in Unique.
const MaxAttempts = 5

// ErrExhausted is returned when Unique cannot find a free code.
var ErrExhausted = errors.New("codegen: no free code after retries")

// Generate returns prefix followed by length uppercase alphanumerics.
// It makes no uniqueness promise.
func Generate(prefix string, length int) string {
	if length <= 0 {
		return prefix
	}
	buf := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic(fmt.Sprintf("codegen: read random: %v", err))
		}
		buf[i] = alphabet[n.Int64()]
	}
	return prefix + string(buf)
}

// ExistsFunc reports whether code is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Unique generates codes until exists reports a free one, up to MaxAttempts.
func Unique(ctx context.Context, prefix string, length int, exists ExistsFunc) (string, error) {
	for i := 0; i < MaxAttempts; i++ {
		code := Generate(prefix, length)
		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrExhausted
}
