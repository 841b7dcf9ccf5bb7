package credentials

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultLength      = 8
	DefaultMaxAttempts = 10
)

// ErrExhausted: за MaxAttempts попыток не нашлось свободного кода.
var ErrExhausted = errors.New("credentials: retry attempts exhausted")

// TakenFunc сообщает, занят ли уже код.
type TakenFunc func(ctx context.Context, code string) (bool, error)

// Generator выдаёт код доступа и NFC-код при создании абонемента.
type Generator struct {
	Alphabet    string
	Length      int
	MaxAttempts int
	Rand        io.Reader
}

func New(maxAttempts int) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{
		Alphabet:    DefaultAlphabet,
		Length:      DefaultLength,
		MaxAttempts: maxAttempts,
		Rand:        rand.Reader,
	}
}

// AccessCode: короткий код для ручного ввода/QR.
func (g *Generator) AccessCode(ctx context.Context, taken TakenFunc) (string, error) {
	return g.unique(ctx, "access code", g.randomCode, taken)
}

// NFCCode: 32 hex-символа из случайного 128-битного UUID.
func (g *Generator) NFCCode(ctx context.Context, taken TakenFunc) (string, error) {
	return g.unique(ctx, "nfc code", g.randomNFC, taken)
}

func (g *Generator) unique(ctx context.Context, what string, next func() (string, error), taken TakenFunc) (string, error) {
	for attempt := 0; attempt < g.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := next()
		if err != nil {
			return "", fmt.Errorf("generate %s: %w", what, err)
		}
		busy, err := taken(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check %s: %w", what, err)
		}
		if !busy {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: %s after %d attempts", ErrExhausted, what, g.MaxAttempts)
}

func (g *Generator) randomCode() (string, error) {
	size := big.NewInt(int64(len(g.Alphabet)))
	var b strings.Builder
	b.Grow(g.Length)
	for i := 0; i < g.Length; i++ {
		n, err := rand.Int(g.Rand, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(g.Alphabet[n.Int64()])
	}
	return b.String(), nil
}

func (g *Generator) randomNFC() (string, error) {
	u, err := uuid.NewRandomFromReader(g.Rand)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(u.String(), "-", ""), nil
}
