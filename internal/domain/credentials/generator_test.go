package credentials

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type takenSet map[string]bool

func (s takenSet) check(_ context.Context, code string) (bool, error) {
	return s[code], nil
}

func TestAccessCode_Format(t *testing.T) {
	g := New(0)
	assert.Equal(t, DefaultMaxAttempts, g.MaxAttempts)

	re := regexp.MustCompile(`^[A-Z0-9]{8}$`)
	seen := takenSet{}
	for i := 0; i < 200; i++ {
		code, err := g.AccessCode(context.Background(), seen.check)
		require.NoError(t, err)
		assert.Regexp(t, re, code)
		assert.False(t, seen[code])
		seen[code] = true
	}
}

func TestNFCCode_Format(t *testing.T) {
	g := New(3)
	re := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := takenSet{}
	for i := 0; i < 200; i++ {
		code, err := g.NFCCode(context.Background(), seen.check)
		require.NoError(t, err)
		assert.Regexp(t, re, code)
		assert.False(t, seen[code])
		seen[code] = true
	}
}

func TestAccessCode_SmallAlphabetRetriesUntilUnique(t *testing.T) {
	// 2 символа из "AB": всего 4 кода, коллизии почти на каждом шаге
	g := &Generator{Alphabet: "AB", Length: 2, MaxAttempts: 500, Rand: New(0).Rand}
	seen := takenSet{}
	for i := 0; i < 4; i++ {
		code, err := g.AccessCode(context.Background(), seen.check)
		require.NoError(t, err)
		require.False(t, seen[code], "duplicate %s", code)
		seen[code] = true
	}
	assert.Len(t, seen, 4)

	_, err := g.AccessCode(context.Background(), seen.check)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestNFCCode_ExhaustedWithFixedRandomness(t *testing.T) {
	// одинаковый источник случайности даёт один и тот же UUID
	fixed := bytes.Repeat([]byte{0x42}, 16*5)
	g := &Generator{Alphabet: DefaultAlphabet, Length: 8, MaxAttempts: 3, Rand: bytes.NewReader(fixed)}

	first, err := g.NFCCode(context.Background(), takenSet{}.check)
	require.NoError(t, err)

	_, err = g.NFCCode(context.Background(), takenSet{first: true}.check)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestAccessCode_PropagatesLookupError(t *testing.T) {
	boom := errors.New("db down")
	g := New(5)
	_, err := g.AccessCode(context.Background(), func(context.Context, string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestAccessCode_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(5).AccessCode(ctx, takenSet{}.check)
	assert.ErrorIs(t, err, context.Canceled)
}
