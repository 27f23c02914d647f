package ordernum

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// repeatReader yields the same byte sequence forever.
type repeatReader struct {
	seq []byte
	pos int
}

func (r *repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.seq[r.pos%len(r.seq)]
		r.pos++
	}
	return len(p), nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy unavailable")
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerator_Format(t *testing.T) {
	g := NewGenerator()
	for range 100 {
		n, err := g.Next()
		require.NoError(t, err)
		assert.True(t, Valid(n), "malformed order number %q", n)
	}
}

func TestGenerator_UsesUTCDate(t *testing.T) {
	// 23:30 at UTC-5 is already the next day in UTC.
	loc := time.FixedZone("EST", -5*60*60)
	g := NewGenerator(WithClock(fixedClock(time.Date(2026, 3, 9, 23, 30, 0, 0, loc))))

	n, err := g.Next()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(n, "ORD-20260310-"), n)
}

func TestGenerator_RejectsBiasedBytes(t *testing.T) {
	// 0xFF is above the rejection threshold; 0 and 1 map to A and B.
	g := NewGenerator(
		WithClock(fixedClock(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))),
		WithEntropy(&repeatReader{seq: []byte{0xFF, 0, 1}}),
	)

	n, err := g.Next()
	require.NoError(t, err)
	assert.Equal(t, "ORD-20260102-ABABABAB", n)
}

func TestGenerator_EntropyFailure(t *testing.T) {
	g := NewGenerator(WithEntropy(failingReader{}))
	_, err := g.Next()
	require.Error(t, err)
}

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ORD-20260115-A1B2C3D4", true},
		{"ORD-20260115-a1b2c3d4", false},
		{"ORD-2026011-A1B2C3D4", false},
		{"ORD-20260115-A1B2C3D", false},
		{"INV-20260115-A1B2C3D4", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Valid(tt.in), tt.in)
	}
}

func TestIssuer_RedrawsOnRepeat(t *testing.T) {
	day := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(
		WithClock(fixedClock(day)),
		WithEntropy(&repeatReader{seq: bytes.Repeat([]byte{7}, 16)}),
	)
	iss := NewIssuer(g, IssuerConfig{MaxRedraws: 3})

	first, err := iss.Issue()
	require.NoError(t, err)
	assert.True(t, Valid(first))

	// Constant entropy yields the same number every draw.
	_, err = iss.Issue()
	require.ErrorIs(t, err, ErrExhausted)
}

func TestIssuer_ResetsOnNewDay(t *testing.T) {
	now := time.Date(2026, 5, 1, 23, 59, 0, 0, time.UTC)
	g := NewGenerator(
		WithClock(func() time.Time { return now }),
		WithEntropy(&repeatReader{seq: []byte{3}}),
	)
	iss := NewIssuer(g, IssuerConfig{})

	a, err := iss.Issue()
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	b, err := iss.Issue()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(b, "ORD-20260502-"))
}

func TestIssuer_DistinctNumbers(t *testing.T) {
	iss := NewIssuer(NewGenerator(), IssuerConfig{ExpectedPerDay: 10_000})
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		n, err := iss.Issue()
		require.NoError(t, err)
		_, dup := seen[n]
		require.False(t, dup, "duplicate %s", n)
		seen[n] = struct{}{}
	}
}
