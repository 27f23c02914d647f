// Package ordernum generates human-readable order numbers of the form
// ORD-YYYYMMDD-XXXXXXXX, where the date is the UTC day of generation and the
// suffix is eight random upper-case alphanumerics.
package ordernum

import (
	"crypto/rand"
	"io"
	"regexp"
	"time"

	"github.com/go-faster/errors"
)

const (
	prefix     = "ORD-"
	dateLayout = "20060102"
	suffixLen  = 8
	alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Largest multiple of len(alphabet) that fits in a byte; bytes at or above
	// it are rejected to keep the draw uniform.
	maxByte = 252
)

var pattern = regexp.MustCompile(`^ORD-\d{8}-[A-Z0-9]{8}$`)

// Valid reports whether s is a well-formed order number.
func Valid(s string) bool {
	return pattern.MatchString(s)
}

// Generator draws order numbers from a clock and an entropy source. It holds
// no state between calls.
type Generator struct {
	now     func() time.Time
	entropy io.Reader
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithEntropy overrides the random source.
func WithEntropy(r io.Reader) Option {
	return func(g *Generator) { g.entropy = r }
}

// NewGenerator returns a Generator using the wall clock and crypto/rand.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{now: time.Now, entropy: rand.Reader}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Next returns a fresh order number for the current UTC day.
func (g *Generator) Next() (string, error) {
	now := g.now().UTC()
	suffix, err := g.suffix()
	if err != nil {
		return "", err
	}
	return prefix + now.Format(dateLayout) + "-" + suffix, nil
}

func (g *Generator) suffix() (string, error) {
	out := make([]byte, 0, suffixLen)
	buf := make([]byte, suffixLen*2)
	for len(out) < suffixLen {
		if _, err := io.ReadFull(g.entropy, buf); err != nil {
			return "", errors.Wrap(err, "read entropy")
		}
		for _, b := range buf {
			if b >= maxByte {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == suffixLen {
				break
			}
		}
	}
	return string(out), nil
}
