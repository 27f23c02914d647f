package ordernum

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

// ErrExhausted is returned when every redraw collided with a number already
// issued today.
var ErrExhausted = errors.New("order number redraws exhausted")

// IssuerConfig sizes the per-day filter.
type IssuerConfig struct {
	// ExpectedPerDay is the anticipated number of orders per day.
	ExpectedPerDay uint
	// FalsePositiveRate is the filter's target false positive probability.
	FalsePositiveRate float64
	// MaxRedraws bounds the redraws on a probable repeat.
	MaxRedraws int
}

// Issuer hands out order numbers and redraws when the per-day bloom filter
// says a number was probably issued already by this process. The store's
// unique constraint remains the final guard across processes.
type Issuer struct {
	gen *Generator
	cfg IssuerConfig

	mu     sync.Mutex
	day    string
	filter *bloom.BloomFilter
}

// NewIssuer wraps gen with a per-day filter.
func NewIssuer(gen *Generator, cfg IssuerConfig) *Issuer {
	if cfg.ExpectedPerDay == 0 {
		cfg.ExpectedPerDay = 100_000
	}
	if cfg.FalsePositiveRate <= 0 {
		cfg.FalsePositiveRate = 0.001
	}
	if cfg.MaxRedraws <= 0 {
		cfg.MaxRedraws = 5
	}
	return &Issuer{gen: gen, cfg: cfg}
}

// Issue returns an order number not seen by this issuer today.
func (i *Issuer) Issue() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for range i.cfg.MaxRedraws {
		n, err := i.gen.Next()
		if err != nil {
			return "", err
		}
		i.rotate(n)
		if !i.filter.TestAndAddString(n) {
			return n, nil
		}
	}
	return "", ErrExhausted
}

// rotate resets the filter when n belongs to a new UTC day. The date segment
// sits between the prefix and the suffix.
func (i *Issuer) rotate(n string) {
	day := n[len(prefix) : len(prefix)+len(dateLayout)]
	if i.filter != nil && day == i.day {
		return
	}
	i.day = day
	i.filter = bloom.NewWithEstimates(i.cfg.ExpectedPerDay, i.cfg.FalsePositiveRate)
}
