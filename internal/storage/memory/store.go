// Package memory implements the domain repositories in process memory. It
// backs the service when no database is configured. InTx serializes writers
// and works on a private copy of the tables, so readers outside the
// transaction only ever see committed state.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/xenking/rihla-backoffice/internal/domain"
	"github.com/xenking/rihla-backoffice/internal/domain/auth"
	"github.com/xenking/rihla-backoffice/internal/domain/brand"
	"github.com/xenking/rihla-backoffice/internal/domain/customer"
	"github.com/xenking/rihla-backoffice/internal/domain/order"
	"github.com/xenking/rihla-backoffice/internal/domain/product"
)

var _ domain.Transactor = (*Store)(nil)

type tables struct {
	brands    map[string]brand.Brand
	products  map[string]product.Product
	customers map[string]customer.Customer // by e-mail
	orders    map[string]order.Order
	numbers   map[string]string          // order number -> id
	apiKeys   map[string]auth.APIKeyInfo // by hash
}

func (t tables) clone() tables {
	return tables{
		brands:    maps.Clone(t.brands),
		products:  maps.Clone(t.products),
		customers: maps.Clone(t.customers),
		orders:    maps.Clone(t.orders),
		numbers:   maps.Clone(t.numbers),
		apiKeys:   maps.Clone(t.apiKeys),
	}
}

// Store holds every table. Repositories are views over one Store so they
// share its transactions.
type Store struct {
	// writer is held for the whole of a transaction or a standalone write.
	writer sync.Mutex
	mu     sync.RWMutex
	t      tables
}

// New returns an empty Store.
func New() *Store {
	return &Store{t: tables{
		brands:    make(map[string]brand.Brand),
		products:  make(map[string]product.Product),
		customers: make(map[string]customer.Customer),
		orders:    make(map[string]order.Order),
		numbers:   make(map[string]string),
		apiKeys:   make(map[string]auth.APIKeyInfo),
	}}
}

type txKey struct{}

// txState is the working copy of the tables owned by one transaction.
type txState struct {
	owner *Store
	t     tables
}

func (s *Store) txFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	if st == nil || st.owner != s {
		return nil
	}
	return st
}

// InTx runs fn with exclusive write access on a copy of the tables. The copy
// replaces the committed tables only when fn succeeds. Nested calls join the
// outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.writer.Lock()
	defer s.writer.Unlock()

	s.mu.RLock()
	st := &txState{owner: s, t: s.t.clone()}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		return err
	}

	s.mu.Lock()
	s.t = st.t
	s.mu.Unlock()
	return nil
}

// write applies fn to the tables, joining the transaction in ctx if any.
func (s *Store) write(ctx context.Context, fn func(t *tables) error) error {
	if st := s.txFrom(ctx); st != nil {
		return fn(&st.t)
	}
	s.writer.Lock()
	defer s.writer.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.t)
}

// read gives fn the transaction's tables when ctx carries one and the
// committed tables otherwise.
func (s *Store) read(ctx context.Context, fn func(t *tables)) {
	if st := s.txFrom(ctx); st != nil {
		fn(&st.t)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.t)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Products returns the product and stock repository.
func (s *Store) Products() *Products { return &Products{s: s} }

// Orders returns the order repository.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// Customers returns the customer repository.
func (s *Store) Customers() *Customers { return &Customers{s: s} }

// Brands returns the brand directory.
func (s *Store) Brands() *Brands { return &Brands{s: s} }

// APIKeys returns the API key repository.
func (s *Store) APIKeys() *APIKeys { return &APIKeys{s: s} }
