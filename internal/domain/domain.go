// Package domain holds contracts shared by every domain package: the
// transaction boundary and the error kinds that cross package lines.
package domain

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// ErrConflict reports that a store-level atomic primitive lost a race: a
// serialization failure, a deadlock, a unique-key collision, or a conditional
// decrement refused after validation. Callers may retry the whole unit of work.
var ErrConflict = errors.New("consistency conflict")

// Transactor runs fn inside a single store transaction. The transaction is
// carried by the context passed to fn; repositories called with that context
// join it. A nested InTx call joins the outer transaction. If fn returns an
// error every write made through the context is rolled back.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ValidationError reports a malformed or out-of-range input value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid is a shorthand constructor for ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
