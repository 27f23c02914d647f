package brand

import (
	"context"

	"github.com/go-faster/errors"
)

// UnknownName is recorded on orders whose brand id is not in the directory.
const UnknownName = "Unknown"

// ErrNotFound is returned by a Directory for an unknown brand id.
var ErrNotFound = errors.New("brand not found")

// Brand is a retail label operated by the back-office.
type Brand struct {
	ID   string
	Name string
}

// Directory looks brands up by id.
type Directory interface {
	Lookup(ctx context.Context, id string) (*Brand, error)
}

// ResolveName returns the brand's display name, or UnknownName if the id is
// empty or not in the directory. Only store failures are returned as errors.
func ResolveName(ctx context.Context, dir Directory, id string) (string, error) {
	if id == "" {
		return UnknownName, nil
	}
	b, err := dir.Lookup(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return UnknownName, nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "lookup brand %s", id)
	}
	return b.Name, nil
}
