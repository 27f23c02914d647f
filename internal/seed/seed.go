// Package seed loads a brand and product catalog and writes it to a store.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/rihla-backoffice/internal/domain"
	"github.com/xenking/rihla-backoffice/internal/domain/auth"
	"github.com/xenking/rihla-backoffice/internal/domain/brand"
	"github.com/xenking/rihla-backoffice/internal/domain/product"
)

// Catalog is the seed file layout.
type Catalog struct {
	Brands   []BrandJSON   `json:"brands"`
	Products []ProductJSON `json:"products"`
}

// BrandJSON is a brand entry of the seed file.
type BrandJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProductJSON is a product entry of the seed file.
type ProductJSON struct {
	ID       string          `json:"id"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	BrandID  string          `json:"brand_id"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
}

// Parse decodes a catalog and checks that it is usable.
func Parse(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseBytes decodes an in-memory catalog.
func ParseBytes(data []byte) (*Catalog, error) {
	return Parse(bytes.NewReader(data))
}

// LoadFile reads a catalog from path. Files ending in .gz are decompressed.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	c, err := Parse(r)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return c, nil
}

func (c *Catalog) validate() error {
	brands := make(map[string]struct{}, len(c.Brands))
	for _, b := range c.Brands {
		if b.ID == "" || b.Name == "" {
			return domain.Invalid("brands", "id and name are required")
		}
		brands[b.ID] = struct{}{}
	}

	skus := make(map[string]string, len(c.Products))
	for _, p := range c.Products {
		switch {
		case p.ID == "" || p.SKU == "" || p.Name == "":
			return domain.Invalid("products", "id, sku and name are required")
		case p.Price.IsNegative():
			return domain.Invalid("products", "price of "+p.ID+" is negative")
		case p.Stock < 0:
			return domain.Invalid("products", "stock of "+p.ID+" is negative")
		}
		if p.BrandID != "" {
			if _, ok := brands[p.BrandID]; !ok {
				return domain.Invalid("products", "brand "+p.BrandID+" of "+p.ID+" is not in the catalog")
			}
		}
		if other, ok := skus[p.SKU]; ok {
			return domain.Invalid("products", "sku "+p.SKU+" used by "+other+" and "+p.ID)
		}
		skus[p.SKU] = p.ID
	}
	return nil
}

// Writer is the store surface seeding needs.
type Writer interface {
	UpsertBrand(ctx context.Context, b brand.Brand) error
	UpsertProduct(ctx context.Context, p product.Product) error
	UpsertAPIKey(ctx context.Context, info auth.APIKeyInfo) error
}

// Repos adapts per-entity repositories to Writer.
type Repos struct {
	Brands interface {
		Upsert(ctx context.Context, b brand.Brand) error
	}
	Products interface {
		Upsert(ctx context.Context, p product.Product) error
	}
	APIKeys interface {
		Upsert(ctx context.Context, info auth.APIKeyInfo) error
	}
}

var _ Writer = Repos{}

// UpsertBrand implements Writer.
func (r Repos) UpsertBrand(ctx context.Context, b brand.Brand) error { return r.Brands.Upsert(ctx, b) }

// UpsertProduct implements Writer.
func (r Repos) UpsertProduct(ctx context.Context, p product.Product) error {
	return r.Products.Upsert(ctx, p)
}

// UpsertAPIKey implements Writer.
func (r Repos) UpsertAPIKey(ctx context.Context, info auth.APIKeyInfo) error {
	return r.APIKeys.Upsert(ctx, info)
}

// Apply writes the catalog in one transaction.
func Apply(ctx context.Context, tx domain.Transactor, w Writer, c *Catalog) error {
	lg := zctx.From(ctx)
	return tx.InTx(ctx, func(ctx context.Context) error {
		for _, b := range c.Brands {
			if err := w.UpsertBrand(ctx, brand.Brand{ID: b.ID, Name: b.Name}); err != nil {
				return errors.Wrapf(err, "upsert brand %s", b.ID)
			}
		}
		for _, p := range c.Products {
			if err := w.UpsertProduct(ctx, product.Product{
				ID:       p.ID,
				SKU:      p.SKU,
				Name:     p.Name,
				BrandID:  p.BrandID,
				Category: p.Category,
				Price:    p.Price,
				Stock:    p.Stock,
			}); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ID)
			}
		}
		lg.Info("Catalog seeded",
			zap.Int("brands", len(c.Brands)),
			zap.Int("products", len(c.Products)),
		)
		return nil
	})
}

// DefaultAPIKeyID names the key created by APIKey.
const DefaultAPIKeyID = "default"

// APIKey stores key under its HMAC hash as the default key.
func APIKey(ctx context.Context, w Writer, pepper []byte, key string) error {
	if key == "" {
		return domain.Invalid("api_key", "is required")
	}
	err := w.UpsertAPIKey(ctx, auth.APIKeyInfo{
		ID:      DefaultAPIKeyID,
		KeyHash: auth.HashAPIKey(pepper, key),
		Name:    "Default back-office key",
		Scopes:  []string{"orders:write"},
	})
	if err != nil {
		return errors.Wrap(err, "upsert default API key")
	}
	zctx.From(ctx).Info("API key seeded", zap.String("id", DefaultAPIKeyID))
	return nil
}
