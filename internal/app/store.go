package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/rihla-backoffice/db"
	"github.com/xenking/rihla-backoffice/internal/domain"
	"github.com/xenking/rihla-backoffice/internal/domain/auth"
	"github.com/xenking/rihla-backoffice/internal/domain/brand"
	"github.com/xenking/rihla-backoffice/internal/domain/customer"
	"github.com/xenking/rihla-backoffice/internal/domain/inventory"
	"github.com/xenking/rihla-backoffice/internal/domain/order"
	"github.com/xenking/rihla-backoffice/internal/domain/product"
	"github.com/xenking/rihla-backoffice/internal/seed"
	"github.com/xenking/rihla-backoffice/internal/storage/memory"
	"github.com/xenking/rihla-backoffice/internal/storage/postgres"
	"github.com/xenking/rihla-backoffice/pkg/health"
)

// backend is the set of repositories the services run on.
type backend struct {
	name  string
	tx    domain.Transactor
	ping  health.Pinger
	close func()

	products interface {
		product.Repository
		inventory.Store
	}
	brands    brand.Directory
	customers customer.Store
	orders    order.Repository
	apikeys   auth.Repository
}

// openBackend connects to PostgreSQL, or builds a seeded in-memory store when
// cfg.Memory is set.
func openBackend(ctx context.Context, cfg *Config) (*backend, error) {
	if cfg.Memory {
		return openMemory(ctx, cfg)
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	d := postgres.NewDB(pool)
	return &backend{
		name:      "postgres",
		tx:        d,
		ping:      d,
		close:     pool.Close,
		products:  postgres.NewProductRepository(d),
		brands:    postgres.NewBrandRepository(d),
		customers: postgres.NewCustomerRepository(d),
		orders:    postgres.NewOrderRepository(d),
		apikeys:   postgres.NewAPIKeyRepository(d),
	}, nil
}

func openMemory(ctx context.Context, cfg *Config) (*backend, error) {
	s := memory.New()

	cat, err := seed.ParseBytes(db.SeedCatalog)
	if err != nil {
		return nil, errors.Wrap(err, "parse seed catalog")
	}
	repos := seed.Repos{Brands: s.Brands(), Products: s.Products(), APIKeys: s.APIKeys()}
	if err := seed.Apply(ctx, s, repos, cat); err != nil {
		return nil, errors.Wrap(err, "seed memory store")
	}
	if cfg.DevAPIKey != "" {
		if err := seed.APIKey(ctx, repos, []byte(cfg.APIKeyPepper), cfg.DevAPIKey); err != nil {
			return nil, err
		}
	} else {
		zctx.From(ctx).Warn("Memory store has no API key; set RIHLA_DEV_API_KEY or use bearer tokens")
	}
	zctx.From(ctx).Info("Using in-memory store", zap.Int("products", len(cat.Products)))

	return &backend{
		name:      "memory",
		tx:        s,
		ping:      s,
		close:     func() {},
		products:  s.Products(),
		brands:    s.Brands(),
		customers: s.Customers(),
		orders:    s.Orders(),
		apikeys:   s.APIKeys(),
	}, nil
}
