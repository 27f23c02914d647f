// Command seed-db migrates the database and loads the brand and product
// catalog plus the default API key.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/rihla-backoffice/db"
	"github.com/xenking/rihla-backoffice/internal/seed"
	"github.com/xenking/rihla-backoffice/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	catalogFile  string
	apiKey       string
	apiKeyPepper string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.catalogFile, "catalog", "", "catalog JSON file, optionally .gz (default: embedded catalog)")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or RIHLA_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or RIHLA_API_KEY_PEPPER env)")
	flag.Parse()

	opts.databaseURL = orEnv(opts.databaseURL, "DATABASE_URL")
	opts.apiKey = orEnv(opts.apiKey, "RIHLA_SEED_API_KEY")
	opts.apiKeyPepper = orEnv(opts.apiKeyPepper, "RIHLA_API_KEY_PEPPER")

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		return run(zctx.Base(ctx, lg), opts)
	})
}

func orEnv(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func run(ctx context.Context, opts options) error {
	lg := zctx.From(ctx)
	if opts.databaseURL == "" {
		return errors.New("database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.apiKey == "" {
		return errors.New("API key is required: set --api-key or RIHLA_SEED_API_KEY")
	}

	cat, err := loadCatalog(opts.catalogFile)
	if err != nil {
		return err
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	d := postgres.NewDB(pool)
	repos := seed.Repos{
		Brands:   postgres.NewBrandRepository(d),
		Products: postgres.NewProductRepository(d),
		APIKeys:  postgres.NewAPIKeyRepository(d),
	}
	if err := seed.Apply(ctx, d, repos, cat); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seed.APIKey(ctx, repos, []byte(opts.apiKeyPepper), opts.apiKey); err != nil {
		return err
	}

	lg.Info("Seed completed")
	return nil
}

func loadCatalog(path string) (*seed.Catalog, error) {
	if path == "" {
		return seed.ParseBytes(db.SeedCatalog)
	}
	return seed.LoadFile(path)
}
