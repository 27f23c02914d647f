package seed_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rihla-backoffice/db"
	"github.com/xenking/rihla-backoffice/internal/domain"
	"github.com/xenking/rihla-backoffice/internal/domain/auth"
	"github.com/xenking/rihla-backoffice/internal/seed"
	"github.com/xenking/rihla-backoffice/internal/storage/memory"
)

func TestParseBytes_EmbeddedCatalog(t *testing.T) {
	c, err := seed.ParseBytes(db.SeedCatalog)
	require.NoError(t, err)
	assert.Len(t, c.Brands, 4)
	assert.NotEmpty(t, c.Products)
	for _, p := range c.Products {
		assert.False(t, p.Price.IsNegative(), p.ID)
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{
			name: "negative price",
			json: `{"brands":[{"id":"b","name":"B"}],"products":[{"id":"p","sku":"S","name":"P","brand_id":"b","price":"-1","stock":1}]}`,
		},
		{
			name: "negative stock",
			json: `{"brands":[],"products":[{"id":"p","sku":"S","name":"P","price":"1","stock":-1}]}`,
		},
		{
			name: "unknown brand",
			json: `{"brands":[],"products":[{"id":"p","sku":"S","name":"P","brand_id":"x","price":"1","stock":1}]}`,
		},
		{
			name: "duplicate sku",
			json: `{"brands":[],"products":[{"id":"p1","sku":"S","name":"P","price":"1"},{"id":"p2","sku":"S","name":"Q","price":"1"}]}`,
		},
		{
			name: "missing name",
			json: `{"brands":[{"id":"b"}],"products":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := seed.Parse(strings.NewReader(tt.json))
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestLoadFile_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write(db.SeedCatalog)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	c, err := seed.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, c.Brands, 4)
}

func TestApply_WritesCatalogAndKey(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	w := seed.Repos{Brands: store.Brands(), Products: store.Products(), APIKeys: store.APIKeys()}

	c, err := seed.ParseBytes(db.SeedCatalog)
	require.NoError(t, err)
	require.NoError(t, seed.Apply(ctx, store, w, c))

	b, err := store.Brands().Lookup(ctx, "rihla-abaya")
	require.NoError(t, err)
	assert.Equal(t, "Rihla Abaya", b.Name)

	p, err := store.Products().GetByID(ctx, c.Products[0].ID)
	require.NoError(t, err)
	assert.Equal(t, c.Products[0].Stock, p.Stock)
	assert.True(t, c.Products[0].Price.Equal(p.Price))

	pepper := []byte("pepper")
	require.NoError(t, seed.APIKey(ctx, w, pepper, "secret"))
	info, err := store.APIKeys().FindByHash(ctx, auth.HashAPIKey(pepper, "secret"))
	require.NoError(t, err)
	assert.Equal(t, seed.DefaultAPIKeyID, info.ID)

	err = seed.APIKey(ctx, w, pepper, "")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}
