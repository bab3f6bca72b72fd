package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `{
  "buyers": [{"id": "b1", "name": "Nguyen Van A"}],
  "sellers": [{"id": "s1", "userId": "u-s1", "name": "Tea House"}],
  "addresses": [{"id": "a1", "userId": "b1", "province": "Ha Noi", "district": "Ba Dinh", "ward": "Kim Ma"}],
  "products": [{"id": "p1", "sellerId": "s1", "name": "Green Tea", "price": 100, "quantity": 10}],
  "cartLines": [{"userId": "b1", "productId": "p1", "quantity": 2}]
}`

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(log.WarnLevel)
	return log.NewEntry(logger)
}

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))
	return path
}

func TestInitStorage_Drivers(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "memory", mutate: func(*Config) {}},
		{name: "empty driver falls back to memory", mutate: func(c *Config) { c.StorageDriver = "" }},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.StorageDriver = StorageDriverPostgres },
			wantErr: "MARKETPLACE_POSTGRES_DSN",
		},
		{
			name:    "unsupported",
			mutate:  func(c *Config) { c.StorageDriver = "sqlite" },
			wantErr: "unsupported storage driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			rt, err := initStorage(context.Background(), cfg, testLogger())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, rt.uow)
			assert.NotNil(t, rt.idempotency)
			assert.NoError(t, rt.pinger.Ping(context.Background()))
			assert.NoError(t, rt.close())
		})
	}
}

func TestSeedCatalog(t *testing.T) {
	ctx := context.Background()
	rt, err := initStorage(ctx, DefaultConfig(), testLogger())
	require.NoError(t, err)

	require.NoError(t, seedCatalog(ctx, writeCatalog(t), rt.seeder, testLogger()))

	product, err := rt.uow.Products().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, product.Quantity)

	address, err := rt.uow.Directory().GetAddress(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "b1", address.UserID)
}

func TestSeedCatalog_Errors(t *testing.T) {
	ctx := context.Background()
	rt, err := initStorage(ctx, DefaultConfig(), testLogger())
	require.NoError(t, err)

	assert.NoError(t, seedCatalog(ctx, "", rt.seeder, testLogger()))

	err = seedCatalog(ctx, filepath.Join(t.TempDir(), "missing.json"), rt.seeder, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read seed file")

	broken := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o600))
	err = seedCatalog(ctx, broken, rt.seeder, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode seed file")
}
