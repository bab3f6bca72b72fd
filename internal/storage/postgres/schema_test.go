package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr string
		want    []int64
	}{
		{
			name: "ordered by version",
			fsys: fstest.MapFS{
				"sql/migrations/0002_ledger.sql": {Data: []byte("CREATE TABLE b (id INT);")},
				"sql/migrations/0001_init.sql":   {Data: []byte("CREATE TABLE a (id INT);")},
			},
			want: []int64{1, 2},
		},
		{
			name:    "invalid file name",
			fsys:    fstest.MapFS{"sql/migrations/orders.sql": {Data: []byte("SELECT 1;")}},
			wantErr: "invalid migration file name",
		},
		{
			name:    "empty body",
			fsys:    fstest.MapFS{"sql/migrations/0001_init.sql": {Data: []byte("  \n")}},
			wantErr: "empty",
		},
		{
			name: "duplicate version",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.sql":   {Data: []byte("CREATE TABLE a (id INT);")},
				"sql/migrations/0001_orders.sql": {Data: []byte("CREATE TABLE b (id INT);")},
			},
			wantErr: "duplicate migration version 1",
		},
		{
			name:    "no files",
			fsys:    fstest.MapFS{},
			wantErr: "no migration files",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			migrations, err := loadMigrations(tt.fsys)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			versions := make([]int64, 0, len(migrations))
			for _, m := range migrations {
				versions = append(versions, m.Version)
			}
			assert.Equal(t, tt.want, versions)
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrations(migrationsFS)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, "init", migrations[0].Name)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS orders")
}

func TestPendingCount(t *testing.T) {
	t.Parallel()

	migrations := []migration{{Version: 1}, {Version: 2}, {Version: 3}}
	assert.Equal(t, 3, pendingCount(migrations, 0))
	assert.Equal(t, 1, pendingCount(migrations, 2))
	assert.Equal(t, 0, pendingCount(migrations, 3))
}

func TestSellerFilterClause(t *testing.T) {
	t.Parallel()

	where, args := sellerFilterClause(sellerFilter())
	assert.Contains(t, where, "o.seller_id = $1")
	assert.Contains(t, where, "o.status = $2")
	assert.Contains(t, where, "a.province = $3")
	assert.Contains(t, where, "ILIKE $4")
	require.Len(t, args, 4)
	assert.Equal(t, `%50\%\_off%`, args[3])
}

func TestEscapeLike(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `tea`, escapeLike("tea"))
	assert.Equal(t, `a\\b\%c\_d`, escapeLike(`a\b%c_d`))
}
