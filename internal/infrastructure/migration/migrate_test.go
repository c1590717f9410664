package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailable(t *testing.T) {
	names, err := Available()
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_ledger", "000002_manufacture", "000003_outbox"}, names)
}

func TestMigrationFiles_ArePaired(t *testing.T) {
	names, err := Available()
	require.NoError(t, err)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			up, err := fs.ReadFile(migrationFiles, "sql/"+name+".up.sql")
			require.NoError(t, err)
			down, err := fs.ReadFile(migrationFiles, "sql/"+name+".down.sql")
			require.NoError(t, err)

			assert.Contains(t, string(up), "CREATE TABLE")
			assert.Contains(t, string(down), "DROP TABLE")
		})
	}
}

func TestMigrationFiles_CoverModelTables(t *testing.T) {
	var schema strings.Builder
	err := fs.WalkDir(migrationFiles, "sql", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return err
		}
		body, err := fs.ReadFile(migrationFiles, path)
		schema.Write(body)
		return err
	})
	require.NoError(t, err)

	for _, table := range []string{
		"orders", "stocks", "product_barcodes",
		"production_batches", "batch_products", "batch_product_orders",
		"supplies", "workflow_orders", "packages", "package_orders", "outbox_events",
	} {
		assert.Contains(t, schema.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
	assert.Contains(t, schema.String(), "CREATE UNIQUE INDEX IF NOT EXISTS idx_package_orders_order")
}
