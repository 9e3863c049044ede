package db

import (
	"context"
	"os"
	"testing"
	"testing/fstest"

	"invoice-agent/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	fsys := fstest.MapFS{
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("ignored")},
	}
	got, err := Discover(fsys)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "001", got[0].Version)
	assert.Equal(t, "001_first.sql", got[0].Filename)
	assert.Equal(t, "SELECT 1;", got[0].SQL)
	assert.Len(t, got[0].Checksum, 64)
	assert.NotEqual(t, got[0].Checksum, got[1].Checksum)
}

func TestDiscover_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{"no version", fstest.MapFS{"schema.sql": {Data: []byte("x")}}},
		{"duplicate version", fstest.MapFS{
			"001_a.sql": {Data: []byte("x")},
			"001_b.sql": {Data: []byte("y")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Discover(tt.fsys)
			assert.Error(t, err)
		})
	}
}

func TestDiscover_Embedded(t *testing.T) {
	got, err := Discover(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Contains(t, got[0].SQL, "quickbooks_credentials")
}

func TestMigrate_Integration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, url, nil)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, Migrate(ctx, pool, migrations.FS, nil))
	// second run only verifies checksums
	require.NoError(t, Migrate(ctx, pool, migrations.FS, nil))
}

func TestNewPool_EmptyURL(t *testing.T) {
	_, err := NewPool(context.Background(), "", nil)
	assert.Error(t, err)
}
