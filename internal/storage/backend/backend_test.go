package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/groupledger/internal/config"
)

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "ledger.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.Trail.Append(ctx, "grp_1", "Group created"))
	entries, err := b.Trail.Read(ctx, "grp_1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Group created", entries[0].Message)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "cassandra"})
	assert.ErrorContains(t, err, "unknown database driver")
}
