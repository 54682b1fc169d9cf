package db

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(Migrations(), "*.sql")
	require.NoError(t, err)
	assert.Contains(t, files, "0001_init.sql")

	body, err := fs.ReadFile(Migrations(), "0001_init.sql")
	require.NoError(t, err)
	for _, table := range []string{"users", "trusted_users", "debts", "payments"} {
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}

func TestTxFromEmptyContext(t *testing.T) {
	_, ok := TxFrom(context.Background())
	assert.False(t, ok)
}
