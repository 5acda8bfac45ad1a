//go:build integration

package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

func TestMySQLStore(t *testing.T) {
	ctx := context.Background()

	ctr, err := mysql.Run(ctx, "mysql:8.0.36",
		mysql.WithDatabase("bioacoustics"),
		mysql.WithUsername("howler"),
		mysql.WithPassword("howler"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "charset=utf8mb4", "parseTime=true", "loc=UTC")
	require.NoError(t, err)

	s, err := OpenMySQL(dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storeContract(t, s)
}
