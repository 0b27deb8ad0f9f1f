package statedb

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// Postgres tests need docker and are enabled with WATCHTOWER_PG_TESTS=1.
func TestGormStore(t *testing.T) {
	if os.Getenv("WATCHTOWER_PG_TESTS") != "1" {
		t.Skip("set WATCHTOWER_PG_TESTS=1 to run postgres tests")
	}
	ctx := context.Background()

	dbName, dbUser, dbPassword := "watchtower", "watchtower", "password"
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		host, dbUser, dbPassword, dbName, port.Int())

	st, err := OpenPostgres(dsn)
	require.NoError(t, err)
	defer st.Close()

	// every subtest starts from empty tables
	runStoreSuite(t, func(t *testing.T) Store {
		for _, table := range []string{"watermarks", "deposits", "approvals", "nonce_used", "submissions", "leases"} {
			require.NoError(t, st.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Exec("DELETE FROM "+table).Error)
		}
		return st
	})
}
