package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/botaas/flowengine/pkg/adapters/sqlite"
	"github.com/botaas/flowengine/pkg/ports"
	"github.com/botaas/flowengine/pkg/ports/tests"
)

func open(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(sqlite.Config{DSN: filepath.Join(t.TempDir(), "flowengine.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteSessionStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, open(t).Sessions())
}

func TestSQLiteFlowStore_Contract(t *testing.T) {
	tests.FlowStoreContractTest(t, open(t).Flows())
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := sqlite.Open(sqlite.Config{})
	require.Error(t, err)
}
