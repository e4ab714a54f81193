package inventory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// tableColumns returns the column definitions of table keyed by column name,
// read from the initial migration.
func tableColumns(t *testing.T, table string) map[string]string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_init.up.sql"))
	require.NoError(t, err)

	sql := string(data)
	start := strings.Index(sql, "CREATE TABLE "+table+" (")
	require.GreaterOrEqual(t, start, 0, "table %s not found", table)
	end := strings.Index(sql[start:], "\n);")
	require.Greater(t, end, 0)

	columns := make(map[string]string)
	for _, line := range strings.Split(sql[start:start+end], "\n")[1:] {
		fields := strings.Fields(strings.TrimSuffix(strings.TrimSpace(line), ","))
		if len(fields) < 2 || fields[0] == "CHECK" {
			continue
		}
		columns[fields[0]] = strings.Join(fields[1:], " ")
	}
	return columns
}

func TestPoolAssignmentsSchemaMatchesAssignment(t *testing.T) {
	columns := tableColumns(t, "pool_assignments")

	require.Equal(t, "TEXT NOT NULL", columns["assigned_to"], "identities are opaque strings")
	require.Equal(t, "UUID", columns["batch_id"])
	require.True(t, strings.HasPrefix(columns["qty"], "INTEGER NOT NULL"))
	require.True(t, strings.HasPrefix(columns["pool_id"], "BIGINT NOT NULL REFERENCES pools(id)"))
}
