package users

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

// Concurrent activity inserts for a principal being deleted block on its row
// lock and then fail the foreign key instead of staying attached.
func TestActivityLogReferencesPrincipals(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_init.up.sql"))
	require.NoError(t, err)

	pattern := regexp.MustCompile(`(?s)CREATE TABLE activity_log \(.*?user_id\s+BIGINT REFERENCES principals\(id\) ON DELETE SET NULL,`)
	require.Regexp(t, pattern, string(data))
}
