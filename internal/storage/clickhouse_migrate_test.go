package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSQLStatements(t *testing.T) {
	content := `-- activity table
CREATE TABLE IF NOT EXISTS a (
    id String
) ENGINE = MergeTree() ORDER BY id;

-- second
CREATE TABLE IF NOT EXISTS b (id String) ENGINE = Memory;
SELECT 1`

	got := splitSQLStatements(content)
	assert.Len(t, got, 3)
	assert.Contains(t, got[0], "CREATE TABLE IF NOT EXISTS a")
	assert.NotContains(t, got[0], ";")
	assert.NotContains(t, got[0], "--")
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS b (id String) ENGINE = Memory", got[1])
	assert.Equal(t, "SELECT 1", got[2])
}

func TestSplitSQLStatements_Empty(t *testing.T) {
	assert.Empty(t, splitSQLStatements("-- only a comment\n\n"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
