package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileParsesKeyValueLinesIgnoringComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p1budget.conf")
	content := "# comment\nmax_current = 20\n\nhttp.addr=:9000 # inline comment\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c := New(loggerForTest(t))
	require.NoError(t, c.LoadFile(path))

	p := Subscribe(c, "max_current", ParseFloat, 16.0)
	assert.Equal(t, 20.0, p.Get())

	addr := Subscribe(c, "http.addr", ParseString, ":8080")
	assert.Equal(t, ":9000", addr.Get())
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	c := New(loggerForTest(t))
	assert.NoError(t, c.LoadFile(filepath.Join(t.TempDir(), "missing.conf")))
}
