package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI once with a fresh command tree, like a separate process.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("AMSDB_LOGGER_LOG_LEVEL", "error")

	root, a := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	if cerr := a.teardown(); err == nil {
		err = cerr
	}
	return out.String(), err
}

func TestCLI_PutGetAcrossRuns(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "", "--data-dir", dir, "put", "foo", "bar")
	require.NoError(t, err)
	assert.Contains(t, out, "OK foo")

	out, err = run(t, "", "--data-dir", dir, "get", "foo")
	require.NoError(t, err)
	assert.Equal(t, "bar\n", out)

	_, err = run(t, "", "--data-dir", dir, "get", "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestCLI_PutFromStdin(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, "from stdin", "--data-dir", dir, "--db", "other", "put", "k", "--file", "-")
	require.NoError(t, err)

	out, err := run(t, "", "--data-dir", dir, "--db", "other", "get", "k")
	require.NoError(t, err)
	assert.Equal(t, "from stdin\n", out)

	_, err = run(t, "", "--data-dir", dir, "put", "k")
	assert.Error(t, err)
}

func TestCLI_ScanStatsVerifyPages(t *testing.T) {
	dir := t.TempDir()
	for _, k := range []string{"c", "a", "b"} {
		_, err := run(t, "", "--data-dir", dir, "put", k, "v"+k)
		require.NoError(t, err)
	}

	out, err := run(t, "", "--data-dir", dir, "scan", "--from", "b")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "b"))
	assert.True(t, strings.HasPrefix(lines[1], "c"))

	out, err = run(t, "", "--data-dir", dir, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "keys")
	assert.Contains(t, out, "height")

	out, err = run(t, "", "--data-dir", dir, "verify")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)

	// three puts, one root leaf page each
	out, err = run(t, "", "--data-dir", dir, "pages")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "DIGEST")
	assert.Contains(t, lines[3], "leaf")
	assert.Contains(t, lines[3], "true")
}

func TestCLI_InvalidConfig(t *testing.T) {
	t.Setenv("AMSDB_STORAGE_CACHE_SIZE", "0")
	_, err := run(t, "", "--data-dir", t.TempDir(), "get", "foo")
	assert.ErrorContains(t, err, "invalid config")
}

func TestCLI_PagesIsReadOnly(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "", "--data-dir", dir, "put", "foo", "bar")
	require.NoError(t, err)

	path := filepath.Join(dir, "amsdb.db")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("torn tail"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	out, err := run(t, "", "--data-dir", dir, "pages")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "leaf")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCLI_ScanPrefix(t *testing.T) {
	dir := t.TempDir()
	for _, k := range []string{"user_2", "admin", "user_1", "usr"} {
		_, err := run(t, "", "--data-dir", dir, "put", k, "v")
		require.NoError(t, err)
	}

	out, err := run(t, "", "--data-dir", dir, "scan", "--prefix", "user_")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "user_1"))
	assert.True(t, strings.HasPrefix(lines[1], "user_2"))

	_, err = run(t, "", "--data-dir", dir, "scan", "--prefix", "user_", "--from", "a")
	assert.Error(t, err)
}
