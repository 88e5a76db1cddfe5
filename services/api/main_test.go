package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("APP_ENV", "")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DATA_DIR", dir)
	return dir
}

func TestRunMigrateOnlyOpensStoreAndReturns(t *testing.T) {
	dir := isolate(t)
	t.Setenv("STORE_BACKEND", "csv")

	require.NoError(t, run(false, true))
	_, err := os.Stat(filepath.Join(dir, "messages.csv"))
	require.NoError(t, err)
}

func TestRunReturnsStartupErrors(t *testing.T) {
	dir := isolate(t)

	// a data dir that is a regular file cannot hold the csv tables
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	t.Setenv("STORE_BACKEND", "csv")
	t.Setenv("DATA_DIR", blocker)
	require.ErrorContains(t, run(false, false), "open store")

	roster := filepath.Join(dir, "students.json")
	require.NoError(t, os.WriteFile(roster, []byte("{not json"), 0o644))
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("ROSTER_PATH", roster)
	require.ErrorContains(t, run(false, false), "roster")
}
