package main

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	t.Cleanup(func() {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		log.SetLevel(log.InfoLevel)
	})

	setupLogger("json", "debug")
	require.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)
	require.Equal(t, log.DebugLevel, log.GetLevel())

	setupLogger("text", "nonsense")
	require.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)
	require.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, loadDotEnv(), "missing .env must be ignored")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("QRPRO_TEST_DOTENV=loaded\n"), 0o600))
	t.Setenv("QRPRO_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("QRPRO_TEST_DOTENV"))

	require.NoError(t, loadDotEnv())
	require.Equal(t, "loaded", os.Getenv("QRPRO_TEST_DOTENV"))
}
