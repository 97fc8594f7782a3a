package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvPrecedence(t *testing.T) {
	prev := Env
	t.Cleanup(func() { Env = prev })

	t.Setenv("WFAI_TEST_KEY", "from-os")
	Env = map[string]string{}
	assert.Equal(t, "from-os", GetEnv("WFAI_TEST_KEY", "def"))

	Env = map[string]string{"WFAI_TEST_KEY": "from-file"}
	assert.Equal(t, "from-file", GetEnv("WFAI_TEST_KEY", "def"))

	assert.Equal(t, "def", GetEnv("WFAI_TEST_MISSING", "def"))
}

func TestSetupEnvFile(t *testing.T) {
	prev := Env
	t.Cleanup(func() { Env = prev })

	wd, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	nested := filepath.Join(dir, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.Chdir(nested))

	assert.False(t, SetupEnvFile())
	assert.NotNil(t, Env)

	require.NoError(t, os.WriteFile(filepath.Join(nested, ".env"), []byte("APP_ENV=dev\nAPP_PORT=9000\n"), 0o600))
	assert.True(t, SetupEnvFile())
	assert.Equal(t, "9000", GetEnv("APP_PORT", ""))
	assert.Equal(t, "dev", GetEnv("APP_ENV", "prod"))
}
