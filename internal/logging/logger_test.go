package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchmesh.log")
	log, err := New(Config{Level: "info", Format: "json", OutputPath: path})
	require.NoError(t, err)

	log.Info("hello")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestNewFallsBackToInfoOnInvalidLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchmesh.log")
	log, err := New(Config{Level: "not-a-level", Format: "json", OutputPath: path})
	require.NoError(t, err)

	log.Debug("debug-line")
	log.Info("info-line")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "debug-line")
	assert.Contains(t, string(data), "info-line")
}

func TestWithFieldsDerivesIndependentLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchmesh.log")
	log, err := New(Config{Level: "debug", Format: "json", OutputPath: path})
	require.NoError(t, err)

	derived := log.WithFields()
	assert.NotNil(t, derived)
}

func TestDefaultReturnsSameInstance(t *testing.T) {
	a := Default()
	b := Default()
	assert.Same(t, a, b)
}

func TestSetDefaultOverridesGlobal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchmesh.log")
	custom, err := New(Config{Level: "info", Format: "json", OutputPath: path})
	require.NoError(t, err)

	SetDefault(custom)
	assert.Same(t, custom, Default())
}
