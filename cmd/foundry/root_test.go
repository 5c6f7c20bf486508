package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"pkg.world.dev/world-engine/foundry/assert"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(viper.Reset)

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCatalogValidate(t *testing.T) {
	out, err := execute(t, "catalog", "validate", "../../registry/default_catalog.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "items")
}

func TestCatalogValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("items:\n  - { kind: dirt }\n"), 0o600))

	_, err := execute(t, "catalog", "validate", path)
	assert.IsError(t, err)
}

func TestCatalogMatter(t *testing.T) {
	out, err := execute(t, "catalog", "matter")
	require.NoError(t, err)
	assert.Contains(t, out, "iron_ingot: 48")
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("FOUNDRY_TICK_RATE", "5")
	t.Cleanup(viper.Reset)

	cmd := NewRootCmd()
	require.NoError(t, cmd.PersistentFlags().Parse([]string{"--tick-rate", "40"}))
	assert.Equal(t, 40, viper.GetInt("FOUNDRY_TICK_RATE"))
}
