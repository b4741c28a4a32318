package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCmdRejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"unexpected"})
	require.Error(t, cmd.ExecuteContext(t.Context()))
}

func TestRootCmdMissingConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.ErrorIs(t, cmd.ExecuteContext(t.Context()), os.ErrNotExist)
}

func TestRootCmdDefaultConfig(t *testing.T) {
	cmd := newRootCmd()
	path, err := cmd.Flags().GetString("config")
	require.NoError(t, err)
	require.Equal(t, "turnstyled.yaml", path)
}
