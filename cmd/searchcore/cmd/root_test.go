package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"index", "search", "status", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd()

	for _, flag := range []string{"plain", "no-color", "debug", "profile-cpu", "profile-mem", "profile-trace"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing persistent flag %q", flag)
	}
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	cmd := newSearchCmd()
	cmd.SetArgs([]string{})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)
}

func TestIndexCmd_RejectsPositionalArgs(t *testing.T) {
	cmd := newIndexCmd()
	cmd.SetArgs([]string{"unexpected"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)
}
