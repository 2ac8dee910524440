package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "ingest", "query", "fetch", "export"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestQueryRoleFlagListsRoles(t *testing.T) {
	cmd, _, err := newRootCmd().Find([]string{"query"})
	require.NoError(t, err)
	flag := cmd.Flags().Lookup("role")
	require.NotNil(t, flag)
	assert.Equal(t, "audience, one of scientist, manager, architect, student", flag.Usage)
}

func TestIngestMetricsFileFlag(t *testing.T) {
	cmd, _, err := newRootCmd().Find([]string{"ingest"})
	require.NoError(t, err)
	flag := cmd.Flags().Lookup("metrics-file")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}
