package migrate

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMigrateCommand(t *testing.T) {
	cmd := NewMigrateCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "migrate", cmd.Use)
	assert.Equal(t, "Create or update the database schema", cmd.Short)

	assert.Empty(t, cmd.Aliases)

	assert.True(t, cmd.HasExample())
	assert.False(t, cmd.HasSubCommands())

	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)

	assert.Nil(t, cmd.PersistentPreRun)
	assert.Nil(t, cmd.PersistentPostRun)

	assert.True(t, cmd.HasFlags())

	assert.NotNil(t, cmd.Flags().Lookup("dry-run"))
	assert.NotNil(t, cmd.Flags().Lookup("db"))
	assert.NotNil(t, cmd.Flags().Lookup("config"))
}

func TestRun_DryRunThenMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telecord.db")

	var out bytes.Buffer
	require.NoError(t, Run(&out, Options{DBPath: path, DryRun: true}))
	assert.Contains(t, out.String(), "Tables to create:")
	for _, table := range []string{"source_channels", "destination_channels", "reminder_groups", "reminder_texts"} {
		assert.Contains(t, out.String(), "  - "+table)
	}

	out.Reset()
	require.NoError(t, Run(&out, Options{DBPath: path}))
	assert.Contains(t, out.String(), "(4 new tables)")

	out.Reset()
	require.NoError(t, Run(&out, Options{DBPath: path, DryRun: true}))
	assert.Equal(t, "Schema is up to date\n", out.String())
}

func TestCommand_UsesDBFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flag.db")
	cmd := NewMigrateCommand()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--db", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Database migrated: "+path)
}
