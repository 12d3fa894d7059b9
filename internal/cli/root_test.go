package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frugalflow/internal/config"
)

// isolateEnv clears every FRUGALFLOW_* variable for the test.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		config.EnvDB, config.EnvRemoteURL, config.EnvRemotePassword, config.EnvInstanceID,
		config.EnvLeaseBackend, config.EnvLeaseTTL, config.EnvHeartbeat, config.EnvPushBatch,
		config.EnvPushInterval, config.EnvPullInterval, config.EnvCurrency,
	} {
		t.Setenv(name, "")
	}
}

// execute runs the CLI with args against a fresh option set.
func execute(t *testing.T, opts *RootOptions, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCommand(opts)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "frugalflow", cmd.Use)
	assert.Contains(t, cmd.Long, "local-first")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"add", "balance", "list", "run", "sync", "status"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)
}

func TestAddCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	addCmd, _, err := cmd.Find([]string{"add"})
	require.NoError(t, err)

	typeFlag := addCmd.Flags().Lookup("type")
	require.NotNil(t, typeFlag)
	assert.Equal(t, "t", typeFlag.Shorthand)
	assert.Equal(t, "expense", typeFlag.DefValue)

	require.NotNil(t, addCmd.Flags().Lookup("merchant"))
	require.NotNil(t, addCmd.Flags().Lookup("category"))
	require.NotNil(t, addCmd.Flags().Lookup("date"))
}

func TestBalanceCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	balanceCmd, _, err := cmd.Find([]string{"balance"})
	require.NoError(t, err)

	watchFlag := balanceCmd.Flags().Lookup("watch")
	require.NotNil(t, watchFlag)
	assert.Equal(t, "w", watchFlag.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "test.db")

	_, _, err := execute(t, &RootOptions{}, "--format", "xml", "--db", db, "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidConfiguration(t *testing.T) {
	isolateEnv(t)
	t.Setenv(config.EnvPushBatch, "many")
	db := filepath.Join(t.TempDir(), "test.db")

	_, _, err := execute(t, &RootOptions{}, "--db", db, "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), config.EnvPushBatch)
}
