package cli

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout returns what fn printed to stdout
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	runErr := fn()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), runErr
}

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	assert.Equal(t, "shopfront-cli", root.Name)
	assert.NotNil(t, root.Flags)

	expectedCommands := []string{"routes", "permissions", "rules", "grant", "revoke", "retire"}
	for _, cmdName := range expectedCommands {
		assert.Contains(t, root.Subcommands, cmdName, "Expected subcommand %s to be registered", cmdName)
	}
	assert.Equal(t, len(expectedCommands), len(root.Subcommands))
}

func TestCommandUsage(t *testing.T) {
	root := NewRootCommand()

	output, err := captureStdout(t, root.usage)

	assert.NoError(t, err)
	assert.Contains(t, output, "Usage: shopfront-cli <command> [args]")
	assert.Contains(t, output, "grant")
	assert.Contains(t, output, "retire")
	assert.Contains(t, output, EnvToken)
	assert.Less(t, bytes.Index([]byte(output), []byte("grant")), bytes.Index([]byte(output), []byte("revoke")), "commands are sorted")
}

func TestCommandExecute_NoArgsAndHelp(t *testing.T) {
	root := NewRootCommand()

	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		output, err := captureStdout(t, func() error { return root.ExecuteArgs(args) })
		assert.NoError(t, err)
		assert.Contains(t, output, "Usage: shopfront-cli")
	}
}

func TestCommandExecute_Subcommand(t *testing.T) {
	root := NewRootCommand()

	var receivedArgs []string
	root.Subcommands["test"] = &Command{
		Name: "test",
		Run: func(args []string) error {
			receivedArgs = args
			return nil
		},
	}

	oldArgs := os.Args
	os.Args = []string{"shopfront-cli", "test", "-role", "2"}
	defer func() { os.Args = oldArgs }()

	require.NoError(t, root.Execute())
	assert.Equal(t, []string{"-role", "2"}, receivedArgs)
}

func TestCommandExecute_UnknownCommand(t *testing.T) {
	err := NewRootCommand().ExecuteArgs([]string{"nonexistent"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: nonexistent")
}
