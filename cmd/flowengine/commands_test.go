package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "flowengine version")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`{
		"id": "1", "bot_id": "1",
		"nodes": [
			{"id": "s", "data": {"type": "start"}},
			{"id": "m", "data": {"type": "message", "content": "hi"}}
		],
		"edges": [{"source": "s", "target": "m"}]
	}`), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte(`
id: "2"
nodes:
  - id: m
    data: {type: message, content: hi}
edges:
  - {source: m, target: ghost}
`), 0o600))

	out, err := runCLI(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "good.json: ok")

	out, err = runCLI(t, "validate", good, bad)
	require.Error(t, err)
	assert.Contains(t, out, "bad.yaml:")
	assert.Contains(t, out, "violation(s)")
	assert.Contains(t, out, "ghost")
}
