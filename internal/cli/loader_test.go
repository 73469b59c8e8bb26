package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlFlow = `
id: greet
bot_id: 7
is_active: true
is_default: true
variables:
  shop: Corner Store
nodes:
  - id: start
    data: {type: start}
  - id: hello
    data:
      type: message
      content: "Welcome to {{shop}}"
      quick_replies: [Menu, Help]
  - id: bye
    data: {type: end, content: Bye}
edges:
  - {source: start, target: hello}
  - {source: hello, target: bye, label: Help}
`

func TestLoadFlowFile_YAMLAndJSON(t *testing.T) {
	dir := t.TempDir()

	yml := filepath.Join(dir, "greet.yaml")
	require.NoError(t, os.WriteFile(yml, []byte(yamlFlow), 0o600))
	f, err := LoadFlowFile(yml)
	require.NoError(t, err)
	assert.Equal(t, "greet", string(f.ID))
	assert.Equal(t, "7", string(f.BotID))
	assert.Equal(t, "Corner Store", f.Variables["shop"])
	require.Len(t, f.Nodes, 3)
	assert.Equal(t, []any{"Menu", "Help"}, f.Nodes[1].Data["quick_replies"])
	assert.Equal(t, "Help", f.Edges[1].Label)

	js := filepath.Join(dir, "greet.json")
	require.NoError(t, os.WriteFile(js, []byte(`{"id": 3, "nodes": [{"id": "s", "data": {"type": "start"}}], "edges": []}`), 0o600))
	f, err = LoadFlowFile(js)
	require.NoError(t, err)
	assert.Equal(t, "3", string(f.ID))
}

func TestLoadFlowFile_Errors(t *testing.T) {
	_, err := LoadFlowFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = ParseFlow([]byte("nodes: [unclosed"), ".yml")
	require.Error(t, err)

	_, err = ParseFlow([]byte("{"), ".json")
	require.Error(t, err)
}
