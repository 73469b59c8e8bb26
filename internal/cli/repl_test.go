package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botaas/flowengine"
	"github.com/botaas/flowengine/pkg/adapters/memory"
)

func TestRunREPL(t *testing.T) {
	flow, err := ParseFlow([]byte(yamlFlow), ".yaml")
	require.NoError(t, err)
	eng := flowengine.New(memory.NewFlowStore(flow), memory.NewStore())

	in := strings.NewReader("Help\nhi\n/reset\n/quit\nnever sent\n")
	var out bytes.Buffer
	err = RunREPL(context.Background(), eng, REPLOptions{BotID: "7", UserID: "u1"}, in, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Equal(t, 3, strings.Count(text, "Welcome to Corner Store"), "start, restart after end, reset")
	assert.Contains(t, text, "[Menu]")
	assert.Contains(t, text, "Bye")
	assert.Contains(t, text, "conversation ended")
	assert.NotContains(t, text, "never sent")
}

func TestRunREPL_EOF(t *testing.T) {
	flow, err := ParseFlow([]byte(yamlFlow), ".yaml")
	require.NoError(t, err)
	eng := flowengine.New(memory.NewFlowStore(flow), memory.NewStore())

	var out bytes.Buffer
	require.NoError(t, RunREPL(context.Background(), eng, REPLOptions{BotID: "7", UserID: "u1"}, strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "Welcome to Corner Store")
}
