package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "ingest")
	assert.Contains(t, names, "chat")
	assert.Contains(t, names, "graph")
	assert.Contains(t, names, "version")
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-08-29")

	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
}

func TestGraphHasRebuildSubcommand(t *testing.T) {
	root := newRootCmd()
	graph, _, err := root.Find([]string{"graph", "rebuild"})
	require.NoError(t, err)
	assert.Equal(t, "rebuild", graph.Name())
}
