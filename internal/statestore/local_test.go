package statestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_WriteStateModes(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()

	require.NoError(t, s.WriteState(ctx, "run1", "progress/service/success", 1, ModeIncrement))
	require.NoError(t, s.WriteState(ctx, "run1", "progress/service/success", 2, ModeIncrement))
	tree, err := s.GetState(ctx, "run1")
	require.NoError(t, err)
	progress := tree["progress"].(map[string]any)
	service := progress["service"].(map[string]any)
	assert.Equal(t, 3, service["success"])

	require.NoError(t, s.WriteState(ctx, "run1", "edges/e1", "DONE", ModeSet))
	tree, err = s.GetState(ctx, "run1")
	require.NoError(t, err)
	edges := tree["edges"].(map[string]any)
	assert.Equal(t, "DONE", edges["e1"])

	err = s.WriteState(ctx, "run1", "x", 1, WriteMode("bogus"))
	assert.Error(t, err)
}

func TestLocalStore_LogQueue(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()

	_, err := s.LogQueue(ctx, "run1", "svcA", LogAdd, "line one", 0)
	require.NoError(t, err)
	_, err = s.LogQueue(ctx, "run1", "svcA", LogAdd, "line two", 0)
	require.NoError(t, err)

	lines, err := s.LogQueue(ctx, "run1", "svcA", LogGet, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"line one", "line two"}, lines)

	lines, err = s.LogQueue(ctx, "run1", "svcA", LogGet, "", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"line two"}, lines)

	lines, err = s.LogQueue(ctx, "run1", "svcA", LogGet, "", 10)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestLocalStore_StateIsolatedAcrossRuntimes(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()
	require.NoError(t, s.WriteState(ctx, "run1", "x", 1, ModeSet))
	require.NoError(t, s.WriteState(ctx, "run2", "x", 2, ModeSet))

	tree1, _ := s.GetState(ctx, "run1")
	tree2, _ := s.GetState(ctx, "run2")
	assert.Equal(t, 1, tree1["x"])
	assert.Equal(t, 2, tree2["x"])
}
