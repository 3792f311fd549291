package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock_Deterministic(t *testing.T) {
	m := NewMock(16)
	ctx := context.Background()

	v1, err := m.Embed(ctx, "hello world")
	require.NoError(t, err)
	v2, err := m.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 16)
}

func TestMock_DifferentTextDifferentVector(t *testing.T) {
	m := NewMock(16)
	ctx := context.Background()

	v1, err := m.Embed(ctx, "alpha")
	require.NoError(t, err)
	v2, err := m.Embed(ctx, "beta")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}

func TestMock_DefaultDimension(t *testing.T) {
	m := NewMock(0)
	assert.Equal(t, 8, m.Dimension())
}
