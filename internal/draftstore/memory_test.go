package draftstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	got, err := m.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, m.Save(ctx, "k", []byte("draft"), time.Hour))
	got, err = m.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("draft"), got)

	now = now.Add(time.Hour)
	got, err = m.Load(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got, "expired entries are dropped")

	require.NoError(t, m.Save(ctx, "forever", []byte("x"), 0))
	now = now.Add(1000 * time.Hour)
	got, err = m.Load(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)

	require.NoError(t, m.Delete(ctx, "forever"))
	got, err = m.Load(ctx, "forever")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemory_CopiesData(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	buf := []byte("abc")
	require.NoError(t, m.Save(ctx, "k", buf, 0))
	buf[0] = 'z'

	got, err := m.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}
