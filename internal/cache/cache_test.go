package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Eviction(t *testing.T) {
	c := New[int](2)
	c.Put("a", "a.csv", 1)
	c.Put("b", "b.csv", 2)

	// Touch "a" so "b" becomes LRU.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", "c.csv", 3)

	_, ok = c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestCache_UpdateExisting(t *testing.T) {
	c := New[string](2)
	c.Put("k", "p", "old")
	c.Put("k", "p", "new")

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, c.Len())
}

func TestCache_InvalidateByPath(t *testing.T) {
	c := New[int](4)
	c.Put("k1", "data.csv", 1)
	c.Put("k2", "data.csv", 2)
	c.Put("k3", "other.csv", 3)

	assert.Equal(t, 2, c.Invalidate("data.csv"))
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("k3")
	assert.True(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCache_OnLookup(t *testing.T) {
	c := New[int](1)
	var hits, misses int
	c.OnLookup = func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}
	c.Get("x")
	c.Put("x", "x", 1)
	c.Get("x")
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestFileKey_ChangesWithContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0o644))

	k1, err := FileKey(path)
	require.NoError(t, err)
	k2, err := FileKey(path)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	k3, err := FileKey(path)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestFileKey_Missing(t *testing.T) {
	_, err := FileKey(filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGetOrLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	c := New[int](4)
	calls := 0
	load := func() (int, error) {
		calls++
		return 42, nil
	}

	v, err := GetOrLoad(c, path, load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	_, err = GetOrLoad(c, path, load)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	c.Invalidate(path)
	_, err = GetOrLoad(c, path, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	boom := errors.New("boom")
	other := filepath.Join(t.TempDir(), "other.csv")
	require.NoError(t, os.WriteFile(other, []byte("y"), 0o644))
	_, err = GetOrLoad(c, other, func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, c.Len())
}
