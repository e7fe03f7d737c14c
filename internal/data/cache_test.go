package data

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestCachePutGetRoundTrip(t *testing.T) {
	c, err := NewCache(t.TempDir(), testLogger())
	require.NoError(t, err)

	require.False(t, c.Has("dataset", "SPY", "options"))

	payload := []byte("hello chains")
	require.NoError(t, c.Put("dataset", "SPY", "options", payload))

	assert.True(t, c.Has("dataset", "SPY", "options"))
	got, err := c.Get("dataset", "SPY", "options")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestCacheGetMissReturnsErrNoData(t *testing.T) {
	c, err := NewCache(t.TempDir(), testLogger())
	require.NoError(t, err)

	_, err = c.Get("dataset", "QQQ", "options")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestCacheKeyIsCaseInsensitiveOnTicker(t *testing.T) {
	c, err := NewCache(t.TempDir(), testLogger())
	require.NoError(t, err)

	require.NoError(t, c.Put("dataset", "spy", "options", []byte("x")))
	assert.True(t, c.Has("dataset", "SPY", "options"))
}

func TestCacheInvalidate(t *testing.T) {
	c, err := NewCache(t.TempDir(), testLogger())
	require.NoError(t, err)

	require.NoError(t, c.Put("dataset", "SPY", "options", []byte("x")))

	removed, err := c.Invalidate("dataset", "SPY", "options")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, c.Has("dataset", "SPY", "options"))

	removed, err = c.Invalidate("dataset", "SPY", "options")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCacheClear(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir, testLogger())
	require.NoError(t, err)

	require.NoError(t, c.Put("dataset", "SPY", "options", []byte("x")))
	require.NoError(t, c.Put("dataset", "QQQ", "underlying", []byte("y")))

	require.NoError(t, c.Clear())
	assert.False(t, c.Has("dataset", "SPY", "options"))
	assert.False(t, c.Has("dataset", "QQQ", "underlying"))

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Files)
}

func TestCacheSurvivesCorruptManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), []byte("{not json"), 0o600))

	c, err := NewCache(dir, testLogger())
	require.NoError(t, err)

	require.NoError(t, c.Put("dataset", "SPY", "options", []byte("x")))
	assert.True(t, c.Has("dataset", "SPY", "options"))
}

func TestCacheStats(t *testing.T) {
	c, err := NewCache(t.TempDir(), testLogger())
	require.NoError(t, err)

	require.NoError(t, c.Put("dataset", "SPY", "options", []byte("abcd")))
	require.NoError(t, c.Put("dataset", "SPY", "underlying", []byte("ab")))

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, int64(6), stats.TotalSize)
}
