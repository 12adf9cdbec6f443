package crawler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteURLLists(t *testing.T) {
	dir := t.TempDir()
	res := Result{
		VisitedPages: []string{"https://x.test/", "https://x.test/p1"},
		AssetURLs:    []string{"https://x.test/a.jpg"},
	}
	require.NoError(t, WriteURLLists(dir, res))

	visited, err := os.ReadFile(filepath.Join(dir, "crawled_urls.txt"))
	require.NoError(t, err)
	require.Equal(t, "https://x.test/\nhttps://x.test/p1\n", string(visited))

	assets, err := os.ReadFile(filepath.Join(dir, "image_urls.txt"))
	require.NoError(t, err)
	require.Equal(t, "https://x.test/a.jpg\n", string(assets))
}

func TestWriteURLListsEmptyResult(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteURLLists(dir, Result{}))
	for _, name := range []string{"crawled_urls.txt", "image_urls.txt"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		require.Empty(t, data)
	}
}
