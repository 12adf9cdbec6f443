package crawler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	visitedListName = "crawled_urls.txt"
	assetListName   = "image_urls.txt"
)

// WriteURLLists writes the visited-page and discovered-asset URL lists under
// dir, one URL per line. Result slices are already sorted.
func WriteURLLists(dir string, res Result) error {
	if err := writeLines(filepath.Join(dir, visitedListName), res.VisitedPages); err != nil {
		return fmt.Errorf("write visited list: %w", err)
	}
	if err := writeLines(filepath.Join(dir, assetListName), res.AssetURLs); err != nil {
		return fmt.Errorf("write asset list: %w", err)
	}
	return nil
}

func writeLines(path string, lines []string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
