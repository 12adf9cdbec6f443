package download

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestExtensionFromContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"image/jpeg", "jpg"},
		{"image/png", "png"},
		{"image/svg+xml", "svg"},
		{"IMAGE/PNG", "png"},
		{"image/jpeg; charset=utf-8", "jpg"},
		{"application/x-jpeg-stream", "jpg"},
		{"text/html", ""},
		{"", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, extensionFromContentType(tt.contentType), tt.contentType)
	}
}

func TestResolveExtension(t *testing.T) {
	tests := []struct {
		name        string
		rawURL      string
		contentType string
		formats     []string
		want        string
	}{
		{"url wins when format listed", "https://x.test/a.png", "image/webp", []string{"png"}, "png"},
		{"content type wins otherwise", "https://x.test/a.png", "image/webp", nil, "webp"},
		{"url fallback without content type", "https://x.test/a.gif", "application/octet-stream", nil, "gif"},
		{"default when nothing matches", "https://x.test/asset", "application/octet-stream", nil, "jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, resolveExtension(tt.rawURL, tt.contentType, tt.formats))
		})
	}
}

func TestResolveFilename(t *testing.T) {
	t.Run("url basename", func(t *testing.T) {
		got := resolveFilename("https://x.test/photos/sunset.jpg?w=200", http.Header{}, "jpg")
		require.Equal(t, "sunset.jpg", got)
	})

	t.Run("percent decoding", func(t *testing.T) {
		got := resolveFilename("https://x.test/my%20photo.png", http.Header{}, "png")
		require.Equal(t, "my photo.png", got)
	})

	t.Run("disposition wins", func(t *testing.T) {
		h := http.Header{}
		h.Set("Content-Disposition", `attachment; filename="served.png"`)
		got := resolveFilename("https://x.test/raw.jpg", h, "png")
		require.Equal(t, "served.png", got)
	})

	t.Run("extension rewritten", func(t *testing.T) {
		got := resolveFilename("https://x.test/pic.jpeg", http.Header{}, "jpg")
		require.Equal(t, "pic.jpg", got)
	})

	t.Run("generated for extensionless path", func(t *testing.T) {
		got := resolveFilename("https://x.test/gallery/view", http.Header{}, "gif")
		require.True(t, strings.HasPrefix(got, "image_"), got)
		require.True(t, strings.HasSuffix(got, ".gif"), got)
	})

	t.Run("generated name is stable per URL", func(t *testing.T) {
		first := resolveFilename("https://x.test/gallery/view", http.Header{}, "gif")
		again := resolveFilename("https://x.test/gallery/view", http.Header{}, "gif")
		require.Equal(t, first, again)

		other := resolveFilename("https://x.test/gallery/other", http.Header{}, "gif")
		require.NotEqual(t, first, other)
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`a<b>c:d"e.jpg`, "a_b_c_d_e.jpg"},
		{"..leading.jpg ", "leading.jpg"},
		{"plain.png", "plain.png"},
		{"path/traversal.gif", "path_traversal.gif"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}

func TestSanitizeFilenameTruncates(t *testing.T) {
	long := strings.Repeat("a", 300) + ".jpg"
	got := sanitizeFilename(long)
	require.Equal(t, strings.Repeat("a", 140)+".jpg", got)
}

func TestSanitizeFilenameTruncatesOnRuneBoundary(t *testing.T) {
	// 50 three-byte runes: the 140-byte cap falls mid-rune.
	long := strings.Repeat("日", 50) + ".jpg"
	got := sanitizeFilename(long)
	require.True(t, utf8.ValidString(got), got)
	require.Equal(t, strings.Repeat("日", 46)+".jpg", got)
}

func TestPathRegistryClaimSuffixes(t *testing.T) {
	dir := t.TempDir()
	reg := newPathRegistry()

	require.Equal(t, filepath.Join(dir, "photo.jpg"), reg.Claim(dir, "photo.jpg"))
	require.Equal(t, filepath.Join(dir, "photo_1.jpg"), reg.Claim(dir, "photo.jpg"))
	require.Equal(t, filepath.Join(dir, "photo_2.jpg"), reg.Claim(dir, "photo.jpg"))
}

func TestPathRegistryClaimSkipsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.jpg"), []byte("x"), 0o600))

	reg := newPathRegistry()
	require.Equal(t, filepath.Join(dir, "photo_1.jpg"), reg.Claim(dir, "photo.jpg"))
}

func TestPathRegistryReleaseReusesName(t *testing.T) {
	dir := t.TempDir()
	reg := newPathRegistry()

	target := reg.Claim(dir, "photo.jpg")
	reg.Release(target)
	require.Equal(t, target, reg.Claim(dir, "photo.jpg"))
}

func TestPathRegistryConcurrentClaimsAreDistinct(t *testing.T) {
	dir := t.TempDir()
	reg := newPathRegistry()

	const workers = 20
	var (
		mu      sync.Mutex
		targets = make(map[string]struct{})
		wg      sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			target := reg.Claim(dir, "photo.jpg")
			mu.Lock()
			targets[target] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, targets, workers)
}
