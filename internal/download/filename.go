package download

import (
	"crypto/sha1"
	"encoding/hex"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/webharvest/imgcrawler/internal/extract"
)

const (
	maxFilenameLen = 150
	truncatedLen   = 140
	defaultExt     = "jpg"
)

var contentTypeExtensions = map[string]string{
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/png":     "png",
	"image/gif":     "gif",
	"image/bmp":     "bmp",
	"image/webp":    "webp",
	"image/tiff":    "tiff",
	"image/svg+xml": "svg",
}

var invalidFilenameChars = []string{"<", ">", ":", "\"", "/", "\\", "|", "?", "*"}

// extensionFromContentType maps a Content-Type header value to a file
// extension, tolerating parameters and sloppy server values.
func extensionFromContentType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if ext, ok := contentTypeExtensions[contentType]; ok {
		return ext
	}
	for mimeType, ext := range contentTypeExtensions {
		if strings.HasPrefix(contentType, mimeType) {
			return ext
		}
	}
	switch {
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return "jpg"
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "gif"):
		return "gif"
	case strings.Contains(contentType, "webp"):
		return "webp"
	}
	return ""
}

// resolveExtension picks the on-disk extension. The URL suffix wins when the
// format filter explicitly allows it, because some origins declare a generic
// or negotiated content type while the URL is authoritative. Otherwise the
// declared content type wins, then the URL suffix, then the default.
func resolveExtension(rawURL, contentType string, formats []string) string {
	urlExt := extract.ExtensionFromURL(rawURL)
	if urlExt != "" && formatListed(formats, urlExt) {
		return urlExt
	}
	if ctExt := extensionFromContentType(contentType); ctExt != "" {
		return ctExt
	}
	if urlExt != "" {
		return urlExt
	}
	return defaultExt
}

func formatListed(formats []string, ext string) bool {
	for _, f := range formats {
		if f == ext {
			return true
		}
	}
	return false
}

// resolveFilename derives the save name: response disposition metadata first,
// then the percent-decoded URL basename, then a name generated from the URL's
// hash. The extension is always rewritten to ext and the result sanitized.
func resolveFilename(rawURL string, header http.Header, ext string) string {
	name := dispositionFilename(header)
	if name == "" {
		name = basenameFromURL(rawURL)
	}
	if name == "" {
		name = generatedName(rawURL, ext)
	}
	name = rewriteExtension(name, ext)
	name = sanitizeFilename(name)
	if name == "" {
		name = generatedName(rawURL, ext)
	}
	return name
}

func dispositionFilename(header http.Header) string {
	cd := header.Get("Content-Disposition")
	if cd == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func basenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if name == "." || name == "/" || !strings.Contains(name, ".") {
		return ""
	}
	return name
}

// generatedName hashes the source URL so the same asset always maps to the
// same fallback name.
func generatedName(rawURL, ext string) string {
	sum := sha1.Sum([]byte(rawURL))
	return "image_" + hex.EncodeToString(sum[:])[:10] + "." + ext
}

func rewriteExtension(name, ext string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + "." + ext
}

// sanitizeFilename replaces characters illegal in filesystem paths, caps the
// length, and strips leading/trailing whitespace and dots.
func sanitizeFilename(name string) string {
	for _, ch := range invalidFilenameChars {
		name = strings.ReplaceAll(name, ch, "_")
	}
	if len(name) > maxFilenameLen {
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		if len(stem) > truncatedLen {
			cut := truncatedLen
			// Back up so a multi-byte rune is never split.
			for cut > 0 && !utf8.RuneStart(stem[cut]) {
				cut--
			}
			stem = stem[:cut]
		}
		name = stem + ext
	}
	return strings.Trim(name, ". ")
}

// pathRegistry is the shared namespace of claimed save paths. Claiming is
// atomic with respect to concurrently completing downloads, so two workers
// can never resolve the same target path.
type pathRegistry struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

func newPathRegistry() *pathRegistry {
	return &pathRegistry{claimed: make(map[string]struct{})}
}

// Claim reserves a collision-free path for name under dir, appending an
// incrementing numeric suffix until a free path is found. The check against
// both the registry and the filesystem happens under one lock.
func (r *pathRegistry) Claim(dir, name string) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	r.mu.Lock()
	defer r.mu.Unlock()
	for n := 0; ; n++ {
		candidate := name
		if n > 0 {
			candidate = stem + "_" + strconv.Itoa(n) + ext
		}
		target := filepath.Join(dir, candidate)
		if _, taken := r.claimed[target]; taken {
			continue
		}
		if _, err := os.Stat(target); err == nil {
			r.claimed[target] = struct{}{} // existing file, keep probing past it
			continue
		}
		r.claimed[target] = struct{}{}
		return target
	}
}

// Release frees a claim whose write failed so the name can be reused.
func (r *pathRegistry) Release(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claimed, target)
}
