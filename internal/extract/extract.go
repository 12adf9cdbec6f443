// Package extract pulls image asset candidates and same-host links out of
// HTML. Extraction is pure: no I/O, deterministic output for a given body and
// base URL.
package extract

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/webharvest/imgcrawler/internal/crawler"
)

var (
	cssURLPattern = regexp.MustCompile(`url\(['"]?([^'"()]+)['"]?\)`)

	// Absolute image-like URL literals inside script or JSON text.
	scriptURLPattern = regexp.MustCompile(
		`https?://[^\s"'<>\\]+\.(?:jpe?g|png|gif|webp|bmp|svg|tiff)(?:\?[^\s"'<>\\]*)?`)
)

// Lazy-load attribute variants carrying a deferred image source.
var imageAttrs = []string{"src", "data-src", "data-lazy-src", "data-original"}

var srcsetAttrs = []string{"srcset", "data-srcset"}

var metaImageKeys = map[string]struct{}{
	"og:image":            {},
	"og:image:secure_url": {},
	"twitter:image":       {},
	"twitter:image:src":   {},
}

var imageExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {},
	"webp": {}, "bmp": {}, "svg": {}, "tiff": {},
}

// Suffixes of known non-image asset types: scripts, styles, fonts, markup,
// documents.
var excludedSuffixes = []string{
	".js", ".mjs", ".css", ".woff", ".woff2", ".ttf", ".otf", ".eot",
	".html", ".htm", ".xhtml", ".xml", ".json", ".pdf", ".doc", ".docx",
}

var imagePathSegments = []string{
	"/images/", "/image/", "/img/", "/media/", "/uploads/",
	"/photos/", "/photo/", "/thumbs/", "/thumbnails/", "/wp-content/",
}

var imageHostPrefixes = []string{
	"img.", "image.", "images.", "cdn.", "static.", "media.", "pics.",
}

// Extractor implements crawler.Extractor. A non-empty format list restricts
// asset candidates to URLs whose extension hint is in the list.
type Extractor struct {
	formats []string
}

// New builds an Extractor with an optional format allow-list.
func New(formats []string) *Extractor {
	return &Extractor{formats: formats}
}

// Extract unions every discovery strategy into one asset set and collects
// same-host links, all resolved to absolute form against baseURL.
func (e *Extractor) Extract(body, baseURL string) (crawler.Extraction, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return crawler.Extraction{}, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return crawler.Extraction{}, fmt.Errorf("parse html: %w", err)
	}

	assets := make(map[string]struct{})
	addAsset := func(raw string) {
		abs, ok := resolve(base, raw)
		if !ok {
			return
		}
		if !e.acceptAsset(abs) {
			return
		}
		assets[abs] = struct{}{}
	}

	doc.Find("img, source").Each(func(_ int, sel *goquery.Selection) {
		for _, attr := range imageAttrs {
			if v, ok := sel.Attr(attr); ok {
				addAsset(v)
			}
		}
		for _, attr := range srcsetAttrs {
			if v, ok := sel.Attr(attr); ok {
				for _, candidate := range parseSrcset(v) {
					addAsset(candidate)
				}
			}
		}
	})

	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		key, _ := sel.Attr("property")
		if key == "" {
			key, _ = sel.Attr("name")
		}
		if _, ok := metaImageKeys[key]; !ok {
			return
		}
		if content, ok := sel.Attr("content"); ok {
			addAsset(content)
		}
	})

	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		for _, m := range cssURLPattern.FindAllStringSubmatch(sel.Text(), -1) {
			addAsset(m[1])
		}
	})
	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		style, _ := sel.Attr("style")
		for _, m := range cssURLPattern.FindAllStringSubmatch(style, -1) {
			addAsset(m[1])
		}
	})

	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		for _, m := range scriptURLPattern.FindAllString(sel.Text(), -1) {
			addAsset(m)
		}
	})

	links := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		abs, ok := resolve(base, href)
		if !ok {
			return
		}
		u, err := url.Parse(abs)
		if err != nil {
			return
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		// Full authority comparison: a different port is a different site.
		if !strings.EqualFold(u.Host, base.Host) {
			return
		}
		links[abs] = struct{}{}
	})

	return crawler.Extraction{
		AssetURLs: sortedKeys(assets),
		LinkURLs:  sortedKeys(links),
	}, nil
}

// acceptAsset applies the post-filter heuristic: known non-image suffixes are
// excluded, known image suffixes, image path segments, and image-serving
// subdomains are included, and anything else is excluded by default.
func (e *Extractor) acceptAsset(abs string) bool {
	u, err := url.Parse(abs)
	if err != nil {
		return false
	}
	lowerPath := strings.ToLower(u.Path)
	for _, suffix := range excludedSuffixes {
		if strings.HasSuffix(lowerPath, suffix) {
			return false
		}
	}

	include := ExtensionFromURL(abs) != ""
	if !include {
		for _, seg := range imagePathSegments {
			if strings.Contains(lowerPath, seg) {
				include = true
				break
			}
		}
	}
	if !include {
		host := strings.ToLower(u.Hostname())
		for _, prefix := range imageHostPrefixes {
			if strings.HasPrefix(host, prefix) {
				include = true
				break
			}
		}
	}
	if !include {
		return false
	}

	if len(e.formats) > 0 {
		hint := ExtensionHint(abs)
		for _, f := range e.formats {
			if f == hint {
				return true
			}
		}
		return false
	}
	return true
}

// ExtensionFromURL returns the URL path's extension when it names a known
// image format, normalized to lowercase with jpeg folded into jpg. It returns
// the empty string otherwise.
func ExtensionFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	if ext == "jpeg" {
		ext = "jpg"
	}
	if _, ok := imageExtensions[ext]; !ok {
		return ""
	}
	return ext
}

// ExtensionHint is ExtensionFromURL with the historical jpg default for URLs
// whose path carries no recognizable image extension.
func ExtensionHint(raw string) string {
	if ext := ExtensionFromURL(raw); ext != "" {
		return ext
	}
	return "jpg"
}

// parseSrcset splits responsive image syntax into its URL tokens, dropping
// the width/density descriptors.
func parseSrcset(srcset string) []string {
	var out []string
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(candidate))
		if len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

func resolve(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "#") {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
