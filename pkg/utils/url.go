package utils

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"
)

// nonPageExtensions are skipped at enqueue time
var nonPageExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".ico",
	".pdf", ".zip", ".gz", ".tar",
	".mp3", ".mp4",
	".js", ".css", ".woff", ".woff2",
}

// NormalizeURL canonicalises a URL for deduplication: scheme and host are
// lowercased, default ports and the fragment are dropped, an empty path becomes
// "/" and any other trailing slash is removed.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if port := u.Port(); (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = u.Hostname()
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	} else if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
		u.RawPath = ""
	}
	return u.String(), nil
}

// IsWebpageURL reports whether the URL path does not end in a known asset extension.
func IsWebpageURL(u *url.URL) bool {
	p := strings.ToLower(u.Path)
	for _, ext := range nonPageExtensions {
		if strings.HasSuffix(p, ext) {
			return false
		}
	}
	return true
}

// ResolveReference resolves href against base. It reports false for fragments
// and for javascript:, mailto:, tel: and data: links.
func ResolveReference(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return nil, false
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil, false
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs, true
}

// BasePath returns the directory that scopes a crawl started at seedPath. A
// final segment with an extension (e.g. "intro.html", "sitemap.xml") is dropped.
// The result never ends in a slash, and the root is "".
func BasePath(seedPath string) string {
	p := seedPath
	if p == "" {
		return ""
	}
	if !strings.HasSuffix(p, "/") && path.Ext(path.Base(p)) != "" {
		p = path.Dir(p)
	}
	return strings.TrimRight(p, "/")
}

// WithinBasePath reports whether p equals base or lies below it.
func WithinBasePath(p, base string) bool {
	if base == "" {
		return true
	}
	p = strings.TrimRight(p, "/")
	return p == base || strings.HasPrefix(p, base+"/")
}

// FilePathForURL maps a page URL onto a relative Markdown file path, removing
// the scope base path. A query string adds a hash suffix to the file name.
func FilePathForURL(rawURL, basePath string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "index.md"
	}
	p := u.Path
	if basePath != "" && WithinBasePath(p, basePath) {
		p = strings.TrimPrefix(p, basePath)
	}
	if strings.HasSuffix(p, "/") {
		p += "index"
	}
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		p = "index"
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".html", ".htm", ".md":
		p = strings.TrimSuffix(p, path.Ext(p))
	}
	if q := u.Query(); len(q) > 0 {
		h := fnv.New32a()
		_, _ = h.Write([]byte(q.Encode()))
		p += fmt.Sprintf("-%08x", h.Sum32())
	}
	return p + ".md"
}

var invalidPathChars = regexp.MustCompile(`[<>:"|?*]`)

// SanitizePath cleans a relative storage path: separators are normalised, leading
// slashes and "." segments dropped, ".." pops the previous segment and characters
// invalid in file names are removed. An empty result becomes "index.md".
func SanitizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	var parts []string
	for _, part := range strings.Split(p, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
			continue
		}
		part = invalidPathChars.ReplaceAllString(part, "")
		part = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) {
				return -1
			}
			return r
		}, part)
		if len(part) > 255 {
			part = part[:255]
		}
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "index.md"
	}
	return strings.Join(parts, "/")
}
