package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/amosWeiskopf/docsmith/internal/models"
	"github.com/amosWeiskopf/docsmith/pkg/utils"
)

// ScopePolicy decides which discovered links stay in the crawl
type ScopePolicy string

const (
	// ScopePath follows links on the seed host at or below the seed's base path
	ScopePath ScopePolicy = "path"
	// ScopeHost follows links anywhere on the seed host
	ScopeHost ScopePolicy = "host"
	// ScopeDomain follows links on any host sharing the seed's registrable domain
	ScopeDomain ScopePolicy = "domain"
)

// ParseScopePolicy validates a policy name. Empty selects ScopePath.
func ParseScopePolicy(name string) (ScopePolicy, error) {
	switch p := ScopePolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return ScopePath, nil
	case ScopePath, ScopeHost, ScopeDomain:
		return p, nil
	default:
		return "", models.NewCrawlError(models.KindInvalidInput, "", fmt.Sprintf("unknown scope %q", name), nil)
	}
}

type scope struct {
	policy   ScopePolicy
	host     string
	basePath string
	domain   string
}

func newScope(policy ScopePolicy, seed *url.URL) *scope {
	s := &scope{
		policy:   policy,
		host:     strings.ToLower(seed.Host),
		basePath: utils.BasePath(seed.Path),
	}
	s.domain = registrableDomain(seed.Hostname())
	return s
}

func registrableDomain(host string) string {
	host = strings.ToLower(host)
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// allows reports whether u may be enqueued
func (s *scope) allows(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !utils.IsWebpageURL(u) {
		return false
	}
	switch s.policy {
	case ScopeDomain:
		return registrableDomain(u.Hostname()) == s.domain
	case ScopeHost:
		return strings.EqualFold(u.Host, s.host)
	default:
		return strings.EqualFold(u.Host, s.host) && utils.WithinBasePath(u.Path, s.basePath)
	}
}
