// Package robots implements the Robots Cache (spec C3): fetch, parse, and
// cache robots.txt per domain, with a 24h TTL and sitemap recording.
package robots

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/store"
)

const maxRobotsBodyBytes = 500 * 1024

// Cache fetches, parses, and caches robots.txt rulesets per domain.
type Cache struct {
	kv         store.KV
	httpClient *http.Client
	userAgent  string
}

func NewCache(kv store.KV, userAgent string, connectTimeout, readTimeout time.Duration) *Cache {
	return &Cache{
		kv: kv,
		httpClient: &http.Client{
			Timeout: connectTimeout + readTimeout,
		},
		userAgent: userAgent,
	}
}

func cacheKey(domain string) string {
	return "robots:" + domain
}

// IsAllowed reports whether path on domain may be fetched under the
// cached (or freshly fetched) ruleset.
func (c *Cache) IsAllowed(ctx context.Context, scheme, domain, path string) (bool, error) {
	entry, err := c.getOrFetch(ctx, scheme, domain)
	if err != nil {
		return false, err
	}
	return evaluate(entry.Rules, path), nil
}

func (c *Cache) getOrFetch(ctx context.Context, scheme, domain string) (model.RobotsCacheEntry, error) {
	if raw, ok, err := c.kv.Get(ctx, cacheKey(domain)); err == nil && ok {
		var entry model.RobotsCacheEntry
		if json.Unmarshal(raw, &entry) == nil {
			if time.Since(entry.FetchedAt) < model.RobotsCacheTTL {
				return entry, nil
			}
		}
	}

	entry, err := c.fetch(ctx, scheme, domain)
	if err != nil {
		return model.RobotsCacheEntry{}, err
	}

	if raw, marshalErr := json.Marshal(entry); marshalErr == nil {
		_ = c.kv.Set(ctx, cacheKey(domain), raw, model.RobotsCacheTTL)
	}
	return entry, nil
}

func (c *Cache) fetch(ctx context.Context, scheme, domain string) (model.RobotsCacheEntry, error) {
	url := fmt.Sprintf("%s://%s/robots.txt", scheme, domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.RobotsCacheEntry{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failure fetching robots.txt: only an HTTP response of
		// 404 or any other status >= 400 is negative-cached as allow-all
		// below; a transport error is retried by the caller's normal
		// retry path, so surface it.
		return model.RobotsCacheEntry{}, &Error{Message: err.Error(), Cause: ErrCauseNetworkFailure}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.RobotsCacheEntry{Domain: domain, FetchedAt: time.Now(), Exists: false}, nil
	}
	if resp.StatusCode >= 400 {
		return model.RobotsCacheEntry{Domain: domain, FetchedAt: time.Now(), Exists: false}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return model.RobotsCacheEntry{}, &Error{Message: err.Error(), Cause: ErrCauseNetworkFailure}
	}

	rules, crawlDelay, sitemaps := Parse(string(body), c.userAgent)
	return model.RobotsCacheEntry{
		Domain:      domain,
		Rules:       rules,
		CrawlDelay:  crawlDelay,
		SitemapURLs: sitemaps,
		FetchedAt:   time.Now(),
		Exists:      true,
	}, nil
}

// group is one user-agent block from robots.txt, in original order.
type group struct {
	agents     []string
	rules      []model.RobotsRule
	crawlDelay time.Duration
}

// Parse parses a robots.txt body, selecting the rule group with the
// longest matching user-agent for userAgent, falling back to "*".
// Comments are stripped at '#'; parsing is case-insensitive on field
// names.
func Parse(body string, userAgent string) ([]model.RobotsRule, time.Duration, []string) {
	var groups []group
	var sitemaps []string
	var current *group

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := stripComment(scanner.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		field, value, ok := splitDirective(line)
		if !ok {
			continue
		}

		switch strings.ToLower(field) {
		case "user-agent":
			if current == nil || len(current.rules) > 0 || current.crawlDelay > 0 {
				groups = append(groups, group{})
				current = &groups[len(groups)-1]
			}
			current.agents = append(current.agents, strings.ToLower(value))
		case "allow", "disallow":
			if current == nil {
				groups = append(groups, group{agents: []string{"*"}})
				current = &groups[len(groups)-1]
			}
			current.rules = append(current.rules, model.RobotsRule{
				Pattern: value,
				Allow:   strings.ToLower(field) == "allow",
			})
		case "crawl-delay":
			if current != nil {
				if secs, err := parseSeconds(value); err == nil {
					current.crawlDelay = secs
				}
			}
		case "sitemap":
			sitemaps = append(sitemaps, value)
		}
	}

	best := selectBestGroup(groups, strings.ToLower(userAgent))
	if best == nil {
		return nil, 0, sitemaps
	}
	return best.rules, best.crawlDelay, sitemaps
}

func selectBestGroup(groups []group, userAgent string) *group {
	var best *group
	bestLen := -1
	var wildcard *group

	for i := range groups {
		g := &groups[i]
		for _, agent := range g.agents {
			if agent == "*" {
				wildcard = g
				continue
			}
			if strings.Contains(userAgent, agent) && len(agent) > bestLen {
				best = g
				bestLen = len(agent)
			}
		}
	}
	if best != nil {
		return best
	}
	return wildcard
}

func stripComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}

func splitDirective(line string) (field, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func parseSeconds(value string) (time.Duration, error) {
	var secs float64
	if _, err := fmt.Sscanf(value, "%f", &secs); err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// evaluate applies the longest-matching-pattern rule (ties broken by
// Allow) over rules, in original order, against path.
func evaluate(rules []model.RobotsRule, path string) bool {
	bestLen := -1
	allowed := true // default allow when no rule matches

	for _, rule := range rules {
		if !matchesPattern(rule.Pattern, path) {
			continue
		}
		length := len(rule.Pattern)
		if length > bestLen {
			bestLen = length
			allowed = rule.Allow
		} else if length == bestLen && rule.Allow {
			// tie broken by Allow
			allowed = true
		}
	}
	return allowed
}

// matchesPattern implements robots.txt pattern matching: '*' matches any
// sequence, '$' anchors end-of-path, all other regex metacharacters are
// literal.
func matchesPattern(pattern, path string) bool {
	if pattern == "" {
		return false
	}
	anchored := strings.HasSuffix(pattern, "$")
	pattern = strings.TrimSuffix(pattern, "$")

	segments := strings.Split(pattern, "*")
	pos := 0
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		idx := strings.Index(path[pos:], seg)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(seg)
	}
	if anchored && pos != len(path) {
		return false
	}
	return true
}
