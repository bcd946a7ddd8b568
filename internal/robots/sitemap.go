package robots

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"
)

// sitemapURLSet mirrors the subset of the sitemap XML schema this repo
// consumes: a flat list of <loc> entries. Sitemap indexes (<sitemapindex>)
// are out of scope for the supplemental expansion flow.
type sitemapURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// ExpandSitemap fetches and parses a sitemap URL recorded from
// robots.txt, returning the discovered page URLs (SPEC_FULL §C.3). It is
// additive: spec.md records sitemap URLs but does not specify consuming
// them.
func ExpandSitemap(ctx context.Context, sitemapURL string, connectTimeout, readTimeout time.Duration, maxBytes int64) ([]string, error) {
	client := &http.Client{Timeout: connectTimeout + readTimeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Message: err.Error(), Cause: ErrCauseNetworkFailure}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &Error{Message: fmt.Sprintf("sitemap fetch status %d", resp.StatusCode), Cause: ErrCauseNetworkFailure}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, &Error{Message: err.Error(), Cause: ErrCauseNetworkFailure}
	}

	var parsed sitemapURLSet
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, &Error{Message: err.Error(), Cause: ErrCauseNetworkFailure}
	}

	urls := make([]string, 0, len(parsed.URLs))
	for _, u := range parsed.URLs {
		if u.Loc != "" {
			urls = append(urls, u.Loc)
		}
	}
	return urls, nil
}
