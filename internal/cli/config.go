package cli

import (
	"fmt"
	"net/url"

	"github.com/crawlgraph/crawlgraph/internal/config"
)

// buildConfig assembles a config.Config from whatever --seed-url/--max-depth/
// etc. flags were passed, following the teacher's With...-chain builder
// idiom. At least one seed URL is required even for `serve`: additional
// seeds can always be admitted later through the admin API's POST
// /api/v1/admin/crawl/seeds.
func buildConfig() (config.Config, error) {
	if len(seedURLs) == 0 {
		return config.Config{}, fmt.Errorf("%w: at least one --seed-url is required", config.ErrInvalidConfig)
	}

	parsed := make([]url.URL, 0, len(seedURLs))
	for _, raw := range seedURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return config.Config{}, fmt.Errorf("parsing seed URL %s: %w", raw, err)
		}
		parsed = append(parsed, *u)
	}

	if cfgFile != "" {
		return config.WithConfigFile(cfgFile)
	}

	builder := config.WithDefault(parsed)
	if maxDepth > 0 {
		builder = builder.WithMaxDepth(maxDepth)
	}
	if concurrency > 0 {
		builder = builder.WithConcurrency(concurrency)
	}
	if userAgent != "" {
		builder = builder.WithUserAgent(userAgent)
	}
	if fetchTimeout > 0 {
		builder = builder.WithTimeout(fetchTimeout)
	}

	return builder.Build()
}
