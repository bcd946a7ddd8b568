package config

import "time"

// This file extends Config with the distributed-crawler tunables added on
// top of the teacher's crawl-scope/politeness/extraction fields: the
// politeness governor (C4), frontier/scheduler cadence (C6/C7), dedup
// sizing (C2/C10), robots/sitemap timeouts (C3), fetch limits (C8), and
// PageRank/query knobs (C12/C13). Same functional-builder idiom as the
// rest of Config.

func (c *Config) WithTokenBucketCapacity(capacity float64) *Config {
	c.tokenBucketCapacity = capacity
	return c
}

func (c *Config) WithTokenBucketRefillPerSecond(rate float64) *Config {
	c.tokenBucketRefillPerSecond = rate
	return c
}

func (c *Config) WithCircuitBreakerFailThreshold(n int) *Config {
	c.circuitBreakerFailThreshold = n
	return c
}

func (c *Config) WithCircuitBreakerSuccessThreshold(n int) *Config {
	c.circuitBreakerSuccessThreshold = n
	return c
}

func (c *Config) WithCircuitBreakerCooldown(d time.Duration) *Config {
	c.circuitBreakerCooldown = d
	return c
}

func (c *Config) WithMaxConcurrentPerDomain(n int) *Config {
	c.maxConcurrentPerDomain = n
	return c
}

func (c *Config) WithFrontierStrategy(strategy string) *Config {
	c.frontierStrategy = strategy
	return c
}

func (c *Config) WithFrontierMaxPopPerTick(n int) *Config {
	c.frontierMaxPopPerTick = n
	return c
}

func (c *Config) WithSchedulerTickInterval(d time.Duration) *Config {
	c.schedulerTickInterval = d
	return c
}

func (c *Config) WithRetryScanInterval(d time.Duration) *Config {
	c.retryScanInterval = d
	return c
}

func (c *Config) WithReaperInterval(d time.Duration) *Config {
	c.reaperInterval = d
	return c
}

func (c *Config) WithReaperStaleAfter(d time.Duration) *Config {
	c.reaperStaleAfter = d
	return c
}

func (c *Config) WithMaxRetryCount(n int) *Config {
	c.maxRetryCount = n
	return c
}

func (c *Config) WithFocusedKeywords(keywords []string) *Config {
	c.focusedKeywords = keywords
	return c
}

func (c *Config) WithFocusedDomainWhitelist(domains map[string]struct{}) *Config {
	c.focusedDomainWhitelist = domains
	return c
}

func (c *Config) WithBloomFilterExpectedElements(n uint) *Config {
	c.bloomFilterExpectedElements = n
	return c
}

func (c *Config) WithBloomFilterFalsePositive(p float64) *Config {
	c.bloomFilterFalsePositive = p
	return c
}

func (c *Config) WithSimhashHammingThreshold(n int) *Config {
	c.simhashHammingThreshold = n
	return c
}

func (c *Config) WithFingerprintTTL(d time.Duration) *Config {
	c.fingerprintTTL = d
	return c
}

func (c *Config) WithRobotsTimeouts(connect, read time.Duration) *Config {
	c.robotsConnectTimeout = connect
	c.robotsReadTimeout = read
	return c
}

func (c *Config) WithSitemapLimits(connect, read time.Duration, maxBytes int64) *Config {
	c.sitemapConnectTimeout = connect
	c.sitemapReadTimeout = read
	c.sitemapMaxBytes = maxBytes
	return c
}

func (c *Config) WithFetchMaxRedirects(n int) *Config {
	c.fetchMaxRedirects = n
	return c
}

func (c *Config) WithFetchMaxBodyBytes(n int64) *Config {
	c.fetchMaxBodyBytes = n
	return c
}

func (c *Config) WithPageRankDamping(d float64) *Config {
	c.pageRankDamping = d
	return c
}

func (c *Config) WithPageRankMaxIterations(n int) *Config {
	c.pageRankMaxIterations = n
	return c
}

func (c *Config) WithPageRankConvergenceThreshold(t float64) *Config {
	c.pageRankConvergenceThreshold = t
	return c
}

func (c *Config) WithPageRankCronSchedule(cron string) *Config {
	c.pageRankCronSchedule = cron
	return c
}

func (c *Config) WithQueryTimeout(d time.Duration) *Config {
	c.queryTimeout = d
	return c
}

func (c *Config) WithQueryIndexTimeout(d time.Duration) *Config {
	c.queryIndexTimeout = d
	return c
}

func (c *Config) WithQueryResultCacheTTL(d time.Duration) *Config {
	c.queryResultCacheTTL = d
	return c
}

func (c *Config) WithQueryMaxSameDomain(n int) *Config {
	c.queryMaxSameDomain = n
	return c
}

func (c *Config) WithQueryDiversifyTopN(n int) *Config {
	c.queryDiversifyTopN = n
	return c
}

func (c Config) TokenBucketCapacity() float64            { return c.tokenBucketCapacity }
func (c Config) TokenBucketRefillPerSecond() float64      { return c.tokenBucketRefillPerSecond }
func (c Config) CircuitBreakerFailThreshold() int         { return c.circuitBreakerFailThreshold }
func (c Config) CircuitBreakerSuccessThreshold() int      { return c.circuitBreakerSuccessThreshold }
func (c Config) CircuitBreakerCooldown() time.Duration    { return c.circuitBreakerCooldown }
func (c Config) MaxConcurrentPerDomain() int              { return c.maxConcurrentPerDomain }

func (c Config) FrontierStrategy() string       { return c.frontierStrategy }
func (c Config) FrontierMaxPopPerTick() int     { return c.frontierMaxPopPerTick }
func (c Config) SchedulerTickInterval() time.Duration { return c.schedulerTickInterval }
func (c Config) RetryScanInterval() time.Duration     { return c.retryScanInterval }
func (c Config) ReaperInterval() time.Duration        { return c.reaperInterval }
func (c Config) ReaperStaleAfter() time.Duration      { return c.reaperStaleAfter }
func (c Config) MaxRetryCount() int                   { return c.maxRetryCount }
func (c Config) FocusedKeywords() []string            { return c.focusedKeywords }
func (c Config) FocusedDomainWhitelist() map[string]struct{} { return c.focusedDomainWhitelist }

func (c Config) BloomFilterExpectedElements() uint { return c.bloomFilterExpectedElements }
func (c Config) BloomFilterFalsePositive() float64 { return c.bloomFilterFalsePositive }
func (c Config) SimhashHammingThreshold() int      { return c.simhashHammingThreshold }
func (c Config) FingerprintTTL() time.Duration     { return c.fingerprintTTL }

func (c Config) RobotsConnectTimeout() time.Duration  { return c.robotsConnectTimeout }
func (c Config) RobotsReadTimeout() time.Duration     { return c.robotsReadTimeout }
func (c Config) SitemapConnectTimeout() time.Duration { return c.sitemapConnectTimeout }
func (c Config) SitemapReadTimeout() time.Duration    { return c.sitemapReadTimeout }
func (c Config) SitemapMaxBytes() int64               { return c.sitemapMaxBytes }

func (c Config) FetchMaxRedirects() int   { return c.fetchMaxRedirects }
func (c Config) FetchMaxBodyBytes() int64 { return c.fetchMaxBodyBytes }

func (c Config) PageRankDamping() float64                  { return c.pageRankDamping }
func (c Config) PageRankMaxIterations() int                { return c.pageRankMaxIterations }
func (c Config) PageRankConvergenceThreshold() float64      { return c.pageRankConvergenceThreshold }
func (c Config) PageRankCronSchedule() string               { return c.pageRankCronSchedule }

func (c Config) QueryTimeout() time.Duration        { return c.queryTimeout }
func (c Config) QueryIndexTimeout() time.Duration   { return c.queryIndexTimeout }
func (c Config) QueryResultCacheTTL() time.Duration { return c.queryResultCacheTTL }
func (c Config) QueryMaxSameDomain() int            { return c.queryMaxSameDomain }
func (c Config) QueryDiversifyTopN() int            { return c.queryDiversifyTopN }
