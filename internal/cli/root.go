// Package cli implements the crawlgraph command surface: serve (runs the
// full crawl + index + query pipeline), seed (submits seed URLs to a
// running cluster's admin API), and pagerank (triggers one PageRank run,
// for external/k8s-cron invocation per spec §4.12).
package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/crawlgraph/crawlgraph/internal/build"
)

var (
	cfgFile      string
	seedURLs     []string
	maxDepth     int
	concurrency  int
	userAgent    string
	fetchTimeout time.Duration
	devMode      bool
	adminAddr    string
	publicAddr   string
	adminListen  string
	publicListen string
)

// rootCmd is the base command; it does nothing on its own, matching the
// convention of delegating all real work to subcommands.
var rootCmd = &cobra.Command{
	Use:     "crawlgraph",
	Short:   "A distributed web crawler and full-text search engine.",
	Version: build.FullVersion(),
	Long: `crawlgraph discovers, fetches, and indexes pages across the web,
computes PageRank over the link graph, and serves full-text search
queries over the result. It runs as a set of cooperating components
(frontier, fetch workers, link-discovery workers, indexer, PageRank job,
query service) sharing Redis, Postgres, Kafka, and a Bleve index.`,
}

// Execute runs the root command. Called once from main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path")
	rootCmd.PersistentFlags().StringArrayVar(&seedURLs, "seed-url", []string{}, "one or more starting URLs (can be repeated)")
	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 0, "maximum link depth from seed URL")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "number of concurrent fetch workers")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&fetchTimeout, "fetch-timeout", 0, "per-request HTTP fetch timeout")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "use in-memory store/bus adapters instead of Redis/Postgres/Kafka/Bleve")
	rootCmd.PersistentFlags().StringVar(&adminListen, "admin-listen", "", "override the admin API listen address")
	rootCmd.PersistentFlags().StringVar(&publicListen, "public-listen", "", "override the public search API listen address")
	rootCmd.PersistentFlags().StringVar(&adminAddr, "admin-addr", "http://127.0.0.1:8081", "admin API base URL, used by the seed and pagerank commands")
	rootCmd.PersistentFlags().StringVar(&publicAddr, "public-addr", "http://127.0.0.1:8080", "public API base URL")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(pagerankCmd)
}

// ResetFlags restores every persistent flag to its zero value; tests use
// this between cases since cobra flag state is package-global.
func ResetFlags() {
	cfgFile = ""
	seedURLs = []string{}
	maxDepth = 0
	concurrency = 0
	userAgent = ""
	fetchTimeout = 0
	devMode = false
	adminListen = ""
	publicListen = ""
	adminAddr = "http://127.0.0.1:8081"
	publicAddr = "http://127.0.0.1:8080"
}

func SetSeedURLsForTest(urls []string) { seedURLs = urls }
func SetDevModeForTest(dev bool)       { devMode = dev }
func SetAdminAddrForTest(addr string)  { adminAddr = addr }
