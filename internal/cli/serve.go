package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/crawlgraph/crawlgraph/internal/bus"
	"github.com/crawlgraph/crawlgraph/internal/config"
	"github.com/crawlgraph/crawlgraph/internal/dedup"
	"github.com/crawlgraph/crawlgraph/internal/extractor"
	"github.com/crawlgraph/crawlgraph/internal/fetchworker"
	"github.com/crawlgraph/crawlgraph/internal/frontier"
	"github.com/crawlgraph/crawlgraph/internal/httpapi"
	"github.com/crawlgraph/crawlgraph/internal/indexer"
	"github.com/crawlgraph/crawlgraph/internal/linkworker"
	"github.com/crawlgraph/crawlgraph/internal/lock"
	"github.com/crawlgraph/crawlgraph/internal/metadata"
	"github.com/crawlgraph/crawlgraph/internal/pagerank"
	"github.com/crawlgraph/crawlgraph/internal/politeness"
	"github.com/crawlgraph/crawlgraph/internal/query"
	"github.com/crawlgraph/crawlgraph/internal/robots"
	"github.com/crawlgraph/crawlgraph/internal/scheduler"
	"github.com/crawlgraph/crawlgraph/internal/seenfilter"
	"github.com/crawlgraph/crawlgraph/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the crawler, indexer, and query service.",
	Long: `serve wires every component (Frontier, Scheduler, Fetch Worker,
Link-Discovery Worker, Indexer, PageRank job) to a shared store and bus,
then serves the public search API and the admin API until interrupted.
Use --dev to run entirely against in-memory adapters, with no Redis,
Postgres, Kafka, or Bleve dependency.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logrus.NewEntry(logrus.StandardLogger())

	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	ep, err := config.LoadEndpoints()
	if err != nil {
		return err
	}
	if adminListen != "" {
		ep.AdminListen = adminListen
	}
	if publicListen != "" {
		ep.PublicListen = publicListen
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ad, err := buildAdapters(ctx, ep)
	if err != nil {
		return err
	}
	defer ad.Close()

	seen := seenfilter.New(ad.kv, cfg.BloomFilterExpectedElements(), cfg.BloomFilterFalsePositive())
	strategy := buildStrategy(cfg, ad.relational, ad.kv, log)
	fr := frontier.New(ad.kv, seen, strategy, cfg.MaxDepth())
	opic := &frontier.OPICStrategy{KV: ad.kv}

	robotsCache := robots.NewCache(ad.kv, cfg.UserAgent(), cfg.RobotsConnectTimeout(), cfg.RobotsReadTimeout())
	governor := politeness.New(ad.kv, cfg.TokenBucketCapacity(), cfg.TokenBucketRefillPerSecond(),
		cfg.CircuitBreakerFailThreshold(), cfg.CircuitBreakerSuccessThreshold(), cfg.CircuitBreakerCooldown(),
		cfg.MaxConcurrentPerDomain())
	locker := lock.NewLocker(ad.kv)
	deduplicator := dedup.New(ad.kv, cfg.SimhashHammingThreshold(), cfg.FingerprintTTL())

	recorder := metadata.NewRecorder(log)
	domExtractor := extractor.NewDomExtractor(recorder, extractor.DefaultExtractParam)

	fw := fetchworker.New(ad.relational, robotsCache, governor, ad.publisher, domExtractor,
		cfg.UserAgent(), cfg.Timeout(), cfg.FetchMaxRedirects(), cfg.FetchMaxBodyBytes(), log)
	lw := linkworker.New(fr, seen, ad.relational, cfg.MaxDepth(), opic)
	ix := indexer.New(ad.index, deduplicator, ad.relational)
	sched := scheduler.New(fr, governor, ad.relational, ad.publisher, cfg.MaxRetryCount(), cfg.ReaperStaleAfter(), log)
	prJob := pagerank.New(ad.relational, locker, ad.kv, cfg.PageRankDamping(), cfg.PageRankMaxIterations(),
		cfg.PageRankConvergenceThreshold(), log)
	querySvc := query.New(ad.index, ad.kv, nil, nil, cfg.QueryResultCacheTTL(), cfg.QueryTimeout(),
		cfg.QueryIndexTimeout(), cfg.QueryMaxSameDomain(), cfg.QueryDiversifyTopN())

	admitter := newSeedAdmitter(fr, seen, ad.relational)
	for _, u := range cfg.SeedURLs() {
		if err := admitter.admit(ctx, u.String()); err != nil {
			log.WithError(err).WithField("seed", u.String()).Warn("serve: seed admission failed")
		}
	}

	var wg sync.WaitGroup
	runConsumer := func(topic, groupID string, handler bus.Handler) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ad.consumer.Run(ctx, topic, groupID, handler); err != nil && ctx.Err() == nil {
				log.WithError(err).WithField("topic", topic).Error("serve: consumer exited")
			}
		}()
	}
	runConsumer(bus.TopicCrawlRequests, "fetchworker", func(ctx context.Context, msg bus.Message) error {
		return fw.HandleCrawlRequest(ctx, string(msg.Value))
	})
	runConsumer(bus.TopicLinkDiscoveries, "linkworker", func(ctx context.Context, msg bus.Message) error {
		batch, err := fetchworker.DecodeLinkDiscoveryBatch(msg.Value)
		if err != nil {
			return err
		}
		return lw.HandleLinkDiscoveryBatch(ctx, batch)
	})
	runConsumer(bus.TopicIndexRequests, "indexer", func(ctx context.Context, msg bus.Message) error {
		job, err := fetchworker.DecodeIndexJob(msg.Value)
		if err != nil {
			return err
		}
		return ix.HandleIndexJob(ctx, job)
	})

	runTicker := func(interval time.Duration, tick func(ctx context.Context) error, name string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := tick(ctx); err != nil {
						log.WithError(err).WithField("tick", name).Warn("serve: scheduler tick failed")
					}
				}
			}
		}()
	}
	runTicker(cfg.SchedulerTickInterval(), sched.DispatchTick, "dispatch")
	runTicker(cfg.RetryScanInterval(), sched.RetryScanTick, "retry-scan")
	runTicker(cfg.ReaperInterval(), sched.ReaperTick, "reaper")

	publicAPI := httpapi.NewPublicAPI(querySvc, ad.index, log)
	adminAPI := httpapi.NewAdminAPI(fr, governor, prJob, ad.relational, ad.kv, locker, admitter,
		cfg.MaxDepth(), toSet(cfg.FocusedKeywords()), cfg.FocusedDomainWhitelist(), log)

	publicSrv := &http.Server{Addr: ep.PublicListen, Handler: publicAPI.Router()}
	adminSrv := &http.Server{Addr: ep.AdminListen, Handler: adminAPI.Router()}

	wg.Add(2)
	go func() {
		defer wg.Done()
		log.WithField("addr", ep.PublicListen).Info("serve: public API listening")
		if err := publicSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("serve: public API server failed")
		}
	}()
	go func() {
		defer wg.Done()
		log.WithField("addr", ep.AdminListen).Info("serve: admin API listening")
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("serve: admin API server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("serve: shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = publicSrv.Shutdown(shutdownCtx)
	_ = adminSrv.Shutdown(shutdownCtx)
	cancel()
	wg.Wait()
	return nil
}

// buildStrategy resolves the configured frontier strategy name to a
// concrete frontier.Strategy (spec §4.6 "BFS, best-first, OPIC,
// focused"), falling back to BFS (and logging) on an unrecognized name.
func buildStrategy(cfg config.Config, relational store.Relational, kv store.KV, log *logrus.Entry) frontier.Strategy {
	switch cfg.FrontierStrategy() {
	case "", "bfs":
		return frontier.BFSStrategy{}
	case "best_first", "best-first":
		return frontier.BestFirstStrategy{Relational: relational, MaxDepth: cfg.MaxDepth()}
	case "opic":
		return frontier.OPICStrategy{KV: kv}
	case "focused":
		return frontier.FocusedStrategy{
			Relational:      relational,
			Keywords:        toSet(cfg.FocusedKeywords()),
			DomainWhitelist: cfg.FocusedDomainWhitelist(),
		}
	default:
		log.Warnf("serve: unknown frontier strategy %q, falling back to bfs", cfg.FrontierStrategy())
		return frontier.BFSStrategy{}
	}
}

// toSet turns a flat keyword list into the set shape frontier.FocusedStrategy expects.
func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
