// Package httpapi wires the public search API and the admin API on two
// separate gorilla/mux routers (spec §6 "two listeners: public, admin"),
// both rooted under /api/v1 per spec.md's External Interfaces section.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/crawlgraph/crawlgraph/internal/frontier"
	"github.com/crawlgraph/crawlgraph/internal/lock"
	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/pagerank"
	"github.com/crawlgraph/crawlgraph/internal/politeness"
	"github.com/crawlgraph/crawlgraph/internal/query"
	"github.com/crawlgraph/crawlgraph/internal/store"
)

// PublicAPI exposes the read-only search surface (spec §6 "public API").
type PublicAPI struct {
	queryService *query.Service
	index        store.Index
	log          *logrus.Entry
}

func NewPublicAPI(queryService *query.Service, index store.Index, log *logrus.Entry) *PublicAPI {
	return &PublicAPI{queryService: queryService, index: index, log: log}
}

// suggestionLimit is the fixed page size for the suggestions endpoint
// (spec.md:152 "up to 5 distinct title-prefix matches").
const suggestionLimit = 5

// Router builds the public mux.Router under /api/v1.
func (a *PublicAPI) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/search", a.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/search/suggestions", a.handleSuggest).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	return r
}

func (a *PublicAPI) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter q")
		return
	}
	page := atoiDefault(r.URL.Query().Get("page"), 0)
	size := atoiDefault(r.URL.Query().Get("size"), 0)
	sort := query.SortMode(r.URL.Query().Get("sort"))

	result, err := a.queryService.Search(r.Context(), q, page, size, sort)
	if err != nil {
		a.log.WithError(err).Warn("httpapi: search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *PublicAPI) handleSuggest(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter prefix")
		return
	}

	suggestions, err := a.index.SuggestTitlePrefix(r.Context(), prefix, suggestionLimit)
	if err != nil {
		a.log.WithError(err).Warn("httpapi: suggest failed")
		writeError(w, http.StatusInternalServerError, "suggest failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// AdminAPI exposes operator routes (spec §6 "admin API"): seed
// submission, crawler stats (aggregate and per-domain), PageRank
// trigger, frontier strategy switch, and rate-limit inspection/reset.
type AdminAPI struct {
	frontier   *frontier.Frontier
	governor   *politeness.Governor
	pageRank   *pagerank.Job
	relational store.Relational
	kv         store.KV
	locker     *lock.Locker
	seedIntake SeedIntake
	maxDepth   int
	log        *logrus.Entry

	// focusedKeywords and focusedDomainWhitelist parameterize a
	// focused-strategy switch triggered over HTTP, since the route
	// carries no request body schema for per-switch keyword lists
	// (configured once at startup instead).
	focusedKeywords        map[string]struct{}
	focusedDomainWhitelist map[string]struct{}
}

// SeedIntake admits operator-submitted seed URLs into the frontier; the
// cli package's seed command and this admin route share it.
type SeedIntake interface {
	AddSeed(rawURL string) error
}

// strategySwitchLock is the C5 lock name held for the duration of a
// frontier strategy swap (spec §4.6 "swaps scoring function under
// lock", spec S6 "the switch acquires the distributed lock").
const strategySwitchLock = "frontier:strategy-switch"

// strategySwitchLockTTL bounds how long a strategy switch may hold the
// lock; a full re-score of a large resident frontier should finish well
// inside this window.
const strategySwitchLockTTL = 5 * time.Minute

func NewAdminAPI(
	f *frontier.Frontier,
	governor *politeness.Governor,
	pageRankJob *pagerank.Job,
	relational store.Relational,
	kv store.KV,
	locker *lock.Locker,
	seedIntake SeedIntake,
	maxDepth int,
	focusedKeywords map[string]struct{},
	focusedDomainWhitelist map[string]struct{},
	log *logrus.Entry,
) *AdminAPI {
	return &AdminAPI{
		frontier:               f,
		governor:               governor,
		pageRank:               pageRankJob,
		relational:             relational,
		kv:                     kv,
		locker:                 locker,
		seedIntake:             seedIntake,
		maxDepth:               maxDepth,
		focusedKeywords:        focusedKeywords,
		focusedDomainWhitelist: focusedDomainWhitelist,
		log:                    log,
	}
}

// Router builds the admin mux.Router under /api/v1/admin, matching
// spec.md:145-150's documented surface.
func (a *AdminAPI) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1/admin").Subrouter()
	api.HandleFunc("/crawl/seeds", a.handleAddSeeds).Methods(http.MethodPost)
	api.HandleFunc("/stats/crawler", a.handleCrawlerStats).Methods(http.MethodGet)
	api.HandleFunc("/indexer/pagerank/update", a.handleRunPageRank).Methods(http.MethodPost)
	api.HandleFunc("/frontier/strategy", a.handleSetStrategy).Methods(http.MethodPost)
	api.HandleFunc("/rate-limit/{domain}", a.handleRateLimitInspect).Methods(http.MethodGet)
	api.HandleFunc("/rate-limit/{domain}/reset", a.handleRateLimitReset).Methods(http.MethodPost)
	api.HandleFunc("/stats/domains/{domain}", a.handleDomainStats).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	return r
}

// Seed admission depth/priority (spec.md:145 "admit to Frontier at
// depth 0, priority 10") is enforced by the seedIntake implementation
// (cli.seedAdmitter), not here.
func (a *AdminAPI) handleAddSeeds(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URLs []string `json:"urls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "body must be {\"urls\": [\"...\"]}")
		return
	}
	admitted := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		if err := a.seedIntake.AddSeed(u); err != nil {
			a.log.WithError(err).WithField("url", u).Warn("httpapi: seed admission failed")
			continue
		}
		admitted = append(admitted, u)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "admitted", "urls": admitted})
}

// handleCrawlerStats reports aggregate URL counts by status (spec.md:146
// "GET /api/v1/admin/stats/crawler — aggregate counts by status").
func (a *AdminAPI) handleCrawlerStats(w http.ResponseWriter, r *http.Request) {
	statuses := []model.URLStatus{
		model.StatusPending, model.StatusInProgress, model.StatusCompleted,
		model.StatusFailed, model.StatusBlocked,
	}
	counts := make(map[string]int, len(statuses))
	for _, status := range statuses {
		recs, err := a.relational.ListByStatus(r.Context(), status)
		if err != nil {
			a.log.WithError(err).Warn("httpapi: stats aggregation failed")
			writeError(w, http.StatusInternalServerError, "stats unavailable")
			return
		}
		counts[string(status)] = len(recs)
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

func (a *AdminAPI) handleSetStrategy(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("strategy")
	if name == "" {
		var body struct {
			Strategy string `json:"strategy"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		name = body.Strategy
	}
	strategy, ok := a.strategyByName(name)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown strategy: "+name)
		return
	}

	lease, acquired, err := a.locker.Acquire(r.Context(), strategySwitchLock, strategySwitchLockTTL)
	if err != nil {
		a.log.WithError(err).Warn("httpapi: strategy switch lock acquisition failed")
		writeError(w, http.StatusInternalServerError, "strategy switch failed")
		return
	}
	if !acquired {
		writeError(w, http.StatusConflict, "a strategy switch is already in progress")
		return
	}
	defer lease.Release(r.Context())

	if err := a.frontier.SetStrategy(r.Context(), strategy); err != nil {
		a.log.WithError(err).Warn("httpapi: strategy switch failed")
		writeError(w, http.StatusInternalServerError, "strategy switch failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"strategy": a.frontier.StrategyName()})
}

// strategyByName resolves the admin API's ?strategy= value to a
// concrete frontier.Strategy (spec.md:148 "bfs|best-first|opic|focused").
func (a *AdminAPI) strategyByName(name string) (frontier.Strategy, bool) {
	switch name {
	case "bfs":
		return frontier.BFSStrategy{}, true
	case "best_first", "best-first":
		return frontier.BestFirstStrategy{Relational: a.relational, MaxDepth: a.maxDepth}, true
	case "opic":
		return frontier.OPICStrategy{KV: a.kv}, true
	case "focused":
		return frontier.FocusedStrategy{
			Relational:      a.relational,
			Keywords:        a.focusedKeywords,
			DomainWhitelist: a.focusedDomainWhitelist,
		}, true
	default:
		return nil, false
	}
}

// handleRunPageRank triggers an asynchronous PageRank run (spec.md:147
// "asynchronous trigger; 202 with a job id; idempotent while a job is
// running").
func (a *AdminAPI) handleRunPageRank(w http.ResponseWriter, r *http.Request) {
	jobID, alreadyRunning, err := a.pageRank.TriggerAsync(r.Context())
	if err != nil {
		a.log.WithError(err).Warn("httpapi: pagerank trigger failed")
		writeError(w, http.StatusInternalServerError, "pagerank trigger failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobId": jobID, "alreadyRunning": alreadyRunning})
}

// handleRateLimitInspect reports a domain's current tokens, wait hint,
// and circuit state (spec.md:148 "returns current tokens, wait hint,
// circuit state").
func (a *AdminAPI) handleRateLimitInspect(w http.ResponseWriter, r *http.Request) {
	domain := mux.Vars(r)["domain"]
	tokens, waitHintMs, state, err := a.governor.Inspect(r.Context(), domain, time.Now())
	if err != nil {
		a.log.WithError(err).Warn("httpapi: rate-limit inspect failed")
		writeError(w, http.StatusInternalServerError, "rate-limit inspect failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"domain":     domain,
		"tokens":     tokens,
		"waitHintMs": waitHintMs,
		"state":      string(state),
	})
}

func (a *AdminAPI) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	domain := mux.Vars(r)["domain"]
	a.governor.Reset(domain)
	writeJSON(w, http.StatusOK, map[string]string{"domain": domain, "state": "reset"})
}

// handleDomainStats reports the per-domain attempt/success/failure
// counters the Domain record tracks (SPEC_FULL.md C.2, supplementing
// spec.md's crawler-wide /stats/crawler with a per-domain breakdown).
func (a *AdminAPI) handleDomainStats(w http.ResponseWriter, r *http.Request) {
	domain := mux.Vars(r)["domain"]
	rec, found, err := a.relational.GetDomain(r.Context(), domain)
	if err != nil {
		a.log.WithError(err).Warn("httpapi: domain stats lookup failed")
		writeError(w, http.StatusInternalServerError, "domain stats unavailable")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown domain: "+domain)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"domain":    rec.Domain,
		"attempts":  rec.Attempts,
		"successes": rec.Successes,
		"failures":  rec.Failures,
	})
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func atoiDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
