package store

import (
	"context"

	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRelational adapts a jackc/pgx/v5 pool to the Relational
// contract over the crawl_urls, page_links, page_rank, and
// domain_metadata tables of spec §6.
type PostgresRelational struct {
	pool *pgxpool.Pool
}

func NewPostgresRelational(pool *pgxpool.Pool) *PostgresRelational {
	return &PostgresRelational{pool: pool}
}

func (p *PostgresRelational) UpsertURL(ctx context.Context, rec model.URLRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO crawl_urls (
			url_hash, raw_url, normalized_url, domain, depth, priority, status,
			retry_count, last_attempt_at, next_eligible_at, source_url_hash,
			error_string, started_at, last_success_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (url_hash) DO UPDATE SET
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			retry_count = EXCLUDED.retry_count,
			last_attempt_at = EXCLUDED.last_attempt_at,
			next_eligible_at = EXCLUDED.next_eligible_at,
			error_string = EXCLUDED.error_string,
			started_at = EXCLUDED.started_at,
			last_success_at = EXCLUDED.last_success_at
	`, rec.URLHash, rec.RawURL, rec.NormalizedURL, rec.Domain, rec.Depth, rec.Priority,
		rec.Status, rec.RetryCount, rec.LastAttemptAt, rec.NextEligibleAt, rec.SourceURLHash,
		rec.ErrorString, rec.StartedAt, rec.LastSuccessAt)
	return err
}

func (p *PostgresRelational) GetURL(ctx context.Context, urlHash string) (model.URLRecord, bool, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT url_hash, raw_url, normalized_url, domain, depth, priority, status,
			retry_count, last_attempt_at, next_eligible_at, source_url_hash,
			error_string, started_at, last_success_at
		FROM crawl_urls WHERE url_hash = $1
	`, urlHash)

	var rec model.URLRecord
	err := row.Scan(&rec.URLHash, &rec.RawURL, &rec.NormalizedURL, &rec.Domain, &rec.Depth,
		&rec.Priority, &rec.Status, &rec.RetryCount, &rec.LastAttemptAt, &rec.NextEligibleAt,
		&rec.SourceURLHash, &rec.ErrorString, &rec.StartedAt, &rec.LastSuccessAt)
	if err == pgx.ErrNoRows {
		return model.URLRecord{}, false, nil
	}
	if err != nil {
		return model.URLRecord{}, false, err
	}
	return rec, true, nil
}

func (p *PostgresRelational) CompareAndSetStatus(ctx context.Context, urlHash string, expected, next model.URLStatus) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE crawl_urls SET status = $1 WHERE url_hash = $2 AND status = $3
	`, next, urlHash, expected)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresRelational) ListByStatus(ctx context.Context, status model.URLStatus) ([]model.URLRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT url_hash, raw_url, normalized_url, domain, depth, priority, status,
			retry_count, last_attempt_at, next_eligible_at, source_url_hash,
			error_string, started_at, last_success_at
		FROM crawl_urls WHERE status = $1
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.URLRecord
	for rows.Next() {
		var rec model.URLRecord
		if err := rows.Scan(&rec.URLHash, &rec.RawURL, &rec.NormalizedURL, &rec.Domain, &rec.Depth,
			&rec.Priority, &rec.Status, &rec.RetryCount, &rec.LastAttemptAt, &rec.NextEligibleAt,
			&rec.SourceURLHash, &rec.ErrorString, &rec.StartedAt, &rec.LastSuccessAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresRelational) InsertEdge(ctx context.Context, edge model.EdgeRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO page_links (source_url, target_url, anchor, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (source_url, target_url) DO NOTHING
	`, edge.SourceHash, edge.TargetHash, edge.AnchorText, edge.FirstSeen)
	return err
}

func (p *PostgresRelational) AllEdges(ctx context.Context) ([]model.EdgeRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT source_url, target_url, anchor, created_at FROM page_links`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EdgeRecord
	for rows.Next() {
		var e model.EdgeRecord
		if err := rows.Scan(&e.SourceHash, &e.TargetHash, &e.AnchorText, &e.FirstSeen); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresRelational) UpsertDomain(ctx context.Context, rec model.DomainRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO domain_metadata (domain, crawl_delay_ms, concurrency_cap, blocked, attempts, successes, failures, empty_body_count, last_crawled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (domain) DO UPDATE SET
			crawl_delay_ms = EXCLUDED.crawl_delay_ms,
			concurrency_cap = EXCLUDED.concurrency_cap,
			blocked = EXCLUDED.blocked
	`, rec.Domain, rec.CrawlDelayMs, rec.ConcurrencyCap, rec.Blocked, rec.Attempts, rec.Successes, rec.Failures, rec.EmptyBodyCount, rec.LastCrawledAt)
	return err
}

func (p *PostgresRelational) GetDomain(ctx context.Context, domain string) (model.DomainRecord, bool, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT domain, crawl_delay_ms, concurrency_cap, blocked, attempts, successes, failures, empty_body_count, last_crawled_at
		FROM domain_metadata WHERE domain = $1
	`, domain)

	var rec model.DomainRecord
	err := row.Scan(&rec.Domain, &rec.CrawlDelayMs, &rec.ConcurrencyCap, &rec.Blocked,
		&rec.Attempts, &rec.Successes, &rec.Failures, &rec.EmptyBodyCount, &rec.LastCrawledAt)
	if err == pgx.ErrNoRows {
		return model.DomainRecord{}, false, nil
	}
	if err != nil {
		return model.DomainRecord{}, false, err
	}
	return rec, true, nil
}

func (p *PostgresRelational) IncrDomainCounters(ctx context.Context, domain string, attempts, successes, failures int64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO domain_metadata (domain, attempts, successes, failures, last_crawled_at)
		VALUES ($1,$2,$3,$4, now())
		ON CONFLICT (domain) DO UPDATE SET
			attempts = domain_metadata.attempts + EXCLUDED.attempts,
			successes = domain_metadata.successes + EXCLUDED.successes,
			failures = domain_metadata.failures + EXCLUDED.failures,
			last_crawled_at = now()
	`, domain, attempts, successes, failures)
	return err
}

func (p *PostgresRelational) IncrEmptyBodyCount(ctx context.Context, domain string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO domain_metadata (domain, empty_body_count, last_crawled_at)
		VALUES ($1, 1, now())
		ON CONFLICT (domain) DO UPDATE SET
			empty_body_count = domain_metadata.empty_body_count + 1,
			last_crawled_at = now()
	`, domain)
	return err
}

func (p *PostgresRelational) WriteRanks(ctx context.Context, ranks []model.RankRecord) error {
	batch := &pgx.Batch{}
	for _, r := range ranks {
		batch.Queue(`
			INSERT INTO page_rank (url, score, inbound, outbound, calculated_at)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (url) DO UPDATE SET
				score = EXCLUDED.score, inbound = EXCLUDED.inbound,
				outbound = EXCLUDED.outbound, calculated_at = EXCLUDED.calculated_at
		`, r.URL, r.Score, r.InboundCount, r.OutboundCount, r.LastCalculated)
	}
	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range ranks {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresRelational) GetRank(ctx context.Context, url string) (model.RankRecord, bool, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT url, score, inbound, outbound, calculated_at FROM page_rank WHERE url = $1
	`, url)

	var r model.RankRecord
	err := row.Scan(&r.URL, &r.Score, &r.InboundCount, &r.OutboundCount, &r.LastCalculated)
	if err == pgx.ErrNoRows {
		return model.RankRecord{}, false, nil
	}
	if err != nil {
		return model.RankRecord{}, false, err
	}
	return r, true, nil
}
