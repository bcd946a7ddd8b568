// Package dedup implements the Content Deduplicator (spec C10): a
// 64-bit SimHash fingerprint over a term-frequency vector, a Hamming-
// distance lookup against previously indexed fingerprints, and a batch
// sweep mode that finds duplicate clusters across the whole index.
package dedup

import (
	"context"
	"encoding/json"
	"math/bits"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/store"
	"github.com/crawlgraph/crawlgraph/pkg/tokenize"
)

const registryKey = "dedup:registry"

// minContentLength below which a document is exempt from dedup (spec
// §4.10: "content shorter than 100 characters produce fingerprint = 0,
// skip dedup").
const minContentLength = 100

// ComputeSimHash builds the 64-bit locality-sensitive fingerprint over
// body's term-frequency vector (spec §4.10 steps 1-3). Returns 0 for
// short bodies, which callers must treat as "skip dedup" rather than a
// real fingerprint value.
func ComputeSimHash(body string) uint64 {
	if len(body) < minContentLength {
		return 0
	}

	freq := tokenize.TermFrequencies(body)
	if len(freq) == 0 {
		return 0
	}

	var acc [64]int64
	for term, count := range freq {
		h := xxhash.Sum64String(term)
		for i := 0; i < 64; i++ {
			if h&(1<<uint(i)) != 0 {
				acc[i] += int64(count)
			} else {
				acc[i] -= int64(count)
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if acc[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// HammingDistance counts differing bits between two fingerprints.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Deduplicator persists fingerprints in store.KV and scans them for
// near-duplicates.
type Deduplicator struct {
	kv               store.KV
	hammingThreshold int
	fingerprintTTL   time.Duration
}

func New(kv store.KV, hammingThreshold int, fingerprintTTL time.Duration) *Deduplicator {
	return &Deduplicator{kv: kv, hammingThreshold: hammingThreshold, fingerprintTTL: fingerprintTTL}
}

// Record writes a document's fingerprint and registers it for future
// Hamming scans and batch sweeps.
func (d *Deduplicator) Record(ctx context.Context, docID, url string, fp uint64, writtenAt time.Time) error {
	rec := model.FingerprintRecord{URL: url, SimHash: fp, WrittenAt: writtenAt}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := d.kv.Set(ctx, fingerprintKey(docID), raw, d.fingerprintTTL); err != nil {
		return err
	}
	return d.kv.SortedSetAdd(ctx, registryKey, docID, float64(writtenAt.UnixNano()))
}

// Forget removes a document's fingerprint, e.g. when it is superseded
// by a kept duplicate.
func (d *Deduplicator) Forget(ctx context.Context, docID string) error {
	if err := d.kv.Delete(ctx, fingerprintKey(docID)); err != nil {
		return err
	}
	return d.kv.SortedSetRemove(ctx, registryKey, docID)
}

// Duplicate is a matching fingerprint found by FindDuplicate.
type Duplicate struct {
	DocID     string
	URL       string
	SimHash   uint64
	WrittenAt time.Time
}

// FindDuplicate scans the fingerprint registry for any stored entry
// within the configured Hamming threshold of fp, excluding selfDocID
// (spec §4.10 findDuplicate). fp == 0 always reports no duplicate, since
// 0 means "dedup skipped" for short content.
func (d *Deduplicator) FindDuplicate(ctx context.Context, fp uint64, selfDocID string) (Duplicate, bool, error) {
	if fp == 0 {
		return Duplicate{}, false, nil
	}

	members, err := d.kv.SortedSetAll(ctx, registryKey)
	if err != nil {
		return Duplicate{}, false, err
	}

	for _, m := range members {
		if m.Member == selfDocID {
			continue
		}
		raw, ok, err := d.kv.Get(ctx, fingerprintKey(m.Member))
		if err != nil {
			return Duplicate{}, false, err
		}
		if !ok {
			continue
		}
		var rec model.FingerprintRecord
		if json.Unmarshal(raw, &rec) != nil {
			continue
		}
		if HammingDistance(fp, rec.SimHash) <= d.hammingThreshold {
			return Duplicate{DocID: m.Member, URL: rec.URL, SimHash: rec.SimHash, WrittenAt: rec.WrittenAt}, true, nil
		}
	}
	return Duplicate{}, false, nil
}

// ShouldReplace decides which of two near-duplicate documents to keep
// (spec §4.10: "the kept copy is the one with higher PageRank, break
// ties by earliest crawl time"). It reports true when candidate should
// replace existing.
func ShouldReplace(existing, candidate model.Document) bool {
	if candidate.PageRank != existing.PageRank {
		return candidate.PageRank > existing.PageRank
	}
	return candidate.LastCrawled.Before(existing.LastCrawled)
}

// Sweep finds duplicate clusters across every registered fingerprint
// (batch sweep mode, spec §4.10). Each returned group is a connected
// component built by union-find over every pair of fingerprints within
// the Hamming threshold, so two members of one group may be further
// apart than the threshold when a chain of close members links them.
func (d *Deduplicator) Sweep(ctx context.Context) ([][]string, error) {
	members, err := d.kv.SortedSetAll(ctx, registryKey)
	if err != nil {
		return nil, err
	}

	type entry struct {
		docID string
		fp    uint64
	}
	entries := make([]entry, 0, len(members))
	for _, m := range members {
		raw, ok, err := d.kv.Get(ctx, fingerprintKey(m.Member))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var rec model.FingerprintRecord
		if json.Unmarshal(raw, &rec) != nil {
			continue
		}
		entries = append(entries, entry{docID: m.Member, fp: rec.SimHash})
	}

	parent := make(map[string]string, len(entries))
	for _, e := range entries {
		parent[e.docID] = e.docID
	}
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			if HammingDistance(entries[i].fp, entries[j].fp) <= d.hammingThreshold {
				union(entries[i].docID, entries[j].docID)
			}
		}
	}

	groups := make(map[string][]string)
	for _, e := range entries {
		root := find(e.docID)
		groups[root] = append(groups[root], e.docID)
	}

	result := make([][]string, 0, len(groups))
	for _, g := range groups {
		if len(g) > 1 {
			result = append(result, g)
		}
	}
	return result, nil
}

func fingerprintKey(docID string) string {
	return "simhash:" + docID
}
