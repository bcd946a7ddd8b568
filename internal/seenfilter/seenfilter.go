// Package seenfilter implements the two-layer URL-Seen Filter (spec C2):
// a Bloom filter (Layer A, in-process, probabilistic) backed by an exact
// set in the shared KV store (Layer B). maybeContains()==false means
// definitely new; true means consult Layer B.
package seenfilter

import (
	"bytes"
	"context"
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/crawlgraph/crawlgraph/internal/store"
)

const (
	bloomSnapshotKey = "bloom:url-seen"
	exactSetPrefix   = "visited:"
)

// Filter is the process-wide, single-writer/many-reader URL-seen guard
// (spec §9 "Global mutable state": the Bloom filter is the only
// unavoidable process-wide state).
type Filter struct {
	mu    sync.RWMutex
	bloom *bloom.BloomFilter
	kv    store.KV
}

// New builds a Bloom filter sized for expectedElements at falsePositive
// rate (defaults per spec §4.2: 10^7 elements, 1% FP rate).
func New(kv store.KV, expectedElements uint, falsePositive float64) *Filter {
	return &Filter{
		bloom: bloom.NewWithEstimates(expectedElements, falsePositive),
		kv:    kv,
	}
}

// MaybeContains reports whether url has been seen. A Bloom-filter miss
// is a definitive "new"; on a Bloom hit it consults the exact set and
// returns its answer, since the Bloom filter can false-positive.
func (f *Filter) MaybeContains(ctx context.Context, url string) (bool, error) {
	f.mu.RLock()
	maybe := f.bloom.TestString(url)
	f.mu.RUnlock()
	if !maybe {
		return false, nil
	}

	_, exists, err := f.kv.Get(ctx, exactKey(url))
	if err != nil {
		// Fail closed: on Layer B error, treat the URL as seen, preferring
		// duplication-avoidance to over-crawl (spec §4.2).
		return true, err
	}
	return exists, nil
}

// Add records url as seen in both layers.
func (f *Filter) Add(ctx context.Context, url string) error {
	f.mu.Lock()
	f.bloom.AddString(url)
	f.mu.Unlock()

	return f.kv.Set(ctx, exactKey(url), []byte{1}, 0)
}

// Snapshot serializes the Bloom filter's bitset to the KV store, for
// periodic persistence under the distributed lock (spec §4.5).
func (f *Filter) Snapshot(ctx context.Context) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var buf bytes.Buffer
	if _, err := f.bloom.WriteTo(&buf); err != nil {
		return err
	}
	return f.kv.Set(ctx, bloomSnapshotKey, buf.Bytes(), 0)
}

// Restore rehydrates the Bloom filter from its persisted bitset blob. If
// the blob is missing, rebuild reconstructs it from the exact set via
// rebuildFromExactSet (spec §4.2 "on restart the filter is rehydrated
// from the bitset blob and from the exact set if the blob is missing").
func (f *Filter) Restore(ctx context.Context, rebuildFromExactSet func(ctx context.Context, add func(url string)) error) error {
	blob, ok, err := f.kv.Get(ctx, bloomSnapshotKey)
	if err != nil {
		return err
	}
	if ok {
		f.mu.Lock()
		defer f.mu.Unlock()
		_, err := f.bloom.ReadFrom(bytes.NewReader(blob))
		return err
	}

	if rebuildFromExactSet == nil {
		return nil
	}
	return rebuildFromExactSet(ctx, func(url string) {
		f.mu.Lock()
		f.bloom.AddString(url)
		f.mu.Unlock()
	})
}

func exactKey(url string) string {
	return exactSetPrefix + url
}
