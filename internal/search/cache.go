package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/semidx/semidx/internal/store"
)

// queryCache memoizes search results keyed by the full query shape.
// The coordinator clears it after every index commit so a cached
// response never outlives the data it was computed from. All
// operations fail open: a cache problem degrades to a cache miss.
type queryCache struct {
	lru *lru.Cache[string, []*Result]
}

// newQueryCache returns nil when size <= 0, which disables caching.
func newQueryCache(size int) *queryCache {
	if size <= 0 {
		return nil
	}
	cache, err := lru.New[string, []*Result](size)
	if err != nil {
		return nil
	}
	return &queryCache{lru: cache}
}

func (c *queryCache) get(key string) ([]*Result, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

func (c *queryCache) put(key string, results []*Result) {
	if c == nil {
		return
	}
	c.lru.Add(key, results)
}

func (c *queryCache) clear() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

// cacheKey builds a deterministic key from the normalized query text
// and every parameter that can change the result set.
func cacheKey(q Query, mode string, limit int, minSimilarity float64) string {
	var b strings.Builder

	b.WriteString(strings.ToLower(strings.Join(strings.Fields(q.Text), " ")))
	b.WriteByte('|')
	b.WriteString(mode)
	fmt.Fprintf(&b, "|%d|%.4f|", limit, minSimilarity)
	writeFilter(&b, q.Filter)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeFilter(b *strings.Builder, f *store.Filter) {
	if f.IsZero() {
		return
	}
	fmt.Fprintf(b, "ext=%s|dir=%s|type=%s|lang=%s|prefix=%s|branch=%s",
		strings.ToLower(strings.Join(f.Extensions, ",")),
		strings.Join(f.Directories, ","),
		strings.ToLower(strings.Join(f.ChunkTypes, ",")),
		strings.ToLower(strings.Join(f.Languages, ",")),
		f.PathPrefix,
		f.Branch)
}
