// Package cache holds processed results keyed by request fingerprint.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"storefront-agent/internal/domain"
)

const (
	DefaultCapacity = 100
	DefaultTTL      = 5 * time.Minute
)

// Config configures a response cache.
type Config struct {
	Capacity int
	TTL      time.Duration
}

type entry struct {
	result   domain.ProcessingResult
	storedAt time.Time
}

// Cache is a bounded, expiring store of processing results. Reads never
// refresh recency, so once full the oldest-inserted entry is evicted first.
// Safe for concurrent use.
type Cache struct {
	entries *lru.Cache[string, entry]
	ttl     time.Duration
	now     func() time.Time // for testing
}

// New creates a cache. Zero values fall back to DefaultCapacity and DefaultTTL.
func New(cfg Config) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	// lru.New only errors on non-positive size which we guard above.
	entries, _ := lru.New[string, entry](cfg.Capacity)
	return &Cache{entries: entries, ttl: cfg.TTL, now: time.Now}
}

// Get returns a copy of the live result stored under key. An expired entry
// is removed and reported as absent.
func (c *Cache) Get(key string) (domain.ProcessingResult, bool) {
	e, ok := c.entries.Peek(key)
	if !ok {
		return domain.ProcessingResult{}, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		c.entries.Remove(key)
		return domain.ProcessingResult{}, false
	}
	return cloneResult(e.result), true
}

// Set stores a copy of result under key, overwriting any previous entry.
func (c *Cache) Set(key string, result domain.ProcessingResult) {
	c.entries.Add(key, entry{result: cloneResult(result), storedAt: c.now()})
}

// cloneResult copies the maps and pointers of r so neither the caller nor a
// later reader can change what is stored.
func cloneResult(r domain.ProcessingResult) domain.ProcessingResult {
	if r.Parameters != nil {
		r.Parameters = cloneMap(r.Parameters)
	}
	if r.ToolOutcome != nil {
		o := *r.ToolOutcome
		o.Available = slices.Clone(o.Available)
		if o.Result != nil {
			res := *o.Result
			res.Data = cloneValue(res.Data)
			o.Result = &res
		}
		r.ToolOutcome = &o
	}
	if r.Routing != nil {
		d := *r.Routing
		d.Scores = maps.Clone(d.Scores)
		r.Routing = &d
	}
	return r
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int { return c.entries.Len() }

// Purge drops every entry.
func (c *Cache) Purge() { c.entries.Purge() }

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Fingerprint derives the cache key for a request and its context map.
// Structurally equal contexts produce the same key regardless of key order.
func Fingerprint(request string, reqCtx map[string]any) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(request)))
	h.Write([]byte{0})
	h.Write([]byte(CanonicalContext(reqCtx)))
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalContext serialises the context map with keys sorted at every level.
func CanonicalContext(reqCtx map[string]any) string {
	if len(reqCtx) == 0 {
		return "{}"
	}
	// encoding/json sorts map keys, nested maps included.
	if b, err := json.Marshal(reqCtx); err == nil {
		return string(b)
	}
	return sortedString(reqCtx)
}

// sortedString renders values encoding/json rejects (funcs, channels, NaN).
func sortedString(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte(':')
		if nested, ok := m[k].(map[string]any); ok {
			sb.WriteString(sortedString(nested))
			continue
		}
		fmt.Fprintf(&sb, "%v", m[k])
	}
	sb.WriteByte('}')
	return sb.String()
}
