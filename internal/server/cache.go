package server

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/nullstream/slimsearch/pkg/config"
	"github.com/nullstream/slimsearch/pkg/proto"
	pkgredis "github.com/nullstream/slimsearch/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// QueryCache caches SearchResponses in Redis, keyed by a hash of the
// full request. Concurrent misses for the same key are collapsed into
// a single index evaluation via singleflight.
type QueryCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewQueryCache creates a QueryCache over an established Redis client.
func NewQueryCache(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached response for req, if any.
func (c *QueryCache) Get(ctx context.Context, req *proto.SearchRequest) (*proto.SearchResponse, bool) {
	key := c.buildKey(req)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var resp proto.SearchResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", req.Query, "key", key)
	return &resp, true
}

// Set stores a response under req's key with the configured TTL.
func (c *QueryCache) Set(ctx context.Context, req *proto.SearchRequest, resp *proto.SearchResponse) {
	key := c.buildKey(req)
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached response or computes, caches, and
// returns a fresh one. The bool reports whether the response came from
// the cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	req *proto.SearchRequest,
	computeFn func() (*proto.SearchResponse, error),
) (*proto.SearchResponse, bool, error) {
	if resp, ok := c.Get(ctx, req); ok {
		return resp, true, nil
	}
	key := c.buildKey(req)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if resp, ok := c.Get(ctx, req); ok {
			return resp, nil
		}
		resp, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, req, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*proto.SearchResponse), false, nil
}

// Invalidate drops every cached search response. The HTTP handler
// calls it after indexing, discarding or importing documents; vacuum
// and the RPC write paths do not call it.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns the in-process hit/miss counters.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes the normalized request. Collapsing whitespace and
// case in the query text lets trivially equivalent requests share an
// entry; the remaining knobs participate via canonical JSON.
func (c *QueryCache) buildKey(req *proto.SearchRequest) string {
	normalized := *req
	normalized.Query = strings.Join(strings.Fields(strings.ToLower(req.Query)), " ")
	raw, err := json.Marshal(&normalized)
	if err != nil {
		raw = []byte(normalized.Query)
	}
	hash := sha256.Sum256(raw)
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
