// Package cache stores fetched pages in Redis so repeated runs do not refetch
// content that is still fresh.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 24*time.Hour)
//
//	key := cache.Key{Method: http.MethodGet, URL: "https://example.org/words/a"}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch and store
//		entry = manager.NewEntry(key.URL, resp.StatusCode, resp.Header, body)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// Only successful GET responses should be cached; existence checks are never
// cached because their answer is the point of the request.
//
// # Metrics
//
//   - fetch_cache_hits_total - Cache hits
//   - fetch_cache_misses_total - Cache misses (including expired entries)
//   - fetch_cache_stored_bytes_total - Bytes written to the cache
//   - fetch_cache_errors_total{operation} - Cache operation errors
package cache
