package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"BlogCrew/internal/backend"
)

// CachedResponse represents a cached completion
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// GenerateCacheKey generates a cache key from everything that shapes a completion
func GenerateCacheKey(backendName, model string, req backend.Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%+v\x00", backendName, model, req.Instructions, req.Settings)
	for _, msg := range req.Messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte{0})
		h.Write([]byte(msg.Content))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Completer serves repeated requests from memory. Only completions that
// finished without error are stored.
type Completer struct {
	next   backend.Completer
	model  string
	logger *slog.Logger
	cache  sync.Map
}

// NewCompleter wraps next with a response cache.
func NewCompleter(next backend.Completer, logger *slog.Logger) *Completer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Completer{next: next, logger: logger}
	if m, ok := next.(backend.Modeler); ok {
		c.model = m.Model()
	}
	return c
}

func (c *Completer) Name() string { return c.next.Name() }

// checkCache checks if a response is cached
func (c *Completer) checkCache(cacheKey string) (string, bool) {
	if val, ok := c.cache.Load(cacheKey); ok {
		cached := val.(CachedResponse)
		c.logger.Info("cache hit", "key", cacheKey[:16])
		return cached.Response, true
	}
	return "", false
}

// storeCache stores a response in cache
func (c *Completer) storeCache(cacheKey, response string) {
	c.cache.Store(cacheKey, CachedResponse{
		Response:  response,
		Timestamp: time.Now(),
	})
	c.logger.Info("cached response", "key", cacheKey[:16])
}

// Stream replays a cached answer as a single fragment, or forwards the
// provider stream and stores the text once it completed without error.
func (c *Completer) Stream(ctx context.Context, req backend.Request) iter.Seq2[string, error] {
	cacheKey := GenerateCacheKey(c.next.Name(), c.model, req)
	if cached, ok := c.checkCache(cacheKey); ok {
		return func(yield func(string, error) bool) {
			yield(cached, nil)
		}
	}

	return func(yield func(string, error) bool) {
		var sb strings.Builder
		for fragment, err := range c.next.Stream(ctx, req) {
			if err != nil {
				yield("", err)
				return
			}
			sb.WriteString(fragment)
			if !yield(fragment, nil) {
				return
			}
		}
		c.storeCache(cacheKey, sb.String())
	}
}

// size returns the number of cached responses.
func (c *Completer) size() int {
	n := 0
	c.cache.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
