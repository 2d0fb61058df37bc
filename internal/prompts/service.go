package prompts

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultAssistant = "default"
	DefaultCacheTTL  = 5 * time.Minute
)

type cacheEntry struct {
	content  string
	cachedAt time.Time
}

// Service resolves assistant names to prompt text with a TTL cache.
//
// Lookup never fails: a miss falls back to the "default" assistant and then to DefaultPrompt.
type Service struct {
	src   Source
	ttl   time.Duration
	clock func() time.Time
	log   *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewService(src Source, ttl time.Duration, log *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{src: src, ttl: ttl, clock: time.Now, log: log, cache: make(map[string]cacheEntry)}
}

func (s *Service) Get(ctx context.Context, assistant string) string {
	if assistant == "" {
		assistant = DefaultAssistant
	}
	if s.src == nil {
		return DefaultPrompt
	}

	now := s.clock()
	s.mu.Lock()
	e, ok := s.cache[assistant]
	s.mu.Unlock()
	if ok && now.Sub(e.cachedAt) < s.ttl {
		return e.content
	}

	content, err := s.src.Fetch(ctx, assistant)
	if err == nil {
		s.mu.Lock()
		s.cache[assistant] = cacheEntry{content: content, cachedAt: now}
		s.mu.Unlock()
		s.log.Info("prompt fetched", "assistant", assistant, "length", len(content))
		return content
	}

	s.log.Warn("prompt fetch failed", "assistant", assistant, "err", err)
	if assistant == DefaultAssistant || assistant == "esther" {
		return DefaultPrompt
	}
	return s.Get(ctx, DefaultAssistant)
}

// ClearCache drops the named entries, or everything when no names are given.
func (s *Service) ClearCache(assistants ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(assistants) == 0 {
		n := len(s.cache)
		s.cache = make(map[string]cacheEntry)
		return n
	}
	n := 0
	for _, a := range assistants {
		if _, ok := s.cache[a]; ok {
			delete(s.cache, a)
			n++
		}
	}
	return n
}

// Preload warms the cache concurrently.
func (s *Service) Preload(ctx context.Context, assistants []string) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, a := range assistants {
		g.Go(func() error {
			s.Get(gctx, a)
			return nil
		})
	}
	_ = g.Wait()
	s.log.Info("prompts preloaded", "assistants", assistants)
}

type CacheEntry struct {
	Name      string        `json:"name"`
	CachedAt  time.Time     `json:"cachedAt"`
	ExpiresIn time.Duration `json:"expiresIn"`
}

type Stats struct {
	Size    int          `json:"size"`
	Entries []CacheEntry `json:"entries"`
}

func (s *Service) Stats() Stats {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Size: len(s.cache), Entries: make([]CacheEntry, 0, len(s.cache))}
	for name, e := range s.cache {
		left := s.ttl - now.Sub(e.cachedAt)
		if left < 0 {
			left = 0
		}
		st.Entries = append(st.Entries, CacheEntry{Name: name, CachedAt: e.cachedAt, ExpiresIn: left})
	}
	sort.Slice(st.Entries, func(i, j int) bool { return st.Entries[i].Name < st.Entries[j].Name })
	return st
}
