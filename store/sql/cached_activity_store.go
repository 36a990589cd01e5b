package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-workspaces/core"
)

const activityCacheKeyPrefix = "go-workspaces::watch_activity::v1"

type activityStore interface {
	core.ActivityRecorder
	core.ActivityReader
}

// CachedActivityStore serves activity pages from cache. Every write bumps a
// generation for its namespace and for the all-namespace view, so cached
// pages never outlive a newer entry.
type CachedActivityStore struct {
	base  activityStore
	cache repositorycache.CacheService

	mu          sync.Mutex
	generations map[string]uint64
}

func NewCachedActivityStore(base activityStore, cacheService repositorycache.CacheService) (*CachedActivityStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base activity store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: activity cache service is required")
	}
	return &CachedActivityStore{
		base:        base,
		cache:       cacheService,
		generations: map[string]uint64{},
	}, nil
}

func (s *CachedActivityStore) Record(ctx context.Context, entry core.ActivityEntry) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached activity store is not configured")
	}
	if err := s.base.Record(ctx, entry); err != nil {
		return err
	}
	s.mu.Lock()
	s.generations[strings.TrimSpace(entry.Namespace)]++
	s.generations[allNamespaces]++
	s.mu.Unlock()
	return nil
}

func (s *CachedActivityStore) List(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ActivityPage{}, fmt.Errorf("sqlstore: cached activity store is not configured")
	}
	key := s.cacheKey(filter)
	page, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (core.ActivityPage, error) {
		return s.base.List(ctx, filter)
	})
	if err != nil {
		return core.ActivityPage{}, err
	}
	return cloneActivityPage(page), nil
}

const allNamespaces = "*"

// cacheKey returns
// go-workspaces::watch_activity::v1::<generation>::<namespace>::<action>::<from>::<to>::<page>::<per_page>
// with each segment URL-path escaped.
func (s *CachedActivityStore) cacheKey(filter core.ActivityFilter) string {
	scope := strings.TrimSpace(filter.Namespace)
	if scope == "" {
		scope = allNamespaces
	}
	page, perPage := normalizePaging(filter)

	s.mu.Lock()
	generation := s.generations[scope]
	s.mu.Unlock()

	segments := []string{
		strconv.FormatUint(generation, 10),
		scope,
		strings.TrimSpace(string(filter.Action)),
		formatBound(filter.From),
		formatBound(filter.To),
		strconv.Itoa(page),
		strconv.Itoa(perPage),
	}
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(append([]string{activityCacheKeyPrefix}, segments...), "::")
}

func formatBound(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func cloneActivityPage(page core.ActivityPage) core.ActivityPage {
	cloned := page
	cloned.Items = make([]core.ActivityEntry, len(page.Items))
	for i, item := range page.Items {
		item.Metadata = copyAnyMap(item.Metadata)
		cloned.Items[i] = item
	}
	return cloned
}

var (
	_ core.ActivityRecorder = (*CachedActivityStore)(nil)
	_ core.ActivityReader   = (*CachedActivityStore)(nil)
)
