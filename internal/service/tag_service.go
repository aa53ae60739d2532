package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xxxsen/noteimport/internal/model"
	"github.com/xxxsen/noteimport/internal/pkg/timeutil"
)

// TagService resolves tag names to tag rows, creating missing ones. Ids of
// committed tags are cached so a large import does not look the same tag up
// for every note.
type TagService struct {
	tags  TagStore
	cache *expirable.LRU[string, model.Tag]
}

func NewTagService(tags TagStore, cacheSize int, ttl time.Duration) *TagService {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &TagService{
		tags:  tags,
		cache: expirable.NewLRU[string, model.Tag](cacheSize, nil, ttl),
	}
}

// EnsureTags returns one tag per distinct name (case-insensitive), in first
// seen order. Missing tags are upserted sorted by name key so concurrent
// imports lock tag rows in the same order. It must run inside the note
// transaction; call Remember once that transaction committed.
func (s *TagService) EnsureTags(ctx context.Context, userID string, names []string) ([]model.Tag, error) {
	cleaned := normalizeTags(names)
	if len(cleaned) == 0 {
		return nil, nil
	}
	result := make([]model.Tag, len(cleaned))
	misses := make([]int, 0, len(cleaned))
	for i, name := range cleaned {
		if tag, ok := s.cache.Get(cacheKey(userID, name)); ok {
			result[i] = tag
			continue
		}
		misses = append(misses, i)
	}
	sort.Slice(misses, func(a, b int) bool {
		return nameKey(cleaned[misses[a]]) < nameKey(cleaned[misses[b]])
	})
	now := timeutil.NowUnix()
	for _, i := range misses {
		stored, err := s.tags.Upsert(ctx, &model.Tag{
			ID:     newID(),
			UserID: userID,
			Name:   cleaned[i],
			Ctime:  now,
			Mtime:  now,
		})
		if err != nil {
			return nil, err
		}
		result[i] = *stored
	}
	return result, nil
}

func (s *TagService) Remember(userID string, tags []model.Tag) {
	for _, tag := range tags {
		s.cache.Add(cacheKey(userID, tag.Name), tag)
	}
}

func cacheKey(userID, name string) string {
	return userID + "\x00" + nameKey(name)
}

// nameKey matches the name_key column tags are unique on.
func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeTags(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.Join(strings.Fields(name), " ")
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}
