package service

import (
	"context"
	"sort"

	"github.com/and161185/student-portal/internal/model"
)

// GetActiveNews re-applies the active filter and ordering on top of the store's.
func (s *DataServiceImpl) GetActiveNews(ctx context.Context) []model.NewsItem {
	items, err := s.store.News.ListActive(ctx)
	if err != nil {
		s.fail("get_active_news", err)
		return []model.NewsItem{}
	}
	out := make([]model.NewsItem, 0, len(items))
	for _, n := range items {
		if n.IsActive {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
