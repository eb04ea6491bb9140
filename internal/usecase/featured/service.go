package featured

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"lyric-notes/internal/domain"
	"lyric-notes/internal/infra/metrics"
)

// Service отдаёт выделенный набор аннотаций документа.
type Service struct {
	docs   domain.DocumentRepo
	repo   domain.AnnotationRepo
	ranker domain.AnnotationRanker
	cache  domain.Cache
	ttl    time.Duration
	log    zerolog.Logger
}

// NewService создаёт сервис выделенного набора.
func NewService(docs domain.DocumentRepo, repo domain.AnnotationRepo, ranker domain.AnnotationRanker, cache domain.Cache, ttl time.Duration, log zerolog.Logger) *Service {
	return &Service{docs: docs, repo: repo, ranker: ranker, cache: cache, ttl: ttl, log: log}
}

// CacheKey возвращает ключ кэша для документа.
func CacheKey(documentID int64) string {
	return fmt.Sprintf("featured:%d", documentID)
}

// FeaturedSet строит (или достаёт из кэша) набор для инлайн-рендеринга.
// Селектор — чистая функция над снимком активных аннотаций, поэтому
// конкурентные читатели без какой-либо блокировки получают одинаковый ответ.
func (s *Service) FeaturedSet(ctx context.Context, documentID int64) ([]Placement, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, CacheKey(documentID)); err == nil && len(raw) > 0 {
			var cached []Placement
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	if _, err := s.docs.GetDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("получение документа: %w", err)
	}
	active, err := s.repo.ListActiveByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("получение активных аннотаций: %w", err)
	}

	start := time.Now()
	placements := Select(active, s.ranker)
	metrics.FeaturedBuildSeconds.Observe(time.Since(start).Seconds())

	if s.cache != nil {
		if raw, err := json.Marshal(placements); err == nil {
			if err := s.cache.Set(ctx, CacheKey(documentID), raw, s.ttl); err != nil {
				s.log.Warn().Err(err).Int64("document_id", documentID).Msg("featured: кэш недоступен")
			}
		}
	}
	return placements, nil
}

// Invalidate сбрасывает кэш документа после мутации аннотаций.
func (s *Service) Invalidate(ctx context.Context, documentID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, CacheKey(documentID)); err != nil {
		s.log.Warn().Err(err).Int64("document_id", documentID).Msg("featured: сброс кэша не удался")
	}
}
