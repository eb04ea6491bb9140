package ranker

import (
	"sort"

	"lyric-notes/internal/domain"
)

// DisplayRanker упорядочивает аннотации для выдачи: сначала проверенные,
// внутри — по рейтингу, при равенстве — более ранние.
type DisplayRanker struct{}

// New создаёт ранжировщик.
func New() *DisplayRanker {
	return &DisplayRanker{}
}

// Rank возвращает отсортированную копию входа, не трогая исходный срез.
func (r *DisplayRanker) Rank(annotations []domain.Annotation) []domain.Annotation {
	out := append([]domain.Annotation(nil), annotations...)
	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i], out[j])
	})
	return out
}

// Less реализует полный порядок на цепочке ключей: верификация, рейтинг,
// время создания; id замыкает цепочку для детерминизма.
func Less(a, b domain.Annotation) bool {
	if a.IsVerified != b.IsVerified {
		return a.IsVerified
	}
	if a.Score() != b.Score() {
		return a.Score() > b.Score()
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
