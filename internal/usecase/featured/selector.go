package featured

import (
	"sort"

	"lyric-notes/internal/domain"
)

// Placement — одна выделенная аннотация вместе с её группой пересечения.
// Группа считается по полному активному набору, поэтому отклонённые
// жадным выбором аннотации остаются доступны через выделенный фрагмент.
type Placement struct {
	Annotation domain.Annotation   `json:"annotation"`
	Group      []domain.Annotation `json:"group"`
}

// Select строит непересекающийся набор аннотаций для инлайн-подсветки.
// Классический жадный выбор по возрастанию start; тай-брейк по id даёт
// детерминизм: два пользователя на одном документе видят одни границы.
// Порядок входа не важен — перестановка даёт тот же набор.
func Select(active []domain.Annotation, rank domain.AnnotationRanker) []Placement {
	if len(active) == 0 {
		return []Placement{}
	}
	sorted := append([]domain.Annotation(nil), active...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].ID < sorted[j].ID
	})

	placements := make([]Placement, 0, len(sorted))
	lastEnd := -1
	for _, a := range sorted {
		if a.Start < lastEnd {
			continue
		}
		group := domain.Overlapping(sorted, a.Span())
		if rank != nil {
			group = rank.Rank(group)
		}
		placements = append(placements, Placement{Annotation: a, Group: group})
		lastEnd = a.End
	}
	return placements
}
