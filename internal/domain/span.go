package domain

// Span описывает полуинтервал [Start, End) в байтовых смещениях UTF-8 текста
// документа. Смещения — контракт границы сериализации: клиент обязан считать
// их в тех же единицах, иначе границы диапазонов молча поползут.
type Span struct {
	Start int
	End   int
}

// Overlaps проверяет пересечение двух полуинтервалов.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && s.End > other.Start
}

// ValidFor проверяет корректность диапазона для текста указанной длины.
func (s Span) ValidFor(textLen int) bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= textLen
}

// Len возвращает длину диапазона.
func (s Span) Len() int {
	return s.End - s.Start
}

// Overlapping возвращает все аннотации, пересекающие span. Линейный проход
// по снимку кандидатов: на наших объёмах индекс интервалов не нужен.
func Overlapping(candidates []Annotation, span Span) []Annotation {
	var out []Annotation
	for _, a := range candidates {
		if a.Span().Overlaps(span) {
			out = append(out, a)
		}
	}
	return out
}
