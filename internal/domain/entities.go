package domain

import "time"

// AnnotationStatus описывает состояние аннотации.
type AnnotationStatus string

const (
	StatusActive   AnnotationStatus = "active"
	StatusPending  AnnotationStatus = "pending"
	StatusRejected AnnotationStatus = "rejected"
	StatusHidden   AnnotationStatus = "hidden"
	StatusDeleted  AnnotationStatus = "deleted"
)

// Document описывает текст песни, к которому привязываются аннотации.
// AnnotationCount — денормализованный счётчик активных аннотаций; обновляется
// атомарными инкрементами и может временно расходиться с фактическим числом строк.
type Document struct {
	ID              int64
	Title           string
	Artist          string
	Body            string
	AnnotationCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Annotation описывает пояснение пользователя к диапазону текста документа.
// Диапазон и документ неизменяемы после создания; редактируются только
// Explanation и CulturalContext.
type Annotation struct {
	ID              int64
	DocumentID      int64
	AuthorID        int64
	SelectedText    string
	Start           int
	End             int
	Explanation     string
	CulturalContext string
	Upvotes         int
	Downvotes       int
	IsVerified      bool
	Status          AnnotationStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Score возвращает производный рейтинг аннотации.
func (a Annotation) Score() int {
	return a.Upvotes - a.Downvotes
}

// Span возвращает диапазон аннотации.
func (a Annotation) Span() Span {
	return Span{Start: a.Start, End: a.End}
}

// VoteDirection описывает направление голоса.
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

// Valid проверяет, что направление входит в допустимое множество.
func (d VoteDirection) Valid() bool {
	return d == VoteUp || d == VoteDown
}

// TrackMeta содержит метаданные трека из внешнего каталога.
// Используются только как подсказка при создании документов и никак
// не влияют на семантику аннотаций.
type TrackMeta struct {
	ExternalID string
	Title      string
	Artist     string
	Album      string
	URL        string
}
