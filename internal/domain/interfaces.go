package domain

import (
	"context"
	"time"
)

// DocumentRepo читает документы и обслуживает денормализованный счётчик.
type DocumentRepo interface {
	GetDocument(ctx context.Context, id int64) (Document, error)
	// AddAnnotationCount атомарно сдвигает счётчик на delta на стороне
	// хранилища; никакого read-modify-write в приложении.
	AddAnnotationCount(ctx context.Context, id int64, delta int) error
}

// AnnotationRepo управляет строками аннотаций.
type AnnotationRepo interface {
	CreateAnnotation(ctx context.Context, a Annotation) (Annotation, error)
	GetAnnotation(ctx context.Context, id int64) (Annotation, error)
	UpdateAnnotationContent(ctx context.Context, id int64, explanation, culturalContext *string) (Annotation, error)
	// TransitionStatus переводит аннотацию в to, если текущий статус входит
	// в from. Возвращает прежний статус и признак того, что переход случился.
	TransitionStatus(ctx context.Context, id int64, to AnnotationStatus, from ...AnnotationStatus) (AnnotationStatus, bool, error)
	SetVerified(ctx context.Context, id int64, verified bool) (Annotation, error)
	ListActiveByDocument(ctx context.Context, documentID int64) ([]Annotation, error)
	DeleteAnnotation(ctx context.Context, id int64) error
}

// VoteRepo обслуживает голоса с ограничением «один голос на пользователя».
type VoteRepo interface {
	// CastVote атомарно регистрирует голос. Повторный голос в ту же сторону —
	// no-op; голос в противоположную переносит единицу между счётчиками.
	CastVote(ctx context.Context, annotationID, userID int64, direction VoteDirection) (Annotation, error)
	// WithdrawVote снимает ранее поданный голос, если он был.
	WithdrawVote(ctx context.Context, annotationID, userID int64) (Annotation, error)
}

// AnnotationRanker упорядочивает аннотации для выдачи.
type AnnotationRanker interface {
	Rank(annotations []Annotation) []Annotation
}

// Cache — простое TTL-хранилище для отрендеренных выборок.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// TrackResolver ищет треки во внешнем каталоге. Чисто информационный
// коллаборатор: результат никогда не влияет на аннотации.
type TrackResolver interface {
	Search(ctx context.Context, query string) ([]TrackMeta, error)
}
