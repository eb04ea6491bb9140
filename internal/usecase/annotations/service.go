package annotations

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"lyric-notes/internal/domain"
	"lyric-notes/internal/infra/metrics"
)

// MinExplanationLen — минимальная длина пояснения в символах, без краевых
// пробелов. Считаем руны: кириллическое пояснение не должно проходить за
// счёт двухбайтовой кодировки.
const MinExplanationLen = 10

func explanationTooShort(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) < MinExplanationLen
}

// Invalidator сбрасывает производные кэши документа после мутации.
type Invalidator interface {
	Invalidate(ctx context.Context, documentID int64)
}

// Service реализует операции над аннотациями: создание, правку, мягкое
// удаление, голоса и выдачу списка.
type Service struct {
	repo  domain.AnnotationRepo
	docs  domain.DocumentRepo
	votes domain.VoteRepo
	rank  domain.AnnotationRanker
	inval Invalidator
	log   zerolog.Logger
}

// NewService создаёт сервис аннотаций.
func NewService(repo domain.AnnotationRepo, docs domain.DocumentRepo, votes domain.VoteRepo, rank domain.AnnotationRanker, inval Invalidator, log zerolog.Logger) *Service {
	return &Service{repo: repo, docs: docs, votes: votes, rank: rank, inval: inval, log: log}
}

// CreateParams описывает запрос на создание аннотации.
type CreateParams struct {
	DocumentID      int64
	Start           int
	End             int
	Explanation     string
	CulturalContext string
}

// Create проверяет диапазон против текста документа и сохраняет аннотацию.
// Пересечение с уже существующими аннотациями — ожидаемое состояние и не
// проверяется; коллизии разрешает селектор на чтении.
func (s *Service) Create(ctx context.Context, caller domain.Caller, p CreateParams) (domain.Annotation, error) {
	doc, err := s.docs.GetDocument(ctx, p.DocumentID)
	if err != nil {
		return domain.Annotation{}, fmt.Errorf("получение документа: %w", err)
	}
	span := domain.Span{Start: p.Start, End: p.End}
	if !span.ValidFor(len(doc.Body)) {
		return domain.Annotation{}, domain.ValidationError{Field: "range", Reason: fmt.Sprintf("[%d,%d) вне текста длиной %d", p.Start, p.End, len(doc.Body))}
	}
	if explanationTooShort(p.Explanation) {
		return domain.Annotation{}, domain.ValidationError{Field: "explanation", Reason: fmt.Sprintf("минимум %d символов", MinExplanationLen)}
	}

	created, err := s.repo.CreateAnnotation(ctx, domain.Annotation{
		DocumentID:      p.DocumentID,
		AuthorID:        caller.ID,
		SelectedText:    doc.Body[p.Start:p.End],
		Start:           p.Start,
		End:             p.End,
		Explanation:     p.Explanation,
		CulturalContext: p.CulturalContext,
		Status:          domain.StatusActive,
	})
	if err != nil {
		return domain.Annotation{}, fmt.Errorf("сохранение аннотации: %w", err)
	}
	// Счётчик — best-effort кэш: сбой инкремента не откатывает создание.
	if err := s.docs.AddAnnotationCount(ctx, p.DocumentID, 1); err != nil {
		s.log.Error().Err(err).Int64("document_id", p.DocumentID).Msg("annotations: инкремент счётчика не удался")
	}
	metrics.AnnotationsCreatedTotal.Inc()
	s.invalidate(ctx, p.DocumentID)
	return created, nil
}

// UpdatePatch описывает правку содержимого. Диапазон и документ не правятся.
type UpdatePatch struct {
	Explanation     *string
	CulturalContext *string
}

// Update правит пояснение или культурный контекст. Доступно только автору.
func (s *Service) Update(ctx context.Context, caller domain.Caller, id int64, patch UpdatePatch) (domain.Annotation, error) {
	current, err := s.repo.GetAnnotation(ctx, id)
	if err != nil {
		return domain.Annotation{}, fmt.Errorf("получение аннотации: %w", err)
	}
	if current.AuthorID != caller.ID {
		s.log.Warn().Int64("actor_id", caller.ID).Int64("annotation_id", id).Msg("annotations: правка чужой аннотации")
		return domain.Annotation{}, domain.ErrForbidden
	}
	if patch.Explanation != nil && explanationTooShort(*patch.Explanation) {
		return domain.Annotation{}, domain.ValidationError{Field: "explanation", Reason: fmt.Sprintf("минимум %d символов", MinExplanationLen)}
	}
	updated, err := s.repo.UpdateAnnotationContent(ctx, id, patch.Explanation, patch.CulturalContext)
	if err != nil {
		return domain.Annotation{}, fmt.Errorf("правка аннотации: %w", err)
	}
	s.invalidate(ctx, current.DocumentID)
	return updated, nil
}

// SoftDelete переводит аннотацию в deleted. Доступно автору и администратору.
// Повторный вызов — no-op: счётчик документа не декрементируется дважды.
func (s *Service) SoftDelete(ctx context.Context, caller domain.Caller, id int64) error {
	current, err := s.repo.GetAnnotation(ctx, id)
	if err != nil {
		return fmt.Errorf("получение аннотации: %w", err)
	}
	if current.AuthorID != caller.ID && !caller.IsAdmin() {
		s.log.Warn().Int64("actor_id", caller.ID).Int64("annotation_id", id).Msg("annotations: удаление чужой аннотации")
		return domain.ErrForbidden
	}
	prev, changed, err := s.repo.TransitionStatus(ctx, id, domain.StatusDeleted, domain.StatusActive, domain.StatusPending, domain.StatusHidden)
	if err != nil {
		return fmt.Errorf("смена статуса: %w", err)
	}
	if changed && prev == domain.StatusActive {
		if err := s.docs.AddAnnotationCount(ctx, current.DocumentID, -1); err != nil {
			s.log.Error().Err(err).Int64("document_id", current.DocumentID).Msg("annotations: декремент счётчика не удался")
		}
	}
	if changed {
		s.invalidate(ctx, current.DocumentID)
	}
	return nil
}

// Vote регистрирует голос. Авторизация не требуется сверх аутентификации,
// но повторный голос того же пользователя не накручивает счётчик: в ту же
// сторону — no-op, в противоположную — перенос единицы между колонками.
func (s *Service) Vote(ctx context.Context, caller domain.Caller, id int64, direction domain.VoteDirection) (domain.Annotation, error) {
	if !direction.Valid() {
		return domain.Annotation{}, domain.ValidationError{Field: "direction", Reason: "допустимы только up и down"}
	}
	ann, err := s.votes.CastVote(ctx, id, caller.ID, direction)
	if err != nil {
		return domain.Annotation{}, fmt.Errorf("голос: %w", err)
	}
	metrics.VotesCastTotal.WithLabelValues(string(direction)).Inc()
	s.invalidate(ctx, ann.DocumentID)
	return ann, nil
}

// Unvote снимает ранее поданный голос.
func (s *Service) Unvote(ctx context.Context, caller domain.Caller, id int64) (domain.Annotation, error) {
	ann, err := s.votes.WithdrawVote(ctx, id, caller.ID)
	if err != nil {
		return domain.Annotation{}, fmt.Errorf("снятие голоса: %w", err)
	}
	s.invalidate(ctx, ann.DocumentID)
	return ann, nil
}

// Поддерживаемые режимы сортировки списка.
const (
	SortTop    = "top"
	SortRecent = "recent"
)

// ListByDocument возвращает активные аннотации документа в порядке выдачи.
// По умолчанию — ранжирование (верификация, рейтинг, старшинство);
// recent — свежие первыми.
func (s *Service) ListByDocument(ctx context.Context, documentID int64, sortMode string) ([]domain.Annotation, error) {
	if _, err := s.docs.GetDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("получение документа: %w", err)
	}
	active, err := s.repo.ListActiveByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("получение аннотаций: %w", err)
	}
	switch sortMode {
	case SortRecent:
		out := append([]domain.Annotation(nil), active...)
		sort.Slice(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.After(out[j].CreatedAt)
			}
			return out[i].ID > out[j].ID
		})
		return out, nil
	case "", SortTop:
		return s.rank.Rank(active), nil
	default:
		return nil, domain.ValidationError{Field: "sort", Reason: "допустимы только top и recent"}
	}
}

func (s *Service) invalidate(ctx context.Context, documentID int64) {
	if s.inval != nil {
		s.inval.Invalidate(ctx, documentID)
	}
}
