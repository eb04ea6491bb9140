package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lyric-notes/internal/domain"
	"lyric-notes/internal/infra/metrics"
)

// Invalidator сбрасывает производные кэши документа после мутации.
type Invalidator interface {
	Invalidate(ctx context.Context, documentID int64)
}

// Service реализует модераторские переходы статусов и журнал аудита.
// Каждый переход неотделимо публикует запись аудита, но сбой публикации
// никогда не откатывает и не всплывает: доступность важнее полноты журнала.
type Service struct {
	repo  domain.AnnotationRepo
	docs  domain.DocumentRepo
	queue domain.AuditQueue
	trail domain.AuditRepo
	inval Invalidator
	log   zerolog.Logger
}

// NewService создаёт сервис модерации.
func NewService(repo domain.AnnotationRepo, docs domain.DocumentRepo, queue domain.AuditQueue, trail domain.AuditRepo, inval Invalidator, log zerolog.Logger) *Service {
	return &Service{repo: repo, docs: docs, queue: queue, trail: trail, inval: inval, log: log}
}

// SetVerified включает или снимает отметку проверки. Только модератор/админ.
func (s *Service) SetVerified(ctx context.Context, caller domain.Caller, id int64, verified bool, reason string) (domain.Annotation, error) {
	if !domain.Authorize(caller.Role, domain.ActionVerify) {
		s.log.Warn().Int64("actor_id", caller.ID).Int64("annotation_id", id).Msg("moderation: верификация без прав")
		return domain.Annotation{}, domain.ErrForbidden
	}
	before, err := s.repo.GetAnnotation(ctx, id)
	if err != nil {
		return domain.Annotation{}, fmt.Errorf("получение аннотации: %w", err)
	}
	after, err := s.repo.SetVerified(ctx, id, verified)
	if err != nil {
		return domain.Annotation{}, fmt.Errorf("верификация: %w", err)
	}
	s.emit(ctx, caller, "annotation_verify", id,
		domain.Snapshot{"is_verified": before.IsVerified},
		domain.Snapshot{"is_verified": after.IsVerified},
		reason)
	s.invalidate(ctx, before.DocumentID)
	return after, nil
}

// SetHidden переводит active ⇄ hidden. Только модератор/админ.
func (s *Service) SetHidden(ctx context.Context, caller domain.Caller, id int64, hidden bool, reason string) error {
	if !domain.Authorize(caller.Role, domain.ActionHide) {
		s.log.Warn().Int64("actor_id", caller.ID).Int64("annotation_id", id).Msg("moderation: скрытие без прав")
		return domain.ErrForbidden
	}
	to, from := domain.StatusHidden, domain.StatusActive
	if !hidden {
		to, from = domain.StatusActive, domain.StatusHidden
	}
	prev, changed, err := s.repo.TransitionStatus(ctx, id, to, from)
	if err != nil {
		return fmt.Errorf("смена статуса: %w", err)
	}
	if !changed {
		return nil
	}
	ann, err := s.repo.GetAnnotation(ctx, id)
	if err != nil {
		return fmt.Errorf("получение аннотации: %w", err)
	}
	delta := -1
	if !hidden {
		delta = 1
	}
	if err := s.docs.AddAnnotationCount(ctx, ann.DocumentID, delta); err != nil {
		s.log.Error().Err(err).Int64("document_id", ann.DocumentID).Msg("moderation: сдвиг счётчика не удался")
	}
	s.emit(ctx, caller, "annotation_hide", id,
		domain.Snapshot{"status": prev},
		domain.Snapshot{"status": to},
		reason)
	s.invalidate(ctx, ann.DocumentID)
	return nil
}

// Delete — модераторское мягкое удаление (active/pending → deleted).
func (s *Service) Delete(ctx context.Context, caller domain.Caller, id int64, reason string) error {
	if !domain.Authorize(caller.Role, domain.ActionModDelete) {
		s.log.Warn().Int64("actor_id", caller.ID).Int64("annotation_id", id).Msg("moderation: удаление без прав")
		return domain.ErrForbidden
	}
	ann, err := s.repo.GetAnnotation(ctx, id)
	if err != nil {
		return fmt.Errorf("получение аннотации: %w", err)
	}
	prev, changed, err := s.repo.TransitionStatus(ctx, id, domain.StatusDeleted, domain.StatusActive, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("смена статуса: %w", err)
	}
	if !changed {
		return nil
	}
	if prev == domain.StatusActive {
		if err := s.docs.AddAnnotationCount(ctx, ann.DocumentID, -1); err != nil {
			s.log.Error().Err(err).Int64("document_id", ann.DocumentID).Msg("moderation: декремент счётчика не удался")
		}
	}
	s.emit(ctx, caller, "annotation_delete", id,
		domain.Snapshot{"status": prev, "explanation": domain.TruncateForSnapshot(ann.Explanation)},
		domain.Snapshot{"status": domain.StatusDeleted},
		reason)
	s.invalidate(ctx, ann.DocumentID)
	return nil
}

// Remove — административное удаление строки целиком. Только админ.
func (s *Service) Remove(ctx context.Context, caller domain.Caller, id int64, reason string) error {
	if !domain.Authorize(caller.Role, domain.ActionHardDelete) {
		s.log.Warn().Int64("actor_id", caller.ID).Int64("annotation_id", id).Msg("moderation: физическое удаление без прав")
		return domain.ErrForbidden
	}
	ann, err := s.repo.GetAnnotation(ctx, id)
	if err != nil {
		return fmt.Errorf("получение аннотации: %w", err)
	}
	if err := s.repo.DeleteAnnotation(ctx, id); err != nil {
		return fmt.Errorf("удаление строки: %w", err)
	}
	if ann.Status == domain.StatusActive {
		if err := s.docs.AddAnnotationCount(ctx, ann.DocumentID, -1); err != nil {
			s.log.Error().Err(err).Int64("document_id", ann.DocumentID).Msg("moderation: декремент счётчика не удался")
		}
	}
	s.emit(ctx, caller, "annotation_remove", id,
		domain.Snapshot{
			"status":        ann.Status,
			"author_id":     ann.AuthorID,
			"selected_text": domain.TruncateForSnapshot(ann.SelectedText),
			"explanation":   domain.TruncateForSnapshot(ann.Explanation),
		},
		nil,
		reason)
	s.invalidate(ctx, ann.DocumentID)
	return nil
}

// AuditTrail возвращает страницу журнала аудита. Только модератор/админ.
func (s *Service) AuditTrail(ctx context.Context, caller domain.Caller, filter domain.AuditFilter, limit, offset int) ([]domain.AuditEntry, error) {
	if !domain.Authorize(caller.Role, domain.ActionViewAudit) {
		return nil, domain.ErrForbidden
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := s.trail.ListAuditEntries(ctx, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("чтение журнала: %w", err)
	}
	return entries, nil
}

// emit публикует запись аудита fire-and-forget.
func (s *Service) emit(ctx context.Context, caller domain.Caller, action string, entityID int64, oldValue, newValue domain.Snapshot, reason string) {
	entry := domain.AuditEntry{
		ID:         uuid.NewString(),
		ActorID:    caller.ID,
		Action:     action,
		EntityType: "annotation",
		EntityID:   entityID,
		OldValue:   oldValue,
		NewValue:   newValue,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, entry); err != nil {
		metrics.AuditPublishFailures.Inc()
		s.log.Error().Err(err).Int64("actor_id", caller.ID).Str("action", action).Msg("moderation: публикация аудита не удалась")
	}
}

func (s *Service) invalidate(ctx context.Context, documentID int64) {
	if s.inval != nil {
		s.inval.Invalidate(ctx, documentID)
	}
}
