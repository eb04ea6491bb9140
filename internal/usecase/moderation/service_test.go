package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"lyric-notes/internal/domain"
)

type stubStore struct {
	docs        map[int64]*domain.Document
	annotations map[int64]*domain.Annotation
}

func newStubStore(anns ...domain.Annotation) *stubStore {
	s := &stubStore{
		docs:        map[int64]*domain.Document{1: {ID: 1, Body: "I walked alone in the rain"}},
		annotations: make(map[int64]*domain.Annotation),
	}
	for i := range anns {
		a := anns[i]
		s.annotations[a.ID] = &a
		if a.Status == domain.StatusActive {
			s.docs[a.DocumentID].AnnotationCount++
		}
	}
	return s
}

func (s *stubStore) GetDocument(_ context.Context, id int64) (domain.Document, error) {
	d, ok := s.docs[id]
	if !ok {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return *d, nil
}

func (s *stubStore) AddAnnotationCount(_ context.Context, id int64, delta int) error {
	d, ok := s.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	d.AnnotationCount += delta
	return nil
}

func (s *stubStore) CreateAnnotation(_ context.Context, a domain.Annotation) (domain.Annotation, error) {
	return a, nil
}

func (s *stubStore) GetAnnotation(_ context.Context, id int64) (domain.Annotation, error) {
	a, ok := s.annotations[id]
	if !ok {
		return domain.Annotation{}, domain.ErrAnnotationNotFound
	}
	return *a, nil
}

func (s *stubStore) UpdateAnnotationContent(_ context.Context, id int64, _, _ *string) (domain.Annotation, error) {
	return s.GetAnnotation(context.Background(), id)
}

func (s *stubStore) TransitionStatus(_ context.Context, id int64, to domain.AnnotationStatus, from ...domain.AnnotationStatus) (domain.AnnotationStatus, bool, error) {
	a, ok := s.annotations[id]
	if !ok {
		return "", false, domain.ErrAnnotationNotFound
	}
	for _, st := range from {
		if a.Status == st {
			prev := a.Status
			a.Status = to
			return prev, true, nil
		}
	}
	return a.Status, false, nil
}

func (s *stubStore) SetVerified(_ context.Context, id int64, verified bool) (domain.Annotation, error) {
	a, ok := s.annotations[id]
	if !ok {
		return domain.Annotation{}, domain.ErrAnnotationNotFound
	}
	a.IsVerified = verified
	return *a, nil
}

func (s *stubStore) ListActiveByDocument(_ context.Context, documentID int64) ([]domain.Annotation, error) {
	var out []domain.Annotation
	for _, a := range s.annotations {
		if a.DocumentID == documentID && a.Status == domain.StatusActive {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *stubStore) DeleteAnnotation(_ context.Context, id int64) error {
	if _, ok := s.annotations[id]; !ok {
		return domain.ErrAnnotationNotFound
	}
	delete(s.annotations, id)
	return nil
}

func (s *stubStore) AppendAuditEntry(_ context.Context, _ domain.AuditEntry) error { return nil }

func (s *stubStore) ListAuditEntries(_ context.Context, _ domain.AuditFilter, _, _ int) ([]domain.AuditEntry, error) {
	return nil, nil
}

type captureQueue struct {
	entries []domain.AuditEntry
	fail    bool
}

func (q *captureQueue) Enqueue(_ context.Context, entry domain.AuditEntry) error {
	if q.fail {
		return errors.New("брокер недоступен")
	}
	q.entries = append(q.entries, entry)
	return nil
}

func (q *captureQueue) Pop(_ context.Context) (domain.AuditEntry, error) {
	return domain.AuditEntry{}, errors.New("not implemented")
}

func activeAnnotation(id int64) domain.Annotation {
	return domain.Annotation{
		ID:          id,
		DocumentID:  1,
		AuthorID:    7,
		Start:       2,
		End:         9,
		Explanation: "пояснение для модерации",
		Status:      domain.StatusActive,
	}
}

func TestSetVerifiedRequiresRole(t *testing.T) {
	store := newStubStore(activeAnnotation(1))
	queue := &captureQueue{}
	svc := NewService(store, store, queue, store, nil, zerolog.Nop())

	if _, err := svc.SetVerified(context.Background(), domain.Caller{ID: 5, Role: domain.RoleUser}, 1, true, ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("ожидали ErrForbidden, получили %v", err)
	}
	if len(queue.entries) != 0 {
		t.Fatalf("запрещённое действие не должно писать аудит")
	}
}

func TestSetVerifiedEmitsAudit(t *testing.T) {
	store := newStubStore(activeAnnotation(1))
	queue := &captureQueue{}
	svc := NewService(store, store, queue, store, nil, zerolog.Nop())
	moderator := domain.Caller{ID: 5, Role: domain.RoleModerator}

	updated, err := svc.SetVerified(context.Background(), moderator, 1, true, "качественное пояснение")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !updated.IsVerified {
		t.Fatalf("аннотация должна стать проверенной")
	}
	if len(queue.entries) != 1 {
		t.Fatalf("ожидали 1 запись аудита, получили %d", len(queue.entries))
	}
	entry := queue.entries[0]
	if entry.ActorID != 5 || entry.Action != "annotation_verify" || entry.EntityID != 1 {
		t.Fatalf("некорректная запись аудита: %+v", entry)
	}
	if entry.OldValue["is_verified"] != false || entry.NewValue["is_verified"] != true {
		t.Fatalf("снимки до/после не совпадают: %+v", entry)
	}
	if entry.Reason != "качественное пояснение" {
		t.Fatalf("причина потеряна")
	}
}

// Сбой публикации аудита не откатывает и не проваливает мутацию.
func TestAuditFailureDoesNotBlockMutation(t *testing.T) {
	store := newStubStore(activeAnnotation(1))
	queue := &captureQueue{fail: true}
	svc := NewService(store, store, queue, store, nil, zerolog.Nop())

	updated, err := svc.SetVerified(context.Background(), domain.Caller{ID: 5, Role: domain.RoleModerator}, 1, true, "")
	if err != nil {
		t.Fatalf("мутация не должна зависеть от аудита: %v", err)
	}
	if !updated.IsVerified {
		t.Fatalf("мутация должна примениться")
	}
}

func TestHideAndUnhide(t *testing.T) {
	store := newStubStore(activeAnnotation(1))
	queue := &captureQueue{}
	svc := NewService(store, store, queue, store, nil, zerolog.Nop())
	moderator := domain.Caller{ID: 5, Role: domain.RoleModerator}

	if err := svc.SetHidden(context.Background(), moderator, 1, true, "спорное"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if store.annotations[1].Status != domain.StatusHidden {
		t.Fatalf("ожидали статус hidden")
	}
	if store.docs[1].AnnotationCount != 0 {
		t.Fatalf("скрытие уводит аннотацию из активных: счётчик %d", store.docs[1].AnnotationCount)
	}
	// Повторное скрытие — no-op без новой записи аудита.
	if err := svc.SetHidden(context.Background(), moderator, 1, true, ""); err != nil {
		t.Fatalf("повторное скрытие должно быть no-op: %v", err)
	}
	if len(queue.entries) != 1 {
		t.Fatalf("ожидали 1 запись аудита, получили %d", len(queue.entries))
	}

	if err := svc.SetHidden(context.Background(), moderator, 1, false, ""); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if store.annotations[1].Status != domain.StatusActive {
		t.Fatalf("ожидали статус active после раскрытия")
	}
	if store.docs[1].AnnotationCount != 1 {
		t.Fatalf("раскрытие возвращает аннотацию в активные: счётчик %d", store.docs[1].AnnotationCount)
	}
}

func TestModeratorDeleteTruncatesSnapshot(t *testing.T) {
	ann := activeAnnotation(1)
	ann.Explanation = strings.Repeat("д", domain.SnapshotLimit*2)
	store := newStubStore(ann)
	queue := &captureQueue{}
	svc := NewService(store, store, queue, store, nil, zerolog.Nop())

	if err := svc.Delete(context.Background(), domain.Caller{ID: 5, Role: domain.RoleModerator}, 1, "нарушение"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if store.annotations[1].Status != domain.StatusDeleted {
		t.Fatalf("ожидали статус deleted")
	}
	entry := queue.entries[0]
	snapshot, _ := entry.OldValue["explanation"].(string)
	if len(snapshot) != domain.SnapshotLimit {
		t.Fatalf("ожидали снимок в %d байт, получили %d", domain.SnapshotLimit, len(snapshot))
	}
}

func TestRemoveAdminOnly(t *testing.T) {
	store := newStubStore(activeAnnotation(1))
	queue := &captureQueue{}
	svc := NewService(store, store, queue, store, nil, zerolog.Nop())

	if err := svc.Remove(context.Background(), domain.Caller{ID: 5, Role: domain.RoleModerator}, 1, ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("модератору запрещено физическое удаление, получили %v", err)
	}
	if err := svc.Remove(context.Background(), domain.Caller{ID: 6, Role: domain.RoleAdmin}, 1, "спам"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, ok := store.annotations[1]; ok {
		t.Fatalf("строка должна быть удалена")
	}
	if store.docs[1].AnnotationCount != 0 {
		t.Fatalf("счётчик должен декрементироваться, получили %d", store.docs[1].AnnotationCount)
	}
	if len(queue.entries) != 1 || queue.entries[0].Action != "annotation_remove" {
		t.Fatalf("ожидали запись аудита annotation_remove")
	}
}

func TestAuditTrailRequiresRole(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, store, &captureQueue{}, store, nil, zerolog.Nop())

	if _, err := svc.AuditTrail(context.Background(), domain.Caller{ID: 5, Role: domain.RoleUser}, domain.AuditFilter{}, 10, 0); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("ожидали ErrForbidden, получили %v", err)
	}
	if _, err := svc.AuditTrail(context.Background(), domain.Caller{ID: 5, Role: domain.RoleModerator}, domain.AuditFilter{}, 10, 0); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
}
