package domain

import (
	"context"
	"time"
)

// SnapshotLimit ограничивает длину текстовых полей в снимках аудита.
const SnapshotLimit = 256

// Snapshot — частичная карта полей сущности до или после действия.
type Snapshot map[string]any

// AuditEntry описывает неизменяемую запись о модераторском действии.
// Записи только добавляются; движок их никогда не правит и не удаляет.
type AuditEntry struct {
	ID         string    `json:"id"`
	ActorID    int64     `json:"actor_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	OldValue   Snapshot  `json:"old_value,omitempty"`
	NewValue   Snapshot  `json:"new_value,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TruncateForSnapshot обрезает длинный текст до фиксированного префикса
// перед сохранением в снимок.
func TruncateForSnapshot(text string) string {
	if len(text) <= SnapshotLimit {
		return text
	}
	return text[:SnapshotLimit]
}

// AuditQueue — односторонний канал записей аудита. Публикация никогда не
// блокирует основную мутацию: ошибки публикации логируются и глотаются.
type AuditQueue interface {
	Enqueue(ctx context.Context, entry AuditEntry) error
	Pop(ctx context.Context) (AuditEntry, error)
}

// AuditFilter описывает выборку журнала аудита.
type AuditFilter struct {
	EntityType string
	EntityID   int64
	ActorID    int64
}

// AuditRepo сохраняет и выбирает записи аудита.
type AuditRepo interface {
	AppendAuditEntry(ctx context.Context, entry AuditEntry) error
	ListAuditEntries(ctx context.Context, filter AuditFilter, limit, offset int) ([]AuditEntry, error)
}
