package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lyric-notes/internal/domain"
	"lyric-notes/internal/infra/metrics"
)

// AppendAuditEntry сохраняет запись аудита. Повторная доставка того же
// сообщения из очереди схлопывается по id.
func (p *Postgres) AppendAuditEntry(ctx context.Context, entry domain.AuditEntry) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	oldValue, err := marshalSnapshot(entry.OldValue)
	if err != nil {
		return fmt.Errorf("marshal old_value: %w", err)
	}
	newValue, err := marshalSnapshot(entry.NewValue)
	if err != nil {
		return fmt.Errorf("marshal new_value: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO audit_log (id, actor_id, action, entity_type, entity_id, old_value, new_value, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8,''), $9)
ON CONFLICT (id) DO NOTHING
`, entry.ID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, oldValue, newValue, entry.Reason, entry.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "audit_insert", "audit_log", start, err)
	return err
}

// ListAuditEntries возвращает страницу журнала, новые записи первыми.
func (p *Postgres) ListAuditEntries(ctx context.Context, filter domain.AuditFilter, limit, offset int) ([]domain.AuditEntry, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	where := make([]string, 0, 3)
	args := make([]any, 0, 5)
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		where = append(where, fmt.Sprintf("entity_type=$%d", len(args)))
	}
	if filter.EntityID != 0 {
		args = append(args, filter.EntityID)
		where = append(where, fmt.Sprintf("entity_id=$%d", len(args)))
	}
	if filter.ActorID != 0 {
		args = append(args, filter.ActorID)
		where = append(where, fmt.Sprintf("actor_id=$%d", len(args)))
	}
	query := `SELECT id, actor_id, action, entity_type, entity_id, old_value, new_value, reason, created_at FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "audit_list", "audit_log", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var oldValue, newValue []byte
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &oldValue, &newValue, &reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(oldValue) > 0 {
			if err := json.Unmarshal(oldValue, &e.OldValue); err != nil {
				return nil, fmt.Errorf("decode old_value: %w", err)
			}
		}
		if len(newValue) > 0 {
			if err := json.Unmarshal(newValue, &e.NewValue); err != nil {
				return nil, fmt.Errorf("decode new_value: %w", err)
			}
		}
		if reason.Valid {
			e.Reason = reason.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalSnapshot(s domain.Snapshot) (any, error) {
	if len(s) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
