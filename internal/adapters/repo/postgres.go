package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lyric-notes/internal/domain"
	"lyric-notes/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.DocumentRepo   = (*Postgres)(nil)
	_ domain.AnnotationRepo = (*Postgres)(nil)
	_ domain.VoteRepo       = (*Postgres)(nil)
	_ domain.AuditRepo      = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const annotationColumns = `id, document_id, author_id, selected_text, start_offset, end_offset, explanation, cultural_context, upvotes, downvotes, is_verified, status, created_at, updated_at`

func scanAnnotation(row pgx.Row) (domain.Annotation, error) {
	var a domain.Annotation
	var culturalContext sql.NullString
	err := row.Scan(&a.ID, &a.DocumentID, &a.AuthorID, &a.SelectedText, &a.Start, &a.End, &a.Explanation, &culturalContext, &a.Upvotes, &a.Downvotes, &a.IsVerified, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Annotation{}, err
	}
	if culturalContext.Valid {
		a.CulturalContext = culturalContext.String
	}
	return a, nil
}

// GetDocument возвращает документ по id.
func (p *Postgres) GetDocument(ctx context.Context, id int64) (domain.Document, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var d domain.Document
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, title, artist, body, annotation_count, created_at, updated_at
FROM documents WHERE id=$1
`, id).Scan(&d.ID, &d.Title, &d.Artist, &d.Body, &d.AnnotationCount, &d.CreatedAt, &d.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "documents_get", "documents", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	if err != nil {
		return domain.Document{}, err
	}
	return d, nil
}

// AddAnnotationCount атомарно сдвигает денормализованный счётчик.
// GREATEST страхует от ухода ниже нуля при гонках create+delete.
func (p *Postgres) AddAnnotationCount(ctx context.Context, id int64, delta int) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE documents SET annotation_count = GREATEST(annotation_count + $2, 0) WHERE id=$1
`, id, delta)
	metrics.ObserveNetworkRequest("postgres", "documents_add_count", "documents", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// CreateAnnotation сохраняет новую аннотацию.
func (p *Postgres) CreateAnnotation(ctx context.Context, a domain.Annotation) (domain.Annotation, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	created, err := scanAnnotation(p.pool.QueryRow(ctx, `
INSERT INTO annotations (document_id, author_id, selected_text, start_offset, end_offset, explanation, cultural_context, status)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), $8)
RETURNING `+annotationColumns+`
`, a.DocumentID, a.AuthorID, a.SelectedText, a.Start, a.End, a.Explanation, a.CulturalContext, a.Status))
	metrics.ObserveNetworkRequest("postgres", "annotations_insert", "annotations", start, err)
	if err != nil {
		return domain.Annotation{}, err
	}
	return created, nil
}

// GetAnnotation возвращает аннотацию по id.
func (p *Postgres) GetAnnotation(ctx context.Context, id int64) (domain.Annotation, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	a, err := scanAnnotation(p.pool.QueryRow(ctx, `
SELECT `+annotationColumns+` FROM annotations WHERE id=$1
`, id))
	metrics.ObserveNetworkRequest("postgres", "annotations_get", "annotations", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Annotation{}, domain.ErrAnnotationNotFound
	}
	if err != nil {
		return domain.Annotation{}, err
	}
	return a, nil
}

// UpdateAnnotationContent правит пояснение и контекст; updated_at двигается
// только здесь, голоса его не трогают.
func (p *Postgres) UpdateAnnotationContent(ctx context.Context, id int64, explanation, culturalContext *string) (domain.Annotation, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var explanationArg, contextArg any
	if explanation != nil {
		explanationArg = *explanation
	}
	if culturalContext != nil {
		contextArg = *culturalContext
	}
	start := time.Now()
	a, err := scanAnnotation(p.pool.QueryRow(ctx, `
UPDATE annotations
SET explanation = COALESCE($2, explanation),
    cultural_context = COALESCE($3, cultural_context),
    updated_at = now()
WHERE id=$1
RETURNING `+annotationColumns+`
`, id, explanationArg, contextArg))
	metrics.ObserveNetworkRequest("postgres", "annotations_update_content", "annotations", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Annotation{}, domain.ErrAnnotationNotFound
	}
	if err != nil {
		return domain.Annotation{}, err
	}
	return a, nil
}

// TransitionStatus переводит аннотацию в to, если текущий статус входит в from.
func (p *Postgres) TransitionStatus(ctx context.Context, id int64, to domain.AnnotationStatus, from ...domain.AnnotationStatus) (domain.AnnotationStatus, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	allowed := make([]string, 0, len(from))
	for _, st := range from {
		allowed = append(allowed, string(st))
	}
	var prev domain.AnnotationStatus
	start := time.Now()
	// Self-join отдаёт статус до обновления одной командой.
	err := p.pool.QueryRow(ctx, `
UPDATE annotations a
SET status=$2
FROM annotations old
WHERE a.id=$1 AND old.id=a.id AND old.status = ANY($3)
RETURNING old.status
`, id, to, allowed).Scan(&prev)
	metrics.ObserveNetworkRequest("postgres", "annotations_transition", "annotations", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		// Либо строки нет, либо переход из текущего статуса не разрешён.
		current, getErr := p.GetAnnotation(ctx, id)
		if getErr != nil {
			return "", false, getErr
		}
		return current.Status, false, nil
	}
	if err != nil {
		return "", false, err
	}
	return prev, true, nil
}

// SetVerified выставляет отметку проверки.
func (p *Postgres) SetVerified(ctx context.Context, id int64, verified bool) (domain.Annotation, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	a, err := scanAnnotation(p.pool.QueryRow(ctx, `
UPDATE annotations SET is_verified=$2 WHERE id=$1
RETURNING `+annotationColumns+`
`, id, verified))
	metrics.ObserveNetworkRequest("postgres", "annotations_set_verified", "annotations", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Annotation{}, domain.ErrAnnotationNotFound
	}
	if err != nil {
		return domain.Annotation{}, err
	}
	return a, nil
}

// ListActiveByDocument возвращает активные аннотации документа.
// Публичные выборки видят только статус active.
func (p *Postgres) ListActiveByDocument(ctx context.Context, documentID int64) ([]domain.Annotation, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+annotationColumns+` FROM annotations
WHERE document_id=$1 AND status='active'
ORDER BY start_offset, id
`, documentID)
	metrics.ObserveNetworkRequest("postgres", "annotations_list_active", "annotations", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAnnotation физически удаляет строку (административный путь).
func (p *Postgres) DeleteAnnotation(ctx context.Context, id int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `DELETE FROM annotations WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", "annotations_delete", "annotations", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrAnnotationNotFound
	}
	return nil
}
