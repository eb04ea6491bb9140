package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lyric-notes/internal/domain"
	"lyric-notes/internal/infra/metrics"
)

// CastVote регистрирует голос под ограничением «один голос на пользователя».
// Счётчики двигаются только атомарными инкрементами в той же транзакции,
// что и строка голоса: никаких read-modify-write в приложении.
func (p *Postgres) CastVote(ctx context.Context, annotationID, userID int64, direction domain.VoteDirection) (domain.Annotation, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "annotation_votes", start, err)
	if err != nil {
		return domain.Annotation{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existing domain.VoteDirection
	start = time.Now()
	err = tx.QueryRow(ctx, `
SELECT direction FROM annotation_votes
WHERE annotation_id=$1 AND user_id=$2
FOR UPDATE
`, annotationID, userID).Scan(&existing)
	metrics.ObserveNetworkRequest("postgres", "votes_get", "annotation_votes", start, err)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		start = time.Now()
		_, err = tx.Exec(ctx, `
INSERT INTO annotation_votes (annotation_id, user_id, direction) VALUES ($1, $2, $3)
`, annotationID, userID, direction)
		metrics.ObserveNetworkRequest("postgres", "votes_insert", "annotation_votes", start, err)
		if err != nil {
			if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23503" {
				return domain.Annotation{}, domain.ErrAnnotationNotFound
			}
			return domain.Annotation{}, err
		}
		a, err := p.bumpCounters(ctx, tx, annotationID, direction, 1)
		if err != nil {
			return domain.Annotation{}, err
		}
		return a, tx.Commit(ctx)
	case err != nil:
		return domain.Annotation{}, err
	case existing == direction:
		// Повторный голос в ту же сторону — no-op.
		a, err := p.annotationInTx(ctx, tx, annotationID)
		if err != nil {
			return domain.Annotation{}, err
		}
		return a, tx.Commit(ctx)
	default:
		start = time.Now()
		_, err = tx.Exec(ctx, `
UPDATE annotation_votes SET direction=$3 WHERE annotation_id=$1 AND user_id=$2
`, annotationID, userID, direction)
		metrics.ObserveNetworkRequest("postgres", "votes_switch", "annotation_votes", start, err)
		if err != nil {
			return domain.Annotation{}, err
		}
		if _, err := p.bumpCounters(ctx, tx, annotationID, existing, -1); err != nil {
			return domain.Annotation{}, err
		}
		a, err := p.bumpCounters(ctx, tx, annotationID, direction, 1)
		if err != nil {
			return domain.Annotation{}, err
		}
		return a, tx.Commit(ctx)
	}
}

// WithdrawVote снимает голос пользователя, если он был.
func (p *Postgres) WithdrawVote(ctx context.Context, annotationID, userID int64) (domain.Annotation, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "annotation_votes", start, err)
	if err != nil {
		return domain.Annotation{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existing domain.VoteDirection
	start = time.Now()
	err = tx.QueryRow(ctx, `
DELETE FROM annotation_votes WHERE annotation_id=$1 AND user_id=$2 RETURNING direction
`, annotationID, userID).Scan(&existing)
	metrics.ObserveNetworkRequest("postgres", "votes_withdraw", "annotation_votes", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		a, err := p.annotationInTx(ctx, tx, annotationID)
		if err != nil {
			return domain.Annotation{}, err
		}
		return a, tx.Commit(ctx)
	}
	if err != nil {
		return domain.Annotation{}, err
	}
	a, err := p.bumpCounters(ctx, tx, annotationID, existing, -1)
	if err != nil {
		return domain.Annotation{}, err
	}
	return a, tx.Commit(ctx)
}

func (p *Postgres) bumpCounters(ctx context.Context, tx pgx.Tx, annotationID int64, direction domain.VoteDirection, delta int) (domain.Annotation, error) {
	column := "upvotes"
	if direction == domain.VoteDown {
		column = "downvotes"
	}
	start := time.Now()
	a, err := scanAnnotation(tx.QueryRow(ctx, fmt.Sprintf(`
UPDATE annotations SET %s = GREATEST(%s + $2, 0) WHERE id=$1
RETURNING `+annotationColumns+`
`, column, column), annotationID, delta))
	metrics.ObserveNetworkRequest("postgres", "votes_bump", "annotations", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Annotation{}, domain.ErrAnnotationNotFound
	}
	if err != nil {
		return domain.Annotation{}, err
	}
	return a, nil
}

func (p *Postgres) annotationInTx(ctx context.Context, tx pgx.Tx, id int64) (domain.Annotation, error) {
	start := time.Now()
	a, err := scanAnnotation(tx.QueryRow(ctx, `
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
