package repositories

import (
	"context"

	"github.com/gig-marketplace/backend/internal/db"
	"github.com/gig-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultTrailLimit = 50

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Log writes the entry inside the caller's transaction when one is open.
func (r *AuditRepo) Log(ctx context.Context, entry models.AuditLog) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO audit_log (actor_user_id, actor_type, action, entity_type, entity_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ActorUserID, entry.ActorType, entry.Action, entry.EntityType, entry.EntityID, entry.Meta)
	return err
}

// GetOfferTrail returns the entries of an offer and of every payment opened
// for it, newest first.
func (r *AuditRepo) GetOfferTrail(ctx context.Context, offerID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = defaultTrailLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT a.id, a.actor_user_id, a.actor_type, a.action, a.entity_type, a.entity_id, a.meta, a.created_at
		FROM audit_log a
		WHERE (a.entity_type = $1 AND a.entity_id = $3)
		   OR (a.entity_type = $2 AND a.entity_id IN (SELECT p.id FROM payments p WHERE p.offer_id = $3))
		ORDER BY a.created_at DESC, a.id
		LIMIT $4 OFFSET $5
	`, models.EntityOffer, models.EntityPayment, offerID, limit, offset)
	if err != nil {
		return nil, err
	}

	trail, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AuditLog, error) {
		var l models.AuditLog
		err := row.Scan(&l.ID, &l.ActorUserID, &l.ActorType, &l.Action, &l.EntityType, &l.EntityID, &l.Meta, &l.CreatedAt)
		return l, err
	})
	if err != nil {
		return nil, err
	}
	if trail == nil {
		trail = []models.AuditLog{}
	}
	return trail, nil
}
