package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/gig-marketplace/backend/internal/db"
	"github.com/gig-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const offerColumns = `
	id, conversation_id, seller_id, buyer_id, title, description, price, currency,
	delivery_time_days, revisions, requirements, inclusions, status, expires_at, payment_session_id,
	sent_at, accepted_at, rejected_at, cancelled_at, started_at, delivered_at, completed_at, paid_at,
	dispute_raised_by, dispute_reason, dispute_description, disputed_at, created_at, updated_at`

// offerTimestampColumn is stamped once when an offer enters the status.
var offerTimestampColumn = map[string]string{
	models.OfferStatusSent:       "sent_at",
	models.OfferStatusAccepted:   "accepted_at",
	models.OfferStatusRejected:   "rejected_at",
	models.OfferStatusCancelled:  "cancelled_at",
	models.OfferStatusInProgress: "started_at",
	models.OfferStatusDelivered:  "delivered_at",
	models.OfferStatusCompleted:  "completed_at",
	models.OfferStatusPaid:       "paid_at",
	models.OfferStatusDisputed:   "disputed_at",
}

type OfferRepo struct {
	pool *pgxpool.Pool
}

func NewOfferRepo(pool *pgxpool.Pool) *OfferRepo {
	return &OfferRepo{pool: pool}
}

func scanOffer(row pgx.Row) (*models.Offer, error) {
	var o models.Offer
	err := row.Scan(&o.ID, &o.ConversationID, &o.SellerID, &o.BuyerID, &o.Title, &o.Description, &o.Price, &o.Currency,
		&o.DeliveryTimeDays, &o.Revisions, &o.Requirements, &o.Inclusions, &o.Status, &o.ExpiresAt, &o.PaymentSessionID,
		&o.SentAt, &o.AcceptedAt, &o.RejectedAt, &o.CancelledAt, &o.StartedAt, &o.DeliveredAt, &o.CompletedAt, &o.PaidAt,
		&o.DisputeRaisedBy, &o.DisputeReason, &o.DisputeDescription, &o.DisputedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OfferRepo) Create(ctx context.Context, o *models.Offer) error {
	if o.Requirements == nil {
		o.Requirements = []string{}
	}
	if o.Inclusions == nil {
		o.Inclusions = []string{}
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO offers (conversation_id, seller_id, buyer_id, title, description, price, currency,
		                    delivery_time_days, revisions, requirements, inclusions, status, expires_at, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`, o.ConversationID, o.SellerID, o.BuyerID, o.Title, o.Description, o.Price, o.Currency,
		o.DeliveryTimeDays, o.Revisions, o.Requirements, o.Inclusions, o.Status, o.ExpiresAt, o.SentAt,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

func (r *OfferRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	o, err := scanOffer(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

// Transition moves the offer to t.To only if its current status is one of
// t.From, and returns the updated row. ErrStaleState when nothing matched.
func (r *OfferRepo) Transition(ctx context.Context, id uuid.UUID, t models.OfferTransition) (*models.Offer, error) {
	set := []string{"status = $1", "updated_at = now()"}
	args := []any{t.To, id, t.From}
	argIdx := 4

	if col, ok := offerTimestampColumn[t.To]; ok {
		set = append(set, fmt.Sprintf("%s = COALESCE(%s, $%d)", col, col, argIdx))
		args = append(args, t.At)
		argIdx++
	}
	if t.PaymentSessionID != nil {
		set = append(set, fmt.Sprintf("payment_session_id = $%d", argIdx))
		args = append(args, *t.PaymentSessionID)
		argIdx++
	}
	if t.Dispute != nil {
		set = append(set,
			fmt.Sprintf("dispute_raised_by = $%d", argIdx),
			fmt.Sprintf("dispute_reason = $%d", argIdx+1),
			fmt.Sprintf("dispute_description = $%d", argIdx+2),
		)
		args = append(args, t.Dispute.RaisedBy, t.Dispute.Reason, t.Dispute.Description)
	}

	query := `UPDATE offers SET ` + strings.Join(set, ", ") +
		` WHERE id = $2 AND status = ANY($3) RETURNING ` + offerColumns

	o, err := scanOffer(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, staleOnNoRows(err)
	}
	return o, nil
}

type OfferFilter struct {
	BuyerID        *uuid.UUID
	SellerID       *uuid.UUID
	ParticipantID  *uuid.UUID // buyer or seller
	ConversationID *uuid.UUID
	Status         *string
	Limit          int
	Offset         int
}

func (r *OfferRepo) List(ctx context.Context, f OfferFilter) ([]models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.BuyerID != nil {
		where = append(where, fmt.Sprintf("buyer_id = $%d", argIdx))
		args = append(args, *f.BuyerID)
		argIdx++
	}
	if f.SellerID != nil {
		where = append(where, fmt.Sprintf("seller_id = $%d", argIdx))
		args = append(args, *f.SellerID)
		argIdx++
	}
	if f.ParticipantID != nil {
		where = append(where, fmt.Sprintf("(buyer_id = $%d OR seller_id = $%d)", argIdx, argIdx))
		args = append(args, *f.ParticipantID)
		argIdx++
	}
	if f.ConversationID != nil {
		where = append(where, fmt.Sprintf("conversation_id = $%d", argIdx))
		args = append(args, *f.ConversationID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, clampLimit(f.Limit), f.Offset)

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	offers := []models.Offer{}
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}
