package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gig-marketplace/backend/internal/db"
	"github.com/gig-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `
	id, offer_id, buyer_id, seller_id, amount, currency, status, checkout_session_id, session_expires_at,
	stripe_payment_intent_id, refund_id, failure_reason, paid_at, failed_at, expired_at, refunded_at,
	created_at, updated_at`

var paymentTimestampColumn = map[string]string{
	models.PaymentStatusSucceeded: "paid_at",
	models.PaymentStatusFailed:    "failed_at",
	models.PaymentStatusExpired:   "expired_at",
	models.PaymentStatusRefunded:  "refunded_at",
}

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.OfferID, &p.BuyerID, &p.SellerID, &p.Amount, &p.Currency, &p.Status,
		&p.CheckoutSessionID, &p.SessionExpiresAt, &p.StripePaymentIntentID, &p.RefundID, &p.FailureReason,
		&p.PaidAt, &p.FailedAt, &p.ExpiredAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a payment. The partial unique index on offer_id rejects a
// second pending or succeeded payment with ErrActivePaymentExists.
func (r *PaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO payments (offer_id, buyer_id, seller_id, amount, currency, status, checkout_session_id, session_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, p.OfferID, p.BuyerID, p.SellerID, p.Amount, p.Currency, p.Status, p.CheckoutSessionID, p.SessionExpiresAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrActivePaymentExists
	}
	return err
}

func (r *PaymentRepo) getOne(ctx context.Context, where string, arg any) (*models.Payment, error) {
	p, err := scanPayment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE `+where+` ORDER BY created_at DESC LIMIT 1`, arg))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *PaymentRepo) GetByCheckoutSession(ctx context.Context, sessionID string) (*models.Payment, error) {
	return r.getOne(ctx, "checkout_session_id = $1", sessionID)
}

func (r *PaymentRepo) GetByPaymentIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	return r.getOne(ctx, "stripe_payment_intent_id = $1", intentID)
}

// GetLatestByOffer returns the most recent payment of the offer in any status.
func (r *PaymentRepo) GetLatestByOffer(ctx context.Context, offerID uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, "offer_id = $1", offerID)
}

// GetActiveByOffer returns the offer's pending or succeeded payment.
func (r *PaymentRepo) GetActiveByOffer(ctx context.Context, offerID uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, "offer_id = $1 AND status IN ('pending', 'succeeded')", offerID)
}

// Transition moves the payment forward along the payment graph. Only the
// statuses allowed to reach t.To match, so replays and regressions are
// reported as ErrStaleState.
func (r *PaymentRepo) Transition(ctx context.Context, id uuid.UUID, t models.PaymentTransition) (*models.Payment, error) {
	from := models.PaymentSourcesFor(t.To)
	if len(from) == 0 {
		return nil, ErrStaleState
	}

	set := []string{"status = $1", "updated_at = now()"}
	args := []any{t.To, id, from}
	argIdx := 4

	if col, ok := paymentTimestampColumn[t.To]; ok {
		set = append(set, fmt.Sprintf("%s = COALESCE(%s, $%d)", col, col, argIdx))
		args = append(args, t.At)
		argIdx++
	}
	if t.PaymentIntentID != nil {
		set = append(set, fmt.Sprintf("stripe_payment_intent_id = COALESCE(stripe_payment_intent_id, $%d)", argIdx))
		args = append(args, *t.PaymentIntentID)
		argIdx++
	}
	if t.RefundID != nil {
		set = append(set, fmt.Sprintf("refund_id = $%d", argIdx))
		args = append(args, *t.RefundID)
		argIdx++
	}
	if t.FailureReason != nil {
		set = append(set, fmt.Sprintf("failure_reason = $%d", argIdx))
		args = append(args, *t.FailureReason)
	}

	query := `UPDATE payments SET ` + strings.Join(set, ", ") +
		` WHERE id = $2 AND status = ANY($3) RETURNING ` + paymentColumns

	p, err := scanPayment(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, staleOnNoRows(err)
	}
	return p, nil
}

// AttachPaymentIntent records the intent id if none is stored yet.
func (r *PaymentRepo) AttachPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE payments SET stripe_payment_intent_id = $1, updated_at = now()
		WHERE id = $2 AND stripe_payment_intent_id IS NULL
	`, intentID, id)
	return err
}

type PaymentFilter struct {
	BuyerID       *uuid.UUID
	SellerID      *uuid.UUID
	ParticipantID *uuid.UUID
	Status        *string
	Limit         int
	Offset        int
}

// List returns one page of payments with their offer title and the total count.
func (r *PaymentRepo) List(ctx context.Context, f PaymentFilter) ([]models.PaymentWithOffer, int, error) {
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.BuyerID != nil {
		where = append(where, fmt.Sprintf("p.buyer_id = $%d", argIdx))
		args = append(args, *f.BuyerID)
		argIdx++
	}
	if f.SellerID != nil {
		where = append(where, fmt.Sprintf("p.seller_id = $%d", argIdx))
		args = append(args, *f.SellerID)
		argIdx++
	}
	if f.ParticipantID != nil {
		where = append(where, fmt.Sprintf("(p.buyer_id = $%d OR p.seller_id = $%d)", argIdx, argIdx))
		args = append(args, *f.ParticipantID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("p.status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT count(*) FROM payments p`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT p.id, p.offer_id, p.buyer_id, p.seller_id, p.amount, p.currency, p.status, p.checkout_session_id,
		       p.session_expires_at, p.stripe_payment_intent_id, p.refund_id, p.failure_reason,
		       p.paid_at, p.failed_at, p.expired_at, p.refunded_at, p.created_at, p.updated_at,
		       o.title, o.status
		FROM payments p
		JOIN offers o ON o.id = p.offer_id` + whereSQL +
		fmt.Sprintf(" ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, clampLimit(f.Limit), f.Offset)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	payments := []models.PaymentWithOffer{}
	for rows.Next() {
		var p models.PaymentWithOffer
		if err := rows.Scan(&p.ID, &p.OfferID, &p.BuyerID, &p.SellerID, &p.Amount, &p.Currency, &p.Status,
			&p.CheckoutSessionID, &p.SessionExpiresAt, &p.StripePaymentIntentID, &p.RefundID, &p.FailureReason,
			&p.PaidAt, &p.FailedAt, &p.ExpiredAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt,
			&p.OfferTitle, &p.OfferStatus); err != nil {
			return nil, 0, err
		}
		payments = append(payments, p)
	}
	return payments, total, rows.Err()
}

// ListStalePending returns pending payments whose checkout session expired before cutoff.
func (r *PaymentRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	return r.listWhere(ctx, `status = 'pending' AND session_expires_at < $1`, cutoff, clampLimit(limit))
}

// ListSucceededWithOpenOffer returns succeeded payments whose offer never left accepted.
func (r *PaymentRepo) ListSucceededWithOpenOffer(ctx context.Context, limit int) ([]models.Payment, error) {
	return r.listWhere(ctx, `status = 'succeeded' AND offer_id IN (SELECT id FROM offers WHERE status = $1)`,
		models.OfferStatusAccepted, clampLimit(limit))
}

func (r *PaymentRepo) listWhere(ctx context.Context, where string, arg any, limit int) ([]models.Payment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE `+where+` ORDER BY created_at ASC LIMIT $2`, arg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}
