package repositories

import (
	"context"

	"github.com/gig-marketplace/backend/internal/db"
	"github.com/gig-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var c models.Conversation
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, buyer_id, seller_id, created_at FROM conversations WHERE id = $1
	`, id).Scan(&c.ID, &c.BuyerID, &c.SellerID, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// FindOrCreate returns the buyer/seller conversation, creating it on first use.
func (r *ConversationRepo) FindOrCreate(ctx context.Context, buyerID, sellerID uuid.UUID) (*models.Conversation, error) {
	var c models.Conversation
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO conversations (buyer_id, seller_id) VALUES ($1, $2)
		ON CONFLICT (buyer_id, seller_id) DO UPDATE SET buyer_id = EXCLUDED.buyer_id
		RETURNING id, buyer_id, seller_id, created_at
	`, buyerID, sellerID).Scan(&c.ID, &c.BuyerID, &c.SellerID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1 AND (buyer_id = $2 OR seller_id = $2))
	`, conversationID, userID).Scan(&ok)
	return ok, err
}
