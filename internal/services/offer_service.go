package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gig-marketplace/backend/internal/apperrors"
	"github.com/gig-marketplace/backend/internal/config"
	"github.com/gig-marketplace/backend/internal/events"
	"github.com/gig-marketplace/backend/internal/metrics"
	"github.com/gig-marketplace/backend/internal/models"
	"github.com/gig-marketplace/backend/internal/payments"
	"github.com/gig-marketplace/backend/internal/rbac"
	"github.com/gig-marketplace/backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OfferService struct {
	offers        OfferStore
	payments      PaymentStore
	conversations ConversationStore
	audit         AuditTrail
	tx            TxRunner
	gateway       CheckoutGateway
	notifier      events.Notifier
	metrics       *metrics.Metrics
	cfg           *config.Config
	log           *zap.Logger
	now           func() time.Time
}

func NewOfferService(
	offers OfferStore,
	payments PaymentStore,
	conversations ConversationStore,
	audit AuditTrail,
	tx TxRunner,
	gateway CheckoutGateway,
	notifier events.Notifier,
	m *metrics.Metrics,
	cfg *config.Config,
	log *zap.Logger,
) *OfferService {
	return &OfferService{
		offers:        offers,
		payments:      payments,
		conversations: conversations,
		audit:         audit,
		tx:            tx,
		gateway:       gateway,
		notifier:      notifier,
		metrics:       m,
		cfg:           cfg,
		log:           log,
		now:           time.Now,
	}
}

type CreateOfferInput struct {
	ConversationID   *uuid.UUID
	BuyerID          uuid.UUID
	Title            string
	Description      string
	Price            decimal.Decimal
	Currency         string
	DeliveryTimeDays int
	Revisions        *int
	Requirements     []string
	Inclusions       []string
}

// AcceptResult is returned by AcceptOffer and RetryCheckout.
type AcceptResult struct {
	Offer     *models.Offer             `json:"offer"`
	Session   *payments.CheckoutSession `json:"payment_session"`
	PaymentID uuid.UUID                 `json:"payment_id"`
}

// Lookup outcomes.
const (
	LookupFound    = "found"
	LookupNotFound = "not_found"
	LookupDemo     = "demo"
)

type OfferLookup struct {
	Kind  string
	Offer *models.Offer
	Demo  *models.DemoOffer
}

func validateOfferInput(in *CreateOfferInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Currency = models.NormalizeCurrency(in.Currency)

	switch {
	case in.Title == "":
		return apperrors.Validation("title is required").WithDetail("field", "title")
	case len([]rune(in.Title)) > models.OfferTitleMaxLen:
		return apperrors.Validation(fmt.Sprintf("title must be at most %d characters", models.OfferTitleMaxLen)).WithDetail("field", "title")
	case in.Description == "":
		return apperrors.Validation("description is required").WithDetail("field", "description")
	case len([]rune(in.Description)) > models.OfferDescriptionMaxLen:
		return apperrors.Validation(fmt.Sprintf("description must be at most %d characters", models.OfferDescriptionMaxLen)).WithDetail("field", "description")
	case !in.Price.IsPositive():
		return apperrors.Validation("price must be greater than 0").WithDetail("field", "price")
	case !in.Price.Equal(in.Price.Round(2)):
		return apperrors.Validation("price must have at most 2 decimal places").WithDetail("field", "price")
	case !models.IsSupportedCurrency(in.Currency):
		return apperrors.Validation("unsupported currency").
			WithDetail("field", "currency").
			WithDetail("allowed", models.SupportedCurrencies)
	case in.DeliveryTimeDays < models.MinDeliveryDays || in.DeliveryTimeDays > models.MaxDeliveryDays:
		return apperrors.Validation(fmt.Sprintf("delivery_time_days must be between %d and %d", models.MinDeliveryDays, models.MaxDeliveryDays)).WithDetail("field", "delivery_time_days")
	case in.Revisions != nil && *in.Revisions < 0:
		return apperrors.Validation("revisions must not be negative").WithDetail("field", "revisions")
	case in.BuyerID == uuid.Nil:
		return apperrors.Validation("buyer_id is required").WithDetail("field", "buyer_id")
	}
	return nil
}

// CreateOffer persists a new offer from the seller to the buyer in status sent.
func (s *OfferService) CreateOffer(ctx context.Context, seller Actor, in CreateOfferInput) (*models.Offer, error) {
	if err := validateOfferInput(&in); err != nil {
		return nil, err
	}
	if in.BuyerID == seller.UserID {
		return nil, apperrors.Validation("cannot create an offer for yourself").WithDetail("field", "buyer_id")
	}

	conv, err := s.resolveConversation(ctx, in.ConversationID, in.BuyerID, seller.UserID)
	if err != nil {
		return nil, err
	}

	revisions := models.DefaultRevisions
	if in.Revisions != nil {
		revisions = *in.Revisions
	}
	now := s.now().UTC()
	offer := &models.Offer{
		ConversationID:   conv.ID,
		SellerID:         seller.UserID,
		BuyerID:          in.BuyerID,
		Title:            in.Title,
		Description:      in.Description,
		Price:            in.Price,
		Currency:         in.Currency,
		DeliveryTimeDays: in.DeliveryTimeDays,
		Revisions:        revisions,
		Requirements:     in.Requirements,
		Inclusions:       in.Inclusions,
		Status:           models.OfferStatusSent,
		ExpiresAt:        now.Add(s.cfg.OfferTTL),
		SentAt:           &now,
	}
	if err := s.offers.Create(ctx, offer); err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}

	s.metrics.OfferTransition(models.OfferStatusDraft, models.OfferStatusSent)
	s.auditOffer(ctx, seller, "offer_created", offer, map[string]any{
		"price":    offer.Price.StringFixed(2),
		"currency": offer.Currency,
		"buyer_id": offer.BuyerID.String(),
	})
	s.notifier.Emit(ctx,
		[]string{events.UserRoom(offer.BuyerID), events.ConversationRoom(offer.ConversationID)},
		events.EventNewOffer, offerPayload(offer))

	s.log.Info("offer created",
		zap.String("offer_id", offer.ID.String()),
		zap.String("seller_id", offer.SellerID.String()),
		zap.String("buyer_id", offer.BuyerID.String()))
	return offer, nil
}

func (s *OfferService) resolveConversation(ctx context.Context, id *uuid.UUID, buyerID, sellerID uuid.UUID) (*models.Conversation, error) {
	if id == nil {
		conv, err := s.conversations.FindOrCreate(ctx, buyerID, sellerID)
		if err != nil {
			return nil, fmt.Errorf("find or create conversation: %w", err)
		}
		return conv, nil
	}

	conv, err := s.conversations.GetByID(ctx, *id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.NotFound("conversation")
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if !conv.IsParticipant(buyerID) || !conv.IsParticipant(sellerID) {
		return nil, apperrors.Forbidden("buyer and seller must both belong to the conversation")
	}
	return conv, nil
}

// ParseOfferRef turns a path parameter into an offer id for mutating
// operations. Demo ids are read-only.
func (s *OfferService) ParseOfferRef(raw string) (uuid.UUID, error) {
	if models.IsDemoOfferID(raw) {
		if !s.cfg.DemoOffersEnabled {
			return uuid.Nil, apperrors.NotFound("offer")
		}
		return uuid.Nil, apperrors.InvalidState(models.EntityOffer, "demo", "demo offers cannot be modified")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid offer id").WithDetail("field", "offerId")
	}
	return id, nil
}

// AcceptOffer accepts a sent offer on behalf of its buyer and opens a
// checkout session for it.
func (s *OfferService) AcceptOffer(ctx context.Context, offerID uuid.UUID, actor Actor) (*AcceptResult, error) {
	offer, err := s.getOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.BuyerID != actor.UserID {
		return nil, apperrors.Forbidden("only the buyer can accept this offer")
	}
	if offer.Status != models.OfferStatusSent {
		return nil, apperrors.InvalidState(models.EntityOffer, offer.Status, "only sent offers can be accepted")
	}
	if err := s.checkNotExpired(offer); err != nil {
		return nil, err
	}
	if err := s.checkNoActivePayment(ctx, offer); err != nil {
		return nil, err
	}

	return s.openCheckout(ctx, offer, actor, []string{models.OfferStatusSent}, "offer_accepted")
}

// RetryCheckout opens a fresh checkout session for an accepted offer whose
// previous session expired or failed.
func (s *OfferService) RetryCheckout(ctx context.Context, offerID uuid.UUID, actor Actor) (*AcceptResult, error) {
	offer, err := s.getOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.BuyerID != actor.UserID {
		return nil, apperrors.Forbidden("only the buyer can pay for this offer")
	}
	if offer.Status != models.OfferStatusAccepted {
		return nil, apperrors.InvalidState(models.EntityOffer, offer.Status, "checkout can only be retried for accepted offers")
	}
	if err := s.checkNotExpired(offer); err != nil {
		return nil, err
	}
	if err := s.checkNoActivePayment(ctx, offer); err != nil {
		return nil, err
	}

	return s.openCheckout(ctx, offer, actor, []string{models.OfferStatusAccepted}, "offer_checkout_retried")
}

// openCheckout creates the processor session outside the transaction, then
// inserts the pending payment and moves the offer to accepted atomically.
func (s *OfferService) openCheckout(ctx context.Context, offer *models.Offer, actor Actor, from []string, action string) (*AcceptResult, error) {
	start := time.Now()
	session, err := s.gateway.CreateSession(ctx, payments.CheckoutRequest{
		Amount:      offer.Price,
		Currency:    offer.Currency,
		Title:       offer.Title,
		Description: offer.Description,
		Metadata: map[string]string{
			payments.MetaOfferID:  offer.ID.String(),
			payments.MetaBuyerID:  offer.BuyerID.String(),
			payments.MetaSellerID: offer.SellerID.String(),
		},
		ReferenceID: offer.ID.String(),
		SuccessURL:  s.cfg.CheckoutSuccessURL(),
		CancelURL:   s.cfg.CheckoutCancelURL(offer.ID.String()),
		Expiry:      s.cfg.CheckoutExpiry,
	})
	s.metrics.ObserveGateway("create_session", start, err)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expiresAt := session.ExpiresAt
	payment := &models.Payment{
		OfferID:           offer.ID,
		BuyerID:           offer.BuyerID,
		SellerID:          offer.SellerID,
		Amount:            offer.Price,
		Currency:          offer.Currency,
		Status:            models.PaymentStatusPending,
		CheckoutSessionID: session.ID,
		SessionExpiresAt:  &expiresAt,
	}

	var updated *models.Offer
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.payments.Create(ctx, payment); err != nil {
			return err
		}
		updated, err = s.offers.Transition(ctx, offer.ID, models.OfferTransition{
			From:             from,
			To:               models.OfferStatusAccepted,
			At:               now,
			PaymentSessionID: &session.ID,
		})
		return err
	})
	if err != nil {
		s.expireOrphanSession(ctx, session.ID)
		if errors.Is(err, repositories.ErrStaleState) || errors.Is(err, repositories.ErrActivePaymentExists) {
			s.log.Info("offer checkout lost race",
				zap.String("offer_id", offer.ID.String()),
				zap.Error(err))
			return nil, s.conflict(ctx, offer.ID)
		}
		return nil, fmt.Errorf("persist checkout: %w", err)
	}

	if offer.Status != updated.Status {
		s.metrics.OfferTransition(offer.Status, updated.Status)
	}
	s.metrics.PaymentTransition(models.PaymentStatusPending, SourceUser)
	s.auditOffer(ctx, actor, action, updated, map[string]any{
		"old_status":         offer.Status,
		"new_status":         updated.Status,
		"payment_id":         payment.ID.String(),
		"payment_session_id": session.ID,
	})
	s.notifier.Emit(ctx, offerRooms(updated), events.EventOfferUpdated, offerPayload(updated))
	s.notifier.Emit(ctx, paymentRooms(payment), events.EventPaymentUpdated, paymentPayload(payment))

	s.log.Info("checkout session opened",
		zap.String("offer_id", offer.ID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("session_id", session.ID))
	return &AcceptResult{Offer: updated, Session: session, PaymentID: payment.ID}, nil
}

// expireOrphanSession closes a session whose payment row was never committed.
func (s *OfferService) expireOrphanSession(ctx context.Context, sessionID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.gateway.ExpireSession(ctx, sessionID); err != nil {
		s.log.Warn("failed to expire orphan checkout session", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *OfferService) RejectOffer(ctx context.Context, offerID uuid.UUID, actor Actor) (*models.Offer, error) {
	offer, err := s.getOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.BuyerID != actor.UserID {
		return nil, apperrors.Forbidden("only the buyer can reject this offer")
	}
	if offer.Status != models.OfferStatusSent {
		return nil, apperrors.InvalidState(models.EntityOffer, offer.Status, "only sent offers can be rejected")
	}
	return s.transition(ctx, offer, models.OfferTransition{
		From: []string{models.OfferStatusSent},
		To:   models.OfferStatusRejected,
	}, actor)
}

// CancelOffer withdraws a sent or accepted offer. For an accepted offer the
// open checkout session is expired first, so a session that was already paid
// blocks the cancellation.
func (s *OfferService) CancelOffer(ctx context.Context, offerID uuid.UUID, actor Actor) (*models.Offer, error) {
	offer, err := s.getOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.SellerID != actor.UserID {
		return nil, apperrors.Forbidden("only the seller can cancel this offer")
	}
	if offer.Status != models.OfferStatusSent && offer.Status != models.OfferStatusAccepted {
		return nil, apperrors.InvalidState(models.EntityOffer, offer.Status, "only sent or accepted offers can be cancelled")
	}

	if offer.Status == models.OfferStatusAccepted && offer.PaymentSessionID != nil {
		if err := s.closeSession(ctx, offer, *offer.PaymentSessionID); err != nil {
			return nil, err
		}
	}

	// A sent offer accepted since the read has an open session that was
	// never expired here, so the update must lose.
	return s.transition(ctx, offer, models.OfferTransition{
		From: []string{offer.Status},
		To:   models.OfferStatusCancelled,
	}, actor)
}

func (s *OfferService) closeSession(ctx context.Context, offer *models.Offer, sessionID string) error {
	start := time.Now()
	err := s.gateway.ExpireSession(ctx, sessionID)
	s.metrics.ObserveGateway("expire_session", start, err)
	if err == nil {
		return nil
	}
	if !apperrors.Is(err, apperrors.KindPaymentRequestInvalid) {
		return err
	}

	// The processor refuses to expire sessions that are no longer open.
	snap, rerr := s.gateway.RetrieveSession(ctx, sessionID)
	if rerr != nil {
		return rerr
	}
	if snap.Status == payments.SessionStatusComplete {
		return apperrors.InvalidState(models.EntityOffer, offer.Status, "checkout already completed, refund the payment instead").
			WithDetail("session_status", snap.Status)
	}
	return nil
}

// UpdateOfferStatus applies a participant driven status change. Only
// delivered and completed are accepted here.
func (s *OfferService) UpdateOfferStatus(ctx context.Context, offerID uuid.UUID, status string, actor Actor) (*models.Offer, error) {
	allowed := false
	for _, st := range models.ManualStatusUpdates {
		if st == status {
			allowed = true
		}
	}
	if !allowed {
		return nil, apperrors.InvalidStatus(status, models.ManualStatusUpdates)
	}

	offer, err := s.getOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	var from string
	switch status {
	case models.OfferStatusDelivered:
		if offer.SellerID != actor.UserID {
			return nil, apperrors.Forbidden("only the seller can mark an offer delivered")
		}
		from = models.OfferStatusInProgress
	case models.OfferStatusCompleted:
		if offer.BuyerID != actor.UserID {
			return nil, apperrors.Forbidden("only the buyer can complete an offer")
		}
		from = models.OfferStatusDelivered
	}
	if offer.Status != from {
		return nil, apperrors.InvalidState(models.EntityOffer, offer.Status, fmt.Sprintf("offer must be %s to become %s", from, status))
	}

	return s.transition(ctx, offer, models.OfferTransition{From: []string{from}, To: status}, actor)
}

// DisputeOffer lets either party dispute a delivered offer.
func (s *OfferService) DisputeOffer(ctx context.Context, offerID uuid.UUID, actor Actor, reason, description string) (*models.Offer, error) {
	if !models.IsValidDisputeReason(reason) {
		return nil, apperrors.Validation("unknown dispute reason").
			WithDetail("field", "reason").
			WithDetail("allowed", models.DisputeReasons)
	}
	description = strings.TrimSpace(description)
	if len([]rune(description)) > models.OfferDescriptionMaxLen {
		return nil, apperrors.Validation("dispute description is too long").WithDetail("field", "description")
	}

	offer, err := s.getOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !offer.IsParticipant(actor.UserID) {
		return nil, apperrors.Forbidden("only offer participants can open a dispute")
	}
	if offer.Status != models.OfferStatusDelivered {
		return nil, apperrors.InvalidState(models.EntityOffer, offer.Status, "only delivered offers can be disputed")
	}

	return s.transition(ctx, offer, models.OfferTransition{
		From: []string{models.OfferStatusDelivered},
		To:   models.OfferStatusDisputed,
		Dispute: &models.OfferDispute{
			RaisedBy:    actor.UserID,
			Reason:      reason,
			Description: description,
		},
	}, actor)
}

// transition performs a conditional status change with audit logging,
// metrics and relay notification.
func (s *OfferService) transition(ctx context.Context, offer *models.Offer, t models.OfferTransition, actor Actor) (*models.Offer, error) {
	if !models.IsValidTransition(offer.Status, t.To) {
		return nil, apperrors.InvalidState(models.EntityOffer, offer.Status, fmt.Sprintf("cannot move to %s", t.To))
	}
	if t.At.IsZero() {
		t.At = s.now().UTC()
	}

	updated, err := s.offers.Transition(ctx, offer.ID, t)
	if errors.Is(err, repositories.ErrStaleState) {
		return nil, s.conflict(ctx, offer.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("transition offer: %w", err)
	}

	s.metrics.OfferTransition(offer.Status, updated.Status)
	s.auditOffer(ctx, actor, fmt.Sprintf("offer_status_%s_to_%s", offer.Status, updated.Status), updated, map[string]any{
		"old_status": offer.Status,
		"new_status": updated.Status,
	})
	s.notifier.Emit(ctx, offerRooms(updated), events.EventOfferUpdated, offerPayload(updated))
	return updated, nil
}

// conflict builds the error for a lost conditional update.
func (s *OfferService) conflict(ctx context.Context, offerID uuid.UUID) error {
	current, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return apperrors.ConcurrentModification(models.EntityOffer)
	}
	return apperrors.ConcurrentModification(models.EntityOffer).WithDetail("current_status", current.Status)
}

func (s *OfferService) checkNotExpired(offer *models.Offer) error {
	if offer.IsExpired(s.now()) {
		return apperrors.InvalidState(models.EntityOffer, offer.Status, "offer expired at "+offer.ExpiresAt.UTC().Format(time.RFC3339)).
			WithDetail("expired", true).
			WithDetail("expires_at", offer.ExpiresAt.UTC())
	}
	return nil
}

func (s *OfferService) checkNoActivePayment(ctx context.Context, offer *models.Offer) error {
	active, err := s.payments.GetActiveByOffer(ctx, offer.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check active payment: %w", err)
	}
	return apperrors.InvalidState(models.EntityOffer, offer.Status, "offer already has an active payment").
		WithDetail("payment_id", active.ID.String()).
		WithDetail("payment_status", active.Status)
}

func (s *OfferService) getOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	offer, err := s.offers.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.NotFound(models.EntityOffer)
	}
	if err != nil {
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return offer, nil
}

// GetOffer returns an offer visible to the actor.
func (s *OfferService) GetOffer(ctx context.Context, id uuid.UUID, actor Actor) (*models.Offer, error) {
	offer, err := s.getOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	if !offer.IsParticipant(actor.UserID) && !rbac.HasPermission(actor.Role, rbac.PermViewAnyOffer) {
		return nil, apperrors.Forbidden("not a participant of this offer")
	}
	return offer, nil
}

// LookupOffer resolves a raw offer id, including demo ids when enabled.
func (s *OfferService) LookupOffer(ctx context.Context, raw string, actor Actor) (*OfferLookup, error) {
	if models.IsDemoOfferID(raw) {
		if !s.cfg.DemoOffersEnabled {
			return &OfferLookup{Kind: LookupNotFound}, nil
		}
		return &OfferLookup{Kind: LookupDemo, Demo: models.NewDemoOffer(raw)}, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperrors.Validation("invalid offer id").WithDetail("field", "offerId")
	}
	offer, err := s.GetOffer(ctx, id, actor)
	if apperrors.Is(err, apperrors.KindNotFound) {
		return &OfferLookup{Kind: LookupNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	return &OfferLookup{Kind: LookupFound, Offer: offer}, nil
}

func (s *OfferService) ListOffersByConversation(ctx context.Context, conversationID uuid.UUID, actor Actor, limit, offset int) ([]models.Offer, error) {
	if !rbac.HasPermission(actor.Role, rbac.PermViewAnyOffer) {
		ok, err := s.conversations.IsParticipant(ctx, conversationID, actor.UserID)
		if err != nil {
			return nil, fmt.Errorf("check conversation participant: %w", err)
		}
		if !ok {
			return nil, apperrors.Forbidden("not a participant of this conversation")
		}
	}
	return s.offers.List(ctx, repositories.OfferFilter{
		ConversationID: &conversationID,
		Limit:          limit,
		Offset:         offset,
	})
}

// GetOfferHistory returns the audit trail of an offer and its payments to
// its participants.
func (s *OfferService) GetOfferHistory(ctx context.Context, offerID uuid.UUID, actor Actor, limit, offset int) ([]models.AuditLog, error) {
	if _, err := s.GetOffer(ctx, offerID, actor); err != nil {
		return nil, err
	}
	entries, err := s.audit.GetOfferTrail(ctx, offerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("load offer history: %w", err)
	}
	return entries, nil
}

// Offer list role filters.
const (
	OfferRoleBuyer  = "buyer"
	OfferRoleSeller = "seller"
	OfferRoleAll    = "all"
)

func (s *OfferService) ListUserOffers(ctx context.Context, actor Actor, role, status string, limit, offset int) ([]models.Offer, error) {
	f := repositories.OfferFilter{Limit: limit, Offset: offset}
	switch role {
	case OfferRoleBuyer:
		f.BuyerID = &actor.UserID
	case OfferRoleSeller:
		f.SellerID = &actor.UserID
	case OfferRoleAll, "":
		f.ParticipantID = &actor.UserID
	default:
		return nil, invalidRoleFilter()
	}
	if status != "" {
		if !models.IsValidOfferStatus(status) {
			return nil, apperrors.Validation("unknown offer status").WithDetail("field", "status")
		}
		f.Status = &status
	}
	return s.offers.List(ctx, f)
}

func invalidRoleFilter() error {
	return apperrors.Validation("unknown role filter").
		WithDetail("field", "role").
		WithDetail("allowed", []string{OfferRoleBuyer, OfferRoleSeller, OfferRoleAll})
}

func (s *OfferService) auditOffer(ctx context.Context, actor Actor, action string, offer *models.Offer, meta map[string]any) {
	actorType, actorID := auditActor(SourceUser, &actor)
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   actorType,
		Action:      action,
		EntityType:  models.EntityOffer,
		EntityID:    &offer.ID,
		Meta:        meta,
	})
}
