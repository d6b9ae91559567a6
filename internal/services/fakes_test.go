package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gig-marketplace/backend/internal/config"
	"github.com/gig-marketplace/backend/internal/events"
	"github.com/gig-marketplace/backend/internal/metrics"
	"github.com/gig-marketplace/backend/internal/models"
	"github.com/gig-marketplace/backend/internal/payments"
	"github.com/gig-marketplace/backend/internal/rbac"
	"github.com/gig-marketplace/backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
	"go.uber.org/zap"
)

const testWebhookSecret = "whsec_test_services"

// --- offers ---

type fakeOffers struct {
	mu            sync.Mutex
	m             map[uuid.UUID]models.Offer
	transitionErr error
}

func newFakeOffers() *fakeOffers {
	return &fakeOffers{m: map[uuid.UUID]models.Offer{}}
}

func (f *fakeOffers) Create(_ context.Context, o *models.Offer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	if o.Requirements == nil {
		o.Requirements = []string{}
	}
	if o.Inclusions == nil {
		o.Inclusions = []string{}
	}
	f.m[o.ID] = *o
	return nil
}

func (f *fakeOffers) GetByID(_ context.Context, id uuid.UUID) (*models.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.m[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &o, nil
}

func (f *fakeOffers) Transition(_ context.Context, id uuid.UUID, t models.OfferTransition) (*models.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transitionErr != nil {
		return nil, f.transitionErr
	}
	o, ok := f.m[id]
	if !ok || !containsStr(t.From, o.Status) {
		return nil, repositories.ErrStaleState
	}
	o.Status = t.To
	at := t.At
	stamp := func(p **time.Time) {
		if *p == nil {
			*p = &at
		}
	}
	switch t.To {
	case models.OfferStatusSent:
		stamp(&o.SentAt)
	case models.OfferStatusAccepted:
		stamp(&o.AcceptedAt)
	case models.OfferStatusRejected:
		stamp(&o.RejectedAt)
	case models.OfferStatusCancelled:
		stamp(&o.CancelledAt)
	case models.OfferStatusInProgress:
		stamp(&o.StartedAt)
	case models.OfferStatusDelivered:
		stamp(&o.DeliveredAt)
	case models.OfferStatusCompleted:
		stamp(&o.CompletedAt)
	case models.OfferStatusDisputed:
		stamp(&o.DisputedAt)
	}
	if t.PaymentSessionID != nil {
		sid := *t.PaymentSessionID
		o.PaymentSessionID = &sid
	}
	if t.Dispute != nil {
		by, reason, desc := t.Dispute.RaisedBy, t.Dispute.Reason, t.Dispute.Description
		o.DisputeRaisedBy, o.DisputeReason, o.DisputeDescription = &by, &reason, &desc
	}
	o.UpdatedAt = time.Now()
	f.m[id] = o
	return &o, nil
}

func (f *fakeOffers) List(_ context.Context, filter repositories.OfferFilter) ([]models.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Offer
	for _, o := range f.m {
		switch {
		case filter.BuyerID != nil && o.BuyerID != *filter.BuyerID,
			filter.SellerID != nil && o.SellerID != *filter.SellerID,
			filter.ParticipantID != nil && !o.IsParticipant(*filter.ParticipantID),
			filter.ConversationID != nil && o.ConversationID != *filter.ConversationID,
			filter.Status != nil && o.Status != *filter.Status:
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeOffers) set(o models.Offer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[o.ID] = o
}

func (f *fakeOffers) snapshot() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	saved := make(map[uuid.UUID]models.Offer, len(f.m))
	for k, v := range f.m {
		saved[k] = v
	}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.m = saved
	}
}

// --- payments ---

type fakePayments struct {
	mu      sync.Mutex
	m       map[uuid.UUID]models.Payment
	offers  *fakeOffers
	lookups int
}

func newFakePayments(offers *fakeOffers) *fakePayments {
	return &fakePayments{m: map[uuid.UUID]models.Payment{}, offers: offers}
}

func (f *fakePayments) Create(_ context.Context, p *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.m {
		if existing.OfferID == p.OfferID && containsStr(models.ActivePaymentStatuses, existing.Status) {
			return repositories.ErrActivePaymentExists
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	f.m[p.ID] = *p
	return nil
}

func (f *fakePayments) find(match func(models.Payment) bool) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	var found *models.Payment
	for _, p := range f.m {
		if match(p) && (found == nil || p.CreatedAt.After(found.CreatedAt)) {
			found = &p
		}
	}
	if found == nil {
		return nil, repositories.ErrNotFound
	}
	return found, nil
}

func (f *fakePayments) GetByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	return f.find(func(p models.Payment) bool { return p.ID == id })
}

func (f *fakePayments) GetByCheckoutSession(_ context.Context, sessionID string) (*models.Payment, error) {
	return f.find(func(p models.Payment) bool { return p.CheckoutSessionID == sessionID })
}

func (f *fakePayments) GetByPaymentIntent(_ context.Context, intentID string) (*models.Payment, error) {
	return f.find(func(p models.Payment) bool {
		return p.StripePaymentIntentID != nil && *p.StripePaymentIntentID == intentID
	})
}

func (f *fakePayments) GetLatestByOffer(_ context.Context, offerID uuid.UUID) (*models.Payment, error) {
	return f.find(func(p models.Payment) bool { return p.OfferID == offerID })
}

func (f *fakePayments) GetActiveByOffer(_ context.Context, offerID uuid.UUID) (*models.Payment, error) {
	return f.find(func(p models.Payment) bool {
		return p.OfferID == offerID && containsStr(models.ActivePaymentStatuses, p.Status)
	})
}

func (f *fakePayments) Transition(_ context.Context, id uuid.UUID, t models.PaymentTransition) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.m[id]
	if !ok || !containsStr(models.PaymentSourcesFor(t.To), p.Status) {
		return nil, repositories.ErrStaleState
	}
	p.Status = t.To
	at := t.At
	stamp := func(ptr **time.Time) {
		if *ptr == nil {
			*ptr = &at
		}
	}
	switch t.To {
	case models.PaymentStatusSucceeded:
		stamp(&p.PaidAt)
	case models.PaymentStatusFailed:
		stamp(&p.FailedAt)
	case models.PaymentStatusExpired:
		stamp(&p.ExpiredAt)
	case models.PaymentStatusRefunded:
		stamp(&p.RefundedAt)
	}
	if t.PaymentIntentID != nil && p.StripePaymentIntentID == nil {
		v := *t.PaymentIntentID
		p.StripePaymentIntentID = &v
	}
	if t.RefundID != nil {
		v := *t.RefundID
		p.RefundID = &v
	}
	if t.FailureReason != nil {
		v := *t.FailureReason
		p.FailureReason = &v
	}
	p.UpdatedAt = time.Now()
	f.m[id] = p
	return &p, nil
}

func (f *fakePayments) AttachPaymentIntent(_ context.Context, id uuid.UUID, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.m[id]
	if ok && p.StripePaymentIntentID == nil {
		p.StripePaymentIntentID = &intentID
		f.m[id] = p
	}
	return nil
}

func (f *fakePayments) List(_ context.Context, filter repositories.PaymentFilter) ([]models.PaymentWithOffer, int, error) {
	f.mu.Lock()
	var all []models.Payment
	for _, p := range f.m {
		switch {
		case filter.BuyerID != nil && p.BuyerID != *filter.BuyerID,
			filter.SellerID != nil && p.SellerID != *filter.SellerID,
			filter.ParticipantID != nil && p.BuyerID != *filter.ParticipantID && p.SellerID != *filter.ParticipantID,
			filter.Status != nil && p.Status != *filter.Status:
			continue
		}
		all = append(all, p)
	}
	f.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	var out []models.PaymentWithOffer
	for _, p := range all[start:end] {
		row := models.PaymentWithOffer{Payment: p}
		if o, err := f.offers.GetByID(context.Background(), p.OfferID); err == nil {
			row.OfferTitle, row.OfferStatus = o.Title, o.Status
		}
		out = append(out, row)
	}
	return out, total, nil
}

func (f *fakePayments) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payment
	for _, p := range f.m {
		if p.Status == models.PaymentStatusPending && p.SessionExpiresAt != nil && p.SessionExpiresAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePayments) ListSucceededWithOpenOffer(ctx context.Context, limit int) ([]models.Payment, error) {
	f.mu.Lock()
	var succeeded []models.Payment
	for _, p := range f.m {
		if p.Status == models.PaymentStatusSucceeded {
			succeeded = append(succeeded, p)
		}
	}
	f.mu.Unlock()

	var out []models.Payment
	for _, p := range succeeded {
		if o, err := f.offers.GetByID(ctx, p.OfferID); err == nil && o.Status == models.OfferStatusAccepted {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePayments) all() []models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Payment, 0, len(f.m))
	for _, p := range f.m {
		out = append(out, p)
	}
	return out
}

func (f *fakePayments) set(p models.Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[p.ID] = p
}

func (f *fakePayments) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

func (f *fakePayments) snapshot() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	saved := make(map[uuid.UUID]models.Payment, len(f.m))
	for k, v := range f.m {
		saved[k] = v
	}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.m = saved
	}
}

// --- conversations ---

type fakeConversations struct {
	mu sync.Mutex
	m  map[uuid.UUID]models.Conversation
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{m: map[uuid.UUID]models.Conversation{}}
}

func (f *fakeConversations) GetByID(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.m[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &c, nil
}

func (f *fakeConversations) FindOrCreate(_ context.Context, buyerID, sellerID uuid.UUID) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.m {
		if c.BuyerID == buyerID && c.SellerID == sellerID {
			return &c, nil
		}
	}
	c := models.Conversation{ID: uuid.New(), BuyerID: buyerID, SellerID: sellerID, CreatedAt: time.Now()}
	f.m[c.ID] = c
	return &c, nil
}

func (f *fakeConversations) IsParticipant(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.m[conversationID]
	return ok && c.IsParticipant(userID), nil
}

// --- webhook events ---

type fakeWebhookEvents struct {
	mu      sync.Mutex
	m       map[string]*models.WebhookEvent
	records int
}

func newFakeWebhookEvents() *fakeWebhookEvents {
	return &fakeWebhookEvents{m: map[string]*models.WebhookEvent{}}
}

func (f *fakeWebhookEvents) Record(_ context.Context, eventID, eventType string, payload json.RawMessage) (*models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records++
	e, ok := f.m[eventID]
	if !ok {
		e = &models.WebhookEvent{EventID: eventID, EventType: eventType, Payload: payload, ReceivedAt: time.Now()}
		f.m[eventID] = e
	}
	e.Attempts++
	cp := *e
	return &cp, nil
}

func (f *fakeWebhookEvents) MarkProcessed(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.m[eventID]; ok {
		now := time.Now()
		e.ProcessedAt, e.ProcessingError = &now, nil
	}
	return nil
}

func (f *fakeWebhookEvents) MarkFailed(_ context.Context, eventID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.m[eventID]; ok && e.ProcessedAt == nil {
		e.ProcessingError = &reason
	}
	return nil
}

func (f *fakeWebhookEvents) ListFailed(_ context.Context, maxAttempts, limit int) ([]models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WebhookEvent
	for _, e := range f.m {
		if e.ProcessedAt == nil && e.ProcessingError != nil && e.Attempts < maxAttempts {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeWebhookEvents) IncrementAttempts(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.m[eventID]; ok {
		e.Attempts++
	}
	return nil
}

func (f *fakeWebhookEvents) get(eventID string) *models.WebhookEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.m[eventID]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

// --- audit, tx, idempotency, notifier ---

type fakeAudit struct {
	mu       sync.Mutex
	entries  []models.AuditLog
	payments *fakePayments
}

func (f *fakeAudit) Log(_ context.Context, entry models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) GetOfferTrail(_ context.Context, offerID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	paymentIDs := map[uuid.UUID]bool{}
	if f.payments != nil {
		for _, p := range f.payments.all() {
			if p.OfferID == offerID {
				paymentIDs[p.ID] = true
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.AuditLog{}
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.EntityID == nil {
			continue
		}
		switch {
		case e.EntityType == models.EntityOffer && *e.EntityID == offerID,
			e.EntityType == models.EntityPayment && paymentIDs[*e.EntityID]:
			out = append(out, e)
		}
	}
	if offset >= len(out) {
		return []models.AuditLog{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

// fakeTx serializes transactions and rolls both stores back on error.
type fakeTx struct {
	mu       sync.Mutex
	offers   *fakeOffers
	payments *fakePayments
}

func (t *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	restoreOffers := t.offers.snapshot()
	restorePayments := t.payments.snapshot()
	if err := fn(ctx); err != nil {
		restoreOffers()
		restorePayments()
		return err
	}
	return nil
}

type fakeIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: map[string]bool{}}
}

func (f *fakeIdempotency) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (f *fakeIdempotency) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeIdempotency) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.keys, k)
	}
	return nil
}

func (f *fakeIdempotency) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[key]
}

func (f *fakeIdempotency) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = map[string]bool{}
}

type emitted struct {
	rooms   []string
	event   string
	payload map[string]any
}

type fakeNotifier struct {
	mu    sync.Mutex
	emits []emitted
}

func (f *fakeNotifier) Emit(_ context.Context, rooms []string, event string, payload map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = append(f.emits, emitted{rooms: rooms, event: event, payload: payload})
}

func (f *fakeNotifier) byEvent(event string) []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.emits {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// --- gateway ---

type fakeGateway struct {
	mu          sync.Mutex
	seq         int
	sessions    map[string]*payments.SessionSnapshot
	requests    []payments.CheckoutRequest
	expired     []string
	refunds     []payments.RefundRequest
	createErr   error
	expireErr   error
	retrieveErr error
	refundErr   error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]*payments.SessionSnapshot{}}
}

func (g *fakeGateway) CreateSession(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.seq++
	id := fmt.Sprintf("cs_test_%d", g.seq)
	expiresAt := time.Now().Add(req.Expiry)
	g.sessions[id] = &payments.SessionSnapshot{
		ID:            id,
		Status:        payments.SessionStatusOpen,
		PaymentStatus: payments.SessionPaymentUnpaid,
		AmountTotal:   req.Amount,
		Currency:      req.Currency,
		ExpiresAt:     expiresAt,
		Metadata:      req.Metadata,
	}
	return &payments.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id, ExpiresAt: expiresAt}, nil
}

func (g *fakeGateway) RetrieveSession(_ context.Context, id string) (*payments.SessionSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	s, ok := g.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no such session %s", id)
	}
	cp := *s
	return &cp, nil
}

func (g *fakeGateway) ExpireSession(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expireErr != nil {
		return g.expireErr
	}
	g.expired = append(g.expired, id)
	if s, ok := g.sessions[id]; ok {
		s.Status = payments.SessionStatusExpired
	}
	return nil
}

func (g *fakeGateway) Refund(_ context.Context, req payments.RefundRequest) (*payments.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, req)
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &payments.RefundResult{ID: fmt.Sprintf("re_test_%d", len(g.refunds)), Status: "succeeded"}, nil
}

func (g *fakeGateway) setSession(id, status, paymentStatus, intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		s = &payments.SessionSnapshot{ID: id}
		g.sessions[id] = s
	}
	s.Status, s.PaymentStatus, s.PaymentIntentID = status, paymentStatus, intentID
}

func (g *fakeGateway) counts() (created, expired int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq, len(g.expired)
}

// --- harness ---

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type harness struct {
	cfg      *config.Config
	offers   *fakeOffers
	payments *fakePayments
	convs    *fakeConversations
	events   *fakeWebhookEvents
	audit    *fakeAudit
	tx       *fakeTx
	gateway  *fakeGateway
	notifier *fakeNotifier
	idem     *fakeIdempotency
	registry *prometheus.Registry

	settlement *Settlement
	offerSvc   *OfferService
	paymentSvc *PaymentService
	webhookSvc *WebhookService
	reconciler *ReconcileService

	now    time.Time
	seller Actor
	buyer  Actor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cfg: &config.Config{
			StripeWebhookSecret:   testWebhookSecret,
			ClientURL:             "http://localhost:5173",
			CheckoutExpiry:        30 * time.Minute,
			OfferTTL:              7 * 24 * time.Hour,
			WebhookFailureMode:    config.WebhookFailureAck,
			WebhookIdempotencyTTL: time.Hour,
			WebhookMaxAttempts:    5,
			StaleSessionGrace:     10 * time.Minute,
			ReconcileBatchLimit:   100,
		},
		offers:   newFakeOffers(),
		convs:    newFakeConversations(),
		events:   newFakeWebhookEvents(),
		audit:    &fakeAudit{},
		gateway:  newFakeGateway(),
		notifier: &fakeNotifier{},
		idem:     newFakeIdempotency(),
		registry: prometheus.NewRegistry(),
		now:      testNow,
		seller:   Actor{UserID: uuid.New(), Role: rbac.RoleSeller},
		buyer:    Actor{UserID: uuid.New(), Role: rbac.RoleBuyer},
	}
	h.payments = newFakePayments(h.offers)
	h.audit.payments = h.payments
	h.tx = &fakeTx{offers: h.offers, payments: h.payments}

	log := zap.NewNop()
	m := metrics.New(h.registry)
	var notifier events.Notifier = h.notifier

	guard, err := NewIdempotencyGuard(h.idem, h.cfg.WebhookIdempotencyTTL, "stripe_webhook")
	require.NoError(t, err)

	h.settlement = NewSettlement(h.offers, h.payments, h.tx, h.audit, notifier, m, log)
	h.offerSvc = NewOfferService(h.offers, h.payments, h.convs, h.audit, h.tx, h.gateway, notifier, m, h.cfg, log)
	h.paymentSvc = NewPaymentService(h.payments, h.offers, h.gateway, h.settlement, m, log)
	h.webhookSvc = NewWebhookService(payments.NewWebhookVerifier(testWebhookSecret), guard, h.events, h.payments, h.settlement, m, h.cfg, log)
	h.reconciler = NewReconcileService(h.payments, h.events, h.webhookSvc, h.settlement, h.gateway, m, h.cfg, log)

	clock := func() time.Time { return h.now }
	h.settlement.now = clock
	h.offerSvc.now = clock
	h.reconciler.now = clock
	return h
}

func (h *harness) createOffer(t *testing.T, title string, price string) *models.Offer {
	t.Helper()
	o, err := h.offerSvc.CreateOffer(context.Background(), h.seller, CreateOfferInput{
		BuyerID:          h.buyer.UserID,
		Title:            title,
		Description:      "Full " + title + " package",
		Price:            decimal.RequireFromString(price),
		Currency:         "usd",
		DeliveryTimeDays: 5,
		Inclusions:       []string{"source files"},
	})
	require.NoError(t, err)
	return o
}

func (h *harness) acceptedOffer(t *testing.T) (*models.Offer, *AcceptResult) {
	t.Helper()
	o := h.createOffer(t, "Logo redesign", "250")
	res, err := h.offerSvc.AcceptOffer(context.Background(), o.ID, h.buyer)
	require.NoError(t, err)
	return res.Offer, res
}

func (h *harness) getOffer(t *testing.T, id uuid.UUID) *models.Offer {
	t.Helper()
	o, err := h.offers.GetByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (h *harness) getPayment(t *testing.T, id uuid.UUID) *models.Payment {
	t.Helper()
	p, err := h.payments.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

// deliver signs and submits a webhook event carrying obj.
func (h *harness) deliver(t *testing.T, eventID string, eventType stripe.EventType, obj map[string]any) (*WebhookResult, error) {
	t.Helper()
	payload := eventPayload(t, eventID, eventType, obj)
	return h.webhookSvc.HandleWebhook(context.Background(), payload, signatureHeader(payload, testWebhookSecret, time.Now().Unix()))
}

func eventPayload(t *testing.T, eventID string, eventType stripe.EventType, obj map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        string(eventType),
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": obj},
	})
	require.NoError(t, err)
	return payload
}

func signatureHeader(payload []byte, secret string, ts int64) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Unix(ts, 0),
	}).Header
}

func completedSession(sessionID, intentID, paymentStatus string, offerID uuid.UUID) map[string]any {
	return map[string]any{
		"id":             sessionID,
		"object":         "checkout.session",
		"status":         "complete",
		"payment_status": paymentStatus,
		"payment_intent": intentID,
		"amount_total":   25000,
		"currency":       "usd",
		"metadata":       map[string]string{payments.MetaOfferID: offerID.String()},
	}
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
