package proximity

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/internal/payments"
	"github.com/stagedoor/stagedoor-backend/internal/referrals"
	"github.com/stagedoor/stagedoor-backend/internal/tickets"
	"github.com/stagedoor/stagedoor-backend/pkg/config"
	"github.com/stagedoor/stagedoor-backend/pkg/db"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
	"github.com/stagedoor/stagedoor-backend/pkg/realtime"
	"github.com/stagedoor/stagedoor-backend/pkg/types"
)

func newTestDBClient(t *testing.T) *db.Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	return db.NewFromConn(conn)
}

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func testFeeSchedule(t *testing.T) payments.Schedule {
	t.Helper()
	schedule, err := payments.NewSchedule(config.FeesConfig{
		ServiceFeePercent: "0.10",
		ResaleFeePercent:  "0.05",
		CashFeePercent:    "0.05",
	})
	if err != nil {
		t.Fatalf("building schedule: %v", err)
	}
	return schedule
}

type memPendingRepo struct {
	rows map[uuid.UUID]*models.PendingPayment
}

func newMemPendingRepo() *memPendingRepo {
	return &memPendingRepo{rows: map[uuid.UUID]*models.PendingPayment{}}
}

func (r *memPendingRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *memPendingRepo) Create(ctx context.Context, pending *models.PendingPayment) error {
	pending.ID = uuid.New()
	pending.CreatedAt = time.Now().UTC()
	clone := *pending
	r.rows[pending.ID] = &clone
	return nil
}

func (r *memPendingRepo) FindByID(ctx context.Context, pendingID uuid.UUID) (*models.PendingPayment, error) {
	pending, ok := r.rows[pendingID]
	if !ok {
		return nil, nil
	}
	clone := *pending
	return &clone, nil
}

func (r *memPendingRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.PendingPayment, error) {
	return nil, nil
}

func (r *memPendingRepo) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.PendingPayment, error) {
	return nil, nil
}

func (r *memPendingRepo) MarkProcessing(ctx context.Context, pendingID uuid.UUID, now time.Time) (int64, error) {
	pending, ok := r.rows[pendingID]
	if !ok || pending.Status != enums.PendingPaymentStatusPending || !pending.ExpiresAt.After(now) {
		return 0, nil
	}
	pending.Status = enums.PendingPaymentStatusProcessing
	return 1, nil
}

func (r *memPendingRepo) MarkCompleted(ctx context.Context, pendingID, paymentID uuid.UUID, at time.Time) (int64, error) {
	pending, ok := r.rows[pendingID]
	if !ok || pending.Status != enums.PendingPaymentStatusProcessing {
		return 0, nil
	}
	pending.Status = enums.PendingPaymentStatusCompleted
	pending.PaymentID = &paymentID
	pending.CompletedAt = &at
	return 1, nil
}

func (r *memPendingRepo) MarkFailed(ctx context.Context, pendingID uuid.UUID) (int64, error) {
	pending, ok := r.rows[pendingID]
	if !ok || pending.Status != enums.PendingPaymentStatusProcessing {
		return 0, nil
	}
	pending.Status = enums.PendingPaymentStatusFailed
	return 1, nil
}

func (r *memPendingRepo) MarkCancelled(ctx context.Context, pendingID uuid.UUID) (int64, error) {
	pending, ok := r.rows[pendingID]
	if !ok || pending.Status != enums.PendingPaymentStatusPending {
		return 0, nil
	}
	pending.Status = enums.PendingPaymentStatusCancelled
	return 1, nil
}

func (r *memPendingRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.PendingPayment, error) {
	var out []models.PendingPayment
	for _, pending := range r.rows {
		if pending.Status == enums.PendingPaymentStatusPending && !pending.ExpiresAt.After(now) && len(out) < limit {
			out = append(out, *pending)
		}
	}
	return out, nil
}

func (r *memPendingRepo) MarkExpired(ctx context.Context, pendingID uuid.UUID, now time.Time) (int64, error) {
	pending, ok := r.rows[pendingID]
	if !ok || pending.Status != enums.PendingPaymentStatusPending || pending.ExpiresAt.After(now) {
		return 0, nil
	}
	pending.Status = enums.PendingPaymentStatusExpired
	return 1, nil
}

type stubTickets struct {
	events       map[uuid.UUID]*models.Event
	availability map[uuid.UUID]*tickets.Availability
	mintInputs   []tickets.MintInput
	refunded     []uuid.UUID
}

func newStubTickets() *stubTickets {
	return &stubTickets{
		events:       map[uuid.UUID]*models.Event{},
		availability: map[uuid.UUID]*tickets.Availability{},
	}
}

func (s *stubTickets) addEvent() *models.Event {
	event := &models.Event{ID: uuid.New(), OrganizerID: uuid.New(), Name: "Matinee", StartsAt: time.Now().UTC().Add(24 * time.Hour)}
	s.events[event.ID] = event
	return event
}

func (s *stubTickets) CreateEvent(ctx context.Context, input tickets.CreateEventInput) (*models.Event, error) {
	return nil, nil
}

func (s *stubTickets) GetEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	event, ok := s.events[eventID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	return event, nil
}

func (s *stubTickets) CreateTicketType(ctx context.Context, input tickets.CreateTicketTypeInput) (*models.TicketType, error) {
	return nil, nil
}

func (s *stubTickets) ListTicketTypes(ctx context.Context, eventID uuid.UUID) ([]models.TicketType, error) {
	return nil, nil
}

func (s *stubTickets) ComputeAvailability(ctx context.Context, ticketTypeID uuid.UUID) (*tickets.Availability, error) {
	availability, ok := s.availability[ticketTypeID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket type not found")
	}
	return availability, nil
}

func (s *stubTickets) Purchase(ctx context.Context, input tickets.PurchaseInput) (*tickets.PurchaseResult, error) {
	return nil, nil
}

func (s *stubTickets) MintInTx(ctx context.Context, tx *gorm.DB, input tickets.MintInput) (*models.Ticket, error) {
	s.mintInputs = append(s.mintInputs, input)
	return &models.Ticket{
		ID:         uuid.New(),
		EventID:    input.EventID,
		OwnerID:    input.OwnerID,
		OwnerEmail: input.OwnerEmail,
		Status:     enums.TicketStatusValid,
		Mode:       input.Mode,
	}, nil
}

func (s *stubTickets) RefundByPaymentInTx(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID) error {
	s.refunded = append(s.refunded, paymentID)
	return nil
}

func (s *stubTickets) Get(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	return nil, nil
}

func (s *stubTickets) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Ticket, error) {
	return nil, nil
}

func (s *stubTickets) CheckIn(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	return nil, nil
}

func (s *stubTickets) Cancel(ctx context.Context, ticketID, callerID uuid.UUID) (*models.Ticket, error) {
	return nil, nil
}

func (s *stubTickets) IssueTransferToken(ctx context.Context, ticketID, ownerID uuid.UUID) (string, time.Time, error) {
	return "", time.Time{}, nil
}

func (s *stubTickets) RedeemTransferToken(ctx context.Context, token string, newOwnerID uuid.UUID, newOwnerEmail string) (*models.Ticket, error) {
	return nil, nil
}

func (s *stubTickets) RecordCashSale(ctx context.Context, input tickets.CashSaleInput) (*tickets.CashSaleResult, error) {
	return nil, nil
}

type stubPayments struct {
	schedule payments.Schedule
	settlers map[enums.PaymentType]payments.Settler

	chargeInputs []payments.ChargeInput
	chargeErr    error
}

func newStubPayments(schedule payments.Schedule) *stubPayments {
	return &stubPayments{schedule: schedule, settlers: map[enums.PaymentType]payments.Settler{}}
}

func (s *stubPayments) RegisterSettler(settler payments.Settler) {
	s.settlers[settler.PaymentType()] = settler
}

func (s *stubPayments) Open(ctx context.Context, tx *gorm.DB, input payments.OpenInput) (*models.Payment, error) {
	return nil, nil
}

func (s *stubPayments) Charge(ctx context.Context, input payments.ChargeInput) (*models.Payment, *payments.ChargeIntent, error) {
	s.chargeInputs = append(s.chargeInputs, input)
	if s.chargeErr != nil {
		return nil, nil, s.chargeErr
	}
	intentID := "intent-" + uuid.NewString()
	payment := &models.Payment{
		ID:                uuid.New(),
		Type:              input.Type,
		PayerID:           input.PayerID,
		PayeeID:           input.PayeeID,
		AmountCents:       input.AmountCents,
		PlatformFeeCents:  input.PlatformFeeCents,
		Status:            enums.PaymentStatusProcessing,
		ProcessorIntentID: &intentID,
		Metadata:          input.Metadata,
	}
	return payment, &payments.ChargeIntent{IntentID: intentID}, nil
}

func (s *stubPayments) HandleProcessorResult(ctx context.Context, result payments.ProcessorResult) error {
	return nil
}

func (s *stubPayments) Refund(ctx context.Context, paymentID uuid.UUID, reason string) (*models.Payment, error) {
	return nil, nil
}

func (s *stubPayments) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	return nil, nil
}

func (s *stubPayments) ListByPayer(ctx context.Context, payerID uuid.UUID, limit int) ([]models.Payment, error) {
	return nil, nil
}

func (s *stubPayments) FeeSchedule() payments.Schedule { return s.schedule }

type stubReferrals struct {
	active *referrals.Context
}

func (s *stubReferrals) Link(ctx context.Context, referrerID, referredID uuid.UUID, referredAt time.Time) (*models.Referral, error) {
	return nil, nil
}

func (s *stubReferrals) ActiveContext(ctx context.Context, buyerID uuid.UUID, at time.Time) (*referrals.Context, error) {
	return s.active, nil
}

func (s *stubReferrals) RecordEarning(ctx context.Context, tx *gorm.DB, snapshot referrals.Context, paymentID *uuid.UUID, shareAmountCents int) error {
	return nil
}

func (s *stubReferrals) ListEarnings(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralEarning, error) {
	return nil, nil
}

type publishedEvent struct {
	customerID uuid.UUID
	eventType  string
}

type recordingPublisher struct {
	events []publishedEvent
}

func (p *recordingPublisher) PublishToCustomer(ctx context.Context, customerID uuid.UUID, event realtime.Event) error {
	p.events = append(p.events, publishedEvent{customerID: customerID, eventType: event.Type})
	return nil
}

func (p *recordingPublisher) types() []string {
	var out []string
	for _, event := range p.events {
		out = append(out, event.eventType)
	}
	return out
}

type proximityFixture struct {
	svc       Service
	repo      *memPendingRepo
	tickets   *stubTickets
	payments  *stubPayments
	referrals *stubReferrals
	publisher *recordingPublisher
	event     *models.Event
}

func newProximityFixture(t *testing.T) *proximityFixture {
	t.Helper()
	repo := newMemPendingRepo()
	ticketSvc := newStubTickets()
	paymentSvc := newStubPayments(testFeeSchedule(t))
	referralSvc := &stubReferrals{}
	publisher := &recordingPublisher{}
	svc, err := NewService(ServiceParams{
		DB:        newTestDBClient(t),
		Repo:      repo,
		Tickets:   ticketSvc,
		Payments:  paymentSvc,
		Referrals: referralSvc,
		Publisher: publisher,
		Logger:    newTestLogger(),
		Config:    config.ProximityConfig{ExpiryMinutes: 5},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &proximityFixture{
		svc:       svc,
		repo:      repo,
		tickets:   ticketSvc,
		payments:  paymentSvc,
		referrals: referralSvc,
		publisher: publisher,
		event:     ticketSvc.addEvent(),
	}
}

func (f *proximityFixture) initiate(t *testing.T, vendorID, customerID uuid.UUID) *models.PendingPayment {
	t.Helper()
	pending, err := f.svc.Initiate(context.Background(), InitiateInput{
		VendorID:    vendorID,
		CustomerID:  customerID,
		EventID:     f.event.ID,
		AmountCents: 5000,
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return pending
}

func TestInitiatePublishesRequest(t *testing.T) {
	fixture := newProximityFixture(t)
	customer := uuid.New()

	pending := fixture.initiate(t, uuid.New(), customer)
	if pending.Status != enums.PendingPaymentStatusPending {
		t.Fatalf("expected pending, got %s", pending.Status)
	}
	remaining := time.Until(pending.ExpiresAt)
	if remaining < 4*time.Minute || remaining > 6*time.Minute {
		t.Fatalf("expected a five minute window, got %s", remaining)
	}
	if len(fixture.publisher.events) != 1 {
		t.Fatalf("expected one push, got %d", len(fixture.publisher.events))
	}
	push := fixture.publisher.events[0]
	if push.customerID != customer || push.eventType != EventPaymentRequested {
		t.Fatalf("expected a request push to the customer, got %+v", push)
	}
}

func TestInitiateRejectsSelfCharge(t *testing.T) {
	fixture := newProximityFixture(t)
	party := uuid.New()

	_, err := fixture.svc.Initiate(context.Background(), InitiateInput{
		VendorID:    party,
		CustomerID:  party,
		EventID:     fixture.event.ID,
		AmountCents: 5000,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInitiateSoldOutTier(t *testing.T) {
	fixture := newProximityFixture(t)
	ticketTypeID := uuid.New()
	zero := 0
	max := 10
	fixture.tickets.availability[ticketTypeID] = &tickets.Availability{Max: &max, Sold: 10, Remaining: &zero}

	_, err := fixture.svc.Initiate(context.Background(), InitiateInput{
		VendorID:     uuid.New(),
		CustomerID:   uuid.New(),
		EventID:      fixture.event.ID,
		TicketTypeID: &ticketTypeID,
		AmountCents:  5000,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeCapacityExceeded {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
}

func TestConfirmOpensCharge(t *testing.T) {
	fixture := newProximityFixture(t)
	customer := uuid.New()
	vendor := uuid.New()
	pending := fixture.initiate(t, vendor, customer)

	result, err := fixture.svc.Confirm(context.Background(), ConfirmInput{
		PendingID:     pending.ID,
		CustomerID:    customer,
		CustomerEmail: " Customer@Example.com ",
		SourceID:      "cnon:nonce",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.Pending.Status != enums.PendingPaymentStatusProcessing {
		t.Fatalf("expected processing, got %s", result.Pending.Status)
	}
	if result.Payment == nil || result.Intent == nil {
		t.Fatal("expected an in-flight payment and intent")
	}

	if len(fixture.payments.chargeInputs) != 1 {
		t.Fatalf("expected one charge, got %d", len(fixture.payments.chargeInputs))
	}
	charge := fixture.payments.chargeInputs[0]
	if charge.Type != enums.PaymentTypeProximitySale {
		t.Fatalf("expected proximity sale, got %s", charge.Type)
	}
	if charge.AmountCents != 5500 || charge.PlatformFeeCents != 500 {
		t.Fatalf("expected 5000 plus 10%% fee, got %d/%d", charge.AmountCents, charge.PlatformFeeCents)
	}
	if charge.PayeeID == nil || *charge.PayeeID != vendor {
		t.Fatal("vendor must be the payee")
	}
	handshakeID, ok := payments.MetadataUUID(charge.Metadata, payments.MetaPendingPaymentID)
	if !ok || handshakeID != pending.ID {
		t.Fatal("expected handshake metadata on the charge")
	}
	email, _ := payments.MetadataString(charge.Metadata, payments.MetaBuyerEmail)
	if email != "customer@example.com" {
		t.Fatalf("expected normalized customer email, got %q", email)
	}

	pushed := fixture.publisher.types()
	if len(pushed) != 2 || pushed[1] != EventPaymentProcessing {
		t.Fatalf("expected a processing push, got %v", pushed)
	}
}

func TestConfirmWrongCustomer(t *testing.T) {
	fixture := newProximityFixture(t)
	pending := fixture.initiate(t, uuid.New(), uuid.New())

	_, err := fixture.svc.Confirm(context.Background(), ConfirmInput{
		PendingID:  pending.ID,
		CustomerID: uuid.New(),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestConfirmExpiredHandshake(t *testing.T) {
	fixture := newProximityFixture(t)
	customer := uuid.New()
	pending := fixture.initiate(t, uuid.New(), customer)
	fixture.repo.rows[pending.ID].ExpiresAt = time.Now().UTC().Add(-time.Second)

	_, err := fixture.svc.Confirm(context.Background(), ConfirmInput{
		PendingID:  pending.ID,
		CustomerID: customer,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeExpired {
		t.Fatalf("expected expired, got %v", err)
	}
	if fixture.repo.rows[pending.ID].Status != enums.PendingPaymentStatusExpired {
		t.Fatal("a late confirm must resolve the row as expired")
	}
	pushed := fixture.publisher.types()
	if pushed[len(pushed)-1] != EventPaymentExpired {
		t.Fatalf("expected an expired push, got %v", pushed)
	}
	if len(fixture.payments.chargeInputs) != 0 {
		t.Fatal("an expired handshake must never reach the processor")
	}
}

func TestConfirmResolvedHandshake(t *testing.T) {
	fixture := newProximityFixture(t)
	customer := uuid.New()
	pending := fixture.initiate(t, uuid.New(), customer)
	if _, err := fixture.svc.Cancel(context.Background(), pending.ID, customer); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err := fixture.svc.Confirm(context.Background(), ConfirmInput{
		PendingID:  pending.ID,
		CustomerID: customer,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestConfirmChargeErrorFailsHandshake(t *testing.T) {
	fixture := newProximityFixture(t)
	customer := uuid.New()
	pending := fixture.initiate(t, uuid.New(), customer)
	fixture.payments.chargeErr = pkgerrors.New(pkgerrors.CodeProcessor, "card declined")

	_, err := fixture.svc.Confirm(context.Background(), ConfirmInput{
		PendingID:  pending.ID,
		CustomerID: customer,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeProcessor {
		t.Fatalf("expected processor error, got %v", err)
	}
	if fixture.repo.rows[pending.ID].Status != enums.PendingPaymentStatusFailed {
		t.Fatal("a failed charge must fail the handshake")
	}
	pushed := fixture.publisher.types()
	if pushed[len(pushed)-1] != EventPaymentFailed {
		t.Fatalf("expected a failed push, got %v", pushed)
	}
}

func TestCancelParticipantsOnly(t *testing.T) {
	fixture := newProximityFixture(t)
	vendor := uuid.New()
	customer := uuid.New()
	pending := fixture.initiate(t, vendor, customer)

	_, err := fixture.svc.Cancel(context.Background(), pending.ID, uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	cancelled, err := fixture.svc.Cancel(context.Background(), pending.ID, vendor)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.PendingPaymentStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	pushed := fixture.publisher.types()
	if pushed[len(pushed)-1] != EventPaymentCancelled {
		t.Fatalf("expected a cancelled push, got %v", pushed)
	}

	_, err = fixture.svc.Cancel(context.Background(), pending.ID, customer)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvalidState {
		t.Fatalf("second cancel must fail, got %v", err)
	}
}

func TestSweepExpiredResolvesStaleHandshakes(t *testing.T) {
	fixture := newProximityFixture(t)
	customer := uuid.New()
	first := fixture.initiate(t, uuid.New(), customer)
	second := fixture.initiate(t, uuid.New(), customer)
	fresh := fixture.initiate(t, uuid.New(), customer)
	fixture.repo.rows[first.ID].ExpiresAt = time.Now().UTC().Add(-time.Minute)
	fixture.repo.rows[second.ID].ExpiresAt = time.Now().UTC().Add(-time.Minute)
	fixture.publisher.events = nil

	expired, err := fixture.svc.SweepExpired(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 2 {
		t.Fatalf("expected two expired handshakes, got %d", expired)
	}
	if fixture.repo.rows[fresh.ID].Status != enums.PendingPaymentStatusPending {
		t.Fatal("fresh handshake must stay pending")
	}
	if len(fixture.publisher.events) != 2 {
		t.Fatalf("expected one push per expiry, got %d", len(fixture.publisher.events))
	}
}

func confirmedHandshake(t *testing.T, fixture *proximityFixture, customer uuid.UUID) (*models.PendingPayment, *models.Payment) {
	t.Helper()
	pending := fixture.initiate(t, uuid.New(), customer)
	result, err := fixture.svc.Confirm(context.Background(), ConfirmInput{
		PendingID:     pending.ID,
		CustomerID:    customer,
		CustomerEmail: "customer@example.com",
		SourceID:      "cnon:nonce",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return result.Pending, result.Payment
}

func TestProximitySettlerMintsOnConfirmation(t *testing.T) {
	fixture := newProximityFixture(t)
	customer := uuid.New()
	pending, payment := confirmedHandshake(t, fixture, customer)

	settler := fixture.payments.settlers[enums.PaymentTypeProximitySale]
	if settler == nil {
		t.Fatal("proximity settler must register at construction")
	}
	if err := settler.OnCompleted(context.Background(), nil, payment); err != nil {
		t.Fatalf("settle: %v", err)
	}

	stored := fixture.repo.rows[pending.ID]
	if stored.Status != enums.PendingPaymentStatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	if stored.PaymentID == nil || *stored.PaymentID != payment.ID {
		t.Fatal("expected the payment linked on the handshake")
	}
	if len(fixture.tickets.mintInputs) != 1 {
		t.Fatalf("expected one mint, got %d", len(fixture.tickets.mintInputs))
	}
	mint := fixture.tickets.mintInputs[0]
	if mint.OwnerID != customer || mint.Mode != enums.TicketModeStandard || mint.PaymentMethod != enums.PaymentMethodCard {
		t.Fatalf("expected a standard card mint for the customer, got %+v", mint)
	}
	if mint.OwnerEmail != "customer@example.com" {
		t.Fatalf("expected the buyer email from metadata, got %q", mint.OwnerEmail)
	}
	pushed := fixture.publisher.types()
	if pushed[len(pushed)-1] != EventPaymentCompleted {
		t.Fatalf("expected a completed push, got %v", pushed)
	}
}

func TestProximitySettlerRedeliveryIsIdempotent(t *testing.T) {
	fixture := newProximityFixture(t)
	customer := uuid.New()
	_, payment := confirmedHandshake(t, fixture, customer)

	settler := fixture.payments.settlers[enums.PaymentTypeProximitySale]
	if err := settler.OnCompleted(context.Background(), nil, payment); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := settler.OnCompleted(context.Background(), nil, payment); err != nil {
		t.Fatalf("redelivery must be a no-op, got %v", err)
	}
	if len(fixture.tickets.mintInputs) != 1 {
		t.Fatalf("redelivery must not mint again, got %d mints", len(fixture.tickets.mintInputs))
	}
}

func TestProximitySettlerConflictingOutcome(t *testing.T) {
	fixture := newProximityFixture(t)
	customer := uuid.New()
	pending, payment := confirmedHandshake(t, fixture, customer)

	// A different payment already settled this handshake.
	otherPayment := uuid.New()
	now := time.Now().UTC()
	fixture.repo.rows[pending.ID].Status = enums.PendingPaymentStatusCompleted
	fixture.repo.rows[pending.ID].PaymentID = &otherPayment
	fixture.repo.rows[pending.ID].CompletedAt = &now

	settler := fixture.payments.settlers[enums.PaymentTypeProximitySale]
	err := settler.OnCompleted(context.Background(), nil, payment)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConsistency {
		t.Fatalf("expected consistency violation, got %v", err)
	}
}

func TestProximitySettlerMissingMetadata(t *testing.T) {
	fixture := newProximityFixture(t)
	settler := fixture.payments.settlers[enums.PaymentTypeProximitySale]

	err := settler.OnCompleted(context.Background(), nil, &models.Payment{ID: uuid.New(), Metadata: types.JSONMap{}})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConsistency {
		t.Fatalf("expected consistency violation, got %v", err)
	}
}

func TestProximitySettlerFailureResolvesHandshake(t *testing.T) {
	fixture := newProximityFixture(t)
	customer := uuid.New()
	pending, payment := confirmedHandshake(t, fixture, customer)

	settler := fixture.payments.settlers[enums.PaymentTypeProximitySale]
	if err := settler.OnFailed(context.Background(), nil, payment); err != nil {
		t.Fatalf("fail settle: %v", err)
	}
	if fixture.repo.rows[pending.ID].Status != enums.PendingPaymentStatusFailed {
		t.Fatal("expected the handshake failed")
	}
	pushed := fixture.publisher.types()
	if pushed[len(pushed)-1] != EventPaymentFailed {
		t.Fatalf("expected a failed push, got %v", pushed)
	}
}

func TestProximitySettlerRefundCancelsTicket(t *testing.T) {
	fixture := newProximityFixture(t)
	settler := fixture.payments.settlers[enums.PaymentTypeProximitySale]

	payment := &models.Payment{ID: uuid.New()}
	if err := settler.OnRefunded(context.Background(), nil, payment); err != nil {
		t.Fatalf("refund settle: %v", err)
	}
	if len(fixture.tickets.refunded) != 1 || fixture.tickets.refunded[0] != payment.ID {
		t.Fatalf("expected the payment's ticket refunded, got %v", fixture.tickets.refunded)
	}
}
