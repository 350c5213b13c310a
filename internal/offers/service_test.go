package offers

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/internal/notifications"
	"github.com/stagedoor/stagedoor-backend/internal/payments"
	"github.com/stagedoor/stagedoor-backend/internal/referrals"
	"github.com/stagedoor/stagedoor-backend/internal/tickets"
	"github.com/stagedoor/stagedoor-backend/pkg/config"
	"github.com/stagedoor/stagedoor-backend/pkg/db"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
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
		ServiceFeePercent:  "0.10",
		ResaleFeePercent:   "0.05",
		CashFeePercent:     "0.05",
		PublicMintFeeCents: 200,
	})
	if err != nil {
		t.Fatalf("building schedule: %v", err)
	}
	return schedule
}

type memOfferRepo struct {
	offers map[uuid.UUID]*models.TicketOffer
}

func newMemOfferRepo() *memOfferRepo {
	return &memOfferRepo{offers: map[uuid.UUID]*models.TicketOffer{}}
}

func (r *memOfferRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *memOfferRepo) Create(ctx context.Context, offer *models.TicketOffer) error {
	offer.ID = uuid.New()
	offer.CreatedAt = time.Now().UTC()
	clone := *offer
	r.offers[offer.ID] = &clone
	return nil
}

func (r *memOfferRepo) FindByID(ctx context.Context, offerID uuid.UUID) (*models.TicketOffer, error) {
	offer, ok := r.offers[offerID]
	if !ok {
		return nil, nil
	}
	clone := *offer
	return &clone, nil
}

func (r *memOfferRepo) ListByOrganizer(ctx context.Context, organizerID uuid.UUID, limit int) ([]models.TicketOffer, error) {
	return nil, nil
}

func (r *memOfferRepo) ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.TicketOffer, error) {
	return nil, nil
}

func (r *memOfferRepo) PendingUnlinkedByEmail(ctx context.Context, email string) ([]models.TicketOffer, error) {
	var out []models.TicketOffer
	for _, offer := range r.offers {
		if offer.RecipientEmail == email && offer.RecipientID == nil && offer.Status == enums.OfferStatusPending {
			out = append(out, *offer)
		}
	}
	return out, nil
}

func (r *memOfferRepo) LinkRecipient(ctx context.Context, offerID, recipientID uuid.UUID) (int64, error) {
	offer, ok := r.offers[offerID]
	if !ok || offer.RecipientID != nil || offer.Status != enums.OfferStatusPending {
		return 0, nil
	}
	offer.RecipientID = &recipientID
	return 1, nil
}

func (r *memOfferRepo) Accept(ctx context.Context, offerID, ticketID uuid.UUID, now time.Time) (int64, error) {
	offer, ok := r.offers[offerID]
	if !ok || offer.Status != enums.OfferStatusPending || !offer.ExpiresAt.After(now) {
		return 0, nil
	}
	offer.Status = enums.OfferStatusAccepted
	offer.TicketID = &ticketID
	offer.ResolvedAt = &now
	return 1, nil
}

func (r *memOfferRepo) MarkDeclined(ctx context.Context, offerID uuid.UUID, at time.Time) (int64, error) {
	return r.resolve(offerID, enums.OfferStatusDeclined, at)
}

func (r *memOfferRepo) MarkCancelled(ctx context.Context, offerID uuid.UUID, at time.Time) (int64, error) {
	return r.resolve(offerID, enums.OfferStatusCancelled, at)
}

func (r *memOfferRepo) resolve(offerID uuid.UUID, status enums.OfferStatus, at time.Time) (int64, error) {
	offer, ok := r.offers[offerID]
	if !ok || offer.Status != enums.OfferStatusPending {
		return 0, nil
	}
	offer.Status = status
	offer.ResolvedAt = &at
	return 1, nil
}

func (r *memOfferRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	var swept int64
	for _, offer := range r.offers {
		if offer.Status == enums.OfferStatusPending && !offer.ExpiresAt.After(now) {
			offer.Status = enums.OfferStatusExpired
			offer.ResolvedAt = &now
			swept++
		}
	}
	return swept, nil
}

// stubTickets satisfies tickets.Service; only the event lookup and the
// in-transaction mint/refund paths matter to the offer flow.
type stubTickets struct {
	events     map[uuid.UUID]*models.Event
	mintInputs []tickets.MintInput
	mintErr    error
	refunded   []uuid.UUID
}

func newStubTickets() *stubTickets {
	return &stubTickets{events: map[uuid.UUID]*models.Event{}}
}

func (s *stubTickets) addEvent(organizerID uuid.UUID) *models.Event {
	event := &models.Event{ID: uuid.New(), OrganizerID: organizerID, Name: "Opening Night", StartsAt: time.Now().UTC().Add(48 * time.Hour)}
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
	return nil, nil
}

func (s *stubTickets) Purchase(ctx context.Context, input tickets.PurchaseInput) (*tickets.PurchaseResult, error) {
	return nil, nil
}

func (s *stubTickets) MintInTx(ctx context.Context, tx *gorm.DB, input tickets.MintInput) (*models.Ticket, error) {
	if s.mintErr != nil {
		return nil, s.mintErr
	}
	s.mintInputs = append(s.mintInputs, input)
	return &models.Ticket{
		ID:             uuid.New(),
		EventID:        input.EventID,
		TicketTypeID:   input.TicketTypeID,
		OwnerID:        input.OwnerID,
		OwnerEmail:     input.OwnerEmail,
		Status:         enums.TicketStatusValid,
		Mode:           input.Mode,
		PaymentMethod:  input.PaymentMethod,
		DeliveryMethod: input.DeliveryMethod,
		PaymentID:      input.PaymentID,
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

type stubNotifications struct {
	sent []notifications.NotifyInput
}

func (s *stubNotifications) Notify(ctx context.Context, input notifications.NotifyInput) {
	s.sent = append(s.sent, input)
}

func (s *stubNotifications) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	return nil, nil
}

func (s *stubNotifications) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	return nil
}

func (s *stubNotifications) MarkAllRead(ctx context.Context, userID uuid.UUID) error { return nil }

type offerFixture struct {
	svc           Service
	repo          *memOfferRepo
	tickets       *stubTickets
	payments      *stubPayments
	referrals     *stubReferrals
	notifications *stubNotifications
	event         *models.Event
	organizerID   uuid.UUID
}

func newOfferFixture(t *testing.T) *offerFixture {
	t.Helper()
	repo := newMemOfferRepo()
	ticketSvc := newStubTickets()
	paymentSvc := newStubPayments(testFeeSchedule(t))
	referralSvc := &stubReferrals{}
	notificationSvc := &stubNotifications{}
	svc, err := NewService(ServiceParams{
		DB:            newTestDBClient(t),
		Repo:          repo,
		Tickets:       ticketSvc,
		Payments:      paymentSvc,
		Referrals:     referralSvc,
		Notifications: notificationSvc,
		Logger:        newTestLogger(),
		Config:        config.OffersConfig{ExpiryDays: 7},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	organizerID := uuid.New()
	return &offerFixture{
		svc:           svc,
		repo:          repo,
		tickets:       ticketSvc,
		payments:      paymentSvc,
		referrals:     referralSvc,
		notifications: notificationSvc,
		event:         ticketSvc.addEvent(organizerID),
		organizerID:   organizerID,
	}
}

func (f *offerFixture) createOffer(t *testing.T, priceCents int, mode enums.TicketMode, recipientID *uuid.UUID) *models.TicketOffer {
	t.Helper()
	offer, err := f.svc.CreateOffer(context.Background(), CreateOfferInput{
		EventID:        f.event.ID,
		OrganizerID:    f.organizerID,
		RecipientEmail: "guest@example.com",
		RecipientID:    recipientID,
		PriceCents:     priceCents,
		Mode:           mode,
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	return offer
}

func TestCreateOfferNormalizesAndNotifies(t *testing.T) {
	fixture := newOfferFixture(t)
	recipient := uuid.New()

	offer, err := fixture.svc.CreateOffer(context.Background(), CreateOfferInput{
		EventID:        fixture.event.ID,
		OrganizerID:    fixture.organizerID,
		RecipientEmail: "  Guest@Example.COM ",
		RecipientID:    &recipient,
		PriceCents:     0,
		Mode:           enums.TicketModePrivate,
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if offer.RecipientEmail != "guest@example.com" {
		t.Fatalf("expected normalized email, got %q", offer.RecipientEmail)
	}
	if offer.Status != enums.OfferStatusPending {
		t.Fatalf("expected pending, got %s", offer.Status)
	}
	remaining := time.Until(offer.ExpiresAt)
	if remaining < 6*24*time.Hour || remaining > 8*24*time.Hour {
		t.Fatalf("expected a seven day window, got %s", remaining)
	}
	if len(fixture.notifications.sent) != 1 || fixture.notifications.sent[0].UserID != recipient {
		t.Fatalf("expected a recipient notification, got %+v", fixture.notifications.sent)
	}
}

func TestCreateOfferUnknownRecipientSkipsNotification(t *testing.T) {
	fixture := newOfferFixture(t)

	fixture.createOffer(t, 0, enums.TicketModePrivate, nil)
	if len(fixture.notifications.sent) != 0 {
		t.Fatalf("no notification without a linked identity, got %+v", fixture.notifications.sent)
	}
}

func TestCreateOfferOrganizerOnly(t *testing.T) {
	fixture := newOfferFixture(t)

	_, err := fixture.svc.CreateOffer(context.Background(), CreateOfferInput{
		EventID:        fixture.event.ID,
		OrganizerID:    uuid.New(),
		RecipientEmail: "guest@example.com",
		Mode:           enums.TicketModePrivate,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestCreateOfferRejectsStandardMode(t *testing.T) {
	fixture := newOfferFixture(t)

	_, err := fixture.svc.CreateOffer(context.Background(), CreateOfferInput{
		EventID:        fixture.event.ID,
		OrganizerID:    fixture.organizerID,
		RecipientEmail: "guest@example.com",
		Mode:           enums.TicketModeStandard,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAcceptOfferFreePrivateMintsImmediately(t *testing.T) {
	fixture := newOfferFixture(t)
	recipient := uuid.New()
	offer := fixture.createOffer(t, 0, enums.TicketModePrivate, &recipient)

	result, err := fixture.svc.AcceptOffer(context.Background(), AcceptOfferInput{
		OfferID:  offer.ID,
		CallerID: recipient,
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.Ticket == nil || result.Payment != nil {
		t.Fatal("free private acceptance mints without a payment")
	}
	if result.Offer.Status != enums.OfferStatusAccepted {
		t.Fatalf("expected accepted, got %s", result.Offer.Status)
	}
	if result.Offer.TicketID == nil || *result.Offer.TicketID != result.Ticket.ID {
		t.Fatal("expected the minted ticket linked on the offer")
	}
	if len(fixture.tickets.mintInputs) != 1 {
		t.Fatalf("expected one mint, got %d", len(fixture.tickets.mintInputs))
	}
	mint := fixture.tickets.mintInputs[0]
	if mint.Mode != enums.TicketModePrivate || mint.PaymentMethod != enums.PaymentMethodComp {
		t.Fatalf("expected a comp private mint, got %+v", mint)
	}
	if len(fixture.payments.chargeInputs) != 0 {
		t.Fatal("no charge may open for a free acceptance")
	}
}

func TestAcceptOfferFreePublicChargesMintFee(t *testing.T) {
	fixture := newOfferFixture(t)
	recipient := uuid.New()
	offer := fixture.createOffer(t, 0, enums.TicketModePublic, &recipient)

	result, err := fixture.svc.AcceptOffer(context.Background(), AcceptOfferInput{
		OfferID:  offer.ID,
		CallerID: recipient,
		SourceID: "cnon:nonce",
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.Ticket != nil || result.Payment == nil {
		t.Fatal("public mint fee defers the mint to confirmation")
	}
	if len(fixture.payments.chargeInputs) != 1 {
		t.Fatalf("expected one charge, got %d", len(fixture.payments.chargeInputs))
	}
	charge := fixture.payments.chargeInputs[0]
	if charge.AmountCents != 200 || charge.PlatformFeeCents != 200 {
		t.Fatalf("expected the flat public mint fee, got %d/%d", charge.AmountCents, charge.PlatformFeeCents)
	}
	mode, _ := payments.MetadataString(charge.Metadata, payments.MetaTicketMode)
	if mode != string(enums.TicketModePublic) {
		t.Fatalf("expected public mode metadata, got %q", mode)
	}
	if fixture.repo.offers[offer.ID].Status != enums.OfferStatusPending {
		t.Fatal("offer stays pending until the processor confirms")
	}
}

func TestAcceptOfferFreePublicSkipFee(t *testing.T) {
	fixture := newOfferFixture(t)
	recipient := uuid.New()
	offer := fixture.createOffer(t, 0, enums.TicketModePublic, &recipient)

	result, err := fixture.svc.AcceptOffer(context.Background(), AcceptOfferInput{
		OfferID:  offer.ID,
		CallerID: recipient,
		SkipFee:  true,
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.Ticket == nil {
		t.Fatal("skipping the fee mints immediately")
	}
	if fixture.tickets.mintInputs[0].Mode != enums.TicketModePrivate {
		t.Fatalf("skipping the fee downgrades to a private mint, got %s", fixture.tickets.mintInputs[0].Mode)
	}
	if len(fixture.payments.chargeInputs) != 0 {
		t.Fatal("no charge may open when the fee is skipped")
	}
}

func TestAcceptOfferPaidWithReferral(t *testing.T) {
	fixture := newOfferFixture(t)
	recipient := uuid.New()
	fixture.referrals.active = &referrals.Context{
		ReferrerID:          uuid.New(),
		ReferredID:          recipient,
		DiscountPercent:     decimal.RequireFromString("0.20"),
		RevenueSharePercent: decimal.RequireFromString("0.50"),
	}
	offer := fixture.createOffer(t, 2000, enums.TicketModePrivate, &recipient)

	result, err := fixture.svc.AcceptOffer(context.Background(), AcceptOfferInput{
		OfferID:  offer.ID,
		CallerID: recipient,
		SourceID: "cnon:nonce",
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.Payment == nil || result.Ticket != nil {
		t.Fatal("paid acceptance defers the mint")
	}
	charge := fixture.payments.chargeInputs[0]
	// 2000 base, 20% discount, 10% fee on the discounted 1600.
	if charge.AmountCents != 1760 {
		t.Fatalf("expected discounted total of 1760, got %d", charge.AmountCents)
	}
	if charge.PlatformFeeCents != 160 {
		t.Fatalf("expected fee of 160, got %d", charge.PlatformFeeCents)
	}
	if charge.PayeeID == nil || *charge.PayeeID != fixture.organizerID {
		t.Fatal("organizer must be the payee")
	}
	offerID, ok := payments.MetadataUUID(charge.Metadata, payments.MetaOfferID)
	if !ok || offerID != offer.ID {
		t.Fatal("expected offer metadata on the charge")
	}
}

func TestAcceptOfferAuthorization(t *testing.T) {
	fixture := newOfferFixture(t)
	recipient := uuid.New()
	addressed := fixture.createOffer(t, 0, enums.TicketModePrivate, &recipient)

	_, err := fixture.svc.AcceptOffer(context.Background(), AcceptOfferInput{
		OfferID:  addressed.ID,
		CallerID: uuid.New(),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	// Unlinked offers authorize by case-insensitive email.
	unlinked := fixture.createOffer(t, 0, enums.TicketModePrivate, nil)
	result, err := fixture.svc.AcceptOffer(context.Background(), AcceptOfferInput{
		OfferID:     unlinked.ID,
		CallerID:    uuid.New(),
		CallerEmail: " GUEST@example.com ",
	})
	if err != nil {
		t.Fatalf("email-addressed accept: %v", err)
	}
	if result.Ticket == nil {
		t.Fatal("expected a minted ticket")
	}
}

func TestAcceptOfferExpired(t *testing.T) {
	fixture := newOfferFixture(t)
	recipient := uuid.New()
	offer := fixture.createOffer(t, 0, enums.TicketModePrivate, &recipient)
	fixture.repo.offers[offer.ID].ExpiresAt = time.Now().UTC().Add(-time.Minute)

	_, err := fixture.svc.AcceptOffer(context.Background(), AcceptOfferInput{
		OfferID:  offer.ID,
		CallerID: recipient,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeExpired {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestAcceptOfferAlreadyResolved(t *testing.T) {
	fixture := newOfferFixture(t)
	recipient := uuid.New()
	offer := fixture.createOffer(t, 0, enums.TicketModePrivate, &recipient)
	if _, err := fixture.svc.DeclineOffer(context.Background(), offer.ID, recipient, ""); err != nil {
		t.Fatalf("decline: %v", err)
	}

	_, err := fixture.svc.AcceptOffer(context.Background(), AcceptOfferInput{
		OfferID:  offer.ID,
		CallerID: recipient,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestDeclineOfferOnce(t *testing.T) {
	fixture := newOfferFixture(t)
	recipient := uuid.New()
	offer := fixture.createOffer(t, 0, enums.TicketModePrivate, &recipient)

	declined, err := fixture.svc.DeclineOffer(context.Background(), offer.ID, recipient, "")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != enums.OfferStatusDeclined {
		t.Fatalf("expected declined, got %s", declined.Status)
	}

	_, err = fixture.svc.DeclineOffer(context.Background(), offer.ID, recipient, "")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvalidState {
		t.Fatalf("second decline must fail, got %v", err)
	}
}

func TestCancelOfferOrganizerOnly(t *testing.T) {
	fixture := newOfferFixture(t)
	offer := fixture.createOffer(t, 0, enums.TicketModePrivate, nil)

	_, err := fixture.svc.CancelOffer(context.Background(), offer.ID, uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	cancelled, err := fixture.svc.CancelOffer(context.Background(), offer.ID, fixture.organizerID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.OfferStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
}

func TestLinkAndNotifyOnSignup(t *testing.T) {
	fixture := newOfferFixture(t)
	known := uuid.New()

	first := fixture.createOffer(t, 0, enums.TicketModePrivate, nil)
	second := fixture.createOffer(t, 1500, enums.TicketModePublic, nil)
	fixture.createOffer(t, 0, enums.TicketModePrivate, &known)
	declined := fixture.createOffer(t, 0, enums.TicketModePrivate, nil)
	fixture.repo.offers[declined.ID].Status = enums.OfferStatusDeclined

	fixture.notifications.sent = nil
	newUser := uuid.New()
	linked, err := fixture.svc.LinkAndNotifyOnSignup(context.Background(), "Guest@Example.com", newUser)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if linked != 2 {
		t.Fatalf("expected two linked offers, got %d", linked)
	}
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		stored := fixture.repo.offers[id]
		if stored.RecipientID == nil || *stored.RecipientID != newUser {
			t.Fatalf("offer %s not linked", id)
		}
	}
	if len(fixture.notifications.sent) != 2 {
		t.Fatalf("expected two notifications, got %d", len(fixture.notifications.sent))
	}
}

func TestSweepExpiredResolvesPendingPastDeadline(t *testing.T) {
	fixture := newOfferFixture(t)
	stale := fixture.createOffer(t, 0, enums.TicketModePrivate, nil)
	fresh := fixture.createOffer(t, 0, enums.TicketModePrivate, nil)
	fixture.repo.offers[stale.ID].ExpiresAt = time.Now().UTC().Add(-time.Hour)

	swept, err := fixture.svc.SweepExpired(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected one swept offer, got %d", swept)
	}
	if fixture.repo.offers[stale.ID].Status != enums.OfferStatusExpired {
		t.Fatal("stale offer must expire")
	}
	if fixture.repo.offers[fresh.ID].Status != enums.OfferStatusPending {
		t.Fatal("fresh offer must stay pending")
	}
}

func TestFavorSettlerMintsOnConfirmation(t *testing.T) {
	fixture := newOfferFixture(t)
	recipient := uuid.New()
	offer := fixture.createOffer(t, 2000, enums.TicketModePublic, &recipient)

	settler := fixture.payments.settlers[enums.PaymentTypeFavorTicket]
	if settler == nil {
		t.Fatal("favor settler must register at construction")
	}
	payment := &models.Payment{
		ID:      uuid.New(),
		Type:    enums.PaymentTypeFavorTicket,
		PayerID: recipient,
		Metadata: types.JSONMap{
			payments.MetaOfferID:    offer.ID.String(),
			payments.MetaTicketMode: string(enums.TicketModePublic),
		},
	}
	if err := settler.OnCompleted(context.Background(), nil, payment); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if len(fixture.tickets.mintInputs) != 1 {
		t.Fatalf("expected one mint, got %d", len(fixture.tickets.mintInputs))
	}
	mint := fixture.tickets.mintInputs[0]
	if mint.Mode != enums.TicketModePublic || mint.PaymentMethod != enums.PaymentMethodCard {
		t.Fatalf("expected a card public mint, got %+v", mint)
	}
	if mint.PaymentID == nil || *mint.PaymentID != payment.ID {
		t.Fatal("minted ticket must reference the payment")
	}
	stored := fixture.repo.offers[offer.ID]
	if stored.Status != enums.OfferStatusAccepted || stored.TicketID == nil {
		t.Fatalf("expected resolved offer, got %+v", stored)
	}
}

func TestFavorSettlerMissingMetadata(t *testing.T) {
	fixture := newOfferFixture(t)
	settler := fixture.payments.settlers[enums.PaymentTypeFavorTicket]

	err := settler.OnCompleted(context.Background(), nil, &models.Payment{ID: uuid.New(), Metadata: types.JSONMap{}})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConsistency {
		t.Fatalf("expected consistency violation, got %v", err)
	}
}

func TestFavorSettlerOfferAlreadyResolved(t *testing.T) {
	fixture := newOfferFixture(t)
	recipient := uuid.New()
	offer := fixture.createOffer(t, 2000, enums.TicketModePrivate, &recipient)
	if _, err := fixture.svc.CancelOffer(context.Background(), offer.ID, fixture.organizerID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	settler := fixture.payments.settlers[enums.PaymentTypeFavorTicket]
	err := settler.OnCompleted(context.Background(), nil, &models.Payment{
		ID:       uuid.New(),
		PayerID:  recipient,
		Metadata: types.JSONMap{payments.MetaOfferID: offer.ID.String()},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConsistency {
		t.Fatalf("expected consistency violation, got %v", err)
	}
}

func TestFavorSettlerRefundCancelsTicket(t *testing.T) {
	fixture := newOfferFixture(t)
	settler := fixture.payments.settlers[enums.PaymentTypeFavorTicket]

	payment := &models.Payment{ID: uuid.New()}
	if err := settler.OnRefunded(context.Background(), nil, payment); err != nil {
		t.Fatalf("refund settle: %v", err)
	}
	if len(fixture.tickets.refunded) != 1 || fixture.tickets.refunded[0] != payment.ID {
		t.Fatalf("expected the payment's ticket refunded, got %v", fixture.tickets.refunded)
	}
}
