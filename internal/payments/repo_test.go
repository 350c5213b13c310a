package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	payments := `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  payer_id TEXT NOT NULL,
  payee_id TEXT,
  amount_cents INTEGER NOT NULL,
  platform_fee_cents INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  processor_intent_id TEXT,
  processor_charge_ref TEXT,
  metadata TEXT,
  failed_at DATETIME,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(payments).Error)
	require.NoError(t, db.Exec(`DELETE FROM payments`).Error)
	return db
}

func seedPayment(t *testing.T, db *gorm.DB, status enums.PaymentStatus) *models.Payment {
	t.Helper()

	payment := &models.Payment{
		ID:          uuid.New(),
		Type:        enums.PaymentTypePrimaryPurchase,
		PayerID:     uuid.New(),
		AmountCents: 5000,
		Status:      status,
	}
	require.NoError(t, db.Create(payment).Error)
	return payment
}

func TestPaymentRepoAttachIntentOnlyFromPending(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	pending := seedPayment(t, db, enums.PaymentStatusPending)
	affected, err := repo.AttachIntent(ctx, pending.ID, "intent-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	stored, err := repo.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, enums.PaymentStatusProcessing, stored.Status)
	require.NotNil(t, stored.ProcessorIntentID)
	assert.Equal(t, "intent-a", *stored.ProcessorIntentID)

	// Already processing: the guard refuses a second attach.
	affected, err = repo.AttachIntent(ctx, pending.ID, "intent-b")
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestPaymentRepoMarkCompletedGuards(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	processing := seedPayment(t, db, enums.PaymentStatusProcessing)
	affected, err := repo.MarkCompleted(ctx, processing.ID, "charge-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	stored, err := repo.FindByID(ctx, processing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.ProcessorChargeRef)
	assert.Equal(t, "charge-1", *stored.ProcessorChargeRef)

	// Terminal rows do not transition again.
	affected, err = repo.MarkCompleted(ctx, processing.ID, "charge-2")
	require.NoError(t, err)
	assert.Zero(t, affected)

	failed := seedPayment(t, db, enums.PaymentStatusFailed)
	affected, err = repo.MarkCompleted(ctx, failed.ID, "charge-3")
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestPaymentRepoMarkFailedSetsTimestamp(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	pending := seedPayment(t, db, enums.PaymentStatusPending)
	affected, err := repo.MarkFailed(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	stored, err := repo.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, stored.Status)
	assert.NotNil(t, stored.FailedAt)

	affected, err = repo.MarkFailed(ctx, pending.ID)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestPaymentRepoMarkRefundedRequiresCompleted(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	completed := seedPayment(t, db, enums.PaymentStatusCompleted)
	affected, err := repo.MarkRefunded(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	stored, err := repo.FindByID(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, stored.Status)
	assert.NotNil(t, stored.RefundedAt)

	processing := seedPayment(t, db, enums.PaymentStatusProcessing)
	affected, err = repo.MarkRefunded(ctx, processing.ID)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestPaymentRepoFindByIntentID(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	payment := seedPayment(t, db, enums.PaymentStatusPending)
	_, err := repo.AttachIntent(ctx, payment.ID, "intent-z")
	require.NoError(t, err)

	found, err := repo.FindByIntentID(ctx, "intent-z")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, payment.ID, found.ID)

	missing, err := repo.FindByIntentID(ctx, "no-such-intent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPaymentRepoListByPayerHonorsLimit(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	payer := uuid.New()
	for i := 0; i < 3; i++ {
		payment := &models.Payment{
			ID:          uuid.New(),
			Type:        enums.PaymentTypePrimaryPurchase,
			PayerID:     payer,
			AmountCents: 1000 * (i + 1),
			Status:      enums.PaymentStatusCompleted,
		}
		require.NoError(t, db.Create(payment).Error)
	}
	seedPayment(t, db, enums.PaymentStatusCompleted)

	listed, err := repo.ListByPayer(ctx, payer, 2)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	all, err := repo.ListByPayer(ctx, payer, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
