package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
	"github.com/stagedoor/stagedoor-backend/pkg/logger"
	pkgredis "github.com/stagedoor/stagedoor-backend/pkg/redis"
)

const (
	balanceCacheScope = "seller_balance"
	balanceCacheTTL   = time.Minute
)

// BalanceCache is the slice of the redis client the balance view uses.
type BalanceCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(scope, id string) string
}

// SellerBalanceView is the cached processor sub-balance shown to a seller.
// The processor stays authoritative; the view is a short-lived snapshot.
type SellerBalanceView struct {
	SellerID       uuid.UUID `json:"seller_id"`
	AvailableCents int       `json:"available_cents"`
	PendingCents   int       `json:"pending_cents"`
	PayoutsEnabled bool      `json:"payouts_enabled"`
	FetchedAt      time.Time `json:"fetched_at"`
	Cached         bool      `json:"-"`
}

// WithdrawResult reports the outcome of a seller payout request.
type WithdrawResult struct {
	Status      WithdrawStatus
	PayoutRef   string
	AmountCents int
}

// Balances serves the seller money surface: the cached balance view and the
// withdraw pass-through.
type Balances interface {
	SellerBalance(ctx context.Context, sellerID uuid.UUID) (*SellerBalanceView, error)
	Withdraw(ctx context.Context, sellerID uuid.UUID, amountCents *int) (*WithdrawResult, error)
}

type balances struct {
	processor Processor
	cache     BalanceCache
	logg      *logger.Logger
}

// BalancesParams configure the seller balance service. Cache is optional;
// without it every read goes to the processor.
type BalancesParams struct {
	Processor Processor
	Cache     BalanceCache
	Logger    *logger.Logger
}

// NewBalances wires the seller balance service.
func NewBalances(params BalancesParams) (Balances, error) {
	if params.Processor == nil {
		return nil, fmt.Errorf("balances processor required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("balances logger required")
	}
	return &balances{
		processor: params.Processor,
		cache:     params.Cache,
		logg:      params.Logger,
	}, nil
}

// SellerBalance serves the cached snapshot when one is fresh, otherwise
// fetches from the processor and re-primes the cache. A cache outage only
// costs the shortcut, never the read.
func (b *balances) SellerBalance(ctx context.Context, sellerID uuid.UUID) (*SellerBalanceView, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}

	var key string
	if b.cache != nil {
		key = b.cache.CacheKey(balanceCacheScope, sellerID.String())
		if cached := b.cachedView(ctx, key); cached != nil {
			return cached, nil
		}
	}

	balance, err := b.processor.SellerBalance(ctx, sellerID.String())
	if err != nil {
		return nil, err
	}
	view := &SellerBalanceView{
		SellerID:       sellerID,
		AvailableCents: balance.AvailableCents,
		PendingCents:   balance.PendingCents,
		PayoutsEnabled: balance.PayoutsEnabled,
		FetchedAt:      time.Now().UTC(),
	}

	if b.cache != nil {
		payload, err := json.Marshal(view)
		if err == nil {
			if setErr := b.cache.Set(ctx, key, string(payload), balanceCacheTTL); setErr != nil {
				b.logg.Error(ctx, "caching seller balance", setErr)
			}
		}
	}
	return view, nil
}

func (b *balances) cachedView(ctx context.Context, key string) *SellerBalanceView {
	stored, err := b.cache.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNil(err) {
			b.logg.Error(ctx, "reading cached seller balance", err)
		}
		return nil
	}
	var view SellerBalanceView
	if err := json.Unmarshal([]byte(stored), &view); err != nil {
		b.logg.Error(ctx, "decoding cached seller balance", err)
		return nil
	}
	view.Cached = true
	return &view
}

// Withdraw passes the payout request through to the processor. An
// onboarding-required outcome is a result, not an error: the caller tells
// the seller to finish onboarding. A scheduled payout invalidates the
// cached balance so the next read reflects it.
func (b *balances) Withdraw(ctx context.Context, sellerID uuid.UUID, amountCents *int) (*WithdrawResult, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	if amountCents != nil && *amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdraw amount must be positive when set")
	}

	outcome, err := b.processor.Withdraw(ctx, WithdrawRequest{
		SellerRef:   sellerID.String(),
		AmountCents: amountCents,
	})
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		return nil, pkgerrors.New(pkgerrors.CodeProcessor, "processor returned no withdraw outcome")
	}

	if outcome.Status == WithdrawScheduled && b.cache != nil {
		key := b.cache.CacheKey(balanceCacheScope, sellerID.String())
		if err := b.cache.Del(ctx, key); err != nil {
			b.logg.Error(ctx, "invalidating cached seller balance", err)
		}
	}
	return &WithdrawResult{
		Status:      outcome.Status,
		PayoutRef:   outcome.PayoutRef,
		AmountCents: outcome.AmountCents,
	}, nil
}
