package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/washpay/internal/handlers/middleware"
	"github.com/nkiryanov/washpay/internal/logger"
	"github.com/nkiryanov/washpay/internal/models"
	"github.com/nkiryanov/washpay/internal/repository"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RateLimit struct {
	Limit  int64
	Period time.Duration
}

func NewRouter(
	withdrawalService withdrawalService,
	receiver webhookReceiver,
	tokenParser tokenParser,
	rateLimit RateLimit,
	logger logger.Logger,
) http.Handler {
	// Limiter runs after auth so washers are limited by identity, not address
	washerOnly := func(h http.Handler) http.Handler {
		return chain(h,
			middleware.AuthMiddleware(tokenParser, models.RoleWasher),
			middleware.RateLimitMiddleware(rateLimit.Limit, rateLimit.Period),
		)
	}
	adminOnly := middleware.AuthMiddleware(tokenParser, models.RoleAdmin)

	apiwasher := http.NewServeMux()
	apiwasher.Handle("POST /withdrawals", washerOnly(handleCreateWithdrawal(withdrawalService, logger)))
	apiwasher.Handle("GET /withdrawals", washerOnly(handleListOwnWithdrawals(withdrawalService, logger)))
	apiwasher.Handle("POST /withdrawals/{id}/cancel", washerOnly(handleCancelWithdrawal(withdrawalService, logger)))

	apiadmin := http.NewServeMux()
	apiadmin.Handle("GET /withdrawals", adminOnly(handleListWithdrawals(withdrawalService, logger)))
	apiadmin.Handle("GET /withdrawals/{id}", adminOnly(handleGetWithdrawal(withdrawalService, logger)))
	apiadmin.Handle("POST /withdrawals/{id}/approve", adminOnly(handleApproveWithdrawal(withdrawalService, logger)))
	apiadmin.Handle("POST /withdrawals/{id}/reject", adminOnly(handleRejectWithdrawal(withdrawalService, logger)))
	apiadmin.Handle("POST /withdrawals/{id}/process", adminOnly(handleProcessWithdrawal(withdrawalService, logger)))
	apiadmin.Handle("GET /settings/minimum-payout", adminOnly(handleGetMinimumPayout(withdrawalService, logger)))
	apiadmin.Handle("PUT /settings/minimum-payout", adminOnly(handleSetMinimumPayout(withdrawalService, logger)))
	apiadmin.Handle("POST /washers/{id}/destination/sync", adminOnly(handleSyncDestination(receiver, logger)))

	root := http.NewServeMux()
	root.Handle("/api/washer/", http.StripPrefix("/api/washer", apiwasher))
	root.Handle("/api/admin/", http.StripPrefix("/api/admin", apiadmin))
	root.Handle("POST /api/webhooks/settlement", handleSettlementWebhook(receiver, logger))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type tokenParser interface {
	ParseAccess(access string) (models.Identity, error)
}

type withdrawalService interface {
	Create(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency string) (models.Withdrawal, error)
	Cancel(ctx context.Context, userID uuid.UUID, id uuid.UUID) (models.Withdrawal, error)
	ListOwn(ctx context.Context, userID uuid.UUID, opts repository.ListWithdrawalsOpts) ([]models.Withdrawal, error)

	Get(ctx context.Context, id uuid.UUID) (models.Withdrawal, error)
	List(ctx context.Context, opts repository.ListWithdrawalsOpts) ([]models.Withdrawal, error)
	Approve(ctx context.Context, adminID uuid.UUID, id uuid.UUID, note string) (models.Withdrawal, error)
	Reject(ctx context.Context, adminID uuid.UUID, id uuid.UUID, reason string) (models.Withdrawal, error)

	// Has to return the withdrawal together with apperrors.ErrSettlementPending
	// when the processor outcome is unknown
	Process(ctx context.Context, adminID uuid.UUID, id uuid.UUID) (models.Withdrawal, error)

	MinimumPayout(ctx context.Context) (models.PayoutSettings, error)
	SetMinimumPayout(ctx context.Context, adminID uuid.UUID, amount decimal.Decimal) (models.PayoutSettings, error)
}

type webhookReceiver interface {
	// Verify signature over raw body and apply the event. Returns outcome label
	HandleWebhook(ctx context.Context, signature string, body []byte) (string, error)

	SyncDestination(ctx context.Context, washerID uuid.UUID) (models.PayoutDestination, error)
}
