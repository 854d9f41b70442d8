package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-be/internal/db"
	"storefront-be/internal/logger"
	"storefront-be/internal/loyalty"
	"storefront-be/internal/metrics"
	"storefront-be/internal/pricing"
	"storefront-be/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Quoter interface {
	Quote(ctx context.Context, req pricing.QuoteRequest) (*pricing.Quote, error)
}

type Service interface {
	SaveCart(ctx context.Context, req pricing.QuoteRequest) (*Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	GetOrderByReference(ctx context.Context, reference string) (*Order, error)
	GetOrderDetail(ctx context.Context, customerID uint, id string, isAdmin bool) (*Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]*Order, int64, error)

	Transition(ctx context.Context, req TransitionRequest) (*Order, error)
	UpdateDelivery(ctx context.Context, req DeliveryRequest) (*Order, error)
	SetAdminRemarks(ctx context.Context, id string, remarks string) (*Order, error)
	DeleteOrder(ctx context.Context, id string) error

	MarkAsPaid(ctx context.Context, reference string, payment PaymentDetails) (*Order, error)
	MarkAsFailed(ctx context.Context, reference string) (*Order, error)
}

type service struct {
	repo    Repository
	tx      db.TxRunner
	repos   RepositoryFactory
	ledgers loyalty.LedgerFactory
	quoter  Quoter
	stats   *metrics.EngineStats
	now     func() time.Time
}

// NewService wires the lifecycle. repo serves plain reads; every write runs
// in a transaction with a repository and ledger bound to it, so order and
// loyalty changes commit together or not at all.
func NewService(
	repo Repository,
	tx db.TxRunner,
	repos RepositoryFactory,
	ledgers loyalty.LedgerFactory,
	quoter Quoter,
	stats *metrics.EngineStats,
) Service {
	return &service{
		repo:    repo,
		tx:      tx,
		repos:   repos,
		ledgers: ledgers,
		quoter:  quoter,
		stats:   stats,
		now:     time.Now,
	}
}

// SaveCart prices the request and stores it as the customer's single open
// cart, creating it on first use.
func (s *service) SaveCart(ctx context.Context, req pricing.QuoteRequest) (*Order, error) {
	log := logger.ForComponent(ctx, "service", "SaveCart").With(logger.CustomerID(req.CustomerID))

	quote, err := s.quoter.Quote(ctx, req)
	if err != nil {
		return nil, err
	}
	items := itemsFromQuote(quote)

	var saved *Order
	err = s.tx.RunInTx(ctx, func(tx db.DBTX) error {
		repo := s.repos(tx)

		cart, err := repo.GetCartByCustomer(ctx, req.CustomerID)
		if errors.Is(err, ErrOrderNotFound) {
			cart = &Order{
				ID:         uuid.NewString(),
				Reference:  utils.GenerateOrderReference(),
				CustomerID: req.CustomerID,
				Status:     StatusInCart,
				Items:      items,
				Breakdown:  quote.Breakdown,
				Version:    1,
			}
			if err := repo.Create(ctx, cart); err != nil {
				if errors.Is(err, ErrCartExists) {
					return ErrStaleState
				}
				return err
			}
			saved = cart
			return nil
		}
		if err != nil {
			return err
		}

		cart.Items = items
		cart.Breakdown = quote.Breakdown
		ok, err := repo.ReplaceCart(ctx, cart, cart.Version)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStaleState
		}
		saved = cart
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStaleState) {
			s.stats.Inc(metrics.StaleRejections)
		}
		log.Error("failed to save cart", zap.Error(err))
		return nil, err
	}

	log.Info("cart saved",
		logger.OrderID(saved.ID),
		zap.Int64("version", saved.Version),
		zap.String("total", saved.Breakdown.Total.StringFixed(2)),
	)
	return saved, nil
}

func itemsFromQuote(q *pricing.Quote) []Item {
	items := make([]Item, 0, len(q.Lines))
	for _, l := range q.Lines {
		items = append(items, Item{
			ProductID:       l.ProductID,
			Name:            l.Name,
			UnitPrice:       l.UnitPrice,
			MemberUnitPrice: l.MemberUnitPrice,
			Quantity:        l.Quantity,
		})
	}
	return items
}

func (s *service) GetOrder(ctx context.Context, id string) (*Order, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetOrderByReference(ctx context.Context, reference string) (*Order, error) {
	return s.repo.GetByReference(ctx, reference)
}

func (s *service) GetOrderDetail(ctx context.Context, customerID uint, id string, isAdmin bool) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && o.CustomerID != customerID {
		return nil, ErrUnauthorized
	}
	return o, nil
}

func (s *service) ListOrders(ctx context.Context, filter ListFilter) ([]*Order, int64, error) {
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, st)
		}
	}
	orders, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Transition applies one edge of the status table. Entering paid settles
// the loyalty effects of the priced breakdown; entering a refund state
// reverses them in proportion to the refunded fraction. The order write and
// every ledger mutation share one transaction.
func (s *service) Transition(ctx context.Context, req TransitionRequest) (*Order, error) {
	log := logger.ForComponent(ctx, "service", "Transition").With(
		logger.OrderID(req.OrderID),
		zap.String("target", string(req.Target)),
		zap.String("actor", utils.Actor(ctx)),
	)

	if !req.Target.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Target)
	}

	var result *Order
	err := s.tx.RunInTx(ctx, func(tx db.DBTX) error {
		repo := s.repos(tx)
		ledger := s.ledgers(tx)

		o, err := repo.GetByID(ctx, req.OrderID)
		if err != nil {
			return err
		}

		expectedStatus := req.ExpectedStatus
		if expectedStatus == "" {
			expectedStatus = o.Status
		}
		expectedVersion := req.ExpectedVersion
		if expectedVersion == 0 {
			expectedVersion = o.Version
		}
		if o.Status != expectedStatus || o.Version != expectedVersion {
			return fmt.Errorf("%w: expected %s@%d but was %s@%d",
				ErrStaleState, expectedStatus, expectedVersion, o.Status, o.Version)
		}
		if !canTransition(o.Status, req.Target) {
			return &InvalidTransitionError{From: o.Status, To: req.Target}
		}

		if err := s.applyEffects(ctx, ledger, o, req); err != nil {
			return err
		}

		from := o.Status
		o.Status = req.Target
		ok, err := repo.UpdateStatus(ctx, o, from, expectedVersion)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: order %s moved concurrently", ErrStaleState, o.ID)
		}
		result = o
		return nil
	})
	if err != nil {
		s.recordFailure(log, err)
		return nil, err
	}

	s.stats.Inc(metrics.TransitionsApplied)
	log.Info("order transitioned",
		logger.CustomerID(result.CustomerID),
		zap.Int64("version", result.Version),
	)
	return result, nil
}

func (s *service) recordFailure(log *zap.Logger, err error) {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		s.stats.Inc(metrics.InvalidTransitions)
		log.Warn("transition rejected", zap.Error(err))
	case errors.Is(err, ErrStaleState):
		s.stats.Inc(metrics.StaleRejections)
		log.Warn("transition lost a race", zap.Error(err))
	case errors.Is(err, ErrSettlementFailed):
		s.stats.Inc(metrics.SettlementFailures)
		log.Warn("settlement failed", zap.Error(err))
	case errors.Is(err, ErrPaymentDetailsRequired), errors.Is(err, ErrRefundFractionInvalid), errors.Is(err, ErrOrderNotFound):
		log.Warn("transition rejected", zap.Error(err))
	default:
		log.Error("transition failed", zap.Error(err))
	}
}

func (s *service) applyEffects(ctx context.Context, ledger loyalty.Ledger, o *Order, req TransitionRequest) error {
	switch req.Target {
	case StatusPaid:
		return s.settle(ctx, ledger, o, req.Payment)
	case StatusFullRefund:
		reason := ""
		if req.Refund != nil {
			reason = req.Refund.Reason
		}
		return s.reverse(ctx, ledger, o, decimal.NewFromInt(1), reason)
	case StatusPartialRefund:
		if req.Refund == nil {
			return ErrRefundFractionInvalid
		}
		f := req.Refund.Fraction
		if !f.IsPositive() || f.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: got %s", ErrRefundFractionInvalid, f.String())
		}
		return s.reverse(ctx, ledger, o, f, req.Refund.Reason)
	}
	return nil
}

// settle debits the redeemed units and credits the earned cashback.
func (s *service) settle(ctx context.Context, ledger loyalty.Ledger, o *Order, payment *PaymentDetails) error {
	if payment == nil || payment.Mode == "" {
		return ErrPaymentDetailsRequired
	}
	p := *payment
	if p.Date.IsZero() {
		p.Date = s.now()
	}

	b := o.Breakdown
	if b.LoyaltyRedemptionUnits > 0 {
		_, err := ledger.Debit(ctx, o.CustomerID, b.LoyaltyRedemptionUnits, loyalty.Memo{
			Reference: o.Reference,
			Reason:    "order redemption",
		})
		if err != nil {
			if errors.Is(err, loyalty.ErrInsufficientBalance) {
				return fmt.Errorf("%w: %w", ErrSettlementFailed, err)
			}
			return err
		}
	}
	if b.LoyaltyCashbackEarned > 0 {
		_, err := ledger.Credit(ctx, o.CustomerID, b.LoyaltyCashbackEarned, loyalty.Memo{
			Reference: o.Reference,
			Reason:    "order cashback",
		})
		if err != nil {
			return err
		}
	}

	received := DeliveryOrderReceived
	o.DeliveryStatus = &received
	o.Payment = &p
	return nil
}

// reverse re-credits redeemed units before clawing back cashback, so a
// customer who spent the cashback still gets the redemption back. The
// clawback is floored at the balance.
func (s *service) reverse(ctx context.Context, ledger loyalty.Ledger, o *Order, fraction decimal.Decimal, reason string) error {
	b := o.Breakdown
	credit := scaleUnits(b.LoyaltyRedemptionUnits, fraction)
	clawback := scaleUnits(b.LoyaltyCashbackEarned, fraction)

	if credit > 0 {
		_, err := ledger.Credit(ctx, o.CustomerID, credit, loyalty.Memo{
			Reference: o.Reference,
			Reason:    "refund redemption",
		})
		if err != nil {
			return err
		}
	}

	var taken int64
	if clawback > 0 {
		var err error
		taken, _, err = ledger.DebitUpTo(ctx, o.CustomerID, clawback, loyalty.Memo{
			Reference: o.Reference,
			Reason:    "refund cashback",
		})
		if err != nil {
			return err
		}
		if taken < clawback {
			logger.ForComponent(ctx, "service", "reverse").Warn("cashback clawback floored at balance",
				logger.OrderID(o.ID),
				zap.Int64("wanted", clawback),
				zap.Int64("taken", taken),
			)
		}
	}

	o.Refund = &RefundDetails{
		Reason:          reason,
		Fraction:        fraction,
		Amount:          b.Total.Mul(fraction).Round(2),
		CreditedUnits:   credit,
		ClawedBackUnits: taken,
		RefundedAt:      s.now(),
	}
	return nil
}

func scaleUnits(units int64, fraction decimal.Decimal) int64 {
	return decimal.NewFromInt(units).Mul(fraction).Round(0).IntPart()
}

func (s *service) UpdateDelivery(ctx context.Context, req DeliveryRequest) (*Order, error) {
	log := logger.ForComponent(ctx, "service", "UpdateDelivery").With(
		logger.OrderID(req.OrderID),
		zap.String("target", string(req.Target)),
	)

	o, err := s.repo.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	expectedVersion := req.ExpectedVersion
	if expectedVersion == 0 {
		expectedVersion = o.Version
	}
	if o.Version != expectedVersion {
		s.stats.Inc(metrics.StaleRejections)
		return nil, fmt.Errorf("%w: expected version %d but was %d", ErrStaleState, expectedVersion, o.Version)
	}
	if o.Status != StatusPaid || o.DeliveryStatus == nil {
		s.stats.Inc(metrics.InvalidTransitions)
		return nil, fmt.Errorf("%w: delivery updates need a paid order, order is %s", ErrInvalidTransition, o.Status)
	}
	if !canAdvanceDelivery(*o.DeliveryStatus, req.Target) {
		s.stats.Inc(metrics.InvalidTransitions)
		log.Warn("delivery update rejected", zap.String("from", string(*o.DeliveryStatus)))
		return nil, fmt.Errorf("%w: delivery %s -> %s", ErrInvalidTransition, *o.DeliveryStatus, req.Target)
	}

	target := req.Target
	o.DeliveryStatus = &target
	ok, err := s.repo.UpdateDelivery(ctx, o, expectedVersion)
	if err != nil {
		log.Error("failed to update delivery", zap.Error(err))
		return nil, err
	}
	if !ok {
		s.stats.Inc(metrics.StaleRejections)
		return nil, fmt.Errorf("%w: order %s moved concurrently", ErrStaleState, o.ID)
	}

	s.stats.Inc(metrics.DeliveryUpdates)
	log.Info("delivery updated", zap.Int64("version", o.Version))
	return o, nil
}

func (s *service) SetAdminRemarks(ctx context.Context, id string, remarks string) (*Order, error) {
	if err := s.repo.UpdateRemarks(ctx, id, remarks); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) DeleteOrder(ctx context.Context, id string) error {
	log := logger.ForComponent(ctx, "service", "DeleteOrder").With(logger.OrderID(id))

	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if o.Status == StatusPaid {
		return ErrOrderNotDeletable
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		log.Error("failed to delete order", zap.Error(err))
		return err
	}
	log.Info("order deleted", zap.String("status", string(o.Status)))
	return nil
}

// MarkAsPaid is the payment callback path. A repeated callback for the same
// external payment is a no-op.
func (s *service) MarkAsPaid(ctx context.Context, reference string, payment PaymentDetails) (*Order, error) {
	o, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusPaid && o.Payment != nil && o.Payment.ExternalPaymentID == payment.ExternalPaymentID {
		logger.ForComponent(ctx, "service", "MarkAsPaid").Info("order already paid", zap.String("reference", reference))
		return o, nil
	}
	return s.Transition(ctx, TransitionRequest{
		OrderID:         o.ID,
		ExpectedStatus:  o.Status,
		ExpectedVersion: o.Version,
		Target:          StatusPaid,
		Payment:         &payment,
	})
}

func (s *service) MarkAsFailed(ctx context.Context, reference string) (*Order, error) {
	o, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusFailed {
		logger.ForComponent(ctx, "service", "MarkAsFailed").Info("order already failed", zap.String("reference", reference))
		return o, nil
	}
	return s.Transition(ctx, TransitionRequest{
		OrderID:         o.ID,
		ExpectedStatus:  o.Status,
		ExpectedVersion: o.Version,
		Target:          StatusFailed,
	})
}
