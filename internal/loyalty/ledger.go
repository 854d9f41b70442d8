package loyalty

import (
	"context"
	"errors"
	"fmt"

	"storefront-be/internal/db"
	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"

	"go.uber.org/zap"
)

const defaultMaxRetries = 5

// Ledger is the only writer of loyalty balances. Every mutation is a
// read-compute-swap on the account version, retried on conflict, so two
// requests for the same customer never interleave and unrelated customers
// never wait on each other.
type Ledger interface {
	Credit(ctx context.Context, customerID uint, units int64, memo Memo) (*Account, error)
	Debit(ctx context.Context, customerID uint, units int64, memo Memo) (*Account, error)
	// DebitUpTo debits min(units, balance) and reports how much was taken.
	DebitUpTo(ctx context.Context, customerID uint, units int64, memo Memo) (int64, *Account, error)
	GetBalance(ctx context.Context, customerID uint) (int64, error)
	GetTier(ctx context.Context, customerID uint) (Tier, error)
	Account(ctx context.Context, customerID uint) (*Account, error)
	SetTier(ctx context.Context, customerID uint, tier Tier) (*Account, error)
	History(ctx context.Context, customerID uint, limit int) ([]Entry, error)
}

// LedgerFactory binds a ledger to a connection or an open transaction.
type LedgerFactory func(q db.DBTX) Ledger

func NewLedgerFactory(maxRetries int, stats *metrics.EngineStats) LedgerFactory {
	return func(q db.DBTX) Ledger {
		return NewLedger(NewRepository(q), maxRetries, stats)
	}
}

type ledger struct {
	repo       Repository
	maxRetries int
	stats      *metrics.EngineStats
}

func NewLedger(repo Repository, maxRetries int, stats *metrics.EngineStats) Ledger {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &ledger{repo: repo, maxRetries: maxRetries, stats: stats}
}

func (l *ledger) Credit(ctx context.Context, customerID uint, units int64, memo Memo) (*Account, error) {
	if units < 0 {
		return nil, ErrInvalidUnits
	}
	acc, _, err := l.mutate(ctx, customerID, EntryCredit, memo, true, func(acc *Account) (int64, error) {
		return units, nil
	})
	return acc, err
}

func (l *ledger) Debit(ctx context.Context, customerID uint, units int64, memo Memo) (*Account, error) {
	if units < 0 {
		return nil, ErrInvalidUnits
	}
	acc, _, err := l.mutate(ctx, customerID, EntryDebit, memo, false, func(acc *Account) (int64, error) {
		if units > acc.Balance {
			return 0, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientBalance, units, acc.Balance)
		}
		return units, nil
	})
	return acc, err
}

func (l *ledger) DebitUpTo(ctx context.Context, customerID uint, units int64, memo Memo) (int64, *Account, error) {
	if units < 0 {
		return 0, nil, ErrInvalidUnits
	}
	acc, applied, err := l.mutate(ctx, customerID, EntryDebit, memo, false, func(acc *Account) (int64, error) {
		return min(units, acc.Balance), nil
	})
	return applied, acc, err
}

func (l *ledger) GetBalance(ctx context.Context, customerID uint) (int64, error) {
	acc, err := l.Account(ctx, customerID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

func (l *ledger) GetTier(ctx context.Context, customerID uint) (Tier, error) {
	acc, err := l.Account(ctx, customerID)
	if err != nil {
		return "", err
	}
	return acc.Tier, nil
}

// Account returns the stored account, or an empty non-member account for
// customers that never earned anything.
func (l *ledger) Account(ctx context.Context, customerID uint) (*Account, error) {
	acc, err := l.repo.GetAccount(ctx, customerID)
	if errors.Is(err, ErrAccountNotFound) {
		return &Account{CustomerID: customerID, Tier: TierNone}, nil
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (l *ledger) SetTier(ctx context.Context, customerID uint, tier Tier) (*Account, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}

	for attempt := 0; attempt < l.maxRetries; attempt++ {
		acc, err := l.load(ctx, customerID, true)
		if err != nil {
			return nil, err
		}
		if acc.Tier == tier {
			return acc, nil
		}
		ok, err := l.repo.UpdateTier(ctx, customerID, acc.Version, tier)
		if err != nil {
			return nil, err
		}
		if ok {
			acc.Tier = tier
			acc.Version++
			return acc, nil
		}
		l.stats.Inc(metrics.LedgerRetries)
	}
	return nil, ErrConcurrentUpdate
}

func (l *ledger) History(ctx context.Context, customerID uint, limit int) ([]Entry, error) {
	return l.repo.ListEntries(ctx, customerID, limit)
}

// mutate loads the account, asks compute for the unsigned amount to move
// and swaps the new balance in if the version is unchanged.
func (l *ledger) mutate(
	ctx context.Context,
	customerID uint,
	kind EntryKind,
	memo Memo,
	createIfMissing bool,
	compute func(acc *Account) (int64, error),
) (*Account, int64, error) {
	log := logger.ForComponent(ctx, "ledger", string(kind)).With(
		logger.CustomerID(customerID),
		zap.String("reference", memo.Reference),
	)

	for attempt := 0; attempt < l.maxRetries; attempt++ {
		acc, err := l.load(ctx, customerID, createIfMissing)
		if err != nil {
			return nil, 0, err
		}

		units, err := compute(acc)
		if err != nil {
			log.Warn("ledger mutation rejected", zap.Error(err))
			return nil, 0, err
		}
		if units == 0 {
			return acc, 0, nil
		}

		newBalance := acc.Balance + units
		if kind == EntryDebit {
			newBalance = acc.Balance - units
		}
		if newBalance < 0 {
			return nil, 0, ErrInsufficientBalance
		}

		entry := &Entry{
			Kind:      kind,
			Units:     units,
			Reference: memo.Reference,
			Reason:    memo.Reason,
		}
		ok, err := l.repo.ApplyBalance(ctx, customerID, acc.Version, newBalance, entry)
		if err != nil {
			log.Error("failed to apply ledger mutation", zap.Error(err))
			return nil, 0, err
		}
		if !ok {
			l.stats.Inc(metrics.LedgerRetries)
			log.Debug("ledger version conflict, retrying", zap.Int("attempt", attempt+1))
			continue
		}

		acc.Balance = newBalance
		acc.Version++
		log.Info("ledger mutation applied",
			zap.Int64("units", units),
			zap.Int64("balance", newBalance),
		)
		return acc, units, nil
	}

	log.Error("ledger retries exhausted", zap.Int("max_retries", l.maxRetries))
	return nil, 0, ErrConcurrentUpdate
}

func (l *ledger) load(ctx context.Context, customerID uint, createIfMissing bool) (*Account, error) {
	acc, err := l.repo.GetAccount(ctx, customerID)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}
	if !createIfMissing {
		return &Account{CustomerID: customerID, Tier: TierNone}, nil
	}

	if err := l.repo.CreateAccount(ctx, customerID, TierNone); err != nil {
		return nil, err
	}
	return l.repo.GetAccount(ctx, customerID)
}
