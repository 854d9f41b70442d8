package loyalty

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront-be/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepository mimics the version-guarded SQL of the real repository.
type memoryRepository struct {
	mu       sync.Mutex
	accounts map[uint]Account
	entries  []Entry

	// conflicts forces the next N ApplyBalance calls to lose the race.
	conflicts int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{accounts: map[uint]Account{}}
}

func (m *memoryRepository) GetAccount(ctx context.Context, customerID uint) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[customerID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &acc, nil
}

func (m *memoryRepository) CreateAccount(ctx context.Context, customerID uint, tier Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[customerID]; !ok {
		m.accounts[customerID] = Account{CustomerID: customerID, Tier: tier}
	}
	return nil
}

func (m *memoryRepository) ApplyBalance(ctx context.Context, customerID uint, expectedVersion int64, newBalance int64, entry *Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return false, nil
	}
	acc, ok := m.accounts[customerID]
	if !ok || acc.Version != expectedVersion {
		return false, nil
	}
	if newBalance < 0 {
		return false, errors.New("check constraint balance >= 0")
	}
	acc.Balance = newBalance
	acc.Version++
	acc.UpdatedAt = time.Now()
	m.accounts[customerID] = acc

	entry.ID = int64(len(m.entries) + 1)
	entry.CustomerID = customerID
	entry.BalanceAfter = newBalance
	m.entries = append(m.entries, *entry)
	return true, nil
}

func (m *memoryRepository) UpdateTier(ctx context.Context, customerID uint, expectedVersion int64, tier Tier) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[customerID]
	if !ok || acc.Version != expectedVersion {
		return false, nil
	}
	acc.Tier = tier
	acc.Version++
	m.accounts[customerID] = acc
	return true, nil
}

func (m *memoryRepository) ListEntries(ctx context.Context, customerID uint, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].CustomerID == customerID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memoryRepository) seed(customerID uint, balance int64, tier Tier) {
	m.accounts[customerID] = Account{CustomerID: customerID, Balance: balance, Tier: tier}
}

func TestLedger_Credit(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesAccountOnFirstCredit", func(t *testing.T) {
		repo := newMemoryRepository()
		l := NewLedger(repo, 3, nil)

		acc, err := l.Credit(ctx, 1, 63, Memo{Reference: "ORD-1", Reason: "cashback"})
		require.NoError(t, err)
		assert.Equal(t, int64(63), acc.Balance)
		assert.Equal(t, TierNone, acc.Tier)

		balance, err := l.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(63), balance)

		history, err := l.History(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, EntryCredit, history[0].Kind)
		assert.Equal(t, "ORD-1", history[0].Reference)
	})

	t.Run("RejectsNegativeUnits", func(t *testing.T) {
		l := NewLedger(newMemoryRepository(), 3, nil)
		_, err := l.Credit(ctx, 1, -5, Memo{})
		assert.ErrorIs(t, err, ErrInvalidUnits)
	})

	t.Run("ZeroIsNoop", func(t *testing.T) {
		repo := newMemoryRepository()
		repo.seed(1, 10, Tier1)
		l := NewLedger(repo, 3, nil)

		acc, err := l.Credit(ctx, 1, 0, Memo{})
		require.NoError(t, err)
		assert.Equal(t, int64(10), acc.Balance)
		assert.Empty(t, repo.entries)
	})
}

func TestLedger_Debit(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo := newMemoryRepository()
		repo.seed(1, 10000, Tier2)
		l := NewLedger(repo, 3, nil)

		acc, err := l.Debit(ctx, 1, 2000, Memo{Reference: "ORD-1"})
		require.NoError(t, err)
		assert.Equal(t, int64(8000), acc.Balance)
	})

	t.Run("InsufficientBalance", func(t *testing.T) {
		repo := newMemoryRepository()
		repo.seed(1, 100, Tier2)
		l := NewLedger(repo, 3, nil)

		_, err := l.Debit(ctx, 1, 101, Memo{})
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		balance, _ := l.GetBalance(ctx, 1)
		assert.Equal(t, int64(100), balance)
	})

	t.Run("UnknownCustomer", func(t *testing.T) {
		l := NewLedger(newMemoryRepository(), 3, nil)
		_, err := l.Debit(ctx, 42, 1, Memo{})
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})
}

func TestLedger_DebitUpTo(t *testing.T) {
	ctx := context.Background()

	repo := newMemoryRepository()
	repo.seed(1, 40, Tier1)
	l := NewLedger(repo, 3, nil)

	taken, acc, err := l.DebitUpTo(ctx, 1, 63, Memo{Reason: "cashback reversal"})
	require.NoError(t, err)
	assert.Equal(t, int64(40), taken)
	assert.Equal(t, int64(0), acc.Balance)

	taken, _, err = l.DebitUpTo(ctx, 1, 10, Memo{})
	require.NoError(t, err)
	assert.Zero(t, taken)
}

func TestLedger_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()

	t.Run("EventuallySucceeds", func(t *testing.T) {
		repo := newMemoryRepository()
		repo.seed(1, 50, Tier1)
		repo.conflicts = 2
		stats := metrics.NewEngineStats()
		l := NewLedger(repo, 3, stats)

		acc, err := l.Credit(ctx, 1, 5, Memo{})
		require.NoError(t, err)
		assert.Equal(t, int64(55), acc.Balance)
		assert.Equal(t, uint64(2), stats.Snapshot().LedgerRetries)
	})

	t.Run("Exhausted", func(t *testing.T) {
		repo := newMemoryRepository()
		repo.seed(1, 50, Tier1)
		repo.conflicts = 10
		l := NewLedger(repo, 3, nil)

		_, err := l.Credit(ctx, 1, 5, Memo{})
		assert.ErrorIs(t, err, ErrConcurrentUpdate)
	})
}

func TestLedger_ConcurrentMutationsKeepBalanceConsistent(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	repo.seed(1, 1000, Tier2)
	l := NewLedger(repo, 1000, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := l.Credit(ctx, 1, 7, Memo{})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := l.Debit(ctx, 1, 3, Memo{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := l.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000+50*7-50*3), balance)
	assert.Len(t, repo.entries, 100)
}

func TestLedger_TierAndAccount(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	l := NewLedger(repo, 3, nil)

	tier, err := l.GetTier(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, TierNone, tier)

	acc, err := l.SetTier(ctx, 9, Tier3)
	require.NoError(t, err)
	assert.Equal(t, Tier3, acc.Tier)

	tier, err = l.GetTier(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, Tier3, tier)

	_, err = l.SetTier(ctx, 9, Tier("gold"))
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" Tier2 ")
	assert.NoError(t, err)
	assert.Equal(t, Tier2, tier)

	tier, err = ParseTier("")
	assert.NoError(t, err)
	assert.Equal(t, TierNone, tier)

	_, err = ParseTier("platinum")
	assert.ErrorIs(t, err, ErrInvalidTier)

	assert.True(t, Tier1.IsMember())
	assert.False(t, TierNone.IsMember())
}
