package loyalty

import (
	"context"
	"database/sql"
	"errors"

	"storefront-be/internal/db"
)

type Repository interface {
	GetAccount(ctx context.Context, customerID uint) (*Account, error)
	CreateAccount(ctx context.Context, customerID uint, tier Tier) error

	// ApplyBalance writes newBalance and records entry only if the account
	// is still at expectedVersion. It reports false on a version conflict.
	ApplyBalance(
		ctx context.Context,
		customerID uint,
		expectedVersion int64,
		newBalance int64,
		entry *Entry,
	) (bool, error)

	UpdateTier(ctx context.Context, customerID uint, expectedVersion int64, tier Tier) (bool, error)
	ListEntries(ctx context.Context, customerID uint, limit int) ([]Entry, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

func (r *repository) GetAccount(ctx context.Context, customerID uint) (*Account, error) {
	var a Account
	err := r.db.QueryRowContext(ctx, `
		SELECT customer_id, balance, tier, version, updated_at
		FROM loyalty_accounts
		WHERE customer_id = $1
	`, customerID).Scan(&a.CustomerID, &a.Balance, &a.Tier, &a.Version, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) CreateAccount(ctx context.Context, customerID uint, tier Tier) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO loyalty_accounts (customer_id, balance, tier, version)
		VALUES ($1, 0, $2, 0)
		ON CONFLICT (customer_id) DO NOTHING
	`, customerID, tier)
	return err
}

// ApplyBalance runs the conditional update and the audit insert as one
// statement, so both land or neither does even outside a transaction.
func (r *repository) ApplyBalance(
	ctx context.Context,
	customerID uint,
	expectedVersion int64,
	newBalance int64,
	entry *Entry,
) (bool, error) {
	const q = `
		WITH updated AS (
			UPDATE loyalty_accounts
			SET balance = $1, version = version + 1, updated_at = NOW()
			WHERE customer_id = $2 AND version = $3
			RETURNING customer_id, balance
		)
		INSERT INTO loyalty_entries (customer_id, kind, units, balance_after, reference, reason)
		SELECT customer_id, $4, $5, balance, $6, $7 FROM updated
		RETURNING id, balance_after, created_at
	`

	err := r.db.QueryRowContext(ctx, q,
		newBalance,
		customerID,
		expectedVersion,
		entry.Kind,
		entry.Units,
		entry.Reference,
		entry.Reason,
	).Scan(&entry.ID, &entry.BalanceAfter, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	entry.CustomerID = customerID
	return true, nil
}

func (r *repository) UpdateTier(ctx context.Context, customerID uint, expectedVersion int64, tier Tier) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE loyalty_accounts
		SET tier = $1, version = version + 1, updated_at = NOW()
		WHERE customer_id = $2 AND version = $3
	`, tier, customerID, expectedVersion)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *repository) ListEntries(ctx context.Context, customerID uint, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, customer_id, kind, units, balance_after, reference, reason, created_at
		FROM loyalty_entries
		WHERE customer_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.CustomerID, &e.Kind, &e.Units,
			&e.BalanceAfter, &e.Reference, &e.Reason, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
