package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"storefront-be/internal/db"
	"storefront-be/internal/logger"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

// ErrCartExists is returned by Create when the customer already has an
// open cart.
var ErrCartExists = errors.New("customer already has an open cart")

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByReference(ctx context.Context, reference string) (*Order, error)
	GetCartByCustomer(ctx context.Context, customerID uint) (*Order, error)

	// The conditional writes below report false when the order is no longer
	// at the expected version (or status).
	ReplaceCart(ctx context.Context, o *Order, expectedVersion int64) (bool, error)
	UpdateStatus(ctx context.Context, o *Order, expectedStatus Status, expectedVersion int64) (bool, error)
	UpdateDelivery(ctx context.Context, o *Order, expectedVersion int64) (bool, error)

	UpdateRemarks(ctx context.Context, id string, remarks string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]*Order, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)
}

// RepositoryFactory binds a repository to a connection or an open transaction.
type RepositoryFactory func(q db.DBTX) Repository

type repository struct {
	db db.DBTX
}

func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

const selectOrder = `
	SELECT id, reference, customer_id, status, delivery_status, breakdown,
		payment, refund, admin_remarks, version, created_at, updated_at
	FROM orders
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o                          Order
		delivery, remarks          sql.NullString
		breakdown, payment, refund []byte
	)
	err := row.Scan(
		&o.ID, &o.Reference, &o.CustomerID, &o.Status, &delivery, &breakdown,
		&payment, &refund, &remarks, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if delivery.Valid {
		d := DeliveryStatus(delivery.String)
		o.DeliveryStatus = &d
	}
	if remarks.Valid {
		o.AdminRemarks = &remarks.String
	}
	if err := json.Unmarshal(breakdown, &o.Breakdown); err != nil {
		return nil, fmt.Errorf("decode breakdown: %w", err)
	}
	if len(payment) > 0 {
		o.Payment = &PaymentDetails{}
		if err := json.Unmarshal(payment, o.Payment); err != nil {
			return nil, fmt.Errorf("decode payment: %w", err)
		}
	}
	if len(refund) > 0 {
		o.Refund = &RefundDetails{}
		if err := json.Unmarshal(refund, o.Refund); err != nil {
			return nil, fmt.Errorf("decode refund: %w", err)
		}
	}
	return &o, nil
}

// nullJSON encodes v, or returns nil for a nil pointer so the column is NULL.
func nullJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (r *repository) Create(ctx context.Context, o *Order) error {
	log := logger.ForComponent(ctx, "repository", "Create").With(logger.OrderID(o.ID))

	breakdown, err := json.Marshal(o.Breakdown)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO orders (id, reference, customer_id, status, breakdown, version)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, o.ID, o.Reference, o.CustomerID, o.Status, breakdown, o.Version).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			log.Warn("open cart already exists", zap.String("constraint", pqErr.Constraint))
			return ErrCartExists
		}
		log.Error("failed to insert order", zap.Error(err))
		return err
	}

	return r.insertItems(ctx, o)
}

func (r *repository) insertItems(ctx context.Context, o *Order) error {
	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID

		var member decimal.NullDecimal
		if item.MemberUnitPrice != nil {
			member = decimal.NewNullDecimal(*item.MemberUnitPrice)
		}
		err := r.db.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, name, unit_price, member_unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, o.ID, item.ProductID, item.Name, item.UnitPrice, member, item.Quantity).Scan(&item.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) fetchItems(ctx context.Context, o *Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, name, unit_price, member_unit_price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	o.Items = []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return err
		}
		o.Items = append(o.Items, item)
	}
	return rows.Err()
}

func scanItem(row rowScanner) (Item, error) {
	var (
		item   Item
		member decimal.NullDecimal
	)
	if err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.UnitPrice, &member, &item.Quantity); err != nil {
		return Item{}, err
	}
	if member.Valid {
		price := member.Decimal
		item.MemberUnitPrice = &price
	}
	return item, nil
}

// fetchItemsFor loads the items of a page of orders in one query.
func (r *repository) fetchItemsFor(ctx context.Context, orders []*Order) error {
	byID := make(map[string]*Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		o.Items = []Item{}
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, name, unit_price, member_unit_price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return err
		}
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

func (r *repository) getOne(ctx context.Context, where string, arg any) (*Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, selectOrder+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.fetchItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Order, error) {
	return r.getOne(ctx, ` WHERE id = $1`, id)
}

func (r *repository) GetByReference(ctx context.Context, reference string) (*Order, error) {
	return r.getOne(ctx, ` WHERE reference = $1`, reference)
}

func (r *repository) GetCartByCustomer(ctx context.Context, customerID uint) (*Order, error) {
	return r.getOne(ctx, ` WHERE customer_id = $1 AND status = 'incart'`, customerID)
}

func (r *repository) ReplaceCart(ctx context.Context, o *Order, expectedVersion int64) (bool, error) {
	breakdown, err := json.Marshal(o.Breakdown)
	if err != nil {
		return false, err
	}

	err = r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET breakdown = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND status = 'incart' AND version = $3
		RETURNING version, updated_at
	`, breakdown, o.ID, expectedVersion).Scan(&o.Version, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
		return false, err
	}
	if err := r.insertItems(ctx, o); err != nil {
		return false, err
	}
	return true, nil
}

func (r *repository) UpdateStatus(ctx context.Context, o *Order, expectedStatus Status, expectedVersion int64) (bool, error) {
	payment, err := nullJSON(o.Payment)
	if err != nil {
		return false, err
	}
	refund, err := nullJSON(o.Refund)
	if err != nil {
		return false, err
	}

	err = r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $1, delivery_status = $2, payment = $3, refund = $4,
			version = version + 1, updated_at = NOW()
		WHERE id = $5 AND status = $6 AND version = $7
		RETURNING version, updated_at
	`, o.Status, o.DeliveryStatus, payment, refund, o.ID, expectedStatus, expectedVersion).Scan(&o.Version, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repository) UpdateDelivery(ctx context.Context, o *Order, expectedVersion int64) (bool, error) {
	err := r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET delivery_status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND status = 'paid' AND version = $3
		RETURNING version, updated_at
	`, o.DeliveryStatus, o.ID, expectedVersion).Scan(&o.Version, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateRemarks leaves the version alone: remarks never race a transition.
func (r *repository) UpdateRemarks(ctx context.Context, id string, remarks string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET admin_remarks = $1, updated_at = NOW() WHERE id = $2
	`, remarks, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1 AND status <> 'paid'`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func buildFilter(filter ListFilter) (string, []any) {
	where := " WHERE 1=1"
	args := []any{}
	argIndex := 1

	if filter.CustomerID != nil {
		where += fmt.Sprintf(" AND customer_id = $%d", argIndex)
		args = append(args, *filter.CustomerID)
		argIndex++
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where += fmt.Sprintf(" AND status = ANY($%d)", argIndex)
		args = append(args, pq.Array(statuses))
	}
	return where, args
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]*Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := max(filter.Offset, 0)

	where, args := buildFilter(filter)
	query := selectOrder + where + " ORDER BY created_at DESC" +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	log := logger.ForComponent(ctx, "repository", "List")
	log.Debug("executing list orders query", zap.String("query", query), zap.Any("args", args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			log.Error("failed to scan order row", zap.Error(err))
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, err
	}
	rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}
	if err := r.fetchItemsFor(ctx, orders); err != nil {
		log.Error("failed to load order items", zap.Error(err))
		return nil, err
	}
	return orders, nil
}

func (r *repository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	where, args := buildFilter(filter)
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&n)
	return n, err
}
