package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-be/internal/pricing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderColumns = []string{
	"id", "reference", "customer_id", "status", "delivery_status", "breakdown",
	"payment", "refund", "admin_remarks", "version", "created_at", "updated_at",
}

var itemColumns = []string{"id", "order_id", "product_id", "name", "unit_price", "member_unit_price", "quantity"}

const breakdownJSON = `{"currency":"INR","subtotal":"1000","total":"1062","loyaltyRedemptionUnits":2000,"loyaltyCashbackEarned":63,"tier":"tier2","configVersion":3}`

func TestRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewRepository(db)

		now := time.Now()
		mock.ExpectQuery(`SELECT id, reference, customer_id, status, .* FROM orders WHERE id = \$1`).
			WithArgs("ord-1").
			WillReturnRows(sqlmock.NewRows(orderColumns).AddRow(
				"ord-1", "ORD-1", 7, "paid", "shipped", []byte(breakdownJSON),
				[]byte(`{"mode":"upi","date":"2026-05-01T10:00:00Z","externalPaymentId":"pay_1"}`), nil, "fragile", 3, now, now,
			))
		mock.ExpectQuery(`SELECT id, order_id, product_id, name, unit_price, member_unit_price, quantity FROM order_items WHERE order_id = \$1`).
			WithArgs("ord-1").
			WillReturnRows(sqlmock.NewRows(itemColumns).
				AddRow(1, "ord-1", "p-1", "Kettle", "1000", "950", 1))

		o, err := repo.GetByID(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, StatusPaid, o.Status)
		require.NotNil(t, o.DeliveryStatus)
		assert.Equal(t, DeliveryShipped, *o.DeliveryStatus)
		assert.Equal(t, "1062", o.Breakdown.Total.String())
		assert.Equal(t, int64(2000), o.Breakdown.LoyaltyRedemptionUnits)
		require.NotNil(t, o.Payment)
		assert.Equal(t, "pay_1", o.Payment.ExternalPaymentID)
		assert.Nil(t, o.Refund)
		assert.Equal(t, "fragile", *o.AdminRemarks)
		require.Len(t, o.Items, 1)
		assert.Equal(t, "950", o.Items[0].MemberUnitPrice.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		repo := NewRepository(db)

		mock.ExpectQuery(`FROM orders WHERE id = \$1`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(orderColumns))

		_, err := repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestRepository_GetCartByCustomer(t *testing.T) {
	ctx := context.Background()
	db, mock, _ := sqlmock.New()
	defer db.Close()
	repo := NewRepository(db)

	now := time.Now()
	mock.ExpectQuery(`FROM orders WHERE customer_id = \$1 AND status = 'incart'`).
		WithArgs(uint(7)).
		WillReturnRows(sqlmock.NewRows(orderColumns).AddRow(
			"ord-1", "ORD-1", 7, "incart", nil, []byte(breakdownJSON), nil, nil, nil, 1, now, now,
		))
	mock.ExpectQuery(`FROM order_items`).
		WithArgs("ord-1").
		WillReturnRows(sqlmock.NewRows(itemColumns).AddRow(1, "ord-1", "p-1", "Kettle", "1000", nil, 1))

	o, err := repo.GetCartByCustomer(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, o.DeliveryStatus)
	assert.Nil(t, o.Payment)
	assert.Nil(t, o.Items[0].MemberUnitPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Create(t *testing.T) {
	ctx := context.Background()
	newOrder := func() *Order {
		return &Order{
			ID:         "ord-1",
			Reference:  "ORD-1",
			CustomerID: 7,
			Status:     StatusInCart,
			Breakdown:  pricing.Breakdown{Total: decimal.NewFromInt(1062)},
			Items:      []Item{{ProductID: "p-1", Name: "Kettle", UnitPrice: decimal.NewFromInt(1000), Quantity: 1}},
			Version:    1,
		}
	}

	t.Run("Success", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		repo := NewRepository(db)

		now := time.Now()
		mock.ExpectQuery(`INSERT INTO orders \(id, reference, customer_id, status, breakdown, version\)`).
			WithArgs("ord-1", "ORD-1", uint(7), StatusInCart, sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectQuery(`INSERT INTO order_items`).
			WithArgs("ord-1", "p-1", "Kettle", decimal.NewFromInt(1000), nil, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))

		o := newOrder()
		require.NoError(t, repo.Create(ctx, o))
		assert.Equal(t, now, o.CreatedAt)
		assert.Equal(t, int64(10), o.Items[0].ID)
		assert.Equal(t, "ord-1", o.Items[0].OrderID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("OpenCartExists", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		repo := NewRepository(db)

		mock.ExpectQuery(`INSERT INTO orders`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "orders_one_cart_per_customer"})

		err := repo.Create(ctx, newOrder())
		assert.ErrorIs(t, err, ErrCartExists)
	})
}

func TestRepository_ReplaceCart(t *testing.T) {
	ctx := context.Background()

	t.Run("Applied", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		repo := NewRepository(db)

		now := time.Now()
		mock.ExpectQuery(`UPDATE orders SET breakdown = \$1, version = version \+ 1, updated_at = NOW\(\) WHERE id = \$2 AND status = 'incart' AND version = \$3`).
			WithArgs(sqlmock.AnyArg(), "ord-1", int64(4)).
			WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(5, now))
		mock.ExpectExec(`DELETE FROM order_items WHERE order_id = \$1`).
			WithArgs("ord-1").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectQuery(`INSERT INTO order_items`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

		o := &Order{ID: "ord-1", Items: []Item{{ProductID: "p-2", Name: "Mug", UnitPrice: decimal.NewFromInt(200), Quantity: 3}}}
		ok, err := repo.ReplaceCart(ctx, o, 4)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(5), o.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("VersionConflict", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		repo := NewRepository(db)

		mock.ExpectQuery(`UPDATE orders SET breakdown`).
			WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}))

		ok, err := repo.ReplaceCart(ctx, &Order{ID: "ord-1"}, 4)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Applied", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		repo := NewRepository(db)

		received := DeliveryOrderReceived
		o := &Order{
			ID:             "ord-1",
			Status:         StatusPaid,
			DeliveryStatus: &received,
			Payment:        &PaymentDetails{Mode: "upi"},
		}

		now := time.Now()
		mock.ExpectQuery(`UPDATE orders SET status = \$1, delivery_status = \$2, payment = \$3, refund = \$4, version = version \+ 1, updated_at = NOW\(\) WHERE id = \$5 AND status = \$6 AND version = \$7`).
			WithArgs(StatusPaid, "order_received", sqlmock.AnyArg(), nil, "ord-1", StatusInCart, int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(2, now))

		ok, err := repo.UpdateStatus(ctx, o, StatusInCart, 1)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(2), o.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Stale", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		repo := NewRepository(db)

		mock.ExpectQuery(`UPDATE orders SET status`).
			WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}))

		ok, err := repo.UpdateStatus(ctx, &Order{ID: "ord-1", Status: StatusFailed}, StatusInCart, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DBError", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		repo := NewRepository(db)

		mock.ExpectQuery(`UPDATE orders SET status`).WillReturnError(errors.New("db down"))

		_, err := repo.UpdateStatus(ctx, &Order{ID: "ord-1", Status: StatusFailed}, StatusInCart, 1)
		assert.EqualError(t, err, "db down")
	})
}

func TestRepository_UpdateDelivery(t *testing.T) {
	ctx := context.Background()
	db, mock, _ := sqlmock.New()
	defer db.Close()
	repo := NewRepository(db)

	shipped := DeliveryShipped
	mock.ExpectQuery(`UPDATE orders SET delivery_status = \$1, version = version \+ 1, updated_at = NOW\(\) WHERE id = \$2 AND status = 'paid' AND version = \$3`).
		WithArgs("shipped", "ord-1", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(3, time.Now()))

	o := &Order{ID: "ord-1", DeliveryStatus: &shipped}
	ok, err := repo.UpdateDelivery(ctx, o, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), o.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateRemarksAndDelete(t *testing.T) {
	ctx := context.Background()
	db, mock, _ := sqlmock.New()
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectExec(`UPDATE orders SET admin_remarks = \$1, updated_at = NOW\(\) WHERE id = \$2`).
		WithArgs("leave at door", "ord-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orders SET admin_remarks`).
		WithArgs("x", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM orders WHERE id = \$1 AND status <> 'paid'`).
		WithArgs("ord-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM orders`).
		WithArgs("ord-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.UpdateRemarks(ctx, "ord-1", "leave at door"))
	assert.ErrorIs(t, repo.UpdateRemarks(ctx, "missing", "x"), ErrOrderNotFound)
	assert.NoError(t, repo.Delete(ctx, "ord-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "ord-2"), ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_List(t *testing.T) {
	ctx := context.Background()

	t.Run("Filters", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		repo := NewRepository(db)

		customer := uint(7)
		filter := ListFilter{CustomerID: &customer, Statuses: []Status{StatusPaid, StatusFullRefund}, Limit: 500}
		now := time.Now()

		mock.ExpectQuery(`FROM orders WHERE 1=1 AND customer_id = \$1 AND status = ANY\(\$2\) ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
			WithArgs(uint(7), pq.Array([]string{"paid", "full_refund"}), 100, 0).
			WillReturnRows(sqlmock.NewRows(orderColumns).AddRow(
				"ord-1", "ORD-1", 7, "paid", "in_transit", []byte(breakdownJSON), nil, nil, nil, 2, now, now,
			).AddRow(
				"ord-2", "ORD-2", 7, "full_refund", nil, []byte(breakdownJSON), nil, nil, nil, 4, now, now,
			))
		mock.ExpectQuery(`FROM order_items WHERE order_id = ANY\(\$1\) ORDER BY order_id, id`).
			WithArgs(pq.Array([]string{"ord-1", "ord-2"})).
			WillReturnRows(sqlmock.NewRows(itemColumns).
				AddRow(1, "ord-1", "p-1", "Kettle", "1000", "900", 1).
				AddRow(2, "ord-1", "p-2", "Mug", "250", nil, 2))

		orders, err := repo.List(ctx, filter)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, DeliveryInTransit, *orders[0].DeliveryStatus)
		require.Len(t, orders[0].Items, 2)
		assert.Equal(t, "Mug", orders[0].Items[1].Name)
		assert.True(t, orders[0].Items[0].MemberUnitPrice.Equal(decimal.NewFromInt(900)))
		assert.NotNil(t, orders[1].Items)
		assert.Empty(t, orders[1].Items)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ItemsQueryFails", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		repo := NewRepository(db)
		now := time.Now()

		mock.ExpectQuery(`FROM orders WHERE 1=1 ORDER BY created_at DESC`).
			WillReturnRows(sqlmock.NewRows(orderColumns).AddRow(
				"ord-1", "ORD-1", 7, "paid", nil, []byte(breakdownJSON), nil, nil, nil, 2, now, now,
			))
		mock.ExpectQuery(`FROM order_items`).WillReturnError(errors.New("db down"))

		orders, err := repo.List(ctx, ListFilter{})
		assert.Error(t, err)
		assert.Nil(t, orders)
	})

	t.Run("Defaults", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		repo := NewRepository(db)

		mock.ExpectQuery(`FROM orders WHERE 1=1 ORDER BY created_at DESC LIMIT \$1 OFFSET \$2`).
			WithArgs(20, 0).
			WillReturnRows(sqlmock.NewRows(orderColumns))

		orders, err := repo.List(ctx, ListFilter{Offset: -5})
		require.NoError(t, err)
		assert.Empty(t, orders)
	})

	t.Run("Count", func(t *testing.T) {
		db, mock, _ := sqlmock.New()
		defer db.Close()
		repo := NewRepository(db)

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders WHERE 1=1 AND status = ANY\(\$1\)`).
			WithArgs(pq.Array([]string{"incart"})).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

		n, err := repo.Count(ctx, ListFilter{Statuses: []Status{StatusInCart}})
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})
}
