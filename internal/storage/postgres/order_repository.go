package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

const orderColumns = `
	id, customer_name, customer_email, customer_phone, customer_street,
	customer_city, customer_zip, customer_country, items, amount_minor,
	currency, status, payment_status, payment_method, payment_intent_id,
	stock_deducted_at, manual_review, manual_review_note,
	refund_amount_minor, refund_reason, version, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	payload, err := domain.EncodeLineItems(order.Items, order.Shipping)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, customer_name, customer_email, customer_phone, customer_street,
			customer_city, customer_zip, customer_country, items, amount_minor,
			currency, status, payment_status, payment_method, payment_intent_id,
			stock_deducted_at, manual_review, manual_review_note,
			refund_amount_minor, refund_reason, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`,
		order.ID, order.Customer.Name, order.Customer.Email, order.Customer.Phone,
		order.Customer.Street, order.Customer.City, order.Customer.Zip, order.Customer.Country,
		payload, order.AmountMinor, order.Currency,
		string(order.Status), string(order.PaymentStatus), string(order.PaymentMethod),
		order.PaymentIntentID, order.StockDeductedAt, order.ManualReview, order.ManualReviewNote,
		order.RefundAmountMinor, order.RefundReason, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	return order, nil
}

func (r *orderRepository) ListByCustomer(email string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `SELECT` + orderColumns + `
		FROM orders
		WHERE customer_email = $1
		ORDER BY created_at DESC, id DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", email, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, email)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders by customer: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func (r *orderRepository) List(filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		conds []string
		args  []interface{}
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.PaymentStatus != "" {
		args = append(args, string(filter.PaymentStatus))
		conds = append(conds, "payment_status = $"+strconv.Itoa(len(args)))
	}
	if filter.ManualReview != nil {
		args = append(args, *filter.ManualReview)
		conds = append(conds, "manual_review = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func (r *orderRepository) Update(id string, patch domain.OrderPatch) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		sets []string
		args []interface{}
	)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.PaymentStatus != nil {
		add("payment_status", string(*patch.PaymentStatus))
	}
	if patch.PaymentIntentID != nil {
		add("payment_intent_id", *patch.PaymentIntentID)
	}
	if patch.ManualReview != nil {
		add("manual_review", *patch.ManualReview)
	}
	if patch.ManualReviewNote != nil {
		add("manual_review_note", *patch.ManualReviewNote)
	}
	if patch.RefundAmountMinor != nil {
		add("refund_amount_minor", *patch.RefundAmountMinor)
	}
	if patch.RefundReason != nil {
		add("refund_reason", *patch.RefundReason)
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "version = version + 1", "updated_at = NOW()")
	args = append(args, id)
	query := "UPDATE orders SET " + strings.Join(sets, ", ") + " WHERE id = $" + strconv.Itoa(len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

// MarkStockDeducted ставит маркер списания стока одной условной записью.
// Условие stock_deducted_at IS NULL вычисляется тем же statement'ом, что и
// запись: из N конкурентных вызовов ровно один получит affected=1.
func (r *orderRepository) MarkStockDeducted(id string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET stock_deducted_at = $1,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $2
		  AND stock_deducted_at IS NULL
	`, at, id)
	if err != nil {
		return false, fmt.Errorf("mark stock deducted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	// affected=0: маркер уже стоит либо заказа нет. Различаем явно.
	var marker sql.NullTime
	err = r.db.QueryRowContext(ctx, `SELECT stock_deducted_at FROM orders WHERE id = $1`, id).Scan(&marker)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrOrderNotFound
		}
		return false, fmt.Errorf("check stock marker: %w", err)
	}

	return false, nil
}

// CancelAbandoned отменяет брошенные заказы одним bulk-условным UPDATE.
// Заказ, оплаченный или списавший сток между чтением и записью, под
// WHERE-условие не попадает: предикат и запись атомарны.
func (r *orderRepository) CancelAbandoned(createdBefore time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_status = $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE status = $3
		  AND payment_status = $4
		  AND payment_method <> $5
		  AND stock_deducted_at IS NULL
		  AND created_at < $6
	`,
		string(domain.OrderStatusCancelled),
		string(domain.PaymentStatusCancelled),
		string(domain.OrderStatusPending),
		string(domain.PaymentStatusUnpaid),
		string(domain.PaymentMethodCOD),
		createdBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel abandoned orders: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order         domain.Order
		payload       []byte
		status        string
		paymentStatus string
		paymentMethod string
		deductedAt    sql.NullTime
	)

	err := row.Scan(
		&order.ID, &order.Customer.Name, &order.Customer.Email, &order.Customer.Phone,
		&order.Customer.Street, &order.Customer.City, &order.Customer.Zip, &order.Customer.Country,
		&payload, &order.AmountMinor, &order.Currency,
		&status, &paymentStatus, &paymentMethod, &order.PaymentIntentID,
		&deductedAt, &order.ManualReview, &order.ManualReviewNote,
		&order.RefundAmountMinor, &order.RefundReason, &order.Version,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	order.PaymentMethod = domain.PaymentMethod(paymentMethod)
	if deductedAt.Valid {
		t := deductedAt.Time
		order.StockDeductedAt = &t
	}

	items, shipping, err := domain.DecodeLineItems(payload)
	if err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s items: %w", order.ID, err)
	}
	order.Items = items
	order.Shipping = shipping

	return order, nil
}

func collectOrders(rows *sql.Rows) ([]domain.Order, error) {
	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
