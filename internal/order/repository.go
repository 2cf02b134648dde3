package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"qrmenu-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

var (
	errDuplicateOrderNumber = errors.New("order number already taken")
	errDuplicateOrderID     = errors.New("order id already exists")
)

type Repository interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]*Order, error)
	// UpdateOrder writes the mutable fields of o if the stored version still equals
	// expectedVersion, then bumps o.Version.
	UpdateOrder(ctx context.Context, o *Order, expectedVersion int) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const orderColumns = `
	o.id,
	o.order_number,
	o.restaurant_id,
	o.table_number,
	o.delivery_address,
	o.customer_id,
	o.customer_name,
	o.customer_phone,
	o.customer_email,
	o.delivery_type,
	o.payment_method,
	o.payment_status,
	o.total_amount,
	o.special_instructions,
	o.estimated_time,
	o.status,
	o.version,
	o.created_at,
	o.updated_at,
	COALESCE(r.name, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.RestaurantID,
		&o.TableNumber,
		&o.DeliveryAddress,
		&o.CustomerID,
		&o.CustomerName,
		&o.CustomerPhone,
		&o.CustomerEmail,
		&o.DeliveryType,
		&o.PaymentMethod,
		&o.PaymentStatus,
		&o.TotalAmount,
		&o.SpecialInstructions,
		&o.EstimatedTime,
		&o.Status,
		&o.Version,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Restaurant.Name,
	)
	if err != nil {
		return nil, err
	}
	o.Items = []OrderItem{}
	return &o, nil
}

func (r *repository) CreateOrder(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrder"),
		zap.String("order_id", o.ID),
		zap.Int("item_count", len(o.Items)),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return persistence("begin transaction", err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, restaurant_id, table_number, delivery_address,
			customer_id, customer_name, customer_phone, customer_email,
			delivery_type, payment_method, payment_status, total_amount,
			special_instructions, estimated_time, status, version,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		o.ID,
		o.OrderNumber,
		o.RestaurantID,
		o.TableNumber,
		o.DeliveryAddress,
		o.CustomerID,
		o.CustomerName,
		o.CustomerPhone,
		o.CustomerEmail,
		o.DeliveryType,
		o.PaymentMethod,
		o.PaymentStatus,
		o.TotalAmount,
		o.SpecialInstructions,
		o.EstimatedTime,
		o.Status,
		o.Version,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return translateWriteError("insert order", err)
	}

	for i, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, menu_item_id, quantity,
				unit_price, total_price, special_requests
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			item.ID,
			o.ID,
			item.MenuItemID,
			item.Quantity,
			item.UnitPrice,
			item.TotalPrice,
			item.SpecialRequests,
		)
		if err != nil {
			log.Error("failed to insert order item",
				zap.Int("item_index", i),
				zap.String("menu_item_id", item.MenuItemID),
				zap.Error(err),
			)
			return translateWriteError("insert order item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit order transaction", zap.Error(err))
		return persistence("commit order", err)
	}

	committed = true
	log.Debug("order transaction committed")
	return nil
}

func (r *repository) GetOrder(ctx context.Context, id string) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT`+orderColumns+`
		FROM orders o
		LEFT JOIN restaurants r ON r.id = o.restaurant_id
		WHERE o.id = $1
	`, id)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, persistence("get order", err)
	}

	items, err := r.fetchItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = append(o.Items, items[o.ID]...)
	return o, nil
}

func (r *repository) ListOrders(ctx context.Context, filter ListFilter) ([]*Order, error) {
	filter = filter.normalized()

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ListOrders"),
		zap.String("restaurant_id", filter.RestaurantID),
		zap.Int("limit", filter.Limit),
		zap.Int("page", filter.Page),
	)

	query := `
		SELECT` + orderColumns + `
		FROM orders o
		LEFT JOIN restaurants r ON r.id = o.restaurant_id
		WHERE 1=1`

	args := []any{}
	argIndex := 1

	if filter.RestaurantID != "" {
		query += fmt.Sprintf(" AND o.restaurant_id = $%d", argIndex)
		args = append(args, filter.RestaurantID)
		argIndex++
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		query += fmt.Sprintf(" AND o.status = ANY($%d)", argIndex)
		args = append(args, pq.Array(statuses))
		argIndex++
	}

	query += " ORDER BY o.created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.offset())

	log.Debug("executing list orders query", zap.String("query", query))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, persistence("list orders", err)
	}
	defer rows.Close()

	orders := []*Order{}
	ids := []string{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			log.Error("failed to scan order row", zap.Error(err))
			return nil, persistence("scan order", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, persistence("list orders", err)
	}

	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.fetchItems(ctx, ids)
	if err != nil {
		log.Error("failed to load order items", zap.Error(err))
		return nil, err
	}
	for _, o := range orders {
		o.Items = append(o.Items, items[o.ID]...)
	}

	log.Debug("list orders success", zap.Int("count", len(orders)))
	return orders, nil
}

func (r *repository) fetchItems(ctx context.Context, orderIDs []string) (map[string][]OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			oi.id,
			oi.order_id,
			oi.menu_item_id,
			oi.quantity,
			oi.unit_price,
			oi.total_price,
			oi.special_requests,
			COALESCE(mi.name, ''),
			COALESCE(mi.price, 0)
		FROM order_items oi
		LEFT JOIN menu_items mi ON mi.id = oi.menu_item_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, persistence("list order items", err)
	}
	defer rows.Close()

	out := make(map[string][]OrderItem, len(orderIDs))
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.MenuItemID,
			&item.Quantity,
			&item.UnitPrice,
			&item.TotalPrice,
			&item.SpecialRequests,
			&item.MenuItem.Name,
			&item.MenuItem.Price,
		); err != nil {
			return nil, persistence("scan order item", err)
		}
		out[item.OrderID] = append(out[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list order items", err)
	}
	return out, nil
}

func (r *repository) UpdateOrder(ctx context.Context, o *Order, expectedVersion int) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "UpdateOrder"),
		zap.String("order_id", o.ID),
		zap.Int("expected_version", expectedVersion),
	)

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET
			status = $1,
			payment_status = $2,
			estimated_time = $3,
			special_instructions = $4,
			updated_at = $5,
			version = version + 1
		WHERE id = $6 AND version = $7
	`,
		o.Status,
		o.PaymentStatus,
		o.EstimatedTime,
		o.SpecialInstructions,
		o.UpdatedAt,
		o.ID,
		expectedVersion,
	)
	if err != nil {
		log.Error("failed to update order", zap.Error(err))
		return persistence("update order", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return persistence("update order", err)
	}
	if affected == 1 {
		o.Version = expectedVersion + 1
		return nil
	}

	var current int
	err = r.db.QueryRowContext(ctx, `SELECT version FROM orders WHERE id = $1`, o.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return persistence("read order version", err)
	}

	log.Warn("stale order write rejected", zap.Int("current_version", current))
	return &ConflictError{OrderID: o.ID, Expected: expectedVersion, Actual: current}
}

func translateWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case PgUniqueViolation:
			if strings.Contains(pqErr.Constraint, "order_number") {
				return errDuplicateOrderNumber
			}
		case PgForeignKeyViolation:
			switch {
			case strings.Contains(pqErr.Constraint, "restaurant"):
				return invalid("restaurantId", "unknown restaurant")
			case strings.Contains(pqErr.Constraint, "menu_item"):
				return invalid("items.menuItemId", "unknown menu item")
			}
			return invalid("", "references an unknown record")
		}
	}
	return persistence(op, err)
}
