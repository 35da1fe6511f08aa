package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rafaelmds/storefront-platform/internal/models"
	"github.com/rafaelmds/storefront-platform/internal/utils"
)

// ErrNoLinesReparented reports a checkout whose bulk re-parent update matched
// zero cart lines. The surrounding transaction is rolled back, so the order
// insert does not survive.
var ErrNoLinesReparented = fmt.Errorf("no cart lines were re-parented to the order")

type OrderRepository interface {
	CreateFromCart(ctx context.Context, order *models.Order) error
	GetOrderById(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, page, size int) ([]models.Order, int, error)
}

type orderRepository struct {
	DB *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{DB: db}
}

// CreateFromCart inserts the order row and re-parents every unattached cart
// line of the customer to it, in one transaction. Either both writes commit
// or neither does; there is no state where an order exists with zero lines
// while the cart still shows them.
func (r *orderRepository) CreateFromCart(ctx context.Context, order *models.Order) error {

	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	contact, err := json.Marshal(order.Contact)
	if err != nil {
		return fmt.Errorf("failed to marshal contact info: %w", err)
	}

	tx, err := r.DB.BeginTx(dbCtx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin checkout transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO orders (id, customer_id, status, total, contact, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err = tx.QueryRowContext(dbCtx, query, order.ID, order.CustomerID, order.Status, order.Total, contact).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	query = `
		UPDATE order_items
		SET order_id = $1
		WHERE user_id = $2 AND order_id IS NULL
	`

	result, err := tx.ExecContext(dbCtx, query, order.ID, order.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to re-parent cart lines: %w", err)
	}

	updatedRows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get re-parented rows: %w", err)
	}

	if updatedRows == 0 {
		return ErrNoLinesReparented
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkout transaction: %w", err)
	}

	return nil
}

func (r *orderRepository) GetOrderById(ctx context.Context, id uuid.UUID) (*models.Order, error) {

	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	order := &models.Order{
		ID: id,
	}

	query := `
		SELECT customer_id, status, total, contact, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var jsonData []byte

	err := r.DB.QueryRowContext(dbCtx, query, id).Scan(&order.CustomerID, &order.Status, &order.Total, &jsonData, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get the order: %w", err)
	}

	if err := json.Unmarshal(jsonData, &order.Contact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contact info: %w", err)
	}

	lines, err := r.orderLines(dbCtx, id)
	if err != nil {
		return nil, err
	}

	order.Lines = lines

	return order, nil
}

func (r *orderRepository) orderLines(ctx context.Context, orderID uuid.UUID) ([]models.CartLine, error) {

	query := `
		SELECT i.id, i.user_id, i.product_id, i.quantity, i.created_at,
		       p.id, p.name, p.description, p.price, p.image_url, p.created_at, p.updated_at
		FROM order_items i
		JOIN products p ON i.product_id = p.id
		WHERE i.order_id = $1
		ORDER BY i.created_at ASC
	`

	rows, err := r.DB.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get the order items: %w", err)
	}

	defer rows.Close()

	var lines []models.CartLine

	for rows.Next() {

		var line models.CartLine

		product := &models.Product{}

		err := rows.Scan(&line.ID, &line.UserID, &line.ProductID, &line.Quantity, &line.CreatedAt,
			&product.ID, &product.Name, &product.Description, &product.Price, &product.ImageURL, &product.CreatedAt, &product.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		id := orderID
		line.OrderID = &id
		line.Product = product

		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

// List the orders of the customer, along with pagination
func (r *orderRepository) ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, page, size int) ([]models.Order, int, error) {

	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	var total int

	countQuery := `SELECT COUNT(*) FROM orders WHERE customer_id = $1`

	err := r.DB.QueryRowContext(dbCtx, countQuery, customerID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	// Offset
	offset := (page - 1) * size

	query := `
		SELECT id, status, total, contact, created_at, updated_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.DB.QueryContext(dbCtx, query, customerID, size, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	defer rows.Close()

	var orders []models.Order

	for rows.Next() {

		var order models.Order

		order.CustomerID = customerID

		var jsonData []byte

		err := rows.Scan(&order.ID, &order.Status, &order.Total, &jsonData, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan the orders: %w", err)
		}

		if err := json.Unmarshal(jsonData, &order.Contact); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal contact info: %w", err)
		}

		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range orders {
		lines, err := r.orderLines(dbCtx, orders[i].ID)
		if err != nil {
			return nil, 0, err
		}
		orders[i].Lines = lines
	}

	return orders, total, nil
}
