package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rafaelmds/storefront-platform/internal/models"
	"github.com/rafaelmds/storefront-platform/internal/utils"
)

// CartLineRepository works on order_items rows whose order_id is NULL: those
// rows are the shopper's in-progress cart. Checkout re-parents them by
// filling order_id in, after which they stop being cart lines.
type CartLineRepository interface {
	ListUnattached(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error)
	FindUnattached(ctx context.Context, userID uuid.UUID, productID int64) (*models.CartLine, error)
	Insert(ctx context.Context, line *models.CartLine) error
	UpdateQuantity(ctx context.Context, id int64, quantity int) error
	Delete(ctx context.Context, id int64) error
	DeleteAllUnattached(ctx context.Context, userID uuid.UUID) error
}

type cartLineRepository struct {
	DB *sql.DB
}

func NewCartLineRepo(db *sql.DB) CartLineRepository {
	return &cartLineRepository{DB: db}
}

// Lines come back ordered by creation time ascending so first-added items
// appear first in the cart view.
func (r *cartLineRepository) ListUnattached(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		SELECT i.id, i.user_id, i.product_id, i.quantity, i.created_at,
		       p.id, p.name, p.description, p.price, p.image_url, p.created_at, p.updated_at
		FROM order_items i
		JOIN products p ON i.product_id = p.id
		WHERE i.user_id = $1 AND i.order_id IS NULL
		ORDER BY i.created_at ASC
	`

	rows, err := r.DB.QueryContext(dbCtx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}

	defer rows.Close()

	var lines []models.CartLine

	for rows.Next() {

		var line models.CartLine

		product := &models.Product{}

		err := rows.Scan(&line.ID, &line.UserID, &line.ProductID, &line.Quantity, &line.CreatedAt,
			&product.ID, &product.Name, &product.Description, &product.Price, &product.ImageURL, &product.CreatedAt, &product.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}

		line.Product = product
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

func (r *cartLineRepository) FindUnattached(ctx context.Context, userID uuid.UUID, productID int64) (*models.CartLine, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, user_id, product_id, quantity, created_at
		FROM order_items
		WHERE user_id = $1 AND product_id = $2 AND order_id IS NULL
	`

	line := &models.CartLine{}

	err := r.DB.QueryRowContext(dbCtx, query, userID, productID).Scan(&line.ID, &line.UserID, &line.ProductID, &line.Quantity, &line.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("querying database: %w", err)
	}

	return line, nil
}

func (r *cartLineRepository) Insert(ctx context.Context, line *models.CartLine) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO order_items (user_id, product_id, quantity, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`

	return r.DB.QueryRowContext(dbCtx, query, line.UserID, line.ProductID, line.Quantity).Scan(&line.ID, &line.CreatedAt)
}

func (r *cartLineRepository) UpdateQuantity(ctx context.Context, id int64, quantity int) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		UPDATE order_items
		SET quantity = $1
		WHERE id = $2 AND order_id IS NULL
	`

	result, err := r.DB.ExecContext(dbCtx, query, quantity, id)
	if err != nil {
		return fmt.Errorf("failed to update cart line quantity: %w", err)
	}

	updatedRows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get updated rows: %w", err)
	}

	if updatedRows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *cartLineRepository) Delete(ctx context.Context, id int64) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `DELETE FROM order_items WHERE id = $1 AND order_id IS NULL`

	result, err := r.DB.ExecContext(dbCtx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete cart line: %w", err)
	}

	deletedRows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get deleted rows: %w", err)
	}

	if deletedRows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// Bulk removal of every in-cart line the shopper owns. Deleting an already
// empty cart is not an error.
func (r *cartLineRepository) DeleteAllUnattached(ctx context.Context, userID uuid.UUID) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `DELETE FROM order_items WHERE user_id = $1 AND order_id IS NULL`

	_, err := r.DB.ExecContext(dbCtx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to clear cart lines: %w", err)
	}

	return nil
}
