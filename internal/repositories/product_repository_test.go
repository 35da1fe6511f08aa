package repository_test

import (
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rafaelmds/storefront-platform/internal/models"
	repository "github.com/rafaelmds/storefront-platform/internal/repositories"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProductRepo(t *testing.T) (repository.ProductRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	return repository.NewProductRepo(db), mock, db
}

var productColumns = []string{"id", "name", "description", "price", "image_url", "created_at", "updated_at"}

func TestCreateProduct(t *testing.T) {
	repo, mock, db := newProductRepo(t)
	defer db.Close()

	ctx := t.Context()
	now := time.Now()

	expectedSQL := regexp.QuoteMeta(`INSERT INTO products (name, description, price, image_url, created_at, updated_at)`)

	t.Run("Success", func(t *testing.T) {
		// Arrange
		product := &models.Product{Name: "Mug", Description: "Ceramic", Price: decimal.RequireFromString("19.90")}
		mock.ExpectQuery(expectedSQL).
			WithArgs(product.Name, product.Description, product.Price, product.ImageURL).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(10), now, now))

		// Act
		err := repo.CreateProduct(ctx, product)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, int64(10), product.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Insert error", func(t *testing.T) {
		product := &models.Product{Name: "Mug", Price: decimal.RequireFromString("19.90")}
		mock.ExpectQuery(expectedSQL).
			WithArgs(product.Name, product.Description, product.Price, product.ImageURL).
			WillReturnError(errors.New("insert failed"))

		err := repo.CreateProduct(ctx, product)

		assert.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetProductByID(t *testing.T) {
	repo, mock, db := newProductRepo(t)
	defer db.Close()

	ctx := t.Context()
	now := time.Now()

	expectedSQL := regexp.QuoteMeta(`FROM products`)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(expectedSQL).WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows(productColumns).
				AddRow(int64(10), "Mug", "Ceramic", "19.90", "", now, now))

		product, err := repo.GetProductByID(ctx, 10)

		require.NoError(t, err)
		assert.Equal(t, int64(10), product.ID)
		assert.True(t, product.Price.Equal(decimal.RequireFromString("19.90")))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery(expectedSQL).WithArgs(int64(99)).WillReturnError(sql.ErrNoRows)

		product, err := repo.GetProductByID(ctx, 99)

		assert.Nil(t, product)
		assert.ErrorIs(t, err, sql.ErrNoRows)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateProduct(t *testing.T) {
	repo, mock, db := newProductRepo(t)
	defer db.Close()

	ctx := t.Context()
	now := time.Now()

	expectedSQL := regexp.QuoteMeta(`UPDATE products SET`)

	t.Run("Success", func(t *testing.T) {
		product := &models.Product{ID: 10, Name: "Travel Mug", Description: "Steel", Price: decimal.RequireFromString("29.90")}
		mock.ExpectQuery(expectedSQL).
			WithArgs(product.Name, product.Description, product.Price, product.ImageURL, product.ID).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

		err := repo.UpdateProduct(ctx, product)

		require.NoError(t, err)
		assert.WithinDuration(t, now, product.UpdatedAt, time.Second)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeleteProduct(t *testing.T) {
	repo, mock, db := newProductRepo(t)
	defer db.Close()

	ctx := t.Context()

	expectedSQL := regexp.QuoteMeta(`DELETE FROM products WHERE id = $1`)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(expectedSQL).WithArgs(int64(10)).WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.DeleteProduct(ctx, 10)

		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectExec(expectedSQL).WithArgs(int64(99)).WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.DeleteProduct(ctx, 99)

		assert.ErrorIs(t, err, sql.ErrNoRows)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListProducts(t *testing.T) {
	repo, mock, db := newProductRepo(t)
	defer db.Close()

	ctx := t.Context()
	now := time.Now()

	countSQL := regexp.QuoteMeta(`SELECT COUNT(*) FROM products`)
	listSQL := regexp.QuoteMeta(`ORDER BY created_at DESC`)

	t.Run("Newest first with pagination", func(t *testing.T) {
		// Arrange
		mock.ExpectQuery(countSQL).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))
		mock.ExpectQuery(listSQL).WithArgs(20, 20).
			WillReturnRows(sqlmock.NewRows(productColumns).
				AddRow(int64(2), "Newest", "", "50.00", "", now, now).
				AddRow(int64(1), "Older", "", "19.90", "", now.Add(-time.Hour), now))

		// Act
		products, total, err := repo.ListProducts(ctx, 2, 20)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 42, total)
		require.Len(t, products, 2)
		assert.Equal(t, "Newest", products[0].Name)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Count error", func(t *testing.T) {
		mock.ExpectQuery(countSQL).WillReturnError(errors.New("query failed"))

		products, total, err := repo.ListProducts(ctx, 1, 20)

		assert.Error(t, err)
		assert.Zero(t, total)
		assert.Nil(t, products)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
