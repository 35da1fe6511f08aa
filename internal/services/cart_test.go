package service_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	appErrors "github.com/rafaelmds/storefront-platform/internal/errors"
	"github.com/rafaelmds/storefront-platform/internal/models"
	repository "github.com/rafaelmds/storefront-platform/internal/repositories"
	service "github.com/rafaelmds/storefront-platform/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockOrderNotifier struct {
	mock.Mock
}

func (m *mockOrderNotifier) OrderConfirmation(ctx context.Context, order *models.Order) {
	m.Called(ctx, order)
}

func newCartFixture() (*service.CartService, *repository.MockCartLineRepository, *repository.MockProductRepository, *repository.MockOrderRepository) {
	mockLines := repository.NewMockCartLineRepository()
	mockProducts := repository.NewMockProductRepository()
	mockOrders := repository.NewMockOrderRepository()

	svc := service.NewCartService(mockLines, mockProducts, mockOrders,
		decimal.RequireFromString("100.00"), decimal.RequireFromString("15.00"))

	return svc, mockLines, mockProducts, mockOrders
}

func testProduct(id int64, price string) *models.Product {
	return &models.Product{
		ID:    id,
		Name:  "Test Product",
		Price: decimal.RequireFromString(price),
	}
}

func testLine(lineID int64, userID uuid.UUID, productID int64, quantity int, price string) models.CartLine {
	return models.CartLine{
		ID:        lineID,
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		Product:   testProduct(productID, price),
	}
}

func TestLoadCart(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, _ := newCartFixture()
		lines := []models.CartLine{testLine(1, userID, 10, 2, "30.00")}
		mockLines.On("ListUnattached", ctx, userID).Return(lines, nil).Once()

		// Act
		snapshot := svc.LoadCart(ctx, userID)

		// Assert
		require.Len(t, snapshot.Lines, 1)
		assert.Equal(t, 2, snapshot.ItemCount)
		assert.True(t, snapshot.Subtotal.Equal(decimal.RequireFromString("60.00")))
		mockLines.AssertExpectations(t)
	})

	t.Run("Transport failure is absorbed as an empty cart", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, _ := newCartFixture()
		mockLines.On("ListUnattached", ctx, userID).Return(nil, errors.New("connection refused")).Once()

		// Act
		snapshot := svc.LoadCart(ctx, userID)

		// Assert
		assert.Empty(t, snapshot.Lines)
		assert.Equal(t, 0, snapshot.ItemCount)
		assert.True(t, snapshot.Total.IsZero())
		mockLines.AssertExpectations(t)
	})
}

func TestAddToCart(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Unauthenticated", func(t *testing.T) {
		svc, _, _, _ := newCartFixture()

		_, err := svc.AddToCart(ctx, uuid.Nil, 10, 1)

		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeUnauthorized, appErr.Code)
	})

	t.Run("New product inserts a line and re-syncs", func(t *testing.T) {
		// Arrange
		svc, mockLines, mockProducts, _ := newCartFixture()
		mockLines.On("FindUnattached", ctx, userID, int64(10)).Return(nil, sql.ErrNoRows).Once()
		mockProducts.On("GetProductByID", ctx, int64(10)).Return(testProduct(10, "30.00"), nil).Once()
		mockLines.On("Insert", ctx, mock.MatchedBy(func(line *models.CartLine) bool {
			return line.UserID == userID && line.ProductID == 10 && line.Quantity == 3
		})).Return(nil).Once()
		mockLines.On("ListUnattached", ctx, userID).Return([]models.CartLine{testLine(1, userID, 10, 3, "30.00")}, nil).Once()

		// Act
		snapshot, err := svc.AddToCart(ctx, userID, 10, 3)

		// Assert
		require.NoError(t, err)
		require.Len(t, snapshot.Lines, 1)
		assert.Equal(t, 3, snapshot.Lines[0].Quantity)
		mockLines.AssertExpectations(t)
		mockProducts.AssertExpectations(t)
	})

	t.Run("Existing product sums quantities on the single line", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, _ := newCartFixture()
		existing := testLine(7, userID, 10, 2, "30.00")
		mockLines.On("FindUnattached", ctx, userID, int64(10)).Return(&existing, nil).Once()
		mockLines.On("UpdateQuantity", ctx, int64(7), 5).Return(nil).Once()
		mockLines.On("ListUnattached", ctx, userID).Return([]models.CartLine{testLine(7, userID, 10, 5, "30.00")}, nil).Once()

		// Act
		snapshot, err := svc.AddToCart(ctx, userID, 10, 3)

		// Assert
		require.NoError(t, err)
		require.Len(t, snapshot.Lines, 1, "adding an existing product must not create a second line")
		assert.Equal(t, 5, snapshot.Lines[0].Quantity)
		mockLines.AssertExpectations(t)
	})

	t.Run("Quantity below one is coerced to one", func(t *testing.T) {
		// Arrange
		svc, mockLines, mockProducts, _ := newCartFixture()
		mockLines.On("FindUnattached", ctx, userID, int64(10)).Return(nil, sql.ErrNoRows).Once()
		mockProducts.On("GetProductByID", ctx, int64(10)).Return(testProduct(10, "30.00"), nil).Once()
		mockLines.On("Insert", ctx, mock.MatchedBy(func(line *models.CartLine) bool {
			return line.Quantity == 1
		})).Return(nil).Once()
		mockLines.On("ListUnattached", ctx, userID).Return([]models.CartLine{testLine(1, userID, 10, 1, "30.00")}, nil).Once()

		// Act
		_, err := svc.AddToCart(ctx, userID, 10, 0)

		// Assert
		require.NoError(t, err)
		mockLines.AssertExpectations(t)
	})

	t.Run("Unknown product", func(t *testing.T) {
		// Arrange
		svc, mockLines, mockProducts, _ := newCartFixture()
		mockLines.On("FindUnattached", ctx, userID, int64(99)).Return(nil, sql.ErrNoRows).Once()
		mockProducts.On("GetProductByID", ctx, int64(99)).Return(nil, sql.ErrNoRows).Once()

		// Act
		_, err := svc.AddToCart(ctx, userID, 99, 1)

		// Assert
		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeNotFound, appErr.Code)
		mockLines.AssertExpectations(t)
	})

	t.Run("Write failure is surfaced but the view still re-syncs", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, _ := newCartFixture()
		existing := testLine(7, userID, 10, 2, "30.00")
		dbError := errors.New("write conflict")
		mockLines.On("FindUnattached", ctx, userID, int64(10)).Return(&existing, nil).Once()
		mockLines.On("UpdateQuantity", ctx, int64(7), 3).Return(dbError).Once()
		mockLines.On("ListUnattached", ctx, userID).Return([]models.CartLine{existing}, nil).Once()

		// Act
		snapshot, err := svc.AddToCart(ctx, userID, 10, 1)

		// Assert
		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeDatabaseError, appErr.Code)
		assert.ErrorIs(t, err, dbError)
		assert.Len(t, snapshot.Lines, 1, "snapshot reflects the re-synced store state")
		mockLines.AssertExpectations(t)
	})
}

func TestNudgeQuantity(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	seed := func(t *testing.T, svc *service.CartService, mockLines *repository.MockCartLineRepository, lines []models.CartLine) {
		t.Helper()
		mockLines.On("ListUnattached", ctx, userID).Return(lines, nil).Once()
		svc.LoadCart(ctx, userID)
	}

	t.Run("Increment bumps the persisted quantity", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, _ := newCartFixture()
		seed(t, svc, mockLines, []models.CartLine{testLine(7, userID, 10, 2, "30.00")})
		mockLines.On("UpdateQuantity", ctx, int64(7), 3).Return(nil).Once()
		mockLines.On("ListUnattached", ctx, userID).Return([]models.CartLine{testLine(7, userID, 10, 3, "30.00")}, nil).Once()

		// Act
		snapshot := svc.IncrementQuantity(ctx, userID, 10)

		// Assert
		assert.Equal(t, 3, snapshot.ItemCount)
		mockLines.AssertExpectations(t)
	})

	t.Run("Decrement never goes below one", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, _ := newCartFixture()
		seed(t, svc, mockLines, []models.CartLine{testLine(7, userID, 10, 1, "30.00")})

		// Act: no UpdateQuantity expectation, the call must not happen
		snapshot := svc.DecrementQuantity(ctx, userID, 10)

		// Assert
		assert.Equal(t, 1, snapshot.ItemCount)
		mockLines.AssertExpectations(t)
	})

	t.Run("Absent product is a no-op", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, _ := newCartFixture()
		seed(t, svc, mockLines, []models.CartLine{testLine(7, userID, 10, 2, "30.00")})

		// Act
		snapshot := svc.IncrementQuantity(ctx, userID, 99)

		// Assert
		assert.Equal(t, 2, snapshot.ItemCount)
		mockLines.AssertExpectations(t)
	})

	t.Run("Write failure is swallowed and the view re-syncs", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, _ := newCartFixture()
		seed(t, svc, mockLines, []models.CartLine{testLine(7, userID, 10, 2, "30.00")})
		mockLines.On("UpdateQuantity", ctx, int64(7), 3).Return(errors.New("timeout")).Once()
		mockLines.On("ListUnattached", ctx, userID).Return([]models.CartLine{testLine(7, userID, 10, 2, "30.00")}, nil).Once()

		// Act
		snapshot := svc.IncrementQuantity(ctx, userID, 10)

		// Assert: caller sees the store's truth, no error channel exists here
		assert.Equal(t, 2, snapshot.ItemCount)
		mockLines.AssertExpectations(t)
	})
}

func TestRemoveItem(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Removes the persisted line", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, _ := newCartFixture()
		mockLines.On("ListUnattached", ctx, userID).Return([]models.CartLine{testLine(7, userID, 10, 2, "30.00")}, nil).Once()
		svc.LoadCart(ctx, userID)

		mockLines.On("Delete", ctx, int64(7)).Return(nil).Once()
		mockLines.On("ListUnattached", ctx, userID).Return(nil, nil).Once()

		// Act
		snapshot := svc.RemoveItem(ctx, userID, 10)

		// Assert
		assert.Empty(t, snapshot.Lines)
		mockLines.AssertExpectations(t)
	})

	t.Run("Absent product is a no-op", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, _ := newCartFixture()
		mockLines.On("ListUnattached", ctx, userID).Return([]models.CartLine{testLine(7, userID, 10, 2, "30.00")}, nil).Once()
		svc.LoadCart(ctx, userID)

		// Act: no Delete expectation
		snapshot := svc.RemoveItem(ctx, userID, 99)

		// Assert
		assert.Len(t, snapshot.Lines, 1)
		mockLines.AssertExpectations(t)
	})
}

func TestClearCart(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Success resets lines and destination code", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, _ := newCartFixture()
		mockLines.On("ListUnattached", ctx, userID).Return([]models.CartLine{testLine(7, userID, 10, 2, "30.00")}, nil).Once()
		svc.LoadCart(ctx, userID)
		svc.SetDestinationCode(userID, "01310100")

		mockLines.On("DeleteAllUnattached", ctx, userID).Return(nil).Once()
		mockLines.On("ListUnattached", ctx, userID).Return(nil, nil).Once()

		// Act
		snapshot, err := svc.ClearCart(ctx, userID)

		// Assert
		require.NoError(t, err)
		assert.Empty(t, snapshot.Lines)
		assert.Empty(t, snapshot.DestinationCode)
		mockLines.AssertExpectations(t)
	})

	t.Run("Remote failure keeps local state and surfaces the error", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, _ := newCartFixture()
		lines := []models.CartLine{testLine(7, userID, 10, 2, "30.00")}
		mockLines.On("ListUnattached", ctx, userID).Return(lines, nil).Once()
		svc.LoadCart(ctx, userID)
		svc.SetDestinationCode(userID, "01310100")

		mockLines.On("DeleteAllUnattached", ctx, userID).Return(errors.New("connection reset")).Once()
		mockLines.On("ListUnattached", ctx, userID).Return(lines, nil).Once()

		// Act
		snapshot, err := svc.ClearCart(ctx, userID)

		// Assert
		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeDatabaseError, appErr.Code)
		assert.Len(t, snapshot.Lines, 1, "no phantom-empty cart on a failed delete")
		assert.Equal(t, "01310100", snapshot.DestinationCode)
		mockLines.AssertExpectations(t)
	})
}

func TestDestinationCode(t *testing.T) {
	userID := uuid.New()

	t.Run("Normalized to digits", func(t *testing.T) {
		svc, _, _, _ := newCartFixture()

		snapshot := svc.SetDestinationCode(userID, "12345-678")

		assert.Equal(t, "12345678", snapshot.DestinationCode)
		assert.Equal(t, "12345678", svc.GetDestinationCode(userID))
	})

	t.Run("Non-digits only yields empty code", func(t *testing.T) {
		svc, _, _, _ := newCartFixture()

		snapshot := svc.SetDestinationCode(userID, "abc-def")

		assert.Empty(t, snapshot.DestinationCode)
	})
}

func TestShippingAndTotals(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	load := func(t *testing.T, svc *service.CartService, mockLines *repository.MockCartLineRepository, lines []models.CartLine) {
		t.Helper()
		mockLines.On("ListUnattached", ctx, userID).Return(lines, nil).Once()
		svc.LoadCart(ctx, userID)
	}

	t.Run("No destination code means free shipping", func(t *testing.T) {
		svc, mockLines, _, _ := newCartFixture()
		load(t, svc, mockLines, []models.CartLine{testLine(1, userID, 10, 1, "30.00")})

		assert.True(t, svc.Shipping(userID).IsZero())
		assert.Equal(t, "30.00", svc.Total(userID).StringFixed(2))
	})

	t.Run("Below the threshold the flat fee applies", func(t *testing.T) {
		svc, mockLines, _, _ := newCartFixture()
		load(t, svc, mockLines, []models.CartLine{testLine(1, userID, 10, 1, "30.00")})
		svc.SetDestinationCode(userID, "01310-100")

		assert.Equal(t, "15.00", svc.Shipping(userID).StringFixed(2))
		assert.Equal(t, "45.00", svc.Total(userID).StringFixed(2))
	})

	t.Run("At or above the threshold shipping is free", func(t *testing.T) {
		svc, mockLines, _, _ := newCartFixture()
		load(t, svc, mockLines, []models.CartLine{
			testLine(1, userID, 10, 2, "30.00"),
			testLine(2, userID, 11, 1, "50.00"),
		})
		svc.SetDestinationCode(userID, "01310100")

		assert.Equal(t, "110.00", svc.Subtotal(userID).StringFixed(2))
		assert.True(t, svc.Shipping(userID).IsZero())
		assert.Equal(t, "110.00", svc.Total(userID).StringFixed(2))
		assert.Equal(t, 3, svc.ItemCount(userID))
	})

	t.Run("Exactly at the threshold shipping is free", func(t *testing.T) {
		svc, mockLines, _, _ := newCartFixture()
		load(t, svc, mockLines, []models.CartLine{testLine(1, userID, 10, 4, "25.00")})
		svc.SetDestinationCode(userID, "01310100")

		assert.True(t, svc.Shipping(userID).IsZero())
	})

	t.Run("One cent below the threshold pays the fee", func(t *testing.T) {
		svc, mockLines, _, _ := newCartFixture()
		load(t, svc, mockLines, []models.CartLine{testLine(1, userID, 10, 1, "99.99")})
		svc.SetDestinationCode(userID, "01310100")

		assert.Equal(t, "15.00", svc.Shipping(userID).StringFixed(2))
		assert.Equal(t, "114.99", svc.Total(userID).StringFixed(2))
	})
}

func TestFinalizeOrder(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	contact := models.ContactInfo{Name: "Jo Doe", Email: "jo@example.com", Address: "1 Main St"}

	load := func(t *testing.T, svc *service.CartService, mockLines *repository.MockCartLineRepository, lines []models.CartLine) {
		t.Helper()
		mockLines.On("ListUnattached", ctx, userID).Return(lines, nil).Once()
		svc.LoadCart(ctx, userID)
	}

	t.Run("Unauthenticated", func(t *testing.T) {
		svc, _, _, _ := newCartFixture()

		_, err := svc.FinalizeOrder(ctx, uuid.Nil, contact)

		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeUnauthorized, appErr.Code)
	})

	t.Run("Empty cart is rejected", func(t *testing.T) {
		svc, mockLines, _, _ := newCartFixture()
		load(t, svc, mockLines, nil)

		_, err := svc.FinalizeOrder(ctx, userID, contact)

		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeEmptyCart, appErr.Code)
	})

	t.Run("Success snapshots the total and resets the session", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, mockOrders := newCartFixture()
		load(t, svc, mockLines, []models.CartLine{testLine(1, userID, 10, 1, "30.00")})
		svc.SetDestinationCode(userID, "01310100")

		notifier := &mockOrderNotifier{}
		svc.WithNotifier(notifier)
		notifier.On("OrderConfirmation", ctx, mock.AnythingOfType("*models.Order")).Once()

		mockOrders.On("CreateFromCart", ctx, mock.MatchedBy(func(order *models.Order) bool {
			return order.CustomerID == userID &&
				order.Status == models.OrderStatusPending &&
				order.Total.Equal(decimal.RequireFromString("45.00")) &&
				order.Contact.DestinationCode == "01310100"
		})).Return(nil).Once()
		mockLines.On("ListUnattached", ctx, userID).Return(nil, nil).Once()

		// Act
		order, err := svc.FinalizeOrder(ctx, userID, contact)

		// Assert
		require.NoError(t, err)
		require.NotNil(t, order)
		assert.NotEqual(t, uuid.Nil, order.ID)
		assert.Equal(t, "45.00", order.Total.StringFixed(2))
		assert.Empty(t, svc.GetDestinationCode(userID), "destination code resets after checkout")
		assert.Empty(t, svc.Snapshot(userID).Lines)
		mockOrders.AssertExpectations(t)
		mockLines.AssertExpectations(t)
		notifier.AssertExpectations(t)
	})

	t.Run("Zero re-parented lines surfaces a partial checkout failure", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, mockOrders := newCartFixture()
		lines := []models.CartLine{testLine(1, userID, 10, 1, "30.00")}
		load(t, svc, mockLines, lines)

		mockOrders.On("CreateFromCart", ctx, mock.AnythingOfType("*models.Order")).Return(repository.ErrNoLinesReparented).Once()
		mockLines.On("ListUnattached", ctx, userID).Return(lines, nil).Once()

		// Act
		_, err := svc.FinalizeOrder(ctx, userID, contact)

		// Assert
		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodePartialCheckout, appErr.Code)
		assert.Len(t, svc.Snapshot(userID).Lines, 1, "cart survives the rolled back checkout")
		mockOrders.AssertExpectations(t)
	})

	t.Run("Store failure surfaces a database error and clears the guard", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, mockOrders := newCartFixture()
		lines := []models.CartLine{testLine(1, userID, 10, 1, "30.00")}
		load(t, svc, mockLines, lines)

		mockOrders.On("CreateFromCart", ctx, mock.AnythingOfType("*models.Order")).Return(errors.New("deadlock")).Once()
		mockLines.On("ListUnattached", ctx, userID).Return(lines, nil).Twice()
		mockOrders.On("CreateFromCart", ctx, mock.AnythingOfType("*models.Order")).Return(repository.ErrNoLinesReparented).Once()

		// Act
		_, err := svc.FinalizeOrder(ctx, userID, contact)
		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeDatabaseError, appErr.Code)

		// A second attempt runs: the single-flight guard was released
		_, err = svc.FinalizeOrder(ctx, userID, contact)
		appErr, ok = appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodePartialCheckout, appErr.Code)
		mockOrders.AssertExpectations(t)
	})

	t.Run("Concurrent checkout is rejected, not queued", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, mockOrders := newCartFixture()
		load(t, svc, mockLines, []models.CartLine{testLine(1, userID, 10, 1, "30.00")})

		started := make(chan struct{})
		release := make(chan struct{})

		mockOrders.On("CreateFromCart", mock.Anything, mock.AnythingOfType("*models.Order")).Run(func(mock.Arguments) {
			close(started)
			<-release
		}).Return(nil).Once()
		mockLines.On("ListUnattached", ctx, userID).Return(nil, nil).Once()

		var wg sync.WaitGroup

		var firstErr error

		wg.Add(1)

		go func() {
			defer wg.Done()
			_, firstErr = svc.FinalizeOrder(ctx, userID, contact)
		}()

		<-started

		// Act: second checkout while the first holds the guard
		_, err := svc.FinalizeOrder(ctx, userID, contact)

		// Assert
		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeCheckoutInProgress, appErr.Code)

		close(release)
		wg.Wait()
		require.NoError(t, firstErr)
		mockOrders.AssertExpectations(t)
	})
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Subscribers receive a snapshot per change", func(t *testing.T) {
		// Arrange
		svc, mockLines, _, _ := newCartFixture()
		updates, cancel := svc.Subscribe(userID)

		defer cancel()

		mockLines.On("ListUnattached", ctx, userID).Return([]models.CartLine{testLine(1, userID, 10, 2, "30.00")}, nil).Once()

		// Act
		svc.LoadCart(ctx, userID)

		// Assert
		snapshot := <-updates
		assert.Equal(t, 2, snapshot.ItemCount)
	})

	t.Run("Cancel closes the channel", func(t *testing.T) {
		svc, _, _, _ := newCartFixture()
		updates, cancel := svc.Subscribe(userID)

		cancel()

		_, open := <-updates
		assert.False(t, open)
	})
}
