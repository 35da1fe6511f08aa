package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/rafaelmds/storefront-platform/internal/models"
	"github.com/stretchr/testify/mock"
)

// Hand-rolled testify mocks shared by the service and handler test suites.

type MockUserRepository struct {
	mock.Mock
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{}
}

func (m *MockUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)

	return args.Error(0)
}

func (m *MockUserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)

	user, _ := args.Get(0).(*models.User)

	return user, args.Error(1)
}

func (m *MockUserRepository) GetUserById(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)

	user, _ := args.Get(0).(*models.User)

	return user, args.Error(1)
}

type MockProductRepository struct {
	mock.Mock
}

func NewMockProductRepository() *MockProductRepository {
	return &MockProductRepository{}
}

func (m *MockProductRepository) CreateProduct(ctx context.Context, product *models.Product) error {
	args := m.Called(ctx, product)

	return args.Error(0)
}

func (m *MockProductRepository) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	args := m.Called(ctx, id)

	product, _ := args.Get(0).(*models.Product)

	return product, args.Error(1)
}

func (m *MockProductRepository) UpdateProduct(ctx context.Context, product *models.Product) error {
	args := m.Called(ctx, product)

	return args.Error(0)
}

func (m *MockProductRepository) DeleteProduct(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockProductRepository) ListProducts(ctx context.Context, page, size int) ([]*models.Product, int, error) {
	args := m.Called(ctx, page, size)

	products, _ := args.Get(0).([]*models.Product)

	return products, args.Int(1), args.Error(2)
}

type MockCartLineRepository struct {
	mock.Mock
}

func NewMockCartLineRepository() *MockCartLineRepository {
	return &MockCartLineRepository{}
}

func (m *MockCartLineRepository) ListUnattached(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	args := m.Called(ctx, userID)

	lines, _ := args.Get(0).([]models.CartLine)

	return lines, args.Error(1)
}

func (m *MockCartLineRepository) FindUnattached(ctx context.Context, userID uuid.UUID, productID int64) (*models.CartLine, error) {
	args := m.Called(ctx, userID, productID)

	line, _ := args.Get(0).(*models.CartLine)

	return line, args.Error(1)
}

func (m *MockCartLineRepository) Insert(ctx context.Context, line *models.CartLine) error {
	args := m.Called(ctx, line)

	return args.Error(0)
}

func (m *MockCartLineRepository) UpdateQuantity(ctx context.Context, id int64, quantity int) error {
	args := m.Called(ctx, id, quantity)

	return args.Error(0)
}

func (m *MockCartLineRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockCartLineRepository) DeleteAllUnattached(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)

	return args.Error(0)
}

type MockOrderRepository struct {
	mock.Mock
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{}
}

func (m *MockOrderRepository) CreateFromCart(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)

	return args.Error(0)
}

func (m *MockOrderRepository) GetOrderById(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)

	order, _ := args.Get(0).(*models.Order)

	return order, args.Error(1)
}

func (m *MockOrderRepository) ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, page, size int) ([]models.Order, int, error) {
	args := m.Called(ctx, customerID, page, size)

	orders, _ := args.Get(0).([]models.Order)

	return orders, args.Int(1), args.Error(2)
}

type MockRateLimitRepository struct {
	mock.Mock
}

func NewMockRateLimitRepository() *MockRateLimitRepository {
	return &MockRateLimitRepository{}
}

func (m *MockRateLimitRepository) CheckLoginRateLimit(ctx context.Context, username string) (bool, int, int, error) {
	args := m.Called(ctx, username)

	return args.Bool(0), args.Int(1), args.Int(2), args.Error(3)
}
