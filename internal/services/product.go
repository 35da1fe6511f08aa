package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rafaelmds/storefront-platform/internal/cache"
	"github.com/rafaelmds/storefront-platform/internal/errors"
	"github.com/rafaelmds/storefront-platform/internal/models"
	repository "github.com/rafaelmds/storefront-platform/internal/repositories"
)

type ProductService interface {
	CreateProduct(ctx context.Context, req *models.CreateProductRequest) (*models.Product, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	UpdateProduct(ctx context.Context, id int64, req *models.UpdateProductRequest) (*models.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	ListProducts(ctx context.Context, page, pageSize int) ([]*models.Product, int, error)
}

type productService struct {
	repo      repository.ProductRepository
	cache     cache.Cache
	cacheTTL  time.Duration
	sanitizer *bluemonday.Policy
}

func NewProductService(repo repository.ProductRepository, productCache cache.Cache, cacheTTL time.Duration) ProductService {
	return &productService{
		repo:     repo,
		cache:    productCache,
		cacheTTL: cacheTTL,
		// catalog descriptions are operator input rendered in storefronts,
		// strip all markup
		sanitizer: bluemonday.StrictPolicy(),
	}
}

func (s *productService) CreateProduct(ctx context.Context, req *models.CreateProductRequest) (*models.Product, error) {

	if req.Price.IsNegative() {
		return nil, errors.ValidationError("Price must not be negative")
	}

	product := &models.Product{
		Name:        s.sanitizer.Sanitize(req.Name),
		Description: s.sanitizer.Sanitize(req.Description),
		Price:       req.Price,
		ImageURL:    req.ImageURL,
	}

	err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, errors.DatabaseError("Failed to create product").WithError(err)
	}

	s.invalidate(ctx, product.ID)

	return product, nil
}

func (s *productService) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {

	key := cache.Key(cache.ProductKeyPrefix, fmt.Sprintf("%d", id))

	if s.cache != nil {
		var cached models.Product

		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			slog.Warn("Product cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		} else if found {
			return &cached, nil
		}
	}

	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, errors.NotFoundError("Product not found").WithError(err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, product, s.cacheTTL); err != nil {
			slog.Warn("Product cache write failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}

	return product, nil
}

func (s *productService) UpdateProduct(ctx context.Context, id int64, req *models.UpdateProductRequest) (*models.Product, error) {

	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, errors.NotFoundError("Product not found").WithError(err)
	}

	if req.Name != nil {
		product.Name = s.sanitizer.Sanitize(*req.Name)
	}
	if req.Description != nil {
		product.Description = s.sanitizer.Sanitize(*req.Description)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, errors.ValidationError("Price must not be negative")
		}
		product.Price = *req.Price
	}
	if req.ImageURL != nil {
		product.ImageURL = *req.ImageURL
	}

	err = s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return nil, errors.DatabaseError("Failed to update product").WithError(err)
	}

	s.invalidate(ctx, product.ID)

	return product, nil
}

func (s *productService) DeleteProduct(ctx context.Context, id int64) error {

	err := s.repo.DeleteProduct(ctx, id)
	if err != nil {
		return errors.NotFoundError("Product not found").WithError(err)
	}

	s.invalidate(ctx, id)

	return nil
}

// page means "page number requested"
// pageSize means "number of products to be displayed per page"
func (s *productService) ListProducts(ctx context.Context, page, pageSize int) ([]*models.Product, int, error) {

	products, total, err := s.repo.ListProducts(ctx, page, pageSize)
	if err != nil {
		return nil, 0, errors.DatabaseError("Failed to fetch products").WithError(err)
	}

	return products, total, nil
}

func (s *productService) invalidate(ctx context.Context, id int64) {

	if s.cache == nil {
		return
	}

	key := cache.Key(cache.ProductKeyPrefix, fmt.Sprintf("%d", id))

	if err := s.cache.Delete(ctx, key); err != nil {
		slog.Warn("Product cache invalidation failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}
