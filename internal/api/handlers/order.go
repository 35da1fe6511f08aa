package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rafaelmds/storefront-platform/internal/api/middleware"
	"github.com/rafaelmds/storefront-platform/internal/errors"
	"github.com/rafaelmds/storefront-platform/internal/models"
	service "github.com/rafaelmds/storefront-platform/internal/services"
	"github.com/rafaelmds/storefront-platform/internal/utils/response"
)

type OrderHandler struct {
	orderService *service.OrderService
	validator    *validator.Validate
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService, validator: validator.New()}
}

func (h *OrderHandler) GetOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		claims, ok := r.Context().Value(middleware.UserContextKey).(*models.Claims)
		if !ok {
			response.Error(w, errors.UnauthorizedError("Authentication required"))
			return
		}

		orderID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			response.Error(w, errors.BadRequestError("Invalid order ID"))
			return
		}

		order, err := h.orderService.GetOrderById(r.Context(), claims.UserID, orderID)
		if err != nil {
			logger.Warn("Order lookup failed", slog.String("orderId", orderID.String()), slog.Any("error", err))
			response.Error(w, err)
			return
		}

		response.Success(w, http.StatusOK, order)
	}
}

func (h *OrderHandler) ListOrders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		claims, ok := r.Context().Value(middleware.UserContextKey).(*models.Claims)
		if !ok {
			response.Error(w, errors.UnauthorizedError("Authentication required"))
			return
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("size"))

		orders, total, err := h.orderService.ListOrdersByCustomer(r.Context(), claims.UserID, page, size)
		if err != nil {
			logger.Error("Failed to list orders", slog.Any("error", err))
			response.Error(w, err)
			return
		}

		if page < 1 {
			page = 1
		}
		if size < 1 || size > 10 {
			size = 10
		}

		response.Success(w, http.StatusOK, models.OrderHistoryResponse{
			Orders: orders,
			Total:  total,
			Page:   page,
			Size:   size,
		})
	}
}
