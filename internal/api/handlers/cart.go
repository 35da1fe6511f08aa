package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/rafaelmds/storefront-platform/internal/api/middleware"
	"github.com/rafaelmds/storefront-platform/internal/errors"
	"github.com/rafaelmds/storefront-platform/internal/models"
	service "github.com/rafaelmds/storefront-platform/internal/services"
	"github.com/rafaelmds/storefront-platform/internal/utils"
	"github.com/rafaelmds/storefront-platform/internal/utils/response"
)

type CartHandler struct {
	cartService *service.CartService
	validator   *validator.Validate
}

func NewCartHandler(cartService *service.CartService) *CartHandler {
	return &CartHandler{cartService: cartService, validator: validator.New()}
}

func claimsFromRequest(w http.ResponseWriter, r *http.Request) (*models.Claims, bool) {

	claims, ok := r.Context().Value(middleware.UserContextKey).(*models.Claims)
	if !ok {
		middleware.LoggerFromContext(r.Context()).Warn("Unauthenticated cart access attempt")
		response.Error(w, errors.UnauthorizedError("Authentication required"))
		return nil, false
	}

	return claims, true
}

// GetCart reloads the authoritative cart from the store and returns the
// snapshot with derived totals.
func (h *CartHandler) GetCart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		claims, ok := claimsFromRequest(w, r)
		if !ok {
			return
		}

		snapshot := h.cartService.LoadCart(r.Context(), claims.UserID)
		response.Success(w, http.StatusOK, snapshot)
	}
}

func (h *CartHandler) AddItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		claims, ok := claimsFromRequest(w, r)
		if !ok {
			return
		}

		var req models.AddItemRequest

		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			return
		}

		snapshot, err := h.cartService.AddToCart(r.Context(), claims.UserID, req.ProductID, req.Quantity)
		if err != nil {
			logger.Error("Failed to add item to cart", slog.Int64("productId", req.ProductID), slog.Any("error", err))
			response.Error(w, err)
			return
		}

		logger.Info("Item added to cart", slog.Int64("productId", req.ProductID))
		response.Success(w, http.StatusOK, snapshot)
	}
}

func (h *CartHandler) IncrementItem() http.HandlerFunc {
	return h.nudgeItem(true)
}

func (h *CartHandler) DecrementItem() http.HandlerFunc {
	return h.nudgeItem(false)
}

func (h *CartHandler) nudgeItem(up bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		claims, ok := claimsFromRequest(w, r)
		if !ok {
			return
		}

		productID, err := strconv.ParseInt(r.PathValue("productId"), 10, 64)
		if err != nil {
			response.Error(w, errors.BadRequestError("Invalid product ID"))
			return
		}

		var snapshot models.CartSnapshot
		if up {
			snapshot = h.cartService.IncrementQuantity(r.Context(), claims.UserID, productID)
		} else {
			snapshot = h.cartService.DecrementQuantity(r.Context(), claims.UserID, productID)
		}

		response.Success(w, http.StatusOK, snapshot)
	}
}

func (h *CartHandler) RemoveItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		claims, ok := claimsFromRequest(w, r)
		if !ok {
			return
		}

		productID, err := strconv.ParseInt(r.PathValue("productId"), 10, 64)
		if err != nil {
			response.Error(w, errors.BadRequestError("Invalid product ID"))
			return
		}

		snapshot := h.cartService.RemoveItem(r.Context(), claims.UserID, productID)
		response.Success(w, http.StatusOK, snapshot)
	}
}

func (h *CartHandler) ClearCart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		claims, ok := claimsFromRequest(w, r)
		if !ok {
			return
		}

		snapshot, err := h.cartService.ClearCart(r.Context(), claims.UserID)
		if err != nil {
			logger.Error("Failed to clear cart", slog.Any("error", err))
			response.Error(w, err)
			return
		}

		response.Success(w, http.StatusOK, snapshot)
	}
}

func (h *CartHandler) SetShippingCode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		claims, ok := claimsFromRequest(w, r)
		if !ok {
			return
		}

		var req models.ShippingCodeRequest

		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			return
		}

		snapshot := h.cartService.SetDestinationCode(claims.UserID, req.Code)
		response.Success(w, http.StatusOK, snapshot)
	}
}

// Checkout promotes the cart into an order and returns it.
func (h *CartHandler) Checkout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		claims, ok := claimsFromRequest(w, r)
		if !ok {
			return
		}

		var req models.CheckoutRequest

		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			return
		}

		order, err := h.cartService.FinalizeOrder(r.Context(), claims.UserID, req.Contact)
		if err != nil {
			logger.Error("Checkout failed", slog.Any("error", err))
			response.Error(w, err)
			return
		}

		logger.Info("Checkout completed", slog.String("orderId", order.ID.String()))
		response.Success(w, http.StatusCreated, order)
	}
}

// StreamCart pushes a server-sent event with the cart snapshot on every
// change until the client disconnects.
func (h *CartHandler) StreamCart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		claims, ok := claimsFromRequest(w, r)
		if !ok {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			response.Error(w, errors.InternalError("Streaming not supported"))
			return
		}

		updates, cancel := h.cartService.Subscribe(claims.UserID)
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		// initial state so the client does not wait for the first change
		writeCartEvent(w, h.cartService.Snapshot(claims.UserID))
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				logger.Debug("Cart stream closed")
				return
			case snapshot, open := <-updates:
				if !open {
					return
				}
				writeCartEvent(w, snapshot)
				flusher.Flush()
			}
		}
	}
}

func writeCartEvent(w http.ResponseWriter, snapshot models.CartSnapshot) {

	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "event: cart\ndata: %s\n\n", data)
}
