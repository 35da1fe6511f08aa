package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rafaelmds/storefront-platform/internal/models"
	"github.com/rafaelmds/storefront-platform/pkg/sendgrid"
)

// NotificationService sends the order confirmation e-mail after checkout.
// Failures are logged and swallowed: the order already exists and a missed
// e-mail must not fail the checkout.
type NotificationService struct {
	email sendgrid.EmailService
}

func NewNotificationService(email sendgrid.EmailService) *NotificationService {
	return &NotificationService{email: email}
}

func (s *NotificationService) OrderConfirmation(ctx context.Context, order *models.Order) {

	if s.email == nil || order.Contact.Email == "" {
		return
	}

	req := &models.EmailNotificationRequest{
		To:      order.Contact.Email,
		Subject: fmt.Sprintf("Order %s confirmed", order.ID),
		Content: fmt.Sprintf("Hi %s,\n\nYour order %s has been placed. Total: %s.\n\nThank you for shopping with us.",
			order.Contact.Name, order.ID, order.Total.StringFixed(2)),
	}

	if err := s.email.Send(ctx, req); err != nil {
		slog.Error("Failed to send order confirmation", slog.String("orderId", order.ID.String()), slog.String("error", err.Error()))
		return
	}

	slog.Info("Order confirmation sent", slog.String("orderId", order.ID.String()))
}
