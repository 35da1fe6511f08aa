package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	appErrors "github.com/rafaelmds/storefront-platform/internal/errors"
	"github.com/rafaelmds/storefront-platform/internal/metrics"
	"github.com/rafaelmds/storefront-platform/internal/models"
	repository "github.com/rafaelmds/storefront-platform/internal/repositories"
	"github.com/shopspring/decimal"
)

// OrderNotifier receives the order produced by a successful checkout.
// Delivery is best effort; the checkout result does not depend on it.
type OrderNotifier interface {
	OrderConfirmation(ctx context.Context, order *models.Order)
}

// CartService keeps, per authenticated shopper, a materialized view of their
// cart and mediates every mutation against the store. The cached view is
// refreshed from the store after each write: the service never trusts its own
// optimistic projection as final truth.
type CartService struct {
	lines    repository.CartLineRepository
	products repository.ProductRepository
	orders   repository.OrderRepository
	notifier OrderNotifier

	freeShippingThreshold decimal.Decimal
	flatShippingFee       decimal.Decimal

	mu       sync.Mutex
	sessions map[uuid.UUID]*cartSession
}

// cartSession is the per-shopper state: cached ordered lines, the
// session-scoped destination code, the single-flight checkout guard and the
// change subscribers. The mutex serializes mutations for one shopper;
// different shoppers never contend.
type cartSession struct {
	mu        sync.Mutex
	lines     []models.CartLine
	destCode  string
	checkout  atomic.Bool
	subs      map[int]chan models.CartSnapshot
	nextSubID int
}

func NewCartService(lines repository.CartLineRepository, products repository.ProductRepository, orders repository.OrderRepository, freeShippingThreshold, flatShippingFee decimal.Decimal) *CartService {
	return &CartService{
		lines:                 lines,
		products:              products,
		orders:                orders,
		freeShippingThreshold: freeShippingThreshold,
		flatShippingFee:       flatShippingFee,
		sessions:              make(map[uuid.UUID]*cartSession),
	}
}

// WithNotifier attaches a best-effort checkout notifier.
func (s *CartService) WithNotifier(n OrderNotifier) *CartService {
	s.notifier = n
	return s
}

func (s *CartService) session(userID uuid.UUID) *cartSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = &cartSession{subs: make(map[int]chan models.CartSnapshot)}
		s.sessions[userID] = sess
	}

	return sess
}

// LoadCart refreshes the cached view from the store. A transport failure is
// logged and presented as an empty cart rather than surfaced: this is a
// best-effort read-repair path, not a user-facing action.
func (s *CartService) LoadCart(ctx context.Context, userID uuid.UUID) models.CartSnapshot {

	sess := s.session(userID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	s.reloadLocked(ctx, sess, userID)

	return s.snapshotLocked(sess)
}

// reloadLocked re-reads the authoritative cart lines. The caller holds
// sess.mu.
func (s *CartService) reloadLocked(ctx context.Context, sess *cartSession, userID uuid.UUID) {

	lines, err := s.lines.ListUnattached(ctx, userID)
	if err != nil {
		slog.Error("Failed to reload cart, presenting empty cart", slog.String("userId", userID.String()), slog.String("error", err.Error()))
		sess.lines = nil
	} else {
		sess.lines = lines
	}

	s.publishLocked(sess)
}

// AddToCart adds quantity units of the product to the shopper's cart. An
// existing line for the product is incremented; otherwise a new line is
// inserted. Either path re-syncs the cached view so server-assigned
// identifiers and true state are picked up.
func (s *CartService) AddToCart(ctx context.Context, userID uuid.UUID, productID int64, quantity int) (models.CartSnapshot, error) {

	if userID == uuid.Nil {
		return models.CartSnapshot{}, appErrors.UnauthorizedError("Sign in to add items to the cart")
	}

	if quantity < 1 {
		quantity = 1
	}

	sess := s.session(userID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	existing, err := s.lines.FindUnattached(ctx, userID, productID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		metrics.CartOperation("add", "error")
		return s.snapshotLocked(sess), appErrors.DatabaseError("Failed to add item to cart").WithError(err)
	}

	if existing != nil {
		err = s.lines.UpdateQuantity(ctx, existing.ID, existing.Quantity+quantity)
	} else {
		if _, perr := s.products.GetProductByID(ctx, productID); perr != nil {
			metrics.CartOperation("add", "error")
			return s.snapshotLocked(sess), appErrors.NotFoundError("Product not found").WithError(perr)
		}

		err = s.lines.Insert(ctx, &models.CartLine{UserID: userID, ProductID: productID, Quantity: quantity})
	}

	// The write may have partially succeeded, so re-sync regardless of its
	// outcome before reporting anything to the caller.
	s.reloadLocked(ctx, sess, userID)

	if err != nil {
		metrics.CartOperation("add", "error")
		return s.snapshotLocked(sess), appErrors.DatabaseError("Failed to add item to cart").WithError(err)
	}

	metrics.CartOperation("add", "ok")

	return s.snapshotLocked(sess), nil
}

// IncrementQuantity bumps the cached line for the product by one. Absent
// lines are a no-op. Write failures are logged and swallowed; the next
// re-sync reconciles the view.
func (s *CartService) IncrementQuantity(ctx context.Context, userID uuid.UUID, productID int64) models.CartSnapshot {
	return s.nudgeQuantity(ctx, userID, productID, +1)
}

// DecrementQuantity lowers the cached line for the product by one but never
// below one; removal is a distinct explicit operation.
func (s *CartService) DecrementQuantity(ctx context.Context, userID uuid.UUID, productID int64) models.CartSnapshot {
	return s.nudgeQuantity(ctx, userID, productID, -1)
}

func (s *CartService) nudgeQuantity(ctx context.Context, userID uuid.UUID, productID int64, delta int) models.CartSnapshot {

	sess := s.session(userID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	line := findLine(sess.lines, productID)
	if line == nil {
		return s.snapshotLocked(sess)
	}

	newQuantity := line.Quantity + delta
	if newQuantity < 1 {
		return s.snapshotLocked(sess)
	}

	if err := s.lines.UpdateQuantity(ctx, line.ID, newQuantity); err != nil {
		slog.Error("Failed to update cart line quantity", slog.String("userId", userID.String()), slog.Int64("productId", productID), slog.String("error", err.Error()))
		metrics.CartOperation("nudge", "error")
	} else {
		metrics.CartOperation("nudge", "ok")
	}

	s.reloadLocked(ctx, sess, userID)

	return s.snapshotLocked(sess)
}

// RemoveItem deletes the persisted line for the product. Removing a product
// that is not in the cart is a no-op.
func (s *CartService) RemoveItem(ctx context.Context, userID uuid.UUID, productID int64) models.CartSnapshot {

	sess := s.session(userID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	line := findLine(sess.lines, productID)
	if line == nil || line.ID == 0 {
		return s.snapshotLocked(sess)
	}

	if err := s.lines.Delete(ctx, line.ID); err != nil {
		slog.Error("Failed to remove cart line", slog.String("userId", userID.String()), slog.Int64("productId", productID), slog.String("error", err.Error()))
		metrics.CartOperation("remove", "error")
	} else {
		metrics.CartOperation("remove", "ok")
	}

	s.reloadLocked(ctx, sess, userID)

	return s.snapshotLocked(sess)
}

// ClearCart bulk-deletes every in-cart line the shopper owns. Local state and
// the destination code reset only once the remote delete has succeeded, so a
// failed delete never produces a phantom-empty cart that reappears on the
// next reload.
func (s *CartService) ClearCart(ctx context.Context, userID uuid.UUID) (models.CartSnapshot, error) {

	sess := s.session(userID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.lines.DeleteAllUnattached(ctx, userID); err != nil {
		metrics.CartOperation("clear", "error")
		s.reloadLocked(ctx, sess, userID)
		return s.snapshotLocked(sess), appErrors.DatabaseError("Failed to clear cart").WithError(err)
	}

	sess.destCode = ""
	s.reloadLocked(ctx, sess, userID)

	metrics.CartOperation("clear", "ok")

	return s.snapshotLocked(sess), nil
}

// SetDestinationCode stores the shipping destination code for the session,
// normalized to its digits. Pure local state, never persisted remotely.
func (s *CartService) SetDestinationCode(userID uuid.UUID, raw string) models.CartSnapshot {

	sess := s.session(userID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.destCode = normalizeDigits(raw)
	s.publishLocked(sess)

	return s.snapshotLocked(sess)
}

func (s *CartService) GetDestinationCode(userID uuid.UUID) string {

	sess := s.session(userID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	return sess.destCode
}

// Snapshot returns the current cart view with totals recomputed from the
// cached lines. Derived values are never stored.
func (s *CartService) Snapshot(userID uuid.UUID) models.CartSnapshot {

	sess := s.session(userID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	return s.snapshotLocked(sess)
}

func (s *CartService) Subtotal(userID uuid.UUID) decimal.Decimal {
	return s.Snapshot(userID).Subtotal
}

func (s *CartService) Shipping(userID uuid.UUID) decimal.Decimal {
	return s.Snapshot(userID).Shipping
}

func (s *CartService) Total(userID uuid.UUID) decimal.Decimal {
	return s.Snapshot(userID).Total
}

func (s *CartService) ItemCount(userID uuid.UUID) int {
	return s.Snapshot(userID).ItemCount
}

// FinalizeOrder promotes the current cart into an order. The order total is
// a snapshot of the cart total at this moment and is never recomputed. Order
// insert and line re-parenting run in one storage transaction. A second call
// while one is in flight is rejected immediately, not queued.
func (s *CartService) FinalizeOrder(ctx context.Context, userID uuid.UUID, contact models.ContactInfo) (*models.Order, error) {

	if userID == uuid.Nil {
		return nil, appErrors.UnauthorizedError("Sign in to finalize the order")
	}

	sess := s.session(userID)

	if !sess.checkout.CompareAndSwap(false, true) {
		metrics.Checkout("rejected_in_progress")
		return nil, appErrors.CheckoutInProgressError("A checkout is already in progress")
	}
	defer sess.checkout.Store(false)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if len(sess.lines) == 0 {
		metrics.Checkout("rejected_empty_cart")
		return nil, appErrors.EmptyCartError("Cannot finalize an order with an empty cart")
	}

	if contact.DestinationCode == "" {
		contact.DestinationCode = sess.destCode
	}

	order := &models.Order{
		ID:         uuid.New(),
		CustomerID: userID,
		Status:     models.OrderStatusPending,
		Total:      s.totalLocked(sess),
		Contact:    contact,
	}

	err := s.orders.CreateFromCart(ctx, order)

	// Whatever the outcome, the cached view must converge on what the store
	// actually holds.
	s.reloadLocked(ctx, sess, userID)

	if err != nil {
		if errors.Is(err, repository.ErrNoLinesReparented) {
			metrics.Checkout("partial_failure")
			return nil, appErrors.PartialCheckoutError("Order could not claim the cart lines").WithError(err)
		}

		metrics.Checkout("error")
		return nil, appErrors.DatabaseError("Failed to finalize order").WithError(err)
	}

	sess.destCode = ""
	s.publishLocked(sess)

	metrics.Checkout("ok")
	slog.Info("Order finalized", slog.String("userId", userID.String()), slog.String("orderId", order.ID.String()), slog.String("total", order.Total.String()))

	if s.notifier != nil {
		s.notifier.OrderConfirmation(ctx, order)
	}

	return order, nil
}

// Subscribe returns a channel receiving a cart snapshot after every change to
// the cached state, and a cancel function releasing the subscription.
// Deliveries to a full channel are dropped; subscribers always converge on
// the latest snapshot with the next change.
func (s *CartService) Subscribe(userID uuid.UUID) (<-chan models.CartSnapshot, func()) {

	sess := s.session(userID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	id := sess.nextSubID
	sess.nextSubID++

	ch := make(chan models.CartSnapshot, 8)
	sess.subs[id] = ch

	cancel := func() {
		sess.mu.Lock()
		defer sess.mu.Unlock()

		if sub, ok := sess.subs[id]; ok {
			delete(sess.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

func (s *CartService) publishLocked(sess *cartSession) {

	if len(sess.subs) == 0 {
		return
	}

	snapshot := s.snapshotLocked(sess)

	for _, sub := range sess.subs {
		select {
		case sub <- snapshot:
		default:
		}
	}
}

func (s *CartService) snapshotLocked(sess *cartSession) models.CartSnapshot {

	lines := make([]models.CartLine, len(sess.lines))
	copy(lines, sess.lines)

	subtotal := s.subtotalLocked(sess)
	shipping := s.shippingLocked(sess, subtotal)

	count := 0
	for _, line := range sess.lines {
		count += line.Quantity
	}

	return models.CartSnapshot{
		Lines:           lines,
		DestinationCode: sess.destCode,
		Subtotal:        subtotal,
		Shipping:        shipping,
		Total:           subtotal.Add(shipping),
		ItemCount:       count,
	}
}

func (s *CartService) subtotalLocked(sess *cartSession) decimal.Decimal {

	subtotal := decimal.Zero

	for _, line := range sess.lines {
		subtotal = subtotal.Add(line.LineTotal())
	}

	return subtotal
}

// Shipping is free until a destination code is supplied, and free again once
// the subtotal reaches the threshold; otherwise the flat fee applies.
func (s *CartService) shippingLocked(sess *cartSession, subtotal decimal.Decimal) decimal.Decimal {

	if sess.destCode == "" {
		return decimal.Zero
	}

	if subtotal.GreaterThanOrEqual(s.freeShippingThreshold) {
		return decimal.Zero
	}

	return s.flatShippingFee
}

func (s *CartService) totalLocked(sess *cartSession) decimal.Decimal {
	subtotal := s.subtotalLocked(sess)
	return subtotal.Add(s.shippingLocked(sess, subtotal))
}

func findLine(lines []models.CartLine, productID int64) *models.CartLine {
	for i := range lines {
		if lines[i].ProductID == productID {
			return &lines[i]
		}
	}

	return nil
}

func normalizeDigits(raw string) string {

	out := make([]rune, 0, len(raw))

	for _, r := range raw {
		if r >= '0' && r <= '9' {
			out = append(out, r)
		}
	}

	return string(out)
}
