package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/signature"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// orderNumberAttempts bounds suffix regeneration on order-number collisions.
const orderNumberAttempts = 5

// finalizeCacheTTL is how long a finalized payment reference stays in the
// fast-path cache. The database unique index remains the authority.
const finalizeCacheTTL = 24 * time.Hour

// OrderRepository is the durable order store consumed by the services.
// *store.Store satisfies it.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByGatewayPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	ListOrders(ctx context.Context, filter store.OrderFilter, page, pageSize int) ([]models.Order, int64, error)
	UpdateOrderStatus(ctx context.Context, id int64, status string, trackingNumber, notes *string) (*models.Order, error)
	GetStatusHistory(ctx context.Context, orderID int64) ([]models.StatusChange, error)
}

// ExpiringStore is a TTL'd key-value store keyed by payment reference. It is
// a fast path for duplicate finalize calls; may be nil.
type ExpiringStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
}

// EventPublisher publishes order lifecycle events.
type EventPublisher interface {
	PublishOrderFinalized(ctx context.Context, event *models.OrderFinalizedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// CheckoutService drives the payment-verification flow: it mints gateway
// orders, verifies settlement signatures and performs the one-time order
// creation.
type CheckoutService struct {
	repo     OrderRepository
	gateway  gateway.Client
	verifier *signature.Verifier
	cache    ExpiringStore
	events   EventPublisher
	logger   *zap.Logger
}

// NewCheckoutService creates a checkout service. cache and events may be nil.
func NewCheckoutService(
	repo OrderRepository,
	gw gateway.Client,
	verifier *signature.Verifier,
	cache ExpiringStore,
	events EventPublisher,
) *CheckoutService {
	return &CheckoutService{
		repo:     repo,
		gateway:  gw,
		verifier: verifier,
		cache:    cache,
		events:   events,
		logger:   util.GetLogger(),
	}
}

// IntentResponse echoes the gateway order back to the client.
type IntentResponse struct {
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// CreateIntent validates the amount and mints an upstream gateway order.
// amount is in major units; the gateway is called with minor units. Nothing
// is persisted locally.
func (s *CheckoutService) CreateIntent(ctx context.Context, amount float64) (*IntentResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateIntent")
	defer span.End()

	amountMinor, err := toMinorUnits(amount)
	if err != nil {
		util.IntentsFailedTotal.WithLabelValues("invalid_amount").Inc()
		return nil, err
	}
	if amountMinor <= 0 {
		util.IntentsFailedTotal.WithLabelValues("invalid_amount").Inc()
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	receipt := fmt.Sprintf("receipt_order_%d", time.Now().UnixMilli())

	gwOrder, err := s.gateway.CreateOrder(ctx, amountMinor, "INR", receipt)
	if err != nil {
		util.IntentsFailedTotal.WithLabelValues("gateway_error").Inc()
		s.logger.Error("Gateway order creation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	util.IntentsCreatedTotal.Inc()
	s.logger.Info("Gateway order created",
		zap.String("gateway_order_id", gwOrder.ID),
		zap.Int64("amount_minor", amountMinor))

	return &IntentResponse{
		GatewayOrderID: gwOrder.ID,
		Amount:         gwOrder.Amount,
		Currency:       gwOrder.Currency,
	}, nil
}

// ItemDraft is a client-asserted line item.
type ItemDraft struct {
	ProductID      int64                 `json:"product_id" binding:"required"`
	Name           string                `json:"name" binding:"required"`
	Price          string                `json:"price" binding:"required"`
	PriceValue     float64               `json:"price_value" binding:"required"`
	Quantity       int                   `json:"quantity" binding:"required,min=1"`
	Image          string                `json:"image,omitempty"`
	Specifications models.Specifications `json:"specifications,omitempty"`
}

// CustomerDraft is the client-asserted customer snapshot.
type CustomerDraft struct {
	UserID    string `json:"user_id,omitempty"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Phone     string `json:"phone" binding:"required"`
}

// ShippingDraft is the client-asserted shipping snapshot.
type ShippingDraft struct {
	Address string `json:"address" binding:"required"`
	City    string `json:"city" binding:"required"`
	State   string `json:"state" binding:"required"`
	ZipCode string `json:"zip_code" binding:"required"`
	Country string `json:"country,omitempty"`
}

// VerifyRequest carries the gateway references, the claimed signature and
// the full order draft. All state needed to finalize travels here; nothing
// was recorded at intent time.
type VerifyRequest struct {
	GatewayOrderID   string        `json:"gateway_order_id" binding:"required"`
	GatewayPaymentID string        `json:"gateway_payment_id" binding:"required"`
	Signature        string        `json:"signature" binding:"required"`
	Items            []ItemDraft   `json:"items" binding:"required,min=1,dive"`
	Customer         CustomerDraft `json:"customer" binding:"required"`
	ShippingAddress  ShippingDraft `json:"shipping_address" binding:"required"`
	Subtotal         float64       `json:"subtotal"`
	Shipping         float64       `json:"shipping"`
	Tax              float64       `json:"tax"`
	Total            float64       `json:"total"`
}

// VerifyResponse identifies the created (or already existing) order.
type VerifyResponse struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// VerifyAndFinalize checks the payment signature and, on the first valid
// call for a payment reference, creates the order. A repeat call for an
// already-finalized payment returns the existing order as a success.
func (s *CheckoutService) VerifyAndFinalize(ctx context.Context, req *VerifyRequest) (*VerifyResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.VerifyAndFinalize")
	defer span.End()

	if err := req.validate(); err != nil {
		util.VerificationsTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	if !s.verifier.Verify(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		util.VerificationsTotal.WithLabelValues("signature_mismatch").Inc()
		s.logger.Warn("Payment signature mismatch",
			zap.String("gateway_order_id", req.GatewayOrderID),
			zap.String("gateway_payment_id", req.GatewayPaymentID))
		return nil, ErrInvalidSignature
	}

	if resp, ok := s.cachedResult(ctx, req.GatewayPaymentID); ok {
		util.VerificationsTotal.WithLabelValues("duplicate").Inc()
		return resp, nil
	}

	order := s.buildOrder(req)

	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber = generateOrderNumber()

		err := s.repo.CreateOrder(ctx, order)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrDuplicateOrderNumber) {
			util.OrderNumberRetriesTotal.Inc()
			if attempt == orderNumberAttempts-1 {
				util.VerificationsTotal.WithLabelValues("conflict").Inc()
				return nil, ErrPersistenceConflict
			}
			continue
		}
		if errors.Is(err, store.ErrDuplicatePayment) {
			// Lost the race (or a retry landed after the winner): the
			// payment is already finalized, return the winner's order.
			return s.resolveDuplicate(ctx, req.GatewayPaymentID)
		}
		util.VerificationsTotal.WithLabelValues("persistence_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.cacheResult(ctx, req.GatewayPaymentID, order.ID)

	util.VerificationsTotal.WithLabelValues("finalized").Inc()
	util.OrdersFinalizedTotal.Inc()
	s.logger.Info("Payment verified, order created",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("order_id", order.ID),
		zap.String("gateway_payment_id", req.GatewayPaymentID))

	if s.events != nil {
		event := &models.OrderFinalizedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderFinalized,
				Timestamp: time.Now(),
			},
			OrderID:          order.ID,
			OrderNumber:      order.OrderNumber,
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: req.GatewayPaymentID,
			Total:            order.Total,
			Currency:         order.Payment.Currency,
		}
		if err := s.events.PublishOrderFinalized(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderFinalized event", zap.Error(err))
		}
	}

	return &VerifyResponse{OrderID: order.ID, OrderNumber: order.OrderNumber}, nil
}

func (req *VerifyRequest) validate() error {
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		return fmt.Errorf("%w: missing gateway reference fields", ErrValidation)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: order items are required", ErrValidation)
	}
	for i, item := range req.Items {
		if item.Name == "" || item.Quantity < 1 {
			return fmt.Errorf("%w: invalid item at index %d", ErrValidation, i)
		}
	}
	c := req.Customer
	if c.FirstName == "" || c.LastName == "" || c.Email == "" || c.Phone == "" {
		return fmt.Errorf("%w: customer fields are required", ErrValidation)
	}
	a := req.ShippingAddress
	if a.Address == "" || a.City == "" || a.State == "" || a.ZipCode == "" {
		return fmt.Errorf("%w: shipping address fields are required", ErrValidation)
	}
	return req.validateTotals()
}

// validateTotals recomputes the subtotal from the line items and checks the
// claimed subtotal and total in minor units. Client-asserted totals are not
// accepted verbatim.
func (req *VerifyRequest) validateTotals() error {
	var computed int64
	for _, item := range req.Items {
		unit, err := toMinorUnits(item.PriceValue)
		if err != nil {
			return fmt.Errorf("%w: invalid item price", ErrValidation)
		}
		computed += unit * int64(item.Quantity)
	}

	subtotal, err := toMinorUnits(req.Subtotal)
	if err != nil || subtotal != computed {
		return fmt.Errorf("%w: subtotal does not match line items", ErrValidation)
	}

	shipping, err := toMinorUnits(req.Shipping)
	if err != nil {
		return fmt.Errorf("%w: invalid shipping amount", ErrValidation)
	}
	tax, err := toMinorUnits(req.Tax)
	if err != nil {
		return fmt.Errorf("%w: invalid tax amount", ErrValidation)
	}

	total, err := toMinorUnits(req.Total)
	if err != nil || total != subtotal+shipping+tax {
		return fmt.Errorf("%w: total does not match subtotal, shipping and tax", ErrValidation)
	}
	return nil
}

func (s *CheckoutService) buildOrder(req *VerifyRequest) *models.Order {
	items := make([]models.OrderItem, len(req.Items))
	for i, draft := range req.Items {
		items[i] = models.OrderItem{
			ProductID:      draft.ProductID,
			Name:           draft.Name,
			Price:          draft.Price,
			PriceValue:     draft.PriceValue,
			Quantity:       draft.Quantity,
			Image:          nullString(draft.Image),
			Specifications: draft.Specifications,
		}
	}

	country := req.ShippingAddress.Country
	if country == "" {
		country = "India"
	}

	return &models.Order{
		Status: models.OrderStatusProcessing,
		Customer: models.Customer{
			UserID:    nullString(req.Customer.UserID),
			FirstName: req.Customer.FirstName,
			LastName:  req.Customer.LastName,
			Email:     req.Customer.Email,
			Phone:     req.Customer.Phone,
		},
		ShippingAddress: models.ShippingAddress{
			Address: req.ShippingAddress.Address,
			City:    req.ShippingAddress.City,
			State:   req.ShippingAddress.State,
			ZipCode: req.ShippingAddress.ZipCode,
			Country: country,
		},
		Payment: models.Payment{
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: req.GatewayPaymentID,
			GatewaySignature: req.Signature,
			Amount:           req.Total,
			Currency:         "INR",
			Status:           models.PaymentStatusCompleted,
			Method:           "razorpay",
		},
		Subtotal: req.Subtotal,
		Shipping: req.Shipping,
		Tax:      req.Tax,
		Total:    req.Total,
		Items:    items,
	}
}

func (s *CheckoutService) resolveDuplicate(ctx context.Context, paymentID string) (*VerifyResponse, error) {
	existing, err := s.repo.GetOrderByGatewayPaymentID(ctx, paymentID)
	if err != nil {
		util.VerificationsTotal.WithLabelValues("persistence_error").Inc()
		return nil, fmt.Errorf("failed to fetch existing order for payment: %w", err)
	}

	util.VerificationsTotal.WithLabelValues("duplicate").Inc()
	s.logger.Info("Duplicate finalize resolved to existing order",
		zap.String("gateway_payment_id", paymentID),
		zap.String("order_number", existing.OrderNumber))

	return &VerifyResponse{OrderID: existing.ID, OrderNumber: existing.OrderNumber}, nil
}

func (s *CheckoutService) cachedResult(ctx context.Context, paymentID string) (*VerifyResponse, bool) {
	if s.cache == nil {
		return nil, false
	}

	val, ok, err := s.cache.Get(ctx, finalizeCacheKey(paymentID))
	if err != nil {
		s.logger.Warn("Finalize cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	orderID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, false
	}
	existing, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, false
	}

	s.logger.Info("Duplicate finalize served from cache",
		zap.String("gateway_payment_id", paymentID),
		zap.String("order_number", existing.OrderNumber))
	return &VerifyResponse{OrderID: existing.ID, OrderNumber: existing.OrderNumber}, true
}

func (s *CheckoutService) cacheResult(ctx context.Context, paymentID string, orderID int64) {
	if s.cache == nil {
		return
	}
	key := finalizeCacheKey(paymentID)
	if err := s.cache.Set(ctx, key, strconv.FormatInt(orderID, 10), finalizeCacheTTL); err != nil {
		s.logger.Warn("Failed to cache finalize result", zap.Error(err))
	}
}

func finalizeCacheKey(paymentID string) string {
	return "finalized:" + paymentID
}

// toMinorUnits converts a major-unit amount to minor units, rejecting
// non-positive, non-finite and sub-minor-unit values.
func toMinorUnits(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("%w: amount is not a finite number", ErrValidation)
	}
	if amount < 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	minor := amount * 100
	rounded := math.Round(minor)
	if math.Abs(minor-rounded) > 1e-6 {
		return 0, fmt.Errorf("%w: amount has sub-minor-unit precision", ErrValidation)
	}
	return int64(rounded), nil
}

const orderNumberCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// generateOrderNumber produces ORD-YYYYMMDD-XXXXX with a random
// alphanumeric suffix. Collisions are handled by the caller's retry.
func generateOrderNumber() string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure is effectively unreachable; fall back to a
		// time-derived suffix rather than panic.
		return fmt.Sprintf("ORD-%s-%05d",
			time.Now().UTC().Format("20060102"), time.Now().UnixNano()%100000)
	}
	for i, b := range buf {
		buf[i] = orderNumberCharset[int(b)%len(orderNumberCharset)]
	}
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102"), buf)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
