package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"checkout-service/internal/auth"
	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/signature"
	"checkout-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_key_secret"

type fakeRepo struct {
	mu     sync.Mutex
	nextID int64
	orders map[string]*models.Order
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[string]*models.Order)}
}

func (f *fakeRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[order.Payment.GatewayPaymentID]; ok {
		return store.ErrDuplicatePayment
	}
	f.nextID++
	order.ID = f.nextID
	saved := *order
	f.orders[order.Payment.GatewayPaymentID] = &saved
	return nil
}

func (f *fakeRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.ID == id {
			return order, nil
		}
	}
	return nil, store.ErrOrderNotFound
}

func (f *fakeRepo) GetOrderByGatewayPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order, ok := f.orders[paymentID]; ok {
		return order, nil
	}
	return nil, store.ErrOrderNotFound
}

func (f *fakeRepo) ListOrders(ctx context.Context, filter store.OrderFilter, page, pageSize int) ([]models.Order, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []models.Order
	for _, order := range f.orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		all = append(all, *order)
	}
	return all, int64(len(all)), nil
}

func (f *fakeRepo) UpdateOrderStatus(ctx context.Context, id int64, status string, trackingNumber, notes *string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.ID == id {
			order.Status = status
			return order, nil
		}
	}
	return nil, store.ErrOrderNotFound
}

func (f *fakeRepo) GetStatusHistory(ctx context.Context, orderID int64) ([]models.StatusChange, error) {
	return nil, nil
}

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fakeGateway struct{}

func (fakeGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*gateway.Order, error) {
	return &gateway.Order{ID: "gw_order_1", Amount: amountMinor, Currency: currency}, nil
}

// tokenVerifier maps fixed tokens to principals.
type tokenVerifier map[string]*auth.Principal

func (v tokenVerifier) Verify(ctx context.Context, token string) (*auth.Principal, error) {
	if principal, ok := v[token]; ok {
		return principal, nil
	}
	return nil, auth.ErrUnauthorized
}

func setupRouter(t *testing.T) (*gin.Engine, *fakeRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newFakeRepo()
	verifier, err := signature.NewVerifier([]byte(testSecret))
	require.NoError(t, err)

	checkout := service.NewCheckoutService(repo, fakeGateway{}, verifier, nil, nil)
	fulfillment := service.NewFulfillmentService(repo, nil)

	tokens := tokenVerifier{
		"user-token":  {UserID: "u1", Role: "customer"},
		"admin-token": {UserID: "a1", Role: "admin"},
	}

	router := gin.New()
	handler := NewHandler(checkout, fulfillment, tokens)
	handler.SetupRoutes(router)
	return router, repo
}

func doJSON(router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func signRefs(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyBody(sig string) map[string]interface{} {
	return map[string]interface{}{
		"gateway_order_id":   "gw_order_1",
		"gateway_payment_id": "gw_pay_1",
		"signature":          sig,
		"items": []map[string]interface{}{
			{"product_id": 7, "name": "Surveyor Drone", "price": "₹1,79,000", "price_value": 179000, "quantity": 1},
		},
		"customer": map[string]interface{}{
			"first_name": "Asha", "last_name": "Verma",
			"email": "asha@example.com", "phone": "+919800000001",
		},
		"shipping_address": map[string]interface{}{
			"address": "14 MG Road", "city": "Bengaluru",
			"state": "Karnataka", "zip_code": "560001",
		},
		"subtotal": 179000,
		"shipping": 500,
		"tax":      0,
		"total":    179500,
	}
}

func TestCreatePaymentOrder(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/payment/create-order", "", gin.H{"amount": 199.00})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Order   struct {
			GatewayOrderID string `json:"gateway_order_id"`
			Amount         int64  `json:"amount"`
			Currency       string `json:"currency"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "gw_order_1", resp.Order.GatewayOrderID)
	assert.Equal(t, int64(19900), resp.Order.Amount)
}

func TestCreatePaymentOrderBadAmount(t *testing.T) {
	router, _ := setupRouter(t)

	for _, body := range []interface{}{
		gin.H{"amount": 0},
		gin.H{"amount": -5},
		gin.H{"amount": "not-a-number"},
	} {
		w := doJSON(router, http.MethodPost, "/payment/create-order", "", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestVerifyRequiresAuth(t *testing.T) {
	router, repo := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/payment/verify", "", verifyBody(signRefs("gw_order_1", "gw_pay_1")))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodPost, "/payment/verify", "bogus-token", verifyBody(signRefs("gw_order_1", "gw_pay_1")))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Zero(t, repo.count())
}

func TestVerifyHappyPath(t *testing.T) {
	router, repo := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/payment/verify", "user-token", verifyBody(signRefs("gw_order_1", "gw_pay_1")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			OrderID     int64  `json:"order_id"`
			OrderNumber string `json:"order_number"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Regexp(t, `^ORD-\d{8}-[0-9A-Z]{5}$`, resp.Data.OrderNumber)
	assert.Equal(t, 1, repo.count())
}

func TestVerifyTamperedSignature(t *testing.T) {
	router, repo := setupRouter(t)

	sig := signRefs("gw_order_1", "gw_pay_1")
	tampered := "0" + sig[1:]
	if tampered == sig {
		tampered = "1" + sig[1:]
	}

	w := doJSON(router, http.MethodPost, "/payment/verify", "user-token", verifyBody(tampered))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
	// The expected digest must never leak in the response.
	assert.NotContains(t, w.Body.String(), sig)

	assert.Zero(t, repo.count(), "a rejected signature must not create an order")
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(router, http.MethodGet, "/payment/orders", "user-token", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodGet, "/payment/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/payment/orders", "admin-token", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetOrderNotFound(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(router, http.MethodGet, "/payment/orders/999", "admin-token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	router, repo := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/payment/verify", "user-token", verifyBody(signRefs("gw_order_1", "gw_pay_1")))
	require.Equal(t, http.StatusOK, w.Code)

	order, err := repo.GetOrderByGatewayPaymentID(context.Background(), "gw_pay_1")
	require.NoError(t, err)

	path := fmt.Sprintf("/payment/orders/%d/status", order.ID)

	w = doJSON(router, http.MethodPut, path, "admin-token", gin.H{"status": "shipped", "tracking_number": "TRK123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(router, http.MethodPut, path, "admin-token", gin.H{"status": "in_transit"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPut, "/payment/orders/999/status", "admin-token", gin.H{"status": "shipped"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
