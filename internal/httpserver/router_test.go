package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	orderrepo "storefront/internal/repository/order"
	ordersvc "storefront/internal/service/order"
)

type stubResolver struct {
	cart      *domain.Cart
	findErr   error
	ensureErr error
	lastID    domain.Identity
}

func (s *stubResolver) FindActive(_ context.Context, id domain.Identity) (*domain.Cart, error) {
	s.lastID = id
	return s.cart, s.findErr
}

func (s *stubResolver) EnsureActive(_ context.Context, id domain.Identity, _ string) (*domain.Cart, error) {
	s.lastID = id
	return s.cart, s.ensureErr
}

type stubCartService struct {
	cart      *domain.Cart
	err       error
	cancelErr error
	mutations []string
}

func (s *stubCartService) Get(_ context.Context, _ int64) (*domain.Cart, error) {
	return s.cart, s.err
}

func (s *stubCartService) Add(_ context.Context, _, productID int64, quantity float64, _ *float64) (*domain.Cart, error) {
	if productID <= 0 {
		return nil, domain.Invalid("product_id", "must be a positive integer")
	}
	if quantity <= 0 {
		return nil, domain.Invalid("quantity", "must be positive")
	}
	s.mutations = append(s.mutations, "add")
	return s.cart, s.err
}

func (s *stubCartService) Set(_ context.Context, _, _ int64, _ float64, _ *float64) (*domain.Cart, error) {
	s.mutations = append(s.mutations, "set")
	return s.cart, s.err
}

func (s *stubCartService) Remove(_ context.Context, _, _ int64) (*domain.Cart, error) {
	s.mutations = append(s.mutations, "remove")
	return s.cart, s.err
}

func (s *stubCartService) Clear(_ context.Context, _ int64) (*domain.Cart, error) {
	s.mutations = append(s.mutations, "clear")
	return s.cart, s.err
}

func (s *stubCartService) Cancel(_ context.Context, _ int64) error {
	return s.cancelErr
}

type stubOrderService struct {
	order     *domain.Order
	orders    []domain.Order
	createErr error
	getErr    error
	created   []ordersvc.CreateInput
}

func (s *stubOrderService) Create(_ context.Context, in ordersvc.CreateInput) (*domain.Order, error) {
	if len(in.Items) == 0 {
		return nil, domain.Invalid("items", "must not be empty")
	}
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = append(s.created, in)
	return s.order, nil
}

func (s *stubOrderService) Get(_ context.Context, _ int64) (*domain.Order, error) {
	return s.order, s.getErr
}

func (s *stubOrderService) List(_ context.Context, _ orderrepo.ListFilter) ([]domain.Order, error) {
	return s.orders, nil
}

func logDiscard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testRouter(t *testing.T, deps Deps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.Resolver == nil {
		deps.Resolver = &stubResolver{}
	}
	if deps.Carts == nil {
		deps.Carts = &stubCartService{}
	}
	if deps.Orders == nil {
		deps.Orders = &stubOrderService{}
	}
	router, err := buildRouter(logDiscard(), nil, deps)
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	return router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return env
}

func TestGetActiveCart_BadUserID(t *testing.T) {
	router := testRouter(t, Deps{})
	rec := doJSON(router, http.MethodGet, "/cart?user_id=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.OK || !strings.Contains(env.Error, "user_id") {
		t.Fatalf("expected user_id validation message, got %+v", env)
	}
}

func TestGetActiveCart_Found(t *testing.T) {
	resolver := &stubResolver{cart: &domain.Cart{ID: 5, Currency: "USD", Status: domain.StatusActive}}
	router := testRouter(t, Deps{Resolver: resolver})

	rec := doJSON(router, http.MethodGet, "/cart?user_id=42", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resolver.lastID.UserID == nil || *resolver.lastID.UserID != 42 {
		t.Fatalf("user id not forwarded: %+v", resolver.lastID)
	}
	env := decodeEnvelope(t, rec)
	if !env.OK {
		t.Fatalf("expected ok envelope, got %+v", env)
	}
}

func TestGetActiveCart_NoneIs404(t *testing.T) {
	resolver := &stubResolver{findErr: domain.ErrNotFound}
	router := testRouter(t, Deps{Resolver: resolver})

	rec := doJSON(router, http.MethodGet, "/cart?guest_key=0b4ee04a-9c6c-4e8c-9dc2-c2ac5e4b1b50", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestEnsureCart_BadGuestKey(t *testing.T) {
	router := testRouter(t, Deps{})
	rec := doJSON(router, http.MethodPost, "/cart", `{"guest_key":"nope"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if !strings.Contains(env.Error, "guest_key") {
		t.Fatalf("expected guest_key message, got %+v", env)
	}
}

func TestEnsureCart_OK(t *testing.T) {
	resolver := &stubResolver{cart: &domain.Cart{ID: 9, Status: domain.StatusActive}}
	router := testRouter(t, Deps{Resolver: resolver})

	rec := doJSON(router, http.MethodPost, "/cart", `{"guest_key":"0b4ee04a-9c6c-4e8c-9dc2-c2ac5e4b1b50","currency":"EUR"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resolver.lastID.GuestKey == nil {
		t.Fatalf("guest key not forwarded")
	}
}

func TestPatchCart_NegativeProductID(t *testing.T) {
	carts := &stubCartService{cart: &domain.Cart{ID: 1}}
	router := testRouter(t, Deps{Carts: carts})

	rec := doJSON(router, http.MethodPatch, "/cart/1", `{"action":"add","product_id":-1,"quantity":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(carts.mutations) != 0 {
		t.Fatalf("cart must be unchanged on invalid input")
	}
}

func TestPatchCart_UnknownAction(t *testing.T) {
	router := testRouter(t, Deps{})
	rec := doJSON(router, http.MethodPatch, "/cart/1", `{"action":"merge"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPatchCart_MissingQuantity(t *testing.T) {
	router := testRouter(t, Deps{})
	rec := doJSON(router, http.MethodPatch, "/cart/1", `{"action":"add","product_id":3}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPatchCart_AddReturnsReloadedCart(t *testing.T) {
	carts := &stubCartService{cart: &domain.Cart{ID: 1, Items: []domain.CartItem{{ProductID: 3, Quantity: 2}}}}
	router := testRouter(t, Deps{Carts: carts})

	rec := doJSON(router, http.MethodPatch, "/cart/1", `{"action":"add","product_id":3,"quantity":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(carts.mutations) != 1 || carts.mutations[0] != "add" {
		t.Fatalf("expected one add mutation, got %v", carts.mutations)
	}
	env := decodeEnvelope(t, rec)
	if !env.OK || env.Data == nil {
		t.Fatalf("expected cart in envelope, got %+v", env)
	}
}

func TestDeleteCart_OK(t *testing.T) {
	router := testRouter(t, Deps{Carts: &stubCartService{}})
	rec := doJSON(router, http.MethodDelete, "/cart/4", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestDeleteCart_BadID(t *testing.T) {
	router := testRouter(t, Deps{})
	rec := doJSON(router, http.MethodDelete, "/cart/zero", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	orders := &stubOrderService{}
	router := testRouter(t, Deps{Orders: orders})

	rec := doJSON(router, http.MethodPost, "/orders", `{"items":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(orders.created) != 0 {
		t.Fatalf("no order may be created")
	}
}

func TestCreateOrder_JSONClientGets201(t *testing.T) {
	orders := &stubOrderService{order: &domain.Order{ID: 12, OrderNumber: "ORD-20260830-00FF00FF"}}
	router := testRouter(t, Deps{Orders: orders})

	rec := doJSON(router, http.MethodPost, "/orders", `{"items":[{"product_id":1,"quantity":2,"unit_price":10}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.OK {
		t.Fatalf("expected ok envelope, got %+v", env)
	}
}

func TestCreateOrder_BrowserGetsRedirect(t *testing.T) {
	orders := &stubOrderService{order: &domain.Order{
		ID:            12,
		OrderNumber:   "ORD-20260830-00FF00FF",
		CustomerType:  "guest",
		PaymentMethod: "cod",
	}}
	router := testRouter(t, Deps{Orders: orders})

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":[{"product_id":1,"quantity":1}]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	for _, want := range []string{"/orders/confirmation?", "id=12", "no=ORD-20260830-00FF00FF", "ct=guest", "pm=cod"} {
		if !strings.Contains(loc, want) {
			t.Fatalf("redirect %q missing %q", loc, want)
		}
	}
}

func TestGetOrder_ReturnsResourceDirectly(t *testing.T) {
	orders := &stubOrderService{order: &domain.Order{ID: 3, OrderNumber: "ORD-20260830-AABBCCDD"}}
	router := testRouter(t, Deps{Orders: orders})

	rec := doJSON(router, http.MethodGet, "/orders/3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var order domain.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
		t.Fatalf("order must be returned without the envelope: %v", err)
	}
	if order.ID != 3 {
		t.Fatalf("unexpected order %+v", order)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	orders := &stubOrderService{getErr: domain.ErrNotFound}
	router := testRouter(t, Deps{Orders: orders})
	rec := doJSON(router, http.MethodGet, "/orders/3", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListOrders_ReturnsArrayDirectly(t *testing.T) {
	orders := &stubOrderService{orders: []domain.Order{{ID: 1}, {ID: 2}}}
	router := testRouter(t, Deps{Orders: orders})

	rec := doJSON(router, http.MethodGet, "/orders?limit=10&customer_type=guest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []domain.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("list must be returned without the envelope: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected two orders, got %d", len(got))
	}
}

func TestUnexpectedErrorIs500(t *testing.T) {
	orders := &stubOrderService{getErr: errors.New("db down")}
	router := testRouter(t, Deps{Orders: orders})
	rec := doJSON(router, http.MethodGet, "/orders/3", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "db down") {
		t.Fatalf("technical detail must not leak: %s", rec.Body.String())
	}
}
