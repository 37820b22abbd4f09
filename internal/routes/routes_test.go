package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/coolpis/internal/apperr"
	"github.com/example/coolpis/internal/config"
	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository/memory"
	"github.com/example/coolpis/internal/services"
	"github.com/example/coolpis/internal/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Moved   bool            `json:"moved"`
}

type stubCompleter struct {
	reply string
}

func (s *stubCompleter) Complete(context.Context, services.CompletionRequest) (string, error) {
	return s.reply, nil
}

type testServer struct {
	app       *fiber.App
	completer *stubCompleter
}

func newTestServer(t *testing.T, cfgFn func(*config.Config)) *testServer {
	t.Helper()

	adminHash, err := utils.HashSecret("admin-pw")
	require.NoError(t, err)
	driverHash, err := utils.HashSecret("1234")
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:         "test-secret",
		TokenExpires:      time.Hour,
		AdminEmail:        "admin@example.com",
		AdminPasswordHash: adminHash,
		DriverCodeHash:    driverHash,
		FleetVehicles:     []string{"배송차1", "배송차2"},
		DispatchTimeout:   time.Second,
		OCRProvider:       services.OCRProviderVision,
		AnthropicBaseURL:  "http://127.0.0.1:1",
		AnthropicVersion:  "2023-06-01",
		ReplicateBaseURL:  "http://127.0.0.1:1",
	}
	if cfgFn != nil {
		cfgFn(cfg)
	}

	completer := &stubCompleter{}
	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler(zap.NewNop()), Immutable: true})
	Register(app, cfg, Deps{Store: memory.New(), Completer: completer}, zap.NewNop())
	return &testServer{app: app, completer: completer}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &env), string(raw))
		}
	}
	return resp.StatusCode, env
}

func (s *testServer) login(t *testing.T, path string, body any) string {
	t.Helper()
	status, env := s.do(t, http.MethodPost, path, "", body)
	require.Equal(t, http.StatusOK, status, env.Error)
	var session services.Session
	require.NoError(t, json.Unmarshal(env.Data, &session))
	return session.Token
}

func (s *testServer) customer(t *testing.T, name, regNumber string) string {
	t.Helper()
	token := s.login(t, "/api/session", nil)
	status, env := s.do(t, http.MethodPut, "/api/profile", token, services.ProfileInput{
		BusinessName:       name,
		RegistrationNumber: regNumber,
		Representative:     "대표",
		Address:            "서울",
	})
	require.Equal(t, http.StatusOK, status, env.Error)
	return token
}

func (s *testServer) placeOrder(t *testing.T, token string, lines ...services.CartLine) models.Order {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/orders", token, fiber.Map{"items": lines})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var order models.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	return order
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestCustomerOrderFlow(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t, "/api/session", nil)

	status, env := s.do(t, http.MethodPost, "/api/orders", token, fiber.Map{"items": []services.CartLine{{ProductID: "calpis-original", Quantity: 1}}})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(apperr.CodeFailedPrecondition), env.Code)
	assert.NotEmpty(t, env.Error)

	status, _ = s.do(t, http.MethodPut, "/api/profile", token, services.ProfileInput{BusinessName: "행복마트", RegistrationNumber: "1234567890"})
	require.Equal(t, http.StatusOK, status)

	order := s.placeOrder(t, token,
		services.CartLine{ProductID: "calpis-original", Quantity: 2},
		services.CartLine{ProductID: "calpis-grape", Quantity: 1},
	)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Nil(t, order.DeliveryVehicle)
	assert.Equal(t, 0, order.DeliverySequence)
	assert.Equal(t, "123-45-67890", order.RegistrationNumber)
	assert.Equal(t, int64(2*12000+13000), order.TotalPrice)

	status, env = s.do(t, http.MethodGet, "/api/orders", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Order](t, env.Data), 1)

	status, _ = s.do(t, http.MethodDelete, "/api/orders/"+order.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, env = s.do(t, http.MethodGet, "/api/orders", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]models.Order](t, env.Data))
}

func TestReturningCustomerLookup(t *testing.T) {
	s := newTestServer(t, nil)
	s.customer(t, "행복마트", "123-45-67890")

	fresh := s.login(t, "/api/session", nil)
	status, env := s.do(t, http.MethodGet, "/api/profile", fresh, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "요청한 데이터를 찾을 수 없습니다.", env.Error)

	status, env = s.do(t, http.MethodPost, "/api/profile/lookup", fresh, fiber.Map{"registrationNumber": "1234567890"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "행복마트", decode[models.BusinessProfile](t, env.Data).BusinessName)

	status, env = s.do(t, http.MethodGet, "/api/profile", fresh, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "123-45-67890", decode[models.BusinessProfile](t, env.Data).RegistrationNumber)
}

func TestRoleGuards(t *testing.T) {
	s := newTestServer(t, nil)
	customer := s.login(t, "/api/session", nil)

	status, env := s.do(t, http.MethodGet, "/api/admin/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, string(apperr.CodeUnauthenticated), env.Code)

	status, env = s.do(t, http.MethodGet, "/api/admin/orders", customer, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "접근 권한이 없습니다.", env.Error)

	status, env = s.do(t, http.MethodPost, "/api/auth/admin/login", "", fiber.Map{"email": "admin@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "이메일 또는 비밀번호가 올바르지 않습니다.", env.Error)

	driver := s.login(t, "/api/auth/driver/login", fiber.Map{"code": "1234"})
	status, _ = s.do(t, http.MethodGet, "/api/driver/vehicles", driver, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodGet, "/api/admin/stats", driver, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = s.do(t, http.MethodPost, "/api/session/logout", driver, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[services.Session](t, env.Data).Identity.Anonymous)
	status, _ = s.do(t, http.MethodGet, "/api/driver/vehicles", driver, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

type stopsResponse struct {
	Vehicle string         `json:"vehicle"`
	Orders  []models.Order `json:"orders"`
}

func stopIDs(stops stopsResponse) []string {
	ids := make([]string, len(stops.Orders))
	for i, o := range stops.Orders {
		ids[i] = o.ID
	}
	return ids
}

func TestAdminDispatchAndDriverFlow(t *testing.T) {
	s := newTestServer(t, nil)
	customer := s.customer(t, "행복마트", "1234567890")
	a := s.placeOrder(t, customer, services.CartLine{ProductID: "calpis-original", Quantity: 1})
	b := s.placeOrder(t, customer, services.CartLine{ProductID: "calpis-peach", Quantity: 3})
	c := s.placeOrder(t, customer, services.CartLine{ProductID: "calpis-mango", Quantity: 2})

	admin := s.login(t, "/api/auth/admin/login", fiber.Map{"email": "Admin@Example.com", "password": "admin-pw"})

	for _, id := range []string{a.ID, b.ID, c.ID} {
		status, env := s.do(t, http.MethodPost, "/api/admin/dispatch/assign", admin, fiber.Map{"orderId": id, "vehicle": "배송차1"})
		require.Equal(t, http.StatusOK, status, env.Error)
	}

	status, env := s.do(t, http.MethodPost, "/api/admin/dispatch/move-up", admin, fiber.Map{"orderId": c.ID})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Moved)
	assert.Equal(t, []string{a.ID, c.ID, b.ID}, stopIDs(decode[stopsResponse](t, env.Data)))

	status, env = s.do(t, http.MethodPost, "/api/admin/dispatch/move-up", admin, fiber.Map{"orderId": a.ID})
	require.Equal(t, http.StatusOK, status)
	assert.False(t, env.Moved)

	status, env = s.do(t, http.MethodPost, "/api/admin/dispatch/reorder", admin, fiber.Map{"vehicle": "배송차1", "orderIds": []string{b.ID, a.ID, c.ID}})
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Equal(t, []string{b.ID, a.ID, c.ID}, stopIDs(decode[stopsResponse](t, env.Data)))

	status, env = s.do(t, http.MethodPost, "/api/admin/dispatch/assign", admin, fiber.Map{"orderId": a.ID, "vehicle": "배송차1", "sequence": 9})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(apperr.CodeOutOfRange), env.Code)

	status, env = s.do(t, http.MethodPost, "/api/admin/dispatch/unassign", admin, fiber.Map{"orderId": b.ID})
	require.Equal(t, http.StatusOK, status, env.Error)

	driver := s.login(t, "/api/auth/driver/login", fiber.Map{"code": "1234"})
	status, env = s.do(t, http.MethodGet, "/api/driver/vehicles/"+url.PathEscape("배송차1")+"/orders", driver, nil)
	require.Equal(t, http.StatusOK, status)
	stops := decode[[]models.Order](t, env.Data)
	require.Len(t, stops, 2)
	assert.Equal(t, a.ID, stops[0].ID)
	assert.Equal(t, 1, stops[0].DeliverySequence)
	assert.Equal(t, 2, stops[1].DeliverySequence)

	status, env = s.do(t, http.MethodPost, "/api/driver/orders/swap", driver, fiber.Map{"orderA": a.ID, "orderB": c.ID})
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Equal(t, []string{c.ID, a.ID}, stopIDs(decode[stopsResponse](t, env.Data)))

	status, env = s.do(t, http.MethodPost, "/api/driver/orders/"+c.ID+"/delivered", driver, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	delivered := decode[models.Order](t, env.Data)
	assert.Equal(t, models.OrderStatusDelivered, delivered.Status)
	assert.Equal(t, 1, delivered.DeliverySequence)

	status, env = s.do(t, http.MethodGet, "/api/admin/orders/"+c.ID, admin, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Equal(t, models.OrderStatusDelivered, decode[models.Order](t, env.Data).Status)

	status, env = s.do(t, http.MethodPatch, "/api/admin/orders/"+c.ID+"/status", admin, fiber.Map{"status": "pending"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(apperr.CodeFailedPrecondition), env.Code)

	status, env = s.do(t, http.MethodGet, "/api/admin/orders?unassigned=true", admin, nil)
	require.Equal(t, http.StatusOK, status)
	unassigned := decode[[]models.Order](t, env.Data)
	require.Len(t, unassigned, 1)
	assert.Equal(t, b.ID, unassigned[0].ID)

	status, _ = s.do(t, http.MethodDelete, "/api/admin/orders/"+c.ID, admin, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, env = s.do(t, http.MethodGet, "/api/admin/dispatch/vehicles/"+url.PathEscape("배송차1")+"/orders", admin, nil)
	require.Equal(t, http.StatusOK, status)
	remaining := decode[stopsResponse](t, env.Data)
	require.Len(t, remaining.Orders, 1)
	assert.Equal(t, 1, remaining.Orders[0].DeliverySequence)
}

func TestBulkStatusAndReset(t *testing.T) {
	s := newTestServer(t, nil)
	customer := s.customer(t, "행복마트", "1234567890")
	a := s.placeOrder(t, customer, services.CartLine{ProductID: "calpis-original", Quantity: 1})
	b := s.placeOrder(t, customer, services.CartLine{ProductID: "calpis-grape", Quantity: 1})
	admin := s.login(t, "/api/auth/admin/login", fiber.Map{"email": "admin@example.com", "password": "admin-pw"})

	status, env := s.do(t, http.MethodPost, "/api/admin/orders/bulk-status", admin, fiber.Map{"orderIds": []string{a.ID, b.ID}, "status": "confirmed"})
	require.Equal(t, http.StatusOK, status, env.Error)
	for _, o := range decode[[]models.Order](t, env.Data) {
		assert.Equal(t, models.OrderStatusConfirmed, o.Status)
	}

	status, env = s.do(t, http.MethodPost, "/api/admin/orders/bulk-status", admin, fiber.Map{"orderIds": []string{a.ID, "missing"}, "status": "delivered"})
	assert.Equal(t, http.StatusNotFound, status, env.Error)
	status, env = s.do(t, http.MethodGet, "/api/admin/orders/"+a.ID, admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.OrderStatusConfirmed, decode[models.Order](t, env.Data).Status)

	for _, id := range []string{a.ID, b.ID} {
		status, _ = s.do(t, http.MethodPost, "/api/admin/dispatch/assign", admin, fiber.Map{"orderId": id, "vehicle": "배송차2"})
		require.Equal(t, http.StatusOK, status)
	}
	status, env = s.do(t, http.MethodPost, "/api/admin/dispatch/reset", admin, fiber.Map{"orderIds": []string{a.ID, b.ID}})
	require.Equal(t, http.StatusOK, status, env.Error)
	for _, o := range decode[[]models.Order](t, env.Data) {
		assert.Nil(t, o.DeliveryVehicle)
		assert.Equal(t, 0, o.DeliverySequence)
	}
}

func TestAutoDispatch(t *testing.T) {
	s := newTestServer(t, nil)
	customer := s.customer(t, "행복마트", "1234567890")
	a := s.placeOrder(t, customer, services.CartLine{ProductID: "calpis-original", Quantity: 1})
	b := s.placeOrder(t, customer, services.CartLine{ProductID: "calpis-grape", Quantity: 1})
	admin := s.login(t, "/api/auth/admin/login", fiber.Map{"email": "admin@example.com", "password": "admin-pw"})

	plan, err := json.Marshal([]services.Assignment{
		{OrderID: a.ID, Vehicle: "배송차1", Sequence: 1},
		{OrderID: b.ID, Vehicle: "배송차2", Sequence: 1},
	})
	require.NoError(t, err)
	s.completer.reply = "계획입니다: " + string(plan)

	status, env := s.do(t, http.MethodPost, "/api/admin/dispatch/ai?dry_run=true", admin, fiber.Map{"vehicleCount": 2})
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.False(t, decode[services.PlanResult](t, env.Data).Applied)
	status, env = s.do(t, http.MethodGet, "/api/admin/orders?unassigned=true", admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Order](t, env.Data), 2)

	status, env = s.do(t, http.MethodPost, "/api/admin/dispatch/ai", admin, fiber.Map{"vehicleCount": 2})
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.True(t, decode[services.PlanResult](t, env.Data).Applied)

	status, env = s.do(t, http.MethodPost, "/api/admin/dispatch/ai", admin, fiber.Map{"vehicleCount": 2})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(apperr.CodeFailedPrecondition), env.Code)

	status, env = s.do(t, http.MethodPost, "/api/admin/dispatch/ai", admin, fiber.Map{"vehicleCount": 11})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(apperr.CodeOutOfRange), env.Code)
}

func TestPaymentsAndStatements(t *testing.T) {
	s := newTestServer(t, nil)
	customer := s.customer(t, "행복마트", "1234567890")
	s.placeOrder(t, customer, services.CartLine{ProductID: "calpis-original", Quantity: 5})
	admin := s.login(t, "/api/auth/admin/login", fiber.Map{"email": "admin@example.com", "password": "admin-pw"})

	status, env := s.do(t, http.MethodPost, "/api/admin/payments", admin, fiber.Map{"registrationNumber": "1234567890", "amount": 20000})
	require.Equal(t, http.StatusCreated, status, env.Error)
	payment := decode[models.Payment](t, env.Data)
	assert.Equal(t, "행복마트", payment.BusinessName)
	assert.Equal(t, "123-45-67890", payment.RegistrationNumber)

	status, env = s.do(t, http.MethodPost, "/api/admin/payments", admin, fiber.Map{"registrationNumber": "1234567890", "amount": 0})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "잘못된 요청입니다.", env.Error)

	status, env = s.do(t, http.MethodGet, "/api/admin/statements?registrationNumber=123-45-67890", admin, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	st := decode[services.Statement](t, env.Data)
	assert.Equal(t, int64(60000), st.OrderedTotal)
	assert.Equal(t, int64(20000), st.PaidTotal)
	assert.Equal(t, int64(40000), st.Balance)

	status, env = s.do(t, http.MethodGet, "/api/admin/statements?registrationNumber=1234567890&from=2024-13-01", admin, nil)
	assert.Equal(t, http.StatusBadRequest, status, env.Error)

	status, env = s.do(t, http.MethodGet, "/api/admin/orders/by-business", admin, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	groups := decode[[]services.BusinessSummary](t, env.Data)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(60000), groups[0].TotalPrice)

	status, _ = s.do(t, http.MethodGet, "/api/admin/orders/by-business?month=2024/01", admin, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodDelete, "/api/admin/payments/"+payment.ID, admin, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, env = s.do(t, http.MethodGet, "/api/admin/payments", admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]models.Payment](t, env.Data))
}

func TestCatalogAdmin(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.login(t, "/api/auth/admin/login", fiber.Map{"email": "admin@example.com", "password": "admin-pw"})

	status, env := s.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Product](t, env.Data), 5)

	status, env = s.do(t, http.MethodPost, "/api/admin/products", admin, fiber.Map{"id": "calpis-lemon", "name": "쿨피스 레몬", "price": 13000})
	require.Equal(t, http.StatusCreated, status, env.Error)
	assert.Equal(t, "박스", decode[models.Product](t, env.Data).Unit)

	status, _ = s.do(t, http.MethodPost, "/api/admin/products", admin, fiber.Map{"id": "calpis-lemon", "name": "dup", "price": 1})
	assert.Equal(t, http.StatusConflict, status)

	status, env = s.do(t, http.MethodPut, "/api/admin/products/calpis-lemon", admin, fiber.Map{"active": false})
	require.Equal(t, http.StatusOK, status, env.Error)
	status, env = s.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Product](t, env.Data), 5)

	status, _ = s.do(t, http.MethodDelete, "/api/admin/products/calpis-lemon", admin, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(t, http.MethodGet, "/api/products/calpis-lemon", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAnthropicProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "server-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Empty(t, r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"model":"m"}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate"}`))
	}))
	defer upstream.Close()

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.AnthropicBaseURL = upstream.URL
		cfg.AnthropicAPIKey = "server-key"
	})

	req := httptest.NewRequest(http.MethodPost, "/api/anthropic/v1/messages", bytes.NewReader([]byte(`{"model":"m"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer client-token")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "1", resp.Header.Get("X-Upstream"))
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"error":"rate"}`, string(body))
}

func TestReplicateProxy(t *testing.T) {
	var upstreamHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/predictions", r.URL.Path)
		assert.Equal(t, "Bearer server-token", r.Header.Get("Authorization"))
		assert.Equal(t, "wait", r.Header.Get("Prefer"))
		assert.Equal(t, "shop-web", r.Header.Get("X-Client-Name"))
		assert.Equal(t, upstreamHost, r.Host)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"version":"v1","input":{"prompt":"calpis"}}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Location", "/v1/predictions/p1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p1","status":"starting"}`))
	}))
	defer upstream.Close()
	upstreamHost = strings.TrimPrefix(upstream.URL, "http://")

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.ReplicateBaseURL = upstream.URL
		cfg.ReplicateAPIToken = "server-token"
	})

	req := httptest.NewRequest(http.MethodPost, "/api/replicate/v1/predictions", bytes.NewReader([]byte(`{"version":"v1","input":{"prompt":"calpis"}}`)))
	req.Host = "shop.example.com"
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer client-token")
	req.Header.Set("Prefer", "wait")
	req.Header.Set("X-Client-Name", "shop-web")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "/v1/predictions/p1", resp.Header.Get("Location"))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"id":"p1","status":"starting"}`, string(body))
}

func TestProxyPreflightAndUnreachable(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/replicate/v1/predictions", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization, Prefer", resp.Header.Get("Access-Control-Allow-Headers"))

	req = httptest.NewRequest(http.MethodOptions, "/api/anthropic/v1/messages", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err = s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Content-Type", resp.Header.Get("Access-Control-Allow-Headers"))

	req = httptest.NewRequest(http.MethodGet, "/api/replicate/v1/predictions/abc", nil)
	resp, err = s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
