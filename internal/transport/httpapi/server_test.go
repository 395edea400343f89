package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/qrpro/internal/auth"
	"github.com/vladislavdragonenkov/qrpro/internal/catalog"
	"github.com/vladislavdragonenkov/qrpro/internal/metrics"
	"github.com/vladislavdragonenkov/qrpro/internal/service/cart"
	"github.com/vladislavdragonenkov/qrpro/internal/service/orders"
	"github.com/vladislavdragonenkov/qrpro/internal/storage/memory"
	"github.com/vladislavdragonenkov/qrpro/internal/transport/httpapi"
)

const (
	customerID = "user-1"
	strangerID = "user-2"
	adminID    = "admin-1"
)

type apiClient struct {
	t       *testing.T
	handler http.Handler
}

func newAPI(t *testing.T) apiClient {
	t.Helper()

	logger, _ := test.NewNullLogger()
	entry := log.NewEntry(logger)

	cat := catalog.Default()
	orderSvc := orders.NewService(memory.NewOrderRepository(), memory.NewTimelineRepository(), cat, orders.WithLogger(entry))
	cartSvc := cart.NewService(memory.NewCartStore(), cat, orderSvc, cart.WithLogger(entry))
	srv := httpapi.NewServer(orderSvc, cartSvc, cat, auth.HeaderAuthenticator{},
		httpapi.WithIdempotency(memory.NewIdempotencyRepository(), time.Hour),
		httpapi.WithMetrics(metrics.NewHTTPMetrics(prometheus.NewRegistry())),
		httpapi.WithLogger(entry),
	)
	return apiClient{t: t, handler: srv.Routes()}
}

type call struct {
	method  string
	path    string
	userID  string
	admin   bool
	body    any
	headers map[string]string
}

func (c apiClient) do(req call) *httptest.ResponseRecorder {
	c.t.Helper()

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		require.NoError(c.t, err)
		body = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	r.Header.Set("Content-Type", "application/json")
	if req.userID != "" {
		r.Header.Set(auth.HeaderUserID, req.userID)
	}
	if req.admin {
		r.Header.Set(auth.HeaderUserRole, "admin")
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

type orderView struct {
	ID                 string   `json:"id"`
	UserID             string   `json:"userId"`
	Status             string   `json:"status"`
	TotalAmount        int64    `json:"totalAmount"`
	Currency           string   `json:"currency"`
	Version            int64    `json:"version"`
	CanModify          bool     `json:"canModify"`
	AllowedTransitions []string `json:"allowedTransitions"`
	CancellationReason string   `json:"cancellationReason"`
	PaymentInfo        struct {
		Method string `json:"method"`
		Status string `json:"status"`
	} `json:"paymentInfo"`
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int32  `json:"quantity"`
		UnitPrice int64  `json:"unitPrice"`
	} `json:"items"`
}

type errorView struct {
	Error struct {
		Code   string   `json:"code"`
		Fields []string `json:"fields"`
	} `json:"error"`
}

func validOrderBody() map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"productId": "nfc-card", "quantity": 2},
			{"productId": "qr-stickers", "quantity": 1},
		},
		"customerInfo": map[string]any{
			"firstName": "Awa",
			"lastName":  "Diop",
			"email":     "awa@example.com",
			"phone":     "+221770000000",
			"address":   "Rue 10",
			"city":      "Dakar",
		},
		"paymentInfo": map[string]any{"method": "wave_direct", "phoneNumber": "+221770000000"},
	}
}

func (c apiClient) createOrder(userID string) orderView {
	c.t.Helper()
	w := c.do(call{method: http.MethodPost, path: "/v1/orders", userID: userID, body: validOrderBody()})
	require.Equal(c.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[orderView](c.t, w)
}

func TestProductsArePublic(t *testing.T) {
	api := newAPI(t)

	w := api.do(call{method: http.MethodGet, path: "/v1/products"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[struct {
		Products []struct {
			ID    string `json:"id"`
			Price int64  `json:"price"`
		} `json:"products"`
	}](t, w)
	require.NotEmpty(t, resp.Products)
}

func TestCreateOrderPricesFromCatalog(t *testing.T) {
	api := newAPI(t)

	order := api.createOrder(customerID)
	require.Equal(t, customerID, order.UserID)
	require.Equal(t, "pending", order.Status)
	require.EqualValues(t, 2*20000+3000, order.TotalAmount)
	require.Equal(t, "FCFA", order.Currency)
	require.Equal(t, "pending", order.PaymentInfo.Status)
	require.True(t, order.CanModify)
	require.ElementsMatch(t, []string{"processing", "cancelled"}, order.AllowedTransitions)
}

func TestCreateOrderValidation(t *testing.T) {
	api := newAPI(t)

	body := validOrderBody()
	body["customerInfo"] = map[string]any{"firstName": "Awa"}
	w := api.do(call{method: http.MethodPost, path: "/v1/orders", userID: customerID, body: body})
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := decode[errorView](t, w)
	require.Equal(t, "validation", resp.Error.Code)
	require.Contains(t, resp.Error.Fields, "customerInfo.email")

	w = api.do(call{method: http.MethodPost, path: "/v1/orders", userID: customerID, body: map[string]any{"unknown": true}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decode[errorView](t, w).Error.Fields, "body")
}

func TestAuthenticationRequired(t *testing.T) {
	api := newAPI(t)

	w := api.do(call{method: http.MethodGet, path: "/v1/orders"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "unauthenticated", decode[errorView](t, w).Error.Code)
}

func TestOrderAccessControl(t *testing.T) {
	api := newAPI(t)
	order := api.createOrder(customerID)

	w := api.do(call{method: http.MethodGet, path: "/v1/orders/" + order.ID, userID: strangerID})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(call{method: http.MethodGet, path: "/v1/orders/" + order.ID, userID: adminID, admin: true})
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(call{method: http.MethodGet, path: "/v1/orders/missing", userID: customerID})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(call{method: http.MethodGet, path: "/v1/admin/orders", userID: customerID})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(call{method: http.MethodGet, path: "/v1/orders", userID: strangerID})
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, decode[struct {
		Orders []orderView `json:"orders"`
	}](t, w).Orders)
}

func TestCustomerEditAndCancel(t *testing.T) {
	api := newAPI(t)
	order := api.createOrder(customerID)

	edit := validOrderBody()
	delete(edit, "paymentInfo")
	edit["items"] = []map[string]any{{"productId": "nfc-card-metal", "quantity": 1}}
	edit["expectedVersion"] = order.Version
	w := api.do(call{method: http.MethodPut, path: "/v1/orders/" + order.ID, userID: customerID, body: edit})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	edited := decode[orderView](t, w)
	require.EqualValues(t, 35000, edited.TotalAmount)
	require.Equal(t, order.Version+1, edited.Version)

	// Устаревшая версия.
	w = api.do(call{method: http.MethodPut, path: "/v1/orders/" + order.ID, userID: customerID, body: edit})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "conflict", decode[errorView](t, w).Error.Code)

	w = api.do(call{method: http.MethodPost, path: "/v1/orders/" + order.ID + "/cancel", userID: customerID, body: map[string]any{}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decode[errorView](t, w).Error.Fields, "reason")

	w = api.do(call{method: http.MethodPost, path: "/v1/orders/" + order.ID + "/cancel", userID: customerID, body: map[string]any{"reason": "changed my mind"}})
	require.Equal(t, http.StatusOK, w.Code)
	cancelled := decode[orderView](t, w)
	require.Equal(t, "cancelled", cancelled.Status)
	require.Equal(t, "changed my mind", cancelled.CancellationReason)
	require.False(t, cancelled.CanModify)

	delete(edit, "expectedVersion")
	w = api.do(call{method: http.MethodPut, path: "/v1/orders/" + order.ID, userID: customerID, body: edit})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(call{method: http.MethodGet, path: "/v1/orders/" + order.ID + "/timeline", userID: customerID})
	require.Equal(t, http.StatusOK, w.Code)
	timeline := decode[struct {
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}](t, w)
	require.Len(t, timeline.Events, 3)
	require.Equal(t, "OrderCreated", timeline.Events[0].Type)
	require.Equal(t, "OrderCancelled", timeline.Events[2].Type)
}

func TestAdminStatusFlow(t *testing.T) {
	api := newAPI(t)
	order := api.createOrder(customerID)
	path := "/v1/admin/orders/" + order.ID

	w := api.do(call{method: http.MethodPost, path: path + "/status", userID: adminID, admin: true, body: map[string]any{"status": "delivered"}})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "invalid_transition", decode[errorView](t, w).Error.Code)

	w = api.do(call{method: http.MethodPost, path: path + "/status", userID: adminID, admin: true, body: map[string]any{"status": "processing"}})
	require.Equal(t, http.StatusOK, w.Code)

	// Клиент больше не может отменить заказ в работе.
	w = api.do(call{method: http.MethodPost, path: "/v1/orders/" + order.ID + "/cancel", userID: customerID, body: map[string]any{"reason": "late"}})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(call{method: http.MethodPost, path: path + "/status", userID: adminID, admin: true, body: map[string]any{"status": "delivered"}})
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(call{method: http.MethodPost, path: path + "/force-status", userID: adminID, admin: true, body: map[string]any{"status": "processing", "reason": "courier returned"}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "processing", decode[orderView](t, w).Status)

	w = api.do(call{method: http.MethodPost, path: path + "/payment-status", userID: adminID, admin: true, body: map[string]any{"status": "confirmed"}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "confirmed", decode[orderView](t, w).PaymentInfo.Status)

	w = api.do(call{method: http.MethodGet, path: "/v1/admin/orders?status=processing", userID: adminID, admin: true})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[struct {
		Orders []orderView `json:"orders"`
	}](t, w).Orders, 1)

	w = api.do(call{method: http.MethodGet, path: "/v1/admin/orders?limit=abc", userID: adminID, admin: true})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCartCheckoutFlow(t *testing.T) {
	api := newAPI(t)

	w := api.do(call{method: http.MethodPost, path: "/v1/cart/items", userID: customerID, body: map[string]any{"productId": "nfc-card"}})
	require.Equal(t, http.StatusOK, w.Code)
	w = api.do(call{method: http.MethodPost, path: "/v1/cart/items", userID: customerID, body: map[string]any{"productId": "nfc-card"}})
	added := decode[struct {
		Cart struct {
			Total int64 `json:"total"`
		} `json:"cart"`
		Event struct {
			Type     string `json:"type"`
			Quantity int32  `json:"quantity"`
		} `json:"event"`
	}](t, w)
	require.Equal(t, "item_added", added.Event.Type)
	require.EqualValues(t, 2, added.Event.Quantity)
	require.EqualValues(t, 40000, added.Cart.Total)

	w = api.do(call{method: http.MethodPost, path: "/v1/cart/items", userID: customerID, body: map[string]any{"productId": "ghost"}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(call{method: http.MethodPut, path: "/v1/cart/items/nfc-card", userID: customerID, body: map[string]any{"quantity": 3}})
	require.Equal(t, http.StatusOK, w.Code)

	body := validOrderBody()
	delete(body, "items")
	w = api.do(call{method: http.MethodPost, path: "/v1/cart/checkout", userID: customerID, body: body})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[orderView](t, w)
	require.EqualValues(t, 60000, order.TotalAmount)

	w = api.do(call{method: http.MethodGet, path: "/v1/cart", userID: customerID})
	require.Equal(t, http.StatusOK, w.Code)
	require.Zero(t, decode[struct {
		Total int64 `json:"total"`
	}](t, w).Total)

	w = api.do(call{method: http.MethodPost, path: "/v1/cart/checkout", userID: customerID, body: body})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decode[errorView](t, w).Error.Fields, "items")

	w = api.do(call{method: http.MethodDelete, path: "/v1/cart", userID: customerID})
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestIdempotentCreateOrder(t *testing.T) {
	api := newAPI(t)
	headers := map[string]string{"Idempotency-Key": "checkout-42"}

	first := api.do(call{method: http.MethodPost, path: "/v1/orders", userID: customerID, body: validOrderBody(), headers: headers})
	require.Equal(t, http.StatusCreated, first.Code)

	second := api.do(call{method: http.MethodPost, path: "/v1/orders", userID: customerID, body: validOrderBody(), headers: headers})
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))
	require.Equal(t, decode[orderView](t, first).ID, decode[orderView](t, second).ID)

	other := validOrderBody()
	other["notes"] = "different"
	w := api.do(call{method: http.MethodPost, path: "/v1/orders", userID: customerID, body: other, headers: headers})
	require.Equal(t, http.StatusConflict, w.Code)

	// Ключ привязан к пользователю.
	w = api.do(call{method: http.MethodPost, path: "/v1/orders", userID: strangerID, body: validOrderBody(), headers: headers})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Empty(t, w.Header().Get("X-Idempotent-Replay"))

	list := api.do(call{method: http.MethodGet, path: "/v1/orders", userID: customerID})
	require.Len(t, decode[struct {
		Orders []orderView `json:"orders"`
	}](t, list).Orders, 1)
}

func TestIdempotentRetryAfterFailure(t *testing.T) {
	api := newAPI(t)
	headers := map[string]string{"Idempotency-Key": "retry-1"}

	bad := validOrderBody()
	bad["paymentInfo"] = map[string]any{"method": "bitcoin"}
	w := api.do(call{method: http.MethodPost, path: "/v1/orders", userID: customerID, body: bad, headers: headers})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Тот же запрос после ошибки выполняется заново, а не отдаёт сохранённую ошибку.
	w = api.do(call{method: http.MethodPost, path: "/v1/orders", userID: customerID, body: bad, headers: headers})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, w.Header().Get("X-Idempotent-Replay"))
}

func TestUnknownRoute(t *testing.T) {
	api := newAPI(t)

	w := api.do(call{method: http.MethodGet, path: "/v2/nothing"})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "route_not_found", decode[errorView](t, w).Error.Code)

	w = api.do(call{method: http.MethodGet, path: "/livez"})
	require.Equal(t, http.StatusOK, w.Code)
}
