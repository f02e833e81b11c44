package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"bassinshop-storefront/internal/cartsync"
	"bassinshop-storefront/internal/checkout"
	"bassinshop-storefront/internal/domain"
	"bassinshop-storefront/internal/store"
)

type testEnv struct {
	backend *fakeBackend
	server  *httptest.Server
	client  *http.Client
	deps    Deps

	// cookies are attached to every request when the client has no jar,
	// standing in for a browser carrying its device cookie to a
	// restarted server.
	cookies []*http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvOpts(t, cartsync.Options{})
}

func newTestEnvOpts(t *testing.T, cartOpts cartsync.Options) *testEnv {
	t.Helper()
	backend := newFakeBackend()
	backendSrv := backend.server()
	t.Cleanup(backendSrv.Close)

	logger := log.New(io.Discard, "", 0)
	deps := Deps{
		Store:          store.NewMemory(),
		BackendBaseURL: backendSrv.URL,
		Checkout:       checkout.Config{VATRate: 0.19, ShippingCost: 20},
		CartOpts:       cartOpts,
		Logger:         logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	router, err := buildRouter(ctx, logger, deps)
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &testEnv{
		backend: backend,
		server:  srv,
		client:  &http.Client{Jar: jar},
		deps:    deps,
	}
}

// restart builds a second server over the same store and backend, with
// the device cookie carried over, emulating a process restart.
func (e *testEnv) restart(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	router, err := buildRouter(ctx, e.deps.Logger, e.deps)
	if err != nil {
		t.Fatalf("build restarted router: %v", err)
	}
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	u, err := url.Parse(e.server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	return &testEnv{
		backend: e.backend,
		server:  srv,
		client:  &http.Client{},
		deps:    e.deps,
		cookies: e.client.Jar.Cookies(u),
	}
}

// call issues a JSON request with the device cookie jar and decodes the
// response body into a generic map.
func (e *testEnv) call(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, ck := range e.cookies {
		req.AddCookie(ck)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var decoded map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode response %s: %v", raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func validCheckoutBody() map[string]interface{} {
	return map[string]interface{}{
		"client": map[string]string{
			"prenom":    "Amine",
			"nom":       "Ben Salah",
			"email":     "amine@example.com",
			"telephone": "21345678",
		},
		"livraison": map[string]string{
			"adresse":    "12 rue des Jasmins",
			"ville":      "Tunis",
			"codePostal": "1002",
		},
	}
}

func validCardBody() map[string]interface{} {
	return map[string]interface{}{
		"cardNumber":  "4111111111111111",
		"cardHolder":  "AMINE BEN SALAH",
		"expiryMonth": 12,
		"expiryYear":  2030,
		"cvv":         "123",
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)
	if status, _ := env.call(t, http.MethodGet, "/healthz", nil); status != http.StatusOK {
		t.Fatalf("healthz status %d", status)
	}
	if status, _ := env.call(t, http.MethodGet, "/readyz", nil); status != http.StatusOK {
		t.Fatalf("readyz status %d", status)
	}
}

func TestCartLifecycle(t *testing.T) {
	env := newTestEnv(t)

	status, cart := env.call(t, http.MethodPost, "/api/cart/items", map[string]interface{}{"bassinId": 1, "quantity": 1})
	if status != http.StatusOK {
		t.Fatalf("add item status %d: %v", status, cart)
	}
	items := cart["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(items))
	}
	if total := cart["totalPrice"].(float64); total != 200 {
		t.Fatalf("total after add = %v", total)
	}

	lineID := int64(items[0].(map[string]interface{})["id"].(float64))
	status, cart = env.call(t, http.MethodPut, "/api/cart/items/1/quantity", map[string]interface{}{"quantity": 3})
	if status != http.StatusOK {
		t.Fatalf("update quantity status %d: %v", status, cart)
	}
	if total := cart["totalPrice"].(float64); total != 600 {
		t.Fatalf("total after update = %v", total)
	}

	status, cart = env.call(t, http.MethodDelete, "/api/cart/items/1", nil)
	if status != http.StatusOK {
		t.Fatalf("remove line %d status %d", lineID, status)
	}
	if len(cart["items"].([]interface{})) != 0 {
		t.Fatal("cart should be empty after removal")
	}
}

func TestQuantityAboveStockRejected(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.call(t, http.MethodPost, "/api/cart/items", map[string]interface{}{"bassinId": 2, "quantity": 1})
	if status != http.StatusOK {
		t.Fatalf("add item status %d", status)
	}
	status, body := env.call(t, http.MethodPut, "/api/cart/items/1/quantity", map[string]interface{}{"quantity": 5})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %v", status, body)
	}
	errInfo := body["error"].(map[string]interface{})
	if errInfo["kind"] != "VALIDATION_ERROR" {
		t.Fatalf("kind = %v", errInfo["kind"])
	}
}

func TestCheckoutValidationBlocks(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, http.MethodPost, "/api/cart/items", map[string]interface{}{"bassinId": 1, "quantity": 1})

	body := validCheckoutBody()
	body["client"].(map[string]string)["telephone"] = "123"
	status, resp := env.call(t, http.MethodPost, "/api/checkout", body)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 on bad phone, got %d: %v", status, resp)
	}
}

func TestCheckoutEmptyCartRejected(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.call(t, http.MethodPost, "/api/checkout", validCheckoutBody())
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 on empty cart, got %d", status)
	}
}

func TestCheckoutAndPaymentHappyPath(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, http.MethodPost, "/api/cart/items", map[string]interface{}{"bassinId": 1, "quantity": 2})

	status, resp := env.call(t, http.MethodPost, "/api/checkout", validCheckoutBody())
	if status != http.StatusCreated {
		t.Fatalf("checkout status %d: %v", status, resp)
	}
	totals := resp["totals"].(map[string]interface{})
	if sub := totals["sousTotal"].(float64); sub != 400 {
		t.Fatalf("subtotal = %v", sub)
	}
	if vat := totals["tva"].(float64); vat != 76 {
		t.Fatalf("vat = %v", vat)
	}
	if total := totals["montantTotal"].(float64); total != 496 {
		t.Fatalf("total = %v", total)
	}

	status, resp = env.call(t, http.MethodPost, "/api/payment/card", validCardBody())
	if status != http.StatusOK {
		t.Fatalf("submit card status %d: %v", status, resp)
	}
	if resp["state"] != "CODE_SENT" {
		t.Fatalf("state after card = %v", resp["state"])
	}
	if secs := resp["remainingSeconds"].(float64); secs <= 0 {
		t.Fatalf("remainingSeconds = %v", secs)
	}

	status, resp = env.call(t, http.MethodPost, "/api/payment/verify", map[string]string{"code": "123456"})
	if status != http.StatusOK {
		t.Fatalf("verify status %d: %v", status, resp)
	}
	if resp["reference"] != "PAY-REF-001" {
		t.Fatalf("reference = %v", resp["reference"])
	}

	// The cart is consumed by the paid order.
	status, cart := env.call(t, http.MethodGet, "/api/cart", nil)
	if status != http.StatusOK {
		t.Fatalf("get cart status %d", status)
	}
	if len(cart["items"].([]interface{})) != 0 {
		t.Fatal("cart should be empty after payment")
	}
	if got := env.backend.cancelledOrders(); len(got) != 0 {
		t.Fatalf("paid order must not be cancelled, got %v", got)
	}
}

func TestExpiredCardRejected(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, http.MethodPost, "/api/cart/items", map[string]interface{}{"bassinId": 1, "quantity": 1})
	env.call(t, http.MethodPost, "/api/checkout", validCheckoutBody())

	card := validCardBody()
	card["expiryYear"] = 2020
	status, resp := env.call(t, http.MethodPost, "/api/payment/card", card)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 on expired card, got %d: %v", status, resp)
	}
}

func TestAbandonCancelsOrderOnce(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, http.MethodPost, "/api/cart/items", map[string]interface{}{"bassinId": 1, "quantity": 1})
	env.call(t, http.MethodPost, "/api/checkout", validCheckoutBody())
	env.call(t, http.MethodPost, "/api/payment/card", validCardBody())

	status, resp := env.call(t, http.MethodPost, "/api/payment/abandon", map[string]string{"reason": "page closed"})
	if status != http.StatusOK {
		t.Fatalf("abandon status %d: %v", status, resp)
	}
	status, _ = env.call(t, http.MethodPost, "/api/payment/abandon", map[string]string{"reason": "navigation"})
	if status != http.StatusOK {
		t.Fatalf("second abandon status %d", status)
	}

	cancelled := env.backend.cancelledOrders()
	if len(cancelled) != 1 || cancelled[0] != "CMD-2026-0001" {
		t.Fatalf("cancelled = %v, want exactly one CMD-2026-0001", cancelled)
	}
}

func TestVerifyMaxAttemptsCancelsOrder(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, http.MethodPost, "/api/cart/items", map[string]interface{}{"bassinId": 1, "quantity": 1})
	env.call(t, http.MethodPost, "/api/checkout", validCheckoutBody())
	env.call(t, http.MethodPost, "/api/payment/card", validCardBody())

	env.backend.setVerifyFailure("nombre maximum de tentatives atteint")
	status, body := env.call(t, http.MethodPost, "/api/payment/verify", map[string]string{"code": "000000"})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %v", status, body)
	}
	errInfo := body["error"].(map[string]interface{})
	if errInfo["paymentFailure"] != "max_attempts" {
		t.Fatalf("paymentFailure = %v", errInfo["paymentFailure"])
	}

	cancelled := env.backend.cancelledOrders()
	if len(cancelled) != 1 {
		t.Fatalf("cancelled = %v, want the pending order", cancelled)
	}
}

func TestLoginMigratesSessionCart(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, http.MethodPost, "/api/cart/items", map[string]interface{}{"bassinId": 1, "quantity": 1})

	status, resp := env.call(t, http.MethodPost, "/api/auth/login", map[string]string{"token": "user-token"})
	if status != http.StatusOK {
		t.Fatalf("login status %d: %v", status, resp)
	}
	if resp["cartMigrated"] != true {
		t.Fatalf("cartMigrated = %v", resp["cartMigrated"])
	}

	status, cart := env.call(t, http.MethodGet, "/api/cart", nil)
	if status != http.StatusOK {
		t.Fatalf("get cart status %d", status)
	}
	items := cart["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("migrated cart should keep its line, got %d", len(items))
	}
	if qty := items[0].(map[string]interface{})["quantity"].(float64); qty != 1 {
		t.Fatalf("quantity = %v", qty)
	}
}

func TestDeviceIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, http.MethodPost, "/api/cart/items", map[string]interface{}{"bassinId": 1, "quantity": 1})

	// A second browser with its own cookie jar must see its own cart.
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	other := &testEnv{backend: env.backend, server: env.server, client: &http.Client{Jar: jar}}
	status, cart := other.call(t, http.MethodGet, "/api/cart", nil)
	if status != http.StatusOK {
		t.Fatalf("get cart status %d", status)
	}
	if got := len(cart["items"].([]interface{})); got != 0 {
		t.Fatalf("second device sees %d foreign lines", got)
	}
}

func TestCartPricesSurviveRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	status, cart := env.call(t, http.MethodPost, "/api/cart/items", map[string]interface{}{
		"bassinId":     1,
		"quantity":     1,
		"isCustomized": true,
		"customization": domain.Customization{
			BasePrice:          200,
			MaterialName:       "Beton",
			MaterialSurcharge:  50,
			DimensionName:      "3x2m",
			DimensionSurcharge: 30,
			Color:              "bleu",
			Accessories:        []domain.Accessoire{{ID: 4, Nom: "Cascade", Prix: 20}},
		},
	})
	if status != http.StatusOK {
		t.Fatalf("add customized status %d: %v", status, cart)
	}
	line := cart["items"].([]interface{})[0].(map[string]interface{})
	if line["status"] != domain.CartStatusSurCommande {
		t.Fatalf("customized line status = %v", line["status"])
	}
	if total := cart["totalPrice"].(float64); total != 300 {
		t.Fatalf("composed total = %v", total)
	}
}

func TestSecondCheckoutCancelsSupersededOrder(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, http.MethodPost, "/api/cart/items", map[string]interface{}{"bassinId": 1, "quantity": 1})
	env.call(t, http.MethodPost, "/api/checkout", validCheckoutBody())
	env.call(t, http.MethodPost, "/api/payment/card", validCardBody())

	// The shopper navigates back and checks out again without finishing
	// the first payment.
	status, resp := env.call(t, http.MethodPost, "/api/checkout", validCheckoutBody())
	if status != http.StatusCreated {
		t.Fatalf("second checkout status %d: %v", status, resp)
	}
	order := resp["order"].(map[string]interface{})
	if order["numeroCommande"] != "CMD-2026-0002" {
		t.Fatalf("order number = %v", order["numeroCommande"])
	}

	cancelled := env.backend.cancelledOrders()
	if len(cancelled) != 1 || cancelled[0] != "CMD-2026-0001" {
		t.Fatalf("cancelled = %v, want exactly the superseded CMD-2026-0001", cancelled)
	}

	// The fresh flow is fully usable.
	status, resp = env.call(t, http.MethodPost, "/api/payment/card", validCardBody())
	if status != http.StatusOK {
		t.Fatalf("card on new flow status %d: %v", status, resp)
	}
	if resp["state"] != "CODE_SENT" {
		t.Fatalf("state = %v", resp["state"])
	}
}

func TestAbandonAfterRestartCancelsPendingOrder(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, http.MethodPost, "/api/cart/items", map[string]interface{}{"bassinId": 1, "quantity": 1})
	env.call(t, http.MethodPost, "/api/checkout", validCheckoutBody())
	env.call(t, http.MethodPost, "/api/payment/card", validCardBody())

	restarted := env.restart(t)
	status, resp := restarted.call(t, http.MethodPost, "/api/payment/abandon", map[string]string{"reason": "page closed"})
	if status != http.StatusOK {
		t.Fatalf("abandon after restart status %d: %v", status, resp)
	}

	cancelled := env.backend.cancelledOrders()
	if len(cancelled) != 1 || cancelled[0] != "CMD-2026-0001" {
		t.Fatalf("cancelled = %v, want the persisted pending order", cancelled)
	}
}

func TestAbandonWithoutPendingOrderIsQuiet(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, http.MethodPost, "/api/payment/abandon", map[string]string{"reason": "page closed"})
	if status != http.StatusOK {
		t.Fatalf("abandon status %d: %v", status, resp)
	}
	if got := env.backend.cancelledOrders(); len(got) != 0 {
		t.Fatalf("nothing to cancel, got %v", got)
	}
}

func TestPromotionExpiryRepublishedWhileIdle(t *testing.T) {
	env := newTestEnvOpts(t, cartsync.Options{RecheckEvery: 20 * time.Millisecond})
	env.backend.setPromotionUntil(time.Now().Add(300 * time.Millisecond))

	status, cart := env.call(t, http.MethodPost, "/api/cart/items", map[string]interface{}{"bassinId": 1, "quantity": 1})
	if status != http.StatusOK {
		t.Fatalf("add item status %d: %v", status, cart)
	}
	if total := cart["totalPrice"].(float64); total != 150 {
		t.Fatalf("promoted total = %v, want 150", total)
	}

	// No further cart mutation: the revaluation must come from the
	// background ticker, observed on the event stream.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/api/cart/stream", nil)
	if err != nil {
		t.Fatalf("build stream request: %v", err)
	}
	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var snap map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &snap); err != nil {
			t.Fatalf("decode stream event %q: %v", line, err)
		}
		if snap["totalPrice"].(float64) == 200 {
			return
		}
	}
	t.Fatal("expired promotion never republished on the stream")
}
