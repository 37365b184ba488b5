package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qayd/backend/internal/cache"
	"qayd/backend/internal/domain"
	"qayd/backend/internal/service"
	"qayd/backend/internal/store/memory"
)

func testIdentity() domain.MerchantIdentity {
	return domain.MerchantIdentity{
		TradeName:      "Qayd Restaurant",
		VATNumber:      "310000000000003",
		Currency:       "SAR",
		TaxRatePercent: 15,
		FXRate:         1,
		InvoiceTerms:   "Due on receipt",
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NewMemoryReportCache(), testIdentity(), "main-branch", time.Minute)
	auth := NewAuthManager("test-secret", time.Hour, "4321", repo)
	api := New(svc, auth, "http://localhost:5173")

	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server
}

func login(t *testing.T, server *httptest.Server, username string, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	resp, err := http.Post(server.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login as %s: got status %d", username, resp.StatusCode)
	}

	var loginResp domain.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return loginResp.AccessToken
}

func fetchCSRFToken(t *testing.T, server *httptest.Server) string {
	t.Helper()

	resp, err := http.Get(server.URL + "/api/v1/auth/csrf-token")
	if err != nil {
		t.Fatalf("csrf token request failed: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Token string `json:"csrf_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode csrf token: %v", err)
	}
	if payload.Token == "" {
		t.Fatal("expected non-empty csrf token")
	}
	return payload.Token
}

func doJSON(t *testing.T, server *httptest.Server, method string, path string, token string, csrf string, payload any) *http.Response {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal request payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func openShiftHTTP(t *testing.T, server *httptest.Server, token string, csrf string, terminalID string) {
	t.Helper()

	resp := doJSON(t, server, http.MethodPost, "/api/v1/shifts/open", token, csrf, domain.ShiftOpenRequest{
		BranchID:          "main-branch",
		TerminalID:        terminalID,
		CashierName:       "Huda",
		OpeningFloatCents: 10000,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open shift: got status %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	server := newTestServer(t)

	body, _ := json.Marshal(domain.LoginRequest{Username: "cashier", Password: "wrong"})
	resp, err := http.Post(server.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", resp.StatusCode)
	}
}

func TestCheckoutAndInvoiceFlow(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, server)
	openShiftHTTP(t, server, token, csrf, "t1")

	resp := doJSON(t, server, http.MethodPost, "/api/v1/checkout", token, csrf, domain.CheckoutRequest{
		TerminalID:        "t1",
		PaymentMethod:     "cash",
		CashReceivedCents: 5000,
		CustomerName:      "Salem",
		PhoneNumber:       "0551234567",
		Items: []domain.OrderItemRequest{
			{ProductID: "prd-shawarma", Qty: 2, Addons: []domain.OrderItemAddonRequest{{AddonID: "add-garlic", Qty: 1}}},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("checkout: got status %d", resp.StatusCode)
	}
	var checkout domain.CheckoutResponse
	decodeBody(t, resp, &checkout)
	if checkout.Duplicate {
		t.Fatal("first checkout should not be flagged duplicate")
	}
	orderID := checkout.Order.ID

	resp = doJSON(t, server, http.MethodPost, "/api/v1/orders/"+orderID+"/invoice", token, csrf, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("issue invoice: got status %d", resp.StatusCode)
	}
	var issued domain.InvoiceResponse
	decodeBody(t, resp, &issued)
	if issued.Invoice.Source != "snapshot" {
		t.Fatalf("invoice source = %q, want snapshot", issued.Invoice.Source)
	}
	if issued.QRPayload == "" {
		t.Fatal("expected QR payload on issued invoice")
	}

	resp = doJSON(t, server, http.MethodGet, "/api/v1/orders/"+orderID+"/invoice", token, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get invoice: got status %d", resp.StatusCode)
	}
	var fetched domain.InvoiceResponse
	decodeBody(t, resp, &fetched)
	if fetched.Invoice.InvoiceNumber != issued.Invoice.InvoiceNumber {
		t.Fatalf("invoice number changed between issue and fetch: %q vs %q", fetched.Invoice.InvoiceNumber, issued.Invoice.InvoiceNumber)
	}

	resp = doJSON(t, server, http.MethodPost, "/api/v1/orders/"+orderID+"/invoice/print", token, csrf, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("print invoice: got status %d", resp.StatusCode)
	}
	var printed domain.InvoicePrintResponse
	decodeBody(t, resp, &printed)
	if printed.PrintCount != 1 {
		t.Fatalf("print count = %d, want 1", printed.PrintCount)
	}
	if printed.EscposBase64 == "" || printed.PreviewText == "" {
		t.Fatal("expected ESC/POS payload and text preview")
	}
}

func TestCheckoutWithoutShiftRejected(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, server)

	resp := doJSON(t, server, http.MethodPost, "/api/v1/checkout", token, csrf, domain.CheckoutRequest{
		TerminalID:        "t1",
		PaymentMethod:     "cash",
		CashReceivedCents: 2000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-falafel", Qty: 1}},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("got status %d, want 422", resp.StatusCode)
	}
}

func TestVoidOrderRequiresManagerPIN(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, server)
	openShiftHTTP(t, server, token, csrf, "t1")

	resp := doJSON(t, server, http.MethodPost, "/api/v1/checkout", token, csrf, domain.CheckoutRequest{
		TerminalID:        "t1",
		PaymentMethod:     "cash",
		CashReceivedCents: 2000,
		Items:             []domain.OrderItemRequest{{ProductID: "prd-falafel", Qty: 1}},
	})
	var checkout domain.CheckoutResponse
	decodeBody(t, resp, &checkout)

	resp = doJSON(t, server, http.MethodPost, "/api/v1/orders/"+checkout.Order.ID+"/void", token, csrf, domain.VoidOrderRequest{
		Reason:     "test",
		ManagerPIN: "9999",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong pin: got status %d, want 403", resp.StatusCode)
	}

	resp = doJSON(t, server, http.MethodPost, "/api/v1/orders/"+checkout.Order.ID+"/void", token, csrf, domain.VoidOrderRequest{
		Reason:     "customer cancelled",
		ManagerPIN: "4321",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid pin: got status %d, want 200", resp.StatusCode)
	}
	var voided domain.VoidOrderResponse
	decodeBody(t, resp, &voided)
	if voided.Status != "voided" {
		t.Fatalf("status = %q, want voided", voided.Status)
	}
}

func TestProductCreateForbiddenForCashier(t *testing.T) {
	server := newTestServer(t)
	cashierToken := login(t, server, "cashier", "cashier123")
	adminToken := login(t, server, "admin", "admin123")
	csrf := fetchCSRFToken(t, server)

	req := domain.ProductCreateRequest{
		Name:       "Hummus",
		UnitType:   "piece",
		PriceCents: 600,
		Category:   "mezze",
	}

	resp := doJSON(t, server, http.MethodPost, "/api/v1/products", cashierToken, csrf, req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cashier create product: got status %d, want 403", resp.StatusCode)
	}

	resp = doJSON(t, server, http.MethodPost, "/api/v1/products", adminToken, csrf, req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin create product: got status %d, want 201", resp.StatusCode)
	}
}

func TestReportsRequireAdminRole(t *testing.T) {
	server := newTestServer(t)
	cashierToken := login(t, server, "cashier", "cashier123")
	adminToken := login(t, server, "admin", "admin123")

	resp := doJSON(t, server, http.MethodGet, "/api/v1/reports/sales", cashierToken, "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cashier sales report: got status %d, want 403", resp.StatusCode)
	}

	resp = doJSON(t, server, http.MethodGet, "/api/v1/reports/sales", adminToken, "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin sales report: got status %d, want 200", resp.StatusCode)
	}
}

func TestSalesReportFormats(t *testing.T) {
	server := newTestServer(t)
	adminToken := login(t, server, "admin", "admin123")

	resp := doJSON(t, server, http.MethodGet, "/api/v1/reports/sales?format=csv", adminToken, "", nil)
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/csv") {
		t.Fatalf("csv content type = %q", ct)
	}
	var csvBuf bytes.Buffer
	_, _ = csvBuf.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(csvBuf.String(), "branch_id,date,orders") {
		t.Fatalf("csv missing header row: %q", csvBuf.String())
	}

	resp = doJSON(t, server, http.MethodGet, "/api/v1/reports/sales?format=html", adminToken, "", nil)
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("html content type = %q", ct)
	}
	resp.Body.Close()

	resp = doJSON(t, server, http.MethodGet, "/api/v1/reports/sales?format=xlsx", adminToken, "", nil)
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("xlsx content type = %q", ct)
	}
	var xlsxBuf bytes.Buffer
	_, _ = xlsxBuf.ReadFrom(resp.Body)
	resp.Body.Close()
	// XLSX files are zip archives.
	if !bytes.HasPrefix(xlsxBuf.Bytes(), []byte("PK")) {
		t.Fatal("xlsx payload is not a zip archive")
	}
}

func TestZoneLookup(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "cashier", "cashier123")

	resp := doJSON(t, server, http.MethodGet, "/api/v1/zones/lookup?lat=24.70&lng=46.70", token, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("zone lookup: got status %d", resp.StatusCode)
	}
	var lookup domain.ZoneLookupResponse
	decodeBody(t, resp, &lookup)
	if !lookup.Found || lookup.Zone == nil || lookup.Zone.ID != "zone-olaya" {
		t.Fatalf("lookup = %+v, want zone-olaya", lookup)
	}

	resp = doJSON(t, server, http.MethodGet, "/api/v1/zones/lookup?lat=1.0", token, "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing lng: got status %d, want 400", resp.StatusCode)
	}
}

func TestShiftReportEndpoint(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, server)
	openShiftHTTP(t, server, token, csrf, "t1")

	resp := doJSON(t, server, http.MethodGet, "/api/v1/shifts/active?terminal_id=t1", token, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("active shift: got status %d", resp.StatusCode)
	}
	var active domain.ShiftResponse
	decodeBody(t, resp, &active)

	resp = doJSON(t, server, http.MethodGet, fmt.Sprintf("/api/v1/shifts/%s/report", active.Shift.ID), token, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("shift report: got status %d", resp.StatusCode)
	}
	var report domain.ShiftReport
	decodeBody(t, resp, &report)
	if report.ExpectedCashCents != 10000 {
		t.Fatalf("expected cash = %d, want opening float 10000", report.ExpectedCashCents)
	}
}

func TestOfflineSyncEndpoint(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, server)
	openShiftHTTP(t, server, token, csrf, "t1")

	resp := doJSON(t, server, http.MethodPost, "/api/v1/sync/offline-orders", token, "", domain.OfflineSyncRequest{
		TerminalID: "t1",
		EnvelopeID: "env-1",
		Orders: []domain.OfflineOrder{
			{
				ClientOrderID: "client-1",
				Checkout: domain.CheckoutRequest{
					PaymentMethod:     "cash",
					CashReceivedCents: 2000,
					Items:             []domain.OrderItemRequest{{ProductID: "prd-falafel", Qty: 1}},
				},
			},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("offline sync: got status %d", resp.StatusCode)
	}
	var sync domain.OfflineSyncResponse
	decodeBody(t, resp, &sync)
	if len(sync.Statuses) != 1 || sync.Statuses[0].Status != "accepted" {
		t.Fatalf("statuses = %+v, want one accepted", sync.Statuses)
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, server)

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/v1/shifts/open", strings.NewReader(`{"terminal_id":"t1","cashier_name":"Huda","opening_float_cents":1000,"bogus":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", resp.StatusCode)
	}
}
