package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine"
	"github.com/aqlanhadi/rekon/engine/common"
	"github.com/aqlanhadi/rekon/engine/taxes"
	"github.com/aqlanhadi/rekon/integrations/memory"
)

func newTestBus(t *testing.T) (*engine.Bus, *common.StatementLine, *common.Aml) {
	t.Helper()

	led := memory.NewLedger()
	eur := &common.Currency{Code: "EUR", DecimalPlaces: 2}

	bank := led.AddAccount(&common.Account{Code: "101401", Name: "Bank", Type: common.AccountLiquidity})
	suspense := led.AddAccount(&common.Account{Code: "101402", Name: "Bank Suspense", Type: common.AccountSuspense})
	receivable := led.AddAccount(&common.Account{Code: "121000", Name: "Receivable", Type: common.AccountReceivable, Reconcile: true})

	partner := led.AddPartner(&common.Partner{Name: "Deco Addict", CustomerRank: 1, ReceivableAccount: receivable})

	company := &common.Company{ID: 1, Name: "My Company", Currency: eur}
	journal := &common.Journal{ID: 1, Name: "Bank", CompanyID: 1, SuspenseAccount: suspense, LiquidityAccount: bank}

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	invoice := led.AddOpenAml(&common.Aml{
		Name:           "INV/2024/00001",
		Date:           date.AddDate(0, 0, -10),
		Account:        receivable,
		Partner:        partner,
		Currency:       eur,
		Balance:        decimal.NewFromInt(100),
		AmountCurrency: decimal.NewFromInt(100),
	})

	st := led.AddStatementLine(&common.StatementLine{
		Date:        date,
		PaymentRef:  "INV/2024/00001",
		Journal:     journal,
		Company:     company,
		PartnerName: partner.Name,
		Amount:      decimal.NewFromInt(100),
	})

	bus := &engine.Bus{
		Statements: led,
		Accounts:   led,
		Deps:       memory.Deps(led, taxes.NewEngine()),
	}
	return bus, st, invoice
}

func TestNew(t *testing.T) {
	bus, _, _ := newTestBus(t)
	server := New(DefaultConfig(), bus)

	if server == nil {
		t.Fatal("Expected server to be created")
	}
	if server.mux == nil {
		t.Fatal("Expected mux to be initialized")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Port != ":8080" {
		t.Errorf("Expected port ':8080', got '%s'", cfg.Port)
	}
}

func TestHealthEndpoint(t *testing.T) {
	bus, _, _ := newTestBus(t)
	server := New(DefaultConfig(), bus)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%s'", response["status"])
	}
}

func TestMountEndpoint_MethodNotAllowed(t *testing.T) {
	bus, _, _ := newTestBus(t)
	server := New(DefaultConfig(), bus)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestMountEndpoint_UnknownLine(t *testing.T) {
	bus, _, _ := newTestBus(t)
	server := New(DefaultConfig(), bus)

	body, _ := json.Marshal(map[string]int64{"st_line_id": 9999})
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(body))
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func mountSession(t *testing.T, server *Server, stLineID int64) {
	t.Helper()
	body, _ := json.Marshal(map[string]int64{"st_line_id": stLineID})
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Failed to mount session: status %d, body %s", w.Code, w.Body.String())
	}
}

func dispatch(t *testing.T, server *Server, stLineID int64, method string, args any) *httptest.ResponseRecorder {
	t.Helper()
	rawArgs, _ := json.Marshal(args)
	body, _ := json.Marshal(map[string]any{"method": method, "args": json.RawMessage(rawArgs)})
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+itoa(stLineID)+"/dispatch", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestSessionEndpoint_State(t *testing.T) {
	bus, st, _ := newTestBus(t)
	server := New(DefaultConfig(), bus)
	mountSession(t, server, st.ID)

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+itoa(st.ID), nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var response struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.State != "invalid" {
		t.Errorf("Expected state 'invalid' before matching, got '%s'", response.State)
	}
}

func TestSessionEndpoint_NotMounted(t *testing.T) {
	bus, _, _ := newTestBus(t)
	server := New(DefaultConfig(), bus)

	req := httptest.NewRequest(http.MethodGet, "/sessions/42", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestDispatchEndpoint_AddAndValidate(t *testing.T) {
	bus, st, invoice := newTestBus(t)
	server := New(DefaultConfig(), bus)
	mountSession(t, server, st.ID)

	w := dispatch(t, server, st.ID, "add_new_amls", map[string]any{"aml_ids": []int64{invoice.ID}})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var ret struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(w.Body).Decode(&ret); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if ret.State != "valid" {
		t.Errorf("Expected state 'valid' after matching, got '%s'", ret.State)
	}

	w = dispatch(t, server, st.ID, "validate", map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on validate, got %d: %s", w.Code, w.Body.String())
	}
	if !st.IsReconciled {
		t.Error("Expected statement line to be reconciled after validate")
	}
	if !invoice.Reconciled {
		t.Error("Expected invoice to be fully reconciled")
	}
}

func TestDispatchEndpoint_ValidateInvalidState(t *testing.T) {
	bus, st, _ := newTestBus(t)
	server := New(DefaultConfig(), bus)
	mountSession(t, server, st.ID)

	// No counterpart mounted: suspense is still present.
	w := dispatch(t, server, st.ID, "validate", map[string]any{})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestDispatchEndpoint_UnknownMethod(t *testing.T) {
	bus, st, _ := newTestBus(t)
	server := New(DefaultConfig(), bus)
	mountSession(t, server, st.ID)

	w := dispatch(t, server, st.ID, "no_such_method", map[string]any{})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestHandler(t *testing.T) {
	bus, _, _ := newTestBus(t)
	server := New(DefaultConfig(), bus)
	handler := server.Handler()

	if handler == nil {
		t.Fatal("Expected handler to be returned")
	}

	// Verify it's the same mux
	if handler != server.mux {
		t.Error("Expected handler to be the server's mux")
	}
}
