package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jpgonzalezra/dp2p-engine/internal/config"
	"github.com/jpgonzalezra/dp2p-engine/internal/tokenledger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testOwner    = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testInstance = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	testAgent    = "0xcccccccccccccccccccccccccccccccccccccccc"
	testSeller   = "0xdddddddddddddddddddddddddddddddddddddddd"
	testToken    = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
)

// testConfig returns a minimal in-memory config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		Env:             "development",
		LogLevel:        "error",
		OwnerAddress:    testOwner,
		InstanceAddress: testInstance,
		PlatformFeeBPS:  50,
	}
}

// newTestServer creates an in-memory server with its token ledger exposed
func newTestServer(t *testing.T) (*Server, *tokenledger.MemoryLedger) {
	t.Helper()
	ledger := tokenledger.NewMemoryLedger(testInstance)
	s, err := New(testConfig(), WithLedger(ledger))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s, ledger
}

func doJSON(t *testing.T, s *Server, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-Caller-Address", caller)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "GET", "/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "GET", "/health/live", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessBeforeRun(t *testing.T) {
	s, _ := newTestServer(t)

	// Run() has not been called, so the server is not ready yet
	w := doJSON(t, s, "GET", "/ready", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before Run, got %d", w.Code)
	}
}

func TestInfoEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "GET", "/", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "dp2p-engine") {
		t.Errorf("Expected info payload, got %s", w.Body.String())
	}
}

func TestAgentRegistrationFlow(t *testing.T) {
	s, _ := newTestServer(t)

	// Non-owner cannot register an agent
	w := doJSON(t, s, "POST", "/v1/agents", testSeller, `{"address":"`+testAgent+`","feeBps":500}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-owner, got %d: %s", w.Code, w.Body.String())
	}

	// Owner registers the agent
	w = doJSON(t, s, "POST", "/v1/agents", testOwner, `{"address":"`+testAgent+`","feeBps":500}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Agent is now visible
	w = doJSON(t, s, "GET", "/v1/agents/"+testAgent, "", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestEscrowCreateOverHTTP(t *testing.T) {
	s, ledger := newTestServer(t)

	// Register the agent and fund the seller
	w := doJSON(t, s, "POST", "/v1/agents", testOwner, `{"address":"`+testAgent+`","feeBps":500}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("agent registration failed: %d %s", w.Code, w.Body.String())
	}
	ledger.Mint(testToken, testSeller, big.NewInt(1000000))

	body := `{"agentAddr":"` + testAgent + `","tokenAddr":"` + testToken + `","limitHours":24,"salt":"1","amount":"1000000"}`
	w = doJSON(t, s, "POST", "/v1/escrows", testSeller, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Escrow struct {
			ID      string `json:"id"`
			Balance string `json:"balance"`
		} `json:"escrow"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	// 1000000 at a 50 bp platform fee: 5000 skimmed, 995000 credited
	if resp.Escrow.Balance != "995000" {
		t.Errorf("Expected balance 995000, got %s", resp.Escrow.Balance)
	}

	// Platform treasury reflects the skim
	w = doJSON(t, s, "GET", "/v1/platform/balances/"+testToken, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"balance":"5000"`) {
		t.Errorf("Expected treasury balance 5000, got %s", w.Body.String())
	}

	// Escrow is retrievable
	w = doJSON(t, s, "GET", "/v1/escrows/"+resp.Escrow.ID, "", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPlatformFeeEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "GET", "/v1/platform/fee", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"feeBps":50`) {
		t.Errorf("Expected initial fee 50, got %s", w.Body.String())
	}

	// Non-owner cannot change the fee
	w = doJSON(t, s, "POST", "/v1/platform/fee", testSeller, `{"feeBps":75}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-owner, got %d", w.Code)
	}

	// Owner can
	w = doJSON(t, s, "POST", "/v1/platform/fee", testOwner, `{"feeBps":75}`)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, "GET", "/v1/platform/fee", "", "")
	if !strings.Contains(w.Body.String(), `"feeBps":75`) {
		t.Errorf("Expected fee 75 after update, got %s", w.Body.String())
	}
}

func TestAddressParamValidation(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "GET", "/v1/agents/not-an-address", "", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed address param, got %d", w.Code)
	}
}
