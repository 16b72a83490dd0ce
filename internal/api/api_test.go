package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/webventory/internal/auth"
	"github.com/erazemk/webventory/internal/charts"
	"github.com/erazemk/webventory/internal/db"
	"github.com/erazemk/webventory/internal/insights"
	"github.com/erazemk/webventory/internal/model"
	"github.com/erazemk/webventory/internal/store"
)

const testJWTSecret = "test-secret"

type testServer struct {
	*httptest.Server
	db *sql.DB
}

func setupTestServer(t *testing.T, corsOrigins ...string) *testServer {
	t.Helper()
	database := db.NewTestDB(t)

	cache, err := charts.OpenCache(charts.CacheOptions{InMemory: true, TTL: time.Hour})
	if err != nil {
		t.Fatalf("opening chart cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	router := NewRouter(Options{
		DB:         database,
		JWTSecret:  testJWTSecret,
		SessionTTL: time.Hour,
		Insights: &insights.Service{
			DB:       database,
			Cache:    cache,
			Renderer: charts.Renderer{Width: 320, Height: 240},
		},
		CORSOrigins: corsOrigins,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, db: database}
}

// login creates a user with password "password" and returns a bearer token
// obtained through the login endpoint.
func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	ctx := context.Background()
	hash, err := auth.HashPassword("password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	if _, err := store.CreateUser(ctx, s.db, username, username+"@example.com", hash); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"username": username, "password": "password"})
	resp, err := http.Post(s.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp map[string]string
	json.NewDecoder(resp.Body).Decode(&loginResp)
	token := loginResp["token"]
	if token == "" {
		t.Fatal("empty token from login")
	}
	return token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// call performs an authenticated request, checks the status and decodes the
// response into out when out is not nil.
func call(t *testing.T, method, url, token string, body any, status int, out any) {
	t.Helper()
	req, err := authRequest(method, url, token, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != status {
		t.Fatalf("%s %s: expected %d, got %d", method, url, status, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
}

func TestLoginEndpoint(t *testing.T) {
	server := setupTestServer(t)
	server.login(t, "alice")

	// Test invalid credentials.
	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Unknown fields are rejected.
	body, _ = json.Marshal(map[string]string{"username": "alice", "password": "password", "role": "admin"})
	resp, _ = http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnauthenticatedAccess(t *testing.T) {
	server := setupTestServer(t)

	resp, _ := http.Get(server.URL + "/api/items")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	call(t, "GET", server.URL+"/api/items", "not-a-token", nil, http.StatusUnauthorized, nil)
}

func TestLogoutRevokesToken(t *testing.T) {
	server := setupTestServer(t)
	token := server.login(t, "alice")

	call(t, "GET", server.URL+"/api/items", token, nil, http.StatusOK, nil)
	call(t, "POST", server.URL+"/api/auth/logout", token, nil, http.StatusOK, nil)
	call(t, "GET", server.URL+"/api/items", token, nil, http.StatusUnauthorized, nil)
}

func TestItemsAPIFlow(t *testing.T) {
	server := setupTestServer(t)
	token := server.login(t, "alice")

	// Create item.
	var created itemResponse
	call(t, "POST", server.URL+"/api/items", token, map[string]any{
		"name":        "Laptop",
		"description": "Dell XPS",
		"price":       "999.99",
		"quantity":    2,
	}, http.StatusCreated, &created)

	if created.Owner() != "alice" {
		t.Errorf("expected owner alice, got %q", created.Owner())
	}
	if !created.Worth.Equal(decimal.RequireFromString("1999.98")) {
		t.Errorf("expected worth 1999.98, got %s", created.Worth)
	}

	// Malformed input.
	call(t, "POST", server.URL+"/api/items", token, map[string]any{
		"name": "Laptop", "price": "lots", "quantity": 1,
	}, http.StatusBadRequest, nil)
	call(t, "POST", server.URL+"/api/items", token, map[string]any{
		"name": "Laptop", "price": "1", "quantity": -1,
	}, http.StatusBadRequest, nil)
	call(t, "POST", server.URL+"/api/items", token, map[string]any{
		"name": "", "price": "1", "quantity": 1,
	}, http.StatusBadRequest, nil)

	// List items.
	var list listResponse
	call(t, "GET", server.URL+"/api/items?q=lap", token, nil, http.StatusOK, &list)
	if list.Total != 1 || len(list.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", list.Total)
	}
	if !list.TotalWorth.Equal(decimal.RequireFromString("1999.98")) {
		t.Errorf("expected total worth 1999.98, got %s", list.TotalWorth)
	}

	itemURL := fmt.Sprintf("%s/api/items/%d", server.URL, created.ID)

	// Renaming alone records no history.
	call(t, "PUT", itemURL, token, map[string]any{
		"name": "Laptop Pro", "description": "Dell XPS", "price": "999.99", "quantity": 2,
	}, http.StatusOK, nil)

	var updated itemResponse
	call(t, "PUT", itemURL, token, map[string]any{
		"name": "Laptop Pro", "description": "Dell XPS", "price": "899.00", "quantity": 3,
	}, http.StatusOK, &updated)
	if updated.Quantity != 3 || !updated.Price.Equal(decimal.RequireFromString("899")) {
		t.Errorf("unexpected item after update: %+v", updated.Item)
	}

	var history historyResponse
	call(t, "GET", itemURL+"/history", token, nil, http.StatusOK, &history)
	if len(history.History) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history.History))
	}
	h := history.History[0]
	if h.QuantityBefore != 2 || h.QuantityAfter != 3 {
		t.Errorf("unexpected quantity change %d -> %d", h.QuantityBefore, h.QuantityAfter)
	}

	// Delete item.
	call(t, "DELETE", itemURL, token, nil, http.StatusOK, nil)
	call(t, "GET", itemURL, token, nil, http.StatusNotFound, nil)
	call(t, "DELETE", itemURL, token, nil, http.StatusNotFound, nil)
}

func TestItemHiddenFromOtherUsers(t *testing.T) {
	server := setupTestServer(t)
	alice := server.login(t, "alice")
	bob := server.login(t, "bob")

	var created itemResponse
	call(t, "POST", server.URL+"/api/items", alice, map[string]any{
		"name": "Widget", "price": "9.99", "quantity": 5,
	}, http.StatusCreated, &created)
	itemURL := fmt.Sprintf("%s/api/items/%d", server.URL, created.ID)

	call(t, "GET", itemURL, bob, nil, http.StatusNotFound, nil)
	call(t, "GET", itemURL+"/history", bob, nil, http.StatusNotFound, nil)
	call(t, "PUT", itemURL, bob, map[string]any{"name": "Mine", "price": "1", "quantity": 1}, http.StatusNotFound, nil)
	call(t, "DELETE", itemURL, bob, nil, http.StatusForbidden, nil)
	call(t, "PUT", itemURL+"/visibility", bob, map[string]any{"users": []string{"bob"}}, http.StatusForbidden, nil)

	var list listResponse
	call(t, "GET", server.URL+"/api/items", bob, nil, http.StatusOK, &list)
	if list.Total != 0 {
		t.Errorf("expected bob to see no items, got %d", list.Total)
	}

	call(t, "GET", server.URL+"/api/items/abc", alice, nil, http.StatusBadRequest, nil)
}

func TestVisibilityAPI(t *testing.T) {
	server := setupTestServer(t)
	alice := server.login(t, "alice")
	bob := server.login(t, "bob")
	server.login(t, "carol")

	var created itemResponse
	call(t, "POST", server.URL+"/api/items", alice, map[string]any{
		"name": "Widget", "price": "9.99", "quantity": 5,
	}, http.StatusCreated, &created)
	visURL := fmt.Sprintf("%s/api/items/%d/visibility", server.URL, created.ID)

	var vis visibilityResponse
	call(t, "GET", visURL, alice, nil, http.StatusOK, &vis)
	if vis.Owner != "alice" || len(vis.Candidates) != 3 {
		t.Errorf("unexpected visibility response: %+v", vis)
	}

	call(t, "PUT", visURL, alice, map[string]any{"users": []string{"bob", "bob", "ghost"}}, http.StatusOK, &vis)
	if len(vis.Visibility) != 2 || vis.Visibility[0] != "alice" || vis.Visibility[1] != "bob" {
		t.Errorf("expected [alice bob], got %v", vis.Visibility)
	}

	// Bob is now a member and may change the set, but never drop the owner.
	call(t, "PUT", visURL, bob, map[string]any{"users": []string{"carol"}}, http.StatusOK, &vis)
	if vis.Owner != "alice" {
		t.Errorf("expected owner to be kept, got %q", vis.Owner)
	}

	item, err := store.GetItem(context.Background(), server.db, created.ID)
	if err != nil {
		t.Fatalf("getting item: %v", err)
	}
	if item.Visibility.Contains("bob") || !item.Visibility.Contains("carol") {
		t.Errorf("unexpected stored visibility %q", item.Visibility.String())
	}
}

func TestHistoryRange(t *testing.T) {
	server := setupTestServer(t)
	token := server.login(t, "alice")
	ctx := context.Background()

	item, err := store.CreateItem(ctx, server.db, "alice", model.ItemInput{
		Name: "Widget", Price: decimal.RequireFromString("1"), Quantity: 1,
	})
	if err != nil {
		t.Fatalf("creating item: %v", err)
	}
	start := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := store.AppendHistory(ctx, server.db, model.ItemHistory{
			ItemID:         item.ID,
			PriceBefore:    decimal.NewFromInt(int64(i + 1)),
			PriceAfter:     decimal.NewFromInt(int64(i + 2)),
			QuantityBefore: i + 1,
			QuantityAfter:  i + 2,
			ChangedAt:      start.AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatalf("appending history: %v", err)
		}
	}

	url := fmt.Sprintf("%s/api/items/%d/history", server.URL, item.ID)

	var history historyResponse
	call(t, "GET", url+"?start=2024-03-02&end=2024-03-03", token, nil, http.StatusOK, &history)
	if len(history.History) != 2 {
		t.Errorf("expected 2 entries in range, got %d", len(history.History))
	}
	if history.RangeIgnored {
		t.Error("valid range reported as ignored")
	}

	history = historyResponse{}
	call(t, "GET", url+"?start=2024-03-03&end=2024-03-02", token, nil, http.StatusOK, &history)
	if len(history.History) != 5 || !history.RangeIgnored {
		t.Errorf("expected full history with range ignored, got %d entries", len(history.History))
	}
}

func TestAdjustStock(t *testing.T) {
	server := setupTestServer(t)
	token := server.login(t, "alice")

	var created itemResponse
	call(t, "POST", server.URL+"/api/items", token, map[string]any{
		"name": "Bolt", "price": "0.25", "quantity": 10,
	}, http.StatusCreated, &created)
	adjustURL := fmt.Sprintf("%s/api/items/%d/adjust", server.URL, created.ID)

	var change model.ItemHistory
	call(t, "POST", adjustURL, token, map[string]int{"delta": -3}, http.StatusOK, &change)
	if change.QuantityAfter != 7 {
		t.Errorf("expected quantity 7, got %d", change.QuantityAfter)
	}

	call(t, "POST", adjustURL, token, map[string]int{"delta": -8}, http.StatusConflict, nil)
	call(t, "POST", adjustURL, token, map[string]int{"delta": 0}, http.StatusBadRequest, nil)
}

func TestChangePassword(t *testing.T) {
	server := setupTestServer(t)
	token := server.login(t, "alice")
	url := server.URL + "/api/auth/password"

	call(t, "PUT", url, token, map[string]string{"current_password": "nope", "new_password": "new-password"}, http.StatusUnauthorized, nil)
	call(t, "PUT", url, token, map[string]string{"current_password": "password", "new_password": "short"}, http.StatusBadRequest, nil)
	call(t, "PUT", url, token, map[string]string{"current_password": "password", "new_password": "new-password"}, http.StatusOK, nil)

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "new-password"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected login with the new password to succeed, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCORS(t *testing.T) {
	server := setupTestServer(t, "https://app.example.com")

	req, _ := http.NewRequest("OPTIONS", server.URL+"/api/items", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("expected allowed origin header, got %q", got)
	}

	req, _ = http.NewRequest("OPTIONS", server.URL+"/api/items", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allowed origin for unknown origin, got %q", got)
	}
}
