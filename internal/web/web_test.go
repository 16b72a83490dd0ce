package web

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/webventory/internal/auth"
	"github.com/erazemk/webventory/internal/charts"
	"github.com/erazemk/webventory/internal/db"
	"github.com/erazemk/webventory/internal/imaging"
	"github.com/erazemk/webventory/internal/insights"
	"github.com/erazemk/webventory/internal/model"
	"github.com/erazemk/webventory/internal/store"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	db      *sql.DB
	handler http.Handler
	users   map[string]*model.User
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)

	cache, err := charts.OpenCache(charts.CacheOptions{InMemory: true, TTL: time.Hour})
	if err != nil {
		t.Fatalf("opening chart cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	handler, err := NewRouter(Options{
		DB:         database,
		JWTSecret:  testJWTSecret,
		SessionTTL: time.Hour,
		Insights: &insights.Service{
			DB:       database,
			Cache:    cache,
			Renderer: charts.Renderer{Width: 320, Height: 240},
		},
	})
	if err != nil {
		t.Fatalf("creating router: %v", err)
	}

	return &testEnv{db: database, handler: handler, users: map[string]*model.User{}}
}

// addUser creates a user whose password is the username repeated twice.
func (e *testEnv) addUser(t *testing.T, username string) *model.User {
	t.Helper()
	hash, err := auth.HashPassword(username + username)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	u, err := store.CreateUser(context.Background(), e.db, username, username+"@example.com", hash)
	if err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	e.users[username] = u
	return u
}

// cookie returns a valid session cookie for a user created with addUser.
func (e *testEnv) cookie(t *testing.T, username string) *http.Cookie {
	t.Helper()
	u := e.users[username]
	token, err := auth.GenerateToken(testJWTSecret, time.Hour, u.ID, u.Username)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return &http.Cookie{Name: cookieName, Value: token}
}

func (e *testEnv) addItem(t *testing.T, owner, name, price string, quantity int) *model.Item {
	t.Helper()
	item, err := store.CreateItem(context.Background(), e.db, owner, model.ItemInput{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Quantity: quantity,
	})
	if err != nil {
		t.Fatalf("creating item: %v", err)
	}
	return item
}

func (e *testEnv) do(method, path string, c *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c != nil {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func expectRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != location {
		t.Fatalf("expected redirect to %q, got %q", location, got)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, w.Code, w.Body.String())
	}
}

func expectBody(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	if !strings.Contains(w.Body.String(), want) {
		t.Errorf("expected body to contain %q", want)
	}
}

func TestAnonymousRedirectedToLogin(t *testing.T) {
	env := setupTestEnv(t)

	for _, path := range []string{"/userHome", "/userInventory", "/userInsights", "/userSettings", "/userInventory/1/edit"} {
		t.Run(path, func(t *testing.T) {
			expectRedirect(t, env.do("GET", path, nil, nil), "/login")
		})
	}
}

func TestLoggedInRedirectedFromEntryPages(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser(t, "alice")
	c := env.cookie(t, "alice")

	for _, path := range []string{"/", "/home", "/login", "/signup"} {
		t.Run(path, func(t *testing.T) {
			expectRedirect(t, env.do("GET", path, c, nil), "/userHome")
		})
	}
}

func TestEntryPagesRenderForAnonymous(t *testing.T) {
	env := setupTestEnv(t)

	for _, path := range []string{"/", "/home", "/login", "/signup"} {
		t.Run(path, func(t *testing.T) {
			expectStatus(t, env.do("GET", path, nil, nil), http.StatusOK)
		})
	}
}

func TestInvalidCookieIsCleared(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do("GET", "/userHome", &http.Cookie{Name: cookieName, Value: "garbage"}, nil)
	expectRedirect(t, w, "/login")

	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected the invalid cookie to be cleared")
	}
}

func TestLogin(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser(t, "alice")

	w := env.do("POST", "/login", nil, url.Values{"username": {"alice"}, "password": {"wrong-password"}})
	expectStatus(t, w, http.StatusUnauthorized)
	expectBody(t, w, "Invalid login!")

	w = env.do("POST", "/login", nil, url.Values{"username": {"nobody"}, "password": {"whatever1"}})
	expectStatus(t, w, http.StatusUnauthorized)

	w = env.do("POST", "/login", nil, url.Values{"username": {"alice"}, "password": {"alicealice"}})
	expectRedirect(t, w, "/userHome")

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName {
			session = c
		}
	}
	if session == nil || session.Value == "" {
		t.Fatal("expected a session cookie")
	}
	if !session.HttpOnly {
		t.Error("expected the session cookie to be HttpOnly")
	}

	w = env.do("GET", "/userHome", session, nil)
	expectStatus(t, w, http.StatusOK)
	expectBody(t, w, "Welcome, Alice")
}

func TestSignup(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser(t, "alice")

	tests := []struct {
		name     string
		username string
		email    string
		password string
		status   int
		message  string
	}{
		{"duplicate username", "alice", "new@example.com", "password123", http.StatusConflict, "Username is already taken."},
		{"duplicate email", "bob", "alice@example.com", "password123", http.StatusConflict, "Email is already registered."},
		{"duplicate both", "alice", "ALICE@example.com", "password123", http.StatusConflict, "Username and email are already taken."},
		{"short password", "bob", "bob@example.com", "short", http.StatusBadRequest, "password must be at least 8 characters"},
		{"long password", "bob", "bob@example.com", strings.Repeat("p", 73), http.StatusBadRequest, "password must be at most 72 bytes"},
		{"bad email", "bob", "not-an-email", "password123", http.StatusBadRequest, "invalid email address"},
		{"bad username", "bob smith", "bob@example.com", "password123", http.StatusBadRequest, "username may only contain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", "/signup", nil, url.Values{
				"username": {tt.username},
				"email":    {tt.email},
				"password": {tt.password},
			})
			expectStatus(t, w, tt.status)
			expectBody(t, w, tt.message)
		})
	}

	t.Run("mismatched confirmation", func(t *testing.T) {
		w := env.do("POST", "/signup", nil, url.Values{
			"username":         {"bob"},
			"email":            {"bob@example.com"},
			"password":         {"password123"},
			"password_confirm": {"password124"},
		})
		expectStatus(t, w, http.StatusBadRequest)
		expectBody(t, w, "Passwords do not match.")
	})

	t.Run("success", func(t *testing.T) {
		w := env.do("POST", "/signup", nil, url.Values{
			"username": {"bob"},
			"email":    {"bob@example.com"},
			"password": {"password123"},
		})
		expectRedirect(t, w, "/")

		u, err := store.GetUserByUsername(context.Background(), env.db, "bob")
		if err != nil || u == nil {
			t.Fatalf("expected bob to exist: %v", err)
		}
		for _, c := range w.Result().Cookies() {
			if c.Name == cookieName && c.Value != "" {
				t.Error("signup should not log the user in")
			}
		}
	})
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser(t, "alice")
	c := env.cookie(t, "alice")

	expectStatus(t, env.do("GET", "/userHome", c, nil), http.StatusOK)
	expectRedirect(t, env.do("POST", "/logout", c, nil), "/")

	// The old token no longer opens a session.
	expectRedirect(t, env.do("GET", "/userHome", c, nil), "/login")

	// Logging out without a session is harmless.
	expectRedirect(t, env.do("GET", "/logout", nil, nil), "/")
}

func TestInventoryCreate(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser(t, "alice")
	c := env.cookie(t, "alice")

	w := env.do("POST", "/userInventory", c, url.Values{
		"name": {"Widget"}, "description": {"A widget"}, "price": {"9.99"}, "quantity": {"5"},
	})
	expectRedirect(t, w, "/userInventory")

	w = env.do("GET", "/userInventory", c, nil)
	expectStatus(t, w, http.StatusOK)
	expectBody(t, w, "Widget")
	expectBody(t, w, "$49.95")

	w = env.do("POST", "/userInventory", c, url.Values{
		"name": {"Gadget"}, "price": {"abc"}, "quantity": {"1"},
	})
	expectStatus(t, w, http.StatusBadRequest)
	expectBody(t, w, `value="Gadget"`)

	w = env.do("POST", "/userInventory", c, url.Values{
		"name": {"Gadget"}, "price": {"1.00"}, "quantity": {"-3"},
	})
	expectStatus(t, w, http.StatusBadRequest)

	page, err := store.ListVisibleItems(context.Background(), env.db, "alice", store.ListOptions{})
	if err != nil {
		t.Fatalf("listing items: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("expected 1 item, got %d", page.Total)
	}
}

func TestInventorySearchAndPaging(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser(t, "alice")
	c := env.cookie(t, "alice")

	for i := 1; i <= 12; i++ {
		env.addItem(t, "alice", fmt.Sprintf("thing %02d", i), "1.00", 1)
	}
	env.addItem(t, "alice", "special", "1.00", 1)

	w := env.do("GET", "/userInventory?page=2", c, nil)
	expectStatus(t, w, http.StatusOK)
	expectBody(t, w, "thing 11")
	expectBody(t, w, "Page 2 of 2")

	w = env.do("GET", "/userInventory?q=SPECI", c, nil)
	expectStatus(t, w, http.StatusOK)
	expectBody(t, w, "special")
	if strings.Contains(w.Body.String(), "thing 01") {
		t.Error("search should filter out other items")
	}
	// The total covers every visible item, not just the search hits.
	expectBody(t, w, "$13.00")
}

func TestInventoryItemHiddenFromOthers(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser(t, "alice")
	env.addUser(t, "bob")
	item := env.addItem(t, "alice", "Widget", "9.99", 5)

	path := fmt.Sprintf("/userInventory/%d/", item.ID)
	expectStatus(t, env.do("GET", path, env.cookie(t, "alice"), nil), http.StatusOK)
	expectStatus(t, env.do("GET", path, env.cookie(t, "bob"), nil), http.StatusNotFound)
	expectStatus(t, env.do("GET", "/userInventory/abc/", env.cookie(t, "bob"), nil), http.StatusBadRequest)
}

func TestInventoryEditRecordsHistory(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser(t, "alice")
	c := env.cookie(t, "alice")
	item := env.addItem(t, "alice", "Widget", "9.99", 5)

	w := env.do("GET", fmt.Sprintf("/userInventory/%d/edit", item.ID), c, nil)
	expectStatus(t, w, http.StatusOK)
	expectBody(t, w, `value="9.99"`)

	edit := fmt.Sprintf("/userInventory/%d/edit", item.ID)

	// Renaming alone records nothing.
	w = env.do("POST", edit, c, url.Values{"name": {"Widget II"}, "price": {"9.99"}, "quantity": {"5"}})
	expectRedirect(t, w, fmt.Sprintf("/userInventory/%d/", item.ID))

	w = env.do("POST", edit, c, url.Values{"name": {"Widget II"}, "price": {"12.50"}, "quantity": {"3"}})
	expectRedirect(t, w, fmt.Sprintf("/userInventory/%d/", item.ID))

	history, err := store.ListHistory(context.Background(), env.db, item.ID, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("listing history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	h := history[0]
	if !h.PriceBefore.Equal(decimal.RequireFromString("9.99")) || !h.PriceAfter.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("unexpected price change %s -> %s", h.PriceBefore, h.PriceAfter)
	}
	if h.QuantityBefore != 5 || h.QuantityAfter != 3 {
		t.Errorf("unexpected quantity change %d -> %d", h.QuantityBefore, h.QuantityAfter)
	}

	w = env.do("POST", edit, c, url.Values{"name": {"Widget II"}, "price": {"free"}, "quantity": {"3"}})
	expectStatus(t, w, http.StatusBadRequest)
}

func TestInventoryDelete(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser(t, "alice")
	env.addUser(t, "bob")
	item := env.addItem(t, "alice", "Widget", "9.99", 5)
	path := fmt.Sprintf("/userInventory/%d/delete", item.ID)

	w := env.do("POST", path, env.cookie(t, "bob"), nil)
	expectRedirect(t, w, "/userInventory?deleteError=1")

	got, err := store.GetItem(context.Background(), env.db, item.ID)
	if err != nil || got == nil {
		t.Fatalf("item should survive a refused delete: %v", err)
	}

	w = env.do("GET", "/userInventory?deleteError=1", env.cookie(t, "bob"), nil)
	expectStatus(t, w, http.StatusOK)
	expectBody(t, w, "You are not allowed to delete that item.")

	w = env.do("POST", path, env.cookie(t, "alice"), nil)
	expectRedirect(t, w, "/userInventory")

	got, err = store.GetItem(context.Background(), env.db, item.ID)
	if err != nil {
		t.Fatalf("getting item: %v", err)
	}
	if got != nil {
		t.Error("expected the item to be deleted")
	}
}

func TestVisibility(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser(t, "alice")
	env.addUser(t, "bob")
	env.addUser(t, "carol")
	item := env.addItem(t, "alice", "Widget", "9.99", 5)
	path := fmt.Sprintf("/userInventory/%d/visibility", item.ID)

	w := env.do("GET", path, env.cookie(t, "alice"), nil)
	expectStatus(t, w, http.StatusOK)
	expectBody(t, w, "alice (owner)")
	expectBody(t, w, "carol")

	// An outsider cannot change the set.
	w = env.do("POST", path, env.cookie(t, "carol"), url.Values{"users": {"carol"}})
	expectRedirect(t, w, "/userInventory")

	w = env.do("POST", path, env.cookie(t, "alice"), url.Values{"users": {"bob", "ghost"}})
	expectRedirect(t, w, fmt.Sprintf("/userInventory/%d/", item.ID))

	got, err := store.GetItem(context.Background(), env.db, item.ID)
	if err != nil {
		t.Fatalf("getting item: %v", err)
	}
	if got.Visibility.String() != "alice,bob," {
		t.Errorf("expected visibility %q, got %q", "alice,bob,", got.Visibility.String())
	}

	expectStatus(t, env.do("GET", fmt.Sprintf("/userInventory/%d/", item.ID), env.cookie(t, "bob"), nil), http.StatusOK)
	expectStatus(t, env.do("GET", fmt.Sprintf("/userInventory/%d/", item.ID), env.cookie(t, "carol"), nil), http.StatusNotFound)
}

func TestInsights(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser(t, "alice")
	env.addUser(t, "bob")
	c := env.cookie(t, "alice")
	item := env.addItem(t, "alice", "Widget", "9.99", 5)
	bare := env.addItem(t, "alice", "Gadget", "1.00", 1)

	ctx := context.Background()
	start := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	changes := []struct {
		price    string
		quantity int
	}{{"10.50", 6}, {"11.00", 4}, {"9.75", 8}}
	before := item
	for i, ch := range changes {
		_, err := store.AppendHistory(ctx, env.db, model.ItemHistory{
			ItemID:         item.ID,
			PriceBefore:    before.Price,
			PriceAfter:     decimal.RequireFromString(ch.price),
			QuantityBefore: before.Quantity,
			QuantityAfter:  ch.quantity,
			ChangedAt:      start.AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatalf("appending history: %v", err)
		}
		before, _ = store.GetItem(ctx, env.db, item.ID)
	}

	expectStatus(t, env.do("GET", "/userInsights", c, nil), http.StatusOK)

	w := env.do("GET", fmt.Sprintf("/userInsights/%d/", item.ID), c, nil)
	expectStatus(t, w, http.StatusOK)
	expectBody(t, w, fmt.Sprintf("/userInsights/%d/chart/price.png", item.ID))
	expectBody(t, w, fmt.Sprintf("/userInsights/%d/chart/quantity.png", item.ID))

	w = env.do("GET", fmt.Sprintf("/userInsights/%d/?start=2024-02-01&end=2024-01-01", item.ID), c, nil)
	expectStatus(t, w, http.StatusOK)
	expectBody(t, w, "That date range is not valid")

	for _, kind := range []string{"price", "quantity"} {
		t.Run(kind, func(t *testing.T) {
			w := env.do("GET", fmt.Sprintf("/userInsights/%d/chart/%s.png", item.ID, kind), c, nil)
			expectStatus(t, w, http.StatusOK)
			if ct := w.Header().Get("Content-Type"); ct != "image/png" {
				t.Errorf("expected image/png, got %q", ct)
			}
			if !imaging.IsPNG(w.Body.Bytes()) {
				t.Error("expected a PNG body")
			}
		})
	}

	// A range holding a single change is too short to plot.
	w = env.do("GET", fmt.Sprintf("/userInsights/%d/chart/price.png?start=2024-01-03&end=2024-01-04", item.ID), c, nil)
	expectStatus(t, w, http.StatusNotFound)

	w = env.do("GET", fmt.Sprintf("/userInsights/%d/chart/price.png?start=2024-01-02&end=2024-01-03", item.ID), c, nil)
	expectStatus(t, w, http.StatusOK)

	expectStatus(t, env.do("GET", fmt.Sprintf("/userInsights/%d/chart/value.png", item.ID), c, nil), http.StatusNotFound)
	expectStatus(t, env.do("GET", fmt.Sprintf("/userInsights/%d/chart/price.gif", item.ID), c, nil), http.StatusNotFound)
	expectStatus(t, env.do("GET", fmt.Sprintf("/userInsights/%d/chart/price.png", bare.ID), c, nil), http.StatusNotFound)
	expectStatus(t, env.do("GET", fmt.Sprintf("/userInsights/%d/chart/price.png", item.ID), env.cookie(t, "bob"), nil), http.StatusNotFound)
	expectStatus(t, env.do("GET", fmt.Sprintf("/userInsights/%d/", item.ID), env.cookie(t, "bob"), nil), http.StatusNotFound)
}

func TestSettingsChangePassword(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser(t, "alice")
	c := env.cookie(t, "alice")

	expectStatus(t, env.do("GET", "/userSettings", c, nil), http.StatusOK)

	w := env.do("POST", "/userSettings", c, url.Values{"current_password": {"wrong-one"}, "new_password": {"new-password"}})
	expectStatus(t, w, http.StatusUnauthorized)

	w = env.do("POST", "/userSettings", c, url.Values{"current_password": {"alicealice"}, "new_password": {"short"}})
	expectStatus(t, w, http.StatusBadRequest)

	w = env.do("POST", "/userSettings", c, url.Values{"current_password": {"alicealice"}, "new_password": {"new-password"}})
	expectStatus(t, w, http.StatusOK)
	expectBody(t, w, "Password changed.")

	u, err := store.GetUserByUsername(context.Background(), env.db, "alice")
	if err != nil {
		t.Fatalf("getting user: %v", err)
	}
	if ok, _ := auth.CheckPassword(u.PasswordHash, "new-password"); !ok {
		t.Error("expected the new password to be stored")
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"alice": "Alice",
		"Bob":   "Bob",
		"élan":  "Élan",
		"":      "",
	}
	for in, want := range tests {
		if got := displayName(in); got != want {
			t.Errorf("displayName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDateShownInRangeZone(t *testing.T) {
	date := FuncMap()["date"].(func(time.Time) string)

	// 23:30 on the 31st in UTC is already February in Ljubljana.
	zone := time.FixedZone("CET", 3600)
	changed := time.Date(2024, time.February, 1, 0, 30, 0, 0, zone)
	if got, want := date(changed), "2024-01-31 23:30 UTC"; got != want {
		t.Errorf("date() = %q, want %q", got, want)
	}

	r, ok := insights.ParseRange("2024-01-01", "2024-01-31")
	if !ok {
		t.Fatal("expected a valid range")
	}
	from, to := r.Bounds()
	if changed.Before(from) || !changed.Before(to) {
		t.Errorf("change shown as %s should fall inside the range", date(changed))
	}
}

func TestInsightsPagingKeepsSearch(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser(t, "alice")
	c := env.cookie(t, "alice")

	for i := 1; i <= 12; i++ {
		env.addItem(t, "alice", fmt.Sprintf("bolt %02d", i), "1.00", 1)
	}
	env.addItem(t, "alice", "washer", "1.00", 1)

	w := env.do("GET", "/userInsights?q=bolt", c, nil)
	expectStatus(t, w, http.StatusOK)
	expectBody(t, w, `href="/userInsights?q=bolt&amp;page=2"`)
	if strings.Contains(w.Body.String(), "washer") {
		t.Error("search should filter the item list")
	}

	w = env.do("GET", "/userInsights?q=bolt&page=2", c, nil)
	expectStatus(t, w, http.StatusOK)
	expectBody(t, w, "bolt 12")
	expectBody(t, w, `href="/userInsights?q=bolt&amp;page=1"`)
}
