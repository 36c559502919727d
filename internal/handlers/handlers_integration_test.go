package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"pharmacy/internal/app"
	"pharmacy/internal/config"
	"pharmacy/internal/database"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
	"pharmacy/internal/services"
	"pharmacy/pkg/mailer"
	"pharmacy/pkg/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	cookieName   = "pharmacy_session"
	testPassword = "password123"
)

// MockGateway is a mock implementation of payment.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Session), args.Error(1)
}

func (m *MockGateway) GetSession(ctx context.Context, id string) (*payment.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Session), args.Error(1)
}

type testEnv struct {
	app      *app.App
	store    *repositories.Store
	payments *MockGateway
	branch   *models.Branch
}

// setupApp builds the full application on an in-memory SQLite database.
func setupApp(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.OpenInMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := &config.Config{
		AppBaseURL:               "http://localhost:3000",
		CORSOrigins:              "*",
		JWTSecret:                "test_jwt_secret",
		SessionCookie:            cookieName,
		SessionTTL:               time.Hour,
		UploadDir:                t.TempDir(),
		MaxUploadBytes:           1 << 20,
		Currency:                 "BHD",
		DeliveryFee:              decimal.RequireFromString("1.500"),
		UrgentFee:                decimal.RequireFromString("2.000"),
		PrescriptionValidityDays: 90,
	}
	payments := new(MockGateway)
	a, err := app.New(cfg, db, app.Integrations{Mailer: mailer.LogMailer{}, Payments: payments})
	require.NoError(t, err)

	env := &testEnv{app: a, store: a.Store, payments: payments}
	env.branch = &models.Branch{Name: "Seef Branch", Active: true}
	require.NoError(t, env.store.Branches.Create(context.Background(), env.branch))
	return env
}

// TestMain runs setup and teardown for all tests
func TestMain(m *testing.M) {
	// Suppress logging during tests for cleaner output
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func (e *testEnv) user(t *testing.T, email, role string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	u := &models.User{Email: email, FirstName: "Test", PasswordHash: string(hash), Role: role, Active: true}
	require.NoError(t, e.store.Users.Create(context.Background(), u))
	return u
}

func (e *testEnv) product(t *testing.T, name, price string, stock int) *models.Product {
	t.Helper()
	ctx := context.Background()
	p := &models.Product{Name: name, Price: decimal.RequireFromString(price)}
	require.NoError(t, e.store.Products.Create(ctx, p))
	require.NoError(t, e.store.Inventory.Upsert(ctx, &models.Inventory{
		BranchID:         e.branch.ID,
		ProductID:        p.ID,
		Quantity:         stock,
		ReorderThreshold: 1,
		ReorderQuantity:  10,
	}))
	return p
}

// do sends a JSON request, optionally with a session cookie, and decodes the
// JSON response into out when it is non-nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, session string, out any) *http.Response {
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
	if session != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: session})
	}

	resp, err := e.app.Fiber.Test(req, -1) // -1 for no timeout
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": testPassword}, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			return c.Value
		}
	}
	t.Fatalf("login did not set the %s cookie", cookieName)
	return ""
}

type errorBody struct {
	Message string `json:"message"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func TestHealth(t *testing.T) {
	env := setupApp(t)

	var body map[string]string
	resp := env.do(t, http.MethodGet, "/health", nil, "", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestAuthRegisterAndLogin(t *testing.T) {
	env := setupApp(t)

	register := map[string]any{
		"email":           "Layla@Example.com",
		"password":        testPassword,
		"confirmPassword": testPassword,
		"firstName":       "Layla",
		"phone":           "+973 3600 1234",
	}
	var created map[string]any
	resp := env.do(t, http.MethodPost, "/api/v1/auth/register", register, "", &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "User registered successfully", created["message"])

	// Test Duplicate Registration
	resp = env.do(t, http.MethodPost, "/api/v1/auth/register", register, "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	session := env.login(t, "layla@example.com")
	assert.NotEmpty(t, session)

	var me models.User
	resp = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, session, &me)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "layla@example.com", me.Email)
	assert.Equal(t, models.RoleCustomer, me.Role)
}

func TestAuthRegister_PasswordMismatch(t *testing.T) {
	env := setupApp(t)

	var body errorBody
	resp := env.do(t, http.MethodPost, "/api/v1/auth/register", map[string]any{
		"email":           "mismatch@example.com",
		"password":        testPassword,
		"confirmPassword": "password124",
		"firstName":       "Ali",
	}, "", &body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotEmpty(t, body.Errors)
	assert.Equal(t, "confirmPassword", body.Errors[0].Field)
	assert.Equal(t, "Passwords do not match", body.Errors[0].Message)

	u, err := env.store.Users.GetByEmail(context.Background(), "mismatch@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestAuthRegister_InvalidFields(t *testing.T) {
	env := setupApp(t)

	var body errorBody
	resp := env.do(t, http.MethodPost, "/api/v1/auth/register", map[string]any{
		"email":           "not-an-email",
		"password":        "short",
		"confirmPassword": "short",
		"firstName":       "Ali",
		"phone":           "12345",
	}, "", &body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Validation failed", body.Message)
	fields := map[string]bool{}
	for _, f := range body.Errors {
		fields[f.Field] = true
	}
	assert.True(t, fields["email"])
	assert.True(t, fields["password"])
	assert.True(t, fields["phone"])
}

func TestAuthLogin_WrongPassword(t *testing.T) {
	env := setupApp(t)
	env.user(t, "omar@example.com", models.RoleCustomer)

	var body errorBody
	resp := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "omar@example.com",
		"password": "wrong-password",
	}, "", &body)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid email or password", body.Message)
	assert.Empty(t, resp.Cookies())
}

func TestProtectedRoutes(t *testing.T) {
	env := setupApp(t)
	env.user(t, "customer@example.com", models.RoleCustomer)
	session := env.login(t, "customer@example.com")

	resp := env.do(t, http.MethodGet, "/api/v1/cart", nil, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/cart", nil, "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/dashboard", nil, session, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/prescriptions/pending", nil, session, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/products", map[string]any{"name": "X", "price": "1.000"}, session, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestBearerToken(t *testing.T) {
	env := setupApp(t)
	env.user(t, "bearer@example.com", models.RoleCustomer)
	token := env.login(t, "bearer@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := env.app.Fiber.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogout_ExpiresCookie(t *testing.T) {
	env := setupApp(t)
	env.user(t, "bye@example.com", models.RoleCustomer)
	session := env.login(t, "bye@example.com")

	resp := env.do(t, http.MethodPost, "/api/v1/auth/logout", nil, session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cleared *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
}

func TestPrescriptionApprove_NotPending(t *testing.T) {
	env := setupApp(t)
	ctx := context.Background()
	customer := env.user(t, "patient@example.com", models.RoleCustomer)
	env.user(t, "pharmacist@example.com", models.RolePharmacist)

	req := &models.PrescriptionRequest{
		CustomerID:      customer.ID,
		Status:          models.PrescriptionRejected,
		RejectionReason: "Illegible",
		ExpiresAt:       time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, env.store.Prescriptions.Create(ctx, req))

	session := env.login(t, "pharmacist@example.com")
	var body errorBody
	resp := env.do(t, http.MethodPost, "/api/v1/prescriptions/"+req.ID+"/approve", nil, session, &body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body.Message, "rejected")

	stored, err := env.store.Prescriptions.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionRejected, stored.Status)
	assert.Nil(t, stored.ReviewerID)
}

func TestPrescriptionGet_OtherCustomer(t *testing.T) {
	env := setupApp(t)
	owner := env.user(t, "owner@example.com", models.RoleCustomer)
	env.user(t, "other@example.com", models.RoleCustomer)

	req := &models.PrescriptionRequest{CustomerID: owner.ID, Status: models.PrescriptionPending, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, env.store.Prescriptions.Create(context.Background(), req))

	session := env.login(t, "other@example.com")
	resp := env.do(t, http.MethodGet, "/api/v1/prescriptions/"+req.ID, nil, session, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCartAndCashCheckout(t *testing.T) {
	env := setupApp(t)
	ctx := context.Background()
	env.user(t, "buyer@example.com", models.RoleCustomer)
	paracetamol := env.product(t, "Paracetamol 500mg", "1.250", 10)
	session := env.login(t, "buyer@example.com")

	resp := env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": paracetamol.ID, "quantity": 2}, session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var steps struct {
		Steps []string `json:"steps"`
	}
	resp = env.do(t, http.MethodGet, "/api/v1/checkout/steps", nil, session, &steps)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"summary", "shipping", "payment"}, steps.Steps)

	var totals struct {
		Subtotal    decimal.Decimal `json:"subtotal"`
		DeliveryFee decimal.Decimal `json:"deliveryFee"`
		Total       decimal.Decimal `json:"total"`
	}
	resp = env.do(t, http.MethodGet, "/api/v1/checkout/totals?mode=delivery", nil, session, &totals)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decimal.RequireFromString("2.500").Equal(totals.Subtotal))
	assert.True(t, decimal.RequireFromString("1.500").Equal(totals.DeliveryFee))
	assert.True(t, decimal.RequireFromString("4.000").Equal(totals.Total))

	resp = env.do(t, http.MethodGet, "/api/v1/checkout/totals?mode=teleport", nil, session, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var result struct {
		Order models.Order `json:"order"`
	}
	resp = env.do(t, http.MethodPost, "/api/v1/checkout", map[string]any{
		"shipping":      map[string]any{"mode": "pickup", "branchId": env.branch.ID},
		"paymentMethod": "cash",
	}, session, &result)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, models.OrderPlaced, result.Order.Status)
	assert.True(t, decimal.RequireFromString("2.500").Equal(result.Order.Total))

	stock, err := env.store.Inventory.ForProducts(ctx, env.branch.ID, []string{paracetamol.ID})
	require.NoError(t, err)
	require.Len(t, stock, 1)
	assert.Equal(t, 8, stock[0].Quantity)

	var cart struct {
		Lines []any `json:"lines"`
	}
	resp = env.do(t, http.MethodGet, "/api/v1/cart", nil, session, &cart)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, cart.Lines)

	var order models.Order
	resp = env.do(t, http.MethodGet, "/api/v1/orders/"+result.Order.ID, nil, session, &order)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, result.Order.ID, order.ID)
}

func TestCheckout_PickupBranchMissing(t *testing.T) {
	env := setupApp(t)
	env.user(t, "buyer@example.com", models.RoleCustomer)
	p := env.product(t, "Vitamin C", "2.000", 5)
	session := env.login(t, "buyer@example.com")

	resp := env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": p.ID}, session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body errorBody
	resp = env.do(t, http.MethodPost, "/api/v1/checkout", map[string]any{
		"shipping":      map[string]any{"mode": "pickup"},
		"paymentMethod": "cash",
	}, session, &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotEmpty(t, body.Errors)
	assert.Equal(t, "shipping.branchId", body.Errors[0].Field)
}

func TestCardCheckout_RedirectsToPaymentPage(t *testing.T) {
	env := setupApp(t)
	env.user(t, "card@example.com", models.RoleCustomer)
	p := env.product(t, "Ibuprofen 400mg", "3.000", 5)
	session := env.login(t, "card@example.com")

	resp := env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": p.ID, "quantity": 1}, session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env.payments.On("CreateSession", mock.Anything, mock.Anything).
		Return(&payment.Session{ID: "cs_test_1", URL: "https://pay.example/cs_test_1"}, nil).Once()

	var result struct {
		SessionID  string `json:"sessionId"`
		PaymentURL string `json:"paymentUrl"`
	}
	resp = env.do(t, http.MethodPost, "/api/v1/checkout", map[string]any{
		"shipping":      map[string]any{"mode": "pickup", "branchId": env.branch.ID},
		"paymentMethod": "card",
	}, session, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cs_test_1", result.SessionID)
	assert.Equal(t, "https://pay.example/cs_test_1", result.PaymentURL)
	env.payments.AssertExpectations(t)
}

func TestUnknownRoute(t *testing.T) {
	env := setupApp(t)

	var body errorBody
	resp := env.do(t, http.MethodGet, "/api/v1/nothing-here", nil, "", &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body.Message)
}

func TestUploads_PrescriptionDocumentsArePrivate(t *testing.T) {
	env := setupApp(t)
	ctx := context.Background()
	owner := env.user(t, "owner@example.com", models.RoleCustomer)
	env.user(t, "other@example.com", models.RoleCustomer)
	env.user(t, "pharmacist@example.com", models.RolePharmacist)

	docPath, err := env.app.Services.Prescriptions.UploadDocument(ctx, owner.ID, services.Upload{
		Filename: "cpr.pdf",
		Content:  strings.NewReader("cpr-bytes"),
	})
	require.NoError(t, err)

	resp := env.do(t, http.MethodGet, "/uploads/"+docPath, nil, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	documentURL := "/api/v1/prescriptions/documents?path=" + url.QueryEscape(docPath)
	resp = env.do(t, http.MethodGet, documentURL, nil, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, documentURL, nil, env.login(t, "other@example.com"), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	for _, email := range []string{"owner@example.com", "pharmacist@example.com"} {
		resp = env.do(t, http.MethodGet, documentURL, nil, env.login(t, email), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, email)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "cpr-bytes", string(body))
	}

	// paths outside the prescription folder are not served
	resp = env.do(t, http.MethodGet, "/api/v1/prescriptions/documents?path="+url.QueryEscape("../config.yaml"), nil, env.login(t, "pharmacist@example.com"), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploads_CatalogImagesArePublic(t *testing.T) {
	env := setupApp(t)
	admin := env.user(t, "admin@example.com", models.RoleAdmin)
	p := env.product(t, "Cough Syrup", "2.750", 3)

	updated, err := env.app.Services.Catalog.SetProductImage(context.Background(),
		services.Actor{ID: admin.ID, Email: admin.Email, Role: admin.Role}, p.ID, "syrup.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)

	resp := env.do(t, http.MethodGet, "/uploads/"+updated.ImagePath, nil, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
}
