package services_test

import (
	"context"
	"testing"

	"pharmacy/internal/database"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
	"pharmacy/internal/services"
	"pharmacy/pkg/mailer"
	"pharmacy/pkg/payment"
	"pharmacy/pkg/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// MockPublisher is a mock implementation of services.EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, data any) error {
	args := m.Called(ctx, routingKey, data)
	return args.Error(0)
}

// MockMailer is a mock implementation of mailer.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	args := m.Called(ctx, to, subject, htmlBody)
	return args.Error(0)
}

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

const customerPassword = "secret123"

// world is a small seeded pharmacy: one city served by the main branch, an
// empty second branch, an over-the-counter product and a prescribed one.
type world struct {
	store         *repositories.Store
	notifications *services.NotificationService
	events        *MockPublisher
	files         *storage.Local

	city        *models.City
	branch      *models.Branch
	emptyBranch *models.Branch
	supplier    *models.Supplier
	paracetamol *models.Product
	amoxicillin *models.Product
	customer    *models.User
	pharmacist  *models.User
	admin       *models.User
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenInMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	files, err := storage.NewLocal(t.TempDir(), 1<<20)
	require.NoError(t, err)

	w := &world{store: repositories.NewStore(db), events: new(MockPublisher), files: files}
	w.events.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	w.notifications = services.NewNotificationService(w.store, mailer.LogMailer{}, services.NotificationConfig{})

	w.branch = &models.Branch{Name: "Seef Branch", Active: true}
	require.NoError(t, w.store.Branches.Create(ctx, w.branch))
	w.emptyBranch = &models.Branch{Name: "Riffa Branch", Active: true}
	require.NoError(t, w.store.Branches.Create(ctx, w.emptyBranch))
	w.city = &models.City{Name: "Manama", DefaultBranchID: &w.branch.ID}
	require.NoError(t, w.store.Cities.Create(ctx, w.city))
	w.supplier = &models.Supplier{Name: "Gulf Medical", Email: "orders@gulfmed.test", ContactName: "Sara"}
	require.NoError(t, w.store.Suppliers.Create(ctx, w.supplier))

	w.paracetamol = w.product(t, "Paracetamol 500mg", "5.000", false, 10)
	w.amoxicillin = w.product(t, "Amoxicillin 250mg", "3.500", true, 10)

	w.customer = w.user(t, "customer@pharmacy.test", models.RoleCustomer)
	w.pharmacist = w.user(t, "pharmacist@pharmacy.test", models.RolePharmacist)
	w.admin = w.user(t, "admin@pharmacy.test", models.RoleAdmin)
	return w
}

func (w *world) product(t *testing.T, name, price string, prescribed bool, stock int) *models.Product {
	t.Helper()
	ctx := context.Background()
	p := &models.Product{
		Name:                 name,
		Price:                decimal.RequireFromString(price),
		RequiresPrescription: prescribed,
		SupplierID:           &w.supplier.ID,
	}
	require.NoError(t, w.store.Products.Create(ctx, p))
	if stock > 0 {
		require.NoError(t, w.store.Inventory.Upsert(ctx, &models.Inventory{
			BranchID:         w.branch.ID,
			ProductID:        p.ID,
			Quantity:         stock,
			ReorderThreshold: 2,
			ReorderQuantity:  20,
		}))
	}
	return p
}

func (w *world) user(t *testing.T, email, role string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(customerPassword), bcrypt.MinCost)
	require.NoError(t, err)
	u := &models.User{
		Email:        email,
		FirstName:    "Test",
		LastName:     role,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	}
	require.NoError(t, w.store.Users.Create(context.Background(), u))
	return u
}

func actorOf(u *models.User) services.Actor {
	return services.Actor{ID: u.ID, Email: u.Email, Role: u.Role}
}

func (w *world) addToCart(t *testing.T, userID string, p *models.Product, qty int) {
	t.Helper()
	require.NoError(t, w.store.Carts.SetQuantity(context.Background(), userID, p.ID, qty))
}

func (w *world) pending(t *testing.T, status string) []models.Notification {
	t.Helper()
	page, err := w.store.Notifications.List(context.Background(), status, models.PageQuery{PageSize: 100})
	require.NoError(t, err)
	return page.Items
}
