package repositories

import (
	"context"
	"errors"
	"fmt"

	"pharmacy/internal/apperr"
	"pharmacy/internal/models"

	"gorm.io/gorm"
)

// Store groups the repositories that share one *gorm.DB. A Store built inside
// Transaction routes every repository through the same transaction.
type Store struct {
	db *gorm.DB

	Users          UserRepository
	PasswordResets PasswordResetRepository
	Health         HealthRepository
	Cities         NamedRepository[models.City]
	Branches       NamedRepository[models.Branch]
	Categories     NamedRepository[models.Category]
	ProductTypes   NamedRepository[models.ProductType]
	Suppliers      NamedRepository[models.Supplier]
	Allergies      NamedRepository[models.Allergy]
	Illnesses      NamedRepository[models.Illness]
	Products       ProductRepository
	Inventory      InventoryRepository
	Reorders       ReorderRepository
	Carts          CartRepository
	Wishlists      WishlistRepository
	Orders         OrderRepository
	Drafts         DraftRepository
	Prescriptions  PrescriptionRepository
	Plans          PlanRepository
	Notifications  NotificationRepository
	Logs           ActivityLogRepository
	Reports        ReportRepository
}

// NewStore wires every GORM repository to db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:             db,
		Users:          NewGORMUserRepository(db),
		PasswordResets: NewGORMPasswordResetRepository(db),
		Health:         NewGORMHealthRepository(db),
		Cities:         NewGORMNamedRepository[models.City](db, "city"),
		Branches:       NewGORMNamedRepository[models.Branch](db, "branch"),
		Categories:     NewGORMNamedRepository[models.Category](db, "category"),
		ProductTypes:   NewGORMNamedRepository[models.ProductType](db, "product type"),
		Suppliers:      NewGORMNamedRepository[models.Supplier](db, "supplier"),
		Allergies:      NewGORMNamedRepository[models.Allergy](db, "allergy"),
		Illnesses:      NewGORMNamedRepository[models.Illness](db, "illness"),
		Products:       NewGORMProductRepository(db),
		Inventory:      NewGORMInventoryRepository(db),
		Reorders:       NewGORMReorderRepository(db),
		Carts:          NewGORMCartRepository(db),
		Wishlists:      NewGORMWishlistRepository(db),
		Orders:         NewGORMOrderRepository(db),
		Drafts:         NewGORMDraftRepository(db),
		Prescriptions:  NewGORMPrescriptionRepository(db),
		Plans:          NewGORMPlanRepository(db),
		Notifications:  NewGORMNotificationRepository(db),
		Logs:           NewGORMActivityLogRepository(db),
		Reports:        NewGORMReportRepository(db),
	}
}

// Transaction runs fn with a Store bound to a single database transaction.
// Any error returned by fn rolls back everything fn wrote.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return errors.New("store has no database handle")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFound(entity, id string) error {
	return apperr.NotFoundf("%s with ID %s not found", entity, id)
}

func wrapFirst(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(entity, id)
	}
	return fmt.Errorf("failed to get %s %s: %w", entity, id, err)
}

func paginate(q models.PageQuery) func(*gorm.DB) *gorm.DB {
	q = q.Normalize()
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(q.Offset()).Limit(q.PageSize)
	}
}
