package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pharmacy/internal/models"
	"pharmacy/internal/repositories"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// SeedOptions configures the initial admin account.
type SeedOptions struct {
	AdminEmail    string
	AdminPassword string
}

type seedProduct struct {
	name         string
	description  string
	price        string
	prescription bool
	category     string
	stock        int
}

var (
	seedCities     = []string{"Manama", "Muharraq", "Riffa", "Isa Town"}
	seedCategories = []string{"Pain Relief", "Vitamins", "Antibiotics", "Personal Care"}
	seedTypes      = []string{"Tablet", "Syrup", "Cream", "Capsule"}
	seedAllergies  = []string{"Penicillin", "Aspirin", "Lactose"}
	seedIllnesses  = []string{"Asthma", "Diabetes", "Hypertension"}
	seedProducts   = []seedProduct{
		{"Paracetamol 500mg", "Pain and fever relief", "1.500", false, "Pain Relief", 120},
		{"Ibuprofen 400mg", "Anti-inflammatory pain relief", "2.000", false, "Pain Relief", 80},
		{"Vitamin D3 1000IU", "Daily vitamin D supplement", "3.250", false, "Vitamins", 60},
		{"Amoxicillin 500mg", "Broad spectrum antibiotic", "4.750", true, "Antibiotics", 40},
		{"Moisturizing Cream", "Fragrance free skin cream", "2.900", false, "Personal Care", 30},
	}
)

// Seed inserts the reference data and the admin account. Rows that already exist
// are left alone, so running it twice is harmless.
func Seed(ctx context.Context, store *repositories.Store, opts SeedOptions) error {
	return store.Transaction(ctx, func(tx *repositories.Store) error {
		cityIDs := map[string]string{}
		for _, name := range seedCities {
			city, err := ensureNamed(ctx, tx.Cities, name, func() *models.City { return &models.City{Name: name} })
			if err != nil {
				return err
			}
			cityIDs[name] = city.ID
		}

		manamaID := cityIDs["Manama"]
		branch, err := ensureNamed(ctx, tx.Branches, "Main Branch", func() *models.Branch {
			return &models.Branch{Name: "Main Branch", CityID: &manamaID, Address: "Road 1, Block 301", Phone: "17000000", Active: true}
		})
		if err != nil {
			return err
		}
		for name, id := range cityIDs {
			city, err := tx.Cities.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if city.DefaultBranchID == nil {
				city.DefaultBranchID = &branch.ID
				if err := tx.Cities.Update(ctx, city); err != nil {
					return fmt.Errorf("failed to set default branch of %s: %w", name, err)
				}
			}
		}

		categoryIDs := map[string]string{}
		for _, name := range seedCategories {
			cat, err := ensureNamed(ctx, tx.Categories, name, func() *models.Category { return &models.Category{Name: name} })
			if err != nil {
				return err
			}
			categoryIDs[name] = cat.ID
		}
		for _, name := range seedTypes {
			if _, err := ensureNamed(ctx, tx.ProductTypes, name, func() *models.ProductType { return &models.ProductType{Name: name} }); err != nil {
				return err
			}
		}
		for _, name := range seedAllergies {
			if _, err := ensureNamed(ctx, tx.Allergies, name, func() *models.Allergy { return &models.Allergy{Name: name} }); err != nil {
				return err
			}
		}
		for _, name := range seedIllnesses {
			if _, err := ensureNamed(ctx, tx.Illnesses, name, func() *models.Illness { return &models.Illness{Name: name} }); err != nil {
				return err
			}
		}
		supplier, err := ensureNamed(ctx, tx.Suppliers, "Gulf Medical Supplies", func() *models.Supplier {
			return &models.Supplier{Name: "Gulf Medical Supplies", ContactName: "Orders Desk", Email: "orders@gulfmedical.example", Phone: "17111111"}
		})
		if err != nil {
			return err
		}

		existing, err := tx.Products.List(ctx, repositories.ProductFilter{PageQuery: models.PageQuery{PageSize: models.MaxPageSize}})
		if err != nil {
			return err
		}
		have := map[string]bool{}
		for _, p := range existing.Items {
			have[strings.ToLower(p.Name)] = true
		}
		for _, sp := range seedProducts {
			if have[strings.ToLower(sp.name)] {
				continue
			}
			catID := categoryIDs[sp.category]
			product := &models.Product{
				Name:                 sp.name,
				Description:          sp.description,
				Price:                decimal.RequireFromString(sp.price),
				RequiresPrescription: sp.prescription,
				CategoryID:           &catID,
				SupplierID:           &supplier.ID,
			}
			if err := tx.Products.Create(ctx, product); err != nil {
				return err
			}
			inv := &models.Inventory{BranchID: branch.ID, ProductID: product.ID, Quantity: sp.stock, ReorderThreshold: 10, ReorderQuantity: 50}
			if err := tx.Inventory.Upsert(ctx, inv); err != nil {
				return err
			}
		}

		if opts.AdminEmail == "" {
			return nil
		}
		admin, err := tx.Users.GetByEmail(ctx, opts.AdminEmail)
		if err != nil {
			return err
		}
		if admin != nil {
			return nil
		}
		if opts.AdminPassword == "" {
			return fmt.Errorf("admin password is required to create %s", opts.AdminEmail)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash admin password: %w", err)
		}
		admin = &models.User{
			Email:        strings.ToLower(opts.AdminEmail),
			FirstName:    "Admin",
			PasswordHash: string(hash),
			Role:         models.RoleAdmin,
			Active:       true,
			BranchID:     &branch.ID,
		}
		if err := tx.Users.Create(ctx, admin); err != nil {
			return err
		}
		slog.Info("seeded admin account", "email", admin.Email)
		return nil
	})
}

func ensureNamed[T any](ctx context.Context, repo repositories.NamedRepository[T], name string, build func() *T) (*T, error) {
	found, err := repo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return found, nil
	}
	entity := build()
	if err := repo.Create(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}
