package models

// All lists every table managed by AutoMigrate.
func All() []any {
	return []any{
		&User{}, &Address{}, &PasswordResetToken{},
		&Allergy{}, &Illness{}, &UserAllergy{}, &UserIllness{},
		&City{}, &Branch{}, &Category{}, &ProductType{}, &Supplier{}, &Product{},
		&Inventory{}, &ProductIncompatibility{}, &ProductConflict{}, &ReorderRequest{},
		&CartItem{}, &WishlistItem{},
		&Order{}, &OrderLine{}, &OrderStatusEntry{}, &CheckoutDraft{},
		&PrescriptionRequest{}, &PrescriptionProduct{}, &PrescriptionPlan{}, &PlanItem{},
		&Notification{}, &ActivityLog{},
	}
}
