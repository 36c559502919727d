package models

// CartItem is one line of a user's server-held cart.
type CartItem struct {
	Base
	UserID    string `json:"userId" gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_user_product"`
	ProductID string `json:"productId" gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_user_product"`
	Quantity  int    `json:"quantity" gorm:"not null"`
}

// WishlistItem is a product a user saved for later.
type WishlistItem struct {
	Base
	UserID    string `json:"userId" gorm:"type:varchar(36);not null;uniqueIndex:idx_wishlist_user_product"`
	ProductID string `json:"productId" gorm:"type:varchar(36);not null;uniqueIndex:idx_wishlist_user_product"`
}
