package cart

import (
	"context"
	"errors"
)

// StorageKey is the fixed key the serialized cart lives under.
const StorageKey = "@RocketShoes:cart"

var (
	ErrNotInitialized  = errors.New("cart not initialized")
	ErrProductNotFound = errors.New("product not found")
	ErrNotInCart       = errors.New("product not in cart")
	ErrOutOfStock      = errors.New("requested amount out of stock")
)

// Product is a cart line. Title, Price and Image come from the inventory
// service and are carried through untouched.
type Product struct {
	ID     int     `json:"id"`
	Title  string  `json:"title"`
	Price  float64 `json:"price"`
	Image  string  `json:"image"`
	Amount int     `json:"amount"`
}

type Stock struct {
	ID     int `json:"id"`
	Amount int `json:"amount"`
}

// UpdateProductAmount carries an absolute target quantity, not a delta.
type UpdateProductAmount struct {
	ProductID int `json:"product_id"`
	Amount    int `json:"amount"`
}

type Inventory interface {
	GetProduct(ctx context.Context, id int) (Product, error)
	GetStock(ctx context.Context, id int) (Stock, error)
}

// Storage is the device-local key/value store the cart is persisted in.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

func indexOf(items []Product, id int) int {
	for i, p := range items {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func clone(items []Product) []Product {
	out := make([]Product, len(items))
	copy(out, items)
	return out
}
