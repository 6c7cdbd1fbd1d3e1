// Package inventory is a small product and stock service with the same
// contract the cart client consumes. It backs local development and tests.
package inventory

import "context"

type Product struct {
	ID    int     `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

type Stock struct {
	ID     int `json:"id"`
	Amount int `json:"amount"`
}

type Store interface {
	Ping(ctx context.Context) error
	ListSortedByID(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id int) (Product, bool, error)
	GetStock(ctx context.Context, id int) (Stock, bool, error)
}
