package inventory

import (
	"context"
	"sort"
	"sync"
)

const imageBase = "https://rocketseat-cdn.s3-sa-east-1.amazonaws.com/modulo-redux/"

type MemStore struct {
	mu       sync.RWMutex
	products map[int]Product
	stock    map[int]int
}

// NewMemStore returns a store seeded with the demo shoe catalog.
func NewMemStore() *MemStore {
	s := &MemStore{products: map[int]Product{}, stock: map[int]int{}}
	s.Put(Product{ID: 1, Title: "Lightweight Walking Sneaker", Price: 179.9, Image: imageBase + "tenis1.jpg"}, 3)
	s.Put(Product{ID: 2, Title: "VR Caad Sneaker", Price: 139.9, Image: imageBase + "tenis2.jpg"}, 5)
	s.Put(Product{ID: 3, Title: "Adidas Runner", Price: 219.9, Image: imageBase + "tenis3.jpg"}, 2)
	s.Put(Product{ID: 4, Title: "Court Classic", Price: 219.9, Image: imageBase + "tenis1.jpg"}, 1)
	s.Put(Product{ID: 5, Title: "Trail Runner", Price: 139.9, Image: imageBase + "tenis2.jpg"}, 5)
	s.Put(Product{ID: 6, Title: "Everyday Slip-On", Price: 119.9, Image: imageBase + "tenis3.jpg"}, 10)
	return s
}

// Put inserts or replaces a product together with its stock level.
func (s *MemStore) Put(p Product, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	s.stock[p.ID] = stock
}

// SetStock changes the stock level of a known product.
func (s *MemStore) SetStock(id, amount int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return false
	}
	s.stock[id] = amount
	return true
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) ListSortedByID(context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetProduct(_ context.Context, id int) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	return p, ok, nil
}

func (s *MemStore) GetStock(_ context.Context, id int) (Stock, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.stock[id]
	if !ok {
		return Stock{}, false, nil
	}
	return Stock{ID: id, Amount: n}, true, nil
}
