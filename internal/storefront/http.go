package storefront

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"MiniCart/internal/cart"
	"MiniCart/pkg/kit"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Cart    *cart.Manager
	Storage Pinger
	Log     *zap.Logger
}

type addReq struct {
	ProductID int `json:"product_id" validate:"required,gt=0"`
}

type updateReq struct {
	Amount *int `json:"amount" validate:"required"`
}

func (s *Server) mountCart(r chi.Router) {
	r.Get("/cart", s.getCart)
	r.Post("/cart/items", s.addItem)
	r.Put("/cart/items/{id}", s.updateItem)
	r.Delete("/cart/items/{id}", s.removeItem)
}

// CartHandlers exposes the cart routes without the service middleware, for
// embedding under another router that already runs Provide.
func (s *Server) CartHandlers() http.Handler {
	r := chi.NewRouter()
	s.mountCart(r)
	return r
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	m, err := cart.FromContext(r.Context())
	if err != nil {
		s.writeCartError(w, r, "", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, m.Cart())
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	m, err := cart.FromContext(r.Context())
	if err != nil {
		s.writeCartError(w, r, cart.OpAdd, err)
		return
	}

	var req addReq
	if err := decodeBody(w, r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	if err := m.AddProduct(r.Context(), req.ProductID); err != nil {
		s.writeCartError(w, r, cart.OpAdd, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, m.Cart())
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	m, err := cart.FromContext(r.Context())
	if err != nil {
		s.writeCartError(w, r, cart.OpUpdate, err)
		return
	}

	id, ok := productID(w, r)
	if !ok {
		return
	}

	var req updateReq
	if err := decodeBody(w, r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	u := cart.UpdateProductAmount{ProductID: id, Amount: *req.Amount}
	if err := m.UpdateProductAmount(r.Context(), u); err != nil {
		s.writeCartError(w, r, cart.OpUpdate, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, m.Cart())
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	m, err := cart.FromContext(r.Context())
	if err != nil {
		s.writeCartError(w, r, cart.OpRemove, err)
		return
	}

	id, ok := productID(w, r)
	if !ok {
		return
	}

	if err := m.RemoveProduct(r.Context(), id); err != nil {
		s.writeCartError(w, r, cart.OpRemove, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, m.Cart())
}

func (s *Server) writeCartError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cart.ErrNotInitialized):
		s.logger().Error("cart handle missing from request context", zap.String("path", r.URL.Path))
	case errors.Is(err, cart.ErrProductNotFound), errors.Is(err, cart.ErrNotInCart):
		status = http.StatusNotFound
	case errors.Is(err, cart.ErrOutOfStock):
		status = http.StatusConflict
	case errors.Is(err, cart.ErrInventoryUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, cart.ErrInventoryBadResponse), errors.Is(err, cart.ErrStockNotFound):
		status = http.StatusBadGateway
	}

	kit.WriteError(w, r, status, cart.Message(op, err), nil)
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func productID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		kit.WriteError(w, r, http.StatusBadRequest, "invalid product id", map[string]any{"id": raw})
		return 0, false
	}
	return id, true
}
