package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpUpdate = "update"

	outcomeCommitted  = "committed"
	outcomeRejected   = "rejected"
	outcomeOutOfStock = "out_of_stock"
	outcomeIgnored    = "ignored"

	tracerName = "MiniCart/internal/cart"
)

var errMissingDeps = errors.New("cart: inventory and storage are required")

type Deps struct {
	Inventory Inventory
	Storage   Storage
	Notifier  Notifier
	Log       *zap.Logger
	// Registry is optional; the operations counter is only exported when set.
	Registry prometheus.Registerer
}

// Manager owns the session's cart. Mutations run one at a time; each either
// commits to storage and memory or leaves both untouched.
type Manager struct {
	inv     Inventory
	store   Storage
	notify  Notifier
	log     *zap.Logger
	ops     *prometheus.CounterVec
	tracer  trace.Tracer
	session string

	// opMu serializes mutations end to end, inventory calls included.
	opMu sync.Mutex

	mu    sync.RWMutex
	items []Product
}

// New builds a Manager and restores the cart persisted under StorageKey. A
// missing or unreadable blob yields an empty cart.
func New(ctx context.Context, deps Deps) (*Manager, error) {
	if deps.Inventory == nil || deps.Storage == nil {
		return nil, errMissingDeps
	}

	m := &Manager{
		inv:     deps.Inventory,
		store:   deps.Storage,
		notify:  deps.Notifier,
		log:     deps.Log,
		tracer:  otel.Tracer(tracerName),
		session: uuid.NewString(),
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	m.log = m.log.With(zap.String("session_id", m.session))
	if m.notify == nil {
		m.notify = LogNotifier{Log: m.log}
	}
	m.ops = newOpsCounter(deps.Registry)

	m.items = m.restore(ctx)
	return m, nil
}

func newOpsCounter(reg prometheus.Registerer) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minicart",
		Name:      "cart_operations_total",
		Help:      "Cart mutations by operation and outcome",
	}, []string{"op", "outcome"})
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Manager) restore(ctx context.Context) []Product {
	raw, ok, err := m.store.Get(ctx, StorageKey)
	if err != nil {
		m.log.Warn("read persisted cart failed, starting empty", zap.Error(err))
		return []Product{}
	}
	if !ok || raw == "" {
		return []Product{}
	}

	var items []Product
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		m.log.Warn("persisted cart is not valid json, starting empty", zap.Error(err))
		return []Product{}
	}
	if items == nil {
		items = []Product{}
	}
	m.log.Debug("cart restored", zap.Int("lines", len(items)))
	return items
}

// SessionID identifies this Manager instance in logs.
func (m *Manager) SessionID() string {
	if m == nil {
		return ""
	}
	return m.session
}

// Cart returns a copy of the current lines in insertion order.
func (m *Manager) Cart() []Product {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.items)
}

// AddProduct puts one more unit of productID in the cart, appending a new
// line when it is not there yet.
func (m *Manager) AddProduct(ctx context.Context, productID int) error {
	if m == nil {
		return ErrNotInitialized
	}
	ctx, span := m.start(ctx, OpAdd, productID)
	defer span.End()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	p, err := m.inv.GetProduct(ctx, productID)
	if err != nil {
		return m.reject(ctx, OpAdd, productID, err)
	}

	idx := indexOf(m.items, productID)

	stock, err := m.inv.GetStock(ctx, productID)
	if err != nil {
		return m.reject(ctx, OpAdd, productID, err)
	}

	amount := 1
	if idx >= 0 {
		amount = m.items[idx].Amount + 1
	}
	if amount > stock.Amount {
		return m.reject(ctx, OpAdd, productID, fmt.Errorf("%w: want %d, have %d", ErrOutOfStock, amount, stock.Amount))
	}

	next := clone(m.items)
	if idx >= 0 {
		next[idx].Amount = amount
	} else {
		p.ID = productID
		p.Amount = 1
		next = append(next, p)
	}

	if err := m.commit(ctx, next); err != nil {
		return m.reject(ctx, OpAdd, productID, err)
	}
	m.committed(OpAdd, productID, amount)
	return nil
}

// RemoveProduct drops the line for productID.
func (m *Manager) RemoveProduct(ctx context.Context, productID int) error {
	if m == nil {
		return ErrNotInitialized
	}
	ctx, span := m.start(ctx, OpRemove, productID)
	defer span.End()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if indexOf(m.items, productID) < 0 {
		return m.reject(ctx, OpRemove, productID, ErrNotInCart)
	}

	next := make([]Product, 0, len(m.items))
	for _, p := range m.items {
		if p.ID != productID {
			next = append(next, p)
		}
	}

	if err := m.commit(ctx, next); err != nil {
		return m.reject(ctx, OpRemove, productID, err)
	}
	m.committed(OpRemove, productID, 0)
	return nil
}

// UpdateProductAmount sets the line for u.ProductID to exactly u.Amount.
// Non-positive amounts are ignored without a notification.
func (m *Manager) UpdateProductAmount(ctx context.Context, u UpdateProductAmount) error {
	if m == nil {
		return ErrNotInitialized
	}
	if u.Amount <= 0 {
		m.ops.WithLabelValues(OpUpdate, outcomeIgnored).Inc()
		return nil
	}
	ctx, span := m.start(ctx, OpUpdate, u.ProductID)
	defer span.End()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	idx := indexOf(m.items, u.ProductID)
	if idx < 0 {
		return m.reject(ctx, OpUpdate, u.ProductID, ErrNotInCart)
	}

	stock, err := m.inv.GetStock(ctx, u.ProductID)
	if err != nil {
		return m.reject(ctx, OpUpdate, u.ProductID, err)
	}
	if u.Amount > stock.Amount {
		return m.reject(ctx, OpUpdate, u.ProductID, fmt.Errorf("%w: want %d, have %d", ErrOutOfStock, u.Amount, stock.Amount))
	}

	next := clone(m.items)
	next[idx].Amount = u.Amount

	if err := m.commit(ctx, next); err != nil {
		return m.reject(ctx, OpUpdate, u.ProductID, err)
	}
	m.committed(OpUpdate, u.ProductID, u.Amount)
	return nil
}

// commit persists next and only then swaps it in. Callers hold opMu.
func (m *Manager) commit(ctx context.Context, next []Product) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := m.store.Set(ctx, StorageKey, string(raw)); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}

	m.mu.Lock()
	m.items = next
	m.mu.Unlock()
	return nil
}

func (m *Manager) start(ctx context.Context, op string, productID int) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "cart."+op, trace.WithAttributes(
		attribute.String("cart.op", op),
		attribute.Int("cart.product_id", productID),
		attribute.String("cart.session_id", m.session),
	))
}

func (m *Manager) committed(op string, productID, amount int) {
	m.ops.WithLabelValues(op, outcomeCommitted).Inc()
	m.log.Debug("cart committed",
		zap.String("op", op),
		zap.Int("product_id", productID),
		zap.Int("amount", amount),
	)
}

func (m *Manager) reject(ctx context.Context, op string, productID int, err error) error {
	outcome := outcomeRejected
	if errors.Is(err, ErrOutOfStock) {
		outcome = outcomeOutOfStock
		m.log.Info("cart rejected", zap.String("op", op), zap.Int("product_id", productID), zap.Error(err))
	} else {
		m.log.Warn("cart rejected", zap.String("op", op), zap.Int("product_id", productID), zap.Error(err))
	}
	m.ops.WithLabelValues(op, outcome).Inc()

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)

	m.notify.Notify(Notification{
		Op:        op,
		ProductID: productID,
		Message:   Message(op, err),
		Err:       err,
	})
	return err
}
