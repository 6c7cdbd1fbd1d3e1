package cart_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"MiniCart/internal/cart"
	"MiniCart/internal/storage"
)

type fakeInventory struct {
	mu       sync.Mutex
	products map[int]cart.Product
	stock    map[int]int

	productErr error
	stockErr   error
	stockCalls int
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		products: map[int]cart.Product{
			7: {ID: 7, Title: "Trail Runner", Price: 139.9, Image: "7.jpg"},
			8: {ID: 8, Title: "Court Classic", Price: 219.9, Image: "8.jpg"},
			9: {ID: 9, Title: "Slip-On", Price: 119.9, Image: "9.jpg"},
		},
		stock: map[int]int{7: 3, 8: 5, 9: 1},
	}
}

func (f *fakeInventory) GetProduct(_ context.Context, id int) (cart.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.productErr != nil {
		return cart.Product{}, f.productErr
	}
	p, ok := f.products[id]
	if !ok {
		return cart.Product{}, cart.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeInventory) GetStock(_ context.Context, id int) (cart.Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stockCalls++
	if f.stockErr != nil {
		return cart.Stock{}, f.stockErr
	}
	n, ok := f.stock[id]
	if !ok {
		return cart.Stock{}, cart.ErrStockNotFound
	}
	return cart.Stock{ID: id, Amount: n}, nil
}

func (f *fakeInventory) setStock(id, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[id] = n
}

type recorder struct {
	mu   sync.Mutex
	msgs []cart.Notification
}

func (r *recorder) Notify(n cart.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, n)
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, n := range r.msgs {
		out = append(out, n.Message)
	}
	return out
}

type failingStore struct {
	*storage.MemStore
	fail bool
}

func (s *failingStore) Set(ctx context.Context, key, value string) error {
	if s.fail {
		return errors.New("quota exceeded")
	}
	return s.MemStore.Set(ctx, key, value)
}

type fixture struct {
	m     *cart.Manager
	inv   *fakeInventory
	store *storage.MemStore
	notes *recorder
	reg   *prometheus.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		inv:   newFakeInventory(),
		store: storage.NewMemStore(),
		notes: &recorder{},
		reg:   prometheus.NewRegistry(),
	}
	f.m = newManager(t, f.inv, f.store, f.notes, f.reg)
	return f
}

func newManager(t *testing.T, inv cart.Inventory, store cart.Storage, n cart.Notifier, reg prometheus.Registerer) *cart.Manager {
	t.Helper()
	m, err := cart.New(context.Background(), cart.Deps{
		Inventory: inv,
		Storage:   store,
		Notifier:  n,
		Log:       zap.NewNop(),
		Registry:  reg,
	})
	require.NoError(t, err)
	return m
}

func persisted(t *testing.T, s cart.Storage) string {
	t.Helper()
	v, ok, err := s.Get(context.Background(), cart.StorageKey)
	require.NoError(t, err)
	if !ok {
		return ""
	}
	return v
}

func persistedCart(t *testing.T, s cart.Storage) []cart.Product {
	t.Helper()
	var out []cart.Product
	require.NoError(t, json.Unmarshal([]byte(persisted(t, s)), &out))
	return out
}

func amounts(items []cart.Product) map[int]int {
	out := make(map[int]int, len(items))
	for _, p := range items {
		out[p.ID] = p.Amount
	}
	return out
}

func TestManager_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.Empty(t, f.m.Cart())

	require.NoError(t, f.m.AddProduct(ctx, 7))
	require.Equal(t, []cart.Product{{ID: 7, Title: "Trail Runner", Price: 139.9, Image: "7.jpg", Amount: 1}}, f.m.Cart())

	require.NoError(t, f.m.AddProduct(ctx, 7))
	require.NoError(t, f.m.AddProduct(ctx, 7))
	require.Equal(t, map[int]int{7: 3}, amounts(f.m.Cart()))

	err := f.m.AddProduct(ctx, 7)
	require.ErrorIs(t, err, cart.ErrOutOfStock)
	require.Equal(t, map[int]int{7: 3}, amounts(f.m.Cart()))
	require.Equal(t, []string{cart.MsgOutOfStock}, f.notes.messages())

	require.NoError(t, f.m.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 7, Amount: 2}))
	require.Equal(t, map[int]int{7: 2}, amounts(f.m.Cart()))

	require.NoError(t, f.m.RemoveProduct(ctx, 7))
	require.Empty(t, f.m.Cart())
	require.Equal(t, "[]", persisted(t, f.store))
}

func TestManager_AddKeepsOrderAndUniqueIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []int{8, 7, 8, 9, 7} {
		require.NoError(t, f.m.AddProduct(ctx, id))
	}

	got := f.m.Cart()
	require.Len(t, got, 3)
	require.Equal(t, []int{8, 7, 9}, []int{got[0].ID, got[1].ID, got[2].ID})
	require.Equal(t, map[int]int{8: 2, 7: 2, 9: 1}, amounts(got))
	require.Equal(t, got, persistedCart(t, f.store))
}

func TestManager_AddUnknownProduct(t *testing.T) {
	f := newFixture(t)

	err := f.m.AddProduct(context.Background(), 404)
	require.ErrorIs(t, err, cart.ErrProductNotFound)
	require.Empty(t, f.m.Cart())
	require.Empty(t, persisted(t, f.store))
	require.Equal(t, []string{cart.MsgAddFailed}, f.notes.messages())
}

func TestManager_AddWithZeroStock(t *testing.T) {
	f := newFixture(t)
	f.inv.setStock(8, 0)

	err := f.m.AddProduct(context.Background(), 8)
	require.ErrorIs(t, err, cart.ErrOutOfStock)
	require.Empty(t, f.m.Cart())
	require.Equal(t, []string{cart.MsgOutOfStock}, f.notes.messages())
}

func TestManager_AddInventoryFailures(t *testing.T) {
	cases := map[string]func(*fakeInventory){
		"product lookup": func(f *fakeInventory) { f.productErr = cart.ErrInventoryUnavailable },
		"stock lookup":   func(f *fakeInventory) { f.stockErr = cart.ErrInventoryBadResponse },
		"stock missing":  func(f *fakeInventory) { delete(f.stock, 8) },
	}

	for name, breakIt := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.m.AddProduct(ctx, 8))
			before := persisted(t, f.store)

			breakIt(f.inv)

			require.Error(t, f.m.AddProduct(ctx, 8))
			require.Equal(t, map[int]int{8: 1}, amounts(f.m.Cart()))
			require.Equal(t, before, persisted(t, f.store))
			require.Equal(t, []string{cart.MsgAddFailed}, f.notes.messages())
		})
	}
}

func TestManager_Remove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []int{7, 8, 9} {
		require.NoError(t, f.m.AddProduct(ctx, id))
	}

	require.NoError(t, f.m.RemoveProduct(ctx, 8))
	got := f.m.Cart()
	require.Equal(t, map[int]int{7: 1, 9: 1}, amounts(got))
	require.Equal(t, 7, got[0].ID)
	require.Equal(t, 9, got[1].ID)
	require.Equal(t, got, persistedCart(t, f.store))
}

func TestManager_RemoveAbsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.AddProduct(ctx, 7))
	before := persisted(t, f.store)

	err := f.m.RemoveProduct(ctx, 8)
	require.ErrorIs(t, err, cart.ErrNotInCart)
	require.Equal(t, map[int]int{7: 1}, amounts(f.m.Cart()))
	require.Equal(t, before, persisted(t, f.store))
	require.Equal(t, []string{cart.MsgRemoveFailed}, f.notes.messages())
}

func TestManager_UpdateNonPositiveIsSilent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.AddProduct(ctx, 8))
	require.NoError(t, f.m.AddProduct(ctx, 8))
	before := persisted(t, f.store)
	calls := f.inv.stockCalls

	for _, amount := range []int{0, -1, -100} {
		require.NoError(t, f.m.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 8, Amount: amount}))
	}
	// Absent products are ignored too when the amount is not positive.
	require.NoError(t, f.m.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 404, Amount: 0}))

	require.Equal(t, before, persisted(t, f.store))
	require.Equal(t, map[int]int{8: 2}, amounts(f.m.Cart()))
	require.Equal(t, calls, f.inv.stockCalls)
	require.Empty(t, f.notes.messages())
	require.Equal(t, 4.0, opsCount(t, f.reg, "update", "ignored"))
}

func TestManager_UpdateSetsExactAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.AddProduct(ctx, 8))

	for _, amount := range []int{5, 1, 4} {
		require.NoError(t, f.m.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 8, Amount: amount}))
		require.Equal(t, map[int]int{8: amount}, amounts(f.m.Cart()))
		require.Equal(t, map[int]int{8: amount}, amounts(persistedCart(t, f.store)))
	}
}

func TestManager_UpdateRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.AddProduct(ctx, 8))
	before := persisted(t, f.store)

	err := f.m.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 8, Amount: 6})
	require.ErrorIs(t, err, cart.ErrOutOfStock)

	err = f.m.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 7, Amount: 1})
	require.ErrorIs(t, err, cart.ErrNotInCart)

	f.inv.stockErr = cart.ErrInventoryUnavailable
	err = f.m.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 8, Amount: 2})
	require.ErrorIs(t, err, cart.ErrInventoryUnavailable)

	require.Equal(t, before, persisted(t, f.store))
	require.Equal(t, map[int]int{8: 1}, amounts(f.m.Cart()))
	require.Equal(t, []string{cart.MsgOutOfStock, cart.MsgUpdateFailed, cart.MsgUpdateFailed}, f.notes.messages())
}

func TestManager_StockDropDoesNotRewriteCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.AddProduct(ctx, 8))
	require.NoError(t, f.m.AddProduct(ctx, 8))

	f.inv.setStock(8, 1)

	require.Equal(t, map[int]int{8: 2}, amounts(f.m.Cart()))
	require.ErrorIs(t, f.m.AddProduct(ctx, 8), cart.ErrOutOfStock)
	require.NoError(t, f.m.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 8, Amount: 1}))
	require.Equal(t, map[int]int{8: 1}, amounts(f.m.Cart()))
}

func TestManager_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []int{9, 7, 8, 7} {
		require.NoError(t, f.m.AddProduct(ctx, id))
	}
	require.NoError(t, f.m.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 8, Amount: 4}))

	restored := newManager(t, f.inv, f.store, &recorder{}, nil)
	require.Equal(t, f.m.Cart(), restored.Cart())
	require.NotEqual(t, f.m.SessionID(), restored.SessionID())
}

func TestManager_RestoreFailSoft(t *testing.T) {
	cases := map[string]string{
		"garbage": "{not json",
		"null":    "null",
		"empty":   "",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			store := storage.NewMemStore()
			require.NoError(t, store.Set(context.Background(), cart.StorageKey, raw))

			m := newManager(t, newFakeInventory(), store, &recorder{}, nil)
			require.NotNil(t, m.Cart())
			require.Empty(t, m.Cart())

			require.NoError(t, m.AddProduct(context.Background(), 7))
			require.Equal(t, map[int]int{7: 1}, amounts(persistedCart(t, store)))
		})
	}
}

func TestManager_StorageFailureLeavesMemory(t *testing.T) {
	store := &failingStore{MemStore: storage.NewMemStore()}
	notes := &recorder{}
	m := newManager(t, newFakeInventory(), store, notes, nil)
	ctx := context.Background()

	require.NoError(t, m.AddProduct(ctx, 7))
	store.fail = true

	require.Error(t, m.AddProduct(ctx, 7))
	require.Error(t, m.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 7, Amount: 3}))
	require.Error(t, m.RemoveProduct(ctx, 7))

	require.Equal(t, map[int]int{7: 1}, amounts(m.Cart()))
	require.Equal(t, []string{cart.MsgAddFailed, cart.MsgUpdateFailed, cart.MsgRemoveFailed}, notes.messages())
}

func TestManager_CartReturnsCopy(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.AddProduct(context.Background(), 7))

	got := f.m.Cart()
	got[0].Amount = 99

	require.Equal(t, 1, f.m.Cart()[0].Amount)
}

func TestManager_ConcurrentAddsAreSerialized(t *testing.T) {
	f := newFixture(t)
	f.inv.setStock(8, 25)
	ctx := context.Background()

	const workers = 40
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		ok, denied int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.m.AddProduct(ctx, 8)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, cart.ErrOutOfStock) {
				denied++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 25, ok)
	require.Equal(t, workers-25, denied)
	require.Equal(t, map[int]int{8: 25}, amounts(f.m.Cart()))
	require.Equal(t, map[int]int{8: 25}, amounts(persistedCart(t, f.store)))
}

func TestManager_Metrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.m.AddProduct(ctx, 9))
	require.Error(t, f.m.AddProduct(ctx, 9))
	require.Error(t, f.m.RemoveProduct(ctx, 7))

	require.Equal(t, 1.0, opsCount(t, f.reg, "add", "committed"))
	require.Equal(t, 1.0, opsCount(t, f.reg, "add", "out_of_stock"))
	require.Equal(t, 1.0, opsCount(t, f.reg, "remove", "rejected"))
}

func TestManager_NotInitialized(t *testing.T) {
	var m *cart.Manager
	ctx := context.Background()

	require.Nil(t, m.Cart())
	require.ErrorIs(t, m.AddProduct(ctx, 1), cart.ErrNotInitialized)
	require.ErrorIs(t, m.RemoveProduct(ctx, 1), cart.ErrNotInitialized)
	require.ErrorIs(t, m.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 1, Amount: 1}), cart.ErrNotInitialized)

	_, err := cart.FromContext(ctx)
	require.ErrorIs(t, err, cart.ErrNotInitialized)

	_, err = cart.FromContext(cart.NewContext(ctx, nil))
	require.ErrorIs(t, err, cart.ErrNotInitialized)
}

func TestManager_FromContext(t *testing.T) {
	f := newFixture(t)
	ctx := cart.NewContext(context.Background(), f.m)

	got, err := cart.FromContext(ctx)
	require.NoError(t, err)
	require.Same(t, f.m, got)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := cart.New(context.Background(), cart.Deps{Storage: storage.NewMemStore()})
	require.Error(t, err)

	_, err = cart.New(context.Background(), cart.Deps{Inventory: newFakeInventory()})
	require.Error(t, err)
}

func TestMessage(t *testing.T) {
	require.Equal(t, cart.MsgOutOfStock, cart.Message(cart.OpUpdate, cart.ErrOutOfStock))
	require.Equal(t, cart.MsgAddFailed, cart.Message(cart.OpAdd, cart.ErrProductNotFound))
	require.Equal(t, cart.MsgRemoveFailed, cart.Message(cart.OpRemove, cart.ErrNotInCart))
	require.Equal(t, cart.MsgNotConfigured, cart.Message(cart.OpAdd, cart.ErrNotInitialized))
}

func opsCount(t *testing.T, reg *prometheus.Registry, op, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "minicart_cart_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["op"] == op && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
