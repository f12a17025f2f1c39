package order

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
)

// MemoryStore is a process-local OrderStore used when no database is configured.
type MemoryStore struct {
	products *xsync.MapOf[string, contractx.Product]
	orders   *xsync.MapOf[string, []orderRow]
	now      func() time.Time
}

var _ contractx.OrderStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: xsync.NewMapOf[string, contractx.Product](),
		orders:   xsync.NewMapOf[string, []orderRow](),
		now:      time.Now,
	}
}

func (m *MemoryStore) UpsertProducts(_ context.Context, products []contractx.Product) error {
	for _, p := range products {
		m.products.Store(p.ID, p)
	}
	return nil
}

func (m *MemoryStore) ListProducts(_ context.Context) ([]contractx.Product, error) {
	out := make([]contractx.Product, 0, m.products.Size())
	m.products.Range(func(_ string, p contractx.Product) bool {
		out = append(out, p)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateOrder(_ context.Context, userID string, productID string) (contractx.OrderReceipt, error) {
	row := newOrder(userID, productID, m.now())
	if row.UserID == "" {
		return contractx.OrderReceipt{}, fmt.Errorf("%w: user id is required", contractx.ErrValidation)
	}
	if _, ok := m.products.Load(row.ProductID); !ok {
		return contractx.OrderReceipt{}, ErrInvalidProduct
	}

	m.orders.Compute(row.UserID, func(old []orderRow, _ bool) ([]orderRow, bool) {
		next := make([]orderRow, len(old), len(old)+1)
		copy(next, old)
		return append(next, row), false
	})
	return row.receipt(), nil
}

func (m *MemoryStore) OrdersForUser(_ context.Context, userID string) ([]contractx.OrderSummary, error) {
	rows, _ := m.orders.Load(strings.TrimSpace(userID))
	out := make([]contractx.OrderSummary, 0, len(rows))
	for _, r := range rows {
		p, _ := m.products.Load(r.ProductID)
		out = append(out, contractx.OrderSummary{
			OrderID:   r.ID,
			UserID:    r.UserID,
			ProductID: r.ProductID,
			Name:      p.Name,
			Price:     p.Price,
			Status:    contractx.OrderStatus(r.Status),
			ETA:       r.ETA,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
