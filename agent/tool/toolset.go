package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
)

const DefaultTopK = 4

// Toolset holds the collaborators behind the four tools.
type Toolset struct {
	catalog  contractx.CatalogIndex
	orders   contractx.OrderStore
	verifier contractx.Verifier
	notifier contractx.Notifier
	topK     int
}

func NewToolset(
	catalog contractx.CatalogIndex,
	orders contractx.OrderStore,
	verifier contractx.Verifier,
	notifier contractx.Notifier,
	topK int,
) *Toolset {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Toolset{
		catalog:  catalog,
		orders:   orders,
		verifier: verifier,
		notifier: notifier,
		topK:     topK,
	}
}

// ListProducts returns a model-facing summary and the raw candidates behind it.
func (ts *Toolset) ListProducts(ctx context.Context, query string) (string, []contractx.Candidate, error) {
	candidates, err := ts.catalog.Search(ctx, query, ts.topK)
	if err != nil {
		return "", nil, fmt.Errorf("search catalog: %w", err)
	}
	if len(candidates) == 0 {
		return "No matching products found.", candidates, nil
	}

	var b strings.Builder
	for i, c := range candidates {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Name: %s | Price: %s", c.Name, strconv.FormatFloat(c.Price, 'f', 2, 64))
	}
	return b.String(), candidates, nil
}

// CreateOrder resolves query to a single verified product and places an order for the caller.
func (ts *Toolset) CreateOrder(ctx context.Context, query string) (string, error) {
	userID, err := requireIdentity(ctx)
	if err != nil {
		return "", err
	}

	candidates, err := ts.catalog.Search(ctx, query, 1)
	if err != nil {
		return "", fmt.Errorf("search catalog: %w", err)
	}
	if len(candidates) == 0 || !ts.verifier.Verify(ctx, candidates[0].Name, query) {
		log.Info().Str("user_id", userID).Str("query", query).Msg("no verified product for order")
		return ProductNotFound, nil
	}

	receipt, err := ts.orders.CreateOrder(ctx, userID, candidates[0].ID)
	if errors.Is(err, contractx.ErrInvalidProduct) {
		return InvalidProductID, nil
	}
	if err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}

	raw, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("marshal receipt: %w", err)
	}
	return string(raw), nil
}

// CreateSupportTicket confirms only after the notification went out.
func (ts *Toolset) CreateSupportTicket(ctx context.Context, issue string) (string, error) {
	userID, err := requireIdentity(ctx)
	if err != nil {
		return "", err
	}
	if err := ts.notifier.NotifySupport(ctx, userID, issue); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("support ticket notification failed")
		return SupportTicketFailed, nil
	}
	return SupportTicketCreated, nil
}

type orderView struct {
	OrderID     string    `json:"order_id"`
	ProductName string    `json:"product_name"`
	Price       float64   `json:"price"`
	Status      string    `json:"status"`
	ETA         string    `json:"eta"`
	CreatedAt   time.Time `json:"created_at"`
}

func (ts *Toolset) LookupOrderStatus(ctx context.Context) (string, error) {
	userID, err := requireIdentity(ctx)
	if err != nil {
		return "", err
	}

	orders, err := ts.orders.OrdersForUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load orders: %w", err)
	}

	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView{
			OrderID:     o.OrderID,
			ProductName: o.Name,
			Price:       o.Price,
			Status:      string(o.Status),
			ETA:         o.ETA,
			CreatedAt:   o.CreatedAt,
		})
	}
	raw, err := json.Marshal(views)
	if err != nil {
		return "", fmt.Errorf("marshal orders: %w", err)
	}
	return string(raw), nil
}
