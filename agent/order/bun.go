package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type productRow struct {
	bun.BaseModel `bun:"table:products"`

	ID    string  `bun:"product_id,pk"`
	Name  string  `bun:"name,notnull"`
	Price float64 `bun:"price,notnull"`
}

type orderRow struct {
	bun.BaseModel `bun:"table:orders"`

	ID        string    `bun:"order_id,pk"`
	UserID    string    `bun:"user_id,notnull"`
	ProductID string    `bun:"product_id,notnull"`
	Status    string    `bun:"status,notnull"`
	ETA       string    `bun:"eta,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type orderSummaryRow struct {
	ID        string          `bun:"order_id"`
	UserID    string          `bun:"user_id"`
	ProductID string          `bun:"product_id"`
	Status    string          `bun:"status"`
	ETA       string          `bun:"eta"`
	CreatedAt time.Time       `bun:"created_at"`
	Name      sql.NullString  `bun:"name"`
	Price     sql.NullFloat64 `bun:"price"`
}

// BunStore keeps products and orders in Postgres.
type BunStore struct {
	db  *bun.DB
	now func() time.Time
}

var _ contractx.OrderStore = (*BunStore)(nil)

func Open(cfg Config) (*BunStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("order: database dsn is required")
	}

	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if cfg.Timeout > 0 {
		opts = append(opts, pgdriver.WithTimeout(cfg.Timeout))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	return NewBunStore(bun.NewDB(sqldb, pgdialect.New())), nil
}

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db, now: time.Now}
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

// Migrate creates the products and orders tables when they do not exist.
func (s *BunStore) Migrate(ctx context.Context) error {
	for _, model := range []any{(*productRow)(nil), (*orderRow)(nil)} {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("order: create table: %w", err)
		}
	}
	if _, err := s.db.NewCreateIndex().
		Model((*orderRow)(nil)).
		Index("orders_user_id_idx").
		Column("user_id").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("order: create index: %w", err)
	}
	return nil
}

func (s *BunStore) UpsertProducts(ctx context.Context, products []contractx.Product) error {
	if len(products) == 0 {
		return nil
	}
	rows := make([]productRow, 0, len(products))
	for _, p := range products {
		rows = append(rows, productRow{ID: p.ID, Name: p.Name, Price: p.Price})
	}
	if _, err := s.upsertProductsQuery(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("order: upsert products: %w", err)
	}
	return nil
}

func (s *BunStore) upsertProductsQuery(rows *[]productRow) *bun.InsertQuery {
	return s.db.NewInsert().
		Model(rows).
		On("CONFLICT (product_id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("price = EXCLUDED.price")
}

func (s *BunStore) ListProducts(ctx context.Context) ([]contractx.Product, error) {
	var rows []productRow
	if err := s.db.NewSelect().Model(&rows).Order("product_id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("order: list products: %w", err)
	}
	out := make([]contractx.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, contractx.Product{ID: r.ID, Name: r.Name, Price: r.Price})
	}
	return out, nil
}

func (s *BunStore) CreateOrder(ctx context.Context, userID string, productID string) (contractx.OrderReceipt, error) {
	row := newOrder(userID, productID, s.now())
	if row.UserID == "" {
		return contractx.OrderReceipt{}, fmt.Errorf("%w: user id is required", contractx.ErrValidation)
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*productRow)(nil)).
			Where("product_id = ?", row.ProductID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("order: check product: %w", err)
		}
		if !exists {
			return ErrInvalidProduct
		}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return fmt.Errorf("order: insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return contractx.OrderReceipt{}, err
	}

	log.Info().Str("user_id", row.UserID).Str("order_id", row.ID).Str("product_id", row.ProductID).Msg("order created")
	return row.receipt(), nil
}

// OrdersForUser joins each order with the product as it is now, so name and price
// reflect the current catalog rather than the price at purchase time.
func (s *BunStore) OrdersForUser(ctx context.Context, userID string) ([]contractx.OrderSummary, error) {
	var rows []orderSummaryRow
	if err := s.ordersForUserQuery(userID).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("order: orders for user: %w", err)
	}

	out := make([]contractx.OrderSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, contractx.OrderSummary{
			OrderID:   r.ID,
			UserID:    r.UserID,
			ProductID: r.ProductID,
			Name:      r.Name.String,
			Price:     r.Price.Float64,
			Status:    contractx.OrderStatus(r.Status),
			ETA:       r.ETA,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func (s *BunStore) ordersForUserQuery(userID string) *bun.SelectQuery {
	return s.db.NewSelect().
		TableExpr("orders AS o").
		ColumnExpr("o.order_id, o.user_id, o.product_id, o.status, o.eta, o.created_at").
		ColumnExpr("p.name, p.price").
		Join("LEFT JOIN products AS p ON p.product_id = o.product_id").
		Where("o.user_id = ?", strings.TrimSpace(userID)).
		OrderExpr("o.created_at ASC")
}
