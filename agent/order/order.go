package order

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
)

const (
	orderIDPrefix = "ORD-"
	etaDays       = 5
	etaLayout     = "2006-01-02"
)

// ErrInvalidProduct is returned when an order names a product that is not in the catalog.
// Nothing is written in that case.
var ErrInvalidProduct = contractx.ErrInvalidProduct

type Config struct {
	DSN     string        `envconfig:"DSN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// NewOrderID returns "ORD-" followed by 8 lowercase hex characters.
func NewOrderID() string {
	u := uuid.New()
	return orderIDPrefix + hex.EncodeToString(u[:4])
}

// ETA is the UTC calendar date five days after created.
func ETA(created time.Time) string {
	return created.UTC().AddDate(0, 0, etaDays).Format(etaLayout)
}

func newOrder(userID, productID string, now time.Time) orderRow {
	created := now.UTC()
	return orderRow{
		ID:        NewOrderID(),
		UserID:    strings.TrimSpace(userID),
		ProductID: strings.TrimSpace(productID),
		Status:    string(contractx.OrderProcessing),
		ETA:       ETA(created),
		CreatedAt: created,
	}
}

func (o orderRow) receipt() contractx.OrderReceipt {
	return contractx.OrderReceipt{
		OrderID: o.ID,
		Status:  contractx.OrderStatus(o.Status),
		ETA:     o.ETA,
	}
}
