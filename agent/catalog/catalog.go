package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
)

const (
	metaProductID = "product_id"
	metaName      = "name"
	metaPrice     = "price"
)

type Config struct {
	Collection string `envconfig:"COLLECTION" split_words:"true" default:"products"`
	SeedFile   string `envconfig:"SEED_FILE" split_words:"true"`
	TopK       int    `envconfig:"TOP_K" split_words:"true" default:"4"`
}

// Collection is the product vector index. Each product is one document keyed by its id,
// so indexing the same product twice replaces the earlier entry.
type Collection struct {
	collection *chromem.Collection
}

var _ contractx.CatalogIndex = (*Collection)(nil)

func New(name string, embed chromem.EmbeddingFunc) (*Collection, error) {
	if embed == nil {
		return nil, errors.New("catalog: embedding func is required")
	}
	if strings.TrimSpace(name) == "" {
		name = "products"
	}

	db := chromem.NewDB()
	c, err := db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("catalog: create collection: %w", err)
	}
	return &Collection{collection: c}, nil
}

// Index embeds and stores products. The document content is the product name.
func (c *Collection) Index(ctx context.Context, products []contractx.Product) error {
	docs := make([]chromem.Document, 0, len(products))
	for _, p := range products {
		id := strings.TrimSpace(p.ID)
		name := strings.TrimSpace(p.Name)
		if id == "" || name == "" {
			return fmt.Errorf("%w: product id and name are required", contractx.ErrValidation)
		}
		docs = append(docs, chromem.Document{
			ID:      id,
			Content: name,
			Metadata: map[string]string{
				metaProductID: id,
				metaName:      name,
				metaPrice:     strconv.FormatFloat(p.Price, 'f', -1, 64),
			},
		})
	}
	if len(docs) == 0 {
		return nil
	}

	if err := c.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("catalog: index products: %w", err)
	}
	log.Info().Int("count", len(docs)).Str("collection", c.collection.Name).Msg("catalog indexed")
	return nil
}

// Search returns at most k candidates ordered by similarity. k is clamped to the collection size.
func (c *Collection) Search(ctx context.Context, query string, k int) ([]contractx.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", contractx.ErrValidation)
	}

	n := min(k, c.collection.Count())
	if n <= 0 {
		return []contractx.Candidate{}, nil
	}

	results, err := c.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: query: %w", err)
	}

	out := make([]contractx.Candidate, 0, len(results))
	for _, r := range results {
		price, err := strconv.ParseFloat(r.Metadata[metaPrice], 64)
		if err != nil {
			return nil, fmt.Errorf("catalog: document %s has invalid price: %w", r.ID, err)
		}
		out = append(out, contractx.Candidate{
			ID:    r.Metadata[metaProductID],
			Name:  r.Metadata[metaName],
			Price: price,
			Score: r.Similarity,
		})
	}
	return out, nil
}

func (c *Collection) Count() int {
	return c.collection.Count()
}

// LoadSeed reads a JSON array of products ({"product_id","name","price"}).
func LoadSeed(path string) ([]contractx.Product, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read seed file: %w", err)
	}
	var products []contractx.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("catalog: decode seed file: %w", err)
	}
	return products, nil
}
