package catalog

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
)

// letterEmbedding is a deterministic bag-of-letters embedding: identical names map to
// identical vectors, so an exact-name query is always the top hit.
func letterEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 27)
	vec[26] = 0.01
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

var testProducts = []contractx.Product{
	{ID: "p1", Name: "Red Shoes", Price: 49.99},
	{ID: "p2", Name: "Blue Jeans", Price: 39.5},
	{ID: "p3", Name: "Wool Hat", Price: 15},
}

func newTestCollection(t *testing.T) *Collection {
	t.Helper()

	c, err := New("test", letterEmbedding)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Index(context.Background(), testProducts); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	return c
}

func TestSearchTopHit(t *testing.T) {
	t.Parallel()

	c := newTestCollection(t)
	got, err := c.Search(context.Background(), "Red Shoes", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ID != "p1" || got[0].Name != "Red Shoes" || got[0].Price != 49.99 {
		t.Fatalf("top hit = %+v", got[0])
	}
}

func TestSearchClampsK(t *testing.T) {
	t.Parallel()

	c := newTestCollection(t)
	got, err := c.Search(context.Background(), "jeans", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != len(testProducts) {
		t.Fatalf("len = %d, want %d", len(got), len(testProducts))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Score < got[i].Score {
			t.Fatalf("results not ordered by score: %+v", got)
		}
	}
}

func TestSearchEmptyCollection(t *testing.T) {
	t.Parallel()

	c, err := New("empty", letterEmbedding)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got, err := c.Search(context.Background(), "anything", 4)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}

func TestReindexReplacesDocument(t *testing.T) {
	t.Parallel()

	c := newTestCollection(t)
	if err := c.Index(context.Background(), []contractx.Product{{ID: "p1", Name: "Red Shoes", Price: 59}}); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if c.Count() != len(testProducts) {
		t.Fatalf("count = %d, want %d", c.Count(), len(testProducts))
	}
	got, err := c.Search(context.Background(), "Red Shoes", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got[0].Price != 59 {
		t.Fatalf("price = %v, want updated 59", got[0].Price)
	}
}

func TestIndexValidation(t *testing.T) {
	t.Parallel()

	c, _ := New("v", letterEmbedding)
	err := c.Index(context.Background(), []contractx.Product{{ID: "", Name: "x"}})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Index() error = %v, want ErrValidation", err)
	}
	if _, err := c.Search(context.Background(), "  ", 1); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Search() error = %v, want ErrValidation", err)
	}
}

func TestLoadSeed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "products.json")
	if err := os.WriteFile(path, []byte(`[{"product_id":"p1","name":"Red Shoes","price":49.99}]`), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	got, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" || got[0].Price != 49.99 {
		t.Fatalf("seed = %+v", got)
	}
}
