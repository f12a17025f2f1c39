package openrouter

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAttributionHeaders(t *testing.T) {
	t.Parallel()

	c := &Config{SiteURL: " https://shop.example ", SiteName: "Shop"}
	headers := c.attributionHeaders()
	if headers["HTTP-Referer"] != "https://shop.example" || headers["X-Title"] != "Shop" {
		t.Fatalf("unexpected headers: %#v", headers)
	}

	if got := (&Config{}).attributionHeaders(); len(got) != 0 {
		t.Fatalf("expected no headers, got %#v", got)
	}
}

func TestHeaderTransportSetsHeaders(t *testing.T) {
	t.Parallel()

	var gotTitle string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("X-Title")
	}))
	t.Cleanup(server.Close)

	client := &http.Client{Transport: &headerTransport{
		base:    http.DefaultTransport,
		headers: map[string]string{"X-Title": "Shop"},
	}}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if gotTitle != "Shop" {
		t.Fatalf("X-Title = %q, want Shop", gotTitle)
	}
}

func TestNewRequiresModel(t *testing.T) {
	t.Parallel()

	c := &Config{APIKey: "k"}
	if _, err := c.New(t.Context()); err == nil {
		t.Fatal("expected error for empty model")
	}
}
