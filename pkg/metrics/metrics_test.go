package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(sendTotal.WithLabelValues("error"))
	Send(errors.New("down"))
	if got := testutil.ToFloat64(sendTotal.WithLabelValues("error")); got != before+1 {
		t.Fatalf("send error counter = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(toolTotal.WithLabelValues("create_order", "ok"))
	Tool("create_order", "ok")
	if got := testutil.ToFloat64(toolTotal.WithLabelValues("create_order", "ok")); got != before+1 {
		t.Fatalf("tool counter = %v, want %v", got, before+1)
	}
}

func TestInstrumentAndExpose(t *testing.T) {
	h := Instrument("/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong")
	}))
	// A second wrap must not re-register collectors.
	_ = Instrument("/ping2", h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Body.String() != "pong" {
		t.Fatalf("body = %q", rec.Body.String())
	}

	Dispatch("immediate")
	rec = httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"chative_dispatch_total", "chative_http_request_duration_seconds"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
