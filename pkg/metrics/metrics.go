package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpmetrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
)

const namespace = "chative"

var dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "dispatch_total",
	Help:      "Inbound messages by dispatch path (immediate, deferred, fallback, transcription_failed).",
}, []string{"path"})

var intentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "intent_total",
	Help:      "Classified inbound messages by intent label.",
}, []string{"intent"})

var deferredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "deferred_tasks_total",
	Help:      "Deferred task outcomes (succeeded, retried, abandoned, rejected).",
}, []string{"outcome"})

var toolTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "tool_invocations_total",
	Help:      "Tool invocations by tool name and outcome.",
}, []string{"tool", "outcome"})

var sendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "transport_sends_total",
	Help:      "Outbound messaging transport sends by outcome.",
}, []string{"outcome"})

var queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "deferred_queue_depth",
	Help:      "Deferred tasks waiting in the in-process pool.",
})

func Dispatch(path string) { dispatchTotal.WithLabelValues(path).Inc() }
func Intent(intent string) { intentTotal.WithLabelValues(intent).Inc() }
func Deferred(outcome string) { deferredTotal.WithLabelValues(outcome).Inc() }
func Tool(tool string, outcome string) { toolTotal.WithLabelValues(tool, outcome).Inc() }
func QueueDepth(delta float64) { queueDepth.Add(delta) }

func Send(err error) {
	if err != nil {
		sendTotal.WithLabelValues("error").Inc()
		return
	}
	sendTotal.WithLabelValues("ok").Inc()
}

var (
	mdlwOnce sync.Once
	mdlw     middleware.Middleware
)

// Instrument wraps h with request duration and size metrics. The recorder registers
// collectors globally, so it is built once per process.
func Instrument(handlerID string, h http.Handler) http.Handler {
	mdlwOnce.Do(func() {
		mdlw = middleware.New(middleware.Config{
			Recorder: httpmetrics.NewRecorder(httpmetrics.Config{Prefix: namespace}),
		})
	})
	return std.Handler(handlerID, mdlw, h)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
