package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	"github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/metrics"
	qstashx "github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/qstash"
	twiliox "github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/twilio"
)

const (
	maxTaskBodyBytes = 1 << 20

	retriedHeader = "Upstash-Retried"
)

type Responder interface {
	Respond(ctx context.Context, msg contractx.InboundMessage) string
}

// CallbackVerifier authenticates deferred task deliveries.
type CallbackVerifier interface {
	Verify(signature string, destination string, body []byte) error
	Retries() int
}

type Dependencies struct {
	Responder Responder
	Runner    contractx.TaskRunner

	// Callback is nil when tasks run in process; the callback route is then not mounted.
	Callback    CallbackVerifier
	CallbackURL string
}

type server struct {
	responder   Responder
	runner      contractx.TaskRunner
	callback    CallbackVerifier
	callbackURL string
}

func NewHandler(deps Dependencies) (http.Handler, error) {
	if deps.Responder == nil {
		return nil, errors.New("webhook responder is required")
	}
	if deps.Callback != nil && deps.Runner == nil {
		return nil, errors.New("task runner is required for the deferred callback")
	}

	s := &server{
		responder:   deps.Responder,
		runner:      deps.Runner,
		callback:    deps.Callback,
		callbackURL: strings.TrimSpace(deps.CallbackURL),
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", metrics.Instrument("root", http.HandlerFunc(s.handleRoot)))
	mux.Handle("GET /healthz", metrics.Instrument("healthz", http.HandlerFunc(s.handleHealth)))
	mux.Handle("POST /chat", metrics.Instrument("chat", http.HandlerFunc(s.handleChat)))
	if s.callback != nil {
		mux.Handle("POST /tasks/deferred", metrics.Instrument("deferred", http.HandlerFunc(s.handleDeferred)))
	}
	mux.Handle("GET /metrics", metrics.Handler())
	return mux, nil
}

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"Hello": "World"})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	in, err := twiliox.ParseInbound(r)
	if err != nil {
		log.Warn().Err(err).Msg("rejecting inbound webhook")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply := s.responder.Respond(r.Context(), in)

	body, err := twiliox.MessagingResponse(reply)
	if err != nil {
		log.Error().Err(err).Str("user_id", in.UserID).Msg("render twiml")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", twiliox.TwiMLContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleDeferred runs a task delivered by QStash. A non-2xx answer asks QStash to redeliver,
// so failures are reported that way until the last delivery, which abandons the task instead.
func (s *server) handleDeferred(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTaskBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if err := s.callback.Verify(r.Header.Get(qstashx.SignatureHeader), s.callbackURL, body); err != nil {
		log.Warn().Err(err).Msg("rejecting deferred callback")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var task contractx.DeferredTask
	if err := json.Unmarshal(body, &task); err != nil || strings.TrimSpace(task.UserID) == "" {
		log.Warn().Err(err).Msg("malformed deferred task")
		// A malformed payload never gets better on redelivery.
		writeJSON(w, http.StatusOK, map[string]string{"status": "dropped"})
		return
	}

	runErr := s.runner.RunDeferred(r.Context(), task)
	if runErr == nil {
		metrics.Deferred("succeeded")
		writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
		return
	}

	retried, _ := strconv.Atoi(strings.TrimSpace(r.Header.Get(retriedHeader)))
	if retried < s.callback.Retries() {
		metrics.Deferred("retried")
		log.Warn().Err(runErr).Str("user_id", task.UserID).Str("task", task.ID).Int("retried", retried).Msg("deferred task failed, awaiting redelivery")
		http.Error(w, "task failed", http.StatusInternalServerError)
		return
	}

	metrics.Deferred("abandoned")
	s.runner.AbandonDeferred(r.Context(), task, runErr)
	writeJSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
