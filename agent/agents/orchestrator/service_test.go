package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	statex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/state"
	toolx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/tool"
)

const testSystemPrompt = "you are a shop assistant"

type fakeClassifier struct {
	mu      sync.Mutex
	intents map[string]contractx.Intent
	calls   int
}

func (f *fakeClassifier) Classify(_ context.Context, text string) contractx.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if in, ok := f.intents[text]; ok {
		return in
	}
	return contractx.IntentGeneral
}

func (f *fakeClassifier) RequiresDeferral(ctx context.Context, text string) bool {
	return f.Classify(ctx, text).IsSlow()
}

type fakeAssistant struct {
	mu         sync.Mutex
	err        error
	histories  [][]statex.Message
	identities []string
}

func (f *fakeAssistant) Invoke(ctx context.Context, history []statex.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories = append(f.histories, statex.CloneHistory(history))
	id, _ := toolx.IdentityFrom(ctx)
	f.identities = append(f.identities, id)
	if f.err != nil {
		return "", f.err
	}
	return "answer: " + history[len(history)-1].Content, nil
}

type fakeTranscriber struct {
	text string
	err  error
	urls []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return f.text, f.err
}

type sentMessage struct {
	to   string
	body string
}

type fakeMessenger struct {
	mu   sync.Mutex
	err  error
	sent []sentMessage
}

func (f *fakeMessenger) SendMessage(_ context.Context, to string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: to, body: body})
	return f.err
}

type fakeDeferrer struct {
	mu    sync.Mutex
	err   error
	tasks []contractx.DeferredTask
}

func (f *fakeDeferrer) Defer(_ context.Context, task contractx.DeferredTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

type fixture struct {
	o           *Orchestrator
	store       *statex.MemoryStore
	classifier  *fakeClassifier
	assistant   *fakeAssistant
	transcriber *fakeTranscriber
	messenger   *fakeMessenger
	deferrer    *fakeDeferrer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: statex.NewMemoryStore(),
		classifier: &fakeClassifier{intents: map[string]contractx.Intent{
			"show me shoes":        contractx.IntentSearch,
			"buy red shoes":        contractx.IntentOrder,
			"my parcel is damaged": contractx.IntentSupport,
			"where is my order":    contractx.IntentStatus,
		}},
		assistant:   &fakeAssistant{},
		transcriber: &fakeTranscriber{text: "what do you sell"},
		messenger:   &fakeMessenger{},
		deferrer:    &fakeDeferrer{},
	}

	o, err := New(Dependencies{
		Store:       f.store,
		Classifier:  f.classifier,
		Assistant:   f.assistant,
		Transcriber: f.transcriber,
		Messenger:   f.messenger,
		Deferrer:    f.deferrer,
	}, Config{SystemPrompt: testSystemPrompt})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	o.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	f.o = o
	return f
}

func inbound(body string) contractx.InboundMessage {
	return contractx.InboundMessage{
		UserID:      "15551234567",
		From:        "whatsapp:+15551234567",
		ProfileName: "Ada",
		Body:        body,
	}
}

func (f *fixture) history(t *testing.T) []statex.Message {
	t.Helper()

	u, err := f.store.Get(context.Background(), "15551234567")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return u.History
}

func assertHistory(t *testing.T, got []statex.Message, want ...statex.Message) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("history length = %d, want %d: %#v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history[%d] = %#v, want %#v", i, got[i], want[i])
		}
	}
}

func TestImmediatePathForFastIntents(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"show me shoes", "hello there", "where is my order"} {
		t.Run(text, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			reply := f.o.Respond(context.Background(), inbound(text))

			if reply != "answer: "+text {
				t.Fatalf("reply = %q", reply)
			}
			if len(f.deferrer.tasks) != 0 {
				t.Fatalf("deferred tasks = %d, want 0", len(f.deferrer.tasks))
			}
			if len(f.assistant.histories) != 1 || f.assistant.identities[0] != "15551234567" {
				t.Fatalf("assistant calls = %d identities = %v", len(f.assistant.histories), f.assistant.identities)
			}
			assertHistory(t, f.history(t),
				statex.SystemMessage(testSystemPrompt),
				statex.UserMessage(text),
				statex.AssistantMessage("answer: "+text),
			)
		})
	}
}

func TestImmediatePathAppendsToExistingHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.o.Respond(ctx, inbound("hello there"))
	f.o.Respond(ctx, inbound("show me shoes"))

	assertHistory(t, f.history(t),
		statex.SystemMessage(testSystemPrompt),
		statex.UserMessage("hello there"),
		statex.AssistantMessage("answer: hello there"),
		statex.UserMessage("show me shoes"),
		statex.AssistantMessage("answer: show me shoes"),
	)

	// The second run saw the whole prior conversation.
	if got := len(f.assistant.histories[1]); got != 4 {
		t.Fatalf("second agent input length = %d, want 4", got)
	}
}

func TestDeferredPathForSlowIntents(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"buy red shoes", "my parcel is damaged"} {
		t.Run(text, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			ctx := context.Background()
			reply := f.o.Respond(ctx, inbound(text))

			if reply != ProvisionalReply {
				t.Fatalf("reply = %q, want provisional", reply)
			}
			if len(f.assistant.histories) != 0 {
				t.Fatal("agent must not run inside the request on the deferred path")
			}
			if len(f.deferrer.tasks) != 1 {
				t.Fatalf("deferred tasks = %d, want 1", len(f.deferrer.tasks))
			}
			task := f.deferrer.tasks[0]
			if task.Destination != "whatsapp:+15551234567" || task.UserID != "15551234567" || task.ID == "" {
				t.Fatalf("task = %+v", task)
			}
			assertHistory(t, task.History, statex.SystemMessage(testSystemPrompt), statex.UserMessage(text))

			// Nothing is stored until the task runs.
			if got := f.history(t); len(got) != 0 {
				t.Fatalf("history before task = %#v", got)
			}

			if err := f.o.RunDeferred(ctx, task); err != nil {
				t.Fatalf("RunDeferred() error = %v", err)
			}
			if len(f.messenger.sent) != 1 || f.messenger.sent[0] != (sentMessage{to: "whatsapp:+15551234567", body: "answer: " + text}) {
				t.Fatalf("sent = %#v", f.messenger.sent)
			}
			if f.assistant.identities[0] != "15551234567" {
				t.Fatalf("deferred identity = %q", f.assistant.identities[0])
			}
			assertHistory(t, f.history(t),
				statex.SystemMessage(testSystemPrompt),
				statex.UserMessage(text),
				statex.AssistantMessage("answer: "+text),
			)
		})
	}
}

func TestAudioIsTranscribedAndDeferred(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	msg := inbound("")
	msg.Media = []contractx.Media{
		{URL: "https://media.example/img", ContentType: "image/jpeg"},
		{URL: "https://media.example/voice1", ContentType: "audio/ogg"},
		{URL: "https://media.example/voice2", ContentType: "audio/ogg"},
	}

	reply := f.o.Respond(context.Background(), msg)
	if reply != ProvisionalReply {
		t.Fatalf("reply = %q, want provisional", reply)
	}
	if len(f.transcriber.urls) != 1 || f.transcriber.urls[0] != "https://media.example/voice1" {
		t.Fatalf("transcribed = %v, want first audio only", f.transcriber.urls)
	}
	if len(f.deferrer.tasks) != 1 || !f.deferrer.tasks[0].FromAudio {
		t.Fatalf("tasks = %+v", f.deferrer.tasks)
	}
	assertHistory(t, f.deferrer.tasks[0].History, statex.SystemMessage(testSystemPrompt), statex.UserMessage("what do you sell"))

	u, _ := f.store.Get(context.Background(), "15551234567")
	if len(u.Media) != 3 {
		t.Fatalf("stored media = %v, want all three urls", u.Media)
	}
}

func TestTranscriptionFailureApologises(t *testing.T) {
	t.Parallel()

	for name, tr := range map[string]*fakeTranscriber{
		"error": {err: errors.New("whisper down")},
		"empty": {text: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.o.transcriber = tr
			msg := inbound("")
			msg.Media = []contractx.Media{{URL: "https://media.example/voice", ContentType: "audio/ogg"}}

			if reply := f.o.Respond(context.Background(), msg); reply != TranscriptionApology {
				t.Fatalf("reply = %q, want apology", reply)
			}
			if f.classifier.calls != 0 || len(f.deferrer.tasks) != 0 || len(f.assistant.histories) != 0 {
				t.Fatal("nothing downstream of transcription may run")
			}
			u, _ := f.store.Get(context.Background(), "15551234567")
			if len(u.History) != 0 || len(u.Media) != 1 {
				t.Fatalf("user = %+v, want media stored and no history", u)
			}
		})
	}
}

func TestAgentFailureYieldsFallbackWithoutPersisting(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.assistant.err = contractx.ErrModelInvoke

	if reply := f.o.Respond(context.Background(), inbound("hello there")); reply != FallbackReply {
		t.Fatalf("reply = %q, want fallback", reply)
	}
	if got := f.history(t); len(got) != 0 {
		t.Fatalf("history = %#v, want nothing persisted", got)
	}
}

func TestEmptyMessageYieldsFallback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if reply := f.o.Respond(context.Background(), inbound("   ")); reply != FallbackReply {
		t.Fatalf("reply = %q, want fallback", reply)
	}
	msg := inbound("hi")
	msg.UserID = ""
	if _, err := f.o.HandleMessage(context.Background(), msg); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("HandleMessage() error = %v, want ErrInvalidUser", err)
	}
}

func TestDeferralRejectedRunsInline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.deferrer.err = errors.New("queue full")

	if reply := f.o.Respond(context.Background(), inbound("buy red shoes")); reply != "answer: buy red shoes" {
		t.Fatalf("reply = %q, want inline answer", reply)
	}
	assertHistory(t, f.history(t),
		statex.SystemMessage(testSystemPrompt),
		statex.UserMessage("buy red shoes"),
		statex.AssistantMessage("answer: buy red shoes"),
	)
}

func TestAbandonDeferredSendsAndStoresFallback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.o.Respond(ctx, inbound("buy red shoes"))
	task := f.deferrer.tasks[0]

	f.assistant.err = errors.New("boom")
	if err := f.o.RunDeferred(ctx, task); err == nil {
		t.Fatal("RunDeferred() expected error")
	}
	if len(f.messenger.sent) != 0 {
		t.Fatal("nothing may be sent when the agent fails")
	}

	f.o.AbandonDeferred(ctx, task, errors.New("boom"))
	if len(f.messenger.sent) != 1 || f.messenger.sent[0].body != FallbackReply {
		t.Fatalf("sent = %#v", f.messenger.sent)
	}
	assertHistory(t, f.history(t),
		statex.SystemMessage(testSystemPrompt),
		statex.UserMessage("buy red shoes"),
		statex.AssistantMessage(FallbackReply),
	)
}

func TestDeferredSendFailureStillPersists(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.o.Respond(ctx, inbound("buy red shoes"))
	f.messenger.err = errors.New("twilio 500")

	if err := f.o.RunDeferred(ctx, f.deferrer.tasks[0]); err != nil {
		t.Fatalf("RunDeferred() error = %v", err)
	}
	if got := f.history(t); len(got) != 3 {
		t.Fatalf("history = %#v, want the produced turn persisted", got)
	}
}

// A deferred task replaces history with its snapshot. An immediate exchange stored while
// the task was in flight is overwritten. This documents the known last-writer-wins race.
func TestDeferredReplaceOverwritesInterleavedExchange(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.o.Respond(ctx, inbound("hello there"))
	f.o.Respond(ctx, inbound("buy red shoes"))
	f.o.Respond(ctx, inbound("show me shoes"))

	if got := len(f.history(t)); got != 5 {
		t.Fatalf("history before task = %d entries, want 5", got)
	}

	if err := f.o.RunDeferred(ctx, f.deferrer.tasks[0]); err != nil {
		t.Fatalf("RunDeferred() error = %v", err)
	}
	assertHistory(t, f.history(t),
		statex.SystemMessage(testSystemPrompt),
		statex.UserMessage("hello there"),
		statex.AssistantMessage("answer: hello there"),
		statex.UserMessage("buy red shoes"),
		statex.AssistantMessage("answer: buy red shoes"),
	)
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(Dependencies{}, Config{SystemPrompt: "x"}); err == nil {
		t.Fatal("expected error for missing store")
	}
	f := newFixture(t)
	_, err := New(Dependencies{
		Store:      f.store,
		Classifier: f.classifier,
		Assistant:  f.assistant,
		Messenger:  f.messenger,
	}, Config{})
	if !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("New() error = %v, want ErrPromptMissing", err)
	}
}
