package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog/log"
	assistantx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/agents/assistant"
	classifierx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/agents/classifier"
	orchestratorx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/agents/orchestrator"
	catalogx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/catalog"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	llmx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/llm"
	orderx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/order"
	promptx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/prompt"
	statex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/state"
	toolx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/tool"
	webhookx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/webhook"
	workerx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/worker"
	configx "github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/config"
	_ "github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/logger/autoload"
	mailerx "github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/mailer"
	openaix "github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/openai"
	qstashx "github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/qstash"
	twiliox "github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/twilio"
)

const (
	storeMemory  = "memory"
	storeUpstash = "upstash"
)

type AppConfig struct {
	Addr              string        `envconfig:"ADDR" default:":8080"`
	Locale            string        `envconfig:"LOCALE" default:"en"`
	ConversationStore string        `envconfig:"CONVERSATION_STORE" split_words:"true" default:"memory"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"30s"`
}

// productStore is what startup needs beyond the tool-facing order contract.
type productStore interface {
	contractx.OrderStore
	UpsertProducts(ctx context.Context, products []contractx.Product) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context) error {
	appCfg := configx.MustNew[AppConfig]("APP")
	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	if err := llmCfg.Validate(); err != nil {
		return err
	}
	openaiCfg := configx.MustNew[openaix.Config]("OPENAI")
	twilioCfg := configx.MustNew[twiliox.Config]("TWILIO")
	smtpCfg := configx.MustNew[mailerx.Config]("SMTP")
	dbCfg := configx.MustNew[orderx.Config]("DATABASE")
	workerCfg := configx.MustNew[workerx.Config]("WORKER")
	catalogCfg := configx.MustNew[catalogx.Config]("CATALOG")

	prompts := promptx.LoadPromptSet()
	if err := prompts.Validate(); err != nil {
		return err
	}

	store, err := newConversationStore(appCfg.ConversationStore)
	if err != nil {
		return err
	}

	orders, closeOrders, err := newOrderStore(ctx, *dbCfg)
	if err != nil {
		return err
	}
	defer closeOrders()

	openaiClient, err := openaix.NewClient(*openaiCfg)
	if err != nil {
		return err
	}
	catalog, err := buildCatalog(ctx, *catalogCfg, orders, openaiClient)
	if err != nil {
		return err
	}

	twilio, err := twiliox.NewClient(*twilioCfg)
	if err != nil {
		return err
	}
	mailer, err := mailerx.New(*smtpCfg)
	if err != nil {
		return err
	}

	classifierModel, err := newChatModel(ctx, *llmCfg, contractx.AgentTypeClassifier)
	if err != nil {
		return err
	}
	classifier, err := classifierx.NewIntentClassifier(ctx, classifierModel, prompts.Intent)
	if err != nil {
		return err
	}
	verifierModel, err := newChatModel(ctx, *llmCfg, contractx.AgentTypeVerifier)
	if err != nil {
		return err
	}
	verifier, err := classifierx.NewRelevanceVerifier(ctx, verifierModel, prompts.Relevance)
	if err != nil {
		return err
	}

	toolset := toolx.NewToolset(catalog, orders, verifier, mailer, catalogCfg.TopK)
	assistantModel, err := newChatModel(ctx, *llmCfg, contractx.AgentTypeAssistant)
	if err != nil {
		return err
	}
	assistant, err := assistantx.New(ctx, assistantModel, toolset.EinoTools(), llmCfg.AssistantMaxStep)
	if err != nil {
		return err
	}

	deps := orchestratorx.Dependencies{
		Store:       store,
		Classifier:  classifier,
		Assistant:   assistant,
		Transcriber: openaix.NewTranscriber(twilio, openaiClient),
		Messenger:   twilio,
	}

	var (
		pool   *workerx.Pool
		qstash *qstashx.Client
	)
	switch strings.ToLower(strings.TrimSpace(workerCfg.Mode)) {
	case workerx.ModeQStash:
		qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
		qstash = qstashx.MustNew(*qstashCfg)
		deferrer, err := workerx.NewQStashDeferrer(qstash, workerCfg.CallbackURL)
		if err != nil {
			return err
		}
		deps.Deferrer = deferrer
	case workerx.ModeLocal, "":
		pool = workerx.NewPool(*workerCfg)
		deps.Deferrer = pool
	default:
		return fmt.Errorf("unknown worker mode %q", workerCfg.Mode)
	}

	orchestrator, err := orchestratorx.New(deps, orchestratorx.Config{
		SystemPrompt: prompts.System,
		Locale:       appCfg.Locale,
	})
	if err != nil {
		return err
	}

	hookCfg := webhookx.Dependencies{Responder: orchestrator, Runner: orchestrator}
	if qstash != nil {
		hookCfg.Callback = qstash
		hookCfg.CallbackURL = workerCfg.CallbackURL
	}
	handler, err := webhookx.NewHandler(hookCfg)
	if err != nil {
		return err
	}

	if pool != nil {
		pool.Start(orchestrator)
	}

	srv := &http.Server{
		Addr:              appCfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", appCfg.Addr).Str("worker_mode", workerCfg.Mode).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if pool != nil {
		if err := pool.Close(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("deferred pool did not drain")
		}
	}
	return nil
}

func newChatModel(ctx context.Context, cfg llmx.Config, role contractx.AgentType) (einomodel.ToolCallingChatModel, error) {
	orCfg := cfg.OpenRouterFor(role)
	m, err := orCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s model: %w", role, err)
	}
	return m, nil
}

func newConversationStore(kind string) (statex.Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case storeUpstash:
		cfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		return statex.NewUpstashRedisStore(*cfg)
	case storeMemory, "":
		log.Warn().Msg("conversation store is in memory; history is lost on restart")
		return statex.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown conversation store %q", kind)
	}
}

func newOrderStore(ctx context.Context, cfg orderx.Config) (productStore, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		log.Warn().Msg("DATABASE_DSN is empty; orders are kept in memory")
		return orderx.NewMemoryStore(), func() {}, nil
	}

	db, err := orderx.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("close order database")
		}
	}, nil
}

// buildCatalog upserts the optional seed file into the order store, then indexes every
// product the store knows about.
func buildCatalog(ctx context.Context, cfg catalogx.Config, orders productStore, embedder *openaix.Client) (*catalogx.Collection, error) {
	if path := strings.TrimSpace(cfg.SeedFile); path != "" {
		seed, err := catalogx.LoadSeed(path)
		if err != nil {
			return nil, err
		}
		if err := orders.UpsertProducts(ctx, seed); err != nil {
			return nil, fmt.Errorf("seed products: %w", err)
		}
	}

	products, err := orders.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	catalog, err := catalogx.New(cfg.Collection, embedder.EmbeddingFunc())
	if err != nil {
		return nil, err
	}
	if err := catalog.Index(ctx, products); err != nil {
		return nil, err
	}
	log.Info().Int("products", catalog.Count()).Msg("catalog indexed")
	return catalog, nil
}
