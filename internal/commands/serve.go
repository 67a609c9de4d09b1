package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/riskpilot-core/server/internal/agent/graph"
	"github.com/riskpilot-core/server/internal/agent/graph/nodes"
	"github.com/riskpilot-core/server/internal/agent/graph/sticky"
	"github.com/riskpilot-core/server/internal/agent/graph/tools"
	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/internal/agent/repo"
	"github.com/riskpilot-core/server/internal/audit"
	"github.com/riskpilot-core/server/internal/core"
	"github.com/riskpilot-core/server/internal/server"
	"github.com/riskpilot-core/server/internal/store"
	"github.com/riskpilot-core/server/internal/vector"
	"github.com/riskpilot-core/server/pkg/logger"
	pkgredis "github.com/riskpilot-core/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the service, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"riskpilot.db"`

	// Agent configs
	Classifier   model.ClassifierModelConfig
	Responder    model.ResponderModelConfig
	Conversation model.ConversationConfig
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func loadConfig() (*AppConfig, error) {
	if err := godotenv.Load(".env"); err != nil {
		logx.Debug().Err(err).Msg("no .env file loaded")
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})
	return &cfg, nil
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Redis is only needed by the server, console sessions stay in memory.
	var redisCfg pkgredis.Config
	if err := envconfig.Process("REDIS", &redisCfg); err != nil {
		return fmt.Errorf("process redis config: %w", err)
	}
	rdb, err := redisCfg.New()
	if err != nil {
		return fmt.Errorf("initialise redis client: %w", err)
	}
	defer rdb.Close()

	st, err := store.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer st.Close()

	index := vector.NewMemoryIndex(vector.NewHashEmbedder(256))
	if err := seedKnowledge(ctx, index); err != nil {
		return fmt.Errorf("seed knowledge base: %w", err)
	}

	deps, err := buildDeps(ctx, cfg, st, index)
	if err != nil {
		return err
	}

	conversations := repo.NewRedisConversationRepository(rdb, cfg.Conversation.TTL)
	runner, err := graph.NewRunner(ctx, deps, conversations, graph.Config{})
	if err != nil {
		return fmt.Errorf("build dispatch graph: %w", err)
	}

	stores := server.Stores{Risks: st, Controls: st, Audits: st}
	logx.Info().Str("addr", cfg.HTTPAddr).Msg("starting server")
	return server.New(runner, stores, index).Start(cfg.HTTPAddr)
}

func buildDeps(ctx context.Context, cfg *AppConfig, st *store.SQLiteStore, index *vector.MemoryIndex) (*nodes.Deps, error) {
	classifier, err := nodes.NewGeminiModel(ctx, nodes.ModelSettings{
		Model:          cfg.Classifier.Model,
		APIKey:         cfg.Classifier.APIKey,
		Temperature:    cfg.Classifier.Temperature,
		MaxTokens:      cfg.Classifier.MaxTokens,
		ThinkingBudget: cfg.Classifier.ThinkingBudget,
	})
	if err != nil {
		return nil, fmt.Errorf("build classifier model: %w", err)
	}
	responder, err := nodes.NewGeminiModel(ctx, nodes.ModelSettings{
		Model:          cfg.Responder.Model,
		APIKey:         cfg.Responder.APIKey,
		Temperature:    cfg.Responder.Temperature,
		MaxTokens:      cfg.Responder.MaxTokens,
		ThinkingBudget: cfg.Responder.ThinkingBudget,
	})
	if err != nil {
		return nil, fmt.Errorf("build responder model: %w", err)
	}

	return &nodes.Deps{
		Classifier:    classifier,
		Responder:     responder,
		Sticky:        sticky.NewKeywordGuard(nodes.StickyModes()),
		Searcher:      index,
		Risks:         st,
		Controls:      st,
		Profiles:      st,
		Audits:        st,
		Loop:          cfg.Conversation.Tools,
		HistoryWindow: cfg.Conversation.HistoryWindow,
	}, nil
}

// seedKnowledge loads the clause and Annex A reference content so the
// knowledge base answers from day one.
func seedKnowledge(ctx context.Context, index vector.Indexer) error {
	var docs []vector.Document
	for _, item := range audit.DefaultChecklist() {
		category := "clauses"
		if item.Type == audit.TypeAnnex {
			category = "annex_a"
		}
		docs = append(docs, vector.Document{
			ID:   item.ISOReference,
			Text: fmt.Sprintf("%s %s: %s", item.ISOReference, item.Title, item.Description),
			Metadata: map[string]any{
				"category":      category,
				"iso_reference": item.ISOReference,
			},
		})
	}
	return index.Index(ctx, tools.CollectionKnowledge, docs...)
}
