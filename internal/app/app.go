// Package app wires the application graph: config, logger, database, lexicon
// and the decision pipeline. Commands construct an App and pick the pieces
// they need.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dmribeiro/ambientd/internal/config"
	"github.com/dmribeiro/ambientd/internal/deduce"
	"github.com/dmribeiro/ambientd/internal/dispatch"
	"github.com/dmribeiro/ambientd/internal/lexicon"
	"github.com/dmribeiro/ambientd/internal/llm"
	"github.com/dmribeiro/ambientd/internal/logging"
	"github.com/dmribeiro/ambientd/internal/memory"
	"github.com/dmribeiro/ambientd/internal/orchestrator"
	"github.com/dmribeiro/ambientd/internal/risk"
	"github.com/dmribeiro/ambientd/internal/shadow"
	"github.com/dmribeiro/ambientd/internal/storage"
	"github.com/dmribeiro/ambientd/internal/store"
)

// App holds the wired components.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	DB           *storage.DB
	Orchestrator *orchestrator.Orchestrator
	Handshakes   *store.HandshakeStore
	History      *store.History
}

// New builds the full graph from a config file path (may be empty).
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	lex, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load lexicon: %w", err)
	}

	memories := memory.NewService(db)
	history := store.NewHistory(db, memories)
	handshakes := store.NewHandshakeStore(db)

	thresholds := risk.Thresholds{Low: cfg.RiskLow, Medium: cfg.RiskMedium, High: cfg.RiskHigh}
	if err := thresholds.Validate(); err != nil {
		db.Close()
		return nil, err
	}

	var fallback orchestrator.FallbackClient
	if cfg.LLMEnabled {
		fallback = llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	}

	orch := orchestrator.New(orchestrator.Params{
		Dispatcher: dispatch.New(lex),
		Deducer:    deduce.NewEngine(history, memories, lex, logger),
		Thresholds: thresholds,
		Writers:    store.Writers(db),
		Verifier:   shadow.NewVerifier(store.NewAggregates(db), logger),
		Handshakes: handshakes,
		Memories:   memories,
		Fallback:   fallback,
		Logger:     logger,
	})

	return &App{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		Orchestrator: orch,
		Handshakes:   handshakes,
		History:      history,
	}, nil
}

// Close releases the app's resources.
func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error("failed to close database", zap.Error(err))
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
