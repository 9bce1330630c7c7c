package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Imdavyking/PayperAI/internal/config"
	"github.com/Imdavyking/PayperAI/internal/logger"
	"github.com/Imdavyking/PayperAI/internal/tracing"
	"github.com/Imdavyking/PayperAI/pkg/agent"
	"github.com/Imdavyking/PayperAI/pkg/commandqueue"
	"github.com/Imdavyking/PayperAI/pkg/docs"
	"github.com/Imdavyking/PayperAI/pkg/gateway"
	"github.com/Imdavyking/PayperAI/pkg/payment"
	"github.com/Imdavyking/PayperAI/pkg/session"
	"github.com/Imdavyking/PayperAI/pkg/tools"
	"github.com/Imdavyking/PayperAI/pkg/wallet"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the PayperAI gateway",
	Long: `Start the PayperAI gateway in the foreground. The gateway serves
the priced agent endpoints, the session API, and the websocket event
stream until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer lg.Close()
	zl := lg.GetZerolog()

	if err := tracing.InitOpenTelemetry("payperai"); err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.ShutdownOpenTelemetry(ctx)
	}()

	// Session store
	var store session.Store
	switch cfg.Session.Backend {
	case "memory":
		store = session.NewMemoryStore()
	default:
		jsonlStore, err := session.NewJSONLStore(cfg.Session.Dir)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		store = jsonlStore
	}

	registry, err := tools.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	queue := commandqueue.New()
	defer queue.Close()

	resolvers := map[string]agent.QueryResolver{}

	// Chain queries resolve against the fullnode.
	node := wallet.NewFullnode(cfg.Wallet.FullnodeURL)
	resolvers["txHashSummary"] = node.TransactionSummary
	resolvers["addressInfo"] = node.AddressInfo

	// Docs search, when a corpus is configured.
	if cfg.Docs.Enabled && cfg.Docs.CorpusDir != "" {
		var embedder docs.EmbeddingProvider
		for _, profile := range cfg.AI.Profiles {
			if profile.Provider == "openai" {
				embedder = docs.NewOpenAIEmbedder(profile.APIKey, "")
				break
			}
		}

		index, err := docs.NewIndex(docs.IndexConfig{
			CorpusDir:         cfg.Docs.CorpusDir,
			DBPath:            cfg.Docs.DBPath,
			BaseURL:           cfg.Docs.BaseURL,
			Logger:            zl,
			EmbeddingProvider: embedder,
		})
		if err != nil {
			return fmt.Errorf("failed to open docs index: %w", err)
		}
		defer index.Close()

		service := docs.NewService(index)
		resolvers["searchMovementDocs"] = func(ctx context.Context, args map[string]interface{}) (string, error) {
			query, _ := args["query"].(string)
			detailed, _ := args["detailed"].(bool)
			return service.Search(ctx, query, detailed)
		}
	}

	profiles := make([]agent.Profile, 0, len(cfg.AI.Profiles))
	for _, p := range cfg.AI.Profiles {
		profiles = append(profiles, agent.Profile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			Model:    p.Model,
			Priority: p.Priority,
		})
	}

	engine, err := agent.NewEngine(agent.EngineConfig{
		Store:            store,
		Registry:         registry,
		Queue:            queue,
		Logger:           zl,
		Profiles:         profiles,
		Resolvers:        resolvers,
		Model:            cfg.AI.Model,
		Temperature:      cfg.AI.Temperature,
		MaxTokens:        cfg.AI.MaxTokens,
		MaxContextTokens: cfg.AI.MaxContextTokens,
		MaxRetries:       cfg.AI.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("failed to build agent engine: %w", err)
	}

	// Payment gate
	var gate *payment.Gate
	if cfg.Payment.Enabled {
		facilitator, err := payment.NewHTTPFacilitator(cfg.Payment.FacilitatorURL)
		if err != nil {
			return fmt.Errorf("failed to build facilitator client: %w", err)
		}

		consumed, err := payment.NewSQLiteConsumedStore(cfg.Payment.ConsumedDBPath)
		if err != nil {
			return fmt.Errorf("failed to open consumed proof store: %w", err)
		}
		defer consumed.Close()

		gate, err = payment.NewGate(payment.GateConfig{
			PayTo:       cfg.Payment.PayTo,
			Facilitator: facilitator,
			Consumed:    consumed,
			Prices:      gatePrices(cfg),
		})
		if err != nil {
			return fmt.Errorf("failed to build payment gate: %w", err)
		}

		sweeper, err := payment.NewSweeper(consumed, "", 0)
		if err != nil {
			return fmt.Errorf("failed to build proof sweeper: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	server, err := gateway.NewServer(gateway.ServerConfig{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Engine:            engine,
		Store:             store,
		Gate:              gate,
		Models:            modelCatalog(cfg),
		PremiumModel:      cfg.AI.PremiumModel,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		MaxConcurrent:     cfg.Server.MaxConcurrent,
		Logger:            zl,
	})
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	// Live price reload: edits to the config file retarget the gate
	// without a restart.
	if gate != nil {
		watcher, err := config.NewWatcher(config.NewLoader(cfgFile), zl, func(fresh *config.Config) {
			gate.UpdatePrices(gatePrices(fresh))
		})
		if err != nil {
			zl.Warn().Err(err).Msg("Price reload disabled: cannot watch config file")
		} else {
			defer watcher.Stop()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}

	zl.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

func gatePrices(cfg *config.Config) map[string]payment.RoutePrice {
	prices := make(map[string]payment.RoutePrice, len(cfg.Payment.Prices))
	for route, price := range cfg.Payment.Prices {
		prices[route] = payment.RoutePrice{
			Amount:      price.Amount,
			Description: price.Description,
		}
	}
	return prices
}

func modelCatalog(cfg *config.Config) []gateway.ModelInfo {
	standard := cfg.Payment.Prices[gateway.RouteAgent]
	premium := cfg.Payment.Prices[gateway.RouteAgentPremium]

	return []gateway.ModelInfo{
		{
			Name:        cfg.AI.Model,
			Description: "Standard pay-per-call agent tier",
			Price:       standard.Amount,
		},
		{
			Name:        cfg.AI.PremiumModel,
			Description: "Premium agent tier",
			Price:       premium.Amount,
		},
	}
}
