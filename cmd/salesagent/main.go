package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/danielohoh/sales-ai-agent/internal/agent"
	"github.com/danielohoh/sales-ai-agent/internal/dedup"
	"github.com/danielohoh/sales-ai-agent/internal/executor"
	"github.com/danielohoh/sales-ai-agent/internal/governance"
	"github.com/danielohoh/sales-ai-agent/internal/observability"
	"github.com/danielohoh/sales-ai-agent/internal/service"
	"github.com/danielohoh/sales-ai-agent/internal/store"
	"github.com/danielohoh/sales-ai-agent/internal/tools"
	"github.com/danielohoh/sales-ai-agent/internal/vision"
	"github.com/danielohoh/sales-ai-agent/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "salesagent",
	Short: "Conversational sales assistant that proposes CRM changes and applies them on approval",
	Long: `salesagent turns free-form requests into CRM action plans.

Read requests (search clients, list activities, upcoming schedules) are
answered directly. Anything that would change data comes back as a plan
that must be approved before it is applied in a single transaction.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to a .json or .yaml config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("No config at %s, using defaults and environment", configPath)
		return config.Default(), nil
	}
	return cfg, err
}

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	store   *store.Store
	service *service.Service
	logger  *observability.Logger
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Printf("closing store: %v", err)
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := observability.NewLogger()

	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()
	tools.RegisterCRM(registry, st)
	if cfg.Agent.WebTools {
		if err := tools.RegisterWeb(registry); err != nil {
			log.Printf("Warning: web tools unavailable: %v", err)
		}
	}

	detector := dedup.NewDetector(st)
	dispatcher := tools.NewDispatcher(registry, detector, logger)

	model, err := newModel(cfg, "")
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	model = agent.NewRateLimitedModel(model, cfg.Agent.RequestsPerSecond, cfg.Agent.Burst)

	loop := agent.NewLoop(model, registry, dispatcher, agent.NewPromptManager(cfg.Agent.PromptDir), logger)
	loop.MaxIterations = cfg.Agent.MaxIterations

	var reader *vision.Preprocessor
	if cfg.Vision.Enabled {
		visionModel := model
		if cfg.Vision.Model != "" {
			if visionModel, err = newModel(cfg, cfg.Vision.Model); err != nil {
				_ = st.Close()
				return nil, err
			}
		}
		reader = vision.NewPreprocessor(visionModel, logger)
	}

	var execOpts []executor.Option
	if ttl := cfg.ReplayGuard(); ttl > 0 {
		execOpts = append(execOpts, executor.WithReplayGuard(ttl))
	}
	exec := executor.New(st, governance.NewDefaultPolicy(), detector, logger, execOpts...)

	svc := service.New(loop, reader, exec, logger,
		service.WithTurnTimeout(cfg.TurnTimeout()),
		service.WithHistory(st, cfg.Agent.HistoryLimit),
		service.WithGate(cfg.ApprovalTTL()),
	)

	return &app{cfg: cfg, store: st, service: svc, logger: logger}, nil
}

// newModel builds the completion client of the default provider. A non-empty
// name overrides the configured model.
func newModel(cfg *config.Config, name string) (llms.Model, error) {
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		return nil, errors.New("no enabled provider found in config (or set OPENAI_API_KEY)")
	}
	if name == "" {
		name = pCfg.Model
	}

	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(name),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s not yet implemented", pName)
	}
}

// sweepApprovals drops expired pending plans until ctx ends.
func sweepApprovals(ctx context.Context, svc *service.Service, every time.Duration) {
	if svc.Gate == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := svc.Gate.Sweep(); n > 0 {
				log.Printf("Expired %d pending plan(s)", n)
			}
		}
	}
}
