// research-engine is the CLI composition root (§6, §9): it wires the
// full dependency graph built across pkg/config, pkg/store,
// pkg/llmadapter, pkg/searchprovider, pkg/tools, pkg/lead, pkg/worker,
// pkg/cycle, pkg/orchestrator, pkg/report and pkg/events, then exposes
// it through three cobra subcommands (run, report, cycle remove).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/research-engine/pkg/config"
	"github.com/codeready-toolchain/research-engine/pkg/cycle"
	"github.com/codeready-toolchain/research-engine/pkg/events"
	"github.com/codeready-toolchain/research-engine/pkg/lead"
	"github.com/codeready-toolchain/research-engine/pkg/llmadapter"
	"github.com/codeready-toolchain/research-engine/pkg/orchestrator"
	"github.com/codeready-toolchain/research-engine/pkg/report"
	"github.com/codeready-toolchain/research-engine/pkg/searchprovider"
	"github.com/codeready-toolchain/research-engine/pkg/store"
	"github.com/codeready-toolchain/research-engine/pkg/tools"
	"github.com/codeready-toolchain/research-engine/pkg/version"
	"github.com/codeready-toolchain/research-engine/pkg/worker"
)

// priceTable is the static per-model price table the §9 design note
// calls for ("A static map {modelId -> (inputPricePerMillion,
// outputPricePerMillion)} with a default entry; unknown models use
// default and record a warning in the cycle audit"). spec.md names no
// concrete model IDs, so these are the publicly published
// per-million-token prices for the model families research-engine.yaml
// is expected to reference (see DESIGN.md); llmadapter.PriceTable.Cost
// already falls back to its own defaultPrice entry for anything absent
// here.
var priceTable = llmadapter.PriceTable{
	"claude-opus-4-20250514":   {InputPerMillion: 15.0, OutputPerMillion: 75.0},
	"claude-sonnet-4-20250514": {InputPerMillion: 3.0, OutputPerMillion: 15.0},
	"claude-haiku-4-20250514":  {InputPerMillion: 0.8, OutputPerMillion: 4.0},
	"gpt-4o":                   {InputPerMillion: 2.5, OutputPerMillion: 10.0},
	"gpt-4o-mini":              {InputPerMillion: 0.15, OutputPerMillion: 0.6},
}

// tavilyCostPerSearch is the flat per-call cost recorded against Tavily
// search usage. Tavily's published pricing is usage-tiered rather than
// a flat per-call rate; this is a conservative flat estimate recorded
// as a DESIGN.md decision rather than a number taken from spec.md.
const tavilyCostPerSearch = 0.005

// toolRatePerSecond bounds total tool calls/sec through the one tool
// executor that every worker shares (§4.7). spec.md states no concrete figure; chosen generously
// below typical search-API rate limits.
const toolRatePerSecond = 2.0

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	var configDir string

	root := &cobra.Command{
		Use:           "research-engine",
		Short:         "Autonomous research-engine orchestrator",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")

	root.AddCommand(newRunCommand(&configDir))
	root.AddCommand(newReportCommand(&configDir))
	root.AddCommand(newCycleCommand(&configDir))

	if err := root.ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// runtime holds the composed workspace-scoped components a subcommand
// drives, plus the store whose lifetime the caller must close.
type runtime struct {
	store        *store.Store
	orchestrator *orchestrator.Orchestrator
	synthesizer  *report.Synthesizer
}

func newRunCommand(configDir *string) *cobra.Command {
	var cycles int
	var untilComplete bool
	var minConfidence float64
	var maxCycles int
	var target string
	var instruction string
	var stopOnError bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one or more research cycles against the configured workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, closeFn, err := buildRuntime(ctx, *configDir)
			if err != nil {
				return err
			}
			defer closeFn()

			switch {
			case untilComplete:
				recs, err := rt.orchestrator.RunUntilComplete(ctx, minConfidence, maxCycles)
				if err != nil {
					return err
				}
				slog.Info("run-until-complete finished", "cycles_run", len(recs))
			case target != "" || instruction != "":
				rec, err := rt.orchestrator.RunCycle(ctx, target, instruction)
				if err != nil {
					return err
				}
				slog.Info("cycle finished", "cycle_id", rec.CycleID, "success", rec.Success)
			default:
				recs, err := rt.orchestrator.RunCycles(ctx, cycles, stopOnError)
				if err != nil {
					return err
				}
				slog.Info("cycles finished", "cycles_run", len(recs))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&cycles, "cycles", 1, "number of cycles to run")
	cmd.Flags().BoolVar(&untilComplete, "until-complete", false, "run cycles until average active confidence reaches --min-confidence")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0.8, "average active-direction confidence threshold for --until-complete")
	cmd.Flags().IntVar(&maxCycles, "max-cycles", 10, "cycle cap for --until-complete")
	cmd.Flags().StringVar(&target, "target", "", "direction ID override for a single ad hoc cycle")
	cmd.Flags().StringVar(&instruction, "instruction", "", "cycle instruction override for a single ad hoc cycle")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", true, "stop the run as soon as a cycle fails")

	return cmd
}

func newReportCommand(configDir *string) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate the workspace's Markdown research report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, closeFn, err := buildRuntime(ctx, *configDir)
			if err != nil {
				return err
			}
			defer closeFn()

			md, err := rt.synthesizer.Generate(ctx)
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Println(md)
				return nil
			}
			return os.WriteFile(out, []byte(md), 0o644)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the report to this file instead of stdout")
	return cmd
}

func newCycleCommand(configDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Cycle record administration",
	}
	cmd.AddCommand(newCycleRemoveCommand(configDir))
	return cmd
}

func newCycleRemoveCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <cycle-id>",
		Short: "Remove a cycle record and its audit rows, leaving graph nodes intact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cycleID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid cycle id %q: %w", args[0], err)
			}

			ctx := cmd.Context()
			loadEnv(*configDir)
			cfg, err := config.Initialize(ctx, *configDir)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			st, err := store.Open(ctx, cfg.StoragePath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() {
				if err := st.Close(); err != nil {
					slog.Error("closing store", "error", err)
				}
			}()

			if err := st.DeleteCycle(ctx, cfg.WorkspaceID, cycleID); err != nil {
				return fmt.Errorf("remove cycle: %w", err)
			}
			slog.Info("cycle removed", "cycle_id", cycleID, "workspace_id", cfg.WorkspaceID)
			return nil
		},
	}
}

// buildRuntime composes every package into a ready-to-drive runtime
// for one workspace, in the dependency order each constructor requires:
// config, then store, then the LLM adapters and search/fetch
// collaborators the tool executor wraps, then Lead and the worker
// pool, then the Cycle Executor, and finally the two workspace-facing
// entry points (Orchestrator, Report Synthesizer).
func buildRuntime(ctx context.Context, configDir string) (*runtime, func(), error) {
	loadEnv(configDir)

	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	st, err := store.Open(ctx, cfg.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	closeFn := func() {
		if err := st.Close(); err != nil {
			slog.Error("closing store", "error", err)
		}
	}

	if err := st.EnsureWorkspace(ctx, cfg.WorkspaceID, cfg.WorkspaceID); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("ensure workspace: %w", err)
	}

	adapters := make(map[string]llmadapter.LLMAdapter, len(cfg.Adapters))
	for _, a := range cfg.Adapters {
		adapter, err := buildAdapter(a)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("build adapter %q: %w", a.Name, err)
		}
		adapters[a.Name] = adapter
	}

	leadConfigs := cfg.LeadAdapters()
	if len(leadConfigs) == 0 {
		closeFn()
		return nil, nil, fmt.Errorf("no adapter marked lead_eligible in configuration")
	}
	leadAdapter := adapters[leadConfigs[0].Name]

	providers := make([]searchprovider.Provider, 0, len(cfg.SearchProviders))
	for _, p := range cfg.SearchProviders {
		providers = append(providers, searchprovider.NewTavilyProvider(p.Name, os.Getenv(p.APIKeyEnv), tavilyCostPerSearch))
	}
	searchManager := searchprovider.NewManager(providers)

	fetcher := tools.NewReaderFallbackFetcher(getEnv("READER_BASE_URL", ""))

	toolExecutor := tools.NewExecutor(tools.Options{
		WorkspaceID:   cfg.WorkspaceID,
		Store:         st,
		Search:        searchManager,
		Fetch:         fetcher,
		RatePerSecond: toolRatePerSecond,
	})
	specs := toolExecutor.Specs(ctx)

	if cfg.WorkerCount < 1 {
		closeFn()
		return nil, nil, fmt.Errorf("worker count must be at least 1")
	}
	workers := make([]*worker.Worker, 0, cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		a := cfg.Adapters[i%len(cfg.Adapters)]
		workers = append(workers, worker.New(worker.Options{
			Name:     fmt.Sprintf("worker-%d", i+1),
			Role:     "independent research worker pursuing the cycle's target direction",
			Adapter:  adapters[a.Name],
			Tools:    specs,
			Executor: toolExecutor.Execute,
		}))
	}

	bus := events.New()

	cycleExecutor := cycle.New(cycle.Options{
		Store:       st,
		Lead:        lead.New(leadAdapter),
		Workers:     workers,
		Bus:         bus,
		Thresholds:  cfg.Thresholds,
		Mission:     cfg.Mission,
		WorkspaceID: cfg.WorkspaceID,
	})

	orch := orchestrator.New(orchestrator.Options{
		Store:       st,
		Executor:    cycleExecutor,
		WorkspaceID: cfg.WorkspaceID,
	})

	synth := report.New(report.Options{
		Store:       st,
		Adapter:     leadAdapter,
		WorkspaceID: cfg.WorkspaceID,
	})

	return &runtime{store: st, orchestrator: orch, synthesizer: synth}, closeFn, nil
}

func buildAdapter(a config.AdapterConfig) (llmadapter.LLMAdapter, error) {
	apiKey := os.Getenv(a.APIKeyEnv)
	switch a.Type {
	case "anthropic":
		return llmadapter.NewAnthropicAdapter(a.Name, a.Model, apiKey, priceTable), nil
	case "langchain":
		return llmadapter.NewLangChainAdapter(a.Name, a.Model, apiKey, a.BaseURL, priceTable)
	default:
		return nil, fmt.Errorf("unknown adapter type %q", a.Type)
	}
}

func loadEnv(configDir string) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("no .env file loaded", "path", envPath, "error", err)
	}
}
