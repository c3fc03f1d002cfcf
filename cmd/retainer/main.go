package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/m4xw311/retainer/agent"
	"github.com/m4xw311/retainer/agent/terminal"
	"github.com/m4xw311/retainer/augment"
	"github.com/m4xw311/retainer/config"
	"github.com/m4xw311/retainer/llm"
	"github.com/m4xw311/retainer/logger"
	"github.com/m4xw311/retainer/observability"
	"github.com/m4xw311/retainer/tools"
	"github.com/m4xw311/retainer/tools/mcp"
)

const rootLongDesc string = `Chat with a language model that can use the tools, resources and
prompts of an MCP server.

Resources whose name or content matches your question are appended to it,
and the model may call the server's tools before it answers. Type "clear"
to start over and "exit" to quit.

Examples:
  retainer
  retainer --server http://localhost:8003/mcp what is my cpu usage?
  retainer --llm anthropic --model claude-sonnet-4-0 --server "stdio://sysinfo-server"`

const rootShortDesc string = "Conversational agent for MCP servers"

type rootCommander struct {
	configPath    string
	server        string
	llmClient     string
	model         string
	baseURL       string
	toolset       string
	toolVerbosity string
	maxToolRounds int
	debug         bool
}

func NewRootCmd() *cobra.Command {
	cmder := &rootCommander{}

	cmd := &cobra.Command{
		Use:          "retainer [initial prompt]",
		Short:        rootShortDesc,
		Long:         rootLongDesc,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a config file (default: ~/.retainer and ./.retainer)")
	cmd.Flags().StringVarP(&cmder.server, "server", "s", "", "MCP server: URL, sse://URL or stdio://command")
	cmd.Flags().StringVar(&cmder.llmClient, "llm", "", "LLM client: openai, anthropic, bedrock, gemini or mock")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model identifier")
	cmd.Flags().StringVar(&cmder.baseURL, "base-url", "", "Completion endpoint base URL")
	cmd.Flags().StringVarP(&cmder.toolset, "toolset", "t", "", "Toolset to use")
	cmd.Flags().StringVar(&cmder.toolVerbosity, "tool-verbosity", "", "Tool verbosity level: 'none', 'info', or 'all'")
	cmd.Flags().IntVar(&cmder.maxToolRounds, "max-tool-rounds", 0, "Tool rounds allowed per turn, 0 for unbounded")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

// resolveConfig loads the config files and applies the flags that were set.
func (c *rootCommander) resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if c.configPath != "" {
		cfg, err = config.LoadFile(c.configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server = c.server
	}
	if flags.Changed("llm") {
		cfg.LLMClient = c.llmClient
	}
	if flags.Changed("model") {
		cfg.Model = c.model
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = c.baseURL
	}
	if flags.Changed("toolset") {
		cfg.Toolset = c.toolset
	}
	if flags.Changed("tool-verbosity") {
		cfg.ToolVerbosity = c.toolVerbosity
	}
	if flags.Changed("max-tool-rounds") {
		cfg.MaxToolRounds = c.maxToolRounds
	}
	if c.debug {
		cfg.Log.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *rootCommander) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	cfg, err := c.resolveConfig(cmd)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	log := logger.NewLogger(cfg.Log.Debug)
	defer func() { _ = log.Sync() }()

	tp, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("could not initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	client, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("could not initialize %s client: %w", cfg.LLMClient, err)
	}

	provider, err := mcp.NewMCPClient(ctx, "server", cfg.Server, log)
	if err != nil {
		return err
	}
	defer provider.Close()

	ts, err := cfg.GetToolset(cfg.Toolset)
	if err != nil {
		return err
	}
	catalog, err := tools.Load(ctx, provider, ts, log)
	if err != nil {
		return err
	}
	logCatalog(log, catalog)

	augmenter := augment.New(provider, augment.NewPhraseMatcher(cfg.Augmentation), log)
	a, err := agent.New(cfg, client, catalog, augmenter, log)
	if err != nil {
		return err
	}

	log.Info("session started",
		zap.String("llm", cfg.LLMClient),
		zap.String("model", cfg.Model),
		zap.String("server", cfg.Server),
	)
	return terminal.New(a, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx, strings.Join(args, " "))
}

func logCatalog(log *zap.Logger, catalog *tools.Catalog) {
	for _, t := range catalog.Tools {
		log.Debug("available tool", zap.String("name", t.Name()), zap.String("description", t.Description()))
	}
	for _, r := range catalog.Resources {
		log.Debug("available resource", zap.String("name", r.Name), zap.String("uri", r.URI))
	}
	for _, p := range catalog.Prompts {
		log.Debug("available prompt", zap.String("name", p.Name))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		stop()
		os.Exit(1)
	}
}
