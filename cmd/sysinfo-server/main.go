package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/m4xw311/retainer/logger"
	"github.com/m4xw311/retainer/sysinfo"
)

const serveLongDesc string = `Serve the CPU, RAM and disk usage of this machine over MCP.

Resources: cpu_usage, ram_usage, disk_usage (percent).
Tools: total_usage_ram_in_gb, disk_usage.
Prompts: generate_prompt, friendly_assistant_prompt.

Without --http the server speaks MCP over stdin/stdout, so it can be
launched by a client as "stdio://sysinfo-server".

Examples:
  sysinfo-server
  sysinfo-server --http :8003`

type serveCommander struct {
	httpAddr string
	diskPath string
	debug    bool
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:          "sysinfo-server",
		Short:        "MCP server for host CPU, RAM and disk usage",
		Long:         serveLongDesc,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cmder.httpAddr, "http", "", "Serve streamable HTTP on this address at /mcp instead of stdio")
	cmd.Flags().StringVar(&cmder.diskPath, "disk", "/", "Mount point reported by disk_usage")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	log := logger.NewLogger(c.debug)
	defer func() { _ = log.Sync() }()

	sampler := sysinfo.NewHostSampler()
	sampler.DiskPath = c.diskPath
	server := sysinfo.NewServer(sampler, log)

	if c.httpAddr == "" {
		log.Info("sysinfo server listening on stdio")
		return server.Run(ctx, &mcpsdk.StdioTransport{})
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return server
	}, nil))
	httpServer := &http.Server{
		Addr:              c.httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("sysinfo server listening", zap.String("addr", c.httpAddr), zap.String("path", "/mcp"))
	if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewServeCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		stop()
		os.Exit(1)
	}
}
