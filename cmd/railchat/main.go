package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nasirperwez/rail-chatbot-backend/internal/config"
	"github.com/nasirperwez/rail-chatbot-backend/internal/http"
	"github.com/nasirperwez/rail-chatbot-backend/internal/llm/openai"
	"github.com/nasirperwez/rail-chatbot-backend/internal/logging"
	"github.com/nasirperwez/rail-chatbot-backend/internal/mcp"
	"github.com/nasirperwez/rail-chatbot-backend/internal/orchestrator"
	"github.com/spf13/cobra"
)

var (
	portFlag    int
	verboseFlag bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "railchat",
		Short: "Rail Chatbot Backend - AI chat server with IRCTC tool calling",
		Long: `Rail Chatbot Backend mediates between users, an LLM, and the Railway
tool server. It exposes a streaming chat endpoint that answers railway
queries by calling remote IRCTC tools when needed.`,
		RunE: runServe,
	}

	rootCmd.Flags().IntVarP(&portFlag, "port", "p", 0, "Override listen port")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose output")

	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List tools exposed by the remote tool server",
		RunE:  runListTools,
	}
	rootCmd.AddCommand(toolsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}

	logging.Info("Starting Rail Chatbot Backend...")

	orch := orchestrator.New(newToolClient(cfg), openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel))
	defer orch.Close()

	server := http.NewServer(cfg, orch)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	logging.Info("Shutting down...")
	return nil
}

func runListTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := newToolClient(cfg)
	defer client.Disconnect()

	tools, err := client.ListTools(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}

	fmt.Printf("%d tools available:\n", len(tools))
	for _, tool := range tools {
		fmt.Printf("  %-30s %s\n", tool.Name, tool.Description)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	// A missing .env is fine; variables may come from the environment.
	godotenv.Load()

	logging.SetVerbose(verboseFlag)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func newToolClient(cfg *config.Config) *mcp.Client {
	return mcp.NewClient(cfg.MCPServerURL, cfg.RapidAPIHost, cfg.RapidAPIKey, config.MCPProtocolVersion)
}
