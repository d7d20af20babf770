package scholar

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/sentinel-scholar/pkg/infra/app"
)

const (
	// Name is the name of the application.
	Name = "sentinel-scholar"

	// EnvPrefix 环境变量前缀，例如 SCHOLAR_LLM_PRIMARY_MODEL。
	EnvPrefix = "SCHOLAR"

	appDescription = `Sentinel Scholar

Tool-augmented retrieval and reasoning service for academic writing tasks.

This server provides:
  - AI-generated text detection, grammar checking, paraphrasing and summarization
  - Document-grounded prompts built from PDF, text and markdown uploads
  - Plagiarism detection and paper review through a ReAct agent with web,
    Semantic Scholar and arXiv search tools
  - Support for multiple LLM providers (Groq, OpenAI, Gemini, HuggingFace, Ollama)`
)

// NewApp creates a new application instance.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(Name),
		app.WithShortDescription("Tool-augmented retrieval and reasoning service"),
		app.WithDescription(appDescription),
		app.WithEnvPrefix(EnvPrefix),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

// run contains the main logic for initializing and running the server.
func run(opts *Options) app.RunFunc {
	return func() error {
		printBanner(opts)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server, err := NewServer(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		// Run the server with signal context for graceful shutdown
		return server.Run(ctx)
	}
}

func printBanner(opts *Options) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  Primary:   %s (%s)\n", opts.LLM.Primary.Provider, opts.LLM.Primary.Model)
	if opts.LLM.Secondary.Enabled() {
		fmt.Printf("  Secondary: %s (%s)\n", opts.LLM.Secondary.Provider, opts.LLM.Secondary.Model)
	}
	if opts.LLM.Embedding.Enabled() {
		fmt.Printf("  Embedding: %s (%s)\n", opts.LLM.Embedding.Provider, opts.LLM.Embedding.Model)
	}
	fmt.Printf("  Listen:    %s\n", opts.HTTP.Addr)
}
